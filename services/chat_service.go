package services

import (
	"context"
	"group-cart/contract"
	"group-cart/domain"
	"group-cart/domain/event"
	"group-cart/errors"
	"group-cart/repositories"
	"group-cart/runtime"
	"group-cart/search"
	"log/slog"
	"unicode/utf8"
)

// MessageIndex makes stored messages searchable. The store stays the source of truth.
type MessageIndex interface {
	IndexMessage(ctx context.Context, message domain.Message) error
	Search(ctx context.Context, groupID domain.GroupID, query search.Query) ([]uint64, uint64, error)
}

// Censor masks forbidden words and reports which ones were found.
type Censor interface {
	Censor(content string) (string, []string)
}

type IChatService interface {
	SendMessage(ctx context.Context, req runtime.Request, payload event.SendMessagePayload) error
	GetMessages(ctx context.Context, req runtime.Request, _ event.Empty) error
	SearchMessages(ctx context.Context, req runtime.Request, payload event.SearchMessagesPayload) error
	SendHistory(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID) error
}

type ChatService struct {
	log              *slog.Logger
	messages         repositories.IMessageRepository
	broadcaster      contract.IBroadcaster
	index            MessageIndex
	censor           Censor
	maxContentLength int
}

// NewChatService wires the message flow. index and censor are optional.
func NewChatService(log *slog.Logger, messages repositories.IMessageRepository, broadcaster contract.IBroadcaster,
	index MessageIndex, censor Censor, maxContentLength int) *ChatService {
	return &ChatService{
		log:              log,
		messages:         messages,
		broadcaster:      broadcaster,
		index:            index,
		censor:           censor,
		maxContentLength: maxContentLength,
	}
}

// SendMessage persists the message then broadcasts it to the sender's group.
// Nothing is broadcast when the write fails, so a replay always holds every broadcast message.
func (s *ChatService) SendMessage(ctx context.Context, req runtime.Request, payload event.SendMessagePayload) error {
	if !req.Session.Bound() {
		return errors.ErrNotJoined
	}
	if payload.Message == "" {
		return errors.Validation("message: required")
	}
	if s.maxContentLength > 0 && utf8.RuneCountInString(payload.Message) > s.maxContentLength {
		return errors.Validation("message: longer than %d characters", s.maxContentLength)
	}

	content := payload.Message
	if s.censor != nil {
		var words []string
		if content, words = s.censor.Censor(content); len(words) > 0 {
			s.log.Info("Message censored", "group_id", req.Session.GroupID, "user_id", req.Session.UserID, "words", len(words))
		}
	}

	stored, err := s.messages.StoreMessage(ctx, domain.Message{
		GroupID:    req.Session.GroupID,
		SenderID:   req.Session.UserID,
		SenderName: payload.Sender,
		Content:    content,
		IsAI:       payload.IsAI,
	})
	if err != nil {
		return err
	}

	if s.index != nil {
		if err = s.index.IndexMessage(ctx, stored); err != nil {
			// The message is durable already, only search misses it.
			s.log.Warn("Unable to index message", "message_id", stored.ID, "error", err)
		}
	}

	s.broadcaster.BroadcastToGroup(ctx, stored.GroupID, event.MessageReceived, event.FromMessage(stored))
	return nil
}

// GetMessages replays the group history to the requester. An unbound connection gets an empty list.
func (s *ChatService) GetMessages(ctx context.Context, req runtime.Request, _ event.Empty) error {
	if !req.Session.Bound() {
		s.broadcaster.SendTo(ctx, req.ConnectionID(), event.MessagesLoaded, []event.MessagePayload{})
		return nil
	}
	return s.SendHistory(ctx, req.ConnectionID(), req.Session.GroupID)
}

func (s *ChatService) SendHistory(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID) error {
	messages, err := s.messages.GetMessages(ctx, groupID)
	if err != nil {
		return err
	}
	s.broadcaster.SendTo(ctx, connID, event.MessagesLoaded, event.FromMessages(messages))
	return nil
}

// SearchMessages runs a full-text search inside the requester's group.
func (s *ChatService) SearchMessages(ctx context.Context, req runtime.Request, payload event.SearchMessagesPayload) error {
	if !req.Session.Bound() {
		return errors.ErrNotJoined
	}
	query := search.NewSearchQuery(payload.Query)
	result := event.SearchResultsPayload{Query: query.Terms, Messages: []event.MessagePayload{}}
	if s.index == nil || query.Terms == "" {
		s.broadcaster.SendTo(ctx, req.ConnectionID(), event.SearchResults, result)
		return nil
	}

	ids, total, err := s.index.Search(ctx, req.Session.GroupID, query)
	if err != nil {
		return errors.Persistence("search messages", err)
	}
	messages, err := s.messages.GetMessagesByIDs(ctx, req.Session.GroupID, ids)
	if err != nil {
		return err
	}
	result.Total = total
	result.Messages = event.FromMessages(messages)
	s.broadcaster.SendTo(ctx, req.ConnectionID(), event.SearchResults, result)
	return nil
}
