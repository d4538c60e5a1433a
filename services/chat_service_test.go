package services

import (
	"context"
	"group-cart/domain"
	"group-cart/domain/event"
	"group-cart/errors"
	"group-cart/mocks"
	"group-cart/runtime"
	"group-cart/search"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var boundRequest = runtime.Request{
	Event:   event.SendMessage,
	Session: domain.Session{ConnectionID: "c1", GroupID: "g1", UserID: "u1"},
}

type fakeIndex struct {
	indexed []domain.Message
	ids     []uint64
	total   uint64
	err     error
}

func (f *fakeIndex) IndexMessage(_ context.Context, message domain.Message) error {
	f.indexed = append(f.indexed, message)
	return f.err
}

func (f *fakeIndex) Search(_ context.Context, _ domain.GroupID, _ search.Query) ([]uint64, uint64, error) {
	return f.ids, f.total, f.err
}

type upperCensor struct{}

func (upperCensor) Censor(content string) (string, []string) {
	if content == "scam" {
		return "****", []string{"scam"}
	}
	return content, nil
}

func TestChatService_SendMessage_Persists_Then_Broadcasts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	index := &fakeIndex{}
	svc := NewChatService(slog.Default(), messages, broadcaster, index, nil, 4096)
	at := time.Date(2026, 5, 1, 14, 5, 0, 0, time.UTC)

	// Given a store assigning id 42
	stored := domain.Message{ID: 42, GroupID: "g1", SenderID: "u1", SenderName: "Alice", Content: "hi", CreatedAt: at}
	gomock.InOrder(
		messages.EXPECT().
			StoreMessage(gomock.Any(), domain.Message{GroupID: "g1", SenderID: "u1", SenderName: "Alice", Content: "hi"}).
			Return(stored, nil),
		broadcaster.EXPECT().
			BroadcastToGroup(gomock.Any(), domain.GroupID("g1"), event.MessageReceived, event.MessagePayload{
				ID: "42", Sender: "Alice", Message: "hi", Time: "02:05 PM",
			}).
			Return(2),
	)

	// When Alice sends a message
	err := svc.SendMessage(t.Context(), boundRequest, event.SendMessagePayload{Sender: "Alice", Message: "hi"})

	// Then it is stored, indexed and broadcast
	req.NoError(err)
	req.Equal([]domain.Message{stored}, index.indexed)
}

func TestChatService_SendMessage_Persistence_Failure_Broadcasts_Nothing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	svc := NewChatService(slog.Default(), messages, broadcaster, nil, nil, 4096)

	messages.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).
		Return(domain.Message{}, errors.Persistence("store message", errors.New("disk full")))
	broadcaster.EXPECT().BroadcastToGroup(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := svc.SendMessage(t.Context(), boundRequest, event.SendMessagePayload{Sender: "Alice", Message: "hi"})

	req.ErrorIs(err, errors.ErrPersistence)
}

func TestChatService_SendMessage_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		request runtime.Request
		payload event.SendMessagePayload
		want    error
	}{
		{
			name:    "unbound connection",
			request: runtime.Request{Session: domain.Session{ConnectionID: "c1"}},
			payload: event.SendMessagePayload{Sender: "Alice", Message: "hi"},
			want:    errors.ErrNotJoined,
		},
		{
			name:    "empty content",
			request: boundRequest,
			payload: event.SendMessagePayload{Sender: "Alice", Message: ""},
			want:    errors.ErrValidation,
		},
		{
			name:    "content too long",
			request: boundRequest,
			payload: event.SendMessagePayload{Sender: "Alice", Message: "abcdefghijk"},
			want:    errors.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			// No call is expected on any collaborator
			svc := NewChatService(slog.Default(), mocks.NewMockIMessageRepository(ctrl), mocks.NewMockIBroadcaster(ctrl), nil, nil, 10)

			err := svc.SendMessage(t.Context(), tt.request, tt.payload)

			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestChatService_SendMessage_Censors_Before_Storing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	svc := NewChatService(slog.Default(), messages, broadcaster, nil, upperCensor{}, 4096)

	messages.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m domain.Message) (domain.Message, error) {
			req.Equal("****", m.Content)
			m.ID = 1
			return m, nil
		})
	broadcaster.EXPECT().BroadcastToGroup(gomock.Any(), domain.GroupID("g1"), event.MessageReceived, gomock.Any()).Return(1)

	req.NoError(svc.SendMessage(t.Context(), boundRequest, event.SendMessagePayload{Sender: "Alice", Message: "scam"}))
}

func TestChatService_GetMessages(t *testing.T) {
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	svc := NewChatService(slog.Default(), messages, broadcaster, nil, nil, 4096)

	t.Run("bound connection gets the history", func(t *testing.T) {
		req := require.New(t)
		history := []domain.Message{{ID: 1, SenderName: "Alice", Content: "hi"}}
		messages.EXPECT().GetMessages(gomock.Any(), domain.GroupID("g1")).Return(history, nil)
		broadcaster.EXPECT().SendTo(gomock.Any(), domain.ConnectionID("c1"), event.MessagesLoaded, event.FromMessages(history))

		req.NoError(svc.GetMessages(t.Context(), boundRequest, event.Empty{}))
	})

	t.Run("unbound connection gets an empty list", func(t *testing.T) {
		req := require.New(t)
		broadcaster.EXPECT().SendTo(gomock.Any(), domain.ConnectionID("c2"), event.MessagesLoaded, []event.MessagePayload{})

		req.NoError(svc.GetMessages(t.Context(), runtime.Request{Session: domain.Session{ConnectionID: "c2"}}, event.Empty{}))
	})
}

func TestChatService_SearchMessages(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	index := &fakeIndex{ids: []uint64{3}, total: 1}
	svc := NewChatService(slog.Default(), messages, broadcaster, index, nil, 4096)
	found := []domain.Message{{ID: 3, SenderName: "Bob", Content: "invoice sent"}}

	messages.EXPECT().GetMessagesByIDs(gomock.Any(), domain.GroupID("g1"), []uint64{3}).Return(found, nil)
	broadcaster.EXPECT().SendTo(gomock.Any(), domain.ConnectionID("c1"), event.SearchResults, event.SearchResultsPayload{
		Query:    "invoice",
		Total:    1,
		Messages: event.FromMessages(found),
	})

	req.NoError(svc.SearchMessages(t.Context(), boundRequest, event.SearchMessagesPayload{Query: "/find invoice"}))
}

func boundRequestFor(connID domain.ConnectionID, groupID domain.GroupID) runtime.Request {
	return runtime.Request{Session: domain.Session{ConnectionID: connID, GroupID: groupID}}
}
