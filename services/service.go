// Package services holds the domain handlers. Each one composes the store with the broadcaster.
package services

import (
	"context"
	"group-cart/contract"
	"group-cart/domain"
	"group-cart/domain/event"
	"group-cart/errors"
	"group-cart/runtime"
	"log/slog"
)

// Service registers every domain handler on the router and reacts to channel open and close.
type Service struct {
	log          *slog.Logger
	broadcaster  contract.IBroadcaster
	defaultGroup domain.GroupID
	Chat         IChatService
	Members      IMemberService
	Cart         ICartService
	Invites      IInviteService
}

var _ contract.ISessionHooks = (*Service)(nil)

func NewService(log *slog.Logger, broadcaster contract.IBroadcaster, defaultGroup domain.GroupID,
	chat IChatService, members IMemberService, cart ICartService, invites IInviteService) *Service {
	return &Service{
		log:          log,
		broadcaster:  broadcaster,
		defaultGroup: defaultGroup,
		Chat:         chat,
		Members:      members,
		Cart:         cart,
		Invites:      invites,
	}
}

// Register binds one handler per inbound event name.
func (s *Service) Register(router *runtime.Router) {
	runtime.Handle(router, event.JoinGroup, s.JoinGroup)
	runtime.Handle(router, event.SendMessage, s.Chat.SendMessage)
	runtime.Handle(router, event.GetMessages, s.Chat.GetMessages)
	runtime.Handle(router, event.SearchMessages, s.Chat.SearchMessages)
	runtime.Handle(router, event.GetMembers, s.Members.GetMembers)
	runtime.Handle(router, event.AddToCart, s.Cart.AddToCart)
	runtime.Handle(router, event.GetCart, s.Cart.GetCart)
	runtime.Handle(router, event.GenerateInvite, s.Invites.GenerateInvite)
}

// OnConnect is the implicit "connect" event: join the announced or default group,
// push members to the group and replay the history to the newcomer.
func (s *Service) OnConnect(ctx context.Context, connID domain.ConnectionID, hello domain.Hello) {
	user := domain.User{ID: hello.UserID, Name: hello.Name, Avatar: hello.Avatar}
	if user.ID == "" {
		user = GuestUser(connID)
	}
	groupID := hello.GroupID
	if groupID == "" {
		groupID = s.defaultGroup
	}

	if err := s.Members.Join(ctx, connID, groupID, user); err != nil {
		s.fail(ctx, connID, err)
		return
	}
	if err := s.Chat.SendHistory(ctx, connID, groupID); err != nil {
		s.fail(ctx, connID, err)
	}
}

func (s *Service) OnDisconnect(ctx context.Context, session domain.Session) {
	s.Members.Leave(ctx, session)
}

// JoinGroup moves the connection to another group and sends it the group state.
func (s *Service) JoinGroup(ctx context.Context, req runtime.Request, payload event.JoinGroupPayload) error {
	groupID := domain.GroupID(payload.GroupID)
	user := domain.User{ID: domain.UserID(payload.UserID), Name: payload.Name, Avatar: payload.Avatar}
	if err := s.Members.Join(ctx, req.ConnectionID(), groupID, user); err != nil {
		return err
	}
	if err := s.Chat.SendHistory(ctx, req.ConnectionID(), groupID); err != nil {
		return err
	}
	return s.Cart.SendCart(ctx, req.ConnectionID(), groupID)
}

func (s *Service) fail(ctx context.Context, connID domain.ConnectionID, err error) {
	s.log.Error("Connect failed", "connection_id", connID, "error", err)
	s.broadcaster.SendTo(ctx, connID, event.Error, event.ErrorPayload{
		Code:    errors.Code(err),
		Message: errors.Message(err),
		Event:   event.Connect,
	})
}
