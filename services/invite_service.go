package services

import (
	"context"
	"group-cart/contract"
	"group-cart/domain/event"
	"group-cart/runtime"
	"strings"

	"github.com/google/uuid"
)

type IInviteService interface {
	NewLink() string
	GenerateInvite(ctx context.Context, req runtime.Request, _ event.Empty) error
}

// InviteService mints invite links. Tokens are neither stored nor broadcast.
type InviteService struct {
	baseURL     string
	broadcaster contract.IBroadcaster
}

func NewInviteService(baseURL string, broadcaster contract.IBroadcaster) *InviteService {
	return &InviteService{baseURL: strings.TrimRight(baseURL, "/"), broadcaster: broadcaster}
}

func (s *InviteService) NewLink() string {
	return s.baseURL + "/join/" + uuid.NewString()
}

func (s *InviteService) GenerateInvite(ctx context.Context, req runtime.Request, _ event.Empty) error {
	s.broadcaster.SendTo(ctx, req.ConnectionID(), event.InviteLink, s.NewLink())
	return nil
}
