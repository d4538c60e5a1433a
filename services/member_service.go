package services

import (
	"context"
	"fmt"
	"group-cart/contract"
	"group-cart/domain"
	"group-cart/domain/event"
	"group-cart/errors"
	"group-cart/repositories"
	"group-cart/runtime"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	guestName     = "Guest"
	presenceLocks = 32
)

type IMemberService interface {
	Join(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID, user domain.User) error
	Leave(ctx context.Context, session domain.Session)
	Members(ctx context.Context, groupID domain.GroupID) ([]domain.Member, error)
	GetMembers(ctx context.Context, req runtime.Request, _ event.Empty) error
}

type MemberService struct {
	log         *slog.Logger
	registry    contract.IRegistry
	broadcaster contract.IBroadcaster
	users       repositories.IUserRepository
	memberships repositories.IMembershipRepository
	// presence serializes the stored online flag of a user with the registry binding.
	presence [presenceLocks]sync.Mutex
}

func NewMemberService(log *slog.Logger, registry contract.IRegistry, broadcaster contract.IBroadcaster,
	users repositories.IUserRepository, memberships repositories.IMembershipRepository) *MemberService {
	return &MemberService{
		log:         log,
		registry:    registry,
		broadcaster: broadcaster,
		users:       users,
		memberships: memberships,
	}
}

// GuestUser is the identity given to a connection that announced no user.
func GuestUser(connID domain.ConnectionID) domain.User {
	short := string(connID)
	if len(short) > 8 {
		short = short[:8]
	}
	return domain.User{ID: domain.UserID("guest-" + short), Name: guestName, Avatar: domain.DefaultAvatar}
}

// Join persists the user and its membership, binds the connection, then pushes the
// member list to the group. A connection coming from another group refreshes that group too.
func (s *MemberService) Join(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID, user domain.User) error {
	if groupID == "" || user.ID == "" {
		return errors.Validation("group_id and user_id are required")
	}
	previous, _ := s.registry.Session(connID)
	if err := s.bind(ctx, connID, groupID, user); err != nil {
		return err
	}

	if previous.UserID != "" && previous.UserID != user.ID {
		s.markOffline(ctx, previous.UserID)
	}
	if previous.Bound() && previous.GroupID != groupID {
		s.pushMembers(ctx, previous.GroupID)
	}
	s.pushMembers(ctx, groupID)
	return nil
}

// bind stores the user online and binds the connection while holding the user's presence lock,
// so a concurrent markOffline either runs before the write or sees the new binding.
func (s *MemberService) bind(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID, user domain.User) error {
	unlock := s.lockPresence(user.ID)
	defer unlock()

	user.Online = true
	if user.Avatar == "" {
		if _, err := s.users.GetUser(ctx, user.ID); errors.Is(err, errors.ErrNotFound) {
			user.Avatar = domain.DefaultAvatar
		}
	}
	if _, err := s.users.UpsertUser(ctx, user); err != nil {
		return err
	}
	if err := s.memberships.AddMember(ctx, groupID, user.ID, time.Now().UTC()); err != nil {
		return err
	}
	s.registry.Bind(connID, groupID, user.ID)
	// The connection may have closed before Bind, leaving nobody to carry the user.
	if !s.registry.IsOnline(user.ID) {
		s.persistOffline(ctx, user.ID)
	}
	return nil
}

// Leave runs once the connection is gone from the registry.
func (s *MemberService) Leave(ctx context.Context, session domain.Session) {
	if session.UserID != "" {
		s.markOffline(ctx, session.UserID)
	}
	if session.Bound() {
		s.pushMembers(ctx, session.GroupID)
	}
}

// Members lists the group members with their live online state.
func (s *MemberService) Members(ctx context.Context, groupID domain.GroupID) ([]domain.Member, error) {
	users, err := s.memberships.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(user domain.User, _ int) domain.Member {
		return domain.Member{User: user, IsOnline: s.registry.IsOnline(user.ID)}
	}), nil
}

func (s *MemberService) GetMembers(ctx context.Context, req runtime.Request, _ event.Empty) error {
	if !req.Session.Bound() {
		s.broadcaster.SendTo(ctx, req.ConnectionID(), event.MembersUpdated, []event.MemberPayload{})
		return nil
	}
	members, err := s.Members(ctx, req.Session.GroupID)
	if err != nil {
		return err
	}
	s.broadcaster.SendTo(ctx, req.ConnectionID(), event.MembersUpdated, event.FromMembers(members))
	return nil
}

// markOffline persists the flag only when no other connection still carries the user.
func (s *MemberService) markOffline(ctx context.Context, userID domain.UserID) {
	unlock := s.lockPresence(userID)
	defer unlock()

	if s.registry.IsOnline(userID) {
		return
	}
	s.persistOffline(ctx, userID)
}

func (s *MemberService) persistOffline(ctx context.Context, userID domain.UserID) {
	if err := s.users.SetOnline(ctx, userID, false); err != nil && !errors.Is(err, errors.ErrNotFound) {
		s.log.Warn("Unable to persist offline state", "user_id", userID, "error", err)
	}
}

// pushMembers is best effort: presence is refreshed again on the next change.
func (s *MemberService) pushMembers(ctx context.Context, groupID domain.GroupID) {
	members, err := s.Members(ctx, groupID)
	if err != nil {
		s.log.Warn(fmt.Sprintf("Unable to push members of %s", groupID), "error", err)
		return
	}
	s.broadcaster.BroadcastToGroup(ctx, groupID, event.MembersUpdated, event.FromMembers(members))
}

func (s *MemberService) lockPresence(userID domain.UserID) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &s.presence[h.Sum32()%presenceLocks]
	mu.Lock()
	return mu.Unlock
}
