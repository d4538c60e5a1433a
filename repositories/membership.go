//go:generate go run go.uber.org/mock/mockgen -source=membership.go -destination=../mocks/mock_membership_repository.go -package=mocks
package repositories

import (
	"context"
	"fmt"
	"group-cart/domain"
	"group-cart/errors"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IMembershipRepository interface {
	// AddMember records that the user joined the group. Joining again keeps the first date.
	AddMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID, at time.Time) error
	// ListMembers returns the users of the group with JoinedAt set to their membership date,
	// oldest member first.
	ListMembers(ctx context.Context, groupID domain.GroupID) ([]domain.User, error)
}

type MembershipRepository struct {
	db *badger.DB
}

func NewMembershipRepository(db *badger.DB) MembershipRepository {
	return MembershipRepository{db: db}
}

type DiskMembership struct {
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

func (m MembershipRepository) AddMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return errors.Persistence("add member", err)
	}
	err := update(ctx, m.db, func(txn *badger.Txn) error {
		key := memberKey(groupID, userID)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, key, DiskMembership{UserID: string(userID), JoinedAt: at.UTC()})
	})
	if err != nil {
		return errors.Persistence("add member", err)
	}
	return nil
}

func (m MembershipRepository) ListMembers(ctx context.Context, groupID domain.GroupID) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Persistence("list members", err)
	}
	users := make([]domain.User, 0)
	err := m.db.View(func(txn *badger.Txn) error {
		memberships, err := scanJSON[DiskMembership](txn, memberPrefix(groupID), false, 0)
		if err != nil {
			return err
		}
		for _, membership := range memberships {
			var stored DiskUser
			err = getJSON(txn, userKey(domain.UserID(membership.UserID)), &stored)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			user := toUser(stored)
			user.JoinedAt = membership.JoinedAt.UTC()
			users = append(users, user)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Persistence("list members", err)
	}
	sortMembers(users)
	return users, nil
}

func sortMembers(users []domain.User) {
	slices.SortStableFunc(users, func(a, b domain.User) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
}

func memberPrefix(groupID domain.GroupID) []byte {
	return []byte(fmt.Sprintf("member:%s:", groupKey(groupID)))
}

func memberKey(groupID domain.GroupID, userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", groupKey(groupID), userID))
}
