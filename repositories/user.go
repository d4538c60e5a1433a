//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"context"
	"group-cart/domain"
	"group-cart/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	// UpsertUser creates the user or refreshes its profile.
	// The first JoinedAt is kept, empty name and avatar never overwrite stored ones.
	UpsertUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUser(ctx context.Context, id domain.UserID) (domain.User, error)
	SetOnline(ctx context.Context, id domain.UserID, online bool) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

// DiskUser is the on-disk representation of a user.
type DiskUser struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar"`
	Online   bool      `json:"online"`
	JoinedAt time.Time `json:"joined_at"`
}

func (u UserRepository) UpsertUser(ctx context.Context, user domain.User) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, errors.Persistence("upsert user", err)
	}
	var stored DiskUser
	err := update(ctx, u.db, func(txn *badger.Txn) error {
		key := userKey(user.ID)
		stored = DiskUser{}
		err := getJSON(txn, key, &stored)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			stored = fromUser(user)
			if stored.JoinedAt.IsZero() {
				stored.JoinedAt = time.Now().UTC()
			}
		case err != nil:
			return err
		default:
			if user.Name != "" {
				stored.Name = user.Name
			}
			if user.Avatar != "" {
				stored.Avatar = user.Avatar
			}
			stored.Online = user.Online
		}
		return setJSON(txn, key, stored)
	})
	if err != nil {
		return domain.User{}, errors.Persistence("upsert user", err)
	}
	return toUser(stored), nil
}

func (u UserRepository) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, errors.Persistence("get user", err)
	}
	var stored DiskUser
	err := u.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &stored)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.NotFound("user %q", id)
	}
	if err != nil {
		return domain.User{}, errors.Persistence("get user", err)
	}
	return toUser(stored), nil
}

func (u UserRepository) SetOnline(ctx context.Context, id domain.UserID, online bool) error {
	if err := ctx.Err(); err != nil {
		return errors.Persistence("set online", err)
	}
	err := update(ctx, u.db, func(txn *badger.Txn) error {
		var stored DiskUser
		if err := getJSON(txn, userKey(id), &stored); err != nil {
			return err
		}
		stored.Online = online
		return setJSON(txn, userKey(id), stored)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return errors.NotFound("user %q", id)
	}
	if err != nil {
		return errors.Persistence("set online", err)
	}
	return nil
}

func userKey(id domain.UserID) []byte {
	return []byte("user:" + string(id))
}

func fromUser(user domain.User) DiskUser {
	return DiskUser{
		ID:       string(user.ID),
		Name:     user.Name,
		Avatar:   user.Avatar,
		Online:   user.Online,
		JoinedAt: user.JoinedAt,
	}
}

func toUser(d DiskUser) domain.User {
	return domain.User{
		ID:       domain.UserID(d.ID),
		Name:     d.Name,
		Avatar:   d.Avatar,
		Online:   d.Online,
		JoinedAt: d.JoinedAt.UTC(),
	}
}
