// Package repositories defines the persistence contract of the service and
// its BadgerDB implementation. Stores hold no business logic.
package repositories

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"group-cart/domain"
	"group-cart/errors"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// Store is everything the domain handlers persist.
// Implementations must make concurrent inserts safe and return the assigned IDs.
type Store interface {
	IUserRepository
	IMembershipRepository
	IMessageRepository
	IProductRepository
	ICartRepository
	// Maintain reclaims space; it is run periodically by the maintenance worker.
	Maintain(ctx context.Context) error
	Close() error
}

const sequenceBandwidth = 100

// BadgerStore groups the badger repositories behind the Store contract.
type BadgerStore struct {
	MessageRepository
	UserRepository
	MembershipRepository
	ProductRepository
	CartRepository
	db        *badger.DB
	log       *slog.Logger
	sequences []*badger.Sequence
}

// NewBadgerStore leases the ID sequences and wires every repository on db.
// The caller keeps ownership of db.
func NewBadgerStore(db *badger.DB, log *slog.Logger, limitMessages *int) (*BadgerStore, error) {
	messageSeq, err := db.GetSequence([]byte("seq:msg"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	cartSeq, err := db.GetSequence([]byte("seq:cart"), sequenceBandwidth)
	if err != nil {
		_ = messageSeq.Release()
		return nil, fmt.Errorf("cart sequence: %w", err)
	}
	return &BadgerStore{
		MessageRepository:    NewMessageRepository(db, log, messageSeq, limitMessages),
		UserRepository:       NewUserRepository(db),
		MembershipRepository: NewMembershipRepository(db),
		ProductRepository:    NewProductRepository(db),
		CartRepository:       NewCartRepository(db, cartSeq),
		db:                   db,
		log:                  log,
		sequences:            []*badger.Sequence{messageSeq, cartSeq},
	}, nil
}

// Maintain runs the value-log garbage collector until there is nothing left to rewrite.
func (s *BadgerStore) Maintain(ctx context.Context) error {
	if s.db.Opts().InMemory {
		return nil
	}
	for ctx.Err() == nil {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return err
		}
		s.log.Debug("Badger value log rewritten")
	}
	return ctx.Err()
}

// Close returns the unused part of the leased sequences.
func (s *BadgerStore) Close() error {
	var firstErr error
	for _, seq := range s.sequences {
		if err := seq.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// groupKey keeps group IDs containing ':' from colliding in prefix scans.
func groupKey(groupID domain.GroupID) string {
	return hex.EncodeToString([]byte(groupID))
}

// update runs fn in a read-write transaction and runs it again while badger reports
// a conflict with a concurrent writer. fn must not keep state between attempts.
func update(ctx context.Context, db *badger.DB, fn func(txn *badger.Txn) error) error {
	for {
		err := db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, in any) error {
	bytes, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return txn.Set(key, bytes)
}

// scanJSON decodes every value under prefix in key order.
func scanJSON[T any](txn *badger.Txn, prefix []byte, reverse bool, limit int) ([]T, error) {
	options := badger.DefaultIteratorOptions
	options.Prefix = prefix
	options.Reverse = reverse
	it := txn.NewIterator(options)
	defer it.Close()

	seek := prefix
	if reverse {
		seek = append(append([]byte{}, prefix...), 0xFF)
	}

	var out []T
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		if limit > 0 && len(out) == limit {
			break
		}
		var value T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &value)
		}); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, nil
}
