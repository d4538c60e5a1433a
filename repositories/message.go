//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"group-cart/domain"
	"group-cart/errors"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	// StoreMessage assigns the ID and the server timestamp, then returns the stored message.
	StoreMessage(ctx context.Context, message domain.Message) (domain.Message, error)
	// GetMessages returns the group history in ascending order.
	GetMessages(ctx context.Context, groupID domain.GroupID) ([]domain.Message, error)
	// GetMessagesByIDs returns the messages of the group matching ids, in ascending order.
	// Unknown IDs are skipped.
	GetMessagesByIDs(ctx context.Context, groupID domain.GroupID, ids []uint64) ([]domain.Message, error)
	// EachMessage calls fn for every stored message of every group, ignoring the history limit.
	// It stops at the first error returned by fn.
	EachMessage(ctx context.Context, fn func(domain.Message) error) error
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	seq           *badger.Sequence
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, seq *badger.Sequence, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, seq: seq, limitMessages: limitMessages}
}

type DiskMessage struct {
	ID         uint64    `json:"id"`
	GroupID    string    `json:"group_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	At         time.Time `json:"at"`
	IsAI       bool      `json:"is_ai"`
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{group_hex}:{id_padded}": the 20-digit zero padding
// keeps lexicographical order equal to insertion order.
func (m MessageRepository) StoreMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, errors.Persistence("store message", err)
	}
	next, err := m.seq.Next()
	if err != nil {
		return domain.Message{}, errors.Persistence("store message", err)
	}
	// Sequences start at zero, IDs start at one.
	message.ID = next + 1
	message.CreatedAt = time.Now().UTC()

	err = m.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, messageKey(message.GroupID, message.ID), fromMessage(message))
	})
	if err != nil {
		return domain.Message{}, errors.Persistence("store message", err)
	}
	return message, nil
}

// GetMessages retrieves the messages of a group using a prefix scan.
// With a limit, the scan runs backwards so that the most recent ones are kept.
func (m MessageRepository) GetMessages(ctx context.Context, groupID domain.GroupID) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Persistence("get messages", err)
	}
	limit := 0
	if m.limitMessages != nil && *m.limitMessages > 0 {
		limit = *m.limitMessages
	}

	var diskMessages []DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		diskMessages, err = scanJSON[DiskMessage](txn, messagePrefix(groupID), limit > 0, limit)
		return err
	})
	if err != nil {
		return nil, errors.Persistence("get messages", err)
	}
	if limit > 0 {
		if len(diskMessages) == limit {
			m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", limit), "group_id", groupID)
		}
		slices.Reverse(diskMessages)
	}
	return lo.Map(diskMessages, func(d DiskMessage, _ int) domain.Message {
		return toMessage(d)
	}), nil
}

func (m MessageRepository) GetMessagesByIDs(ctx context.Context, groupID domain.GroupID, ids []uint64) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Persistence("get messages", err)
	}
	sorted := lo.Uniq(ids)
	slices.Sort(sorted)

	messages := make([]domain.Message, 0, len(sorted))
	err := m.db.View(func(txn *badger.Txn) error {
		for _, id := range sorted {
			var d DiskMessage
			err := getJSON(txn, messageKey(groupID, id), &d)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			messages = append(messages, toMessage(d))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Persistence("get messages", err)
	}
	return messages, nil
}

func (m MessageRepository) EachMessage(ctx context.Context, fn func(domain.Message) error) error {
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(messagesPrefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var d DiskMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			}); err != nil {
				return err
			}
			if err := fn(toMessage(d)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Persistence("walk messages", err)
	}
	return nil
}

const messagesPrefix = "msg:"

func messagePrefix(groupID domain.GroupID) []byte {
	return []byte(fmt.Sprintf("%s%s:", messagesPrefix, groupKey(groupID)))
}

func messageKey(groupID domain.GroupID, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", messagesPrefix, groupKey(groupID), id))
}

func fromMessage(message domain.Message) DiskMessage {
	return DiskMessage{
		ID:         message.ID,
		GroupID:    string(message.GroupID),
		SenderID:   string(message.SenderID),
		SenderName: message.SenderName,
		Content:    message.Content,
		At:         message.CreatedAt,
		IsAI:       message.IsAI,
	}
}

func toMessage(d DiskMessage) domain.Message {
	return domain.Message{
		ID:         d.ID,
		GroupID:    domain.GroupID(d.GroupID),
		SenderID:   domain.UserID(d.SenderID),
		SenderName: d.SenderName,
		Content:    d.Content,
		CreatedAt:  d.At.UTC(),
		IsAI:       d.IsAI,
	}
}
