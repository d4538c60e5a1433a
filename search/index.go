// Package search keeps a full-text index of chat messages, scoped by group.
package search

import (
	"context"
	"fmt"
	"group-cart/domain"
	"log/slog"
	"strconv"

	"github.com/blugelabs/bluge"
)

const (
	fieldGroup     = "group"
	fieldContent   = "content"
	fieldSender    = "sender"
	fieldMessageID = "message_id"
)

// Index is a bluge-backed message index. The store stays the source of truth:
// the index only returns message IDs.
type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

// Open opens the index at path, or an in-memory one when path is empty.
func Open(path string, log *slog.Logger) (*Index, error) {
	cfg := bluge.InMemoryOnlyConfig()
	if path != "" {
		cfg = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return &Index{writer: writer, log: log}, nil
}

const reindexBatchSize = 500

// MessageSource walks the stored history.
type MessageSource interface {
	EachMessage(ctx context.Context, fn func(domain.Message) error) error
}

// IndexMessage makes a stored message searchable within its group.
func (i *Index) IndexMessage(_ context.Context, message domain.Message) error {
	doc := newDocument(message)
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %d: %w", message.ID, err)
	}
	return nil
}

// Rebuild indexes the whole stored history when the index is empty, which is always
// the case for an in-memory index after a restart. It returns the number of messages indexed.
func (i *Index) Rebuild(ctx context.Context, source MessageSource) (int, error) {
	count, err := i.count()
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	indexed := 0
	batch := bluge.NewBatch()
	flush := func() error {
		if err := i.writer.Batch(batch); err != nil {
			return fmt.Errorf("index batch: %w", err)
		}
		batch.Reset()
		return nil
	}
	err = source.EachMessage(ctx, func(message domain.Message) error {
		doc := newDocument(message)
		batch.Update(doc.ID(), doc)
		indexed++
		if indexed%reindexBatchSize == 0 {
			return flush()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}
	if indexed%reindexBatchSize != 0 {
		if err = flush(); err != nil {
			return 0, err
		}
	}
	return indexed, nil
}

func (i *Index) count() (uint64, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return 0, fmt.Errorf("open index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()
	count, err := reader.Count()
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

func newDocument(message domain.Message) *bluge.Document {
	id := strconv.FormatUint(message.ID, 10)
	return bluge.NewDocument(id).
		AddField(bluge.NewKeywordField(fieldGroup, string(message.GroupID))).
		AddField(bluge.NewTextField(fieldContent, message.Content)).
		AddField(bluge.NewTextField(fieldSender, message.SenderName)).
		AddField(bluge.NewKeywordField(fieldMessageID, id).StoreValue())
}

// Search returns the IDs of the best matching messages of the group and the total
// number of hits. Every term must match, case is ignored.
func (i *Index) Search(ctx context.Context, groupID domain.GroupID, query Query) ([]uint64, uint64, error) {
	if query.Terms == "" {
		return []uint64{}, 0, nil
	}
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, 0, fmt.Errorf("open index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Debug("Unable to close index reader", "error", err)
		}
	}()

	text := bluge.NewBooleanQuery().
		AddShould(bluge.NewMatchQuery(query.Terms).SetField(fieldContent).SetOperator(bluge.MatchQueryOperatorAnd)).
		AddShould(bluge.NewMatchQuery(query.Terms).SetField(fieldSender).SetOperator(bluge.MatchQueryOperatorAnd))
	scoped := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(groupID)).SetField(fieldGroup)).
		AddMust(text)

	limit := query.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	request := bluge.NewTopNSearch(limit, scoped).SetFrom(query.Offset).WithStandardAggregations()
	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}

	ids := make([]uint64, 0, limit)
	match, err := matches.Next()
	for err == nil && match != nil {
		var visitErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field != fieldMessageID {
				return true
			}
			id, parseErr := strconv.ParseUint(string(value), 10, 64)
			if parseErr != nil {
				visitErr = parseErr
				return false
			}
			ids = append(ids, id)
			return false
		})
		if err == nil {
			err = visitErr
		}
		if err == nil {
			match, err = matches.Next()
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read search results: %w", err)
	}
	return ids, matches.Aggregations().Count(), nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}
