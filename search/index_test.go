package search

import (
	"context"
	"errors"
	"group-cart/domain"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	index, err := Open("", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func Test_Search_Is_Case_Insensitive(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := t.Context()

	req.NoError(index.IndexMessage(ctx, domain.Message{ID: 1, GroupID: "g1", SenderName: "Alice", Content: "Deploy the PostgreSQL cluster"}))
	req.NoError(index.IndexMessage(ctx, domain.Message{ID: 2, GroupID: "g1", SenderName: "Bob", Content: "lunch?"}))

	for _, terms := range []string{"postgresql", "POSTGRESQL", "PostgreSQL cluster"} {
		ids, total, err := index.Search(ctx, "g1", NewSearchQuery(terms))
		req.NoError(err, "Query: %s", terms)
		req.Equal(uint64(1), total, "Query: %s", terms)
		req.Equal([]uint64{1}, ids, "Query: %s", terms)
	}
}

func Test_Search_Is_Scoped_By_Group(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := t.Context()

	// Given the same secret in two groups
	req.NoError(index.IndexMessage(ctx, domain.Message{ID: 1, GroupID: "g1", SenderName: "Alice", Content: "Secret plan"}))
	req.NoError(index.IndexMessage(ctx, domain.Message{ID: 2, GroupID: "g2", SenderName: "Mallory", Content: "Secret plan"}))

	// When searching from g1
	ids, total, err := index.Search(ctx, "g1", NewSearchQuery("secret"))

	// Then only g1 sees its message
	req.NoError(err)
	req.Equal(uint64(1), total)
	req.Equal([]uint64{1}, ids)
}

func Test_Search_By_Sender_Name(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := t.Context()

	req.NoError(index.IndexMessage(ctx, domain.Message{ID: 7, GroupID: "g1", SenderName: "Alice", Content: "hello"}))

	ids, _, err := index.Search(ctx, "g1", NewSearchQuery("alice"))
	req.NoError(err)
	req.Equal([]uint64{7}, ids)
}

func Test_Search_Limit_And_Empty_Query(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := t.Context()

	for id := uint64(1); id <= 5; id++ {
		req.NoError(index.IndexMessage(ctx, domain.Message{ID: id, GroupID: "g1", SenderName: "Alice", Content: "database migration"}))
	}

	ids, total, err := index.Search(ctx, "g1", NewSearchQuery("database --limit 2"))
	req.NoError(err)
	req.Equal(uint64(5), total)
	req.Len(ids, 2)

	ids, total, err = index.Search(ctx, "g1", NewSearchQuery("--limit 2"))
	req.NoError(err)
	req.Zero(total)
	req.Empty(ids)
}

type history []domain.Message

func (h history) EachMessage(_ context.Context, fn func(domain.Message) error) error {
	for _, message := range h {
		if err := fn(message); err != nil {
			return err
		}
	}
	return nil
}

func Test_Rebuild_Indexes_Stored_History_When_Empty(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := t.Context()

	// Given a stored history larger than one batch
	var stored history
	for i := range 1200 {
		content := "chatter"
		if i == 1042 {
			content = "bring the lanterns"
		}
		stored = append(stored, domain.Message{ID: uint64(i + 1), GroupID: "g1", SenderName: "Alice", Content: content})
	}

	// When the fresh index is rebuilt
	indexed, err := index.Rebuild(ctx, stored)

	// Then every message is searchable again
	req.NoError(err)
	req.Equal(1200, indexed)
	ids, total, err := index.Search(ctx, "g1", NewSearchQuery("lanterns"))
	req.NoError(err)
	req.Equal(uint64(1), total)
	req.Equal([]uint64{1043}, ids)
	_, total, err = index.Search(ctx, "g1", NewSearchQuery("chatter"))
	req.NoError(err)
	req.Equal(uint64(1199), total)
}

func Test_Rebuild_Skips_A_Populated_Index(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := t.Context()
	req.NoError(index.IndexMessage(ctx, domain.Message{ID: 1, GroupID: "g1", SenderName: "Alice", Content: "hello"}))

	indexed, err := index.Rebuild(ctx, history{{ID: 2, GroupID: "g1", SenderName: "Bob", Content: "goodbye"}})

	req.NoError(err)
	req.Zero(indexed)
	_, total, err := index.Search(ctx, "g1", NewSearchQuery("goodbye"))
	req.NoError(err)
	req.Zero(total)
}

func Test_Rebuild_Reports_Source_Failure(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	_, err := index.Rebuild(t.Context(), failingHistory{})

	req.ErrorIs(err, errBrokenStore)
}

var errBrokenStore = errors.New("store is gone")

type failingHistory struct{}

func (failingHistory) EachMessage(context.Context, func(domain.Message) error) error {
	return errBrokenStore
}
