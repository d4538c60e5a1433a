package repositories

import (
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, limitMessages *int) *BadgerStore {
	t.Helper()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	store, err := NewBadgerStore(db, slog.Default(), limitMessages)
	req.NoError(err)
	t.Cleanup(func() {
		_ = store.Close()
		_ = db.Close()
	})
	return store
}

func Test_Maintain_On_Small_Store_Is_A_Noop(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t, nil)
	req.NoError(store.Maintain(t.Context()))
}

func Test_Group_Keys_Do_Not_Collide_On_Separator(t *testing.T) {
	req := require.New(t)
	req.NotEqual(groupKey("a:b"), groupKey("a")+":"+groupKey("b"))
	req.NotContains(groupKey("a:b"), ":")
}
