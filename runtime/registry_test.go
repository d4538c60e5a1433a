package runtime

import (
	"fmt"
	"group-cart/domain"
	"group-cart/sink"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func register(r *Registry, id domain.ConnectionID) *sink.Outbox {
	outbox := sink.NewOutbox(id, 16)
	r.Register(id, outbox)
	return outbox
}

func TestRegistry_Bind_Adds_Connection_To_Group(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given a registered but unbound connection
	register(registry, "c1")
	session, ok := registry.Session("c1")
	req.True(ok)
	req.False(session.Bound())

	// When it binds to g1
	registry.Bind("c1", "g1", "u1")

	// Then both directions of the mapping agree
	req.Equal([]domain.ConnectionID{"c1"}, registry.ConnectionsInGroup("g1"))
	session, _ = registry.Session("c1")
	req.Equal(domain.Session{ConnectionID: "c1", GroupID: "g1", UserID: "u1"}, session)
	req.True(registry.IsOnline("u1"))
}

func TestRegistry_Bind_Unknown_Connection_Is_A_Noop(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Bind("ghost", "g1", "u1")

	req.Empty(registry.ConnectionsInGroup("g1"))
	req.False(registry.IsOnline("u1"))
}

func TestRegistry_Rebind_Moves_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	register(registry, "c1")
	register(registry, "c2")
	registry.Bind("c1", "A", "u1")
	registry.Bind("c2", "A", "u2")

	// Rebinding to the same group changes nothing
	registry.Bind("c1", "A", "u1")
	req.ElementsMatch([]domain.ConnectionID{"c1", "c2"}, registry.ConnectionsInGroup("A"))

	// When c1 moves to B
	registry.Bind("c1", "B", "u1")

	// Then it belongs to B only
	req.Equal([]domain.ConnectionID{"c2"}, registry.ConnectionsInGroup("A"))
	req.Equal([]domain.ConnectionID{"c1"}, registry.ConnectionsInGroup("B"))
	req.True(registry.IsOnline("u1"))
}

func TestRegistry_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	register(registry, "c1")
	register(registry, "c2")
	registry.Bind("c1", "g1", "u1")

	// When both connections go away
	left := registry.Unregister("c1")
	unbound := registry.Unregister("c2")
	unknown := registry.Unregister("c3")

	// Then the identities are returned and nothing dangles
	req.Equal(domain.Session{ConnectionID: "c1", GroupID: "g1", UserID: "u1"}, left)
	req.Equal(domain.Session{ConnectionID: "c2"}, unbound)
	req.Equal(domain.Session{ConnectionID: "c3"}, unknown)
	req.NotNil(registry.ConnectionsInGroup("g1"))
	req.Empty(registry.ConnectionsInGroup("g1"))
	req.False(registry.IsOnline("u1"))
	req.Zero(registry.Count())
	req.Empty(registry.groups)

	_, ok := registry.Connection("c1")
	req.False(ok)

	// A late bind on a closed connection is ignored
	registry.Bind("c1", "g1", "u1")
	req.Empty(registry.ConnectionsInGroup("g1"))
}

func TestRegistry_IsOnline_Counts_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	register(registry, "tab1")
	register(registry, "tab2")
	registry.Bind("tab1", "g1", "u1")
	registry.Bind("tab2", "g2", "u1")

	registry.Unregister("tab1")
	req.True(registry.IsOnline("u1"))

	registry.Unregister("tab2")
	req.False(registry.IsOnline("u1"))
}

func TestRegistry_Concurrent_Moves_Keep_Mapping_Consistent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	groups := []domain.GroupID{"A", "B", "C"}
	n := 60

	var wg sync.WaitGroup
	for i := range n {
		connID := domain.ConnectionID(fmt.Sprintf("c%d", i))
		register(registry, connID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				registry.Bind(connID, groups[(i+j)%len(groups)], domain.UserID(connID))
				_ = registry.ConnectionsInGroup(groups[j%len(groups)])
			}
		}()
	}
	wg.Wait()

	// Then every connection is in exactly the group its session points to
	seen := make(map[domain.ConnectionID]domain.GroupID)
	for _, g := range groups {
		for _, connID := range registry.ConnectionsInGroup(g) {
			_, dup := seen[connID]
			req.False(dup, "connection %s in two groups", connID)
			seen[connID] = g
		}
	}
	req.Len(seen, n)
	for connID, g := range seen {
		session, ok := registry.Session(connID)
		req.True(ok)
		req.Equal(g, session.GroupID)
	}
}
