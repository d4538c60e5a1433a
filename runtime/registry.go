package runtime

import (
	"group-cart/contract"
	"group-cart/domain"
	"sync"
)

type Set map[domain.ConnectionID]struct{}

// group is the membership set of one group. It has its own lock so that
// unrelated groups never serialize each other.
type group struct {
	id      domain.GroupID
	mu      sync.RWMutex
	members Set
	refs    int // bound sessions, guarded by Registry.mu
}

// session is the registry-side state of one live connection.
type session struct {
	mu     sync.Mutex
	id     domain.ConnectionID
	conn   contract.Connection
	group  *group
	userID domain.UserID
	closed bool
}

// Registry is the authoritative bookkeeping of who is connected and to which group.
// Lock order is session.mu, then Registry.mu, then group.mu (lowest group ID first).
// Registry.mu is never held while a group lock is taken for a membership change.
type Registry struct {
	mu       sync.Mutex
	groups   map[domain.GroupID]*group
	sessMu   sync.RWMutex
	sessions map[domain.ConnectionID]*session
	usersMu  sync.RWMutex
	online   map[domain.UserID]int
}

func NewRegistry() *Registry {
	return &Registry{
		groups:   make(map[domain.GroupID]*group),
		sessions: make(map[domain.ConnectionID]*session),
		online:   make(map[domain.UserID]int),
	}
}

// Register creates an entry for a freshly opened channel, with no group or user yet.
func (r *Registry) Register(connID domain.ConnectionID, conn contract.Connection) {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	r.sessions[connID] = &session{id: connID, conn: conn}
}

// Bind attaches the connection to a group and a user.
// Unknown connections are ignored. Binding to the current group only refreshes the user,
// binding to another group moves the connection while both sets are locked.
func (r *Registry) Bind(connID domain.ConnectionID, groupID domain.GroupID, userID domain.UserID) {
	s := r.lookup(connID)
	if s == nil || groupID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.group == nil || s.group.id != groupID {
		next := r.acquire(groupID)
		prev := s.group
		lockPair(prev, next)
		if prev != nil {
			delete(prev.members, connID)
		}
		next.members[connID] = struct{}{}
		unlockPair(prev, next)
		s.group = next
		if prev != nil {
			r.release(prev)
		}
	}

	if s.userID != userID {
		r.trackUser(s.userID, -1)
		r.trackUser(userID, 1)
		s.userID = userID
	}
}

// Unregister forgets the connection and returns the identity it had.
// It is safe for unbound or unknown connections.
func (r *Registry) Unregister(connID domain.ConnectionID) domain.Session {
	r.sessMu.Lock()
	s, ok := r.sessions[connID]
	delete(r.sessions, connID)
	r.sessMu.Unlock()
	if !ok {
		return domain.Session{ConnectionID: connID}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	out := domain.Session{ConnectionID: connID, UserID: s.userID}
	if g := s.group; g != nil {
		out.GroupID = g.id
		g.mu.Lock()
		delete(g.members, connID)
		g.mu.Unlock()
		r.release(g)
		s.group = nil
	}
	r.trackUser(s.userID, -1)
	return out
}

// ConnectionsInGroup returns a snapshot of the group's connections.
// Unknown groups yield an empty slice.
func (r *Registry) ConnectionsInGroup(groupID domain.GroupID) []domain.ConnectionID {
	r.mu.Lock()
	g, ok := r.groups[groupID]
	r.mu.Unlock()
	if !ok {
		return []domain.ConnectionID{}
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.ConnectionID, 0, len(g.members))
	for connID := range g.members {
		out = append(out, connID)
	}
	return out
}

// IsOnline is true while at least one live connection is bound to the user.
func (r *Registry) IsOnline(userID domain.UserID) bool {
	r.usersMu.RLock()
	defer r.usersMu.RUnlock()
	return r.online[userID] > 0
}

func (r *Registry) Session(connID domain.ConnectionID) (domain.Session, bool) {
	s := r.lookup(connID)
	if s == nil {
		return domain.Session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := domain.Session{ConnectionID: connID, UserID: s.userID}
	if s.group != nil {
		out.GroupID = s.group.id
	}
	return out, true
}

func (r *Registry) Connection(connID domain.ConnectionID) (contract.Connection, bool) {
	s := r.lookup(connID)
	if s == nil {
		return nil, false
	}
	return s.conn, true
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.sessMu.RLock()
	defer r.sessMu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) lookup(connID domain.ConnectionID) *session {
	r.sessMu.RLock()
	defer r.sessMu.RUnlock()
	return r.sessions[connID]
}

// acquire returns the group set, creating it on the fly, and takes a reference on it.
func (r *Registry) acquire(groupID domain.GroupID) *group {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		g = &group{id: groupID, members: make(Set)}
		r.groups[groupID] = g
	}
	g.refs++
	return g
}

// release drops a reference; the last one removes the group entry
// so that no empty sets accumulate over time.
func (r *Registry) release(g *group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g.refs--
	if g.refs <= 0 && r.groups[g.id] == g {
		delete(r.groups, g.id)
	}
}

func (r *Registry) trackUser(userID domain.UserID, delta int) {
	if userID == "" {
		return
	}
	r.usersMu.Lock()
	defer r.usersMu.Unlock()
	r.online[userID] += delta
	if r.online[userID] <= 0 {
		delete(r.online, userID)
	}
}

func lockPair(a, b *group) {
	switch {
	case a == nil:
		b.mu.Lock()
	case a.id < b.id:
		a.mu.Lock()
		b.mu.Lock()
	default:
		b.mu.Lock()
		a.mu.Lock()
	}
}

func unlockPair(a, b *group) {
	if a != nil {
		a.mu.Unlock()
	}
	b.mu.Unlock()
}
