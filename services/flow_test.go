package services

import (
	"encoding/json"
	"group-cart/domain"
	"group-cart/domain/event"
	"group-cart/errors"
	"group-cart/repositories"
	"group-cart/runtime"
	"group-cart/search"
	"group-cart/sink"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testInviteBase = "http://localhost:5173"

// harness wires the real event core on an in-memory badger store.
type harness struct {
	t        *testing.T
	registry *runtime.Registry
	router   *runtime.Router
	service  *Service
	store    *repositories.BadgerStore
}

type client struct {
	id     domain.ConnectionID
	outbox *sink.Outbox
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	req := require.New(t)
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	store, err := repositories.NewBadgerStore(db, log, nil)
	req.NoError(err)
	index, err := search.Open("", log)
	req.NoError(err)
	t.Cleanup(func() {
		_ = index.Close()
		_ = store.Close()
		_ = db.Close()
	})

	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(log, registry, nil)
	router := runtime.NewRouter(log, registry, broadcaster, nil, 0, 0)
	service := NewService(log, broadcaster, "global",
		NewChatService(log, store, broadcaster, index, nil, 4096),
		NewMemberService(log, registry, broadcaster, store, store),
		NewCartService(log, registry, broadcaster, store, store, store),
		NewInviteService(testInviteBase, broadcaster),
	)
	service.Register(router)

	req.NoError(store.UpsertProduct(t.Context(), domain.Product{ID: "p1", Name: "Banana", Price: 1.5}))
	return &harness{t: t, registry: registry, router: router, service: service, store: store}
}

func (h *harness) connect(hello domain.Hello) client {
	c := client{id: domain.ConnectionID(uuid.NewString())}
	c.outbox = sink.NewOutbox(c.id, 1024)
	h.registry.Register(c.id, c.outbox)
	h.service.OnConnect(h.t.Context(), c.id, hello)
	return c
}

func (h *harness) disconnect(c client) {
	c.outbox.Close()
	session := h.registry.Unregister(c.id)
	h.service.OnDisconnect(h.t.Context(), session)
}

func (h *harness) send(c client, name string, data any) {
	frame, err := event.Encode(name, data)
	require.NoError(h.t, err)
	h.router.Dispatch(h.t.Context(), c.id, frame)
}

// drain returns every frame queued for the client so far.
func (c client) drain(t *testing.T) []event.Envelope {
	var out []event.Envelope
	for {
		select {
		case frame := <-c.outbox.Frames():
			env, err := event.Decode(frame)
			require.NoError(t, err)
			out = append(out, env)
		default:
			return out
		}
	}
}

func names(envs []event.Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, env := range envs {
		out = append(out, env.Event)
	}
	return out
}

func decode[T any](t *testing.T, env event.Envelope) T {
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func Test_Connect_Pushes_Members_And_Replays_History(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	// Given Alice connected to g1
	alice := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	req.Equal([]string{event.MembersUpdated, event.MessagesLoaded}, names(alice.drain(t)))

	// When Bob connects to the same group
	bob := h.connect(domain.Hello{GroupID: "g1", UserID: "u2", Name: "Bob", Avatar: "🐻"})

	// Then Alice sees the new member list, Bob also receives the history
	aliceFrames := alice.drain(t)
	req.Equal([]string{event.MembersUpdated}, names(aliceFrames))
	members := decode[[]event.MemberPayload](t, aliceFrames[0])
	req.Len(members, 2)
	req.Equal("Alice", members[0].Name)
	req.Equal(domain.DefaultAvatar, members[0].Avatar)
	req.True(members[0].IsOnline)
	req.Equal("🐻", members[1].Avatar)
	req.Equal([]string{event.MembersUpdated, event.MessagesLoaded}, names(bob.drain(t)))
}

func Test_Send_Message_Is_Broadcast_And_Replayed(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	bob := h.connect(domain.Hello{GroupID: "g1", UserID: "u2", Name: "Bob"})
	outsider := h.connect(domain.Hello{GroupID: "g2", UserID: "u3", Name: "Eve"})
	alice.drain(t)
	bob.drain(t)
	outsider.drain(t)

	// When Alice says hi
	h.send(alice, event.SendMessage, event.SendMessagePayload{Sender: "Alice", Message: "hi"})

	// Then every member of g1 receives it with an id and a time
	for _, c := range []client{alice, bob} {
		frames := c.drain(t)
		req.Equal([]string{event.MessageReceived}, names(frames))
		message := decode[event.MessagePayload](t, frames[0])
		req.Equal("Alice", message.Sender)
		req.Equal("hi", message.Message)
		req.NotEmpty(message.ID)
		req.NotEmpty(message.Time)
		req.False(message.IsAI)
	}
	req.Empty(outsider.drain(t))

	// And a newcomer finds it in the history
	carol := h.connect(domain.Hello{GroupID: "g1", UserID: "u4", Name: "Carol"})
	frames := carol.drain(t)
	req.Equal(event.MessagesLoaded, frames[len(frames)-1].Event)
	history := decode[[]event.MessagePayload](t, frames[len(frames)-1])
	req.Len(history, 1)
	req.Equal("hi", history[0].Message)

	// And get_messages replays it as well
	h.send(bob, event.GetMessages, nil)
	frames = bob.drain(t)
	req.Equal(event.MessagesLoaded, frames[len(frames)-1].Event)
	req.Len(decode[[]event.MessagePayload](t, frames[len(frames)-1]), 1)
}

func Test_Missing_Sender_Is_Reported_To_Sender_Only(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	bob := h.connect(domain.Hello{GroupID: "g1", UserID: "u2", Name: "Bob"})
	alice.drain(t)
	bob.drain(t)

	h.send(alice, event.SendMessage, map[string]any{"message": "hi"})

	frames := alice.drain(t)
	req.Equal([]string{event.Error}, names(frames))
	failure := decode[event.ErrorPayload](t, frames[0])
	req.Equal(errors.CodeValidation, failure.Code)
	req.Equal(event.SendMessage, failure.Event)
	req.Contains(failure.Message, "sender")
	req.Empty(bob.drain(t))

	messages, err := h.store.GetMessages(t.Context(), "g1")
	req.NoError(err)
	req.Empty(messages)
}

func Test_Add_To_Cart_Broadcasts_Full_Cart(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	bob := h.connect(domain.Hello{GroupID: "g1", UserID: "u2", Name: "Bob"})
	alice.drain(t)
	bob.drain(t)

	h.send(alice, event.AddToCart, event.AddToCartPayload{GroupID: "g1", ProductID: "p1", AddedBy: "u1"})

	for _, c := range []client{alice, bob} {
		frames := c.drain(t)
		req.Equal([]string{event.CartUpdated}, names(frames))
		cart := decode[[]event.CartItemPayload](t, frames[0])
		req.Len(cart, 1)
		req.Equal("p1", cart[0].ProductID)
		req.Equal("Banana", cart[0].Name)
		req.Equal("u1", cart[0].AddedBy)
	}

	// A second identical add is kept as a separate row
	h.send(bob, event.AddToCart, event.AddToCartPayload{GroupID: "g1", ProductID: "p1", AddedBy: "u1"})
	frames := alice.drain(t)
	req.Len(decode[[]event.CartItemPayload](t, frames[0]), 2)

	// get_cart answers the requester only
	bob.drain(t)
	h.send(bob, event.GetCart, event.GetCartPayload{GroupID: "g1"})
	req.Equal([]string{event.CartUpdated}, names(bob.drain(t)))
	req.Empty(alice.drain(t))
}

func Test_Add_To_Cart_Rejects_Unknown_References(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	alice.drain(t)

	for _, payload := range []event.AddToCartPayload{
		{GroupID: "g1", ProductID: "missing", AddedBy: "u1"},
		{GroupID: "g1", ProductID: "p1", AddedBy: "nobody"},
	} {
		h.send(alice, event.AddToCart, payload)
		frames := alice.drain(t)
		req.Equal([]string{event.Error}, names(frames))
		req.Equal(errors.CodeNotFound, decode[event.ErrorPayload](t, frames[0]).Code)
	}

	cart, err := h.store.GetCart(t.Context(), "g1")
	req.NoError(err)
	req.Empty(cart)
}

func Test_Add_To_Other_Group_Answers_Requester_Too(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	bob := h.connect(domain.Hello{GroupID: "g2", UserID: "u2", Name: "Bob"})
	alice.drain(t)
	bob.drain(t)

	h.send(alice, event.AddToCart, event.AddToCartPayload{GroupID: "g2", ProductID: "p1", AddedBy: "u1"})

	req.Equal([]string{event.CartUpdated}, names(bob.drain(t)))
	req.Equal([]string{event.CartUpdated}, names(alice.drain(t)))
}

func Test_Concurrent_Adds_Through_The_Router(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	n := 30
	clients := make([]client, n)
	for i := range n {
		clients[i] = h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.send(c, event.AddToCart, event.AddToCartPayload{GroupID: "g1", ProductID: "p1", AddedBy: "u1"})
		}()
	}
	wg.Wait()

	cart, err := h.store.GetCart(t.Context(), "g1")
	req.NoError(err)
	req.Len(cart, n)
}

func Test_Generate_Invite(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	bob := h.connect(domain.Hello{GroupID: "g1", UserID: "u2", Name: "Bob"})
	alice.drain(t)
	bob.drain(t)

	h.send(alice, event.GenerateInvite, nil)
	h.send(alice, event.GenerateInvite, nil)

	frames := alice.drain(t)
	req.Equal([]string{event.InviteLink, event.InviteLink}, names(frames))
	first, second := decode[string](t, frames[0]), decode[string](t, frames[1])
	req.True(strings.HasPrefix(first, testInviteBase+"/join/"))
	req.NotEqual(first, second)
	req.Empty(bob.drain(t))
}

func Test_Disconnect_Pushes_Offline_State(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	bob := h.connect(domain.Hello{GroupID: "g1", UserID: "u2", Name: "Bob"})
	bob.drain(t)

	h.disconnect(alice)

	frames := bob.drain(t)
	req.Equal([]string{event.MembersUpdated}, names(frames))
	members := decode[[]event.MemberPayload](t, frames[0])
	req.Len(members, 2)
	req.False(members[0].IsOnline)
	req.True(members[1].IsOnline)
	req.NotContains(h.registry.ConnectionsInGroup("g1"), alice.id)

	user, err := h.store.GetUser(t.Context(), "u1")
	req.NoError(err)
	req.False(user.Online)
}

func Test_Guest_Joins_Default_Group(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	guest := h.connect(domain.Hello{})

	session, ok := h.registry.Session(guest.id)
	req.True(ok)
	req.Equal(domain.GroupID("global"), session.GroupID)
	req.True(strings.HasPrefix(string(session.UserID), "guest-"))
	frames := guest.drain(t)
	members := decode[[]event.MemberPayload](t, frames[0])
	req.Equal("Guest", members[0].Name)
}

func Test_Join_Group_Moves_Connection(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	bob := h.connect(domain.Hello{GroupID: "g1", UserID: "u2", Name: "Bob"})
	alice.drain(t)
	bob.drain(t)

	h.send(bob, event.JoinGroup, event.JoinGroupPayload{GroupID: "g2", UserID: "u2"})

	req.Equal([]string{event.MembersUpdated}, names(alice.drain(t)))
	req.Equal([]string{event.MembersUpdated, event.MessagesLoaded, event.CartUpdated}, names(bob.drain(t)))
	req.NotContains(h.registry.ConnectionsInGroup("g1"), bob.id)
	req.Contains(h.registry.ConnectionsInGroup("g2"), bob.id)

	// Messages of g1 no longer reach Bob
	h.send(alice, event.SendMessage, event.SendMessagePayload{Sender: "Alice", Message: "still here?"})
	req.Empty(bob.drain(t))
}

func Test_Search_Messages_In_Group(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	h.send(alice, event.SendMessage, event.SendMessagePayload{Sender: "Alice", Message: "Who pays the invoice?"})
	h.send(alice, event.SendMessage, event.SendMessagePayload{Sender: "Alice", Message: "lunch"})
	alice.drain(t)

	h.send(alice, event.SearchMessages, event.SearchMessagesPayload{Query: "INVOICE"})

	frames := alice.drain(t)
	req.Equal([]string{event.SearchResults}, names(frames))
	results := decode[event.SearchResultsPayload](t, frames[0])
	req.Equal(uint64(1), results.Total)
	req.Len(results.Messages, 1)
	req.Equal("Who pays the invoice?", results.Messages[0].Message)
}

func Test_Unknown_Event(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	alice.drain(t)

	h.send(alice, "dance", nil)

	frames := alice.drain(t)
	req.Equal([]string{event.Error}, names(frames))
	req.Equal(errors.CodeUnknown, decode[event.ErrorPayload](t, frames[0]).Code)
}

func Test_Concurrent_Connects_Of_The_Same_User_All_Bind(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	n := 20

	// Given the same user opening n tabs at once
	clients := make([]client, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clients[i] = h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
		}()
	}
	wg.Wait()

	// Then every connection joined the group without an error event
	for _, c := range clients {
		session, ok := h.registry.Session(c.id)
		req.True(ok)
		req.True(session.Bound())
		req.NotContains(names(c.drain(t)), event.Error)
	}
	req.Len(h.registry.ConnectionsInGroup("g1"), n)

	// When one of them sends a message
	h.send(clients[0], event.SendMessage, event.SendMessagePayload{Sender: "Alice", Message: "hi"})

	// Then every tab receives it
	for _, c := range clients {
		req.Equal([]string{event.MessageReceived}, names(c.drain(t)))
	}
}

func Test_Reconnect_While_Leaving_Keeps_User_Online(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	current := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})

	for range 50 {
		// Given the old tab closing while a new one connects
		var wg sync.WaitGroup
		var next client
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.disconnect(current)
		}()
		go func() {
			defer wg.Done()
			next = h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
		}()
		wg.Wait()
		current = next

		// Then the stored flag follows the live connection
		req.True(h.registry.IsOnline("u1"))
		user, err := h.store.GetUser(t.Context(), "u1")
		req.NoError(err)
		req.True(user.Online)
	}
}

func Test_Whitespace_Message_And_Long_Sender_Are_Delivered(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.connect(domain.Hello{GroupID: "g1", UserID: "u1", Name: "Alice"})
	alice.drain(t)
	sender := strings.Repeat("Alice", 30)

	// When the content is only spaces and the sender name is long
	h.send(alice, event.SendMessage, event.SendMessagePayload{Sender: sender, Message: "   "})

	// Then the message is stored and broadcast unchanged
	frames := alice.drain(t)
	req.Equal([]string{event.MessageReceived}, names(frames))
	message := decode[event.MessagePayload](t, frames[0])
	req.Equal(sender, message.Sender)
	req.Equal("   ", message.Message)
	history, err := h.store.GetMessages(t.Context(), "g1")
	req.NoError(err)
	req.Len(history, 1)
}
