package main

import (
	"group-cart/domain/event"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type sent struct {
	name    string
	payload any
}

type recorder struct{ events []sent }

func (r *recorder) Send(name string, payload any) error {
	r.events = append(r.events, sent{name: name, payload: payload})
	return nil
}

func TestPrompt_Maps_Commands_To_Events(t *testing.T) {
	req := require.New(t)
	rec := &recorder{}
	s := &state{group: "family", user: "u1", name: "Ana"}
	input := strings.Join([]string{
		"hello all",
		"",
		"/add p1",
		"/search milk",
		"/join friends",
		"/cart",
		"/quit",
		"never sent",
	}, "\n")

	err := prompt(t.Context(), rec, s, strings.NewReader(input))

	req.NoError(err)
	req.Equal([]sent{
		{event.SendMessage, event.SendMessagePayload{Sender: "Ana", Message: "hello all"}},
		{event.AddToCart, event.AddToCartPayload{GroupID: "family", ProductID: "p1", AddedBy: "u1"}},
		{event.SearchMessages, event.SearchMessagesPayload{Query: "milk"}},
		{event.JoinGroup, event.JoinGroupPayload{GroupID: "friends", UserID: "u1", Name: "Ana"}},
		{event.GetCart, event.GetCartPayload{GroupID: "friends"}},
	}, rec.events)
}
