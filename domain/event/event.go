// Package event defines the wire protocol: event names, the envelope and per-event payload schemas.
package event

import (
	"encoding/json"
)

// Inbound event names.
const (
	Connect        = "connect"
	JoinGroup      = "join_group"
	SendMessage    = "send_message"
	GetMessages    = "get_messages"
	GetMembers     = "get_members"
	GenerateInvite = "generate_invite"
	AddToCart      = "add_to_cart"
	GetCart        = "get_cart"
	SearchMessages = "search_messages"
)

// Outbound event names.
const (
	MessageReceived = "message_received"
	MessagesLoaded  = "messages_loaded"
	MembersUpdated  = "members_updated"
	InviteLink      = "invite_link"
	CartUpdated     = "cart_updated"
	SearchResults   = "search_results"
	Error           = "error"
)

// Envelope is one framed event. Data stays raw until the router knows which schema applies.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Encode produces the frame bytes for an outbound event.
func Encode(name string, payload any) ([]byte, error) {
	return json.Marshal(outbound{Event: name, Data: payload})
}

// Decode parses a frame into its envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(frame, &env)
	return env, err
}
