package domain

// GroupID is the routing key shared by connections, messages and cart items.
type GroupID string

type UserID string

// ConnectionID identifies one live transport channel.
type ConnectionID string
