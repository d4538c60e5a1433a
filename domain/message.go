// Package domain contains core concepts of the group cart system.
// This file defines chat Messages.
// Messages are immutable once the store has assigned their ID and timestamp.
package domain

import (
	"time"
)

// Message represents an immutable chat event scoped to a group.
type Message struct {
	ID         uint64 // monotonic, assigned by the store
	GroupID    GroupID
	SenderID   UserID
	SenderName string // denormalized at send time
	Content    string
	CreatedAt  time.Time
	IsAI       bool
}
