package domain

import "time"

const DefaultAvatar = "👤"

type User struct {
	ID       UserID
	Name     string
	Avatar   string
	Online   bool
	JoinedAt time.Time
}

// Member is a user as seen from a group: online state comes from live connections.
type Member struct {
	User
	IsOnline bool
}
