package domain

// Session is the identity bound to a live connection.
type Session struct {
	ConnectionID ConnectionID
	GroupID      GroupID
	UserID       UserID
}

// Bound reports whether the connection has joined a group.
func (s Session) Bound() bool {
	return s.GroupID != ""
}

// Hello carries what a client announces when opening its channel.
type Hello struct {
	GroupID GroupID
	UserID  UserID
	Name    string
	Avatar  string
}
