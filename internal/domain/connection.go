package domain

import "time"

type ConnID string

// Connection is one live transport session plus its identity claim.
// It exists only while the session is open and is owned exclusively by
// the registry.
type Connection struct {
	ID       ConnID
	Identity Identity
	Room     RoomID // empty while the connection is in no room
	JoinedAt time.Time
}

// UserView is the wire shape of a connection in users-update and
// room-users-update payloads.
type UserView struct {
	ID       UserID    `json:"id"`
	Username string    `json:"username"`
	IsAdmin  bool      `json:"isAdmin"`
	ConnID   ConnID    `json:"connectionId"`
	RoomID   RoomID    `json:"roomId,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// View builds the wire shape of c.
func (c Connection) View() UserView {
	return UserView{
		ID:       c.Identity.UserID,
		Username: c.Identity.Username,
		IsAdmin:  c.Identity.IsAdmin,
		ConnID:   c.ID,
		RoomID:   c.Room,
		JoinedAt: c.JoinedAt,
	}
}
