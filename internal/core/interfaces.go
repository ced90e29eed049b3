package core

import "github.com/averin/parlor/internal/domain"

// Sink is the outbound half of a client session.
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: a full send buffer drops the frame.
type Sink interface {
	TrySend(event string, v any) error
	Close()
}

// Session pairs a connection snapshot with its transport endpoint.
// This is what broadcasts fan out to.
type Session struct {
	Conn domain.Connection
	Sink Sink
}

// Outbound event names.
const (
	EvUsersUpdate     = "users-update"
	EvRoomsUpdate     = "rooms-update"
	EvRoomUsersUpdate = "room-users-update"
	EvUserJoined      = "user-joined"
	EvUserLeft        = "user-left"
	EvRoomClosed      = "room-closed"
	EvNewMessage      = "new-message"
	EvError           = "error"
)
