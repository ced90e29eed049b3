package orch

import (
	"github.com/averin/parlor/internal/core"
	"github.com/averin/parlor/internal/domain"
)

// kind enumerates the closed set of event variants the coordinator
// dispatches on.
type kind uint8

const (
	kindConnect kind = iota
	kindJoin
	kindLeave
	kindMessage
	kindGetRooms
	kindCloseRoom
	kindDisconnect
)

func (k kind) String() string {
	switch k {
	case kindConnect:
		return "handshake"
	case kindJoin:
		return "join-room"
	case kindLeave:
		return "leave-room"
	case kindMessage:
		return "send-message"
	case kindGetRooms:
		return "get-rooms"
	case kindCloseRoom:
		return "close-room"
	case kindDisconnect:
		return "disconnect"
	}
	return "unknown"
}

type event struct {
	kind kind
	conn domain.ConnID
	room domain.RoomID
	text string

	// handshake only
	identity domain.Identity
	sink     core.Sink
	reply    chan error
}
