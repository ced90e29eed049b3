package app

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/averin/parlor/internal/core"
	"github.com/averin/parlor/internal/domain"
	"github.com/averin/parlor/internal/metrics"
)

// Broadcaster computes the observable views after a state transition and
// fans them out. It only reads snapshots; it never mutates the registry
// or the directory.
type Broadcaster struct {
	reg *Registry
	dir *Directory
}

func NewBroadcaster(reg *Registry, dir *Directory) *Broadcaster {
	return &Broadcaster{reg: reg, dir: dir}
}

// JoinedPayload is the user-joined / user-left wire shape.
type JoinedPayload struct {
	User   domain.UserView `json:"user"`
	RoomID domain.RoomID   `json:"roomId"`
}

// ClosedPayload is the room-closed wire shape.
type ClosedPayload struct {
	RoomID  domain.RoomID `json:"roomId"`
	Message string        `json:"message"`
}

// MessagePayload is the new-message wire shape.
type MessagePayload struct {
	User      domain.UserView `json:"user"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorPayload is the error notice sent to the acting connection only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessage stamps a relayed chat message.
func NewMessage(user domain.UserView, text string) MessagePayload {
	return MessagePayload{User: user, Message: text, Timestamp: time.Now()}
}

// OnlineList sends the full users-update snapshot to every connection.
func (b *Broadcaster) OnlineList() {
	b.toAll(core.EvUsersUpdate, b.reg.ListAll())
}

// RoomSummaries sends the rooms-update snapshot to every connection.
func (b *Broadcaster) RoomSummaries() {
	b.toAll(core.EvRoomsUpdate, b.dir.AllSummaries())
}

// RoomRoster sends the room's full member list to its current members.
// No-op if the room no longer exists.
func (b *Broadcaster) RoomRoster(roomID domain.RoomID) {
	members := b.dir.Members(roomID)
	if members == nil {
		return
	}
	roster := b.dir.resolveViews(members)
	b.toSessions(b.reg.SessionsByID(members), core.EvRoomUsersUpdate, roster)
}

// ToRoom sends a point event to every current member of roomID.
func (b *Broadcaster) ToRoom(roomID domain.RoomID, event string, v any) {
	b.toSessions(b.reg.SessionsByID(b.dir.Members(roomID)), event, v)
}

// ToRoomExcept sends a point event to every member of roomID but the
// acting connection.
func (b *Broadcaster) ToRoomExcept(roomID domain.RoomID, except domain.ConnID, event string, v any) {
	for _, s := range b.reg.SessionsByID(b.dir.Members(roomID)) {
		if s.Conn.ID == except {
			continue
		}
		b.send(s, event, v)
	}
}

// ToConn sends a point event to one connection. No-op if it is gone.
func (b *Broadcaster) ToConn(id domain.ConnID, event string, v any) {
	sink, ok := b.reg.SinkOf(id)
	if !ok {
		return
	}
	if err := sink.TrySend(event, v); err != nil {
		log.Debug().Str("module", "app.presence").Str("conn", string(id)).Str("event", event).Err(err).Msg("dropped frame")
	}
	metrics.BroadcastsTotal.WithLabelValues(event).Inc()
}

func (b *Broadcaster) toAll(event string, v any) {
	b.toSessions(b.reg.Sessions(), event, v)
}

func (b *Broadcaster) toSessions(sessions []core.Session, event string, v any) {
	for _, s := range sessions {
		b.send(s, event, v)
	}
}

func (b *Broadcaster) send(s core.Session, event string, v any) {
	if err := s.Sink.TrySend(event, v); err != nil {
		// Slow consumer: the frame is dropped, the connection stays.
		log.Debug().Str("module", "app.presence").Str("conn", string(s.Conn.ID)).Str("event", event).Err(err).Msg("dropped frame")
	}
	metrics.BroadcastsTotal.WithLabelValues(event).Inc()
}
