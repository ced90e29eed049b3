// Package orch hosts the room coordinator: a single worker that applies
// every state transition and issues the resulting broadcasts before it
// picks up the next event. That ordering is what makes the compound join
// (implicit leave + join) and the compound admin close atomic without a
// lock spanning both stores.
package orch

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/averin/parlor/internal/app"
	"github.com/averin/parlor/internal/core"
	"github.com/averin/parlor/internal/domain"
	"github.com/averin/parlor/internal/metrics"
)

const closedNotice = "room was closed by an administrator"

// ErrInternal reports a handler failure recovered at the event boundary.
var ErrInternal = errors.New("internal failure")

type Coordinator struct {
	Registry  *app.Registry
	Directory *app.Directory
	Presence  *app.Broadcaster

	events chan event
}

func New(reg *app.Registry, dir *app.Directory, presence *app.Broadcaster) *Coordinator {
	return &Coordinator{
		Registry:  reg,
		Directory: dir,
		Presence:  presence,
		events:    make(chan event, 256),
	}
}

// Run consumes events until ctx is cancelled. It is the only goroutine
// that mutates the registry and the directory.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.dispatch(ev)
		}
	}
}

// Connect registers a freshly handshaken session. It blocks until the
// worker has processed the registration, so a caller that sees nil may
// start relaying events for the connection.
func (c *Coordinator) Connect(id domain.ConnID, identity domain.Identity, sink core.Sink) error {
	reply := make(chan error, 1)
	c.events <- event{kind: kindConnect, conn: id, identity: identity, sink: sink, reply: reply}
	return <-reply
}

func (c *Coordinator) Join(id domain.ConnID, roomID domain.RoomID) {
	c.events <- event{kind: kindJoin, conn: id, room: roomID}
}

func (c *Coordinator) Leave(id domain.ConnID, roomID domain.RoomID) {
	c.events <- event{kind: kindLeave, conn: id, room: roomID}
}

func (c *Coordinator) Message(id domain.ConnID, roomID domain.RoomID, text string) {
	c.events <- event{kind: kindMessage, conn: id, room: roomID, text: text}
}

func (c *Coordinator) GetRooms(id domain.ConnID) {
	c.events <- event{kind: kindGetRooms, conn: id}
}

func (c *Coordinator) CloseRoom(id domain.ConnID, roomID domain.RoomID) {
	c.events <- event{kind: kindCloseRoom, conn: id, room: roomID}
}

func (c *Coordinator) Disconnect(id domain.ConnID) {
	c.events <- event{kind: kindDisconnect, conn: id}
}

// dispatch applies one event. A panic in a handler is contained at the
// event boundary: it is logged, the acting connection gets an error
// notice, and every other connection's state is untouched.
func (c *Coordinator) dispatch(ev event) {
	metrics.EventsTotal.WithLabelValues(ev.kind.String()).Inc()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "orch").Str("event", ev.kind.String()).Str("conn", string(ev.conn)).Any("panic", r).Msg("event handler panicked")
			if ev.reply != nil {
				ev.reply <- ErrInternal
			}
			c.Presence.ToConn(ev.conn, core.EvError, app.ErrorPayload{Message: "internal error"})
		}
	}()

	switch ev.kind {
	case kindConnect:
		ev.reply <- c.handleConnect(ev.conn, ev.identity, ev.sink)
	case kindJoin:
		c.handleJoin(ev.conn, ev.room)
	case kindLeave:
		c.handleLeave(ev.conn, ev.room)
	case kindMessage:
		c.handleMessage(ev.conn, ev.room, ev.text)
	case kindGetRooms:
		c.handleGetRooms(ev.conn)
	case kindCloseRoom:
		c.handleCloseRoom(ev.conn, ev.room)
	case kindDisconnect:
		c.handleDisconnect(ev.conn)
	}
}

func (c *Coordinator) handleConnect(id domain.ConnID, identity domain.Identity, sink core.Sink) error {
	if _, err := c.Registry.Register(id, identity, sink); err != nil {
		log.Warn().Str("module", "orch").Str("conn", string(id)).Err(err).Msg("handshake rejected")
		return err
	}
	metrics.ConnectionsLive.Set(float64(c.Registry.Count()))
	c.Presence.OnlineList()
	return nil
}

func (c *Coordinator) handleJoin(id domain.ConnID, roomID domain.RoomID) {
	prev, ok := c.Directory.JoinRoom(id, roomID)
	if !ok {
		return
	}
	conn, _ := c.Registry.Get(id)
	metrics.RoomsLive.Set(float64(c.Directory.RoomCount()))

	c.Presence.ToRoomExcept(roomID, id, core.EvUserJoined, app.JoinedPayload{User: conn.View(), RoomID: roomID})
	c.Presence.RoomRoster(roomID)
	if prev != "" {
		c.Presence.ToRoom(prev, core.EvUserLeft, app.JoinedPayload{User: conn.View(), RoomID: prev})
		c.Presence.RoomRoster(prev)
	}
	c.Presence.OnlineList()
	c.Presence.RoomSummaries()
}

func (c *Coordinator) handleLeave(id domain.ConnID, roomID domain.RoomID) {
	conn, ok := c.Registry.Get(id)
	if !ok {
		return
	}
	if !c.Directory.LeaveRoom(id, roomID) {
		// Unknown room or not a member: benign no-op.
		return
	}
	metrics.RoomsLive.Set(float64(c.Directory.RoomCount()))

	c.Presence.ToRoom(roomID, core.EvUserLeft, app.JoinedPayload{User: conn.View(), RoomID: roomID})
	c.Presence.RoomRoster(roomID)
	c.Presence.OnlineList()
	c.Presence.RoomSummaries()
}

// handleMessage relays text to the room iff the sender is currently in
// it; otherwise the message is dropped without error or broadcast.
func (c *Coordinator) handleMessage(id domain.ConnID, roomID domain.RoomID, text string) {
	conn, ok := c.Registry.Get(id)
	if !ok || conn.Room != roomID {
		log.Debug().Str("module", "orch").Str("conn", string(id)).Str("room", string(roomID)).Msg("sender not in room, message dropped")
		return
	}
	c.Presence.ToRoom(roomID, core.EvNewMessage, app.NewMessage(conn.View(), text))
}

func (c *Coordinator) handleGetRooms(id domain.ConnID) {
	conn, ok := c.Registry.Get(id)
	if !ok {
		return
	}
	if !conn.Identity.IsAdmin {
		c.Presence.ToConn(id, core.EvError, app.ErrorPayload{Message: "admin privileges required"})
		return
	}
	c.Presence.ToConn(id, core.EvRoomsUpdate, c.Directory.AllDetails())
}

func (c *Coordinator) handleCloseRoom(id domain.ConnID, roomID domain.RoomID) {
	conn, ok := c.Registry.Get(id)
	if !ok {
		return
	}
	if !conn.Identity.IsAdmin {
		c.Presence.ToConn(id, core.EvError, app.ErrorPayload{Message: "admin privileges required"})
		return
	}
	evicted := c.Directory.CloseRoom(roomID)
	if evicted == nil {
		return
	}
	metrics.RoomsLive.Set(float64(c.Directory.RoomCount()))
	log.Info().Str("module", "orch").Str("admin", conn.Identity.Username).Str("room", string(roomID)).Msg("room force-closed")

	for _, evictedID := range evicted {
		c.Presence.ToConn(evictedID, core.EvRoomClosed, app.ClosedPayload{RoomID: roomID, Message: closedNotice})
	}
	c.Presence.OnlineList()
	c.Presence.RoomSummaries()
}

// handleDisconnect evicts the connection from its room, destroys it, and
// re-broadcasts. It must restore the membership invariants no matter what
// state the connection was in.
func (c *Coordinator) handleDisconnect(id domain.ConnID) {
	conn, ok := c.Registry.Get(id)
	if !ok {
		return
	}
	roomID := conn.Room
	if roomID != "" && c.Directory.LeaveRoom(id, roomID) {
		c.Presence.ToRoom(roomID, core.EvUserLeft, app.JoinedPayload{User: conn.View(), RoomID: roomID})
		c.Presence.RoomRoster(roomID)
	}
	c.Registry.Unregister(id)
	metrics.ConnectionsLive.Set(float64(c.Registry.Count()))
	metrics.RoomsLive.Set(float64(c.Directory.RoomCount()))

	c.Presence.OnlineList()
	c.Presence.RoomSummaries()
}
