package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/averin/parlor/internal/core"
	"github.com/averin/parlor/internal/domain"
)

type regEntry struct {
	conn *domain.Connection
	sink core.Sink
}

// Registry tracks every currently-connected client and its identity claim.
// Mutating methods are called only by the coordinator's worker; readers
// take snapshots.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*regEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnID]*regEntry)}
}

// Register validates the identity claim and records the connection.
// On domain.ErrMissingIdentity the caller must close the transport session;
// the connection never appears in any online view.
func (r *Registry) Register(id domain.ConnID, identity domain.Identity, sink core.Sink) (domain.Connection, error) {
	if err := identity.Validate(); err != nil {
		return domain.Connection{}, err
	}
	conn := &domain.Connection{
		ID:       id,
		Identity: identity,
		JoinedAt: time.Now(),
	}
	r.mu.Lock()
	r.conns[id] = &regEntry{conn: conn, sink: sink}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", identity.Username).Msg("registered connection")
	return *conn, nil
}

// Unregister removes the connection. No-op if already absent.
func (r *Registry) Unregister(id domain.ConnID) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unregistered connection")
}

func (r *Registry) Get(id domain.ConnID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, false
	}
	return *e.conn, true
}

func (r *Registry) SinkOf(id domain.ConnID) (core.Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.sink, true
}

// SetRoom rewrites the connection's current room. Called only by the
// directory, which keeps both sides of the membership mapping in step.
func (r *Registry) SetRoom(id domain.ConnID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.conn.Room = roomID
	return true
}

// Sessions snapshots every live session.
func (r *Registry) Sessions() []core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Session, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, core.Session{Conn: *e.conn, Sink: e.sink})
	}
	return out
}

// SessionsByID snapshots the sessions for ids, skipping any that have
// disconnected since ids was computed.
func (r *Registry) SessionsByID(ids []domain.ConnID) []core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Session, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.conns[id]; ok {
			out = append(out, core.Session{Conn: *e.conn, Sink: e.sink})
		}
	}
	return out
}

// ListAll snapshots the global presence view.
func (r *Registry) ListAll() []domain.UserView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserView, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.conn.View())
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
