package app

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/averin/parlor/internal/domain"
)

// Directory tracks rooms and their membership. It is the only writer of
// the room side of the mapping and of Connection.Room, so the invariant
// "conn.Room == R iff R.Members contains conn" holds after every method
// returns. Mutating methods are called only by the coordinator's worker.
type Directory struct {
	reg   *Registry
	mu    sync.RWMutex
	rooms map[domain.RoomID]*domain.Room
}

func NewDirectory(reg *Registry) *Directory {
	return &Directory{reg: reg, rooms: make(map[domain.RoomID]*domain.Room)}
}

// JoinRoom moves the connection into roomID, leaving any prior room first
// (deleting it if the move empties it). The room is created lazily.
// prev is the room left, empty if none. ok is false when the connection
// is unknown, in which case nothing changes.
func (d *Directory) JoinRoom(id domain.ConnID, roomID domain.RoomID) (prev domain.RoomID, ok bool) {
	conn, found := d.reg.Get(id)
	if !found {
		return "", false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if conn.Room != "" && conn.Room != roomID {
		prev = conn.Room
		d.removeMember(id, prev)
	}

	room := d.rooms[roomID]
	if room == nil {
		room = &domain.Room{
			ID:        roomID,
			Members:   make(map[domain.ConnID]struct{}),
			CreatedAt: time.Now(),
		}
		d.rooms[roomID] = room
		log.Info().Str("module", "app.directory").Str("room", string(roomID)).Msg("room created")
	}
	room.Members[id] = struct{}{}
	d.reg.SetRoom(id, roomID)
	log.Info().Str("module", "app.directory").Str("conn", string(id)).Str("room", string(roomID)).Msg("joined room")
	return prev, true
}

// LeaveRoom removes the connection from roomID and clears its current
// room. Unknown room or absent membership is a benign no-op; left reports
// whether anything changed.
func (d *Directory) LeaveRoom(id domain.ConnID, roomID domain.RoomID) (left bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room := d.rooms[roomID]
	if room == nil {
		return false
	}
	if _, member := room.Members[id]; !member {
		return false
	}
	d.removeMember(id, roomID)
	d.reg.SetRoom(id, "")
	log.Info().Str("module", "app.directory").Str("conn", string(id)).Str("room", string(roomID)).Msg("left room")
	return true
}

// CloseRoom evicts every member, clears their current room, and deletes
// the room. Returns the evicted connection ids so the caller can notify
// them. No-op on an unknown room.
func (d *Directory) CloseRoom(roomID domain.RoomID) []domain.ConnID {
	d.mu.Lock()
	defer d.mu.Unlock()

	room := d.rooms[roomID]
	if room == nil {
		return nil
	}
	evicted := make([]domain.ConnID, 0, len(room.Members))
	for id := range room.Members {
		d.reg.SetRoom(id, "")
		evicted = append(evicted, id)
	}
	delete(d.rooms, roomID)
	log.Info().Str("module", "app.directory").Str("room", string(roomID)).Int("evicted", len(evicted)).Msg("room closed")
	return evicted
}

// removeMember drops id from roomID's member set, deleting the room if it
// empties. Caller holds d.mu.
func (d *Directory) removeMember(id domain.ConnID, roomID domain.RoomID) {
	room := d.rooms[roomID]
	if room == nil {
		return
	}
	delete(room.Members, id)
	if len(room.Members) == 0 {
		delete(d.rooms, roomID)
		log.Info().Str("module", "app.directory").Str("room", string(roomID)).Msg("room deleted (empty)")
	}
}

// Members snapshots the member ids of roomID, nil if the room is unknown.
func (d *Directory) Members(roomID domain.RoomID) []domain.ConnID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room := d.rooms[roomID]
	if room == nil {
		return nil
	}
	out := make([]domain.ConnID, 0, len(room.Members))
	for id := range room.Members {
		out = append(out, id)
	}
	return out
}

func (d *Directory) Summary(roomID domain.RoomID) (domain.Summary, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room := d.rooms[roomID]
	if room == nil {
		return domain.Summary{}, false
	}
	return room.Summary(), true
}

// AllSummaries snapshots every room, ordered by id for stable output.
func (d *Directory) AllSummaries() []domain.Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Summary, 0, len(d.rooms))
	for _, room := range d.rooms {
		out = append(out, room.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FullRoomView is Summary plus the resolved member list.
func (d *Directory) FullRoomView(roomID domain.RoomID) (domain.Detail, bool) {
	d.mu.RLock()
	room := d.rooms[roomID]
	if room == nil {
		d.mu.RUnlock()
		return domain.Detail{}, false
	}
	detail := domain.Detail{Summary: room.Summary()}
	members := make([]domain.ConnID, 0, len(room.Members))
	for id := range room.Members {
		members = append(members, id)
	}
	d.mu.RUnlock()

	detail.Users = d.resolveViews(members)
	return detail, true
}

// AllDetails is the privileged room list: every room with full members.
func (d *Directory) AllDetails() []domain.Detail {
	summaries := d.AllSummaries()
	out := make([]domain.Detail, 0, len(summaries))
	for _, s := range summaries {
		if detail, ok := d.FullRoomView(s.ID); ok {
			out = append(out, detail)
		}
	}
	return out
}

func (d *Directory) RoomCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

func (d *Directory) resolveViews(ids []domain.ConnID) []domain.UserView {
	out := make([]domain.UserView, 0, len(ids))
	for _, s := range d.reg.SessionsByID(ids) {
		out = append(out, s.Conn.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out
}
