package domain

import "time"

type RoomID string

const (
	StatusActive = "active"
	StatusIdle   = "idle"
)

// Room is a named set of connections. A room exists only while its member
// set is non-empty; the directory deletes it the moment it empties.
type Room struct {
	ID        RoomID
	Members   map[ConnID]struct{}
	CreatedAt time.Time
}

// Summary is the public shape of a room for dashboards and rooms-update.
type Summary struct {
	ID        RoomID    `json:"id"`
	UserCount int       `json:"userCount"`
	CreatedAt time.Time `json:"createdAt"`
	Status    string    `json:"status"`
}

// Detail is Summary plus the full member list. Admin only.
type Detail struct {
	Summary
	Users []UserView `json:"users"`
}

// Summary snapshots r. Status is "idle" only under a deletion policy that
// keeps empty rooms around; with immediate deletion it is always "active".
func (r *Room) Summary() Summary {
	status := StatusIdle
	if len(r.Members) > 0 {
		status = StatusActive
	}
	return Summary{
		ID:        r.ID,
		UserCount: len(r.Members),
		CreatedAt: r.CreatedAt,
		Status:    status,
	}
}
