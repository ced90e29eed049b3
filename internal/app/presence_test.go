package app

import (
	"testing"

	"github.com/averin/parlor/internal/core"
	"github.com/averin/parlor/internal/domain"
)

func newPresenceFixture(t *testing.T) (*Registry, *Directory, *Broadcaster, map[domain.ConnID]*fakeSink) {
	t.Helper()
	reg := NewRegistry()
	dir := NewDirectory(reg)
	sinks := make(map[domain.ConnID]*fakeSink)
	for _, c := range []string{"c1", "c2", "c3"} {
		s := &fakeSink{}
		sinks[domain.ConnID(c)] = s
		if _, err := reg.Register(domain.ConnID(c), domain.Identity{UserID: domain.UserID(c), Username: c}, s); err != nil {
			t.Fatalf("register %s: %v", c, err)
		}
	}
	return reg, dir, NewBroadcaster(reg, dir), sinks
}

func TestOnlineListReachesEveryone(t *testing.T) {
	_, _, b, sinks := newPresenceFixture(t)

	b.OnlineList()
	for id, s := range sinks {
		if s.countOf(core.EvUsersUpdate) != 1 {
			t.Errorf("conn %s did not receive users-update", id)
		}
		data, _ := s.last(core.EvUsersUpdate)
		views, ok := data.([]domain.UserView)
		if !ok || len(views) != 3 {
			t.Errorf("conn %s users-update payload = %#v", id, data)
		}
	}
}

func TestRoomRosterOnlyToMembers(t *testing.T) {
	_, dir, b, sinks := newPresenceFixture(t)
	dir.JoinRoom("c1", "r1")
	dir.JoinRoom("c2", "r1")

	b.RoomRoster("r1")
	if sinks["c1"].countOf(core.EvRoomUsersUpdate) != 1 {
		t.Error("member c1 missing roster update")
	}
	if sinks["c2"].countOf(core.EvRoomUsersUpdate) != 1 {
		t.Error("member c2 missing roster update")
	}
	if sinks["c3"].countOf(core.EvRoomUsersUpdate) != 0 {
		t.Error("non-member c3 received roster update")
	}

	data, _ := sinks["c1"].last(core.EvRoomUsersUpdate)
	roster := data.([]domain.UserView)
	if len(roster) != 2 {
		t.Fatalf("roster has %d entries, want 2", len(roster))
	}
}

func TestRoomRosterUnknownRoomIsNoop(t *testing.T) {
	_, _, b, sinks := newPresenceFixture(t)
	b.RoomRoster("r9")
	for id, s := range sinks {
		if len(s.frames) != 0 {
			t.Errorf("conn %s received frames for an unknown room", id)
		}
	}
}

func TestToRoomExceptSkipsActor(t *testing.T) {
	_, dir, b, sinks := newPresenceFixture(t)
	dir.JoinRoom("c1", "r1")
	dir.JoinRoom("c2", "r1")

	b.ToRoomExcept("r1", "c1", core.EvUserJoined, JoinedPayload{RoomID: "r1"})
	if sinks["c1"].countOf(core.EvUserJoined) != 0 {
		t.Error("acting connection must not receive its own user-joined")
	}
	if sinks["c2"].countOf(core.EvUserJoined) != 1 {
		t.Error("other member missing user-joined")
	}
}

func TestToConnGoneIsNoop(t *testing.T) {
	reg, _, b, _ := newPresenceFixture(t)
	reg.Unregister("c1")
	b.ToConn("c1", core.EvError, ErrorPayload{Message: "x"}) // must not panic
}
