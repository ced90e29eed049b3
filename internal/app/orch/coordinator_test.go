package orch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/averin/parlor/internal/app"
	"github.com/averin/parlor/internal/core"
	"github.com/averin/parlor/internal/domain"
)

type frame struct {
	event string
	data  any
}

type fakeSink struct {
	mu     sync.Mutex
	frames []frame
}

func (s *fakeSink) TrySend(event string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame{event: event, data: v})
	return nil
}

func (s *fakeSink) Close() {}

func (s *fakeSink) countOf(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames {
		if f.event == event {
			n++
		}
	}
	return n
}

func (s *fakeSink) last(event string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].event == event {
			return s.frames[i].data, true
		}
	}
	return nil, false
}

type fixture struct {
	coord *Coordinator
	reg   *app.Registry
	dir   *app.Directory
	sinks map[domain.ConnID]*fakeSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := app.NewRegistry()
	dir := app.NewDirectory(reg)
	return &fixture{
		coord: New(reg, dir, app.NewBroadcaster(reg, dir)),
		reg:   reg,
		dir:   dir,
		sinks: make(map[domain.ConnID]*fakeSink),
	}
}

// connect registers a session through the handler directly; the tests
// drive the worker's handlers synchronously.
func (f *fixture) connect(t *testing.T, id domain.ConnID, identity domain.Identity) *fakeSink {
	t.Helper()
	s := &fakeSink{}
	if err := f.coord.handleConnect(id, identity, s); err != nil {
		t.Fatalf("connect %s: %v", id, err)
	}
	f.sinks[id] = s
	return s
}

func user(id, name string) domain.Identity {
	return domain.Identity{UserID: domain.UserID(id), Username: name}
}

func admin(id, name string) domain.Identity {
	return domain.Identity{UserID: domain.UserID(id), Username: name, IsAdmin: true}
}

func TestHandshakeRejectsMissingIdentity(t *testing.T) {
	f := newFixture(t)
	s := &fakeSink{}

	err := f.coord.handleConnect("c1", domain.Identity{UserID: "9"}, s)
	if !errors.Is(err, domain.ErrMissingIdentity) {
		t.Fatalf("handleConnect() = %v, want ErrMissingIdentity", err)
	}
	if f.reg.Count() != 0 {
		t.Fatal("rejected session must not enter the registry")
	}
	if s.countOf(core.EvUsersUpdate) != 0 {
		t.Fatal("rejected session must not receive presence views")
	}
}

func TestJoinBroadcastsRosterAndPresence(t *testing.T) {
	f := newFixture(t)
	s1 := f.connect(t, "c1", user("2", "user1"))

	f.coord.handleJoin("c1", "r1")

	data, ok := s1.last(core.EvRoomUsersUpdate)
	if !ok {
		t.Fatal("joiner did not receive room-users-update")
	}
	roster := data.([]domain.UserView)
	if len(roster) != 1 || roster[0].Username != "user1" {
		t.Fatalf("roster = %+v, want exactly [user1]", roster)
	}

	data, ok = s1.last(core.EvUsersUpdate)
	if !ok {
		t.Fatal("joiner did not receive users-update")
	}
	online := data.([]domain.UserView)
	if len(online) != 1 || online[0].RoomID != "r1" {
		t.Fatalf("users-update = %+v, want user1 with currentRoom r1", online)
	}

	if s1.countOf(core.EvUserJoined) != 0 {
		t.Fatal("acting connection must not receive its own user-joined")
	}
}

func TestJoinNotifiesExistingMembers(t *testing.T) {
	f := newFixture(t)
	s1 := f.connect(t, "c1", user("2", "user1"))
	f.connect(t, "c2", user("3", "user2"))
	f.coord.handleJoin("c1", "r1")

	f.coord.handleJoin("c2", "r1")

	data, ok := s1.last(core.EvUserJoined)
	if !ok {
		t.Fatal("existing member did not receive user-joined")
	}
	joined := data.(app.JoinedPayload)
	if joined.User.Username != "user2" || joined.RoomID != "r1" {
		t.Fatalf("user-joined = %+v", joined)
	}
}

func TestJoinMovesBetweenRooms(t *testing.T) {
	f := newFixture(t)
	s1 := f.connect(t, "c1", user("2", "user1"))
	s2 := f.connect(t, "c2", user("3", "user2"))
	f.coord.handleJoin("c1", "r1")
	f.coord.handleJoin("c2", "r1")

	f.coord.handleJoin("c2", "r2")

	// The old room hears the departure and gets a fresh roster.
	if s1.countOf(core.EvUserLeft) != 1 {
		t.Fatal("old room did not receive user-left")
	}
	data, _ := s1.last(core.EvRoomUsersUpdate)
	if roster := data.([]domain.UserView); len(roster) != 1 {
		t.Fatalf("old room roster = %+v, want just user1", roster)
	}

	conn, _ := f.reg.Get("c2")
	if conn.Room != "r2" {
		t.Fatalf("currentRoom = %q, want r2", conn.Room)
	}
	_ = s2
}

func TestMessageRelayToWholeRoom(t *testing.T) {
	f := newFixture(t)
	s1 := f.connect(t, "c1", user("2", "user1"))
	s2 := f.connect(t, "c2", user("3", "user2"))
	f.coord.handleJoin("c1", "r1")
	f.coord.handleJoin("c2", "r1")

	f.coord.handleMessage("c1", "r1", "hi")

	for id, s := range map[string]*fakeSink{"c1": s1, "c2": s2} {
		data, ok := s.last(core.EvNewMessage)
		if !ok {
			t.Fatalf("%s did not receive new-message", id)
		}
		msg := data.(app.MessagePayload)
		if msg.User.Username != "user1" || msg.Message != "hi" {
			t.Fatalf("new-message = %+v", msg)
		}
		if msg.Timestamp.IsZero() {
			t.Fatal("new-message missing timestamp")
		}
	}
}

func TestMessageOutsideRoomIsDropped(t *testing.T) {
	f := newFixture(t)
	s1 := f.connect(t, "c1", user("2", "user1"))
	s2 := f.connect(t, "c2", user("3", "user2"))
	f.coord.handleJoin("c1", "r1")
	f.coord.handleJoin("c2", "r2")

	f.coord.handleMessage("c1", "r2", "x")

	if s2.countOf(core.EvNewMessage) != 0 {
		t.Fatal("message leaked into a room the sender has not joined")
	}
	if s1.countOf(core.EvNewMessage) != 0 {
		t.Fatal("dropped message must not echo to the sender")
	}
	if s1.countOf(core.EvError) != 0 {
		t.Fatal("silent drop must not surface an error")
	}
}

func TestLastLeaveRemovesRoomFromListing(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", user("2", "user1"))
	adm := f.connect(t, "a1", admin("1", "admin"))
	f.coord.handleJoin("c1", "r1")

	f.coord.handleLeave("c1", "r1")

	f.coord.handleGetRooms("a1")
	data, ok := adm.last(core.EvRoomsUpdate)
	if !ok {
		t.Fatal("admin did not receive rooms-update")
	}
	if details := data.([]domain.Detail); len(details) != 0 {
		t.Fatalf("rooms-update = %+v, want empty after last member left", details)
	}
}

func TestForceCloseRoom(t *testing.T) {
	f := newFixture(t)
	s1 := f.connect(t, "c1", user("2", "user1"))
	s2 := f.connect(t, "c2", user("3", "user2"))
	f.connect(t, "a1", admin("1", "admin"))
	f.coord.handleJoin("c1", "r1")
	f.coord.handleJoin("c2", "r1")

	f.coord.handleCloseRoom("a1", "r1")

	for id, s := range map[string]*fakeSink{"c1": s1, "c2": s2} {
		data, ok := s.last(core.EvRoomClosed)
		if !ok {
			t.Fatalf("%s did not receive room-closed", id)
		}
		if closed := data.(app.ClosedPayload); closed.RoomID != "r1" {
			t.Fatalf("room-closed = %+v", closed)
		}
	}
	for _, id := range []domain.ConnID{"c1", "c2"} {
		conn, _ := f.reg.Get(id)
		if conn.Room != "" {
			t.Errorf("conn %s still has currentRoom %q after close", id, conn.Room)
		}
	}
	if f.dir.RoomCount() != 0 {
		t.Fatal("closed room must be gone from the directory")
	}
}

func TestForceCloseUnauthorized(t *testing.T) {
	f := newFixture(t)
	s1 := f.connect(t, "c1", user("2", "user1"))
	s2 := f.connect(t, "c2", user("3", "user2"))
	f.coord.handleJoin("c1", "r1")
	f.coord.handleJoin("c2", "r1")

	f.coord.handleCloseRoom("c2", "r1")

	if s1.countOf(core.EvRoomClosed) != 0 || s2.countOf(core.EvRoomClosed) != 0 {
		t.Fatal("unauthorized close must not emit room-closed")
	}
	if s2.countOf(core.EvError) != 1 {
		t.Fatal("unauthorized actor must get an explicit denial")
	}
	if s, ok := f.dir.Summary("r1"); !ok || s.UserCount != 2 {
		t.Fatalf("directory changed by unauthorized close: %+v, %v", s, ok)
	}
}

func TestGetRoomsUnauthorized(t *testing.T) {
	f := newFixture(t)
	s1 := f.connect(t, "c1", user("2", "user1"))
	f.coord.handleJoin("c1", "r1")

	f.coord.handleGetRooms("c1")

	if s1.countOf(core.EvError) != 1 {
		t.Fatal("non-admin get-rooms must be denied")
	}
	// The roster/presence updates from the join are fine; no privileged
	// listing may follow the denial.
	if data, ok := s1.last(core.EvRoomsUpdate); ok {
		if _, isDetail := data.([]domain.Detail); isDetail {
			t.Fatal("non-admin received the privileged room list")
		}
	}
}

func TestGetRoomsPrivileged(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", user("2", "user1"))
	adm := f.connect(t, "a1", admin("1", "admin"))
	f.coord.handleJoin("c1", "r1")

	f.coord.handleGetRooms("a1")

	data, ok := adm.last(core.EvRoomsUpdate)
	if !ok {
		t.Fatal("admin did not receive rooms-update")
	}
	details := data.([]domain.Detail)
	if len(details) != 1 || details[0].ID != "r1" || len(details[0].Users) != 1 {
		t.Fatalf("privileged listing = %+v", details)
	}
}

func TestDisconnectSoleMember(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", user("2", "user1"))
	s2 := f.connect(t, "c2", user("3", "user2"))
	f.coord.handleJoin("c1", "r1")

	f.coord.handleDisconnect("c1")

	if f.reg.Count() != 1 {
		t.Fatal("disconnected connection still registered")
	}
	if f.dir.RoomCount() != 0 {
		t.Fatal("room must be deleted when its sole member disconnects")
	}
	data, ok := s2.last(core.EvRoomsUpdate)
	if !ok {
		t.Fatal("remaining connection did not receive rooms-update")
	}
	if sums := data.([]domain.Summary); len(sums) != 0 {
		t.Fatalf("rooms-update = %+v, want empty", sums)
	}
	data, _ = s2.last(core.EvUsersUpdate)
	online := data.([]domain.UserView)
	if len(online) != 1 || online[0].Username != "user2" {
		t.Fatalf("users-update = %+v, want only user2", online)
	}
}

func TestDisconnectNotifiesRoom(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", user("2", "user1"))
	s2 := f.connect(t, "c2", user("3", "user2"))
	f.coord.handleJoin("c1", "r1")
	f.coord.handleJoin("c2", "r1")

	f.coord.handleDisconnect("c1")

	if s2.countOf(core.EvUserLeft) != 1 {
		t.Fatal("remaining member did not receive user-left")
	}
	data, _ := s2.last(core.EvRoomUsersUpdate)
	if roster := data.([]domain.UserView); len(roster) != 1 || roster[0].Username != "user2" {
		t.Fatalf("roster = %+v, want just user2", roster)
	}
}

// panicSink blows up on presence fan-out so the dispatch recovery path
// can be observed.
type panicSink struct{ fakeSink }

func (s *panicSink) TrySend(event string, v any) error {
	if event == core.EvUsersUpdate {
		panic("sink exploded")
	}
	return s.fakeSink.TrySend(event, v)
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	reply := make(chan error, 1)

	f.coord.dispatch(event{
		kind:     kindConnect,
		conn:     "c1",
		identity: user("2", "user1"),
		sink:     &panicSink{},
		reply:    reply,
	})

	if err := <-reply; !errors.Is(err, ErrInternal) {
		t.Fatalf("reply = %v, want ErrInternal", err)
	}

	// The worker survives and later events still process cleanly.
	f.coord.handleDisconnect("c1")
	s2 := f.connect(t, "c2", user("3", "user2"))
	f.coord.handleJoin("c2", "r1")
	if s2.countOf(core.EvRoomUsersUpdate) != 1 {
		t.Fatal("coordinator unusable after a recovered panic")
	}
}

func TestRunProcessesEvents(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.coord.Run(ctx)

	s := &fakeSink{}
	if err := f.coord.Connect("c1", user("2", "user1"), s); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	f.coord.Join("c1", "r1")

	deadline := time.After(2 * time.Second)
	for s.countOf(core.EvRoomUsersUpdate) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for room-users-update")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
