package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/grouptalk/grouptalk-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, name string) *store.User {
	t.Helper()

	user, err := s.CreateUser(context.Background(), name, "hash")
	if err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return user
}

func seedRoom(t *testing.T, s *SQLiteStore, token string, creatorID int64) *store.Room {
	t.Helper()

	room, err := s.CreateRoom(context.Background(), token, "Test Room", creatorID)
	if err != nil {
		t.Fatalf("failed to create room: %v", err)
	}
	return room
}

func TestRoomTokenLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")

	created := seedRoom(t, s, "abc123def4", alice.ID)

	room, err := s.GetRoomByToken(ctx, "abc123def4")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.ID != created.ID || room.Title != "Test Room" || room.CreatorID != alice.ID {
		t.Fatalf("unexpected room: %+v", room)
	}

	if _, err := s.GetRoomByToken(ctx, "nope"); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddMemberIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	room := seedRoom(t, s, "tok1", alice.ID)

	created, err := s.AddMember(ctx, room.ID, alice.ID)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if !created {
		t.Fatalf("first join should create a record")
	}

	created, err = s.AddMember(ctx, room.ID, alice.ID)
	if err != nil {
		t.Fatalf("second join must be a no-op success, got %v", err)
	}
	if created {
		t.Fatalf("second join should not create a record")
	}
}

func TestMembershipHorizonFiltersHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	room := seedRoom(t, s, "tok1", alice.ID)

	if _, err := s.AddMember(ctx, room.ID, alice.ID); err != nil {
		t.Fatalf("add alice: %v", err)
	}

	if _, err := s.SaveMessage(ctx, room.ID, &alice.ID, "before bob", false, nil); err != nil {
		t.Fatalf("save message: %v", err)
	}

	// Bob joins strictly after the first message.
	time.Sleep(10 * time.Millisecond)
	if _, err := s.AddMember(ctx, room.ID, bob.ID); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := s.SaveMessage(ctx, room.ID, &alice.ID, "after bob", false, nil); err != nil {
		t.Fatalf("save message: %v", err)
	}

	aliceMembership, err := s.GetMembership(ctx, room.ID, alice.ID)
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	bobMembership, err := s.GetMembership(ctx, room.ID, bob.ID)
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}

	aliceView, err := s.ListMessagesSince(ctx, room.ID, aliceMembership.JoinedAt)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(aliceView) != 2 {
		t.Fatalf("alice should see 2 messages, got %d", len(aliceView))
	}
	if aliceView[0].Body != "before bob" || aliceView[0].SenderName != "alice" {
		t.Fatalf("unexpected first message: %+v", aliceView[0])
	}

	bobView, err := s.ListMessagesSince(ctx, room.ID, bobMembership.JoinedAt)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(bobView) != 1 || bobView[0].Body != "after bob" {
		t.Fatalf("bob should only see messages after joining, got %+v", bobView)
	}
}

func TestSystemMessageHasNoSender(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	room := seedRoom(t, s, "tok1", alice.ID)

	msg, err := s.SaveMessage(ctx, room.ID, nil, "alice joined the group.", true, nil)
	if err != nil {
		t.Fatalf("save system message: %v", err)
	}
	if msg.SenderID != nil || !msg.IsSystem {
		t.Fatalf("unexpected system message: %+v", msg)
	}

	if _, err := s.AddMember(ctx, room.ID, alice.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	membership, err := s.GetMembership(ctx, room.ID, alice.ID)
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}

	listed, err := s.ListMessagesSince(ctx, room.ID, membership.JoinedAt.Add(-time.Minute))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].SenderName != "" {
		t.Fatalf("system message should list with empty sender name: %+v", listed)
	}
}

func TestDeleteMessageClearsReplyReference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	room := seedRoom(t, s, "tok1", alice.ID)

	target, err := s.SaveMessage(ctx, room.ID, &alice.ID, "original", false, nil)
	if err != nil {
		t.Fatalf("save target: %v", err)
	}
	reply, err := s.SaveMessage(ctx, room.ID, &alice.ID, "a reply", false, &target.ID)
	if err != nil {
		t.Fatalf("save reply: %v", err)
	}
	if reply.ReplyTo == nil || *reply.ReplyTo != target.ID {
		t.Fatalf("reply back-reference not stored: %+v", reply)
	}

	if err := s.DeleteMessage(ctx, target.ID); err != nil {
		t.Fatalf("delete target: %v", err)
	}

	listed, err := s.ListMessagesSince(ctx, room.ID, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// The reply survives with its reference cleared, not cascade-deleted.
	if len(listed) != 1 {
		t.Fatalf("expected 1 surviving message, got %d", len(listed))
	}
	if listed[0].ID != reply.ID || listed[0].ReplyTo != nil {
		t.Fatalf("reply should survive with nil reply_to: %+v", listed[0])
	}
}

func TestDeleteRoomCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	room := seedRoom(t, s, "tok1", alice.ID)

	if _, err := s.AddMember(ctx, room.ID, alice.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := s.SaveMessage(ctx, room.ID, &alice.ID, "doomed", false, nil); err != nil {
		t.Fatalf("save message: %v", err)
	}

	if err := s.DeleteRoom(ctx, room.ID); err != nil {
		t.Fatalf("delete room: %v", err)
	}

	if _, err := s.GetRoomByToken(ctx, "tok1"); err != store.ErrNotFound {
		t.Fatalf("expected room gone, got %v", err)
	}
	if _, err := s.GetMembership(ctx, room.ID, alice.ID); err != store.ErrNotFound {
		t.Fatalf("expected membership gone, got %v", err)
	}
	msgs, err := s.ListMessagesSince(ctx, room.ID, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected messages gone, got %d", len(msgs))
	}
}

func TestListRoomsForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	r1 := seedRoom(t, s, "tok1", alice.ID)
	r2 := seedRoom(t, s, "tok2", bob.ID)

	if _, err := s.AddMember(ctx, r1.ID, alice.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := s.AddMember(ctx, r2.ID, bob.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}

	rooms, err := s.ListRoomsForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Token != "tok1" {
		t.Fatalf("unexpected rooms for alice: %+v", rooms)
	}
}
