package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/grouptalk/grouptalk-server/internal/store"
)

func nopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func testRoom() *store.Room {
	return &store.Room{ID: 1, Token: "r1", Title: "Room One", CreatorID: 1, CreatedAt: time.Now()}
}

func testUser(id int64, name string) *store.User {
	return &store.User{ID: id, Username: name}
}

type savedMessage struct {
	RoomID   int64
	SenderID *int64
	Body     string
	IsSystem bool
}

// fakeSink is an in-memory persistence gateway with fault injection.
type fakeSink struct {
	mu    sync.Mutex
	saved []savedMessage
	fail  bool
}

func (f *fakeSink) SaveMessage(_ context.Context, roomID int64, senderID *int64, body string, isSystem bool, replyTo *int64) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("sink unavailable")
	}
	f.saved = append(f.saved, savedMessage{RoomID: roomID, SenderID: senderID, Body: body, IsSystem: isSystem})
	return &store.Message{
		ID:        int64(len(f.saved)),
		RoomID:    roomID,
		SenderID:  senderID,
		Body:      body,
		IsSystem:  isSystem,
		ReplyTo:   replyTo,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

// mustEvent drains a session's event queue until an event of the wanted
// shape arrives.
func mustEvent[E Event](t *testing.T, sess *Session) E {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sess.Events():
			if typed, ok := ev.(E); ok {
				return typed
			}
		case <-deadline:
			var zero E
			t.Fatalf("expected event of type %T not received", zero)
			return zero
		}
	}
}

// noEvent asserts the session's queue stays empty.
func noEvent(t *testing.T, sess *Session) {
	t.Helper()

	select {
	case ev := <-sess.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
