package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/grouptalk/grouptalk-server/internal/store"
)

// sessionBuffer is the per-session outbound queue depth. A session that
// falls this far behind starts losing events rather than stalling the room.
const sessionBuffer = 16

// Session is one live connection bound to a (user, room) pair. The
// transport layer pumps inbound frames into HandleInbound and drains
// Events into the socket; everything else the session touches is the
// shared registry and broadcaster owned by Service.
type Session struct {
	svc  *Service
	room *store.Room
	user *store.User

	events chan Event

	opened    bool
	closeOnce sync.Once
}

// NewSession builds a session for an authenticated user on an existing
// room. The caller is expected to have resolved both.
func (s *Service) NewSession(room *store.Room, user *store.User) *Session {
	return &Session{
		svc:    s,
		room:   room,
		user:   user,
		events: make(chan Event, sessionBuffer),
	}
}

// Open registers the session with presence and broadcast, then announces
// the fresh presence snapshot to the whole room (this session included).
func (sess *Session) Open() {
	sess.svc.registry.Add(sess.room.Token, sess.user.Username)
	sess.svc.bus.Subscribe(sess.room.Token, sess)
	sess.opened = true
	sess.svc.bus.Publish(sess.room.Token, OnlineUsers{Users: sess.svc.registry.Snapshot(sess.room.Token)})
}

// Close runs the disconnect sequence exactly once: presence remove,
// unsubscribe, then a fresh snapshot broadcast. Safe to call repeatedly
// and on a session that never opened, so transport teardown can fire it
// from any error path without coordination.
func (sess *Session) Close() {
	sess.closeOnce.Do(func() {
		if !sess.opened {
			return
		}
		sess.svc.registry.Remove(sess.room.Token, sess.user.Username)
		sess.svc.bus.Unsubscribe(sess.room.Token, sess)
		sess.svc.bus.Publish(sess.room.Token, OnlineUsers{Users: sess.svc.registry.Snapshot(sess.room.Token)})
	})
}

// HandleInbound validates one client frame. Malformed payloads and unknown
// types answer the sender with a single error frame and keep the
// connection up. Blank bodies are dropped silently. A valid message is
// persisted first; if the store fails the message is logged and never
// broadcast, so no client can see a message that was not recorded.
func (sess *Session) HandleInbound(ctx context.Context, raw []byte) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		sess.Deliver(ErrorEvent{Msg: "invalid message format"})
		return
	}
	if in.Type != frameChatMessage {
		sess.Deliver(ErrorEvent{Msg: "unknown message type"})
		return
	}

	body := strings.TrimSpace(in.Message)
	if body == "" {
		return
	}

	if _, err := sess.svc.sink.SaveMessage(ctx, sess.room.ID, &sess.user.ID, body, false, nil); err != nil {
		sess.svc.log.Error().Err(err).
			Str("room", sess.room.Token).
			Str("user", sess.user.Username).
			Msg("failed to store message, dropping")
		return
	}

	sess.svc.bus.Publish(sess.room.Token, ChatMessage{
		Username: sess.user.Username,
		Body:     body,
		Stamp:    time.Now().Format("15:04"),
	})
}

// Deliver enqueues an event for the transport write pump. Non-blocking:
// if the session's queue is full the event is dropped for this session
// only, never for the room.
func (sess *Session) Deliver(event Event) {
	select {
	case sess.events <- event:
	default:
	}
}

// Events is the outbound queue the transport layer drains.
func (sess *Session) Events() <-chan Event {
	return sess.events
}

// User returns the session's user identity.
func (sess *Session) User() string {
	return sess.user.Username
}
