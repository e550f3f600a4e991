package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/grouptalk/grouptalk-server/internal/store"
)

// MessageSink is the persistence gateway the live-chat core writes through.
// A message must be durably stored before it becomes visible to any
// subscriber; the sink call either returns the stored record or the
// message is dropped. *sqlite.SQLiteStore satisfies this.
type MessageSink interface {
	SaveMessage(ctx context.Context, roomID int64, senderID *int64, body string, isSystem bool, replyTo *int64) (*store.Message, error)
}

// Service owns the presence registry, the broadcast fabric and the
// persistence gateway. One instance per process, handed to every session
// and to the HTTP layer; nothing here is a package-level singleton.
type Service struct {
	registry *Registry
	bus      *Broadcaster
	sink     MessageSink
	log      *zerolog.Logger
}

// NewService wires the chat core around the given persistence gateway.
func NewService(sink MessageSink, logger *zerolog.Logger) *Service {
	return &Service{
		registry: NewRegistry(),
		bus:      NewBroadcaster(),
		sink:     sink,
		log:      logger,
	}
}

// BroadcastSystemEvent stores a system message and fans it out to the
// room's live sessions. This is the seam room-management actions (join,
// leave, delete) use to reach connections they are not part of. The
// message is stored exactly once; delivery reuses the same publish path
// as session-originated messages.
func (s *Service) BroadcastSystemEvent(ctx context.Context, room *store.Room, text string) error {
	if _, err := s.sink.SaveMessage(ctx, room.ID, nil, text, true, nil); err != nil {
		return fmt.Errorf("store system message: %w", err)
	}
	s.bus.Publish(room.Token, SystemMessage{Body: text})
	return nil
}

// Publish exposes the broadcast fabric for external producers that manage
// their own persistence.
func (s *Service) Publish(roomToken string, event Event) {
	s.bus.Publish(roomToken, event)
}

// Snapshot returns the current presence set for a room token.
func (s *Service) Snapshot(roomToken string) []string {
	return s.registry.Snapshot(roomToken)
}
