package chat

import "sync"

// Subscriber receives events published to a room. Deliver must not block;
// a subscriber that cannot keep up is on its own.
type Subscriber interface {
	Deliver(Event)
}

// Broadcaster is the per-room fan-out fabric. Producers never see the
// subscriber list: a live session and an external action (a join handled
// over HTTP, say) publish the same way. Publishing to a room with no
// subscribers is valid and does nothing.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[Subscriber]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[Subscriber]struct{})}
}

// Subscribe adds sub to the room's fan-out list.
func (b *Broadcaster) Subscribe(room string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[room]
	if !ok {
		set = make(map[Subscriber]struct{})
		b.subs[room] = set
	}
	set[sub] = struct{}{}
}

// Unsubscribe removes sub from the room's fan-out list. Unsubscribing a
// subscriber that was never added is a no-op.
func (b *Broadcaster) Unsubscribe(room string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[room]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, room)
	}
}

// Publish delivers event to every subscriber of room, the publisher
// included. Delivery is per-subscriber independent: one dead or slow
// subscriber cannot stall the rest, so the list is copied under the lock
// and Deliver runs outside it.
func (b *Broadcaster) Publish(room string, event Event) {
	b.mu.Lock()
	targets := make([]Subscriber, 0, len(b.subs[room]))
	for sub := range b.subs[room] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.Deliver(event)
	}
}
