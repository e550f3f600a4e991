package chat

import (
	"sort"
	"sync"
)

// Registry is the process-wide presence table: room token -> user -> open
// connection count. Presence is ephemeral and rebuilt from zero on restart;
// it only answers "who is online", never "who is a member".
//
// Counting connections per user means a second browser tab neither
// duplicates the user in snapshots nor evicts them when it closes.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]map[string]int
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]int)}
}

// Add records one open connection for user in room. Returns true when the
// user became newly present (first connection).
func (r *Registry) Add(room, user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.rooms[room]
	if !ok {
		users = make(map[string]int)
		r.rooms[room] = users
	}
	users[user]++
	return users[user] == 1
}

// Remove drops one connection for user in room. The user leaves the
// snapshot when their last connection goes; the room entry is pruned when
// empty to bound memory. Removing an absent user is a no-op.
func (r *Registry) Remove(room, user string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.rooms[room]
	if !ok {
		return
	}
	if n, ok := users[user]; ok {
		if n <= 1 {
			delete(users, user)
		} else {
			users[user] = n - 1
		}
	}
	if len(users) == 0 {
		delete(r.rooms, room)
	}
}

// Snapshot returns the sorted set of users currently present in room.
// Never nil; an unknown room yields an empty slice.
func (r *Registry) Snapshot(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]string, 0, len(r.rooms[room]))
	for user := range r.rooms[room] {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}
