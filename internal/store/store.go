package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Room is a named chat group identified by a short opaque token.
// Rooms are immutable after creation except for deletion.
type Room struct {
	ID        int64
	Token     string
	Title     string
	CreatorID int64
	CreatedAt time.Time
}

// Membership records that a user belongs to a room. JoinedAt is the
// visibility horizon: a member only sees messages created at or after it.
type Membership struct {
	RoomID   int64
	UserID   int64
	JoinedAt time.Time
}

// Message is a persisted chat or system message. SenderID is nil for
// system messages. ReplyTo references another message in the same room
// and is cleared when the target is deleted.
type Message struct {
	ID       int64
	RoomID   int64
	SenderID *int64
	// SenderName is resolved on reads; empty for system messages.
	SenderName string
	Body       string
	IsSystem   bool
	ReplyTo    *int64
	CreatedAt  time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a room with the given token and title.
	CreateRoom(ctx context.Context, token, title string, creatorID int64) (*Room, error)

	// GetRoomByToken retrieves a room by its short token.
	GetRoomByToken(ctx context.Context, token string) (*Room, error)

	// ListRoomsForUser lists rooms the user is a member of, newest first.
	ListRoomsForUser(ctx context.Context, userID int64) ([]*Room, error)

	// DeleteRoom removes a room. Memberships and messages cascade.
	DeleteRoom(ctx context.Context, id int64) error
}

// MembershipStore handles membership persistence.
type MembershipStore interface {
	// AddMember records membership. Joining twice is a no-op success;
	// the returned bool reports whether a new record was created.
	AddMember(ctx context.Context, roomID, userID int64) (bool, error)

	// RemoveMember deletes the membership record.
	RemoveMember(ctx context.Context, roomID, userID int64) error

	// GetMembership retrieves a membership record.
	GetMembership(ctx context.Context, roomID, userID int64) (*Membership, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message with a server-assigned timestamp.
	// senderID is nil for system messages.
	SaveMessage(ctx context.Context, roomID int64, senderID *int64, body string, isSystem bool, replyTo *int64) (*Message, error)

	// ListMessagesSince returns room messages created at or after since,
	// ordered oldest first.
	ListMessagesSince(ctx context.Context, roomID int64, since time.Time) ([]*Message, error)

	// DeleteMessage removes a message. Replies keep their rows but lose
	// the back-reference.
	DeleteMessage(ctx context.Context, id int64) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MembershipStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
