package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/grouptalk/grouptalk-server/internal/chat"
	"github.com/grouptalk/grouptalk-server/internal/store"
	"github.com/grouptalk/grouptalk-server/internal/utils"
)

// RoomHandlers provides HTTP handlers for room management. Join, leave and
// delete happen outside any live connection; they reach the room's open
// sessions through chat.Service.BroadcastSystemEvent.
type RoomHandlers struct {
	store store.Store
	svc   *chat.Service
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.Store, svc *chat.Service, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store: st,
		svc:   svc,
		log:   logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Title string `json:"title" binding:"required,min=1,max=50"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	Token     string `json:"token"`
	Title     string `json:"title"`
	CreatorID int64  `json:"creator_id"`
	CreatedAt string `json:"created_at"`
}

// JoinResponse reports the outcome of a join request.
type JoinResponse struct {
	Room          RoomResponse `json:"room"`
	AlreadyMember bool         `json:"already_member"`
}

// MessageResponse represents a stored message in history responses.
type MessageResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message"`
	IsSystem  bool   `json:"is_system"`
	ReplyTo   *int64 `json:"reply_to,omitempty"`
	CreatedAt string `json:"created_at"`
}

func roomResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		Token:     room.Token,
		Title:     room.Title,
		CreatorID: room.CreatorID,
		CreatedAt: room.CreatedAt.Format(time.RFC3339),
	}
}

// CreateRoom creates a room and makes the creator its first member.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "title cannot be empty"})
		return
	}

	room, err := h.store.CreateRoom(c.Request.Context(), utils.NewRoomToken(), title, uid)
	if err != nil {
		h.log.Error().Err(err).Str("title", title).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if _, err := h.store.AddMember(c.Request.Context(), room.ID, uid); err != nil {
		h.log.Error().Err(err).Str("room", room.Token).Msg("failed to add creator membership")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room", room.Token).Int64("creator_id", uid).Msg("room created")
	c.JSON(http.StatusCreated, roomResponse(room))
}

// ListRooms lists the caller's rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	uid, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	rooms, err := h.store.ListRoomsForUser(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, roomResponse(room))
	}

	c.JSON(http.StatusOK, response)
}

// JoinRoom adds the caller to the room behind a join link. Joining twice
// is a no-op success; only a first-time join announces itself to the room.
// POST /api/rooms/:token/join
func (h *RoomHandlers) JoinRoom(c *gin.Context) {
	uid, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, err := h.store.GetRoomByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to look up room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	created, err := h.store.AddMember(c.Request.Context(), room.ID, uid)
	if err != nil {
		h.log.Error().Err(err).Str("room", room.Token).Msg("failed to add member")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if created {
		text := fmt.Sprintf("%s joined the group.", username)
		if err := h.svc.BroadcastSystemEvent(c.Request.Context(), room, text); err != nil {
			h.log.Error().Err(err).Str("room", room.Token).Msg("failed to announce join")
		}
	}

	c.JSON(http.StatusOK, JoinResponse{Room: roomResponse(room), AlreadyMember: !created})
}

// LeaveRoom removes the caller's membership. The farewell is stored and
// broadcast before any rows disappear. A creator leaving deletes the room.
// POST /api/rooms/:token/leave
func (h *RoomHandlers) LeaveRoom(c *gin.Context) {
	uid, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, err := h.store.GetRoomByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to look up room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if _, err := h.store.GetMembership(c.Request.Context(), room.ID, uid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not a member"})
			return
		}
		h.log.Error().Err(err).Str("room", room.Token).Msg("failed to check membership")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	text := fmt.Sprintf("%s left the group.", username)
	if err := h.svc.BroadcastSystemEvent(c.Request.Context(), room, text); err != nil {
		h.log.Error().Err(err).Str("room", room.Token).Msg("failed to announce leave")
	}

	if room.CreatorID == uid {
		if err := h.store.DeleteRoom(c.Request.Context(), room.ID); err != nil {
			h.log.Error().Err(err).Str("room", room.Token).Msg("failed to delete room")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		h.log.Info().Str("room", room.Token).Msg("room deleted by creator")
		c.JSON(http.StatusOK, gin.H{"deleted": true})
		return
	}

	if err := h.store.RemoveMember(c.Request.Context(), room.ID, uid); err != nil {
		h.log.Error().Err(err).Str("room", room.Token).Msg("failed to remove member")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": false})
}

// ListMessages returns room history from the caller's join horizon onward.
// GET /api/rooms/:token/messages
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	uid, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, err := h.store.GetRoomByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to look up room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	membership, err := h.store.GetMembership(c.Request.Context(), room.ID, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member"})
			return
		}
		h.log.Error().Err(err).Str("room", room.Token).Msg("failed to check membership")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	messages, err := h.store.ListMessagesSince(c.Request.Context(), room.ID, membership.JoinedAt)
	if err != nil {
		h.log.Error().Err(err).Str("room", room.Token).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, MessageResponse{
			ID:        msg.ID,
			Username:  msg.SenderName,
			Message:   msg.Body,
			IsSystem:  msg.IsSystem,
			ReplyTo:   msg.ReplyTo,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, response)
}
