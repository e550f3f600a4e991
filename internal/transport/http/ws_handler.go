package http

import (
	"context"
	"errors"
	"io"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/grouptalk/grouptalk-server/internal/auth"
	"github.com/grouptalk/grouptalk-server/internal/chat"
	"github.com/grouptalk/grouptalk-server/internal/store"
)

// Close codes let clients distinguish "log in" from "bad link" from
// "server error" without a protocol frame.
const (
	StatusInternalFailure websocket.StatusCode = 4001
	StatusUnauthenticated websocket.StatusCode = 4003
	StatusRoomNotFound    websocket.StatusCode = 4004
)

// WSHandler upgrades HTTP requests on /ws/:token into chat sessions.
type WSHandler struct {
	svc         *chat.Service
	authService *auth.Service
	store       store.Store
	perMinute   int
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(svc *chat.Service, authService *auth.Service, st store.Store, perMinute int, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		svc:         svc,
		authService: authService,
		store:       st,
		perMinute:   perMinute,
		log:         logger,
	}
}

// Handle runs one connection lifecycle: authenticate, resolve the room,
// open a session, pump frames both ways, and tear down through the
// session's one-shot close no matter which side fails first.
func (h *WSHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	claims, authErr := h.authenticate(c)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if authErr != nil {
		conn.Close(StatusUnauthenticated, "authentication required")
		return
	}

	user, err := h.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			conn.Close(StatusUnauthenticated, "unknown user")
		} else {
			h.log.Error().Err(err).Int64("user_id", claims.UserID).Msg("ws user lookup failed")
			conn.Close(StatusInternalFailure, "internal error")
		}
		return
	}

	room, err := h.store.GetRoomByToken(ctx, c.Param("token"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			conn.Close(StatusRoomNotFound, "room not found")
		} else {
			h.log.Error().Err(err).Msg("ws room lookup failed")
			conn.Close(StatusInternalFailure, "internal error")
		}
		return
	}

	sess := h.svc.NewSession(room, user)
	sess.Open()
	defer sess.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.perMinute)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	// Cleanup must run before the closing snapshot reaches the room, so
	// departing users are already gone from it.
	sess.Close()

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("room", room.Token).Str("user", user.Username).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// authenticate accepts the token either as a Bearer header or a ?token=
// query parameter, since browser websocket clients cannot set headers.
func (h *WSHandler) authenticate(c *gin.Context) (*auth.Claims, error) {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		if after, ok := cutBearer(header); ok {
			token = after
		}
	}
	if token == "" {
		return nil, errors.New("missing token")
	}
	return h.authService.ValidateToken(token)
}

func cutBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):], true
	}
	return "", false
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *chat.Session, limiter *rateLimiter) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if !limiter.allow() {
			sess.Deliver(chat.ErrorEvent{Msg: "rate limit exceeded"})
			continue
		}
		sess.HandleInbound(ctx, data)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *chat.Session) error {
	for {
		select {
		case event := <-sess.Events():
			if err := wsjson.Write(ctx, conn, event.Frame()); err != nil {
				h.log.Error().Err(err).Str("user", sess.User()).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
