package http

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wireFrame mirrors every outbound frame shape for test reads.
type wireFrame struct {
	Type      string   `json:"type"`
	Message   string   `json:"message"`
	Username  string   `json:"username"`
	Timestamp string   `json:"timestamp"`
	Users     []string `json:"users"`
}

func wsURL(env *testEnv, roomToken, authToken string) string {
	base := strings.Replace(env.ts.URL, "http", "ws", 1)
	u := base + "/ws/" + roomToken
	if authToken != "" {
		u += "?token=" + authToken
	}
	return u
}

func createRoomForWS(t *testing.T, env *testEnv, creatorToken string) string {
	t.Helper()

	resp := env.serve(authedRequest("POST", "/api/rooms", []byte(`{"title":"WS Room"}`), creatorToken))
	if resp.Code != 201 {
		t.Fatalf("create room: %d: %s", resp.Code, resp.Body.String())
	}
	var room RoomResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &room); err != nil {
		t.Fatalf("unmarshal room: %v", err)
	}
	return room.Token
}

// awaitFrame reads frames until one matches, failing on timeout.
func awaitFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(wireFrame) bool) wireFrame {
	t.Helper()

	for {
		var frame wireFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if match(frame) {
			return frame
		}
	}
}

func TestWebSocketChatRoundTrip(t *testing.T) {
	env := startTestServer(t)
	aliceToken := registerUser(t, env, "alice")
	bobToken := registerUser(t, env, "bob")
	roomToken := createRoomForWS(t, env, aliceToken)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA, _, err := websocket.Dial(ctx, wsURL(env, roomToken, aliceToken), nil)
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	defer connA.Close(websocket.StatusNormalClosure, "done")

	// Alice's own connect produces her first snapshot.
	snap := awaitFrame(t, ctx, connA, func(f wireFrame) bool { return f.Type == "online_users" })
	if len(snap.Users) != 1 || snap.Users[0] != "alice" {
		t.Fatalf("unexpected snapshot: %v", snap.Users)
	}

	connB, _, err := websocket.Dial(ctx, wsURL(env, roomToken, bobToken), nil)
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	defer connB.Close(websocket.StatusNormalClosure, "done")

	// Both see the two-user snapshot after bob connects.
	snap = awaitFrame(t, ctx, connA, func(f wireFrame) bool {
		return f.Type == "online_users" && len(f.Users) == 2
	})
	if snap.Users[0] != "alice" || snap.Users[1] != "bob" {
		t.Fatalf("unexpected snapshot: %v", snap.Users)
	}
	awaitFrame(t, ctx, connB, func(f wireFrame) bool {
		return f.Type == "online_users" && len(f.Users) == 2
	})

	// Alice talks; both sides receive the rendered message.
	if err := wsjson.Write(ctx, connA, map[string]string{"type": "chat_message", "message": "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, conn := range []*websocket.Conn{connA, connB} {
		msg := awaitFrame(t, ctx, conn, func(f wireFrame) bool { return f.Type == "chat_message" })
		if msg.Username != "alice" || msg.Message != "hello" {
			t.Fatalf("unexpected chat frame: %+v", msg)
		}
		if len(msg.Timestamp) != 5 || msg.Timestamp[2] != ':' {
			t.Fatalf("timestamp %q is not HH:MM", msg.Timestamp)
		}
	}

	// Bob drops; alice gets the shrunken snapshot.
	connB.Close(websocket.StatusNormalClosure, "bye")
	snap = awaitFrame(t, ctx, connA, func(f wireFrame) bool {
		return f.Type == "online_users" && len(f.Users) == 1
	})
	if snap.Users[0] != "alice" {
		t.Fatalf("unexpected snapshot after disconnect: %v", snap.Users)
	}
}

func TestWebSocketMalformedFrameGetsErrorFrame(t *testing.T) {
	env := startTestServer(t)
	aliceToken := registerUser(t, env, "alice")
	roomToken := createRoomForWS(t, env, aliceToken)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(env, roomToken, aliceToken), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := conn.Write(ctx, websocket.MessageText, []byte("{broken")); err != nil {
		t.Fatalf("write: %v", err)
	}

	frame := awaitFrame(t, ctx, conn, func(f wireFrame) bool { return f.Type == "error" })
	if frame.Message != "invalid message format" {
		t.Fatalf("unexpected error frame: %+v", frame)
	}

	// The connection survives the bad frame.
	if err := wsjson.Write(ctx, conn, map[string]string{"type": "chat_message", "message": "still here"}); err != nil {
		t.Fatalf("write after error: %v", err)
	}
	awaitFrame(t, ctx, conn, func(f wireFrame) bool {
		return f.Type == "chat_message" && f.Message == "still here"
	})
}

func TestWebSocketClosesUnauthenticated(t *testing.T) {
	env := startTestServer(t)
	aliceToken := registerUser(t, env, "alice")
	roomToken := createRoomForWS(t, env, aliceToken)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(env, roomToken, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	_, _, err = conn.Read(ctx)
	if err == nil {
		t.Fatalf("expected close, got frame")
	}
	if status := websocket.CloseStatus(err); status != StatusUnauthenticated {
		t.Fatalf("close status = %d, want %d", status, StatusUnauthenticated)
	}
}

func TestWebSocketClosesUnknownRoom(t *testing.T) {
	env := startTestServer(t)
	aliceToken := registerUser(t, env, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(env, "zzzzzzzzzz", aliceToken), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	_, _, err = conn.Read(ctx)
	if err == nil {
		t.Fatalf("expected close, got frame")
	}
	if status := websocket.CloseStatus(err); status != StatusRoomNotFound {
		t.Fatalf("close status = %d, want %d", status, StatusRoomNotFound)
	}
}

func TestExternalSystemEventReachesLiveConnection(t *testing.T) {
	env := startTestServer(t)
	aliceToken := registerUser(t, env, "alice")
	roomToken := createRoomForWS(t, env, aliceToken)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(env, roomToken, aliceToken), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	awaitFrame(t, ctx, conn, func(f wireFrame) bool { return f.Type == "online_users" })

	room, err := env.store.GetRoomByToken(ctx, roomToken)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if err := env.chatService.BroadcastSystemEvent(ctx, room, "bob joined the group."); err != nil {
		t.Fatalf("broadcast system event: %v", err)
	}

	frame := awaitFrame(t, ctx, conn, func(f wireFrame) bool { return f.Type == "system_message" })
	if frame.Message != "bob joined the group." {
		t.Fatalf("unexpected system frame: %+v", frame)
	}

	// Stored exactly once.
	msgs, err := env.store.ListMessagesSince(ctx, room.ID, time.Time{})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	stored := 0
	for _, msg := range msgs {
		if msg.IsSystem && msg.Body == "bob joined the group." {
			stored++
		}
	}
	if stored != 1 {
		t.Fatalf("expected one stored system message, got %d", stored)
	}
}

// TestWebSocketSecondTabKeepsPresence covers the multi-tab policy: a user
// with two connections stays online until the last one closes.
func TestWebSocketSecondTabKeepsPresence(t *testing.T) {
	env := startTestServer(t)
	aliceToken := registerUser(t, env, "alice")
	bobToken := registerUser(t, env, "bob")
	roomToken := createRoomForWS(t, env, aliceToken)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA, _, err := websocket.Dial(ctx, wsURL(env, roomToken, aliceToken), nil)
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	defer connA.Close(websocket.StatusNormalClosure, "done")

	tab1, _, err := websocket.Dial(ctx, wsURL(env, roomToken, bobToken), nil)
	if err != nil {
		t.Fatalf("dial bob tab1: %v", err)
	}
	defer tab1.Close(websocket.StatusNormalClosure, "done")
	tab2, _, err := websocket.Dial(ctx, wsURL(env, roomToken, bobToken), nil)
	if err != nil {
		t.Fatalf("dial bob tab2: %v", err)
	}
	defer tab2.Close(websocket.StatusNormalClosure, "done")

	// Each tab connect publishes a snapshot; drain both before acting.
	for i := 0; i < 2; i++ {
		awaitFrame(t, ctx, connA, func(f wireFrame) bool {
			return f.Type == "online_users" && len(f.Users) == 2
		})
	}

	// Closing one of bob's tabs must not remove him.
	tab2.Close(websocket.StatusNormalClosure, "closing tab")
	snap := awaitFrame(t, ctx, connA, func(f wireFrame) bool { return f.Type == "online_users" })
	if len(snap.Users) != 2 {
		t.Fatalf("bob should remain present with one open tab: %v", snap.Users)
	}

	tab1.Close(websocket.StatusNormalClosure, "closing last tab")
	awaitFrame(t, ctx, connA, func(f wireFrame) bool {
		return f.Type == "online_users" && len(f.Users) == 1 && f.Users[0] == "alice"
	})
}
