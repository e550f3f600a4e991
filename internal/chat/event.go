package chat

// Outbound frame type tags.
const (
	frameChatMessage = "chat_message"
	frameOnlineUsers = "online_users"
	frameSystem      = "system_message"
	frameError       = "error"
)

// Event is an outbound notification delivered to sessions in a room.
// The variant set is closed: ChatMessage, OnlineUsers, SystemMessage and
// ErrorEvent are the only shapes the server emits, and each renders its
// own wire frame.
type Event interface {
	// Frame renders the event to its JSON-serializable wire shape.
	Frame() any
}

type chatMessageFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

type onlineUsersFrame struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

type systemMessageFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ChatMessage is a user message fanned out to the room. Stamp is the
// HH:MM label rendered at send time; it is not the stored timestamp.
type ChatMessage struct {
	Username string
	Body     string
	Stamp    string
}

// Frame renders the chat_message wire shape.
func (e ChatMessage) Frame() any {
	return chatMessageFrame{
		Type:      frameChatMessage,
		Message:   e.Body,
		Username:  e.Username,
		Timestamp: e.Stamp,
	}
}

// OnlineUsers is a full presence snapshot for the room.
type OnlineUsers struct {
	Users []string
}

// Frame renders the online_users wire shape. An empty room serializes as
// [] rather than null; clients iterate the list blindly.
func (e OnlineUsers) Frame() any {
	users := e.Users
	if users == nil {
		users = []string{}
	}
	return onlineUsersFrame{Type: frameOnlineUsers, Users: users}
}

// SystemMessage is a lifecycle notice not authored by any user.
type SystemMessage struct {
	Body string
}

// Frame renders the system_message wire shape.
func (e SystemMessage) Frame() any {
	return systemMessageFrame{Type: frameSystem, Message: e.Body}
}

// ErrorEvent reports a protocol error to a single client. It is never
// published to a room.
type ErrorEvent struct {
	Msg string
}

// Frame renders the error wire shape.
func (e ErrorEvent) Frame() any {
	return errorFrame{Type: frameError, Message: e.Msg}
}

// inboundFrame is the only accepted client frame. Unknown fields are
// ignored by encoding/json.
type inboundFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
