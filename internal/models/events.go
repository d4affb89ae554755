package models

// ClientEvent represents an event sent from the client to the server.
type ClientEvent struct {
	Type   ClientEventType `json:"type"`
	ChatID string          `json:"chatId"`
}

// ServerEvent represents an event sent to the client.
type ServerEvent struct {
	Type      ServerEventType `json:"type"`
	UserID    string          `json:"userId,omitempty"`
	ChatID    string          `json:"chatId,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"` // Unix milliseconds
	Message   *Message        `json:"message,omitempty"`
	Error     *EventError     `json:"error,omitempty"`
}

// RoomScoped reports whether the event belongs to a single chat room.
func (e ServerEvent) RoomScoped() bool {
	switch e.Type {
	case ServerEventChatMessage, ServerEventUserJoined, ServerEventUserLeft,
		ServerEventUserTyping, ServerEventUserStoppedTyping:
		return true
	}
	return false
}

// EventChatID returns the chat id of the event, looking into the
// message payload for chatMessage events.
func (e ServerEvent) EventChatID() string {
	if e.Message != nil {
		return e.Message.ChatID
	}
	return e.ChatID
}

type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ClientEventType string

const (
	ClientEventJoinChat    ClientEventType = "join-chat"
	ClientEventLeaveChat   ClientEventType = "leave-chat"
	ClientEventTypingStart ClientEventType = "typing-start"
	ClientEventTypingStop  ClientEventType = "typing-stop"
)

type ServerEventType string

const (
	ServerEventChatMessage       ServerEventType = "chatMessage"
	ServerEventUserJoined        ServerEventType = "user-joined"
	ServerEventUserLeft          ServerEventType = "user-left"
	ServerEventUserTyping        ServerEventType = "user-typing"
	ServerEventUserStoppedTyping ServerEventType = "user-stopped-typing"
	ServerEventUserOnline        ServerEventType = "user-online"
	ServerEventUserOffline       ServerEventType = "user-offline"
	ServerEventError             ServerEventType = "error"
)

const ErrorCodeProtocol = "protocol"
