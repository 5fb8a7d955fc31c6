package chat

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID         uuid.UUID  `json:"id"`
	PlaybookID uuid.UUID  `json:"playbook_id"`
	UserID     uuid.UUID  `json:"user_id"`
	Username   string     `json:"username"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
}

func (m *Message) clone() *Message {
	c := *m
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	return &c
}

// Author identifies who sends a message or a typing signal.
type Author struct {
	ID       uuid.UUID
	Username string
}

type SendInput struct {
	Message string `json:"message" validate:"required,max=4000"`
}

type EventType string

const (
	EventHistory        EventType = "history"
	EventMessageCreated EventType = "message.created"
	EventMessageUpdated EventType = "message.updated"
	EventMessageDeleted EventType = "message.deleted"
	EventTyping         EventType = "typing"
	EventError          EventType = "error"
)

// Event is the JSON pushed to websocket clients and carried over Redis.
type Event struct {
	Type       EventType  `json:"type"`
	PlaybookID uuid.UUID  `json:"playbook_id"`
	Message    *Message   `json:"message,omitempty"`
	Messages   []*Message `json:"messages,omitempty"`
	MessageID  uuid.UUID  `json:"message_id,omitzero"`
	UserID     uuid.UUID  `json:"user_id,omitzero"`
	Username   string     `json:"username,omitempty"`
	Error      string     `json:"error,omitempty"`
	At         time.Time  `json:"at"`
}

// BroadcastMessage pipes a Redis payload to the hub for one playbook room.
type BroadcastMessage struct {
	PlaybookID uuid.UUID
	Payload    []byte
}

// WSMessage is what a browser sends over the socket.
type WSMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
