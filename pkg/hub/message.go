// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
//
// Haven uses it to fan persisted conversation turns out to connected
// supervisors (therapists and admins watching client conversations).
package hub

import (
	"encoding/json"
	"time"
)

// Message represents a JSON message to be broadcast to clients.
type Message struct {
	Data []byte
}

// NewMessage creates a message from pre-encoded JSON bytes.
func NewMessage(data []byte) Message {
	return Message{Data: data}
}

// TurnEvent is the supervision payload broadcast for every persisted
// conversation turn.
type TurnEvent struct {
	Event     string    `json:"event"`
	TurnID    int64     `json:"turn_id"`
	UserID    int64     `json:"user_id"`
	UserEmail string    `json:"user_email,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	VoiceURL  string    `json:"voice_url,omitempty"`
	Flagged   bool      `json:"flagged"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurnEvent builds a supervision event for a persisted turn.
func NewTurnEvent(turnID, userID int64, email, role, content string, flagged bool) TurnEvent {
	return TurnEvent{
		Event:     "turn",
		TurnID:    turnID,
		UserID:    userID,
		UserEmail: email,
		Role:      role,
		Content:   content,
		Flagged:   flagged,
		Timestamp: time.Now().UTC(),
	}
}

// Encode marshals the event for broadcast.
func (e TurnEvent) Encode() (Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Message{}, err
	}
	return NewMessage(data), nil
}
