package domain

import (
	"context"
	"time"
)

// --- Chat wire records ---

// ChatMessage is one chat-room event as delivered to room members and as
// persisted in history. Notices (joins, leaves) carry no sender.
type ChatMessage struct {
	Type      string `json:"type"`
	Sender    string `json:"sender,omitempty"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewChatMessage builds a chat record stamped with now in RFC 3339 UTC.
func NewChatMessage(sender, text string, now time.Time) ChatMessage {
	return ChatMessage{
		Type:      "chat",
		Sender:    sender,
		Text:      text,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// NewChatNotice builds a sender-less room notice (member joined/left).
func NewChatNotice(text string, now time.Time) ChatMessage {
	return ChatMessage{
		Type:      "notice",
		Text:      text,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// ChatInbound is the only payload accepted from room members. Anything that
// does not decode into this shape is dropped by the room.
type ChatInbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// --- History ---

// ChatHistory persists per-room message history, capped per room. Recent
// returns the newest messages in chronological (oldest-first) order.
type ChatHistory interface {
	Append(ctx context.Context, room string, msg ChatMessage) error
	Recent(ctx context.Context, room string, limit int) ([]ChatMessage, error)
}
