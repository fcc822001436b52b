package chat

import (
	"context"
	"sync"

	"github.com/Hoangbim/streamcast/internal/domain"
)

// MemoryHistory is the in-process domain.ChatHistory used when no redis is
// configured. Retention matches the redis store: the newest capacity entries
// per room.
type MemoryHistory struct {
	capacity int

	mu    sync.Mutex
	rooms map[string][]domain.ChatMessage
}

func NewMemoryHistory(capacity int) *MemoryHistory {
	return &MemoryHistory{
		capacity: capacity,
		rooms:    make(map[string][]domain.ChatMessage),
	}
}

func (h *MemoryHistory) Append(_ context.Context, room string, msg domain.ChatMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := append(h.rooms[room], msg)
	if len(msgs) > h.capacity {
		msgs = msgs[len(msgs)-h.capacity:]
	}
	h.rooms[room] = msgs
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.rooms[room]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}
