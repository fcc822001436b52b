package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Hoangbim/streamcast/internal/domain"
)

// HistoryStore persists chat history as one capped list per room.
type HistoryStore struct {
	rdb      *goredis.Client
	capacity int
}

var _ domain.ChatHistory = (*HistoryStore)(nil)

func NewHistoryStore(rdb *goredis.Client, capacity int) *HistoryStore {
	return &HistoryStore{rdb: rdb, capacity: capacity}
}

// Append stores one message and drops the oldest entries beyond capacity.
func (s *HistoryStore) Append(ctx context.Context, room string, msg domain.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	key := historyKey(room)
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.capacity), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append chat history: %w", err)
	}
	return nil
}

// Recent returns up to limit newest messages, oldest first.
func (s *HistoryStore) Recent(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > s.capacity {
		limit = s.capacity
	}

	raw, err := s.rdb.LRange(ctx, historyKey(room), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat history: %w", err)
	}

	msgs := make([]domain.ChatMessage, 0, len(raw))
	for _, entry := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			continue // skip corrupt entries rather than failing the replay
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func historyKey(room string) string {
	return "chat:history:" + room
}
