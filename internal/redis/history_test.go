package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hoangbim/streamcast/internal/domain"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setupHistory(t *testing.T, capacity int) *HistoryStore {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()))

	return NewHistoryStore(client.Underlying(), capacity)
}

func seedMessage(i int) domain.ChatMessage {
	return domain.NewChatMessage("aabbccdd", fmt.Sprintf("m-%d", i), testBase.Add(time.Duration(i)*time.Second))
}

func TestHistoryStore_AppendAndRecentRoundTrip(t *testing.T) {
	store := setupHistory(t, 100)
	ctx := context.Background()

	want := make([]domain.ChatMessage, 3)
	for i := range want {
		want[i] = seedMessage(i)
		require.NoError(t, store.Append(ctx, "alpha", want[i]))
	}

	got, err := store.Recent(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHistoryStore_CapsPerRoom(t *testing.T) {
	store := setupHistory(t, 5)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		require.NoError(t, store.Append(ctx, "alpha", seedMessage(i)))
	}

	got, err := store.Recent(ctx, "alpha", 100)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "m-4", got[0].Text)
	assert.Equal(t, "m-8", got[4].Text)
}

func TestHistoryStore_LimitReturnsNewestOldestFirst(t *testing.T) {
	store := setupHistory(t, 100)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, store.Append(ctx, "alpha", seedMessage(i)))
	}

	got, err := store.Recent(ctx, "alpha", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m-4", got[0].Text)
	assert.Equal(t, "m-5", got[1].Text)
}

func TestHistoryStore_RoomsAreIsolated(t *testing.T) {
	store := setupHistory(t, 100)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "alpha", seedMessage(0)))
	require.NoError(t, store.Append(ctx, "bravo", seedMessage(1)))

	got, err := store.Recent(ctx, "alpha", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m-0", got[0].Text)
}

func TestHistoryStore_EmptyRoom(t *testing.T) {
	store := setupHistory(t, 100)

	got, err := store.Recent(context.Background(), "ghost", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistoryStore_SkipsCorruptEntries(t *testing.T) {
	store := setupHistory(t, 100)
	ctx := context.Background()

	require.NoError(t, store.rdb.RPush(ctx, historyKey("alpha"), "not json").Err())
	require.NoError(t, store.Append(ctx, "alpha", seedMessage(0)))

	got, err := store.Recent(ctx, "alpha", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m-0", got[0].Text)
}
