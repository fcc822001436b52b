package chat

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForRoomCount(m *Manager, want int) bool {
	for i := 0; i < 200; i++ {
		if m.Count() == want {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func TestManager_JoinCreatesAndReusesRooms(t *testing.T) {
	m := NewManager(NewMemoryHistory(100), 100, clockwork.NewFakeClockAt(testBase))
	t.Cleanup(m.StopAll)

	a, b := &fakeTransport{}, &fakeTransport{}
	roomA, idA, err := m.Join("alpha", a)
	require.NoError(t, err)
	roomA2, idB, err := m.Join("alpha", b)
	require.NoError(t, err)
	assert.Same(t, roomA, roomA2)
	assert.NotEqual(t, idA, idB)

	roomB, _, err := m.Join("bravo", &fakeTransport{})
	require.NoError(t, err)
	assert.NotSame(t, roomA, roomB)
	assert.Equal(t, 2, m.Count())
}

func TestManager_EmptyRoomRemovedHistorySurvives(t *testing.T) {
	history := NewMemoryHistory(100)
	m := NewManager(history, 100, clockwork.NewFakeClockAt(testBase))
	t.Cleanup(m.StopAll)

	a := &fakeTransport{}
	room, id, err := m.Join("alpha", a)
	require.NoError(t, err)
	room.HandleInbound(id, chatPayload("for the record"))
	require.True(t, a.waitForMessages(2))

	room.HandleMemberClosed(id)
	require.True(t, waitForRoomCount(m, 0))

	// The next join builds a fresh room over the same history.
	b := &fakeTransport{}
	room2, _, err := m.Join("alpha", b)
	require.NoError(t, err)
	assert.NotSame(t, room, room2)
	assert.Equal(t, 1, m.Count())

	msgs := b.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "for the record", msgs[0].Text)
	assert.Equal(t, "notice", msgs[1].Type)
}

func TestManager_StopAllDisconnectsEveryRoom(t *testing.T) {
	m := NewManager(NewMemoryHistory(100), 100, clockwork.NewFakeClockAt(testBase))

	a, b := &fakeTransport{}, &fakeTransport{}
	_, _, err := m.Join("alpha", a)
	require.NoError(t, err)
	_, _, err = m.Join("bravo", b)
	require.NoError(t, err)
	require.Equal(t, 2, m.Count())

	m.StopAll()

	assert.Equal(t, 0, m.Count())
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())

	// The manager keeps working after a shutdown cycle.
	c := &fakeTransport{}
	_, _, err = m.Join("alpha", c)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())
}
