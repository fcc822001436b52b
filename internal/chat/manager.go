package chat

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Hoangbim/streamcast/internal/domain"
	"github.com/Hoangbim/streamcast/internal/metrics"
)

// Manager tracks live rooms by stream name. Rooms remove themselves when
// their last member leaves, so Join retries when it loses that race.
type Manager struct {
	history    domain.ChatHistory
	historyCap int
	clock      clockwork.Clock
	logger     *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewManager(history domain.ChatHistory, historyCap int, clock clockwork.Clock) *Manager {
	return &Manager{
		history:    history,
		historyCap: historyCap,
		clock:      clock,
		logger:     slog.With("component", "chat_manager"),
		rooms:      make(map[string]*Room),
	}
}

// Join puts a member into the named room, creating the room on first
// reference. A room that empties out between lookup and join is rebuilt.
func (m *Manager) Join(roomName string, transport domain.ClientTransport) (*Room, uuid.UUID, error) {
	for {
		room := m.getOrCreate(roomName)
		id, err := room.Join(transport)
		if errors.Is(err, domain.ErrRoomStopped) {
			continue
		}
		return room, id, err
	}
}

func (m *Manager) getOrCreate(name string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[name]; ok {
		return room
	}
	room := NewRoom(name, m.history, m.historyCap, m.clock, m.removeRoom)
	m.rooms[name] = room
	metrics.ChatActiveRooms.Set(float64(len(m.rooms)))
	m.logger.Info("chat room created", "room", name)
	return room
}

// removeRoom runs on the room's actor goroutine when its last member leaves.
// The identity check keeps it from deleting a newer room under the same name.
func (m *Manager) removeRoom(room *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.rooms[room.name]; ok && current == room {
		delete(m.rooms, room.name)
		metrics.ChatActiveRooms.Set(float64(len(m.rooms)))
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// StopAll disconnects every member of every room. Used at shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for name, room := range m.rooms {
		rooms = append(rooms, room)
		delete(m.rooms, name)
	}
	metrics.ChatActiveRooms.Set(0)
	m.mu.Unlock()

	for _, room := range rooms {
		room.Stop()
	}
	if len(rooms) > 0 {
		m.logger.Info("all chat rooms stopped", "count", len(rooms))
	}
}
