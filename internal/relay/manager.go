package relay

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Hoangbim/streamcast/internal/domain"
	"github.com/Hoangbim/streamcast/internal/metrics"
)

// consumePath is the upstream route every stream is consumed from.
const consumePath = "/consume/"

// idleWatch is one armed eviction timer. cancelled flips under the manager
// mutex so a callback that already fired can tell it lost the race.
type idleWatch struct {
	timer     clockwork.Timer
	cancelled bool
}

// Manager maps stream names to their relay instance, process-wide. A name
// resolves to the same instance until that instance has sat idle with zero
// viewers for idleTTL and been evicted; the next reference builds a fresh
// one. Eviction is driven purely by watch bookkeeping: a watch is armed when
// an instance is created or goes empty and cancelled when a viewer shows up,
// so the manager never has to query the actor while holding its own lock.
type Manager struct {
	baseURL string
	dialer  domain.UpstreamDialer
	clock   clockwork.Clock
	idleTTL time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	streams map[string]*Relay
	idle    map[string]*idleWatch
}

// NewManager builds the stream lookup. baseURL is the upstream server's ws
// address; each relay consumes from baseURL + "/consume/" + its stream id.
func NewManager(baseURL string, dialer domain.UpstreamDialer, clock clockwork.Clock, idleTTL time.Duration) *Manager {
	return &Manager{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer:  dialer,
		clock:   clock,
		idleTTL: idleTTL,
		logger:  slog.With("component", "relay_manager"),
		streams: make(map[string]*Relay),
		idle:    make(map[string]*idleWatch),
	}
}

// GetOrCreate returns the relay serving streamID, building it on first
// reference. Touching an existing instance cancels any pending idle
// eviction; a new instance starts with the eviction watch armed until its
// first viewer actually joins.
func (m *Manager) GetOrCreate(streamID string) *Relay {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.streams[streamID]; ok {
		m.cancelIdleLocked(streamID)
		return r
	}

	r := New(streamID, m.baseURL+consumePath+streamID, m.dialer, m.clock, m.onRelayActive, m.onRelayEmpty)
	m.streams[streamID] = r
	m.armIdleLocked(streamID)
	metrics.RelayActiveStreams.Set(float64(len(m.streams)))
	m.logger.Info("stream relay created", "stream_id", streamID, "upstream", r.upstreamAddr)
	return r
}

// Get returns the relay for streamID without creating one.
func (m *Manager) Get(streamID string) (*Relay, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.streams[streamID]
	return r, ok
}

// Count returns the number of live relay instances.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// onRelayActive runs on a relay's actor goroutine when its first viewer
// joins. Viewer interest is back, so the eviction watch comes down.
func (m *Manager) onRelayActive(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelIdleLocked(streamID)
}

// onRelayEmpty runs on a relay's actor goroutine when its last viewer
// leaves. A rejoin before the watch fires keeps the instance, init-frame
// cache and all.
func (m *Manager) onRelayEmpty(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[streamID]; !ok {
		return
	}
	m.armIdleLocked(streamID)
	m.logger.Debug("stream idle, eviction armed", "stream_id", streamID, "ttl", m.idleTTL)
}

func (m *Manager) armIdleLocked(streamID string) {
	m.cancelIdleLocked(streamID)
	watch := &idleWatch{}
	watch.timer = m.clock.AfterFunc(m.idleTTL, func() { m.evictIfIdle(streamID, watch) })
	m.idle[streamID] = watch
}

func (m *Manager) cancelIdleLocked(streamID string) {
	if watch, ok := m.idle[streamID]; ok {
		watch.cancelled = true
		watch.timer.Stop()
		delete(m.idle, streamID)
	}
}

func (m *Manager) evictIfIdle(streamID string, watch *idleWatch) {
	m.mu.Lock()
	if watch.cancelled {
		m.mu.Unlock()
		return
	}
	delete(m.idle, streamID)

	r, ok := m.streams[streamID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.streams, streamID)
	metrics.RelayActiveStreams.Set(float64(len(m.streams)))
	m.mu.Unlock()

	// Stop outside the lock: the actor's callbacks take it.
	r.Stop()
	metrics.RelayInstancesEvictedTotal.Inc()
	m.logger.Info("idle stream relay evicted", "stream_id", streamID)
}

// StopAll evicts every relay instance. Used at shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for id, watch := range m.idle {
		watch.cancelled = true
		watch.timer.Stop()
		delete(m.idle, id)
	}
	relays := make([]*Relay, 0, len(m.streams))
	for id, r := range m.streams {
		relays = append(relays, r)
		delete(m.streams, id)
	}
	metrics.RelayActiveStreams.Set(0)
	m.mu.Unlock()

	for _, r := range relays {
		r.Stop()
	}
	m.logger.Info("all stream relays stopped", "count", len(relays))
}
