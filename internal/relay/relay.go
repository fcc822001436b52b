package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Hoangbim/streamcast/internal/domain"
	"github.com/Hoangbim/streamcast/internal/fanout"
	"github.com/Hoangbim/streamcast/internal/metrics"
)

const (
	heartbeatInterval = 3 * time.Second
	reconnectDelay    = 5 * time.Second
)

// linkState tracks the upstream connection lifecycle.
type linkState int

const (
	linkDisconnected linkState = iota
	linkConnecting
	linkConnected
)

func (s linkState) String() string {
	switch s {
	case linkConnecting:
		return "connecting"
	case linkConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// relayCmd is the command interface for the Relay actor.
type relayCmd interface{ isRelayCmd() }

type baseRelayCmd struct{}

func (baseRelayCmd) isRelayCmd() {}

type joinCmd struct {
	baseRelayCmd
	transport domain.ClientTransport
	replyCh   chan uuid.UUID
}

type leaveCmd struct {
	baseRelayCmd
	clientID uuid.UUID
}

type snapshotCmd struct {
	baseRelayCmd
	replyCh chan domain.StreamSnapshot
}

type stopCmd struct{ baseRelayCmd }

// Events from the dial and read goroutines re-enter the actor through the
// same command channel. They carry the link generation they belong to; the
// actor drops events from superseded generations.
type dialResultCmd struct {
	baseRelayCmd
	gen  uint64
	conn domain.UpstreamConn
	err  error
}

type frameCmd struct {
	baseRelayCmd
	gen   uint64
	frame []byte
}

type upstreamClosedCmd struct {
	baseRelayCmd
	gen uint64
	err error
}

// Relay is the per-stream actor. It owns the viewer registry, the single
// upstream connection, the init-frame cache, and both timers. All of that
// state is confined to the run goroutine; the exported methods post commands
// and never touch it directly.
type Relay struct {
	streamID     string
	upstreamAddr string
	dialer       domain.UpstreamDialer
	clock        clockwork.Clock
	logger       *slog.Logger
	onFirst      func(streamID string)
	onEmpty      func(streamID string)

	cmdCh chan relayCmd
	done  chan struct{}

	// Owned by run() and its handlers.
	registry   *fanout.Registry
	dispatcher *fanout.Dispatcher
	cache      *initCache

	state          linkState
	upstream       domain.UpstreamConn
	linkGen        uint64
	dialCancel     context.CancelFunc
	reconnectTimer clockwork.Timer
	heartbeat      clockwork.Ticker
}

// New builds the relay for one stream and starts its actor goroutine. The
// upstream address is final for the life of the instance. onFirst fires on
// every empty-to-non-empty registry transition, onEmpty on the reverse one.
// Both run on the actor goroutine, strictly ordered with the joins and leaves
// that caused them; they must return promptly and must not call back into
// this relay.
func New(streamID, upstreamAddr string, dialer domain.UpstreamDialer, clock clockwork.Clock, onFirst, onEmpty func(streamID string)) *Relay {
	registry := fanout.NewRegistry()
	r := &Relay{
		streamID:     streamID,
		upstreamAddr: upstreamAddr,
		dialer:       dialer,
		clock:        clock,
		logger:       slog.With("stream_id", streamID),
		onFirst:      onFirst,
		onEmpty:      onEmpty,
		cmdCh:        make(chan relayCmd, 256),
		done:         make(chan struct{}),
		registry:     registry,
		dispatcher:   fanout.NewDispatcher(registry),
		cache:        newInitCache(),
	}
	go r.run()
	return r
}

// StreamID returns the stream this relay serves.
func (r *Relay) StreamID() string { return r.streamID }

// AcceptViewer registers a viewer transport and returns its client id. The
// first viewer triggers the upstream connect and starts the heartbeat; later
// viewers get the cached init frames when the link is already up. Returns
// ErrRelayStopped once the relay has shut down.
func (r *Relay) AcceptViewer(transport domain.ClientTransport) (uuid.UUID, error) {
	replyCh := make(chan uuid.UUID, 1)
	select {
	case r.cmdCh <- joinCmd{transport: transport, replyCh: replyCh}:
	case <-r.done:
		return uuid.Nil, domain.ErrRelayStopped
	}
	select {
	case id := <-replyCh:
		return id, nil
	case <-r.done:
		// The actor may have replied just before stopping. A join that was
		// processed counts; the stop closes the viewer right after.
		select {
		case id := <-replyCh:
			return id, nil
		default:
			return uuid.Nil, domain.ErrRelayStopped
		}
	}
}

// HandleViewerClosed removes a viewer. Calling it twice with the same id, or
// after the relay stopped, is a no-op.
func (r *Relay) HandleViewerClosed(clientID uuid.UUID) {
	select {
	case r.cmdCh <- leaveCmd{clientID: clientID}:
	case <-r.done:
	}
}

// HealthSnapshot reports the current stream state. Pure read, no side
// effects.
func (r *Relay) HealthSnapshot() domain.StreamSnapshot {
	replyCh := make(chan domain.StreamSnapshot, 1)
	select {
	case r.cmdCh <- snapshotCmd{replyCh: replyCh}:
	case <-r.done:
		return domain.StreamSnapshot{StreamID: r.streamID}
	}
	select {
	case snap := <-replyCh:
		return snap
	case <-r.done:
		return domain.StreamSnapshot{StreamID: r.streamID}
	}
}

// Stop disconnects every viewer, tears down the upstream link, and waits for
// the actor goroutine to exit. Idempotent.
func (r *Relay) Stop() {
	select {
	case r.cmdCh <- stopCmd{}:
	case <-r.done:
		return
	}
	<-r.done
}

func (r *Relay) run() {
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("relay actor panic recovered", "panic", rec)
			metrics.RelayPanicsTotal.Inc()
			r.handleStop()
		}
	}()

	for {
		// Unarmed timers select on nil channels, which never fire.
		var reconnectCh, heartbeatCh <-chan time.Time
		if r.reconnectTimer != nil {
			reconnectCh = r.reconnectTimer.Chan()
		}
		if r.heartbeat != nil {
			heartbeatCh = r.heartbeat.Chan()
		}

		select {
		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case joinCmd:
				r.handleJoin(c)
			case leaveCmd:
				r.handleLeave(c)
			case snapshotCmd:
				c.replyCh <- domain.StreamSnapshot{
					StreamID:       r.streamID,
					ClientCount:    r.registry.Size(),
					ConnectedToSFU: r.state == linkConnected,
				}
			case dialResultCmd:
				r.handleDialResult(c)
			case frameCmd:
				r.handleFrame(c)
			case upstreamClosedCmd:
				r.handleUpstreamClosed(c)
			case stopCmd:
				r.handleStop()
				return
			}
		case <-reconnectCh:
			r.reconnectTimer = nil
			metrics.RelayUpstreamReconnectsTotal.Inc()
			r.logger.Info("retrying upstream connection", "address", r.upstreamAddr)
			r.connect()
		case <-heartbeatCh:
			r.emitHeartbeat()
		}
	}
}

// post delivers an event from a dial or read goroutine back into the actor.
// Reports false once the relay has stopped and the event was discarded.
func (r *Relay) post(cmd relayCmd) bool {
	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *Relay) handleJoin(c joinCmd) {
	id := uuid.New()
	first := r.registry.Size() == 0
	r.registry.Add(id, c.transport)
	metrics.RelayConnectedViewers.Inc()
	r.logger.Info("viewer joined", "client_id", id.String(), "viewers", r.registry.Size())

	r.sendStatusTo(id, c.transport, "joined stream "+r.streamID)
	if _, alive := r.registry.Get(id); !alive {
		// The greeting already failed; the viewer is gone.
		c.replyCh <- id
		return
	}

	if first {
		if r.onFirst != nil {
			r.onFirst(r.streamID)
		}
		r.startHeartbeat()
		// The registry was empty until now, so the link is down by invariant.
		r.connect()
	} else if r.state == linkConnected && r.cache.Complete() {
		r.replayInitFrames(id, c.transport)
	}

	c.replyCh <- id
}

func (r *Relay) handleLeave(c leaveCmd) {
	transport, ok := r.registry.Get(c.clientID)
	if !ok {
		return
	}
	r.registry.Remove(c.clientID)
	transport.Close("viewer closed")
	metrics.RelayConnectedViewers.Dec()
	r.logger.Debug("viewer left", "client_id", c.clientID.String(), "viewers", r.registry.Size())
	if r.registry.Size() == 0 {
		r.handleRegistryEmpty()
	}
}

// handleRegistryEmpty tears down everything tied to viewer interest. The init
// cache survives on purpose: a rejoin within this instance's lifetime must
// not re-cache frames.
func (r *Relay) handleRegistryEmpty() {
	r.teardownLink()
	r.stopHeartbeat()
	r.logger.Info("last viewer left, upstream released")
	if r.onEmpty != nil {
		r.onEmpty(r.streamID)
	}
}

// connect opens the upstream link asynchronously. Cancels any pending
// reconnect timer first; at most one live dial exists per generation.
func (r *Relay) connect() {
	r.cancelReconnectTimer()
	r.state = linkConnecting
	r.linkGen++
	gen := r.linkGen

	ctx, cancel := context.WithCancel(context.Background())
	r.dialCancel = cancel

	r.logger.Info("connecting to upstream", "address", r.upstreamAddr)
	go func() {
		conn, err := r.dialer.DialUpstream(ctx, r.upstreamAddr)
		if !r.post(dialResultCmd{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (r *Relay) handleDialResult(c dialResultCmd) {
	if c.gen != r.linkGen || r.state != linkConnecting {
		// Superseded attempt; release the connection if one was opened.
		if c.conn != nil {
			_ = c.conn.Close()
		}
		return
	}
	r.dialCancel = nil

	if c.err != nil {
		metrics.RelayUpstreamConnectsTotal.WithLabelValues("error").Inc()
		r.logger.Warn("upstream connect failed", "address", r.upstreamAddr, "error", c.err)
		r.state = linkDisconnected
		r.scheduleReconnect()
		return
	}

	r.state = linkConnected
	r.upstream = c.conn
	metrics.RelayUpstreamConnectsTotal.WithLabelValues("ok").Inc()
	r.logger.Info("connected to upstream", "address", r.upstreamAddr)
	r.broadcastStatus("connected to stream source")
	if r.state != linkConnected {
		// Every viewer died during the announce and the link was torn down.
		return
	}
	r.startReadPump(c.conn, c.gen)
}

// startReadPump drains upstream frames into the actor loop until the
// connection dies. Close and error are reported identically.
func (r *Relay) startReadPump(conn domain.UpstreamConn, gen uint64) {
	go func() {
		for {
			frame, err := conn.ReadFrame()
			if err != nil {
				r.post(upstreamClosedCmd{gen: gen, err: err})
				return
			}
			if !r.post(frameCmd{gen: gen, frame: frame}) {
				return
			}
		}
	}()
}

func (r *Relay) handleFrame(c frameCmd) {
	if c.gen != r.linkGen || r.state != linkConnected {
		return
	}

	if kind, ok := domain.FrameKindOf(c.frame); ok {
		if r.cache.Store(kind, c.frame) {
			metrics.RelayInitFramesCachedTotal.WithLabelValues(kind.String()).Inc()
			r.logger.Info("cached init frame", "kind", kind.String(), "bytes", len(c.frame))
			r.broadcastStatus("received " + kind.String() + " codec information")
		}
	}

	// Frames reach viewers verbatim and in arrival order, cached or not.
	start := r.clock.Now()
	evicted := r.dispatcher.BroadcastBinary(c.frame)
	metrics.RelayFramesForwardedTotal.Inc()
	metrics.RelayBroadcastDuration.Observe(r.clock.Since(start).Seconds())
	r.afterBroadcast(evicted)
}

func (r *Relay) handleUpstreamClosed(c upstreamClosedCmd) {
	if c.gen != r.linkGen || r.state != linkConnected {
		return
	}
	_ = r.upstream.Close()
	r.upstream = nil
	r.state = linkDisconnected
	r.logger.Warn("upstream connection lost", "address", r.upstreamAddr, "error", c.err)
	r.broadcastStatus("disconnected from stream source")
	r.scheduleReconnect()
}

// scheduleReconnect arms the fixed-delay retry. Armed only while at least one
// viewer is registered and no timer is already pending; retries forever, no
// backoff.
func (r *Relay) scheduleReconnect() {
	if r.registry.Size() == 0 || r.reconnectTimer != nil {
		return
	}
	r.reconnectTimer = r.clock.NewTimer(reconnectDelay)
}

func (r *Relay) cancelReconnectTimer() {
	if r.reconnectTimer != nil {
		r.reconnectTimer.Stop()
		r.reconnectTimer = nil
	}
}

// teardownLink closes the upstream connection and invalidates in-flight dial
// and read goroutines by advancing the link generation.
func (r *Relay) teardownLink() {
	r.linkGen++
	if r.dialCancel != nil {
		r.dialCancel()
		r.dialCancel = nil
	}
	if r.upstream != nil {
		_ = r.upstream.Close()
		r.upstream = nil
	}
	r.state = linkDisconnected
	r.cancelReconnectTimer()
}

// startHeartbeat arms the periodic status broadcast. Runs exactly on the
// empty-to-non-empty registry transition; later joins never re-arm it.
func (r *Relay) startHeartbeat() {
	r.heartbeat = r.clock.NewTicker(heartbeatInterval)
}

func (r *Relay) stopHeartbeat() {
	if r.heartbeat != nil {
		r.heartbeat.Stop()
		r.heartbeat = nil
	}
}

func (r *Relay) emitHeartbeat() {
	if r.state == linkConnected {
		r.broadcastStatus("connected, awaiting data")
		return
	}
	r.broadcastStatus("disconnected, retrying against " + r.upstreamAddr)
}

// broadcastStatus fans a status record out to every registered viewer.
func (r *Relay) broadcastStatus(message string) {
	msg := domain.NewStatusMessage(message, r.state == linkConnected, r.clock.Now())
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal status failed", "error", err)
		return
	}
	r.afterBroadcast(r.dispatcher.BroadcastText(data))
}

// sendStatusTo unicasts a status record to one viewer. A failed send drops
// that viewer, same as a failed broadcast would.
func (r *Relay) sendStatusTo(id uuid.UUID, transport domain.ClientTransport, message string) {
	msg := domain.NewStatusMessage(message, r.state == linkConnected, r.clock.Now())
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal status failed", "error", err)
		return
	}
	if err := transport.SendText(data); err != nil {
		r.dropViewer(id, transport, "send failed")
	}
}

// replayInitFrames unicasts the cached codec frames to one late joiner, in
// the order the slots were populated, so it can start decoding before the
// next natural keyframe arrives.
func (r *Relay) replayInitFrames(id uuid.UUID, transport domain.ClientTransport) {
	for _, frame := range r.cache.Frames() {
		if err := transport.SendBinary(frame); err != nil {
			r.dropViewer(id, transport, "send failed")
			return
		}
	}
	r.logger.Debug("replayed init frames", "client_id", id.String())
}

// dropViewer evicts one viewer after a failed unicast send.
func (r *Relay) dropViewer(id uuid.UUID, transport domain.ClientTransport, reason string) {
	if !r.registry.Remove(id) {
		return
	}
	transport.Close(reason)
	metrics.RelayConnectedViewers.Dec()
	metrics.RelaySlowViewersEvicted.Inc()
	r.logger.Warn("evicting viewer", "client_id", id.String(), "reason", reason)
	if r.registry.Size() == 0 {
		r.handleRegistryEmpty()
	}
}

// afterBroadcast accounts for viewers the dispatcher evicted and runs the
// empty-registry teardown when the last one went with them.
func (r *Relay) afterBroadcast(evicted []uuid.UUID) {
	if len(evicted) == 0 {
		return
	}
	for _, id := range evicted {
		metrics.RelayConnectedViewers.Dec()
		metrics.RelaySlowViewersEvicted.Inc()
		r.logger.Warn("evicting viewer", "client_id", id.String(), "reason", "send failed")
	}
	if r.registry.Size() == 0 {
		r.handleRegistryEmpty()
	}
}

func (r *Relay) handleStop() {
	r.teardownLink()
	r.stopHeartbeat()

	disconnected := 0
	r.registry.ForEach(func(id uuid.UUID, transport domain.ClientTransport) {
		r.registry.Remove(id)
		transport.Close("stream shutting down")
		disconnected++
	})
	if disconnected > 0 {
		metrics.RelayConnectedViewers.Sub(float64(disconnected))
	}
	r.logger.Info("relay stopped", "viewers_disconnected", disconnected)
}
