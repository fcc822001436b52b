package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay Metrics
var (
	// RelayActiveStreams tracks the number of live relay instances
	RelayActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_streams",
			Help: "Number of live relay instances",
		},
	)

	// RelayConnectedViewers tracks connected viewers across all streams
	RelayConnectedViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected_viewers",
			Help: "Total connected viewers across all streams",
		},
	)

	// RelayFramesForwardedTotal tracks media frames fanned out to viewers
	RelayFramesForwardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_frames_forwarded_total",
			Help: "Total media frames forwarded from upstream to viewers",
		},
	)

	// RelayUpstreamConnectsTotal tracks upstream dial attempts by result
	RelayUpstreamConnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_upstream_connects_total",
			Help: "Upstream dial attempts by result (ok/error)",
		},
		[]string{"result"},
	)

	// RelayUpstreamReconnectsTotal tracks reconnect timer firings
	RelayUpstreamReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_upstream_reconnects_total",
			Help: "Total reconnect attempts scheduled after upstream loss",
		},
	)

	// RelayInitFramesCachedTotal tracks init frames cached by kind
	RelayInitFramesCachedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_init_frames_cached_total",
			Help: "Init frames cached by media kind (video/audio)",
		},
		[]string{"kind"},
	)

	// RelaySlowViewersEvicted tracks viewers dropped on send failure
	RelaySlowViewersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_slow_viewers_evicted_total",
			Help: "Viewers removed because a send failed or their buffer was full",
		},
	)

	// RelayBroadcastDuration tracks one fan-out pass over the registry
	RelayBroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_broadcast_duration_seconds",
			Help:    "Duration of one fan-out pass over all viewers of a stream",
			Buckets: []float64{.00001, .0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// RelayInstancesEvictedTotal tracks idle instances torn down by the manager
	RelayInstancesEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_instances_evicted_total",
			Help: "Relay instances evicted after sitting idle with zero viewers",
		},
	)

	// RelayPanicsTotal tracks panics recovered inside a relay actor loop
	RelayPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_panics_total",
			Help: "Panics recovered in relay actor goroutines",
		},
	)
)

// Chat Metrics
var (
	// ChatActiveRooms tracks the number of live chat rooms
	ChatActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_rooms",
			Help: "Number of live chat rooms",
		},
	)

	// ChatConnectedMembers tracks connected members across all rooms
	ChatConnectedMembers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_connected_members",
			Help: "Total connected members across all chat rooms",
		},
	)

	// ChatMessagesTotal tracks chat messages broadcast to rooms
	ChatMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total chat messages broadcast to rooms",
		},
	)

	// ChatHistoryErrorsTotal tracks history store failures by operation
	ChatHistoryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_history_errors_total",
			Help: "Chat history store failures by operation (append/recent)",
		},
		[]string{"operation"},
	)
)

// Redis Metrics
var (
	// RedisOpsTotal tracks Redis operations by command and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by command and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation duration by command
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks failed Redis connection attempts
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total failed Redis connection attempts",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketConnectionsCurrent tracks current active WebSocket connections
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of active WebSocket connections",
		},
	)

	// WebSocketMessageSendDuration tracks WebSocket message send duration
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// WebSocketPingFailures tracks WebSocket ping failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures (client not responding)",
		},
	)

	// WebSocketConnectionsRejected tracks rejected connection attempts by reason
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason (rate_limit/per_ip_limit/global_limit)",
		},
		[]string{"reason"},
	)

	// WebSocketConnectionCapacity tracks connection capacity utilization as percentage
	WebSocketConnectionCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connection_capacity_percent",
			Help: "Current WebSocket connection capacity utilization (0-100%)",
		},
	)
)
