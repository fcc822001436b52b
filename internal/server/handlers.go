package server

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Hoangbim/streamcast/internal/domain"
	apperrors "github.com/Hoangbim/streamcast/internal/errors"
	"github.com/Hoangbim/streamcast/internal/metrics"
	"github.com/Hoangbim/streamcast/internal/relay"
)

const maxStreamIDLength = 128

// validateStreamID rejects ids the route layer would otherwise pass through.
// Identity is the raw path segment; no registration step exists.
func validateStreamID(id string) error {
	if id == "" {
		return errors.New("stream id must not be empty")
	}
	if len(id) > maxStreamIDLength {
		return fmt.Errorf("stream id exceeds %d characters", maxStreamIDLength)
	}
	return nil
}

// acquireConnSlot runs the admission tiers and keeps the capacity gauge
// current. On rejection it returns a capacity error carrying the limiting
// tier. Callers must Release through the returned func exactly once.
func (s *Server) acquireConnSlot(c echo.Context) (func(), *apperrors.Error) {
	ip := c.RealIP()
	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		return nil, apperrors.CapacityError("server at capacity").
			WithContext("reason", string(reason))
	}

	metrics.WebSocketConnectionsCurrent.Inc()
	metrics.WebSocketConnectionCapacity.Set(s.limits.global.capacityPct())

	return func() {
		s.limits.Release(ip)
		metrics.WebSocketConnectionsCurrent.Dec()
		metrics.WebSocketConnectionCapacity.Set(s.limits.global.capacityPct())
	}, nil
}

func (s *Server) handleViewerSocket(c echo.Context) error {
	streamID := c.Param("stream")
	if err := validateStreamID(streamID); err != nil {
		return apperrors.ValidationError(err.Error())
	}

	release, capErr := s.acquireConnSlot(c)
	if capErr != nil {
		return capErr
	}
	defer release()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	transport := newWSTransport(conn, s.clock)

	var (
		instance *relay.Relay
		clientID uuid.UUID
	)
	for {
		instance = s.relays.GetOrCreate(streamID)
		clientID, err = instance.AcceptViewer(transport)
		if !errors.Is(err, domain.ErrRelayStopped) {
			break
		}
		// Lost a race with idle eviction; the next lookup builds a fresh
		// instance.
	}
	if err != nil {
		transport.Close("stream unavailable")
		return nil
	}

	s.logger.DebugContext(c.Request().Context(), "viewer connected",
		"stream_id", streamID, "client_id", clientID)

	// Read pump. Viewers send nothing meaningful; reads only service the
	// keepalive deadline and detect disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	instance.HandleViewerClosed(clientID)
	transport.Close("viewer closed")

	return nil //nolint:nilerr // ReadMessage err is block-scoped; outer err is nil
}

func (s *Server) handleChatSocket(c echo.Context) error {
	streamID := c.Param("stream")
	if err := validateStreamID(streamID); err != nil {
		return apperrors.ValidationError(err.Error())
	}

	release, capErr := s.acquireConnSlot(c)
	if capErr != nil {
		return capErr
	}
	defer release()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	transport := newWSTransport(conn, s.clock)

	room, clientID, err := s.rooms.Join(streamID, transport)
	if err != nil {
		transport.Close("chat unavailable")
		return nil
	}

	s.logger.DebugContext(c.Request().Context(), "chat member connected",
		"room", streamID, "client_id", clientID)

	// Read pump. Text frames carry chat payloads; everything else only
	// services the keepalive deadline.
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType == websocket.TextMessage {
			room.HandleInbound(clientID, payload)
		}
	}

	room.HandleMemberClosed(clientID)
	transport.Close("member closed")

	return nil //nolint:nilerr // ReadMessage err is block-scoped; outer err is nil
}
