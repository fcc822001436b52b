package server

import (
	"github.com/labstack/echo/v4"

	apperrors "github.com/Hoangbim/streamcast/internal/errors"
	"github.com/Hoangbim/streamcast/internal/version"
)

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(200, map[string]any{
		"status":         "ok",
		"uptime_seconds": s.clock.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleStreamHealth(c echo.Context) error {
	streamID := c.Param("stream")
	if err := validateStreamID(streamID); err != nil {
		return apperrors.ValidationError(err.Error())
	}

	// Health reads never create instances.
	instance, ok := s.relays.Get(streamID)
	if !ok {
		return apperrors.NotFoundError("stream not found").
			WithContext("stream_id", streamID)
	}

	snap := instance.HealthSnapshot()
	return c.JSON(200, map[string]any{
		"status":         "ok",
		"streamId":       snap.StreamID,
		"clientCount":    snap.ClientCount,
		"connectedToSFU": snap.ConnectedToSFU,
	})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(200, version.Get())
}
