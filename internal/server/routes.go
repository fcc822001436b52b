package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/version", s.handleVersion)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Per-stream health read
	s.echo.GET("/api/streams/:stream/health", s.handleStreamHealth)

	// WebSocket endpoints
	s.echo.GET("/ws/streams/:stream", s.handleViewerSocket)
	s.echo.GET("/ws/streams/:stream/chat", s.handleChatSocket)
}
