package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Hoangbim/streamcast/internal/chat"
	"github.com/Hoangbim/streamcast/internal/config"
	"github.com/Hoangbim/streamcast/internal/correlation"
	apperrors "github.com/Hoangbim/streamcast/internal/errors"
	"github.com/Hoangbim/streamcast/internal/relay"
)

// upgrader is shared by every websocket endpoint. Origin checks stay open:
// the player and chat widget are embedded on arbitrary pages.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	relays    *relay.Manager
	rooms     *chat.Manager
	limits    *connectionLimits
	clock     clockwork.Clock
	logger    *slog.Logger
	startTime time.Time
}

func NewServer(cfg *config.Config, relays *relay.Manager, rooms *chat.Manager, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(correlation.Middleware())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		relays:    relays,
		rooms:     rooms,
		limits:    newConnectionLimits(int64(cfg.MaxWebSocketConnections), clock),
		clock:     clock,
		logger:    slog.With("component", "server"),
		startTime: clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	s.logger.Info("starting http server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
