// Package web serves the HTTP API, the browser event stream and metrics.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-emote/pkg/hub"
	"github.com/teslashibe/go-emote/pkg/ingest"
	"github.com/teslashibe/go-emote/pkg/session"
)

// Config wires the server to the rest of the daemon. Events, Ingest and
// Metrics are optional; their routes are omitted when nil.
type Config struct {
	Addr     string
	Sessions *session.Manager
	Events   *hub.Hub
	Ingest   *ingest.Hub
	Metrics  http.Handler
	Logger   *slog.Logger

	// StaticDir serves a dashboard at / when set.
	StaticDir string

	// AccessLog writes one line per request to stdout.
	AccessLog bool
}

// Server is the daemon's HTTP front.
type Server struct {
	app       *fiber.App
	cfg       Config
	logger    *slog.Logger
	startedAt time.Time
}

// NewServer builds the fiber app and mounts every route.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewManager(cfg.Logger)
	}
	s := &Server{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "web"),
		startedAt: time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "emoted",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.AccessLog {
		app.Use(fiberlogger.New())
	}

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Post("/sessions/:id/capture", s.handleCapture)
	api.Post("/sessions/:id/supersede", s.handleSupersede)
	api.Post("/sessions/:id/reset", s.handleReset)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	if cfg.Events != nil {
		api.Get("/events/stats", s.handleEventStats)
		app.Use("/ws/emotions", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/emotions", cfg.Events.Handler())
	}

	if cfg.Ingest != nil {
		cfg.Ingest.RegisterAPIRoutes(api)
		cfg.Ingest.RegisterRoutes(app)
	}

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Serve accepts connections on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// handleError renders errors as {"error": "..."} with a status derived
// from the error.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, session.ErrUnknownSession):
		code = fiber.StatusNotFound
	case errors.Is(err, session.ErrInFlight):
		code = fiber.StatusConflict
	case errors.Is(err, session.ErrNoSource):
		code = fiber.StatusBadRequest
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
