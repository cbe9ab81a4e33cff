// Package signalling owns the websocket request/event channel with every
// client and the HTTP surface around it: login, metrics, the admin API and
// the recording sink routes.
package signalling

import (
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/confmesh/sfu/internal/config"
	"github.com/confmesh/sfu/internal/recorder"
	"github.com/confmesh/sfu/internal/room"
	"github.com/confmesh/sfu/internal/sockets"
)

type Server struct {
	app      *fiber.App
	log      *slog.Logger
	cfg      *config.AppConfig
	registry *room.Registry
	auth     *AuthHandler
	sessions *sockets.SocketPool
	recorder *recorder.Sink
	health   WorkerHealth
}

func NewServer(log *slog.Logger, cfg *config.AppConfig, app *fiber.App, registry *room.Registry, sink *recorder.Sink) *Server {
	return &Server{
		app:      app,
		log:      log,
		cfg:      cfg,
		registry: registry,
		auth:     NewAuthHandler(cfg.Auth),
		sessions: sockets.NewSocketPool(),
		recorder: sink,
	}
}

// SetupRoutes mounts every HTTP and websocket endpoint. Call once before
// listening.
func (s *Server) SetupRoutes() {
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("panic in /ws handler", "error", err)
			}
		}()
		s.serveSession(c)
	}))

	s.app.Post("/login", s.handleLogin)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if s.recorder != nil {
		s.recorder.SetupRoutes(s.app)
	}
	s.setupAdminApi()
}

func (s *Server) serveSession(c *websocket.Conn) {
	id := uuid.NewString()
	socket := s.sessions.AddSocket(sockets.SocketID(id), c)
	session := NewSession(id, s.log, socket, s)
	session.Run()
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// handleLogin mints a host token for a configured user. Disabled unless
// host user auth is on.
func (s *Server) handleLogin(c *fiber.Ctx) error {
	if !s.cfg.Auth.HostUserAuth {
		return c.Status(fiber.StatusNotFound).SendString("login disabled")
	}
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Bad Request")
	}
	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
	}
	return c.JSON(loginResponse{Token: token})
}

// Close drops every live session; rooms fall empty and are reclaimed by
// their grace timers.
func (s *Server) Close() {
	s.sessions.Close()
}
