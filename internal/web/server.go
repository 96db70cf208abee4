// Package web exposes the haven HTTP and websocket API: registration
// and login, the voice-message pipeline endpoint, chat history, the
// realtime chat channel and the supervision broadcast.
package web

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/havenmind/haven/internal/auth"
	"github.com/havenmind/haven/internal/config"
	"github.com/havenmind/haven/internal/mail"
	"github.com/havenmind/haven/internal/store"
	"github.com/havenmind/haven/pkg/hub"
	"github.com/havenmind/haven/pkg/voice"
)

// VoiceProcessor runs one voice-message upload end to end.
type VoiceProcessor interface {
	Process(ctx context.Context, userID int64, audio []byte, contentType string) (*voice.Result, error)
}

// Responder generates and persists the assistant reply for a typed
// message.
type Responder interface {
	Reply(ctx context.Context, userID int64, message string) (string, error)
}

// Server is the haven web server.
type Server struct {
	app    *fiber.App
	cfg    *config.Config
	store  *store.Store
	tokens *auth.Tokens
	voice  VoiceProcessor
	chat   Responder
	mailer mail.Sender
	logger *slog.Logger

	// monitor fans persisted turns out to supervising therapists.
	monitor *hub.Hub

	startOnce sync.Once
}

// NewServer wires routes and middleware. Call Start (or Listener) to
// serve.
func NewServer(cfg *config.Config, st *store.Store, tokens *auth.Tokens, vp VoiceProcessor, chat Responder, mailer mail.Sender) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		tokens:  tokens,
		voice:   vp,
		chat:    chat,
		mailer:  mailer,
		monitor: hub.New("supervision"),
		logger:  slog.Default().With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "haven",
		DisableStartupMessage: true,
		BodyLimit:             25 * 1024 * 1024,
	})

	app.Use(cors.New())

	// Synthesized voice replies are served as static media.
	app.Static(cfg.MediaPrefix, cfg.MediaDir)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", s.handleRegister)
	authGroup.Get("/verify", s.handleVerify)
	authGroup.Post("/login", s.handleLogin)
	authGroup.Post("/logout", s.requireAuth, s.handleLogout)

	chatGroup := api.Group("/chat", s.requireAuth)
	chatGroup.Post("/voice", s.handleVoiceMessage)
	chatGroup.Get("/history", s.handleHistory)

	admin := api.Group("/admin", s.requireAuth, s.requireRole(store.RoleAdmin))
	admin.Get("/users", s.handleListUsers)
	admin.Put("/users/:id", s.handleUpdateUser)
	admin.Post("/users/:id/active", s.handleSetActive)
	admin.Delete("/users/:id", s.handleDeleteUser)
	admin.Get("/audit", s.handleListAudit)
	// Moderation fields are the one mutable part of a turn, and only
	// admins may touch them.
	admin.Post("/turns/:id/moderate", s.handleModerateTurn)

	// Websocket upgrade gate. Tokens arrive as a query parameter since
	// browsers cannot set headers on websocket handshakes.
	app.Use("/ws", s.requireWSAuth, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(s.handleChatWS))
	app.Get("/ws/monitor", s.wsRequireRole(store.RoleAdmin, store.RoleTherapist), websocket.New(s.handleMonitorWS))

	s.app = app
	return s
}

func (s *Server) startHubs() {
	s.startOnce.Do(func() {
		go s.monitor.Run()
	})
}

// Start serves on the configured port until Shutdown.
func (s *Server) Start() error {
	s.startHubs()
	s.logger.Info("listening", "port", s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	s.startHubs()
	return s.app
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
