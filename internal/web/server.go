package web

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/lugondev/dex-order-alert/internal/logger"
	"github.com/lugondev/dex-order-alert/pkg/models"
)

// AboutProvider reports the state of the watched node
type AboutProvider interface {
	GetAbout(ctx context.Context) (*models.About, error)
}

// Server serves the status API
type Server struct {
	app   *fiber.App
	about AboutProvider
	log   logger.Logger
	port  int
}

// Config holds server configuration
type Config struct {
	Port       int
	AccessLogs bool
}

// NewServer creates the status API server
func NewServer(cfg Config, about AboutProvider, log logger.Logger) *Server {
	log = log.With(logger.F("component", "web-server"))

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Error("HTTP error", logger.F("error", err), logger.F("code", code))

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	if cfg.AccessLogs {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
		}))
	}

	server := &Server{
		app:   app,
		about: about,
		log:   log,
		port:  cfg.Port,
	}

	app.Get("/health", server.health)
	app.Get("/about", server.getAbout)

	return server
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}

func (s *Server) getAbout(c *fiber.Ctx) error {
	about, err := s.about.GetAbout(c.UserContext())
	if err != nil {
		s.log.Warn("failed to query node", logger.F("error", err))
		return fiber.NewError(fiber.StatusBadGateway, "node unavailable")
	}
	return c.JSON(about)
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("starting web server", logger.F("port", s.port))
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	return s.app.ShutdownWithContext(ctx)
}
