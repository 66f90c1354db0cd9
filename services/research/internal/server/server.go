// Package server exposes research tasks over HTTP.
package server

import (
	"context"
	"encoding/json"
	"time"

	"hhresearch/services/research/internal/errors"
	"hhresearch/services/research/internal/models"
	"hhresearch/services/research/internal/tasks"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type TaskService interface {
	Start(settings models.Settings) (string, error)
	Get(id string) (tasks.Snapshot, bool)
	Cancel(id string) bool
}

type Server struct {
	app      *fiber.App
	tasks    TaskService
	defaults models.Settings
	logger   *zap.Logger
	addr     string
}

func New(logger *zap.Logger, tasks TaskService, defaults models.Settings, addr string) *Server {
	s := &Server{
		tasks:    tasks,
		defaults: defaults,
		logger:   logger,
		addr:     addr,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "hh-research",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.logRequests)

	s.app.Get("/healthz", s.health)
	v1 := s.app.Group("/api/v1")
	v1.Post("/research", s.startResearch)
	v1.Get("/research/:id", s.getResearch)
	v1.Delete("/research/:id", s.cancelResearch)

	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks until the server stops.
func (s *Server) Listen() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.addr))
	return s.app.Listen(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("handled request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("elapsed", time.Since(start)))
	return err
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) startResearch(c *fiber.Ctx) error {
	var patch models.SettingsPatch
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &patch); err != nil {
			return errors.InvalidInput("request body is not valid JSON", err)
		}
	}

	id, err := s.tasks.Start(patch.Apply(s.defaults))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"task_id": id})
}

func (s *Server) getResearch(c *fiber.Ctx) error {
	snap, ok := s.tasks.Get(c.Params("id"))
	if !ok {
		return errors.NotFound("research task not found", nil)
	}
	return c.JSON(snap)
}

func (s *Server) cancelResearch(c *fiber.Ctx) error {
	id := c.Params("id")
	if s.tasks.Cancel(id) {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"task_id": id})
	}
	if _, ok := s.tasks.Get(id); ok {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "research task already finished"})
	}
	return errors.NotFound("research task not found", nil)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	} else if errType, ok := errors.TypeOf(err); ok {
		code = statusFor(errType)
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func statusFor(errType errors.ErrorType) int {
	switch errType {
	case errors.ErrTypeInvalidInput:
		return fiber.StatusBadRequest
	case errors.ErrTypeNotFound:
		return fiber.StatusNotFound
	case errors.ErrTypeUnauthorized:
		return fiber.StatusUnauthorized
	case errors.ErrTypeRateLimit:
		return fiber.StatusTooManyRequests
	case errors.ErrTypeUnavailable, errors.ErrTypeExchangeUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
