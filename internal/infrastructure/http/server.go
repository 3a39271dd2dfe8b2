package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	handler "github.com/telacare/payment-service/internal/adapter/handler/http"
	"github.com/telacare/payment-service/internal/config"
	"github.com/telacare/payment-service/internal/logger"
	"github.com/telacare/payment-service/internal/metrics"
	"github.com/telacare/payment-service/internal/middleware/auth"
	"go.uber.org/zap"
)

// Server owns the echo instance and route wiring.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger *zap.Logger
}

// NewServer wires middleware and routes onto a fresh echo instance.
func NewServer(
	cfg *config.Config,
	log *zap.Logger,
	m *metrics.Metrics,
	webhookHandler *handler.WebhookHandler,
	eventsHandler *handler.EventsHandler,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(logger.NewEchoRequestLogger(log))
	logger.WithEchoErrorHandler(e, log)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	e.POST("/webhooks/stripe", webhookHandler.HandleWebhook)

	internal := e.Group("/internal")
	internal.Use(auth.JWTMiddleware(auth.JWTConfig{
		Secret: cfg.Service.InternalJWTSecret,
		Logger: log,
	}))
	internal.GET("/events/recent", eventsHandler.ListRecent)

	return &Server{
		echo:   e,
		cfg:    cfg,
		logger: log,
	}
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.HTTP.Host, s.cfg.Server.HTTP.Port)
	s.logger.Info("http server starting", zap.String("addr", addr))

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
