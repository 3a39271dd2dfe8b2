package logger

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Echo context keys handlers set so the request log line carries webhook
// dimensions. The log analyzer groups on these fields; field names here are
// a contract with it.
const (
	ContextKeyEventType  = "webhook-event-type"
	ContextKeyCustomerID = "webhook-customer-id"
)

// NewEchoRequestLogger creates the access-log middleware. One "http request"
// line per request in the shared zap encoding.
func NewEchoRequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	config := middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health" || c.Request().URL.Path == "/metrics"
		},
		HandleError: true,

		LogLatency:   true,
		LogRemoteIP:  true,
		LogMethod:    true,
		LogURIPath:   true,
		LogRequestID: true,
		LogStatus:    true,
		LogError:     true,

		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Float64("duration_ms", float64(v.Latency)/float64(time.Millisecond)),
				zap.String("remote_ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			}

			if eventType, ok := c.Get(ContextKeyEventType).(string); ok && eventType != "" {
				fields = append(fields, zap.String("event_type", eventType))
			}
			if customerID, ok := c.Get(ContextKeyCustomerID).(string); ok && customerID != "" {
				fields = append(fields, zap.String("customer_id", customerID))
			}

			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
				logger.Error("http request", fields...)
				return nil
			}

			if v.Status >= 500 {
				logger.Error("http request", fields...)
				return nil
			}
			if v.Status >= 400 {
				logger.Warn("http request", fields...)
				return nil
			}

			logger.Info("http request", fields...)
			return nil
		},
	}

	return middleware.RequestLoggerWithConfig(config)
}

// WithEchoErrorHandler routes unhandled echo errors through zap and keeps
// error responses as JSON.
func WithEchoErrorHandler(e *echo.Echo, logger *zap.Logger) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}

		logger.Error("HTTP error",
			zap.Error(err),
			zap.Int("status", code),
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.String("ip", c.RealIP()),
		)

		if !c.Response().Committed {
			if c.Request().Method == http.MethodHead {
				err = c.NoContent(code)
			} else {
				err = c.JSON(code, map[string]interface{}{
					"error": http.StatusText(code),
				})
			}
			if err != nil {
				logger.Error("Failed to send error response", zap.Error(err))
			}
		}
	}
}
