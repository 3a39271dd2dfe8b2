package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/telacare/payment-service/internal/domain/repository"
	"go.uber.org/zap"
)

// EventsHandler serves recent webhook receipts to operators.
type EventsHandler struct {
	log      *zap.Logger
	receipts repository.WebhookEventRepository
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(log *zap.Logger, receipts repository.WebhookEventRepository) *EventsHandler {
	return &EventsHandler{
		log:      log,
		receipts: receipts,
	}
}

// ListRecent returns the most recent webhook receipts, newest first. The
// limit query parameter caps the page size at 200, defaulting to 50.
func (h *EventsHandler) ListRecent(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = parsed
	}
	if limit > 200 {
		limit = 200
	}

	events, err := h.receipts.ListRecent(c.Request().Context(), limit)
	if err != nil {
		h.log.Error("failed to list webhook receipts", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "store unavailable"})
	}

	return c.JSON(http.StatusOK, echo.Map{"events": events})
}
