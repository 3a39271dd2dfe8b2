package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	domainerrors "github.com/telacare/payment-service/internal/domain/errors"
	"github.com/telacare/payment-service/internal/domain/model"
	"github.com/telacare/payment-service/internal/domain/repository"
	"github.com/telacare/payment-service/internal/logger"
	"github.com/telacare/payment-service/internal/metrics"
	"github.com/telacare/payment-service/internal/webhook"
	"go.uber.org/zap"
)

// WebhookHandler is the ingestion endpoint: verify the signature over the
// exact request bytes, persist a receipt, dispatch to the applier, and map
// the outcome onto the status code the processor's retry policy expects.
type WebhookHandler struct {
	log        *zap.Logger
	verifier   *webhook.Verifier
	dispatcher *webhook.Dispatcher
	receipts   repository.WebhookEventRepository
	metrics    *metrics.Metrics
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(log *zap.Logger, verifier *webhook.Verifier, dispatcher *webhook.Dispatcher, receipts repository.WebhookEventRepository, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{
		log:        log,
		verifier:   verifier,
		dispatcher: dispatcher,
		receipts:   receipts,
		metrics:    m,
	}
}

// HandleWebhook processes one delivery from the payment processor.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	start := time.Now()
	h.metrics.RequestsTotal.Inc()
	defer func() {
		h.metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}()

	// The signature covers the exact bytes on the wire; the body must not
	// be re-serialized before verification.
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.log.Error("failed to read request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "failed to read request body"})
	}

	sig := c.Request().Header.Get("Stripe-Signature")

	evt, err := h.verifier.Verify(body, sig)
	if err != nil {
		// Log the reason only; no payload echo.
		var verr *webhook.VerificationError
		if errors.As(err, &verr) {
			h.metrics.VerificationFailures.WithLabelValues(verr.Reason).Inc()
			h.log.Warn("webhook signature rejected", zap.String("reason", verr.Reason))
			return c.JSON(http.StatusBadRequest, echo.Map{"error": verr.Reason})
		}
		h.log.Warn("webhook envelope rejected", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event envelope"})
	}

	c.Set(logger.ContextKeyEventType, string(evt.Type))
	// Payment objects carry the customer as a plain id string; when present
	// it becomes a request log dimension.
	var probe struct {
		Customer string `json:"customer"`
	}
	if probeErr := json.Unmarshal(evt.Data.Raw, &probe); probeErr == nil && probe.Customer != "" {
		c.Set(logger.ContextKeyCustomerID, probe.Customer)
	}

	h.log.Info("webhook event received",
		zap.String("event_id", evt.ID),
		zap.String("event_type", string(evt.Type)),
		zap.Time("created", evt.CreatedAt()),
		zap.Bool("livemode", evt.Livemode))

	created, err := h.receipts.SaveReceipt(c.Request().Context(), evt.ID, string(evt.Type), evt.Livemode, body)
	if err != nil {
		// Receipt storage down means the store is down; let the
		// processor redeliver.
		h.metrics.EventsTotal.WithLabelValues(string(evt.Type), "failed").Inc()
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "store unavailable"})
	}
	if !created {
		h.log.Info("duplicate delivery",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)))
	}

	result := h.dispatcher.Dispatch(c.Request().Context(), evt)
	h.metrics.EventsTotal.WithLabelValues(string(evt.Type), result.Outcome.String()).Inc()

	switch result.Outcome {
	case webhook.OutcomeApplied, webhook.OutcomeAlreadyApplied:
		if err := h.receipts.MarkProcessed(c.Request().Context(), evt.ID, model.WebhookStatusCompleted); err != nil {
			h.log.Warn("failed to update receipt", zap.String("event_id", evt.ID), zap.Error(err))
		}
		return c.JSON(http.StatusOK, echo.Map{"received": true})

	case webhook.OutcomeIgnored:
		if err := h.receipts.MarkProcessed(c.Request().Context(), evt.ID, model.WebhookStatusIgnored); err != nil {
			h.log.Warn("failed to update receipt", zap.String("event_id", evt.ID), zap.Error(err))
		}
		return c.JSON(http.StatusOK, echo.Map{"received": true})

	default:
		var applyErr *domainerrors.ApplyError
		if errors.As(result.Err, &applyErr) {
			h.metrics.ApplyFailures.WithLabelValues(applyErr.Code).Inc()
		}
		if err := h.receipts.MarkFailed(c.Request().Context(), evt.ID, result.Err); err != nil {
			h.log.Warn("failed to update receipt", zap.String("event_id", evt.ID), zap.Error(err))
		}
		if domainerrors.IsRetryable(result.Err) {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": result.Err.Error()})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": result.Err.Error()})
	}
}
