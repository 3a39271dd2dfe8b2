package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	domainerrors "github.com/telacare/payment-service/internal/domain/errors"
	"github.com/telacare/payment-service/internal/domain/model"
	"github.com/telacare/payment-service/internal/domain/repository"
	"github.com/telacare/payment-service/internal/webhook"
	"go.uber.org/zap"
)

// Event metadata keys written by the checkout flow.
const (
	metadataOrderRef  = "order_id"
	metadataPatientID = "patient_id"
)

// ApplyService turns verified webhook events into order/subscription state
// transitions. Every transition is idempotent: replays of the same event
// against a settled record short-circuit with ErrAlreadyApplied and write
// nothing.
type ApplyService struct {
	orders repository.OrderRepository
	subs   repository.SubscriptionRepository
	logger *zap.Logger
}

// NewApplyService creates a new apply service
func NewApplyService(orders repository.OrderRepository, subs repository.SubscriptionRepository, logger *zap.Logger) *ApplyService {
	return &ApplyService{
		orders: orders,
		subs:   subs,
		logger: logger,
	}
}

// RegisterHandlers binds the service's handlers onto the dispatcher. This is
// the closed set of event types the system acts on.
func (s *ApplyService) RegisterHandlers(d *webhook.Dispatcher) {
	d.Register(webhook.EventPaymentIntentSucceeded, s.HandlePaymentIntentSucceeded)
	d.Register(webhook.EventPaymentIntentFailed, s.HandlePaymentIntentFailed)
	d.Register(webhook.EventChargeRefunded, s.HandleChargeRefunded)
	d.Register(webhook.EventSubscriptionCreated, s.HandleSubscriptionCreated)
	d.Register(webhook.EventSubscriptionUpdated, s.HandleSubscriptionUpdated)
	d.Register(webhook.EventSubscriptionDeleted, s.HandleSubscriptionDeleted)
}

// HandlePaymentIntentSucceeded marks the referenced order paid, provided the
// paid amount matches the order total exactly.
func (s *ApplyService) HandlePaymentIntentSucceeded(ctx context.Context, evt *webhook.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return domainerrors.NewMalformedPayload(evt.ID, err)
	}

	orderRef := pi.Metadata[metadataOrderRef]
	if orderRef == "" {
		return domainerrors.NewMissingReference(evt.ID)
	}

	order, err := s.orders.GetByRef(ctx, orderRef)
	if err != nil {
		return domainerrors.NewStoreUnavailable(evt.ID, err)
	}
	if order == nil {
		return domainerrors.NewOrderNotFound(evt.ID, orderRef)
	}

	if order.Status.IsTerminal() {
		return domainerrors.ErrAlreadyApplied
	}

	// Amount integrity: a single minor unit of drift is a fraud/bug
	// signal, never silently accepted.
	if expected := order.TotalMinorUnits(); expected != pi.Amount {
		return domainerrors.NewAmountMismatch(evt.ID, orderRef, expected, pi.Amount)
	}

	updated, err := s.orders.MarkPaid(ctx, orderRef, pi.ID, evt.CreatedAt())
	if err != nil {
		return domainerrors.NewStoreUnavailable(evt.ID, err)
	}
	if !updated {
		// Lost the race against a concurrent delivery of this event.
		return domainerrors.ErrAlreadyApplied
	}

	s.logger.Info("order marked paid",
		zap.String("event_id", evt.ID),
		zap.String("order_ref", orderRef),
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("amount", pi.Amount))

	return nil
}

// HandlePaymentIntentFailed marks the referenced order failed with the
// processor's failure details.
func (s *ApplyService) HandlePaymentIntentFailed(ctx context.Context, evt *webhook.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return domainerrors.NewMalformedPayload(evt.ID, err)
	}

	orderRef := pi.Metadata[metadataOrderRef]
	if orderRef == "" {
		return domainerrors.NewMissingReference(evt.ID)
	}

	order, err := s.orders.GetByRef(ctx, orderRef)
	if err != nil {
		return domainerrors.NewStoreUnavailable(evt.ID, err)
	}
	if order == nil {
		return domainerrors.NewOrderNotFound(evt.ID, orderRef)
	}

	if order.Status.IsTerminal() {
		return domainerrors.ErrAlreadyApplied
	}

	var failureCode, failureMessage *string
	if pi.LastPaymentError != nil {
		code := string(pi.LastPaymentError.Code)
		msg := pi.LastPaymentError.Msg
		failureCode, failureMessage = &code, &msg
	}

	updated, err := s.orders.MarkFailed(ctx, orderRef, failureCode, failureMessage)
	if err != nil {
		return domainerrors.NewStoreUnavailable(evt.ID, err)
	}
	if !updated {
		return domainerrors.ErrAlreadyApplied
	}

	s.logger.Info("order marked failed",
		zap.String("event_id", evt.ID),
		zap.String("order_ref", orderRef))

	return nil
}

// HandleChargeRefunded transitions the paid order behind the charge to
// refunded.
func (s *ApplyService) HandleChargeRefunded(ctx context.Context, evt *webhook.Event) error {
	var charge stripe.Charge
	if err := json.Unmarshal(evt.Data.Raw, &charge); err != nil {
		return domainerrors.NewMalformedPayload(evt.ID, err)
	}

	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		return domainerrors.NewMissingReference(evt.ID)
	}

	order, err := s.orders.GetByPaymentIntentID(ctx, charge.PaymentIntent.ID)
	if err != nil {
		return domainerrors.NewStoreUnavailable(evt.ID, err)
	}
	if order == nil {
		return domainerrors.NewOrderNotFound(evt.ID, charge.PaymentIntent.ID)
	}

	if order.Status == model.OrderStatusRefunded {
		return domainerrors.ErrAlreadyApplied
	}

	updated, err := s.orders.MarkRefunded(ctx, charge.PaymentIntent.ID, evt.CreatedAt())
	if err != nil {
		return domainerrors.NewStoreUnavailable(evt.ID, err)
	}
	if !updated {
		return domainerrors.ErrAlreadyApplied
	}

	s.logger.Info("order marked refunded",
		zap.String("event_id", evt.ID),
		zap.String("payment_intent_id", charge.PaymentIntent.ID))

	return nil
}

// HandleSubscriptionCreated mirrors a new processor subscription locally.
func (s *ApplyService) HandleSubscriptionCreated(ctx context.Context, evt *webhook.Event) error {
	sub, raw, err := s.parseSubscription(evt)
	if err != nil {
		return err
	}

	status, known := model.SubscriptionStatusFromProvider(string(sub.Status))
	if !known {
		s.logger.Warn("unknown provider subscription status",
			zap.String("event_id", evt.ID),
			zap.String("status", string(sub.Status)))
	}

	record := &model.Subscription{
		ProviderSubscriptionID: sub.ID,
		Status:                 status,
		CurrentPeriodStart:     time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:       time.Unix(sub.CurrentPeriodEnd, 0),
		ProviderData:           raw,
	}
	if sub.Customer != nil {
		record.ProviderCustomerID = sub.Customer.ID
	}
	if patientID, parseErr := uuid.Parse(sub.Metadata[metadataPatientID]); parseErr == nil {
		record.PatientID = patientID
	}

	if err := s.subs.Upsert(ctx, record); err != nil {
		return domainerrors.NewStoreUnavailable(evt.ID, err)
	}

	s.logger.Info("subscription mirrored",
		zap.String("event_id", evt.ID),
		zap.String("provider_subscription_id", sub.ID),
		zap.String("status", string(status)))

	return nil
}

// HandleSubscriptionUpdated refreshes status and period boundaries.
func (s *ApplyService) HandleSubscriptionUpdated(ctx context.Context, evt *webhook.Event) error {
	sub, raw, err := s.parseSubscription(evt)
	if err != nil {
		return err
	}

	status, _ := model.SubscriptionStatusFromProvider(string(sub.Status))

	updated, err := s.subs.UpdateFromProvider(ctx, sub.ID, status,
		time.Unix(sub.CurrentPeriodStart, 0), time.Unix(sub.CurrentPeriodEnd, 0), raw)
	if err != nil {
		return domainerrors.NewStoreUnavailable(evt.ID, err)
	}
	if !updated {
		return domainerrors.NewSubscriptionNotFound(evt.ID, sub.ID)
	}

	s.logger.Info("subscription updated",
		zap.String("event_id", evt.ID),
		zap.String("provider_subscription_id", sub.ID),
		zap.String("status", string(status)))

	return nil
}

// HandleSubscriptionDeleted marks the mirror canceled.
func (s *ApplyService) HandleSubscriptionDeleted(ctx context.Context, evt *webhook.Event) error {
	sub, _, err := s.parseSubscription(evt)
	if err != nil {
		return err
	}

	updated, err := s.subs.MarkCanceled(ctx, sub.ID, evt.CreatedAt())
	if err != nil {
		return domainerrors.NewStoreUnavailable(evt.ID, err)
	}
	if updated {
		s.logger.Info("subscription canceled",
			zap.String("event_id", evt.ID),
			zap.String("provider_subscription_id", sub.ID))
		return nil
	}

	existing, err := s.subs.GetByProviderID(ctx, sub.ID)
	if err != nil {
		return domainerrors.NewStoreUnavailable(evt.ID, err)
	}
	if existing == nil {
		return domainerrors.NewSubscriptionNotFound(evt.ID, sub.ID)
	}

	// Row exists and is already canceled.
	return domainerrors.ErrAlreadyApplied
}

func (s *ApplyService) parseSubscription(evt *webhook.Event) (*stripe.Subscription, model.JSONB, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
		return nil, nil, domainerrors.NewMalformedPayload(evt.ID, err)
	}
	if sub.ID == "" {
		return nil, nil, domainerrors.NewMissingReference(evt.ID)
	}

	var raw model.JSONB
	if err := json.Unmarshal(evt.Data.Raw, &raw); err != nil {
		raw = nil
	}

	return &sub, raw, nil
}
