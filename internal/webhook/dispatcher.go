package webhook

import (
	"context"
	"errors"
	"fmt"

	domainerrors "github.com/telacare/payment-service/internal/domain/errors"
	"go.uber.org/zap"
)

// Outcome is the disposition of a dispatched event.
type Outcome int

const (
	// OutcomeApplied means the handler performed the state transition.
	OutcomeApplied Outcome = iota
	// OutcomeAlreadyApplied means the transition had already happened;
	// the delivery is acknowledged without side effects.
	OutcomeAlreadyApplied
	// OutcomeIgnored means no handler is registered for the event type.
	// The delivery is acknowledged so the processor stops retrying.
	OutcomeIgnored
	// OutcomeFailed means the handler returned an error or panicked.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyApplied:
		return "already_applied"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "failed"
	}
}

// Result is what Dispatch reports back to the HTTP layer.
type Result struct {
	Outcome Outcome
	Err     error
}

// HandlerFunc applies one event type's state transition.
type HandlerFunc func(ctx context.Context, evt *Event) error

// Dispatcher routes verified events to their registered handlers. The set of
// handled types is closed at construction time; unknown types are ignored,
// not failed.
type Dispatcher struct {
	handlers map[EventType]HandlerFunc
	logger   *zap.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[EventType]HandlerFunc),
		logger:   logger,
	}
}

// Register binds a handler to an event type. Registering twice for the same
// type is a programming error and panics at startup.
func (d *Dispatcher) Register(eventType EventType, handler HandlerFunc) {
	if _, exists := d.handlers[eventType]; exists {
		panic(fmt.Sprintf("duplicate webhook handler for %s", eventType))
	}
	d.handlers[eventType] = handler
}

// Dispatch runs the handler for the event's type. Handler errors and panics
// never escape; they are logged with the event id/type and surfaced in the
// result so the HTTP layer can pick the status code.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *Event) (result Result) {
	handler, ok := d.handlers[evt.Type]
	if !ok {
		d.logger.Info("ignoring unhandled event type",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)))
		return Result{Outcome: OutcomeIgnored}
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("handler panic: %v", r)
			d.logger.Error("webhook handler panicked",
				zap.String("event_id", evt.ID),
				zap.String("event_type", string(evt.Type)),
				zap.Any("panic", r))
			result = Result{Outcome: OutcomeFailed, Err: err}
		}
	}()

	if err := handler(ctx, evt); err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyApplied) {
			d.logger.Info("event already applied",
				zap.String("event_id", evt.ID),
				zap.String("event_type", string(evt.Type)))
			return Result{Outcome: OutcomeAlreadyApplied}
		}
		d.logger.Error("webhook handler failed",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.Error(err))
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	return Result{Outcome: OutcomeApplied}
}
