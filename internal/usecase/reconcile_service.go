package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/telacare/payment-service/internal/domain/model"
	"github.com/telacare/payment-service/internal/domain/repository"
	"go.uber.org/zap"
)

// ReconcileScope selects which record kinds a run covers.
type ReconcileScope string

const (
	ScopePayments      ReconcileScope = "payments"
	ScopeSubscriptions ReconcileScope = "subscriptions"
	ScopeAll           ReconcileScope = "all"
)

// ProcessorClient is the slice of the processor API reconciliation needs.
type ProcessorClient interface {
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

// ReconcileResult aggregates one run's counts. Mismatches are findings, not
// failures; the run errors out only when store or processor API are wholly
// unreachable.
type ReconcileResult struct {
	Processed  int
	Matched    int
	Mismatched int
	Missing    int
	Errors     int
}

func (r *ReconcileResult) add(other ReconcileResult) {
	r.Processed += other.Processed
	r.Matched += other.Matched
	r.Mismatched += other.Mismatched
	r.Missing += other.Missing
	r.Errors += other.Errors
}

// ReconcileOptions tune batching against the processor's rate limits.
type ReconcileOptions struct {
	// Concurrency is the fan-out per batch. Defaults to 5.
	Concurrency int
	// BatchSize is how many records run between pauses. Defaults to 25.
	BatchSize int
	// BatchPause spaces batches. Defaults to 1s.
	BatchPause time.Duration
}

func (o ReconcileOptions) withDefaults() ReconcileOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 25
	}
	if o.BatchPause <= 0 {
		o.BatchPause = time.Second
	}
	return o
}

// ReconcileService compares local order/subscription records against the
// processor's live records and corrects drift toward the remote state. It is
// safe to run next to live webhook traffic: corrections are conditioned on
// the locally observed status, so a concurrent webhook write wins.
type ReconcileService struct {
	orders    repository.OrderRepository
	subs      repository.SubscriptionRepository
	processor ProcessorClient
	opts      ReconcileOptions
	logger    *zap.Logger
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(orders repository.OrderRepository, subs repository.SubscriptionRepository, processor ProcessorClient, opts ReconcileOptions, logger *zap.Logger) *ReconcileService {
	return &ReconcileService{
		orders:    orders,
		subs:      subs,
		processor: processor,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Reconcile runs one pass over the selected scope. limit bounds how many
// records of each kind are examined; zero means the default of 100.
func (s *ReconcileService) Reconcile(ctx context.Context, scope ReconcileScope, limit int) (*ReconcileResult, error) {
	if limit <= 0 {
		limit = 100
	}

	total := &ReconcileResult{}

	if scope == ScopePayments || scope == ScopeAll {
		orders, err := s.orders.ListRecentWithPaymentIntent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to load orders: %w", err)
		}
		result := s.runBatches(ctx, len(orders), func(ctx context.Context, i int) recordOutcome {
			return s.reconcileOrder(ctx, orders[i])
		})
		total.add(result)
	}

	if scope == ScopeSubscriptions || scope == ScopeAll {
		subs, err := s.subs.ListRecent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to load subscriptions: %w", err)
		}
		result := s.runBatches(ctx, len(subs), func(ctx context.Context, i int) recordOutcome {
			return s.reconcileSubscription(ctx, subs[i])
		})
		total.add(result)
	}

	s.logger.Info("reconciliation run completed",
		zap.String("scope", string(scope)),
		zap.Int("processed", total.Processed),
		zap.Int("matched", total.Matched),
		zap.Int("mismatched", total.Mismatched),
		zap.Int("missing", total.Missing),
		zap.Int("errors", total.Errors))

	return total, nil
}

type recordOutcome int

const (
	outcomeMatched recordOutcome = iota
	outcomeMismatched
	outcomeMissing
	outcomeError
)

// runBatches walks n records in batches with a fixed fan-out per batch and a
// pause between batches. One bad record never aborts the run.
func (s *ReconcileService) runBatches(ctx context.Context, n int, fn func(ctx context.Context, i int) recordOutcome) ReconcileResult {
	var (
		mu     sync.Mutex
		result ReconcileResult
	)

	sem := make(chan struct{}, s.opts.Concurrency)

	for start := 0; start < n; start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > n {
			end = n
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			if ctx.Err() != nil {
				break
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()

				outcome := fn(ctx, i)

				mu.Lock()
				result.Processed++
				switch outcome {
				case outcomeMatched:
					result.Matched++
				case outcomeMismatched:
					result.Mismatched++
				case outcomeMissing:
					result.Missing++
				case outcomeError:
					result.Errors++
				}
				mu.Unlock()
			}(i)
		}
		wg.Wait()

		if ctx.Err() != nil {
			break
		}
		if end < n {
			select {
			case <-time.After(s.opts.BatchPause):
			case <-ctx.Done():
			}
		}
	}

	return result
}

func (s *ReconcileService) reconcileOrder(ctx context.Context, order *model.Order) recordOutcome {
	if order.PaymentIntentID == nil {
		return outcomeMatched
	}

	pi, err := s.processor.RetrievePaymentIntent(ctx, *order.PaymentIntentID)
	if err != nil {
		if isRemoteMissing(err) {
			// Could be test data or processor-side deletion; flagged
			// for human review, never auto-corrected.
			s.logger.Warn("remote payment intent missing",
				zap.String("order_ref", order.OrderRef),
				zap.String("payment_intent_id", *order.PaymentIntentID))
			return outcomeMissing
		}
		s.logger.Error("failed to retrieve payment intent",
			zap.String("order_ref", order.OrderRef),
			zap.String("payment_intent_id", *order.PaymentIntentID),
			zap.Error(err))
		return outcomeError
	}

	remoteStatus := orderStatusFromIntent(pi.Status)
	if order.Status == remoteStatus {
		return outcomeMatched
	}

	s.logger.Warn("order status drift detected",
		zap.String("order_ref", order.OrderRef),
		zap.String("local_status", string(order.Status)),
		zap.String("remote_status", string(remoteStatus)))

	var paidAt *time.Time
	if remoteStatus == model.OrderStatusPaid {
		t := time.Unix(pi.Created, 0)
		paidAt = &t
	}

	if _, err := s.orders.UpdateStatusIf(ctx, order.ID, order.Status, remoteStatus, paidAt); err != nil {
		s.logger.Error("failed to correct order status",
			zap.String("order_ref", order.OrderRef),
			zap.Error(err))
		return outcomeError
	}

	return outcomeMismatched
}

func (s *ReconcileService) reconcileSubscription(ctx context.Context, sub *model.Subscription) recordOutcome {
	remote, err := s.processor.RetrieveSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		if isRemoteMissing(err) {
			s.logger.Warn("remote subscription missing",
				zap.String("provider_subscription_id", sub.ProviderSubscriptionID))
			return outcomeMissing
		}
		s.logger.Error("failed to retrieve subscription",
			zap.String("provider_subscription_id", sub.ProviderSubscriptionID),
			zap.Error(err))
		return outcomeError
	}

	remoteStatus, _ := model.SubscriptionStatusFromProvider(string(remote.Status))
	if sub.Status == remoteStatus {
		return outcomeMatched
	}

	s.logger.Warn("subscription status drift detected",
		zap.String("provider_subscription_id", sub.ProviderSubscriptionID),
		zap.String("local_status", string(sub.Status)),
		zap.String("remote_status", string(remoteStatus)))

	if _, err := s.subs.UpdateStatusIf(ctx, sub.ProviderSubscriptionID, sub.Status, remoteStatus,
		time.Unix(remote.CurrentPeriodStart, 0), time.Unix(remote.CurrentPeriodEnd, 0)); err != nil {
		s.logger.Error("failed to correct subscription status",
			zap.String("provider_subscription_id", sub.ProviderSubscriptionID),
			zap.Error(err))
		return outcomeError
	}

	return outcomeMismatched
}

// orderStatusFromIntent maps processor payment intent states onto order
// statuses. In-flight intent states keep the order pending.
func orderStatusFromIntent(status stripe.PaymentIntentStatus) model.OrderStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return model.OrderStatusPaid
	case stripe.PaymentIntentStatusCanceled:
		return model.OrderStatusFailed
	default:
		return model.OrderStatusPending
	}
}

func isRemoteMissing(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == 404
	}
	return false
}
