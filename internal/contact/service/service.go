// Package service reconciles contact submissions into identity groups and
// builds their consolidated views.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"contactsvc/internal/contact/lock"
	"contactsvc/internal/contact/metrics"
	"contactsvc/internal/contact/models"
	"contactsvc/internal/contact/ports"
	dErrors "contactsvc/pkg/domain-errors"
	"contactsvc/pkg/requestcontext"
)

var tracer = otel.Tracer("contactsvc/internal/contact/service")

const (
	defaultMaxAttempts  = 4
	defaultTxTimeout    = 5 * time.Second
	defaultRetryBackoff = 10 * time.Millisecond
)

// Service runs reconciliations against a transactional contact store.
type Service struct {
	tx           ports.StoreTx
	locker       ports.Locker
	publisher    ports.Publisher
	logger       *slog.Logger
	metrics      *metrics.Metrics
	maxAttempts  int
	txTimeout    time.Duration
	retryBackoff time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLocker replaces the in-process value lock, typically with a
// distributed one shared by every replica.
func WithLocker(l ports.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithPublisher receives an outcome after every committed reconciliation.
func WithPublisher(p ports.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithMaxAttempts bounds how many times one reconciliation runs when it
// loses a race with a concurrent writer.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithTxTimeout bounds each attempt, lock waits included.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithRetryBackoff sets the initial pause between attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retryBackoff = d
		}
	}
}

func New(tx ports.StoreTx, opts ...Option) (*Service, error) {
	if tx == nil {
		return nil, errors.New("contact store is required")
	}
	s := &Service{
		tx:           tx,
		locker:       lock.NewLocal(),
		logger:       slog.Default(),
		maxAttempts:  defaultMaxAttempts,
		txTimeout:    defaultTxTimeout,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Reconcile merges one submission and returns the consolidated view of
// the identity group it belongs to.
func (s *Service) Reconcile(ctx context.Context, sub models.Submission) (*models.ConsolidatedView, error) {
	if sub.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "either email or phoneNumber must be provided")
	}

	ctx, span := tracer.Start(ctx, "contact.Reconcile")
	defer span.End()
	start := time.Now()
	requestID := requestcontext.RequestID(ctx)

	var (
		view    *models.ConsolidatedView
		outcome models.Outcome
	)
	attempts, err := s.withRetry(ctx, func() error {
		var attemptErr error
		view, outcome, attemptErr = s.attempt(ctx, sub)
		return attemptErr
	})
	s.metrics.ObserveReconcileLatency(time.Since(start))
	span.SetAttributes(attribute.Int("contact.attempts", attempts))

	if err != nil {
		err = translateError(err)
		s.metrics.IncrementOutcome("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconciliation failed")
		s.logger.ErrorContext(ctx, "contact reconciliation failed",
			"request_id", requestID,
			"attempts", attempts,
			"error", err,
		)
		return nil, err
	}

	s.metrics.IncrementOutcome(string(outcome.Kind))
	s.metrics.AddDemotions(len(outcome.Demoted))
	span.SetAttributes(
		attribute.String("contact.outcome", string(outcome.Kind)),
		attribute.Int64("contact.primary_id", outcome.PrimaryID),
	)
	s.logger.InfoContext(ctx, "contact reconciled",
		"request_id", requestID,
		"outcome", outcome.Kind,
		"primary_id", outcome.PrimaryID,
		"created_id", outcome.CreatedID,
		"demoted", outcome.Demoted,
		"attempts", attempts,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	s.publish(ctx, outcome)
	return view, nil
}

// ListAllViews returns the consolidated view of every active identity group,
// ordered by primary id.
func (s *Service) ListAllViews(ctx context.Context) ([]models.ConsolidatedView, error) {
	ctx, span := tracer.Start(ctx, "contact.ListAllViews")
	defer span.End()

	var views []models.ConsolidatedView
	err := s.tx.RunReadOnly(ctx, func(ctx context.Context, store ports.Store) error {
		contacts, err := store.ListActive(ctx)
		if err != nil {
			return err
		}
		views, err = groupViews(contacts)
		return err
	})
	if err != nil {
		err = translateError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing failed")
		s.logger.ErrorContext(ctx, "listing contact views failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, err
	}
	span.SetAttributes(attribute.Int("contact.groups", len(views)))
	return views, nil
}

// publish hands the outcome to the publisher. The transaction has already
// committed, so failures are logged and never returned.
func (s *Service) publish(ctx context.Context, outcome models.Outcome) {
	if s.publisher == nil || outcome.Kind == models.OutcomeUnchanged {
		return
	}
	if err := s.publisher.Publish(ctx, outcome); err != nil {
		s.logger.WarnContext(ctx, "failed to publish contact event",
			"request_id", requestcontext.RequestID(ctx),
			"outcome", outcome.Kind,
			"primary_id", outcome.PrimaryID,
			"error", err,
		)
	}
}
