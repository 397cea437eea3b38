package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	dErrors "contactsvc/pkg/domain-errors"
	"contactsvc/pkg/platform/sentinel"
	"contactsvc/pkg/requestcontext"
)

// withRetry runs op until it succeeds, fails with anything other than a
// write conflict, or exhausts maxAttempts. It returns the attempts made.
func (s *Service) withRetry(ctx context.Context, op func() error) (int, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryBackoff
	policy.MaxInterval = 20 * s.retryBackoff
	policy.MaxElapsedTime = 0

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, sentinel.ErrConflict) && ctx.Err() == nil {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.maxAttempts-1)), ctx),
		func(err error, wait time.Duration) {
			s.metrics.IncrementRetries()
			s.logger.DebugContext(ctx, "retrying contact reconciliation",
				"request_id", requestcontext.RequestID(ctx),
				"attempt", attempts,
				"wait_ms", wait.Milliseconds(),
				"error", err,
			)
		})
	return attempts, err
}

// translateError maps a failed unit of work to a coded error. Integrity
// violations and validation errors pass through; every store failure is
// reported as retryable since the transaction rolled back completely.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "reconciliation timed out, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "reconciliation failed, retry")
	}
}
