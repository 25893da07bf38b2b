// Package retry runs an operation again when it fails with a retryable error kind.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// RetryPolicy is an interface that defines retry logic.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before the given attempt (starting from 2).
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the maximum number of attempts, including the first one.
	GetMaxAttempts() int
}

// defaultRetryPolicy retries the configured error kinds with a linear backoff.
type defaultRetryPolicy struct {
	maxAttempts     int
	initialInterval time.Duration
	retryableKinds  []error
}

// NewPolicy creates a policy retrying errors matching any of retryableKinds through errors.Is.
func NewPolicy(maxAttempts int, initialInterval time.Duration, retryableKinds ...error) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &defaultRetryPolicy{
		maxAttempts:     maxAttempts,
		initialInterval: initialInterval,
		retryableKinds:  retryableKinds,
	}
}

// OnOptimisticLock retries version conflicts up to maxAttempts times.
func OnOptimisticLock(maxAttempts int) RetryPolicy {
	return NewPolicy(maxAttempts, 10*time.Millisecond, exception.ErrOptimisticLockingFailure)
}

// GetMaxAttempts returns the maximum number of attempts.
func (p *defaultRetryPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry determines if an error is retryable.
func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	for _, kind := range p.retryableKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// GetBackoffInterval grows linearly with the attempt number.
func (p *defaultRetryPolicy) GetBackoffInterval(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	return time.Duration(attempt-1) * p.initialInterval
}

// Do calls fn until it succeeds, returns a non-retryable error, or the attempts are exhausted.
// The last error is returned. A cancelled ctx stops waiting between attempts.
func Do(ctx context.Context, policy RetryPolicy, fn func(attempt int) error) error {
	var err error
	for attempt := 1; attempt <= policy.GetMaxAttempts(); attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(policy.GetBackoffInterval(attempt)):
			}
		}
		if err = fn(attempt); err == nil || !policy.ShouldRetry(err) {
			return err
		}
		logger.Debugf("Retry: attempt %d/%d failed with a retryable error: %v", attempt, policy.GetMaxAttempts(), err)
	}
	return err
}

// Verify interfaces
var _ RetryPolicy = (*defaultRetryPolicy)(nil)
