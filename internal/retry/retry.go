// Package retry classifies failures and executes operations with
// exponential backoff. Timeouts belong to the caller: pass a cancellable
// context and the loop honors it before every attempt and every sleep.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	cperrors "costplan/internal/errors"
	"costplan/internal/logging"
)

// Retryability classifies a failure
type Retryability int

const (
	// Terminal failures must not be retried
	Terminal Retryability = iota

	// Retryable failures may be retried with backoff
	Retryable
)

// throttlingCodes are provider API error codes treated as transient.
var throttlingCodes = map[string]bool{
	"Throttling":                true,
	"ThrottlingException":       true,
	"RequestLimitExceeded":      true,
	"TooManyRequestsException":  true,
	"ProvisionedThroughputExceededException": true,
	"SlowDown":                  true,
	"ServiceUnavailable":        true,
	"InternalError":             true,
	"InternalFailure":           true,
	"RequestTimeout":            true,
	"RequestTimeoutException":   true,
}

// Classify decides whether an error is worth retrying.
// Throttling, transient 5xx, and connection errors are retryable.
// Validation, security, transform, and other 4xx-class failures are terminal.
func Classify(err error) Retryability {
	if err == nil {
		return Terminal
	}

	switch cperrors.TypeOf(err) {
	case cperrors.TypeUpstream, cperrors.TypeTimeout:
		return Retryable
	case cperrors.TypeValidation, cperrors.TypeSecurity, cperrors.TypeTransform,
		cperrors.TypeConflict, cperrors.TypeImmutability, cperrors.TypeNotFound,
		cperrors.TypeSubprocess:
		return Terminal
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if throttlingCodes[apiErr.ErrorCode()] {
			return Retryable
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return Retryable
		}
		return Terminal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}

	return Terminal
}

// Policy configures the backoff loop
type Policy struct {
	// MaxAttempts is the total number of attempts (first try included)
	MaxAttempts int

	// Base is the initial delay; attempt n sleeps base * 2^n with jitter
	Base time.Duration

	// MaxDelay caps the computed delay
	MaxDelay time.Duration
}

// DefaultPolicy returns sensible defaults
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Base:        time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Do runs fn until it succeeds, returns a terminal error, or attempts are
// exhausted. The last error is returned unwrapped so the caller keeps the
// original cause.
func Do(ctx context.Context, policy Policy, name string, fn func(ctx context.Context) error) error {
	log := logging.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				log.Info("operation succeeded after retry",
					zap.String("operation", name),
					zap.Int("attempts", attempt+1))
			}
			return nil
		}

		if Classify(lastErr) == Terminal {
			return lastErr
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(policy, attempt)
		log.Warn("operation failed, backing off",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// backoffDelay computes base * 2^attempt capped at MaxDelay, with full jitter.
func backoffDelay(policy Policy, attempt int) time.Duration {
	delay := policy.Base << uint(attempt)
	if delay > policy.MaxDelay || delay <= 0 {
		delay = policy.MaxDelay
	}
	// Full jitter: uniform in (delay/2, delay].
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
