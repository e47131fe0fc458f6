package migrate

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/usernotes/internal/reddit"
)

const (
	// DefaultPacingDelay is the wait before every platform write attempt.
	DefaultPacingDelay = time.Second

	// DefaultRateLimitBackoff is the wait after the platform reports throttling.
	DefaultRateLimitBackoff = 5 * time.Second

	// DefaultTransientBackoff is the wait after a retryable server or transport failure.
	DefaultTransientBackoff = 5 * time.Second

	logMessagePassCompleteConstant     = "Work pass complete"
	logMessageItemDroppedConstant      = "Work item dropped"
	logMessageItemDeferredConstant     = "Work item deferred"
	logMessageItemAbandonedConstant    = "Work item abandoned after maximum attempts"
	logFieldRemainingConstant          = "remaining"
	logFieldAttemptsConstant           = "attempts"
	logFieldBackoffConstant            = "backoff"
	logFieldErrorKindConstant          = "error_kind"
	fatalPlatformErrorTemplateConstant = "%s aborted: %w"
)

// RetryPolicy controls pacing and retries of platform writes.
type RetryPolicy struct {
	// MaxAttempts bounds the attempts per item; zero retries forever.
	MaxAttempts       int
	PacingDelay       time.Duration
	RateLimitBackoff  time.Duration
	TransientBackoff  time.Duration
	BackoffMultiplier float64
	// BackoffCap limits a grown backoff; zero means no limit.
	BackoffCap time.Duration
}

// DefaultRetryPolicy paces writes one second apart and waits five seconds after
// throttling or transient failures, retrying without limit.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		PacingDelay:       DefaultPacingDelay,
		RateLimitBackoff:  DefaultRateLimitBackoff,
		TransientBackoff:  DefaultTransientBackoff,
		BackoffMultiplier: 1,
	}
}

// Backoff returns the wait after the given number of consecutive failures of kind.
func (policy RetryPolicy) Backoff(kind reddit.ErrorKind, consecutiveFailures int) time.Duration {
	baseBackoff := policy.TransientBackoff
	if kind == reddit.ErrorKindRateLimited {
		baseBackoff = policy.RateLimitBackoff
	}
	if baseBackoff <= 0 {
		return 0
	}

	multiplier := policy.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	exponent := consecutiveFailures - 1
	if exponent < 0 {
		exponent = 0
	}

	grown := float64(baseBackoff) * math.Pow(multiplier, float64(exponent))
	if policy.BackoffCap > 0 && grown > float64(policy.BackoffCap) {
		return policy.BackoffCap
	}
	if grown > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(grown)
}

// Exhausted reports whether an item that has been attempted attempts times must be abandoned.
func (policy RetryPolicy) Exhausted(attempts int) bool {
	return policy.MaxAttempts > 0 && attempts >= policy.MaxAttempts
}

type drainCounts struct {
	Succeeded int
	Dropped   int
	Abandoned int
}

type pendingItem[T any] struct {
	value               T
	attempts            int
	consecutiveFailures int
}

// drainWorkList performs every item in passes. Throttled and transient items go back
// on the list after a backoff, target-gone items are dropped and any other failure
// stops the drain.
func drainWorkList[T any](
	executionContext context.Context,
	logger *zap.Logger,
	clock Clock,
	policy RetryPolicy,
	operation string,
	items []T,
	describe func(T) []zap.Field,
	perform func(context.Context, T) error,
) (drainCounts, error) {
	counts := drainCounts{}
	pending := make([]pendingItem[T], 0, len(items))
	for _, item := range items {
		pending = append(pending, pendingItem[T]{value: item})
	}

	for len(pending) > 0 {
		deferred := make([]pendingItem[T], 0, len(pending))
		for _, item := range pending {
			if sleepError := clock.Sleep(executionContext, policy.PacingDelay); sleepError != nil {
				return counts, sleepError
			}

			item.attempts++
			performError := perform(executionContext, item.value)
			if performError == nil {
				counts.Succeeded++
				continue
			}
			if contextError := executionContext.Err(); contextError != nil {
				return counts, contextError
			}

			errorKind := reddit.KindOf(performError)
			itemFields := append(describe(item.value), zap.Int(logFieldAttemptsConstant, item.attempts), zap.String(logFieldErrorKindConstant, string(errorKind)), zap.Error(performError))

			switch errorKind {
			case reddit.ErrorKindTargetGone:
				counts.Dropped++
				logger.Warn(logMessageItemDroppedConstant, itemFields...)
			case reddit.ErrorKindRateLimited, reddit.ErrorKindTransient:
				if policy.Exhausted(item.attempts) {
					counts.Abandoned++
					logger.Error(logMessageItemAbandonedConstant, itemFields...)
					continue
				}
				item.consecutiveFailures++
				backoff := policy.Backoff(errorKind, item.consecutiveFailures)
				logger.Info(logMessageItemDeferredConstant, append(itemFields, zap.Duration(logFieldBackoffConstant, backoff))...)
				if sleepError := clock.Sleep(executionContext, backoff); sleepError != nil {
					return counts, sleepError
				}
				deferred = append(deferred, item)
			default:
				return counts, fmt.Errorf(fatalPlatformErrorTemplateConstant, operation, performError)
			}
		}

		pending = deferred
		logger.Info(logMessagePassCompleteConstant, zap.String(logFieldOperationConstant, operation), zap.Int(logFieldRemainingConstant, len(pending)))
	}

	return counts, nil
}
