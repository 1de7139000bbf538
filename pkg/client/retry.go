package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmgnscan_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gmgnscan_retry_delay_seconds",
		Help:    "Time slept between attempts",
		Buckets: []float64{0.1, 0.5, 1, 2, 5},
	})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmgnscan_retry_exhausted_total",
		Help: "Total number of requests that used up every attempt, by error class",
	}, []string{"error_class"})
)

// RetryPolicy bounds the attempt loop of one logical request.
type RetryPolicy struct {
	// MaxAttempts is the number of attempts including the first one.
	MaxAttempts int

	// Delay is slept between attempts. It is fixed, not exponential.
	Delay time.Duration
}

// retryFixed runs fn up to policy.MaxAttempts times, sleeping policy.Delay
// between attempts. fn receives the 1-based attempt number. Non-retryable
// errors and context cancellation end the loop early.
func retryFixed(ctx context.Context, policy RetryPolicy, logger zerolog.Logger, fn func(attempt int) error) (int, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return attempt, nil
		}
		lastErr = err

		class := Classify(err)
		if !IsRetryable(class) {
			if class == ErrorClassCancelled {
				return attempt, fmt.Errorf("%w: %v", ErrContextCancelled, err)
			}
			return attempt, err
		}

		if attempt >= policy.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(class)).Inc()
		logger.Debug().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("delay", policy.Delay).
			Msg("Retrying request after delay")

		if policy.Delay > 0 {
			retryDelaySeconds.Observe(policy.Delay.Seconds())
			timer := time.NewTimer(policy.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.Warn().Int("attempt", attempt).Msg("Context cancelled during retry delay")
				return attempt, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			case <-timer.C:
			}
		}
	}

	class := Classify(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Err(lastErr).
		Str("error_class", string(class)).
		Int("max_attempts", policy.MaxAttempts).
		Msg("Retry attempts exhausted")

	return policy.MaxAttempts, lastErr
}
