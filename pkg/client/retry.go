package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dashmarketing/export-client/pkg/export"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	exportRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "export_retries_total",
		Help: "Total number of retry attempts",
	})

	exportRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "export_retry_backoff_seconds",
		Help:    "Backoff duration for retries",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	exportRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "export_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted",
	})
)

// Common errors returned by the retry helper.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// RetryConfig holds the configuration for the retry helper.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retry executes fn with exponential backoff and jitter. FetchPage and
// FetchAll never retry on their own; wrapping them in Retry is how a caller
// opts in. Deterministic failures are returned immediately: 4xx, malformed
// bodies, and partial responses (a partial export should be re-requested
// later, on the caller's schedule, not hammered in a tight loop).
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	if config.MaxAttempts <= 0 {
		config = DefaultRetryConfig()
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Export request succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !export.Retryable(err) {
			return lastErr
		}

		if attempt >= config.MaxAttempts {
			break
		}

		exportRetriesTotal.Inc()

		// ±20% jitter to avoid synchronized retries
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		exportRetryBackoffSeconds.Observe(jitter.Seconds())

		log.Debug().
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying export request after backoff")

		select {
		case <-ctx.Done():
			log.Warn().
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	exportRetryExhaustedTotal.Inc()
	log.Warn().
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
