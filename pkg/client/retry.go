package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_api_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_api_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_api_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
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
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// NoRetry performs a single attempt.
func NoRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 1}
}

// forClass stretches the backoff for rate limit errors.
func (rc RetryConfig) forClass(errorClass ErrorClass) RetryConfig {
	if errorClass == ErrorClassRateLimit {
		rc.InitialBackoff *= 4
		rc.MaxBackoff *= 4
	}
	return rc
}

// classifiedError carries the error class of a failed attempt.
type classifiedError interface {
	error
	class() ErrorClass
}

// attemptError wraps an attempt failure with its class.
type attemptError struct {
	err        error
	errorClass ErrorClass
}

func (e *attemptError) Error() string     { return e.err.Error() }
func (e *attemptError) Unwrap() error     { return e.err }
func (e *attemptError) class() ErrorClass { return e.errorClass }

// retryWithBackoff executes fn with exponential backoff until it succeeds, returns
// a non-retriable error or attempts run out. It respects context cancellation
// and adds jitter to avoid synchronized retries.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, fn func() error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	var errorClass ErrorClass
	var backoff time.Duration

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		var ce classifiedError
		if !errors.As(err, &ce) {
			return unwrapAttempt(err)
		}
		errorClass = ce.class()

		if !shouldRetry(errorClass) {
			return unwrapAttempt(err)
		}

		if attempt >= config.MaxAttempts {
			break
		}

		classConfig := config.forClass(errorClass)
		if attempt == 1 {
			backoff = classConfig.InitialBackoff
		}

		retriesTotal.WithLabelValues(string(errorClass)).Inc()

		// ±20% jitter
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		logger.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * classConfig.BackoffMultiplier)
		if backoff > classConfig.MaxBackoff {
			backoff = classConfig.MaxBackoff
		}
	}

	if config.MaxAttempts == 1 {
		return unwrapAttempt(lastErr)
	}

	retryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	logger.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, unwrapAttempt(lastErr))
}

func unwrapAttempt(err error) error {
	var ae *attemptError
	if errors.As(err, &ae) {
		return ae.err
	}
	return err
}
