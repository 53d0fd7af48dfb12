package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfig_ForClass(t *testing.T) {
	base := DefaultRetryConfig()

	rateLimited := base.forClass(ErrorClassRateLimit)
	if rateLimited.InitialBackoff != 4*base.InitialBackoff {
		t.Errorf("InitialBackoff = %v, want %v", rateLimited.InitialBackoff, 4*base.InitialBackoff)
	}

	server := base.forClass(ErrorClassServer)
	if server != base {
		t.Errorf("server config = %+v, want unchanged %+v", server, base)
	}
}

func TestRetryWithBackoff_SucceedsAfterRetry(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetry(3), zerolog.Nop(), func() error {
		attempts++
		if attempts < 3 {
			return &attemptError{err: errors.New("503"), errorClass: ErrorClassServer}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryWithBackoff_ClientErrorNotRetried(t *testing.T) {
	apiErr := &APIError{StatusCode: 404, ErrorClass: ErrorClassClient, Message: "not found"}
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetry(3), zerolog.Nop(), func() error {
		attempts++
		return &attemptError{err: apiErr, errorClass: ErrorClassClient}
	})

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	var got *APIError
	if !errors.As(err, &got) || got != apiErr {
		t.Errorf("err = %v, want the APIError itself", err)
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	cause := errors.New("boom")
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetry(3), zerolog.Nop(), func() error {
		attempts++
		return &attemptError{err: cause, errorClass: ErrorClassNetwork}
	})

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("err = %v, want ErrRetryExhausted", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want wrapped cause", err)
	}
}

func TestRetryWithBackoff_SingleAttempt(t *testing.T) {
	cause := errors.New("boom")
	err := retryWithBackoff(context.Background(), NoRetry(), zerolog.Nop(), func() error {
		return &attemptError{err: cause, errorClass: ErrorClassServer}
	})

	if err != cause {
		t.Errorf("err = %v, want the cause unwrapped", err)
	}
}

func TestRetryWithBackoff_UnclassifiedError(t *testing.T) {
	cause := errors.New("create request")
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetry(3), zerolog.Nop(), func() error {
		attempts++
		return cause
	})

	if attempts != 1 || err != cause {
		t.Errorf("attempts = %d, err = %v; want 1 attempt returning cause", attempts, err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Hour,
		MaxBackoff:        time.Hour,
		BackoffMultiplier: 2.0,
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := retryWithBackoff(ctx, config, zerolog.Nop(), func() error {
		return &attemptError{err: errors.New("503"), errorClass: ErrorClassServer}
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("err = %v, want ErrContextCancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want it to wrap context.Canceled", err)
	}
}

func TestRetryWithBackoff_DeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	config := RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Hour,
		MaxBackoff:        time.Hour,
		BackoffMultiplier: 2.0,
	}

	err := retryWithBackoff(ctx, config, zerolog.Nop(), func() error {
		return &attemptError{err: errors.New("connection reset"), errorClass: ErrorClassNetwork}
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want it to wrap context.DeadlineExceeded", err)
	}
}
