//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func quotaHeaders(remain, reset string) http.Header {
	h := http.Header{}
	h.Set(HeaderRemaining, remain)
	h.Set(HeaderReset, reset)
	return h
}

func TestTracker_Integration_DefaultState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, zerolog.Nop())
	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy {
		t.Errorf("empty redis should yield healthy default, got %+v", state)
	}
}

func TestTracker_Integration_RoundTrip(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	tracker := NewTracker(redisClient, zerolog.Nop())

	if err := tracker.UpdateFromHeaders(ctx, quotaHeaders("42", "60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 42 {
		t.Errorf("Remaining = %d, want 42", state.Remaining)
	}
	if state.IsHealthy {
		t.Error("42 remaining should not be healthy")
	}
	if d := state.TimeUntilReset(); d <= 0 || d > 60*time.Second {
		t.Errorf("TimeUntilReset() = %v, want (0, 60s]", d)
	}
}

func TestTracker_Integration_SharedBetweenInstances(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	a := NewTracker(redisClient, zerolog.Nop())
	b := NewTracker(redisClient, zerolog.Nop())

	if err := a.UpdateFromHeaders(ctx, quotaHeaders("1", "60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	allowed, err := b.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("second instance should see the exhausted quota and block")
	}
}

func TestTracker_Integration_Throttle(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	tracker := NewTracker(redisClient, zerolog.Nop())
	tracker.SetThrottleDelay(20 * time.Millisecond)

	if err := tracker.UpdateFromHeaders(ctx, quotaHeaders("10", "60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	start := time.Now()
	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("warning zone should throttle, not block")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("throttle waited %v, want >= 20ms", elapsed)
	}
}

func TestTracker_Integration_ThrottleCancelled(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, zerolog.Nop())
	tracker.SetThrottleDelay(time.Minute)

	if err := tracker.UpdateFromHeaders(context.Background(), quotaHeaders("10", "60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err == nil || allowed {
		t.Errorf("ShouldAllowRequest() = %v, %v; want false, context error", allowed, err)
	}
}

func TestTracker_Integration_WindowReset(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	tracker := NewTracker(redisClient, zerolog.Nop())

	if err := tracker.UpdateFromHeaders(ctx, quotaHeaders("0", "0")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	// Reset timestamps have one-second resolution.
	time.Sleep(1100 * time.Millisecond)

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("request should be allowed once the quota window has reset")
	}
}
