//go:build integration

package client

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/ashby-resumes/internal/testutil"
	"github.com/Sternrassler/ashby-resumes/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

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

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

// TestIntegration_CooldownAcrossProcesses simulates two server replicas that
// share one Redis: a 429 seen by the first holds back the second.
func TestIntegration_CooldownAcrossProcesses(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetSequence("candidate.list",
		testutil.NewRateLimitResponse("2"),
		testutil.NewPageResponse([]any{}, false, ""),
	)

	newReplica := func() (*Client, *sleepRecorder) {
		cfg := DefaultConfig("integration-key")
		cfg.BaseURL = mock.URL()
		cfg.Cooldown = ratelimit.NewTracker(ratelimit.NewRedisStore(redisClient), zerolog.Nop())
		c, err := New(cfg)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		recorder := &sleepRecorder{}
		c.SetSleeper(recorder.sleep)
		return c, recorder
	}

	first, _ := newReplica()
	second, secondSleeps := newReplica()
	ctx := context.Background()

	if _, err := first.Call(ctx, "candidate.list", map[string]any{"jobId": "job-1"}); err != nil {
		t.Fatalf("first Call() error = %v", err)
	}

	ttl, err := redisClient.PTTL(ctx, ratelimit.RedisKeyBlockedUntil).Result()
	if err != nil {
		t.Fatalf("PTTL error = %v", err)
	}
	if ttl <= 0 || ttl > 2*time.Second {
		t.Errorf("cooldown TTL = %v, want within (0, 2s]", ttl)
	}

	if _, err := second.Call(ctx, "candidate.list", map[string]any{"jobId": "job-1"}); err != nil {
		t.Fatalf("second Call() error = %v", err)
	}
	if waits := secondSleeps.recorded(); len(waits) != 1 || waits[0] <= 0 {
		t.Errorf("second replica waits = %v, want one shared cooldown wait", waits)
	}
}
