// Package testredis starts a disposable Redis server for integration tests.
package testredis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// Image is the Redis image used by Start.
const Image = "redis:7-alpine"

// Start runs a Redis container for the lifetime of t and returns a client
// connected to it. The test is skipped in -short mode or when no container
// runtime is reachable.
func Start(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcredis.Run(ctx, Image)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}

	opt, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}

	client := redis.NewClient(opt)
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
