package toolcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	defer client.Close()

	cache := NewRedisCache(client, "test:", nil)
	hash := HashArgs(map[string]any{"smiles": "CCO"})

	if _, ok := cache.Get(ctx, "compute_descriptors", hash); ok {
		t.Fatalf("expected miss on empty redis")
	}
	cache.Put(ctx, "compute_descriptors", hash, `{"mw":46.07}`, NoExpiry)
	if v, ok := cache.Get(ctx, "compute_descriptors", hash); !ok || v != `{"mw":46.07}` {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}
	ttl, err := client.TTL(ctx, Key("test:", "compute_descriptors", hash)).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl != -1 {
		t.Fatalf("expected persistent key, got ttl %v", ttl)
	}

	cache.Put(ctx, "search_literature", hash, "[]", time.Minute)
	ttl, err = client.TTL(ctx, Key("test:", "search_literature", hash)).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected expiring key, got %v (%v)", ttl, err)
	}
}
