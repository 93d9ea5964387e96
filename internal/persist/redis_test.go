package persist

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Integration test (requires running Redis)
func TestRedisStorage_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewRedisStorage(ctx, RedisConfig{Addr: addr, Prefix: "fleet-console-test:"})
	require.NoError(t, err)
	defer s.Close(context.Background())

	exerciseStorage(t, s)
}

func TestNewRedisStorage_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStorage(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
