//go:build integration

package api

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()

	redisC, err := rediscontainer.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisC.Terminate(context.Background()) })

	uri, err := redisC.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisIdempotencyStore(client)

	resp, processing, err := store.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.Nil(t, resp)
	require.False(t, processing)

	ok, err := store.Reserve(ctx, "k1", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Reserve(ctx, "k1", 10*time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	_, processing, err = store.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.True(t, processing)

	require.NoError(t, store.Complete(ctx, "k1", StoredResponse{Status: 202, Body: []byte(`{"eventId":"e1"}`)}, time.Hour))
	resp, processing, err = store.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.False(t, processing)
	require.Equal(t, 202, resp.Status)
	require.JSONEq(t, `{"eventId":"e1"}`, string(resp.Body))

	ttl, err := client.TTL(ctx, "idempotency:k1").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, 50*time.Minute)

	require.NoError(t, store.Release(ctx, "k1"))
	resp, _, err = store.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.Nil(t, resp)
}
