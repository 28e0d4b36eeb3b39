package cache

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSummaryCache_PutGet(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	c := NewSummaryCache(client, "test:summary:", time.Minute)

	ctx := context.Background()
	s := diagram.Summary{ID: "d1", OwnerID: "alice", Title: "Order Flow", Version: 3}
	require.NoError(t, c.Put(ctx, s))

	got, err := c.Get(ctx, "d1", 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Order Flow", got.Title)

	// an entry for an old version never answers for a newer one
	stale, err := c.Get(ctx, "d1", 4)
	require.NoError(t, err)
	require.Nil(t, stale)
}

func TestSummaryCache_TTLExpiry(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	c := NewSummaryCache(client, "test:summary:", time.Second)

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, diagram.Summary{ID: "d1", Version: 1}))

	got, err := c.Get(ctx, "d1", 1)
	require.NoError(t, err)
	require.NotNil(t, got)

	m.FastForward(2 * time.Second)

	got2, err := c.Get(ctx, "d1", 1)
	require.NoError(t, err)
	require.Nil(t, got2)
}
