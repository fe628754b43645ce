package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookleaf/tracker/internal/models"
)

func snapshot() models.TicketSnapshot {
	id := int64(3)
	return models.TicketSnapshot{
		Tickets:   []models.TicketFact{{ID: 1, RequesterEmail: "a@x.com", ResponderID: &id, StatusCode: models.TicketOpen}},
		FetchedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMemoryTicketCache(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	_, ok, err := c.Load(ctx, "admin")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Store(ctx, "admin", snapshot()))
	got, ok, err := c.Load(ctx, "admin")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot().FetchedAt, got.FetchedAt)

	got.Tickets[0].Subject = "mutated"
	again, _, _ := c.Load(ctx, "admin")
	assert.Empty(t, again.Tickets[0].Subject)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "bookleaf:fd_cache:v1:admin", Key("admin"))
}

func TestRedisTicketCacheIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	c := NewRedis(addr, "", 0)
	defer c.Close()
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	scope := "test-" + time.Now().Format("150405.000000")
	defer c.Client.Del(ctx, Key(scope))

	_, ok, err := c.Load(ctx, scope)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Store(ctx, scope, snapshot()))
	got, ok, err := c.Load(ctx, scope)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot(), got)

	ttl, err := c.Client.TTL(ctx, Key(scope)).Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}
