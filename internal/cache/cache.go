package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/bookleaf/tracker/internal/models"
)

const keyPrefix = "bookleaf:fd_cache:v1:"

func Key(scope string) string {
	return keyPrefix + scope
}

// RedisTicketCache keeps one JSON snapshot per scope. Entries never expire;
// the reader judges freshness from FetchedAt.
type RedisTicketCache struct {
	Client *redis.Client
}

func NewRedis(addr, password string, db int) *RedisTicketCache {
	return &RedisTicketCache{Client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (c *RedisTicketCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisTicketCache) Close() error {
	return c.Client.Close()
}

func (c *RedisTicketCache) Load(ctx context.Context, scope string) (models.TicketSnapshot, bool, error) {
	raw, err := c.Client.Get(ctx, Key(scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.TicketSnapshot{}, false, nil
	}
	if err != nil {
		return models.TicketSnapshot{}, false, err
	}
	var snap models.TicketSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return models.TicketSnapshot{}, false, fmt.Errorf("decode ticket snapshot: %w", err)
	}
	return snap, true, nil
}

func (c *RedisTicketCache) Store(ctx context.Context, scope string, snap models.TicketSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, Key(scope), raw, 0).Err()
}

// MemoryTicketCache is used when Redis is not configured.
type MemoryTicketCache struct {
	mu    sync.RWMutex
	snaps map[string]models.TicketSnapshot
}

func NewMemory() *MemoryTicketCache {
	return &MemoryTicketCache{snaps: map[string]models.TicketSnapshot{}}
}

func (c *MemoryTicketCache) Load(ctx context.Context, scope string) (models.TicketSnapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snaps[scope]
	if !ok {
		return models.TicketSnapshot{}, false, nil
	}
	out := snap
	out.Tickets = append([]models.TicketFact(nil), snap.Tickets...)
	return out, true, nil
}

func (c *MemoryTicketCache) Store(ctx context.Context, scope string, snap models.TicketSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap.Tickets = append([]models.TicketFact(nil), snap.Tickets...)
	c.snaps[scope] = snap
	return nil
}
