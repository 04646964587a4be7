package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"wishboard/domain"
)

const wishesCacheKey = "wishes:list"

type backend interface {
	List(ctx context.Context) ([]domain.Wish, error)
	Create(ctx context.Context, text string) (domain.Wish, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	Delete(ctx context.Context, id string) error
}

// Cache wraps a backend with a Redis-backed copy of the wish list. Every
// successful mutation evicts the cached list.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) List(ctx context.Context) ([]domain.Wish, error) {
	if wishes, ok := c.load(ctx); ok {
		return wishes, nil
	}

	wishes, err := c.base.List(ctx)
	if err != nil {
		return nil, err
	}

	c.store(ctx, wishes)
	return wishes, nil
}

func (c *Cache) Create(ctx context.Context, text string) (domain.Wish, error) {
	w, err := c.base.Create(ctx, text)
	if err != nil {
		return domain.Wish{}, err
	}
	c.evict(ctx)
	return w, nil
}

func (c *Cache) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	if err := c.base.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.base.Delete(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) load(ctx context.Context) ([]domain.Wish, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, wishesCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, wishesCacheKey).Err()
		}
		return nil, false
	}
	var wishes []domain.Wish
	if err := json.Unmarshal(data, &wishes); err != nil {
		_ = c.redis.Del(ctx, wishesCacheKey).Err()
		return nil, false
	}
	return wishes, true
}

func (c *Cache) store(ctx context.Context, wishes []domain.Wish) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(wishes)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, wishesCacheKey, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, wishesCacheKey).Err()
}
