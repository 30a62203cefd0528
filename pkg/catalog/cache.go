package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// CacheConfig configures a CachedStore
type CacheConfig struct {
	// Size is the number of records kept in process (default 256)
	Size int
	// TTL applies to both cache levels (default 5m)
	TTL time.Duration
	// Redis enables the shared second level when set
	Redis *redis.Client
	// KeyPrefix namespaces Redis keys (default "plughost:catalog:")
	KeyPrefix string
	Logger    *logrus.Logger
}

// CachedStore caches FindByID results in front of another Store.
// Writes go to the backing store first, then invalidate both levels.
// Redis errors degrade to cache misses.
type CachedStore struct {
	next   Store
	local  *lru.LRU[string, Record]
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	log    *logrus.Logger
}

// NewCachedStore wraps next with an expiring LRU and optional Redis level
func NewCachedStore(next Store, cfg CacheConfig) *CachedStore {
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "plughost:catalog:"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &CachedStore{
		next:   next,
		local:  lru.NewLRU[string, Record](cfg.Size, nil, cfg.TTL),
		redis:  cfg.Redis,
		ttl:    cfg.TTL,
		prefix: cfg.KeyPrefix,
		log:    cfg.Logger,
	}
}

// NewRedisClient parses a redis:// URL and verifies the connection
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// FindAll implements Store. Listing always reads the backing store.
func (c *CachedStore) FindAll(ctx context.Context) ([]Record, error) {
	return c.next.FindAll(ctx)
}

// FindByID implements Store
func (c *CachedStore) FindByID(ctx context.Context, id string) (*Record, error) {
	if rec, ok := c.local.Get(id); ok {
		clone := rec.Clone()
		return &clone, nil
	}

	if rec, ok := c.getRemote(ctx, id); ok {
		c.local.Add(id, rec)
		clone := rec.Clone()
		return &clone, nil
	}

	rec, err := c.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.local.Add(id, rec.Clone())
	c.setRemote(ctx, *rec)
	return rec, nil
}

// Replace implements Store
func (c *CachedStore) Replace(ctx context.Context, rec Record) error {
	defer c.invalidate(ctx, rec.ID)
	return c.next.Replace(ctx, rec)
}

// SetEnabled implements Store
func (c *CachedStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	defer c.invalidate(ctx, id)
	return c.next.SetEnabled(ctx, id, enabled)
}

// Delete implements Store
func (c *CachedStore) Delete(ctx context.Context, id string) error {
	defer c.invalidate(ctx, id)
	return c.next.Delete(ctx, id)
}

// Len returns the number of records held in process
func (c *CachedStore) Len() int {
	return c.local.Len()
}

func (c *CachedStore) key(id string) string {
	return c.prefix + id
}

func (c *CachedStore) getRemote(ctx context.Context, id string) (Record, bool) {
	if c.redis == nil {
		return Record{}, false
	}

	data, err := c.redis.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false
	}
	if err != nil {
		c.log.WithError(err).Warnf("catalog cache: redis get %s failed", id)
		return Record{}, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// Drop corrupt entries
		c.redis.Del(ctx, c.key(id))
		return Record{}, false
	}
	return rec, true
}

func (c *CachedStore) setRemote(ctx context.Context, rec Record) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.key(rec.ID), data, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warnf("catalog cache: redis set %s failed", rec.ID)
	}
}

func (c *CachedStore) invalidate(ctx context.Context, id string) {
	c.local.Remove(id)
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.key(id)).Err(); err != nil {
		c.log.WithError(err).Warnf("catalog cache: redis invalidate %s failed", id)
	}
}
