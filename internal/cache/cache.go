package cache

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/sirupsen/logrus"

    "marketfacade/internal/kvstore"
)

// Category names the kind of payload stored under a key. Each category has
// its own TTL so that volatile data (quotes) expires quickly while slow-moving
// data (statements) lives for a day.
type Category string

const (
    CategoryQuote       Category = "quote"
    CategoryHistorical  Category = "historical"
    CategoryFundamental Category = "fundamental"
    CategoryStatement   Category = "statement"
    CategorySearch      Category = "search"
    CategoryCompany     Category = "company"
    CategoryStatistics  Category = "statistics"
)

type Config struct {
    KeyPrefix      string
    DefaultTTL     time.Duration
    TTLByCategory  map[Category]time.Duration
}

func (c Config) withDefaults() Config {
    if c.KeyPrefix == "" { c.KeyPrefix = "market" }
    if c.DefaultTTL <= 0 { c.DefaultTTL = 30 * time.Minute }
    if c.TTLByCategory == nil {
        c.TTLByCategory = map[Category]time.Duration{
            CategoryQuote:       5 * time.Minute,
            CategoryHistorical:  time.Hour,
            CategoryFundamental: 2 * time.Hour,
            CategoryStatement:   24 * time.Hour,
            CategorySearch:      30 * time.Minute,
            CategoryCompany:     2 * time.Hour,
            CategoryStatistics:  5 * time.Minute,
        }
    }
    return c
}

// envelope wraps every cached payload with its write time and TTL so readers
// can report data age without a second store round trip.
type envelope struct {
    CachedAt   time.Time       `json:"cached_at"`
    TTLSeconds int             `json:"ttl_seconds"`
    Payload    json.RawMessage `json:"payload"`
}

// Cache is a category-aware layer over a kvstore.Store. Every store failure
// is absorbed: a broken cache degrades to a miss (reads) or a no-op (writes)
// and never propagates to the caller.
type Cache struct {
    store kvstore.Store
    cfg   Config
    log   *logrus.Entry

    mu      sync.Mutex
    hits    int64
    misses  int64
    sets    int64
    deletes int64
    errors  int64
}

func New(store kvstore.Store, cfg Config, log *logrus.Entry) *Cache {
    return &Cache{store: store, cfg: cfg.withDefaults(), log: log}
}

func (c *Cache) key(cat Category, id string) string {
    return fmt.Sprintf("%s:%s:%s", c.cfg.KeyPrefix, cat, id)
}

// TTLFor returns the configured lifetime for a category, falling back to the
// default for categories without an explicit entry.
func (c *Cache) TTLFor(cat Category) time.Duration {
    if ttl, ok := c.cfg.TTLByCategory[cat]; ok && ttl > 0 {
        return ttl
    }
    return c.cfg.DefaultTTL
}

// Get loads a cached payload into out. It returns false on a miss, on any
// store error, or when the stored bytes no longer decode.
func (c *Cache) Get(ctx context.Context, cat Category, id string, out any) bool {
    key := c.key(cat, id)
    raw, err := c.store.Get(ctx, key)
    if err != nil {
        if !errors.Is(err, kvstore.ErrNotFound) {
            c.countError()
            c.log.WithError(err).WithField("key", key).Warn("cache read failed")
        }
        c.countMiss()
        return false
    }
    var env envelope
    if err := json.Unmarshal(raw, &env); err != nil {
        c.countError()
        c.log.WithError(err).WithField("key", key).Warn("cache entry corrupt")
        c.countMiss()
        return false
    }
    if err := json.Unmarshal(env.Payload, out); err != nil {
        c.countError()
        c.log.WithError(err).WithField("key", key).Warn("cache payload corrupt")
        c.countMiss()
        return false
    }
    c.countHit()
    return true
}

// Meta reports the envelope metadata for a cached entry without decoding its
// payload. ok is false on miss or error.
func (c *Cache) Meta(ctx context.Context, cat Category, id string) (cachedAt time.Time, ttl time.Duration, ok bool) {
    raw, err := c.store.Get(ctx, c.key(cat, id))
    if err != nil {
        return time.Time{}, 0, false
    }
    var env envelope
    if err := json.Unmarshal(raw, &env); err != nil {
        return time.Time{}, 0, false
    }
    return env.CachedAt, time.Duration(env.TTLSeconds) * time.Second, true
}

// Set stores a payload under the category's configured TTL. It reports
// whether the write reached the store.
func (c *Cache) Set(ctx context.Context, cat Category, id string, v any) bool {
    return c.SetTTL(ctx, cat, id, v, c.TTLFor(cat))
}

// SetTTL stores a payload with an explicit TTL, bypassing the category table.
func (c *Cache) SetTTL(ctx context.Context, cat Category, id string, v any, ttl time.Duration) bool {
    key := c.key(cat, id)
    payload, err := json.Marshal(v)
    if err != nil {
        c.countError()
        c.log.WithError(err).WithField("key", key).Warn("cache payload not serializable")
        return false
    }
    env := envelope{
        CachedAt:   time.Now().UTC(),
        TTLSeconds: int(ttl / time.Second),
        Payload:    payload,
    }
    raw, err := json.Marshal(env)
    if err != nil {
        c.countError()
        return false
    }
    if err := c.store.Set(ctx, key, raw, ttl); err != nil {
        c.countError()
        c.log.WithError(err).WithField("key", key).Warn("cache write failed")
        return false
    }
    c.mu.Lock()
    c.sets++
    c.mu.Unlock()
    return true
}

// Delete removes one entry. It reports whether the entry existed.
func (c *Cache) Delete(ctx context.Context, cat Category, id string) bool {
    existed, err := c.store.Delete(ctx, c.key(cat, id))
    if err != nil {
        c.countError()
        c.log.WithError(err).Warn("cache delete failed")
        return false
    }
    if existed {
        c.mu.Lock()
        c.deletes++
        c.mu.Unlock()
    }
    return existed
}

// DeleteByPattern removes every entry whose key matches the glob pattern.
// The pattern is scoped under the configured prefix.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) int {
    n, err := c.store.DeleteByPattern(ctx, fmt.Sprintf("%s:%s", c.cfg.KeyPrefix, pattern))
    if err != nil {
        c.countError()
        c.log.WithError(err).WithField("pattern", pattern).Warn("cache pattern delete failed")
        return 0
    }
    c.mu.Lock()
    c.deletes += int64(n)
    c.mu.Unlock()
    return n
}

func (c *Cache) Exists(ctx context.Context, cat Category, id string) bool {
    ok, err := c.store.Exists(ctx, c.key(cat, id))
    if err != nil {
        c.countError()
        return false
    }
    return ok
}

// RemainingTTL reports how long an entry has left to live. ok is false when
// the entry is missing or the store errs.
func (c *Cache) RemainingTTL(ctx context.Context, cat Category, id string) (time.Duration, bool) {
    d, err := c.store.TTL(ctx, c.key(cat, id))
    if err != nil {
        if !errors.Is(err, kvstore.ErrNotFound) {
            c.countError()
        }
        return 0, false
    }
    return d, true
}

func (c *Cache) FlushAll(ctx context.Context) error {
    return c.store.FlushAll(ctx)
}

func (c *Cache) Ping(ctx context.Context) error {
    return c.store.Ping(ctx)
}

// Stats is a snapshot of the cache's hit/miss counters.
type Stats struct {
    Hits    int64   `json:"hits"`
    Misses  int64   `json:"misses"`
    Sets    int64   `json:"sets"`
    Deletes int64   `json:"deletes"`
    Errors  int64   `json:"errors"`
    HitRate float64 `json:"hit_rate"`
}

func (c *Cache) Stats() Stats {
    c.mu.Lock()
    defer c.mu.Unlock()
    total := c.hits + c.misses
    if total < 1 { total = 1 }
    return Stats{
        Hits:    c.hits,
        Misses:  c.misses,
        Sets:    c.sets,
        Deletes: c.deletes,
        Errors:  c.errors,
        HitRate: float64(c.hits) / float64(total),
    }
}

func (c *Cache) countHit()  { c.mu.Lock(); c.hits++; c.mu.Unlock() }
func (c *Cache) countMiss() { c.mu.Lock(); c.misses++; c.mu.Unlock() }
func (c *Cache) countError() { c.mu.Lock(); c.errors++; c.mu.Unlock() }
