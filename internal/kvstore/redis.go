package kvstore

import (
    "context"
    "errors"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis-backed store.
type RedisConfig struct {
    Addr     string
    Password string
    DB       int
}

// Redis implements Store on a single Redis database. TTL expiry is native to
// the server, so callers never scan for staleness.
type Redis struct {
    rdb *redis.Client
}

func NewRedis(cfg RedisConfig) *Redis {
    return &Redis{rdb: redis.NewClient(&redis.Options{
        Addr:     cfg.Addr,
        Password: cfg.Password,
        DB:       cfg.DB,
    })}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
    b, err := r.rdb.Get(ctx, key).Bytes()
    if errors.Is(err, redis.Nil) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    return b, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
    if ttl < 0 { ttl = 0 }
    return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
    n, err := r.rdb.Del(ctx, key).Result()
    return n > 0, err
}

func (r *Redis) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
    var deleted int
    iter := r.rdb.Scan(ctx, 0, pattern, 100).Iterator()
    batch := make([]string, 0, 100)
    flush := func() error {
        if len(batch) == 0 { return nil }
        n, err := r.rdb.Del(ctx, batch...).Result()
        deleted += int(n)
        batch = batch[:0]
        return err
    }
    for iter.Next(ctx) {
        batch = append(batch, iter.Val())
        if len(batch) == 100 {
            if err := flush(); err != nil {
                return deleted, err
            }
        }
    }
    if err := iter.Err(); err != nil {
        return deleted, err
    }
    if err := flush(); err != nil {
        return deleted, err
    }
    return deleted, nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
    n, err := r.rdb.Exists(ctx, key).Result()
    return n > 0, err
}

func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
    d, err := r.rdb.TTL(ctx, key).Result()
    if err != nil {
        return 0, err
    }
    // go-redis passes the sentinel replies through unscaled:
    // -2 key does not exist, -1 key exists without expiry.
    if d == -2 {
        return 0, ErrNotFound
    }
    if d < 0 {
        return 0, nil
    }
    return d, nil
}

func (r *Redis) FlushAll(ctx context.Context) error {
    return r.rdb.FlushDB(ctx).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
    return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
    return r.rdb.Close()
}
