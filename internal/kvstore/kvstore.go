package kvstore

import (
    "context"
    "errors"
    "time"
)

// ErrNotFound signals a missing or expired key.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the durable key-value collaborator the cache layer sits on.
// Expiry is the store's own job: a key set with a TTL must stop being readable
// once the TTL elapses. Any backend offering these primitives is substitutable.
type Store interface {
    // Get returns the value for key, or ErrNotFound when missing or expired.
    Get(ctx context.Context, key string) ([]byte, error)
    // Set stores value under key. A ttl <= 0 stores without expiry.
    Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
    // Delete removes key, reporting whether it existed.
    Delete(ctx context.Context, key string) (bool, error)
    // DeleteByPattern removes all keys matching a glob pattern and returns the count.
    DeleteByPattern(ctx context.Context, pattern string) (int, error)
    Exists(ctx context.Context, key string) (bool, error)
    // TTL returns the remaining lifetime of key; ErrNotFound when the key is
    // missing, and 0 with a nil error when the key has no expiry.
    TTL(ctx context.Context, key string) (time.Duration, error)
    FlushAll(ctx context.Context) error
    Ping(ctx context.Context) error
    Close() error
}
