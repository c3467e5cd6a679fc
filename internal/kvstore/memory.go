package kvstore

import (
    "context"
    "path"
    "sync"
    "time"
)

type memEntry struct {
    value     []byte
    expiresAt time.Time // zero means no expiry
}

// Memory implements Store in-process. It mirrors the Redis semantics closely
// enough to back tests and cacheless development runs: expiry is checked on
// every read, so an expired key behaves exactly like a missing one.
type Memory struct {
    mu    sync.RWMutex
    items map[string]memEntry

    // now is swappable so tests can advance the clock instead of sleeping.
    now func() time.Time
}

func NewMemory() *Memory {
    return &Memory{items: make(map[string]memEntry), now: time.Now}
}

// SetClock swaps the time source. Tests use it to advance past TTLs without
// sleeping.
func (m *Memory) SetClock(now func() time.Time) {
    m.mu.Lock()
    m.now = now
    m.mu.Unlock()
}

func (m *Memory) live(e memEntry) bool {
    return e.expiresAt.IsZero() || m.now().Before(e.expiresAt)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
    m.mu.RLock()
    e, ok := m.items[key]
    m.mu.RUnlock()
    if !ok || !m.live(e) {
        return nil, ErrNotFound
    }
    out := make([]byte, len(e.value))
    copy(out, e.value)
    return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
    e := memEntry{value: make([]byte, len(value))}
    copy(e.value, value)
    if ttl > 0 {
        e.expiresAt = m.now().Add(ttl)
    }
    m.mu.Lock()
    m.items[key] = e
    m.mu.Unlock()
    return nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    e, ok := m.items[key]
    delete(m.items, key)
    return ok && m.live(e), nil
}

func (m *Memory) DeleteByPattern(_ context.Context, pattern string) (int, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    var n int
    for k, e := range m.items {
        ok, err := path.Match(pattern, k)
        if err != nil {
            return n, err
        }
        if ok {
            if m.live(e) { n++ }
            delete(m.items, k)
        }
    }
    return n, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
    m.mu.RLock()
    e, ok := m.items[key]
    m.mu.RUnlock()
    return ok && m.live(e), nil
}

func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
    m.mu.RLock()
    e, ok := m.items[key]
    m.mu.RUnlock()
    if !ok || !m.live(e) {
        return 0, ErrNotFound
    }
    if e.expiresAt.IsZero() {
        return 0, nil
    }
    return e.expiresAt.Sub(m.now()), nil
}

func (m *Memory) FlushAll(_ context.Context) error {
    m.mu.Lock()
    m.items = make(map[string]memEntry)
    m.mu.Unlock()
    return nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
