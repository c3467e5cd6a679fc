package cache

import (
    "context"
    "errors"
    "io"
    "testing"
    "time"

    "github.com/sirupsen/logrus"
    "github.com/stretchr/testify/require"

    "marketfacade/internal/kvstore"
)

func testCache(t *testing.T, store kvstore.Store) *Cache {
    t.Helper()
    log := logrus.New()
    log.SetOutput(io.Discard)
    return New(store, Config{KeyPrefix: "test"}, logrus.NewEntry(log))
}

type payload struct {
    Symbol string  `json:"symbol"`
    Price  float64 `json:"price"`
}

func TestRoundTrip(t *testing.T) {
    t.Parallel()

    c := testCache(t, kvstore.NewMemory())
    in := payload{Symbol: "AAPL", Price: 187.5}
    c.Set(t.Context(), CategoryQuote, "AAPL", in)

    var out payload
    require.True(t, c.Get(t.Context(), CategoryQuote, "AAPL", &out))
    require.Equal(t, in, out)

    cachedAt, ttl, ok := c.Meta(t.Context(), CategoryQuote, "AAPL")
    require.True(t, ok)
    require.WithinDuration(t, time.Now().UTC(), cachedAt, 5*time.Second)
    require.Equal(t, 5*time.Minute, ttl)
}

func TestMiss(t *testing.T) {
    t.Parallel()

    c := testCache(t, kvstore.NewMemory())
    var out payload
    require.False(t, c.Get(t.Context(), CategoryQuote, "MSFT", &out))

    s := c.Stats()
    require.EqualValues(t, 0, s.Hits)
    require.EqualValues(t, 1, s.Misses)
}

func TestCategoriesDoNotCollide(t *testing.T) {
    t.Parallel()

    c := testCache(t, kvstore.NewMemory())
    c.Set(t.Context(), CategoryQuote, "AAPL", payload{Symbol: "quote"})
    c.Set(t.Context(), CategoryFundamental, "AAPL", payload{Symbol: "fundamental"})

    var out payload
    require.True(t, c.Get(t.Context(), CategoryQuote, "AAPL", &out))
    require.Equal(t, "quote", out.Symbol)
    require.True(t, c.Get(t.Context(), CategoryFundamental, "AAPL", &out))
    require.Equal(t, "fundamental", out.Symbol)
}

func TestExpiry(t *testing.T) {
    t.Parallel()

    store := kvstore.NewMemory()
    base := time.Now()
    store.SetClock(func() time.Time { return base })

    c := testCache(t, store)
    c.Set(t.Context(), CategoryQuote, "AAPL", payload{Symbol: "AAPL"})

    var out payload
    require.True(t, c.Get(t.Context(), CategoryQuote, "AAPL", &out))

    base = base.Add(5*time.Minute + time.Second)
    require.False(t, c.Get(t.Context(), CategoryQuote, "AAPL", &out), "quote should expire after its TTL")
}

func TestDeleteAndPattern(t *testing.T) {
    t.Parallel()

    c := testCache(t, kvstore.NewMemory())
    c.Set(t.Context(), CategoryQuote, "AAPL", payload{})
    c.Set(t.Context(), CategoryQuote, "MSFT", payload{})
    c.Set(t.Context(), CategoryFundamental, "AAPL", payload{})

    require.True(t, c.Delete(t.Context(), CategoryQuote, "AAPL"))
    require.False(t, c.Delete(t.Context(), CategoryQuote, "AAPL"))

    n := c.DeleteByPattern(t.Context(), "quote:*")
    require.Equal(t, 1, n)
    require.True(t, c.Exists(t.Context(), CategoryFundamental, "AAPL"))
}

// failStore errors on every operation so the fail-open path can be observed.
type failStore struct{}

var errBroken = errors.New("store down")

func (failStore) Get(context.Context, string) ([]byte, error) { return nil, errBroken }
func (failStore) Set(context.Context, string, []byte, time.Duration) error {
    return errBroken
}
func (failStore) Delete(context.Context, string) (bool, error)          { return false, errBroken }
func (failStore) DeleteByPattern(context.Context, string) (int, error)  { return 0, errBroken }
func (failStore) Exists(context.Context, string) (bool, error)          { return false, errBroken }
func (failStore) TTL(context.Context, string) (time.Duration, error)    { return 0, errBroken }
func (failStore) FlushAll(context.Context) error                        { return errBroken }
func (failStore) Ping(context.Context) error                            { return errBroken }
func (failStore) Close() error                                          { return nil }

func TestFailOpen(t *testing.T) {
    t.Parallel()

    c := testCache(t, failStore{})
    c.Set(t.Context(), CategoryQuote, "AAPL", payload{Symbol: "AAPL"})

    var out payload
    require.False(t, c.Get(t.Context(), CategoryQuote, "AAPL", &out))
    require.False(t, c.Exists(t.Context(), CategoryQuote, "AAPL"))
    _, ok := c.RemainingTTL(t.Context(), CategoryQuote, "AAPL")
    require.False(t, ok)

    s := c.Stats()
    require.Positive(t, s.Errors)
    require.EqualValues(t, 0, s.Sets)
}

func TestHitRateFloor(t *testing.T) {
    t.Parallel()

    c := testCache(t, kvstore.NewMemory())
    require.Zero(t, c.Stats().HitRate, "no traffic should report a zero rate, not NaN")

    c.Set(t.Context(), CategoryQuote, "AAPL", payload{})
    var out payload
    c.Get(t.Context(), CategoryQuote, "AAPL", &out)
    c.Get(t.Context(), CategoryQuote, "GOOG", &out)
    require.InDelta(t, 0.5, c.Stats().HitRate, 1e-9)
}
