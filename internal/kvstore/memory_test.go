package kvstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	require.NoError(t, m.Set(t.Context(), "k", []byte("v"), 0))

	got, err := m.Get(t.Context(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	_, err = m.Get(t.Context(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryExpiry(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	base := time.Now()
	m.SetClock(func() time.Time { return base })

	require.NoError(t, m.Set(t.Context(), "k", []byte("v"), time.Minute))

	_, err := m.Get(t.Context(), "k")
	require.NoError(t, err)

	base = base.Add(61 * time.Second)
	_, err = m.Get(t.Context(), "k")
	require.ErrorIs(t, err, ErrNotFound, "expired keys read as missing")

	ok, err := m.Exists(t.Context(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryValueIsolation(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	v := []byte("abc")
	require.NoError(t, m.Set(t.Context(), "k", v, 0))
	v[0] = 'x'

	got, err := m.Get(t.Context(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got, "stored value must not alias the caller's slice")

	got[0] = 'z'
	again, err := m.Get(t.Context(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}

func TestMemoryDelete(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	require.NoError(t, m.Set(t.Context(), "k", []byte("v"), 0))

	existed, err := m.Delete(t.Context(), "k")
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = m.Delete(t.Context(), "k")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestMemoryDeleteByPattern(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	for _, k := range []string{"market:quote:AAPL", "market:quote:MSFT", "market:fundamental:AAPL"} {
		require.NoError(t, m.Set(t.Context(), k, []byte("v"), 0))
	}

	n, err := m.DeleteByPattern(t.Context(), "market:quote:*")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	ok, _ := m.Exists(t.Context(), "market:fundamental:AAPL")
	require.True(t, ok)
}

func TestMemoryTTL(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	base := time.Now()
	m.SetClock(func() time.Time { return base })

	require.NoError(t, m.Set(t.Context(), "expiring", []byte("v"), time.Minute))
	require.NoError(t, m.Set(t.Context(), "forever", []byte("v"), 0))

	d, err := m.TTL(t.Context(), "expiring")
	require.NoError(t, err)
	require.Equal(t, time.Minute, d)

	d, err = m.TTL(t.Context(), "forever")
	require.NoError(t, err)
	require.Zero(t, d)

	_, err = m.TTL(t.Context(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryFlushAll(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	require.NoError(t, m.Set(t.Context(), "a", []byte("1"), 0))
	require.NoError(t, m.Set(t.Context(), "b", []byte("2"), 0))
	require.NoError(t, m.FlushAll(t.Context()))

	_, err := m.Get(t.Context(), "a")
	require.ErrorIs(t, err, ErrNotFound)
}
