package broker

import (
	"testing"
	"time"

	"appforge/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuotaBroker(t *testing.T, limit int) (*Broker, *time.Time) {
	t.Helper()
	st := store.Open(t.TempDir())
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	b := New(st, "http://unused.invalid", limit, WithClock(func() time.Time { return *clock }))
	return b, clock
}

func TestQuotaExhaustsAtLimit(t *testing.T) {
	b, _ := newQuotaBroker(t, 5)

	for i := 0; i < 5; i++ {
		ok, err := b.CanUseDemoKey()
		require.NoError(t, err)
		assert.True(t, ok, "use %d should be allowed", i+1)
		require.NoError(t, b.IncrementUsage())
	}

	ok, err := b.CanUseDemoKey()
	require.NoError(t, err)
	assert.False(t, ok, "sixth use must be denied")
}

func TestQuotaWindowReset(t *testing.T) {
	b, clock := newQuotaBroker(t, 2)

	require.NoError(t, b.IncrementUsage())
	require.NoError(t, b.IncrementUsage())
	ok, err := b.CanUseDemoKey()
	require.NoError(t, err)
	assert.False(t, ok)

	// Just under 24h: still the same window.
	*clock = clock.Add(24*time.Hour - time.Minute)
	ok, err = b.CanUseDemoKey()
	require.NoError(t, err)
	assert.False(t, ok)

	// Past the window boundary the count resets.
	*clock = clock.Add(2 * time.Minute)
	ok, err = b.CanUseDemoKey()
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := b.Quota()
	require.NoError(t, err)
	assert.Equal(t, 0, status.Used)
}

func TestQuotaStatus(t *testing.T) {
	b, clock := newQuotaBroker(t, 5)

	status, err := b.Quota()
	require.NoError(t, err)
	assert.Equal(t, 0, status.Used)
	assert.Equal(t, 5, status.Limit)
	assert.Equal(t, "0/5", status.String())

	require.NoError(t, b.IncrementUsage())
	status, err = b.Quota()
	require.NoError(t, err)
	assert.Equal(t, 1, status.Used)
	assert.Equal(t, *clock, status.WindowStart.UTC())
	assert.Equal(t, clock.Add(24*time.Hour), status.ResetsAt.UTC())
}

func TestQuotaPersistsAcrossBrokers(t *testing.T) {
	dir := t.TempDir()
	st := store.Open(dir)
	b := New(st, "http://unused.invalid", 5)
	require.NoError(t, b.IncrementUsage())
	require.NoError(t, b.IncrementUsage())

	// A fresh broker over the same store sees the same window.
	b2 := New(store.Open(dir), "http://unused.invalid", 5)
	status, err := b2.Quota()
	require.NoError(t, err)
	assert.Equal(t, 2, status.Used)
}
