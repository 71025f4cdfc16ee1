package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qnwis/qnwis/internal/testutil"
)

func TestMemoryBackend_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	_, ok, err := b.Get(ctx, "qnwis:ddl:v1:missing:0000000000000000")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "k1", "v1", 0))
	got, ok, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", got)

	require.NoError(t, b.Set(ctx, "k1", "v2", 0))
	got, _, err = b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got, "set must overwrite")

	require.NoError(t, b.Delete(ctx, "k1"))
	_, ok, err = b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Delete(ctx, "k1"), "deleting an absent key is a no-op")
}

func TestMemoryBackend_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC))
	stats := NewStats()
	b := NewMemory(WithMemoryClock(clock.Now), WithMemoryStats(stats))

	require.NoError(t, b.Set(ctx, "k1", "v1", time.Minute))

	clock.Advance(59 * time.Second)
	got, ok, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok, "entry must survive until its expiry instant")
	assert.Equal(t, "v1", got)

	clock.Advance(time.Second)
	_, ok, err = b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "entry must be gone at exactly set-time plus ttl")
	assert.Equal(t, 0, b.Len(), "expired entry is deleted on read")
	assert.Equal(t, int64(1), stats.Snapshot().Evictions)

	_, ok, err = b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), stats.Snapshot().Evictions,
		"a key evicts once, later reads are plain misses")
}

func TestMemoryBackend_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC))
	b := NewMemory(WithMemoryClock(clock.Now))

	require.NoError(t, b.Set(ctx, "k1", "v1", 0))

	clock.Advance(365 * 24 * time.Hour)
	got, ok, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", got)
}

func TestMemoryBackend_OverwriteResetsExpiry(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC))
	b := NewMemory(WithMemoryClock(clock.Now))

	require.NoError(t, b.Set(ctx, "k1", "v1", time.Minute))
	require.NoError(t, b.Set(ctx, "k1", "v2", 0))

	clock.Advance(time.Hour)
	got, ok, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok, "overwrite without ttl must clear the old expiry")
	assert.Equal(t, "v2", got)
}

func TestMemoryBackend_KeysWithPrefix(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC))
	b := NewMemory(WithMemoryClock(clock.Now))

	require.NoError(t, b.Set(ctx, "qnwis:ddl:v1:emp:bbbb", "2", 0))
	require.NoError(t, b.Set(ctx, "qnwis:ddl:v1:emp:aaaa", "1", 0))
	require.NoError(t, b.Set(ctx, "qnwis:ddl:v1:wages:cccc", "3", 0))
	require.NoError(t, b.Set(ctx, "qnwis:ddl:v1:emp:dddd", "4", time.Minute))

	keys, err := b.KeysWithPrefix(ctx, "qnwis:ddl:v1:emp:")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"qnwis:ddl:v1:emp:aaaa",
		"qnwis:ddl:v1:emp:bbbb",
		"qnwis:ddl:v1:emp:dddd",
	}, keys, "keys come back sorted")

	clock.Advance(time.Minute)
	keys, err = b.KeysWithPrefix(ctx, "qnwis:ddl:v1:emp:")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"qnwis:ddl:v1:emp:aaaa",
		"qnwis:ddl:v1:emp:bbbb",
	}, keys, "expired keys are not listed")
	assert.Equal(t, 4, b.Len(), "listing skips expired entries without deleting them")

	keys, err = b.KeysWithPrefix(ctx, "qnwis:ddl:v1:none:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryBackend_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC))
	stats := NewStats()
	b := NewMemory(WithMemoryClock(clock.Now), WithMemoryStats(stats))

	require.NoError(t, b.Set(ctx, "k1", "v1", time.Minute))
	require.NoError(t, b.Set(ctx, "k2", "v2", 2*time.Minute))
	require.NoError(t, b.Set(ctx, "k3", "v3", 0))

	assert.Equal(t, 0, b.PurgeExpired(), "nothing expired yet")

	clock.Advance(90 * time.Second)
	assert.Equal(t, 1, b.PurgeExpired())
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, int64(1), stats.Snapshot().Evictions)

	clock.Advance(time.Hour)
	assert.Equal(t, 1, b.PurgeExpired(), "the unexpiring entry stays")
	assert.Equal(t, 1, b.Len())

	got, ok, err := b.Get(ctx, "k3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v3", got)
}
