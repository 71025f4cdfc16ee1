package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryEntry is one stored value. A zero expiresAt means no expiry.
type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryBackend is a mutex-guarded in-process backend. Expired entries are
// removed lazily on read; PurgeExpired sweeps proactively for long-lived
// processes that rarely re-read old keys.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	stats   *Stats
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithMemoryClock injects the time source. Tests pin this to a fixed clock.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) { b.now = now }
}

// WithMemoryStats lets the backend count expiry evictions on the shared
// engine Stats.
func WithMemoryStats(stats *Stats) MemoryOption {
	return func(b *MemoryBackend) { b.stats = stats }
}

// NewMemory builds an empty in-process backend.
func NewMemory(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get returns the stored value. An expired entry is deleted and reads as
// absent.
func (b *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return "", false, nil
	}
	if expired(e.expiresAt, b.now()) {
		delete(b.entries, key)
		if b.stats != nil {
			b.stats.Evict()
		}
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value under key, overwriting any previous entry.
func (b *MemoryBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = b.now().Add(ttl)
	}
	b.entries[key] = e
	return nil
}

// Delete removes key. Absent keys are a no-op.
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.entries, key)
	return nil
}

// KeysWithPrefix returns the live keys under prefix, sorted. Expired
// entries are skipped but not deleted; the next Get or PurgeExpired
// collects them.
func (b *MemoryBackend) KeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var keys []string
	for k, e := range b.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if expired(e.expiresAt, now) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// PurgeExpired removes every expired entry and returns how many went.
func (b *MemoryBackend) PurgeExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	purged := 0
	for k, e := range b.entries {
		if expired(e.expiresAt, now) {
			delete(b.entries, k)
			purged++
		}
	}
	if b.stats != nil {
		for i := 0; i < purged; i++ {
			b.stats.Evict()
		}
	}
	return purged
}

// Len reports the number of stored entries, expired ones included.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// expired reports whether an entry with the given expiry instant is dead at
// now. Entries are valid strictly before their expiry; a zero expiry never
// expires. Both backends share this boundary.
func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}
