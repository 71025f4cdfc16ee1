// Package cache implements the content-addressed result cache: key
// derivation, the envelope codec, the TTL policy, and the storage backends.
//
// The layering contract: backends store opaque strings and know nothing
// about results; the envelope codec turns results into strings and back;
// the engine owns the policy of when to read, write, and self-heal.
package cache

import (
	"context"
	"time"
)

// Backend is the raw key-value contract the cache runs on. Values are
// opaque envelope strings. A ttl of zero stores without expiry; negative
// ttls never reach a backend (the TTL policy resolves them first).
type Backend interface {
	// Get returns the stored value and whether the key was present. An
	// expired entry reads as absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. ttl > 0 expires the entry after ttl;
	// ttl == 0 stores without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// PrefixLister is an optional backend capability. Backends that implement
// it let Invalidate drop every param-hash variant of a query id instead of
// only the current spec's key.
type PrefixLister interface {
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}
