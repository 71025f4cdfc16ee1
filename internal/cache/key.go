package cache

import (
	"fmt"

	"github.com/qnwis/qnwis/internal/query"
)

// KeyPrefix is the cache namespace: platform, subsystem, and key-schema
// version. Bump the version segment when key derivation changes shape, so
// old entries read as misses instead of decoding garbage.
const KeyPrefix = "qnwis:ddl:v1"

// keyDigestLen is how many hex characters of the spec digest go into the
// key. 16 hex chars (64 bits) keeps keys short while making accidental
// collisions implausible at this fleet's query cardinality.
const keyDigestLen = 16

// Key derives the content-addressed cache key for a spec:
//
//	qnwis:ddl:v1:<query id>:<first 16 hex of SHA-256 over canonical identity JSON>
//
// The digest covers id, source, params, and postprocess, so two specs that
// differ anywhere in those never share a key, while map iteration order and
// Set member order never change it.
func Key(spec *query.Spec) (string, error) {
	digest, err := query.SpecDigest(spec)
	if err != nil {
		return "", fmt.Errorf("cache key for %q: %w", spec.ID, err)
	}
	return KeyPrefix + ":" + spec.ID + ":" + digest[:keyDigestLen], nil
}

// IDPrefix returns the key prefix shared by every param and pipeline
// variant of a query id. Invalidation sweeps this prefix on backends that
// support listing.
func IDPrefix(queryID string) string {
	return KeyPrefix + ":" + queryID + ":"
}
