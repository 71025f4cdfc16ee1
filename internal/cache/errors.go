package cache

import (
	"fmt"
	"time"
)

// MaxTTL is the ceiling on caller-requested ttls. Workforce indicators
// update on daily cycles at the fastest; anything older than a day must be
// re-derived, so a longer ttl is a caller bug, not a preference.
const MaxTTL = 24 * time.Hour

// TTLError reports a requested ttl above MaxTTL. It is raised before any
// fetch or cache work happens.
type TTLError struct {
	TTL time.Duration
}

func (e *TTLError) Error() string {
	return fmt.Sprintf("ttl %s exceeds ceiling %s", e.TTL, MaxTTL)
}

// DecodingError reports a cached value that could not be decoded. It never
// escapes an engine execute: the entry is deleted and the query re-runs as
// a miss.
type DecodingError struct {
	Reason string
	Err    error
}

func (e *DecodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache decode: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("cache decode: %s", e.Reason)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// ResolveTTL classifies a requested ttl against the policy:
//
//	nil        -> store without expiry
//	<= 0       -> do not store (and clear any existing entry)
//	0 < t <= MaxTTL -> store with expiry t
//	> MaxTTL   -> *TTLError
//
// The returned expiry is zero for the store-forever case, matching the
// Backend.Set contract.
func ResolveTTL(ttl *time.Duration) (store bool, expiry time.Duration, err error) {
	if ttl == nil {
		return true, 0, nil
	}
	t := *ttl
	switch {
	case t <= 0:
		return false, 0, nil
	case t > MaxTTL:
		return false, 0, &TTLError{TTL: t}
	default:
		return true, t, nil
	}
}
