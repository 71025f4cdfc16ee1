package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SpecDigest computes the content hash over the identity-relevant spec
// fields: id, source, params, and postprocess. Titles, descriptions,
// expected units, and constraints never affect the digest, so editing
// documentation does not invalidate cached results.
//
// nil param maps normalize to empty objects before hashing, so a spec
// hashes identically whether Params is nil or an allocated empty map.
func SpecDigest(s *Spec) (string, error) {
	steps := make([]any, len(s.Postprocess))
	for i, step := range s.Postprocess {
		params := step.Params
		if params == nil {
			params = map[string]any{}
		}
		steps[i] = map[string]any{
			"name":   step.Name,
			"params": params,
		}
	}
	params := s.Params
	if params == nil {
		params = map[string]any{}
	}

	canonical, err := MarshalCanonical(map[string]any{
		"id":          s.ID,
		"source":      string(s.Source),
		"params":      params,
		"postprocess": steps,
	})
	if err != nil {
		return "", fmt.Errorf("SpecDigest: failed to marshal: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// MustSpecDigest is SpecDigest for specs known to be hashable, such as
// registry output that already passed compile validation. Panics on error.
func MustSpecDigest(s *Spec) string {
	digest, err := SpecDigest(s)
	if err != nil {
		panic(fmt.Sprintf("MustSpecDigest(%s): %v", s.ID, err))
	}
	return digest
}
