package testutil

// FixedIDGenerator returns the same identifier every time.
//
// Production code mints a fresh UUIDv7 per CLI invocation; golden tests
// inject this instead so response envelopes compare byte-identical across
// runs.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator that always returns id.
//
// The id is typically set in the scenario YAML:
//
//	trace_id: "00000000-0000-0000-0000-000000000001"
//
// If id is empty, Generate returns "test-trace-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-trace-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed identifier.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
