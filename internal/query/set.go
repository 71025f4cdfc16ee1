package query

// Set is an order-insensitive value collection for spec params.
//
// Go has no native set type, so params that are logically sets (sector
// filters, country lists) use Set instead of []any. Canonical serialization
// sorts Set elements by their canonical JSON form, so two Sets holding the
// same members in different order produce identical cache keys. Plain []any
// params keep their order and are hashed as given.
type Set []any

// NewSet builds a Set from the given members. Duplicates are kept as-is;
// canonicalization does not dedupe, it only orders.
func NewSet(members ...any) Set {
	return Set(members)
}
