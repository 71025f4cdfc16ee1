// Package engine orchestrates one query execution end to end: registry
// lookup, cache read, connector dispatch, postprocess pipeline, unit and
// freshness verification, license enrichment, and cache write.
//
// The engine is a synchronous library safe for concurrent callers: the
// registry and catalog are read-only after load, the stats counters are
// atomic, and the cache backends synchronize themselves. There is no
// request coalescing: two concurrent misses on the same key both execute
// and both write, and the last writer wins. That duplicate work is an
// accepted posture of the design, not a bug.
package engine
