// Package query provides the spec and result model for the data layer.
//
// This package contains type definitions and the canonical serialization
// used for content-addressed cache keys. All other internal packages import
// query; query imports nothing internal. This keeps the model foundational
// with no circular dependencies.
//
// Key design constraints:
//   - Specs are immutable after registry load; overrides work on deep copies
//   - All JSON tags use snake_case
//   - Cache identity covers exactly {id, source, params, postprocess};
//     titles, descriptions, and constraints never change the key
package query
