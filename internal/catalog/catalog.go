// Package catalog maps dataset files to licenses via glob patterns.
//
// The catalog is advisory metadata: a missing or malformed catalog document
// must never block queries, so loading is lenient by contract. Queries run
// license-less when the catalog cannot be read.
package catalog

import (
	"log/slog"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// Entry binds a glob pattern to license metadata. First match wins in
// declaration order.
type Entry struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	License string `yaml:"license" json:"license"`
	Source  string `yaml:"source,omitempty" json:"source,omitempty"`
	Notes   string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// Catalog holds the ordered license entries.
type Catalog struct {
	entries []Entry
}

// Empty returns a catalog with no entries.
func Empty() *Catalog {
	return &Catalog{}
}

// Load reads a catalog document. A missing file, unreadable file, malformed
// YAML, or non-list document all yield an empty catalog with a logged
// warning, never an error. Entries that are not maps or that lack a pattern
// or license are skipped.
func Load(path string) *Catalog {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("dataset catalog unavailable, queries proceed without licenses",
			"path", path, "error", err)
		return Empty()
	}
	return Parse(data, path)
}

// Parse decodes catalog YAML with the same leniency as Load. The name is
// used only for log context.
func Parse(data []byte, name string) *Catalog {
	var raw []any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		slog.Warn("dataset catalog malformed, queries proceed without licenses",
			"path", name, "error", err)
		return Empty()
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pattern, _ := m["pattern"].(string)
		license, _ := m["license"].(string)
		if pattern == "" || license == "" {
			continue
		}
		source, _ := m["source"].(string)
		notes, _ := m["notes"].(string)
		entries = append(entries, Entry{
			Pattern: pattern,
			License: license,
			Source:  source,
			Notes:   notes,
		})
	}
	return &Catalog{entries: entries}
}

// Len returns the number of usable entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns a copy of the usable entries in declaration order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Match finds the first entry whose pattern matches the base name of the
// given path. Malformed patterns are skipped rather than failing the match.
func (c *Catalog) Match(name string) (Entry, bool) {
	if name == "" {
		return Entry{}, false
	}
	base := path.Base(name)
	for _, e := range c.entries {
		ok, err := path.Match(e.Pattern, base)
		if err != nil {
			continue
		}
		if ok {
			return e, true
		}
	}
	return Entry{}, false
}

// LicenseFor resolves the license for the first of the given names that
// matches an entry. Connectors pass the dataset id first and the locator as
// a fallback.
func (c *Catalog) LicenseFor(names ...string) (string, bool) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if e, ok := c.Match(name); ok {
			return e.License, true
		}
	}
	return "", false
}
