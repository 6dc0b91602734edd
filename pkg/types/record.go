// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for redmine-reformat: records
// borrowed from a record store, per-field conversion outcomes, the run
// report, and the application configuration.
package types

// Record is one unit of persisted content (an issue, a journal, a wiki page)
// together with the text fields loaded for conversion.
type Record struct {
	// Type is the record type, e.g. "Issue".
	Type string `json:"type" yaml:"type"`

	// ID is the record's integer primary key.
	ID int64 `json:"id" yaml:"id"`

	// Fields holds the loaded text values keyed by field identifier. A field
	// stored as NULL is absent.
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Field returns the value of the named field and whether it was present.
func (r Record) Field(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}
