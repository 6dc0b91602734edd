// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store defines the record store capability the batch runner works
// against: listing record types, paging records by id, and writing the
// converted fields of one record atomically. Stores that remember which
// format a field was last written in also implement FormatMarker.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmakurin/redmine-reformat/pkg/types"
)

var (
	// ErrRecordNotFound is returned by UpdateFields when the record no
	// longer exists.
	ErrRecordNotFound = errors.New("record not found")

	// ErrUnknownRecordType is returned for record types the store does not
	// map.
	ErrUnknownRecordType = errors.New("unknown record type")
)

// Cursor marks a position in a record type's id order.
type Cursor struct {
	After int64
}

// PageRequest selects the next page of one record type.
type PageRequest struct {
	RecordType string
	// Cursor is nil for the first page.
	Cursor *Cursor
	Range  types.IDRange
	Limit  int
}

// Page is one page of records in ascending id order.
type Page struct {
	Records []types.Record
	// Next is nil when there are no more records.
	Next *Cursor
}

// FieldUpdate is the new text of one field together with the format it is
// now written in.
type FieldUpdate struct {
	Field  string
	Text   string
	Format string
}

// RecordStore is the persistence capability the runner needs.
type RecordStore interface {
	ListRecordTypes(ctx context.Context) ([]string, error)
	PageRecords(ctx context.Context, req PageRequest) (Page, error)
	// UpdateFields writes all updates of one record in a single
	// transaction. Either every field changes or none does.
	UpdateFields(ctx context.Context, rec types.Record, updates []FieldUpdate) error
}

// FormatMarker is implemented by stores that track the format each field
// was last written in.
type FormatMarker interface {
	IsFormatMarked(ctx context.Context, recordType string, id int64, field, format string) (bool, error)
}

// MarkerOf returns s as a FormatMarker, or nil when s does not track
// formats.
func MarkerOf(s RecordStore) FormatMarker {
	if m, ok := s.(FormatMarker); ok {
		return m
	}
	return nil
}

type unmarked struct {
	RecordStore
}

// WithoutFormatMarkers hides the FormatMarker capability of s, so every
// non-empty field is converted again.
func WithoutFormatMarkers(s RecordStore) RecordStore {
	if u, ok := s.(unmarked); ok {
		return u
	}
	return unmarked{RecordStore: s}
}

// StoreIOError is a failed store operation. Transient errors (lock
// timeouts, deadlocks, serialization failures) may succeed on retry.
type StoreIOError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StoreIOError) Error() string {
	kind := "store"
	if e.Transient {
		kind = "transient store"
	}
	return fmt.Sprintf("%s error during %s: %v", kind, e.Op, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transient *StoreIOError.
func IsTransient(err error) bool {
	var ioErr *StoreIOError
	return errors.As(err, &ioErr) && ioErr.Transient
}
