// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package memstore is an in-memory record store with format markers, used
// as a test double. Its hooks inject store failures.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmakurin/redmine-reformat/internal/store"
	"github.com/dmakurin/redmine-reformat/pkg/types"
)

type markerKey struct {
	recordType string
	id         int64
	field      string
}

// Store keeps records per type, ordered by id on read.
type Store struct {
	mu      sync.Mutex
	records map[string]map[int64]map[string]string
	markers map[markerKey]string
	updates int

	// BeforeUpdate, when set, runs before each UpdateFields; a non-nil
	// error is returned instead of writing.
	BeforeUpdate func(rec types.Record, updates []store.FieldUpdate) error
	// BeforePage, when set, runs before each PageRecords.
	BeforePage func(req store.PageRequest) error
}

// New returns an empty store that knows the given record types.
func New(recordTypes ...string) *Store {
	s := &Store{
		records: make(map[string]map[int64]map[string]string),
		markers: make(map[markerKey]string),
	}
	for _, rt := range recordTypes {
		s.records[rt] = make(map[int64]map[string]string)
	}
	return s
}

// Put inserts or replaces a record. It also registers its type.
func (s *Store) Put(rec types.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.records[rec.Type]
	if !ok {
		byID = make(map[int64]map[string]string)
		s.records[rec.Type] = byID
	}
	fields := make(map[string]string, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	byID[rec.ID] = fields
}

// Get returns a copy of a stored record.
func (s *Store) Get(recordType string, id int64) (types.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.records[recordType][id]
	if !ok {
		return types.Record{}, false
	}
	return types.Record{Type: recordType, ID: id, Fields: copyFields(fields)}, true
}

// Delete removes a record.
func (s *Store) Delete(recordType string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[recordType], id)
}

// Mark records format for a field as if it had been written by a run.
func (s *Store) Mark(recordType string, id int64, field, format string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[markerKey{recordType, id, field}] = format
}

// Updates returns the number of successful UpdateFields calls.
func (s *Store) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// ListRecordTypes implements store.RecordStore.
func (s *Store) ListRecordTypes(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.records))
	for rt := range s.records {
		out = append(out, rt)
	}
	sort.Strings(out)
	return out, nil
}

// PageRecords implements store.RecordStore.
func (s *Store) PageRecords(_ context.Context, req store.PageRequest) (store.Page, error) {
	if s.BeforePage != nil {
		if err := s.BeforePage(req); err != nil {
			return store.Page{}, err
		}
	}
	if req.Limit <= 0 {
		return store.Page{}, fmt.Errorf("page limit must be positive, got %d", req.Limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.records[req.RecordType]
	if !ok {
		return store.Page{}, fmt.Errorf("%w: %s", store.ErrUnknownRecordType, req.RecordType)
	}

	ids := make([]int64, 0, len(byID))
	for id := range byID {
		if req.Cursor != nil && id <= req.Cursor.After {
			continue
		}
		if !req.Range.Contains(id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var page store.Page
	if len(ids) > req.Limit {
		ids = ids[:req.Limit]
		page.Next = &store.Cursor{After: ids[len(ids)-1]}
	}
	for _, id := range ids {
		page.Records = append(page.Records, types.Record{
			Type:   req.RecordType,
			ID:     id,
			Fields: copyFields(byID[id]),
		})
	}
	return page, nil
}

// UpdateFields implements store.RecordStore.
func (s *Store) UpdateFields(_ context.Context, rec types.Record, updates []store.FieldUpdate) error {
	if s.BeforeUpdate != nil {
		if err := s.BeforeUpdate(rec, updates); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.records[rec.Type][rec.ID]
	if !ok {
		return fmt.Errorf("%s#%d: %w", rec.Type, rec.ID, store.ErrRecordNotFound)
	}
	for _, u := range updates {
		fields[u.Field] = u.Text
		if u.Format != "" {
			s.markers[markerKey{rec.Type, rec.ID, u.Field}] = u.Format
		}
	}
	s.updates++
	return nil
}

// IsFormatMarked implements store.FormatMarker.
func (s *Store) IsFormatMarked(_ context.Context, recordType string, id int64, field, format string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markers[markerKey{recordType, id, field}] == format, nil
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
