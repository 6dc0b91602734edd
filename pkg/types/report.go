// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"sort"
	"time"
)

// OutcomeStatus is the terminal state of one record field in a run.
type OutcomeStatus string

const (
	StatusConverted     OutcomeStatus = "converted"
	StatusSkippedNoRule OutcomeStatus = "skipped-no-rule"
	StatusSkippedTarget OutcomeStatus = "skipped-already-target-format"
	StatusSkippedEmpty  OutcomeStatus = "skipped-empty-field"
	StatusFailed        OutcomeStatus = "failed"
)

// Skipped reports whether the status is one of the skip states.
func (s OutcomeStatus) Skipped() bool {
	return s == StatusSkippedNoRule || s == StatusSkippedTarget || s == StatusSkippedEmpty
}

// FieldOutcome is the result of applying one rule to one record.
type FieldOutcome struct {
	RecordType string
	RecordID   int64
	Field      string
	Status     OutcomeStatus

	// Value is the converted text; set only when Status is StatusConverted.
	Value string

	// Err is the cause; set only when Status is StatusFailed.
	Err error
}

// Failure describes a failed record field in the run report.
type Failure struct {
	RecordType string `json:"record_type" yaml:"record_type"`
	RecordID   int64  `json:"record_id" yaml:"record_id"`
	Field      string `json:"field" yaml:"field"`
	Error      string `json:"error" yaml:"error"`
}

// Report aggregates the outcomes of a batch run. It is not safe for
// concurrent use; the runner serializes access.
type Report struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	DryRun     bool      `json:"dry_run" yaml:"dry_run"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	// Records counts records visited, regardless of outcome.
	Records int `json:"records" yaml:"records"`

	// Counts holds the number of record fields per status.
	Counts map[OutcomeStatus]int `json:"counts" yaml:"counts"`

	Failures []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`

	// RecordTypes lists the record types that were paged.
	RecordTypes []string `json:"record_types,omitempty" yaml:"record_types,omitempty"`

	// UnconfiguredTypes lists store record types with no rules.
	UnconfiguredTypes []string `json:"unconfigured_types,omitempty" yaml:"unconfigured_types,omitempty"`

	// AbsentFields lists configured "Type.field" pairs that no paged record
	// carried.
	AbsentFields []string `json:"absent_fields,omitempty" yaml:"absent_fields,omitempty"`

	// Interrupted is set when the run stopped on a cancellation signal.
	Interrupted bool `json:"interrupted" yaml:"interrupted"`
}

// NewReport returns an empty report for the given run.
func NewReport(runID string, dryRun bool) *Report {
	return &Report{
		RunID:     runID,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
		Counts:    make(map[OutcomeStatus]int),
	}
}

// Add records a field outcome.
func (r *Report) Add(o FieldOutcome) {
	r.Counts[o.Status]++
	if o.Status == StatusFailed {
		msg := ""
		if o.Err != nil {
			msg = o.Err.Error()
		}
		r.Failures = append(r.Failures, Failure{
			RecordType: o.RecordType,
			RecordID:   o.RecordID,
			Field:      o.Field,
			Error:      msg,
		})
	}
}

// Converted returns the number of converted fields.
func (r *Report) Converted() int {
	return r.Counts[StatusConverted]
}

// Skipped returns the number of fields in any skip state.
func (r *Report) Skipped() int {
	return r.Counts[StatusSkippedNoRule] + r.Counts[StatusSkippedTarget] + r.Counts[StatusSkippedEmpty]
}

// Failed returns the number of failed fields.
func (r *Report) Failed() int {
	return r.Counts[StatusFailed]
}

// Total returns the number of field outcomes recorded.
func (r *Report) Total() int {
	return r.Converted() + r.Skipped() + r.Failed()
}

// HasFailures reports whether any field failed.
func (r *Report) HasFailures() bool {
	return r.Failed() > 0
}

// Finish stamps the end time and orders failures by record for stable output.
func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
	sort.Strings(r.AbsentFields)
	sort.SliceStable(r.Failures, func(i, j int) bool {
		a, b := r.Failures[i], r.Failures[j]
		if a.RecordType != b.RecordType {
			return a.RecordType < b.RecordType
		}
		if a.RecordID != b.RecordID {
			return a.RecordID < b.RecordID
		}
		return a.Field < b.Field
	})
}

// Duration returns the wall time of the run, or zero before Finish.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
