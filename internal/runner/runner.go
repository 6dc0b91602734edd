// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runner drives a conversion batch: it pages records out of a
// store, converts each record's configured fields through the engine and
// writes converted fields back one record per transaction. Per-field
// failures are recorded in the report and the batch moves on.
package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dmakurin/redmine-reformat/internal/engine"
	"github.com/dmakurin/redmine-reformat/internal/logging"
	"github.com/dmakurin/redmine-reformat/internal/retry"
	"github.com/dmakurin/redmine-reformat/internal/store"
	"github.com/dmakurin/redmine-reformat/pkg/types"
)

const (
	DefaultPageSize        = 100
	DefaultWorkers         = 1
	DefaultMaxWriteRetries = 3
)

// Options configures Run. Zero values select the defaults.
type Options struct {
	// DryRun converts and reports without writing.
	DryRun bool

	// RecordTypes limits the run to these types. Every name must exist in
	// the store.
	RecordTypes []string

	IDRange  types.IDRange
	PageSize int
	Workers  int

	// MaxWriteRetries bounds retries of a transiently failing write.
	// Negative disables retries.
	MaxWriteRetries int

	// RunID labels logs and the report; a UUID is generated when empty.
	RunID string

	Logger  *zap.Logger
	Metrics *Metrics
}

func (o *Options) applyDefaults() {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	switch {
	case o.MaxWriteRetries == 0:
		o.MaxWriteRetries = DefaultMaxWriteRetries
	case o.MaxWriteRetries < 0:
		o.MaxWriteRetries = 0
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
}

type run struct {
	store  store.RecordStore
	marker store.FormatMarker
	engine *engine.Engine
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	report *types.Report
}

// Run converts every configured field of every candidate record in s.
//
// The returned report is never nil. A non-nil error means the run was
// aborted: the store could not be listed or paged, or a write failed with a
// non-transient store error. The report then covers the records processed
// before the abort. Cancelling ctx stops the run between records; the
// partial report is returned with Interrupted set and a nil error.
func Run(ctx context.Context, s store.RecordStore, e *engine.Engine, opts Options) (*types.Report, error) {
	opts.applyDefaults()
	r := &run{
		store:  s,
		marker: store.MarkerOf(s),
		engine: e,
		opts:   opts,
		logger: logging.Component(opts.Logger, "runner").With(zap.String("run_id", opts.RunID)),
		report: types.NewReport(opts.RunID, opts.DryRun),
	}

	err := r.execute(ctx)
	if err == nil && ctx.Err() != nil {
		r.report.Interrupted = true
		r.logger.Warn("run interrupted", zap.Int("records", r.report.Records))
	}
	r.report.Finish()

	r.logger.Info("run finished",
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("records", r.report.Records),
		zap.Int("converted", r.report.Converted()),
		zap.Int("skipped", r.report.Skipped()),
		zap.Int("failed", r.report.Failed()),
		zap.Bool("interrupted", r.report.Interrupted),
		zap.Duration("duration", r.report.Duration()),
	)
	return r.report, err
}

func (r *run) execute(ctx context.Context) error {
	recordTypes, err := r.candidates(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("run started",
		zap.Strings("record_types", recordTypes),
		zap.Strings("unconfigured_types", r.report.UnconfiguredTypes),
		zap.Int("workers", r.opts.Workers),
		zap.Int("page_size", r.opts.PageSize),
		zap.Bool("format_markers", r.marker != nil),
	)

	records := make(chan types.Record)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(records)
		for _, rt := range recordTypes {
			if err := r.pageType(gctx, rt, records); err != nil {
				return err
			}
		}
		return nil
	})

	for range r.opts.Workers {
		g.Go(func() error {
			for rec := range records {
				if err := r.processRecord(gctx, rec); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// candidates returns the record types to page. Store types without rules
// are recorded as unconfigured instead.
func (r *run) candidates(ctx context.Context) ([]string, error) {
	available, err := r.store.ListRecordTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing record types: %w", err)
	}

	selected := available
	if len(r.opts.RecordTypes) > 0 {
		selected = nil
		for _, rt := range r.opts.RecordTypes {
			if !slices.Contains(available, rt) {
				return nil, fmt.Errorf("record type filter: %w: %s", store.ErrUnknownRecordType, rt)
			}
			if !slices.Contains(selected, rt) {
				selected = append(selected, rt)
			}
		}
		slices.Sort(selected)
	}

	var paged []string
	for _, rt := range selected {
		if len(r.engine.RulesFor(rt)) == 0 {
			r.report.UnconfiguredTypes = append(r.report.UnconfiguredTypes, rt)
			continue
		}
		paged = append(paged, rt)
	}
	r.report.RecordTypes = paged
	return paged, nil
}

// pageType feeds every record of one type to the workers, one page at a
// time. It returns nil when ctx is done.
func (r *run) pageType(ctx context.Context, recordType string, out chan<- types.Record) error {
	req := store.PageRequest{RecordType: recordType, Range: r.opts.IDRange, Limit: r.opts.PageSize}
	r.logger.Debug("paging record type", zap.String("record_type", recordType))

	seen := make(map[string]bool)
	records := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		page, err := r.store.PageRecords(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("paging %s: %w", recordType, err)
		}
		for _, rec := range page.Records {
			records++
			for field := range rec.Fields {
				seen[field] = true
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return nil
			}
		}
		if page.Next == nil {
			r.noteAbsentFields(recordType, records, seen)
			return nil
		}
		req.Cursor = page.Next
	}
}

// noteAbsentFields reports configured fields that no paged record of the
// type carried, which usually means a misspelled field or a missing column
// mapping.
func (r *run) noteAbsentFields(recordType string, records int, seen map[string]bool) {
	if records == 0 {
		return
	}
	for _, rule := range r.engine.RulesFor(recordType) {
		if seen[rule.Field] {
			continue
		}
		r.mu.Lock()
		r.report.AbsentFields = append(r.report.AbsentFields, recordType+"."+rule.Field)
		r.mu.Unlock()
		r.logger.Warn("configured field missing from every record",
			zap.String("record_type", recordType),
			zap.String("field", rule.Field),
			zap.Int("records", records),
		)
	}
}

// processRecord converts and writes one record. Conversion and the write
// run detached from cancellation so a stop request never interrupts a
// record half way; the stop is honoured before the next record.
func (r *run) processRecord(ctx context.Context, rec types.Record) error {
	if ctx.Err() != nil {
		return nil
	}
	work := context.WithoutCancel(ctx)
	start := time.Now()

	outcomes := r.engine.ConvertRecord(work, rec, r.marker)

	var updates []store.FieldUpdate
	for _, o := range outcomes {
		if o.Status != types.StatusConverted {
			continue
		}
		rule, _ := r.engine.Rule(rec.Type, o.Field)
		updates = append(updates, store.FieldUpdate{Field: o.Field, Text: o.Value, Format: rule.TargetFormat})
	}

	var abort error
	if len(updates) > 0 && !r.opts.DryRun {
		if err := r.write(work, rec, updates); err != nil {
			failConverted(outcomes, err)
			var ioErr *store.StoreIOError
			if errors.As(err, &ioErr) && !ioErr.Transient {
				abort = fmt.Errorf("writing %s#%d: %w", rec.Type, rec.ID, err)
			}
		}
	}

	r.finishRecord(rec, outcomes, time.Since(start))
	return abort
}

// write stores the record's updates, retrying transient store errors with
// backoff.
func (r *run) write(ctx context.Context, rec types.Record, updates []store.FieldUpdate) error {
	return retry.Do(ctx, r.opts.MaxWriteRetries, store.IsTransient,
		func(attempt int, err error) {
			r.opts.Metrics.writeRetried()
			r.logger.Warn("retrying record write",
				zap.String("record_type", rec.Type),
				zap.Int64("record_id", rec.ID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
		func() error { return r.store.UpdateFields(ctx, rec, updates) },
	)
}

// failConverted turns the record's converted outcomes into failures after
// its write failed. No field of the record was persisted.
func failConverted(outcomes []types.FieldOutcome, err error) {
	for i := range outcomes {
		if outcomes[i].Status == types.StatusConverted {
			outcomes[i].Status = types.StatusFailed
			outcomes[i].Value = ""
			outcomes[i].Err = err
		}
	}
}

func (r *run) finishRecord(rec types.Record, outcomes []types.FieldOutcome, elapsed time.Duration) {
	r.mu.Lock()
	r.report.Records++
	for _, o := range outcomes {
		r.report.Add(o)
	}
	r.mu.Unlock()

	r.opts.Metrics.observeRecord(rec, outcomes, elapsed)

	for _, o := range outcomes {
		if o.Status == types.StatusFailed {
			r.logger.Warn("field conversion failed",
				zap.String("record_type", o.RecordType),
				zap.Int64("record_id", o.RecordID),
				zap.String("field", o.Field),
				zap.Error(o.Err),
			)
		}
	}
}
