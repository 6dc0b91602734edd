// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sqlstore implements store.RecordStore over database/sql for
// SQLite, PostgreSQL and MySQL Redmine databases. Record types map to
// tables through types.TableConfig. Converted formats are tracked in a
// marker table written in the same transaction as the record update.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmakurin/redmine-reformat/internal/logging"
	"github.com/dmakurin/redmine-reformat/internal/store"
	"github.com/dmakurin/redmine-reformat/pkg/types"
)

// DefaultMarkerTable is the marker table name used when none is set.
const DefaultMarkerTable = "reformat_format_markers"

// ErrReadOnly is returned by UpdateFields on a store opened read-only.
var ErrReadOnly = errors.New("store opened read-only")

// Options configures Open.
type Options struct {
	Driver string
	DSN    string

	// Tables maps record types to tables. Nil selects the Redmine
	// defaults.
	Tables map[string]types.TableConfig

	// FormatMarkers enables the marker table.
	FormatMarkers bool
	MarkerTable   string

	// ReadOnly opens the store for dry runs: no DDL is issued and
	// UpdateFields fails. Markers are read only when the marker table
	// already exists.
	ReadOnly bool

	Logger *zap.Logger
}

// table is a resolved TableConfig with fields in a fixed column order.
type table struct {
	name     string
	idColumn string
	fields   []string
	columns  map[string]string
}

// Store is a SQL record store.
type Store struct {
	db          *sql.DB
	d           *dialect
	tables      map[string]*table
	markers     bool
	markerTable string
	readOnly    bool
	logger      *zap.Logger
	now         func() time.Time
}

// Open connects to the database, verifies the connection and, when
// markers are enabled, creates the marker table if it is missing. A
// read-only store never creates it; without an existing marker table it
// reads every field as unmarked.
func Open(ctx context.Context, opts Options) (*Store, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	if opts.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	dsn, err := d.prepareDSN(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	tables, err := resolveTables(opts.Tables)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", d.driverName, err)
	}
	if d.maxOpenConns > 0 {
		db.SetMaxOpenConns(d.maxOpenConns)
	}

	s := &Store{
		db:          db,
		d:           d,
		tables:      tables,
		markers:     opts.FormatMarkers,
		markerTable: opts.MarkerTable,
		readOnly:    opts.ReadOnly,
		logger:      logging.Component(opts.Logger, "sqlstore"),
		now:         func() time.Time { return time.Now().UTC() },
	}
	if s.markerTable == "" {
		s.markerTable = DefaultMarkerTable
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, s.ioErr("connect", err)
	}
	switch {
	case s.markers && s.readOnly:
		if !s.tableExists(ctx, s.markerTable) {
			s.logger.Info("marker table missing, reading all fields as unconverted",
				zap.String("table", s.markerTable))
			s.markers = false
		}
	case s.markers:
		ddl := fmt.Sprintf(d.markerDDL, d.quote(s.markerTable))
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			db.Close()
			return nil, s.ioErr("create marker table", err)
		}
	}

	s.logger.Debug("database opened",
		zap.String("driver", d.driverName),
		zap.Int("record_types", len(tables)),
		zap.Bool("format_markers", s.markers),
		zap.Bool("read_only", s.readOnly),
	)
	return s, nil
}

// tableExists reports whether name can be selected from.
func (s *Store) tableExists(ctx context.Context, name string) bool {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE 1 = 0", s.d.quote(name)))
	if err != nil {
		return false
	}
	rows.Close()
	return true
}

func resolveTables(cfg map[string]types.TableConfig) (map[string]*table, error) {
	if cfg == nil {
		cfg = types.DefaultTables()
	}
	out := make(map[string]*table, len(cfg))
	for recordType, tc := range cfg {
		if tc.Table == "" || len(tc.Fields) == 0 {
			return nil, fmt.Errorf("table mapping for %s needs a table and at least one field", recordType)
		}
		t := &table{
			name:     tc.Table,
			idColumn: tc.IDColumn,
			columns:  make(map[string]string, len(tc.Fields)),
		}
		if t.idColumn == "" {
			t.idColumn = "id"
		}
		for field, column := range tc.Fields {
			if column == "" {
				column = field
			}
			t.fields = append(t.fields, field)
			t.columns[field] = column
		}
		sort.Strings(t.fields)
		out[recordType] = t
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ioErr(op string, err error) error {
	return &store.StoreIOError{Op: op, Transient: s.d.transient(err), Err: err}
}

func (s *Store) table(recordType string) (*table, error) {
	t, ok := s.tables[recordType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownRecordType, recordType)
	}
	return t, nil
}

// ListRecordTypes returns the mapped record types whose table can be read,
// in sorted order. Mapped tables that are missing, such as those of an
// uninstalled plugin, are left out.
func (s *Store) ListRecordTypes(ctx context.Context) ([]string, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, s.ioErr("list record types", err)
	}

	names := make([]string, 0, len(s.tables))
	for recordType := range s.tables {
		names = append(names, recordType)
	}
	sort.Strings(names)

	out := names[:0]
	for _, recordType := range names {
		t := s.tables[recordType]
		if !s.tableExists(ctx, t.name) {
			s.logger.Warn("skipping record type with unreadable table",
				zap.String("record_type", recordType),
				zap.String("table", t.name),
			)
			continue
		}
		out = append(out, recordType)
	}
	return out, nil
}

// PageRecords implements store.RecordStore. NULL columns are left out of
// Record.Fields.
func (s *Store) PageRecords(ctx context.Context, req store.PageRequest) (store.Page, error) {
	t, err := s.table(req.RecordType)
	if err != nil {
		return store.Page{}, err
	}
	if req.Limit <= 0 {
		return store.Page{}, fmt.Errorf("page limit must be positive, got %d", req.Limit)
	}

	id := s.d.quote(t.idColumn)
	cols := make([]string, 0, len(t.fields)+1)
	cols = append(cols, id)
	for _, f := range t.fields {
		cols = append(cols, s.d.quote(t.columns[f]))
	}

	var (
		conds []string
		args  []any
	)
	where := func(op string, v int64) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s %s %s", id, op, s.d.bind(len(args))))
	}
	if req.Cursor != nil {
		where(">", req.Cursor.After)
	}
	if req.Range.From > 0 {
		where(">=", req.Range.From)
	}
	if req.Range.To > 0 {
		where("<=", req.Range.To)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), s.d.quote(t.name))
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	// One extra row tells whether another page follows.
	query += fmt.Sprintf(" ORDER BY %s LIMIT %d", id, req.Limit+1)

	op := "page " + req.RecordType
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return store.Page{}, s.ioErr(op, err)
	}
	defer rows.Close()

	var page store.Page
	for rows.Next() {
		var recID int64
		values := make([]sql.NullString, len(t.fields))
		dest := make([]any, 0, len(values)+1)
		dest = append(dest, &recID)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return store.Page{}, s.ioErr(op, err)
		}

		rec := types.Record{Type: req.RecordType, ID: recID, Fields: make(map[string]string, len(values))}
		for i, v := range values {
			if v.Valid {
				rec.Fields[t.fields[i]] = v.String
			}
		}
		page.Records = append(page.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return store.Page{}, s.ioErr(op, err)
	}

	if len(page.Records) > req.Limit {
		page.Records = page.Records[:req.Limit]
		page.Next = &store.Cursor{After: page.Records[req.Limit-1].ID}
	}
	return page, nil
}

// UpdateFields writes every update of rec in one transaction: a single
// UPDATE of the record row plus one marker upsert per field.
func (s *Store) UpdateFields(ctx context.Context, rec types.Record, updates []store.FieldUpdate) (err error) {
	if len(updates) == 0 {
		return nil
	}
	if s.readOnly {
		return fmt.Errorf("%s#%d: %w", rec.Type, rec.ID, ErrReadOnly)
	}
	t, err := s.table(rec.Type)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(updates))
	args := make([]any, 0, len(updates)+1)
	for _, u := range updates {
		column, ok := t.columns[u.Field]
		if !ok {
			return fmt.Errorf("%s has no mapped field %q", rec.Type, u.Field)
		}
		args = append(args, u.Text)
		sets = append(sets, fmt.Sprintf("%s = %s", s.d.quote(column), s.d.bind(len(args))))
	}
	args = append(args, rec.ID)
	update := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		s.d.quote(t.name), strings.Join(sets, ", "), s.d.quote(t.idColumn), s.d.bind(len(args)))

	op := fmt.Sprintf("update %s#%d", rec.Type, rec.ID)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.ioErr(op, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, update, args...)
	if err != nil {
		return s.ioErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.ioErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s#%d: %w", rec.Type, rec.ID, store.ErrRecordNotFound)
	}

	if s.markers {
		upsert := fmt.Sprintf(s.d.markerUpsert, s.d.quote(s.markerTable))
		now := s.now()
		for _, u := range updates {
			if u.Format == "" {
				continue
			}
			if _, err = tx.ExecContext(ctx, upsert, rec.Type, rec.ID, u.Field, u.Format, now); err != nil {
				return s.ioErr(op, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return s.ioErr(op, err)
	}
	return nil
}

// IsFormatMarked implements store.FormatMarker. With markers disabled it
// always reports false.
func (s *Store) IsFormatMarked(ctx context.Context, recordType string, id int64, field, format string) (bool, error) {
	if !s.markers {
		return false, nil
	}
	query := fmt.Sprintf("SELECT format FROM %s WHERE record_type = %s AND record_id = %s AND field = %s",
		s.d.quote(s.markerTable), s.d.bind(1), s.d.bind(2), s.d.bind(3))

	var got string
	err := s.db.QueryRowContext(ctx, query, recordType, id, field).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, s.ioErr("read format marker", err)
	}
	return got == format, nil
}
