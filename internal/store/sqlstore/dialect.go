// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sqlstore

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// dialect captures the SQL differences between the supported databases.
type dialect struct {
	// driverName is the database/sql driver to open.
	driverName string
	// bind returns the n-th (1-based) placeholder.
	bind func(n int) string
	// quote quotes an identifier.
	quote func(ident string) string
	// markerDDL creates the marker table; %s is the quoted table name.
	markerDDL string
	// markerUpsert inserts or refreshes one marker row; %s is the quoted
	// table name. Arguments: record_type, record_id, field, format,
	// converted_at.
	markerUpsert string
	// transient reports lock and serialization failures worth retrying.
	transient func(err error) bool
	// prepareDSN adjusts the DSN before opening.
	prepareDSN func(dsn string) (string, error)
	// maxOpenConns limits the pool; zero means no limit.
	maxOpenConns int
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }

func doubleQuote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func backtick(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func keepDSN(dsn string) (string, error) { return dsn, nil }

var sqliteDialect = &dialect{
	driverName: "sqlite3",
	bind:       questionMark,
	quote:      doubleQuote,
	markerDDL: `CREATE TABLE IF NOT EXISTS %s (
		record_type TEXT NOT NULL,
		record_id INTEGER NOT NULL,
		field TEXT NOT NULL,
		format TEXT NOT NULL,
		converted_at TIMESTAMP NOT NULL,
		PRIMARY KEY (record_type, record_id, field))`,
	markerUpsert: `INSERT INTO %s (record_type, record_id, field, format, converted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (record_type, record_id, field)
		DO UPDATE SET format = excluded.format, converted_at = excluded.converted_at`,
	transient: func(err error) bool {
		var se sqlite3.Error
		if errors.As(err, &se) {
			return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
		}
		return errors.Is(err, driver.ErrBadConn)
	},
	prepareDSN: keepDSN,

	// SQLite allows one writer; a single connection queues writers in the
	// pool instead of failing them with SQLITE_BUSY.
	maxOpenConns: 1,
}

// Postgres SQLSTATEs that a retry may clear.
var pgTransientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

var postgresDialect = &dialect{
	driverName: "pgx",
	bind:       dollar,
	quote:      doubleQuote,
	markerDDL: `CREATE TABLE IF NOT EXISTS %s (
		record_type VARCHAR(64) NOT NULL,
		record_id BIGINT NOT NULL,
		field VARCHAR(64) NOT NULL,
		format VARCHAR(32) NOT NULL,
		converted_at TIMESTAMP NOT NULL,
		PRIMARY KEY (record_type, record_id, field))`,
	markerUpsert: `INSERT INTO %s (record_type, record_id, field, format, converted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (record_type, record_id, field)
		DO UPDATE SET format = EXCLUDED.format, converted_at = EXCLUDED.converted_at`,
	transient: func(err error) bool {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return pgTransientCodes[pgErr.Code]
		}
		return errors.Is(err, driver.ErrBadConn)
	},
	prepareDSN: keepDSN,
}

// MySQL error numbers that a retry may clear.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

var mysqlDialect = &dialect{
	driverName: "mysql",
	bind:       questionMark,
	quote:      backtick,
	markerDDL: `CREATE TABLE IF NOT EXISTS %s (
		record_type VARCHAR(64) NOT NULL,
		record_id BIGINT NOT NULL,
		field VARCHAR(64) NOT NULL,
		format VARCHAR(32) NOT NULL,
		converted_at DATETIME NOT NULL,
		PRIMARY KEY (record_type, record_id, field))`,
	markerUpsert: `INSERT INTO %s (record_type, record_id, field, format, converted_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE format = VALUES(format), converted_at = VALUES(converted_at)`,
	transient: func(err error) bool {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) {
			return myErr.Number == mysqlLockWaitTimeout || myErr.Number == mysqlDeadlock
		}
		return errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn)
	},
	// MySQL reports changed rows by default, so rewriting a field with the
	// same text would look like a missing record. Found rows fixes that.
	prepareDSN: func(dsn string) (string, error) {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", err
		}
		cfg.ClientFoundRows = true
		return cfg.FormatDSN(), nil
	},
}

// dialectFor maps a driver name or common alias to its dialect.
func dialectFor(driver string) (*dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite3", "sqlite":
		return sqliteDialect, nil
	case "pgx", "postgres", "postgresql":
		return postgresDialect, nil
	case "mysql", "mariadb":
		return mysqlDialect, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q: use sqlite3, pgx or mysql", driver)
	}
}
