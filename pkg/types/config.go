// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Config is the application configuration assembled by viper from the config
// file, REDMINE_REFORMAT_* environment variables, and command-line flags.
type Config struct {
	// ConvertersJSON is the inline converter configuration (JSON).
	ConvertersJSON string `json:"converters_json,omitempty" yaml:"converters_json,omitempty" mapstructure:"converters_json"`

	// ConvertersFile is a path to a file holding the converter configuration.
	// Ignored when ConvertersJSON is set.
	ConvertersFile string `json:"converters_file,omitempty" yaml:"converters_file,omitempty" mapstructure:"converters_file"`

	// SecretsDir holds one file per secret, expanded into the store DSN.
	SecretsDir string `json:"secrets_dir" yaml:"secrets_dir" mapstructure:"secrets_dir"`

	Store StoreConfig `json:"store" yaml:"store" mapstructure:"store"`
	Run   RunConfig   `json:"run" yaml:"run" mapstructure:"run"`
	Log   LogConfig   `json:"log" yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and tunes the SQL record store.
type StoreConfig struct {
	// Driver is the database/sql driver name: sqlite3, pgx, or mysql.
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// DSN is the data source name. ${name} references are expanded from
	// secrets first, then from the environment.
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`

	// FormatMarkers enables the marker table used to skip fields that a
	// previous run already converted.
	FormatMarkers bool `json:"format_markers" yaml:"format_markers" mapstructure:"format_markers"`

	// MarkerTable names the marker table (default reformat_format_markers).
	MarkerTable string `json:"marker_table" yaml:"marker_table" mapstructure:"marker_table"`

	// Tables overrides or extends DefaultTables. It is a list rather than
	// a map because config keys are case-insensitive and record types are
	// not.
	Tables []TableConfig `json:"tables,omitempty" yaml:"tables,omitempty" mapstructure:"tables"`
}

// TableMapping returns DefaultTables with Tables applied on top, keyed by
// record type.
func (c StoreConfig) TableMapping() map[string]TableConfig {
	m := DefaultTables()
	for _, t := range c.Tables {
		m[t.RecordType] = t
	}
	return m
}

// TableConfig maps a record type onto a table.
type TableConfig struct {
	// RecordType is the record type name used in the converter
	// configuration. Only set in StoreConfig.Tables.
	RecordType string `json:"record_type,omitempty" yaml:"record_type,omitempty" mapstructure:"record_type"`

	// Table is the SQL table name.
	Table string `json:"table" yaml:"table" mapstructure:"table"`

	// IDColumn is the integer primary key column (default "id").
	IDColumn string `json:"id_column,omitempty" yaml:"id_column,omitempty" mapstructure:"id_column"`

	// Fields maps field identifiers used in the converter configuration to
	// column names.
	Fields map[string]string `json:"fields" yaml:"fields" mapstructure:"fields"`
}

// RunConfig holds batch runner settings.
type RunConfig struct {
	DryRun      bool     `json:"dry_run" yaml:"dry_run" mapstructure:"dry_run"`
	RecordTypes []string `json:"record_types,omitempty" yaml:"record_types,omitempty" mapstructure:"record_types"`

	// IDFrom and IDTo bound record identifiers (inclusive); 0 leaves a side open.
	IDFrom int64 `json:"id_from" yaml:"id_from" mapstructure:"id_from"`
	IDTo   int64 `json:"id_to" yaml:"id_to" mapstructure:"id_to"`

	PageSize        int           `json:"page_size" yaml:"page_size" mapstructure:"page_size"`
	Workers         int           `json:"workers" yaml:"workers" mapstructure:"workers"`
	MaxWriteRetries int           `json:"max_write_retries" yaml:"max_write_retries" mapstructure:"max_write_retries"`
	RetryBaseDelay  time.Duration `json:"retry_base_delay" yaml:"retry_base_delay" mapstructure:"retry_base_delay"`

	// ReportFile receives the run report; the extension selects YAML or JSON.
	ReportFile string `json:"report_file,omitempty" yaml:"report_file,omitempty" mapstructure:"report_file"`

	// MetricsFile receives prometheus metrics in text exposition format.
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty" mapstructure:"metrics_file"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Encoding is console or json.
	Encoding string `json:"encoding" yaml:"encoding" mapstructure:"encoding"`
}

// IDRange narrows a run to record identifiers in [From, To]. A zero bound is
// open on that side.
type IDRange struct {
	From int64 `json:"from,omitempty" yaml:"from,omitempty"`
	To   int64 `json:"to,omitempty" yaml:"to,omitempty"`
}

// Contains reports whether id lies inside the range.
func (r IDRange) Contains(id int64) bool {
	if r.From > 0 && id < r.From {
		return false
	}
	if r.To > 0 && id > r.To {
		return false
	}
	return true
}

// DefaultTables returns the Redmine tables that carry rich text, keyed by
// record type.
func DefaultTables() map[string]TableConfig {
	return map[string]TableConfig{
		"Issue":       {Table: "issues", IDColumn: "id", Fields: map[string]string{"description": "description"}},
		"Journal":     {Table: "journals", IDColumn: "id", Fields: map[string]string{"notes": "notes"}},
		"WikiContent": {Table: "wiki_contents", IDColumn: "id", Fields: map[string]string{"text": "text"}},
		"Project":     {Table: "projects", IDColumn: "id", Fields: map[string]string{"description": "description"}},
		"News":        {Table: "news", IDColumn: "id", Fields: map[string]string{"summary": "summary", "description": "description"}},
		"Comment":     {Table: "comments", IDColumn: "id", Fields: map[string]string{"comments": "comments"}},
		"Document":    {Table: "documents", IDColumn: "id", Fields: map[string]string{"description": "description"}},
		"Message":     {Table: "messages", IDColumn: "id", Fields: map[string]string{"content": "content"}},
	}
}
