// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dmakurin/redmine-reformat/internal/logging"
	"github.com/dmakurin/redmine-reformat/internal/retry"
	"github.com/dmakurin/redmine-reformat/internal/runner"
	"github.com/dmakurin/redmine-reformat/internal/secrets"
	"github.com/dmakurin/redmine-reformat/internal/store"
	"github.com/dmakurin/redmine-reformat/internal/store/sqlstore"
	"github.com/dmakurin/redmine-reformat/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert rich-text fields in a Redmine database",
	Long: `Convert pages through every configured record type, converts each field
through its converter chain, and writes converted fields back one record per
transaction. Fields that fail keep their original text and are listed in the
report. With --dry-run nothing is written.

The DSN may reference secrets as ${name}; they are read from the secrets
directory, falling back to the environment.

Interrupting the command (Ctrl-C) finishes the record in progress and
prints the partial report. Re-running resumes where the previous run left
off, since fields marked as already converted are skipped.`,
	RunE: runConvert,
}

var convertFlagKeys = map[string]string{
	"converters_json":       "converters-json",
	"converters_file":       "converters-file",
	"store.driver":          "driver",
	"store.dsn":             "dsn",
	"store.marker_table":    "marker-table",
	"run.dry_run":           "dry-run",
	"run.record_types":      "record-type",
	"run.id_from":           "id-from",
	"run.id_to":             "id-to",
	"run.workers":           "workers",
	"run.page_size":         "page-size",
	"run.max_write_retries": "max-write-retries",
	"run.report_file":       "report-file",
	"run.metrics_file":      "metrics-file",
}

func init() {
	f := convertCmd.Flags()
	f.String("converters-json", "", "converter configuration as inline JSON")
	f.String("converters-file", "", "path to the converter configuration JSON file")
	f.String("driver", "sqlite3", "database driver: sqlite3, pgx, or mysql")
	f.String("dsn", "", "database DSN; ${name} expands from secrets or the environment")
	f.String("marker-table", sqlstore.DefaultMarkerTable, "table that records converted field formats")
	f.Bool("no-markers", false, "do not read or write format markers (reconvert every field)")
	f.Bool("dry-run", false, "convert and report without writing")
	f.StringSlice("record-type", nil, "limit the run to a record type (repeatable)")
	f.Int64("id-from", 0, "lowest record id to convert (inclusive)")
	f.Int64("id-to", 0, "highest record id to convert (inclusive)")
	f.Int("workers", runner.DefaultWorkers, "records converted in parallel")
	f.Int("page-size", runner.DefaultPageSize, "records fetched per page")
	f.Int("max-write-retries", runner.DefaultMaxWriteRetries, "retries of a record write after a transient database error; 0 disables retries")
	f.String("report-file", "", "write the run report to this file (.yaml or .json)")
	f.String("metrics-file", "", "write prometheus metrics to this file after the run")

	rootCmd.AddCommand(convertCmd)
}

// runOptions maps the run config onto runner options. The config already
// carries the defaults, so a zero retry count means no retries.
func runOptions(cfg types.RunConfig) runner.Options {
	retries := cfg.MaxWriteRetries
	if retries == 0 {
		retries = -1
	}
	return runner.Options{
		DryRun:          cfg.DryRun,
		RecordTypes:     cfg.RecordTypes,
		IDRange:         types.IDRange{From: cfg.IDFrom, To: cfg.IDTo},
		PageSize:        cfg.PageSize,
		Workers:         cfg.Workers,
		MaxWriteRetries: retries,
	}
}

func runConvert(cmd *cobra.Command, args []string) error {
	bindFlags(cmd.Flags(), convertFlagKeys)
	if noMarkers, _ := cmd.Flags().GetBool("no-markers"); noMarkers {
		viper.Set("store.format_markers", false)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:        cfg.Store.Driver,
		DSN:           secrets.Expand(cfg.Store.DSN, loadedSecrets),
		Tables:        cfg.Store.TableMapping(),
		FormatMarkers: cfg.Store.FormatMarkers,
		MarkerTable:   cfg.Store.MarkerTable,
		ReadOnly:      cfg.Run.DryRun,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	var records store.RecordStore = db
	if !cfg.Store.FormatMarkers {
		records = store.WithoutFormatMarkers(db)
	}
	if cfg.Run.RetryBaseDelay > 0 {
		retry.BaseDelay = cfg.Run.RetryBaseDelay
	}

	registry := prometheus.NewRegistry()
	opts := runOptions(cfg.Run)
	opts.Logger = logger
	opts.Metrics = runner.NewMetrics(registry)
	report, runErr := runner.Run(ctx, records, eng, opts)

	printReport(os.Stdout, report)
	if cfg.Run.ReportFile != "" {
		if err := writeReport(cfg.Run.ReportFile, report); err != nil {
			logger.Error("writing report", zap.String("path", cfg.Run.ReportFile), zap.Error(err))
		}
	}
	if cfg.Run.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.Run.MetricsFile, registry); err != nil {
			logger.Error("writing metrics", zap.String("path", cfg.Run.MetricsFile), zap.Error(err))
		}
	}

	if runErr != nil {
		return fmt.Errorf("run aborted: %w", runErr)
	}
	if report.HasFailures() {
		return fmt.Errorf("%d field(s) failed conversion", report.Failed())
	}
	return nil
}
