// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dmakurin/redmine-reformat/internal/converter"
	"github.com/dmakurin/redmine-reformat/internal/engine"
	"github.com/dmakurin/redmine-reformat/internal/runner"
	"github.com/dmakurin/redmine-reformat/internal/store/sqlstore"
	"github.com/dmakurin/redmine-reformat/pkg/types"
)

// setDefaults registers every config key so environment variables reach
// keys that appear in neither the config file nor the flags.
func setDefaults() {
	viper.SetDefault("converters_json", "")
	viper.SetDefault("converters_file", "")
	viper.SetDefault("secrets_dir", ".secrets/")

	viper.SetDefault("store.driver", "sqlite3")
	viper.SetDefault("store.dsn", "")
	viper.SetDefault("store.format_markers", true)
	viper.SetDefault("store.marker_table", sqlstore.DefaultMarkerTable)

	viper.SetDefault("run.dry_run", false)
	viper.SetDefault("run.record_types", []string{})
	viper.SetDefault("run.id_from", 0)
	viper.SetDefault("run.id_to", 0)
	viper.SetDefault("run.page_size", runner.DefaultPageSize)
	viper.SetDefault("run.workers", runner.DefaultWorkers)
	viper.SetDefault("run.max_write_retries", runner.DefaultMaxWriteRetries)
	viper.SetDefault("run.retry_base_delay", "0s")
	viper.SetDefault("run.report_file", "")
	viper.SetDefault("run.metrics_file", "")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.encoding", "console")
}

// loadConfig assembles the application config from viper.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}
	return cfg, nil
}

// converterConfig returns the converter configuration document: the
// inline JSON when set, otherwise the contents of the converters file.
func converterConfig(cfg types.Config) ([]byte, error) {
	if cfg.ConvertersJSON != "" {
		return []byte(cfg.ConvertersJSON), nil
	}
	if cfg.ConvertersFile != "" {
		data, err := os.ReadFile(cfg.ConvertersFile)
		if err != nil {
			return nil, fmt.Errorf("reading converter configuration: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("no converter configuration: set --converters-json or --converters-file")
}

// newRegistry returns a registry holding the built-in converters.
func newRegistry(logger *zap.Logger) (*converter.Registry, error) {
	reg := converter.NewRegistry(logger)
	if err := converter.RegisterBuiltins(reg, converter.Deps{}); err != nil {
		return nil, err
	}
	return reg, nil
}

// buildEngine resolves the converter configuration. Every configuration
// error is reported before any database access.
func buildEngine(cfg types.Config, logger *zap.Logger) (*engine.Engine, error) {
	data, err := converterConfig(cfg)
	if err != nil {
		return nil, err
	}
	reg, err := newRegistry(logger)
	if err != nil {
		return nil, err
	}
	e, err := engine.BuildFromJSON(reg, data)
	if err != nil {
		return nil, fmt.Errorf("invalid converter configuration:\n%w", err)
	}
	logger.Debug("converter configuration loaded", zap.Strings("record_types", e.RecordTypes()))
	return e, nil
}
