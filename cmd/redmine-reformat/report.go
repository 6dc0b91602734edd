// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"go.yaml.in/yaml/v3"

	"github.com/dmakurin/redmine-reformat/pkg/types"
)

// printReport writes the human-readable run summary.
func printReport(w io.Writer, r *types.Report) {
	mode := ""
	if r.DryRun {
		mode = " (dry run, nothing written)"
	}
	fmt.Fprintf(w, "Run %s%s\n", r.RunID, mode)
	if len(r.RecordTypes) > 0 {
		fmt.Fprintf(w, "Record types: %s\n", strings.Join(r.RecordTypes, ", "))
	}
	if len(r.UnconfiguredTypes) > 0 {
		fmt.Fprintf(w, "No rules for: %s\n", strings.Join(r.UnconfiguredTypes, ", "))
	}

	if len(r.AbsentFields) > 0 {
		fmt.Fprintf(w, "Fields missing from every record (check names and table mapping): %s\n", strings.Join(r.AbsentFields, ", "))
	}

	if len(r.Failures) > 0 {
		fmt.Fprintln(w, "Failures:")
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  %s#%d.%s: %s\n", f.RecordType, f.RecordID, f.Field, f.Error)
		}
	}

	fmt.Fprintf(w, "\nSummary: %d records, %d converted, %d skipped (%d already converted, %d empty), %d failed in %s\n",
		r.Records, r.Converted(), r.Skipped(),
		r.Counts[types.StatusSkippedTarget], r.Counts[types.StatusSkippedEmpty],
		r.Failed(), r.Duration().Round(1e6))
	if r.Interrupted {
		fmt.Fprintln(w, "Interrupted: re-run the same command to continue.")
	}
}

// writeReport saves the report as JSON or YAML, chosen by the file
// extension.
func writeReport(path string, r *types.Report) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(r, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(r)
	default:
		return fmt.Errorf("unsupported report format %q: use .json, .yaml or .yml", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
