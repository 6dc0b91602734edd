// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/dmakurin/redmine-reformat/pkg/types"
)

func sampleReport() *types.Report {
	r := types.NewReport("run-1", false)
	r.Records = 3
	r.RecordTypes = []string{"Issue", "Journal"}
	r.UnconfiguredTypes = []string{"News"}
	r.AbsentFields = []string{"Journal.note"}
	r.Add(types.FieldOutcome{RecordType: "Issue", RecordID: 1, Field: "description", Status: types.StatusConverted})
	r.Add(types.FieldOutcome{RecordType: "Issue", RecordID: 2, Field: "description", Status: types.StatusSkippedEmpty})
	r.Add(types.FieldOutcome{RecordType: "Journal", RecordID: 7, Field: "notes", Status: types.StatusFailed, Err: errors.New("pandoc: exit status 1")})
	r.Finish()
	return r
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, sampleReport())
	out := buf.String()

	assert.Contains(t, out, "Run run-1\n")
	assert.Contains(t, out, "Record types: Issue, Journal")
	assert.Contains(t, out, "No rules for: News")
	assert.Contains(t, out, "Fields missing from every record (check names and table mapping): Journal.note")
	assert.Contains(t, out, "Journal#7.notes: pandoc: exit status 1")
	assert.Contains(t, out, "3 records, 1 converted, 1 skipped (0 already converted, 1 empty), 1 failed")
	assert.NotContains(t, out, "Interrupted")
	assert.NotContains(t, out, "dry run")
}

func TestPrintReport_DryRunInterrupted(t *testing.T) {
	r := types.NewReport("run-2", true)
	r.Interrupted = true
	r.Finish()

	var buf bytes.Buffer
	printReport(&buf, r)
	assert.Contains(t, buf.String(), "(dry run, nothing written)")
	assert.Contains(t, buf.String(), "Interrupted: re-run the same command to continue.")
	assert.NotContains(t, buf.String(), "Failures:")
}

func TestWriteReport_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	require.NoError(t, writeReport(path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got types.Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 1, got.Counts[types.StatusConverted])
	require.Len(t, got.Failures, 1)
	assert.Equal(t, int64(7), got.Failures[0].RecordID)
}

func TestWriteReport_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, writeReport(path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, 3, got["records"])
	assert.Equal(t, []any{"News"}, got["unconfigured_types"])
}

func TestWriteReport_UnknownExtension(t *testing.T) {
	err := writeReport(filepath.Join(t.TempDir(), "run.txt"), sampleReport())
	assert.ErrorContains(t, err, "unsupported report format")
}
