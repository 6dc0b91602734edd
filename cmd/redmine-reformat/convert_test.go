// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmakurin/redmine-reformat/internal/runner"
	"github.com/dmakurin/redmine-reformat/pkg/types"
)

func TestRunOptions_WriteRetries(t *testing.T) {
	tests := []struct {
		name       string
		configured int
		want       int
	}{
		{"default passes through", runner.DefaultMaxWriteRetries, runner.DefaultMaxWriteRetries},
		{"explicit count", 5, 5},
		{"zero disables", 0, -1},
		{"negative disables", -1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := runOptions(types.RunConfig{MaxWriteRetries: tt.configured})
			assert.Equal(t, tt.want, opts.MaxWriteRetries)
		})
	}
}

func TestRunOptions_CopiesRunConfig(t *testing.T) {
	opts := runOptions(types.RunConfig{
		DryRun:          true,
		RecordTypes:     []string{"Issue"},
		IDFrom:          10,
		IDTo:            20,
		PageSize:        50,
		Workers:         4,
		MaxWriteRetries: 2,
	})
	assert.True(t, opts.DryRun)
	assert.Equal(t, []string{"Issue"}, opts.RecordTypes)
	assert.Equal(t, types.IDRange{From: 10, To: 20}, opts.IDRange)
	assert.Equal(t, 50, opts.PageSize)
	assert.Equal(t, 4, opts.Workers)
	assert.Equal(t, 2, opts.MaxWriteRetries)
}
