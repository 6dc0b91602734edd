// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestParseConfig_Valid(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		"Issue": {
			"description": {"sourceFormat": "textile", "targetFormat": "markdown",
				"converter": "textileToMarkdown", "options": {"headingOffset": 1}}
		},
		"Journal": {
			"notes": {"sourceFormat": "textile", "targetFormat": "markdown",
				"converters": [
					{"name": "textileToMarkdown"},
					{"name": "rewrite", "options": {"macros": {"toc": "toc_md"}}}
				]}
		}
	}`))
	require.NoError(t, err)
	require.Len(t, cfg, 2)

	issue := cfg["Issue"]["description"]
	assert.Equal(t, "textile", issue.SourceFormat)
	assert.Equal(t, "markdown", issue.TargetFormat)
	require.Len(t, issue.Chain, 1)
	assert.Equal(t, "textileToMarkdown", issue.Chain[0].Name)
	assert.JSONEq(t, `{"headingOffset": 1}`, string(issue.Chain[0].Options))

	notes := cfg["Journal"]["notes"]
	require.Len(t, notes.Chain, 2)
	assert.Equal(t, "textileToMarkdown", notes.Chain[0].Name)
	assert.Empty(t, notes.Chain[0].Options)
	assert.Equal(t, "rewrite", notes.Chain[1].Name)
}

func TestParseConfig_EmptyObject(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, cfg)
}

func TestParseConfig_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		wantPath string
	}{
		{"null document", `null`, ""},
		{"array document", `[]`, ""},
		{"not json", `{"Issue":`, ""},
		{"trailing data", `{} {}`, ""},
		{"empty record type", `{"": {}}`, ""},
		{"null fields", `{"Issue": null}`, "Issue"},
		{"fields not an object", `{"Issue": "description"}`, "Issue"},
		{"empty field name", `{"Issue": {"": {"sourceFormat": "a", "targetFormat": "b", "converter": "identity"}}}`, "Issue"},
		{"unknown key", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b", "converter": "identity", "enabled": true}}}`, "Issue.description"},
		{"wrong type", `{"Issue": {"description": {"sourceFormat": 1, "targetFormat": "b", "converter": "identity"}}}`, "Issue.description"},
		{"missing sourceFormat", `{"Issue": {"description": {"targetFormat": "b", "converter": "identity"}}}`, "Issue.description"},
		{"missing targetFormat", `{"Issue": {"description": {"sourceFormat": "a", "converter": "identity"}}}`, "Issue.description"},
		{"empty targetFormat", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "", "converter": "identity"}}}`, "Issue.description"},
		{"no converter", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b"}}}`, "Issue.description"},
		{"both converter forms", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b", "converter": "identity", "converters": [{"name": "identity"}]}}}`, "Issue.description"},
		{"empty converter name", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b", "converter": ""}}}`, "Issue.description.converter"},
		{"empty chain", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b", "converters": []}}}`, "Issue.description.converters"},
		{"chain entry without name", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b", "converters": [{"name": "identity"}, {"options": {}}]}}}`, "Issue.description.converters[1]"},
		{"chain entry unknown key", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b", "converters": [{"name": "identity", "opts": {}}]}}}`, "Issue.description"},
		{"rule options with chain", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b", "options": {}, "converters": [{"name": "identity"}]}}}`, "Issue.description.options"},
		{"options not an object", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b", "converter": "identity", "options": [1]}}}`, "Issue.description.options"},
		{"duplicate record type", `{"Issue": {}, "Issue": {}}`, "Issue"},
		{"duplicate field", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b", "converter": "identity"}, "description": {"sourceFormat": "a", "targetFormat": "c", "converter": "identity"}}}`, "Issue.description"},
		{"duplicate rule key", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b", "converter": "identity", "converter": "rewrite"}}}`, "Issue.description.converter"},
		{"duplicate key in chain entry", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b", "converters": [{"name": "identity", "name": "rewrite"}]}}}`, "Issue.description.converters[0].name"},
		{"chain options not an object", `{"Issue": {"description": {"sourceFormat": "a", "targetFormat": "b", "converters": [{"name": "identity", "options": "x"}]}}}`, "Issue.description.converters[0].options"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.json))
			require.Error(t, err)
			assert.Nil(t, cfg)

			var parseErr *ConfigParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tt.wantPath, parseErr.Path)
		})
	}
}

func TestParseConfig_DuplicateFieldNotOverwritten(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		"WikiContent": {
			"text": {"sourceFormat": "textile", "targetFormat": "markdown", "converter": "textileToMarkdown"},
			"text": {"sourceFormat": "textile", "targetFormat": "html", "converter": "identity"}
		}
	}`))
	assert.Nil(t, cfg)
	require.Error(t, err)

	errs := multierr.Errors(err)
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "converter config: WikiContent.text: duplicate key")
}

func TestParseConfig_CollectsAllErrors(t *testing.T) {
	_, err := ParseConfig([]byte(`{
		"Issue": {"description": {"targetFormat": "markdown", "converter": "identity"}},
		"WikiContent": {"text": {"sourceFormat": "textile", "targetFormat": "markdown", "converters": []}}
	}`))
	require.Error(t, err)

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "Issue.description: sourceFormat is required")
	assert.Contains(t, errs[1].Error(), "WikiContent.text.converters: must not be empty")
}
