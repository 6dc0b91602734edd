// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package converter defines markup converters and the registry that builds
// them by name. A converter maps text in one markup dialect to another; its
// options are fixed when the registry builds it, so conversion itself is a
// pure function of the input text and the field being converted.
package converter

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// FieldContext identifies the record field a value belongs to. Converters
// that rewrite cross references use it; most ignore it.
type FieldContext struct {
	RecordType   string
	RecordID     int64
	Field        string
	SourceFormat string
	TargetFormat string
}

// String renders the context as Type#ID.field for log and error messages.
func (fc FieldContext) String() string {
	return fmt.Sprintf("%s#%d.%s", fc.RecordType, fc.RecordID, fc.Field)
}

// Converter transforms text from a source format to a target format.
// Implementations must not touch the record store.
type Converter interface {
	// Convert returns the converted text or an error. A failing converter
	// must not return partial output.
	Convert(ctx context.Context, text string, fc FieldContext) (string, error)
}

// Func adapts a plain function to the Converter interface.
type Func func(ctx context.Context, text string, fc FieldContext) (string, error)

// Convert calls f.
func (f Func) Convert(ctx context.Context, text string, fc FieldContext) (string, error) {
	return f(ctx, text, fc)
}

// Options is the raw JSON options object of one converter in the
// configuration. Its shape is defined by the converter's factory.
type Options = json.RawMessage

// DecodeOptions strictly decodes opts into v: unknown keys and type
// mismatches are rejected with an *InvalidOptionsError. Empty or null
// options leave v untouched.
func DecodeOptions(opts Options, v any) error {
	trimmed := bytes.TrimSpace(opts)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &InvalidOptionsError{Err: err}
	}
	return nil
}
