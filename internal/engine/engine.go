// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine binds record fields to converter chains. It parses the
// converter configuration, resolves every converter up front, and converts
// single record fields. The engine never reads or writes the store itself;
// records are handed to it by the runner.
package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/dmakurin/redmine-reformat/internal/converter"
	"github.com/dmakurin/redmine-reformat/internal/store"
	"github.com/dmakurin/redmine-reformat/pkg/types"
)

// Rule binds one field of one record type to its converter chain.
type Rule struct {
	RecordType   string
	Field        string
	SourceFormat string
	TargetFormat string
	Chain        converter.Chain
}

// Engine holds the resolved rules, indexed by record type. It is
// read-only after construction and safe for concurrent use.
type Engine struct {
	rules       map[string][]*Rule
	recordTypes []string
}

// BuildFromJSON parses data and builds an engine from it.
func BuildFromJSON(reg *converter.Registry, data []byte) (*Engine, error) {
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return BuildFromConfig(reg, cfg)
}

// BuildFromConfig resolves every converter named in cfg. Any unknown name
// or rejected options fails the whole build; all such errors are returned
// together and no engine is produced.
func BuildFromConfig(reg *converter.Registry, cfg Config) (*Engine, error) {
	e := &Engine{rules: make(map[string][]*Rule, len(cfg))}

	var errs error
	for _, recordType := range sortedKeys(cfg) {
		fields := cfg[recordType]
		for _, field := range sortedKeys(fields) {
			rc := fields[field]
			if len(rc.Chain) == 0 {
				errs = multierr.Append(errs, parseErr(recordType+"."+field, "empty converter chain"))
				continue
			}

			rule := &Rule{
				RecordType:   recordType,
				Field:        field,
				SourceFormat: rc.SourceFormat,
				TargetFormat: rc.TargetFormat,
				Chain:        make(converter.Chain, 0, len(rc.Chain)),
			}
			for _, ref := range rc.Chain {
				conv, err := reg.Build(ref.Name, ref.Options)
				if err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%s.%s: %w", recordType, field, err))
					continue
				}
				rule.Chain = append(rule.Chain, converter.Link{Name: ref.Name, Converter: conv})
			}
			e.rules[recordType] = append(e.rules[recordType], rule)
		}
		if len(e.rules[recordType]) > 0 {
			e.recordTypes = append(e.recordTypes, recordType)
		}
	}
	if errs != nil {
		return nil, errs
	}
	return e, nil
}

// RecordTypes returns the configured record types in sorted order.
func (e *Engine) RecordTypes() []string {
	return append([]string(nil), e.recordTypes...)
}

// RulesFor returns the rules of recordType ordered by field name. It is
// empty for unconfigured types.
func (e *Engine) RulesFor(recordType string) []*Rule {
	return append([]*Rule(nil), e.rules[recordType]...)
}

// Rule returns the rule for one field.
func (e *Engine) Rule(recordType, field string) (*Rule, bool) {
	for _, r := range e.rules[recordType] {
		if r.Field == field {
			return r, true
		}
	}
	return nil, false
}

// Convert applies rule to its field of rec. Empty fields and fields the
// marker reports as already in the target format are skipped without
// running the chain. A chain failure yields a failed outcome carrying the
// failing converter's error and never a partial value. marker may be nil.
func (e *Engine) Convert(ctx context.Context, rec types.Record, rule *Rule, marker store.FormatMarker) types.FieldOutcome {
	out := types.FieldOutcome{RecordType: rec.Type, RecordID: rec.ID, Field: rule.Field}

	if rule.RecordType != rec.Type {
		out.Status = types.StatusFailed
		out.Err = fmt.Errorf("rule for %s applied to a %s record", rule.RecordType, rec.Type)
		return out
	}

	text, ok := rec.Field(rule.Field)
	if !ok || strings.TrimSpace(text) == "" {
		out.Status = types.StatusSkippedEmpty
		return out
	}

	if marker != nil {
		marked, err := marker.IsFormatMarked(ctx, rec.Type, rec.ID, rule.Field, rule.TargetFormat)
		if err != nil {
			out.Status = types.StatusFailed
			out.Err = fmt.Errorf("reading format marker: %w", err)
			return out
		}
		if marked {
			out.Status = types.StatusSkippedTarget
			return out
		}
	}

	converted, err := rule.Chain.Convert(ctx, text, converter.FieldContext{
		RecordType:   rec.Type,
		RecordID:     rec.ID,
		Field:        rule.Field,
		SourceFormat: rule.SourceFormat,
		TargetFormat: rule.TargetFormat,
	})
	if err != nil {
		out.Status = types.StatusFailed
		out.Err = err
		return out
	}

	out.Status = types.StatusConverted
	out.Value = converted
	return out
}

// ConvertRecord applies every rule of rec's type. A record whose type has
// no rules yields a single skipped-no-rule outcome with an empty field.
func (e *Engine) ConvertRecord(ctx context.Context, rec types.Record, marker store.FormatMarker) []types.FieldOutcome {
	rules := e.rules[rec.Type]
	if len(rules) == 0 {
		return []types.FieldOutcome{{
			RecordType: rec.Type,
			RecordID:   rec.ID,
			Status:     types.StatusSkippedNoRule,
		}}
	}

	outcomes := make([]types.FieldOutcome, 0, len(rules))
	for _, rule := range rules {
		outcomes = append(outcomes, e.Convert(ctx, rec, rule, marker))
	}
	return outcomes
}
