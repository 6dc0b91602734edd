// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"go.uber.org/multierr"

	"github.com/dmakurin/redmine-reformat/internal/converter"
)

// Config is a parsed converter configuration: record type, then field,
// then the rule for that field.
type Config map[string]map[string]RuleConfig

// RuleConfig is the configuration of one (record type, field) rule. It
// always carries a non-empty chain; the single-converter shorthand is
// normalized into a one-element chain.
type RuleConfig struct {
	SourceFormat string
	TargetFormat string
	Chain        []ConverterRef
}

// ConverterRef names one converter in a chain together with its options.
type ConverterRef struct {
	Name    string
	Options converter.Options
}

type ruleDoc struct {
	SourceFormat *string         `json:"sourceFormat"`
	TargetFormat *string         `json:"targetFormat"`
	Converter    *string         `json:"converter"`
	Converters   *[]converterDoc `json:"converters"`
	Options      json.RawMessage `json:"options"`
}

type converterDoc struct {
	Name    *string         `json:"name"`
	Options json.RawMessage `json:"options"`
}

// ParseConfig decodes and validates a converter configuration. Every
// problem found is reported as a *ConfigParseError; the returned error
// combines them all so an operator can fix the file in one pass.
func ParseConfig(data []byte) (Config, error) {
	var top map[string]json.RawMessage
	if err := strictDecode(data, &top); err != nil {
		return nil, parseErr("", "%v", err)
	}
	if top == nil {
		return nil, parseErr("", "configuration must be an object, got null")
	}

	cfg := make(Config, len(top))
	var errs error
	for _, path := range duplicateKeys(data) {
		errs = multierr.Append(errs, parseErr(path, "duplicate key"))
	}
	for _, recordType := range sortedKeys(top) {
		if recordType == "" {
			errs = multierr.Append(errs, parseErr("", "empty record type"))
			continue
		}
		fields, err := parseFields(recordType, top[recordType])
		errs = multierr.Append(errs, err)
		if len(fields) > 0 {
			cfg[recordType] = fields
		}
	}
	if errs != nil {
		return nil, errs
	}
	return cfg, nil
}

func parseFields(recordType string, raw json.RawMessage) (map[string]RuleConfig, error) {
	var fields map[string]json.RawMessage
	if err := strictDecode(raw, &fields); err != nil {
		return nil, parseErr(recordType, "%v", err)
	}
	if fields == nil {
		return nil, parseErr(recordType, "fields must be an object, got null")
	}

	out := make(map[string]RuleConfig, len(fields))
	var errs error
	for _, field := range sortedKeys(fields) {
		path := recordType + "." + field
		if field == "" {
			errs = multierr.Append(errs, parseErr(recordType, "empty field name"))
			continue
		}
		rule, err := parseRule(path, fields[field])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out[field] = rule
	}
	return out, errs
}

func parseRule(path string, raw json.RawMessage) (RuleConfig, error) {
	var doc ruleDoc
	if err := strictDecode(raw, &doc); err != nil {
		return RuleConfig{}, parseErr(path, "%v", err)
	}

	var errs error
	if doc.SourceFormat == nil || *doc.SourceFormat == "" {
		errs = multierr.Append(errs, parseErr(path, "sourceFormat is required"))
	}
	if doc.TargetFormat == nil || *doc.TargetFormat == "" {
		errs = multierr.Append(errs, parseErr(path, "targetFormat is required"))
	}
	if !isObjectOrAbsent(doc.Options) {
		errs = multierr.Append(errs, parseErr(path+".options", "must be an object"))
	}

	var chain []ConverterRef
	switch {
	case doc.Converter != nil && doc.Converters != nil:
		errs = multierr.Append(errs, parseErr(path, "converter and converters are mutually exclusive"))
	case doc.Converter == nil && doc.Converters == nil:
		errs = multierr.Append(errs, parseErr(path, "one of converter or converters is required"))
	case doc.Converter != nil:
		if *doc.Converter == "" {
			errs = multierr.Append(errs, parseErr(path+".converter", "must not be empty"))
			break
		}
		chain = []ConverterRef{{Name: *doc.Converter, Options: converter.Options(doc.Options)}}
	default:
		if !isAbsent(doc.Options) {
			errs = multierr.Append(errs, parseErr(path+".options",
				"not allowed with converters; set options on each chain entry"))
		}
		if len(*doc.Converters) == 0 {
			errs = multierr.Append(errs, parseErr(path+".converters", "must not be empty"))
		}
		for i, c := range *doc.Converters {
			entry := fmt.Sprintf("%s.converters[%d]", path, i)
			if c.Name == nil || *c.Name == "" {
				errs = multierr.Append(errs, parseErr(entry, "name is required"))
				continue
			}
			if !isObjectOrAbsent(c.Options) {
				errs = multierr.Append(errs, parseErr(entry+".options", "must be an object"))
				continue
			}
			chain = append(chain, ConverterRef{Name: *c.Name, Options: converter.Options(c.Options)})
		}
	}
	if errs != nil {
		return RuleConfig{}, errs
	}

	return RuleConfig{
		SourceFormat: *doc.SourceFormat,
		TargetFormat: *doc.TargetFormat,
		Chain:        chain,
	}, nil
}

func strictDecode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after the top-level value")
	}
	return nil
}

// duplicateKeys returns the path of every object key that repeats within
// its object. Syntax errors end the walk; strictDecode reports them.
func duplicateKeys(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	var dups []string

	var walk func(path string) error
	walk = func(path string) error {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			return nil
		}
		switch delim {
		case '{':
			seen := make(map[string]bool)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return err
				}
				key, _ := keyTok.(string)
				keyPath := key
				if path != "" {
					keyPath = path + "." + key
				}
				if seen[key] {
					dups = append(dups, keyPath)
				}
				seen[key] = true
				if err := walk(keyPath); err != nil {
					return err
				}
			}
		case '[':
			for i := 0; dec.More(); i++ {
				if err := walk(fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
		_, err = dec.Token()
		return err
	}
	walk("")
	return dups
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isObjectOrAbsent(raw json.RawMessage) bool {
	return isAbsent(raw) || bytes.TrimSpace(raw)[0] == '{'
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
