// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package converter

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type rewriteRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
}

type rewriteOptions struct {
	Rules  []rewriteRule     `json:"rules"`
	Macros map[string]string `json:"macros"`
}

type compiledRule struct {
	re          *regexp.Regexp
	replacement string
}

// Rewrite applies regular-expression rules and renames wiki macros. It is
// meant to run after a markup converter to fix cross references that the
// target dialect spells differently.
type Rewrite struct {
	rules  []compiledRule
	macros map[string]string
	macro  *regexp.Regexp
}

func newRewrite(opts Options) (Converter, error) {
	var o rewriteOptions
	if err := DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if len(o.Rules) == 0 && len(o.Macros) == 0 {
		return nil, invalidOptions("at least one rule or macro is required")
	}

	rw := &Rewrite{macros: o.Macros}
	for i, r := range o.Rules {
		if r.Pattern == "" {
			return nil, invalidOptions("rules[%d]: empty pattern", i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, invalidOptions("rules[%d]: %v", i, err)
		}
		rw.rules = append(rw.rules, compiledRule{re: re, replacement: r.Replacement})
	}

	if len(o.Macros) > 0 {
		names := make([]string, 0, len(o.Macros))
		for name, repl := range o.Macros {
			if name == "" || repl == "" {
				return nil, invalidOptions("macro names must not be empty")
			}
			names = append(names, regexp.QuoteMeta(name))
		}
		// Longest first so "toc" never shadows "toc_left".
		sort.Slice(names, func(i, j int) bool {
			if len(names[i]) != len(names[j]) {
				return len(names[i]) > len(names[j])
			}
			return names[i] < names[j]
		})
		rw.macro = regexp.MustCompile(`\{\{(\s*)(` + strings.Join(names, "|") + `)(\s*[(}])`)
	}
	return rw, nil
}

// Convert implements Converter.
func (rw *Rewrite) Convert(_ context.Context, text string, fc FieldContext) (string, error) {
	ctxReplacer := strings.NewReplacer(
		"{{record_type}}", fc.RecordType,
		"{{record_id}}", strconv.FormatInt(fc.RecordID, 10),
		"{{field}}", fc.Field,
	)
	for _, r := range rw.rules {
		text = r.re.ReplaceAllString(text, ctxReplacer.Replace(r.replacement))
	}
	if rw.macro != nil {
		text = rw.macro.ReplaceAllStringFunc(text, func(m string) string {
			sub := rw.macro.FindStringSubmatch(m)
			return "{{" + sub[1] + rw.macros[sub[2]] + sub[3]
		})
	}
	return text, nil
}
