// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import "fmt"

// ConfigParseError reports a malformed converter configuration. Path
// locates the offending element, e.g. "Issue.description.converters[1]".
type ConfigParseError struct {
	Path string
	Msg  string
}

func (e *ConfigParseError) Error() string {
	if e.Path == "" {
		return "converter config: " + e.Msg
	}
	return fmt.Sprintf("converter config: %s: %s", e.Path, e.Msg)
}

func parseErr(path, format string, args ...any) error {
	return &ConfigParseError{Path: path, Msg: fmt.Sprintf(format, args...)}
}
