// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package converter

import "fmt"

// DuplicateConverterError is returned when a name is registered twice.
type DuplicateConverterError struct {
	Name string
}

func (e *DuplicateConverterError) Error() string {
	return fmt.Sprintf("converter %q already registered", e.Name)
}

// UnknownConverterError is returned when building a name that was never
// registered.
type UnknownConverterError struct {
	Name string
}

func (e *UnknownConverterError) Error() string {
	return fmt.Sprintf("unknown converter %q", e.Name)
}

// InvalidOptionsError is returned when options do not fit the converter's
// expected shape.
type InvalidOptionsError struct {
	Converter string
	Err       error
}

func (e *InvalidOptionsError) Error() string {
	if e.Converter == "" {
		return fmt.Sprintf("invalid converter options: %v", e.Err)
	}
	return fmt.Sprintf("invalid options for converter %q: %v", e.Converter, e.Err)
}

func (e *InvalidOptionsError) Unwrap() error { return e.Err }

// invalidOptions builds an *InvalidOptionsError from a formatted message.
func invalidOptions(format string, args ...any) error {
	return &InvalidOptionsError{Err: fmt.Errorf(format, args...)}
}

// ConversionError is a converter failure on one field value. It names the
// converter in the chain that failed.
type ConversionError struct {
	Converter string
	Err       error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("converter %s: %v", e.Converter, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
