// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package converter

import "context"

// Link is one named converter in a chain.
type Link struct {
	Name      string
	Converter Converter
}

// Chain runs converters in order, feeding each output into the next.
type Chain []Link

// Names returns the converter names in chain order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, l := range c {
		names[i] = l.Name
	}
	return names
}

// Convert runs the chain on text. The first failure aborts the chain and
// is returned as a *ConversionError naming the failing converter; no
// intermediate output escapes.
func (c Chain) Convert(ctx context.Context, text string, fc FieldContext) (string, error) {
	out := text
	for _, l := range c {
		next, err := l.Converter.Convert(ctx, out, fc)
		if err != nil {
			return "", &ConversionError{Converter: l.Name, Err: err}
		}
		out = next
	}
	return out, nil
}
