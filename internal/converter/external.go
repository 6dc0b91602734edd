// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package converter

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmakurin/redmine-reformat/internal/container"
)

const defaultExternalTimeout = 30 * time.Second

// parseTimeout reads an optional Go duration string.
func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return defaultExternalTimeout, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, invalidOptions("timeout: %v", err)
	}
	if d <= 0 {
		return 0, invalidOptions("timeout must be positive, got %s", s)
	}
	return d, nil
}

// keepNewline trims the trailing newline tools like pandoc append when the
// input had none, so a round trip does not grow the field.
func keepNewline(in, out string) string {
	if !strings.HasSuffix(in, "\n") {
		return strings.TrimSuffix(out, "\n")
	}
	return out
}

type commandOptions struct {
	Command []string `json:"command"`
	Timeout string   `json:"timeout"`
}

// CommandConverter pipes text through a local process.
type CommandConverter struct {
	argv    []string
	timeout time.Duration
	run     container.Command
}

func newCommandFactory(run container.Command) Factory {
	return func(opts Options) (Converter, error) {
		var o commandOptions
		if err := DecodeOptions(opts, &o); err != nil {
			return nil, err
		}
		if len(o.Command) == 0 || o.Command[0] == "" {
			return nil, invalidOptions("command is required")
		}
		timeout, err := parseTimeout(o.Timeout)
		if err != nil {
			return nil, err
		}
		return &CommandConverter{argv: o.Command, timeout: timeout, run: run}, nil
	}
}

// Convert implements Converter.
func (c *CommandConverter) Convert(ctx context.Context, text string, _ FieldContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out bytes.Buffer
	if err := c.run.Run(ctx, c.argv, strings.NewReader(text), &out); err != nil {
		return "", err
	}
	return keepNewline(text, out.String()), nil
}

type containerOptions struct {
	Image   string   `json:"image"`
	Args    []string `json:"args"`
	Timeout string   `json:"timeout"`
}

// ContainerConverter pipes text through a throwaway container with
// networking disabled.
type ContainerConverter struct {
	image   string
	args    []string
	timeout time.Duration
	rt      container.Runtime
}

func newContainerFactory(runtime func() (container.Runtime, error)) Factory {
	return func(opts Options) (Converter, error) {
		var o containerOptions
		if err := DecodeOptions(opts, &o); err != nil {
			return nil, err
		}
		if o.Image == "" {
			return nil, invalidOptions("image is required")
		}
		timeout, err := parseTimeout(o.Timeout)
		if err != nil {
			return nil, err
		}
		rt, err := runtime()
		if err != nil {
			return nil, err
		}
		if err := rt.ImageExists(o.Image); err != nil {
			return nil, fmt.Errorf("%w (pull it with: %s pull %s)", err, rt.Name(), o.Image)
		}
		return &ContainerConverter{image: o.Image, args: o.Args, timeout: timeout, rt: rt}, nil
	}
}

// Convert implements Converter.
func (c *ContainerConverter) Convert(ctx context.Context, text string, _ FieldContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out bytes.Buffer
	if err := c.rt.Run(ctx, c.image, c.args, strings.NewReader(text), &out); err != nil {
		return "", err
	}
	return keepNewline(text, out.String()), nil
}
