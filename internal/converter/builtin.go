// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package converter

import (
	"context"
	"net/http"
	"sync"

	"github.com/dmakurin/redmine-reformat/internal/container"
)

// Names of the built-in converters.
const (
	NameIdentity          = "identity"
	NameTextileToMarkdown = "textileToMarkdown"
	NameRewrite           = "rewrite"
	NameCommand           = "command"
	NameContainer         = "container"
	NameWebService        = "webService"
)

// Deps carries the outside-world handles the built-ins need. Zero values
// select the production implementations.
type Deps struct {
	// Command runs local processes for the command converter.
	Command container.Command
	// Runtime returns the container runtime. It is called at most once,
	// when the first container converter is built.
	Runtime func() (container.Runtime, error)
	// HTTPClient is the base client for webService converters.
	HTTPClient *http.Client
}

// RegisterBuiltins registers every built-in converter on r.
func RegisterBuiltins(r *Registry, deps Deps) error {
	if deps.Command == nil {
		deps.Command = container.Local()
	}
	if deps.Runtime == nil {
		deps.Runtime = container.DetectRuntime
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{}
	}

	builtins := []struct {
		name    string
		factory Factory
	}{
		{NameIdentity, newIdentity},
		{NameTextileToMarkdown, newTextileToMarkdown},
		{NameRewrite, newRewrite},
		{NameCommand, newCommandFactory(deps.Command)},
		{NameContainer, newContainerFactory(sync.OnceValues(deps.Runtime))},
		{NameWebService, newWebServiceFactory(deps.HTTPClient)},
	}
	for _, b := range builtins {
		if err := r.Register(b.name, b.factory); err != nil {
			return err
		}
	}
	return nil
}

func newIdentity(opts Options) (Converter, error) {
	var none struct{}
	if err := DecodeOptions(opts, &none); err != nil {
		return nil, err
	}
	return Func(func(_ context.Context, text string, _ FieldContext) (string, error) {
		return text, nil
	}), nil
}
