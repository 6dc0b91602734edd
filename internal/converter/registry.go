// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package converter

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dmakurin/redmine-reformat/internal/logging"
)

// Factory builds a converter from its options. Factories report option
// problems with an *InvalidOptionsError (DecodeOptions does so already).
type Factory func(opts Options) (Converter, error)

// Registry maps converter names to factories. Registration happens once at
// process start; Build is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry creates an empty registry. A nil logger disables logging.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logging.Component(logger, "converter_registry"),
	}
}

// Register adds a factory under name. It fails with a
// *DuplicateConverterError if the name is taken.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("converter name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("converter %q: nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return &DuplicateConverterError{Name: name}
	}
	r.factories[name] = factory
	r.logger.Debug("converter registered", zap.String("name", name))
	return nil
}

// MustRegister is Register for process start-up code; it panics on error.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Build instantiates the named converter with opts. It fails with an
// *UnknownConverterError for unregistered names and an
// *InvalidOptionsError for any factory failure.
func (r *Registry) Build(name string, opts Options) (Converter, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownConverterError{Name: name}
	}

	conv, err := factory(opts)
	if err != nil {
		var invalid *InvalidOptionsError
		if errors.As(err, &invalid) {
			if invalid.Converter == "" {
				invalid.Converter = name
			}
			return nil, invalid
		}
		return nil, &InvalidOptionsError{Converter: name, Err: err}
	}
	if conv == nil {
		return nil, fmt.Errorf("building converter %q: factory returned nil", name)
	}
	return conv, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
