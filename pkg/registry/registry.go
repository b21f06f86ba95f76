// Package registry provides the standard Target implementation: a mapping
// from method names to handler functions, plus typed argument binding.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// HandlerFunc is the signature for a method implementation. Arguments are
// the evaluated call arguments; the result is a JSON-like tree, optionally
// containing domain sentinel markers.
type HandlerFunc func(ctx context.Context, args []any) (any, error)

// Target dispatches methods by name. It implements ports.Target.
type Target struct {
	mu      sync.RWMutex
	methods map[string]HandlerFunc
}

// New creates an empty method table.
func New() *Target {
	return &Target{
		methods: make(map[string]HandlerFunc),
	}
}

// Method registers a handler under a name.
// If a handler with the same name exists, it is overwritten.
func (t *Target) Method(name string, fn HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.methods[name] = fn
}

// Dispatch looks up a method by name and invokes it.
// Returns an error if the method is not registered.
func (t *Target) Dispatch(ctx context.Context, method string, args []any) (any, error) {
	t.mu.RLock()
	fn, ok := t.methods[method]
	t.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("method not found: %s", method)
	}
	return fn(ctx, args)
}

// Methods returns the registered method names, for introspection.
func (t *Target) Methods() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.methods))
	for name := range t.methods {
		names = append(names, name)
	}
	return names
}

// DecodeArg binds one argument (typically a decoded JSON object) onto a
// typed struct, honoring `mapstructure` tags.
func DecodeArg(arg any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(arg); err != nil {
		return fmt.Errorf("failed to decode argument: %w", err)
	}
	return nil
}
