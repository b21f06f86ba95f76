package main

import (
	"context"
	"fmt"

	"github.com/aretw0/tether/pkg/registry"
)

// demoTarget builds the method table the bundled server dispatches against.
// Embedders replace this with their own target; it exists so the binary is
// usable out of the box.
func demoTarget() *registry.Target {
	t := registry.New()

	t.Method("hello", func(ctx context.Context, args []any) (any, error) {
		name := "world"
		if len(args) > 0 {
			if s, ok := args[0].(string); ok {
				name = s
			}
		}
		return fmt.Sprintf("Hello, %s!", name), nil
	})

	t.Method("echo", func(ctx context.Context, args []any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}
		return args[0], nil
	})

	t.Method("add", func(ctx context.Context, args []any) (any, error) {
		sum := 0.0
		for _, a := range args {
			n, ok := a.(float64)
			if !ok {
				return nil, fmt.Errorf("add expects numbers")
			}
			sum += n
		}
		return sum, nil
	})

	return t
}
