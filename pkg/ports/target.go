package ports

import "context"

// Target is the application-side dispatcher the session calls methods on.
// The core treats it as opaque: it never inspects the method set, it only
// dispatches by name with evaluated arguments.
//
// Returned values are JSON-like trees (nil, bool, float64, string, []any,
// map[string]any) optionally containing domain sentinel markers. A returned
// error becomes a MethodError rejection on the wire.
type Target interface {
	Dispatch(ctx context.Context, method string, args []any) (any, error)
}

// TargetFunc adapts a function to the Target interface.
type TargetFunc func(ctx context.Context, method string, args []any) (any, error)

// Dispatch implements Target.
func (f TargetFunc) Dispatch(ctx context.Context, method string, args []any) (any, error) {
	return f(ctx, method, args)
}
