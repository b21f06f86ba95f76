package rpc

import (
	"context"

	"github.com/aretw0/tether/internal/wire"
	"github.com/aretw0/tether/pkg/domain"
)

// evaluate materializes a value tree: expressions are replaced by their
// values, extended scalars become sentinel markers, reserved object keys
// are dropped, and pipeline references execute their pending operations on
// demand (caching the result on the referenced entry).
func (s *Session) evaluate(ctx context.Context, v any, depth int) (any, error) {
	if depth > wire.MaxDepth {
		return nil, depthExceeded()
	}

	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if wire.ReservedKey(k) {
				continue
			}
			ev, err := s.evaluate(ctx, elem, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil

	case []any:
		if tag, ok := wire.ExpressionTag(val); ok {
			return s.evaluateExpression(ctx, tag, val, depth)
		}
		out := make([]any, len(val))
		for i, elem := range val {
			ev, err := s.evaluate(ctx, elem, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil

	default:
		return v, nil
	}
}

func (s *Session) evaluateExpression(ctx context.Context, tag string, expr []any, depth int) (any, error) {
	switch tag {
	case wire.TagValue:
		if len(expr) != 2 {
			return nil, methodErrorf("invalid value expression")
		}
		return s.evaluate(ctx, expr[1], depth+1)

	case wire.TagBigInt:
		if len(expr) >= 2 {
			if str, ok := expr[1].(string); ok {
				return domain.BigInt(str), nil
			}
		}

	case wire.TagDate:
		if len(expr) >= 2 {
			if n, ok := expr[1].(float64); ok {
				return domain.Date(n), nil
			}
		}

	case wire.TagBytes:
		if len(expr) >= 2 {
			if str, ok := expr[1].(string); ok {
				return domain.Bytes(str), nil
			}
		}

	case wire.TagUndefined:
		return domain.Undefined(), nil

	case wire.TagError:
		if e, ok := domain.WireErrorFromTuple(expr); ok {
			return domain.ErrorValue(e.Name, e.Message, e.Stack), nil
		}

	case wire.TagExport:
		// A capability the peer holds: surfaces to handlers as a stub.
		if len(expr) >= 2 {
			if id, ok := wire.AsInt(expr[1]); ok {
				return domain.Stub(id), nil
			}
		}

	case wire.TagPromise:
		if len(expr) >= 2 {
			if id, ok := wire.AsInt(expr[1]); ok {
				return map[string]any{domain.KeyPromiseStub: id}, nil
			}
		}

	case wire.TagImport:
		// The peer references one of our exports back at us.
		if len(expr) >= 2 {
			if id, ok := wire.AsInt(expr[1]); ok {
				return s.evaluatePipeline(ctx, id, nil, nil, depth)
			}
		}

	case wire.TagPipeline:
		if len(expr) >= 2 {
			if id, ok := wire.AsInt(expr[1]); ok {
				var path []any
				if len(expr) >= 3 {
					path, _ = expr[2].([]any)
				}
				var args []any
				hasArgs := false
				if len(expr) >= 4 {
					args, _ = expr[3].([]any)
					hasArgs = true
				}
				if !hasArgs {
					return s.evaluatePipeline(ctx, id, path, nil, depth)
				}
				return s.evaluatePipeline(ctx, id, path, args, depth)
			}
		}

	case wire.TagRemap:
		return s.evaluateRemap(ctx, expr, depth)
	}

	// Malformed shape for a recognized tag: treat the array as data.
	out := make([]any, len(expr))
	for i, elem := range expr {
		ev, err := s.evaluate(ctx, elem, depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

// evaluatePipeline resolves a reference to another export, executing its
// pending operation if the result is not yet cached, then traverses the
// optional path. A non-nil args slice turns the last path element into a
// method call on the entry's hook.
func (s *Session) evaluatePipeline(ctx context.Context, id int, path []any, args []any, depth int) (any, error) {
	e := s.exporter.find(id)
	if e == nil {
		return nil, methodErrorf("Pipeline reference to non-existent export: %d", id)
	}
	if e.failure != nil {
		return nil, e.failure
	}
	if !e.hasResult {
		if !e.hasOperation {
			return nil, methodErrorf("Pipeline reference to non-existent export: %d", id)
		}
		s.executeOperation(ctx, e)
		if e.failure != nil {
			return nil, e.failure
		}
	}

	if args != nil {
		if len(path) == 0 {
			return nil, methodErrorf("pipeline call without method path")
		}
		method, ok := path[len(path)-1].(string)
		if !ok {
			return nil, methodErrorf("pipeline method name must be a string")
		}
		resolvedArgs, err := s.evaluateArgs(ctx, args, depth)
		if err != nil {
			return nil, err
		}
		hook := e.hook
		if hook == nil {
			hook = s.rootHook
		}
		return s.dispatch(ctx, hook, method, resolvedArgs)
	}

	return traversePath(e.result, path)
}

// traversePath walks string keys through objects and integer keys through
// arrays. Missing keys and type mismatches yield nil (absent), matching the
// loose read semantics of property access; structurally invalid path
// elements are an error.
func traversePath(v any, path []any) (any, error) {
	for _, key := range path {
		switch k := key.(type) {
		case string:
			m, ok := v.(map[string]any)
			if !ok {
				return nil, nil
			}
			v = m[k]
		case float64, int:
			idx, _ := wire.AsInt(k)
			arr, ok := v.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, nil
			}
			v = arr[idx]
		default:
			return nil, methodErrorf("invalid pipeline path element")
		}
	}
	return v, nil
}

// evaluateArgs materializes an argument list, which may itself contain
// pipeline references.
func (s *Session) evaluateArgs(ctx context.Context, args any, depth int) ([]any, error) {
	resolved, err := s.evaluate(ctx, args, depth+1)
	if err != nil {
		return nil, err
	}
	if list, ok := resolved.([]any); ok {
		return list, nil
	}
	if resolved == nil {
		return nil, nil
	}
	return []any{resolved}, nil
}
