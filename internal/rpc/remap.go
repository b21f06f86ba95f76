package rpc

import (
	"context"

	"github.com/aretw0/tether/internal/wire"
)

// remapCapture is one entry of a remap expression's capture list: either a
// peer-held capability ("import" from our point of view dispatches locally)
// or one of the peer's own capabilities ("export", reached by calling back
// into the peer).
type remapCapture struct {
	isImport bool
	id       int
}

// evaluateRemap interprets ["remap", baseExportId, basePath, captures,
// instructions]: a straight-line program where each instruction appends one
// value to a variable stack. V[0] is the base pipeline value (nil when
// unavailable); negative subject indices address captures.
func (s *Session) evaluateRemap(ctx context.Context, expr []any, depth int) (any, error) {
	if len(expr) != 5 {
		return nil, methodErrorf("invalid remap expression")
	}
	baseID, ok := wire.AsInt(expr[1])
	if !ok {
		return nil, methodErrorf("invalid remap expression")
	}
	basePath, ok := expr[2].([]any)
	if !ok {
		return nil, methodErrorf("invalid remap expression")
	}
	rawCaptures, ok := expr[3].([]any)
	if !ok {
		return nil, methodErrorf("invalid remap expression")
	}
	instructions, ok := expr[4].([]any)
	if !ok {
		return nil, methodErrorf("invalid remap expression")
	}

	captures := make([]remapCapture, 0, len(rawCaptures))
	for _, raw := range rawCaptures {
		c, err := parseCapture(raw)
		if err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}

	// The base reference may not be meaningful in this context (e.g. the
	// main target, which has no entry); the input is then nil.
	input, err := s.evaluatePipeline(ctx, baseID, basePath, nil, depth)
	if err != nil {
		input = nil
	}
	vars := []any{input}

	for _, raw := range instructions {
		instr, ok := raw.([]any)
		if !ok || len(instr) == 0 {
			return nil, methodErrorf("invalid remap instruction")
		}
		tag, ok := instr[0].(string)
		if !ok {
			return nil, methodErrorf("invalid remap instruction")
		}

		var pushed any
		switch tag {
		case "value":
			if len(instr) != 2 {
				return nil, methodErrorf("invalid value instruction")
			}
			pushed, err = s.evaluate(ctx, instr[1], depth+1)

		case "get":
			if len(instr) != 3 {
				return nil, methodErrorf("invalid get instruction")
			}
			pushed, err = s.remapSubjectRead(ctx, instr[1], instr[2], nil, captures, vars, depth)

		case "pipeline":
			if len(instr) < 3 {
				return nil, methodErrorf("invalid pipeline instruction")
			}
			args := []any{}
			if len(instr) >= 4 {
				args, _ = instr[3].([]any)
			}
			pushed, err = s.remapSubjectRead(ctx, instr[1], instr[2], args, captures, vars, depth)

		case "array":
			if len(instr) != 2 {
				return nil, methodErrorf("invalid array instruction")
			}
			elems, ok := instr[1].([]any)
			if !ok {
				return nil, methodErrorf("invalid array instruction")
			}
			out := make([]any, len(elems))
			for i, elem := range elems {
				out[i], err = s.evaluate(ctx, elem, depth+1)
				if err != nil {
					return nil, err
				}
			}
			pushed = out

		case "object":
			if len(instr) != 2 {
				return nil, methodErrorf("invalid object instruction")
			}
			entries, ok := instr[1].([]any)
			if !ok {
				return nil, methodErrorf("invalid object instruction")
			}
			out := make(map[string]any, len(entries))
			for _, rawEntry := range entries {
				kv, ok := rawEntry.([]any)
				if !ok || len(kv) != 2 {
					return nil, methodErrorf("invalid object entry")
				}
				key, ok := kv[0].(string)
				if !ok {
					return nil, methodErrorf("invalid object entry")
				}
				out[key], err = s.evaluate(ctx, kv[1], depth+1)
				if err != nil {
					return nil, err
				}
			}
			pushed = out

		case wire.TagRemap:
			pushed, err = s.evaluateRemap(ctx, instr, depth+1)

		default:
			return nil, methodErrorf("unsupported remap instruction tag: %s", tag)
		}
		if err != nil {
			return nil, err
		}
		vars = append(vars, pushed)
	}

	return vars[len(vars)-1], nil
}

func parseCapture(raw any) (remapCapture, error) {
	arr, ok := raw.([]any)
	if !ok || len(arr) != 2 {
		return remapCapture{}, methodErrorf("invalid remap capture")
	}
	tag, ok := arr[0].(string)
	if !ok {
		return remapCapture{}, methodErrorf("invalid remap capture")
	}
	id, ok := wire.AsInt(arr[1])
	if !ok {
		return remapCapture{}, methodErrorf("invalid remap capture")
	}
	switch tag {
	case wire.TagImport:
		return remapCapture{isImport: true, id: id}, nil
	case wire.TagExport:
		return remapCapture{isImport: false, id: id}, nil
	}
	return remapCapture{}, methodErrorf("unknown remap capture tag")
}

// remapSubjectRead implements the shared subject semantics of the get and
// pipeline instructions. A nil args slice is a property read; a non-nil
// slice is a call. Reads/calls on an export capture go back to the peer and
// yield a ["promise", negId] expression.
func (s *Session) remapSubjectRead(ctx context.Context, rawIdx, rawPath any, args []any, captures []remapCapture, vars []any, depth int) (any, error) {
	idx, ok := wire.AsInt(rawIdx)
	if !ok {
		return nil, methodErrorf("invalid remap subject index")
	}
	path, ok := rawPath.([]any)
	if !ok {
		return nil, methodErrorf("invalid remap subject path")
	}

	if idx >= 0 {
		if idx >= len(vars) {
			return nil, methodErrorf("remap variable index out of range")
		}
		// Local values support property reads only; args are ignored.
		return traversePath(vars[idx], path)
	}

	capIdx := -idx - 1
	if capIdx >= len(captures) {
		return nil, methodErrorf("remap capture index out of range")
	}
	subject := captures[capIdx]

	if subject.isImport {
		if args == nil {
			return s.evaluatePipeline(ctx, subject.id, path, nil, depth)
		}
		if len(path) == 0 {
			return nil, methodErrorf("remap pipeline invalid method path")
		}
		method, ok := path[0].(string)
		if !ok {
			return nil, methodErrorf("remap pipeline invalid method path")
		}
		resolvedArgs, err := s.evaluateArgs(ctx, args, depth)
		if err != nil {
			return nil, err
		}
		return s.dispatch(ctx, s.rootHook, method, resolvedArgs)
	}

	// Export capture: reach back into the peer.
	if s.transport == nil {
		return nil, methodErrorf("remap on export capture requires a transport")
	}
	var resolvedArgs []any
	if args != nil {
		list, err := s.evaluateArgs(ctx, args, depth)
		if err != nil {
			return nil, err
		}
		resolvedArgs = list
		if resolvedArgs == nil {
			resolvedArgs = []any{}
		}
	}
	promiseID := s.pushClientCall(subject.id, path, resolvedArgs, args != nil)
	return []any{wire.TagPromise, promiseID}, nil
}
