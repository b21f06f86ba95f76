package rpc

import (
	"context"

	"github.com/aretw0/tether/internal/wire"
	"github.com/aretw0/tether/pkg/domain"
)

// devaluate walks a just-computed result and produces its wire form:
// sentinel markers become tagged expressions, capabilities are assigned
// (or re-assigned, per re-export identity) negative export IDs, and plain
// data passes through. The top-level array escape is applied by the frame
// constructor, not here.
func (s *Session) devaluate(ctx context.Context, v any, depth int) (any, error) {
	if depth > wire.MaxDepth {
		return nil, depthExceeded()
	}

	switch val := v.(type) {
	case map[string]any:
		if expr, ok, err := s.devaluateSentinel(val); ok || err != nil {
			return expr, err
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			dv, err := s.devaluate(ctx, elem, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil

	case []any:
		if wire.IsExpression(val) {
			// Already in wire form (e.g. a promise expression produced by a
			// remap export capture); emit verbatim.
			return val, nil
		}
		out := make([]any, len(val))
		for i, elem := range val {
			dv, err := s.devaluate(ctx, elem, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil

	default:
		return v, nil
	}
}

// devaluateSentinel rewrites a sentinel-keyed object to its expression
// form. The ok result reports whether the map was a sentinel.
func (s *Session) devaluateSentinel(m map[string]any) (any, bool, error) {
	if raw, ok := m[domain.KeyBigInt]; ok {
		if str, ok := raw.(string); ok {
			return []any{wire.TagBigInt, str}, true, nil
		}
	}
	if raw, ok := m[domain.KeyDate]; ok {
		switch n := raw.(type) {
		case float64:
			return []any{wire.TagDate, n}, true, nil
		case int:
			return []any{wire.TagDate, float64(n)}, true, nil
		}
	}
	if raw, ok := m[domain.KeyBytes]; ok {
		if str, ok := raw.(string); ok {
			return []any{wire.TagBytes, str}, true, nil
		}
	}
	if raw, ok := m[domain.KeyUndefined]; ok {
		if b, ok := raw.(bool); ok && b {
			return []any{wire.TagUndefined}, true, nil
		}
	}
	if raw, ok := m[domain.KeyError]; ok {
		if eobj, ok := raw.(map[string]any); ok {
			name, _ := eobj["name"].(string)
			if name == "" {
				name = "Error"
			}
			message, _ := eobj["message"].(string)
			tuple := []any{wire.TagError, name, message}
			if stack, ok := eobj["stack"].(string); ok && stack != "" {
				tuple = append(tuple, stack)
			}
			return tuple, true, nil
		}
	}
	if raw, ok := m[domain.KeyExport]; ok {
		if b, ok := raw.(bool); ok && b {
			id := s.exportForHook(s.rootHook)
			return []any{wire.TagExport, id}, true, nil
		}
	}
	if raw, ok := m[domain.KeyExportTarget]; ok {
		if key, ok := wire.AsInt(raw); ok {
			target, registered := s.targetByKey[key]
			if !registered {
				return nil, true, methodErrorf("unregistered export target")
			}
			id := s.exportForHook(&callHook{key: key, target: target})
			return []any{wire.TagExport, id}, true, nil
		}
	}
	if raw, ok := m[domain.KeyStub]; ok {
		if id, ok := wire.AsInt(raw); ok {
			// A capability the peer gave us, handed straight back: flip the
			// perspective so the peer recognizes its own export.
			return []any{wire.TagImport, id}, true, nil
		}
	}
	if raw, ok := m[domain.KeyPromiseStub]; ok {
		if id, ok := wire.AsInt(raw); ok {
			negID := s.AwaitClientPromise(id)
			return []any{wire.TagPromise, negID}, true, nil
		}
	}
	if raw, ok := m[domain.KeyPromise]; ok {
		negID := s.exporter.allocateNegative()
		entry := &exportEntry{remoteRefcount: 1, localRefcount: 1}
		if b, isBool := raw.(bool); !isBool || !b {
			entry.cacheResult(raw)
			s.scheduleResolve(negID)
		}
		s.exporter.put(negID, entry)
		return []any{wire.TagPromise, negID}, true, nil
	}
	return nil, false, nil
}

// exportForHook allocates a negative export ID for the hook, or reuses the
// existing ID with a bumped refcount when the same hook was exported
// before (re-export identity).
func (s *Session) exportForHook(hook *callHook) int {
	if id, ok := s.reverseExport[hook.key]; ok {
		if e := s.exporter.find(id); e != nil {
			e.remoteRefcount++
			return id
		}
		delete(s.reverseExport, hook.key)
	}
	id := s.exporter.allocateNegative()
	s.exporter.put(id, &exportEntry{
		remoteRefcount: 1,
		localRefcount:  1,
		hook:           hook,
	})
	s.reverseExport[hook.key] = id
	return id
}

// scheduleResolve queues emission of a resolve frame for a promise export
// whose payload is already known, so it goes out after the response that
// introduces the promise.
func (s *Session) scheduleResolve(id int) {
	s.microtasks = append(s.microtasks, func(ctx context.Context) {
		e := s.exporter.find(id)
		if e == nil || !e.hasResult {
			return
		}
		devalued, err := s.devaluate(ctx, e.result, 0)
		if err != nil {
			s.send(wire.Reject(id, s.redact(errorTuple(err))))
			return
		}
		s.send(wire.Resolve(id, devalued))
	})
}
