// Package rpc implements the Tether session state machine: the export and
// import tables, lazy pipeline evaluation, promise forwarding between
// peers, reference-counted capability lifetimes, and the abort protocol.
//
// A Session is an exclusive domain: all of its state is mutated by one
// logical task, and a frame is always processed to completion. Parallelism
// across sessions is fine; sharing one session across goroutines is not.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/internal/wire"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
)

// Session drives one side of a capability RPC conversation.
type Session struct {
	logger    *slog.Logger
	target    ports.Target
	transport ports.Transport

	exporter *exporter
	importer *importer

	// Links our initiated import IDs to the promise export IDs whose
	// resolution the peer is awaiting (server-to-client call completion).
	importToPromise map[int]int

	rootHook      *callHook
	reverseExport map[int]int
	targetKeys    map[uintptr]int
	targetByKey   map[int]ports.Target
	nextTargetKey int

	microtasks []func(context.Context)

	aborted     bool
	onBroken    []func(reason string)
	onSendError func(domain.WireError) domain.WireError
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithTransport attaches a persistent transport for session-initiated
// frames (releases, server-to-client calls, promise resolutions).
func WithTransport(t ports.Transport) Option {
	return func(s *Session) {
		s.transport = t
	}
}

// New creates a session dispatching against the given root target. The
// target may be nil for sessions that only relay server-to-client calls.
func New(target ports.Target, opts ...Option) *Session {
	s := &Session{
		target:          target,
		exporter:        newExporter(),
		importer:        newImporter(),
		importToPromise: make(map[int]int),
		reverseExport:   make(map[int]int),
		targetKeys:      make(map[uintptr]int),
		targetByKey:     make(map[int]ports.Target),
	}
	s.rootHook = &callHook{key: 0, target: target}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	return s
}

// SetTransport swaps the transport; used by batch processing to attach an
// accumulator for the duration of one batch.
func (s *Session) SetTransport(t ports.Transport) {
	s.transport = t
}

// SetLogger replaces the session logger.
func (s *Session) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Transport returns the currently attached transport, if any.
func (s *Session) Transport() ports.Transport {
	return s.transport
}

// HandleMessage processes one inbound frame and returns the direct
// response frame, if the frame kind produces one (only pull does). All
// other outbound traffic goes through the attached transport. Malformed
// frames are dropped without a response; so is everything after an abort.
func (s *Session) HandleMessage(ctx context.Context, message []byte) []byte {
	if s.aborted {
		return nil
	}
	frame, ok := wire.Parse(message)
	if !ok {
		s.logger.Debug("dropping malformed frame", "raw", string(message))
		return nil
	}
	if logging.DebugEnabled() {
		s.logger.Debug("frame in", "type", frame.Type, "raw", string(message))
	}

	switch frame.Type {
	case wire.TypePush:
		if len(frame.Params) >= 1 {
			s.handlePush(ctx, frame.Params[0])
		}
	case wire.TypePull:
		if len(frame.Params) >= 1 {
			if id, ok := wire.AsInt(frame.Params[0]); ok {
				resp := s.handlePull(ctx, id)
				return []byte(resp.Marshal())
			}
		}
	case wire.TypeResolve:
		if len(frame.Params) >= 2 {
			if id, ok := wire.AsInt(frame.Params[0]); ok {
				s.handleResolution(id, frame.Params[1], false)
			}
		}
	case wire.TypeReject:
		if len(frame.Params) >= 2 {
			if id, ok := wire.AsInt(frame.Params[0]); ok {
				s.handleResolution(id, frame.Params[1], true)
			}
		}
	case wire.TypeRelease:
		if len(frame.Params) >= 2 {
			id, okID := wire.AsInt(frame.Params[0])
			count, okCount := wire.AsInt(frame.Params[1])
			if okID && okCount {
				s.handleRelease(id, count)
			}
		}
	case wire.TypeAbort:
		var payload any
		if len(frame.Params) >= 1 {
			payload = frame.Params[0]
		}
		s.handleAbortFrame(payload)
	}
	return nil
}

// handlePush allocates the next positive export ID and records the pushed
// expression. Pipelines are deferred to a microtask; remaps run now (they
// may initiate server-to-client calls that must precede the pull answer).
func (s *Session) handlePush(ctx context.Context, expr any) {
	id := s.exporter.allocateForPush()
	entry := &exportEntry{remoteRefcount: 1, localRefcount: 1}
	s.exporter.put(id, entry)

	arr, ok := expr.([]any)
	if !ok || len(arr) == 0 {
		entry.fail(methodErrorf("push expression is not an expression array"))
		return
	}
	tag, _ := arr[0].(string)

	switch tag {
	case wire.TagPipeline:
		if len(arr) < 3 {
			entry.fail(methodErrorf("invalid pipeline push"))
			return
		}
		subjectID, okSubject := wire.AsInt(arr[1])
		methodPath, okPath := arr[2].([]any)
		if !okSubject || !okPath || len(methodPath) == 0 {
			entry.fail(methodErrorf("invalid pipeline push"))
			return
		}
		method, okMethod := methodPath[0].(string)
		if !okMethod {
			entry.fail(methodErrorf("invalid pipeline push"))
			return
		}
		var args any = []any{}
		if len(arr) >= 4 {
			args = arr[3]
		}

		hook := s.rootHook
		if subjectID != 0 {
			if subject := s.exporter.find(subjectID); subject != nil && subject.hook != nil {
				hook = subject.hook
			}
		}

		entry.hasOperation = true
		entry.method = method
		entry.args = args
		entry.hook = hook
		recordPeerIDs(args, entry)

		s.microtasks = append(s.microtasks, func(taskCtx context.Context) {
			e := s.exporter.find(id)
			if e == nil || !e.hasOperation {
				return
			}
			s.executeOperation(taskCtx, e)
		})

	case wire.TagRemap:
		if len(arr) == 5 {
			if captures, ok := arr[3].([]any); ok {
				recordPeerIDs(captures, entry)
			}
		}
		result, err := s.evaluateRemap(ctx, arr, 0)
		if err != nil {
			entry.fail(err)
			return
		}
		entry.cacheResult(result)

	default:
		entry.fail(methodErrorf("unknown push expression tag: %s", tag))
	}
}

// executeOperation runs an entry's pending operation: arguments are
// materialized (possibly executing predecessor pipelines), the method is
// dispatched, and the result or failure is cached on the entry. Dispatch
// happens at most once per entry.
func (s *Session) executeOperation(ctx context.Context, e *exportEntry) {
	method := e.method
	args := e.args
	hook := e.hook

	resolvedArgs, err := s.evaluateArgs(ctx, args, 0)
	if err != nil {
		e.fail(err)
		return
	}
	result, err := s.dispatch(ctx, hook, method, resolvedArgs)
	if err != nil {
		e.fail(err)
		return
	}
	e.cacheResult(result)
}

// dispatch invokes a method on a hook's target, translating panics and
// handler errors into MethodError.
func (s *Session) dispatch(ctx context.Context, hook *callHook, method string, args []any) (result any, err error) {
	if hook == nil || hook.target == nil {
		return nil, methodErrorf("no target to dispatch %q", method)
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic", "method", method, "panic", r)
			err = methodErrorf("handler panic: %v", r)
		}
	}()
	result, err = hook.target.Dispatch(ctx, method, args)
	if err != nil {
		if _, ok := err.(*protocolError); !ok {
			err = methodErrorf("%s", err.Error())
		}
	}
	return result, err
}

// handlePull answers a pull with exactly one resolve or reject frame. The
// microtask queue is flushed first; a still-pending entry is executed
// synchronously as a fallback. After the answer, the entry is drained and
// one release per captured peer reference is scheduled.
func (s *Session) handlePull(ctx context.Context, id int) wire.Frame {
	s.ProcessTasks(ctx)

	e := s.exporter.find(id)
	if e == nil {
		return wire.Reject(id, s.redact(errorTuple(exportNotFound())))
	}
	if e.hasOperation {
		s.executeOperation(ctx, e)
	}

	var resp wire.Frame
	switch {
	case e.failure != nil:
		resp = wire.Reject(id, s.redact(errorTuple(e.failure)))
	case e.hasResult:
		devalued, err := s.devaluate(ctx, e.result, 0)
		if err != nil {
			resp = wire.Reject(id, s.redact(errorTuple(err)))
		} else {
			resp = wire.Resolve(id, devalued)
		}
	default:
		resp = wire.Reject(id, s.redact(errorTuple(methodErrorf("export %d has no pending operation", id))))
	}

	s.completeEntry(id, e)
	return resp
}

// completeEntry clears a pulled entry and schedules release frames for the
// peer references its arguments captured. Releases are queued so they
// follow the resolve/reject in the outbound stream.
func (s *Session) completeEntry(id int, e *exportEntry) {
	captured := e.importedClientIDs
	e.importedClientIDs = nil
	if len(captured) > 0 {
		s.microtasks = append(s.microtasks, func(context.Context) {
			for peerID, count := range captured {
				s.send(wire.Release(peerID, count))
			}
		})
	}

	if e.remoteRefcount <= 1 {
		s.exporter.remove(id)
	} else {
		e.hasResult = false
		e.result = nil
	}
}

// handleResolution processes a peer resolve/reject of one of our imports:
// the import is erased, its references are released back to the peer, and
// a linked promise export (if any) is forwarded the same payload.
func (s *Session) handleResolution(importID int, payload any, isReject bool) {
	count := s.importer.recordResolution(importID, payload)
	s.send(wire.Release(importID, count))

	negID, linked := s.importToPromise[importID]
	if !linked {
		return
	}
	delete(s.importToPromise, importID)

	// Forward the payload unchanged; peer-provided errors bypass the
	// redaction hook.
	if isReject {
		s.send(wire.Frame{Type: wire.TypeReject, Params: []any{negID, payload}})
	} else {
		s.send(wire.Frame{Type: wire.TypeResolve, Params: []any{negID, payload}})
	}
}

// handleRelease decrements refcounts. Export IDs are removed at zero;
// releases naming one of our import IDs are handled defensively; anything
// else is logged and ignored.
func (s *Session) handleRelease(id, count int) {
	if s.exporter.find(id) != nil {
		s.exporter.release(id, count)
		return
	}
	if s.importer.has(id) {
		s.importer.releaseLocal(id, count)
		return
	}
	s.logger.Debug("release for unknown id", "id", id, "count", count)
}

// handleAbortFrame performs unilateral teardown on a peer abort.
func (s *Session) handleAbortFrame(payload any) {
	reason := stringifyReason(payload)
	s.MarkAborted(reason)
}

// ProcessTasks flushes the microtask queue. Tasks may enqueue further
// tasks; they run in FIFO order until the queue is empty.
func (s *Session) ProcessTasks(ctx context.Context) {
	for len(s.microtasks) > 0 {
		task := s.microtasks[0]
		s.microtasks = s.microtasks[1:]
		task(ctx)
	}
}

// Drain processes tasks until the session is quiescent. Batch transports
// must drain before closing the batch.
func (s *Session) Drain(ctx context.Context) {
	s.ProcessTasks(ctx)
}

// IsDrained reports whether no deferred work remains.
func (s *Session) IsDrained() bool {
	return len(s.microtasks) == 0
}

// Close drains pending releases and clears all tables.
func (s *Session) Close(ctx context.Context) {
	s.ProcessTasks(ctx)
	s.exporter.reset()
	s.importer.reset()
	s.importToPromise = make(map[int]int)
	s.reverseExport = make(map[int]int)
}

// Stats reports the current table sizes.
func (s *Session) Stats() domain.Stats {
	return domain.Stats{
		Imports: s.importer.size(),
		Exports: s.exporter.size(),
	}
}

// --- server-initiated calls ---

// pushClientCall emits a push+pull pair for a call on one of the peer's
// capabilities and returns the negative promise export ID that will carry
// the forwarded resolution.
func (s *Session) pushClientCall(exportID int, path []any, args []any, hasArgs bool) int {
	importID := s.importer.allocate()

	expr := []any{wire.TagPipeline, exportID, path}
	if hasArgs {
		expr = append(expr, args)
	}
	s.send(wire.Push(expr))
	s.send(wire.Pull(importID))

	negID := s.exporter.allocateNegative()
	s.exporter.put(negID, &exportEntry{remoteRefcount: 1, localRefcount: 1})
	s.importToPromise[importID] = negID
	return negID
}

// CallClient issues a property get on a peer capability. It returns the
// promise export ID a handler can embed as ["promise", id] in its result.
func (s *Session) CallClient(exportID int, path []any) int {
	return s.pushClientCall(exportID, path, nil, false)
}

// CallClientMethod issues a method call on a peer capability.
func (s *Session) CallClientMethod(exportID int, method string, args []any) int {
	if args == nil {
		args = []any{}
	}
	return s.pushClientCall(exportID, []any{method}, args, true)
}

// AwaitClientPromise links a peer promise (by its import-side ID) to a
// fresh negative promise export; when the peer resolves, the resolution is
// forwarded under the returned ID.
func (s *Session) AwaitClientPromise(importID int) int {
	negID := s.exporter.allocateNegative()
	s.exporter.put(negID, &exportEntry{remoteRefcount: 1, localRefcount: 1})
	s.importToPromise[importID] = negID
	return negID
}

// ExportTarget registers a secondary dispatch target and returns the
// sentinel marker to embed in a result. Identity is the target's backing
// pointer, so returning the same target twice maps to the same export ID.
func (s *Session) ExportTarget(target ports.Target) map[string]any {
	ptr := targetPointer(target)
	key, known := s.targetKeys[ptr]
	if ptr == 0 || !known {
		s.nextTargetKey++
		key = s.nextTargetKey
		if ptr != 0 {
			s.targetKeys[ptr] = key
		}
		s.targetByKey[key] = target
	}
	return map[string]any{domain.KeyExportTarget: key}
}

// targetPointer extracts a stable identity for pointer-shaped targets.
// Value targets have no stable address and get a fresh key per export.
func targetPointer(t ports.Target) uintptr {
	v := reflect.ValueOf(t)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return v.Pointer()
	}
	return 0
}

// --- abort and failure plumbing ---

// SetOnSendError installs the error redaction hook, applied to outbound
// rejects produced locally and to outbound abort payloads. Forwarded peer
// rejects pass through untouched.
func (s *Session) SetOnSendError(fn func(domain.WireError) domain.WireError) {
	s.onSendError = fn
}

// RegisterOnBroken registers an observer invoked with the abort reason
// when the session is torn down.
func (s *Session) RegisterOnBroken(fn func(reason string)) {
	s.onBroken = append(s.onBroken, fn)
}

// IsAborted reports whether the session reached its terminal state.
func (s *Session) IsAborted() bool {
	return s.aborted
}

// BuildAbort constructs an abort frame for the given error, honoring the
// redaction hook. It does not change session state.
func (s *Session) BuildAbort(e domain.WireError) string {
	return wire.Abort(s.redactError(e).Tuple()).Marshal()
}

// Abort emits an abort frame to the peer (when a transport is attached)
// and tears the session down locally.
func (s *Session) Abort(e domain.WireError) {
	if s.aborted {
		return
	}
	redacted := s.redactError(e)
	frame := wire.Abort(redacted.Tuple())
	if s.transport != nil {
		if err := s.transport.Send(frame.Marshal()); err != nil {
			s.logger.Warn("abort send failed", "err", err)
		}
		s.transport.Abort(redacted.Error())
	}
	s.MarkAborted(stringifyReason(redacted.Tuple()))
}

// MarkAborted performs local teardown: the terminal flag is set, all tables
// and queued work are discarded, and onBroken observers fire. After this,
// every inbound frame is dropped and no further frame is emitted.
func (s *Session) MarkAborted(reason string) {
	if s.aborted {
		return
	}
	s.aborted = true
	s.microtasks = nil
	s.exporter.reset()
	s.importer.reset()
	s.importToPromise = make(map[int]int)
	s.reverseExport = make(map[int]int)
	for _, fn := range s.onBroken {
		fn(reason)
	}
}

// redact applies the redaction hook to a locally produced error tuple,
// then re-sanitizes the shape in case the hook misbehaved.
func (s *Session) redact(tuple []any) []any {
	if s.onSendError == nil {
		return tuple
	}
	e, ok := domain.WireErrorFromTuple(tuple)
	if !ok {
		return tuple
	}
	return s.redactError(e).Tuple()
}

func (s *Session) redactError(e domain.WireError) domain.WireError {
	if s.onSendError != nil {
		e = s.onSendError(e)
	}
	if e.Name == "" {
		e.Name = "Error"
	}
	return e
}

// send emits a session-initiated frame through the transport. Nothing is
// emitted once the session is aborted.
func (s *Session) send(f wire.Frame) {
	if s.aborted {
		return
	}
	if s.transport == nil {
		s.logger.Debug("no transport; dropping frame", "type", f.Type)
		return
	}
	raw := f.Marshal()
	if logging.DebugEnabled() {
		s.logger.Debug("frame out", "raw", raw)
	}
	if err := s.transport.Send(raw); err != nil {
		s.logger.Warn("transport send failed", "type", f.Type, "err", err)
	}
}

// recordPeerIDs walks a raw (pre-evaluation) value and records every peer
// capability reference — ["export", id] and ["promise", id] expressions —
// into the entry so they can be released once the entry completes.
func recordPeerIDs(v any, e *exportEntry) {
	switch val := v.(type) {
	case []any:
		if tag, ok := wire.ExpressionTag(val); ok {
			switch tag {
			case wire.TagExport, wire.TagPromise:
				if len(val) >= 2 {
					if id, ok := wire.AsInt(val[1]); ok {
						e.recordPeerID(id)
						return
					}
				}
			case wire.TagPipeline, wire.TagImport:
				// References into our own table carry no peer refs in the
				// ID position; still scan nested arguments.
				for _, elem := range val[1:] {
					recordPeerIDs(elem, e)
				}
				return
			}
		}
		for _, elem := range val {
			recordPeerIDs(elem, e)
		}
	case map[string]any:
		for _, elem := range val {
			recordPeerIDs(elem, e)
		}
	}
}

// stringifyReason renders an abort payload the way observers receive it:
// the JSON-stringified form of the frame's payload.
func stringifyReason(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}
