package tether

import (
	"context"
	"io"
	"log/slog"

	"github.com/aretw0/tether/internal/rpc"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
)

// Version is the library version reported by the CLI.
const Version = "0.4.0"

// Session is the high-level entry point for the Tether library.
// It wraps the internal session core and provides a simplified API for
// transports and embedders.
type Session struct {
	core   *rpc.Session
	logger *slog.Logger
}

// Option defines a functional option for configuring a Session.
type Option func(*Session)

// WithLogger sets a custom structured logger for the session.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithTransport attaches a transport for session-initiated frames
// (server-to-client calls, releases, promise resolutions).
func WithTransport(t ports.Transport) Option {
	return func(s *Session) {
		s.core.SetTransport(t)
	}
}

// WithOnSendError installs the error redaction hook. It is applied to
// rejects produced locally and to abort payloads, never to errors
// forwarded from the peer.
func WithOnSendError(fn func(domain.WireError) domain.WireError) Option {
	return func(s *Session) {
		s.core.SetOnSendError(fn)
	}
}

// WithOnBroken registers an observer invoked with the reason when the
// session aborts.
func WithOnBroken(fn func(reason string)) Option {
	return func(s *Session) {
		s.core.RegisterOnBroken(fn)
	}
}

// New initializes a session dispatching against the given root target.
// A nil target is allowed for sessions that only relay calls to the peer.
func New(target ports.Target, opts ...Option) *Session {
	s := &Session{
		core: rpc.New(target),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s.core.SetLogger(s.logger)
	return s
}

// HandleMessage processes one inbound frame. The returned bytes are the
// direct response (only pulls produce one) and must be delivered to the
// peer; nil means no direct response. Session-initiated frames go through
// the attached transport.
func (s *Session) HandleMessage(ctx context.Context, message []byte) []byte {
	return s.core.HandleMessage(ctx, message)
}

// ProcessTasks flushes queued microtasks (deferred handler executions and
// pending release emissions).
func (s *Session) ProcessTasks(ctx context.Context) {
	s.core.ProcessTasks(ctx)
}

// Drain processes tasks until the session is quiescent. Batch transports
// must drain before closing a batch.
func (s *Session) Drain(ctx context.Context) {
	s.core.Drain(ctx)
}

// IsDrained reports whether no deferred work remains.
func (s *Session) IsDrained() bool {
	return s.core.IsDrained()
}

// Close emits pending releases and clears the session tables.
func (s *Session) Close(ctx context.Context) {
	s.core.Close(ctx)
}

// Stats reports the current import/export table sizes.
func (s *Session) Stats() domain.Stats {
	return s.core.Stats()
}

// SetTransport swaps the transport used for session-initiated frames.
func (s *Session) SetTransport(t ports.Transport) {
	s.core.SetTransport(t)
}

// Transport returns the currently attached transport, or nil.
func (s *Session) Transport() ports.Transport {
	return s.core.Transport()
}

// CallMethod initiates a method call on a capability the peer holds. It
// returns the negative promise export ID whose resolution will carry the
// peer's answer; a handler may embed it in a result via PromiseExpr.
func (s *Session) CallMethod(exportID int, method string, args []any) int {
	return s.core.CallClientMethod(exportID, method, args)
}

// Get initiates a property read on a capability the peer holds.
func (s *Session) Get(exportID int, path ...any) int {
	return s.core.CallClient(exportID, path)
}

// CallStub is like CallMethod but takes the stub marker a handler received
// in its arguments.
func (s *Session) CallStub(stub any, method string, args []any) (int, error) {
	id, ok := domain.StubID(stub)
	if !ok {
		return 0, domain.ErrNotStub
	}
	return s.CallMethod(id, method, args), nil
}

// AwaitPromise links a peer promise marker (received in handler arguments)
// to a fresh promise export and returns the expression to embed in the
// handler's result.
func (s *Session) AwaitPromise(promiseStub any) ([]any, error) {
	id, ok := domain.PromiseStubID(promiseStub)
	if !ok {
		return nil, domain.ErrNotStub
	}
	return PromiseExpr(s.core.AwaitClientPromise(id)), nil
}

// PromiseExpr renders a promise export ID as the expression a handler
// embeds in its result.
func PromiseExpr(id int) []any {
	return []any{"promise", id}
}

// ExportTarget registers a secondary dispatch target and returns the
// marker to embed in a result. For a pointer-shaped target (pointer, map,
// func, chan), returning the marker for the same target twice yields the
// same export ID with a bumped refcount; any other target gets a new
// export ID each time.
func (s *Session) ExportTarget(target ports.Target) map[string]any {
	return s.core.ExportTarget(target)
}

// BuildAbort constructs an abort frame for the given error without
// changing session state.
func (s *Session) BuildAbort(e domain.WireError) string {
	return s.core.BuildAbort(e)
}

// Abort emits an abort frame (when a transport is attached) and tears the
// session down locally.
func (s *Session) Abort(e domain.WireError) {
	s.core.Abort(e)
}

// MarkAborted performs local teardown only, for transport-level failures
// detected externally.
func (s *Session) MarkAborted(reason string) {
	s.core.MarkAborted(reason)
}

// IsAborted reports whether the session reached its terminal state.
func (s *Session) IsAborted() bool {
	return s.core.IsAborted()
}
