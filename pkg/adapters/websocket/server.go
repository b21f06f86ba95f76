// Package websocket exposes a session over a streaming websocket
// connection: one session per connection, one frame per text message.
package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/tether"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/gorilla/websocket"
)

// Handler upgrades HTTP requests and pumps frames through a session.
type Handler struct {
	target   ports.Target
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// OnOpen/OnClose observe connection lifecycle; either may be nil.
	OnOpen  func(sess *tether.Session)
	OnClose func(sess *tether.Session)
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithCheckOrigin overrides the upgrader's origin policy.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHandler creates a websocket endpoint dispatching against target.
func NewHandler(target ports.Target, opts ...Option) *Handler {
	h := &Handler{
		target: target,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	transport := &connTransport{conn: conn}
	sess := tether.New(h.target,
		tether.WithLogger(h.logger),
		tether.WithTransport(transport),
	)
	if h.OnOpen != nil {
		h.OnOpen(sess)
	}
	defer func() {
		if h.OnClose != nil {
			h.OnClose(sess)
		}
	}()

	ctx := r.Context()
	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			if !sess.IsAborted() {
				sess.MarkAborted(domain.WireError{Name: "Disconnected", Message: err.Error()}.Error())
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if resp := sess.HandleMessage(ctx, message); resp != nil {
			if err := transport.Send(string(resp)); err != nil {
				h.logger.Warn("websocket write failed", "err", err)
				return
			}
		}
		sess.ProcessTasks(ctx)
		if sess.IsAborted() {
			return
		}
	}
}

// connTransport serializes writes: the session's out-of-band sends and the
// pump's response writes share one connection.
type connTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *connTransport) Send(message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, []byte(message))
}

func (t *connTransport) Abort(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, reason))
	_ = t.conn.Close()
}

var _ ports.Transport = (*connTransport)(nil)

// Dial connects to a tether websocket endpoint and returns a session
// driven by the caller-provided target (for peer-initiated calls), plus a
// pump that must be run to completion on its own goroutine.
func Dial(ctx context.Context, url string, target ports.Target, opts ...Option) (*tether.Session, func() error, error) {
	h := &Handler{}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, nil, err
	}

	transport := &connTransport{conn: conn}
	sess := tether.New(target,
		tether.WithLogger(h.logger),
		tether.WithTransport(transport),
	)

	pump := func() error {
		defer conn.Close()
		for {
			kind, message, err := conn.ReadMessage()
			if err != nil {
				if !sess.IsAborted() {
					sess.MarkAborted(domain.WireError{Name: "Disconnected", Message: err.Error()}.Error())
				}
				return err
			}
			if kind != websocket.TextMessage {
				continue
			}
			if resp := sess.HandleMessage(ctx, message); resp != nil {
				if err := transport.Send(string(resp)); err != nil {
					return err
				}
			}
			sess.ProcessTasks(ctx)
			if sess.IsAborted() {
				return nil
			}
		}
	}
	return sess, pump, nil
}
