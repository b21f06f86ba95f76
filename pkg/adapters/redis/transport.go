// Package redis carries session frames over Redis pub/sub: each session
// endpoint publishes to one channel and subscribes to another, giving two
// processes a duplex frame stream through a shared broker.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/tether"
	backend "github.com/redis/go-redis/v9"
)

// Transport implements ports.Transport by publishing frames to a channel.
type Transport struct {
	client  *backend.Client
	ctx     context.Context
	channel string
	prefix  string
	logger  *slog.Logger
}

// Option configures the transport.
type Option func(*Transport)

// WithPrefix sets the channel name prefix.
func WithPrefix(prefix string) Option {
	return func(t *Transport) {
		t.prefix = prefix
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// New creates a transport publishing to the named channel.
func New(ctx context.Context, address, password string, db int, channel string, opts ...Option) *Transport {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(ctx, rdb, channel, opts...)
}

// NewFromClient creates a transport from an existing client.
func NewFromClient(ctx context.Context, client *backend.Client, channel string, opts ...Option) *Transport {
	t := &Transport{
		client:  client,
		ctx:     ctx,
		channel: channel,
		prefix:  "tether:frames:",
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

func (t *Transport) key() string {
	return t.prefix + t.channel
}

// Send publishes one frame.
func (t *Transport) Send(message string) error {
	if err := t.client.Publish(t.ctx, t.key(), message).Err(); err != nil {
		return fmt.Errorf("failed to publish frame: %w", err)
	}
	return nil
}

// Abort publishes the reason on the channel's abort sibling so the peer's
// subscriber can distinguish teardown from silence.
func (t *Transport) Abort(reason string) {
	if err := t.client.Publish(t.ctx, t.key()+":abort", reason).Err(); err != nil {
		t.logger.Warn("failed to publish abort", "err", err)
	}
}

// Close closes the underlying client.
func (t *Transport) Close() error {
	return t.client.Close()
}

// Serve subscribes to the named inbound channel and pumps frames through
// the session until the context is canceled or the session aborts.
// Outbound traffic goes through the session's transport, so the session
// should have been created with this (or another) Transport attached.
func Serve(ctx context.Context, sess *tether.Session, client *backend.Client, inChannel string, opts ...Option) error {
	t := NewFromClient(ctx, client, inChannel, opts...)
	sub := client.Subscribe(ctx, t.key(), t.key()+":abort")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Channel == t.key()+":abort" {
				sess.MarkAborted(msg.Payload)
				return nil
			}
			if resp := sess.HandleMessage(ctx, []byte(msg.Payload)); resp != nil {
				out := sess.Transport()
				if out == nil {
					t.logger.Warn("no outbound transport for response")
				} else if err := out.Send(string(resp)); err != nil {
					t.logger.Warn("response publish failed", "err", err)
				}
			}
			sess.ProcessTasks(ctx)
			if sess.IsAborted() {
				return nil
			}
		}
	}
}
