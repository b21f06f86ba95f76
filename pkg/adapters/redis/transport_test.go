package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/tether"
	"github.com/aretw0/tether/pkg/registry"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTransport_PublishesFrames(t *testing.T) {
	_, client := newBackend(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "tether:frames:out")
	defer sub.Close()
	// Wait for the subscription to be active before publishing.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	tr := NewFromClient(ctx, client, "out")
	require.NoError(t, tr.Send(`["release", 1, 1]`))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, `["release", 1, 1]`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestTransport_AbortUsesSiblingChannel(t *testing.T) {
	_, client := newBackend(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "tether:frames:out:abort")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	tr := NewFromClient(ctx, client, "out")
	tr.Abort("bye")

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "bye", msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("abort not delivered")
	}
}

func TestServe_RoundTrip(t *testing.T) {
	_, client := newBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := registry.New()
	target.Method("hello", func(ctx context.Context, args []any) (any, error) {
		name, _ := args[0].(string)
		return "Hello, " + name + "!", nil
	})

	out := NewFromClient(ctx, client, "s1:out")
	sess := tether.New(target, tether.WithTransport(out))

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, sess, client, "s1:in")
	}()

	// Observe the server's outbound channel.
	sub := client.Subscribe(ctx, "tether:frames:s1:out")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	// Give Serve a moment to subscribe, then drive the protocol.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, client.Publish(ctx, "tether:frames:s1:in",
		`["push", ["pipeline", 0, ["hello"], ["Redis"]]]`).Err())
	require.NoError(t, client.Publish(ctx, "tether:frames:s1:in", `["pull", 1]`).Err())

	select {
	case msg := <-sub.Channel():
		var frame []any
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &frame))
		assert.Equal(t, []any{"resolve", 1.0, "Hello, Redis!"}, frame)
	case <-time.After(3 * time.Second):
		t.Fatal("no resolve on outbound channel")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serve loop did not stop")
	}
}

func TestServe_AbortChannelTearsDown(t *testing.T) {
	_, client := newBackend(t)
	ctx := context.Background()

	sess := tether.New(nil)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, sess, client, "s2:in")
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, client.Publish(ctx, "tether:frames:s2:in:abort", `["error","Type","bye"]`).Err())

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("serve loop did not stop on abort")
	}
	assert.True(t, sess.IsAborted())
}
