package tether_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/tether"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/aretw0/tether/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	frames []string
}

func (s *sink) Send(message string) error {
	s.frames = append(s.frames, message)
	return nil
}

func (s *sink) Abort(reason string) {}

var _ ports.Transport = (*sink)(nil)

func TestSession_FacadeRoundTrip(t *testing.T) {
	target := registry.New()
	target.Method("hello", func(ctx context.Context, args []any) (any, error) {
		name, _ := args[0].(string)
		return "Hello, " + name + "!", nil
	})

	sess := tether.New(target)
	ctx := context.Background()

	assert.Nil(t, sess.HandleMessage(ctx, []byte(`["push", ["pipeline", 0, ["hello"], ["World"]]]`)))
	resp := sess.HandleMessage(ctx, []byte(`["pull", 1]`))
	assert.JSONEq(t, `["resolve",1,"Hello, World!"]`, string(resp))
}

func TestSession_CallStubFromHandler(t *testing.T) {
	transport := &sink{}
	var sess *tether.Session

	target := registry.New()
	target.Method("notify", func(ctx context.Context, args []any) (any, error) {
		// The argument is a capability the peer passed in.
		if _, err := sess.CallStub(args[0], "onEvent", []any{"ready"}); err != nil {
			return nil, err
		}
		return "scheduled", nil
	})

	sess = tether.New(target, tether.WithTransport(transport))
	ctx := context.Background()

	sess.HandleMessage(ctx, []byte(`["push", ["pipeline", 0, ["notify"], [["export", 4]]]]`))
	resp := sess.HandleMessage(ctx, []byte(`["pull", 1]`))
	assert.JSONEq(t, `["resolve",1,"scheduled"]`, string(resp))

	require.GreaterOrEqual(t, len(transport.frames), 2)
	var push []any
	require.NoError(t, json.Unmarshal([]byte(transport.frames[0]), &push))
	inner := push[1].([]any)
	assert.Equal(t, 4.0, inner[1], "call went to the peer's capability")
}

func TestSession_CallStubRejectsNonStub(t *testing.T) {
	sess := tether.New(registry.New())
	_, err := sess.CallStub("not a stub", "x", nil)
	assert.ErrorIs(t, err, domain.ErrNotStub)
}

func TestSession_AwaitPromiseFromHandler(t *testing.T) {
	transport := &sink{}
	var sess *tether.Session

	target := registry.New()
	target.Method("echoPromise", func(ctx context.Context, args []any) (any, error) {
		return sess.AwaitPromise(args[0])
	})

	sess = tether.New(target, tether.WithTransport(transport))
	ctx := context.Background()

	sess.HandleMessage(ctx, []byte(`["push", ["pipeline", 0, ["echoPromise"], [["promise", 5]]]]`))
	resp := sess.HandleMessage(ctx, []byte(`["pull", 1]`))

	var frame []any
	require.NoError(t, json.Unmarshal(resp, &frame))
	require.Equal(t, "resolve", frame[0])
	expr := frame[2].([]any)
	require.Equal(t, "promise", expr[0])
	negID := expr[1].(float64)

	// Peer resolves its promise; the session forwards to ours.
	sess.HandleMessage(ctx, []byte(`["resolve", 5, "OK"]`))
	last := transport.frames[len(transport.frames)-1]
	assert.JSONEq(t, `["resolve",`+jsonNumber(negID)+`,"OK"]`, last)
}

func TestSession_OnBrokenAndAbort(t *testing.T) {
	var reason string
	sess := tether.New(registry.New(), tether.WithOnBroken(func(r string) { reason = r }))
	ctx := context.Background()

	sess.HandleMessage(ctx, []byte(`["abort", ["error", "Type", "bye"]]`))
	assert.True(t, sess.IsAborted())
	assert.JSONEq(t, `["error","Type","bye"]`, reason)
	assert.Nil(t, sess.HandleMessage(ctx, []byte(`["pull", 1]`)))
}

func TestSession_RedactionOption(t *testing.T) {
	target := registry.New()
	target.Method("boom", func(ctx context.Context, args []any) (any, error) {
		return nil, assert.AnError
	})
	sess := tether.New(target, tether.WithOnSendError(func(e domain.WireError) domain.WireError {
		e.Message = "redacted"
		return e
	}))
	ctx := context.Background()

	sess.HandleMessage(ctx, []byte(`["push", ["pipeline", 0, ["boom"]]]`))
	resp := sess.HandleMessage(ctx, []byte(`["pull", 1]`))

	var frame []any
	require.NoError(t, json.Unmarshal(resp, &frame))
	require.Equal(t, "reject", frame[0])
	tuple := frame[2].([]any)
	assert.Equal(t, "redacted", tuple[2])
}

func jsonNumber(f float64) string {
	data, _ := json.Marshal(f)
	return string(data)
}
