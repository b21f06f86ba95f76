package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/tether/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, raw string) []any {
	t.Helper()
	var out []any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestPair_ClientDrivenCall(t *testing.T) {
	server := registry.New()
	server.Method("ping", func(ctx context.Context, args []any) (any, error) {
		return "pong", nil
	})

	p := NewPair(nil, server)
	p.SendToB(`["push", ["pipeline", 0, ["ping"]]]`)
	p.SendToB(`["pull", 1]`)
	p.Pump(context.Background())

	var resolved bool
	for _, entry := range p.Transcript() {
		if entry.To != "A" {
			continue
		}
		f := frame(t, entry.Frame)
		if f[0] == "resolve" && f[1] == 1.0 {
			assert.Equal(t, "pong", f[2])
			resolved = true
		}
	}
	assert.True(t, resolved, "A received the resolve")
}

func TestPair_SessionInitiatedCall(t *testing.T) {
	peer := registry.New()
	peer.Method("greet", func(ctx context.Context, args []any) (any, error) {
		name, _ := args[0].(string)
		return "Hello, " + name + "!", nil
	})

	p := NewPair(nil, peer)

	// A calls B's root target directly; import and export IDs stay aligned
	// because every push on the wire allocates in order.
	promiseID := p.A.CallMethod(0, "greet", []any{"Bob"})
	require.Negative(t, promiseID)
	p.Pump(context.Background())

	// B answered, A released its import and forwarded the resolution.
	var sawResolve, sawRelease bool
	for _, entry := range p.Transcript() {
		f := frame(t, entry.Frame)
		if entry.To == "A" && f[0] == "resolve" && f[1] == 1.0 {
			assert.Equal(t, "Hello, Bob!", f[2])
			sawResolve = true
		}
		if entry.To == "B" && f[0] == "release" && f[1] == 1.0 {
			sawRelease = true
		}
	}
	assert.True(t, sawResolve)
	assert.True(t, sawRelease)
	assert.Equal(t, 0, p.A.Stats().Imports, "import erased after resolution")
}

func TestPair_AbortStopsTraffic(t *testing.T) {
	server := registry.New()
	server.Method("ping", func(ctx context.Context, args []any) (any, error) {
		return "pong", nil
	})

	p := NewPair(nil, server)
	p.SendToB(`["abort", "done"]`)
	p.SendToB(`["push", ["pipeline", 0, ["ping"]]]`)
	p.SendToB(`["pull", 1]`)
	p.Pump(context.Background())

	assert.True(t, p.B.IsAborted())
	for _, entry := range p.Transcript() {
		if entry.To == "A" {
			t.Fatalf("no frame should reach A after abort, got %s", entry.Frame)
		}
	}
}
