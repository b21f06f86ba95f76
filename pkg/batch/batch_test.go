package batch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aretw0/tether"
	"github.com/aretw0/tether/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTarget() *registry.Target {
	t := registry.New()
	t.Method("echo", func(ctx context.Context, args []any) (any, error) {
		name, _ := args[0].(string)
		return "Hello, " + name + "!", nil
	})
	return t
}

func frame(t *testing.T, raw string) []any {
	t.Helper()
	var out []any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestProcess_BatchRoundTrip(t *testing.T) {
	sess := tether.New(echoTarget())

	body := strings.Join([]string{
		`["push", ["pipeline", 0, ["echo"], ["A"]]]`,
		`["push", ["pipeline", 0, ["echo"], ["B"]]]`,
		`["pull", 1]`,
		`["pull", 2]`,
	}, "\n")

	responses := Process(context.Background(), sess, body)
	require.Len(t, responses, 2)
	assert.Equal(t, []any{"resolve", 1.0, "Hello, A!"}, frame(t, responses[0]))
	assert.Equal(t, []any{"resolve", 2.0, "Hello, B!"}, frame(t, responses[1]))
	assert.True(t, sess.IsDrained(), "batch drains before closing")
}

func TestProcess_SkipsBlankLines(t *testing.T) {
	sess := tether.New(echoTarget())
	body := "\n" + `["push", ["pipeline", 0, ["echo"], ["X"]]]` + "\n\n" + `["pull", 1]` + "\n"

	responses := Process(context.Background(), sess, body)
	require.Len(t, responses, 1)
	assert.Equal(t, "resolve", frame(t, responses[0])[0])
}

func TestProcess_ExportCaptureInterleavesClientCall(t *testing.T) {
	sess := tether.New(nil)

	body := strings.Join([]string{
		`["push", ["remap", 0, [], [["export", 7]], [["get", -1, ["version"]]]]]`,
		`["pull", 1]`,
	}, "\n")

	out := Process(context.Background(), sess, body)
	require.GreaterOrEqual(t, len(out), 4)

	// First the outbound call to the captured export...
	push := frame(t, out[0])
	require.Equal(t, "push", push[0])
	inner := push[1].([]any)
	assert.Equal(t, "pipeline", inner[0])
	assert.Equal(t, 7.0, inner[1])
	assert.Equal(t, []any{"version"}, inner[2])

	pull := frame(t, out[1])
	assert.Equal(t, "pull", pull[0])
	assert.Equal(t, 1.0, pull[1])

	// ...then the resolve with a promise, then the capture release.
	var foundResolve, foundRelease bool
	for _, raw := range out {
		f := frame(t, raw)
		if f[0] == "resolve" && f[1] == 1.0 {
			expr, ok := f[2].([]any)
			require.True(t, ok)
			assert.Equal(t, "promise", expr[0])
			foundResolve = true
		}
		if f[0] == "release" && f[1] == 7.0 {
			assert.True(t, foundResolve, "release follows the resolve")
			foundRelease = true
		}
	}
	assert.True(t, foundResolve)
	assert.True(t, foundRelease)
}

func TestAccumulator_RecordsAbort(t *testing.T) {
	acc := NewAccumulator()
	require.NoError(t, acc.Send("x"))
	acc.Abort("bye")

	aborted, reason := acc.Aborted()
	assert.True(t, aborted)
	assert.Equal(t, "bye", reason)
	assert.Equal(t, []string{"x"}, acc.Frames())
}
