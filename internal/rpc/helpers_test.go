package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/tether/pkg/ports"
	"github.com/stretchr/testify/require"
)

// recordingTransport collects session-initiated frames.
type recordingTransport struct {
	frames  []string
	aborted bool
	reason  string
}

func (t *recordingTransport) Send(message string) error {
	t.frames = append(t.frames, message)
	return nil
}

func (t *recordingTransport) Abort(reason string) {
	t.aborted = true
	t.reason = reason
}

var _ ports.Transport = (*recordingTransport)(nil)

// methodTable is a minimal target for tests.
type methodTable map[string]func(args []any) (any, error)

func (m methodTable) Dispatch(_ context.Context, method string, args []any) (any, error) {
	fn, ok := m[method]
	if !ok {
		return nil, methodErrorf("Method not found: %s", method)
	}
	return fn(args)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func parseFrame(t *testing.T, raw []byte) []any {
	t.Helper()
	require.NotNil(t, raw, "expected a response frame")
	var out []any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func parseFrameString(t *testing.T, raw string) []any {
	t.Helper()
	var out []any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func handle(t *testing.T, s *Session, frame string) []byte {
	t.Helper()
	return s.HandleMessage(context.Background(), []byte(frame))
}
