package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarget_Dispatch(t *testing.T) {
	target := New()
	target.Method("sum", func(ctx context.Context, args []any) (any, error) {
		total := 0.0
		for _, a := range args {
			n, _ := a.(float64)
			total += n
		}
		return total, nil
	})

	out, err := target.Dispatch(context.Background(), "sum", []any{1.0, 2.0, 3.0})
	require.NoError(t, err)
	assert.Equal(t, 6.0, out)
}

func TestTarget_MethodNotFound(t *testing.T) {
	target := New()
	_, err := target.Dispatch(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found: missing")
}

func TestTarget_OverwriteAndList(t *testing.T) {
	target := New()
	target.Method("a", func(ctx context.Context, args []any) (any, error) { return 1.0, nil })
	target.Method("a", func(ctx context.Context, args []any) (any, error) { return 2.0, nil })
	target.Method("b", func(ctx context.Context, args []any) (any, error) { return nil, nil })

	out, err := target.Dispatch(context.Background(), "a", nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out)
	assert.ElementsMatch(t, []string{"a", "b"}, target.Methods())
}

func TestDecodeArg(t *testing.T) {
	type profileArgs struct {
		UserID string `mapstructure:"user_id"`
		Limit  int    `mapstructure:"limit"`
	}

	var decoded profileArgs
	err := DecodeArg(map[string]any{"user_id": "u1", "limit": 10.0}, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "u1", decoded.UserID)
	assert.Equal(t, 10, decoded.Limit)
}

func TestDecodeArg_WeakTyping(t *testing.T) {
	type opts struct {
		Verbose bool `mapstructure:"verbose"`
	}
	var decoded opts
	// JSON payloads often carry loose types; decoding stays permissive.
	err := DecodeArg(map[string]any{"verbose": "true"}, &decoded)
	require.NoError(t, err)
	assert.True(t, decoded.Verbose)
}
