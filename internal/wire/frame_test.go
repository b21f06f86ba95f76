package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ValidFrames(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		wantType string
		params   int
	}{
		{"push", `["push", ["pipeline", 0, ["hello"], ["World"]]]`, TypePush, 1},
		{"pull", `["pull", 1]`, TypePull, 1},
		{"resolve", `["resolve", 1, "ok"]`, TypeResolve, 2},
		{"reject", `["reject", 1, ["error", "MethodError", "boom"]]`, TypeReject, 2},
		{"release", `["release", 3, 2]`, TypeRelease, 2},
		{"abort", `["abort", ["error", "Type", "bye"]]`, TypeAbort, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, ok := Parse([]byte(tc.raw))
			require.True(t, ok)
			assert.Equal(t, tc.wantType, frame.Type)
			assert.Len(t, frame.Params, tc.params)
		})
	}
}

func TestParse_RejectsMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"push": 1}`,
		`[]`,
		`[42, "pull"]`,
		`["conjure", 1]`,
		`null`,
	}
	for _, raw := range cases {
		_, ok := Parse([]byte(raw))
		assert.False(t, ok, "expected %q to be dropped", raw)
	}
}

func TestMarshal_Compact(t *testing.T) {
	frame := Resolve(1, "Hello, World!")
	assert.Equal(t, `["resolve",1,"Hello, World!"]`, frame.Marshal())
}

func TestResolve_EscapesPlainArrays(t *testing.T) {
	frame := Resolve(2, []any{1.0, 2.0})
	assert.Equal(t, `["resolve",2,[[1,2]]]`, frame.Marshal())

	// Tagged expressions pass unwrapped.
	frame = Resolve(3, []any{TagExport, -1})
	assert.Equal(t, `["resolve",3,["export",-1]]`, frame.Marshal())
}

func TestRoundTrip(t *testing.T) {
	original := Release(7, 2)
	parsed, ok := Parse([]byte(original.Marshal()))
	require.True(t, ok)
	assert.Equal(t, TypeRelease, parsed.Type)

	id, ok := AsInt(parsed.Params[0])
	require.True(t, ok)
	assert.Equal(t, 7, id)
	count, ok := AsInt(parsed.Params[1])
	require.True(t, ok)
	assert.Equal(t, 2, count)
}
