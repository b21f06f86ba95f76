// Package wire implements the frame codec and the expression grammar of the
// Tether protocol: top-level frames are JSON arrays [tag, ...params], and
// payload arrays whose first element is a recognized tag string are
// expressions rather than data.
package wire

import "encoding/json"

// Frame kinds. The tag is always the first array element.
const (
	TypePush    = "push"
	TypePull    = "pull"
	TypeResolve = "resolve"
	TypeReject  = "reject"
	TypeRelease = "release"
	TypeAbort   = "abort"
)

// Frame is one parsed protocol message.
type Frame struct {
	Type   string
	Params []any
}

// Parse decodes a frame from its wire form. It reports false for anything
// structurally unusable: invalid JSON, a non-array, an empty array, a
// non-string tag, or an unknown frame kind. Per protocol, such input is
// dropped without a response.
func Parse(data []byte) (Frame, bool) {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, false
	}
	if len(raw) == 0 {
		return Frame{}, false
	}
	tag, ok := raw[0].(string)
	if !ok {
		return Frame{}, false
	}
	switch tag {
	case TypePush, TypePull, TypeResolve, TypeReject, TypeRelease, TypeAbort:
	default:
		return Frame{}, false
	}
	return Frame{Type: tag, Params: raw[1:]}, true
}

// Marshal renders the frame as compact JSON.
func (f Frame) Marshal() string {
	arr := make([]any, 0, len(f.Params)+1)
	arr = append(arr, f.Type)
	arr = append(arr, f.Params...)
	data, err := json.Marshal(arr)
	if err != nil {
		// Values reaching this point came out of json.Unmarshal or the
		// devaluator, both of which produce marshalable trees.
		return "[]"
	}
	return string(data)
}

// Push builds a ["push", expr] frame.
func Push(expr any) Frame {
	return Frame{Type: TypePush, Params: []any{expr}}
}

// Pull builds a ["pull", id] frame.
func Pull(id int) Frame {
	return Frame{Type: TypePull, Params: []any{id}}
}

// Resolve builds a ["resolve", id, value] frame, applying the array-escape
// rule to the payload.
func Resolve(id int, value any) Frame {
	return Frame{Type: TypeResolve, Params: []any{id, EscapeArray(value)}}
}

// Reject builds a ["reject", id, errorTuple] frame.
func Reject(id int, errTuple []any) Frame {
	return Frame{Type: TypeReject, Params: []any{id, errTuple}}
}

// Release builds a ["release", id, count] frame.
func Release(id, count int) Frame {
	return Frame{Type: TypeRelease, Params: []any{id, count}}
}

// Abort builds an ["abort", payload] frame.
func Abort(payload any) Frame {
	return Frame{Type: TypeAbort, Params: []any{payload}}
}
