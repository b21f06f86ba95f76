package wire

// Expression tags. An array whose first element is one of these strings is
// interpreted as an expression; any other array is data.
const (
	TagPipeline  = "pipeline"
	TagRemap     = "remap"
	TagImport    = "import"
	TagExport    = "export"
	TagPromise   = "promise"
	TagError     = "error"
	TagBigInt    = "bigint"
	TagDate      = "date"
	TagBytes     = "bytes"
	TagUndefined = "undefined"
	TagValue     = "value"
)

// MaxDepth bounds value-tree nesting for both evaluation and devaluation.
const MaxDepth = 64

// Reserved object keys stripped during decode so a payload cannot smuggle
// prototype-pollution style properties into handler argument maps.
var reservedKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"toJSON":      {},
}

// ReservedKey reports whether an object key must be dropped on decode.
func ReservedKey(k string) bool {
	_, ok := reservedKeys[k]
	return ok
}

// IsExpression reports whether v is an array starting with a recognized
// expression tag.
func IsExpression(v any) bool {
	_, ok := ExpressionTag(v)
	return ok
}

// ExpressionTag returns the recognized tag of an expression array, if any.
func ExpressionTag(v any) (string, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return "", false
	}
	tag, ok := arr[0].(string)
	if !ok {
		return "", false
	}
	switch tag {
	case TagPipeline, TagRemap, TagImport, TagExport, TagPromise,
		TagError, TagBigInt, TagDate, TagBytes, TagUndefined, TagValue:
		return tag, true
	}
	return "", false
}

// EscapeArray applies the array-escape rule for outbound payloads: a plain
// data array at the top level is wrapped in one extra array layer so that
// it can never be confused with an expression. Tagged expressions and
// non-arrays pass through.
func EscapeArray(v any) any {
	if arr, ok := v.([]any); ok && !IsExpression(arr) {
		return []any{arr}
	}
	return v
}

// UnescapeArray reverses EscapeArray on a received payload.
func UnescapeArray(v any) any {
	if arr, ok := v.([]any); ok && len(arr) == 1 {
		if inner, ok := arr[0].([]any); ok && !IsExpression(inner) {
			return inner
		}
	}
	return v
}

// AsInt coerces a decoded JSON number (or an int produced internally) to an
// int. Frame and expression IDs arrive as float64 from encoding/json.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
