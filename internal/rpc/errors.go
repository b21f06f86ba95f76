package rpc

import (
	"fmt"

	"github.com/aretw0/tether/pkg/domain"
)

// Error names carried in wire error tuples.
const (
	NameMethodError    = "MethodError"
	NameExportNotFound = "ExportNotFound"
	NameDepthExceeded  = "DepthExceeded"
	NameProtocolError  = "ProtocolError"
	NameAborted        = "Aborted"
)

// protocolError is an error that maps directly onto a wire error tuple.
type protocolError struct {
	name    string
	message string
}

func (e *protocolError) Error() string {
	return e.name + ": " + e.message
}

func methodErrorf(format string, args ...any) *protocolError {
	return &protocolError{name: NameMethodError, message: fmt.Sprintf(format, args...)}
}

func exportNotFound() *protocolError {
	return &protocolError{name: NameExportNotFound, message: "Export ID not found"}
}

func depthExceeded() *protocolError {
	return &protocolError{name: NameDepthExceeded, message: "value nesting exceeds depth limit"}
}

// errorTuple renders any error as a wire error tuple. Protocol errors keep
// their name; handler errors become MethodError.
func errorTuple(err error) []any {
	switch e := err.(type) {
	case *protocolError:
		return []any{"error", e.name, e.message}
	case domain.WireError:
		return e.Tuple()
	default:
		return []any{"error", NameMethodError, err.Error()}
	}
}
