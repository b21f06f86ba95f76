package domain

import "errors"

// ErrSessionAborted is the sentinel for a session torn down by an abort
// frame or a local abort. No Session operation in this module returns it:
// an aborted session drops inbound frames and reports its state through
// IsAborted.
var ErrSessionAborted = errors.New("session aborted")

// ErrExportNotFound is the sentinel for an export ID that is unknown or has
// already been released. No Session operation in this module returns it: a
// pull of such an ID is answered on the wire with an ExportNotFound error
// tuple.
var ErrExportNotFound = errors.New("export not found")

// ErrNotStub is returned when a value passed to a stub helper is not a
// client stub marker.
var ErrNotStub = errors.New("not a client stub")
