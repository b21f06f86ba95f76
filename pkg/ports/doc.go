// Package ports defines the boundary interfaces between the Tether session
// core and its surroundings: the transport that carries frames, and the
// application target that methods are dispatched against.
//
// Following a hexagonal layout, this package contains the interfaces plus
// the TargetFunc adapter, and no implementations.
// Implementations live in pkg/adapters (transports) and pkg/registry or
// application code (targets).
package ports
