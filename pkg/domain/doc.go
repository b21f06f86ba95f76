// Package domain contains the value-level vocabulary shared by the Tether
// core and its adapters: sentinel markers for capabilities and extended
// scalars, wire error tuples, sentinel errors, and session statistics.
//
// Values exchanged over a session are trees of JSON primitives. Anything
// that is not plain data — a capability, a promise, a bigint — is carried
// inside the tree as a map with a single distinguished "$"-prefixed key.
// The constructors in this package build those markers; the session core
// rewrites them to wire expressions on the way out and back on the way in.
package domain
