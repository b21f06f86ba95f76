/*
Package tether is a bidirectional capability-based RPC session runtime. Two
peers exchange JSON frames over any message transport; values may carry
capabilities, promises, and deferred computations, and a caller can chain
operations on the result of an unresolved call without waiting for a round
trip (promise pipelining).

It implements the session state machine only, separating the protocol core
(tables, evaluation, lifetimes) from transports and from the application's
method handlers. This Hexagonal Architecture lets Tether sit behind a
websocket, an HTTP batch endpoint, a Redis channel, or an in-process pipe
without the core knowing which.

# Concept

Each side of a conversation holds a Session. Pushing an expression creates
an export: a lazily evaluated operation the peer can reference, chain on,
and eventually pull. Pulling answers with exactly one resolve or reject.
Capabilities returned by handlers become negative-ID exports with stable
re-export identity; references are counted and released explicitly, so the
distributed object graph has a deterministic lifetime.

# Key Features

  - Promise Pipelining: chained calls on unresolved results evaluate
    server-side in one round trip.
  - Bidirectional Calls: handlers can call back into capabilities the peer
    holds, with resolutions forwarded through linked promises.
  - Deterministic Lifetimes: reference-counted export/import tables with
    explicit release frames.
  - Failure Correctness: error redaction hooks, abort teardown, and
    fail-soft frame parsing.

# Usage

Register methods on a target, create a session, and feed it frames:

	package main

	import (
		"context"
		"fmt"

		"github.com/aretw0/tether"
		"github.com/aretw0/tether/pkg/registry"
	)

	func main() {
		target := registry.New()
		target.Method("hello", func(ctx context.Context, args []any) (any, error) {
			name, _ := args[0].(string)
			return "Hello, " + name + "!", nil
		})

		sess := tether.New(target)
		ctx := context.Background()

		sess.HandleMessage(ctx, []byte(`["push", ["pipeline", 0, ["hello"], ["World"]]]`))
		resp := sess.HandleMessage(ctx, []byte(`["pull", 1]`))
		fmt.Println(string(resp)) // ["resolve",1,"Hello, World!"]
	}

Transports live in pkg/adapters; pkg/batch processes newline-delimited
frame batches for request/response media.
*/
package tether
