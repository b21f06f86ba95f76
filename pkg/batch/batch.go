// Package batch adapts a session to request/response media: frames arrive
// as a newline-delimited body, and every outbound frame — direct pull
// responses and session-initiated traffic alike — is accumulated into one
// newline-delimited reply.
package batch

import (
	"context"
	"strings"

	"github.com/aretw0/tether"
)

// Accumulator is a transport that collects outbound frames in memory.
type Accumulator struct {
	frames  []string
	aborted bool
	reason  string
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Send implements ports.Transport.
func (a *Accumulator) Send(message string) error {
	a.frames = append(a.frames, message)
	return nil
}

// Abort implements ports.Transport.
func (a *Accumulator) Abort(reason string) {
	a.aborted = true
	a.reason = reason
}

// Frames returns the collected frames in emission order.
func (a *Accumulator) Frames() []string {
	return a.frames
}

// Aborted reports whether the session aborted the batch, and why.
func (a *Accumulator) Aborted() (bool, string) {
	return a.aborted, a.reason
}

// Process runs a newline-delimited batch body through the session and
// returns all outbound frames in order. An accumulator is attached as the
// session transport so that session-initiated frames (server-to-client
// calls, releases) interleave with the responses. The session is drained
// before the batch closes.
func Process(ctx context.Context, sess *tether.Session, body string) []string {
	acc := NewAccumulator()
	sess.SetTransport(acc)

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if resp := sess.HandleMessage(ctx, []byte(line)); resp != nil {
			acc.frames = append(acc.frames, string(resp))
		}
		// Releases scheduled by a pull follow its response.
		sess.ProcessTasks(ctx)
	}

	sess.Drain(ctx)
	return acc.Frames()
}
