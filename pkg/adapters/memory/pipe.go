// Package memory provides an in-process transport: two sessions joined by
// a pair of frame queues, pumped cooperatively. Useful for tests, demos,
// and embedding both peers in one process.
package memory

import (
	"context"

	"github.com/aretw0/tether"
	"github.com/aretw0/tether/pkg/ports"
)

// Pair joins two sessions back to back. Frames sent by one side are queued
// for the other and delivered by Pump, preserving the protocol's
// frame-at-a-time, run-to-completion model.
type Pair struct {
	A *tether.Session
	B *tether.Session

	toA []string
	toB []string

	transcript []TranscriptEntry
}

// TranscriptEntry is one delivered frame; To is "A" or "B".
type TranscriptEntry struct {
	To    string
	Frame string
}

// NewPair builds linked sessions for the two targets. Either target may be
// nil for a side that only issues calls.
func NewPair(targetA, targetB ports.Target, opts ...tether.Option) *Pair {
	p := &Pair{}
	aOpts := append([]tether.Option{tether.WithTransport(&queueTransport{pair: p, toPeer: &p.toB})}, opts...)
	bOpts := append([]tether.Option{tether.WithTransport(&queueTransport{pair: p, toPeer: &p.toA})}, opts...)
	p.A = tether.New(targetA, aOpts...)
	p.B = tether.New(targetB, bOpts...)
	return p
}

// SendToB queues a frame from A's side for B, as if A had sent it.
func (p *Pair) SendToB(frame string) {
	p.toB = append(p.toB, frame)
}

// SendToA queues a frame for A.
func (p *Pair) SendToA(frame string) {
	p.toA = append(p.toA, frame)
}

// Pump delivers queued frames alternately until both directions are quiet.
// Responses and session-initiated frames are queued back for the peer, so
// a single call settles a full pipelined exchange.
func (p *Pair) Pump(ctx context.Context) {
	for len(p.toA) > 0 || len(p.toB) > 0 {
		if len(p.toB) > 0 {
			frame := p.toB[0]
			p.toB = p.toB[1:]
			p.transcript = append(p.transcript, TranscriptEntry{To: "B", Frame: frame})
			if resp := p.B.HandleMessage(ctx, []byte(frame)); resp != nil {
				p.toA = append(p.toA, string(resp))
			}
			p.B.ProcessTasks(ctx)
		}
		if len(p.toA) > 0 {
			frame := p.toA[0]
			p.toA = p.toA[1:]
			p.transcript = append(p.transcript, TranscriptEntry{To: "A", Frame: frame})
			if resp := p.A.HandleMessage(ctx, []byte(frame)); resp != nil {
				p.toB = append(p.toB, string(resp))
			}
			p.A.ProcessTasks(ctx)
		}
	}
}

// Transcript returns every frame delivered so far, in delivery order.
func (p *Pair) Transcript() []TranscriptEntry {
	return p.transcript
}

// queueTransport appends outbound frames to the peer's inbox.
type queueTransport struct {
	pair   *Pair
	toPeer *[]string
}

func (t *queueTransport) Send(message string) error {
	*t.toPeer = append(*t.toPeer, message)
	return nil
}

func (t *queueTransport) Abort(reason string) {
	// Nothing to tear down; the queues die with the pair.
}

var _ ports.Transport = (*queueTransport)(nil)
