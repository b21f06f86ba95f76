// Package client builds pipelined call batches against a tether server and
// parses the newline-delimited responses. It is the caller side of the
// batch form of the protocol: composing pushes and pulls locally mirrors
// the export IDs the server will allocate in push order.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aretw0/tether/internal/wire"
	"github.com/aretw0/tether/pkg/domain"
)

// Batch accumulates frames for one request. Export IDs returned by Call
// are valid for pipelining into later calls within the same batch.
type Batch struct {
	frames []string
	nextID int
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{nextID: 1}
}

// Call pushes a method call on the server's root target and returns the
// export ID assigned to its eventual result.
func (b *Batch) Call(method string, args ...any) int {
	return b.CallOn(0, method, args...)
}

// CallOn pushes a method call on a previously returned capability (or 0
// for the root target).
func (b *Batch) CallOn(subject int, method string, args ...any) int {
	if args == nil {
		args = []any{}
	}
	expr := []any{wire.TagPipeline, subject, []any{method}, args}
	b.frames = append(b.frames, wire.Push(expr).Marshal())
	id := b.nextID
	b.nextID++
	return id
}

// Ref builds a pipeline reference to an earlier result (optionally into a
// property path) for embedding in later call arguments — the pipelining
// primitive.
func (b *Batch) Ref(id int, path ...any) []any {
	if path == nil {
		path = []any{}
	}
	return []any{wire.TagPipeline, id, path}
}

// Pull requests resolution of an export at the end of the exchange.
func (b *Batch) Pull(id int) {
	b.frames = append(b.frames, wire.Pull(id).Marshal())
}

// Body renders the newline-delimited request body.
func (b *Batch) Body() string {
	return strings.Join(b.frames, "\n")
}

// Result is one parsed resolution.
type Result struct {
	Value any
	Err   *domain.WireError
}

// ParseResponses decodes a newline-delimited response body into results
// keyed by export ID. Frames other than resolve/reject are ignored.
func ParseResponses(body string) (map[int]Result, error) {
	results := make(map[int]Result)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		frame, ok := wire.Parse([]byte(line))
		if !ok {
			return nil, fmt.Errorf("unparsable response frame: %s", line)
		}
		switch frame.Type {
		case wire.TypeResolve:
			if len(frame.Params) < 2 {
				continue
			}
			id, ok := wire.AsInt(frame.Params[0])
			if !ok {
				continue
			}
			results[id] = Result{Value: wire.UnescapeArray(frame.Params[1])}
		case wire.TypeReject:
			if len(frame.Params) < 2 {
				continue
			}
			id, ok := wire.AsInt(frame.Params[0])
			if !ok {
				continue
			}
			if e, ok := domain.WireErrorFromTuple(frame.Params[1]); ok {
				results[id] = Result{Err: &e}
			} else {
				results[id] = Result{Err: &domain.WireError{Name: "ProtocolError", Message: "malformed reject"}}
			}
		}
	}
	return results, nil
}

// Do posts the batch to an HTTP endpoint and parses the responses.
func Do(ctx context.Context, httpClient *http.Client, url string, b *Batch) (map[int]Result, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(b.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return ParseResponses(string(body))
}
