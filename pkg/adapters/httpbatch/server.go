// Package httpbatch exposes a session over an HTTP POST endpoint using the
// newline-delimited batch form of the protocol. Each request gets a fresh,
// ephemeral session: the batch is processed, the session is drained, and
// all outbound frames are returned newline-joined.
package httpbatch

import (
	"io"
	"net/http"
	"strings"

	"github.com/aretw0/tether"
	"github.com/aretw0/tether/pkg/batch"
	"github.com/go-chi/chi/v5"
)

// SessionFactory builds the per-request session. It runs once per POST.
type SessionFactory func() *tether.Session

// NewHandler creates an HTTP handler serving the batch protocol at the
// router root, with permissive CORS for browser peers.
func NewHandler(factory SessionFactory) http.Handler {
	r := chi.NewRouter()

	r.Post("/", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		sess := factory()
		responses := batch.Process(req.Context(), sess, string(body))
		sess.Close(req.Context())

		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if _, err := w.Write([]byte(strings.Join(responses, "\n"))); err != nil {
			return
		}
	})

	r.Options("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
	})

	return r
}
