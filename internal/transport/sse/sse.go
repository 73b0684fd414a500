// Package sse implements the stdio⇄SSE transport adapter: a GET establishes
// a long-lived event stream subscription, and a POST delivers one
// client→server message referenced by a sessionId query parameter.
package sse

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/netbridge/mcpgate/internal/childproc"
	"github.com/netbridge/mcpgate/internal/logx"
	"github.com/netbridge/mcpgate/internal/metrics"
	"github.com/netbridge/mcpgate/internal/rpc"
	"github.com/netbridge/mcpgate/internal/transport"
)

type session struct {
	id      string
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
}

// Adapter is the per-binding SSE transport state: one child, one
// session table fanned out to on every line the child writes to stdout.
type Adapter struct {
	cfg   transport.Config
	child *childproc.Child

	mu       sync.Mutex
	sessions map[string]*session
}

// New constructs an Adapter for child. Callers must also start Run in a
// goroutine to pump the child's stdout into the session table.
func New(cfg transport.Config, child *childproc.Child) *Adapter {
	return &Adapter{cfg: cfg, child: child, sessions: map[string]*session{}}
}

// Run fans out every JsonRpcMessage the child writes to stdout to every
// session currently subscribed. It returns when the child's stdout closes.
func (a *Adapter) Run() {
	for msg := range a.child.Lines() {
		a.broadcast(msg)
	}
}

func (a *Adapter) broadcast(msg rpc.Message) {
	b, err := rpc.Encode(msg)
	if err != nil {
		logx.Log.Error().Err(err).Msg("sse: failed to encode message from child")
		return
	}
	a.mu.Lock()
	targets := make([]*session, 0, len(a.sessions))
	for _, s := range a.sessions {
		targets = append(targets, s)
	}
	a.mu.Unlock()

	for _, s := range targets {
		if err := writeEvent(s.w, "message", b); err != nil {
			metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "write-error").Inc()
			a.removeSession(s.id)
			continue
		}
		s.flusher.Flush()
		metrics.FramesForwarded.WithLabelValues(a.cfg.Binding, "child->network").Inc()
	}
}

func writeEvent(w io.Writer, name string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return nil
}

// HandleSSE serves the GET <prefix>/ssePath endpoint.
func (a *Adapter) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	s := &session{id: id, w: w, flusher: flusher, done: make(chan struct{})}

	a.mu.Lock()
	a.sessions[id] = s
	a.mu.Unlock()
	metrics.ActiveSessions.WithLabelValues(a.cfg.Binding).Inc()

	transport.InjectHeaders(w, a.cfg)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	endpoint := a.cfg.BaseURL + a.cfg.MessagePath + "?sessionId=" + id
	if err := writeEvent(w, "endpoint", []byte(endpoint)); err != nil {
		a.removeSession(id)
		return
	}
	flusher.Flush()

	select {
	case <-r.Context().Done():
	case <-s.done:
	}
	a.removeSession(id)
}

// HandleMessage serves the POST <prefix>/messagePath?sessionId=<id> endpoint.
// Its body is consumed raw; it must never be routed through a JSON
// body-parsing middleware ahead of this handler.
func (a *Adapter) HandleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	a.mu.Lock()
	s, ok := a.sessions[id]
	a.mu.Unlock()
	if !ok {
		metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "no-session").Inc()
		transport.WritePlainError(w, http.StatusServiceUnavailable, "no active SSE session for sessionId")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "read-error").Inc()
		transport.WritePlainError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	msg, err := rpc.Parse(body)
	if err != nil {
		metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "parse-error").Inc()
		transport.WritePlainError(w, http.StatusBadRequest, "invalid JSON-RPC message")
		return
	}
	if err := a.child.WriteLine(msg); err != nil {
		metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "write-error").Inc()
		a.removeSession(s.id)
		transport.WritePlainError(w, http.StatusServiceUnavailable, "failed to deliver message to child")
		return
	}

	metrics.FramesForwarded.WithLabelValues(a.cfg.Binding, "network->child").Inc()
	w.WriteHeader(http.StatusAccepted)
}

func (a *Adapter) removeSession(id string) {
	a.mu.Lock()
	s, ok := a.sessions[id]
	if ok {
		delete(a.sessions, id)
	}
	a.mu.Unlock()
	if ok {
		metrics.ActiveSessions.WithLabelValues(a.cfg.Binding).Dec()
		close(s.done)
	}
}

// SessionCount reports the number of active sessions, for metrics/tests.
func (a *Adapter) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}
