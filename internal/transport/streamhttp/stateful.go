// Package streamhttp implements the two Streamable-HTTP transport adapters:
// a stateful adapter that keeps one child process and one refcounted session
// per Mcp-Session-Id, and a stateless adapter that spawns a fresh child for
// every POST and interposes an initialize handshake the underlying child
// never has to know was synthesized.
package streamhttp

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/netbridge/mcpgate/internal/childproc"
	"github.com/netbridge/mcpgate/internal/logx"
	"github.com/netbridge/mcpgate/internal/metrics"
	"github.com/netbridge/mcpgate/internal/refcount"
	"github.com/netbridge/mcpgate/internal/rpc"
	"github.com/netbridge/mcpgate/internal/transport"
)

const sessionIDHeader = "Mcp-Session-Id"

// StatefulAdapter is the per-binding state for stateful Streamable-HTTP: a
// session table keyed by the server-assigned Mcp-Session-Id, one child
// process per session, and an idle timer that expires sessions with no
// in-flight request.
type StatefulAdapter struct {
	cfg     transport.Config
	command string

	refs *refcount.Table

	mu       sync.Mutex
	sessions map[string]*statefulSession
}

// NewStateful constructs a StatefulAdapter. command is the shell command
// used to spawn a fresh child for every new session.
func NewStateful(cfg transport.Config, command string) *StatefulAdapter {
	a := &StatefulAdapter{
		cfg:      cfg,
		command:  command,
		sessions: map[string]*statefulSession{},
	}
	a.refs = refcount.New(cfg.SessionTimeout)
	a.refs.OnExpire = a.expire
	return a
}

func (a *StatefulAdapter) lookup(id string) (*statefulSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	return s, ok
}

// expire is invoked by the idle timer. It closes the session's transport
// and drops the table entry. Keyed entirely off the id the timer was armed
// for, never a value re-read off the session at fire time.
func (a *StatefulAdapter) expire(id string) {
	a.mu.Lock()
	s, ok := a.sessions[id]
	if ok {
		delete(a.sessions, id)
	}
	a.mu.Unlock()
	if ok {
		metrics.ActiveSessions.WithLabelValues(a.cfg.Binding).Dec()
		logx.Log.Info().Str("session", id).Msg("streamable-http: session idle timeout, closing")
		s.close()
	}
}

// terminate is the shared teardown for onclose/onerror/DELETE: remove the
// table entry keyed by the id captured when the session was created, clear
// its refcount entry without firing OnExpire a second time, and kill its
// child. Safe to call more than once for the same id.
func (a *StatefulAdapter) terminate(id string, reason string) {
	a.mu.Lock()
	s, ok := a.sessions[id]
	if ok {
		delete(a.sessions, id)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	metrics.ActiveSessions.WithLabelValues(a.cfg.Binding).Dec()
	a.refs.Clear(id, false, reason)
	s.close()
}

// HandlePOST implements the POST admission rules: a known session id in the
// header reuses that session's child; a header-less initialize request
// creates a new session and child; anything else is a 400 JSON-RPC error.
func (a *StatefulAdapter) HandlePOST(w http.ResponseWriter, r *http.Request) {
	transport.InjectHeaders(w, a.cfg)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		transport.WriteJSONRPCError(w, http.StatusBadRequest, rpc.CodeInvalidRequest, "Bad Request: failed to read body")
		return
	}
	msg, perr := rpc.Parse(body)
	if perr != nil {
		transport.WriteJSONRPCError(w, http.StatusBadRequest, rpc.CodeInvalidRequest, "Bad Request: No valid session ID provided")
		return
	}

	sid := r.Header.Get(sessionIDHeader)

	var s *statefulSession
	switch {
	case sid != "":
		var ok bool
		s, ok = a.lookup(sid)
		if !ok {
			transport.WriteJSONRPCError(w, http.StatusBadRequest, rpc.CodeInvalidRequest, "Bad Request: No valid session ID provided")
			return
		}
		a.refs.Inc(sid, "post")
	case msg.IsInitialize():
		sid = uuid.NewString()
		child, err := childproc.Spawn(a.command)
		if err != nil {
			transport.WriteJSONRPCError(w, http.StatusInternalServerError, rpc.CodeInternalError, "failed to start child")
			return
		}
		s = newStatefulSession(sid, child)
		a.mu.Lock()
		a.sessions[sid] = s
		a.mu.Unlock()
		metrics.ActiveSessions.WithLabelValues(a.cfg.Binding).Inc()
		a.refs.Inc(sid, "post-init")
		w.Header().Set(sessionIDHeader, sid)
		go a.watchChild(sid, s)
	default:
		transport.WriteJSONRPCError(w, http.StatusBadRequest, rpc.CodeInvalidRequest, "Bad Request: No valid session ID provided")
		return
	}
	defer a.refs.Dec(sid, "post-done")

	a.deliver(w, r.Context(), s, msg)
}

// watchChild tears the session down if its child exits on its own, the
// equivalent of the transport's onerror/onclose firing from underneath us.
func (a *StatefulAdapter) watchChild(id string, s *statefulSession) {
	select {
	case <-s.child.Done():
		a.terminate(id, "child-exited")
	case <-s.closed:
	}
}

func (a *StatefulAdapter) deliver(w http.ResponseWriter, ctx context.Context, s *statefulSession, msg rpc.Message) {
	if !msg.IsRequest() {
		if err := s.child.WriteLine(msg); err != nil {
			metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "write-error").Inc()
			transport.WriteJSONRPCError(w, http.StatusInternalServerError, rpc.CodeInternalError, "failed to deliver message to child")
			return
		}
		metrics.FramesForwarded.WithLabelValues(a.cfg.Binding, "network->child").Inc()
		w.WriteHeader(http.StatusAccepted)
		return
	}

	ch := s.await(msg.ID)
	if err := s.child.WriteLine(msg); err != nil {
		s.cancelAwait(msg.ID)
		metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "write-error").Inc()
		transport.WriteJSONRPCError(w, http.StatusInternalServerError, rpc.CodeInternalError, "failed to deliver message to child")
		return
	}
	metrics.FramesForwarded.WithLabelValues(a.cfg.Binding, "network->child").Inc()

	select {
	case resp := <-ch:
		w.Header().Set("Content-Type", "application/json")
		b, err := rpc.Encode(resp)
		if err != nil {
			transport.WriteJSONRPCError(w, http.StatusInternalServerError, rpc.CodeInternalError, "failed to encode response")
			return
		}
		metrics.FramesForwarded.WithLabelValues(a.cfg.Binding, "child->network").Inc()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	case <-s.closed:
		metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "session-closed").Inc()
		transport.WriteJSONRPCError(w, http.StatusInternalServerError, rpc.CodeInternalError, "session closed")
	case <-ctx.Done():
		s.cancelAwait(msg.ID)
	}
}

// HandleGET implements the hanging GET: it requires the session header and
// streams every message the session's child writes that isn't claimed by a
// pending POST as server-sent events until the client disconnects.
func (a *StatefulAdapter) HandleGET(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(sessionIDHeader)
	if sid == "" {
		transport.WritePlainError(w, http.StatusBadRequest, "Invalid or missing session ID")
		return
	}
	s, ok := a.lookup(sid)
	if !ok {
		transport.WritePlainError(w, http.StatusBadRequest, "Invalid or missing session ID")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	a.refs.Inc(sid, "get")
	defer a.refs.Dec(sid, "get-done")

	sink := s.attachGET()
	defer s.detachGET()

	transport.InjectHeaders(w, a.cfg)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case msg := <-sink:
			b, err := rpc.Encode(msg)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("event: message\ndata: " + string(b) + "\n\n")); err != nil {
				metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "write-error").Inc()
				return
			}
			metrics.FramesForwarded.WithLabelValues(a.cfg.Binding, "child->network").Inc()
			flusher.Flush()
		case <-s.closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// HandleDELETE implements session termination: the header is required, and
// a valid session is torn down immediately rather than waiting on its idle
// timer.
func (a *StatefulAdapter) HandleDELETE(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(sessionIDHeader)
	if sid == "" {
		transport.WritePlainError(w, http.StatusBadRequest, "Invalid or missing session ID")
		return
	}
	if _, ok := a.lookup(sid); !ok {
		transport.WritePlainError(w, http.StatusBadRequest, "Invalid or missing session ID")
		return
	}
	a.terminate(sid, "delete")
	w.WriteHeader(http.StatusOK)
}

// ServeHTTP dispatches the single Streamable-HTTP endpoint by method.
func (a *StatefulAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.HandlePOST(w, r)
	case http.MethodGet:
		a.HandleGET(w, r)
	case http.MethodDelete:
		a.HandleDELETE(w, r)
	default:
		transport.WriteJSONRPCError(w, http.StatusMethodNotAllowed, rpc.CodeInvalidRequest, "Method not allowed.")
	}
}

// SessionCount reports the number of live sessions, for metrics/tests.
func (a *StatefulAdapter) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}
