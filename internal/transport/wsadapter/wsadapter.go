// Package wsadapter implements the stdio⇄WebSocket transport adapter: one
// socket per connected client, broadcasting every line the child writes to
// all of them and writing every inbound frame that parses as JSON to the
// child's stdin (other frames are dropped).
package wsadapter

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/netbridge/mcpgate/internal/childproc"
	"github.com/netbridge/mcpgate/internal/logx"
	"github.com/netbridge/mcpgate/internal/metrics"
	"github.com/netbridge/mcpgate/internal/rpc"
	"github.com/netbridge/mcpgate/internal/transport"
)

// Adapter is the per-binding WebSocket transport state.
type Adapter struct {
	cfg   transport.Config
	child *childproc.Child

	mu      sync.Mutex
	clients map[string]*websocket.Conn
}

// New constructs an Adapter for child. Callers must also start Run in a
// goroutine to pump the child's stdout to every connected client.
func New(cfg transport.Config, child *childproc.Child) *Adapter {
	return &Adapter{cfg: cfg, child: child, clients: map[string]*websocket.Conn{}}
}

// Run fans out every message the child writes to stdout to every connected
// client. It returns when the child's stdout closes.
func (a *Adapter) Run() {
	for msg := range a.child.Lines() {
		a.broadcast(msg)
	}
}

func (a *Adapter) broadcast(msg rpc.Message) {
	b, err := rpc.Encode(msg)
	if err != nil {
		logx.Log.Error().Err(err).Msg("wsadapter: failed to encode message from child")
		return
	}
	a.mu.Lock()
	conns := make(map[string]*websocket.Conn, len(a.clients))
	for id, c := range a.clients {
		conns[id] = c
	}
	a.mu.Unlock()

	ctx := context.Background()
	for id, c := range conns {
		if err := c.Write(ctx, websocket.MessageText, b); err != nil {
			metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "write-error").Inc()
			a.remove(id)
			continue
		}
		metrics.FramesForwarded.WithLabelValues(a.cfg.Binding, "child->network").Inc()
	}
}

// HandleWS upgrades the request and runs the connection's read loop until
// the client disconnects.
func (a *Adapter) HandleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	id := uuid.NewString()
	a.mu.Lock()
	a.clients[id] = c
	a.mu.Unlock()
	metrics.ActiveSessions.WithLabelValues(a.cfg.Binding).Inc()
	defer a.remove(id)

	ctx := r.Context()
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		msg, perr := rpc.Parse(data)
		if perr != nil {
			metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "parse-error").Inc()
			logx.Log.Warn().Err(perr).Msg("wsadapter: dropping non-JSON frame from client")
			continue
		}
		if err := a.child.WriteLine(msg); err != nil {
			metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "write-error").Inc()
			return
		}
		metrics.FramesForwarded.WithLabelValues(a.cfg.Binding, "network->child").Inc()
	}
}

func (a *Adapter) remove(id string) {
	a.mu.Lock()
	c, ok := a.clients[id]
	if ok {
		delete(a.clients, id)
	}
	a.mu.Unlock()
	if ok {
		metrics.ActiveSessions.WithLabelValues(a.cfg.Binding).Dec()
		_ = c.Close(websocket.StatusNormalClosure, "closing")
	}
}

// ClientCount reports the number of connected clients, for metrics/tests.
func (a *Adapter) ClientCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.clients)
}
