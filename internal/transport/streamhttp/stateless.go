package streamhttp

import (
	"io"
	"net/http"

	"github.com/netbridge/mcpgate/internal/childproc"
	"github.com/netbridge/mcpgate/internal/metrics"
	"github.com/netbridge/mcpgate/internal/rpc"
	"github.com/netbridge/mcpgate/internal/transport"
)

// StatelessAdapter spawns a fresh child for every POST, isolating request
// id spaces across concurrent clients, and interposes an initialize
// handshake when the client's first message in a POST isn't one.
type StatelessAdapter struct {
	cfg     transport.Config
	command string
}

// NewStateless constructs a StatelessAdapter. command is the shell command
// used to spawn a fresh child for every POST.
func NewStateless(cfg transport.Config, command string) *StatelessAdapter {
	return &StatelessAdapter{cfg: cfg, command: command}
}

// ServeHTTP dispatches the single Streamable-HTTP endpoint by method. GET
// and DELETE are not meaningful in stateless mode, since nothing survives
// past the POST that produced it.
func (a *StatelessAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		transport.WriteJSONRPCError(w, http.StatusMethodNotAllowed, rpc.CodeInvalidRequest, "Method not allowed.")
		return
	}
	a.handlePOST(w, r)
}

func (a *StatelessAdapter) handlePOST(w http.ResponseWriter, r *http.Request) {
	transport.InjectHeaders(w, a.cfg)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		transport.WriteJSONRPCError(w, http.StatusBadRequest, rpc.CodeInvalidRequest, "Bad Request: failed to read body")
		return
	}
	msg, err := rpc.Parse(body)
	if err != nil {
		transport.WriteJSONRPCError(w, http.StatusBadRequest, rpc.CodeInvalidRequest, "Bad Request: No valid session ID provided")
		return
	}

	child, err := childproc.Spawn(a.command)
	if err != nil {
		transport.WriteJSONRPCError(w, http.StatusInternalServerError, rpc.CodeInternalError, "Internal server error")
		return
	}
	defer func() { _ = child.Kill() }()

	ip := newInterposer(a.cfg.ProtocolVersion, a.cfg.ClientVersion)

	for _, out := range ip.outbound(msg) {
		if err := child.WriteLine(out); err != nil {
			metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "write-error").Inc()
			transport.WriteJSONRPCError(w, http.StatusInternalServerError, rpc.CodeInternalError, "Internal server error")
			return
		}
		metrics.FramesForwarded.WithLabelValues(a.cfg.Binding, "network->child").Inc()
	}

	if msg.IsNotification() && !ip.isAutoInitializing {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	a.pumpResponse(w, r, child, ip, msg)
}

// pumpResponse drives the child's stdout through the interposer until the
// message corresponding to the client's original request surfaces, then
// writes it as the POST's response body. Everything the interposer
// suppresses or redirects along the way never reaches the network.
func (a *StatelessAdapter) pumpResponse(w http.ResponseWriter, r *http.Request, child *childproc.Child, ip *interposer, orig rpc.Message) {
	for {
		select {
		case out, ok := <-child.Lines():
			if !ok {
				metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "child-closed").Inc()
				transport.WriteJSONRPCError(w, http.StatusInternalServerError, rpc.CodeInternalError, "Internal server error")
				return
			}
			forward, extra := ip.inbound(out)
			for _, e := range extra {
				if err := child.WriteLine(e); err != nil {
					metrics.FramesDropped.WithLabelValues(a.cfg.Binding, "write-error").Inc()
					transport.WriteJSONRPCError(w, http.StatusInternalServerError, rpc.CodeInternalError, "Internal server error")
					return
				}
				metrics.FramesForwarded.WithLabelValues(a.cfg.Binding, "network->child").Inc()
			}
			if !forward {
				continue
			}
			if !rpc.IDEquals(out.ID, orig.ID) {
				continue
			}
			metrics.FramesForwarded.WithLabelValues(a.cfg.Binding, "child->network").Inc()
			writeJSON(w, out)
			return
		case <-child.Done():
			transport.WriteJSONRPCError(w, http.StatusInternalServerError, rpc.CodeInternalError, "Internal server error")
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, m rpc.Message) {
	b, err := rpc.Encode(m)
	if err != nil {
		transport.WriteJSONRPCError(w, http.StatusInternalServerError, rpc.CodeInternalError, "Internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
