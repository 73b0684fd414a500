// Package bridge wires one resolved configuration into running transport
// adapters: the Bridge Orchestrator named in the design.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/netbridge/mcpgate/internal/childproc"
	"github.com/netbridge/mcpgate/internal/config"
	"github.com/netbridge/mcpgate/internal/httpserver"
	"github.com/netbridge/mcpgate/internal/logx"
	"github.com/netbridge/mcpgate/internal/metrics"
	"github.com/netbridge/mcpgate/internal/router"
	"github.com/netbridge/mcpgate/internal/serverstate"
	"github.com/netbridge/mcpgate/internal/transport"
	"github.com/netbridge/mcpgate/internal/transport/reverse"
	"github.com/netbridge/mcpgate/internal/transport/sse"
	"github.com/netbridge/mcpgate/internal/transport/streamhttp"
	"github.com/netbridge/mcpgate/internal/transport/wsadapter"
)

// Bridge owns every child process and transport adapter for one resolved
// configuration, and the HTTP handler (if any) that serves them.
type Bridge struct {
	cfg     *config.Resolved
	Handler http.Handler

	children []*childproc.Child
	stopping atomic.Bool
}

// New constructs and wires a Bridge. For forward modes it also starts one
// Child per binding immediately (1:1 lifetime), except stateful/stateless
// Streamable-HTTP, which spawn theirs per session/POST.
func New(cfg *config.Resolved) (*Bridge, error) {
	b := &Bridge{cfg: cfg}

	switch cfg.Mode {
	case config.ModeForwardStdio:
		if err := b.setupForward(); err != nil {
			return nil, err
		}
	case config.ModeReverseSSE, config.ModeReverseStreamableHTTP:
		// Reverse modes have no HTTP surface; Run drives them directly.
	}

	return b, nil
}

func (b *Bridge) tcfg() transport.Config {
	return transport.Config{
		SSEPath:            b.cfg.SSEPath,
		MessagePath:        b.cfg.MessagePath,
		StreamableHTTPPath: b.cfg.StreamableHTTPPath,
		BaseURL:            b.cfg.BaseURL,
		Headers:            b.cfg.Headers,
		ProtocolVersion:    b.cfg.ProtocolVersion,
		ClientVersion:      "dev",
		SessionTimeout:     b.cfg.SessionTimeout,
	}
}

func (b *Bridge) setupForward() error {
	mux := httpserver.New(b.cfg.HealthEndpoints, b.cfg.CORS)
	b.Handler = mux

	suffix := suffixForTransport(b.cfg.OutputTransport, b.cfg)

	identity := func(p string) string { return p }
	var accepted []*router.Binding
	for _, binding := range b.cfg.Bindings {
		prefix := "/"
		if binding.Name != "" {
			prefix = binding.Name
			if prefix[0] != '/' {
				prefix = "/" + prefix
			}
		}
		path := router.Normalize(prefix, suffix)

		table := router.New(accepted, identity)
		if existing, ok := table.Lookup(path); ok {
			return fmt.Errorf("bindings %q and %q both resolve to path %q", existing.Command, binding.Command, path)
		}
		accepted = append(accepted, &router.Binding{Prefix: path, Command: binding.Command})

		if err := b.mountBinding(mux, prefix, path, binding); err != nil {
			return err
		}
	}
	return nil
}

func suffixForTransport(outputTransport string, cfg *config.Resolved) string {
	switch outputTransport {
	case "sse":
		return cfg.SSEPath
	case "ws":
		return cfg.MessagePath
	case "streamableHttp":
		return cfg.StreamableHTTPPath
	default:
		return cfg.SSEPath
	}
}

func (b *Bridge) mountBinding(mux interface {
	Get(string, http.HandlerFunc)
	Post(string, http.HandlerFunc)
	Handle(string, http.Handler)
}, prefix, path string, binding config.Binding) error {
	tcfg := b.tcfg()
	tcfg.BaseURL = b.cfg.BaseURL
	tcfg.Binding = bindingLabel(binding)

	switch b.cfg.OutputTransport {
	case "sse":
		child, err := childproc.Spawn(binding.Command)
		if err != nil {
			return fmt.Errorf("spawn %q: %w", binding.Command, err)
		}
		b.children = append(b.children, child)
		metrics.ChildrenSpawned.WithLabelValues(bindingLabel(binding)).Inc()
		go b.watchSSEChild(binding, child)

		messagePath := router.Normalize(prefix, b.cfg.MessagePath)
		tcfg.MessagePath = messagePath
		a := sse.New(tcfg, child)
		go a.Run()
		mux.Get(path, a.HandleSSE)
		mux.Post(messagePath, a.HandleMessage)

	case "ws":
		child, err := childproc.Spawn(binding.Command)
		if err != nil {
			return fmt.Errorf("spawn %q: %w", binding.Command, err)
		}
		b.children = append(b.children, child)
		metrics.ChildrenSpawned.WithLabelValues(bindingLabel(binding)).Inc()
		go b.watchWSChild(binding, child)

		a := wsadapter.New(tcfg, child)
		go a.Run()
		mux.Handle(path, http.HandlerFunc(a.HandleWS))

	case "streamableHttp":
		if b.cfg.Stateful {
			a := streamhttp.NewStateful(tcfg, binding.Command)
			mux.Handle(path, a)
		} else {
			a := streamhttp.NewStateless(tcfg, binding.Command)
			mux.Handle(path, a)
		}

	default:
		return fmt.Errorf("unsupported output transport %q", b.cfg.OutputTransport)
	}

	serverstate.SetState("ready")
	return nil
}

func bindingLabel(b config.Binding) string {
	if b.Name != "" {
		return b.Name
	}
	return "default"
}

// watchSSEChild implements the SSE 1:1 mode's deliberate "the bridge process
// terminates with the child's exit code" behavior: every SSE session of the
// binding is served by this one child, so there is nothing left for the
// bridge to serve once its child is gone.
func (b *Bridge) watchSSEChild(binding config.Binding, child *childproc.Child) {
	status := <-child.Done()
	if b.stopping.Load() {
		// Our own Shutdown killed this child; the process is already on
		// its way down through the normal path.
		return
	}
	clean := status.Code == 0 && status.Signal == ""
	metrics.ChildrenExited.WithLabelValues(bindingLabel(binding), boolLabel(clean)).Inc()
	if clean {
		os.Exit(0)
	}
	logx.Log.Error().Str("binding", bindingLabel(binding)).Int("code", status.Code).Str("signal", status.Signal).Msg("sse child exited, terminating process")
	os.Exit(status.Code)
}

// watchWSChild records a child's unexpected death in serverstate so the
// health endpoints reflect it, without killing the process: a WebSocket
// binding can outlive any one child and just logs and marks itself
// unhealthy instead.
func (b *Bridge) watchWSChild(binding config.Binding, child *childproc.Child) {
	status := <-child.Done()
	if b.stopping.Load() {
		return
	}
	clean := status.Code == 0 && status.Signal == ""
	metrics.ChildrenExited.WithLabelValues(bindingLabel(binding), boolLabel(clean)).Inc()
	if !clean {
		logx.Log.Error().Str("binding", bindingLabel(binding)).Int("code", status.Code).Str("signal", status.Signal).Msg("child exited unexpectedly")
		serverstate.MarkChildDied()
	}
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// Run starts a reverse-mode bridge; it blocks until ctx is done or the
// remote connection fails. Forward modes don't call Run: the caller drives
// http.Server directly against Handler.
func (b *Bridge) Run(ctx context.Context) error {
	var headers map[string]string
	if len(b.cfg.Headers) > 0 {
		headers = map[string]string{}
		for k := range b.cfg.Headers {
			headers[k] = b.cfg.Headers.Get(k)
		}
	}

	var adapter *reverse.Adapter
	var err error
	switch b.cfg.Mode {
	case config.ModeReverseSSE:
		adapter, err = reverse.NewSSE(b.cfg.RemoteURL, headers)
	case config.ModeReverseStreamableHTTP:
		adapter, err = reverse.NewStreamableHTTP(b.cfg.RemoteURL, headers)
	default:
		return fmt.Errorf("Run is only valid for reverse modes")
	}
	if err != nil {
		return err
	}
	serverstate.SetState("ready")
	return adapter.Run(ctx)
}

// Shutdown kills every child this bridge spawned at startup. It marks the
// bridge as stopping first, so watchSSEChild doesn't mistake a deliberate
// kill for the child dying on its own and call os.Exit during an already
// orderly shutdown.
func (b *Bridge) Shutdown() {
	b.stopping.Store(true)
	for _, c := range b.children {
		_ = c.Kill()
	}
}
