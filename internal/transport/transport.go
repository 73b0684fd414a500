// Package transport holds configuration and small helpers shared by the
// per-mode transport adapters (sse, streamhttp, wsadapter, reverse).
package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/netbridge/mcpgate/internal/rpc"
)

// Config carries the network-facing settings common to every forward-mode
// adapter. Each adapter reads only the fields relevant to its mode.
type Config struct {
	// Binding labels every metric this adapter reports with the binding
	// it belongs to ("default" when the binding has no --stdio name).
	Binding string

	SSEPath            string
	MessagePath        string
	StreamableHTTPPath string

	BaseURL string

	// Headers (from --header) are added by InjectHeaders to the SSE
	// subscribe response, to every Streamable-HTTP POST response, and to
	// the stateful GET stream once it opens. SSE message POSTs, DELETE,
	// 405 and GET error responses, and WebSocket upgrades are sent
	// without them.
	Headers http.Header

	ProtocolVersion string
	ClientName      string
	ClientVersion   string

	SessionTimeout time.Duration
}

// InjectHeaders writes the configured extra headers onto w.
func InjectHeaders(w http.ResponseWriter, cfg Config) {
	for k, values := range cfg.Headers {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
}

// WriteJSONRPCError writes a JSON-RPC error envelope with the given HTTP
// status. It is the Streamable-HTTP half of §7's "never both plain-text and
// JSON-RPC" rule.
func WriteJSONRPCError(w http.ResponseWriter, status int, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	msg := rpc.NewError(nil, code, message)
	b, _ := json.Marshal(msg)
	_, _ = w.Write(b)
}

// WritePlainError writes the SSE half of §7's error rule: a bare plain-text
// body, never a JSON-RPC envelope.
func WritePlainError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(reason))
}
