// Package reverse implements the two reverse adapters: they dial out to a
// remote MCP server over SSE or Streamable-HTTP using an mcp-go client
// transport, and expose a local stdio transport to whatever spawned this
// process. Only stdio is supported as the local-facing side.
package reverse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/netbridge/mcpgate/internal/framer"
	"github.com/netbridge/mcpgate/internal/logx"
	"github.com/netbridge/mcpgate/internal/rpc"
)

// Adapter dials a remote MCP server and bridges it to the local stdio pair.
type Adapter struct {
	t mcpclient.Interface

	out sync.Mutex
}

// NewSSE dials url using the SSE client transport, injecting headers on the
// outbound handshake.
func NewSSE(url string, headers map[string]string) (*Adapter, error) {
	var opts []mcpclient.ClientOption
	if len(headers) > 0 {
		opts = append(opts, mcpclient.WithHeaders(headers))
	}
	t, err := mcpclient.NewSSE(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect sse %q: %w", url, err)
	}
	return &Adapter{t: t}, nil
}

// NewStreamableHTTP dials url using the Streamable-HTTP client transport,
// injecting headers on the outbound handshake.
func NewStreamableHTTP(url string, headers map[string]string) (*Adapter, error) {
	var opts []mcpclient.StreamableHTTPCOption
	if len(headers) > 0 {
		opts = append(opts, mcpclient.WithHTTPHeaders(headers))
	}
	t, err := mcpclient.NewStreamableHTTP(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect streamable http %q: %w", url, err)
	}
	return &Adapter{t: t}, nil
}

// Run starts the remote transport, wires its notifications onto stdout, and
// reads framed JSON-RPC lines from stdin until EOF or ctx is done.
func (a *Adapter) Run(ctx context.Context) error {
	a.t.SetNotificationHandler(func(n mcp.JSONRPCNotification) {
		b, err := json.Marshal(n)
		if err != nil {
			return
		}
		a.writeStdout(b)
	})
	if err := a.t.Start(ctx); err != nil {
		return fmt.Errorf("start remote transport: %w", err)
	}
	defer func() { _ = a.t.Close() }()

	br := bufio.NewReader(os.Stdin)
	f := framer.New()
	buf := make([]byte, 4096)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			for _, line := range f.Feed(buf[:n]) {
				msg, perr := rpc.Parse([]byte(line))
				if perr != nil {
					logx.Log.Warn().Err(perr).Msg("reverse: dropping non-JSON line from stdin")
					continue
				}
				go a.forward(ctx, msg)
			}
		}
		if err != nil {
			return nil
		}
	}
}

func (a *Adapter) forward(ctx context.Context, msg rpc.Message) {
	switch {
	case msg.IsRequest():
		req := mcpclient.JSONRPCRequest{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      mcp.NewRequestId(decodeID(msg.ID)),
			Method:  msg.Method,
			Params:  msg.Params,
		}
		resp, err := a.t.SendRequest(ctx, req)
		if err != nil {
			b, _ := json.Marshal(rpc.NewError(msg.ID, rpc.CodeInternalError, err.Error()))
			a.writeStdout(b)
			return
		}
		b, err := json.Marshal(resp)
		if err != nil {
			return
		}
		a.writeStdout(b)
	case msg.IsNotification():
		n := mcp.JSONRPCNotification{
			JSONRPC:      mcp.JSONRPC_VERSION,
			Notification: mcp.Notification{Method: msg.Method},
		}
		_ = a.t.SendNotification(ctx, n)
	}
}

func (a *Adapter) writeStdout(b []byte) {
	a.out.Lock()
	defer a.out.Unlock()
	_, _ = os.Stdout.Write(append(b, '\n'))
}

// decodeID recovers the Go value a JSON-RPC id encodes, since mcp.NewRequestId
// wants the scalar, not the raw bytes this bridge otherwise treats opaquely.
func decodeID(raw json.RawMessage) any {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
