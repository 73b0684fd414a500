package wsadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/netbridge/mcpgate/internal/childproc"
	"github.com/netbridge/mcpgate/internal/transport"
)

func TestWSEchoesThroughChild(t *testing.T) {
	child, err := childproc.Spawn("cat")
	require.NoError(t, err)
	defer func() { _ = child.Kill() }()

	a := New(transport.Config{}, child)
	go a.Run()

	srv := httptest.NewServer(nil)
	srv.Config.Handler = http.HandlerFunc(a.HandleWS)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Contains(t, string(data), `"method":"ping"`)
}

func TestWSClientCountTracksConnections(t *testing.T) {
	child, err := childproc.Spawn("cat")
	require.NoError(t, err)
	defer func() { _ = child.Kill() }()

	a := New(transport.Config{}, child)
	go a.Run()

	srv := httptest.NewServer(nil)
	srv.Config.Handler = http.HandlerFunc(a.HandleWS)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return a.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	_ = conn.Close(websocket.StatusNormalClosure, "done")
	require.Eventually(t, func() bool { return a.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}
