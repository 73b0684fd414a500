package childproc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netbridge/mcpgate/internal/rpc"
)

func TestSpawnEchoesStdinToStdout(t *testing.T) {
	c, err := Spawn("cat")
	require.NoError(t, err)
	defer c.Kill()

	msg := rpc.Message{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "ping"}
	require.NoError(t, c.WriteLine(msg))

	select {
	case got := <-c.Lines():
		require.Equal(t, "ping", got.Method)
		require.True(t, rpc.IDEquals(msg.ID, got.ID))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed line")
	}
}

func TestSpawnDropsNonJSONLines(t *testing.T) {
	c, err := Spawn(`printf 'not json\n{"jsonrpc":"2.0","id":1,"method":"tools/list"}\n'`)
	require.NoError(t, err)
	defer c.Kill()

	select {
	case got, ok := <-c.Lines():
		require.True(t, ok)
		require.Equal(t, "tools/list", got.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the valid line")
	}
}

func TestDoneReportsExitStatus(t *testing.T) {
	c, err := Spawn("exit 3")
	require.NoError(t, err)

	select {
	case status := <-c.Done():
		require.Equal(t, 3, status.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exit status")
	}
}
