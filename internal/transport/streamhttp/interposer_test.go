package streamhttp

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netbridge/mcpgate/internal/rpc"
)

func TestInterposerAutoInitializeSequence(t *testing.T) {
	ip := newInterposer("2024-11-05", "0.0.0")
	original := rpc.Message{JSONRPC: rpc.Version, ID: json.RawMessage("7"), Method: "tools/list"}

	out := ip.outbound(original)
	require.Len(t, out, 1)
	require.True(t, out[0].IsInitialize())
	require.True(t, strings.HasPrefix(string(out[0].ID), `"init_`))
	require.True(t, ip.isAutoInitializing)

	initResp := rpc.Message{JSONRPC: rpc.Version, ID: out[0].ID, Result: json.RawMessage(`{}`)}
	forward, extra := ip.inbound(initResp)
	require.False(t, forward)
	require.Len(t, extra, 2)
	require.Equal(t, rpc.NotificationInit, extra[0].Method)
	require.True(t, rpc.IDEquals(extra[1].ID, original.ID))
	require.True(t, ip.initialized)
	require.False(t, ip.isAutoInitializing)

	finalResp := rpc.Message{JSONRPC: rpc.Version, ID: original.ID, Result: json.RawMessage(`{"tools":[]}`)}
	forward2, extra2 := ip.inbound(finalResp)
	require.True(t, forward2)
	require.Empty(t, extra2)
}

func TestInterposerPassesThroughExplicitInitialize(t *testing.T) {
	ip := newInterposer("2024-11-05", "0.0.0")
	init := rpc.Message{JSONRPC: rpc.Version, ID: json.RawMessage(`"1"`), Method: rpc.MethodInitialize}

	out := ip.outbound(init)
	require.Len(t, out, 1)
	require.Equal(t, init.Method, out[0].Method)
	require.False(t, ip.isAutoInitializing)

	resp := rpc.Message{JSONRPC: rpc.Version, ID: init.ID, Result: json.RawMessage(`{}`)}
	forward, extra := ip.inbound(resp)
	require.True(t, forward)
	require.Empty(t, extra)
	require.True(t, ip.initialized)
}

func TestInterposerIgnoresUnrelatedResponses(t *testing.T) {
	ip := newInterposer("2024-11-05", "0.0.0")
	unrelated := rpc.Message{JSONRPC: rpc.Version, ID: json.RawMessage("99"), Result: json.RawMessage(`{}`)}
	forward, extra := ip.inbound(unrelated)
	require.True(t, forward)
	require.Empty(t, extra)
}
