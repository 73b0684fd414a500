package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveRejectsZeroActiveModes(t *testing.T) {
	o := &Options{SessionTimeout: 1000}
	_, err := o.Resolve()
	require.Error(t, err)
}

func TestResolveRejectsMultipleActiveModes(t *testing.T) {
	o := &Options{Stdio: []string{"echo-mcp"}, SSE: "http://example.com/sse", SessionTimeout: 1000}
	_, err := o.Resolve()
	require.Error(t, err)
}

func TestResolveSingleStdioBinding(t *testing.T) {
	o := &Options{Stdio: []string{"echo-mcp"}, SessionTimeout: 1000}
	r, err := o.Resolve()
	require.NoError(t, err)
	require.Len(t, r.Bindings, 1)
	require.Equal(t, "echo-mcp", r.Bindings[0].Command)
	require.Equal(t, "sse", r.OutputTransport)
}

func TestResolveMultiStdioBindingRequiresAllNamed(t *testing.T) {
	o := &Options{Stdio: []string{"git=git-mcp", "docker"}, SessionTimeout: 1000}
	_, err := o.Resolve()
	require.Error(t, err)
}

func TestResolveMultiStdioBinding(t *testing.T) {
	o := &Options{Stdio: []string{"git=git-mcp", "docker=docker-mcp"}, SessionTimeout: 1000}
	r, err := o.Resolve()
	require.NoError(t, err)
	require.Len(t, r.Bindings, 2)
}

func TestResolveStatefulRequiresStreamableHTTP(t *testing.T) {
	o := &Options{Stdio: []string{"echo-mcp"}, Stateful: true, SessionTimeout: 1000}
	_, err := o.Resolve()
	require.Error(t, err)
}

func TestResolveRejectsNonPositiveSessionTimeout(t *testing.T) {
	o := &Options{Stdio: []string{"echo-mcp"}, SessionTimeout: 0}
	_, err := o.Resolve()
	require.Error(t, err)
}

func TestResolveHeaderAndBearer(t *testing.T) {
	o := &Options{Stdio: []string{"echo-mcp"}, Headers: []string{"X-Trace: abc"}, OAuth2Bearer: "tok", SessionTimeout: 1000}
	r, err := o.Resolve()
	require.NoError(t, err)
	require.Equal(t, "abc", r.Headers.Get("X-Trace"))
	require.Equal(t, "Bearer tok", r.Headers.Get("Authorization"))
}

func TestResolveRejectsMalformedHeader(t *testing.T) {
	o := &Options{Stdio: []string{"echo-mcp"}, Headers: []string{"no-colon-here"}, SessionTimeout: 1000}
	_, err := o.Resolve()
	require.Error(t, err)
}

func TestLoadMultiServerConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	doc := map[string]any{
		"servers": []map[string]string{
			{"path": "git", "stdio": "git-mcp"},
			{"path": "/docker", "stdio": "docker-mcp"},
		},
	}
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	o := &Options{MultiServerConfig: path, SessionTimeout: 1000}
	r, err := o.Resolve()
	require.NoError(t, err)
	require.Len(t, r.Bindings, 2)
	require.Equal(t, "/git", r.Bindings[0].Name)
	require.Equal(t, "/docker", r.Bindings[1].Name)
}

func TestLoadMultiServerConfigRejectsEmptyServers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"servers":[]}`), 0o600))

	o := &Options{MultiServerConfig: path, SessionTimeout: 1000}
	_, err := o.Resolve()
	require.Error(t, err)
}

func TestRepeatedFlagAppends(t *testing.T) {
	var dst []string
	r := newRepeated(&dst)
	require.NoError(t, r.Set("a"))
	require.NoError(t, r.Set("b"))
	require.Equal(t, []string{"a", "b"}, dst)
}
