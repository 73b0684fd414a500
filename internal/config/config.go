// Package config parses and validates the bridge's command-line surface.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Options holds every flag value exactly as the user supplied it, before
// validation or mode resolution.
type Options struct {
	Stdio             []string
	SSE               string
	StreamableHTTP    string
	MultiServerConfig string

	OutputTransport string
	Port            int
	BaseURL         string

	SSEPath            string
	MessagePath        string
	StreamableHTTPPath string

	LogLevel string

	CORS            []string
	HealthEndpoints []string
	Headers         []string

	OAuth2Bearer string

	Stateful       bool
	SessionTimeout int

	ProtocolVersion string
}

// BindFlags registers every flag from the table this bridge accepts onto
// the default flag.CommandLine, storing into o. Call flag.Parse after.
func (o *Options) BindFlags() {
	flag.Var(newRepeated(&o.Stdio), "stdio", `forward-mode child command, "name=command" for multi-binding; repeatable`)
	flag.StringVar(&o.SSE, "sse", "", "reverse SSE->stdio mode: remote MCP server URL")
	flag.StringVar(&o.StreamableHTTP, "streamableHttp", "", "reverse Streamable-HTTP->stdio mode: remote MCP server URL")
	flag.StringVar(&o.MultiServerConfig, "multiServerConfig", "", "path to a multi-server JSON config file")

	flag.StringVar(&o.OutputTransport, "outputTransport", "", "stdio|sse|ws|streamableHttp")
	flag.IntVar(&o.Port, "port", 8000, "listen port")
	flag.StringVar(&o.BaseURL, "baseUrl", "", "absolute base URL advertised over SSE")

	flag.StringVar(&o.SSEPath, "ssePath", "/sse", "SSE subscribe path")
	flag.StringVar(&o.MessagePath, "messagePath", "/message", "SSE/WS message path")
	flag.StringVar(&o.StreamableHTTPPath, "streamableHttpPath", "/mcp", "Streamable-HTTP path")

	flag.StringVar(&o.LogLevel, "logLevel", "info", "debug|info|none")

	flag.Var(newRepeated(&o.CORS), "cors", `allowed origin, "/regex/" for a pattern match, "" or "*" for allow-all; repeatable, omit to disable CORS`)
	flag.Var(newRepeated(&o.HealthEndpoints), "healthEndpoint", "path that responds 200 ok when healthy; repeatable")
	flag.Var(newRepeated(&o.Headers), "header", `"Key: Value" injected on outbound traffic; repeatable`)

	flag.StringVar(&o.OAuth2Bearer, "oauth2Bearer", "", "bearer token added as Authorization header")

	flag.BoolVar(&o.Stateful, "stateful", false, "use the stateful Streamable-HTTP adapter")
	flag.IntVar(&o.SessionTimeout, "sessionTimeout", 30*60*1000, "idle timeout for stateful sessions, in milliseconds")

	flag.StringVar(&o.ProtocolVersion, "protocolVersion", "2024-11-05", "protocol version used in stateless auto-initialize")
}

// Binding is one stdio child bound to a network path.
type Binding struct {
	Name    string
	Command string
}

// MultiServerEntry is one entry of a multi-server config file.
type MultiServerEntry struct {
	Path  string `json:"path"`
	Stdio string `json:"stdio"`
}

type multiServerFile struct {
	Servers []MultiServerEntry `json:"servers"`
}

// Mode identifies the bridging direction chosen by the active input;
// --stdio and --multiServerConfig both resolve to ModeForwardStdio.
type Mode int

const (
	ModeForwardStdio Mode = iota
	ModeReverseSSE
	ModeReverseStreamableHTTP
)

// Resolved is the validated, mode-resolved configuration the bridge
// orchestrator consumes.
type Resolved struct {
	Mode Mode

	Bindings []Binding // forward mode, always at least one entry
	RemoteURL string   // reverse mode

	OutputTransport string
	Port            int
	BaseURL         string

	SSEPath            string
	MessagePath        string
	StreamableHTTPPath string

	LogLevel string

	CORS            []string
	HealthEndpoints []string
	Headers         http.Header

	OAuth2Bearer string

	Stateful       bool
	SessionTimeout time.Duration

	ProtocolVersion string
}

// Resolve validates o and builds a Resolved configuration, or returns an
// error describing the first validation failure found.
func (o *Options) Resolve() (*Resolved, error) {
	active := 0
	if len(o.Stdio) > 0 {
		active++
	}
	if o.SSE != "" {
		active++
	}
	if o.StreamableHTTP != "" {
		active++
	}
	if o.MultiServerConfig != "" {
		active++
	}
	if active != 1 {
		return nil, fmt.Errorf("exactly one of --stdio, --sse, --streamableHttp, --multiServerConfig must be set")
	}

	r := &Resolved{
		Port:               o.Port,
		BaseURL:            o.BaseURL,
		SSEPath:            o.SSEPath,
		MessagePath:        o.MessagePath,
		StreamableHTTPPath: o.StreamableHTTPPath,
		LogLevel:           o.LogLevel,
		CORS:               o.CORS,
		HealthEndpoints:    o.HealthEndpoints,
		OAuth2Bearer:       o.OAuth2Bearer,
		Stateful:           o.Stateful,
		SessionTimeout:     time.Duration(o.SessionTimeout) * time.Millisecond,
		ProtocolVersion:    o.ProtocolVersion,
	}

	headers, err := parseHeaders(o.Headers)
	if err != nil {
		return nil, err
	}
	if o.OAuth2Bearer != "" {
		headers.Set("Authorization", "Bearer "+o.OAuth2Bearer)
	}
	r.Headers = headers

	switch {
	case len(o.Stdio) > 0:
		r.Mode = ModeForwardStdio
		bindings, err := resolveStdioBindings(o.Stdio)
		if err != nil {
			return nil, err
		}
		r.Bindings = bindings
		r.OutputTransport = o.OutputTransport
		if r.OutputTransport == "" {
			r.OutputTransport = "sse"
		}
	case o.MultiServerConfig != "":
		r.Mode = ModeForwardStdio
		bindings, err := loadMultiServerConfig(o.MultiServerConfig)
		if err != nil {
			return nil, err
		}
		r.Bindings = bindings
		r.OutputTransport = o.OutputTransport
		if r.OutputTransport == "" {
			r.OutputTransport = "sse"
		}
	case o.SSE != "":
		r.Mode = ModeReverseSSE
		r.RemoteURL = o.SSE
		r.OutputTransport = "stdio"
	case o.StreamableHTTP != "":
		r.Mode = ModeReverseStreamableHTTP
		r.RemoteURL = o.StreamableHTTP
		r.OutputTransport = "stdio"
	}

	if o.Stateful {
		if r.OutputTransport != "streamableHttp" {
			return nil, fmt.Errorf("--stateful is only valid with --outputTransport streamableHttp")
		}
	}
	if r.OutputTransport == "ws" && len(r.Bindings) > 1 && o.Stateful {
		return nil, fmt.Errorf("--stateful is rejected for multi-server WebSocket output")
	}
	if o.SessionTimeout <= 0 {
		return nil, fmt.Errorf("--sessionTimeout must be > 0")
	}

	return r, nil
}

func resolveStdioBindings(values []string) ([]Binding, error) {
	allNamed := true
	for _, v := range values {
		if !strings.Contains(v, "=") {
			allNamed = false
			break
		}
	}
	if allNamed {
		bindings := make([]Binding, 0, len(values))
		for _, v := range values {
			parts := strings.SplitN(v, "=", 2)
			bindings = append(bindings, Binding{Name: parts[0], Command: parts[1]})
		}
		return bindings, nil
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("multiple --stdio values require a \"name=command\" prefix on every one")
	}
	return []Binding{{Command: values[0]}}, nil
}

func loadMultiServerConfig(path string) ([]Binding, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read multi-server config: %w", err)
	}
	var f multiServerFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse multi-server config: %w", err)
	}
	if len(f.Servers) == 0 {
		return nil, fmt.Errorf("multi-server config: servers must not be empty")
	}
	bindings := make([]Binding, 0, len(f.Servers))
	for i, s := range f.Servers {
		if s.Path == "" || s.Stdio == "" {
			return nil, fmt.Errorf("multi-server config: entry %d requires non-empty path and stdio", i)
		}
		path := s.Path
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		bindings = append(bindings, Binding{Name: path, Command: s.Stdio})
	}
	return bindings, nil
}

func parseHeaders(raw []string) (http.Header, error) {
	h := http.Header{}
	for _, line := range raw {
		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, fmt.Errorf(`--header %q: expected "Key: Value"`, line)
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			return nil, fmt.Errorf(`--header %q: empty key`, line)
		}
		h.Add(key, val)
	}
	return h, nil
}

// repeated is a flag.Value that appends every Set call's argument instead
// of overwriting, for flags the table marks "(repeatable)".
type repeated struct{ dst *[]string }

func newRepeated(dst *[]string) *repeated { return &repeated{dst: dst} }

func (r *repeated) String() string {
	if r.dst == nil {
		return ""
	}
	return strings.Join(*r.dst, ",")
}

func (r *repeated) Set(v string) error {
	*r.dst = append(*r.dst, v)
	return nil
}
