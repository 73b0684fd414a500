// Package metrics defines the Prometheus collectors the bridge exposes on
// /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ChildrenSpawned counts every child process started, labeled by binding.
	ChildrenSpawned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpgate_children_spawned_total",
		Help: "Total number of child MCP server processes spawned.",
	}, []string{"binding"})

	// ChildrenExited counts child process exits, labeled by binding and
	// whether the exit was clean (code zero, no signal).
	ChildrenExited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpgate_children_exited_total",
		Help: "Total number of child MCP server processes that have exited.",
	}, []string{"binding", "clean"})

	// FramesForwarded counts JSON-RPC lines forwarded in each direction.
	FramesForwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpgate_frames_forwarded_total",
		Help: "Total number of JSON-RPC lines forwarded between a network peer and a child.",
	}, []string{"binding", "direction"})

	// FramesDropped counts lines dropped for framing or delivery failures.
	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpgate_frames_dropped_total",
		Help: "Total number of frames dropped due to parse or delivery failure.",
	}, []string{"binding", "reason"})

	// ActiveSessions reports the current number of live network sessions.
	ActiveSessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mcpgate_active_sessions",
		Help: "Current number of active network sessions per binding.",
	}, []string{"binding"})
)

func init() {
	prometheus.MustRegister(ChildrenSpawned, ChildrenExited, FramesForwarded, FramesDropped, ActiveSessions)
}
