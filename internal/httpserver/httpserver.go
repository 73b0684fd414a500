// Package httpserver assembles the chi router shared by every forward-mode
// binding: CORS, health endpoints, and metrics, with each binding mounting
// its own transport adapter routes on top.
package httpserver

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netbridge/mcpgate/internal/serverstate"
)

// New builds the router. healthPaths and corsPatterns come straight from
// --healthEndpoint and --cors.
func New(healthPaths []string, corsPatterns []string) *chi.Mux {
	r := chi.NewRouter()
	if mw := corsMiddleware(corsPatterns); mw != nil {
		r.Use(mw)
	}
	for _, p := range healthPaths {
		r.Get(p, healthHandler)
	}
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if !serverstate.Healthy() {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("not ok"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// corsMiddleware builds the CORS handler from --cors patterns. An empty or
// "*" entry means allow-all; a "/regex/"-wrapped entry matches the origin
// against that pattern; anything else matches the origin literally. No
// --cors flags at all means CORS is not mounted.
func corsMiddleware(patterns []string) func(http.Handler) http.Handler {
	if len(patterns) == 0 {
		return nil
	}
	opts := cors.Options{
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*", "Mcp-Session-Id", "Authorization"},
	}
	for _, p := range patterns {
		if p == "" || p == "*" {
			opts.AllowedOrigins = []string{"*"}
			return cors.Handler(opts)
		}
	}
	regexes := make([]*regexp.Regexp, 0, len(patterns))
	literals := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/") && len(p) > 1 {
			if re, err := regexp.Compile(p[1 : len(p)-1]); err == nil {
				regexes = append(regexes, re)
				continue
			}
		}
		literals = append(literals, p)
	}
	opts.AllowOriginFunc = func(r *http.Request, origin string) bool {
		for _, l := range literals {
			if l == origin {
				return true
			}
		}
		for _, re := range regexes {
			if re.MatchString(origin) {
				return true
			}
		}
		return false
	}
	return cors.Handler(opts)
}
