package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netbridge/mcpgate/internal/serverstate"
)

func TestHealthHandlerReflectsServerstate(t *testing.T) {
	serverstate.SetState("not_ready")
	r := New([]string{"/healthz"}, nil)

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	_ = resp.Body.Close()

	serverstate.SetState("ready")
	resp2, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	_ = resp2.Body.Close()
}

func TestCorsMiddlewareAllowAllWhenEmptyPattern(t *testing.T) {
	mw := corsMiddleware([]string{""})
	require.NotNil(t, mw)
}

func TestCorsMiddlewareNilWhenNoPatterns(t *testing.T) {
	require.Nil(t, corsMiddleware(nil))
}

func TestCorsMiddlewareRegexOrigin(t *testing.T) {
	r := New(nil, []string{`/^https:\/\/.*\.example\.com$/`})
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ping", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://foo.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "https://foo.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
