package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netbridge/mcpgate/internal/bridge"
	"github.com/netbridge/mcpgate/internal/config"
	"github.com/netbridge/mcpgate/internal/logx"
	"github.com/netbridge/mcpgate/internal/secret"
	"github.com/netbridge/mcpgate/internal/serverstate"
)

var (
	version  = "dev"
	buildSHA = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var opts config.Options
	opts.BindFlags()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "mcpgate version=%s sha=%s\n\n", version, buildSHA)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("mcpgate version=%s sha=%s\n", version, buildSHA)
		return
	}

	resolved, err := opts.Resolve()
	if err != nil {
		fmt.Fprintln(os.Stderr, "mcpgate:", err)
		os.Exit(1)
	}
	logx.Configure(resolved.LogLevel)
	logStartupConfig(resolved)

	br, err := bridge.New(resolved)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("failed to start bridge")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logx.Log.Warn().Msg("termination requested")
		serverstate.StartDrain()
		cancel()
	}()

	if br.Handler != nil {
		runForward(ctx, resolved, br)
		return
	}
	if err := br.Run(ctx); err != nil && ctx.Err() == nil {
		logx.Log.Fatal().Err(err).Msg("bridge error")
	}
}

// logStartupConfig logs the resolved outbound headers at debug level with
// every value masked, so a bearer token injected via --oauth2Bearer (it
// ends up as the Authorization header) or any --header value never appears
// in plaintext even when debug logging is on.
func logStartupConfig(resolved *config.Resolved) {
	for k, vs := range resolved.Headers {
		for _, v := range vs {
			logx.Log.Debug().Str("header", k).Str("value", secret.Mask(v)).Msg("outbound header configured")
		}
	}
}

func runForward(ctx context.Context, resolved *config.Resolved, br *bridge.Bridge) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", resolved.Port), Handler: br.Handler}
	go func() {
		<-ctx.Done()
		br.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logx.Log.Info().Int("port", resolved.Port).Str("outputTransport", resolved.OutputTransport).Msg("mcpgate starting")
	serverstate.SetState("ready")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}
