package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/keyquota/internal/adapter/driven/deepl"
	httphandler "github.com/ericfisherdev/keyquota/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/keyquota/internal/adapter/driving/web"
	"github.com/ericfisherdev/keyquota/internal/config"
)

const relayInitTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web panel and the usage relay",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Load configuration (fail fast on invalid env vars or config file).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"relay_url", cfg.RelayURL,
		"upstream_url", cfg.UpstreamURL,
		"cooldown", cfg.Cooldown,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the key store and wire the application core.
	c, err := openCoreFunc(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			slog.Error("error closing key store", "error", closeErr)
		}
	}()

	// 4. Restore the saved keys.
	for _, n := range c.keys.Load(ctx, true).Notices() {
		slog.Warn("load saved keys", "notice", n.Message)
	}

	// 5. Create upstream client and register relay API routes.
	upstream := deepl.NewClient(cfg.UpstreamURL, cfg.UpstreamTimeout, cfg.UpstreamRPS)
	apiHandler := httphandler.NewHandler(upstream, c.keys, httphandler.NewSessionStore(), slog.Default())
	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, apiHandler)

	// 6. Create web handler and register GUI routes.
	webHandler := webhandler.NewHandler(c.keys, c.history, slog.Default())
	webhandler.RegisterRoutes(mux, webHandler)

	// Apply middleware.
	handler := httphandler.ApplyMiddleware(mux, slog.Default())

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 7. Listen before starting the relay session: by default the relay is
	// this process.
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	slog.Info("http server starting", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	// 8. Start the relay session. A failure is retried on the first check.
	initCtx, cancelInit := context.WithTimeout(ctx, relayInitTimeout)
	if err := c.relay.Init(initCtx); err != nil {
		slog.Warn("relay session not established", "relay_url", cfg.RelayURL, "error", err)
	}
	cancelInit()

	// 9. Log startup complete.
	slog.Info("keyquota started",
		"listen_addr", ln.Addr().String(),
		"keys", len(c.keys.Snapshot().Keys),
		"version", version,
	)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 11. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// 12. Log shutdown complete.
	slog.Info("shutdown complete")
	return nil
}
