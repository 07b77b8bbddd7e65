package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/camscan/internal/camera"
	"github.com/MeKo-Tech/camscan/internal/config"
	"github.com/MeKo-Tech/camscan/internal/history"
	"github.com/MeKo-Tech/camscan/internal/server"
	"github.com/MeKo-Tech/camscan/internal/session"
	"github.com/MeKo-Tech/camscan/internal/sink"
	"github.com/MeKo-Tech/camscan/internal/version"
)

const rateLimitPruneInterval = 10 * time.Minute

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scanning session over HTTP and WebSocket",
	Long: `Start an HTTP server that controls a single scanning session.

The server provides the following endpoints:
  GET    /health               - Health check with session state
  GET    /metrics              - Prometheus metrics
  GET    /ws                   - WebSocket stream of session events
  GET    /devices              - List cameras and the default choice
  GET    /devices/default      - The camera a start without device_id uses
  GET    /session              - Session status
  POST   /session              - Start (or switch) the session
  PUT    /session/device       - Switch to another camera
  DELETE /session              - Stop the session
  GET    /session/preview.jpg  - Latest frame as JPEG
  GET    /history              - Recently recorded scans

Examples:
  camscan serve
  camscan serve --port 8080 --autostart
  camscan serve --host 0.0.0.0 --cors-origin https://kiosk.example`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("cors-origin") {
			cfg.Server.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
		}
		if cmd.Flags().Changed("shutdown-timeout") {
			cfg.Server.ShutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
		}
		if cmd.Flags().Changed("autostart") {
			cfg.Server.Autostart, _ = cmd.Flags().GetBool("autostart")
		}
		if cmd.Flags().Changed("watch") {
			cfg.Camera.Watch, _ = cmd.Flags().GetBool("watch")
		}
		if cmd.Flags().Changed("rate-limit-enabled") {
			cfg.Server.RateLimit.Enabled, _ = cmd.Flags().GetBool("rate-limit-enabled")
		}
		if cmd.Flags().Changed("requests-per-minute") {
			cfg.Server.RateLimit.RequestsPerMinute, _ = cmd.Flags().GetInt("requests-per-minute")
		}
		if cmd.Flags().Changed("requests-per-hour") {
			cfg.Server.RateLimit.RequestsPerHour, _ = cmd.Flags().GetInt("requests-per-hour")
		}
		if cmd.Flags().Changed("max-requests-per-day") {
			cfg.Server.RateLimit.MaxRequestsPerDay, _ = cmd.Flags().GetInt("max-requests-per-day")
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		preview := sink.NewPreview(cfg.Server.PreviewWidth, cfg.Server.PreviewQuality)
		m, err := newManager(cfg, preview, session.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()

		var (
			store *history.Store
			wg    sync.WaitGroup
		)
		if cfg.History.Enabled {
			store, err = history.Open(ctx, cfg.History.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			recorded, unsubscribe := m.Subscribe(256)
			wg.Add(1)
			go func() {
				defer wg.Done()
				history.Follow(context.WithoutCancel(ctx), store, recorded, slog.Default())
			}()
			// Runs before store.Close so pending scans are flushed.
			defer func() {
				unsubscribe()
				wg.Wait()
			}()
		}

		if cfg.Camera.Watch && cfg.Camera.Source == config.SourceCamera {
			watcher := camera.NewWatcher(slog.Default(), func(ev camera.DeviceEvent) {
				slog.Info("camera hot-plug", "action", ev.Action, "device", ev.DevName)
				m.Invalidate()
			})
			if err := watcher.Start(ctx); err != nil {
				slog.Warn("camera watcher unavailable", "error", err)
			}
			defer watcher.Stop()
		}

		srv := server.NewServer(m, preview, store, server.Config{
			CORSOrigin: cfg.Server.CORSOrigin,
			Version:    version.Current().Version,
			RateLimit: server.RateLimitConfig{
				Enabled:           cfg.Server.RateLimit.Enabled,
				RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
				RequestsPerHour:   cfg.Server.RateLimit.RequestsPerHour,
				MaxRequestsPerDay: cfg.Server.RateLimit.MaxRequestsPerDay,
			},
			Logger: slog.Default(),
		})
		if rl := srv.RateLimiter(); rl != nil {
			go pruneRateLimiter(ctx, rl)
		}

		if cfg.Server.Autostart {
			constraints, err := cfg.Constraints()
			if err != nil {
				return err
			}
			// A missing camera should not keep the API from coming up.
			if st, err := m.Start(ctx, constraints); err != nil {
				slog.Warn("autostart failed", "error", err, "reason", session.ReasonOf(err))
			} else {
				slog.Info("session autostarted", "device_id", st.Device.ID, "session_id", st.SessionID)
			}
		}

		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			slog.Info("Starting camscan server", "addr", addr, "version", versionString())
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		slog.Info("Starting graceful shutdown", "timeout", cfg.ShutdownTimeout().String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer shutdownCancel()

		// WebSocket clients are released when Close ends their subscriptions.
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		if err := m.Close(); err != nil {
			slog.Error("Session cleanup error", "error", err)
		}
		wg.Wait()

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

func pruneRateLimiter(ctx context.Context, rl *server.RateLimiter) {
	ticker := time.NewTicker(rateLimitPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Prune(24 * time.Hour); n > 0 {
				slog.Debug("pruned idle rate limit clients", "count", n)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("autostart", false, "start a session with the configured camera on launch")
	serveCmd.Flags().Bool("watch", true, "re-enumerate cameras on hot-plug (Linux)")
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting of API requests")
	serveCmd.Flags().Int("requests-per-minute", 120, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 3000, "maximum requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 20000, "maximum requests per day per client")
}
