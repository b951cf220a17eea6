package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/polisai/cx-policy-validator/internal/governance"
	servertls "github.com/polisai/cx-policy-validator/internal/tls"
	"github.com/polisai/cx-policy-validator/pkg/api"
	"github.com/polisai/cx-policy-validator/pkg/config"
	"github.com/polisai/cx-policy-validator/pkg/jsonld"
	"github.com/polisai/cx-policy-validator/pkg/logging"
	"github.com/polisai/cx-policy-validator/pkg/telemetry"
)

const telemetryShutdownTimeout = 5 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the policy definition validation API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}

			logger := newLogger(cfg)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, logger, nil)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Listen address (overrides server.address)")
	return cmd
}

// runServe blocks until ctx is cancelled, then shuts the server down gracefully.
// When ready is non-nil it receives the bound listener address once serving.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, ready chan<- string) error {
	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		Endpoint:     cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
		Environment:  cfg.Telemetry.Environment,
		ResourceTags: map[string]string{"log.level": cfg.Logging.Level},
	})
	if err != nil {
		return fmt.Errorf("telemetry initialization failed: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			logger.Warn("telemetry shutdown error", "error", err)
		}
	}()

	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	metrics := api.NewMetrics()
	if cfg.JSONLD.Enabled {
		failed := len(jsonld.Failed(comps.cached))
		metrics.SetCachedDocuments(len(comps.cached)-failed, failed)
	}

	opts := []api.Option{
		api.WithBasePath(cfg.Server.BasePath),
		api.WithMetrics(metrics),
		api.WithLogger(logging.Component(logger, "api")),
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		api.WithCORSOrigins(cfg.Server.CORS.AllowedOrigins),
		api.WithHealthCheck(func(context.Context) error {
			if comps.validator.Current() == nil {
				return errors.New("no policy validator loaded")
			}
			return nil
		}),
	}
	if comps.interceptor != nil {
		opts = append(opts, api.WithInterceptor(comps.interceptor))
	}
	if rl := cfg.Server.RateLimit; rl.Enabled() {
		opts = append(opts, api.WithRateLimiter(governance.NewRateLimiter(governance.RateLimiterConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			BurstSize:         rl.Burst,
		})))
	}
	server, err := api.NewServer(comps.controller, opts...)
	if err != nil {
		return err
	}

	if cfg.Validation.Watch {
		watcher, err := config.NewFileWatcher(comps.source.Paths(), func(ctx context.Context) {
			if err := comps.validator.Reload(ctx); err != nil {
				metrics.RecordReload("failure")
				return
			}
			metrics.RecordReload("success")
		}, config.WithWatcherLogger(logging.Component(logger, "watcher")))
		if err != nil {
			return fmt.Errorf("watch validation sources: %w", err)
		}
		defer func() { _ = watcher.Close() }()
		logger.Info("watching validation sources", "paths", comps.source.Paths())
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	if cfg.Server.TLS.Enabled() {
		closeWatcher, err := configureTLS(httpServer, cfg.Server.TLS, logging.Component(logger, "tls"))
		if err != nil {
			return err
		}
		defer closeWatcher()
	}

	ln, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Address, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("validation API listening",
			"address", ln.Addr().String(),
			"base_path", cfg.Server.BasePath,
			"tls", httpServer.TLSConfig != nil,
			"jsonld", cfg.JSONLD.Enabled,
		)
		var err error
		if httpServer.TLSConfig != nil {
			err = httpServer.ServeTLS(ln, "", "")
		} else {
			err = httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down validation API")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// configureTLS installs the listener TLS configuration on srv and, when requested,
// reloads the certificate pair on change. The returned func stops the watcher.
func configureTLS(srv *http.Server, cfg config.TLSConfig, logger *slog.Logger) (func(), error) {
	certs, err := servertls.NewCertificateManager(cfg.CertFile, cfg.KeyFile, logger)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	tlsConfig, err := servertls.BuildServer(servertls.Config{
		CertFile:     cfg.CertFile,
		KeyFile:      cfg.KeyFile,
		ClientCAFile: cfg.ClientCAFile,
	}, certs)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	srv.TLSConfig = tlsConfig

	if !cfg.Watch {
		return func() {}, nil
	}
	watcher, err := config.NewFileWatcher(certs.Paths(), func(context.Context) {
		if err := certs.Reload(); err != nil {
			logger.Error("serving certificate reload failed", "error", err)
		}
	}, config.WithWatcherLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("watch tls certificate: %w", err)
	}
	return func() { _ = watcher.Close() }, nil
}
