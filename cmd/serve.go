package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mailpilot/mailpilot/internal/config"
	"github.com/mailpilot/mailpilot/internal/instrumentation"
	"github.com/mailpilot/mailpilot/internal/notify"
	"github.com/mailpilot/mailpilot/internal/server"
	"github.com/mailpilot/mailpilot/internal/tools"
	"github.com/mailpilot/mailpilot/internal/tools/mailtools"
)

const serverShutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var debugMode bool
	settings := config.DefaultSettings()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing the inbox tools
to AI assistants.

Supports two transport types:
  - stdio: Standard input/output (default)
  - sse: Server-Sent Events over HTTP

Alongside the MCP transport, serve can run a REST API for home-automation
consumers (--rest-port), a Prometheus metrics and health server
(--metrics-port), and a scheduled daily-summary push to a webhook
(--push-schedule together with --webhook-url).

Every flag has a MAILPILOT_* environment variable fallback, e.g.
MAILPILOT_TRANSPORT or MAILPILOT_WEBHOOK_URL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := resolveSettings(cmd, &settings)
			if err != nil {
				return err
			}
			return runServe(settings, categories, debugMode)
		},
	}

	registerSettingsFlags(cmd, &settings)
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	return cmd
}

func runServe(settings config.Settings, categories []config.Category, debugMode bool) error {
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := setupLogger(debugMode)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("instrumentation shutdown failed", "error", err)
		}
	}()

	sc := server.NewServerContext(shutdownCtx, settings, categories, logger)
	sc.SetMetrics(provider.Metrics())
	defer sc.Shutdown()

	dispatcher, err := buildDispatcher(sc, provider, instrConfig, logger)
	if err != nil {
		return err
	}

	var sink *notify.Sink
	if settings.WebhookURL != "" {
		sink, err = notify.NewSink(settings.WebhookURL, logger)
		if err != nil {
			return fmt.Errorf("failed to create notification sink: %w", err)
		}
		sink.SetMetrics(provider.Metrics())
	}

	if settings.PushSchedule != "" {
		scheduler, err := startPushSchedule(sc, sink, settings, logger)
		if err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	health := server.NewHealthChecker(sc)
	stopMetrics, err := startMetricsServer(settings, provider, health, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	stopREST, err := startRESTServer(sc, sink, settings, logger)
	if err != nil {
		return err
	}
	defer stopREST()

	switch settings.Transport {
	case "stdio":
		return runStdioServer(dispatcher)
	case "sse":
		return runSSEServer(shutdownCtx, sc, dispatcher, settings, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, sse)", settings.Transport)
	}
}

func setupLogger(debugMode bool) *slog.Logger {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	// Stdout carries the stdio transport; logs always go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func buildDispatcher(sc *server.ServerContext, provider *instrumentation.Provider, instrConfig instrumentation.Config, logger *slog.Logger) (*tools.Dispatcher, error) {
	registry := tools.NewRegistry()
	if err := mailtools.Register(registry, sc.ToolDeps()); err != nil {
		return nil, fmt.Errorf("failed to register mail tools: %w", err)
	}

	dispatcher := tools.NewDispatcher(registry, logger, provider.Metrics())
	if instrConfig.AuditLogging.Enabled {
		dispatcher.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging))
	}
	return dispatcher, nil
}

// startPushSchedule runs the daily digest on a cron schedule and pushes the
// text rendering to the webhook sink.
func startPushSchedule(sc *server.ServerContext, sink *notify.Sink, settings config.Settings, logger *slog.Logger) (*cron.Cron, error) {
	if sink == nil {
		return nil, fmt.Errorf("--push-schedule requires --webhook-url")
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(settings.PushSchedule, func() {
		ctx, cancel := context.WithTimeout(sc.Context(), settings.GatewayTimeout)
		defer cancel()

		_, text, err := mailtools.DailySummary(ctx, sc.ToolDeps(), settings.LookbackHours, settings.HighlightLimit)
		if err != nil {
			logger.Error("scheduled summary failed", "error", err)
			return
		}
		if m := sc.Metrics(); m != nil {
			m.RecordDigest(ctx, instrumentation.TriggerSchedule)
		}
		sink.NotifyAsync(text)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid push schedule %q: %w", settings.PushSchedule, err)
	}

	scheduler.Start()
	logger.Info("summary push scheduled", "spec", settings.PushSchedule)
	return scheduler, nil
}

func startMetricsServer(settings config.Settings, provider *instrumentation.Provider, health *server.HealthChecker, logger *slog.Logger) (func(), error) {
	if settings.MetricsPort == 0 || !provider.PrometheusEnabled() {
		return func() {}, nil
	}

	metricsSrv, err := server.NewMetricsServer(fmt.Sprintf(":%d", settings.MetricsPort), provider, health)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}
	go func() {
		if err := metricsSrv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}, nil
}

func startRESTServer(sc *server.ServerContext, sink *notify.Sink, settings config.Settings, logger *slog.Logger) (func(), error) {
	if settings.RESTPort == 0 {
		return func() {}, nil
	}

	restSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.RESTPort),
		Handler:           server.NewRESTServer(sc, sink).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting REST server", "addr", restSrv.Addr)
		if err := restSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("REST server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := restSrv.Shutdown(ctx); err != nil {
			logger.Warn("REST server shutdown failed", "error", err)
		}
	}, nil
}

func runStdioServer(dispatcher *tools.Dispatcher) error {
	mcpSrv, err := server.NewMCPServer("mailpilot", version, dispatcher)
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	if err := <-serverDone; err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runSSEServer(ctx context.Context, sc *server.ServerContext, dispatcher *tools.Dispatcher, settings config.Settings, logger *slog.Logger) error {
	manager := server.NewSessionManager(settings.SessionQueueDepth, settings.SessionIdleTimeout, logger, sc.Metrics())
	defer manager.Stop()

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", settings.Port),
		Handler: server.NewStreamServer(manager, dispatcher, logger).Handler(),
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		logger.Info("starting SSE server", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}
