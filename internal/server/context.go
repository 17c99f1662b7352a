package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mailpilot/mailpilot/internal/classify"
	"github.com/mailpilot/mailpilot/internal/config"
	"github.com/mailpilot/mailpilot/internal/gmail"
	"github.com/mailpilot/mailpilot/internal/google"
	"github.com/mailpilot/mailpilot/internal/instrumentation"
	"github.com/mailpilot/mailpilot/internal/tools/mailtools"
)

// ServerContext holds the shared dependencies of every transport: settings,
// the compiled categorizer, and the lazily-built Gmail gateway. The gateway
// is created on first use so the server can start before OAuth credentials
// exist; until then mail tools fail with a permanent upstream error telling
// the user to authenticate.
type ServerContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	settings    config.Settings
	categories  []config.Category
	categorizer *classify.Categorizer
	logger      *slog.Logger
	metrics     *instrumentation.Metrics

	mu       sync.RWMutex
	gateway  *gmail.Gateway
	shutdown bool
}

// NewServerContext creates a server context over the given settings and
// category configuration.
func NewServerContext(ctx context.Context, settings config.Settings, categories []config.Category, logger *slog.Logger) *ServerContext {
	if logger == nil {
		logger = slog.Default()
	}
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		settings:    settings,
		categories:  categories,
		categorizer: classify.NewCategorizer(categories),
		logger:      logger,
	}
}

// Context returns the server's lifetime context. It is cancelled on shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Settings returns the server's settings.
func (sc *ServerContext) Settings() config.Settings {
	return sc.settings
}

// Categorizer returns the compiled categorizer.
func (sc *ServerContext) Categorizer() *classify.Categorizer {
	return sc.categorizer
}

// Logger returns the server's logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// SetMetrics installs the metrics recorder. Must be called before the first
// gateway use to take effect there.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the installed metrics recorder, or nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// Gateway returns the Gmail gateway, building it on first use. Fails with a
// permanent upstream error when no stored token exists yet.
func (sc *ServerContext) Gateway(ctx context.Context) (*gmail.Gateway, error) {
	sc.mu.RLock()
	gw := sc.gateway
	sc.mu.RUnlock()
	if gw != nil {
		return gw, nil
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.gateway != nil {
		return sc.gateway, nil
	}
	if sc.shutdown {
		return nil, &gmail.PermanentError{Err: fmt.Errorf("server is shutting down")}
	}

	if !google.HasToken(sc.settings.TokenFile) {
		return nil, &gmail.PermanentError{
			Err: fmt.Errorf("not authenticated: run mailpilot auth first"),
		}
	}

	client, err := gmail.NewClient(sc.ctx, sc.settings.CredentialsFile, sc.settings.TokenFile)
	if err != nil {
		return nil, &gmail.PermanentError{Err: fmt.Errorf("failed to create Gmail client: %w", err)}
	}

	sc.gateway = gmail.NewGateway(client, sc.logger, gmail.GatewayOptions{
		MaxPages:   sc.settings.MaxPages,
		MaxRetries: sc.settings.MaxRetries,
		Timeout:    sc.settings.GatewayTimeout,
		Metrics:    sc.metrics,
	})
	sc.logger.Info("gmail gateway initialized")
	return sc.gateway, nil
}

// SetGateway installs a pre-built gateway. Used by tests and the one-shot
// CLI path.
func (sc *ServerContext) SetGateway(gw *gmail.Gateway) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.gateway = gw
}

// CheckAuth reports whether stored credentials can mint a usable token.
func (sc *ServerContext) CheckAuth(ctx context.Context) error {
	return google.CheckAuth(ctx, sc.settings.CredentialsFile, sc.settings.TokenFile)
}

// ToolDeps assembles the dependency bundle the mail tools consume.
func (sc *ServerContext) ToolDeps() mailtools.Deps {
	return mailtools.Deps{
		Gateway:        sc.Gateway,
		Categorizer:    sc.categorizer,
		Categories:     sc.categories,
		HighlightLimit: sc.settings.HighlightLimit,
		LookbackHours:  sc.settings.LookbackHours,
		Logger:         sc.logger,
		Metrics:        sc.Metrics(),
	}
}

// IsShutdown returns whether the server has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. Idempotent.
func (sc *ServerContext) Shutdown() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.shutdown {
		return
	}
	sc.shutdown = true
	sc.cancel()
}
