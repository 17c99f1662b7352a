package mailtools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mailpilot/mailpilot/internal/classify"
	"github.com/mailpilot/mailpilot/internal/config"
	"github.com/mailpilot/mailpilot/internal/gmail"
	"github.com/mailpilot/mailpilot/internal/instrumentation"
	"github.com/mailpilot/mailpilot/internal/tools"
)

// Default bounds applied when an invocation does not override them.
const (
	defaultMaxResults = 50
	summaryMaxResults = 500
)

// Deps carries everything the mail tool handlers need. Gateway is a lazy
// accessor so the server can start before OAuth credentials are present;
// tools fail with a permanent upstream error until authentication succeeds.
type Deps struct {
	Gateway        func(ctx context.Context) (*gmail.Gateway, error)
	Categorizer    *classify.Categorizer
	Categories     []config.Category
	HighlightLimit int
	LookbackHours  int
	Logger         *slog.Logger
	Metrics        *instrumentation.Metrics
}

// Register adds all mail tools to the registry.
func Register(reg *tools.Registry, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HighlightLimit <= 0 {
		deps.HighlightLimit = 5
	}
	if deps.LookbackHours <= 0 {
		deps.LookbackHours = 24
	}

	descriptors := []*tools.Descriptor{
		searchTool(deps),
		getEmailTool(deps),
		listUnreadTool(deps),
		dailySummaryTool(deps),
		categorySummaryTool(deps),
		inboxStatsTool(deps),
		listLabelsTool(deps),
		createLabelTool(deps),
		deleteLabelTool(deps),
		renameLabelTool(deps),
		getCategoriesTool(deps),
		markReadByIDsTool(deps),
		markReadByQueryTool(deps),
		markUnreadByIDsTool(deps),
		sendEmailTool(deps),
		addLabelsTool(deps),
		removeLabelsTool(deps),
	}

	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			return fmt.Errorf("failed to register %s: %w", d.Name, err)
		}
	}
	return nil
}

// argString returns a string argument or its default. Shape validation has
// already run, so type assertions here cannot fail for declared arguments.
func argString(args map[string]interface{}, name, def string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return def
}

// argInt64 returns a numeric argument or its default. JSON decoding yields
// float64; other transports may deliver int.
func argInt64(args map[string]interface{}, name string, def int64) int64 {
	switch v := args[name].(type) {
	case float64:
		if v > 0 {
			return int64(v)
		}
	case int:
		if v > 0 {
			return int64(v)
		}
	}
	return def
}

// argBool returns a boolean argument or its default.
func argBool(args map[string]interface{}, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}
