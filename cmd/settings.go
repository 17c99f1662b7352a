package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailpilot/mailpilot/internal/config"
	"github.com/mailpilot/mailpilot/internal/google"
)

// Environment variable fallbacks for settings flags. A flag set on the
// command line always wins over its environment variable.
var settingsEnvVars = map[string]string{
	"transport":       "MAILPILOT_TRANSPORT",
	"port":            "MAILPILOT_PORT",
	"rest-port":       "MAILPILOT_REST_PORT",
	"metrics-port":    "MAILPILOT_METRICS_PORT",
	"categories":      "MAILPILOT_CATEGORIES_FILE",
	"credentials":     "MAILPILOT_CREDENTIALS_FILE",
	"token":           "MAILPILOT_TOKEN_FILE",
	"api-key":         "MAILPILOT_API_KEY",
	"webhook-url":     "MAILPILOT_WEBHOOK_URL",
	"push-schedule":   "MAILPILOT_PUSH_SCHEDULE",
	"idle-timeout":    "MAILPILOT_SESSION_IDLE_TIMEOUT",
	"queue-depth":     "MAILPILOT_SESSION_QUEUE_DEPTH",
	"max-pages":       "MAILPILOT_MAX_PAGES",
	"max-retries":     "MAILPILOT_MAX_RETRIES",
	"gateway-timeout": "MAILPILOT_GATEWAY_TIMEOUT",
	"highlight-limit": "MAILPILOT_HIGHLIGHT_LIMIT",
	"lookback-hours":  "MAILPILOT_LOOKBACK_HOURS",
}

// registerSettingsFlags binds the shared settings flags to cmd. The settings
// struct starts from DefaultSettings; flag defaults mirror it.
func registerSettingsFlags(cmd *cobra.Command, s *config.Settings) {
	f := cmd.Flags()
	f.StringVar(&s.Transport, "transport", s.Transport, "MCP transport: stdio or sse")
	f.IntVar(&s.Port, "port", s.Port, "HTTP port for the SSE transport")
	f.IntVar(&s.RESTPort, "rest-port", s.RESTPort, "Port for the REST API (0 disables it)")
	f.IntVar(&s.MetricsPort, "metrics-port", s.MetricsPort, "Port for the metrics/health server (0 disables it)")
	f.StringVar(&s.CategoriesFile, "categories", s.CategoriesFile, "Path to the YAML category rules file")
	f.StringVar(&s.CredentialsFile, "credentials", s.CredentialsFile, "Path to the Google OAuth client secret file")
	f.StringVar(&s.TokenFile, "token", s.TokenFile, "Path to the cached OAuth token file")
	f.StringVar(&s.APIKey, "api-key", s.APIKey, "API key required by the REST API (empty leaves it open)")
	f.StringVar(&s.WebhookURL, "webhook-url", s.WebhookURL, "Webhook URL for daily summary pushes")
	f.StringVar(&s.PushSchedule, "push-schedule", s.PushSchedule, "Cron spec for scheduled summary pushes (e.g. '0 8 * * *')")
	f.DurationVar(&s.SessionIdleTimeout, "idle-timeout", s.SessionIdleTimeout, "Close SSE sessions idle for this long")
	f.IntVar(&s.SessionQueueDepth, "queue-depth", s.SessionQueueDepth, "Outbound response queue depth per session")
	f.IntVar(&s.MaxPages, "max-pages", s.MaxPages, "Maximum Gmail list pages per search")
	f.IntVar(&s.MaxRetries, "max-retries", s.MaxRetries, "Maximum retry attempts for transient Gmail errors")
	f.DurationVar(&s.GatewayTimeout, "gateway-timeout", s.GatewayTimeout, "Deadline for a single Gmail operation, retries included")
	f.IntVar(&s.HighlightLimit, "highlight-limit", s.HighlightLimit, "Most-recent highlights kept per category in summaries")
	f.IntVar(&s.LookbackHours, "lookback-hours", s.LookbackHours, "Default daily summary window in hours")
}

// applyEnvFallbacks overrides settings from MAILPILOT_* environment variables
// for every flag the user did not set explicitly.
func applyEnvFallbacks(cmd *cobra.Command, s *config.Settings) error {
	for flag, envVar := range settingsEnvVars {
		if cmd.Flags().Changed(flag) {
			continue
		}
		val := os.Getenv(envVar)
		if val == "" {
			continue
		}
		if err := applyEnvValue(s, flag, val); err != nil {
			return fmt.Errorf("invalid %s: %w", envVar, err)
		}
	}
	return nil
}

func applyEnvValue(s *config.Settings, flag, val string) error {
	switch flag {
	case "transport":
		s.Transport = val
	case "categories":
		s.CategoriesFile = val
	case "credentials":
		s.CredentialsFile = val
	case "token":
		s.TokenFile = val
	case "api-key":
		s.APIKey = val
	case "webhook-url":
		s.WebhookURL = val
	case "push-schedule":
		s.PushSchedule = val
	case "port", "rest-port", "metrics-port", "queue-depth", "max-pages", "max-retries", "highlight-limit", "lookback-hours":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		switch flag {
		case "port":
			s.Port = n
		case "rest-port":
			s.RESTPort = n
		case "metrics-port":
			s.MetricsPort = n
		case "queue-depth":
			s.SessionQueueDepth = n
		case "max-pages":
			s.MaxPages = n
		case "max-retries":
			s.MaxRetries = n
		case "highlight-limit":
			s.HighlightLimit = n
		case "lookback-hours":
			s.LookbackHours = n
		}
	case "idle-timeout", "gateway-timeout":
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		if flag == "idle-timeout" {
			s.SessionIdleTimeout = d
		} else {
			s.GatewayTimeout = d
		}
	}
	return nil
}

// resolveSettings fills credential path defaults and loads the category
// rules. A missing rules file at the default location is tolerated: every
// message then lands in the fallback category.
func resolveSettings(cmd *cobra.Command, s *config.Settings) ([]config.Category, error) {
	if err := applyEnvFallbacks(cmd, s); err != nil {
		return nil, err
	}
	if s.CredentialsFile == "" {
		s.CredentialsFile = google.DefaultCredentialsFile()
	}
	if s.TokenFile == "" {
		s.TokenFile = google.DefaultTokenFile()
	}

	categories, err := config.LoadCategories(s.CategoriesFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("categories") && os.Getenv("MAILPILOT_CATEGORIES_FILE") == "" {
			slog.Warn("no category rules file found, everything will be categorized as other",
				"path", s.CategoriesFile)
			return nil, nil
		}
		return nil, err
	}
	return categories, nil
}
