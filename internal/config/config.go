package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Matchers holds the predicate groups of a category rule. A group with no
// entries never contributes a match.
type Matchers struct {
	Senders  []string `yaml:"senders" json:"senders"`
	Subjects []string `yaml:"subjects" json:"subjects"`
	Labels   []string `yaml:"labels" json:"labels"`
}

// Category is one prioritized rule bundle used to bucket messages.
// Lower priority numbers take precedence; ties are broken by the order
// categories appear in the file.
type Category struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Priority int      `yaml:"priority" json:"priority"`
	Matchers Matchers `yaml:"matchers" json:"matchers"`
}

// Categories is the top-level shape of the category rules file.
type Categories struct {
	Categories []Category `yaml:"categories"`
}

// LoadCategories reads and validates the category rules file. The rule set is
// immutable for the process lifetime; a malformed file is a startup failure.
func LoadCategories(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}
	return ParseCategories(data)
}

// ParseCategories parses category rules from YAML and validates them.
func ParseCategories(data []byte) ([]Category, error) {
	var cfg Categories
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse categories file: %w", err)
	}
	if err := validateCategories(cfg.Categories); err != nil {
		return nil, err
	}
	return cfg.Categories, nil
}

func validateCategories(cats []Category) error {
	seen := make(map[string]bool, len(cats))
	for i, c := range cats {
		if c.ID == "" {
			return fmt.Errorf("category at index %d has an empty id", i)
		}
		if c.ID == "other" {
			return fmt.Errorf("category id %q is reserved for unmatched messages", c.ID)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate category id %q", c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

// Settings holds the runtime configuration of the server. Values are
// populated from CLI flags with environment variable fallbacks.
type Settings struct {
	// Transport selects the MCP transport: "stdio" or "sse".
	Transport string
	// Port is the HTTP port for the SSE transport.
	Port int
	// RESTPort is the port of the REST facade. Zero disables it.
	RESTPort int
	// MetricsPort is the port of the metrics/health server. Zero disables it.
	MetricsPort int

	// CategoriesFile is the path to the YAML category rules.
	CategoriesFile string
	// CredentialsFile and TokenFile locate the Gmail OAuth client secret and
	// the cached user token.
	CredentialsFile string
	TokenFile       string

	// APIKey gates the REST facade when non-empty.
	APIKey string
	// WebhookURL is the notification sink for daily summary pushes.
	WebhookURL string
	// PushSchedule is an optional cron spec for scheduled summary pushes.
	PushSchedule string

	// SessionIdleTimeout closes sessions with no traffic for this long.
	SessionIdleTimeout time.Duration
	// SessionQueueDepth bounds each session's outbound response queue.
	SessionQueueDepth int
	// MaxPages bounds mailbox list pagination.
	MaxPages int
	// MaxRetries bounds gateway retry attempts for transient errors.
	MaxRetries int
	// GatewayTimeout bounds a single gateway call, retries included.
	GatewayTimeout time.Duration

	// HighlightLimit caps per-category highlights in summaries.
	HighlightLimit int
	// LookbackHours is the default daily summary window.
	LookbackHours int
}

// DefaultSettings returns the settings used when no flag or environment
// variable overrides them.
func DefaultSettings() Settings {
	return Settings{
		Transport:          "stdio",
		Port:               8080,
		RESTPort:           8090,
		MetricsPort:        9090,
		CategoriesFile:     "categories.yaml",
		SessionIdleTimeout: 10 * time.Minute,
		SessionQueueDepth:  64,
		MaxPages:           10,
		MaxRetries:         5,
		GatewayTimeout:     2 * time.Minute,
		HighlightLimit:     5,
		LookbackHours:      24,
	}
}
