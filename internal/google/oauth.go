package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// Scopes are the Google OAuth scopes the server needs: full Gmail access
// covers read, modify, labels and send.
var Scopes = []string{gmail.MailGoogleComScope}

// DefaultCredentialsFile returns the default location of the OAuth client
// secret downloaded from the Google Cloud console.
func DefaultCredentialsFile() string {
	return filepath.Join(configDir(), "credentials.json")
}

// DefaultTokenFile returns the default location of the cached user token.
func DefaultTokenFile() string {
	return filepath.Join(configDir(), "token.json")
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mailpilot")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "mailpilot")
}

// LoadConfig reads the OAuth client secret file and builds the OAuth2 config.
func LoadConfig(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	conf, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return conf, nil
}

// LoadToken reads a cached OAuth token from disk.
func LoadToken(tokenFile string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("no cached Google OAuth token: %w", err)
	}
	var t oauth2.Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid token file: %w", err)
	}
	return &t, nil
}

// SaveToken writes an OAuth token to disk with owner-only permissions.
func SaveToken(tokenFile string, t *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(tokenFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// HasToken reports whether a cached token file exists.
func HasToken(tokenFile string) bool {
	_, err := os.Stat(tokenFile)
	return err == nil
}

// TokenSource returns a self-refreshing token source backed by the cached
// token. Refreshed tokens are persisted back to the token file so restarts do
// not force reauthentication.
func TokenSource(ctx context.Context, credentialsFile, tokenFile string) (oauth2.TokenSource, error) {
	conf, err := LoadConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	return &savingTokenSource{
		src:       conf.TokenSource(ctx, tok),
		tokenFile: tokenFile,
		last:      tok,
	}, nil
}

// savingTokenSource persists refreshed tokens behind a plain TokenSource.
type savingTokenSource struct {
	src       oauth2.TokenSource
	tokenFile string
	last      *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.last == nil || t.AccessToken != s.last.AccessToken {
		s.last = t
		// Best effort: a failed write only costs a refresh on next start.
		_ = SaveToken(s.tokenFile, t)
	}
	return t, nil
}

// HTTPClient returns an HTTP client that authenticates requests with the
// cached OAuth token, refreshing it as needed.
func HTTPClient(ctx context.Context, credentialsFile, tokenFile string) (*http.Client, error) {
	ts, err := TokenSource(ctx, credentialsFile, tokenFile)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// CheckAuth verifies that a valid, refreshable token is available. Health
// endpoints use this to report upstream authentication status.
func CheckAuth(ctx context.Context, credentialsFile, tokenFile string) error {
	ts, err := TokenSource(ctx, credentialsFile, tokenFile)
	if err != nil {
		return err
	}
	if _, err := ts.Token(); err != nil {
		return fmt.Errorf("cached token is invalid: %w", err)
	}
	return nil
}

// AuthURL returns the URL a user visits to authorize the application.
func AuthURL(conf *oauth2.Config) string {
	return conf.AuthCodeURL("state", oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and persists it.
func Exchange(ctx context.Context, conf *oauth2.Config, code, tokenFile string) error {
	t, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return SaveToken(tokenFile, t)
}
