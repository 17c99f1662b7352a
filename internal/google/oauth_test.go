package google

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestSaveAndLoadToken(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "nested", "token.json")

	tok := &oauth2.Token{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}

	if err := SaveToken(tokenFile, tok); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	// Token files hold credentials and must not be group or world readable.
	info, err := os.Stat(tokenFile)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("token file permissions = %o, want 0600", perm)
	}

	got, err := LoadToken(tokenFile)
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if got.AccessToken != tok.AccessToken || got.RefreshToken != tok.RefreshToken {
		t.Errorf("round-tripped token = %+v, want %+v", got, tok)
	}
}

func TestLoadToken_Missing(t *testing.T) {
	if _, err := LoadToken(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing token file")
	}
}

func TestLoadToken_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadToken(path); err == nil {
		t.Error("expected error for corrupt token file")
	}
}

func TestHasToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	if HasToken(path) {
		t.Error("HasToken true for missing file")
	}
	if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	if !HasToken(path) {
		t.Error("HasToken false for existing file")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing credentials file")
	}

	path := filepath.Join(dir, "credentials.json")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for malformed credentials file")
	}
}

func TestDefaultPaths(t *testing.T) {
	if filepath.Base(DefaultCredentialsFile()) != "credentials.json" {
		t.Errorf("unexpected credentials file name: %s", DefaultCredentialsFile())
	}
	if filepath.Base(DefaultTokenFile()) != "token.json" {
		t.Errorf("unexpected token file name: %s", DefaultTokenFile())
	}
}
