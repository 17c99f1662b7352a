package instrumentation

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

const (
	testEmail = "jane@example.com"
	testTool  = "gmail_search"
)

func TestToolInvocation_NewAndComplete(t *testing.T) {
	ti := NewToolInvocation(testTool)

	if ti.Tool != testTool {
		t.Errorf("Tool = %q, want %q", ti.Tool, testTool)
	}
	if ti.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}

	ti.CompleteSuccess()

	if !ti.Success {
		t.Error("Success should be true")
	}
	if ti.Duration < 0 {
		t.Error("Duration should not be negative")
	}
	if ti.Error != "" {
		t.Errorf("Error should be empty, got %q", ti.Error)
	}
	if ti.Status() != StatusSuccess {
		t.Errorf("Status() = %q, want %q", ti.Status(), StatusSuccess)
	}
}

func TestToolInvocation_CompleteWithError(t *testing.T) {
	ti := NewToolInvocation(testTool)
	ti.CompleteWithError(errors.New("permission denied"))

	if ti.Success {
		t.Error("Success should be false")
	}
	if ti.Error != "permission denied" {
		t.Errorf("Error = %q, want %q", ti.Error, "permission denied")
	}
	if ti.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", ti.Status(), StatusError)
	}
}

func TestToolInvocation_LogAttrs_AnonymizesUser(t *testing.T) {
	ti := NewToolInvocation(testTool).
		WithUser(testEmail).
		WithSession("sess-1", "req-1").
		CompleteSuccess()

	for _, attr := range ti.LogAttrs() {
		if attr.Key == "user" && strings.Contains(attr.Value.String(), "@") {
			t.Errorf("LogAttrs leaked raw email: %s", attr.Value.String())
		}
	}
}

func TestToolInvocation_LogAuditAttrs_IncludesUser(t *testing.T) {
	ti := NewToolInvocation(testTool).
		WithUser(testEmail).
		CompleteSuccess()

	found := false
	for _, attr := range ti.LogAuditAttrs() {
		if attr.Key == "user" && attr.Value.String() == testEmail {
			found = true
		}
	}
	if !found {
		t.Error("LogAuditAttrs should include the raw email address")
	}
}

func TestAuditLogger_RespectsPIIConfig(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLogger(logger)
	ti := NewToolInvocation(testTool).WithUser(testEmail).CompleteSuccess()

	al.LogToolInvocation(ti)

	if strings.Contains(buf.String(), testEmail) {
		t.Errorf("default audit logger leaked PII: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "tool_executed") {
		t.Errorf("expected tool_executed log entry, got: %s", buf.String())
	}
}

func TestAuditLogger_WithPII(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true, IncludePII: true})
	ti := NewToolInvocation(testTool).WithUser(testEmail).CompleteWithError(errors.New("boom"))

	al.LogToolInvocation(ti)

	if !strings.Contains(buf.String(), testEmail) {
		t.Errorf("PII-enabled audit logger should include the email, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "tool_failed") {
		t.Errorf("expected tool_failed log entry, got: %s", buf.String())
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: false})
	al.LogToolInvocation(NewToolInvocation(testTool).CompleteSuccess())

	if buf.Len() != 0 {
		t.Errorf("disabled audit logger should not write, got: %s", buf.String())
	}
}
