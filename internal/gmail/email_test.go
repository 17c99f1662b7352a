package gmail

import (
	"encoding/base64"
	"strings"
	"testing"
)

func decodeMIME(t *testing.T, raw string) string {
	t.Helper()
	data, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("raw message is not base64url: %v", err)
	}
	return string(data)
}

func TestBuildMIME(t *testing.T) {
	raw, err := buildMIME(&SendRequest{
		To:      "alice@example.com",
		Subject: "Status update",
		Body:    "All systems nominal.",
	})
	if err != nil {
		t.Fatalf("buildMIME failed: %v", err)
	}
	msg := decodeMIME(t, raw)

	for _, want := range []string{
		"To: alice@example.com\r\n",
		"Subject: Status update\r\n",
		"Content-Type: text/plain; charset=\"UTF-8\"\r\n",
		"MIME-Version: 1.0\r\n",
		"\r\n\r\nAll systems nominal.",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Cc:") || strings.Contains(msg, "Bcc:") {
		t.Error("empty Cc/Bcc must not emit headers")
	}
}

func TestBuildMIME_HTMLAndRecipients(t *testing.T) {
	raw, err := buildMIME(&SendRequest{
		To:      "alice@example.com",
		Cc:      []string{"bob@example.com", "carol@example.com"},
		Bcc:     []string{"dave@example.com"},
		Subject: "Hello",
		Body:    "<p>Hi</p>",
		HTML:    true,
	})
	if err != nil {
		t.Fatalf("buildMIME failed: %v", err)
	}
	msg := decodeMIME(t, raw)

	if !strings.Contains(msg, "Cc: bob@example.com, carol@example.com\r\n") {
		t.Errorf("missing Cc header:\n%s", msg)
	}
	if !strings.Contains(msg, "Bcc: dave@example.com\r\n") {
		t.Errorf("missing Bcc header:\n%s", msg)
	}
	if !strings.Contains(msg, "Content-Type: text/html; charset=\"UTF-8\"\r\n") {
		t.Errorf("missing HTML content type:\n%s", msg)
	}
}

func TestBuildMIME_Threading(t *testing.T) {
	raw, err := buildMIME(&SendRequest{
		To:         "alice@example.com",
		Subject:    "Re: planning",
		Body:       "sounds good",
		InReplyTo:  "<msg-1@example.com>",
		References: "<msg-0@example.com> <msg-1@example.com>",
	})
	if err != nil {
		t.Fatalf("buildMIME failed: %v", err)
	}
	msg := decodeMIME(t, raw)

	if !strings.Contains(msg, "In-Reply-To: <msg-1@example.com>\r\n") {
		t.Errorf("missing In-Reply-To:\n%s", msg)
	}
	if !strings.Contains(msg, "References: <msg-0@example.com> <msg-1@example.com>\r\n") {
		t.Errorf("missing References:\n%s", msg)
	}
}

func TestBuildMIME_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  SendRequest
	}{
		{name: "missing recipient", req: SendRequest{Subject: "s", Body: "b"}},
		{name: "missing subject", req: SendRequest{To: "a@b.com", Body: "b"}},
		{name: "missing body", req: SendRequest{To: "a@b.com", Subject: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildMIME(&tt.req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEncodeRFC2047(t *testing.T) {
	if got := encodeRFC2047("plain ascii"); got != "plain ascii" {
		t.Errorf("ascii subject modified: %q", got)
	}
	got := encodeRFC2047("Grüße aus München")
	if !strings.HasPrefix(got, "=?UTF-8?") {
		t.Errorf("non-ascii subject not encoded: %q", got)
	}
}
