package gmail

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
)

// encodeRFC2047 encodes a string for use in email headers according to RFC 2047.
// Necessary for non-ASCII characters (like umlauts) in subjects.
func encodeRFC2047(s string) string {
	needsEncoding := false
	for _, r := range s {
		if r > 127 {
			needsEncoding = true
			break
		}
	}
	if !needsEncoding {
		return s
	}
	return mime.BEncoding.Encode("UTF-8", s)
}

// buildMIME assembles an RFC 2822 message from the request and returns it
// base64url-encoded as the Gmail API expects.
func buildMIME(req *SendRequest) (string, error) {
	if req.To == "" {
		return "", fmt.Errorf("recipient is required")
	}
	if req.Subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	if req.Body == "" {
		return "", fmt.Errorf("body is required")
	}

	var b strings.Builder
	b.WriteString("To: ")
	b.WriteString(req.To)
	b.WriteString("\r\n")

	if len(req.Cc) > 0 {
		b.WriteString("Cc: ")
		b.WriteString(strings.Join(req.Cc, ", "))
		b.WriteString("\r\n")
	}
	if len(req.Bcc) > 0 {
		b.WriteString("Bcc: ")
		b.WriteString(strings.Join(req.Bcc, ", "))
		b.WriteString("\r\n")
	}

	b.WriteString("Subject: ")
	b.WriteString(encodeRFC2047(req.Subject))
	b.WriteString("\r\n")

	if req.InReplyTo != "" {
		b.WriteString("In-Reply-To: ")
		b.WriteString(req.InReplyTo)
		b.WriteString("\r\n")
	}
	if req.References != "" {
		b.WriteString("References: ")
		b.WriteString(req.References)
		b.WriteString("\r\n")
	}

	if req.HTML {
		b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	} else {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("\r\n")
	b.WriteString(req.Body)

	return base64.URLEncoding.EncodeToString([]byte(b.String())), nil
}
