package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mailpilot/mailpilot/internal/instrumentation"
	"github.com/mailpilot/mailpilot/internal/logging"
)

const defaultTimeout = 10 * time.Second

// NotifyError wraps a webhook delivery failure with the operation that
// produced it.
type NotifyError struct {
	Op  string
	Err error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Op, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// Sink delivers digest text to an external webhook. The payload is a JSON
// object {"text": "..."}, which Slack-style incoming webhooks accept as-is.
type Sink struct {
	url     string
	client  *http.Client
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewSink creates a sink posting to the given webhook URL.
func NewSink(url string, logger *slog.Logger) (*Sink, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook URL cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}, nil
}

// SetMetrics installs a delivery counter. May be nil.
func (s *Sink) SetMetrics(m *instrumentation.Metrics) {
	s.metrics = m
}

// Notify posts the text to the webhook and waits for the response.
func (s *Sink) Notify(ctx context.Context, text string) error {
	err := s.post(ctx, text)
	if s.metrics != nil {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		s.metrics.RecordWebhookDelivery(ctx, status)
	}
	return err
}

// NotifyAsync delivers in the background. Failures are logged and dropped:
// a dead notification sink never fails the work that produced the digest.
// The delivery carries its own timeout, detached from the caller's context.
func (s *Sink) NotifyAsync(text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		if err := s.Notify(ctx, text); err != nil {
			s.logger.Warn("webhook notification failed", logging.Err(err))
		}
	}()
}

func (s *Sink) post(ctx context.Context, text string) error {
	if text == "" {
		return &NotifyError{Op: "post", Err: fmt.Errorf("text cannot be empty")}
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return &NotifyError{Op: "post", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return &NotifyError{Op: "post", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &NotifyError{Op: "post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &NotifyError{Op: "post", Err: fmt.Errorf("webhook returned %d: %s", resp.StatusCode, body)}
	}
	return nil
}
