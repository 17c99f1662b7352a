package gmail

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"
)

// TransientError marks an upstream failure worth retrying: rate limits,
// server errors, timeouts. The gateway surfaces it only after the retry
// budget is exhausted.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient upstream error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks an upstream failure that retrying cannot fix: auth
// failures, permission errors, missing resources, malformed requests. It
// propagates immediately with the cause preserved.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent upstream error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is classified as transient.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsPermanent reports whether err is classified as permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// rate-limit reasons Gmail reports inside a 403.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
}

// ClassifyError wraps a raw provider error as transient or permanent. All
// provider-facing errors pass through here before reaching the dispatcher;
// nothing above the gateway inspects HTTP status codes. Context cancellation
// is returned unwrapped so callers can tell a closed session from an
// upstream failure.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) || IsPermanent(err) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &TransientError{Err: err}
		case apiErr.Code == 403:
			for _, item := range apiErr.Errors {
				if rateLimitReasons[item.Reason] {
					return &TransientError{Err: err}
				}
			}
			// Actual permission error.
			return &PermanentError{Err: err}
		case apiErr.Code >= 500:
			return &TransientError{Err: err}
		default:
			// 400, 401, 404 and other client errors.
			return &PermanentError{Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{Err: err}
	}

	// Unclassified network-level failures are assumed recoverable.
	return &TransientError{Err: err}
}
