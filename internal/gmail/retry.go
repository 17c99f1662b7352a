package gmail

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/mailpilot/mailpilot/internal/instrumentation"
	"github.com/mailpilot/mailpilot/internal/logging"
)

const initialBackoff = 500 * time.Millisecond

// withRetry runs fn with exponential backoff until it succeeds, returns a
// permanent error, the context ends, or the gateway's retry budget is spent.
// Errors are classified before the retry decision, so callers always receive
// a classified error. Each call is recorded as one gateway operation,
// retries included.
func withRetry[T any](ctx context.Context, g *Gateway, op string, fn func() (T, error)) (T, error) {
	ctx, span := instrumentation.StartGatewaySpan(ctx, op)
	defer span.End()

	start := time.Now()
	attempt := 0
	operation := func() (T, error) {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		err = ClassifyError(err)
		if IsPermanent(err) || errors.Is(err, context.Canceled) {
			return v, backoff.Permanent(err)
		}
		attempt++
		g.recordRetry(ctx, op)
		g.logger.Debug("retrying after transient upstream error",
			logging.Operation(op),
			slog.Int("attempt", attempt),
			logging.Err(err))
		return v, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialBackoff

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(g.opts.MaxRetries)))

	// When the gateway's deadline expires during a backoff wait, Retry
	// surfaces the raw context error without running the operation again.
	// Classify it like every other failure so deadline expiry reaches
	// callers as transient; caller cancellation stays unwrapped.
	err = ClassifyError(err)

	if err != nil {
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	g.recordOperation(ctx, op, err, time.Since(start))

	return v, err
}

// recordRetry feeds the retry counter when metrics are configured.
func (g *Gateway) recordRetry(ctx context.Context, op string) {
	if g.metrics != nil {
		g.metrics.RecordGatewayRetry(ctx, op)
	}
}

// recordOperation feeds the operation counter and duration histogram when
// metrics are configured.
func (g *Gateway) recordOperation(ctx context.Context, op string, err error, elapsed time.Duration) {
	if g.metrics == nil {
		return
	}
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	g.metrics.RecordGatewayOperation(ctx, op, status, elapsed)
}
