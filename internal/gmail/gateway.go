package gmail

import (
	"context"
	"log/slog"
	"time"

	"github.com/mailpilot/mailpilot/internal/instrumentation"
	"github.com/mailpilot/mailpilot/internal/logging"
	"github.com/mailpilot/mailpilot/internal/tools/batch"
)

// maxPageSize is the largest page the Gmail list API serves.
const maxPageSize = 100

// Provider is the thin surface over the upstream mail API. The production
// implementation is Client; tests substitute fakes.
type Provider interface {
	FetchMessages(ctx context.Context, query, pageToken string, pageSize int64) ([]Message, string, error)
	FetchMessage(ctx context.Context, id string) (*Message, error)
	FetchLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, name string) (*Label, error)
	DeleteLabel(ctx context.Context, id string) error
	RenameLabel(ctx context.Context, id, newName string) (*Label, error)
	ModifyMessage(ctx context.Context, id string, add, remove []string) error
	SendMessage(ctx context.Context, req *SendRequest) (string, error)
}

// GatewayOptions tune the gateway's pagination, retry and deadline behavior.
type GatewayOptions struct {
	// MaxPages bounds how many list pages one search walks.
	MaxPages int
	// MaxRetries bounds attempts per upstream call for transient errors.
	MaxRetries int
	// Timeout bounds one gateway operation, retries included.
	Timeout time.Duration
	// Metrics, when set, receives per-operation counters and durations.
	Metrics *instrumentation.Metrics
}

// DefaultGatewayOptions returns the bounds used when the caller passes zero
// values.
func DefaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		MaxPages:   10,
		MaxRetries: 5,
		Timeout:    2 * time.Minute,
	}
}

// Gateway wraps a Provider with pagination, bounded retry of transient
// errors, per-id batch mutation outcomes, and query translation. It is the
// single place upstream errors are classified; everything above it sees only
// TransientError, PermanentError or context errors.
type Gateway struct {
	provider Provider
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	opts     GatewayOptions
}

// NewGateway creates a gateway over the given provider. Zero option fields
// fall back to defaults.
func NewGateway(p Provider, logger *slog.Logger, opts GatewayOptions) *Gateway {
	def := DefaultGatewayOptions()
	if opts.MaxPages <= 0 {
		opts.MaxPages = def.MaxPages
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{provider: p, logger: logger, metrics: opts.Metrics, opts: opts}
}

func (g *Gateway) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.opts.Timeout)
}

// Search lists messages matching the query, walking pages until the provider
// stops returning a page token, maxResults is reached, or the page bound is
// hit. The query is translated to native syntax best-effort. Provider order
// is preserved.
func (g *Gateway) Search(ctx context.Context, query string, maxResults int64) ([]Message, error) {
	ctx, cancel := g.deadline(ctx)
	defer cancel()

	q := TranslateQuery(query)
	if q != query {
		g.logger.Debug("translated query", slog.String("from", query), slog.String("to", q))
	}

	var all []Message
	pageToken := ""
	for page := 0; page < g.opts.MaxPages; page++ {
		remaining := maxResults - int64(len(all))
		if remaining <= 0 {
			break
		}
		pageSize := remaining
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		token := pageToken
		type pageResult struct {
			msgs []Message
			next string
		}
		res, err := withRetry(ctx, g, "search", func() (pageResult, error) {
			msgs, next, err := g.provider.FetchMessages(ctx, q, token, pageSize)
			return pageResult{msgs: msgs, next: next}, err
		})
		if err != nil {
			return nil, err
		}

		all = append(all, res.msgs...)
		if res.next == "" {
			break
		}
		pageToken = res.next
	}

	if int64(len(all)) > maxResults {
		all = all[:maxResults]
	}
	return all, nil
}

// ListUnread lists unread messages, optionally scoped by an extra query.
func (g *Gateway) ListUnread(ctx context.Context, extraQuery string, maxResults int64) ([]Message, error) {
	q := "is:unread"
	if extraQuery != "" {
		q = q + " " + TranslateQuery(extraQuery)
	}
	return g.Search(ctx, q, maxResults)
}

// GetMessage fetches one message by id.
func (g *Gateway) GetMessage(ctx context.Context, id string) (*Message, error) {
	ctx, cancel := g.deadline(ctx)
	defer cancel()
	return withRetry(ctx, g, "get_message", func() (*Message, error) {
		return g.provider.FetchMessage(ctx, id)
	})
}

// Labels lists the mailbox's labels.
func (g *Gateway) Labels(ctx context.Context) ([]Label, error) {
	ctx, cancel := g.deadline(ctx)
	defer cancel()
	return withRetry(ctx, g, "list_labels", func() ([]Label, error) {
		return g.provider.FetchLabels(ctx)
	})
}

// CreateLabel creates a user label.
func (g *Gateway) CreateLabel(ctx context.Context, name string) (*Label, error) {
	ctx, cancel := g.deadline(ctx)
	defer cancel()
	return withRetry(ctx, g, "create_label", func() (*Label, error) {
		return g.provider.CreateLabel(ctx, name)
	})
}

// DeleteLabel removes a user label.
func (g *Gateway) DeleteLabel(ctx context.Context, id string) error {
	ctx, cancel := g.deadline(ctx)
	defer cancel()
	_, err := withRetry(ctx, g, "delete_label", func() (struct{}, error) {
		return struct{}{}, g.provider.DeleteLabel(ctx, id)
	})
	return err
}

// RenameLabel changes a user label's display name.
func (g *Gateway) RenameLabel(ctx context.Context, id, newName string) (*Label, error) {
	ctx, cancel := g.deadline(ctx)
	defer cancel()
	return withRetry(ctx, g, "rename_label", func() (*Label, error) {
		return g.provider.RenameLabel(ctx, id, newName)
	})
}

// ModifyLabels applies label additions and removals to each id, one outcome
// per id. Individual failures never fail the batch; transient errors are
// retried per id within the shared deadline.
func (g *Gateway) ModifyLabels(ctx context.Context, ids, add, remove []string) []batch.Outcome {
	ctx, cancel := g.deadline(ctx)
	defer cancel()
	return batch.Process(ctx, ids, func(id string) error {
		_, err := withRetry(ctx, g, "modify_labels", func() (struct{}, error) {
			return struct{}{}, g.provider.ModifyMessage(ctx, id, add, remove)
		})
		return err
	})
}

// MarkRead clears the unread flag on each id with per-id outcomes.
func (g *Gateway) MarkRead(ctx context.Context, ids []string) []batch.Outcome {
	return g.ModifyLabels(ctx, ids, nil, []string{unreadLabel})
}

// MarkUnread sets the unread flag on each id with per-id outcomes.
func (g *Gateway) MarkUnread(ctx context.Context, ids []string) []batch.Outcome {
	return g.ModifyLabels(ctx, ids, []string{unreadLabel}, nil)
}

// MarkReadByQuery marks everything matching the query as read. The query is
// scoped to unread messages so already-read matches are not counted. Returns
// the matched count alongside per-id outcomes.
func (g *Gateway) MarkReadByQuery(ctx context.Context, query string, maxResults int64) (int, []batch.Outcome, error) {
	q := TranslateQuery(query)
	if q != "" {
		q = q + " is:unread"
	} else {
		q = "is:unread"
	}
	msgs, err := g.Search(ctx, q, maxResults)
	if err != nil {
		return 0, nil, err
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return len(ids), g.MarkRead(ctx, ids), nil
}

// Send sends an email. Sends are deliberately not retried: after an
// ambiguous failure a retransmit risks duplicate delivery.
func (g *Gateway) Send(ctx context.Context, req *SendRequest) (string, error) {
	ctx, cancel := g.deadline(ctx)
	defer cancel()

	start := time.Now()
	id, err := g.provider.SendMessage(ctx, req)
	if err != nil {
		err = ClassifyError(err)
		g.logger.Warn("send failed", logging.Operation("send"), logging.Err(err))
	}
	g.recordOperation(ctx, "send", err, time.Since(start))
	if err != nil {
		return "", err
	}
	return id, nil
}
