package gmail

import (
	"context"
	"fmt"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mailpilot/mailpilot/internal/google"
)

// unreadLabel is the Gmail system label that marks a message unread.
const unreadLabel = "UNREAD"

// Client is the Gmail-backed Provider implementation. All methods issue raw
// API calls; pagination, retry and error classification live in the Gateway.
type Client struct {
	svc *gmail.UsersService
}

// NewClient creates a Gmail client authenticated with the cached OAuth token.
func NewClient(ctx context.Context, credentialsFile, tokenFile string) (*Client, error) {
	httpClient, err := google.HTTPClient(ctx, credentialsFile, tokenFile)
	if err != nil {
		return nil, fmt.Errorf("no valid Google OAuth token: %w", err)
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc.Users}, nil
}

// FetchMessages lists one page of messages matching the query and resolves
// each to its metadata. Returns the page and the next page token, empty when
// the listing is exhausted.
func (c *Client) FetchMessages(ctx context.Context, query, pageToken string, pageSize int64) ([]Message, string, error) {
	req := c.svc.Messages.List("me").Q(query).MaxResults(pageSize).Context(ctx)
	if pageToken != "" {
		req = req.PageToken(pageToken)
	}
	res, err := req.Do()
	if err != nil {
		return nil, "", err
	}

	msgs := make([]Message, 0, len(res.Messages))
	for _, m := range res.Messages {
		full, err := c.FetchMessage(ctx, m.Id)
		if err != nil {
			return nil, "", err
		}
		msgs = append(msgs, *full)
	}
	return msgs, res.NextPageToken, nil
}

// FetchMessage retrieves a single message's metadata.
func (c *Client) FetchMessage(ctx context.Context, id string) (*Message, error) {
	m, err := c.svc.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders("From", "Subject").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	msg := messageFromAPI(m)
	return &msg, nil
}

func messageFromAPI(m *gmail.Message) Message {
	msg := Message{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Snippet:  m.Snippet,
		Labels:   m.LabelIds,
	}
	if m.InternalDate > 0 {
		msg.ReceivedAt = time.UnixMilli(m.InternalDate).UTC()
	}
	for _, l := range m.LabelIds {
		if l == unreadLabel {
			msg.IsUnread = true
			break
		}
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch h.Name {
			case "From":
				msg.Sender = h.Value
			case "Subject":
				msg.Subject = h.Value
			}
		}
	}
	return msg
}

// FetchLabels lists the mailbox's labels.
func (c *Client) FetchLabels(ctx context.Context) ([]Label, error) {
	res, err := c.svc.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	labels := make([]Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		labels = append(labels, Label{
			ID:             l.Id,
			Name:           l.Name,
			Type:           l.Type,
			MessagesUnread: l.MessagesUnread,
		})
	}
	return labels, nil
}

// CreateLabel creates a user label.
func (c *Client) CreateLabel(ctx context.Context, name string) (*Label, error) {
	l, err := c.svc.Labels.Create("me", &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return &Label{ID: l.Id, Name: l.Name, Type: l.Type}, nil
}

// DeleteLabel removes a user label by id.
func (c *Client) DeleteLabel(ctx context.Context, id string) error {
	return c.svc.Labels.Delete("me", id).Context(ctx).Do()
}

// RenameLabel changes a user label's name, keeping its id.
func (c *Client) RenameLabel(ctx context.Context, id, newName string) (*Label, error) {
	l, err := c.svc.Labels.Patch("me", id, &gmail.Label{Name: newName}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return &Label{ID: l.Id, Name: l.Name, Type: l.Type}, nil
}

// ModifyMessage adds and removes labels on one message.
func (c *Client) ModifyMessage(ctx context.Context, id string, add, remove []string) error {
	_, err := c.svc.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	return err
}

// SendMessage sends an email, threading it into an existing conversation when
// the request carries threading headers. Returns the sent message id.
func (c *Client) SendMessage(ctx context.Context, req *SendRequest) (string, error) {
	raw, err := buildMIME(req)
	if err != nil {
		return "", err
	}
	msg := &gmail.Message{Raw: raw}
	if req.ThreadID != "" {
		msg.ThreadId = req.ThreadID
	}
	sent, err := c.svc.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}

// ResolveLabelIDs maps label names to ids, passing through values that
// already look like ids. Unknown names are returned unchanged so the API can
// report them per message.
func (c *Client) ResolveLabelIDs(ctx context.Context, names []string) ([]string, error) {
	labels, err := c.FetchLabels(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(labels))
	byID := make(map[string]bool, len(labels))
	for _, l := range labels {
		byName[l.Name] = l.ID
		byID[l.ID] = true
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if byID[n] {
			out = append(out, n)
			continue
		}
		if id, ok := byName[n]; ok {
			out = append(out, id)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
