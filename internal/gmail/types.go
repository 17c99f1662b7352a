package gmail

import "time"

// Message is the transient, read-mostly view of an upstream mail message. The
// server never persists messages; instances live only for the duration of a
// request.
type Message struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"threadId"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Labels     []string  `json:"labels"`
	Snippet    string    `json:"snippet"`
	ReceivedAt time.Time `json:"receivedAt"`
	IsUnread   bool      `json:"isUnread"`
}

// HasLabel reports whether the message carries the given label. Matching is
// exact and case-sensitive; Gmail label names are case-preserving.
func (m *Message) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Label describes a Gmail label.
type Label struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	MessagesUnread int64  `json:"messagesUnread,omitempty"`
}

// SendRequest describes an outgoing email. Cc and Bcc are optional. ThreadID,
// InReplyTo and References thread the message into an existing conversation
// when set.
type SendRequest struct {
	To         string   `json:"to"`
	Cc         []string `json:"cc,omitempty"`
	Bcc        []string `json:"bcc,omitempty"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	HTML       bool     `json:"html,omitempty"`
	ThreadID   string   `json:"threadId,omitempty"`
	InReplyTo  string   `json:"inReplyTo,omitempty"`
	References string   `json:"references,omitempty"`
}
