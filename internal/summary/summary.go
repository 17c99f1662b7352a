package summary

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mailpilot/mailpilot/internal/classify"
	"github.com/mailpilot/mailpilot/internal/gmail"
)

// CategorizedMessage is a message together with its assigned category id.
// Computed per request, never persisted.
type CategorizedMessage struct {
	gmail.Message
	CategoryID string `json:"categoryId"`
}

// Entry holds one category's slice of a summary. Highlights are ordered most
// recent first and bounded by the aggregator's highlight limit.
type Entry struct {
	Count       int                  `json:"count"`
	UnreadCount int                  `json:"unreadCount"`
	Highlights  []CategorizedMessage `json:"highlights"`
}

// Summary is the aggregate view over a batch of messages. Every configured
// category appears in PerCategory, including those with zero counts.
// Immutable once returned.
type Summary struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	PerCategory map[string]*Entry `json:"perCategory"`
	TotalUnread int               `json:"totalUnread"`
	Total       int               `json:"total"`
}

// recentHeap is a min-heap on ReceivedAt holding a category's candidate
// highlights. Keeping the oldest retained message at the root makes bounded
// top-K retention an O(log k) replace instead of a full sort.
type recentHeap []CategorizedMessage

func (h recentHeap) Len() int            { return len(h) }
func (h recentHeap) Less(i, j int) bool  { return h[i].ReceivedAt.Before(h[j].ReceivedAt) }
func (h recentHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *recentHeap) Push(x interface{}) { *h = append(*h, x.(CategorizedMessage)) }
func (h *recentHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Summarize categorizes the messages and aggregates per-category counts,
// unread counts, and up to highlightLimit most-recent highlights. A nil or
// empty message slice yields a summary with all-zero counts.
func Summarize(msgs []gmail.Message, cat *classify.Categorizer, highlightLimit int) *Summary {
	s := &Summary{
		GeneratedAt: time.Now().UTC(),
		PerCategory: make(map[string]*Entry),
	}
	for _, id := range cat.Order() {
		s.PerCategory[id] = &Entry{}
	}

	heaps := make(map[string]*recentHeap)
	for i := range msgs {
		msg := &msgs[i]
		id := cat.Categorize(msg)
		entry := s.PerCategory[id]
		entry.Count++
		s.Total++
		if msg.IsUnread {
			entry.UnreadCount++
			s.TotalUnread++
		}
		if highlightLimit <= 0 {
			continue
		}
		cm := CategorizedMessage{Message: *msg, CategoryID: id}
		h, ok := heaps[id]
		if !ok {
			h = &recentHeap{}
			heaps[id] = h
		}
		if h.Len() < highlightLimit {
			heap.Push(h, cm)
		} else if (*h)[0].ReceivedAt.Before(cm.ReceivedAt) {
			(*h)[0] = cm
			heap.Fix(h, 0)
		}
	}

	for id, h := range heaps {
		highlights := make([]CategorizedMessage, h.Len())
		copy(highlights, *h)
		sort.Slice(highlights, func(i, j int) bool {
			return highlights[i].ReceivedAt.After(highlights[j].ReceivedAt)
		})
		s.PerCategory[id].Highlights = highlights
	}
	return s
}

// RenderText renders the plain-text digest: a header with the unread total,
// then one section per category in priority order with "other" last.
// Categories with no messages are omitted from the text entirely.
func RenderText(s *Summary, cat *classify.Categorizer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Email Summary (%d unread)\n", s.TotalUnread)

	names := make(map[string]string, len(cat.Rules()))
	for _, r := range cat.Rules() {
		names[r.ID] = r.Name
	}
	names[classify.Other] = "Other"

	for _, id := range cat.Order() {
		entry, ok := s.PerCategory[id]
		if !ok || entry.Count == 0 {
			continue
		}
		name := names[id]
		if name == "" {
			name = id
		}
		fmt.Fprintf(&b, "\n%s (%d, %d unread)\n", name, entry.Count, entry.UnreadCount)
		for _, m := range entry.Highlights {
			fmt.Fprintf(&b, "- %s - %s\n", m.Subject, m.Sender)
		}
		if extra := entry.Count - len(entry.Highlights); extra > 0 {
			fmt.Fprintf(&b, "  ...and %d more\n", extra)
		}
	}
	return b.String()
}
