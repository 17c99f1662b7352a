package mailtools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailpilot/mailpilot/internal/classify"
	"github.com/mailpilot/mailpilot/internal/instrumentation"
	"github.com/mailpilot/mailpilot/internal/summary"
	"github.com/mailpilot/mailpilot/internal/tools"
)

// DailySummary fetches the lookback window and aggregates it. The returned
// text is the digest rendering. Shared by the summary tool, the REST facade,
// the webhook trigger, the push scheduler, and the one-shot CLI.
func DailySummary(ctx context.Context, deps Deps, hours, limit int) (*summary.Summary, string, error) {
	if hours <= 0 {
		hours = deps.LookbackHours
	}
	if limit <= 0 {
		limit = deps.HighlightLimit
	}

	gw, err := deps.Gateway(ctx)
	if err != nil {
		return nil, "", err
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	msgs, err := gw.Search(ctx, fmt.Sprintf("after:%d", since.Unix()), summaryMaxResults)
	if err != nil {
		return nil, "", err
	}

	s := summary.Summarize(msgs, deps.Categorizer, limit)
	return s, summary.RenderText(s, deps.Categorizer), nil
}

func dailySummaryTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_daily_summary",
		Description: "Summarize recent email per category: counts, unread counts, and latest highlights.",
		Args: []tools.ArgSpec{
			{Name: "hours", Type: tools.ArgNumber, Description: "Lookback window in hours (default 24)"},
			{Name: "limit", Type: tools.ArgNumber, Description: "Highlights per category (default 5)"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			s, text, err := DailySummary(ctx, deps,
				int(argInt64(args, "hours", int64(deps.LookbackHours))),
				int(argInt64(args, "limit", int64(deps.HighlightLimit))))
			if err != nil {
				return nil, err
			}
			if deps.Metrics != nil {
				deps.Metrics.RecordDigest(ctx, instrumentation.TriggerTool)
			}
			return &tools.Result{Structured: s, Text: text}, nil
		},
	}
}

func categorySummaryTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_category_summary",
		Description: "Summarize one category over the lookback window.",
		Args: []tools.ArgSpec{
			{Name: "category", Type: tools.ArgString, Required: true, Description: "Category ID"},
			{Name: "hours", Type: tools.ArgNumber, Description: "Lookback window in hours (default 24)"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			category := argString(args, "category", "")
			if !knownCategory(deps, category) {
				return nil, tools.NewValidationError("category", "unknown category "+category)
			}

			s, _, err := DailySummary(ctx, deps, int(argInt64(args, "hours", int64(deps.LookbackHours))), deps.HighlightLimit)
			if err != nil {
				return nil, err
			}

			entry := s.PerCategory[category]
			lines := []string{fmt.Sprintf("%s: %d message(s), %d unread", category, entry.Count, entry.UnreadCount)}
			for _, m := range entry.Highlights {
				lines = append(lines, fmt.Sprintf("- %s - %s", m.Subject, m.Sender))
			}
			return &tools.Result{
				Structured: map[string]interface{}{"categoryId": category, "entry": entry},
				Text:       strings.Join(lines, "\n"),
			}, nil
		},
	}
}

func inboxStatsTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_inbox_stats",
		Description: "Report unread counts, total and per category.",
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			msgs, err := gw.ListUnread(ctx, "", summaryMaxResults)
			if err != nil {
				return nil, err
			}

			perCategory := make(map[string]int)
			for _, id := range deps.Categorizer.Order() {
				perCategory[id] = 0
			}
			for i := range msgs {
				perCategory[deps.Categorizer.Categorize(&msgs[i])]++
			}

			lines := []string{fmt.Sprintf("%d unread message(s)", len(msgs))}
			for _, id := range deps.Categorizer.Order() {
				if perCategory[id] > 0 {
					lines = append(lines, fmt.Sprintf("- %s: %d", id, perCategory[id]))
				}
			}
			return &tools.Result{
				Structured: map[string]interface{}{
					"totalUnread":       len(msgs),
					"perCategoryUnread": perCategory,
				},
				Text: strings.Join(lines, "\n"),
			}, nil
		},
	}
}

func getCategoriesTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_get_categories",
		Description: "List the configured categories in evaluation order.",
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			lines := make([]string, 0, len(deps.Categories)+1)
			for _, c := range deps.Categories {
				lines = append(lines, fmt.Sprintf("- %s (%s, priority %d)", c.Name, c.ID, c.Priority))
			}
			lines = append(lines, fmt.Sprintf("- Other (%s, fallback)", classify.Other))
			return &tools.Result{
				Structured: map[string]interface{}{"categories": deps.Categories, "fallback": classify.Other},
				Text:       strings.Join(lines, "\n"),
			}, nil
		},
	}
}
