package mailtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mailpilot/mailpilot/internal/gmail"
	"github.com/mailpilot/mailpilot/internal/summary"
	"github.com/mailpilot/mailpilot/internal/tools"
	"github.com/mailpilot/mailpilot/internal/tools/batch"
)

func searchTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_search",
		Description: "Search emails. Accepts Gmail query syntax (from:, subject:, is:unread, ...) or free text.",
		Args: []tools.ArgSpec{
			{Name: "query", Type: tools.ArgString, Required: true, Description: "Search query"},
			{Name: "maxResults", Type: tools.ArgNumber, Description: "Maximum number of results (default 50)"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			query := argString(args, "query", "")
			msgs, err := gw.Search(ctx, query, argInt64(args, "maxResults", defaultMaxResults))
			if err != nil {
				return nil, err
			}
			return &tools.Result{
				Structured: map[string]interface{}{"messages": msgs, "count": len(msgs)},
				Text:       renderMessageList(fmt.Sprintf("%d message(s) matching %q", len(msgs), query), msgs, deps),
			}, nil
		},
	}
}

func getEmailTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_get_email",
		Description: "Fetch a single email by its message ID.",
		Args: []tools.ArgSpec{
			{Name: "id", Type: tools.ArgString, Required: true, Description: "Message ID"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			msg, err := gw.GetMessage(ctx, argString(args, "id", ""))
			if err != nil {
				return nil, err
			}
			category := deps.Categorizer.Categorize(msg)
			return &tools.Result{
				Structured: summary.CategorizedMessage{Message: *msg, CategoryID: category},
				Text:       fmt.Sprintf("%s - %s [%s]", msg.Subject, msg.Sender, category),
			}, nil
		},
	}
}

func listUnreadTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_list_unread",
		Description: "List unread emails, optionally filtered to one category.",
		Args: []tools.ArgSpec{
			{Name: "category", Type: tools.ArgString, Description: "Restrict to this category ID"},
			{Name: "query", Type: tools.ArgString, Description: "Additional query to narrow the listing"},
			{Name: "maxResults", Type: tools.ArgNumber, Description: "Maximum number of results (default 50)"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			category := argString(args, "category", "")
			if category != "" && !knownCategory(deps, category) {
				return nil, tools.NewValidationError("category", "unknown category "+category)
			}

			msgs, err := gw.ListUnread(ctx, argString(args, "query", ""), argInt64(args, "maxResults", defaultMaxResults))
			if err != nil {
				return nil, err
			}

			categorized := make([]summary.CategorizedMessage, 0, len(msgs))
			for i := range msgs {
				id := deps.Categorizer.Categorize(&msgs[i])
				if category != "" && id != category {
					continue
				}
				categorized = append(categorized, summary.CategorizedMessage{Message: msgs[i], CategoryID: id})
			}

			header := fmt.Sprintf("%d unread message(s)", len(categorized))
			if category != "" {
				header += " in " + category
			}
			var lines []string
			for _, m := range categorized {
				lines = append(lines, fmt.Sprintf("- %s - %s [%s]", m.Subject, m.Sender, m.CategoryID))
			}
			return &tools.Result{
				Structured: map[string]interface{}{"messages": categorized, "count": len(categorized)},
				Text:       strings.Join(append([]string{header}, lines...), "\n"),
			}, nil
		},
	}
}

func markReadByIDsTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_mark_read_by_ids",
		Description: "Mark the given message IDs as read. Reports a per-ID outcome.",
		Args: []tools.ArgSpec{
			{Name: "ids", Type: tools.ArgStringOrArray, Required: true, Description: "Message ID or array of message IDs"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			ids, err := batch.ParseStringOrArray(args["ids"], "ids")
			if err != nil {
				return nil, tools.NewValidationError("ids", err.Error())
			}
			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			outcomes := gw.MarkRead(ctx, ids)
			s := batch.Summarize(outcomes)
			return &tools.Result{
				Structured: s,
				Text:       fmt.Sprintf("Marked %d of %d message(s) as read", s.Succeeded, s.Total),
			}, nil
		},
	}
}

func markUnreadByIDsTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_mark_unread_by_ids",
		Description: "Mark the given message IDs as unread. Reports a per-ID outcome.",
		Args: []tools.ArgSpec{
			{Name: "ids", Type: tools.ArgStringOrArray, Required: true, Description: "Message ID or array of message IDs"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			ids, err := batch.ParseStringOrArray(args["ids"], "ids")
			if err != nil {
				return nil, tools.NewValidationError("ids", err.Error())
			}
			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			outcomes := gw.MarkUnread(ctx, ids)
			s := batch.Summarize(outcomes)
			return &tools.Result{
				Structured: s,
				Text:       fmt.Sprintf("Marked %d of %d message(s) as unread", s.Succeeded, s.Total),
			}, nil
		},
	}
}

func markReadByQueryTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_mark_read_by_query",
		Description: "Mark every unread message matching a query as read.",
		Args: []tools.ArgSpec{
			{Name: "query", Type: tools.ArgString, Required: true, Description: "Search query"},
			{Name: "maxResults", Type: tools.ArgNumber, Description: "Cap on how many matches to modify (default 500)"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			matched, outcomes, err := gw.MarkReadByQuery(ctx, argString(args, "query", ""), argInt64(args, "maxResults", summaryMaxResults))
			if err != nil {
				return nil, err
			}
			s := batch.Summarize(outcomes)
			return &tools.Result{
				Structured: map[string]interface{}{"matchedCount": matched, "summary": s},
				Text:       fmt.Sprintf("Matched %d message(s), marked %d as read", matched, s.Succeeded),
			}, nil
		},
	}
}

// renderMessageList renders a header plus one categorized line per message.
func renderMessageList(header string, msgs []gmail.Message, deps Deps) string {
	lines := []string{header}
	for i := range msgs {
		lines = append(lines, fmt.Sprintf("- %s - %s [%s]",
			msgs[i].Subject, msgs[i].Sender, deps.Categorizer.Categorize(&msgs[i])))
	}
	return strings.Join(lines, "\n")
}

// knownCategory reports whether id names a configured category or the
// fallback category.
func knownCategory(deps Deps, id string) bool {
	for _, known := range deps.Categorizer.Order() {
		if known == id {
			return true
		}
	}
	return false
}
