package mailtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mailpilot/mailpilot/internal/gmail"
	"github.com/mailpilot/mailpilot/internal/tools"
	"github.com/mailpilot/mailpilot/internal/tools/batch"
)

func listLabelsTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_list_labels",
		Description: "List all labels in the mailbox.",
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			labels, err := gw.Labels(ctx)
			if err != nil {
				return nil, err
			}
			lines := []string{fmt.Sprintf("%d label(s)", len(labels))}
			for _, l := range labels {
				lines = append(lines, fmt.Sprintf("- %s (%s)", l.Name, l.ID))
			}
			return &tools.Result{
				Structured: map[string]interface{}{"labels": labels, "count": len(labels)},
				Text:       strings.Join(lines, "\n"),
			}, nil
		},
	}
}

func createLabelTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_create_label",
		Description: "Create a new user label.",
		Args: []tools.ArgSpec{
			{Name: "name", Type: tools.ArgString, Required: true, Description: "Label name"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			label, err := gw.CreateLabel(ctx, argString(args, "name", ""))
			if err != nil {
				return nil, err
			}
			return &tools.Result{
				Structured: label,
				Text:       fmt.Sprintf("Created label %s (%s)", label.Name, label.ID),
			}, nil
		},
	}
}

func deleteLabelTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_delete_label",
		Description: "Delete a user label by its ID.",
		Args: []tools.ArgSpec{
			{Name: "id", Type: tools.ArgString, Required: true, Description: "Label ID"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			id := argString(args, "id", "")
			if err := gw.DeleteLabel(ctx, id); err != nil {
				return nil, err
			}
			return &tools.Result{
				Structured: map[string]interface{}{"deleted": id},
				Text:       "Deleted label " + id,
			}, nil
		},
	}
}

func renameLabelTool(deps Deps) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "gmail_rename_label",
		Description: "Rename a user label.",
		Args: []tools.ArgSpec{
			{Name: "id", Type: tools.ArgString, Required: true, Description: "Label ID"},
			{Name: "name", Type: tools.ArgString, Required: true, Description: "New label name"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			label, err := gw.RenameLabel(ctx, argString(args, "id", ""), argString(args, "name", ""))
			if err != nil {
				return nil, err
			}
			return &tools.Result{
				Structured: label,
				Text:       fmt.Sprintf("Renamed label %s to %s", label.ID, label.Name),
			}, nil
		},
	}
}

func addLabelsTool(deps Deps) *tools.Descriptor {
	return labelBatchTool(deps, "gmail_add_labels", "Add labels to the given message IDs.", true)
}

func removeLabelsTool(deps Deps) *tools.Descriptor {
	return labelBatchTool(deps, "gmail_remove_labels", "Remove labels from the given message IDs.", false)
}

// labelBatchTool builds the shared add/remove descriptor. Labels may be
// given by name or ID; names resolve against the mailbox's label list.
func labelBatchTool(deps Deps, name, description string, add bool) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        name,
		Description: description,
		Args: []tools.ArgSpec{
			{Name: "ids", Type: tools.ArgStringOrArray, Required: true, Description: "Message ID or array of message IDs"},
			{Name: "labels", Type: tools.ArgStringOrArray, Required: true, Description: "Label name/ID or array of them"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			ids, err := batch.ParseStringOrArray(args["ids"], "ids")
			if err != nil {
				return nil, tools.NewValidationError("ids", err.Error())
			}
			labels, err := batch.ParseStringOrArray(args["labels"], "labels")
			if err != nil {
				return nil, tools.NewValidationError("labels", err.Error())
			}
			gw, err := deps.Gateway(ctx)
			if err != nil {
				return nil, err
			}
			labelIDs, err := resolveLabels(ctx, gw, labels)
			if err != nil {
				return nil, err
			}

			var outcomes []batch.Outcome
			verb := "Added"
			if add {
				outcomes = gw.ModifyLabels(ctx, ids, labelIDs, nil)
			} else {
				outcomes = gw.ModifyLabels(ctx, ids, nil, labelIDs)
				verb = "Removed"
			}
			s := batch.Summarize(outcomes)
			return &tools.Result{
				Structured: s,
				Text:       fmt.Sprintf("%s %d label(s) on %d of %d message(s)", verb, len(labelIDs), s.Succeeded, s.Total),
			}, nil
		},
	}
}

// resolveLabels maps label names to IDs using the mailbox's label list.
// Values that already look like IDs (exact ID match) pass through; names
// match case-insensitively. Unknown values are a validation error, not a
// silent no-op against the upstream API.
func resolveLabels(ctx context.Context, gw *gmail.Gateway, values []string) ([]string, error) {
	labels, err := gw.Labels(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]bool, len(labels))
	byName := make(map[string]string, len(labels))
	for _, l := range labels {
		byID[l.ID] = true
		byName[strings.ToLower(l.Name)] = l.ID
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if byID[v] {
			out = append(out, v)
			continue
		}
		if id, ok := byName[strings.ToLower(v)]; ok {
			out = append(out, id)
			continue
		}
		return nil, tools.NewValidationError("labels", "unknown label "+v)
	}
	return out, nil
}
