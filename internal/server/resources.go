package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mailpilot/mailpilot/internal/tools"
)

// RegisterMailResources registers the read-only mailbox resources. Each
// resource is backed by an existing tool and read through the dispatcher, so
// resource reads get the same validation, metrics, and audit trail as tool
// calls.
func RegisterMailResources(s *mcpserver.MCPServer, dispatcher *tools.Dispatcher) {
	statsResource := mcp.NewResource(
		"gmail://inbox/stats",
		"Inbox Statistics",
		mcp.WithResourceDescription("Current inbox statistics including unread count"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(statsResource, resourceHandler("gmail_inbox_stats", dispatcher))

	summaryResource := mcp.NewResource(
		"gmail://summary/daily",
		"Daily Summary",
		mcp.WithResourceDescription("Daily email summary organized by category"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(summaryResource, resourceHandler("gmail_daily_summary", dispatcher))
}

// resourceHandler reads a resource by dispatching its backing tool with
// default arguments and rendering the structured payload as JSON.
func resourceHandler(tool string, dispatcher *tools.Dispatcher) mcpserver.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		inv := &tools.Invocation{
			RequestID: uuid.NewString(),
			Tool:      tool,
			Arguments: map[string]any{},
		}
		resp := dispatcher.Dispatch(ctx, inv)
		if resp.State == tools.StateFailed {
			msg := "resource read failed"
			if resp.Error != nil {
				msg = fmt.Sprintf("%s: %s", resp.Error.Kind, resp.Error.Message)
			}
			return nil, fmt.Errorf("failed to read %s: %s", request.Params.URI, msg)
		}

		var payload any
		if resp.Result != nil {
			payload = resp.Result.Structured
		}
		jsonData, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal resource data: %w", err)
		}

		return []mcp.ResourceContents{
			&mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "application/json",
				Text:     string(jsonData),
			},
		}, nil
	}
}
