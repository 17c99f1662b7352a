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

// NewMCPServer builds the MCP protocol server and registers every tool in
// the registry against it, plus the mailbox resources. The MCP layer is a
// thin bridge: argument schemas come from the descriptors, execution goes
// through the dispatcher so stdio clients get the same validation, metrics,
// and audit trail as streaming ones.
func NewMCPServer(name, version string, dispatcher *tools.Dispatcher) (*mcpserver.MCPServer, error) {
	srv := mcpserver.NewMCPServer(name, version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)
	for _, d := range dispatcher.Registry().Descriptors() {
		srv.AddTool(bridgeTool(d), bridgeHandler(d.Name, dispatcher))
	}
	RegisterMailResources(srv, dispatcher)
	return srv, nil
}

// bridgeTool translates a descriptor's argument specs into an MCP tool
// schema. StringOrArray arguments are declared as strings; the MCP schema
// language has no union type, so the array form is documented in the
// description and accepted at validation time.
func bridgeTool(d *tools.Descriptor) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(d.Description)}
	for _, arg := range d.Args {
		var argOpts []mcp.PropertyOption
		if arg.Required {
			argOpts = append(argOpts, mcp.Required())
		}
		switch arg.Type {
		case tools.ArgNumber:
			argOpts = append(argOpts, mcp.Description(arg.Description))
			opts = append(opts, mcp.WithNumber(arg.Name, argOpts...))
		case tools.ArgBoolean:
			argOpts = append(argOpts, mcp.Description(arg.Description))
			opts = append(opts, mcp.WithBoolean(arg.Name, argOpts...))
		case tools.ArgStringOrArray:
			argOpts = append(argOpts, mcp.Description(arg.Description+" (string or array of strings)"))
			opts = append(opts, mcp.WithString(arg.Name, argOpts...))
		default:
			argOpts = append(argOpts, mcp.Description(arg.Description))
			opts = append(opts, mcp.WithString(arg.Name, argOpts...))
		}
	}
	return mcp.NewTool(d.Name, opts...)
}

func bridgeHandler(name string, dispatcher *tools.Dispatcher) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		inv := &tools.Invocation{
			RequestID: uuid.NewString(),
			Tool:      name,
			Arguments: request.GetArguments(),
		}
		resp := dispatcher.Dispatch(ctx, inv)
		if resp.State == tools.StateFailed {
			msg := "tool failed"
			if resp.Error != nil {
				msg = fmt.Sprintf("%s: %s", resp.Error.Kind, resp.Error.Message)
			}
			return mcp.NewToolResultError(msg), nil
		}
		return toolResult(resp.Result)
	}
}

// toolResult renders a result for MCP clients: the text digest when present,
// otherwise the structured payload as JSON.
func toolResult(res *tools.Result) (*mcp.CallToolResult, error) {
	if res == nil {
		return mcp.NewToolResultText(""), nil
	}
	if res.Text != "" {
		return mcp.NewToolResultText(res.Text), nil
	}
	data, err := json.Marshal(res.Structured)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
