// Package cmd implements the command-line interface for mailpilot.
//
// This package provides the following commands:
//   - serve: Start the MCP server (stdio or SSE), optionally with the REST
//     API, the metrics server, and a scheduled summary push
//   - summary: Print the daily inbox digest and exit
//   - auth: Run the OAuth authorization flow
//   - version: Display version information
package cmd
