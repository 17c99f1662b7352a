// Package server wires the transports together: the MCP protocol server
// (stdio and SSE), the REST facade, and the metrics/health server, all over
// one shared ServerContext that owns the settings, the categorizer, and the
// lazily initialized Gmail gateway. Session lifecycle for the streaming
// transport lives here too.
package server
