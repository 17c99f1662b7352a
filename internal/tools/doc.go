// Package tools provides the tool registry, argument validation, error
// taxonomy, and the dispatcher that runs invocations through the
// received -> validating -> executing -> completed|failed lifecycle.
//
// The dispatcher is transport-agnostic: stdio MCP, SSE sessions, and the
// REST facade all funnel invocations through the same Dispatch call, so
// validation, error classification, metrics, and audit logging behave
// identically everywhere.
package tools
