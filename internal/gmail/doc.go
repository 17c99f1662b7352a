// Package gmail is the gateway between tool handlers and the Gmail API.
//
// Client issues raw API calls and maps wire types to the package's Message
// and Label types. Gateway layers the behavior the rest of the server relies
// on: bounded pagination, exponential-backoff retry of transient errors,
// immediate propagation of permanent errors, per-id outcomes for batch
// mutations, and best-effort translation of free-text queries into Gmail
// search syntax. Upstream errors are classified here and nowhere else.
package gmail
