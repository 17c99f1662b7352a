// Package mailtools defines the mail-facing tools: search and retrieval,
// unread listings, per-category summaries, label management, batch
// mark-read, and sending. Handlers compose the Gmail gateway, the
// categorizer, and the summary aggregator; they hold no state of their own.
package mailtools
