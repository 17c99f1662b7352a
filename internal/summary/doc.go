// Package summary aggregates categorized messages into per-category counts,
// bounded highlight lists, and a plain-text digest suitable for notifications.
//
// Highlight retention uses a min-heap of the configured limit per category, so
// large inboxes never require a full sort. Summaries are built fresh per
// request and immutable once returned.
package summary
