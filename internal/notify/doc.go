// Package notify delivers digest text to an external webhook sink.
// Delivery is best-effort: the webhook trigger and the push scheduler use
// NotifyAsync, so a failing sink never blocks or fails summary generation.
package notify
