// Package classify implements rule-based message categorization.
//
// Categories are prioritized rule bundles loaded once at startup. Each rule
// carries three matcher groups:
//   - sender patterns: case-insensitive substring match against the sender
//   - subject patterns: case-insensitive substring match against the subject
//   - labels: exact, case-sensitive membership in the message's label set
//
// A rule matches when any populated group yields a hit. The Categorizer
// evaluates rules in ascending priority order (configuration order breaks
// ties) and assigns each message the first matching rule's id, or "other"
// when nothing matches. Categorization is pure and deterministic, so the
// compiled rule set is shared across all sessions without locking.
package classify
