package classify

import (
	"sort"
	"strings"

	"github.com/mailpilot/mailpilot/internal/config"
	"github.com/mailpilot/mailpilot/internal/gmail"
)

// Other is the sentinel category id assigned to messages no rule matches.
const Other = "other"

// Rule is one compiled category rule. Sender and subject patterns are matched
// as case-insensitive substrings; labels require exact membership.
type Rule struct {
	ID       string
	Name     string
	Priority int

	senders  []string // pre-lowercased
	subjects []string // pre-lowercased
	labels   []string
}

// NewRule compiles a category definition into a matchable rule.
func NewRule(c config.Category) Rule {
	r := Rule{
		ID:       c.ID,
		Name:     c.Name,
		Priority: c.Priority,
		labels:   c.Matchers.Labels,
	}
	for _, p := range c.Matchers.Senders {
		r.senders = append(r.senders, strings.ToLower(p))
	}
	for _, p := range c.Matchers.Subjects {
		r.subjects = append(r.subjects, strings.ToLower(p))
	}
	return r
}

// Matches reports whether the message hits any of the rule's matcher groups.
// A rule with no populated groups never matches. Pure function, no I/O.
func (r *Rule) Matches(msg *gmail.Message) bool {
	sender := strings.ToLower(msg.Sender)
	for _, p := range r.senders {
		if strings.Contains(sender, p) {
			return true
		}
	}
	subject := strings.ToLower(msg.Subject)
	for _, p := range r.subjects {
		if strings.Contains(subject, p) {
			return true
		}
	}
	for _, l := range r.labels {
		if msg.HasLabel(l) {
			return true
		}
	}
	return false
}

// Categorizer assigns each message to at most one category. The rule set is
// fixed at construction and safe for concurrent use without synchronization.
type Categorizer struct {
	rules []Rule
}

// NewCategorizer compiles the configured categories, ordered by ascending
// priority with configuration order breaking ties. Definitions are expected to
// have passed config validation (non-empty, unique, non-reserved ids).
func NewCategorizer(cats []config.Category) *Categorizer {
	rules := make([]Rule, 0, len(cats))
	for _, c := range cats {
		rules = append(rules, NewRule(c))
	}
	// Stable sort keeps configuration order for equal priorities.
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
	return &Categorizer{rules: rules}
}

// Categorize returns the id of the first rule, in priority order, that matches
// the message, or Other if none does. Identical input always yields identical
// output.
func (c *Categorizer) Categorize(msg *gmail.Message) string {
	for i := range c.rules {
		if c.rules[i].Matches(msg) {
			return c.rules[i].ID
		}
	}
	return Other
}

// Rules returns the compiled rules in evaluation order.
func (c *Categorizer) Rules() []Rule {
	return c.rules
}

// Order returns the category ids in evaluation order with Other appended.
// Summary renderings use this to keep sections in priority order.
func (c *Categorizer) Order() []string {
	ids := make([]string, 0, len(c.rules)+1)
	for i := range c.rules {
		ids = append(ids, c.rules[i].ID)
	}
	return append(ids, Other)
}
