package gmail

import "strings"

// Gmail search operators recognized when deciding whether a query is already
// in native syntax.
var queryOperators = []string{
	"from:", "to:", "cc:", "bcc:", "subject:", "label:", "in:", "is:",
	"has:", "filename:", "before:", "after:", "older_than:", "newer_than:",
	"larger:", "smaller:", "category:", "deliveredto:", "list:",
}

// TranslateQuery converts a free-text query into Gmail query syntax on a
// best-effort basis. Queries that already contain a Gmail operator pass
// through unchanged; multi-word free text becomes a quoted phrase so it is
// not silently split into AND terms. Translation never fails: input it does
// not understand is passed through as-is.
func TranslateQuery(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return q
	}
	if HasQueryOperator(q) {
		return q
	}
	// Already quoted or grouped input is left alone.
	if strings.ContainsAny(q, `"()`) || strings.Contains(q, " OR ") {
		return q
	}
	if strings.ContainsAny(q, " \t") {
		return `"` + q + `"`
	}
	return q
}

// HasQueryOperator reports whether q contains a known Gmail search operator.
// Operators count only at the start of a token, optionally behind negation
// or grouping ("robin:" must not count as "in:").
func HasQueryOperator(q string) bool {
	for _, token := range strings.Fields(strings.ToLower(q)) {
		token = strings.TrimLeft(token, "-(")
		for _, op := range queryOperators {
			if strings.HasPrefix(token, op) {
				return true
			}
		}
	}
	return false
}
