package batch

import (
	"context"
	"encoding/json"
	"fmt"
)

// Outcome statuses. A batch call as a whole succeeds even when individual
// ids fail; callers inspect per-id statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Outcome is the result of one id within a batch mutation.
type Outcome struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Summary aggregates the outcomes of a batch mutation. Total always equals
// the number of ids submitted.
type Summary struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Summarize counts outcome statuses into a Summary.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Status == StatusSucceeded {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// FormatSummary renders a Summary as indented JSON for text output.
func FormatSummary(s Summary) string {
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// Process runs fn for each id and records one outcome per id, never failing
// the batch as a whole. When the context ends mid-batch, remaining ids are
// marked failed with the context error so the caller still receives exactly
// one outcome per submitted id.
func Process(ctx context.Context, ids []string, fn func(id string) error) []Outcome {
	outcomes := make([]Outcome, 0, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			for _, rest := range ids[i:] {
				outcomes = append(outcomes, Outcome{ID: rest, Status: StatusFailed, Error: err.Error()})
			}
			break
		}
		o := Outcome{ID: id, Status: StatusSucceeded}
		if err := fn(id); err != nil {
			o.Status = StatusFailed
			o.Error = err.Error()
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// ParseStringOrArray parses a parameter that can be either a single string or
// an array of strings.
func ParseStringOrArray(param interface{}, paramName string) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	var result []string

	switch v := param.(type) {
	case string:
		if v == "" {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		result = []string{v}
	case []interface{}:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			if str == "" {
				return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
			}
			result = append(result, str)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}

	return result, nil
}
