package briefing

import (
	"fmt"
	"strings"

	"github.com/DariyDar/astra/internal/model"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// ValidationError rejects a whole query before any source is contacted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ClampLimit forces n into [1, MaxLimit]. Zero means DefaultLimit.
func ClampLimit(n int) int {
	if n == 0 {
		return DefaultLimit
	}
	return max(1, min(n, MaxLimit))
}

// Normalize checks q and returns the form the engine executes: sources
// deduplicated in request order, limit clamped, search term trimmed.
func Normalize(q model.Query) (model.Query, error) {
	if len(q.Sources) == 0 {
		return q, &ValidationError{Field: "sources", Reason: "at least one source is required"}
	}
	var invalid []string
	seen := map[model.SourceKind]bool{}
	sources := make([]model.SourceKind, 0, len(q.Sources))
	for _, s := range q.Sources {
		if !s.Valid() {
			invalid = append(invalid, string(s))
			continue
		}
		if !seen[s] {
			seen[s] = true
			sources = append(sources, s)
		}
	}
	if len(invalid) > 0 {
		return q, &ValidationError{
			Field:  "sources",
			Reason: fmt.Sprintf("invalid sources: %s. Valid: %s", strings.Join(invalid, ", "), validSources()),
		}
	}
	q.Sources = sources

	if q.Type == "" {
		q.Type = model.QueryRecent
	}
	if !q.Type.Valid() {
		return q, &ValidationError{Field: "query_type", Reason: fmt.Sprintf("unknown query type %q", q.Type)}
	}

	q.SearchTerm = strings.TrimSpace(q.SearchTerm)
	if q.Type == model.QuerySearch && q.SearchTerm == "" {
		return q, &ValidationError{Field: "search_term", Reason: "required when query_type is \"search\""}
	}

	q.LimitPerSource = ClampLimit(q.LimitPerSource)

	for _, f := range q.Fields {
		if !f.Valid() {
			return q, &ValidationError{Field: "fields", Reason: fmt.Sprintf("unknown field %q", f)}
		}
	}
	return q, nil
}

func validSources() string {
	names := make([]string, len(model.AllSources))
	for i, s := range model.AllSources {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
