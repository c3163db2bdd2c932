package analysis

import (
	"context"

	"github.com/jward/luasense/internal/typedef"
)

// Query describes a completion request against an analysis whose source
// had the Placeholder spliced in at the cursor.
type Query struct {
	// Prefix is the partially typed name; matches must start with it.
	Prefix string
	// Dot is "." or ":" when completion follows a field access or method
	// call operator, and empty for bare names.
	Dot string
}

// Trigger reports whether q completes the fields of an expression rather
// than the names in scope.
func (q Query) Trigger() bool {
	return q.Dot == "." || q.Dot == ":"
}

// SolveQuery evaluates the analysis and returns the completions for q,
// sorted by name. After "." or ":" the candidates are the fields of the
// expression before the operator, and ":" keeps only functions. Otherwise
// they are the names visible at the cursor.
func (a *Analysis) SolveQuery(ctx context.Context, q Query) ([]Suggestion, error) {
	if err := a.evaluate(ctx); err != nil {
		return nil, err
	}

	var entries []typedef.Entry
	basePath := ""
	switch {
	case q.Trigger():
		if a.placeholderMember == nil {
			a.log.Debug("query.no_placeholder", "dot", q.Dot)
			return nil, nil
		}
		fields := a.members(a.Resolve(a.placeholderMember.Base))
		if fields == nil {
			return nil, nil
		}
		entries = fields.Search(q.Prefix)
		basePath = qualifiedName(a.placeholderMember.Base)
	default:
		if a.placeholderIdent == nil {
			a.log.Debug("query.no_placeholder")
			return nil, nil
		}
		entries = a.scopeOf(a.placeholderIdent).Search(q.Prefix, a.placeholderIdent.Start)
	}

	method := q.Dot == ":"
	out := make([]Suggestion, 0, len(entries))
	for _, e := range entries {
		if e.Key == Placeholder {
			continue
		}
		if method && !e.Value.IsFunction() {
			continue
		}
		out = append(out, newSuggestion(e.Key, e.Value, a.describe(basePath, e), method))
	}
	a.log.Debug("query.solved", "prefix", q.Prefix, "dot", q.Dot, "results", len(out))
	return out, nil
}

// describe picks the documentation for a result: the comment above the
// qualified declaration, then above any declaration of the bare name, then
// the value's own description.
func (a *Analysis) describe(basePath string, e typedef.Entry) string {
	if basePath != "" {
		if s, ok := a.docs.Lookup(basePath + "." + e.Key); ok {
			return s
		}
	}
	if s, ok := a.docs.Lookup(e.Key); ok {
		return s
	}
	return e.Value.Description
}

// SearchGlobals lists the fields of a global environment table starting
// with prefix, as completions outside any source text.
func SearchGlobals(globals *typedef.Table, prefix string) []Suggestion {
	if globals == nil {
		return nil
	}
	entries := globals.Search(prefix)
	out := make([]Suggestion, 0, len(entries))
	for _, e := range entries {
		out = append(out, newSuggestion(e.Key, e.Value, e.Value.Description, false))
	}
	return out
}
