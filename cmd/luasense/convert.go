package main

import (
	"github.com/jward/luasense"
)

// suggestionToCLI converts a luasense.Suggestion to a CLISuggestion.
func suggestionToCLI(s luasense.Suggestion) CLISuggestion {
	out := CLISuggestion{
		Name:        s.Name,
		Kind:        s.Kind,
		Type:        s.Type,
		Description: s.Description,
	}
	if s.Signature != nil {
		out.Detail = s.Signature.Render(s.Name)
		for _, p := range s.Signature.Params {
			if p.Type == "" || p.Type == "unknown" {
				out.Params = append(out.Params, p.Name)
				continue
			}
			out.Params = append(out.Params, p.Name+": "+p.Type)
		}
		out.Returns = s.Signature.Returns
		out.Variadic = s.Signature.Variadic
	}
	return out
}

func suggestionsToCLI(ss []luasense.Suggestion) []CLISuggestion {
	out := make([]CLISuggestion, 0, len(ss))
	for _, s := range ss {
		out = append(out, suggestionToCLI(s))
	}
	return out
}

// moduleToCLI converts a stored module record to a CLIModule.
func moduleToCLI(m *luasense.ModuleRecord) CLIModule {
	return CLIModule{
		Name:       m.Name,
		Path:       m.Path,
		Hash:       m.Hash,
		LuaVersion: m.LuaVersion,
		AnalyzedAt: m.AnalyzedAt,
		Requires:   m.Requires,
	}
}
