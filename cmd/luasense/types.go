package main

import "time"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLISuggestion is a JSON-friendly completion.
type CLISuggestion struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Type        string   `json:"type"`
	Detail      string   `json:"detail,omitempty"`
	Description string   `json:"description,omitempty"`
	Params      []string `json:"params,omitempty"`
	Returns     []string `json:"returns,omitempty"`
	Variadic    bool     `json:"variadic,omitempty"`
}

// CLIModule is a JSON-friendly stored module summary.
type CLIModule struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Hash       string    `json:"hash"`
	LuaVersion string    `json:"lua_version"`
	AnalyzedAt time.Time `json:"analyzed_at"`
	Requires   []string  `json:"requires,omitempty"`
}

// CLIWarmResult reports a warm run.
type CLIWarmResult struct {
	Root      string   `json:"root"`
	Database  string   `json:"database,omitempty"`
	Modules   int      `json:"modules"`
	Analysed  int      `json:"analysed"`
	Reused    int      `json:"reused"`
	Missing   []string `json:"missing,omitempty"`
	ElapsedMS int64    `json:"elapsed_ms"`
}
