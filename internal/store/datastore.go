package store

import "github.com/jward/luasense/internal/typedef"

// SummaryStore is the interface the module cache persists through. Both
// Store (direct SQLite) and BatchedStore (in-memory buffering for parallel
// warmup) implement it.
type SummaryStore interface {
	// ModuleSummary returns the summary of name analysed from source with
	// the given hash, or nil.
	ModuleSummary(name, hash string) (*Summary, error)
	// PutModuleSummary records the summary of m.
	PutModuleSummary(m *Module, b *typedef.Bundle) error
}

// Compile-time check: *Store satisfies SummaryStore.
var _ SummaryStore = (*Store)(nil)
