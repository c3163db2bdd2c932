package store

import (
	"time"

	"github.com/jward/luasense/internal/typedef"
)

// Module is one analysed module as persisted. Summary is the JSON wire
// form of the module's return values and global definitions. Deps maps
// every module reached through its requires, directly or not, to the
// source hash it had when the summary was built; "" records a module that
// did not exist.
type Module struct {
	ID         int64
	Name       string
	Path       string
	Hash       string
	LuaVersion string
	Summary    []byte
	AnalyzedAt time.Time
	Requires   []string
	Deps       map[string]string
}

// Summary is a stored module summary together with the dependency hashes
// it was built against.
type Summary struct {
	Bundle *typedef.Bundle
	Deps   map[string]string
}
