package luasense

import (
	"github.com/jward/luasense/internal/analysis"
	"github.com/jward/luasense/internal/loader"
	"github.com/jward/luasense/internal/modcache"
	"github.com/jward/luasense/internal/store"
	"github.com/jward/luasense/internal/typedef"
)

// Public type aliases for internal types used in the Engine API. These are
// Go type aliases (=), identical to the internal types at compile time.
// External consumers use these names; no conversion is needed.

type Suggestion = analysis.Suggestion
type Signature = analysis.Signature
type Param = analysis.Param
type Store = store.Store
type ModuleRecord = store.Module
type Table = typedef.Table
type Value = typedef.Value
type Source = loader.Source
type Loader = modcache.Loader

// Suggestion kinds.
const (
	KindFunction = analysis.KindFunction
	KindMethod   = analysis.KindMethod
	KindTable    = analysis.KindTable
	KindProperty = analysis.KindProperty
)
