package typedef

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrFrozen is returned by mutations of a frozen Table.
var ErrFrozen = errors.New("typedef: table is frozen")

// IndexKey is the metatable entry consulted when a lookup misses.
const IndexKey = "__index"

// maxChainDepth bounds delegate walks so self-referential metatables
// (M.__index = M with setmetatable(M, M)) terminate.
const maxChainDepth = 32

// Table is a string-keyed container of Values with an optional metatable.
// The metatable pointer lives outside the key space so user keys never
// collide with it.
type Table struct {
	fields map[string]*Value
	meta   *Table
	frozen bool
}

// NewTableFields returns an empty, mutable Table.
func NewTableFields() *Table {
	return &Table{fields: make(map[string]*Value)}
}

// Set stores v under key. Frozen tables are left untouched and ErrFrozen is
// returned.
func (t *Table) Set(key string, v *Value) error {
	if t.frozen {
		return fmt.Errorf("%w: set %q", ErrFrozen, key)
	}
	t.fields[key] = v
	return nil
}

// RawGet returns the table's own entry for key without consulting the
// metatable.
func (t *Table) RawGet(key string) (*Value, bool) {
	v, ok := t.fields[key]
	return v, ok
}

// Get returns the own entry for key, or falls back to the metatable's
// __index table, recursively. A miss returns nil; it is never an error.
func (t *Table) Get(key string) *Value {
	cur := t
	for depth := 0; cur != nil && depth < maxChainDepth; depth++ {
		if v, ok := cur.fields[key]; ok {
			return v
		}
		cur = cur.indexTable()
	}
	return nil
}

// indexTable returns the table named by the metatable's __index entry.
func (t *Table) indexTable() *Table {
	if t.meta == nil {
		return nil
	}
	idx, ok := t.meta.fields[IndexKey]
	if !ok || !idx.IsTable() {
		return nil
	}
	return idx.Fields
}

// SetMetatable replaces the delegate of t. Passing nil clears it.
func (t *Table) SetMetatable(mt *Table) error {
	if t.frozen {
		return fmt.Errorf("%w: set metatable", ErrFrozen)
	}
	t.meta = mt
	return nil
}

// Metatable returns the delegate of t, or nil.
func (t *Table) Metatable() *Table {
	return t.meta
}

// Freeze makes t permanently immutable.
func (t *Table) Freeze() {
	t.frozen = true
}

// FreezeDeep freezes t and every table reachable from it through field
// values, function signatures and metatables.
func (t *Table) FreezeDeep() {
	seenT := make(map[*Table]bool)
	seenV := make(map[*Value]bool)
	var walkT func(*Table)
	var walkV func(*Value)
	walkV = func(v *Value) {
		if v == nil || seenV[v] {
			return
		}
		seenV[v] = true
		if v.Fields != nil {
			walkT(v.Fields)
		}
		for _, a := range v.ArgTypes {
			walkV(a)
		}
		for _, r := range v.ReturnTypes {
			walkV(r)
		}
	}
	walkT = func(tt *Table) {
		if tt == nil || seenT[tt] {
			return
		}
		seenT[tt] = true
		tt.frozen = true
		for _, v := range tt.fields {
			walkV(v)
		}
		walkT(tt.meta)
	}
	walkT(t)
}

// Frozen reports whether t rejects mutation.
func (t *Table) Frozen() bool {
	return t.frozen
}

// Len returns the number of own entries.
func (t *Table) Len() int {
	return len(t.fields)
}

// Keys returns the own keys of t in sorted order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.fields))
	for k := range t.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entry is a key/value pair reported by Search.
type Entry struct {
	Key   string
	Value *Value
}

// Search returns every entry reachable from t through its delegate chain
// whose key starts with prefix, sorted by key. When several tables in the
// chain hold the same key the innermost one wins.
func (t *Table) Search(prefix string) []Entry {
	seen := make(map[string]bool)
	var out []Entry
	cur := t
	for depth := 0; cur != nil && depth < maxChainDepth; depth++ {
		out = cur.appendMatches(out, prefix, seen)
		cur = cur.indexTable()
	}
	sortEntries(out)
	return out
}

// appendMatches adds own entries of t matching prefix that are not yet in
// seen.
func (t *Table) appendMatches(out []Entry, prefix string, seen map[string]bool) []Entry {
	for k, v := range t.fields {
		if seen[k] || !strings.HasPrefix(k, prefix) {
			continue
		}
		seen[k] = true
		out = append(out, Entry{Key: k, Value: v})
	}
	return out
}

// SearchChain runs Search semantics over an explicit list of tables ordered
// innermost first; used for scope chains where delegation is not encoded
// as metatables.
func SearchChain(tables []*Table, prefix string) []Entry {
	seen := make(map[string]bool)
	var out []Entry
	for _, t := range tables {
		cur := t
		for depth := 0; cur != nil && depth < maxChainDepth; depth++ {
			out = cur.appendMatches(out, prefix, seen)
			cur = cur.indexTable()
		}
	}
	sortEntries(out)
	return out
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].Key < es[j].Key })
}
