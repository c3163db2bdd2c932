package analysis

import (
	"errors"
	"sort"
	"strings"

	"github.com/jward/luasense/internal/typedef"
)

// ErrScopeUnderflow is reported when a scope is exited with no enclosing
// scope left, which means the parser and the analysis disagree about
// nesting.
var ErrScopeUnderflow = errors.New("analysis: scope exited without a parent")

// globalName is the global scope's name for itself.
const globalName = "_G"

// Scope is one lexical scope. Lookups walk parent links; the chain ends at
// the global scope, whose bindings live in the analysis' global overlay.
type Scope struct {
	vars    *typedef.Table
	visible map[string]int
	parent  *Scope

	// self is the value of _G; set on the global scope only.
	self *typedef.Value
}

func newScope(parent *Scope) *Scope {
	return &Scope{
		vars:    typedef.NewTableFields(),
		visible: make(map[string]int),
		parent:  parent,
	}
}

func newGlobalScope(overlay *typedef.Table) *Scope {
	s := &Scope{vars: overlay, visible: make(map[string]int)}
	s.self = typedef.NewTable(overlay)
	s.self.Description = "The global environment."
	return s
}

// Global reports whether s is the root of the chain.
func (s *Scope) Global() bool {
	return s.parent == nil
}

// Parent returns the enclosing scope, or nil for the global scope.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// bind declares name in s, in effect from byte offset from on.
func (s *Scope) bind(name string, v *typedef.Value, from int) {
	// Local scopes are never frozen.
	_ = s.vars.Set(name, v)
	s.visible[name] = from
}

// has reports whether s itself declares name at offset at.
func (s *Scope) has(name string, at int) bool {
	if s.Global() {
		return s.vars.Get(name) != nil || name == globalName
	}
	if _, ok := s.vars.RawGet(name); !ok {
		return false
	}
	return s.visible[name] <= at
}

// Owner returns the innermost scope that declares name as seen from
// offset at, or nil when the name is a global that was never assigned.
func (s *Scope) Owner(name string, at int) *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.has(name, at) {
			return cur
		}
	}
	return nil
}

// Lookup returns the binding of name as seen from offset at. Unbound names
// are unknown.
func (s *Scope) Lookup(name string, at int) *typedef.Value {
	owner := s.Owner(name, at)
	if owner == nil {
		return typedef.NewUnknown()
	}
	if owner.Global() {
		if v := owner.vars.Get(name); v != nil {
			return v
		}
		return owner.self
	}
	v, _ := owner.vars.RawGet(name)
	return typedef.OrUnknown(v)
}

// Search returns every name visible from offset at starting with prefix,
// innermost binding first, sorted by name.
func (s *Scope) Search(prefix string, at int) []typedef.Entry {
	seen := make(map[string]bool)
	var out []typedef.Entry
	for cur := s; cur != nil; cur = cur.parent {
		if cur.Global() {
			for _, e := range cur.vars.Search(prefix) {
				if !seen[e.Key] {
					seen[e.Key] = true
					out = append(out, e)
				}
			}
			if !seen[globalName] && strings.HasPrefix(globalName, prefix) {
				seen[globalName] = true
				out = append(out, typedef.Entry{Key: globalName, Value: cur.self})
			}
			continue
		}
		for _, k := range cur.vars.Keys() {
			if seen[k] || !strings.HasPrefix(k, prefix) || cur.visible[k] > at {
				continue
			}
			seen[k] = true
			v, _ := cur.vars.RawGet(k)
			out = append(out, typedef.Entry{Key: k, Value: typedef.OrUnknown(v)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
