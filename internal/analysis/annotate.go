package analysis

import (
	"strings"

	"github.com/jward/luasense/internal/syntax"
	"github.com/jward/luasense/internal/typedef"
)

// annotations are the LuaDoc tags of a function's leading comment block.
type annotations struct {
	params      map[string]string
	returns     []string
	description string
}

// annotationsFor parses the comment block above fn once.
func (a *Analysis) annotationsFor(fn *syntax.Node) *annotations {
	if notes, ok := a.notes[fn]; ok {
		return notes
	}
	notes := parseAnnotations(fn.Leading)
	a.notes[fn] = notes
	return notes
}

// parseAnnotations reads `@param name type` and `@return type` lines; the
// remaining lines form the description.
func parseAnnotations(block string) *annotations {
	notes := &annotations{params: make(map[string]string)}
	var text []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-"))
		if !strings.HasPrefix(line, "@") {
			if line != "" {
				text = append(text, line)
			}
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "@param":
			if len(fields) >= 3 {
				notes.params[strings.TrimSuffix(fields[1], "?")] = fields[2]
			}
		case "@return":
			if len(fields) >= 2 {
				for _, t := range strings.Split(fields[1], ",") {
					if t != "" {
						notes.returns = append(notes.returns, t)
					}
				}
			}
		}
	}
	notes.description = strings.Join(text, "\n")
	return notes
}

// annotatedType maps a LuaDoc type name to a Value. Names that are not
// built in are looked up as tables visible where fn is declared.
func (a *Analysis) annotatedType(fn *syntax.Node, name string) *typedef.Value {
	name = strings.TrimSuffix(name, "?")
	if i := strings.IndexByte(name, '|'); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "nil":
		return typedef.NewPrimitive(typedef.Nil)
	case "boolean", "bool":
		return typedef.NewPrimitive(typedef.Boolean)
	case "number", "integer", "int", "float":
		return typedef.NewPrimitive(typedef.Number)
	case "string":
		return typedef.NewPrimitive(typedef.String)
	case "table":
		return typedef.NewTable(nil)
	case "function", "fun":
		return typedef.NewFunction(nil, nil)
	case "", "any", "unknown":
		return typedef.NewUnknown()
	}
	scope := a.declScopeOf(fn)
	parts := strings.Split(name, ".")
	v := scope.Lookup(parts[0], fn.Start)
	for _, p := range parts[1:] {
		v = a.field(v, p)
	}
	return v
}

// declScopeOf returns the scope a function is declared in.
func (a *Analysis) declScopeOf(fn *syntax.Node) *Scope {
	if s, ok := a.scopes[fn]; ok {
		return s
	}
	if s, ok := a.declScope[fn]; ok && s != nil {
		return s
	}
	return a.current
}
