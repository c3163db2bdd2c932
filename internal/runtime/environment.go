package runtime

import (
	"fmt"
	"strings"

	"github.com/jward/luasense/internal/typedef"
)

// Environment accumulates the global definitions made by environment
// scripts. Paths are dotted: "string.format" is the format field of the
// global string table.
type Environment struct {
	root    *typedef.Table
	version string
}

// NewEnvironment returns an empty Environment for a Lua version. Scripts
// see the version as lua_version.
func NewEnvironment(version string) *Environment {
	return &Environment{root: typedef.NewTableFields(), version: version}
}

// Version returns the Lua version the environment describes.
func (e *Environment) Version() string {
	return e.version
}

// Table returns the global table built so far.
func (e *Environment) Table() *typedef.Table {
	return e.root
}

// Freeze deep-freezes the global table and returns it. No definitions may
// follow.
func (e *Environment) Freeze() *typedef.Table {
	e.root.FreezeDeep()
	return e.root
}

// Lookup returns the value defined at path.
func (e *Environment) Lookup(path string) (*typedef.Value, bool) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	t := e.root
	var v *typedef.Value
	for i, p := range parts {
		var ok bool
		if v, ok = t.RawGet(p); !ok {
			return nil, false
		}
		if i < len(parts)-1 {
			if !v.IsTable() {
				return nil, false
			}
			t = v.Fields
		}
	}
	return v, true
}

// DefineTable makes path a table, creating missing parents. An existing
// table is kept.
func (e *Environment) DefineTable(path string) (*typedef.Value, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	t := e.root
	var v *typedef.Value
	for i, p := range parts {
		existing, ok := t.RawGet(p)
		switch {
		case !ok:
			v = typedef.NewTable(nil)
			if err := t.Set(p, v); err != nil {
				return nil, fmt.Errorf("define %s: %w", path, err)
			}
		case existing.IsTable():
			v = existing
		default:
			return nil, fmt.Errorf("define %s: %s is a %s", path, strings.Join(parts[:i+1], "."), existing.TypeName())
		}
		t = v.Fields
	}
	return v, nil
}

// DefineValue binds path to a value of the named type.
func (e *Environment) DefineValue(path, typ string) error {
	v, err := e.typeOf(typ)
	if err != nil {
		return fmt.Errorf("define %s: %w", path, err)
	}
	return e.set(path, v)
}

// DefineFunction binds path to a function. Each argument is written
// "name:type", "name" for an untyped argument, or "..." as the last
// argument of a variadic function. Returns are type names.
func (e *Environment) DefineFunction(path string, args, returns []string) error {
	fn := typedef.NewFunction(nil, nil)
	for i, a := range args {
		if a == "..." {
			if i != len(args)-1 {
				return fmt.Errorf("define %s: ... must be the last argument", path)
			}
			fn.Variadic = true
			break
		}
		name, typ, _ := strings.Cut(a, ":")
		v, err := e.typeOf(strings.TrimSpace(typ))
		if err != nil {
			return fmt.Errorf("define %s: argument %s: %w", path, name, err)
		}
		fn.ArgNames = append(fn.ArgNames, strings.TrimSuffix(strings.TrimSpace(name), "?"))
		fn.ArgTypes = append(fn.ArgTypes, v)
	}
	for _, r := range returns {
		v, err := e.typeOf(r)
		if err != nil {
			return fmt.Errorf("define %s: return: %w", path, err)
		}
		fn.ReturnTypes = append(fn.ReturnTypes, v)
	}
	return e.set(path, fn)
}

// Describe attaches documentation to the value at path.
func (e *Environment) Describe(path, text string) error {
	v, ok := e.Lookup(path)
	if !ok {
		return fmt.Errorf("describe %s: not defined", path)
	}
	v.Description = strings.TrimSpace(text)
	return nil
}

func (e *Environment) set(path string, v *typedef.Value) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	t := e.root
	if len(parts) > 1 {
		parent, err := e.DefineTable(strings.Join(parts[:len(parts)-1], "."))
		if err != nil {
			return err
		}
		t = parent.Fields
	}
	if err := t.Set(parts[len(parts)-1], v); err != nil {
		return fmt.Errorf("define %s: %w", path, err)
	}
	return nil
}

// typeOf maps a type name to a Value. Names other than the builtin ones
// refer to tables already defined in the environment, which are shared.
func (e *Environment) typeOf(name string) (*typedef.Value, error) {
	switch name {
	case "", "any", "unknown":
		return typedef.NewUnknown(), nil
	case "nil":
		return typedef.NewPrimitive(typedef.Nil), nil
	case "boolean":
		return typedef.NewPrimitive(typedef.Boolean), nil
	case "number", "integer":
		return typedef.NewPrimitive(typedef.Number), nil
	case "string":
		return typedef.NewPrimitive(typedef.String), nil
	case "table":
		return typedef.NewTable(nil), nil
	case "function":
		return typedef.NewFunction(nil, nil), nil
	}
	v, ok := e.Lookup(name)
	if !ok || !v.IsTable() {
		return nil, fmt.Errorf("unknown type %q", name)
	}
	return v, nil
}

func splitPath(path string) ([]string, error) {
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid path %q", path)
		}
	}
	return parts, nil
}
