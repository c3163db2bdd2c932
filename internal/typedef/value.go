// Package typedef models inferred Lua types. A Value is a tagged type
// descriptor; a Table is the mutable string-keyed container used both for
// table-typed values and for the global environment, with metatable-style
// delegation through an "__index" entry.
package typedef

import "strings"

// Kind tags the variant held by a Value.
type Kind int

const (
	KindUnknown Kind = iota
	KindPrimitive
	KindTable
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Primitive type names.
const (
	Nil     = "nil"
	Boolean = "boolean"
	Number  = "number"
	String  = "string"
)

// Value is an inferred type. Only the fields relevant to Kind are set:
// Prim for primitives, Fields for tables, ArgTypes/ReturnTypes for functions.
type Value struct {
	Kind        Kind
	Prim        string
	Fields      *Table
	Description string

	ArgTypes    []*Value
	ArgNames    []string
	ReturnTypes []*Value
	Variadic    bool
}

// NewUnknown returns the bottom type.
func NewUnknown() *Value {
	return &Value{Kind: KindUnknown}
}

// NewPrimitive returns a primitive type such as Number or String.
func NewPrimitive(name string) *Value {
	return &Value{Kind: KindPrimitive, Prim: name}
}

// NewTable returns a table type over fields. A nil fields allocates an
// empty Table.
func NewTable(fields *Table) *Value {
	if fields == nil {
		fields = NewTableFields()
	}
	return &Value{Kind: KindTable, Fields: fields}
}

// NewFunction returns a function type with the given positional argument
// and return types.
func NewFunction(args, returns []*Value) *Value {
	return &Value{Kind: KindFunction, ArgTypes: args, ReturnTypes: returns}
}

// OrUnknown maps an absent value to a fresh unknown.
func OrUnknown(v *Value) *Value {
	if v == nil {
		return NewUnknown()
	}
	return v
}

// IsUnknown reports whether v is absent or the unknown type.
func (v *Value) IsUnknown() bool {
	return v == nil || v.Kind == KindUnknown
}

// IsFunction reports whether v is a function type.
func (v *Value) IsFunction() bool {
	return v != nil && v.Kind == KindFunction
}

// IsTable reports whether v is a table type with a field table.
func (v *Value) IsTable() bool {
	return v != nil && v.Kind == KindTable && v.Fields != nil
}

// IsPrimitive reports whether v is the primitive type named prim.
func (v *Value) IsPrimitive(prim string) bool {
	return v != nil && v.Kind == KindPrimitive && v.Prim == prim
}

// TypeName returns the Lua-facing name of the type: a primitive name,
// "table", "function" or "unknown".
func (v *Value) TypeName() string {
	if v == nil {
		return "unknown"
	}
	switch v.Kind {
	case KindPrimitive:
		return v.Prim
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// FirstReturn returns the first declared return type, or unknown.
func (v *Value) FirstReturn() *Value {
	if !v.IsFunction() || len(v.ReturnTypes) == 0 {
		return NewUnknown()
	}
	return OrUnknown(v.ReturnTypes[0])
}

// String renders v for diagnostics. Function types render their signature
// without names, e.g. "function(number, string) -> table".
func (v *Value) String() string {
	if !v.IsFunction() {
		return v.TypeName()
	}
	var b strings.Builder
	b.WriteString("function(")
	for i, a := range v.ArgTypes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.TypeName())
	}
	if v.Variadic {
		if len(v.ArgTypes) > 0 {
			b.WriteString(", ")
		}
		b.WriteString("...")
	}
	b.WriteString(")")
	if len(v.ReturnTypes) > 0 {
		b.WriteString(" -> ")
		for i, r := range v.ReturnTypes {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.TypeName())
		}
	}
	return b.String()
}
