package analysis

import (
	"strconv"
	"strings"

	"github.com/jward/luasense/internal/typedef"
)

// Suggestion kinds.
const (
	KindFunction = "function"
	KindMethod   = "method"
	KindTable    = "table"
	KindProperty = "property"
)

// Suggestion is one completion result.
type Suggestion struct {
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	Type        string     `json:"type"`
	Description string     `json:"description,omitempty"`
	Signature   *Signature `json:"signature,omitempty"`
}

// Signature describes a function result.
type Signature struct {
	Params   []Param  `json:"params"`
	Returns  []string `json:"returns,omitempty"`
	Variadic bool     `json:"variadic,omitempty"`
}

// Param is one named, typed argument.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func newSuggestion(name string, v *typedef.Value, desc string, method bool) Suggestion {
	s := Suggestion{Name: name, Type: v.TypeName(), Description: desc}
	switch {
	case v.IsFunction():
		s.Kind = KindFunction
		if method {
			s.Kind = KindMethod
		}
		s.Signature = newSignature(v, method)
	case v.IsTable():
		s.Kind = KindTable
	default:
		s.Kind = KindProperty
	}
	return s
}

// newSignature describes fn. With trimSelf the receiver argument is
// dropped, as it is implied by the method call operator.
func newSignature(fn *typedef.Value, trimSelf bool) *Signature {
	sig := &Signature{Params: []Param{}, Variadic: fn.Variadic}
	for i, t := range fn.ArgTypes {
		if trimSelf && i == 0 {
			continue
		}
		name := ""
		if i < len(fn.ArgNames) {
			name = fn.ArgNames[i]
		}
		if name == "" {
			name = "arg" + strconv.Itoa(i+1)
		}
		sig.Params = append(sig.Params, Param{Name: name, Type: t.TypeName()})
	}
	for _, r := range fn.ReturnTypes {
		sig.Returns = append(sig.Returns, r.TypeName())
	}
	return sig
}

// Render formats s as name(a: string, ...) -> number.
func (s *Signature) Render(name string) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if p.Type != "unknown" {
			b.WriteString(": ")
			b.WriteString(p.Type)
		}
	}
	if s.Variadic {
		if len(s.Params) > 0 {
			b.WriteString(", ")
		}
		b.WriteString("...")
	}
	b.WriteByte(')')
	if len(s.Returns) > 0 {
		b.WriteString(" -> ")
		b.WriteString(strings.Join(s.Returns, ", "))
	}
	return b.String()
}
