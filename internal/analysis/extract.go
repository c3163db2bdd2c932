package analysis

import (
	"github.com/jward/luasense/internal/syntax"
	"github.com/jward/luasense/internal/typedef"
)

// extract visits every recorded step in creation order and performs the
// bindings Resolve cannot: locals and assignments take the type of their
// value, functions get their signature and return types, setmetatable
// links delegates. Re-running it over the same steps yields the same
// bindings.
func (a *Analysis) extract() {
	for _, s := range a.steps {
		if s.param != nil {
			a.extractParam(s.param)
			continue
		}
		a.extractNode(s.node)
	}
}

func (a *Analysis) extractParam(p *paramStep) {
	v := a.functionValue(p.fn)
	a.refreshSignature(p.fn, v)
	var t *typedef.Value
	if p.index < len(v.ArgTypes) {
		t = v.ArgTypes[p.index]
	}
	p.scope.bind(p.name, typedef.OrUnknown(t), p.from)
}

func (a *Analysis) extractNode(n *syntax.Node) {
	switch n.Kind {
	case syntax.LocalStatement:
		scope := a.scopeOf(n)
		values := a.expand(n.Init)
		for i, v := range n.Variables {
			var t *typedef.Value
			if i < len(values) {
				t = values[i]
			}
			scope.bind(v.Name, typedef.OrUnknown(t), n.End)
		}

	case syntax.AssignmentStatement:
		values := a.expand(n.Init)
		for i, target := range n.Variables {
			var t *typedef.Value
			if i < len(values) {
				t = values[i]
			}
			t = typedef.OrUnknown(t)
			if i == 0 {
				a.describeValue(n, t)
			}
			a.assign(target, t)
		}

	case syntax.FunctionDeclaration:
		v := a.functionValue(n)
		a.refreshSignature(n, v)
		a.refreshReturns(n, v)
		if n.Identifier == nil {
			return
		}
		if n.IsLocal && n.Identifier.Kind == syntax.Identifier {
			a.scopeOf(n).bind(n.Identifier.Name, v, n.Identifier.Start)
			return
		}
		a.assign(n.Identifier, v)

	case syntax.TableConstructorExpression:
		a.fillTable(n, a.tableValue(n))

	case syntax.CallExpression:
		if a.isGlobalCall(n, "setmetatable") && len(n.Arguments) >= 2 {
			a.setMetatable(n.Arguments[0], n.Arguments[1])
		}
	}
}

// assign writes v to an assignment target: a local in the scope that
// declares it, a global, or a table field.
func (a *Analysis) assign(target *syntax.Node, v *typedef.Value) {
	switch target.Kind {
	case syntax.Identifier:
		if target.Name == Placeholder {
			return
		}
		owner := a.scopeOf(target).Owner(target.Name, target.Start)
		if owner == nil || owner.Global() {
			a.setGlobal(target.Name, v)
			return
		}
		owner.bind(target.Name, v, owner.visible[target.Name])

	case syntax.MemberExpression:
		if target.Identifier == nil || target.Identifier.Name == Placeholder {
			return
		}
		if t := a.writableTable(target.Base); t != nil {
			a.setField(t, target.Identifier.Name, v)
		}

	case syntax.IndexExpression:
		if target.Index == nil || target.Index.Kind != syntax.StringLiteral {
			return
		}
		if t := a.writableTable(target.Base); t != nil {
			a.setField(t, target.Index.Value, v)
		}
	}
}

func (a *Analysis) setGlobal(name string, v *typedef.Value) {
	if err := a.global.Set(name, v); err != nil {
		a.log.Debug("global.frozen", "name", name, "err", err)
	}
}

func (a *Analysis) setField(t *typedef.Table, key string, v *typedef.Value) {
	if err := t.Set(key, v); err != nil {
		a.log.Debug("field.frozen", "key", key, "err", err)
	}
}

// writableTable returns the table n evaluates to, ready for writes. A
// frozen environment table is replaced, at the place n reads it from, by
// a private table delegating to it.
func (a *Analysis) writableTable(n *syntax.Node) *typedef.Table {
	v := a.Resolve(n)
	if !v.IsTable() {
		return nil
	}
	if !v.Fields.Frozen() {
		return v.Fields
	}
	derived := deriveTable(v)
	switch n.Kind {
	case syntax.Identifier:
		owner := a.scopeOf(n).Owner(n.Name, n.Start)
		if owner == nil || owner.Global() {
			a.setGlobal(n.Name, derived)
		} else {
			owner.bind(n.Name, derived, owner.visible[n.Name])
		}
	case syntax.MemberExpression:
		parent := a.writableTable(n.Base)
		if parent == nil || n.Identifier == nil {
			return nil
		}
		a.setField(parent, n.Identifier.Name, derived)
	default:
		return nil
	}
	return derived.Fields
}

// deriveTable returns a mutable table value whose misses fall through to
// v.
func deriveTable(v *typedef.Value) *typedef.Value {
	meta := typedef.NewTableFields()
	_ = meta.Set(typedef.IndexKey, v)
	fields := typedef.NewTableFields()
	_ = fields.SetMetatable(meta)
	out := typedef.NewTable(fields)
	out.Description = v.Description
	return out
}

// setMetatable makes mt's table the delegate of the table target resolves
// to.
func (a *Analysis) setMetatable(target, mt *syntax.Node) {
	t := a.Resolve(target)
	m := a.Resolve(mt)
	if !t.IsTable() || !m.IsTable() {
		return
	}
	if err := t.Fields.SetMetatable(m.Fields); err != nil {
		a.log.Debug("metatable.frozen", "err", err)
	}
}

// describeValue hands the comment above an assignment to the value it
// writes, so the text travels with the value into module summaries.
// Values read from elsewhere keep their own description.
func (a *Analysis) describeValue(n *syntax.Node, v *typedef.Value) {
	if n.Leading == "" || len(n.Init) == 0 || v.Description != "" {
		return
	}
	switch n.Init[0].Kind {
	case syntax.Identifier, syntax.MemberExpression, syntax.IndexExpression,
		syntax.CallExpression, syntax.StringCallExpression, syntax.TableCallExpression:
		return
	}
	v.Description = parseAnnotations(n.Leading).description
}
