package analysis

import (
	"github.com/jward/luasense/internal/syntax"
	"github.com/jward/luasense/internal/typedef"
)

// Resolve returns the inferred type of n. It only reads established
// bindings: resolving the same node twice yields the same type. Function
// and table constructor nodes keep one Value per node so that every
// reference to them shares the same table.
func (a *Analysis) Resolve(n *syntax.Node) *typedef.Value {
	if n == nil {
		return typedef.NewUnknown()
	}
	switch n.Kind {
	case syntax.NilLiteral:
		return typedef.NewPrimitive(typedef.Nil)
	case syntax.BooleanLiteral:
		return typedef.NewPrimitive(typedef.Boolean)
	case syntax.NumericLiteral:
		return typedef.NewPrimitive(typedef.Number)
	case syntax.StringLiteral:
		return typedef.NewPrimitive(typedef.String)

	case syntax.Identifier:
		return a.scopeOf(n).Lookup(n.Name, n.Start)

	case syntax.MemberExpression:
		if n.Identifier == nil {
			return typedef.NewUnknown()
		}
		if n == a.placeholderMember {
			return a.Resolve(n.Base)
		}
		return a.field(a.Resolve(n.Base), n.Identifier.Name)

	case syntax.IndexExpression:
		if n.Index != nil && n.Index.Kind == syntax.StringLiteral {
			return a.field(a.Resolve(n.Base), n.Index.Value)
		}
		return typedef.NewUnknown()

	case syntax.CallExpression, syntax.StringCallExpression, syntax.TableCallExpression:
		rets := a.callReturns(n)
		if len(rets) == 0 {
			return typedef.NewUnknown()
		}
		return typedef.OrUnknown(rets[0])

	case syntax.FunctionDeclaration:
		return a.functionValue(n)

	case syntax.TableConstructorExpression:
		return a.tableValue(n)

	case syntax.BinaryExpression:
		return binaryType(n.Operator)

	case syntax.UnaryExpression:
		if n.Operator == "not" {
			return typedef.NewPrimitive(typedef.Boolean)
		}
		return typedef.NewPrimitive(typedef.Number)

	case syntax.LogicalExpression:
		if n.Operator == "and" {
			return a.Resolve(n.Right)
		}
		left := a.Resolve(n.Left)
		if left.IsUnknown() || left.IsPrimitive(typedef.Nil) {
			return a.Resolve(n.Right)
		}
		return left
	}
	return typedef.NewUnknown()
}

// field looks up key on a value. Tables consult their delegate chain;
// strings share the methods of the global string table.
func (a *Analysis) field(v *typedef.Value, key string) *typedef.Value {
	if fields := a.members(v); fields != nil {
		return typedef.OrUnknown(fields.Get(key))
	}
	return typedef.NewUnknown()
}

// members returns the table whose fields v exposes, or nil.
func (a *Analysis) members(v *typedef.Value) *typedef.Table {
	switch {
	case v.IsTable():
		return v.Fields
	case v.IsPrimitive(typedef.String):
		if s := a.global.Get("string"); s.IsTable() {
			return s.Fields
		}
	}
	return nil
}

func binaryType(op string) *typedef.Value {
	switch op {
	case "..":
		return typedef.NewPrimitive(typedef.String)
	case "==", "~=", "<", ">", "<=", ">=":
		return typedef.NewPrimitive(typedef.Boolean)
	case "+", "-", "*", "/", "//", "%", "^", "&", "|", "~", "<<", ">>":
		return typedef.NewPrimitive(typedef.Number)
	}
	return typedef.NewUnknown()
}

// callReturns returns every value a call produces. require calls with a
// literal module name produce the module's return values; setmetatable
// produces its first argument.
func (a *Analysis) callReturns(n *syntax.Node) []*typedef.Value {
	if name, ok := a.requires[n]; ok {
		if !a.opts.CompleteModules {
			return nil
		}
		if m := a.modules[name]; m != nil {
			return m.Returns
		}
		return nil
	}
	if a.isGlobalCall(n, "setmetatable") {
		if args := callArguments(n); len(args) > 0 {
			return []*typedef.Value{a.Resolve(args[0])}
		}
		return nil
	}
	callee := a.Resolve(n.Base)
	if callee.IsFunction() {
		return callee.ReturnTypes
	}
	return nil
}

// isGlobalCall reports whether n calls the global function name, not
// shadowed by a local.
func (a *Analysis) isGlobalCall(n *syntax.Node, name string) bool {
	if n.Base == nil || n.Base.Kind != syntax.Identifier || n.Base.Name != name {
		return false
	}
	owner := a.scopeOf(n.Base).Owner(name, n.Base.Start)
	return owner == nil || owner.Global()
}

func callArguments(n *syntax.Node) []*syntax.Node {
	if n.Kind == syntax.CallExpression {
		return n.Arguments
	}
	if n.Argument != nil {
		return []*syntax.Node{n.Argument}
	}
	return nil
}

// expand resolves an expression list. A trailing call contributes all of
// its return values.
func (a *Analysis) expand(exprs []*syntax.Node) []*typedef.Value {
	var out []*typedef.Value
	for i, e := range exprs {
		if i == len(exprs)-1 && isCall(e) {
			rets := a.callReturns(e)
			if len(rets) == 0 {
				out = append(out, typedef.NewUnknown())
			}
			for _, r := range rets {
				out = append(out, typedef.OrUnknown(r))
			}
			continue
		}
		out = append(out, a.Resolve(e))
	}
	return out
}

func isCall(n *syntax.Node) bool {
	switch n.Kind {
	case syntax.CallExpression, syntax.StringCallExpression, syntax.TableCallExpression:
		return true
	}
	return false
}

// functionValue returns the Value for a function node, creating it with
// its signature on first use.
func (a *Analysis) functionValue(n *syntax.Node) *typedef.Value {
	if v, ok := a.functions[n]; ok {
		return v
	}
	v := typedef.NewFunction(nil, nil)
	a.functions[n] = v
	a.refreshSignature(n, v)
	return v
}

// paramType returns the declared type of argument index of fn.
func (a *Analysis) paramType(fn *syntax.Node, index int) *typedef.Value {
	v := a.functionValue(fn)
	if index < len(v.ArgTypes) {
		return typedef.OrUnknown(v.ArgTypes[index])
	}
	return typedef.NewUnknown()
}

// refreshSignature recomputes the argument list of fn: the implicit self of
// methods is typed as the container, other arguments take their LuaDoc
// annotation or the literal default assigned at the top of the body.
func (a *Analysis) refreshSignature(n *syntax.Node, v *typedef.Value) {
	notes := a.annotationsFor(n)
	defaults := parameterDefaults(n)

	var names []string
	var types []*typedef.Value
	if n.IsMethod() {
		names = append(names, "self")
		types = append(types, a.Resolve(n.Identifier.Base))
	}
	for _, p := range n.Parameters {
		names = append(names, p.Name)
		t := typedef.NewUnknown()
		if ann, ok := notes.params[p.Name]; ok {
			t = a.annotatedType(n, ann)
		} else if d, ok := defaults[p.Name]; ok {
			t = d
		}
		types = append(types, t)
	}
	v.ArgNames = names
	v.ArgTypes = types
	v.Variadic = n.IsVararg
	if notes.description != "" && v.Description == "" {
		v.Description = notes.description
	}
}

// refreshReturns recomputes the return types of fn from its annotations or
// its return statements.
func (a *Analysis) refreshReturns(n *syntax.Node, v *typedef.Value) {
	notes := a.annotationsFor(n)
	if len(notes.returns) > 0 {
		rets := make([]*typedef.Value, len(notes.returns))
		for i, r := range notes.returns {
			rets[i] = a.annotatedType(n, r)
		}
		v.ReturnTypes = rets
		return
	}
	v.ReturnTypes = a.returnTypes(n.Body)
}

// returnTypes merges the return statements of a body positionally; the
// first known type in each slot wins. Nested functions are not searched.
func (a *Analysis) returnTypes(body []*syntax.Node) []*typedef.Value {
	var out []*typedef.Value
	walkReturns(body, func(ret *syntax.Node) {
		for i, v := range a.expand(ret.Init) {
			if i >= len(out) {
				out = append(out, v)
			} else if out[i].IsUnknown() {
				out[i] = v
			}
		}
	})
	return out
}

func walkReturns(stmts []*syntax.Node, fn func(*syntax.Node)) {
	for _, s := range stmts {
		if s == nil {
			continue
		}
		switch s.Kind {
		case syntax.ReturnStatement:
			fn(s)
		case syntax.IfStatement:
			for _, c := range s.Clauses {
				walkReturns(c.Body, fn)
			}
		case syntax.DoStatement, syntax.WhileStatement, syntax.RepeatStatement,
			syntax.ForNumericStatement, syntax.ForGenericStatement, syntax.Error:
			walkReturns(s.Body, fn)
		}
	}
}

// parameterDefaults finds `p = p or <literal>` assignments among the top
// level statements of a function body.
func parameterDefaults(fn *syntax.Node) map[string]*typedef.Value {
	out := make(map[string]*typedef.Value)
	for _, s := range fn.Body {
		if s.Kind != syntax.AssignmentStatement || len(s.Variables) != 1 || len(s.Init) != 1 {
			continue
		}
		target, init := s.Variables[0], s.Init[0]
		if target.Kind != syntax.Identifier || init.Kind != syntax.LogicalExpression || init.Operator != "or" {
			continue
		}
		if init.Left == nil || init.Left.Kind != syntax.Identifier || init.Left.Name != target.Name {
			continue
		}
		if t := literalType(init.Right); t != nil {
			if _, ok := out[target.Name]; !ok {
				out[target.Name] = t
			}
		}
	}
	return out
}

func literalType(n *syntax.Node) *typedef.Value {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case syntax.StringLiteral:
		return typedef.NewPrimitive(typedef.String)
	case syntax.NumericLiteral:
		return typedef.NewPrimitive(typedef.Number)
	case syntax.BooleanLiteral:
		return typedef.NewPrimitive(typedef.Boolean)
	case syntax.TableConstructorExpression:
		return typedef.NewTable(nil)
	}
	return nil
}

// tableValue returns the Value for a table constructor, filling its fields
// on first use.
func (a *Analysis) tableValue(n *syntax.Node) *typedef.Value {
	if v, ok := a.tables[n]; ok {
		return v
	}
	v := typedef.NewTable(nil)
	a.tables[n] = v
	a.fillTable(n, v)
	return v
}

func (a *Analysis) fillTable(n *syntax.Node, v *typedef.Value) {
	for _, f := range n.Fields {
		var key string
		switch {
		case f.Kind == syntax.TableKeyString && f.Key != nil:
			key = f.Key.Name
		case f.Kind == syntax.TableKey && f.Key != nil && f.Key.Kind == syntax.StringLiteral:
			key = f.Key.Value
		default:
			continue
		}
		// Constructor tables are private to this analysis.
		_ = v.Fields.Set(key, a.Resolve(f.Item))
	}
}
