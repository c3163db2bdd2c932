package syntax

// emitter replays a converted tree as Handler events. Nodes are reported
// after their children; blocks and function bodies are bracketed by
// ScopeEntered and ScopeExited.
type emitter struct {
	h Handler
}

func (e *emitter) chunk(n *Node) {
	e.h.ScopeEntered()
	e.block(n.Body)
	e.h.ScopeExited()
	e.h.NodeCreated(n)
}

func (e *emitter) block(stmts []*Node) {
	for _, s := range stmts {
		e.statement(s)
	}
}

func (e *emitter) scoped(stmts []*Node) {
	e.h.ScopeEntered()
	e.block(stmts)
	e.h.ScopeExited()
}

func (e *emitter) statement(n *Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case LocalStatement:
		e.expressions(n.Init)
		for _, v := range n.Variables {
			e.h.IdentifierBound(v.Name, Binding{Node: v, Visible: n.End})
		}
		e.h.NodeCreated(n)
	case AssignmentStatement:
		e.expressions(n.Init)
		e.expressions(n.Variables)
		e.h.NodeCreated(n)
	case CallStatement:
		e.expression(n.Expression)
		e.h.NodeCreated(n)
	case ReturnStatement:
		e.expressions(n.Init)
		e.h.NodeCreated(n)
	case FunctionDeclaration:
		e.function(n)
	case DoStatement:
		e.scoped(n.Body)
		e.h.NodeCreated(n)
	case WhileStatement:
		e.expression(n.Condition)
		e.scoped(n.Body)
		e.h.NodeCreated(n)
	case RepeatStatement:
		// The until condition sees the locals of the loop body.
		e.h.ScopeEntered()
		e.block(n.Body)
		e.expression(n.Condition)
		e.h.ScopeExited()
		e.h.NodeCreated(n)
	case IfStatement:
		for _, c := range n.Clauses {
			e.expression(c.Condition)
			e.scoped(c.Body)
			e.h.NodeCreated(c)
		}
		e.h.NodeCreated(n)
	case ForNumericStatement, ForGenericStatement:
		e.expressions(n.Init)
		e.h.ScopeEntered()
		for _, v := range n.Variables {
			e.h.IdentifierBound(v.Name, Binding{Node: v, Visible: v.Start})
		}
		e.block(n.Body)
		e.h.ScopeExited()
		e.h.NodeCreated(n)
	case Error:
		for _, c := range n.Body {
			if isStatementKind(c.Kind) {
				e.statement(c)
			} else {
				e.expression(c)
			}
		}
		e.h.NodeCreated(n)
	default:
		e.h.NodeCreated(n)
	}
}

func (e *emitter) expressions(ns []*Node) {
	for _, n := range ns {
		e.expression(n)
	}
}

func (e *emitter) expression(n *Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case MemberExpression:
		e.expression(n.Base)
		e.expression(n.Identifier)
	case IndexExpression:
		e.expression(n.Base)
		e.expression(n.Index)
	case CallExpression:
		e.expression(n.Base)
		e.expressions(n.Arguments)
	case StringCallExpression, TableCallExpression:
		e.expression(n.Base)
		e.expression(n.Argument)
	case BinaryExpression, LogicalExpression:
		e.expression(n.Left)
		e.expression(n.Right)
	case UnaryExpression:
		e.expression(n.Argument)
	case TableConstructorExpression:
		for _, f := range n.Fields {
			e.expression(f.Key)
			e.expression(f.Item)
			e.h.NodeCreated(f)
		}
	case FunctionDeclaration:
		e.function(n)
		return
	case Error:
		e.statement(n)
		return
	}
	e.h.NodeCreated(n)
}

// function reports a function declaration or expression. A local function
// binds its own name before the body so recursive references resolve.
func (e *emitter) function(n *Node) {
	if n.Identifier != nil {
		if n.IsLocal && n.Identifier.Kind == Identifier {
			e.h.IdentifierBound(n.Identifier.Name, Binding{Node: n.Identifier, Visible: n.Identifier.Start})
		} else {
			e.expression(n.Identifier)
		}
	}
	e.h.ScopeEntered()
	idx := 0
	if n.IsMethod() {
		e.h.IdentifierBound("self", Binding{ParameterOf: n, ParameterIndex: 0, Visible: n.Start})
		idx = 1
	}
	for _, p := range n.Parameters {
		e.h.IdentifierBound(p.Name, Binding{Node: p, ParameterOf: n, ParameterIndex: idx, Visible: p.Start})
		idx++
	}
	e.block(n.Body)
	e.h.ScopeExited()
	e.h.NodeCreated(n)
}

func isStatementKind(k Kind) bool {
	switch k {
	case LocalStatement, AssignmentStatement, CallStatement, ReturnStatement,
		DoStatement, WhileStatement, RepeatStatement, IfStatement,
		ForNumericStatement, ForGenericStatement, BreakStatement:
		return true
	}
	return false
}
