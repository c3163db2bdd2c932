package syntax

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// builder converts a tree-sitter Lua tree into Nodes.
//
// The grammar hides most expression structure: a chain such as a.b[1].c is
// a run of sibling tokens (identifier "." identifier "[" number "]" ...)
// under whatever node holds it, and lists are runs separated by ",". The
// builder rebuilds expressions from those runs.
type builder struct {
	src []byte
}

func (b *builder) text(n *sitter.Node) string {
	return strings.TrimSpace(n.Content(b.src))
}

// start returns the first byte of n that is not whitespace. Leaf tokens
// can span the line break before them.
func (b *builder) start(n *sitter.Node) int {
	s, e := int(n.StartByte()), int(n.EndByte())
	for s < e && isSpace(b.src[s]) {
		s++
	}
	return s
}

func (b *builder) node(kind Kind, n *sitter.Node) *Node {
	return &Node{Kind: kind, Start: b.start(n), End: int(n.EndByte())}
}

func (b *builder) chunk(root *sitter.Node) *Node {
	out := b.node(Chunk, root)
	out.Start = int(root.StartByte())
	out.Body = b.statements(children(root))
	return out
}

// statements converts the statements among kids, attaching each
// statement's leading comment block. Delimiter tokens are skipped.
func (b *builder) statements(kids []*sitter.Node) []*Node {
	var out []*Node
	var pending []string
	prevEnd := -1
	for _, child := range kids {
		if child.Type() == "comment" {
			// A comment on the line of the previous statement trails it.
			if prevEnd >= 0 && !strings.Contains(string(b.src[prevEnd:b.start(child)]), "\n") {
				continue
			}
			pending = append(pending, commentText(b.text(child)))
			continue
		}
		if !child.IsNamed() {
			continue
		}
		stmt := b.statement(child)
		if stmt == nil {
			continue
		}
		lead := append(pending, b.docLines(child)...)
		if len(lead) > 0 {
			stmt.Leading = strings.Join(lead, "\n")
			inheritLeading(stmt)
		}
		out = append(out, stmt)
		pending = nil
		prevEnd = int(child.EndByte())
	}
	return out
}

// inheritLeading hands a statement's comment block to the function
// expression it assigns, as in `local f = function() end`.
func inheritLeading(stmt *Node) {
	if stmt.Kind != LocalStatement && stmt.Kind != AssignmentStatement {
		return
	}
	for _, v := range stmt.Init {
		if v != nil && v.Kind == FunctionDeclaration && v.Leading == "" {
			v.Leading = stmt.Leading
		}
	}
}

// docLines returns the lines of the "---" block the grammar attaches to a
// statement, without comment markers.
func (b *builder) docLines(n *sitter.Node) []string {
	doc := childOfType(n, "emmy_documentation")
	if doc == nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(b.text(doc), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "--") {
			continue
		}
		if s := commentText(line); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// bodyStart is the start of a statement without its doc block.
func (b *builder) bodyStart(n *sitter.Node) int {
	for _, c := range children(n) {
		if c.Type() != "emmy_documentation" && c.Type() != "comment" {
			return b.start(c)
		}
	}
	return b.start(n)
}

func (b *builder) statement(n *sitter.Node) *Node {
	switch n.Type() {
	case "variable_declaration":
		return b.declaration(n)
	case "function_statement":
		return b.functionStatement(n)
	case "function_call":
		out := b.node(CallStatement, n)
		out.Expression = b.call(n)
		return out
	case "return_statement", "module_return_statement":
		out := b.node(ReturnStatement, n)
		out.Init = b.expressionList(after(children(n), "return"))
		return out
	case "do_statement":
		out := b.node(DoStatement, n)
		out.Body = b.statements(between(children(n), "do_start", "do_end"))
		return out
	case "while_statement":
		kids := children(n)
		out := b.node(WhileStatement, n)
		out.Condition = b.exprSeq(between(kids, "while_start", "while_do"))
		out.Body = b.statements(between(kids, "while_do", "while_end"))
		return out
	case "repeat_statement":
		kids := children(n)
		out := b.node(RepeatStatement, n)
		out.Body = b.statements(between(kids, "repeat_start", "repeat_until"))
		out.Condition = b.exprSeq(after(kids, "repeat_until"))
		return out
	case "if_statement":
		return b.ifStatement(n)
	case "for_statement":
		return b.forStatement(n)
	case "break_statement":
		return b.node(BreakStatement, n)
	case "ERROR":
		return b.recover(n)
	}
	return nil
}

// declaration converts `[local] targets [= values]`. The grammar uses one
// rule for local declarations and plain assignments.
func (b *builder) declaration(n *sitter.Node) *Node {
	kids := children(n)
	local := false
	var targets []*sitter.Node
	var values []*sitter.Node
	for i, c := range kids {
		if c.Type() == "=" {
			values = kids[i+1:]
			break
		}
		switch c.Type() {
		case "local":
			local = true
		case "variable_declarator":
			targets = append(targets, c)
		}
	}

	out := b.node(AssignmentStatement, n)
	out.Start = b.bodyStart(n)
	if local {
		out.Kind = LocalStatement
		out.IsLocal = true
		for _, t := range targets {
			if id := childOfType(t, "identifier"); id != nil {
				out.Variables = append(out.Variables, b.identifier(id))
			}
		}
	} else {
		for _, t := range targets {
			if v := b.exprSeq(children(t)); v != nil {
				out.Variables = append(out.Variables, v)
			}
		}
	}
	out.Init = b.expressionList(values)
	return out
}

func (b *builder) functionStatement(n *sitter.Node) *Node {
	out := b.node(FunctionDeclaration, n)
	out.Start = b.bodyStart(n)
	for _, c := range children(n) {
		switch c.Type() {
		case "local":
			out.IsLocal = true
		case "function_name", "identifier":
			out.Identifier = b.functionName(c)
		}
	}
	b.functionParts(out, n)
	return out
}

// functionName converts a declared name, turning a.b:c into a
// MemberExpression chain whose last indexer is ":".
func (b *builder) functionName(n *sitter.Node) *Node {
	if n.Type() == "identifier" {
		return b.identifier(n)
	}
	var cur *Node
	indexer := "."
	for _, c := range children(n) {
		switch c.Type() {
		case "identifier":
			id := b.identifier(c)
			if cur == nil {
				cur = id
			} else {
				cur = member(cur, id, indexer)
			}
		case "table_dot":
			indexer = "."
		case "table_colon":
			indexer = ":"
		}
	}
	return cur
}

func (b *builder) functionParts(out *Node, n *sitter.Node) {
	for _, c := range children(n) {
		switch c.Type() {
		case "parameter_list":
			for _, p := range children(c) {
				switch p.Type() {
				case "identifier":
					out.Parameters = append(out.Parameters, b.identifier(p))
				case "ellipsis":
					out.IsVararg = true
				}
			}
		case "function_body":
			out.Body = b.statements(children(c))
		}
	}
}

func (b *builder) ifStatement(n *sitter.Node) *Node {
	out := b.node(IfStatement, n)
	var clause *Node
	var cond, body []*sitter.Node
	inBody := false
	finish := func(end int) {
		if clause == nil {
			return
		}
		if clause.Kind == IfClause {
			clause.Condition = b.exprSeq(cond)
		}
		clause.Body = b.statements(body)
		clause.End = end
		out.Clauses = append(out.Clauses, clause)
		clause, cond, body, inBody = nil, nil, nil, false
	}
	for _, c := range children(n) {
		switch c.Type() {
		case "if_start", "if_elseif":
			finish(b.start(c))
			clause = b.node(IfClause, c)
		case "if_then":
			inBody = true
		case "if_else":
			finish(b.start(c))
			clause = b.node(ElseClause, c)
			inBody = true
		case "if_end":
			finish(b.start(c))
		default:
			if inBody {
				body = append(body, c)
			} else {
				cond = append(cond, c)
			}
		}
	}
	finish(int(n.EndByte()))
	return out
}

func (b *builder) forStatement(n *sitter.Node) *Node {
	kids := children(n)
	body := b.statements(between(kids, "for_do", "for_end"))
	if clause := childOfType(n, "for_numeric"); clause != nil {
		out := b.node(ForNumericStatement, n)
		if name := childOfType(clause, "identifier"); name != nil {
			out.Variables = []*Node{b.identifier(name)}
		}
		out.Init = b.expressionList(after(children(clause), "="))
		out.Body = body
		return out
	}
	out := b.node(ForGenericStatement, n)
	if clause := childOfType(n, "for_generic"); clause != nil {
		for _, c := range children(childOfType(clause, "identifier_list")) {
			if c.Type() == "identifier" {
				out.Variables = append(out.Variables, b.identifier(c))
			}
		}
		out.Init = b.expressionList(after(children(clause), "for_in"))
	}
	out.Body = body
	return out
}

// expressionList converts a comma separated run of expression tokens.
func (b *builder) expressionList(kids []*sitter.Node) []*Node {
	var out []*Node
	depth, from := 0, 0
	for i, c := range kids {
		switch {
		case isOpen(c):
			depth++
		case isClose(c):
			depth--
		case depth <= 0 && c.Type() == ",":
			if e := b.exprSeq(kids[from:i]); e != nil {
				out = append(out, e)
			}
			from = i + 1
		}
	}
	if e := b.exprSeq(kids[from:]); e != nil {
		out = append(out, e)
	}
	return out
}

// exprSeq converts one expression spelled as a run of sibling tokens: a
// primary expression followed by field and index suffixes.
func (b *builder) exprSeq(kids []*sitter.Node) *Node {
	kids = dropComments(kids)
	if len(kids) == 0 {
		return nil
	}
	var cur *Node
	i := 1
	if isOpen(kids[0]) && kids[0].Type() != "[" {
		j := matchClose(kids, 0)
		cur = b.exprSeq(kids[1:min(j, len(kids))])
		i = j + 1
	} else {
		cur = b.expression(kids[0])
	}
	for i < len(kids) {
		c := kids[i]
		switch c.Type() {
		case ".", ":", "self_call_colon":
			if cur != nil && i+1 < len(kids) && kids[i+1].Type() == "identifier" {
				cur = member(cur, b.identifier(kids[i+1]), indexerOf(c.Type()))
				i += 2
				continue
			}
		case "[":
			j := matchClose(kids, i)
			index := b.exprSeq(kids[i+1 : min(j, len(kids))])
			if cur != nil {
				end := cur.End
				if j < len(kids) {
					end = int(kids[j].EndByte())
				}
				cur = &Node{Kind: IndexExpression, Start: cur.Start, End: end, Base: cur, Index: index}
			}
			i = j + 1
			continue
		}
		i++
	}
	return cur
}

func (b *builder) identifier(n *sitter.Node) *Node {
	out := b.node(Identifier, n)
	out.Name = b.text(n)
	return out
}

func (b *builder) expression(n *sitter.Node) *Node {
	switch n.Type() {
	case "identifier":
		return b.identifier(n)
	case "nil":
		out := b.node(NilLiteral, n)
		out.Raw = "nil"
		return out
	case "boolean", "true", "false":
		out := b.node(BooleanLiteral, n)
		out.Raw = b.text(n)
		return out
	case "number":
		out := b.node(NumericLiteral, n)
		out.Raw = b.text(n)
		return out
	case "string", "string_argument":
		return b.stringLiteral(n)
	case "ellipsis":
		return b.node(VarargLiteral, n)
	case "function":
		out := b.node(FunctionDeclaration, n)
		b.functionParts(out, n)
		return out
	case "function_call":
		return b.call(n)
	case "tableconstructor", "table_argument":
		return b.table(n)
	case "binary_operation":
		return b.binary(n)
	case "unary_operation":
		out := b.node(UnaryExpression, n)
		kids := dropComments(children(n))
		if len(kids) > 0 {
			out.Operator = kids[0].Type()
			out.Argument = b.exprSeq(kids[1:])
		}
		return out
	case "variable_declarator":
		return b.exprSeq(children(n))
	case "ERROR":
		return b.recover(n)
	default:
		out := b.node(Error, n)
		for _, c := range namedChildren(n) {
			if c.Type() != "comment" {
				out.Body = append(out.Body, b.expression(c))
			}
		}
		return out
	}
}

func (b *builder) stringLiteral(n *sitter.Node) *Node {
	out := b.node(StringLiteral, n)
	out.Raw = b.text(n)
	if c := n.ChildByFieldName("content"); c != nil {
		out.Value = c.Content(b.src)
	} else {
		out.Value = stringValue(out.Raw)
	}
	return out
}

// callParts are the tokens that end the callee of a function_call.
var callParts = map[string]bool{
	"self_call_colon":     true,
	"function_call_paren": true,
	"function_arguments":  true,
	"string_argument":     true,
	"table_argument":      true,
}

func (b *builder) call(n *sitter.Node) *Node {
	kids := children(n)
	k := 0
	for k < len(kids) && !callParts[kids[k].Type()] {
		k++
	}
	base := b.exprSeq(kids[:k])
	out := b.node(CallExpression, n)
	for ; k < len(kids); k++ {
		c := kids[k]
		switch c.Type() {
		case "self_call_colon":
			if base != nil && k+1 < len(kids) && kids[k+1].Type() == "identifier" {
				base = member(base, b.identifier(kids[k+1]), ":")
				k++
			}
		case "function_arguments":
			out.Arguments = b.expressionList(children(c))
		case "string_argument":
			out.Kind = StringCallExpression
			out.Argument = b.stringLiteral(c)
		case "table_argument":
			out.Kind = TableCallExpression
			out.Argument = b.table(c)
		}
	}
	out.Base = base
	return out
}

var binaryOps = map[string]bool{
	"or": true, "and": true,
	"<": true, "<=": true, "==": true, "~=": true, ">=": true, ">": true,
	"|": true, "~": true, "&": true, "<<": true, ">>": true,
	"+": true, "-": true, "*": true, "/": true, "//": true, "%": true,
	"..": true, "^": true,
}

// binary splits a binary_operation at its operator. Nested operations are
// nodes of their own, so the first operator outside brackets is the one.
func (b *builder) binary(n *sitter.Node) *Node {
	out := b.node(BinaryExpression, n)
	kids := dropComments(children(n))
	depth := 0
	for i, c := range kids {
		switch {
		case isOpen(c):
			depth++
		case isClose(c):
			depth--
		case depth == 0 && !c.IsNamed() && binaryOps[c.Type()]:
			out.Operator = c.Type()
			out.Left = b.exprSeq(kids[:i])
			out.Right = b.exprSeq(kids[i+1:])
			if out.Operator == "and" || out.Operator == "or" {
				out.Kind = LogicalExpression
			}
			return out
		}
	}
	return out
}

func (b *builder) table(n *sitter.Node) *Node {
	out := b.node(TableConstructorExpression, n)
	for _, f := range children(childOfType(n, "fieldlist")) {
		if f.Type() != "field" {
			continue
		}
		kids := dropComments(children(f))
		var field *Node
		switch {
		case len(kids) > 0 && kids[0].Type() == "field_left_bracket":
			field = b.node(TableKey, f)
			right := indexOf(kids, "field_right_bracket")
			field.Key = b.exprSeq(kids[1:right])
			field.Item = b.exprSeq(after(kids[min(right, len(kids)):], "="))
		case len(kids) >= 2 && kids[0].Type() == "identifier" && kids[1].Type() == "=":
			field = b.node(TableKeyString, f)
			field.Key = b.identifier(kids[0])
			field.Item = b.exprSeq(kids[2:])
		default:
			field = b.node(TableValue, f)
			field.Item = b.exprSeq(kids)
		}
		out.Fields = append(out.Fields, field)
	}
	return out
}

// recover salvages the children of an ERROR node. An unfinished access
// such as `t:name` followed by more code is left as (identifier ":") with
// the name outside every child; the name is read back from the source so
// the access is still reported.
func (b *builder) recover(n *sitter.Node) *Node {
	out := b.node(Error, n)
	kids := children(n)
	var items []*Node
	var cur *Node
	flush := func() {
		if cur != nil {
			items = append(items, cur)
			cur = nil
		}
	}
	for i := 0; i < len(kids); i++ {
		c := kids[i]
		typ := c.Type()
		switch {
		case typ == "." || typ == ":" || typ == "self_call_colon":
			if cur == nil {
				continue
			}
			var id *Node
			if i+1 < len(kids) && kids[i+1].Type() == "identifier" {
				id = b.identifier(kids[i+1])
				i++
			} else {
				to := int(n.EndByte())
				if i+1 < len(kids) {
					to = int(kids[i+1].StartByte())
				}
				id = b.gapIdentifier(int(c.EndByte()), to)
			}
			if id != nil {
				cur = member(cur, id, indexerOf(typ))
			}
		case typ == "comment":
		case !c.IsNamed():
			flush()
		case isStatementType(typ):
			flush()
			if s := b.statement(c); s != nil {
				items = append(items, s)
			}
		default:
			flush()
			cur = b.expression(c)
		}
	}
	flush()
	out.Body = items
	return out
}

// gapIdentifier reads an identifier from source bytes no child covers.
func (b *builder) gapIdentifier(from, to int) *Node {
	for from < to && isSpace(b.src[from]) {
		from++
	}
	end := from
	for end < to && isIdentByte(b.src[end]) {
		end++
	}
	if end == from || (b.src[from] >= '0' && b.src[from] <= '9') {
		return nil
	}
	return &Node{Kind: Identifier, Start: from, End: end, Name: string(b.src[from:end])}
}

func isStatementType(typ string) bool {
	switch typ {
	case "variable_declaration", "function_statement", "return_statement",
		"module_return_statement", "do_statement", "while_statement",
		"repeat_statement", "if_statement", "for_statement", "break_statement":
		return true
	}
	return false
}

// comments collects every comment in the tree in source order. Each line
// of a "---" block the grammar folds into a statement counts as one
// comment.
func (b *builder) comments(root *sitter.Node) []*Node {
	var out []*Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "comment":
			c := b.node(Comment, n)
			c.Raw = b.text(n)
			c.Value = commentText(c.Raw)
			out = append(out, c)
			return
		case "emmy_documentation":
			out = append(out, b.docComments(n)...)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (b *builder) docComments(n *sitter.Node) []*Node {
	var out []*Node
	pos := int(n.StartByte())
	for _, line := range strings.SplitAfter(n.Content(b.src), "\n") {
		lineStart := pos
		pos += len(line)
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "---") {
			continue
		}
		start := lineStart + strings.Index(line, "---")
		out = append(out, &Node{
			Kind:  Comment,
			Start: start,
			End:   start + len(trimmed),
			Raw:   trimmed,
			Value: commentText(trimmed),
		})
	}
	return out
}

// commentText strips comment markers: "--", "---" and long brackets.
func commentText(raw string) string {
	s := strings.TrimPrefix(raw, "--")
	if strings.HasPrefix(s, "[") {
		if end := strings.Index(s[1:], "["); end >= 0 && strings.Trim(s[1:end+1], "=") == "" {
			eq := s[1 : end+1]
			s = strings.TrimPrefix(s, "["+eq+"[")
			s = strings.TrimSuffix(strings.TrimRight(s, " \t\r\n"), "]"+eq+"]")
		}
	}
	s = strings.TrimLeft(s, "-")
	return strings.TrimSpace(s)
}

// stringValue returns the contents of a string literal without quotes.
func stringValue(raw string) string {
	switch {
	case len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\''):
		return raw[1 : len(raw)-1]
	case strings.HasPrefix(raw, "["):
		open := strings.Index(raw[1:], "[")
		if open >= 0 {
			eq := raw[1 : open+1]
			s := strings.TrimPrefix(raw, "["+eq+"[")
			return strings.TrimSuffix(s, "]"+eq+"]")
		}
	}
	return raw
}

func member(base, id *Node, indexer string) *Node {
	return &Node{
		Kind:       MemberExpression,
		Start:      base.Start,
		End:        id.End,
		Indexer:    indexer,
		Base:       base,
		Identifier: id,
	}
}

func indexerOf(typ string) string {
	if typ == "." {
		return "."
	}
	return ":"
}

func isOpen(n *sitter.Node) bool {
	switch n.Type() {
	case "[", "(", "left_paren":
		return true
	}
	return false
}

func isClose(n *sitter.Node) bool {
	switch n.Type() {
	case "]", ")", "right_paren":
		return true
	}
	return false
}

// matchClose returns the index of the bracket closing kids[open], or
// len(kids) when it is unclosed.
func matchClose(kids []*sitter.Node, open int) int {
	depth := 0
	for i := open; i < len(kids); i++ {
		switch {
		case isOpen(kids[i]):
			depth++
		case isClose(kids[i]):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(kids)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func children(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.ChildCount())
	for i := 0; i < int(n.ChildCount()); i++ {
		out = append(out, n.Child(i))
	}
	return out
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

func childOfType(n *sitter.Node, typ string) *sitter.Node {
	for _, c := range children(n) {
		if c.Type() == typ {
			return c
		}
	}
	return nil
}

func dropComments(kids []*sitter.Node) []*sitter.Node {
	out := kids[:0:0]
	for _, c := range kids {
		if c.Type() != "comment" {
			out = append(out, c)
		}
	}
	return out
}

func indexOf(kids []*sitter.Node, typ string) int {
	for i, c := range kids {
		if c.Type() == typ {
			return i
		}
	}
	return len(kids)
}

// after returns the nodes following the first node of type typ.
func after(kids []*sitter.Node, typ string) []*sitter.Node {
	i := indexOf(kids, typ)
	if i >= len(kids) {
		return nil
	}
	return kids[i+1:]
}

// between returns the nodes after the first open and before the next close.
func between(kids []*sitter.Node, open, close string) []*sitter.Node {
	rest := after(kids, open)
	return rest[:indexOf(rest, close)]
}
