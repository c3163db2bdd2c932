// Package syntax turns Lua source into a stream of parse lifecycle events.
//
// The parser is backed by tree-sitter's Lua grammar, which tolerates
// truncated and malformed input: whatever could be recognised is still
// reported. Consumers implement Handler and receive, in source order,
// node creation (children before parents), lexical scope entry and exit,
// and local name bindings.
package syntax

// Kind names a syntax node type.
type Kind string

const (
	Chunk   Kind = "Chunk"
	Comment Kind = "Comment"
	Error   Kind = "Error"

	Identifier     Kind = "Identifier"
	StringLiteral  Kind = "StringLiteral"
	NumericLiteral Kind = "NumericLiteral"
	BooleanLiteral Kind = "BooleanLiteral"
	NilLiteral     Kind = "NilLiteral"
	VarargLiteral  Kind = "VarargLiteral"

	MemberExpression     Kind = "MemberExpression"
	IndexExpression      Kind = "IndexExpression"
	CallExpression       Kind = "CallExpression"
	StringCallExpression Kind = "StringCallExpression"
	TableCallExpression  Kind = "TableCallExpression"
	BinaryExpression     Kind = "BinaryExpression"
	LogicalExpression    Kind = "LogicalExpression"
	UnaryExpression      Kind = "UnaryExpression"

	TableConstructorExpression Kind = "TableConstructorExpression"
	TableKey                   Kind = "TableKey"
	TableKeyString             Kind = "TableKeyString"
	TableValue                 Kind = "TableValue"

	FunctionDeclaration Kind = "FunctionDeclaration"
	LocalStatement      Kind = "LocalStatement"
	AssignmentStatement Kind = "AssignmentStatement"
	CallStatement       Kind = "CallStatement"
	ReturnStatement     Kind = "ReturnStatement"
	DoStatement         Kind = "DoStatement"
	WhileStatement      Kind = "WhileStatement"
	RepeatStatement     Kind = "RepeatStatement"
	IfStatement         Kind = "IfStatement"
	IfClause            Kind = "IfClause"
	ElseClause          Kind = "ElseClause"
	ForNumericStatement Kind = "ForNumericStatement"
	ForGenericStatement Kind = "ForGenericStatement"
	BreakStatement      Kind = "BreakStatement"
)

// Node is a syntax tree node. Only the fields meaningful for Kind are set.
type Node struct {
	Kind  Kind
	Start int // byte offset, inclusive
	End   int // byte offset, exclusive

	Name    string // Identifier
	Raw     string // literal and comment source text
	Value   string // string literal contents, comment text without markers
	Indexer string // "." or ":" on MemberExpression

	Base       *Node   // member, index and call expressions
	Identifier *Node   // member field; FunctionDeclaration name (nil when anonymous)
	Index      *Node   // IndexExpression key
	Arguments  []*Node // CallExpression
	Argument   *Node   // StringCallExpression, TableCallExpression; UnaryExpression operand

	Parameters []*Node // FunctionDeclaration, Identifier nodes
	IsVararg   bool
	IsLocal    bool
	Body       []*Node // statements of a block; recovered children of an Error

	Variables []*Node // LocalStatement, AssignmentStatement, for loop targets
	Init      []*Node // values, return arguments, for-in iterators, numeric bounds

	Fields []*Node // TableConstructorExpression
	Key    *Node   // TableKey, TableKeyString
	Item   *Node   // table field value

	Operator  string
	Left      *Node
	Right     *Node
	Condition *Node
	Clauses   []*Node // IfStatement

	Expression *Node // CallStatement

	// Leading is the comment block written directly above a statement, or
	// inherited by a function expression from the statement assigning it.
	Leading string
}

// IsMethod reports whether a function declaration was written with the
// method operator (function t:m() end), giving it an implicit self.
func (n *Node) IsMethod() bool {
	return n != nil && n.Kind == FunctionDeclaration && n.Identifier != nil &&
		n.Identifier.Kind == MemberExpression && n.Identifier.Indexer == ":"
}

// Binding describes a local name introduced into the current scope.
type Binding struct {
	// Node is the identifier node being bound, when one exists.
	Node *Node
	// ParameterOf is the function whose parameter list declares the name;
	// nil for ordinary locals.
	ParameterOf *Node
	// ParameterIndex is the position in the function's argument list,
	// counting the implicit self of method declarations.
	ParameterIndex int
	// Visible is the byte offset from which the name is in effect. The
	// initialisers of `local x = x` still see the outer x.
	Visible int
}

// Handler receives parse lifecycle events. Calls are made synchronously from
// Parser.End in source order; nodes are reported after their children.
type Handler interface {
	NodeCreated(n *Node)
	ScopeEntered()
	ScopeExited()
	IdentifierBound(name string, b Binding)
}
