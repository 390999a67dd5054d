package script

// Position is a 1-based source location carried by every AST node.
type Position struct {
	Line   int
	Column int
}

// Expr is implemented by all expression nodes. The variant set is closed:
// the evaluator matches exhaustively and rejects anything else.
type Expr interface {
	Pos() Position
	exprNode()
}

// Stmt is implemented by all statement nodes.
type Stmt interface {
	Pos() Position
	stmtNode()
}

// Program is the parsed script.
type Program struct {
	Stmts []Stmt
}

// --- Expressions ---

// Ident is a name reference.
type Ident struct {
	Name string
	P    Position
}

// IntLit is an integer literal.
type IntLit struct {
	Value int64
	P     Position
}

// FloatLit is a floating-point literal.
type FloatLit struct {
	Value float64
	P     Position
}

// StringLit is a plain string literal.
type StringLit struct {
	Value string
	P     Position
}

// BoolLit is True or False.
type BoolLit struct {
	Value bool
	P     Position
}

// NullLit is None.
type NullLit struct {
	P Position
}

// FStringPart is one segment of a formatted string: either literal text
// or an interpolated expression.
type FStringPart struct {
	Text string
	Expr Expr // nil for text parts
}

// FString is a formatted string literal.
type FString struct {
	Parts []FStringPart
	P     Position
}

// ListLit is a list display.
type ListLit struct {
	Elems []Expr
	P     Position
}

// MapLit is a mapping display. Keys and Values are parallel.
type MapLit struct {
	Keys   []Expr
	Values []Expr
	P      Position
}

// SetLit is a set display. Evaluation produces a deduplicated list.
type SetLit struct {
	Elems []Expr
	P     Position
}

// Attr is attribute access: X.Name.
type Attr struct {
	X    Expr
	Name string
	P    Position
}

// Index is subscript access: X[Key].
type Index struct {
	X   Expr
	Key Expr
	P   Position
}

// Unary is a unary operation. Op is "-" or "not".
type Unary struct {
	Op string
	X  Expr
	P  Position
}

// Binary is an arithmetic, comparison, or boolean operation. Op is one of
// + - * / % == != < <= > >= and or in not-in.
type Binary struct {
	Op string
	X  Expr
	Y  Expr
	P  Position
}

// Ternary is the conditional expression: Then if Cond else Else.
type Ternary struct {
	Cond Expr
	Then Expr
	Else Expr
	P    Position
}

// Kwarg is a keyword argument in a call.
type Kwarg struct {
	Name  string
	Value Expr
}

// Call invokes a capability, the assistant call, a builtin function, or a
// fixed method (when Fn is an Attr). Scripts cannot define functions, so
// the callable set is closed.
type Call struct {
	Fn     Expr
	Args   []Expr
	Kwargs []Kwarg
	P      Position
}

// CompGen is one generator clause of a comprehension.
type CompGen struct {
	Target  Target
	Iter    Expr
	Filters []Expr
}

// CompKind distinguishes list, set, and map comprehensions.
type CompKind int

const (
	CompList CompKind = iota
	CompSet
	CompMap
)

// Comp is a comprehension with one or more generators.
type Comp struct {
	Kind CompKind
	Key  Expr // map comprehensions only
	Elt  Expr
	Gens []CompGen
	P    Position
}

func (n *Ident) Pos() Position     { return n.P }
func (n *IntLit) Pos() Position    { return n.P }
func (n *FloatLit) Pos() Position  { return n.P }
func (n *StringLit) Pos() Position { return n.P }
func (n *BoolLit) Pos() Position   { return n.P }
func (n *NullLit) Pos() Position   { return n.P }
func (n *FString) Pos() Position   { return n.P }
func (n *ListLit) Pos() Position   { return n.P }
func (n *MapLit) Pos() Position    { return n.P }
func (n *SetLit) Pos() Position    { return n.P }
func (n *Attr) Pos() Position      { return n.P }
func (n *Index) Pos() Position     { return n.P }
func (n *Unary) Pos() Position     { return n.P }
func (n *Binary) Pos() Position    { return n.P }
func (n *Ternary) Pos() Position   { return n.P }
func (n *Call) Pos() Position      { return n.P }
func (n *Comp) Pos() Position      { return n.P }

func (*Ident) exprNode()     {}
func (*IntLit) exprNode()    {}
func (*FloatLit) exprNode()  {}
func (*StringLit) exprNode() {}
func (*BoolLit) exprNode()   {}
func (*NullLit) exprNode()   {}
func (*FString) exprNode()   {}
func (*ListLit) exprNode()   {}
func (*MapLit) exprNode()    {}
func (*SetLit) exprNode()    {}
func (*Attr) exprNode()      {}
func (*Index) exprNode()     {}
func (*Unary) exprNode()     {}
func (*Binary) exprNode()    {}
func (*Ternary) exprNode()   {}
func (*Call) exprNode()      {}
func (*Comp) exprNode()      {}

// --- Assignment targets ---

// Target is a name or a destructuring tuple of names.
type Target interface {
	targetNode()
}

// NameTarget binds a single name in the current scope.
type NameTarget struct {
	Name string
	P    Position
}

// TupleTarget destructures a sequence into element targets.
type TupleTarget struct {
	Elems []Target
	P     Position
}

func (*NameTarget) targetNode()  {}
func (*TupleTarget) targetNode() {}

// --- Statements ---

// Assign binds the result of Value to Target.
type Assign struct {
	Target Target
	Value  Expr
	P      Position
}

// ExprStmt evaluates an expression for its value (the last one becomes
// the script result).
type ExprStmt struct {
	X Expr
	P Position
}

// ElifClause is one elif arm of an If.
type ElifClause struct {
	Cond Expr
	Body []Stmt
}

// If is a conditional statement with optional elif arms and else body.
type If struct {
	Cond  Expr
	Then  []Stmt
	Elifs []ElifClause
	Else  []Stmt
	P     Position
}

// For iterates over a sequence.
type For struct {
	Target Target
	Iter   Expr
	Body   []Stmt
	P      Position
}

// While loops while the condition holds. Iterations are bounded by the
// evaluator; an unbounded loop is an evaluation error, not a hang.
type While struct {
	Cond Expr
	Body []Stmt
	P    Position
}

// SchemaField is one declared field in a schema statement.
type SchemaFieldDecl struct {
	Name string
	Type string
}

// SchemaDecl declares a structured-record schema. Schemas are pure shape
// descriptors consumed by the assistant call; they hold no logic.
type SchemaDecl struct {
	Name   string
	Fields []SchemaFieldDecl
	P      Position
}

func (n *Assign) Pos() Position     { return n.P }
func (n *ExprStmt) Pos() Position   { return n.P }
func (n *If) Pos() Position         { return n.P }
func (n *For) Pos() Position        { return n.P }
func (n *While) Pos() Position      { return n.P }
func (n *SchemaDecl) Pos() Position { return n.P }

func (*Assign) stmtNode()     {}
func (*ExprStmt) stmtNode()   {}
func (*If) stmtNode()         {}
func (*For) stmtNode()        {}
func (*While) stmtNode()      {}
func (*SchemaDecl) stmtNode() {}
