// Package ast defines the validated program tree consumed by code
// generation: procedures, typed variables, structs, arrays, expressions
// and control flow. The tree is produced by the parser and is assumed
// type- and scope-checked before it reaches any downstream stage.
package ast

import "github.com/rozensoftware/hasm/pkg/m68k"

// --- Types ---

// Kind classifies a variable type.
type Kind int

const (
	Byte Kind = iota // 1 byte
	Word             // 2 bytes
	Long             // 4 bytes
	Ptr              // 4 bytes, untyped pointer
	Struct           // named struct, size from layout table
)

// Type describes a declared type: a scalar kind (possibly a named
// struct) with zero or more array dimension extents.
type Type struct {
	Kind       Kind
	StructName string // set when Kind == Struct
	Extents    []int  // array dimensions, outermost first
}

// IsArray reports whether the type carries array dimensions.
func (t Type) IsArray() bool {
	return len(t.Extents) > 0
}

// Elem returns the element type with array dimensions stripped.
func (t Type) Elem() Type {
	return Type{Kind: t.Kind, StructName: t.StructName}
}

// ScalarSize returns the size in bytes of the scalar kinds.
// Struct sizes come from the layout tables, not from here.
func (t Type) ScalarSize() int {
	switch t.Kind {
	case Byte:
		return 1
	case Word:
		return 2
	}
	return 4
}

func (k Kind) String() string {
	switch k {
	case Byte:
		return "byte"
	case Word:
		return "word"
	case Long:
		return "long"
	case Ptr:
		return "ptr"
	case Struct:
		return "struct"
	}
	return "?"
}

// --- Expressions ---

// Expr is the interface for expression nodes.
type Expr interface {
	implExpr()
}

// IntLit is an integer literal.
type IntLit struct {
	Value int
}

// Ident references a named constant, parameter, local or global.
type Ident struct {
	Name string
}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	Neg    UnaryOp = iota // -x
	BitNot                // ~x
	Not                   // !x
	Deref                 // *p
	AddrOf                // &x
)

// Unary applies a unary operator.
type Unary struct {
	Op UnaryOp
	X  Expr
}

// BinOp enumerates binary operators.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	BitAnd
	BitOr
	BitXor
	Shl
	Shr
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	LogAnd
	LogOr
)

// Binary combines two operands.
type Binary struct {
	Op          BinOp
	Left, Right Expr
}

// Index subscripts a named array with one expression per dimension.
type Index struct {
	Base    string
	Indices []Expr
}

/// Member accesses a struct field. ViaPtr distinguishes p->f from v.f:
// for ViaPtr the base expression yields a pointer whose runtime value
// is computed exactly once.
type Member struct {
	Base   Expr
	Field  string
	ViaPtr bool
}

// Call invokes a procedure and yields its result.
type Call struct {
	Name string
	Args []Expr
}

func (IntLit) implExpr() {}
func (Ident) implExpr()  {}
func (Unary) implExpr()  {}
func (Binary) implExpr() {}
func (Index) implExpr()  {}
func (Member) implExpr() {}
func (Call) implExpr()   {}

// --- Statements ---

// Stmt is the interface for statement nodes.
type Stmt interface {
	implStmt()
}

// Assign stores Value into the place named by Target.
type Assign struct {
	Target Expr
	Value  Expr
}

// CallStmt invokes a procedure or macro for effect.
type CallStmt struct {
	Name string
	Args []Expr
}

// If branches on a condition.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt // nil when no else branch
}

// While is a top-tested loop.
type While struct {
	Cond Expr
	Body []Stmt
}

// DoUntil is a bottom-tested loop that repeats until Cond is true.
type DoUntil struct {
	Body []Stmt
	Cond Expr
}

// For counts Var from From to To inclusive, stepping by one.
// Down selects a descending count.
type For struct {
	Var  string
	From Expr
	To   Expr
	Down bool
	Body []Stmt
}

// Break exits the innermost loop.
type Break struct{}

// Continue jumps to the innermost loop's continuation point.
type Continue struct{}

// Return leaves the procedure, delivering Value (when non-nil) in the
// fixed return-value register.
type Return struct {
	Value Expr // nil for plain return
}

// Raw is an inline block of hand-written target instructions.
// Tokens of the form @name are resolved at emission time.
type Raw struct {
	Lines []string
}

func (Assign) implStmt()   {}
func (CallStmt) implStmt() {}
func (If) implStmt()       {}
func (While) implStmt()    {}
func (DoUntil) implStmt()  {}
func (For) implStmt()      {}
func (Break) implStmt()    {}
func (Continue) implStmt() {}
func (Return) implStmt()   {}
func (Raw) implStmt()      {}

// --- Declarations ---

// Param is a procedure parameter. Reg is valid for register-passed
// parameters, which are bound to that hardware register for the
// procedure's lifetime; all others receive a positive frame offset.
type Param struct {
	Name string
	Type Type
	Reg  m68k.Reg // m68k.None for stack-passed parameters
}

// InReg reports whether the parameter is register-passed.
func (p Param) InReg() bool {
	return p.Reg != m68k.None
}

// Local is a procedure-local variable; it receives a negative frame
// offset from the frame layout planner.
type Local struct {
	Name string
	Type Type
}

// Procedure is one compiled unit of code.
type Procedure struct {
	Name      string
	Params    []Param
	Locals    []Local
	HasResult bool
	Body      []Stmt
}

// HasLocals reports whether the procedure declares local variables.
// The frame layout planner keys its frame-register choice on this.
func (p *Procedure) HasLocals() bool {
	return len(p.Locals) > 0
}

// Field is one struct member declaration.
type Field struct {
	Name string
	Type Type
}

// StructDef declares a struct layout.
type StructDef struct {
	Name   string
	Fields []Field
}

// Const declares a named compile-time integer.
type Const struct {
	Name  string
	Value int
}

// Global is a program-level variable. A nil initializer places it in
// uninitialized storage.
type Global struct {
	Name string
	Type Type
	Init *Init
}

// Init is a global initializer: either an integer or a string
// (byte-array contents, NUL terminated in the output).
type Init struct {
	IsString bool
	Value    int
	Str      string
}

// MacroDef is a user-defined parameterized statement template.
// Substitution of formals is syntactic; see the macro package.
type MacroDef struct {
	Name   string
	Params []string
	Body   []Stmt
}

// Program is a whole compilation unit.
type Program struct {
	Consts  []Const
	Structs []StructDef
	Externs []string
	Exports []string
	Globals []Global
	Macros  []MacroDef
	Procs   []*Procedure
}
