package ast

import (
	"fmt"
	"io"
	"strings"
)

// Printer writes a readable rendering of the program tree.
// Used by the -dast debug flag.
type Printer struct {
	w      io.Writer
	indent int
}

// NewPrinter creates a new AST printer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("  ", p.indent), fmt.Sprintf(format, args...))
}

// PrintProgram prints an entire program.
func (p *Printer) PrintProgram(prog *Program) {
	for _, c := range prog.Consts {
		p.printf("const %s = %d", c.Name, c.Value)
	}
	for _, s := range prog.Structs {
		p.printf("struct %s", s.Name)
		p.indent++
		for _, f := range s.Fields {
			p.printf("%s: %s", f.Name, TypeString(f.Type))
		}
		p.indent--
	}
	for _, e := range prog.Externs {
		p.printf("extern %s", e)
	}
	for _, e := range prog.Exports {
		p.printf("export %s", e)
	}
	for _, g := range prog.Globals {
		if g.Init == nil {
			p.printf("var %s: %s", g.Name, TypeString(g.Type))
		} else if g.Init.IsString {
			p.printf("var %s: %s = %q", g.Name, TypeString(g.Type), g.Init.Str)
		} else {
			p.printf("var %s: %s = %d", g.Name, TypeString(g.Type), g.Init.Value)
		}
	}
	for _, m := range prog.Macros {
		p.printf("macro %s(%s)", m.Name, strings.Join(m.Params, ", "))
		p.indent++
		p.printStmts(m.Body)
		p.indent--
	}
	for _, proc := range prog.Procs {
		p.PrintProcedure(proc)
	}
}

// PrintProcedure prints one procedure.
func (p *Printer) PrintProcedure(proc *Procedure) {
	params := make([]string, len(proc.Params))
	for i, pa := range proc.Params {
		params[i] = fmt.Sprintf("%s: %s", pa.Name, TypeString(pa.Type))
		if pa.InReg() {
			params[i] += " in " + pa.Reg.String()
		}
	}
	p.printf("proc %s(%s)", proc.Name, strings.Join(params, ", "))
	p.indent++
	for _, l := range proc.Locals {
		p.printf("var %s: %s", l.Name, TypeString(l.Type))
	}
	p.printStmts(proc.Body)
	p.indent--
}

func (p *Printer) printStmts(stmts []Stmt) {
	for _, s := range stmts {
		p.printStmt(s)
	}
}

func (p *Printer) printStmt(s Stmt) {
	switch st := s.(type) {
	case Assign:
		p.printf("%s = %s", ExprString(st.Target), ExprString(st.Value))
	case CallStmt:
		p.printf("%s", ExprString(Call{Name: st.Name, Args: st.Args}))
	case If:
		p.printf("if %s", ExprString(st.Cond))
		p.indent++
		p.printStmts(st.Then)
		p.indent--
		if st.Else != nil {
			p.printf("else")
			p.indent++
			p.printStmts(st.Else)
			p.indent--
		}
		p.printf("endif")
	case While:
		p.printf("while %s", ExprString(st.Cond))
		p.indent++
		p.printStmts(st.Body)
		p.indent--
		p.printf("endwhile")
	case DoUntil:
		p.printf("do")
		p.indent++
		p.printStmts(st.Body)
		p.indent--
		p.printf("until %s", ExprString(st.Cond))
	case For:
		dir := "to"
		if st.Down {
			dir = "downto"
		}
		p.printf("for %s = %s %s %s", st.Var, ExprString(st.From), dir, ExprString(st.To))
		p.indent++
		p.printStmts(st.Body)
		p.indent--
		p.printf("next")
	case Break:
		p.printf("break")
	case Continue:
		p.printf("continue")
	case Return:
		if st.Value == nil {
			p.printf("return")
		} else {
			p.printf("return %s", ExprString(st.Value))
		}
	case Raw:
		p.printf("asm")
		p.indent++
		for _, line := range st.Lines {
			p.printf("%s", line)
		}
		p.indent--
		p.printf("endasm")
	}
}

// TypeString renders a type declaration.
func TypeString(t Type) string {
	var b strings.Builder
	if t.Kind == Struct {
		b.WriteString(t.StructName)
	} else {
		b.WriteString(t.Kind.String())
	}
	for _, e := range t.Extents {
		fmt.Fprintf(&b, "[%d]", e)
	}
	return b.String()
}

var binOpNames = map[BinOp]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Mod: "%",
	BitAnd: "&", BitOr: "|", BitXor: "^", Shl: "<<", Shr: ">>",
	Eq: "==", Ne: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
	LogAnd: "&&", LogOr: "||",
}

var unaryOpNames = map[UnaryOp]string{
	Neg: "-", BitNot: "~", Not: "!", Deref: "*", AddrOf: "&",
}

// ExprString renders an expression in source-like syntax.
func ExprString(e Expr) string {
	switch ex := e.(type) {
	case IntLit:
		return fmt.Sprintf("%d", ex.Value)
	case Ident:
		return ex.Name
	case Unary:
		return unaryOpNames[ex.Op] + ExprString(ex.X)
	case Binary:
		return fmt.Sprintf("(%s %s %s)", ExprString(ex.Left), binOpNames[ex.Op], ExprString(ex.Right))
	case Index:
		var b strings.Builder
		b.WriteString(ex.Base)
		for _, idx := range ex.Indices {
			fmt.Fprintf(&b, "[%s]", ExprString(idx))
		}
		return b.String()
	case Member:
		sep := "."
		if ex.ViaPtr {
			sep = "->"
		}
		return ExprString(ex.Base) + sep + ex.Field
	case Call:
		args := make([]string, len(ex.Args))
		for i, a := range ex.Args {
			args[i] = ExprString(a)
		}
		return fmt.Sprintf("%s(%s)", ex.Name, strings.Join(args, ", "))
	}
	return "?"
}
