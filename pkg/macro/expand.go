// Package macro implements compile-time statement templates. A macro
// call is replaced by a fresh copy of the macro body with every
// occurrence of a formal parameter substituted by the call's argument
// expression. Substitution is syntactic, not hygienic: a body
// identifier that happens to match a caller-side name binds to the
// caller's meaning after expansion.
package macro

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rozensoftware/hasm/pkg/ast"
)

// Table holds the macros defined by a compilation unit.
type Table struct {
	macros map[string]ast.MacroDef
}

// NewTable creates an empty macro table.
func NewTable() *Table {
	return &Table{macros: make(map[string]ast.MacroDef)}
}

// Define registers a macro. Redefinition is an error.
func (t *Table) Define(def ast.MacroDef) error {
	if _, ok := t.macros[def.Name]; ok {
		return fmt.Errorf("macro %s redefined", def.Name)
	}
	t.macros[def.Name] = def
	return nil
}

// Lookup reports whether name is a defined macro.
func (t *Table) Lookup(name string) (ast.MacroDef, bool) {
	def, ok := t.macros[name]
	return def, ok
}

// Expand produces the statements for one macro call. Nested macro
// calls inside the body are expanded as well; a macro that reaches
// itself while still being expanded is an error rather than an
// infinite loop.
func (t *Table) Expand(name string, args []ast.Expr) ([]ast.Stmt, error) {
	e := &expander{table: t, active: make(map[string]bool)}
	return e.expand(name, args)
}

// expander carries the set of macros currently being expanded, the
// same trick a preprocessor uses to stop recursive expansion.
type expander struct {
	table  *Table
	active map[string]bool
}

func (e *expander) expand(name string, args []ast.Expr) ([]ast.Stmt, error) {
	def, ok := e.table.macros[name]
	if !ok {
		return nil, fmt.Errorf("macro %s is not defined", name)
	}
	if e.active[name] {
		return nil, fmt.Errorf("macro %s expands itself", name)
	}
	if len(args) != len(def.Params) {
		return nil, fmt.Errorf("macro %s takes %d arguments, got %d",
			name, len(def.Params), len(args))
	}
	bind := make(map[string]ast.Expr, len(args))
	for i, p := range def.Params {
		bind[p] = args[i]
	}
	e.active[name] = true
	defer delete(e.active, name)
	return e.substBlock(def.Body, bind)
}

func (e *expander) substBlock(body []ast.Stmt, bind map[string]ast.Expr) ([]ast.Stmt, error) {
	out := make([]ast.Stmt, 0, len(body))
	for _, s := range body {
		repl, err := e.substStmt(s, bind)
		if err != nil {
			return nil, err
		}
		out = append(out, repl...)
	}
	return out, nil
}

// substStmt returns the substituted copy of one statement. A nested
// macro call expands in place, so one statement may become several.
func (e *expander) substStmt(s ast.Stmt, bind map[string]ast.Expr) ([]ast.Stmt, error) {
	switch s := s.(type) {
	case ast.Assign:
		target, err := substExpr(s.Target, bind)
		if err != nil {
			return nil, err
		}
		value, err := substExpr(s.Value, bind)
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{ast.Assign{Target: target, Value: value}}, nil
	case ast.CallStmt:
		args := make([]ast.Expr, len(s.Args))
		for i, a := range s.Args {
			sub, err := substExpr(a, bind)
			if err != nil {
				return nil, err
			}
			args[i] = sub
		}
		if _, ok := e.table.macros[s.Name]; ok {
			return e.expand(s.Name, args)
		}
		return []ast.Stmt{ast.CallStmt{Name: s.Name, Args: args}}, nil
	case ast.If:
		cond, err := substExpr(s.Cond, bind)
		if err != nil {
			return nil, err
		}
		then, err := e.substBlock(s.Then, bind)
		if err != nil {
			return nil, err
		}
		var els []ast.Stmt
		if s.Else != nil {
			if els, err = e.substBlock(s.Else, bind); err != nil {
				return nil, err
			}
		}
		return []ast.Stmt{ast.If{Cond: cond, Then: then, Else: els}}, nil
	case ast.While:
		cond, err := substExpr(s.Cond, bind)
		if err != nil {
			return nil, err
		}
		body, err := e.substBlock(s.Body, bind)
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{ast.While{Cond: cond, Body: body}}, nil
	case ast.DoUntil:
		body, err := e.substBlock(s.Body, bind)
		if err != nil {
			return nil, err
		}
		cond, err := substExpr(s.Cond, bind)
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{ast.DoUntil{Body: body, Cond: cond}}, nil
	case ast.For:
		from, err := substExpr(s.From, bind)
		if err != nil {
			return nil, err
		}
		to, err := substExpr(s.To, bind)
		if err != nil {
			return nil, err
		}
		body, err := e.substBlock(s.Body, bind)
		if err != nil {
			return nil, err
		}
		v := s.Var
		if repl, ok := bind[v]; ok {
			id, ok := repl.(ast.Ident)
			if !ok {
				return nil, fmt.Errorf("loop variable %s substituted by a non-identifier", v)
			}
			v = id.Name
		}
		return []ast.Stmt{ast.For{Var: v, From: from, To: to, Down: s.Down, Body: body}}, nil
	case ast.Return:
		if s.Value == nil {
			return []ast.Stmt{ast.Return{}}, nil
		}
		value, err := substExpr(s.Value, bind)
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{ast.Return{Value: value}}, nil
	case ast.Raw:
		lines, err := substRaw(s.Lines, bind)
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{ast.Raw{Lines: lines}}, nil
	case ast.Break, ast.Continue:
		return []ast.Stmt{s}, nil
	default:
		return nil, fmt.Errorf("macro body: unsupported statement %T", s)
	}
}

// substExpr rebuilds an expression with formals replaced by their
// argument expressions. Every returned node is a fresh value, so
// expanding the same macro twice never aliases the copies.
func substExpr(x ast.Expr, bind map[string]ast.Expr) (ast.Expr, error) {
	switch x := x.(type) {
	case ast.IntLit:
		return x, nil
	case ast.Ident:
		if repl, ok := bind[x.Name]; ok {
			return repl, nil
		}
		return x, nil
	case ast.Unary:
		sub, err := substExpr(x.X, bind)
		if err != nil {
			return nil, err
		}
		return ast.Unary{Op: x.Op, X: sub}, nil
	case ast.Binary:
		left, err := substExpr(x.Left, bind)
		if err != nil {
			return nil, err
		}
		right, err := substExpr(x.Right, bind)
		if err != nil {
			return nil, err
		}
		return ast.Binary{Op: x.Op, Left: left, Right: right}, nil
	case ast.Index:
		base := x.Base
		if repl, ok := bind[base]; ok {
			id, ok := repl.(ast.Ident)
			if !ok {
				return nil, fmt.Errorf("array %s substituted by a non-identifier", base)
			}
			base = id.Name
		}
		idx := make([]ast.Expr, len(x.Indices))
		for i, ix := range x.Indices {
			sub, err := substExpr(ix, bind)
			if err != nil {
				return nil, err
			}
			idx[i] = sub
		}
		return ast.Index{Base: base, Indices: idx}, nil
	case ast.Member:
		base, err := substExpr(x.Base, bind)
		if err != nil {
			return nil, err
		}
		return ast.Member{Base: base, Field: x.Field, ViaPtr: x.ViaPtr}, nil
	case ast.Call:
		args := make([]ast.Expr, len(x.Args))
		for i, a := range x.Args {
			sub, err := substExpr(a, bind)
			if err != nil {
				return nil, err
			}
			args[i] = sub
		}
		return ast.Call{Name: x.Name, Args: args}, nil
	default:
		return nil, fmt.Errorf("macro body: unsupported expression %T", x)
	}
}

// substRaw rewrites @formal references inside hand-written instruction
// lines. An identifier argument keeps its placeholder form for the
// emitter to resolve; an integer argument becomes an immediate. Other
// argument shapes have no textual spelling inside an instruction.
func substRaw(lines []string, bind map[string]ast.Expr) ([]string, error) {
	out := make([]string, len(lines))
	for i, line := range lines {
		rewritten, err := substRawLine(line, bind)
		if err != nil {
			return nil, err
		}
		out[i] = rewritten
	}
	return out, nil
}

func substRawLine(line string, bind map[string]ast.Expr) (string, error) {
	var b strings.Builder
	for i := 0; i < len(line); {
		if line[i] != '@' {
			b.WriteByte(line[i])
			i++
			continue
		}
		j := i + 1
		for j < len(line) && isNameByte(line[j]) {
			j++
		}
		name := line[i+1 : j]
		repl, ok := bind[name]
		if !ok {
			b.WriteString(line[i:j])
			i = j
			continue
		}
		switch repl := repl.(type) {
		case ast.Ident:
			b.WriteString("@" + repl.Name)
		case ast.IntLit:
			b.WriteString("#" + strconv.Itoa(repl.Value))
		default:
			return "", fmt.Errorf("argument for @%s is too complex for an instruction line", name)
		}
		i = j
	}
	return b.String(), nil
}

func isNameByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
