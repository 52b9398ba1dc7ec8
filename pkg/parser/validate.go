// validate.go performs the semantic checks the code generator assumes
// have already been satisfied: duplicate declarations, unknown names,
// call arity, and break/continue nesting.
package parser

import (
	"fmt"

	"github.com/rozensoftware/hasm/pkg/ast"
)

type validator struct {
	prog   *ast.Program
	errors []string

	consts  map[string]bool
	globals map[string]bool
	externs map[string]bool
	procs   map[string]*ast.Procedure
	macros  map[string]*ast.MacroDef
	structs map[string]*ast.StructDef

	// per-procedure scope
	scope     map[string]bool
	loopDepth int
}

// Validate checks a parsed program and returns a list of semantic
// errors. An empty list means the tree satisfies the invariants code
// generation relies on.
func Validate(prog *ast.Program) []string {
	v := &validator{
		prog:    prog,
		consts:  make(map[string]bool),
		globals: make(map[string]bool),
		externs: make(map[string]bool),
		procs:   make(map[string]*ast.Procedure),
		macros:  make(map[string]*ast.MacroDef),
		structs: make(map[string]*ast.StructDef),
	}
	v.collect()
	for _, proc := range prog.Procs {
		v.checkProc(proc)
	}
	for i := range prog.Macros {
		v.checkMacro(&prog.Macros[i])
	}
	return v.errors
}

func (v *validator) errorf(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) collect() {
	for _, c := range v.prog.Consts {
		if v.consts[c.Name] {
			v.errorf("duplicate constant %s", c.Name)
		}
		v.consts[c.Name] = true
	}
	for i := range v.prog.Structs {
		s := &v.prog.Structs[i]
		if v.structs[s.Name] != nil {
			v.errorf("duplicate struct %s", s.Name)
		}
		v.structs[s.Name] = s
		seen := make(map[string]bool)
		for _, f := range s.Fields {
			if seen[f.Name] {
				v.errorf("struct %s: duplicate field %s", s.Name, f.Name)
			}
			seen[f.Name] = true
		}
	}
	for _, e := range v.prog.Externs {
		v.externs[e] = true
	}
	for _, g := range v.prog.Globals {
		if v.globals[g.Name] {
			v.errorf("duplicate global %s", g.Name)
		}
		v.globals[g.Name] = true
	}
	for _, proc := range v.prog.Procs {
		if v.procs[proc.Name] != nil {
			v.errorf("duplicate procedure %s", proc.Name)
		}
		v.procs[proc.Name] = proc
	}
	for i := range v.prog.Macros {
		m := &v.prog.Macros[i]
		if v.macros[m.Name] != nil {
			v.errorf("duplicate macro %s", m.Name)
		}
		v.macros[m.Name] = m
	}
	for _, e := range v.prog.Exports {
		if !v.globals[e] && v.procs[e] == nil {
			v.errorf("exported symbol %s is not defined", e)
		}
	}
}

func (v *validator) checkProc(proc *ast.Procedure) {
	v.scope = make(map[string]bool)
	v.loopDepth = 0
	for _, p := range proc.Params {
		if v.scope[p.Name] {
			v.errorf("%s: duplicate parameter %s", proc.Name, p.Name)
		}
		v.scope[p.Name] = true
		// Arguments occupy one machine word each; composites must be
		// passed by reference.
		if p.Type.IsArray() {
			v.errorf("%s: parameter %s: arrays are passed by reference, declare it ptr", proc.Name, p.Name)
		} else if p.Type.Kind == ast.Struct {
			v.errorf("%s: parameter %s: structs are passed by reference, declare it ptr", proc.Name, p.Name)
		}
	}
	for _, l := range proc.Locals {
		if v.scope[l.Name] {
			v.errorf("%s: duplicate local %s", proc.Name, l.Name)
		}
		v.scope[l.Name] = true
	}
	v.checkStmts(proc.Name, proc.Body)
	v.scope = nil
}

// checkMacro validates a macro body with its formals standing in as
// locals. References that resolve only at the expansion site cannot be
// checked here; expansion-time substitution is purely syntactic.
func (v *validator) checkMacro(def *ast.MacroDef) {
	v.scope = make(map[string]bool)
	v.loopDepth = 0
	for _, p := range def.Params {
		v.scope[p] = true
	}
	v.checkStmts("macro "+def.Name, def.Body)
	v.scope = nil
}

func (v *validator) checkStmts(where string, stmts []ast.Stmt) {
	for _, s := range stmts {
		v.checkStmt(where, s)
	}
}

func (v *validator) checkStmt(where string, s ast.Stmt) {
	switch st := s.(type) {
	case ast.Assign:
		v.checkLvalue(where, st.Target)
		v.checkExpr(where, st.Value)
	case ast.CallStmt:
		v.checkCall(where, st.Name, st.Args)
		for _, a := range st.Args {
			v.checkExpr(where, a)
		}
	case ast.If:
		v.checkExpr(where, st.Cond)
		v.checkStmts(where, st.Then)
		v.checkStmts(where, st.Else)
	case ast.While:
		v.checkExpr(where, st.Cond)
		v.loopDepth++
		v.checkStmts(where, st.Body)
		v.loopDepth--
	case ast.DoUntil:
		v.loopDepth++
		v.checkStmts(where, st.Body)
		v.loopDepth--
		v.checkExpr(where, st.Cond)
	case ast.For:
		v.checkName(where, st.Var)
		v.checkExpr(where, st.From)
		v.checkExpr(where, st.To)
		v.loopDepth++
		v.checkStmts(where, st.Body)
		v.loopDepth--
	case ast.Break:
		if v.loopDepth == 0 {
			v.errorf("%s: break outside loop", where)
		}
	case ast.Continue:
		if v.loopDepth == 0 {
			v.errorf("%s: continue outside loop", where)
		}
	case ast.Return:
		if st.Value != nil {
			v.checkExpr(where, st.Value)
		}
	case ast.Raw:
		// @name references in raw blocks resolve at emission time and
		// degrade to markers when unknown; nothing to reject here.
	}
}

func (v *validator) checkLvalue(where string, e ast.Expr) {
	switch ex := e.(type) {
	case ast.Ident:
		v.checkName(where, ex.Name)
	case ast.Index:
		v.checkName(where, ex.Base)
		for _, i := range ex.Indices {
			v.checkExpr(where, i)
		}
	case ast.Member:
		v.checkLvalue(where, ex.Base)
	case ast.Unary:
		if ex.Op == ast.Deref {
			v.checkExpr(where, ex.X)
			return
		}
		v.errorf("%s: expression is not assignable", where)
	default:
		v.errorf("%s: expression is not assignable", where)
	}
}

func (v *validator) checkExpr(where string, e ast.Expr) {
	switch ex := e.(type) {
	case ast.IntLit:
	case ast.Ident:
		v.checkName(where, ex.Name)
	case ast.Unary:
		v.checkExpr(where, ex.X)
	case ast.Binary:
		v.checkExpr(where, ex.Left)
		v.checkExpr(where, ex.Right)
	case ast.Index:
		v.checkName(where, ex.Base)
		for _, i := range ex.Indices {
			v.checkExpr(where, i)
		}
	case ast.Member:
		v.checkExpr(where, ex.Base)
	case ast.Call:
		// Macros expand to statements and produce no value; only
		// statement position may invoke them.
		if v.macros[ex.Name] != nil {
			v.errorf("%s: macro %s used as a value", where, ex.Name)
			return
		}
		v.checkCall(where, ex.Name, ex.Args)
		for _, a := range ex.Args {
			v.checkExpr(where, a)
		}
	}
}

// checkName verifies an identifier resolves in the current scope or
// at program level.
func (v *validator) checkName(where, name string) {
	if v.scope != nil && v.scope[name] {
		return
	}
	if v.consts[name] || v.globals[name] || v.externs[name] {
		return
	}
	v.errorf("%s: unknown name %s", where, name)
}

// checkCall verifies the target exists and the argument count matches.
// Calls to externals cannot be arity-checked; their signatures live
// outside the compilation unit.
func (v *validator) checkCall(where, name string, args []ast.Expr) {
	if m := v.macros[name]; m != nil {
		if len(args) != len(m.Params) {
			v.errorf("%s: macro %s expects %d arguments, got %d",
				where, name, len(m.Params), len(args))
		}
		return
	}
	if proc := v.procs[name]; proc != nil {
		if len(args) != len(proc.Params) {
			v.errorf("%s: %s expects %d arguments, got %d",
				where, name, len(proc.Params), len(args))
		}
		return
	}
	if v.externs[name] {
		return
	}
	v.errorf("%s: call to undefined %s", where, name)
}
