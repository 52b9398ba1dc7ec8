package codegen

import (
	"fmt"

	"github.com/rozensoftware/hasm/pkg/asmout"
	"github.com/rozensoftware/hasm/pkg/ast"
	"github.com/rozensoftware/hasm/pkg/m68k"
)

func (p *procGen) emitBlock(body []ast.Stmt) error {
	for _, s := range body {
		if err := p.emitStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (p *procGen) emitStmt(s ast.Stmt) error {
	// Statement boundaries are unwind points: no spill may survive
	// from one statement into the next.
	mark := p.alloc.Depth()
	if err := p.emitStmtInner(s); err != nil {
		return err
	}
	p.code(p.alloc.UnwindTo(mark)...)
	return nil
}

func (p *procGen) emitStmtInner(s ast.Stmt) error {
	switch s := s.(type) {
	case ast.Assign:
		return p.emitAssign(s)
	case ast.CallStmt:
		if _, ok := p.gen.macros.Lookup(s.Name); ok {
			body, err := p.gen.macros.Expand(s.Name, s.Args)
			if err != nil {
				return err
			}
			return p.emitBlock(body)
		}
		_, err := p.emitCall(s.Name, s.Args, false)
		return err
	case ast.If:
		return p.emitIf(s)
	case ast.While:
		return p.emitWhile(s)
	case ast.DoUntil:
		return p.emitDoUntil(s)
	case ast.For:
		return p.emitFor(s)
	case ast.Break:
		if len(p.loops) == 0 {
			return fmt.Errorf("break outside a loop")
		}
		p.code(asmout.Op("bra", p.loops[len(p.loops)-1].brk))
		return nil
	case ast.Continue:
		if len(p.loops) == 0 {
			return fmt.Errorf("continue outside a loop")
		}
		p.code(asmout.Op("bra", p.loops[len(p.loops)-1].cont))
		return nil
	case ast.Return:
		return p.emitReturn(s)
	case ast.Raw:
		return p.emitRaw(s)
	}
	return fmt.Errorf("cannot emit statement %T", s)
}

// emitAssign evaluates the value first, then resolves the target with
// the same addressing logic the read side uses, then stores with the
// target's declared width.
func (p *procGen) emitAssign(s ast.Assign) error {
	d, err := p.evalExpr(s.Value)
	if err != nil {
		return err
	}

	if id, ok := s.Target.(ast.Ident); ok {
		if slot, found := p.frame.Lookup(id.Name); found && slot.InReg() {
			p.code(asmout.Op("move.l", d.String(), slot.Reg.String()))
			p.alloc.Free(d)
			return nil
		}
	}

	p.alloc.Pin(d)
	pl, ty, err := p.resolvePlace(s.Target)
	p.alloc.Unpin(d)
	if err != nil {
		return err
	}
	if pl.size == 0 {
		p.release(pl)
		return fmt.Errorf("cannot assign to whole struct %s", ty.StructName)
	}
	p.code(asmout.Op("move."+m68k.SizeSuffix(pl.size), d.String(), pl.operand()))
	p.release(pl)
	p.alloc.Free(d)
	return nil
}

func (p *procGen) emitReturn(s ast.Return) error {
	if s.Value != nil {
		d, err := p.evalExpr(s.Value)
		if err != nil {
			return err
		}
		if d != m68k.RetReg {
			p.code(asmout.Op("move.l", d.String(), m68k.RetReg.String()))
		}
		p.alloc.Free(d)
	}
	p.emitTeardown()
	return nil
}

func (p *procGen) emitIf(s ast.If) error {
	end := p.newLabel()
	target := end
	if s.Else != nil {
		target = p.newLabel()
	}
	if err := p.branchFalse(s.Cond, target); err != nil {
		return err
	}
	if err := p.emitBlock(s.Then); err != nil {
		return err
	}
	if s.Else != nil {
		p.code(asmout.Op("bra", end))
		p.code(asmout.Label(target))
		if err := p.emitBlock(s.Else); err != nil {
			return err
		}
	}
	p.code(asmout.Label(end))
	return nil
}

func (p *procGen) emitWhile(s ast.While) error {
	top := p.newLabel()
	end := p.newLabel()
	p.code(asmout.Label(top))
	if err := p.branchFalse(s.Cond, end); err != nil {
		return err
	}
	p.loops = append(p.loops, loopLabels{brk: end, cont: top})
	err := p.emitBlock(s.Body)
	p.loops = p.loops[:len(p.loops)-1]
	if err != nil {
		return err
	}
	p.code(asmout.Op("bra", top))
	p.code(asmout.Label(end))
	return nil
}

func (p *procGen) emitDoUntil(s ast.DoUntil) error {
	top := p.newLabel()
	cont := p.newLabel()
	end := p.newLabel()
	p.code(asmout.Label(top))
	p.loops = append(p.loops, loopLabels{brk: end, cont: cont})
	err := p.emitBlock(s.Body)
	p.loops = p.loops[:len(p.loops)-1]
	if err != nil {
		return err
	}
	p.code(asmout.Label(cont))
	if err := p.branchFalse(s.Cond, top); err != nil {
		return err
	}
	p.code(asmout.Label(end))
	return nil
}

// emitFor compiles a counting loop. A descending count to zero over a
// word variable compiles to the dbra form when the body neither
// reassigns the counter nor leaves the emitter's control (calls and
// raw blocks may clobber the counter register).
func (p *procGen) emitFor(s ast.For) error {
	if p.forQualifiesDbra(s) {
		return p.emitForDbra(s)
	}

	if err := p.emitAssign(ast.Assign{Target: ast.Ident{Name: s.Var}, Value: s.From}); err != nil {
		return err
	}
	top := p.newLabel()
	cont := p.newLabel()
	end := p.newLabel()

	p.code(asmout.Label(top))
	exit := ast.Gt
	if s.Down {
		exit = ast.Lt
	}
	cond := ast.Binary{Op: exit, Left: ast.Ident{Name: s.Var}, Right: s.To}
	if err := p.branchTrue(cond, end); err != nil {
		return err
	}

	p.loops = append(p.loops, loopLabels{brk: end, cont: cont})
	err := p.emitBlock(s.Body)
	p.loops = p.loops[:len(p.loops)-1]
	if err != nil {
		return err
	}

	p.code(asmout.Label(cont))
	step := ast.Add
	if s.Down {
		step = ast.Sub
	}
	inc := ast.Assign{
		Target: ast.Ident{Name: s.Var},
		Value:  ast.Binary{Op: step, Left: ast.Ident{Name: s.Var}, Right: ast.IntLit{Value: 1}},
	}
	if err := p.emitAssign(inc); err != nil {
		return err
	}
	p.code(asmout.Op("bra", top))
	p.code(asmout.Label(end))
	return nil
}

// forQualifiesDbra checks the conditions under which the counter can
// live in a data register across the whole loop.
func (p *procGen) forQualifiesDbra(s ast.For) bool {
	if !s.Down {
		return false
	}
	if v, ok := p.constValue(s.To); !ok || v != 0 {
		return false
	}
	slot, ok := p.frame.Lookup(s.Var)
	if !ok || slot.InReg() || slot.Type.Kind != ast.Word || slot.Type.IsArray() {
		return false
	}
	return !blockDisturbs(s.Body, s.Var)
}

// blockDisturbs reports whether a statement list assigns the counter
// or contains a construct that escapes the emitter's register
// tracking.
func blockDisturbs(body []ast.Stmt, counter string) bool {
	for _, s := range body {
		switch s := s.(type) {
		case ast.Assign:
			if id, ok := s.Target.(ast.Ident); ok && id.Name == counter {
				return true
			}
		case ast.CallStmt, ast.Raw, ast.Return:
			return true
		case ast.If:
			if blockDisturbs(s.Then, counter) || blockDisturbs(s.Else, counter) {
				return true
			}
		case ast.While:
			if blockDisturbs(s.Body, counter) {
				return true
			}
		case ast.DoUntil:
			if blockDisturbs(s.Body, counter) {
				return true
			}
		case ast.For:
			if s.Var == counter || blockDisturbs(s.Body, counter) {
				return true
			}
		}
		if stmtCalls(s) {
			return true
		}
	}
	return false
}

// stmtCalls reports whether a statement's expressions contain a call,
// which would clobber the counter register.
func stmtCalls(s ast.Stmt) bool {
	switch s := s.(type) {
	case ast.Assign:
		return exprCalls(s.Target) || exprCalls(s.Value)
	case ast.If:
		return exprCalls(s.Cond)
	case ast.While:
		return exprCalls(s.Cond)
	case ast.DoUntil:
		return exprCalls(s.Cond)
	case ast.For:
		return exprCalls(s.From) || exprCalls(s.To)
	}
	return false
}

func exprCalls(x ast.Expr) bool {
	switch x := x.(type) {
	case ast.Call:
		return true
	case ast.Unary:
		return exprCalls(x.X)
	case ast.Binary:
		return exprCalls(x.Left) || exprCalls(x.Right)
	case ast.Index:
		for _, ix := range x.Indices {
			if exprCalls(ix) {
				return true
			}
		}
	case ast.Member:
		return exprCalls(x.Base)
	}
	return false
}

// emitForDbra keeps the counter in a data register and closes the
// loop with dbra, which decrements the low word and branches until it
// rolls under zero. The counter variable is stored at the top of each
// iteration so body reads observe the current value.
func (p *procGen) emitForDbra(s ast.For) error {
	d, err := p.evalExpr(s.From)
	if err != nil {
		return err
	}
	slot, _ := p.frame.Lookup(s.Var)

	top := p.newLabel()
	cont := p.newLabel()
	end := p.newLabel()

	p.code(asmout.Label(top))
	p.code(asmout.Op("move.w", d.String(), p.frame.Operand(slot)))

	p.loops = append(p.loops, loopLabels{brk: end, cont: cont})
	err = p.emitBlock(s.Body)
	p.loops = p.loops[:len(p.loops)-1]
	if err != nil {
		return err
	}

	p.code(asmout.Label(cont))
	p.code(asmout.Op("dbra", d.String(), top))
	p.code(asmout.Label(end))
	p.alloc.Free(d)
	return nil
}

// branchFalse jumps to target when the condition is false. Direct
// comparisons branch on the condition codes without materializing a
// 0/1 value, logical operators short-circuit, everything else tests a
// computed value.
func (p *procGen) branchFalse(cond ast.Expr, target string) error {
	switch c := cond.(type) {
	case ast.Unary:
		if c.Op == ast.Not {
			return p.branchTrue(c.X, target)
		}
	case ast.Binary:
		switch c.Op {
		case ast.LogAnd:
			if err := p.branchFalse(c.Left, target); err != nil {
				return err
			}
			return p.branchFalse(c.Right, target)
		case ast.LogOr:
			taken := p.newLabel()
			if err := p.branchTrue(c.Left, taken); err != nil {
				return err
			}
			if err := p.branchFalse(c.Right, target); err != nil {
				return err
			}
			p.code(asmout.Label(taken))
			return nil
		}
		if isComparison(c.Op) {
			return p.branchCompare(c, target, false)
		}
	}
	return p.branchValue(cond, target, "beq")
}

// branchTrue jumps to target when the condition is true.
func (p *procGen) branchTrue(cond ast.Expr, target string) error {
	switch c := cond.(type) {
	case ast.Unary:
		if c.Op == ast.Not {
			return p.branchFalse(c.X, target)
		}
	case ast.Binary:
		switch c.Op {
		case ast.LogAnd:
			fall := p.newLabel()
			if err := p.branchFalse(c.Left, fall); err != nil {
				return err
			}
			if err := p.branchTrue(c.Right, target); err != nil {
				return err
			}
			p.code(asmout.Label(fall))
			return nil
		case ast.LogOr:
			if err := p.branchTrue(c.Left, target); err != nil {
				return err
			}
			return p.branchTrue(c.Right, target)
		}
		if isComparison(c.Op) {
			return p.branchCompare(c, target, true)
		}
	}
	return p.branchValue(cond, target, "bne")
}

// branchCompare emits cmp followed by the conditional branch (or its
// inverse when branching on false).
func (p *procGen) branchCompare(c ast.Binary, target string, whenTrue bool) error {
	mark := p.alloc.Depth()
	l, err := p.evalExpr(c.Left)
	if err != nil {
		return err
	}
	if v, ok := p.constValue(c.Right); ok {
		p.code(asmout.Op("cmp.l", imm(v), l.String()))
	} else if operand, ok := p.leafOperand(c.Right); ok {
		p.code(asmout.Op("cmp.l", operand, l.String()))
	} else {
		p.alloc.Pin(l)
		r, err := p.evalExpr(c.Right)
		p.alloc.Unpin(l)
		if err != nil {
			return err
		}
		p.code(asmout.Op("cmp.l", r.String(), l.String()))
		p.alloc.Free(r)
	}
	p.alloc.Free(l)
	// Restores use movem and leave the condition codes alone, so the
	// unwind may sit between the compare and its branch.
	p.code(p.alloc.UnwindTo(mark)...)
	p.code(asmout.Op(branchFor(c.Op, whenTrue), target))
	return nil
}

func branchFor(op ast.BinOp, whenTrue bool) string {
	if !whenTrue {
		op = inverseOf(op)
	}
	switch op {
	case ast.Eq:
		return "beq"
	case ast.Ne:
		return "bne"
	case ast.Lt:
		return "blt"
	case ast.Le:
		return "ble"
	case ast.Gt:
		return "bgt"
	case ast.Ge:
		return "bge"
	}
	return "bra"
}

func inverseOf(op ast.BinOp) ast.BinOp {
	switch op {
	case ast.Eq:
		return ast.Ne
	case ast.Ne:
		return ast.Eq
	case ast.Lt:
		return ast.Ge
	case ast.Le:
		return ast.Gt
	case ast.Gt:
		return ast.Le
	case ast.Ge:
		return ast.Lt
	}
	return op
}

// branchValue computes the condition as a value and branches on its
// zero test.
func (p *procGen) branchValue(cond ast.Expr, target, branch string) error {
	mark := p.alloc.Depth()
	d, err := p.evalExpr(cond)
	if err != nil {
		return err
	}
	p.code(asmout.Op("tst.l", d.String()))
	p.alloc.Free(d)
	p.code(p.alloc.UnwindTo(mark)...)
	p.code(asmout.Op(branch, target))
	return nil
}
