package codegen

import (
	"fmt"

	"github.com/rozensoftware/hasm/pkg/asmout"
	"github.com/rozensoftware/hasm/pkg/ast"
	"github.com/rozensoftware/hasm/pkg/m68k"
)

// evalExpr emits the code computing an expression and returns the
// data register holding its long-widened value. The caller owns the
// register and frees it when the value is consumed.
func (p *procGen) evalExpr(x ast.Expr) (m68k.Reg, error) {
	if v, ok := p.constValue(x); ok {
		d := p.allocData()
		p.loadImm(d, v)
		return d, nil
	}

	switch x := x.(type) {
	case ast.Ident:
		return p.evalIdent(x.Name)
	case ast.Unary:
		return p.evalUnary(x)
	case ast.Binary:
		return p.evalBinary(x)
	case ast.Index, ast.Member:
		return p.evalLoad(x)
	case ast.Call:
		return p.emitCall(x.Name, x.Args, true)
	}
	return m68k.None, fmt.Errorf("cannot evaluate %T", x)
}

// loadImm materializes a constant, using the short form when the
// value fits in a signed byte.
func (p *procGen) loadImm(d m68k.Reg, v int) {
	if v >= -128 && v <= 127 {
		p.code(asmout.Op("moveq", imm(v), d.String()))
	} else {
		p.code(asmout.Op("move.l", imm(v), d.String()))
	}
}

func (p *procGen) evalIdent(name string) (m68k.Reg, error) {
	if slot, ok := p.frame.Lookup(name); ok && slot.InReg() {
		// Register parameters stay bound for the procedure's
		// lifetime; expression temporaries get a copy so operations
		// never clobber the binding.
		d := p.allocData()
		p.code(asmout.Op("move.l", slot.Reg.String(), d.String()))
		return d, nil
	}
	return p.evalLoad(ast.Ident{Name: name})
}

// evalLoad reads an addressable location into a fresh data register,
// widening narrow values to a long.
func (p *procGen) evalLoad(x ast.Expr) (m68k.Reg, error) {
	pl, ty, err := p.resolvePlace(x)
	if err != nil {
		return m68k.None, err
	}
	if pl.size == 0 {
		p.release(pl)
		return m68k.None, fmt.Errorf("struct %s used as a scalar value", ty.StructName)
	}
	d := p.allocData()
	p.loadFrom(d, pl)
	p.release(pl)
	return d, nil
}

func (p *procGen) loadFrom(d m68k.Reg, pl place) {
	switch pl.size {
	case 1:
		p.code(asmout.Op("move.b", pl.operand(), d.String()))
		p.code(asmout.Op("ext.w", d.String()))
		p.code(asmout.Op("ext.l", d.String()))
	case 2:
		p.code(asmout.Op("move.w", pl.operand(), d.String()))
		p.code(asmout.Op("ext.l", d.String()))
	default:
		p.code(asmout.Op("move.l", pl.operand(), d.String()))
	}
}

func (p *procGen) evalUnary(x ast.Unary) (m68k.Reg, error) {
	switch x.Op {
	case ast.Neg:
		d, err := p.evalExpr(x.X)
		if err != nil {
			return m68k.None, err
		}
		p.code(asmout.Op("neg.l", d.String()))
		return d, nil
	case ast.BitNot:
		d, err := p.evalExpr(x.X)
		if err != nil {
			return m68k.None, err
		}
		p.code(asmout.Op("not.l", d.String()))
		return d, nil
	case ast.Not:
		d, err := p.evalExpr(x.X)
		if err != nil {
			return m68k.None, err
		}
		p.code(asmout.Op("tst.l", d.String()))
		p.normalizeCC("seq", d)
		return d, nil
	case ast.Deref:
		return p.evalLoad(x)
	case ast.AddrOf:
		return p.evalAddrOf(x.X)
	}
	return m68k.None, fmt.Errorf("cannot evaluate unary op %d", x.Op)
}

// evalAddrOf yields the effective address of an addressable
// expression as a long value.
func (p *procGen) evalAddrOf(x ast.Expr) (m68k.Reg, error) {
	pl, _, err := p.resolvePlace(x)
	if err != nil {
		return m68k.None, err
	}
	d := p.allocData()
	if pl.temp && pl.disp == 0 {
		p.code(asmout.Op("move.l", pl.base.String(), d.String()))
	} else {
		a := pl.base
		scratch := false
		if !pl.temp {
			a = p.allocAddr()
			scratch = true
		}
		p.code(asmout.Op("lea", pl.operand(), a.String()))
		p.code(asmout.Op("move.l", a.String(), d.String()))
		if scratch {
			p.alloc.Free(a)
		}
	}
	p.release(pl)
	return d, nil
}

// normalizeCC turns the condition codes into a 0/1 long in d using a
// set-conditionally instruction: the byte result is FF or 00, so
// masking the low bit leaves exactly 0 or 1.
func (p *procGen) normalizeCC(scc string, d m68k.Reg) {
	p.code(asmout.Op(scc, d.String()))
	p.code(asmout.Op("and.l", "#1", d.String()))
}

// sccFor maps a comparison operator to its set-conditionally
// mnemonic, valid after cmp right,left.
func sccFor(op ast.BinOp) string {
	switch op {
	case ast.Eq:
		return "seq"
	case ast.Ne:
		return "sne"
	case ast.Lt:
		return "slt"
	case ast.Le:
		return "sle"
	case ast.Gt:
		return "sgt"
	case ast.Ge:
		return "sge"
	}
	return ""
}

func isComparison(op ast.BinOp) bool {
	return sccFor(op) != ""
}

func (p *procGen) evalBinary(x ast.Binary) (m68k.Reg, error) {
	switch x.Op {
	case ast.LogAnd, ast.LogOr:
		return p.evalShortCircuit(x)
	}

	l, err := p.evalExpr(x.Left)
	if err != nil {
		return m68k.None, err
	}

	// A constant right operand folds into the immediate form and
	// never touches a second register.
	if v, ok := p.constValue(x.Right); ok {
		if err := p.binaryImm(x.Op, l, v); err != nil {
			return m68k.None, err
		}
		return l, nil
	}

	// A long-width variable folds into a direct effective address,
	// accumulator style.
	if operand, ok := p.leafOperand(x.Right); ok {
		switch x.Op {
		case ast.Add:
			p.code(asmout.Op("add.l", operand, l.String()))
			return l, nil
		case ast.Sub:
			p.code(asmout.Op("sub.l", operand, l.String()))
			return l, nil
		case ast.BitAnd:
			p.code(asmout.Op("and.l", operand, l.String()))
			return l, nil
		case ast.BitOr:
			p.code(asmout.Op("or.l", operand, l.String()))
			return l, nil
		default:
			if isComparison(x.Op) {
				p.code(asmout.Op("cmp.l", operand, l.String()))
				p.normalizeCC(sccFor(x.Op), l)
				return l, nil
			}
		}
	}

	mark := p.alloc.Depth()
	p.alloc.Pin(l)
	r, err := p.evalExpr(x.Right)
	p.alloc.Unpin(l)
	if err != nil {
		return m68k.None, err
	}

	switch x.Op {
	case ast.Add:
		p.code(asmout.Op("add.l", r.String(), l.String()))
	case ast.Sub:
		p.code(asmout.Op("sub.l", r.String(), l.String()))
	case ast.Mul:
		p.code(asmout.Op("muls.w", r.String(), l.String()))
	case ast.Div:
		p.code(asmout.Op("divs.w", r.String(), l.String()))
		p.code(asmout.Op("ext.l", l.String()))
	case ast.Mod:
		p.code(asmout.Op("divs.w", r.String(), l.String()))
		p.code(asmout.Op("swap", l.String()))
		p.code(asmout.Op("ext.l", l.String()))
	case ast.BitAnd:
		p.code(asmout.Op("and.l", r.String(), l.String()))
	case ast.BitOr:
		p.code(asmout.Op("or.l", r.String(), l.String()))
	case ast.BitXor:
		p.code(asmout.Op("eor.l", r.String(), l.String()))
	case ast.Shl:
		p.code(asmout.Op("lsl.l", r.String(), l.String()))
	case ast.Shr:
		p.code(asmout.Op("asr.l", r.String(), l.String()))
	default:
		if !isComparison(x.Op) {
			return m68k.None, fmt.Errorf("cannot evaluate binary op %d", x.Op)
		}
		p.code(asmout.Op("cmp.l", r.String(), l.String()))
		p.normalizeCC(sccFor(x.Op), l)
	}
	p.alloc.Free(r)
	// The right operand is consumed, so any value it displaced to the
	// stack can come back.
	p.code(p.alloc.UnwindTo(mark)...)
	return l, nil
}

// binaryImm applies an operator with a constant right operand held in
// register l. Add and subtract of 1..8 use the quick forms; multiply
// and divide by powers of two become shifts.
func (p *procGen) binaryImm(op ast.BinOp, l m68k.Reg, v int) error {
	switch op {
	case ast.Add, ast.Sub:
		mn := "add"
		if op == ast.Sub {
			mn = "sub"
		}
		switch {
		case v == 0:
		case v >= 1 && v <= 8:
			p.code(asmout.Op(mn+"q.l", imm(v), l.String()))
		default:
			p.code(asmout.Op(mn+".l", imm(v), l.String()))
		}
	case ast.Mul:
		p.scaleBy(l, v)
	case ast.Div:
		// No shift shortcut here: asr rounds toward minus infinity
		// on negative values, divs truncates toward zero.
		p.code(asmout.Op("divs.w", imm(v), l.String()))
		p.code(asmout.Op("ext.l", l.String()))
	case ast.Mod:
		p.code(asmout.Op("divs.w", imm(v), l.String()))
		p.code(asmout.Op("swap", l.String()))
		p.code(asmout.Op("ext.l", l.String()))
	case ast.BitAnd:
		p.code(asmout.Op("and.l", imm(v), l.String()))
	case ast.BitOr:
		p.code(asmout.Op("or.l", imm(v), l.String()))
	case ast.BitXor:
		p.code(asmout.Op("eor.l", imm(v), l.String()))
	case ast.Shl, ast.Shr:
		mn := "lsl.l"
		if op == ast.Shr {
			mn = "asr.l"
		}
		if v >= 1 && v <= 8 {
			p.code(asmout.Op(mn, imm(v), l.String()))
		} else if v != 0 {
			d := p.allocData()
			p.loadImm(d, v)
			p.code(asmout.Op(mn, d.String(), l.String()))
			p.alloc.Free(d)
		}
	default:
		if !isComparison(op) {
			return fmt.Errorf("cannot evaluate binary op %d", op)
		}
		p.code(asmout.Op("cmp.l", imm(v), l.String()))
		p.normalizeCC(sccFor(op), l)
	}
	return nil
}

// leafOperand renders a variable reference as a direct long-width
// effective address, letting a binary operation read it without a
// second scratch register. Narrow variables need widening and cannot
// fold; and/or reject address-register sources, so register-bound
// variables fold only from data registers.
func (p *procGen) leafOperand(x ast.Expr) (string, bool) {
	id, ok := x.(ast.Ident)
	if !ok {
		return "", false
	}
	if slot, found := p.frame.Lookup(id.Name); found {
		if slot.InReg() {
			return slot.Reg.String(), slot.Reg.IsData()
		}
		if accessSize(slot.Type, slot.IsParam) == 4 && !slot.Type.IsArray() {
			return p.frame.Operand(slot), true
		}
		return "", false
	}
	if ty, found := p.gen.tab.GlobalType(id.Name); found {
		return id.Name, !ty.IsArray() && accessSize(ty, false) == 4
	}
	return "", false
}

// evalShortCircuit computes a logical and/or as a 0/1 value without
// evaluating the right operand when the left already decides it.
func (p *procGen) evalShortCircuit(x ast.Binary) (m68k.Reg, error) {
	d := p.allocData()
	decided := p.newLabel()
	done := p.newLabel()

	short := "beq"
	if x.Op == ast.LogOr {
		short = "bne"
	}
	for _, operand := range []ast.Expr{x.Left, x.Right} {
		mark := p.alloc.Depth()
		r, err := p.evalExpr(operand)
		if err != nil {
			return m68k.None, err
		}
		p.code(asmout.Op("tst.l", r.String()))
		p.alloc.Free(r)
		p.code(p.alloc.UnwindTo(mark)...)
		p.code(asmout.Op(short, decided))
	}
	if x.Op == ast.LogAnd {
		p.code(asmout.Op("moveq", "#1", d.String()))
		p.code(asmout.Op("bra", done))
		p.code(asmout.Label(decided))
		p.code(asmout.Op("moveq", "#0", d.String()))
	} else {
		p.code(asmout.Op("moveq", "#0", d.String()))
		p.code(asmout.Op("bra", done))
		p.code(asmout.Label(decided))
		p.code(asmout.Op("moveq", "#1", d.String()))
	}
	p.code(asmout.Label(done))
	return d, nil
}
