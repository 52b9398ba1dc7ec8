package codegen

import (
	"fmt"
	"strconv"

	"github.com/rozensoftware/hasm/pkg/asmout"
	"github.com/rozensoftware/hasm/pkg/ast"
	"github.com/rozensoftware/hasm/pkg/m68k"
)

// emitCall compiles a procedure call. Stack arguments are pushed
// last-first; register parameters of internal callees are loaded
// after the pushes, immediately before jsr. External callees may
// clobber the optimized frame register, so procedures framed on it
// bracket the call with a save and restore. The result, when wanted,
// is copied out of the return register into a fresh temporary.
func (p *procGen) emitCall(name string, args []ast.Expr, wantResult bool) (m68k.Reg, error) {
	sig := p.gen.tab.Signature(name)
	external := p.gen.tab.IsExternal(name)
	if sig == nil && !external {
		return m68k.None, fmt.Errorf("call to unknown procedure %s", name)
	}
	if sig != nil && len(args) != len(sig.Params) {
		return m68k.None, fmt.Errorf("%s takes %d arguments, got %d",
			name, len(sig.Params), len(args))
	}

	var result m68k.Reg = m68k.None
	if wantResult {
		result = p.allocData()
	}

	// Temporaries live across the call would be clobbered by the
	// callee; they are parked on the stack around the whole sequence.
	saved := p.liveAcrossCall(result)
	for _, r := range saved {
		p.code(asmout.Op("move.l", r.String(), "-(sp)"))
	}

	guarded := external && p.frame.Guarded()
	if guarded {
		p.code(asmout.Op("move.l", p.frame.Reg.String(), "-(sp)"))
	}

	ctx := p.alloc.SaveContext()

	// The parked registers and the result register must not be picked
	// as spill victims inside an argument: their stack copies are laid
	// out around the argument pushes, not interleaved with them.
	for _, r := range saved {
		p.alloc.Pin(r)
	}
	if result != m68k.None {
		p.alloc.Pin(result)
	}

	// Stack arguments, last first.
	stackBytes := 0
	for i := len(args) - 1; i >= 0; i-- {
		if sig != nil && sig.Params[i].InReg() {
			continue
		}
		mark := p.alloc.Depth()
		r, err := p.evalExpr(args[i])
		if err != nil {
			return m68k.None, err
		}
		p.code(p.alloc.UnwindTo(mark)...)
		p.code(asmout.Op("move.l", r.String(), "-(sp)"))
		p.alloc.Free(r)
		stackBytes += 4
	}

	// Register arguments load after the stack pushes. With several of
	// them, a later argument's evaluation could scribble on an
	// already-loaded register, so all but the last are staged on the
	// stack and popped into place just before jsr.
	if sig != nil {
		var regIdx []int
		for i, param := range sig.Params {
			if param.InReg() {
				regIdx = append(regIdx, i)
			}
		}
		for k, i := range regIdx {
			mark := p.alloc.Depth()
			r, err := p.evalExpr(args[i])
			if err != nil {
				return m68k.None, err
			}
			p.code(p.alloc.UnwindTo(mark)...)
			if k == len(regIdx)-1 {
				target := sig.Params[i].Reg
				if r != target {
					p.code(asmout.Op(moveInto(target), r.String(), target.String()))
				}
			} else {
				p.code(asmout.Op("move.l", r.String(), "-(sp)"))
			}
			p.alloc.Free(r)
		}
		for k := len(regIdx) - 2; k >= 0; k-- {
			target := sig.Params[regIdx[k]].Reg
			p.code(asmout.Op(moveInto(target), "(sp)+", target.String()))
		}
	}

	p.code(asmout.Op("jsr", name))
	if stackBytes > 0 {
		p.code(asmout.Op("lea", strconv.Itoa(stackBytes)+"(sp)", "sp"))
	}
	if guarded {
		p.code(asmout.Op("movea.l", "(sp)+", p.frame.Reg.String()))
	}

	for _, r := range saved {
		p.alloc.Unpin(r)
	}
	if result != m68k.None {
		p.alloc.Unpin(result)
	}
	p.alloc.RestoreContext(ctx)

	if wantResult && result != m68k.RetReg {
		p.code(asmout.Op("move.l", m68k.RetReg.String(), result.String()))
	}
	for i := len(saved) - 1; i >= 0; i-- {
		r := saved[i]
		p.code(asmout.Op(moveInto(r), "(sp)+", r.String()))
	}
	return result, nil
}

// moveInto picks the move form for loading a register: address
// registers take movea.
func moveInto(r m68k.Reg) string {
	if r.IsAddr() {
		return "movea.l"
	}
	return "move.l"
}

// liveAcrossCall lists the registers whose values must survive the
// call, in a fixed push order: scratch registers currently in use,
// plus the procedure's own register-bound parameters, which a callee
// is free to clobber. The result register is excluded: it receives
// the call's value.
func (p *procGen) liveAcrossCall(result m68k.Reg) []m68k.Reg {
	params := make(map[m68k.Reg]bool)
	for _, param := range p.proc.Params {
		if param.InReg() {
			params[param.Reg] = true
		}
	}
	var out []m68k.Reg
	for r := m68k.D0; r <= m68k.A6; r++ {
		if r == result {
			continue
		}
		if p.alloc.InUse(r) || params[r] {
			out = append(out, r)
		}
	}
	return out
}
