// Package regalloc manages the per-procedure hardware register pools:
// eight data registers and the address registers left over once the
// stack pointer and the procedure's frame register are reserved.
// Exhaustion is routine, not an error: a victim is pushed to the
// hardware stack and recorded on a spill stack that must be unwound in
// strict LIFO order before the procedure exits.
package regalloc

import (
	"fmt"

	"github.com/rozensoftware/hasm/pkg/asmout"
	"github.com/rozensoftware/hasm/pkg/m68k"
)

// dataPrefs is the allocation preference order for data registers.
// d0 first: it doubles as the return-value register and accumulator,
// so short-lived expression results tend to land where they are
// needed anyway.
var dataPrefs = []m68k.Reg{
	m68k.D0, m68k.D1, m68k.D2, m68k.D3, m68k.D4, m68k.D5, m68k.D6, m68k.D7,
}

// dataVictims is the fixed spill priority: secondary temporaries go to
// the stack before the primary accumulator.
var dataVictims = []m68k.Reg{
	m68k.D7, m68k.D6, m68k.D5, m68k.D4, m68k.D3, m68k.D2, m68k.D1, m68k.D0,
}

// addrPrefs and addrVictims cover the address pool. a7 is the hardware
// stack pointer and the current frame register is excluded at
// construction time; neither ever enters the pool.
var addrPrefs = []m68k.Reg{
	m68k.A0, m68k.A1, m68k.A2, m68k.A3, m68k.A4, m68k.A5, m68k.A6,
}

var addrVictims = []m68k.Reg{
	m68k.A6, m68k.A5, m68k.A4, m68k.A3, m68k.A2, m68k.A1, m68k.A0,
}

// Allocator owns the register pools of one procedure. It is never
// shared: one instance per procedure, driven only from the single
// emission call stack.
type Allocator struct {
	inUse    map[m68k.Reg]bool
	reserved map[m68k.Reg]bool
	pinned   map[m68k.Reg]int
	spills   []m68k.Reg
}

// Context is a snapshot of the pool state, taken around nested
// call-argument evaluation.
type Context struct {
	inUse      map[m68k.Reg]bool
	spillDepth int
}

// New creates an allocator for a procedure using frameReg. Any
// additional reserved registers (register-passed parameters) are kept
// out of the pools for the procedure's lifetime.
func New(frameReg m68k.Reg, reserved ...m68k.Reg) *Allocator {
	a := &Allocator{
		inUse:    make(map[m68k.Reg]bool),
		reserved: make(map[m68k.Reg]bool),
		pinned:   make(map[m68k.Reg]int),
	}
	a.reserved[m68k.SP] = true
	a.reserved[frameReg] = true
	for _, r := range reserved {
		a.reserved[r] = true
	}
	return a
}

// AllocData acquires a data register. When the pool is exhausted the
// returned preamble holds the spill instruction that must be emitted
// before the register is used. A return of m68k.None means every
// candidate is pinned and the expression cannot be compiled.
func (a *Allocator) AllocData() (m68k.Reg, []string) {
	return a.alloc(dataPrefs, dataVictims)
}

// AllocAddr acquires an address register.
func (a *Allocator) AllocAddr() (m68k.Reg, []string) {
	return a.alloc(addrPrefs, addrVictims)
}

func (a *Allocator) alloc(prefs, victims []m68k.Reg) (m68k.Reg, []string) {
	for _, r := range prefs {
		if !a.inUse[r] && !a.reserved[r] {
			a.inUse[r] = true
			return r, nil
		}
	}
	// Pool exhausted: spill the first victim in fixed priority order.
	// Pinned registers are never victims; a register already on the
	// spill stack holds a live temporary whose saved value is pending
	// restore, so it is passed over while any other victim remains.
	onStack := make(map[m68k.Reg]bool, len(a.spills))
	for _, r := range a.spills {
		onStack[r] = true
	}
	for _, fresh := range []bool{true, false} {
		for _, r := range victims {
			if a.reserved[r] || a.pinned[r] > 0 || (fresh && onStack[r]) {
				continue
			}
			a.spills = append(a.spills, r)
			return r, []string{asmout.Op("move.l", r.String(), "-(sp)")}
		}
	}
	return m68k.None, nil
}

// Pin marks a register as unspillable while its value is needed by an
// enclosing computation. Pins nest.
func (a *Allocator) Pin(r m68k.Reg) {
	a.pinned[r]++
}

// Unpin releases one level of pinning.
func (a *Allocator) Unpin(r m68k.Reg) {
	if a.pinned[r] > 0 {
		a.pinned[r]--
	}
}

// Free releases a register without touching the spill stack; spills
// are restored explicitly at unwind points.
func (a *Allocator) Free(r m68k.Reg) {
	delete(a.inUse, r)
}

// InUse reports whether a register is currently owned.
func (a *Allocator) InUse(r m68k.Reg) bool {
	return a.inUse[r]
}

// Depth returns the current spill stack depth. Emitters record it
// before a sub-expression and unwind back to it afterwards.
func (a *Allocator) Depth() int {
	return len(a.spills)
}

// UnwindTo pops spills down to the given depth, in strict reverse
// order of their pushes, returning the restore instructions. The
// restores use movem, which leaves the condition codes untouched, so
// a restore sequence may sit between a compare and its branch.
func (a *Allocator) UnwindTo(depth int) []string {
	var lines []string
	for len(a.spills) > depth {
		r := a.spills[len(a.spills)-1]
		a.spills = a.spills[:len(a.spills)-1]
		lines = append(lines, asmout.Op("movem.l", "(sp)+", r.String()))
		a.inUse[r] = true
	}
	return lines
}

// UnwindAll restores every outstanding spill.
func (a *Allocator) UnwindAll() []string {
	return a.UnwindTo(0)
}

// SaveContext snapshots the pool state before nested call-argument
// evaluation, so evaluating the arguments cannot leak ownership of a
// register still needed by the enclosing expression.
func (a *Allocator) SaveContext() *Context {
	ctx := &Context{
		inUse:      make(map[m68k.Reg]bool, len(a.inUse)),
		spillDepth: len(a.spills),
	}
	for r := range a.inUse {
		ctx.inUse[r] = true
	}
	return ctx
}

// RestoreContext restores a snapshot taken by SaveContext. The spill
// stack must already be unwound to the snapshot's depth.
func (a *Allocator) RestoreContext(ctx *Context) {
	a.inUse = make(map[m68k.Reg]bool, len(ctx.inUse))
	for r := range ctx.inUse {
		a.inUse[r] = true
	}
}

// ExitCheck verifies the procedure-exit invariant: every spill must
// have been matched by a restore. A leftover spill means some path
// emitted a push without its pop, which would corrupt the hardware
// stack at rts.
func (a *Allocator) ExitCheck() error {
	if len(a.spills) != 0 {
		return fmt.Errorf("unbalanced spill stack at procedure exit: %d outstanding", len(a.spills))
	}
	return nil
}
