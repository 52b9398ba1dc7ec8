// Package frame plans the per-procedure activation record: a positive
// offset for every stack parameter, a negative offset for every local,
// and the choice of frame-pointer register.
//
// Frame layout (the called procedure's view, after link):
//
//	+---------------------------+
//	| parameters                |  +8, +12, +16, ... from frame reg
//	| return address            |  +4
//	| saved frame register      |  <- frame reg points here
//	| locals                    |  -size, -size-next, ... (downward)
//	+---------------------------+  <- sp
//
// The frame register is one of two interchangeable address registers.
// a4 addresses frames cheaply but is clobberable by external callees,
// so the calling-convention guard must protect it around external
// calls; a5 is callee-saved by the external convention and never needs
// guarding. The planner always prefers a4 when the procedure declares
// locals, deferring the protection cost to the guard.
package frame

import (
	"fmt"

	"github.com/rozensoftware/hasm/pkg/ast"
	"github.com/rozensoftware/hasm/pkg/m68k"
	"github.com/rozensoftware/hasm/pkg/symtab"
)

// firstParamOffset is the offset of the first stack parameter: the
// saved frame register and the return address occupy the 8 bytes
// below it.
const firstParamOffset = 8

// Slot describes where one parameter or local lives.
type Slot struct {
	Name    string
	Type    ast.Type
	Offset  int      // frame-relative; unused for register params
	Reg     m68k.Reg // m68k.None unless register-passed
	IsParam bool
}

// InReg reports whether the slot is bound to a hardware register.
func (s Slot) InReg() bool {
	return s.Reg != m68k.None
}

// Frame is the planned activation record of one procedure.
type Frame struct {
	Proc      string
	Reg       m68k.Reg // chosen frame register, fixed for the body
	LocalSize int      // total bytes of locals, sp displacement of link
	HasLocals bool
	slots     map[string]Slot
	order     []string
}

// Plan lays out a procedure's frame and picks its frame register.
func Plan(proc *ast.Procedure, tab *symtab.Table) (*Frame, error) {
	f := &Frame{
		Proc:      proc.Name,
		HasLocals: proc.HasLocals(),
		slots:     make(map[string]Slot),
	}
	if f.HasLocals {
		f.Reg = m68k.FrameOptimized
	} else {
		f.Reg = m68k.FrameConvention
	}

	offset := firstParamOffset
	for _, p := range proc.Params {
		slot := Slot{Name: p.Name, Type: p.Type, Reg: p.Reg, IsParam: true}
		if !p.InReg() {
			slot.Offset = offset
			offset += paramSlotSize(tab, p.Type)
		}
		if _, dup := f.slots[p.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate frame slot %s", proc.Name, p.Name)
		}
		f.slots[p.Name] = slot
		f.order = append(f.order, p.Name)
	}

	depth := 0
	for _, l := range proc.Locals {
		size := tab.SizeOf(l.Type)
		if size%2 != 0 {
			size++
		}
		depth += size
		slot := Slot{Name: l.Name, Type: l.Type, Offset: -depth, Reg: m68k.None}
		if _, dup := f.slots[l.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate frame slot %s", proc.Name, l.Name)
		}
		f.slots[l.Name] = slot
		f.order = append(f.order, l.Name)
	}
	f.LocalSize = depth
	return f, nil
}

// paramSlotSize returns the stack slot size of a parameter: each slot
// occupies a full machine word.
func paramSlotSize(tab *symtab.Table, ty ast.Type) int {
	size := tab.SizeOf(ty)
	if size < 4 {
		return 4
	}
	return (size + 3) &^ 3
}

// Lookup returns the slot of a parameter or local.
func (f *Frame) Lookup(name string) (Slot, bool) {
	s, ok := f.slots[name]
	return s, ok
}

// Slots returns every slot in declaration order.
func (f *Frame) Slots() []Slot {
	out := make([]Slot, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.slots[name])
	}
	return out
}

// Operand renders a slot as a frame-relative memory operand.
func (f *Frame) Operand(s Slot) string {
	return fmt.Sprintf("%d(%s)", s.Offset, f.Reg)
}

// Guarded reports whether external calls from this procedure must
// save and restore the frame register: true exactly when the chosen
// register is the optimized, clobberable one.
func (f *Frame) Guarded() bool {
	return f.Reg == m68k.FrameOptimized
}
