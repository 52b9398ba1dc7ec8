// Package codegen turns a validated program tree into M68000
// assembler text. Procedures are emitted one at a time: the frame
// planner fixes where every variable lives, the register allocator
// hands out scratch registers (spilling to the hardware stack when it
// runs dry), and the expression and statement emitters walk the tree
// appending instructions to the output file.
package codegen

import (
	"fmt"
	"strconv"

	"github.com/rozensoftware/hasm/pkg/asmout"
	"github.com/rozensoftware/hasm/pkg/ast"
	"github.com/rozensoftware/hasm/pkg/frame"
	"github.com/rozensoftware/hasm/pkg/m68k"
	"github.com/rozensoftware/hasm/pkg/macro"
	"github.com/rozensoftware/hasm/pkg/regalloc"
	"github.com/rozensoftware/hasm/pkg/symtab"
)

// Generator emits one compilation unit.
type Generator struct {
	prog   *ast.Program
	tab    *symtab.Table
	macros *macro.Table
	file   *asmout.File
}

// Generate compiles a validated program into an output file.
func Generate(prog *ast.Program, tab *symtab.Table) (*asmout.File, error) {
	g := &Generator{
		prog:   prog,
		tab:    tab,
		macros: macro.NewTable(),
		file:   asmout.New(),
	}
	for _, m := range prog.Macros {
		if err := g.macros.Define(m); err != nil {
			return nil, err
		}
	}
	for _, name := range prog.Exports {
		g.file.Export(name)
	}
	for _, name := range prog.Externs {
		g.file.Import(name)
	}
	for _, glob := range prog.Globals {
		g.emitGlobal(glob)
	}
	for _, proc := range prog.Procs {
		if err := g.emitProcedure(proc); err != nil {
			return nil, err
		}
	}
	return g.file, nil
}

// emitGlobal places one program-level variable: initialized data goes
// to the data section, uninitialized to bss. Byte-granular items are
// followed by an even directive so the next symbol stays aligned.
func (g *Generator) emitGlobal(glob ast.Global) {
	size := g.tab.SizeOf(glob.Type)
	if glob.Init == nil {
		g.file.Bss(asmout.Label(glob.Name), asmout.Op("ds.b", strconv.Itoa(size)))
		if size%2 != 0 {
			g.file.Bss(asmout.Op("even"))
		}
		return
	}
	if glob.Init.IsString {
		g.file.Data(asmout.Label(glob.Name),
			asmout.Op("dc.b", strconv.Quote(glob.Init.Str)+",0"))
		g.file.Data(asmout.Op("even"))
		return
	}
	mnemonic := "dc." + m68k.SizeSuffix(glob.Type.ScalarSize())
	g.file.Data(asmout.Label(glob.Name), asmout.Op(mnemonic, strconv.Itoa(glob.Init.Value)))
	if glob.Type.ScalarSize() == 1 {
		g.file.Data(asmout.Op("even"))
	}
}

// procGen carries the per-procedure emission state.
type procGen struct {
	gen    *Generator
	proc   *ast.Procedure
	frame  *frame.Frame
	alloc  *regalloc.Allocator
	labels int
	loops  []loopLabels
	fail   error
}

// loopLabels are the jump targets of one enclosing loop.
type loopLabels struct {
	brk  string
	cont string
}

func (g *Generator) emitProcedure(proc *ast.Procedure) error {
	fr, err := frame.Plan(proc, g.tab)
	if err != nil {
		return err
	}
	var reserved []m68k.Reg
	for _, param := range proc.Params {
		if param.InReg() {
			reserved = append(reserved, param.Reg)
		}
	}
	p := &procGen{
		gen:   g,
		proc:  proc,
		frame: fr,
		alloc: regalloc.New(fr.Reg, reserved...),
	}

	p.code(asmout.Label(proc.Name))
	p.code(asmout.Op("link", fr.Reg.String(), imm(-fr.LocalSize)))
	if err := p.emitBlock(proc.Body); err != nil {
		return fmt.Errorf("%s: %w", proc.Name, err)
	}
	if !endsWithReturn(proc.Body) {
		p.emitTeardown()
	}
	if p.fail != nil {
		return fmt.Errorf("%s: %w", proc.Name, p.fail)
	}
	if err := p.alloc.ExitCheck(); err != nil {
		return fmt.Errorf("%s: %w", proc.Name, err)
	}
	return nil
}

// endsWithReturn reports whether a block's last statement leaves the
// procedure, making the shared fall-through teardown dead.
func endsWithReturn(body []ast.Stmt) bool {
	if len(body) == 0 {
		return false
	}
	_, ok := body[len(body)-1].(ast.Return)
	return ok
}

// emitTeardown tears the frame down at one exit site. Every return
// statement gets its own copy; there is no shared epilogue label.
func (p *procGen) emitTeardown() {
	p.code(p.alloc.UnwindAll()...)
	p.code(asmout.Op("unlk", p.frame.Reg.String()))
	p.code(asmout.Op("rts"))
}

func (p *procGen) code(lines ...string) {
	p.gen.file.Code(lines...)
}

// newLabel returns a fresh assembler-local label. Local labels reset
// at the next global label, so the counter is per procedure.
func (p *procGen) newLabel() string {
	p.labels++
	return fmt.Sprintf(".L%d", p.labels)
}

func (p *procGen) allocData() m68k.Reg {
	r, pre := p.alloc.AllocData()
	if r == m68k.None && p.fail == nil {
		p.fail = fmt.Errorf("expression too complex: out of data registers")
	}
	p.code(pre...)
	return r
}

func (p *procGen) allocAddr() m68k.Reg {
	r, pre := p.alloc.AllocAddr()
	if r == m68k.None && p.fail == nil {
		p.fail = fmt.Errorf("expression too complex: out of address registers")
	}
	p.code(pre...)
	return r
}

// constValue statically evaluates an expression when possible:
// literals, named constants and negated literals fold at compile time.
func (p *procGen) constValue(x ast.Expr) (int, bool) {
	switch x := x.(type) {
	case ast.IntLit:
		return x.Value, true
	case ast.Ident:
		return p.gen.tab.ConstValue(x.Name)
	case ast.Unary:
		if x.Op != ast.Neg {
			return 0, false
		}
		v, ok := p.constValue(x.X)
		return -v, ok
	}
	return 0, false
}

// imm renders an immediate operand.
func imm(v int) string {
	return "#" + strconv.Itoa(v)
}
