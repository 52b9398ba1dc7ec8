package codegen

import (
	"fmt"
	"strconv"

	"github.com/rozensoftware/hasm/pkg/asmout"
	"github.com/rozensoftware/hasm/pkg/ast"
	"github.com/rozensoftware/hasm/pkg/m68k"
)

// place is a resolved storage location, shared by the read and write
// sides of the emitter so an expression addresses memory the same way
// as the assignment targeting it.
type place struct {
	sym  string   // global symbol, "" when frame- or register-based
	base m68k.Reg // base address register, m68k.None for a bare symbol
	disp int      // byte displacement from sym or base
	size int      // access width in bytes, 0 for a whole struct
	temp bool     // base is a scratch register owned by this place
}

// operand renders the place as an effective-address operand.
func (pl place) operand() string {
	if pl.sym != "" {
		if pl.disp != 0 {
			return pl.sym + "+" + strconv.Itoa(pl.disp)
		}
		return pl.sym
	}
	if pl.disp == 0 && pl.temp {
		return "(" + pl.base.String() + ")"
	}
	return strconv.Itoa(pl.disp) + "(" + pl.base.String() + ")"
}

// release returns the place's scratch register, if any, to the pool.
func (p *procGen) release(pl place) {
	if pl.temp {
		p.alloc.Free(pl.base)
	}
}

// accessSize maps a location's type to its access width. Stack
// parameters always occupy a full long slot; callers widen narrow
// arguments when pushing them. A bare struct has no scalar width.
func accessSize(ty ast.Type, isParam bool) int {
	if isParam {
		return 4
	}
	if ty.Kind == ast.Struct {
		return 0
	}
	return ty.ScalarSize()
}

// resolvePlace computes where an addressable expression lives. Frame
// variables resolve to frame-relative operands, globals to symbols,
// and the dynamic forms (computed array indices, pointer targets)
// materialize a scratch address register. The returned type is the
// location's declared type.
func (p *procGen) resolvePlace(x ast.Expr) (place, ast.Type, error) {
	switch x := x.(type) {
	case ast.Ident:
		return p.resolveVar(x.Name)
	case ast.Index:
		return p.resolveIndex(x)
	case ast.Member:
		return p.resolveMember(x)
	case ast.Unary:
		if x.Op != ast.Deref {
			break
		}
		d, err := p.evalExpr(x.X)
		if err != nil {
			return place{}, ast.Type{}, err
		}
		a := p.allocAddr()
		p.code(asmout.Op("movea.l", d.String(), a.String()))
		p.alloc.Free(d)
		return place{base: a, size: 4, temp: true}, ast.Type{Kind: ast.Long}, nil
	}
	return place{}, ast.Type{}, fmt.Errorf("expression is not addressable")
}

func (p *procGen) resolveVar(name string) (place, ast.Type, error) {
	if slot, ok := p.frame.Lookup(name); ok {
		if slot.InReg() {
			return place{}, ast.Type{}, fmt.Errorf("register variable %s has no memory address", name)
		}
		return place{
			base: p.frame.Reg,
			disp: slot.Offset,
			size: accessSize(slot.Type, slot.IsParam),
		}, slot.Type, nil
	}
	if ty, ok := p.gen.tab.GlobalType(name); ok {
		return place{sym: name, base: m68k.None, size: accessSize(ty, false)}, ty, nil
	}
	return place{}, ast.Type{}, fmt.Errorf("unknown name %s", name)
}

// resolveIndex addresses one element of an array. Constant subscripts
// fold into the displacement; anything else computes the flattened
// index at run time and scales it by the element size, using a shift
// when the size is a power of two. A pointer or parameter base holds
// the array's address rather than being the array, so it is loaded
// into the base register first.
func (p *procGen) resolveIndex(x ast.Index) (place, ast.Type, error) {
	slot, inFrame := p.frame.Lookup(x.Base)
	var baseTy ast.Type
	switch {
	case inFrame:
		baseTy = slot.Type
	default:
		ty, ok := p.gen.tab.GlobalType(x.Base)
		if !ok {
			return place{}, ast.Type{}, fmt.Errorf("unknown name %s", x.Base)
		}
		baseTy = ty
	}

	extents := baseTy.Extents
	indirect := baseTy.Kind == ast.Ptr && len(extents) == 0 || inFrame && slot.IsParam
	if len(extents) == 0 && !indirect {
		return place{}, ast.Type{}, fmt.Errorf("%s is not an array", x.Base)
	}
	if len(extents) > 0 && len(x.Indices) != len(extents) {
		return place{}, ast.Type{}, fmt.Errorf("%s has %d dimensions, got %d subscripts",
			x.Base, len(extents), len(x.Indices))
	}
	elemTy := baseTy.Elem()
	elemSize := p.gen.tab.SizeOf(elemTy)
	size := accessSize(elemTy, false)

	disp, folded := p.constIndexOffset(x.Indices, extents, elemSize)

	if folded && !indirect {
		if inFrame {
			return place{base: p.frame.Reg, disp: slot.Offset + disp, size: size}, elemTy, nil
		}
		return place{sym: x.Base, base: m68k.None, disp: disp, size: size}, elemTy, nil
	}

	a := p.allocAddr()
	switch {
	case indirect && inFrame && slot.InReg():
		p.code(asmout.Op("movea.l", slot.Reg.String(), a.String()))
	case indirect && inFrame:
		p.code(asmout.Op("movea.l", p.frame.Operand(slot), a.String()))
	case indirect:
		p.code(asmout.Op("movea.l", x.Base, a.String()))
	case inFrame:
		p.code(asmout.Op("lea", p.frame.Operand(slot), a.String()))
	default:
		p.code(asmout.Op("lea", x.Base, a.String()))
	}

	if folded {
		return place{base: a, disp: disp, size: size, temp: true}, elemTy, nil
	}

	p.alloc.Pin(a)
	d, err := p.evalFlatIndex(x.Indices, extents)
	p.alloc.Unpin(a)
	if err != nil {
		p.alloc.Free(a)
		return place{}, ast.Type{}, err
	}
	p.scaleBy(d, elemSize)
	p.code(asmout.Op("adda.l", d.String(), a.String()))
	p.alloc.Free(d)
	return place{base: a, size: size, temp: true}, elemTy, nil
}

// constIndexOffset folds fully constant subscripts into a row-major
// byte displacement.
func (p *procGen) constIndexOffset(indices []ast.Expr, extents []int, elemSize int) (int, bool) {
	linear := 0
	for i, ix := range indices {
		v, ok := p.constValue(ix)
		if !ok {
			return 0, false
		}
		stride := 1
		for _, e := range extents[i+1:] {
			stride *= e
		}
		linear += v * stride
	}
	return linear * elemSize, true
}

func extentAt(extents []int, i int) int {
	if i < len(extents) {
		return extents[i]
	}
	return 1
}

// evalFlatIndex computes the row-major flattened index into a data
// register: ((i0*e1 + i1)*e2 + i2)…
func (p *procGen) evalFlatIndex(indices []ast.Expr, extents []int) (m68k.Reg, error) {
	d, err := p.evalExpr(indices[0])
	if err != nil {
		return m68k.None, err
	}
	for i := 1; i < len(indices); i++ {
		p.scaleBy(d, extentAt(extents, i))
		mark := p.alloc.Depth()
		p.alloc.Pin(d)
		r, err := p.evalExpr(indices[i])
		p.alloc.Unpin(d)
		if err != nil {
			return m68k.None, err
		}
		p.code(asmout.Op("add.l", r.String(), d.String()))
		p.alloc.Free(r)
		p.code(p.alloc.UnwindTo(mark)...)
	}
	return d, nil
}

// scaleBy multiplies a register by a compile-time factor, preferring
// a shift for powers of two.
func (p *procGen) scaleBy(d m68k.Reg, factor int) {
	switch {
	case factor == 1:
	case factor == 0:
		p.code(asmout.Op("moveq", "#0", d.String()))
	default:
		if shift, ok := m68k.PowerOfTwo(factor); ok && shift <= 8 {
			p.code(asmout.Op("lsl.l", imm(shift), d.String()))
		} else {
			p.code(asmout.Op("muls.w", imm(factor), d.String()))
		}
	}
}

// resolveMember addresses a struct field. v.f folds the field offset
// into the base displacement; p->f evaluates the pointer exactly once
// and addresses through a scratch register.
func (p *procGen) resolveMember(x ast.Member) (place, ast.Type, error) {
	if x.ViaPtr {
		info, ok := p.gen.tab.FindField(x.Field)
		if !ok {
			return place{}, ast.Type{}, fmt.Errorf(
				"field %s is unknown or declared by more than one struct", x.Field)
		}
		d, err := p.evalExpr(x.Base)
		if err != nil {
			return place{}, ast.Type{}, err
		}
		a := p.allocAddr()
		p.code(asmout.Op("movea.l", d.String(), a.String()))
		p.alloc.Free(d)
		return place{
			base: a,
			disp: info.Offset,
			size: accessSize(info.Type, false),
			temp: true,
		}, info.Type, nil
	}

	base, baseTy, err := p.resolvePlace(x.Base)
	if err != nil {
		return place{}, ast.Type{}, err
	}
	if baseTy.Kind != ast.Struct || baseTy.IsArray() {
		p.release(base)
		return place{}, ast.Type{}, fmt.Errorf("field %s on a non-struct value", x.Field)
	}
	layout := p.gen.tab.StructLayout(baseTy.StructName)
	if layout == nil {
		p.release(base)
		return place{}, ast.Type{}, fmt.Errorf("unknown struct %s", baseTy.StructName)
	}
	info, ok := layout.Field(x.Field)
	if !ok {
		p.release(base)
		return place{}, ast.Type{}, fmt.Errorf("struct %s has no field %s", baseTy.StructName, x.Field)
	}
	base.disp += info.Offset
	base.size = accessSize(info.Type, false)
	return base, info.Type, nil
}
