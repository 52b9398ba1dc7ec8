// Package symtab builds the whole-program lookup tables consumed by
// code generation: procedure signatures, struct field layouts, array
// extents, constant values and the global/extern symbol sets. The
// tables are built by a single pass before any code is emitted and are
// never mutated afterwards. They assume already-validated input: a
// lookup miss during emission is a pipeline invariant violation, not a
// user error.
package symtab

import (
	"fmt"

	"github.com/rozensoftware/hasm/pkg/ast"
)

// Signature describes one internal procedure.
type Signature struct {
	Name      string
	Params    []ast.Param
	HasResult bool
}

// StackArgBytes returns the number of bytes of stack-passed arguments
// a caller pushes for this signature.
func (s *Signature) StackArgBytes() int {
	n := 0
	for _, p := range s.Params {
		if !p.InReg() {
			n += 4
		}
	}
	return n
}

// FieldInfo records one struct member's placement.
type FieldInfo struct {
	Name   string
	Offset int
	Size   int
	Type   ast.Type
}

// StructLayout maps a struct's fields to byte offsets. Offsets are
// cumulative sums of field sizes with even alignment for fields wider
// than a byte.
type StructLayout struct {
	Name   string
	Fields []FieldInfo
	Size   int
}

// Field returns the placement of a named field.
func (l *StructLayout) Field(name string) (FieldInfo, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// Table is the immutable compilation context shared by every
// downstream stage.
type Table struct {
	sigs    map[string]*Signature
	structs map[string]*StructLayout
	consts  map[string]int
	globals map[string]ast.Type
	externs map[string]bool
	exports map[string]bool
}

// Build constructs the tables from a validated program.
func Build(prog *ast.Program) (*Table, error) {
	t := &Table{
		sigs:    make(map[string]*Signature),
		structs: make(map[string]*StructLayout),
		consts:  make(map[string]int),
		globals: make(map[string]ast.Type),
		externs: make(map[string]bool),
		exports: make(map[string]bool),
	}

	for _, c := range prog.Consts {
		t.consts[c.Name] = c.Value
	}
	// Structs may reference earlier structs as field types, so layouts
	// are computed in declaration order.
	for _, s := range prog.Structs {
		layout, err := t.layoutStruct(s)
		if err != nil {
			return nil, err
		}
		t.structs[s.Name] = layout
	}
	for _, e := range prog.Externs {
		t.externs[e] = true
	}
	for _, e := range prog.Exports {
		t.exports[e] = true
	}
	for _, g := range prog.Globals {
		t.globals[g.Name] = g.Type
	}
	for _, proc := range prog.Procs {
		t.sigs[proc.Name] = &Signature{
			Name:      proc.Name,
			Params:    proc.Params,
			HasResult: proc.HasResult,
		}
	}
	return t, nil
}

// layoutStruct assigns field offsets: cumulative sums of field sizes,
// with word and long fields kept on even addresses.
func (t *Table) layoutStruct(def ast.StructDef) (*StructLayout, error) {
	layout := &StructLayout{Name: def.Name}
	offset := 0
	for _, f := range def.Fields {
		size, err := t.sizeOf(f.Type)
		if err != nil {
			return nil, fmt.Errorf("struct %s, field %s: %w", def.Name, f.Name, err)
		}
		if size > 1 && offset%2 != 0 {
			offset++
		}
		layout.Fields = append(layout.Fields, FieldInfo{
			Name:   f.Name,
			Offset: offset,
			Size:   size,
			Type:   f.Type,
		})
		offset += size
	}
	if offset%2 != 0 {
		offset++
	}
	layout.Size = offset
	return layout, nil
}

func (t *Table) sizeOf(ty ast.Type) (int, error) {
	var base int
	if ty.Kind == ast.Struct {
		layout := t.structs[ty.StructName]
		if layout == nil {
			return 0, fmt.Errorf("unknown struct %s", ty.StructName)
		}
		base = layout.Size
	} else {
		base = ty.ScalarSize()
	}
	for _, e := range ty.Extents {
		base *= e
	}
	return base, nil
}

// SizeOf returns the total size in bytes of a declared type, arrays
// included. Unknown struct names are a violated pipeline invariant.
func (t *Table) SizeOf(ty ast.Type) int {
	size, err := t.sizeOf(ty)
	if err != nil {
		panic(fmt.Sprintf("symtab: %v (validator must reject this first)", err))
	}
	return size
}

// ElemSize returns the element size of an array type.
func (t *Table) ElemSize(ty ast.Type) int {
	return t.SizeOf(ty.Elem())
}

// Signature returns the signature of an internal procedure, or nil.
func (t *Table) Signature(name string) *Signature {
	return t.sigs[name]
}

// StructLayout returns a struct's field layout, or nil.
func (t *Table) StructLayout(name string) *StructLayout {
	return t.structs[name]
}

// ArrayExtents returns the dimension extents of a global array
// variable, or nil when the name is not a global array.
func (t *Table) ArrayExtents(name string) []int {
	ty, ok := t.globals[name]
	if !ok || !ty.IsArray() {
		return nil
	}
	return ty.Extents
}

// ConstValue returns a named constant's value.
func (t *Table) ConstValue(name string) (int, bool) {
	v, ok := t.consts[name]
	return v, ok
}

// GlobalType returns the declared type of a global variable.
func (t *Table) GlobalType(name string) (ast.Type, bool) {
	ty, ok := t.globals[name]
	return ty, ok
}

// FindField resolves a field accessed through an untyped pointer by
// searching every struct layout. The name must identify exactly one
// field across the program; an ambiguous name is reported as missing.
func (t *Table) FindField(name string) (FieldInfo, bool) {
	var found FieldInfo
	n := 0
	for _, l := range t.structs {
		if f, ok := l.Field(name); ok {
			found = f
			n++
		}
	}
	return found, n == 1
}

// IsExternal reports whether name is imported from outside the
// compilation unit.
func (t *Table) IsExternal(name string) bool {
	return t.externs[name]
}

// IsExported reports whether name is exported from this unit.
func (t *Table) IsExported(name string) bool {
	return t.exports[name]
}
