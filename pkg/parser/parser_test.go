package parser

import (
	"testing"

	"github.com/rozensoftware/hasm/pkg/ast"
	"github.com/rozensoftware/hasm/pkg/lexer"
	"github.com/rozensoftware/hasm/pkg/m68k"
)

func parse(t *testing.T, input string) *ast.Program {
	t.Helper()
	p := New(lexer.New(input))
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse errors: %v", p.Errors())
	}
	return prog
}

func TestParseProc(t *testing.T) {
	prog := parse(t, `
proc add(a: long, b: long): long
	return a + b
endproc
`)
	if len(prog.Procs) != 1 {
		t.Fatalf("got %d procs, want 1", len(prog.Procs))
	}
	proc := prog.Procs[0]
	if proc.Name != "add" {
		t.Errorf("name = %q, want add", proc.Name)
	}
	if len(proc.Params) != 2 {
		t.Fatalf("got %d params, want 2", len(proc.Params))
	}
	if !proc.HasResult {
		t.Error("HasResult should be true")
	}
	if len(proc.Body) != 1 {
		t.Fatalf("got %d statements, want 1", len(proc.Body))
	}
	ret, ok := proc.Body[0].(ast.Return)
	if !ok {
		t.Fatalf("expected Return, got %T", proc.Body[0])
	}
	bin, ok := ret.Value.(ast.Binary)
	if !ok || bin.Op != ast.Add {
		t.Fatalf("expected Add binary, got %#v", ret.Value)
	}
}

func TestParseRegisterParam(t *testing.T) {
	prog := parse(t, `
proc fill(count: word in d2, dest: ptr in a2)
	return
endproc
`)
	proc := prog.Procs[0]
	if proc.Params[0].Reg != m68k.D2 {
		t.Errorf("count reg = %v, want d2", proc.Params[0].Reg)
	}
	if proc.Params[1].Reg != m68k.A2 {
		t.Errorf("dest reg = %v, want a2", proc.Params[1].Reg)
	}
}

func TestParseLocals(t *testing.T) {
	prog := parse(t, `
proc f(x: long)
	var y: long
	var buf: byte[16]
	y = x
endproc
`)
	proc := prog.Procs[0]
	if len(proc.Locals) != 2 {
		t.Fatalf("got %d locals, want 2", len(proc.Locals))
	}
	if proc.Locals[1].Type.Extents[0] != 16 {
		t.Errorf("buf extent = %v, want [16]", proc.Locals[1].Type.Extents)
	}
	if !proc.HasLocals() {
		t.Error("HasLocals should be true")
	}
}

func TestParseConstAndExtents(t *testing.T) {
	prog := parse(t, `
const ROWS = 2
const COLS = ROWS * 4

var grid: long[ROWS][COLS]
`)
	if len(prog.Consts) != 2 || prog.Consts[1].Value != 8 {
		t.Fatalf("consts = %+v", prog.Consts)
	}
	if len(prog.Globals) != 1 {
		t.Fatalf("globals = %+v", prog.Globals)
	}
	ext := prog.Globals[0].Type.Extents
	if len(ext) != 2 || ext[0] != 2 || ext[1] != 8 {
		t.Errorf("extents = %v, want [2 8]", ext)
	}
}

func TestParseStruct(t *testing.T) {
	prog := parse(t, `
struct Point
	x: word
	y: word
endstruct

var origin: Point
`)
	if len(prog.Structs) != 1 {
		t.Fatalf("structs = %+v", prog.Structs)
	}
	s := prog.Structs[0]
	if s.Name != "Point" || len(s.Fields) != 2 {
		t.Fatalf("struct = %+v", s)
	}
	if prog.Globals[0].Type.Kind != ast.Struct || prog.Globals[0].Type.StructName != "Point" {
		t.Errorf("global type = %+v", prog.Globals[0].Type)
	}
}

func TestParseControlFlow(t *testing.T) {
	prog := parse(t, `
proc f(n: long)
	var i: long
	if n > 0
		n = n - 1
	else
		n = 0
	endif
	while n > 0
		n = n - 1
	endwhile
	do
		n = n + 1
	until n == 10
	for i = 0 to 9
		if i == 5
			break
		endif
		continue
	next
endproc
`)
	body := prog.Procs[0].Body
	if len(body) != 4 {
		t.Fatalf("got %d statements, want 4: %#v", len(body), body)
	}
	ifStmt, ok := body[0].(ast.If)
	if !ok || ifStmt.Else == nil {
		t.Errorf("statement 0: want if/else, got %#v", body[0])
	}
	if _, ok := body[1].(ast.While); !ok {
		t.Errorf("statement 1: want while, got %#v", body[1])
	}
	if _, ok := body[2].(ast.DoUntil); !ok {
		t.Errorf("statement 2: want do/until, got %#v", body[2])
	}
	forStmt, ok := body[3].(ast.For)
	if !ok || forStmt.Down {
		t.Errorf("statement 3: want ascending for, got %#v", body[3])
	}
}

func TestParseForDownto(t *testing.T) {
	prog := parse(t, `
proc f(n: word)
	var i: word
	for i = n downto 0
		n = n + 1
	next
endproc
`)
	loop := prog.Procs[0].Body[0].(ast.For)
	if !loop.Down {
		t.Error("Down should be true")
	}
}

func TestParseRawBlock(t *testing.T) {
	prog := parse(t, `
proc flush(buf: ptr)
	asm
		movea.l @buf,a0
		jsr _DoFlush
	endasm
endproc
`)
	raw, ok := prog.Procs[0].Body[0].(ast.Raw)
	if !ok {
		t.Fatalf("expected Raw, got %#v", prog.Procs[0].Body[0])
	}
	if len(raw.Lines) != 2 {
		t.Fatalf("lines = %q", raw.Lines)
	}
	if raw.Lines[0] != "movea.l @buf,a0" {
		t.Errorf("line 0 = %q", raw.Lines[0])
	}
	if raw.Lines[1] != "jsr _DoFlush" {
		t.Errorf("line 1 = %q", raw.Lines[1])
	}
}

func TestParseMacro(t *testing.T) {
	prog := parse(t, `
macro doubleIt(v)
	v = v + v
endmacro
`)
	if len(prog.Macros) != 1 {
		t.Fatalf("macros = %+v", prog.Macros)
	}
	m := prog.Macros[0]
	if m.Name != "doubleIt" || len(m.Params) != 1 || m.Params[0] != "v" {
		t.Fatalf("macro = %+v", m)
	}
	if len(m.Body) != 1 {
		t.Fatalf("body = %#v", m.Body)
	}
}

func TestParseMemberAndIndex(t *testing.T) {
	prog := parse(t, `
struct Point
	x: word
	y: word
endstruct

var pts: Point
var p: ptr
var a: long[4]

proc f()
	pts.x = 1
	p->y = 2
	a[3] = pts.y
endproc
`)
	body := prog.Procs[0].Body
	m0 := body[0].(ast.Assign).Target.(ast.Member)
	if m0.Field != "x" || m0.ViaPtr {
		t.Errorf("target 0 = %+v", m0)
	}
	m1 := body[1].(ast.Assign).Target.(ast.Member)
	if m1.Field != "y" || !m1.ViaPtr {
		t.Errorf("target 1 = %+v", m1)
	}
	idx := body[2].(ast.Assign).Target.(ast.Index)
	if idx.Base != "a" || len(idx.Indices) != 1 {
		t.Errorf("target 2 = %+v", idx)
	}
}

func TestParseExternExport(t *testing.T) {
	prog := parse(t, `
extern _OpenLibrary, _CloseLibrary
export main

proc main()
	_OpenLibrary()
endproc
`)
	if len(prog.Externs) != 2 {
		t.Errorf("externs = %v", prog.Externs)
	}
	if len(prog.Exports) != 1 || prog.Exports[0] != "main" {
		t.Errorf("exports = %v", prog.Exports)
	}
}

func TestHexAndBinaryLiterals(t *testing.T) {
	prog := parse(t, `
const MASK = $ff00
const BITS = %1011
`)
	if prog.Consts[0].Value != 0xff00 {
		t.Errorf("MASK = %d, want %d", prog.Consts[0].Value, 0xff00)
	}
	if prog.Consts[1].Value != 11 {
		t.Errorf("BITS = %d, want 11", prog.Consts[1].Value)
	}
}

func TestPrecedence(t *testing.T) {
	prog := parse(t, `
proc f(a: long, b: long, c: long)
	a = a + b * c
endproc
`)
	v := prog.Procs[0].Body[0].(ast.Assign).Value.(ast.Binary)
	if v.Op != ast.Add {
		t.Fatalf("top op = %v, want Add", v.Op)
	}
	if inner, ok := v.Right.(ast.Binary); !ok || inner.Op != ast.Mul {
		t.Errorf("right = %#v, want Mul binary", v.Right)
	}
}

func TestParseErrors(t *testing.T) {
	p := New(lexer.New("proc f(\n"))
	p.ParseProgram()
	if len(p.Errors()) == 0 {
		t.Error("expected parse errors")
	}
}
