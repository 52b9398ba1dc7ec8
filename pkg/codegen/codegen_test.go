package codegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rozensoftware/hasm/pkg/asmout"
	"github.com/rozensoftware/hasm/pkg/lexer"
	"github.com/rozensoftware/hasm/pkg/parser"
	"github.com/rozensoftware/hasm/pkg/symtab"
)

func compile(t *testing.T, src string) *asmout.File {
	t.Helper()
	f, err := compileErr(t, src)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return f
}

func compileErr(t *testing.T, src string) (*asmout.File, error) {
	t.Helper()
	p := parser.New(lexer.New(src))
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	if errs := parser.Validate(prog); len(errs) > 0 {
		t.Fatalf("validate errors: %v", errs)
	}
	tab, err := symtab.Build(prog)
	if err != nil {
		t.Fatalf("symtab: %v", err)
	}
	return Generate(prog, tab)
}

func codeOf(t *testing.T, src string) []string {
	t.Helper()
	return compile(t, src).CodeLines()
}

func TestSimpleProcedureBody(t *testing.T) {
	got := codeOf(t, `
proc bump(x: long): long
	var y: long
	y = x + 1
	return y
endproc
`)
	want := []string{
		"bump:",
		"\tlink\ta4,#-4",
		"\tmove.l\t8(a4),d0",
		"\taddq.l\t#1,d0",
		"\tmove.l\td0,-4(a4)",
		"\tmove.l\t-4(a4),d0",
		"\tunlk\ta4",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestExternalCallGuardWithLocals(t *testing.T) {
	got := codeOf(t, `
extern _Out

proc send(v: long)
	var t: long
	t = v
	_Out(t)
endproc
`)
	want := []string{
		"send:",
		"\tlink\ta4,#-4",
		"\tmove.l\t8(a4),d0",
		"\tmove.l\td0,-4(a4)",
		"\tmove.l\ta4,-(sp)",
		"\tmove.l\t-4(a4),d0",
		"\tmove.l\td0,-(sp)",
		"\tjsr\t_Out",
		"\tlea\t4(sp),sp",
		"\tmovea.l\t(sp)+,a4",
		"\tunlk\ta4",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestExternalCallNoGuardWithoutLocals(t *testing.T) {
	got := codeOf(t, `
extern _Beep

proc ping(v: long)
	_Beep(v)
endproc
`)
	want := []string{
		"ping:",
		"\tlink\ta5,#0",
		"\tmove.l\t8(a5),d0",
		"\tmove.l\td0,-(sp)",
		"\tjsr\t_Beep",
		"\tlea\t4(sp),sp",
		"\tunlk\ta5",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestConstantIndexFoldsIntoDisplacement(t *testing.T) {
	got := codeOf(t, `
var a: byte[10][10]

proc f()
	a[2][4] = 7
endproc
`)
	want := []string{
		"f:",
		"\tlink\ta5,#0",
		"\tmoveq\t#7,d0",
		"\tmove.b\td0,a+24",
		"\tunlk\ta5",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestRuntimeIndexScalesAndAdds(t *testing.T) {
	got := codeOf(t, `
var a: byte[10][10]

proc f(i: long, j: long)
	a[i][j] = 1
endproc
`)
	want := []string{
		"f:",
		"\tlink\ta5,#0",
		"\tmoveq\t#1,d0",
		"\tlea\ta,a0",
		"\tmove.l\t8(a5),d1",
		"\tmuls.w\t#10,d1",
		"\tmove.l\t12(a5),d2",
		"\tadd.l\td2,d1",
		"\tadda.l\td1,a0",
		"\tmove.b\td0,(a0)",
		"\tunlk\ta5",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestPowerOfTwoElementUsesShift(t *testing.T) {
	got := codeOf(t, `
var a: long[8]

proc f(i: long)
	a[i] = 0
endproc
`)
	joined := strings.Join(got, "\n")
	if !strings.Contains(joined, "\tlsl.l\t#2,d1") {
		t.Errorf("expected shift scaling, got:\n%s", joined)
	}
	if strings.Contains(joined, "muls") {
		t.Errorf("power-of-two element size should not multiply:\n%s", joined)
	}
}

func TestCountdownLoopUsesDbra(t *testing.T) {
	got := codeOf(t, `
var total: long

proc f(n: word)
	var i: word
	for i = n downto 0
		total = total + 1
	next
endproc
`)
	want := []string{
		"f:",
		"\tlink\ta4,#-2",
		"\tmove.l\t8(a4),d0",
		".L1:",
		"\tmove.w\td0,-2(a4)",
		"\tmove.l\ttotal,d1",
		"\taddq.l\t#1,d1",
		"\tmove.l\td1,total",
		".L2:",
		"\tdbra\td0,.L1",
		".L3:",
		"\tunlk\ta4",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestCountdownLoopWithCallFallsBack(t *testing.T) {
	got := codeOf(t, `
proc g()
endproc

proc f(n: word)
	var i: word
	for i = n downto 0
		g()
	next
endproc
`)
	joined := strings.Join(got, "\n")
	if strings.Contains(joined, "dbra") {
		t.Errorf("loop body with a call must not use dbra:\n%s", joined)
	}
	if !strings.Contains(joined, "\tblt\t") {
		t.Errorf("expected descending-count exit branch, got:\n%s", joined)
	}
}

func TestDeepExpressionSpillsAndRestoresLoopCounter(t *testing.T) {
	// The counter holds d0 across the body, so the eighth live operand
	// of the nested sum must spill it and the restore has to land
	// before the dbra consumes it.
	got := codeOf(t, `
var total: long
var w1: word
var w2: word
var w3: word
var w4: word
var w5: word
var w6: word
var w7: word
var w8: word

proc f(n: word)
	var i: word
	for i = n downto 0
		total = w1 + (w2 + (w3 + (w4 + (w5 + (w6 + (w7 + w8))))))
	next
endproc
`)
	want := []string{
		"f:",
		"\tlink\ta4,#-2",
		"\tmove.l\t8(a4),d0",
		".L1:",
		"\tmove.w\td0,-2(a4)",
		"\tmove.w\tw1,d1",
		"\text.l\td1",
		"\tmove.w\tw2,d2",
		"\text.l\td2",
		"\tmove.w\tw3,d3",
		"\text.l\td3",
		"\tmove.w\tw4,d4",
		"\text.l\td4",
		"\tmove.w\tw5,d5",
		"\text.l\td5",
		"\tmove.w\tw6,d6",
		"\text.l\td6",
		"\tmove.w\tw7,d7",
		"\text.l\td7",
		"\tmove.l\td0,-(sp)",
		"\tmove.w\tw8,d0",
		"\text.l\td0",
		"\tadd.l\td0,d7",
		"\tmovem.l\t(sp)+,d0",
		"\tadd.l\td7,d6",
		"\tadd.l\td6,d5",
		"\tadd.l\td5,d4",
		"\tadd.l\td4,d3",
		"\tadd.l\td3,d2",
		"\tadd.l\td2,d1",
		"\tmove.l\td1,total",
		".L2:",
		"\tdbra\td0,.L1",
		".L3:",
		"\tunlk\ta4",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestWhileComparesAndBranches(t *testing.T) {
	got := codeOf(t, `
var n: long

proc f()
	while n > 0
		n = n - 1
	endwhile
endproc
`)
	want := []string{
		"f:",
		"\tlink\ta5,#0",
		".L1:",
		"\tmove.l\tn,d0",
		"\tcmp.l\t#0,d0",
		"\tble\t.L2",
		"\tmove.l\tn,d0",
		"\tsubq.l\t#1,d0",
		"\tmove.l\td0,n",
		"\tbra\t.L1",
		".L2:",
		"\tunlk\ta5",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestIfElse(t *testing.T) {
	got := codeOf(t, `
var x: long

proc f(v: long)
	if v == 0
		x = 1
	else
		x = 2
	endif
endproc
`)
	want := []string{
		"f:",
		"\tlink\ta5,#0",
		"\tmove.l\t8(a5),d0",
		"\tcmp.l\t#0,d0",
		"\tbne\t.L2",
		"\tmoveq\t#1,d0",
		"\tmove.l\td0,x",
		"\tbra\t.L1",
		".L2:",
		"\tmoveq\t#2,d0",
		"\tmove.l\td0,x",
		".L1:",
		"\tunlk\ta5",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestDivisionByPowerOfTwoTruncatesTowardZero(t *testing.T) {
	got := codeOf(t, `
var x: long

proc f()
	x = x / 4
endproc
`)
	joined := strings.Join(got, "\n")
	if strings.Contains(joined, "asr") {
		t.Errorf("division must not compile to an arithmetic shift:\n%s", joined)
	}
	for _, needle := range []string{"\tdivs.w\t#4,d0", "\text.l\td0"} {
		if !strings.Contains(joined, needle) {
			t.Errorf("missing %q in:\n%s", needle, joined)
		}
	}
}

func TestGlobalAccessUsesBareSymbolOperand(t *testing.T) {
	got := codeOf(t, `
var g: long

proc f()
	g = g + 2
endproc
`)
	want := []string{
		"f:",
		"\tlink\ta5,#0",
		"\tmove.l\tg,d0",
		"\taddq.l\t#2,d0",
		"\tmove.l\td0,g",
		"\tunlk\ta5",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestComparisonNormalizesToBool(t *testing.T) {
	got := codeOf(t, `
var a: long
var b: long
var x: long

proc f()
	x = a < b
endproc
`)
	joined := strings.Join(got, "\n")
	for _, needle := range []string{"\tcmp.l\tb,d0", "\tslt\td0", "\tand.l\t#1,d0"} {
		if !strings.Contains(joined, needle) {
			t.Errorf("missing %q in:\n%s", needle, joined)
		}
	}
}

func TestLogicalAndShortCircuitsInValueContext(t *testing.T) {
	got := codeOf(t, `
var a: long
var b: long
var x: long

proc f()
	x = a && b
endproc
`)
	want := []string{
		"f:",
		"\tlink\ta5,#0",
		"\tmove.l\ta,d1",
		"\ttst.l\td1",
		"\tbeq\t.L1",
		"\tmove.l\tb,d1",
		"\ttst.l\td1",
		"\tbeq\t.L1",
		"\tmoveq\t#1,d0",
		"\tbra\t.L2",
		".L1:",
		"\tmoveq\t#0,d0",
		".L2:",
		"\tmove.l\td0,x",
		"\tunlk\ta5",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestLogicalOrBranchesWithoutBoolValue(t *testing.T) {
	got := codeOf(t, `
var a: long
var b: long
var x: long

proc f()
	if a || b
		x = 1
	endif
endproc
`)
	joined := strings.Join(got, "\n")
	if strings.Contains(joined, "seq") || strings.Contains(joined, "and.l\t#1") {
		t.Errorf("branch context should not materialize a 0/1 value:\n%s", joined)
	}
}

func TestCallResultCopiedAndLiveTemporarySaved(t *testing.T) {
	got := codeOf(t, `
proc add2(v: long): long
	return v + 2
endproc

var x: long

proc f(v: long)
	x = v + add2(v)
endproc
`)
	want := []string{
		"add2:",
		"\tlink\ta5,#0",
		"\tmove.l\t8(a5),d0",
		"\taddq.l\t#2,d0",
		"\tunlk\ta5",
		"\trts",
		"f:",
		"\tlink\ta5,#0",
		"\tmove.l\t8(a5),d0",
		"\tmove.l\td0,-(sp)",
		"\tmove.l\t8(a5),d2",
		"\tmove.l\td2,-(sp)",
		"\tjsr\tadd2",
		"\tlea\t4(sp),sp",
		"\tmove.l\td0,d1",
		"\tmove.l\t(sp)+,d0",
		"\tadd.l\td1,d0",
		"\tmove.l\td0,x",
		"\tunlk\ta5",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterParametersLoadBeforeJsr(t *testing.T) {
	got := codeOf(t, `
proc fill(count: long in d2, dest: long in d3)
endproc

proc f()
	fill(1, 2)
endproc
`)
	want := []string{
		"fill:",
		"\tlink\ta5,#0",
		"\tunlk\ta5",
		"\trts",
		"f:",
		"\tlink\ta5,#0",
		"\tmoveq\t#1,d0",
		"\tmove.l\td0,-(sp)",
		"\tmoveq\t#2,d0",
		"\tmove.l\td0,d3",
		"\tmove.l\t(sp)+,d2",
		"\tjsr\tfill",
		"\tunlk\ta5",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestEveryReturnSiteTearsDownItsOwnFrame(t *testing.T) {
	got := codeOf(t, `
proc f(v: long): long
	if v == 0
		return 1
	endif
	return 2
endproc
`)
	joined := strings.Join(got, "\n")
	if n := strings.Count(joined, "\tunlk\ta5"); n != 2 {
		t.Errorf("unlk count = %d, want one per return site:\n%s", n, joined)
	}
	if n := strings.Count(joined, "\trts"); n != 2 {
		t.Errorf("rts count = %d, want one per return site:\n%s", n, joined)
	}
}

func TestMacroCallExpandsInline(t *testing.T) {
	got := codeOf(t, `
var total: long

macro bump(n)
	total = total + n
endmacro

proc f()
	bump(3)
	bump(4)
endproc
`)
	joined := strings.Join(got, "\n")
	if strings.Contains(joined, "jsr") {
		t.Errorf("macro call must not emit jsr:\n%s", joined)
	}
	for _, needle := range []string{"\taddq.l\t#3,d0", "\taddq.l\t#4,d0"} {
		if !strings.Contains(joined, needle) {
			t.Errorf("missing expanded instruction %q in:\n%s", needle, joined)
		}
	}
}

func TestRawBlockSubstitution(t *testing.T) {
	got := codeOf(t, `
const LIMIT = 5

var buf: long

proc f(v: long)
	asm
		move.l @v,d0
		add.l @LIMIT,d0
		move.l d0,@buf
		jsr @missing
	endasm
endproc
`)
	want := []string{
		"f:",
		"\tlink\ta5,#0",
		"\tmove.l 8(a5),d0\t; @v -> 8(a5)",
		"\tadd.l #5,d0\t; @LIMIT -> #5",
		"\tmove.l d0,buf\t; @buf -> buf",
		"\tjsr ???missing???\t; @missing unresolved",
		"\tunlk\ta5",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterParamReadAndRawReference(t *testing.T) {
	got := codeOf(t, `
var x: long

proc f(count: long in d2)
	x = count
	asm
		subq.l #1,@count
	endasm
endproc
`)
	joined := strings.Join(got, "\n")
	for _, needle := range []string{"\tmove.l\td2,d0", "\tsubq.l #1,d2\t; @count -> d2"} {
		if !strings.Contains(joined, needle) {
			t.Errorf("missing %q in:\n%s", needle, joined)
		}
	}
}

func TestPointerFieldAccessComputesBaseOnce(t *testing.T) {
	got := codeOf(t, `
struct Point
	x: long
	y: long
endstruct

var p: ptr

proc f()
	p->y = 3
endproc
`)
	want := []string{
		"f:",
		"\tlink\ta5,#0",
		"\tmoveq\t#3,d0",
		"\tmove.l\tp,d1",
		"\tmovea.l\td1,a0",
		"\tmove.l\td0,4(a0)",
		"\tunlk\ta5",
		"\trts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestTooComplexExpressionIsAnError(t *testing.T) {
	_, err := compileErr(t, `
var w1: word
var w2: word
var w3: word
var w4: word
var w5: word
var w6: word
var w7: word
var w8: word
var w9: word

proc f()
	w1 = w1 + (w2 + (w3 + (w4 + (w5 + (w6 + (w7 + (w8 + w9)))))))
endproc
`)
	if err == nil || !strings.Contains(err.Error(), "too complex") {
		t.Fatalf("Generate = %v, want expression-too-complex error", err)
	}
	if err != nil && !strings.Contains(err.Error(), "f:") {
		t.Errorf("error %q does not name the procedure", err)
	}
}

func TestGlobalPlacement(t *testing.T) {
	f := compile(t, `
export main

var count: long = 42
var name: byte[6] = "hello"
var scratch: byte[32]

proc main()
endproc
`)
	var b strings.Builder
	if err := f.WriteTo(&b); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	out := b.String()
	for _, needle := range []string{
		"\tXDEF\tmain",
		"\tSECTION\tdata,DATA",
		"count:",
		"\tdc.l\t42",
		"name:",
		"\tdc.b\t\"hello\",0",
		"\tSECTION\tbss,BSS",
		"scratch:",
		"\tds.b\t32",
	} {
		if !strings.Contains(out, needle) {
			t.Errorf("output missing %q:\n%s", needle, out)
		}
	}
	if strings.Index(out, "SECTION\tcode") > strings.Index(out, "SECTION\tdata") {
		t.Error("code section must precede data section")
	}
}
