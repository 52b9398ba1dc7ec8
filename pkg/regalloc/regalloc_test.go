package regalloc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rozensoftware/hasm/pkg/m68k"
)

func TestAllocDataOrder(t *testing.T) {
	a := New(m68k.A4)
	want := []m68k.Reg{m68k.D0, m68k.D1, m68k.D2, m68k.D3, m68k.D4, m68k.D5, m68k.D6, m68k.D7}
	for _, w := range want {
		r, pre := a.AllocData()
		if r != w {
			t.Errorf("AllocData() = %v, want %v", r, w)
		}
		if pre != nil {
			t.Errorf("AllocData() preamble = %v, want none", pre)
		}
	}
}

func TestAllocAddrSkipsFrameAndSP(t *testing.T) {
	a := New(m68k.A4)
	want := []m68k.Reg{m68k.A0, m68k.A1, m68k.A2, m68k.A3, m68k.A5, m68k.A6}
	for _, w := range want {
		r, pre := a.AllocAddr()
		if r != w {
			t.Errorf("AllocAddr() = %v, want %v", r, w)
		}
		if pre != nil {
			t.Errorf("AllocAddr() preamble = %v, want none", pre)
		}
	}
}

func TestReservedParamsExcluded(t *testing.T) {
	a := New(m68k.A5, m68k.D0, m68k.D1)
	r, _ := a.AllocData()
	if r != m68k.D2 {
		t.Errorf("AllocData() with d0,d1 reserved = %v, want d2", r)
	}
}

func TestDataSpillVictimOrder(t *testing.T) {
	a := New(m68k.A4)
	for i := 0; i < 8; i++ {
		a.AllocData()
	}
	r, pre := a.AllocData()
	if r != m68k.D7 {
		t.Errorf("first data victim = %v, want d7", r)
	}
	want := []string{"\tmove.l\td7,-(sp)"}
	if diff := cmp.Diff(want, pre); diff != "" {
		t.Errorf("spill preamble mismatch (-want +got):\n%s", diff)
	}
	r, _ = a.AllocData()
	if r != m68k.D6 {
		t.Errorf("second data victim = %v, want d6", r)
	}
	if a.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", a.Depth())
	}
}

func TestAddrSpillVictimOrder(t *testing.T) {
	a := New(m68k.A4)
	for i := 0; i < 6; i++ {
		a.AllocAddr()
	}
	r, pre := a.AllocAddr()
	if r != m68k.A6 {
		t.Errorf("first address victim = %v, want a6", r)
	}
	want := []string{"\tmove.l\ta6,-(sp)"}
	if diff := cmp.Diff(want, pre); diff != "" {
		t.Errorf("spill preamble mismatch (-want +got):\n%s", diff)
	}
	r, _ = a.AllocAddr()
	if r != m68k.A5 {
		t.Errorf("second address victim = %v, want a5", r)
	}
}

func TestUnwindLIFO(t *testing.T) {
	a := New(m68k.A4)
	for i := 0; i < 8; i++ {
		a.AllocData()
	}
	a.AllocData() // spills d7
	a.AllocData() // spills d6
	for i := 0; i < 6; i++ {
		a.AllocAddr()
	}
	a.AllocAddr() // spills a6

	lines := a.UnwindAll()
	want := []string{
		"\tmovem.l\t(sp)+,a6",
		"\tmovem.l\t(sp)+,d6",
		"\tmovem.l\t(sp)+,d7",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("unwind mismatch (-want +got):\n%s", diff)
	}
	if a.Depth() != 0 {
		t.Errorf("Depth() after UnwindAll = %d, want 0", a.Depth())
	}
}

func TestUnwindToPartialDepth(t *testing.T) {
	a := New(m68k.A4)
	for i := 0; i < 8; i++ {
		a.AllocData()
	}
	a.AllocData()
	mark := a.Depth()
	a.AllocData()
	a.AllocData()

	lines := a.UnwindTo(mark)
	if len(lines) != 2 {
		t.Fatalf("UnwindTo popped %d, want 2", len(lines))
	}
	if a.Depth() != mark {
		t.Errorf("Depth() = %d, want %d", a.Depth(), mark)
	}
}

func TestFreeThenRealloc(t *testing.T) {
	a := New(m68k.A4)
	r0, _ := a.AllocData()
	a.AllocData()
	a.Free(r0)
	r, _ := a.AllocData()
	if r != r0 {
		t.Errorf("AllocData() after Free = %v, want %v", r, r0)
	}
}

func TestSaveRestoreContext(t *testing.T) {
	a := New(m68k.A4)
	a.AllocData() // d0
	a.AllocData() // d1
	ctx := a.SaveContext()

	// Nested evaluation grabs more registers and frees one the
	// enclosing expression still owns.
	a.AllocData()
	a.Free(m68k.D0)
	a.RestoreContext(ctx)

	if !a.InUse(m68k.D0) || !a.InUse(m68k.D1) {
		t.Error("RestoreContext lost ownership of d0 or d1")
	}
	if a.InUse(m68k.D2) {
		t.Error("RestoreContext kept nested allocation of d2")
	}
}

func TestPinnedRegisterIsNotVictim(t *testing.T) {
	a := New(m68k.A4)
	for i := 0; i < 8; i++ {
		a.AllocData()
	}
	a.Pin(m68k.D7)
	r, _ := a.AllocData()
	if r != m68k.D6 {
		t.Errorf("victim with d7 pinned = %v, want d6", r)
	}
	a.Unpin(m68k.D7)
	r, _ = a.AllocData()
	if r != m68k.D7 {
		t.Errorf("victim after unpin = %v, want d7", r)
	}
}

func TestAllPinnedExhaustsPool(t *testing.T) {
	a := New(m68k.A4)
	for i := 0; i < 8; i++ {
		r, _ := a.AllocData()
		a.Pin(r)
	}
	r, pre := a.AllocData()
	if r != m68k.None {
		t.Errorf("AllocData() with all registers pinned = %v, want None", r)
	}
	if pre != nil {
		t.Errorf("preamble = %v, want none", pre)
	}
}

func TestExitCheck(t *testing.T) {
	a := New(m68k.A4)
	if err := a.ExitCheck(); err != nil {
		t.Errorf("ExitCheck() on fresh allocator = %v", err)
	}
	for i := 0; i < 9; i++ {
		a.AllocData()
	}
	if err := a.ExitCheck(); err == nil {
		t.Error("ExitCheck() with outstanding spill = nil, want error")
	}
	a.UnwindAll()
	if err := a.ExitCheck(); err != nil {
		t.Errorf("ExitCheck() after unwind = %v", err)
	}
}
