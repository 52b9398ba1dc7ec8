package m68k

import "testing"

func TestRegString(t *testing.T) {
	tests := []struct {
		reg  Reg
		want string
	}{
		{D0, "d0"},
		{D7, "d7"},
		{A0, "a0"},
		{A4, "a4"},
		{A7, "a7"},
	}
	for _, tt := range tests {
		if got := tt.reg.String(); got != tt.want {
			t.Errorf("Reg(%d).String() = %q, want %q", tt.reg, got, tt.want)
		}
	}
}

func TestByName(t *testing.T) {
	tests := []struct {
		name string
		want Reg
		ok   bool
	}{
		{"d0", D0, true},
		{"d7", D7, true},
		{"a2", A2, true},
		{"a7", A7, true},
		{"d8", None, false},
		{"x0", None, false},
		{"d", None, false},
	}
	for _, tt := range tests {
		got, ok := ByName(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ByName(%q) = %v, %v, want %v, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsCalleeSaved(t *testing.T) {
	clobberable := []Reg{D0, D1, A0, A1, A4}
	for _, r := range clobberable {
		if IsCalleeSaved(r) {
			t.Errorf("%s should be clobberable by externals", r)
		}
	}
	saved := []Reg{D2, D3, D4, D5, D6, D7, A2, A3, A5, A6, A7}
	for _, r := range saved {
		if !IsCalleeSaved(r) {
			t.Errorf("%s should be callee-saved", r)
		}
	}
}

func TestSizeSuffix(t *testing.T) {
	if s := SizeSuffix(1); s != "b" {
		t.Errorf("SizeSuffix(1) = %q, want b", s)
	}
	if s := SizeSuffix(2); s != "w" {
		t.Errorf("SizeSuffix(2) = %q, want w", s)
	}
	if s := SizeSuffix(4); s != "l" {
		t.Errorf("SizeSuffix(4) = %q, want l", s)
	}
}

func TestPowerOfTwo(t *testing.T) {
	tests := []struct {
		n     int
		shift int
		ok    bool
	}{
		{1, 0, false},
		{2, 1, true},
		{3, 0, false},
		{4, 2, true},
		{8, 3, true},
		{6, 0, false},
		{16, 4, true},
	}
	for _, tt := range tests {
		shift, ok := PowerOfTwo(tt.n)
		if shift != tt.shift || ok != tt.ok {
			t.Errorf("PowerOfTwo(%d) = %d, %v, want %d, %v", tt.n, shift, ok, tt.shift, tt.ok)
		}
	}
}
