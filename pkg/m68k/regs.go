// Package m68k defines the target machine model: the register file,
// the external calling convention, and instruction size suffixes.
// The target is a 68000-class CPU: eight 32-bit data registers,
// eight address registers of which a7 is the hardware stack pointer.
package m68k

import "fmt"

// Reg identifies a hardware register.
type Reg uint8

const (
	D0 Reg = iota
	D1
	D2
	D3
	D4
	D5
	D6
	D7
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7

	// None marks the absence of a register binding.
	None Reg = 255
)

// SP is the hardware stack pointer. It never participates in allocation.
const SP = A7

// RetReg is the fixed return-value register of the calling convention.
// Procedure results are always delivered in d0.
const RetReg = D0

// The two interchangeable frame-pointer choices. FrameOptimized is in the
// clobberable subset of the external convention, so the calling-convention
// guard must protect it around external calls. FrameConvention is
// callee-saved by externals and never needs guarding.
const (
	FrameOptimized  = A4
	FrameConvention = A5
)

// String returns the assembler spelling of the register ("d0".."a7").
func (r Reg) String() string {
	switch {
	case r <= D7:
		return fmt.Sprintf("d%d", int(r))
	case r <= A7:
		return fmt.Sprintf("a%d", int(r-A0))
	}
	return "??"
}

// IsData reports whether r is a data register.
func (r Reg) IsData() bool {
	return r <= D7
}

// IsAddr reports whether r is an address register.
func (r Reg) IsAddr() bool {
	return r >= A0 && r <= A7
}

// Valid reports whether r names a real register.
func (r Reg) Valid() bool {
	return r <= A7
}

// ByName maps an assembler spelling back to a register.
// Used when parsing register-passing annotations ("in d2").
func ByName(name string) (Reg, bool) {
	if len(name) != 2 {
		return None, false
	}
	n := name[1] - '0'
	if n > 7 {
		return None, false
	}
	switch name[0] {
	case 'd':
		return D0 + Reg(n), true
	case 'a':
		return A0 + Reg(n), true
	}
	return None, false
}

// IsCalleeSaved reports whether the external convention requires callees
// to preserve r. Externals may clobber d0, d1, a0, a1 and a4; everything
// else must come back intact.
func IsCalleeSaved(r Reg) bool {
	switch r {
	case D0, D1, A0, A1, FrameOptimized:
		return false
	}
	return r.Valid()
}

// SizeSuffix returns the instruction size suffix for an operand size
// in bytes: "b", "w" or "l".
func SizeSuffix(size int) string {
	switch size {
	case 1:
		return "b"
	case 2:
		return "w"
	default:
		return "l"
	}
}

// PowerOfTwo returns the shift count for n if n is a power of two
// greater than one, along with true. Used to turn index scaling into
// a shift instead of a multiply.
func PowerOfTwo(n int) (int, bool) {
	if n < 2 || n&(n-1) != 0 {
		return 0, false
	}
	shift := 0
	for n > 1 {
		n >>= 1
		shift++
	}
	return shift, true
}
