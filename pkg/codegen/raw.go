package codegen

import (
	"strconv"
	"strings"

	"github.com/rozensoftware/hasm/pkg/asmout"
	"github.com/rozensoftware/hasm/pkg/ast"
)

// emitRaw copies a hand-written instruction block into the output,
// resolving @name placeholders against the procedure's frame and the
// program's symbols. An unresolvable name becomes a ???name??? marker
// so the assembler reports the exact spot, and compilation continues.
func (p *procGen) emitRaw(s ast.Raw) error {
	for _, line := range s.Lines {
		rewritten, notes := p.substituteLine(line)
		if strings.HasSuffix(rewritten, ":") {
			p.code(rewritten)
			continue
		}
		out := "\t" + rewritten
		if len(notes) > 0 {
			out = asmout.WithComment(out, strings.Join(notes, ", "))
		}
		p.code(out)
	}
	return nil
}

// substituteLine rewrites every @name in one line and reports what
// each placeholder resolved to.
func (p *procGen) substituteLine(line string) (string, []string) {
	var b strings.Builder
	var notes []string
	for i := 0; i < len(line); {
		if line[i] != '@' {
			b.WriteByte(line[i])
			i++
			continue
		}
		j := i + 1
		for j < len(line) && isNameByte(line[j]) {
			j++
		}
		name := line[i+1 : j]
		operand, ok := p.rawOperand(name)
		if !ok {
			operand = "???" + name + "???"
			notes = append(notes, "@"+name+" unresolved")
		} else {
			notes = append(notes, "@"+name+" -> "+operand)
		}
		b.WriteString(operand)
		i = j
	}
	return b.String(), notes
}

// rawOperand maps a placeholder name to an assembler operand: frame
// variables to frame-relative addresses, register parameters to their
// register, constants to immediates, globals to their symbol.
func (p *procGen) rawOperand(name string) (string, bool) {
	if slot, ok := p.frame.Lookup(name); ok {
		if slot.InReg() {
			return slot.Reg.String(), true
		}
		return p.frame.Operand(slot), true
	}
	if v, ok := p.gen.tab.ConstValue(name); ok {
		return "#" + strconv.Itoa(v), true
	}
	if _, ok := p.gen.tab.GlobalType(name); ok {
		return name, true
	}
	return "", false
}

func isNameByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
