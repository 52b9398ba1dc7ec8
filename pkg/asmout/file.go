// Package asmout models the generated assembler text: instruction
// lines partitioned into code, initialized-data and uninitialized-data
// sections, plus the import/export directives. The rendered output is
// plain text consumable by a standard assembler (vasm/DevPac syntax).
package asmout

import (
	"fmt"
	"io"
	"strings"
)

// File collects the output of one compilation unit.
type File struct {
	SourceName string
	SourceHash uint64 // xxhash-64 of the source text; 0 to omit

	imports []string
	exports []string
	code    []string
	data    []string
	bss     []string
}

// New creates an empty output file.
func New() *File {
	return &File{}
}

// Import declares an external symbol (XREF). Duplicates are dropped.
func (f *File) Import(name string) {
	for _, n := range f.imports {
		if n == name {
			return
		}
	}
	f.imports = append(f.imports, name)
}

// Export declares an exported symbol (XDEF). Duplicates are dropped.
func (f *File) Export(name string) {
	for _, n := range f.exports {
		if n == name {
			return
		}
	}
	f.exports = append(f.exports, name)
}

// Code appends lines to the code section.
func (f *File) Code(lines ...string) {
	f.code = append(f.code, lines...)
}

// Data appends lines to the initialized-data section.
func (f *File) Data(lines ...string) {
	f.data = append(f.data, lines...)
}

// Bss appends lines to the uninitialized-data section.
func (f *File) Bss(lines ...string) {
	f.bss = append(f.bss, lines...)
}

// CodeLines returns the code section for inspection in tests.
func (f *File) CodeLines() []string {
	return f.code
}

// WriteTo renders the complete output text: header, directives, then
// the code, data and bss sections in that order.
func (f *File) WriteTo(w io.Writer) error {
	var b strings.Builder

	if f.SourceName != "" {
		fmt.Fprintf(&b, "; generated by hasmc from %s", f.SourceName)
		if f.SourceHash != 0 {
			fmt.Fprintf(&b, " (xxh64 %016x)", f.SourceHash)
		}
		b.WriteString("\n")
	}
	for _, n := range f.exports {
		fmt.Fprintf(&b, "\tXDEF\t%s\n", n)
	}
	for _, n := range f.imports {
		fmt.Fprintf(&b, "\tXREF\t%s\n", n)
	}

	b.WriteString("\n\tSECTION\tcode,CODE\n")
	for _, line := range f.code {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(f.data) > 0 {
		b.WriteString("\n\tSECTION\tdata,DATA\n")
		for _, line := range f.data {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if len(f.bss) > 0 {
		b.WriteString("\n\tSECTION\tbss,BSS\n")
		for _, line := range f.bss {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Op formats one instruction line: tab, mnemonic, tab, operands.
func Op(mnemonic string, operands ...string) string {
	if len(operands) == 0 {
		return "\t" + mnemonic
	}
	return "\t" + mnemonic + "\t" + strings.Join(operands, ",")
}

// Label formats a label definition line.
func Label(name string) string {
	return name + ":"
}

// Comment formats a comment line.
func Comment(text string) string {
	return "\t; " + text
}

// WithComment appends a trailing comment to an instruction line.
func WithComment(line, text string) string {
	return line + "\t; " + text
}
