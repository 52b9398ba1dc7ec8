package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rozensoftware/hasm/pkg/ast"
	"github.com/rozensoftware/hasm/pkg/codegen"
	"github.com/rozensoftware/hasm/pkg/frame"
	"github.com/rozensoftware/hasm/pkg/lexer"
	"github.com/rozensoftware/hasm/pkg/parser"
	"github.com/rozensoftware/hasm/pkg/symtab"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "0.1.0"

// Debug flags for dumping intermediate results
var (
	dAST   bool
	dSym   bool
	dFrame bool
)

// Output options
var (
	outputPath string
)

// resetDebugFlags resets package-level flag variables between test runs
func resetDebugFlags() {
	dAST = false
	dSym = false
	dFrame = false
	outputPath = ""
}

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	return 0
}

// reportError prints a final diagnostic, in red when stderr is a terminal.
func reportError(errOut io.Writer, err error) {
	if f, ok := errOut.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(errOut, "hasmc: \033[31merror:\033[0m %v\n", err)
		return
	}
	fmt.Fprintf(errOut, "hasmc: error: %v\n", err)
}

// normalizeFlags converts traditional single-dash debug flags (-dast)
// to the double-dash form cobra expects (--dast).
func normalizeFlags(args []string) []string {
	debugFlags := map[string]bool{
		"-dast":   true,
		"-dsym":   true,
		"-dframe": true,
	}

	normalized := make([]string, 0, len(args))
	for _, arg := range args {
		if debugFlags[arg] {
			normalized = append(normalized, "-"+arg)
		} else {
			normalized = append(normalized, arg)
		}
	}
	return normalized
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hasmc [file]",
		Short: "hasmc compiles high-level assembly sources to 68000 assembly",
		Long: `hasmc translates structured high-level assembly (.ha) sources
into DevPac/vasm compatible 68000 assembly text. Procedures get
link/unlk frames, expressions are compiled through the data
registers, and embedded asm blocks pass through with @name
operands resolved against the enclosing frame.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			return compile(args[0], out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dAST, "dast", false, "Dump the parsed tree and exit")
	rootCmd.Flags().BoolVar(&dSym, "dsym", false, "Dump symbol tables and exit")
	rootCmd.Flags().BoolVar(&dFrame, "dframe", false, "Dump per-procedure frame layouts and exit")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default: input with .s extension, - for stdout)")

	return rootCmd
}

// compile runs the full pipeline on one source file.
func compile(filename string, out, errOut io.Writer) error {
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "hasmc: error reading %s: %v\n", filename, err)
		return err
	}

	l := lexer.New(string(source))
	p := parser.New(l)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(errOut, "%s: %s\n", filename, e)
		}
		return fmt.Errorf("parsing failed with %d errors", len(errs))
	}
	if errs := parser.Validate(prog); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(errOut, "%s: %s\n", filename, e)
		}
		return fmt.Errorf("validation failed with %d errors", len(errs))
	}

	if dAST {
		printer := ast.NewPrinter(out)
		printer.PrintProgram(prog)
		return nil
	}

	tab, err := symtab.Build(prog)
	if err != nil {
		return err
	}

	if dSym {
		return dumpSymbols(out, prog, tab)
	}
	if dFrame {
		return dumpFrames(out, prog, tab)
	}

	asmFile, err := codegen.Generate(prog, tab)
	if err != nil {
		return err
	}
	asmFile.SourceName = filepath.Base(filename)
	asmFile.SourceHash = xxhash.Sum64(source)

	if outputPath == "-" {
		return asmFile.WriteTo(out)
	}

	outputFilename := outputPath
	if outputFilename == "" {
		outputFilename = assemblyOutputFilename(filename)
	}
	outFile, err := os.Create(outputFilename)
	if err != nil {
		fmt.Fprintf(errOut, "hasmc: error creating %s: %v\n", outputFilename, err)
		return err
	}
	defer outFile.Close()

	return asmFile.WriteTo(outFile)
}

// assemblyOutputFilename returns the default output name: input.ha -> input.s
func assemblyOutputFilename(filename string) string {
	ext := ".ha"
	if strings.HasSuffix(filename, ext) {
		return filename[:len(filename)-len(ext)] + ".s"
	}
	return filename + ".s"
}

// dumpSymbols writes the built lookup tables in source order (-dsym).
func dumpSymbols(out io.Writer, prog *ast.Program, tab *symtab.Table) error {
	for _, c := range prog.Consts {
		if v, ok := tab.ConstValue(c.Name); ok {
			fmt.Fprintf(out, "const %s = %d\n", c.Name, v)
		}
	}
	for _, s := range prog.Structs {
		layout := tab.StructLayout(s.Name)
		if layout == nil {
			continue
		}
		fmt.Fprintf(out, "struct %s (%d bytes)\n", layout.Name, layout.Size)
		for _, f := range layout.Fields {
			fmt.Fprintf(out, "\t+%d\t%s: %s (%d bytes)\n", f.Offset, f.Name, ast.TypeString(f.Type), f.Size)
		}
	}
	for _, name := range prog.Externs {
		fmt.Fprintf(out, "extern %s\n", name)
	}
	for _, g := range prog.Globals {
		fmt.Fprintf(out, "var %s: %s (%d bytes)\n", g.Name, ast.TypeString(g.Type), tab.SizeOf(g.Type))
	}
	for _, proc := range prog.Procs {
		sig := tab.Signature(proc.Name)
		if sig == nil {
			continue
		}
		params := make([]string, len(sig.Params))
		for i, pa := range sig.Params {
			params[i] = fmt.Sprintf("%s: %s", pa.Name, ast.TypeString(pa.Type))
			if pa.InReg() {
				params[i] += " in " + pa.Reg.String()
			}
		}
		ret := ""
		if sig.HasResult {
			ret = ": long"
		}
		exported := ""
		if tab.IsExported(proc.Name) {
			exported = " [exported]"
		}
		fmt.Fprintf(out, "proc %s(%s)%s%s\n", sig.Name, strings.Join(params, ", "), ret, exported)
	}
	return nil
}

// dumpFrames writes each procedure's planned frame layout (-dframe).
func dumpFrames(out io.Writer, prog *ast.Program, tab *symtab.Table) error {
	for _, proc := range prog.Procs {
		fr, err := frame.Plan(proc, tab)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "proc %s: frame %s, %d bytes of locals\n", fr.Proc, fr.Reg, fr.LocalSize)
		for _, s := range fr.Slots() {
			kind := "local"
			if s.IsParam {
				kind = "param"
			}
			if s.InReg() {
				fmt.Fprintf(out, "\t%s\t%s: %s in %s\n", kind, s.Name, ast.TypeString(s.Type), s.Reg)
				continue
			}
			fmt.Fprintf(out, "\t%s\t%s: %s at %s\n", kind, s.Name, ast.TypeString(s.Type), fr.Operand(s))
		}
	}
	return nil
}
