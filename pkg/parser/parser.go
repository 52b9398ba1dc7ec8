// Package parser implements a recursive descent parser for high-level
// assembly source, producing the validated tree consumed by code
// generation.
package parser

import (
	"fmt"
	"strconv"

	"github.com/rozensoftware/hasm/pkg/ast"
	"github.com/rozensoftware/hasm/pkg/lexer"
	"github.com/rozensoftware/hasm/pkg/m68k"
)

// Parser parses source code into an ast.Program
type Parser struct {
	l         *lexer.Lexer
	curToken  lexer.Token
	peekToken lexer.Token
	errors    []string
	consts    map[string]int
	structs   map[string]bool
}

// New creates a new Parser for the given lexer
func New(l *lexer.Lexer) *Parser {
	p := &Parser{
		l:       l,
		consts:  make(map[string]int),
		structs: make(map[string]bool),
	}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// Errors returns the list of parsing errors
func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, fmt.Sprintf("line %d, col %d: %s",
		p.curToken.Line, p.curToken.Column, msg))
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t lexer.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expect(t lexer.TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("expected %s, got %s", t, p.curToken.Type))
	return false
}

// expectEOL consumes the newline terminating a statement or directive
func (p *Parser) expectEOL() {
	switch p.curToken.Type {
	case lexer.TokenNewline:
		p.nextToken()
	case lexer.TokenEOF:
		// fine
	default:
		p.addError(fmt.Sprintf("unexpected %s at end of line", p.curToken.Type))
		p.syncLine()
	}
}

// syncLine skips to the start of the next line after an error
func (p *Parser) syncLine() {
	for !p.curTokenIs(lexer.TokenNewline) && !p.curTokenIs(lexer.TokenEOF) {
		p.nextToken()
	}
	if p.curTokenIs(lexer.TokenNewline) {
		p.nextToken()
	}
}

func (p *Parser) skipNewlines() {
	for p.curTokenIs(lexer.TokenNewline) {
		p.nextToken()
	}
}

// ParseProgram parses a whole compilation unit
func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}

	for {
		p.skipNewlines()
		if p.curTokenIs(lexer.TokenEOF) {
			break
		}
		switch p.curToken.Type {
		case lexer.TokenConst:
			p.parseConst(prog)
		case lexer.TokenStruct:
			p.parseStruct(prog)
		case lexer.TokenExtern:
			prog.Externs = append(prog.Externs, p.parseNameList()...)
		case lexer.TokenExport:
			prog.Exports = append(prog.Exports, p.parseNameList()...)
		case lexer.TokenVar:
			p.parseGlobal(prog)
		case lexer.TokenMacro:
			p.parseMacro(prog)
		case lexer.TokenProc:
			if proc := p.parseProc(); proc != nil {
				prog.Procs = append(prog.Procs, proc)
			}
		default:
			p.addError(fmt.Sprintf("unexpected %s at top level", p.curToken.Type))
			p.syncLine()
		}
	}
	return prog
}

// --- Declarations ---

// parseConst parses: const NAME = expr
// The value must be computable at parse time from literals and
// previously declared constants.
func (p *Parser) parseConst(prog *ast.Program) {
	p.nextToken() // consume 'const'
	if !p.curTokenIs(lexer.TokenIdent) {
		p.addError("expected constant name")
		p.syncLine()
		return
	}
	name := p.curToken.Literal
	p.nextToken()
	if !p.expect(lexer.TokenAssign) {
		p.syncLine()
		return
	}
	expr := p.parseExpression()
	val, ok := p.evalConst(expr)
	if !ok {
		p.addError(fmt.Sprintf("constant %s is not a compile-time value", name))
	}
	p.consts[name] = val
	prog.Consts = append(prog.Consts, ast.Const{Name: name, Value: val})
	p.expectEOL()
}

// parseStruct parses a struct declaration block
func (p *Parser) parseStruct(prog *ast.Program) {
	p.nextToken() // consume 'struct'
	if !p.curTokenIs(lexer.TokenIdent) {
		p.addError("expected struct name")
		p.syncLine()
		return
	}
	def := ast.StructDef{Name: p.curToken.Literal}
	p.structs[def.Name] = true
	p.nextToken()
	p.expectEOL()

	for {
		p.skipNewlines()
		if p.curTokenIs(lexer.TokenEndstruct) || p.curTokenIs(lexer.TokenEOF) {
			break
		}
		if !p.curTokenIs(lexer.TokenIdent) {
			p.addError("expected field name")
			p.syncLine()
			continue
		}
		fieldName := p.curToken.Literal
		p.nextToken()
		if !p.expect(lexer.TokenColon) {
			p.syncLine()
			continue
		}
		ty := p.parseType()
		def.Fields = append(def.Fields, ast.Field{Name: fieldName, Type: ty})
		p.expectEOL()
	}
	p.expect(lexer.TokenEndstruct)
	p.expectEOL()
	prog.Structs = append(prog.Structs, def)
}

// parseNameList parses: extern a, b, c  (or export)
func (p *Parser) parseNameList() []string {
	p.nextToken() // consume directive keyword
	var names []string
	for {
		if !p.curTokenIs(lexer.TokenIdent) {
			p.addError("expected symbol name")
			p.syncLine()
			return names
		}
		names = append(names, p.curToken.Literal)
		p.nextToken()
		if !p.curTokenIs(lexer.TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expectEOL()
	return names
}

// parseGlobal parses: var name: type [= init]
func (p *Parser) parseGlobal(prog *ast.Program) {
	name, ty, ok := p.parseVarDecl()
	if !ok {
		return
	}
	g := ast.Global{Name: name, Type: ty}
	if p.curTokenIs(lexer.TokenAssign) {
		p.nextToken()
		if p.curTokenIs(lexer.TokenString) {
			g.Init = &ast.Init{IsString: true, Str: p.curToken.Literal}
			p.nextToken()
		} else {
			expr := p.parseExpression()
			val, evalOK := p.evalConst(expr)
			if !evalOK {
				p.addError(fmt.Sprintf("initializer for %s is not a compile-time value", name))
			}
			g.Init = &ast.Init{Value: val}
		}
	}
	p.expectEOL()
	prog.Globals = append(prog.Globals, g)
}

// parseVarDecl parses the "name: type" core of a var line,
// with 'var' as the current token.
func (p *Parser) parseVarDecl() (string, ast.Type, bool) {
	p.nextToken() // consume 'var'
	if !p.curTokenIs(lexer.TokenIdent) {
		p.addError("expected variable name")
		p.syncLine()
		return "", ast.Type{}, false
	}
	name := p.curToken.Literal
	p.nextToken()
	if !p.expect(lexer.TokenColon) {
		p.syncLine()
		return "", ast.Type{}, false
	}
	ty := p.parseType()
	return name, ty, true
}

// parseType parses: (byte|word|long|ptr|StructName) ('[' const ']')*
func (p *Parser) parseType() ast.Type {
	var ty ast.Type
	switch p.curToken.Type {
	case lexer.TokenByte:
		ty.Kind = ast.Byte
	case lexer.TokenWord:
		ty.Kind = ast.Word
	case lexer.TokenLong:
		ty.Kind = ast.Long
	case lexer.TokenPtr:
		ty.Kind = ast.Ptr
	case lexer.TokenIdent:
		ty.Kind = ast.Struct
		ty.StructName = p.curToken.Literal
		if !p.structs[ty.StructName] {
			p.addError(fmt.Sprintf("unknown type %s", ty.StructName))
		}
	default:
		p.addError(fmt.Sprintf("expected type, got %s", p.curToken.Type))
		return ty
	}
	p.nextToken()

	for p.curTokenIs(lexer.TokenLBracket) {
		p.nextToken()
		extent := p.parseExpression()
		val, ok := p.evalConst(extent)
		if !ok || val <= 0 {
			p.addError("array extent must be a positive compile-time value")
			val = 1
		}
		ty.Extents = append(ty.Extents, val)
		p.expect(lexer.TokenRBracket)
	}
	return ty
}

// parseMacro parses a macro definition block
func (p *Parser) parseMacro(prog *ast.Program) {
	p.nextToken() // consume 'macro'
	if !p.curTokenIs(lexer.TokenIdent) {
		p.addError("expected macro name")
		p.syncLine()
		return
	}
	def := ast.MacroDef{Name: p.curToken.Literal}
	p.nextToken()
	if !p.expect(lexer.TokenLParen) {
		p.syncLine()
		return
	}
	for !p.curTokenIs(lexer.TokenRParen) && !p.curTokenIs(lexer.TokenEOF) {
		if !p.curTokenIs(lexer.TokenIdent) {
			p.addError("expected macro parameter name")
			break
		}
		def.Params = append(def.Params, p.curToken.Literal)
		p.nextToken()
		if p.curTokenIs(lexer.TokenComma) {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRParen)
	p.expectEOL()
	def.Body = p.parseBlock(lexer.TokenEndmacro)
	p.expect(lexer.TokenEndmacro)
	p.expectEOL()
	prog.Macros = append(prog.Macros, def)
}

// parseProc parses a procedure definition
func (p *Parser) parseProc() *ast.Procedure {
	p.nextToken() // consume 'proc'
	if !p.curTokenIs(lexer.TokenIdent) {
		p.addError("expected procedure name")
		p.syncLine()
		return nil
	}
	proc := &ast.Procedure{Name: p.curToken.Literal}
	p.nextToken()
	if !p.expect(lexer.TokenLParen) {
		p.syncLine()
		return nil
	}
	for !p.curTokenIs(lexer.TokenRParen) && !p.curTokenIs(lexer.TokenEOF) {
		param, ok := p.parseParam()
		if !ok {
			p.syncLine()
			return nil
		}
		proc.Params = append(proc.Params, param)
		if p.curTokenIs(lexer.TokenComma) {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRParen)

	// Optional result annotation: proc f(...): long
	if p.curTokenIs(lexer.TokenColon) {
		p.nextToken()
		p.parseType()
		proc.HasResult = true
	}
	p.expectEOL()

	// Local declarations precede statements
	for {
		p.skipNewlines()
		if !p.curTokenIs(lexer.TokenVar) {
			break
		}
		name, ty, ok := p.parseVarDecl()
		if ok {
			proc.Locals = append(proc.Locals, ast.Local{Name: name, Type: ty})
			p.expectEOL()
		}
	}

	proc.Body = p.parseBlock(lexer.TokenEndproc)
	p.expect(lexer.TokenEndproc)
	p.expectEOL()
	return proc
}

// parseParam parses: name: type ['in' reg]
func (p *Parser) parseParam() (ast.Param, bool) {
	if !p.curTokenIs(lexer.TokenIdent) {
		p.addError("expected parameter name")
		return ast.Param{}, false
	}
	param := ast.Param{Name: p.curToken.Literal, Reg: m68k.None}
	p.nextToken()
	if !p.expect(lexer.TokenColon) {
		return ast.Param{}, false
	}
	param.Type = p.parseType()
	if p.curTokenIs(lexer.TokenIn) {
		p.nextToken()
		if !p.curTokenIs(lexer.TokenIdent) {
			p.addError("expected register name after 'in'")
			return ast.Param{}, false
		}
		reg, ok := m68k.ByName(p.curToken.Literal)
		if !ok {
			p.addError(fmt.Sprintf("unknown register %s", p.curToken.Literal))
			return ast.Param{}, false
		}
		if reg == m68k.SP {
			p.addError("a7 is the hardware stack pointer and cannot hold a parameter")
			return ast.Param{}, false
		}
		param.Reg = reg
		p.nextToken()
	}
	return param, true
}

// --- Statements ---

// parseBlock parses statements until one of the terminator tokens
func (p *Parser) parseBlock(terminators ...lexer.TokenType) []ast.Stmt {
	var stmts []ast.Stmt
	for {
		p.skipNewlines()
		if p.curTokenIs(lexer.TokenEOF) {
			return stmts
		}
		for _, t := range terminators {
			if p.curTokenIs(t) {
				return stmts
			}
		}
		if s := p.parseStatement(); s != nil {
			stmts = append(stmts, s)
		}
	}
}

func (p *Parser) parseStatement() ast.Stmt {
	switch p.curToken.Type {
	case lexer.TokenIf:
		return p.parseIf()
	case lexer.TokenWhile:
		return p.parseWhile()
	case lexer.TokenDo:
		return p.parseDoUntil()
	case lexer.TokenFor:
		return p.parseFor()
	case lexer.TokenBreak:
		p.nextToken()
		p.expectEOL()
		return ast.Break{}
	case lexer.TokenContinue:
		p.nextToken()
		p.expectEOL()
		return ast.Continue{}
	case lexer.TokenReturn:
		return p.parseReturn()
	case lexer.TokenAsm:
		return p.parseRaw()
	case lexer.TokenVar:
		p.addError("local declarations must precede statements")
		p.syncLine()
		return nil
	case lexer.TokenIdent, lexer.TokenStar:
		return p.parseSimpleStatement()
	default:
		p.addError(fmt.Sprintf("unexpected %s at start of statement", p.curToken.Type))
		p.syncLine()
		return nil
	}
}

func (p *Parser) parseIf() ast.Stmt {
	p.nextToken() // consume 'if'
	cond := p.parseExpression()
	p.expectEOL()
	then := p.parseBlock(lexer.TokenElse, lexer.TokenEndif)

	var elseStmts []ast.Stmt
	if p.curTokenIs(lexer.TokenElse) {
		p.nextToken()
		p.expectEOL()
		elseStmts = p.parseBlock(lexer.TokenEndif)
		if elseStmts == nil {
			elseStmts = []ast.Stmt{}
		}
	}
	p.expect(lexer.TokenEndif)
	p.expectEOL()
	return ast.If{Cond: cond, Then: then, Else: elseStmts}
}

func (p *Parser) parseWhile() ast.Stmt {
	p.nextToken() // consume 'while'
	cond := p.parseExpression()
	p.expectEOL()
	body := p.parseBlock(lexer.TokenEndwhile)
	p.expect(lexer.TokenEndwhile)
	p.expectEOL()
	return ast.While{Cond: cond, Body: body}
}

func (p *Parser) parseDoUntil() ast.Stmt {
	p.nextToken() // consume 'do'
	p.expectEOL()
	body := p.parseBlock(lexer.TokenUntil)
	if !p.expect(lexer.TokenUntil) {
		return nil
	}
	cond := p.parseExpression()
	p.expectEOL()
	return ast.DoUntil{Body: body, Cond: cond}
}

func (p *Parser) parseFor() ast.Stmt {
	p.nextToken() // consume 'for'
	if !p.curTokenIs(lexer.TokenIdent) {
		p.addError("expected loop variable")
		p.syncLine()
		return nil
	}
	loop := ast.For{Var: p.curToken.Literal}
	p.nextToken()
	if !p.expect(lexer.TokenAssign) {
		p.syncLine()
		return nil
	}
	loop.From = p.parseExpression()
	switch p.curToken.Type {
	case lexer.TokenTo:
		p.nextToken()
	case lexer.TokenDownto:
		loop.Down = true
		p.nextToken()
	default:
		p.addError(fmt.Sprintf("expected 'to' or 'downto', got %s", p.curToken.Type))
		p.syncLine()
		return nil
	}
	loop.To = p.parseExpression()
	p.expectEOL()
	loop.Body = p.parseBlock(lexer.TokenNext)
	p.expect(lexer.TokenNext)
	p.expectEOL()
	return loop
}

func (p *Parser) parseReturn() ast.Stmt {
	p.nextToken() // consume 'return'
	if p.curTokenIs(lexer.TokenNewline) || p.curTokenIs(lexer.TokenEOF) {
		p.expectEOL()
		return ast.Return{}
	}
	value := p.parseExpression()
	p.expectEOL()
	return ast.Return{Value: value}
}

// parseRaw reads an inline raw-instruction block. The lines between
// asm and endasm are taken verbatim from the lexer, bypassing
// tokenization, since they are hand-written target code.
func (p *Parser) parseRaw() ast.Stmt {
	// curToken is 'asm'; the buffered peek token is its newline, and
	// the lexer is already positioned at the first raw line.
	if !p.peekTokenIs(lexer.TokenNewline) {
		p.addError("expected newline after asm")
	}
	raw := ast.Raw{}
	for {
		line, ok := p.l.ReadRawLine()
		if !ok {
			p.addError("unterminated asm block")
			break
		}
		if line == "endasm" {
			break
		}
		if line != "" {
			raw.Lines = append(raw.Lines, line)
		}
	}
	// Re-prime the token buffer from the position after the block
	p.curToken = p.l.NextToken()
	p.peekToken = p.l.NextToken()
	return raw
}

// parseSimpleStatement parses an assignment or a call statement
func (p *Parser) parseSimpleStatement() ast.Stmt {
	target := p.parseUnary()
	if p.curTokenIs(lexer.TokenAssign) {
		p.nextToken()
		value := p.parseExpression()
		p.expectEOL()
		return ast.Assign{Target: target, Value: value}
	}
	if call, ok := target.(ast.Call); ok {
		p.expectEOL()
		return ast.CallStmt{Name: call.Name, Args: call.Args}
	}
	p.addError("expected '=' or call")
	p.syncLine()
	return nil
}

// --- Expressions ---

// Binary operator precedence levels, lowest binding first.
var binaryLevels = []map[lexer.TokenType]ast.BinOp{
	{lexer.TokenOr: ast.LogOr},
	{lexer.TokenAnd: ast.LogAnd},
	{lexer.TokenPipe: ast.BitOr},
	{lexer.TokenCaret: ast.BitXor},
	{lexer.TokenAmpersand: ast.BitAnd},
	{lexer.TokenEq: ast.Eq, lexer.TokenNe: ast.Ne},
	{lexer.TokenLt: ast.Lt, lexer.TokenLe: ast.Le, lexer.TokenGt: ast.Gt, lexer.TokenGe: ast.Ge},
	{lexer.TokenShl: ast.Shl, lexer.TokenShr: ast.Shr},
	{lexer.TokenPlus: ast.Add, lexer.TokenMinus: ast.Sub},
	{lexer.TokenStar: ast.Mul, lexer.TokenSlash: ast.Div, lexer.TokenPercent: ast.Mod},
}

func (p *Parser) parseExpression() ast.Expr {
	return p.parseBinary(0)
}

func (p *Parser) parseBinary(level int) ast.Expr {
	if level >= len(binaryLevels) {
		return p.parseUnary()
	}
	left := p.parseBinary(level + 1)
	for {
		op, ok := binaryLevels[level][p.curToken.Type]
		if !ok {
			return left
		}
		p.nextToken()
		right := p.parseBinary(level + 1)
		left = ast.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() ast.Expr {
	switch p.curToken.Type {
	case lexer.TokenMinus:
		p.nextToken()
		return ast.Unary{Op: ast.Neg, X: p.parseUnary()}
	case lexer.TokenTilde:
		p.nextToken()
		return ast.Unary{Op: ast.BitNot, X: p.parseUnary()}
	case lexer.TokenNot:
		p.nextToken()
		return ast.Unary{Op: ast.Not, X: p.parseUnary()}
	case lexer.TokenStar:
		p.nextToken()
		return ast.Unary{Op: ast.Deref, X: p.parseUnary()}
	case lexer.TokenAmpersand:
		p.nextToken()
		return ast.Unary{Op: ast.AddrOf, X: p.parseUnary()}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	for {
		switch p.curToken.Type {
		case lexer.TokenLBracket:
			ident, ok := expr.(ast.Ident)
			if !ok {
				p.addError("only named arrays can be indexed")
				return expr
			}
			idx := ast.Index{Base: ident.Name}
			for p.curTokenIs(lexer.TokenLBracket) {
				p.nextToken()
				idx.Indices = append(idx.Indices, p.parseExpression())
				if !p.expect(lexer.TokenRBracket) {
					return expr
				}
			}
			expr = idx
		case lexer.TokenDot:
			p.nextToken()
			if !p.curTokenIs(lexer.TokenIdent) {
				p.addError("expected field name after '.'")
				return expr
			}
			expr = ast.Member{Base: expr, Field: p.curToken.Literal}
			p.nextToken()
		case lexer.TokenArrow:
			p.nextToken()
			if !p.curTokenIs(lexer.TokenIdent) {
				p.addError("expected field name after '->'")
				return expr
			}
			expr = ast.Member{Base: expr, Field: p.curToken.Literal, ViaPtr: true}
			p.nextToken()
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	switch p.curToken.Type {
	case lexer.TokenInt:
		val := parseIntLiteral(p.curToken.Literal)
		p.nextToken()
		return ast.IntLit{Value: val}
	case lexer.TokenIdent:
		name := p.curToken.Literal
		if p.peekTokenIs(lexer.TokenLParen) {
			p.nextToken() // consume name
			p.nextToken() // consume '('
			call := ast.Call{Name: name}
			for !p.curTokenIs(lexer.TokenRParen) && !p.curTokenIs(lexer.TokenEOF) {
				call.Args = append(call.Args, p.parseExpression())
				if p.curTokenIs(lexer.TokenComma) {
					p.nextToken()
				}
			}
			p.expect(lexer.TokenRParen)
			return call
		}
		p.nextToken()
		return ast.Ident{Name: name}
	case lexer.TokenLParen:
		p.nextToken()
		expr := p.parseExpression()
		p.expect(lexer.TokenRParen)
		return expr
	default:
		p.addError(fmt.Sprintf("unexpected %s in expression", p.curToken.Type))
		p.nextToken()
		return ast.IntLit{}
	}
}

// parseIntLiteral converts a numeric literal: decimal, $hex or %binary
func parseIntLiteral(lit string) int {
	var v int64
	var err error
	switch {
	case len(lit) > 1 && lit[0] == '$':
		v, err = strconv.ParseInt(lit[1:], 16, 64)
	case len(lit) > 1 && lit[0] == '%':
		v, err = strconv.ParseInt(lit[1:], 2, 64)
	default:
		v, err = strconv.ParseInt(lit, 10, 64)
	}
	if err != nil {
		return 0
	}
	return int(v)
}

// evalConst statically evaluates an expression over integer literals
// and previously declared constants.
func (p *Parser) evalConst(e ast.Expr) (int, bool) {
	switch ex := e.(type) {
	case ast.IntLit:
		return ex.Value, true
	case ast.Ident:
		v, ok := p.consts[ex.Name]
		return v, ok
	case ast.Unary:
		v, ok := p.evalConst(ex.X)
		if !ok {
			return 0, false
		}
		switch ex.Op {
		case ast.Neg:
			return -v, true
		case ast.BitNot:
			return ^v, true
		}
		return 0, false
	case ast.Binary:
		l, lok := p.evalConst(ex.Left)
		r, rok := p.evalConst(ex.Right)
		if !lok || !rok {
			return 0, false
		}
		switch ex.Op {
		case ast.Add:
			return l + r, true
		case ast.Sub:
			return l - r, true
		case ast.Mul:
			return l * r, true
		case ast.Div:
			if r == 0 {
				return 0, false
			}
			return l / r, true
		case ast.Shl:
			return l << uint(r), true
		case ast.Shr:
			return l >> uint(r), true
		case ast.BitAnd:
			return l & r, true
		case ast.BitOr:
			return l | r, true
		case ast.BitXor:
			return l ^ r, true
		}
		return 0, false
	}
	return 0, false
}
