// Package lexer tokenizes high-level assembly source.
// The language is line-oriented: newlines terminate statements, so the
// lexer reports them as tokens instead of discarding them.
package lexer

import (
	"strconv"
	"strings"
)

// Lexer tokenizes source text
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // next reading position
	ch      byte // current character
	line    int
	column  int
}

// New creates a new Lexer for the given input
func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.column++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// NextToken returns the next token from the input
func (l *Lexer) NextToken() Token {
	l.skipBlanks()

	tok := Token{Line: l.line, Column: l.column}

	switch l.ch {
	case 0:
		tok.Type = TokenEOF
		tok.Literal = ""
	case '\n':
		tok.Type = TokenNewline
		tok.Literal = "\n"
		l.readChar()
		// Collapse consecutive blank lines into a single newline token
		for {
			l.skipBlanks()
			if l.ch != '\n' {
				break
			}
			l.readChar()
		}
		return tok
	case '+':
		tok = l.newToken(TokenPlus)
	case '-':
		if l.peekChar() == '>' {
			tok = l.twoCharToken(TokenArrow, "->")
		} else {
			tok = l.newToken(TokenMinus)
		}
	case '*':
		tok = l.newToken(TokenStar)
	case '/':
		tok = l.newToken(TokenSlash)
	case '=':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(TokenEq, "==")
		} else {
			tok = l.newToken(TokenAssign)
		}
	case '!':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(TokenNe, "!=")
		} else {
			tok = l.newToken(TokenNot)
		}
	case '<':
		switch l.peekChar() {
		case '=':
			tok = l.twoCharToken(TokenLe, "<=")
		case '<':
			tok = l.twoCharToken(TokenShl, "<<")
		default:
			tok = l.newToken(TokenLt)
		}
	case '>':
		switch l.peekChar() {
		case '=':
			tok = l.twoCharToken(TokenGe, ">=")
		case '>':
			tok = l.twoCharToken(TokenShr, ">>")
		default:
			tok = l.newToken(TokenGt)
		}
	case '&':
		if l.peekChar() == '&' {
			tok = l.twoCharToken(TokenAnd, "&&")
		} else {
			tok = l.newToken(TokenAmpersand)
		}
	case '|':
		if l.peekChar() == '|' {
			tok = l.twoCharToken(TokenOr, "||")
		} else {
			tok = l.newToken(TokenPipe)
		}
	case '^':
		tok = l.newToken(TokenCaret)
	case '~':
		tok = l.newToken(TokenTilde)
	case '(':
		tok = l.newToken(TokenLParen)
	case ')':
		tok = l.newToken(TokenRParen)
	case '[':
		tok = l.newToken(TokenLBracket)
	case ']':
		tok = l.newToken(TokenRBracket)
	case ',':
		tok = l.newToken(TokenComma)
	case ':':
		tok = l.newToken(TokenColon)
	case '.':
		tok = l.newToken(TokenDot)
	case '@':
		tok = l.newToken(TokenAt)
	case '"':
		tok.Type = TokenString
		tok.Literal = l.readString()
		return tok
	case '\'':
		tok.Type = TokenInt
		tok.Literal = l.readCharLiteral()
		return tok
	case '$':
		l.readChar()
		tok.Type = TokenInt
		tok.Literal = "$" + l.readWhile(isHexDigit)
		if tok.Literal == "$" {
			tok.Type = TokenIllegal
		}
		return tok
	case '%':
		if isBinDigit(l.peekChar()) {
			l.readChar()
			tok.Type = TokenInt
			tok.Literal = "%" + l.readWhile(isBinDigit)
			return tok
		}
		tok = l.newToken(TokenPercent)
	default:
		if isLetter(l.ch) {
			tok.Literal = l.readWhile(isIdentChar)
			tok.Type = LookupIdent(tok.Literal)
			return tok
		}
		if isDigit(l.ch) {
			tok.Type = TokenInt
			tok.Literal = l.readWhile(isDigit)
			return tok
		}
		tok.Type = TokenIllegal
		tok.Literal = string(l.ch)
	}

	l.readChar()
	return tok
}

// ReadRawLine reads the remainder of the current raw-instruction line,
// up to but not including the newline. The parser uses this between
// asm and endasm, where the content is hand-written target code that
// must not be tokenized. Returns the trimmed line and false at EOF.
func (l *Lexer) ReadRawLine() (string, bool) {
	if l.ch == 0 {
		return "", false
	}
	start := l.pos
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
	line := l.input[start:l.pos]
	if l.ch == '\n' {
		l.readChar()
	}
	// Strip trailing comment and whitespace; raw lines keep their own
	// operand commas and parens untouched.
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line), true
}

func (l *Lexer) newToken(t TokenType) Token {
	return Token{Type: t, Literal: string(l.ch), Line: l.line, Column: l.column}
}

func (l *Lexer) twoCharToken(t TokenType, lit string) Token {
	tok := Token{Type: t, Literal: lit, Line: l.line, Column: l.column}
	l.readChar()
	return tok
}

// skipBlanks skips spaces, tabs, carriage returns and comments,
// but never newlines.
func (l *Lexer) skipBlanks() {
	for {
		switch l.ch {
		case ' ', '\t', '\r':
			l.readChar()
		case ';':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readWhile(pred func(byte) bool) string {
	start := l.pos
	for pred(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readString() string {
	l.readChar() // consume opening quote
	start := l.pos
	for l.ch != '"' && l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
	s := l.input[start:l.pos]
	if l.ch == '"' {
		l.readChar()
	}
	return s
}

// readCharLiteral reads 'A' and returns its code as a decimal literal
func (l *Lexer) readCharLiteral() string {
	l.readChar() // consume opening quote
	var c byte
	if l.ch != 0 && l.ch != '\'' {
		c = l.ch
		l.readChar()
	}
	if l.ch == '\'' {
		l.readChar()
	}
	return strconv.Itoa(int(c))
}

func isLetter(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || ch >= 'a' && ch <= 'f' || ch >= 'A' && ch <= 'F'
}

func isBinDigit(ch byte) bool {
	return ch == '0' || ch == '1'
}

func isIdentChar(ch byte) bool {
	return isLetter(ch) || isDigit(ch)
}
