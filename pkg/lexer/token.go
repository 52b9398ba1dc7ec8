package lexer

// TokenType represents the type of a token
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenIllegal
	TokenNewline

	// Literals
	TokenIdent  // main, foo, x
	TokenInt    // 42, $ff, %1010, 'A'
	TokenString // "hello"

	// Keywords
	TokenProc
	TokenEndproc
	TokenVar
	TokenConst
	TokenStruct
	TokenEndstruct
	TokenExtern
	TokenExport
	TokenMacro
	TokenEndmacro
	TokenAsm
	TokenEndasm
	TokenIf
	TokenElse
	TokenEndif
	TokenWhile
	TokenEndwhile
	TokenDo
	TokenUntil
	TokenFor
	TokenTo
	TokenDownto
	TokenNext
	TokenBreak
	TokenContinue
	TokenReturn
	TokenIn
	TokenByte
	TokenWord
	TokenLong
	TokenPtr

	// Operators
	TokenPlus      // +
	TokenMinus     // -
	TokenStar      // *
	TokenSlash     // /
	TokenPercent   // %
	TokenAssign    // =
	TokenEq        // ==
	TokenNe        // !=
	TokenLt        // <
	TokenLe        // <=
	TokenGt        // >
	TokenGe        // >=
	TokenAnd       // &&
	TokenOr        // ||
	TokenNot       // !
	TokenAmpersand // &
	TokenPipe      // |
	TokenCaret     // ^
	TokenTilde     // ~
	TokenShl       // <<
	TokenShr       // >>

	// Delimiters
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenComma    // ,
	TokenColon    // :
	TokenDot      // .
	TokenArrow    // ->
	TokenAt       // @
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenIllegal:   "ILLEGAL",
	TokenNewline:   "NEWLINE",
	TokenIdent:     "IDENT",
	TokenInt:       "INT",
	TokenString:    "STRING",
	TokenProc:      "proc",
	TokenEndproc:   "endproc",
	TokenVar:       "var",
	TokenConst:     "const",
	TokenStruct:    "struct",
	TokenEndstruct: "endstruct",
	TokenExtern:    "extern",
	TokenExport:    "export",
	TokenMacro:     "macro",
	TokenEndmacro:  "endmacro",
	TokenAsm:       "asm",
	TokenEndasm:    "endasm",
	TokenIf:        "if",
	TokenElse:      "else",
	TokenEndif:     "endif",
	TokenWhile:     "while",
	TokenEndwhile:  "endwhile",
	TokenDo:        "do",
	TokenUntil:     "until",
	TokenFor:       "for",
	TokenTo:        "to",
	TokenDownto:    "downto",
	TokenNext:      "next",
	TokenBreak:     "break",
	TokenContinue:  "continue",
	TokenReturn:    "return",
	TokenIn:        "in",
	TokenByte:      "byte",
	TokenWord:      "word",
	TokenLong:      "long",
	TokenPtr:       "ptr",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenStar:      "*",
	TokenSlash:     "/",
	TokenPercent:   "%",
	TokenAssign:    "=",
	TokenEq:        "==",
	TokenNe:        "!=",
	TokenLt:        "<",
	TokenLe:        "<=",
	TokenGt:        ">",
	TokenGe:        ">=",
	TokenAnd:       "&&",
	TokenOr:        "||",
	TokenNot:       "!",
	TokenAmpersand: "&",
	TokenPipe:      "|",
	TokenCaret:     "^",
	TokenTilde:     "~",
	TokenShl:       "<<",
	TokenShr:       ">>",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenComma:     ",",
	TokenColon:     ":",
	TokenDot:       ".",
	TokenArrow:     "->",
	TokenAt:        "@",
}

// String returns a readable name for the token type
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

var keywords = map[string]TokenType{
	"proc":      TokenProc,
	"endproc":   TokenEndproc,
	"var":       TokenVar,
	"const":     TokenConst,
	"struct":    TokenStruct,
	"endstruct": TokenEndstruct,
	"extern":    TokenExtern,
	"export":    TokenExport,
	"macro":     TokenMacro,
	"endmacro":  TokenEndmacro,
	"asm":       TokenAsm,
	"endasm":    TokenEndasm,
	"if":        TokenIf,
	"else":      TokenElse,
	"endif":     TokenEndif,
	"while":     TokenWhile,
	"endwhile":  TokenEndwhile,
	"do":        TokenDo,
	"until":     TokenUntil,
	"for":       TokenFor,
	"to":        TokenTo,
	"downto":    TokenDownto,
	"next":      TokenNext,
	"break":     TokenBreak,
	"continue":  TokenContinue,
	"return":    TokenReturn,
	"in":        TokenIn,
	"byte":      TokenByte,
	"word":      TokenWord,
	"long":      TokenLong,
	"ptr":       TokenPtr,
}

// LookupIdent returns the keyword token type for an identifier,
// or TokenIdent if it is not a keyword.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdent
}

// Token represents a lexical token with position information
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}
