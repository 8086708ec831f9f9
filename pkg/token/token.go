package token

import "fmt"

type TokenType string

const (
	// Special
	END = "END"

	// Identifiers & Literals
	IDENT  = "IDENT"
	INT    = "INT"
	STRING = "STRING"

	// Operators
	PLUS     = "+"
	MINUS    = "-"
	ASTERISK = "*"
	SLASH    = "/"
	PERCENT  = "%"
	BANG     = "!"

	PLUS_PLUS   = "++"
	MINUS_MINUS = "--"

	AMP   = "&"
	PIPE  = "|"
	CARET = "^"
	SHL   = "<<"
	SHR   = ">>"

	LT     = "<"
	GT     = ">"
	EQ     = "=="
	NOT_EQ = "!="
	LTE    = "<="
	GTE    = ">="

	AND = "&&"
	OR  = "||"

	ASSIGN          = "="
	PLUS_ASSIGN     = "+="
	MINUS_ASSIGN    = "-="
	ASTERISK_ASSIGN = "*="
	SLASH_ASSIGN    = "/="
	PERCENT_ASSIGN  = "%="
	AMP_ASSIGN      = "&="
	PIPE_ASSIGN     = "|="
	CARET_ASSIGN    = "^="

	// Delimiters
	COMMA     = ","
	SEMICOLON = ";"
	LPAREN    = "("
	RPAREN    = ")"
	LBRACE    = "{"
	RBRACE    = "}"
	LBRACKET  = "["
	RBRACKET  = "]"

	// Keywords
	IF       = "IF"
	ELSE     = "ELSE"
	WHILE    = "WHILE"
	FOR      = "FOR"
	RETURN   = "RETURN"
	BREAK    = "BREAK"
	CONTINUE = "CONTINUE"
	FUNC     = "FUNC"
	VAR      = "VAR"
	CALL     = "CALL"
	CONST    = "CONST"
	INT8     = "INT8"
	INT16    = "INT16"
	INT32    = "INT32"
	BOOL     = "BOOL"
	STRING_T = "STRING_T"
	TRUE     = "TRUE"
	FALSE    = "FALSE"
)

// Token is the lexer's single pending lexeme. Value holds the numeric payload
// of INT tokens; Literal holds identifier and string text.
type Token struct {
	Type    TokenType
	Literal string
	Value   int32
	Offset  int
}

func (t Token) String() string {
	return fmt.Sprintf("Token(%s, %q, @%d)", t.Type, t.Literal, t.Offset)
}

var keywords = map[string]TokenType{
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"for":      FOR,
	"return":   RETURN,
	"break":    BREAK,
	"continue": CONTINUE,
	"func":     FUNC,
	"var":      VAR,
	"call":     CALL,
	"const":    CONST,
	"int8":     INT8,
	"int16":    INT16,
	"int32":    INT32,
	"bool":     BOOL,
	"string":   STRING_T,
	"true":     TRUE,
	"false":    FALSE,
}

func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// IsType reports whether t starts a type keyword.
func IsType(t TokenType) bool {
	switch t {
	case INT8, INT16, INT32, BOOL, STRING_T:
		return true
	}
	return false
}

// IsAssign reports whether t is one of the assignment operators.
func IsAssign(t TokenType) bool {
	switch t {
	case ASSIGN, PLUS_ASSIGN, MINUS_ASSIGN, ASTERISK_ASSIGN, SLASH_ASSIGN,
		PERCENT_ASSIGN, AMP_ASSIGN, PIPE_ASSIGN, CARET_ASSIGN:
		return true
	}
	return false
}
