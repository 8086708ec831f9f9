package lexer

import (
	"minic/pkg/token"
)

const (
	// MaxIdent is the longest identifier token. A longer name is split: the
	// bytes after MaxIdent start the next token.
	MaxIdent = 31
	// MaxString is the longest string literal text kept.
	MaxString = 63
)

// twoChar lists the compound operators. They are matched before their
// one-character prefixes.
var twoChar = map[string]token.TokenType{
	"++": token.PLUS_PLUS,
	"--": token.MINUS_MINUS,
	"*=": token.ASTERISK_ASSIGN,
	"/=": token.SLASH_ASSIGN,
	"%=": token.PERCENT_ASSIGN,
	"==": token.EQ,
	"!=": token.NOT_EQ,
	"<=": token.LTE,
	">=": token.GTE,
	"&&": token.AND,
	"||": token.OR,
	"+=": token.PLUS_ASSIGN,
	"-=": token.MINUS_ASSIGN,
	"<<": token.SHL,
	">>": token.SHR,
	"&=": token.AMP_ASSIGN,
	"|=": token.PIPE_ASSIGN,
	"^=": token.CARET_ASSIGN,
}

var oneChar = map[byte]token.TokenType{
	'+': token.PLUS,
	'-': token.MINUS,
	'*': token.ASTERISK,
	'/': token.SLASH,
	'%': token.PERCENT,
	'<': token.LT,
	'>': token.GT,
	'!': token.BANG,
	'=': token.ASSIGN,
	'&': token.AMP,
	'|': token.PIPE,
	'^': token.CARET,
	'(': token.LPAREN,
	')': token.RPAREN,
	'{': token.LBRACE,
	'}': token.RBRACE,
	'[': token.LBRACKET,
	']': token.RBRACKET,
	',': token.COMMA,
	';': token.SEMICOLON,
}

type Lexer struct {
	input    string
	position int // next unread byte
}

func New(input string) *Lexer {
	return &Lexer{input: input}
}

// Position returns the byte offset of the next unread byte.
func (l *Lexer) Position() int {
	return l.position
}

func (l *Lexer) peek(n int) byte {
	if l.position+n >= len(l.input) {
		return 0
	}
	return l.input[l.position+n]
}

func (l *Lexer) NextToken() token.Token {
	l.skipSpaceAndComments()

	start := l.position
	ch := l.peek(0)

	switch {
	case l.position >= len(l.input) || ch == 0:
		return token.Token{Type: token.END, Offset: start}

	case isDigit(ch):
		var v int32
		for isDigit(l.peek(0)) {
			// int32 arithmetic wraps like the device's native arithmetic
			v = v*10 + int32(l.peek(0)-'0')
			l.position++
		}
		return token.Token{Type: token.INT, Literal: l.input[start:l.position], Value: v, Offset: start}

	case isLetter(ch):
		for (isLetter(l.peek(0)) || isDigit(l.peek(0))) && l.position-start < MaxIdent {
			l.position++
		}
		ident := l.input[start:l.position]
		return token.Token{Type: token.LookupIdent(ident), Literal: ident, Offset: start}

	case ch == '"':
		return l.readString(start)
	}

	if l.position+1 < len(l.input) {
		if t, ok := twoChar[l.input[l.position:l.position+2]]; ok {
			l.position += 2
			return token.Token{Type: t, Literal: l.input[start:l.position], Offset: start}
		}
	}

	l.position++
	if t, ok := oneChar[ch]; ok {
		return token.Token{Type: t, Literal: string(ch), Offset: start}
	}

	// Unknown characters end the stream instead of raising a lexical error.
	return token.Token{Type: token.END, Literal: string(ch), Offset: start}
}

func (l *Lexer) skipSpaceAndComments() {
	for l.position < len(l.input) {
		ch := l.input[l.position]
		switch {
		case isSpace(ch):
			l.position++
		case ch == '/' && l.peek(1) == '/':
			for l.position < len(l.input) && l.input[l.position] != '\n' {
				l.position++
			}
		default:
			return
		}
	}
}

// readString reads a double-quoted literal. There are no escapes, text past
// MaxString is dropped, and a missing closing quote is accepted.
func (l *Lexer) readString(start int) token.Token {
	l.position++ // opening quote
	begin := l.position
	for l.position < len(l.input) && l.input[l.position] != '"' && l.input[l.position] != 0 {
		l.position++
	}
	text := l.input[begin:l.position]
	if len(text) > MaxString {
		text = text[:MaxString]
	}
	if l.position < len(l.input) && l.input[l.position] == '"' {
		l.position++
	}
	return token.Token{Type: token.STRING, Literal: text, Offset: start}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\v' || ch == '\f'
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
