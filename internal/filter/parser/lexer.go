// Package parser provides the partition filter grammar: lexing, parsing into
// an immutable AST, and visitor-based traversal of that AST.
package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenIdent
	TokenNumber
	TokenString

	// Keywords
	TokenAnd
	TokenOr
	TokenNot
	TokenIn
	TokenLike
	TokenTrue
	TokenFalse

	// Operators
	TokenEq     // = or ==
	TokenNe     // <> or !=
	TokenLt     // <
	TokenGt     // >
	TokenLe     // <=
	TokenGe     // >=
	TokenComma  // ,
	TokenLParen // (
	TokenRParen // )
)

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // Byte offset in input
}

// String returns a string representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("Token{%s, %q, %d}", t.Type.String(), t.Literal, t.Pos)
}

// String returns the string representation of a TokenType.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return "ERROR"
	case TokenIdent:
		return "IDENT"
	case TokenNumber:
		return "NUMBER"
	case TokenString:
		return "STRING"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenNot:
		return "NOT"
	case TokenIn:
		return "IN"
	case TokenLike:
		return "LIKE"
	case TokenTrue:
		return "TRUE"
	case TokenFalse:
		return "FALSE"
	case TokenEq:
		return "="
	case TokenNe:
		return "!="
	case TokenLt:
		return "<"
	case TokenGt:
		return ">"
	case TokenLe:
		return "<="
	case TokenGe:
		return ">="
	case TokenComma:
		return ","
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	default:
		return "UNKNOWN"
	}
}

// keywords maps reserved words to their token types.
var keywords = map[string]TokenType{
	"AND":   TokenAnd,
	"OR":    TokenOr,
	"NOT":   TokenNot,
	"IN":    TokenIn,
	"LIKE":  TokenLike,
	"TRUE":  TokenTrue,
	"FALSE": TokenFalse,
}

// IsReserved reports whether name collides with a keyword and must be quoted
// to be used as an identifier.
func IsReserved(name string) bool {
	_, ok := keywords[strings.ToUpper(name)]
	return ok
}

// Lexer tokenizes filter input.
type Lexer struct {
	input   string
	pos     int  // Current position in input
	readPos int  // Reading position (after current char)
	ch      byte // Current character
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// readChar reads the next character and advances the position.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// skipWhitespace skips ASCII whitespace characters.
func (l *Lexer) skipWhitespace() {
	for l.ch < utf8.RuneSelf && unicode.IsSpace(rune(l.ch)) {
		l.readChar()
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	startPos := l.pos
	var tok Token

	if l.atEOF() {
		return Token{Type: TokenEOF, Literal: "", Pos: startPos}
	}

	switch l.ch {
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenEq, Literal: "==", Pos: startPos}
		} else {
			tok = Token{Type: TokenEq, Literal: "=", Pos: startPos}
		}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenLe, Literal: "<=", Pos: startPos}
		} else if l.peekChar() == '>' {
			l.readChar()
			tok = Token{Type: TokenNe, Literal: "<>", Pos: startPos}
		} else {
			tok = Token{Type: TokenLt, Literal: "<", Pos: startPos}
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenGe, Literal: ">=", Pos: startPos}
		} else {
			tok = Token{Type: TokenGt, Literal: ">", Pos: startPos}
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenNe, Literal: "!=", Pos: startPos}
		} else {
			tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
		}
	case ',':
		tok = Token{Type: TokenComma, Literal: ",", Pos: startPos}
	case '(':
		tok = Token{Type: TokenLParen, Literal: "(", Pos: startPos}
	case ')':
		tok = Token{Type: TokenRParen, Literal: ")", Pos: startPos}
	case '\'':
		return l.readString()
	case '`':
		return l.readQuotedIdentifier('`')
	case '[':
		return l.readQuotedIdentifier(']')
	case '-', '+':
		if isDigit(l.peekChar()) || l.peekChar() == '.' {
			return l.readNumber()
		}
		tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
	default:
		if isLetter(l.ch) || l.ch == '_' {
			return l.readIdentifier()
		} else if isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())) {
			return l.readNumber()
		} else {
			r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
			tok = Token{Type: TokenError, Literal: string(r), Pos: startPos}
		}
	}

	l.readChar()
	return tok
}

// readIdentifier reads a bare identifier or keyword.
func (l *Lexer) readIdentifier() Token {
	startPos := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '.' || l.ch == '$' || l.ch == '-' {
		l.readChar()
	}
	literal := l.input[startPos:l.pos]
	upper := strings.ToUpper(literal)

	if tokType, ok := keywords[upper]; ok {
		return Token{Type: tokType, Literal: upper, Pos: startPos}
	}

	return Token{Type: TokenIdent, Literal: literal, Pos: startPos}
}

// readQuotedIdentifier reads `name` or [name]. A doubled closing character
// inside the quotes stands for itself.
func (l *Lexer) readQuotedIdentifier(closing byte) Token {
	startPos := l.pos
	l.readChar() // Skip opening quote

	var sb strings.Builder
	for {
		if l.atEOF() {
			return Token{Type: TokenError, Literal: "unterminated quoted identifier", Pos: startPos}
		}
		if l.ch == closing {
			if l.peekChar() == closing {
				sb.WriteByte(closing)
				l.readChar()
				l.readChar()
				continue
			}
			break
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}
	l.readChar() // Skip closing quote

	if sb.Len() == 0 {
		return Token{Type: TokenError, Literal: "empty quoted identifier", Pos: startPos}
	}
	return Token{Type: TokenIdent, Literal: sb.String(), Pos: startPos}
}

// readNumber reads an integer or decimal literal with optional sign and exponent.
func (l *Lexer) readNumber() Token {
	startPos := l.pos
	if l.ch == '-' || l.ch == '+' {
		l.readChar()
	}

	hasDecimal := false
	digits := 0
	for isDigit(l.ch) || (l.ch == '.' && !hasDecimal) {
		if l.ch == '.' {
			hasDecimal = true
		} else {
			digits++
		}
		l.readChar()
	}
	if digits == 0 {
		return Token{Type: TokenError, Literal: "malformed number", Pos: startPos}
	}

	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '-' || next == '+' {
			l.readChar()
			if l.ch == '-' || l.ch == '+' {
				l.readChar()
			}
			if !isDigit(l.ch) {
				return Token{Type: TokenError, Literal: "malformed exponent", Pos: startPos}
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	// A number running straight into a letter (e.g. 2020ab) is not a number.
	if isLetter(l.ch) || l.ch == '_' {
		return Token{Type: TokenError, Literal: l.input[startPos : l.pos+1], Pos: startPos}
	}

	return Token{Type: TokenNumber, Literal: l.input[startPos:l.pos], Pos: startPos}
}

// readString reads a string literal enclosed in single quotes. Both '' and \'
// stand for an embedded quote; \\ stands for a backslash.
func (l *Lexer) readString() Token {
	startPos := l.pos
	l.readChar() // Skip opening quote

	var sb strings.Builder
	for {
		if l.atEOF() {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: startPos}
		}
		switch {
		case l.ch == '\'' && l.peekChar() == '\'':
			sb.WriteByte('\'')
			l.readChar()
		case l.ch == '\'':
			l.readChar() // Skip closing quote
			return Token{Type: TokenString, Literal: sb.String(), Pos: startPos}
		case l.ch == '\\' && (l.peekChar() == '\'' || l.peekChar() == '\\'):
			l.readChar()
			sb.WriteByte(l.ch)
		default:
			sb.WriteByte(l.ch)
		}
		l.readChar()
	}
}

// Tokenize returns all tokens from the input.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}

// isLetter returns true if the character is a letter.
func isLetter(ch byte) bool {
	return ch < utf8.RuneSelf && unicode.IsLetter(rune(ch))
}

// isDigit returns true if the character is a digit.
func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
