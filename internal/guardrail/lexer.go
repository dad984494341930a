package guardrail

import (
	"strings"
	"unicode"
)

// TokenType identifies lexical tokens produced by the SQL lexer.
type TokenType int

const (
	EOF TokenType = iota
	Illegal
	Ident
	Number
	String
	Comma
	LParen
	RParen
	Dot
	Semicolon
	Star
	Operator
	Param
)

var tokenNames = map[TokenType]string{
	EOF:       "EOF",
	Illegal:   "Illegal",
	Ident:     "Ident",
	Number:    "Number",
	String:    "String",
	Comma:     "Comma",
	LParen:    "LParen",
	RParen:    "RParen",
	Dot:       "Dot",
	Semicolon: "Semicolon",
	Star:      "Star",
	Operator:  "Operator",
	Param:     "Param",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Token is a lexical item. Pos and End are rune offsets of the token in the
// input. Quoted identifiers keep their unquoted text in Literal.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
	End     int
	Quoted  bool
}

// Keyword returns the upper-cased literal of an unquoted identifier, or ""
// for anything else. Quoted identifiers are never keywords.
func (t Token) Keyword() string {
	if t.Type != Ident || t.Quoted {
		return ""
	}
	return strings.ToUpper(t.Literal)
}

// Is reports whether the token is the given (upper-case) keyword
func (t Token) Is(keyword string) bool {
	return t.Keyword() == keyword
}

// Lexer performs tokenisation over the input SQL string. Comments are
// skipped; whitespace is insignificant.
type Lexer struct {
	input []rune
	pos   int
}

// NewLexer initialises a lexer for the provided SQL source.
func NewLexer(input string) *Lexer {
	return &Lexer{input: []rune(input)}
}

// Tokenize returns every token of the input, excluding the trailing EOF
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.Next()
		if tok.Type == EOF {
			return tokens
		}
		tok.End = l.pos
		tokens = append(tokens, tok)
	}
}

// Next returns the next token from the stream.
func (l *Lexer) Next() Token {
	l.skipWhitespaceAndComments()
	if l.pos >= len(l.input) {
		return Token{Type: EOF, Pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]
	switch ch {
	case ',':
		l.pos++
		return Token{Type: Comma, Literal: ",", Pos: start}
	case '(':
		l.pos++
		return Token{Type: LParen, Literal: "(", Pos: start}
	case ')':
		l.pos++
		return Token{Type: RParen, Literal: ")", Pos: start}
	case ';':
		l.pos++
		return Token{Type: Semicolon, Literal: ";", Pos: start}
	case '*':
		l.pos++
		return Token{Type: Star, Literal: "*", Pos: start}
	case '.':
		if l.peekIsDigit(1) {
			return l.scanNumber()
		}
		l.pos++
		return Token{Type: Dot, Literal: ".", Pos: start}
	case '\'':
		return l.scanString()
	case '"', '`':
		return l.scanQuotedIdent(ch)
	case '?':
		l.pos++
		return Token{Type: Param, Literal: "?", Pos: start}
	case '$':
		if l.peekIsDigit(1) {
			l.pos++
			for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
				l.pos++
			}
			return Token{Type: Param, Literal: string(l.input[start:l.pos]), Pos: start}
		}
	}

	if isOperatorRune(ch) {
		for l.pos < len(l.input) && isOperatorRune(l.input[l.pos]) {
			// A comment start ends the operator run
			if l.startsComment() {
				break
			}
			l.pos++
		}
		return Token{Type: Operator, Literal: string(l.input[start:l.pos]), Pos: start}
	}
	if unicode.IsLetter(ch) || ch == '_' {
		return l.scanIdentifier()
	}
	if unicode.IsDigit(ch) {
		return l.scanNumber()
	}

	l.pos++
	return Token{Type: Illegal, Literal: string(ch), Pos: start}
}

func isOperatorRune(ch rune) bool {
	return strings.ContainsRune("=<>!+-/%|&^~:@", ch)
}

func (l *Lexer) peekIsDigit(offset int) bool {
	i := l.pos + offset
	return i < len(l.input) && unicode.IsDigit(l.input[i])
}

func (l *Lexer) startsComment() bool {
	if l.pos >= len(l.input) {
		return false
	}
	ch := l.input[l.pos]
	if ch == '#' {
		return true
	}
	if l.pos+1 < len(l.input) {
		next := l.input[l.pos+1]
		return (ch == '-' && next == '-') || (ch == '/' && next == '*')
	}
	return false
}

func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case unicode.IsSpace(ch):
			l.pos++
		case ch == '#' || (ch == '-' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '-'):
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		case ch == '/' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '*':
			l.pos += 2
			for l.pos < len(l.input) {
				if l.input[l.pos] == '*' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '/' {
					l.pos += 2
					break
				}
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *Lexer) scanIdentifier() Token {
	start := l.pos
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '$' {
			l.pos++
			continue
		}
		break
	}
	return Token{Type: Ident, Literal: string(l.input[start:l.pos]), Pos: start}
}

func (l *Lexer) scanNumber() Token {
	start := l.pos
	seenDot := false
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case unicode.IsDigit(ch):
			l.pos++
		case ch == '.' && !seenDot:
			seenDot = true
			l.pos++
		case (ch == 'e' || ch == 'E') && l.pos > start:
			next := l.pos + 1
			if next < len(l.input) && (l.input[next] == '+' || l.input[next] == '-') {
				next++
			}
			if next < len(l.input) && unicode.IsDigit(l.input[next]) {
				l.pos = next
				for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
					l.pos++
				}
			}
			return Token{Type: Number, Literal: string(l.input[start:l.pos]), Pos: start}
		default:
			return Token{Type: Number, Literal: string(l.input[start:l.pos]), Pos: start}
		}
	}
	return Token{Type: Number, Literal: string(l.input[start:l.pos]), Pos: start}
}

// scanString reads a single-quoted literal; a doubled quote is an escaped
// quote. An unterminated literal runs to the end of input.
func (l *Lexer) scanString() Token {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\'' {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '\'' {
				sb.WriteRune('\'')
				l.pos += 2
				continue
			}
			l.pos++
			return Token{Type: String, Literal: sb.String(), Pos: start}
		}
		sb.WriteRune(ch)
		l.pos++
	}
	return Token{Type: String, Literal: sb.String(), Pos: start}
}

// scanQuotedIdent reads a "double-quoted" or `backticked` identifier.
// Doubling the quote escapes it.
func (l *Lexer) scanQuotedIdent(quote rune) Token {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == quote {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == quote {
				sb.WriteRune(quote)
				l.pos += 2
				continue
			}
			l.pos++
			return Token{Type: Ident, Literal: sb.String(), Pos: start, Quoted: true}
		}
		sb.WriteRune(ch)
		l.pos++
	}
	return Token{Type: Ident, Literal: sb.String(), Pos: start, Quoted: true}
}
