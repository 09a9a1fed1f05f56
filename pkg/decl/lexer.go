package decl

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes a declaration string.
type Lexer struct {
	input    string
	pos      int // current byte offset
	col      int // current column (1-based, runes)
	startPos int
	startCol int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, col: 1}
}

// Tokenize converts the input into a slice of tokens ending with TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) nextToken() (Token, error) {
	l.skipWhitespace()
	l.markStart()

	if l.pos >= len(l.input) {
		return l.emit(TokenEOF, ""), nil
	}

	if l.matchString("//") {
		l.advance()
		l.advance()
		text := strings.TrimSpace(l.input[l.pos:])
		for l.pos < len(l.input) {
			l.advance()
		}
		return l.emit(TokenComment, text), nil
	}
	if l.matchString("->") {
		l.advance()
		l.advance()
		return l.emit(TokenArrow, "->"), nil
	}

	r := l.peek()
	switch r {
	case '!':
		l.advance()
		return l.emit(TokenBang, "!"), nil
	case '#':
		l.advance()
		return l.emit(TokenHash, "#"), nil
	case '[':
		l.advance()
		return l.emit(TokenLBracket, "["), nil
	case ']':
		l.advance()
		return l.emit(TokenRBracket, "]"), nil
	case '(':
		l.advance()
		return l.emit(TokenLParen, "("), nil
	case ')':
		l.advance()
		return l.emit(TokenRParen, ")"), nil
	case ',':
		l.advance()
		return l.emit(TokenComma, ","), nil
	case '.':
		l.advance()
		return l.emit(TokenDot, "."), nil
	case '+':
		l.advance()
		return l.emit(TokenPlus, "+"), nil
	}

	switch {
	case isDigit(r):
		for l.pos < len(l.input) && isDigit(l.peek()) {
			l.advance()
		}
		return l.emit(TokenNumber, l.input[l.startPos:l.pos]), nil
	case isIdentStart(r):
		for l.pos < len(l.input) && isIdentPart(l.peek()) {
			l.advance()
		}
		return l.emit(TokenIdent, l.input[l.startPos:l.pos]), nil
	}

	if r == '-' {
		return Token{}, NewLexError(l.input, l.startPosition(), "expected '->' after '-'")
	}
	return Token{}, NewLexError(l.input, l.startPosition(), "unexpected character "+quoteRune(r))
}

func (l *Lexer) emit(t TokenType, value string) Token {
	return Token{Type: t, Value: value, Pos: l.startPosition()}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	_, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	l.col++
}

func (l *Lexer) matchString(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

func (l *Lexer) markStart() {
	l.startPos = l.pos
	l.startCol = l.col
}

func (l *Lexer) startPosition() Position {
	return Position{Offset: l.startPos, Column: l.startCol}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return isIdentStart(r) || unicode.IsDigit(r) }

func quoteRune(r rune) string {
	return "'" + string(r) + "'"
}
