package decl

import "fmt"

// Error is implemented by all declaration errors.
type Error interface {
	error
	Position() Position
}

type baseError struct {
	input string
	pos   Position
	msg   string
}

func (e *baseError) Position() Position { return e.pos }

func (e *baseError) Error() string {
	return fmt.Sprintf("%s in %q at %s", e.msg, e.input, e.pos)
}

// LexError is returned when the input contains a character sequence that
// does not form a token.
type LexError struct {
	baseError
}

// NewLexError creates a new lexer error.
func NewLexError(input string, pos Position, msg string) *LexError {
	return &LexError{baseError: baseError{input: input, pos: pos, msg: msg}}
}

// ParseError is returned when tokens appear in an order the grammar does
// not allow. Token is the offending token.
type ParseError struct {
	baseError
	Token Token
}

// NewParseErrorf creates a new parser error with formatting.
func NewParseErrorf(input string, tok Token, format string, args ...any) *ParseError {
	return &ParseError{
		baseError: baseError{input: input, pos: tok.Pos, msg: fmt.Sprintf(format, args...)},
		Token:     tok,
	}
}
