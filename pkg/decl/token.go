// Package decl parses compact property declarations such as
// "string(255)!" or "#Author.books" into structured descriptors.
package decl

import "fmt"

// TokenType identifies the type of token.
type TokenType int

// TokenType constants for declaration tokens.
const (
	TokenIllegal  TokenType = iota
	TokenIdent              // type or property name
	TokenNumber             // size literal
	TokenBang               // !
	TokenHash               // #
	TokenLBracket           // [
	TokenRBracket           // ]
	TokenLParen             // (
	TokenRParen             // )
	TokenComma              // ,
	TokenDot                // .
	TokenArrow              // ->
	TokenPlus               // +
	TokenComment            // // comment text
	TokenEOF
)

func (t TokenType) String() string {
	switch t {
	case TokenIdent:
		return "IDENT"
	case TokenNumber:
		return "NUMBER"
	case TokenBang:
		return "'!'"
	case TokenHash:
		return "'#'"
	case TokenLBracket:
		return "'['"
	case TokenRBracket:
		return "']'"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	case TokenComma:
		return "','"
	case TokenDot:
		return "'.'"
	case TokenArrow:
		return "'->'"
	case TokenPlus:
		return "'+'"
	case TokenComment:
		return "COMMENT"
	case TokenEOF:
		return "EOF"
	default:
		return "ILLEGAL"
	}
}

// Position is a location within a declaration string.
// Offset is 0-based, Column is 1-based and counts runes.
type Position struct {
	Offset int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("column %d", p.Column)
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Pos   Position
}

func (t Token) String() string {
	switch t.Type {
	case TokenIdent, TokenNumber:
		return fmt.Sprintf("%s %q", t.Type, t.Value)
	case TokenComment:
		return "comment"
	default:
		return t.Type.String()
	}
}
