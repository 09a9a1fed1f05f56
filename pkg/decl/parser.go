package decl

import (
	"strconv"
	"strings"
)

// Declaration is the structured form of a property declaration.
type Declaration struct {
	Type      string        // data type name, or target model for references
	Virtual   bool          // '#' reference declaration
	Multiple  bool          // '[]' suffix
	Required  bool          // '!'
	Generated bool          // '+'
	Size      *int          // first size argument
	Size2     *int          // second size argument
	Reverse   string        // '.reverse'
	Select    string        // '->select', dotted
	Path      []PathSegment // '(Type.prop->fwd ...)'
	Comment   string        // '// comment'
}

// PathSegment is one hop of an indirect reference path.
type PathSegment struct {
	Type     string
	Property string
	Forward  string
}

// String renders the declaration in canonical form. Parsing the result
// yields an equal Declaration.
func (d *Declaration) String() string {
	var sb strings.Builder
	if d.Virtual {
		sb.WriteByte('#')
	}
	sb.WriteString(d.Type)
	if d.Multiple {
		sb.WriteString("[]")
	}
	switch {
	case len(d.Path) > 0:
		sb.WriteByte('(')
		for i, seg := range d.Path {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(seg.Type)
			if seg.Property != "" {
				sb.WriteString("." + seg.Property)
			}
			if seg.Forward != "" {
				sb.WriteString("->" + seg.Forward)
			}
		}
		sb.WriteByte(')')
	case d.Size != nil:
		sb.WriteString("(" + strconv.Itoa(*d.Size))
		if d.Size2 != nil {
			sb.WriteString("," + strconv.Itoa(*d.Size2))
		}
		sb.WriteByte(')')
	}
	if d.Reverse != "" {
		sb.WriteString("." + d.Reverse)
	}
	if d.Select != "" {
		sb.WriteString("->" + d.Select)
	}
	if d.Required {
		sb.WriteByte('!')
	}
	if d.Generated {
		sb.WriteByte('+')
	}
	if d.Comment != "" {
		sb.WriteString(" // " + d.Comment)
	}
	return sb.String()
}

// Parse parses a single declaration string.
func Parse(input string) (*Declaration, error) {
	tokens, err := NewLexer(input).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens}
	return p.parse()
}

type parser struct {
	input  string
	tokens []Token
	pos    int
	decl   Declaration
}

func (p *parser) current() Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *parser) peekType(offset int) TokenType {
	i := p.pos + offset
	if i >= len(p.tokens) {
		return TokenEOF
	}
	return p.tokens[i].Type
}

func (p *parser) next() Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *parser) accept(t TokenType) bool {
	if p.current().Type == t {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(t TokenType, what string) (Token, error) {
	tok := p.current()
	if tok.Type != t {
		if tok.Type == TokenEOF {
			return tok, NewParseErrorf(p.input, tok, "expected %s, got end of input", what)
		}
		return tok, NewParseErrorf(p.input, tok, "expected %s, got %s", what, tok)
	}
	p.pos++
	return tok, nil
}

func (p *parser) parse() (*Declaration, error) {
	if p.accept(TokenBang) {
		p.decl.Required = true
	}
	if p.accept(TokenHash) {
		p.decl.Virtual = true
	}

	typ, err := p.expect(TokenIdent, "type name")
	if err != nil {
		return nil, err
	}
	p.decl.Type = typ.Value

	if p.current().Type == TokenLBracket {
		p.next()
		if _, err := p.expect(TokenRBracket, "']'"); err != nil {
			return nil, err
		}
		p.decl.Multiple = true
	}

	if p.current().Type == TokenLParen {
		if err := p.parseParens(); err != nil {
			return nil, err
		}
	}

	if err := p.parseTail(); err != nil {
		return nil, err
	}
	return &p.decl, nil
}

func (p *parser) parseParens() error {
	open := p.next()
	switch p.current().Type {
	case TokenNumber:
		return p.parseSize(open)
	case TokenIdent:
		return p.parsePath(open)
	case TokenRParen:
		return NewParseErrorf(p.input, p.current(), "empty parentheses")
	case TokenEOF:
		return NewParseErrorf(p.input, open, "unclosed '('")
	default:
		return NewParseErrorf(p.input, p.current(), "expected size or path, got %s", p.current())
	}
}

func (p *parser) parseSize(open Token) error {
	size, err := p.number()
	if err != nil {
		return err
	}
	p.decl.Size = &size

	if p.accept(TokenComma) {
		size2, err := p.number()
		if err != nil {
			return err
		}
		p.decl.Size2 = &size2
	}
	return p.closeParen(open)
}

func (p *parser) number() (int, error) {
	tok, err := p.expect(TokenNumber, "size")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok.Value)
	if err != nil {
		return 0, NewParseErrorf(p.input, tok, "invalid size %s", tok.Value)
	}
	if n <= 0 {
		return 0, NewParseErrorf(p.input, tok, "size must be positive")
	}
	return n, nil
}

func (p *parser) parsePath(open Token) error {
	for p.current().Type == TokenIdent {
		seg := PathSegment{Type: p.next().Value}
		if p.accept(TokenDot) {
			prop, err := p.expect(TokenIdent, "path property")
			if err != nil {
				return err
			}
			seg.Property = prop.Value
		}
		if p.accept(TokenArrow) {
			fwd, err := p.expect(TokenIdent, "forward property")
			if err != nil {
				return err
			}
			seg.Forward = fwd.Value
		}
		p.decl.Path = append(p.decl.Path, seg)
	}
	return p.closeParen(open)
}

func (p *parser) closeParen(open Token) error {
	tok := p.current()
	if tok.Type == TokenRParen {
		p.next()
		return nil
	}
	if tok.Type == TokenEOF {
		return NewParseErrorf(p.input, open, "unclosed '('")
	}
	return NewParseErrorf(p.input, tok, "expected ')', got %s", tok)
}

// parseTail consumes the reverse property, select property, flags and
// comment. Flags may appear before or after the reverse/select parts.
func (p *parser) parseTail() error {
	for {
		tok := p.current()
		switch tok.Type {
		case TokenBang:
			if p.decl.Required {
				return NewParseErrorf(p.input, tok, "duplicate '!'")
			}
			p.next()
			p.decl.Required = true
		case TokenPlus:
			if p.decl.Generated {
				return NewParseErrorf(p.input, tok, "duplicate '+'")
			}
			p.next()
			p.decl.Generated = true
		case TokenDot:
			if p.decl.Reverse != "" || p.decl.Select != "" {
				return NewParseErrorf(p.input, tok, "unexpected %s", tok)
			}
			p.next()
			name, err := p.expect(TokenIdent, "reverse property")
			if err != nil {
				return err
			}
			p.decl.Reverse = name.Value
		case TokenArrow:
			if p.decl.Select != "" {
				return NewParseErrorf(p.input, tok, "unexpected %s", tok)
			}
			p.next()
			sel, err := p.dottedName("select property")
			if err != nil {
				return err
			}
			p.decl.Select = sel
		case TokenComment:
			p.next()
			p.decl.Comment = tok.Value
			if end := p.current(); end.Type != TokenEOF {
				return NewParseErrorf(p.input, end, "unexpected %s after comment", end)
			}
		case TokenEOF:
			return nil
		default:
			return NewParseErrorf(p.input, tok, "unexpected %s", tok)
		}
	}
}

func (p *parser) dottedName(what string) (string, error) {
	first, err := p.expect(TokenIdent, what)
	if err != nil {
		return "", err
	}
	parts := []string{first.Value}
	for p.current().Type == TokenDot && p.peekType(1) == TokenIdent {
		p.next()
		parts = append(parts, p.next().Value)
	}
	return strings.Join(parts, "."), nil
}
