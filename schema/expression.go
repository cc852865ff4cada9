package schema

import (
	"fmt"
	"strings"
)

type ExpressionKind int

const (
	NumericValue ExpressionKind = iota
	BooleanValue
	StringValue
	ConstantValue
	FunctionValue
	ArrayValue
)

// Expression is an attribute argument or property value. Value holds the
// literal text for scalars and the function name for FunctionValue; Args holds
// function arguments or array elements.
type Expression struct {
	Kind  ExpressionKind
	Value string
	Args  []Expression
}

func String(s string) Expression { return Expression{Kind: StringValue, Value: s} }
func Number(s string) Expression { return Expression{Kind: NumericValue, Value: s} }
func Constant(s string) Expression { return Expression{Kind: ConstantValue, Value: s} }
func Array(vals ...Expression) Expression { return Expression{Kind: ArrayValue, Args: vals} }

func Boolean(b bool) Expression {
	if b {
		return Expression{Kind: BooleanValue, Value: "true"}
	}
	return Expression{Kind: BooleanValue, Value: "false"}
}

func Function(name string, args ...Expression) Expression {
	return Expression{Kind: FunctionValue, Value: name, Args: args}
}

// ConstantList builds an array of constants, as used by fields: [a, b].
func ConstantList(names ...string) Expression {
	vals := make([]Expression, len(names))
	for i, n := range names {
		vals[i] = Constant(n)
	}
	return Array(vals...)
}

// Render returns the canonical text form of the expression.
func (e Expression) Render() string {
	switch e.Kind {
	case StringValue:
		return quote(e.Value)
	case FunctionValue:
		return e.Value + "(" + renderList(e.Args) + ")"
	case ArrayValue:
		return "[" + renderList(e.Args) + "]"
	default:
		return e.Value
	}
}

func (e Expression) String() string {
	return e.Render()
}

// Equal compares two expressions by their canonical rendering.
func (e Expression) Equal(other Expression) bool {
	return e.Render() == other.Render()
}

// ConstantNames returns the names of a constant or an array of constants.
func (e Expression) ConstantNames() []string {
	switch e.Kind {
	case ConstantValue:
		return []string{e.Value}
	case ArrayValue:
		var names []string
		for _, v := range e.Args {
			names = append(names, v.Value)
		}
		return names
	}
	return nil
}

func renderList(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.Render()
	}
	return strings.Join(parts, ", ")
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// ParseExpression parses the text form of an expression.
func ParseExpression(src string) (Expression, error) {
	p := &parser{src: src}
	e, err := p.expression()
	if err != nil {
		return Expression{}, err
	}
	p.skipSpace()
	if !p.done() {
		return Expression{}, p.errorf("unexpected %q", p.rest())
	}
	return e, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) done() bool { return p.pos >= len(p.src) }
func (p *parser) rest() string { return p.src[p.pos:] }

func (p *parser) peek() byte {
	if p.done() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.done() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("parsing %q at offset %d: %s", p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) expression() (Expression, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '"':
		s, err := p.stringLiteral()
		if err != nil {
			return Expression{}, err
		}
		return String(s), nil
	case c == '[':
		p.pos++
		args, err := p.list(']')
		if err != nil {
			return Expression{}, err
		}
		return Array(args...), nil
	case c == '-' || isDigit(c):
		return Number(p.number()), nil
	case isIdentStart(c):
		name := p.identifier()
		if p.peek() == '(' {
			p.pos++
			args, err := p.list(')')
			if err != nil {
				return Expression{}, err
			}
			return Function(name, args...), nil
		}
		if name == "true" || name == "false" {
			return Boolean(name == "true"), nil
		}
		return Constant(name), nil
	case c == 0:
		return Expression{}, p.errorf("unexpected end of input")
	default:
		return Expression{}, p.errorf("unexpected character %q", c)
	}
}

// list parses comma separated expressions up to the closing delimiter. The
// opening delimiter has already been consumed.
func (p *parser) list(closing byte) ([]Expression, error) {
	var out []Expression
	p.skipSpace()
	if p.peek() == closing {
		p.pos++
		return out, nil
	}
	for {
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case closing:
			p.pos++
			return out, nil
		default:
			return nil, p.errorf("expected ',' or %q", closing)
		}
	}
}

func (p *parser) stringLiteral() (string, error) {
	p.pos++ // opening quote
	var b strings.Builder
	for !p.done() {
		c := p.src[p.pos]
		switch c {
		case '"':
			p.pos++
			return b.String(), nil
		case '\\':
			p.pos++
			if p.done() {
				return "", p.errorf("unterminated escape")
			}
			switch esc := p.src[p.pos]; esc {
			case 'n':
				b.WriteByte('\n')
			default:
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(c)
		}
		p.pos++
	}
	return "", p.errorf("unterminated string")
}

func (p *parser) number() string {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for !p.done() && (isDigit(p.peek()) || p.peek() == '.') {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) identifier() string {
	start := p.pos
	for !p.done() && isIdentPart(p.peek()) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}
