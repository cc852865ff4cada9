package schema

import (
	"fmt"
	"strings"
)

// ParseFieldLine parses the compact form of a field or type alias:
//
//	email String? @unique @map("email_address")
func ParseFieldLine(line string) (Field, error) {
	p := &parser{src: strings.TrimSpace(line)}
	p.skipSpace()
	if !isIdentStart(p.peek()) {
		return Field{}, p.errorf("expected field name")
	}
	f := Field{Name: p.identifier(), Arity: Required}

	p.skipSpace()
	if !isIdentStart(p.peek()) {
		return Field{}, p.errorf("expected type of field %s", f.Name)
	}
	start := p.pos
	p.identifier()
	if p.peek() == '(' {
		p.pos++
		if _, err := p.list(')'); err != nil {
			return Field{}, err
		}
	}
	f.Type = p.src[start:p.pos]

	switch {
	case strings.HasPrefix(p.rest(), "[]"):
		f.Arity = List
		p.pos += 2
	case p.peek() == '?':
		f.Arity = Optional
		p.pos++
	}

	attrs, err := p.attributes(1)
	if err != nil {
		return Field{}, err
	}
	f.Attributes = attrs
	return f, nil
}

// ParseEnumValueLine parses an enum value with its attributes: GREEN @map("green").
func ParseEnumValueLine(line string) (EnumValue, error) {
	p := &parser{src: strings.TrimSpace(line)}
	if !isIdentStart(p.peek()) {
		return EnumValue{}, p.errorf("expected enum value name")
	}
	v := EnumValue{Name: p.identifier()}
	attrs, err := p.attributes(1)
	if err != nil {
		return EnumValue{}, err
	}
	v.Attributes = attrs
	return v, nil
}

// ParseBlockAttribute parses a model or enum level attribute such as @@index([a, b]).
func ParseBlockAttribute(text string) (Attribute, error) {
	p := &parser{src: strings.TrimSpace(text)}
	attrs, err := p.attributes(2)
	if err != nil {
		return Attribute{}, err
	}
	if len(attrs) != 1 {
		return Attribute{}, fmt.Errorf("expected exactly one attribute in %q", text)
	}
	return attrs[0], nil
}

// attributes parses the remaining input as a list of attributes that each
// start with depth @ signs.
func (p *parser) attributes(depth int) ([]Attribute, error) {
	var out []Attribute
	prefix := strings.Repeat("@", depth)
	for {
		p.skipSpace()
		if p.done() {
			return out, nil
		}
		if !strings.HasPrefix(p.rest(), prefix) || (depth == 1 && strings.HasPrefix(p.rest(), "@@")) {
			return nil, p.errorf("expected attribute starting with %s", prefix)
		}
		p.pos += depth
		if !isIdentStart(p.peek()) {
			return nil, p.errorf("expected attribute name")
		}
		attr := Attribute{Name: p.identifier()}
		if p.peek() == '(' {
			p.pos++
			args, err := p.arguments()
			if err != nil {
				return nil, err
			}
			attr.Arguments = args
		}
		out = append(out, attr)
	}
}

// arguments parses "a, name: b" up to the closing parenthesis.
func (p *parser) arguments() ([]Argument, error) {
	var out []Argument
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return out, nil
	}
	for {
		p.skipSpace()
		arg := Argument{}
		if isIdentStart(p.peek()) {
			save := p.pos
			name := p.identifier()
			p.skipSpace()
			if p.peek() == ':' {
				p.pos++
				arg.Name = name
			} else {
				p.pos = save
			}
		}
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		arg.Value = value
		out = append(out, arg)

		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Line renders the compact form of the field.
func (f Field) Line() string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte(' ')
	b.WriteString(f.Type)
	switch f.Arity {
	case Optional:
		b.WriteByte('?')
	case List:
		b.WriteString("[]")
	}
	for _, a := range f.Attributes {
		b.WriteByte(' ')
		b.WriteString(a.Render(false))
	}
	return b.String()
}

func (v EnumValue) Line() string {
	var b strings.Builder
	b.WriteString(v.Name)
	for _, a := range v.Attributes {
		b.WriteByte(' ')
		b.WriteString(a.Render(false))
	}
	return b.String()
}

// Render renders the attribute with one @ or, for block attributes, two.
func (a Attribute) Render(block bool) string {
	prefix := "@"
	if block {
		prefix = "@@"
	}
	if len(a.Arguments) == 0 {
		return prefix + a.Name
	}
	parts := make([]string, len(a.Arguments))
	for i, arg := range a.Arguments {
		parts[i] = arg.Render()
	}
	return prefix + a.Name + "(" + strings.Join(parts, ", ") + ")"
}

func (a Argument) Render() string {
	if a.IsUnnamed() {
		return a.Value.Render()
	}
	return a.Name + ": " + a.Value.Render()
}
