package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type yamlField struct {
	Name          string     `yaml:"name"`
	Type          string     `yaml:"type"`
	Arity         FieldArity `yaml:"arity,omitempty"`
	Attributes    []string   `yaml:"attributes,omitempty"`
	Documentation string     `yaml:"documentation,omitempty"`
	CommentedOut  bool       `yaml:"commented_out,omitempty"`
}

type yamlEnumValue struct {
	Name          string   `yaml:"name"`
	Attributes    []string `yaml:"attributes,omitempty"`
	Documentation string   `yaml:"documentation,omitempty"`
	CommentedOut  bool     `yaml:"commented_out,omitempty"`
}

type yamlModel struct {
	Name          string   `yaml:"name"`
	Documentation string   `yaml:"documentation,omitempty"`
	CommentedOut  bool     `yaml:"commented_out,omitempty"`
	Fields        []Field  `yaml:"fields"`
	Attributes    []string `yaml:"attributes,omitempty"`
}

type yamlEnum struct {
	Name          string      `yaml:"name"`
	Documentation string      `yaml:"documentation,omitempty"`
	CommentedOut  bool        `yaml:"commented_out,omitempty"`
	Values        []EnumValue `yaml:"values"`
	Attributes    []string    `yaml:"attributes,omitempty"`
}

type yamlConfig struct {
	Name          string    `yaml:"name"`
	Properties    yaml.Node `yaml:"properties,omitempty"`
	Documentation string    `yaml:"documentation,omitempty"`
}

func (f *Field) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		parsed, err := ParseFieldLine(n.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		*f = parsed
		return nil
	}

	var raw yamlField
	if err := n.Decode(&raw); err != nil {
		return err
	}
	attrs, err := parseFieldAttributes(raw.Attributes)
	if err != nil {
		return fmt.Errorf("line %d: field %s: %w", n.Line, raw.Name, err)
	}
	arity := raw.Arity
	if arity == "" {
		arity = Required
	}
	*f = Field{
		Name:          raw.Name,
		Type:          raw.Type,
		Arity:         arity,
		Attributes:    attrs,
		Documentation: raw.Documentation,
		CommentedOut:  raw.CommentedOut,
	}
	return nil
}

// MarshalYAML writes the compact line unless the field carries documentation
// or is commented out.
func (f Field) MarshalYAML() (any, error) {
	if f.Documentation == "" && !f.CommentedOut {
		return f.Line(), nil
	}
	return yamlField{
		Name:          f.Name,
		Type:          f.Type,
		Arity:         f.Arity,
		Attributes:    renderAttributes(f.Attributes, false),
		Documentation: f.Documentation,
		CommentedOut:  f.CommentedOut,
	}, nil
}

func (v *EnumValue) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		parsed, err := ParseEnumValueLine(n.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		*v = parsed
		return nil
	}

	var raw yamlEnumValue
	if err := n.Decode(&raw); err != nil {
		return err
	}
	attrs, err := parseFieldAttributes(raw.Attributes)
	if err != nil {
		return fmt.Errorf("line %d: enum value %s: %w", n.Line, raw.Name, err)
	}
	*v = EnumValue{
		Name:          raw.Name,
		Attributes:    attrs,
		Documentation: raw.Documentation,
		CommentedOut:  raw.CommentedOut,
	}
	return nil
}

func (v EnumValue) MarshalYAML() (any, error) {
	if v.Documentation == "" && !v.CommentedOut {
		return v.Line(), nil
	}
	return yamlEnumValue{
		Name:          v.Name,
		Attributes:    renderAttributes(v.Attributes, false),
		Documentation: v.Documentation,
		CommentedOut:  v.CommentedOut,
	}, nil
}

func (m *Model) UnmarshalYAML(n *yaml.Node) error {
	var raw yamlModel
	if err := n.Decode(&raw); err != nil {
		return err
	}
	attrs, err := parseBlockAttributes(raw.Attributes)
	if err != nil {
		return fmt.Errorf("line %d: model %s: %w", n.Line, raw.Name, err)
	}
	*m = Model{
		Name:          raw.Name,
		Fields:        raw.Fields,
		Attributes:    attrs,
		Documentation: raw.Documentation,
		CommentedOut:  raw.CommentedOut,
	}
	return nil
}

func (m Model) MarshalYAML() (any, error) {
	return yamlModel{
		Name:          m.Name,
		Documentation: m.Documentation,
		CommentedOut:  m.CommentedOut,
		Fields:        m.Fields,
		Attributes:    renderAttributes(m.Attributes, true),
	}, nil
}

func (e *Enum) UnmarshalYAML(n *yaml.Node) error {
	var raw yamlEnum
	if err := n.Decode(&raw); err != nil {
		return err
	}
	attrs, err := parseBlockAttributes(raw.Attributes)
	if err != nil {
		return fmt.Errorf("line %d: enum %s: %w", n.Line, raw.Name, err)
	}
	*e = Enum{
		Name:          raw.Name,
		Values:        raw.Values,
		Attributes:    attrs,
		Documentation: raw.Documentation,
		CommentedOut:  raw.CommentedOut,
	}
	return nil
}

func (e Enum) MarshalYAML() (any, error) {
	return yamlEnum{
		Name:          e.Name,
		Documentation: e.Documentation,
		CommentedOut:  e.CommentedOut,
		Values:        e.Values,
		Attributes:    renderAttributes(e.Attributes, true),
	}, nil
}

func (s *SourceConfig) UnmarshalYAML(n *yaml.Node) error {
	name, props, doc, err := decodeConfig(n)
	if err != nil {
		return err
	}
	*s = SourceConfig{Name: name, Properties: props, Documentation: doc}
	return nil
}

func (s SourceConfig) MarshalYAML() (any, error) {
	return encodeConfig(s.Name, s.Properties, s.Documentation), nil
}

func (g *GeneratorConfig) UnmarshalYAML(n *yaml.Node) error {
	name, props, doc, err := decodeConfig(n)
	if err != nil {
		return err
	}
	*g = GeneratorConfig{Name: name, Properties: props, Documentation: doc}
	return nil
}

func (g GeneratorConfig) MarshalYAML() (any, error) {
	return encodeConfig(g.Name, g.Properties, g.Documentation), nil
}

func decodeConfig(n *yaml.Node) (string, []Argument, string, error) {
	var raw yamlConfig
	if err := n.Decode(&raw); err != nil {
		return "", nil, "", err
	}
	if raw.Properties.Kind == 0 {
		return raw.Name, nil, raw.Documentation, nil
	}
	if raw.Properties.Kind != yaml.MappingNode {
		return "", nil, "", fmt.Errorf("line %d: properties of %s must be a mapping", raw.Properties.Line, raw.Name)
	}

	var props []Argument
	content := raw.Properties.Content
	for i := 0; i+1 < len(content); i += 2 {
		value, err := expressionFromNode(content[i+1])
		if err != nil {
			return "", nil, "", fmt.Errorf("line %d: property %s: %w", content[i].Line, content[i].Value, err)
		}
		props = append(props, Argument{Name: content[i].Value, Value: value})
	}
	return raw.Name, props, raw.Documentation, nil
}

func encodeConfig(name string, props []Argument, doc string) yamlConfig {
	out := yamlConfig{Name: name, Documentation: doc}
	if len(props) == 0 {
		return out
	}
	out.Properties = yaml.Node{Kind: yaml.MappingNode}
	for _, p := range props {
		out.Properties.Content = append(out.Properties.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Name},
			nodeFromExpression(p.Value),
		)
	}
	return out
}

// expressionFromNode maps quoted scalars to string literals, sequences to
// arrays and plain scalars to parsed expressions.
func expressionFromNode(n *yaml.Node) (Expression, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) != 0 {
			return String(n.Value), nil
		}
		return ParseExpression(n.Value)
	case yaml.SequenceNode:
		vals := make([]Expression, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := expressionFromNode(c)
			if err != nil {
				return Expression{}, err
			}
			vals = append(vals, v)
		}
		return Array(vals...), nil
	}
	return Expression{}, fmt.Errorf("unsupported value at line %d", n.Line)
}

func nodeFromExpression(e Expression) *yaml.Node {
	switch e.Kind {
	case StringValue:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.DoubleQuotedStyle, Value: e.Value}
	case ArrayValue:
		n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, v := range e.Args {
			n.Content = append(n.Content, nodeFromExpression(v))
		}
		return n
	case BooleanValue:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: e.Value}
	case NumericValue:
		tag := "!!int"
		if strings.Contains(e.Value, ".") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: e.Value}
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Render()}
	}
}

func parseFieldAttributes(texts []string) ([]Attribute, error) {
	var out []Attribute
	for _, text := range texts {
		p := &parser{src: strings.TrimSpace(text)}
		attrs, err := p.attributes(1)
		if err != nil {
			return nil, err
		}
		out = append(out, attrs...)
	}
	return out, nil
}

func parseBlockAttributes(texts []string) ([]Attribute, error) {
	var out []Attribute
	for _, text := range texts {
		attr, err := ParseBlockAttribute(text)
		if err != nil {
			return nil, err
		}
		out = append(out, attr)
	}
	return out, nil
}

func renderAttributes(attrs []Attribute, block bool) []string {
	var out []string
	for _, a := range attrs {
		out = append(out, a.Render(block))
	}
	return out
}

// Unmarshal decodes a schema document.
func Unmarshal(data []byte) (*SchemaAst, error) {
	var ast SchemaAst
	if err := yaml.Unmarshal(data, &ast); err != nil {
		return nil, err
	}
	return &ast, nil
}

// Marshal encodes a schema document.
func Marshal(ast *SchemaAst) ([]byte, error) {
	return yaml.Marshal(ast)
}
