package schema

import "slices"

// Clone returns a deep copy of the AST.
func (s *SchemaAst) Clone() *SchemaAst {
	if s == nil {
		return &SchemaAst{}
	}
	out := &SchemaAst{}
	for _, d := range s.Datasources {
		out.Datasources = append(out.Datasources, SourceConfig{Name: d.Name, Properties: cloneArguments(d.Properties), Documentation: d.Documentation})
	}
	for _, g := range s.Generators {
		out.Generators = append(out.Generators, GeneratorConfig{Name: g.Name, Properties: cloneArguments(g.Properties), Documentation: g.Documentation})
	}
	for _, a := range s.TypeAliases {
		out.TypeAliases = append(out.TypeAliases, a.clone())
	}
	for _, e := range s.Enums {
		c := e
		c.Attributes = cloneAttributes(e.Attributes)
		c.Values = nil
		for _, v := range e.Values {
			cv := v
			cv.Attributes = cloneAttributes(v.Attributes)
			c.Values = append(c.Values, cv)
		}
		out.Enums = append(out.Enums, c)
	}
	for _, m := range s.Models {
		c := m
		c.Attributes = cloneAttributes(m.Attributes)
		c.Fields = nil
		for _, f := range m.Fields {
			c.Fields = append(c.Fields, f.clone())
		}
		out.Models = append(out.Models, c)
	}
	return out
}

func (f Field) clone() Field {
	f.Attributes = cloneAttributes(f.Attributes)
	return f
}

func cloneAttributes(attrs []Attribute) []Attribute {
	if attrs == nil {
		return nil
	}
	out := make([]Attribute, len(attrs))
	for i, a := range attrs {
		out[i] = Attribute{Name: a.Name, Arguments: cloneArguments(a.Arguments)}
	}
	return out
}

func cloneArguments(args []Argument) []Argument {
	if args == nil {
		return nil
	}
	out := make([]Argument, len(args))
	for i, a := range args {
		out[i] = Argument{Name: a.Name, Value: a.Value.clone()}
	}
	return out
}

func (e Expression) clone() Expression {
	if e.Args != nil {
		e.Args = slices.Clone(e.Args)
		for i := range e.Args {
			e.Args[i] = e.Args[i].clone()
		}
	}
	return e
}
