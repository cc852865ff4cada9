package steps

import (
	"fmt"
	"slices"

	"github.com/ridoystarlord/schemaengine/schema"
)

// Apply replays steps onto a copy of base and returns the result. base is
// not modified; a nil base is the empty schema.
func Apply(base *schema.SchemaAst, steps []MigrationStep) (*schema.SchemaAst, error) {
	ast := base.Clone()
	for i, step := range steps {
		if err := apply(ast, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Tag(), err)
		}
	}
	return ast, nil
}

func apply(ast *schema.SchemaAst, step MigrationStep) error {
	switch s := deref(step).(type) {
	case CreateModel:
		if ast.FindModel(s.Model) != nil {
			return fmt.Errorf("model %s already exists", s.Model)
		}
		ast.Models = append(ast.Models, schema.Model{Name: s.Model})
	case DeleteModel:
		i := slices.IndexFunc(ast.Models, func(m schema.Model) bool { return m.Name == s.Model })
		if i < 0 {
			return fmt.Errorf("model %s does not exist", s.Model)
		}
		ast.Models = slices.Delete(ast.Models, i, i+1)

	case CreateField:
		m, err := findModel(ast, s.Model)
		if err != nil {
			return err
		}
		if m.FindField(s.Field) != nil {
			return fmt.Errorf("field %s.%s already exists", s.Model, s.Field)
		}
		m.Fields = append(m.Fields, schema.Field{Name: s.Field, Type: s.Type, Arity: s.Arity})
	case UpdateField:
		m, err := findModel(ast, s.Model)
		if err != nil {
			return err
		}
		f := m.FindField(s.Field)
		if f == nil {
			return fmt.Errorf("field %s.%s does not exist", s.Model, s.Field)
		}
		if s.NewName != nil {
			f.Name = *s.NewName
		}
		if s.Type != nil {
			f.Type = *s.Type
		}
		if s.Arity != nil {
			f.Arity = *s.Arity
		}
	case DeleteField:
		m, err := findModel(ast, s.Model)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(m.Fields, func(f schema.Field) bool { return f.Name == s.Field })
		if i < 0 {
			return fmt.Errorf("field %s.%s does not exist", s.Model, s.Field)
		}
		m.Fields = slices.Delete(m.Fields, i, i+1)

	case CreateEnum:
		if ast.FindEnum(s.Enum) != nil {
			return fmt.Errorf("enum %s already exists", s.Enum)
		}
		e := schema.Enum{Name: s.Enum}
		for _, v := range s.Values {
			e.Values = append(e.Values, schema.EnumValue{Name: v})
		}
		ast.Enums = append(ast.Enums, e)
	case UpdateEnum:
		e := ast.FindEnum(s.Enum)
		if e == nil {
			return fmt.Errorf("enum %s does not exist", s.Enum)
		}
		if s.NewName != nil {
			e.Name = *s.NewName
		}
		e.Values = slices.DeleteFunc(e.Values, func(v schema.EnumValue) bool {
			return slices.Contains(s.DeletedValues, v.Name)
		})
		for _, v := range s.CreatedValues {
			if e.FindValue(v) == nil {
				e.Values = append(e.Values, schema.EnumValue{Name: v})
			}
		}
	case DeleteEnum:
		i := slices.IndexFunc(ast.Enums, func(e schema.Enum) bool { return e.Name == s.Enum })
		if i < 0 {
			return fmt.Errorf("enum %s does not exist", s.Enum)
		}
		ast.Enums = slices.Delete(ast.Enums, i, i+1)

	case CreateTypeAlias:
		if ast.FindTypeAlias(s.TypeAlias) != nil {
			return fmt.Errorf("type alias %s already exists", s.TypeAlias)
		}
		ast.TypeAliases = append(ast.TypeAliases, schema.Field{Name: s.TypeAlias, Type: s.Type, Arity: s.Arity})
	case UpdateTypeAlias:
		a := ast.FindTypeAlias(s.TypeAlias)
		if a == nil {
			return fmt.Errorf("type alias %s does not exist", s.TypeAlias)
		}
		if s.Type != nil {
			a.Type = *s.Type
		}
	case DeleteTypeAlias:
		i := slices.IndexFunc(ast.TypeAliases, func(a schema.Field) bool { return a.Name == s.TypeAlias })
		if i < 0 {
			return fmt.Errorf("type alias %s does not exist", s.TypeAlias)
		}
		ast.TypeAliases = slices.Delete(ast.TypeAliases, i, i+1)

	case CreateSource:
		if ast.FindSource(s.Source) != nil {
			return fmt.Errorf("datasource %s already exists", s.Source)
		}
		ast.Datasources = append(ast.Datasources, schema.SourceConfig{Name: s.Source})
	case DeleteSource:
		i := slices.IndexFunc(ast.Datasources, func(d schema.SourceConfig) bool { return d.Name == s.Source })
		if i < 0 {
			return fmt.Errorf("datasource %s does not exist", s.Source)
		}
		ast.Datasources = slices.Delete(ast.Datasources, i, i+1)

	case CreateDirective:
		attrs, err := directives(ast, s.Location.Path)
		if err != nil {
			return err
		}
		attr := schema.Attribute{Name: s.Location.Directive}
		for _, a := range s.Location.Path.Arguments {
			value, err := schema.ParseExpression(a.Value)
			if err != nil {
				return err
			}
			attr.Arguments = append(attr.Arguments, schema.Argument{Name: a.Name, Value: value})
		}
		*attrs = append(*attrs, attr)
	case DeleteDirective:
		attrs, err := directives(ast, s.Location.Path)
		if err != nil {
			return err
		}
		i := findDirective(*attrs, s.Location)
		if i < 0 {
			return fmt.Errorf("directive @%s does not exist", s.Location.Directive)
		}
		*attrs = slices.Delete(*attrs, i, i+1)

	case CreateArgument:
		args, err := arguments(ast, s.Location)
		if err != nil {
			return err
		}
		value, err := schema.ParseExpression(s.Value)
		if err != nil {
			return err
		}
		*args = append(*args, schema.Argument{Name: s.Argument, Value: value})
	case UpdateArgument:
		args, err := arguments(ast, s.Location)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(*args, func(a schema.Argument) bool { return a.Name == s.Argument })
		if i < 0 {
			return fmt.Errorf("argument %q does not exist", s.Argument)
		}
		value, err := schema.ParseExpression(s.NewValue)
		if err != nil {
			return err
		}
		(*args)[i].Value = value
	case DeleteArgument:
		args, err := arguments(ast, s.Location)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(*args, func(a schema.Argument) bool { return a.Name == s.Argument })
		if i < 0 {
			return fmt.Errorf("argument %q does not exist", s.Argument)
		}
		*args = slices.Delete(*args, i, i+1)

	default:
		return fmt.Errorf("unknown step %T", step)
	}
	return nil
}

func findModel(ast *schema.SchemaAst, name string) (*schema.Model, error) {
	m := ast.FindModel(name)
	if m == nil {
		return nil, fmt.Errorf("model %s does not exist", name)
	}
	return m, nil
}

// directives returns the attribute list a path points at.
func directives(ast *schema.SchemaAst, path DirectivePath) (*[]schema.Attribute, error) {
	switch path.Tag {
	case PathModel:
		m, err := findModel(ast, path.Model)
		if err != nil {
			return nil, err
		}
		return &m.Attributes, nil
	case PathField:
		m, err := findModel(ast, path.Model)
		if err != nil {
			return nil, err
		}
		f := m.FindField(path.Field)
		if f == nil {
			return nil, fmt.Errorf("field %s.%s does not exist", path.Model, path.Field)
		}
		return &f.Attributes, nil
	case PathEnum:
		e := ast.FindEnum(path.Enum)
		if e == nil {
			return nil, fmt.Errorf("enum %s does not exist", path.Enum)
		}
		return &e.Attributes, nil
	case PathEnumValue:
		e := ast.FindEnum(path.Enum)
		if e == nil {
			return nil, fmt.Errorf("enum %s does not exist", path.Enum)
		}
		v := e.FindValue(path.Value)
		if v == nil {
			return nil, fmt.Errorf("enum value %s.%s does not exist", path.Enum, path.Value)
		}
		return &v.Attributes, nil
	case PathTypeAlias:
		a := ast.FindTypeAlias(path.TypeAlias)
		if a == nil {
			return nil, fmt.Errorf("type alias %s does not exist", path.TypeAlias)
		}
		return &a.Attributes, nil
	}
	return nil, fmt.Errorf("unknown directive path %q", path.Tag)
}

// findDirective matches by name and, for repeated directives, by arguments.
func findDirective(attrs []schema.Attribute, loc DirectiveLocation) int {
	return slices.IndexFunc(attrs, func(a schema.Attribute) bool {
		if a.Name != loc.Directive {
			return false
		}
		if loc.Path.Arguments == nil {
			return true
		}
		if len(a.Arguments) != len(loc.Path.Arguments) {
			return false
		}
		for i, arg := range a.Arguments {
			want := loc.Path.Arguments[i]
			if arg.Name != want.Name || arg.Value.Render() != want.Value {
				return false
			}
		}
		return true
	})
}

func arguments(ast *schema.SchemaAst, loc ArgumentLocation) (*[]schema.Argument, error) {
	switch loc.Tag {
	case LocationSource:
		src := ast.FindSource(loc.Source)
		if src == nil {
			return nil, fmt.Errorf("datasource %s does not exist", loc.Source)
		}
		return &src.Properties, nil
	case LocationDirective:
		if loc.Path == nil {
			return nil, fmt.Errorf("directive argument location without a path")
		}
		attrs, err := directives(ast, *loc.Path)
		if err != nil {
			return nil, err
		}
		i := findDirective(*attrs, DirectiveLocation{Path: *loc.Path, Directive: loc.Directive})
		if i < 0 {
			return nil, fmt.Errorf("directive @%s does not exist", loc.Directive)
		}
		return &(*attrs)[i].Arguments, nil
	}
	return nil, fmt.Errorf("unknown argument location %q", loc.Tag)
}
