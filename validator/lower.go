package validator

import (
	"fmt"
	"strings"

	"github.com/ridoystarlord/schemaengine/datamodel"
	"github.com/ridoystarlord/schemaengine/schema"
)

var knownGenerators = map[string]bool{
	"autoincrement": true,
	"now":           true,
	"cuid":          true,
	"uuid":          true,
	"dbgenerated":   true,
}

// lowerer turns the AST into a data model. Problems inside commented out
// declarations are not reported.
type lowerer struct {
	ast    *schema.SchemaAst
	result *ValidationResult
	quiet  bool
}

func (l *lowerer) errorf(kind, model, field, format string, args ...any) {
	if l.quiet {
		return
	}
	l.result.addError(kind, model, field, fmt.Sprintf(format, args...))
}

func (l *lowerer) lower() *datamodel.Datamodel {
	dm := &datamodel.Datamodel{}
	for i := range l.ast.Enums {
		dm.Enums = append(dm.Enums, l.lowerEnum(&l.ast.Enums[i]))
	}
	for i := range l.ast.Models {
		dm.Models = append(dm.Models, l.lowerModel(&l.ast.Models[i]))
	}
	for mi := range dm.Models {
		for fi := range dm.Models[mi].Fields {
			f := &dm.Models[mi].Fields[fi]
			if f.Relation != nil && f.Relation.Name == "" {
				f.Relation.Name = datamodel.DefaultRelationName(dm.Models[mi].Name, f.Relation.To)
			}
		}
	}
	return dm
}

func (l *lowerer) lowerEnum(e *schema.Enum) datamodel.Enum {
	l.quiet = e.CommentedOut
	out := datamodel.Enum{
		Name:           e.Name,
		IsCommentedOut: e.CommentedOut,
		Documentation:  e.Documentation,
	}
	for _, v := range e.Values {
		value := datamodel.EnumValue{
			Name:           v.Name,
			IsCommentedOut: v.CommentedOut,
			Documentation:  v.Documentation,
		}
		for _, attr := range v.Attributes {
			if attr.Name != "map" {
				l.errorf("attribute", e.Name, v.Name, "Attribute not known: \"@%s\".", attr.Name)
				continue
			}
			value.DatabaseName = l.mapName(attr, e.Name, v.Name)
		}
		out.Values = append(out.Values, value)
	}
	for _, attr := range e.Attributes {
		if attr.Name != "map" {
			l.errorf("attribute", e.Name, "", "Attribute not known: \"@@%s\".", attr.Name)
			continue
		}
		out.DatabaseName = l.mapName(attr, e.Name, "")
	}
	return out
}

func (l *lowerer) lowerModel(m *schema.Model) datamodel.Model {
	out := datamodel.Model{
		Name:           m.Name,
		IsCommentedOut: m.CommentedOut,
		Documentation:  m.Documentation,
	}
	for _, f := range m.Fields {
		l.quiet = m.CommentedOut || f.CommentedOut
		field, ok := l.lowerField(m.Name, f)
		if ok {
			out.Fields = append(out.Fields, field)
		}
	}
	l.quiet = m.CommentedOut
	for _, attr := range m.Attributes {
		attr := attr
		switch attr.Name {
		case "id":
			out.IDFields = l.fieldList(attr, m.Name, "fields")
		case "unique", "index":
			idx := datamodel.IndexDefinition{Fields: l.fieldList(attr, m.Name, "fields"), Type: datamodel.IndexNormal}
			if attr.Name == "unique" {
				idx.Type = datamodel.IndexUnique
			}
			if name := attr.Argument("name"); name != nil {
				idx.Name = name.Value.Value
			}
			out.Indices = append(out.Indices, idx)
		case "map":
			out.DatabaseName = l.mapName(attr, m.Name, "")
		default:
			l.errorf("attribute", m.Name, "", "Attribute not known: \"@@%s\".", attr.Name)
		}
	}
	return out
}

// resolveType follows type aliases and returns the final type name together
// with the alias attributes, which come before the field's own.
func (l *lowerer) resolveType(typeName string) (string, []schema.Attribute) {
	var attrs []schema.Attribute
	for depth := 0; depth < 16; depth++ {
		alias := l.ast.FindTypeAlias(typeName)
		if alias == nil {
			return typeName, attrs
		}
		attrs = append(append([]schema.Attribute{}, alias.Attributes...), attrs...)
		typeName = alias.Type
	}
	return typeName, attrs
}

func (l *lowerer) lowerField(model string, f schema.Field) (datamodel.Field, bool) {
	out := datamodel.Field{
		Name:           f.Name,
		Arity:          datamodel.FieldArity(f.Arity),
		IsCommentedOut: f.CommentedOut,
		Documentation:  f.Documentation,
	}
	if out.Arity == "" {
		out.Arity = datamodel.Required
	}

	typeName, aliasAttrs := l.resolveType(f.Type)
	attrs := append(aliasAttrs, f.Attributes...)

	switch {
	case strings.HasPrefix(typeName, "Unsupported(") && strings.HasSuffix(typeName, ")"):
		raw, err := schema.ParseExpression(strings.TrimSuffix(strings.TrimPrefix(typeName, "Unsupported("), ")"))
		if err != nil || raw.Kind != schema.StringValue {
			l.errorf("field_type", model, f.Name, "Unsupported type of field %q must be a string literal.", f.Name)
			return out, false
		}
		out.Type = datamodel.UnsupportedType(raw.Value)
	default:
		if scalar, ok := datamodel.ParseScalarType(typeName); ok {
			out.Type = datamodel.BaseType(scalar)
		} else if l.ast.FindEnum(typeName) != nil {
			out.Type = datamodel.EnumType(typeName)
		} else if l.ast.FindModel(typeName) != nil {
			out.Type = datamodel.RelationType(typeName)
			out.Relation = &datamodel.RelationInfo{To: typeName}
		} else {
			l.errorf("field_type", model, f.Name,
				"Type %q is neither a built-in type, nor refers to another model, custom type, or enum.", typeName)
			return out, false
		}
	}

	for _, attr := range attrs {
		l.lowerFieldAttribute(model, &out, attr)
	}
	return out, true
}

func (l *lowerer) lowerFieldAttribute(model string, f *datamodel.Field, attr schema.Attribute) {
	if f.Relation != nil && attr.Name != "relation" {
		l.errorf("attribute", model, f.Name, "The attribute \"@%s\" can not be used on the relation field %q.", attr.Name, f.Name)
		return
	}
	switch attr.Name {
	case "id":
		f.IsID = true
	case "unique":
		f.IsUnique = true
	case "updatedAt":
		if f.Type.Kind != datamodel.TypeBase || f.Type.Scalar != datamodel.DateTime {
			l.errorf("attribute", model, f.Name, "Fields that are marked with @updatedAt must be of type DateTime.")
			return
		}
		f.IsUpdatedAt = true
	case "map":
		f.DatabaseName = l.mapName(attr, model, f.Name)
	case "default":
		f.Default = l.lowerDefault(model, f, attr)
	case "relation":
		l.lowerRelation(model, f, attr)
	default:
		if native, ok := datamodel.NativeTypeFromAttribute(attr); ok {
			f.Type.NativeType = native
			return
		}
		l.errorf("attribute", model, f.Name, "Attribute not known: \"@%s\".", attr.Name)
	}
}

func (l *lowerer) lowerDefault(model string, f *datamodel.Field, attr schema.Attribute) *datamodel.DefaultValue {
	arg := attr.DefaultArgument("value")
	if arg == nil {
		l.errorf("default", model, f.Name, "The @default attribute on field %q needs a value.", f.Name)
		return nil
	}
	v := arg.Value
	switch v.Kind {
	case schema.FunctionValue:
		if !knownGenerators[v.Value] {
			l.errorf("default", model, f.Name, "The function `%s` is not a known function.", v.Value)
			return nil
		}
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = a.Value
		}
		return datamodel.GeneratedDefault(v.Value, args...)
	case schema.ConstantValue:
		if f.Type.Kind != datamodel.TypeEnum {
			l.errorf("default", model, f.Name, "The default value %q of field %q is not a valid literal.", v.Value, f.Name)
			return nil
		}
		if e := l.ast.FindEnum(f.Type.Name); e != nil && e.FindValue(v.Value) == nil {
			l.errorf("default", model, f.Name, "The defined default value %q is not a value of the enum %q.", v.Value, f.Type.Name)
			return nil
		}
	case schema.ArrayValue:
		l.errorf("default", model, f.Name, "Lists are not supported as default values.")
		return nil
	}
	return datamodel.SingleDefault(v.Value)
}

func (l *lowerer) lowerRelation(model string, f *datamodel.Field, attr schema.Attribute) {
	info := f.Relation
	if name := attr.DefaultArgument("name"); name != nil {
		info.Name = name.Value.Value
	}
	if fields := attr.Argument("fields"); fields != nil {
		info.Fields = fields.Value.ConstantNames()
	}
	if refs := attr.Argument("references"); refs != nil {
		info.References = refs.Value.ConstantNames()
	}
	if onDelete := attr.Argument("onDelete"); onDelete != nil {
		switch datamodel.OnDeleteStrategy(onDelete.Value.Value) {
		case datamodel.OnDeleteCascade:
			info.OnDelete = datamodel.OnDeleteCascade
		default:
			l.errorf("relation", model, f.Name, "Invalid onDelete strategy %q.", onDelete.Value.Value)
		}
	}
}

func (l *lowerer) mapName(attr schema.Attribute, model, field string) string {
	arg := attr.DefaultArgument("name")
	if arg == nil || arg.Value.Kind != schema.StringValue {
		l.errorf("attribute", model, field, "The @map attribute needs a string argument.")
		return ""
	}
	return arg.Value.Value
}

func (l *lowerer) fieldList(attr schema.Attribute, model, argName string) []string {
	arg := attr.DefaultArgument(argName)
	if arg == nil {
		l.errorf("attribute", model, "", "The @@%s attribute needs a list of fields.", attr.Name)
		return nil
	}
	return arg.Value.ConstantNames()
}
