package datamodel

import (
	"strings"

	"github.com/ridoystarlord/schemaengine/schema"
)

// Lift renders a data model as a schema AST. Default values are left out:
// relation names equal to the default name and database names equal to the
// declared name are omitted.
func Lift(dm *Datamodel) *schema.SchemaAst {
	ast := &schema.SchemaAst{}
	for i := range dm.Enums {
		ast.Enums = append(ast.Enums, liftEnum(&dm.Enums[i]))
	}
	for i := range dm.Models {
		ast.Models = append(ast.Models, liftModel(&dm.Models[i]))
	}
	return ast
}

func liftEnum(e *Enum) schema.Enum {
	out := schema.Enum{
		Name:          e.Name,
		Documentation: e.Documentation,
		CommentedOut:  e.IsCommentedOut,
	}
	for _, v := range e.Values {
		value := schema.EnumValue{
			Name:          v.Name,
			Documentation: v.Documentation,
			CommentedOut:  v.IsCommentedOut,
		}
		if v.DatabaseName != "" && v.DatabaseName != v.Name {
			value.Attributes = append(value.Attributes, mapAttribute(v.DatabaseName))
		}
		out.Values = append(out.Values, value)
	}
	if e.DatabaseName != "" && e.DatabaseName != e.Name {
		out.Attributes = append(out.Attributes, mapAttribute(e.DatabaseName))
	}
	return out
}

func liftModel(m *Model) schema.Model {
	out := schema.Model{
		Name:          m.Name,
		Documentation: m.Documentation,
		CommentedOut:  m.IsCommentedOut,
	}
	for i := range m.Fields {
		out.Fields = append(out.Fields, liftField(m, &m.Fields[i]))
	}
	if len(m.IDFields) > 0 {
		out.Attributes = append(out.Attributes, schema.Attribute{
			Name:      "id",
			Arguments: []schema.Argument{{Value: schema.ConstantList(m.IDFields...)}},
		})
	}
	for _, idx := range m.Indices {
		name := "index"
		if idx.Type == IndexUnique {
			name = "unique"
		}
		attr := schema.Attribute{
			Name:      name,
			Arguments: []schema.Argument{{Value: schema.ConstantList(idx.Fields...)}},
		}
		if idx.Name != "" {
			attr.Arguments = append(attr.Arguments, schema.Argument{Name: "name", Value: schema.String(idx.Name)})
		}
		out.Attributes = append(out.Attributes, attr)
	}
	if m.DatabaseName != "" && m.DatabaseName != m.Name {
		out.Attributes = append(out.Attributes, mapAttribute(m.DatabaseName))
	}
	return out
}

func liftField(m *Model, f *Field) schema.Field {
	out := schema.Field{
		Name:          f.Name,
		Type:          f.Type.TypeName(),
		Arity:         schema.FieldArity(f.Arity),
		Documentation: f.Documentation,
		CommentedOut:  f.IsCommentedOut,
	}
	if f.Relation != nil {
		if attr, ok := relationAttribute(m, f); ok {
			out.Attributes = append(out.Attributes, attr)
		}
		return out
	}

	if f.IsID {
		out.Attributes = append(out.Attributes, schema.Attribute{Name: "id"})
	}
	if f.IsUnique {
		out.Attributes = append(out.Attributes, schema.Attribute{Name: "unique"})
	}
	if f.Default != nil {
		out.Attributes = append(out.Attributes, schema.Attribute{
			Name:      "default",
			Arguments: []schema.Argument{{Value: defaultExpression(f)}},
		})
	}
	if f.IsUpdatedAt {
		out.Attributes = append(out.Attributes, schema.Attribute{Name: "updatedAt"})
	}
	if f.DatabaseName != "" && f.DatabaseName != f.Name {
		out.Attributes = append(out.Attributes, mapAttribute(f.DatabaseName))
	}
	if f.Type.NativeType != "" {
		out.Attributes = append(out.Attributes, nativeTypeAttribute(f.Type.NativeType))
	}
	return out
}

func relationAttribute(m *Model, f *Field) (schema.Attribute, bool) {
	info := f.Relation
	attr := schema.Attribute{Name: "relation"}
	if info.Name != "" && !isDefaultRelationName(m, f) {
		attr.Arguments = append(attr.Arguments, schema.Argument{Value: schema.String(info.Name)})
	}
	if len(info.Fields) > 0 {
		attr.Arguments = append(attr.Arguments, schema.Argument{Name: "fields", Value: schema.ConstantList(info.Fields...)})
	}
	if len(info.References) > 0 {
		attr.Arguments = append(attr.Arguments, schema.Argument{Name: "references", Value: schema.ConstantList(info.References...)})
	}
	if info.OnDelete != OnDeleteNone {
		attr.Arguments = append(attr.Arguments, schema.Argument{Name: "onDelete", Value: schema.Constant(string(info.OnDelete))})
	}
	return attr, len(attr.Arguments) > 0
}

// isDefaultRelationName reports whether the relation name can be dropped:
// it equals the default name and no other relation field of the model points
// at the same target.
func isDefaultRelationName(m *Model, f *Field) bool {
	if f.Relation.Name != DefaultRelationName(m.Name, f.Relation.To) {
		return false
	}
	for i := range m.Fields {
		other := &m.Fields[i]
		if other != f && other.Relation != nil && other.Relation.To == f.Relation.To {
			return false
		}
	}
	return true
}

func defaultExpression(f *Field) schema.Expression {
	d := f.Default
	if d.Kind == DefaultExpression {
		args := make([]schema.Expression, len(d.Args))
		for i, a := range d.Args {
			args[i] = schema.String(a)
		}
		return schema.Function(d.Value, args...)
	}
	switch {
	case f.Type.Kind == TypeEnum:
		return schema.Constant(d.Value)
	case f.Type.Kind != TypeBase:
		return schema.String(d.Value)
	}
	switch f.Type.Scalar {
	case Int, Float, Decimal:
		return schema.Number(d.Value)
	case Boolean:
		return schema.Boolean(d.Value == "true")
	}
	return schema.String(d.Value)
}

func mapAttribute(name string) schema.Attribute {
	return schema.Attribute{Name: "map", Arguments: []schema.Argument{{Value: schema.String(name)}}}
}

// nativeTypeAttribute turns VarChar(255) into @db.VarChar(255).
func nativeTypeAttribute(native string) schema.Attribute {
	name, params, hasParams := strings.Cut(native, "(")
	attr := schema.Attribute{Name: "db." + name}
	if !hasParams {
		return attr
	}
	for _, p := range strings.Split(strings.TrimSuffix(params, ")"), ",") {
		attr.Arguments = append(attr.Arguments, schema.Argument{Value: schema.Number(strings.TrimSpace(p))})
	}
	return attr
}

// NativeTypeFromAttribute is the inverse of the @db attribute rendering.
func NativeTypeFromAttribute(attr schema.Attribute) (string, bool) {
	name, ok := strings.CutPrefix(attr.Name, "db.")
	if !ok {
		return "", false
	}
	if len(attr.Arguments) == 0 {
		return name, true
	}
	params := make([]string, len(attr.Arguments))
	for i, a := range attr.Arguments {
		params[i] = a.Value.Value
	}
	return name + "(" + strings.Join(params, ",") + ")", true
}
