// Package datamodel holds the declarative data model: models with scalar and
// relation fields, enums and indexes, independent of any physical layout.
package datamodel

import (
	"fmt"
	"strings"
)

type Datamodel struct {
	Models []Model
	Enums  []Enum
}

type Model struct {
	Name string
	// DatabaseName is the table name when it differs from Name.
	DatabaseName   string
	Fields         []Field
	Indices        []IndexDefinition
	IDFields       []string
	IsEmbedded     bool
	IsGenerated    bool
	IsCommentedOut bool
	Documentation  string
}

type FieldArity string

const (
	Required FieldArity = "Required"
	Optional FieldArity = "Optional"
	List     FieldArity = "List"
)

type ScalarType string

const (
	Int      ScalarType = "Int"
	Float    ScalarType = "Float"
	Boolean  ScalarType = "Boolean"
	String   ScalarType = "String"
	DateTime ScalarType = "DateTime"
	Json     ScalarType = "Json"
	XML      ScalarType = "XML"
	Bytes    ScalarType = "Bytes"
	Decimal  ScalarType = "Decimal"
	Duration ScalarType = "Duration"
)

var scalarTypes = []ScalarType{Int, Float, Boolean, String, DateTime, Json, XML, Bytes, Decimal, Duration}

// ParseScalarType returns the builtin scalar type with the given name.
func ParseScalarType(name string) (ScalarType, bool) {
	for _, t := range scalarTypes {
		if string(t) == name {
			return t, true
		}
	}
	return "", false
}

type TypeKind int

const (
	TypeBase TypeKind = iota
	TypeEnum
	TypeUnsupported
	TypeRelation
)

// FieldType is the type of a field. Name is the enum name, the raw database
// type of an unsupported field, or the related model.
type FieldType struct {
	Kind   TypeKind
	Scalar ScalarType
	Name   string
	// NativeType is the database specific type, such as VarChar(255).
	NativeType string
}

func BaseType(t ScalarType) FieldType { return FieldType{Kind: TypeBase, Scalar: t} }
func EnumType(name string) FieldType { return FieldType{Kind: TypeEnum, Name: name} }
func UnsupportedType(raw string) FieldType { return FieldType{Kind: TypeUnsupported, Name: raw} }
func RelationType(model string) FieldType { return FieldType{Kind: TypeRelation, Name: model} }

// TypeName renders the type the way it is written in a schema.
func (t FieldType) TypeName() string {
	switch t.Kind {
	case TypeBase:
		return string(t.Scalar)
	case TypeUnsupported:
		return fmt.Sprintf("Unsupported(%q)", t.Name)
	default:
		return t.Name
	}
}

type Field struct {
	Name  string
	Arity FieldArity
	Type  FieldType
	// DatabaseName is the column name when it differs from Name.
	DatabaseName   string
	Default        *DefaultValue
	IsUnique       bool
	IsID           bool
	IsGenerated    bool
	IsUpdatedAt    bool
	IsCommentedOut bool
	Documentation  string
	// Relation is set for relation fields only.
	Relation *RelationInfo
}

func (f *Field) IsRelation() bool { return f.Relation != nil }
func (f *Field) IsList() bool { return f.Arity == List }
func (f *Field) IsRequired() bool { return f.Arity == Required }

// FinalDatabaseName is the column name of a scalar field.
func (f *Field) FinalDatabaseName() string {
	if f.DatabaseName != "" {
		return f.DatabaseName
	}
	return f.Name
}

type OnDeleteStrategy string

const (
	OnDeleteNone    OnDeleteStrategy = ""
	OnDeleteCascade OnDeleteStrategy = "Cascade"
)

type RelationInfo struct {
	// To is the name of the related model.
	To string
	// Fields are the scalar fields of this model holding the foreign key.
	Fields []string
	// References are the fields of the related model the foreign key points to.
	References []string
	Name       string
	OnDelete   OnDeleteStrategy
}

type DefaultKind int

const (
	// DefaultSingle is a literal value.
	DefaultSingle DefaultKind = iota
	// DefaultExpression is a value generator such as autoincrement() or now().
	DefaultExpression
)

// DefaultValue is a field default. For DefaultSingle, Value is the literal
// text; for DefaultExpression it is the generator name and Args its arguments.
type DefaultValue struct {
	Kind  DefaultKind
	Value string
	Args  []string
}

func SingleDefault(v string) *DefaultValue {
	return &DefaultValue{Kind: DefaultSingle, Value: v}
}

func GeneratedDefault(name string, args ...string) *DefaultValue {
	return &DefaultValue{Kind: DefaultExpression, Value: name, Args: args}
}

func (d *DefaultValue) IsGenerator(name string) bool {
	return d != nil && d.Kind == DefaultExpression && d.Value == name
}

func (d *DefaultValue) String() string {
	if d.Kind == DefaultSingle {
		return d.Value
	}
	quoted := make([]string, len(d.Args))
	for i, a := range d.Args {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return d.Value + "(" + strings.Join(quoted, ", ") + ")"
}

type IndexType string

const (
	IndexUnique IndexType = "unique"
	IndexNormal IndexType = "normal"
)

type IndexDefinition struct {
	Name   string
	Fields []string
	Type   IndexType
}

type Enum struct {
	Name           string
	DatabaseName   string
	Values         []EnumValue
	IsCommentedOut bool
	Documentation  string
}

type EnumValue struct {
	Name           string
	DatabaseName   string
	IsCommentedOut bool
	Documentation  string
}

// FinalDatabaseName is the name of the enum in the database.
func (e *Enum) FinalDatabaseName() string {
	if e.DatabaseName != "" {
		return e.DatabaseName
	}
	return e.Name
}

// DatabaseValues lists the values as stored in the database.
func (e *Enum) DatabaseValues() []string {
	out := make([]string, 0, len(e.Values))
	for _, v := range e.Values {
		if v.IsCommentedOut {
			continue
		}
		if v.DatabaseName != "" {
			out = append(out, v.DatabaseName)
		} else {
			out = append(out, v.Name)
		}
	}
	return out
}

func (dm *Datamodel) FindModel(name string) *Model {
	if i := dm.ModelIndex(name); i >= 0 {
		return &dm.Models[i]
	}
	return nil
}

// ModelIndex returns the position of the named model, or -1.
func (dm *Datamodel) ModelIndex(name string) int {
	for i := range dm.Models {
		if dm.Models[i].Name == name {
			return i
		}
	}
	return -1
}

// FindModelByDatabaseName looks a model up by its table name.
func (dm *Datamodel) FindModelByDatabaseName(table string) *Model {
	for i := range dm.Models {
		if dm.Models[i].FinalDatabaseName() == table {
			return &dm.Models[i]
		}
	}
	return nil
}

func (dm *Datamodel) FindEnum(name string) *Enum {
	for i := range dm.Enums {
		if dm.Enums[i].Name == name {
			return &dm.Enums[i]
		}
	}
	return nil
}

// FindEnumByDatabaseName looks an enum up by its database name.
func (dm *Datamodel) FindEnumByDatabaseName(name string) *Enum {
	for i := range dm.Enums {
		if dm.Enums[i].FinalDatabaseName() == name {
			return &dm.Enums[i]
		}
	}
	return nil
}

// FinalDatabaseName is the table name of the model.
func (m *Model) FinalDatabaseName() string {
	if m.DatabaseName != "" {
		return m.DatabaseName
	}
	return m.Name
}

func (m *Model) FindField(name string) *Field {
	if i := m.FieldIndex(name); i >= 0 {
		return &m.Fields[i]
	}
	return nil
}

// FieldIndex returns the position of the named field, or -1.
func (m *Model) FieldIndex(name string) int {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

// FindScalarFieldByDatabaseName looks a scalar field up by its column name.
func (m *Model) FindScalarFieldByDatabaseName(column string) *Field {
	for i := range m.Fields {
		f := &m.Fields[i]
		if !f.IsRelation() && f.FinalDatabaseName() == column {
			return f
		}
	}
	return nil
}

func (m *Model) ScalarFields() []*Field {
	var out []*Field
	for i := range m.Fields {
		if !m.Fields[i].IsRelation() {
			out = append(out, &m.Fields[i])
		}
	}
	return out
}

func (m *Model) RelationFields() []*Field {
	var out []*Field
	for i := range m.Fields {
		if m.Fields[i].IsRelation() {
			out = append(out, &m.Fields[i])
		}
	}
	return out
}

// HasUniqueCriteria reports whether rows of the model can be identified: an id
// field, a compound id, a unique field or a unique index over required fields.
func (m *Model) HasUniqueCriteria() bool {
	if len(m.IDFields) > 0 {
		return true
	}
	for _, f := range m.Fields {
		f := f
		if f.IsCommentedOut || f.IsRelation() {
			continue
		}
		if f.IsID || (f.IsUnique && f.IsRequired()) {
			return true
		}
	}
	for _, idx := range m.Indices {
		if idx.Type != IndexUnique {
			continue
		}
		usable := true
		for _, name := range idx.Fields {
			f := m.FindField(name)
			if f == nil || !f.IsRequired() || f.IsCommentedOut {
				usable = false
				break
			}
		}
		if usable {
			return true
		}
	}
	return false
}

// DefaultRelationName is the name of an unnamed relation between two models.
func DefaultRelationName(modelA, modelB string) string {
	if modelA > modelB {
		modelA, modelB = modelB, modelA
	}
	return modelA + "To" + modelB
}
