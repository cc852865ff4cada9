package describer

import (
	"fmt"
	"slices"
)

// SqlSchema is the physical schema of one database schema, as reported by a Describer.
type SqlSchema struct {
	Tables    []Table    `json:"tables"`
	Enums     []Enum     `json:"enums"`
	Sequences []Sequence `json:"sequences"`
}

// Table returns the table with the given name, or nil.
func (s *SqlSchema) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

func (s *SqlSchema) HasTable(name string) bool {
	return s.Table(name) != nil
}

// Enum returns the enum with the given name, or nil.
func (s *SqlSchema) Enum(name string) *Enum {
	for i := range s.Enums {
		if s.Enums[i].Name == name {
			return &s.Enums[i]
		}
	}
	return nil
}

// Sequence returns the sequence with the given name, or nil.
func (s *SqlSchema) Sequence(name string) *Sequence {
	for i := range s.Sequences {
		if s.Sequences[i].Name == name {
			return &s.Sequences[i]
		}
	}
	return nil
}

func (s *SqlSchema) IsEmpty() bool {
	return len(s.Tables) == 0 && len(s.Enums) == 0 && len(s.Sequences) == 0
}

// WithoutTables returns a copy of the schema with the named tables removed.
func (s *SqlSchema) WithoutTables(names ...string) *SqlSchema {
	out := &SqlSchema{
		Enums:     s.Enums,
		Sequences: s.Sequences,
	}
	for _, t := range s.Tables {
		if !slices.Contains(names, t.Name) {
			out.Tables = append(out.Tables, t)
		}
	}
	return out
}

type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	Indices     []Index      `json:"indices"`
	PrimaryKey  *PrimaryKey  `json:"primaryKey,omitempty"`
	ForeignKeys []ForeignKey `json:"foreignKeys"`
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

func (t *Table) HasColumn(name string) bool {
	return t.Column(name) != nil
}

// IsPartOfForeignKey reports whether the column is constrained by any foreign key of the table.
func (t *Table) IsPartOfForeignKey(column string) bool {
	for _, fk := range t.ForeignKeys {
		if slices.Contains(fk.Columns, column) {
			return true
		}
	}
	return false
}

// IsColumnUnique reports whether a single-column unique index covers the column.
func (t *Table) IsColumnUnique(column string) bool {
	for _, idx := range t.Indices {
		if idx.Type == IndexTypeUnique && len(idx.Columns) == 1 && idx.Columns[0] == column {
			return true
		}
	}
	return false
}

// IsColumnPrimaryKey reports whether the column is part of the primary key.
func (t *Table) IsColumnPrimaryKey(column string) bool {
	return t.PrimaryKey != nil && slices.Contains(t.PrimaryKey.Columns, column)
}

// Index returns the index with the given name, or nil.
func (t *Table) Index(name string) *Index {
	for i := range t.Indices {
		if t.Indices[i].Name == name {
			return &t.Indices[i]
		}
	}
	return nil
}

type Column struct {
	Name          string        `json:"name"`
	Type          ColumnType    `json:"tpe"`
	Default       *DefaultValue `json:"default,omitempty"`
	AutoIncrement bool          `json:"autoIncrement"`
}

func (c *Column) IsRequired() bool {
	return c.Type.Arity == ArityRequired
}

type ColumnType struct {
	DataType               string           `json:"dataType"`
	FullDataType           string           `json:"fullDataType"`
	CharacterMaximumLength *int64           `json:"characterMaximumLength,omitempty"`
	Family                 ColumnTypeFamily `json:"family"`
	Arity                  ColumnArity      `json:"arity"`
	NativeType             string           `json:"nativeType,omitempty"`
}

// FamilyKind enumerates the column type families.
type FamilyKind int

const (
	KindInt FamilyKind = iota
	KindFloat
	KindDecimal
	KindBoolean
	KindString
	KindDateTime
	KindDuration
	KindBinary
	KindJson
	KindXml
	KindUuid
	KindEnum
	KindUnsupported
)

// ColumnTypeFamily is the abstract family of a column type. Name carries the
// enum name for KindEnum and the raw database type for KindUnsupported.
type ColumnTypeFamily struct {
	Kind FamilyKind `json:"kind"`
	Name string     `json:"name,omitempty"`
}

var (
	FamilyInt      = ColumnTypeFamily{Kind: KindInt}
	FamilyFloat    = ColumnTypeFamily{Kind: KindFloat}
	FamilyDecimal  = ColumnTypeFamily{Kind: KindDecimal}
	FamilyBoolean  = ColumnTypeFamily{Kind: KindBoolean}
	FamilyString   = ColumnTypeFamily{Kind: KindString}
	FamilyDateTime = ColumnTypeFamily{Kind: KindDateTime}
	FamilyDuration = ColumnTypeFamily{Kind: KindDuration}
	FamilyBinary   = ColumnTypeFamily{Kind: KindBinary}
	FamilyJson     = ColumnTypeFamily{Kind: KindJson}
	FamilyXml      = ColumnTypeFamily{Kind: KindXml}
	FamilyUuid     = ColumnTypeFamily{Kind: KindUuid}
)

func EnumFamily(name string) ColumnTypeFamily {
	return ColumnTypeFamily{Kind: KindEnum, Name: name}
}

func UnsupportedFamily(raw string) ColumnTypeFamily {
	return ColumnTypeFamily{Kind: KindUnsupported, Name: raw}
}

func (f ColumnTypeFamily) IsEnum() bool { return f.Kind == KindEnum }
func (f ColumnTypeFamily) IsUnsupported() bool { return f.Kind == KindUnsupported }

func (f ColumnTypeFamily) String() string {
	switch f.Kind {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindDateTime:
		return "dateTime"
	case KindDuration:
		return "duration"
	case KindBinary:
		return "binary"
	case KindJson:
		return "json"
	case KindXml:
		return "xml"
	case KindUuid:
		return "uuid"
	case KindEnum:
		return fmt.Sprintf("Enum(%s)", f.Name)
	default:
		return f.Name
	}
}

type ColumnArity string

const (
	ArityRequired ColumnArity = "required"
	ArityNullable ColumnArity = "nullable"
	ArityList     ColumnArity = "list"
)

type IndexType string

const (
	IndexTypeUnique IndexType = "unique"
	IndexTypeNormal IndexType = "normal"
)

type Index struct {
	Name    string    `json:"name"`
	Columns []string  `json:"columns"`
	Type    IndexType `json:"tpe"`
}

func (i *Index) IsUnique() bool {
	return i.Type == IndexTypeUnique
}

type PrimaryKey struct {
	Columns        []string  `json:"columns"`
	Sequence       *Sequence `json:"sequence,omitempty"`
	ConstraintName string    `json:"constraintName,omitempty"`
}

type ForeignKeyAction string

const (
	NoAction   ForeignKeyAction = "noAction"
	Restrict   ForeignKeyAction = "restrict"
	Cascade    ForeignKeyAction = "cascade"
	SetNull    ForeignKeyAction = "setNull"
	SetDefault ForeignKeyAction = "setDefault"
)

// ParseForeignKeyAction maps an information_schema rule ("SET NULL", "cascade", ...) to an action.
func ParseForeignKeyAction(rule string) (ForeignKeyAction, error) {
	switch normalizeRule(rule) {
	case "cascade":
		return Cascade, nil
	case "set null":
		return SetNull, nil
	case "set default":
		return SetDefault, nil
	case "restrict":
		return Restrict, nil
	case "no action":
		return NoAction, nil
	}
	return "", fmt.Errorf("unrecognized foreign key action %q", rule)
}

type ForeignKey struct {
	ConstraintName    string           `json:"constraintName,omitempty"`
	Columns           []string         `json:"columns"`
	ReferencedTable   string           `json:"referencedTable"`
	ReferencedColumns []string         `json:"referencedColumns"`
	OnDeleteAction    ForeignKeyAction `json:"onDeleteAction"`
	OnUpdateAction    ForeignKeyAction `json:"onUpdateAction"`
}

// Equal compares the columns, referenced table and referenced columns. The
// constraint name does not take part.
func (fk *ForeignKey) Equal(other *ForeignKey) bool {
	return slices.Equal(fk.Columns, other.Columns) &&
		fk.ReferencedTable == other.ReferencedTable &&
		slices.Equal(fk.ReferencedColumns, other.ReferencedColumns)
}

type Enum struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type Sequence struct {
	Name           string `json:"name"`
	InitialValue   int64  `json:"initialValue"`
	AllocationSize int64  `json:"allocationSize"`
}

type DefaultKind string

const (
	DefaultKindValue       DefaultKind = "VALUE"
	DefaultKindNow         DefaultKind = "NOW"
	DefaultKindSequence    DefaultKind = "SEQUENCE"
	DefaultKindDbGenerated DefaultKind = "DBGENERATED"
)

// DefaultValue is a column default. Value holds the literal for VALUE, the
// sequence name for SEQUENCE and the raw expression for DBGENERATED.
type DefaultValue struct {
	Kind  DefaultKind `json:"kind"`
	Value string      `json:"value,omitempty"`
}

func DefaultValueOf(v string) *DefaultValue {
	return &DefaultValue{Kind: DefaultKindValue, Value: v}
}

func DefaultNow() *DefaultValue {
	return &DefaultValue{Kind: DefaultKindNow}
}

func DefaultSequence(name string) *DefaultValue {
	return &DefaultValue{Kind: DefaultKindSequence, Value: name}
}

func DefaultDbGenerated(raw string) *DefaultValue {
	return &DefaultValue{Kind: DefaultKindDbGenerated, Value: raw}
}

// SqlMetadata is the size summary returned by Describer.GetMetadata.
type SqlMetadata struct {
	TableCount  int   `json:"table_count"`
	SizeInBytes int64 `json:"size_in_bytes"`
}
