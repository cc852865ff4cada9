// Package calculator turns a declarative data model into the physical schema
// it stands for on a given SQL flavour.
package calculator

import (
	"strings"

	"github.com/ridoystarlord/schemaengine/datamodel"
	"github.com/ridoystarlord/schemaengine/describer"
	"github.com/ridoystarlord/schemaengine/flavour"
)

// Calculate returns the target schema of dm. Commented out models and fields
// take no part.
func Calculate(dm *datamodel.Datamodel, f flavour.Flavour) *describer.SqlSchema {
	c := &calculation{dm: dm, flavour: f, schema: &describer.SqlSchema{}}

	if f.EnumStrategy() == flavour.EnumNative {
		for ei := range dm.Enums {
			e := &dm.Enums[ei]
			if e.IsCommentedOut {
				continue
			}
			c.schema.Enums = append(c.schema.Enums, describer.Enum{Name: e.FinalDatabaseName(), Values: e.DatabaseValues()})
		}
	}

	for mi := range dm.Models {
		m := &dm.Models[mi]
		if m.IsCommentedOut || m.IsEmbedded {
			continue
		}
		c.schema.Tables = append(c.schema.Tables, c.table(m))
	}

	for _, r := range datamodel.CalculateRelations(dm) {
		switch r.Manifestation.Kind {
		case datamodel.Inline:
			c.inlineRelation(r)
		case datamodel.Table:
			c.joinTable(r)
		}
	}
	return c.schema
}

type calculation struct {
	dm      *datamodel.Datamodel
	flavour flavour.Flavour
	schema  *describer.SqlSchema
}

func (c *calculation) table(m *datamodel.Model) describer.Table {
	name := m.FinalDatabaseName()
	t := describer.Table{Name: name}

	var idColumns []string
	for fi := range m.Fields {
		field := &m.Fields[fi]
		if field.IsRelation() || field.IsCommentedOut {
			continue
		}
		col := c.column(name, field)
		t.Columns = append(t.Columns, col)
		if field.IsID {
			idColumns = append(idColumns, col.Name)
		}
		if field.IsUnique && !field.IsID {
			t.Indices = append(t.Indices, describer.Index{
				Name:    indexName(name, []string{col.Name}, "key"),
				Columns: []string{col.Name},
				Type:    describer.IndexTypeUnique,
			})
		}
	}
	if len(m.IDFields) > 0 {
		idColumns = columnNames(m, m.IDFields)
	}
	if len(idColumns) > 0 {
		t.PrimaryKey = &describer.PrimaryKey{Columns: idColumns, ConstraintName: name + "_pkey"}
	}

	for _, idx := range m.Indices {
		columns := columnNames(m, idx.Fields)
		out := describer.Index{Name: idx.Name, Columns: columns, Type: describer.IndexTypeNormal}
		suffix := "idx"
		if idx.Type == datamodel.IndexUnique {
			out.Type = describer.IndexTypeUnique
			suffix = "key"
		}
		if out.Name == "" {
			out.Name = indexName(name, columns, suffix)
		}
		t.Indices = append(t.Indices, out)
	}
	return t
}

func (c *calculation) column(table string, field *datamodel.Field) describer.Column {
	col := describer.Column{
		Name: field.FinalDatabaseName(),
		Type: describer.ColumnType{
			Family:     c.family(table, field),
			Arity:      columnArity(field.Arity),
			NativeType: field.Type.NativeType,
		},
	}
	col.Type.DataType = c.flavour.ColumnTypeSQL(col, c.schema.Enum(col.Type.Family.Name))
	col.Type.FullDataType = col.Type.DataType

	d := field.Default
	switch {
	case d == nil:
	case d.IsGenerator("autoincrement"):
		col.AutoIncrement = true
	case d.IsGenerator("now"):
		col.Default = describer.DefaultNow()
	case d.IsGenerator("dbgenerated"):
		if len(d.Args) > 0 {
			col.Default = describer.DefaultDbGenerated(d.Args[0])
		}
	case d.Kind == datamodel.DefaultSingle:
		col.Default = describer.DefaultValueOf(c.literal(field, d.Value))
	}
	return col
}

// family maps a field type. Inline enums get a family of their own per
// column, named the way the MySQL describer names them.
func (c *calculation) family(table string, field *datamodel.Field) describer.ColumnTypeFamily {
	switch field.Type.Kind {
	case datamodel.TypeEnum:
		enum := c.dm.FindEnum(field.Type.Name)
		switch c.flavour.EnumStrategy() {
		case flavour.EnumAsText:
			return describer.FamilyString
		case flavour.EnumInline:
			name := table + "_" + field.FinalDatabaseName()
			if enum != nil && c.schema.Enum(name) == nil {
				c.schema.Enums = append(c.schema.Enums, describer.Enum{Name: name, Values: enum.DatabaseValues()})
			}
			return describer.EnumFamily(name)
		}
		if enum != nil {
			return describer.EnumFamily(enum.FinalDatabaseName())
		}
		return describer.EnumFamily(field.Type.Name)
	case datamodel.TypeUnsupported:
		return describer.UnsupportedFamily(field.Type.Name)
	}
	switch field.Type.Scalar {
	case datamodel.Int:
		return describer.FamilyInt
	case datamodel.Float:
		return describer.FamilyFloat
	case datamodel.Decimal:
		return describer.FamilyDecimal
	case datamodel.Boolean:
		return describer.FamilyBoolean
	case datamodel.DateTime:
		return describer.FamilyDateTime
	case datamodel.Duration:
		return describer.FamilyDuration
	case datamodel.Bytes:
		return describer.FamilyBinary
	case datamodel.Json:
		return describer.FamilyJson
	case datamodel.XML:
		return describer.FamilyXml
	}
	return describer.FamilyString
}

// literal maps an enum default to its database value.
func (c *calculation) literal(field *datamodel.Field, value string) string {
	if field.Type.Kind != datamodel.TypeEnum {
		return value
	}
	if enum := c.dm.FindEnum(field.Type.Name); enum != nil {
		for _, v := range enum.Values {
			if v.Name == value && v.DatabaseName != "" {
				return v.DatabaseName
			}
		}
	}
	return value
}

func (c *calculation) inlineRelation(r datamodel.Relation) {
	m := &c.dm.Models[r.Manifestation.InModel]
	field := &m.Fields[r.Manifestation.Field]
	target := c.dm.FindModel(field.Relation.To)
	if target == nil || target.IsCommentedOut {
		return
	}
	t := c.schema.Table(m.FinalDatabaseName())
	if t == nil {
		return
	}

	references := field.Relation.References
	if len(references) == 0 {
		references = idFieldNames(target)
	}
	referenced := columnNames(target, references)

	var columns []string
	if len(field.Relation.Fields) > 0 {
		columns = columnNames(m, field.Relation.Fields)
	} else {
		// Relations without scalar fields get one column per referenced
		// column, named after the relation field.
		for _, ref := range referenced {
			name := field.Name
			if len(referenced) > 1 {
				name += "_" + ref
			}
			col := describer.Column{Name: name}
			if tc := c.schema.Table(target.FinalDatabaseName()); tc != nil {
				if refCol := tc.Column(ref); refCol != nil {
					col.Type = refCol.Type
					col.Type.Arity = columnArity(field.Arity)
					if col.Type.Arity == describer.ArityList {
						col.Type.Arity = describer.ArityNullable
					}
				}
			}
			t.Columns = append(t.Columns, col)
			columns = append(columns, name)
		}
	}

	t.ForeignKeys = append(t.ForeignKeys, describer.ForeignKey{
		ConstraintName:    indexName(t.Name, columns, "fkey"),
		Columns:           columns,
		ReferencedTable:   target.FinalDatabaseName(),
		ReferencedColumns: referenced,
		OnDeleteAction:    onDelete(t, field, columns),
		OnUpdateAction:    describer.Cascade,
	})
}

func onDelete(t *describer.Table, field *datamodel.Field, columns []string) describer.ForeignKeyAction {
	if field.Relation.OnDelete == datamodel.OnDeleteCascade {
		return describer.Cascade
	}
	for _, name := range columns {
		if col := t.Column(name); col != nil && col.IsRequired() {
			return describer.Restrict
		}
	}
	return describer.SetNull
}

// joinTable adds the `_{relation}` table with the columns A and B.
func (c *calculation) joinTable(r datamodel.Relation) {
	a, b := &c.dm.Models[r.ModelA], &c.dm.Models[r.ModelB]
	name := r.Manifestation.JoinTable
	t := describer.Table{Name: name}

	for _, side := range []struct {
		column string
		model  *datamodel.Model
	}{{r.Manifestation.ColumnA, a}, {r.Manifestation.ColumnB, b}} {
		ids := columnNames(side.model, idFieldNames(side.model))
		if len(ids) != 1 {
			return
		}
		col := describer.Column{Name: side.column}
		if target := c.schema.Table(side.model.FinalDatabaseName()); target != nil {
			if idCol := target.Column(ids[0]); idCol != nil {
				col.Type = idCol.Type
			}
		}
		col.Type.Arity = describer.ArityRequired
		t.Columns = append(t.Columns, col)
		t.ForeignKeys = append(t.ForeignKeys, describer.ForeignKey{
			ConstraintName:    indexName(name, []string{side.column}, "fkey"),
			Columns:           []string{side.column},
			ReferencedTable:   side.model.FinalDatabaseName(),
			ReferencedColumns: ids,
			OnDeleteAction:    describer.Cascade,
			OnUpdateAction:    describer.Cascade,
		})
	}

	colA, colB := r.Manifestation.ColumnA, r.Manifestation.ColumnB
	t.Indices = []describer.Index{
		{Name: name + "_" + colA + colB + "_unique", Columns: []string{colA, colB}, Type: describer.IndexTypeUnique},
		{Name: name + "_" + colB + "_index", Columns: []string{colB}, Type: describer.IndexTypeNormal},
	}
	c.schema.Tables = append(c.schema.Tables, t)
}

func columnArity(a datamodel.FieldArity) describer.ColumnArity {
	switch a {
	case datamodel.Optional:
		return describer.ArityNullable
	case datamodel.List:
		return describer.ArityList
	}
	return describer.ArityRequired
}

func idFieldNames(m *datamodel.Model) []string {
	if len(m.IDFields) > 0 {
		return m.IDFields
	}
	for _, f := range m.Fields {
		if f.IsID {
			return []string{f.Name}
		}
	}
	return nil
}

// columnNames maps field names to column names. Unknown names map to
// themselves.
func columnNames(m *datamodel.Model, fields []string) []string {
	out := make([]string, len(fields))
	for i, name := range fields {
		if f := m.FindField(name); f != nil {
			out[i] = f.FinalDatabaseName()
		} else {
			out[i] = name
		}
	}
	return out
}

func indexName(table string, columns []string, suffix string) string {
	return table + "_" + strings.Join(columns, "_") + "_" + suffix
}
