package introspect

import (
	"slices"
	"strings"

	"github.com/ridoystarlord/schemaengine/datamodel"
	"github.com/ridoystarlord/schemaengine/describer"
)

const (
	uncommentableModelDoc = "The underlying table does not contain a valid unique identifier and can therefore currently not be handled."
	unsupportedFieldDoc   = "This type is currently not supported."
)

// MigrationTables are the bookkeeping tables hidden from introspection and
// drift checks.
var MigrationTables = []string{"_Migration", "_prisma_migrations"}

func isMigrationTable(t *describer.Table) bool {
	return slices.Contains(MigrationTables, t.Name)
}

// isJoinTable recognises the implicit many-to-many tables: `_Name` with the
// columns A and B, a foreign key on each and a unique index over both.
func isJoinTable(t *describer.Table) bool {
	if !strings.HasPrefix(t.Name, "_") || len(t.Columns) != 2 {
		return false
	}
	return hasJoinShape(t) && hasUniqueIndexOn(t, "A", "B")
}

// isLegacyJoinTable recognises the oldest generation of join tables, which
// carry an extra id column.
func isLegacyJoinTable(t *describer.Table) bool {
	if !strings.HasPrefix(t.Name, "_") || len(t.Columns) != 3 || !t.HasColumn("id") {
		return false
	}
	return hasJoinShape(t)
}

func hasJoinShape(t *describer.Table) bool {
	if !t.HasColumn("A") || !t.HasColumn("B") || len(t.ForeignKeys) != 2 {
		return false
	}
	a, b := joinForeignKeys(t)
	return a != nil && b != nil
}

func joinForeignKeys(t *describer.Table) (a, b *describer.ForeignKey) {
	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]
		switch {
		case slices.Equal(fk.Columns, []string{"A"}):
			a = fk
		case slices.Equal(fk.Columns, []string{"B"}):
			b = fk
		}
	}
	return a, b
}

func hasUniqueIndexOn(t *describer.Table, columns ...string) bool {
	for _, idx := range t.Indices {
		idx := idx
		if idx.IsUnique() && slices.Equal(idx.Columns, columns) {
			return true
		}
	}
	return false
}

// translate is the one to one translation of tables, columns, foreign keys,
// indexes and enums.
func translate(schema *describer.SqlSchema, checker *versionChecker, nativeTypes bool) *datamodel.Datamodel {
	dm := &datamodel.Datamodel{}

	for i := range schema.Tables {
		table := &schema.Tables[i]
		checker.checkTable(table)
		if isMigrationTable(table) || table.Name == relayTable || isJoinTable(table) || isLegacyJoinTable(table) {
			continue
		}

		model := datamodel.Model{Name: table.Name}
		for _, col := range table.Columns {
			col := col
			checker.checkColumn(table, &col)
			model.Fields = append(model.Fields, scalarField(table, &col, nativeTypes))
		}

		for _, fk := range uniqueForeignKeys(table.ForeignKeys) {
			if referencesCommentedOutField(&model, fk) {
				continue
			}
			checker.checkForeignKey(table, fk)
			model.Fields = append(model.Fields, relationField(schema, table, fk))
		}

		for _, idx := range table.Indices {
			idx := idx
			if idx.IsUnique() && len(idx.Columns) == 1 {
				continue
			}
			model.Indices = append(model.Indices, datamodel.IndexDefinition{
				Name:   idx.Name,
				Fields: slices.Clone(idx.Columns),
				Type:   indexType(idx.Type),
			})
		}

		if table.PrimaryKey != nil && len(table.PrimaryKey.Columns) > 1 {
			model.IDFields = slices.Clone(table.PrimaryKey.Columns)
		}
		checker.checkTimestamps(table)
		dm.Models = append(dm.Models, model)
	}

	for _, e := range schema.Enums {
		enum := datamodel.Enum{Name: e.Name}
		for _, v := range e.Values {
			enum.Values = append(enum.Values, datamodel.EnumValue{Name: v})
		}
		dm.Enums = append(dm.Enums, enum)
	}

	addBackRelationFields(schema, dm)
	addJoinTableFields(schema, dm)
	return dm
}

func uniqueForeignKeys(fks []describer.ForeignKey) []*describer.ForeignKey {
	var out []*describer.ForeignKey
	for i := range fks {
		fk := &fks[i]
		if !slices.ContainsFunc(out, fk.Equal) {
			out = append(out, fk)
		}
	}
	return out
}

func referencesCommentedOutField(model *datamodel.Model, fk *describer.ForeignKey) bool {
	for _, c := range fk.Columns {
		if f := model.FindField(c); f == nil || f.IsCommentedOut {
			return true
		}
	}
	return false
}

func indexType(t describer.IndexType) datamodel.IndexType {
	if t == describer.IndexTypeUnique {
		return datamodel.IndexUnique
	}
	return datamodel.IndexNormal
}

func scalarField(table *describer.Table, col *describer.Column, nativeTypes bool) datamodel.Field {
	field := datamodel.Field{
		Name: col.Name,
		Type: scalarFieldType(col),
	}
	if field.Type.Kind == datamodel.TypeUnsupported {
		field.IsCommentedOut = true
		field.Documentation = unsupportedFieldDoc
	} else if nativeTypes && field.Type.Kind == datamodel.TypeBase {
		field.Type.NativeType = col.Type.NativeType
	}

	switch {
	case col.AutoIncrement && isScalar(&field, datamodel.Int):
		field.Arity = datamodel.Required
	case col.Type.Arity == describer.ArityNullable:
		field.Arity = datamodel.Optional
	case col.Type.Arity == describer.ArityList:
		field.Arity = datamodel.List
	default:
		field.Arity = datamodel.Required
	}

	pk := table.PrimaryKey
	field.IsID = pk != nil && len(pk.Columns) == 1 && pk.Columns[0] == col.Name
	field.IsUnique = table.IsColumnUnique(col.Name) && !field.IsID
	field.Default = fieldDefault(table, col, field.Arity)
	return field
}

// scalarFieldType maps a column family. Families outside the supported set
// become Unsupported.
func scalarFieldType(col *describer.Column) datamodel.FieldType {
	family := col.Type.Family
	switch family.Kind {
	case describer.KindBoolean:
		return datamodel.BaseType(datamodel.Boolean)
	case describer.KindDateTime:
		return datamodel.BaseType(datamodel.DateTime)
	case describer.KindFloat:
		return datamodel.BaseType(datamodel.Float)
	case describer.KindInt:
		return datamodel.BaseType(datamodel.Int)
	case describer.KindString, describer.KindUuid:
		return datamodel.BaseType(datamodel.String)
	case describer.KindJson:
		return datamodel.BaseType(datamodel.Json)
	case describer.KindEnum:
		return datamodel.EnumType(family.Name)
	}
	return datamodel.UnsupportedType(family.String())
}

func fieldDefault(table *describer.Table, col *describer.Column, arity datamodel.FieldArity) *datamodel.DefaultValue {
	if arity == datamodel.List {
		return nil
	}
	family := col.Type.Family.Kind
	switch {
	case family == describer.KindInt && col.AutoIncrement:
		return datamodel.GeneratedDefault("autoincrement")
	case family == describer.KindInt && isSequencePrimaryKey(table, col.Name):
		return datamodel.GeneratedDefault("autoincrement")
	case col.Default == nil:
		return nil
	}
	switch col.Default.Kind {
	case describer.DefaultKindSequence:
		return datamodel.GeneratedDefault("autoincrement")
	case describer.DefaultKindNow:
		if family == describer.KindDateTime {
			return datamodel.GeneratedDefault("now")
		}
		return nil
	case describer.DefaultKindDbGenerated:
		return datamodel.GeneratedDefault("dbgenerated")
	}
	return datamodel.SingleDefault(col.Default.Value)
}

func isSequencePrimaryKey(table *describer.Table, column string) bool {
	pk := table.PrimaryKey
	return pk != nil && pk.Sequence != nil && len(pk.Columns) == 1 && pk.Columns[0] == column
}

func relationField(schema *describer.SqlSchema, table *describer.Table, fk *describer.ForeignKey) datamodel.Field {
	arity := datamodel.Optional
	for _, c := range fk.Columns {
		if col := table.Column(c); col != nil && col.IsRequired() {
			arity = datamodel.Required
		}
	}
	return datamodel.Field{
		Name:  fk.ReferencedTable,
		Arity: arity,
		Type:  datamodel.RelationType(fk.ReferencedTable),
		Relation: &datamodel.RelationInfo{
			To:         fk.ReferencedTable,
			Fields:     slices.Clone(fk.Columns),
			References: slices.Clone(fk.ReferencedColumns),
			Name:       relationName(schema, fk, table),
		},
	}
}

// relationName is `{A}To{B}` for the only foreign key between two tables and
// `{A}_{columns}To{B}` (or `{B}To{A}_{columns}`) when there are several.
func relationName(schema *describer.SqlSchema, fk *describer.ForeignKey, table *describer.Table) string {
	referenced := fk.ReferencedTable
	columns := strings.Join(fk.Columns, "_")

	toSameTable := 0
	for _, other := range table.ForeignKeys {
		if other.ReferencedTable == referenced {
			toSameTable++
		}
	}
	fromOtherTable := 0
	if other := schema.Table(referenced); other != nil {
		for _, back := range other.ForeignKeys {
			if back.ReferencedTable == table.Name {
				fromOtherTable++
			}
		}
	}

	if toSameTable < 2 && fromOtherTable == 0 {
		return datamodel.DefaultRelationName(table.Name, referenced)
	}
	if table.Name < referenced {
		return table.Name + "_" + columns + "To" + referenced
	}
	return referenced + "To" + table.Name + "_" + columns
}

// addBackRelationFields gives every relation field without an opposite one a
// back relation on the referenced model.
func addBackRelationFields(schema *describer.SqlSchema, dm *datamodel.Datamodel) {
	type pending struct {
		model int
		field datamodel.Field
	}
	var added []pending

	for mi := range dm.Models {
		model := &dm.Models[mi]
		for fi := range model.Fields {
			field := &model.Fields[fi]
			if !field.IsRelation() {
				continue
			}
			if _, _, ok := dm.FindRelatedField(mi, fi); ok {
				continue
			}
			target := dm.ModelIndex(field.Relation.To)
			if target < 0 {
				continue
			}
			added = append(added, pending{model: target, field: backRelationField(schema, model, field)})
		}
	}
	for _, p := range added {
		dm.Models[p.model].Fields = append(dm.Models[p.model].Fields, p.field)
	}
}

func backRelationField(schema *describer.SqlSchema, model *datamodel.Model, field *datamodel.Field) datamodel.Field {
	arity := datamodel.List
	if table := schema.Table(model.Name); table != nil && columnsAreUnique(table, field.Relation.Fields) {
		arity = datamodel.Optional
	}
	name := model.Name
	if model.Name == field.Relation.To {
		name = "other_" + model.Name
	}
	return datamodel.Field{
		Name:     name,
		Arity:    arity,
		Type:     datamodel.RelationType(model.Name),
		Relation: &datamodel.RelationInfo{To: model.Name, Name: field.Relation.Name},
	}
}

func columnsAreUnique(table *describer.Table, columns []string) bool {
	if pk := table.PrimaryKey; pk != nil && slices.Equal(pk.Columns, columns) {
		return true
	}
	return hasUniqueIndexOn(table, columns...)
}

// addJoinTableFields turns each join table into a pair of list relation fields.
func addJoinTableFields(schema *describer.SqlSchema, dm *datamodel.Datamodel) {
	for i := range schema.Tables {
		table := &schema.Tables[i]
		if !isJoinTable(table) && !isLegacyJoinTable(table) {
			continue
		}
		a, b := joinForeignKeys(table)
		relation := strings.TrimPrefix(table.Name, "_")
		selfRelation := a.ReferencedTable == b.ReferencedTable
		for _, pair := range [][2]*describer.ForeignKey{{a, b}, {b, a}} {
			fk, opposite := pair[0], pair[1]
			model := dm.FindModel(fk.ReferencedTable)
			if model == nil {
				continue
			}
			name := opposite.ReferencedTable
			if selfRelation {
				name += "_" + opposite.Columns[0]
			}
			model.Fields = append(model.Fields, datamodel.Field{
				Name:     name,
				Arity:    datamodel.List,
				Type:     datamodel.RelationType(opposite.ReferencedTable),
				Relation: &datamodel.RelationInfo{To: opposite.ReferencedTable, Name: relation},
			})
		}
	}
}
