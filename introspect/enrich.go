package introspect

import (
	"slices"

	"github.com/ridoystarlord/schemaengine/datamodel"
)

const (
	WarnModelsWithoutIdentifier = 1
	WarnFieldsWithInvalidNames  = 2
	WarnUnsupportedTypes        = 3
	WarnEnumValuesInvalidNames  = 4
	WarnPrisma1CuidDefaults     = 5
	WarnPrisma1UUIDDefaults     = 6
	WarnEnrichedModelMaps       = 7
	WarnEnrichedFieldMaps       = 8
	WarnEnrichedEnumValueMaps   = 9
	WarnEnrichedEnumMaps        = 10
	WarnEnrichedDefaults        = 11
	WarnEnrichedUpdatedAt       = 12
	WarnEnrichedRelationNames   = 13
)

// enrich carries what the user chose in the previous data model over to the
// freshly introspected one: names, relation names, documentation and the
// defaults and attributes the database cannot express.
func enrich(old, dm *datamodel.Datamodel) []Warning {
	var warnings []Warning
	warnings = append(warnings, enrichModelNames(old, dm)...)
	warnings = append(warnings, enrichFieldNames(old, dm)...)
	warnings = append(warnings, enrichEnumNames(old, dm)...)
	warnings = append(warnings, enrichEnumValueNames(old, dm)...)
	warnings = append(warnings, enrichRelations(old, dm)...)
	warnings = append(warnings, enrichFieldAttributes(old, dm)...)
	enrichDocumentation(old, dm)
	return warnings
}

func enrichModelNames(old, dm *datamodel.Datamodel) []Warning {
	var affected []Affected
	for mi := range dm.Models {
		model := &dm.Models[mi]
		prev := old.FindModelByDatabaseName(model.FinalDatabaseName())
		if prev == nil || prev.Name == model.Name || dm.FindModel(prev.Name) != nil {
			continue
		}
		table := model.FinalDatabaseName()
		renameModel(dm, model.Name, prev.Name)
		if prev.Name != table {
			model.DatabaseName = table
		} else {
			model.DatabaseName = ""
		}
		affected = append(affected, Affected{Model: prev.Name})
	}
	return warning(WarnEnrichedModelMaps,
		"These models were enriched with `@@map` information taken from the previous Prisma schema.", affected)
}

func enrichFieldNames(old, dm *datamodel.Datamodel) []Warning {
	var affected []Affected
	for mi := range dm.Models {
		model := &dm.Models[mi]
		prevModel := old.FindModel(model.Name)
		if prevModel == nil {
			continue
		}
		for fi := range model.Fields {
			field := &model.Fields[fi]
			if field.IsRelation() {
				continue
			}
			prev := prevModel.FindScalarFieldByDatabaseName(field.FinalDatabaseName())
			if prev == nil || prev.Name == field.Name || model.FindField(prev.Name) != nil {
				continue
			}
			column := field.FinalDatabaseName()
			renameField(dm, mi, fi, prev.Name)
			if prev.Name != column {
				field.DatabaseName = column
			} else {
				field.DatabaseName = ""
			}
			affected = append(affected, Affected{Model: model.Name, Field: prev.Name})
		}
	}
	return warning(WarnEnrichedFieldMaps,
		"These fields were enriched with `@map` information taken from the previous Prisma schema.", affected)
}

func enrichEnumNames(old, dm *datamodel.Datamodel) []Warning {
	var affected []Affected
	for ei := range dm.Enums {
		enum := &dm.Enums[ei]
		prev := old.FindEnumByDatabaseName(enum.FinalDatabaseName())
		if prev == nil || prev.Name == enum.Name || dm.FindEnum(prev.Name) != nil {
			continue
		}
		dbName := enum.FinalDatabaseName()
		renameEnum(dm, enum.Name, prev.Name)
		if prev.Name != dbName {
			enum.DatabaseName = dbName
		} else {
			enum.DatabaseName = ""
		}
		affected = append(affected, Affected{Enum: prev.Name})
	}
	return warning(WarnEnrichedEnumMaps,
		"These enums were enriched with `@@map` information taken from the previous Prisma schema.", affected)
}

func enrichEnumValueNames(old, dm *datamodel.Datamodel) []Warning {
	var affected []Affected
	for ei := range dm.Enums {
		enum := &dm.Enums[ei]
		prevEnum := old.FindEnum(enum.Name)
		if prevEnum == nil {
			continue
		}
		for vi := range enum.Values {
			value := &enum.Values[vi]
			dbName := valueDatabaseName(value)
			idx := slices.IndexFunc(prevEnum.Values, func(v datamodel.EnumValue) bool {
				return valueDatabaseName(&v) == dbName
			})
			if idx < 0 {
				continue
			}
			prev := prevEnum.Values[idx]
			if prev.Name == value.Name || enumHasValue(enum, prev.Name) {
				continue
			}
			renameEnumValue(dm, enum.Name, value.Name, prev.Name)
			if prev.Name != dbName {
				value.DatabaseName = dbName
			} else {
				value.DatabaseName = ""
			}
			affected = append(affected, Affected{Enum: enum.Name, Value: prev.Name})
		}
	}
	return warning(WarnEnrichedEnumValueMaps,
		"These enum values were enriched with `@map` information taken from the previous Prisma schema.", affected)
}

func valueDatabaseName(v *datamodel.EnumValue) string {
	if v.DatabaseName != "" {
		return v.DatabaseName
	}
	return v.Name
}

func enumHasValue(e *datamodel.Enum, name string) bool {
	return slices.ContainsFunc(e.Values, func(v datamodel.EnumValue) bool { return v.Name == name })
}

// enrichRelations restores custom relation names and relation field names.
// Inline sides are matched by their target and scalar fields, the opposite
// sides by target and relation name.
func enrichRelations(old, dm *datamodel.Datamodel) []Warning {
	var affected []Affected
	for mi := range dm.Models {
		model := &dm.Models[mi]
		prevModel := old.FindModel(model.Name)
		if prevModel == nil {
			continue
		}
		for fi := range model.Fields {
			field := &model.Fields[fi]
			if !field.IsRelation() || len(field.Relation.Fields) == 0 {
				continue
			}
			prev := findPreviousRelationField(prevModel, func(f *datamodel.Field) bool {
				return f.Relation.To == field.Relation.To && slices.Equal(f.Relation.Fields, field.Relation.Fields)
			})
			if prev == nil || prev.Relation.Name == "" || prev.Relation.Name == field.Relation.Name {
				continue
			}
			renameRelation(dm, mi, fi, prev.Relation.Name)
			affected = append(affected, Affected{Model: model.Name, Field: field.Name})
		}
	}

	for mi := range dm.Models {
		model := &dm.Models[mi]
		prevModel := old.FindModel(model.Name)
		if prevModel == nil {
			continue
		}
		for fi := range model.Fields {
			field := &model.Fields[fi]
			if !field.IsRelation() {
				continue
			}
			prev := findPreviousRelationField(prevModel, func(f *datamodel.Field) bool {
				return f.Relation.To == field.Relation.To && f.Relation.Name == field.Relation.Name
			})
			if prev == nil || prev.Name == field.Name || model.FindField(prev.Name) != nil {
				continue
			}
			field.Name = prev.Name
		}
	}
	return warning(WarnEnrichedRelationNames,
		"These relations were enriched with custom relation names taken from the previous Prisma schema.", affected)
}

func findPreviousRelationField(m *datamodel.Model, match func(*datamodel.Field) bool) *datamodel.Field {
	for i := range m.Fields {
		f := &m.Fields[i]
		if f.IsRelation() && match(f) {
			return f
		}
	}
	return nil
}

// renameRelation gives a relation field and its opposite field a new name.
func renameRelation(dm *datamodel.Datamodel, mi, fi int, name string) {
	if rmi, rfi, ok := dm.FindRelatedField(mi, fi); ok {
		dm.Models[rmi].Fields[rfi].Relation.Name = name
	}
	dm.Models[mi].Fields[fi].Relation.Name = name
}

func enrichFieldAttributes(old, dm *datamodel.Datamodel) []Warning {
	var defaults, updatedAt []Affected
	for mi := range dm.Models {
		model := &dm.Models[mi]
		prevModel := old.FindModel(model.Name)
		if prevModel == nil {
			continue
		}
		for fi := range model.Fields {
			field := &model.Fields[fi]
			if field.IsRelation() {
				continue
			}
			prev := prevModel.FindField(field.Name)
			if prev == nil || prev.IsRelation() {
				continue
			}
			if field.Default == nil && isScalar(field, datamodel.String) &&
				(prev.Default.IsGenerator("cuid") || prev.Default.IsGenerator("uuid")) {
				field.Default = datamodel.GeneratedDefault(prev.Default.Value)
				defaults = append(defaults, Affected{Model: model.Name, Field: field.Name})
			}
			if prev.IsUpdatedAt && !field.IsUpdatedAt && isScalar(field, datamodel.DateTime) {
				field.IsUpdatedAt = true
				updatedAt = append(updatedAt, Affected{Model: model.Name, Field: field.Name})
			}
		}
	}
	out := warning(WarnEnrichedDefaults,
		"These fields were enriched with `@default` information taken from the previous Prisma schema.", defaults)
	return append(out, warning(WarnEnrichedUpdatedAt,
		"These fields were enriched with `@updatedAt` information taken from the previous Prisma schema.", updatedAt)...)
}

func enrichDocumentation(old, dm *datamodel.Datamodel) {
	for mi := range dm.Models {
		model := &dm.Models[mi]
		prevModel := old.FindModel(model.Name)
		if prevModel == nil {
			continue
		}
		if model.Documentation == "" {
			model.Documentation = prevModel.Documentation
		}
		for fi := range model.Fields {
			field := &model.Fields[fi]
			if prev := prevModel.FindField(field.Name); prev != nil && field.Documentation == "" {
				field.Documentation = prev.Documentation
			}
		}
	}
	for ei := range dm.Enums {
		if prev := old.FindEnum(dm.Enums[ei].Name); prev != nil && dm.Enums[ei].Documentation == "" {
			dm.Enums[ei].Documentation = prev.Documentation
		}
	}
}
