package introspect

import "github.com/ridoystarlord/schemaengine/datamodel"

// commentOutGuardrails comments out everything the rest of the toolchain
// cannot handle and reports it.
func commentOutGuardrails(dm *datamodel.Datamodel) []Warning {
	var noID, invalidFields, unsupported, invalidValues []Affected

	for mi := range dm.Models {
		model := &dm.Models[mi]
		if !model.HasUniqueCriteria() {
			model.IsCommentedOut = true
			model.Documentation = uncommentableModelDoc
			noID = append(noID, Affected{Model: model.Name})
		}
		for fi := range model.Fields {
			field := &model.Fields[fi]
			switch {
			case sanitizeName(field.Name) == "":
				field.IsCommentedOut = true
				if !field.IsRelation() && field.DatabaseName == "" {
					field.DatabaseName = field.Name
				}
				invalidFields = append(invalidFields, Affected{Model: model.Name, Field: field.Name})
			case field.Type.Kind == datamodel.TypeUnsupported:
				unsupported = append(unsupported, Affected{Model: model.Name, Field: field.Name, Type: field.Type.Name})
			}
		}
	}

	// Relations to commented out models cannot be rendered either.
	for mi := range dm.Models {
		model := &dm.Models[mi]
		for fi := range model.Fields {
			field := &model.Fields[fi]
			if !field.IsRelation() {
				continue
			}
			if target := dm.FindModel(field.Relation.To); target != nil && target.IsCommentedOut {
				field.IsCommentedOut = true
			}
		}
	}

	for ei := range dm.Enums {
		enum := &dm.Enums[ei]
		for vi := range enum.Values {
			value := &enum.Values[vi]
			if sanitizeName(value.Name) == "" {
				value.IsCommentedOut = true
				invalidValues = append(invalidValues, Affected{Enum: enum.Name, Value: value.Name})
			}
		}
	}

	var warnings []Warning
	warnings = append(warnings, warning(WarnModelsWithoutIdentifier,
		"The following models were commented out as they do not have a valid unique identifier or id. This is currently not supported by Prisma.", noID)...)
	warnings = append(warnings, warning(WarnFieldsWithInvalidNames,
		"These fields were commented out because their names are currently not supported by Prisma. Please provide valid ones that match [a-zA-Z][a-zA-Z0-9_]* using the `@map` attribute.", invalidFields)...)
	warnings = append(warnings, warning(WarnUnsupportedTypes,
		"These fields were commented out because Prisma currently does not support their types.", unsupported)...)
	warnings = append(warnings, warning(WarnEnumValuesInvalidNames,
		"These enum values were commented out because their names are currently not supported by Prisma. Please provide valid ones that match [a-zA-Z][a-zA-Z0-9_]* using the `@map` attribute.", invalidValues)...)
	return warnings
}
