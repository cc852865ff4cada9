package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ridoystarlord/schemaengine/datamodel"
)

func validateRelations(dm *datamodel.Datamodel, result *ValidationResult) {
	for mi := range dm.Models {
		model := &dm.Models[mi]
		if model.IsCommentedOut {
			continue
		}
		for fi := range model.Fields {
			field := &model.Fields[fi]
			if field.Relation == nil || field.IsCommentedOut {
				continue
			}
			validateRelationField(dm, mi, fi, result)
		}
		validateAmbiguousRelations(model, result)
	}
}

func validateAmbiguousRelations(model *datamodel.Model, result *ValidationResult) {
	type key struct{ to, name string }
	seen := map[key][]string{}
	for _, f := range model.RelationFields() {
		if f.IsCommentedOut {
			continue
		}
		k := key{f.Relation.To, f.Relation.Name}
		seen[k] = append(seen[k], f.Name)
	}
	for _, f := range model.RelationFields() {
		names := seen[key{f.Relation.To, f.Relation.Name}]
		limit := 1
		if f.Relation.To == model.Name {
			limit = 2
		}
		if len(names) > limit && names[0] == f.Name {
			result.addError("ambiguous_relation", model.Name, f.Name, fmt.Sprintf(
				"Ambiguous relation detected. The fields %s in model `%s` both refer to `%s`. Please provide different relation names for them by adding `@relation(<name>)`.",
				quoteAll(names), model.Name, f.Relation.To))
		}
	}
}

func validateRelationField(dm *datamodel.Datamodel, mi, fi int, result *ValidationResult) {
	model := &dm.Models[mi]
	field := &model.Fields[fi]
	info := field.Relation
	related := dm.FindModel(info.To)
	if related == nil {
		return
	}

	rmi, rfi, ok := dm.FindRelatedField(mi, fi)
	if !ok {
		result.addError("missing_opposite_field", model.Name, field.Name, fmt.Sprintf(
			"The relation field `%s` on Model `%s` is missing an opposite relation field on the model `%s`. Either run `introspect` or add it manually.",
			field.Name, model.Name, info.To))
		return
	}
	other := &dm.Models[rmi].Fields[rfi]

	if len(info.Fields) != len(info.References) && len(info.Fields) > 0 && len(info.References) > 0 {
		result.addError("relation", model.Name, field.Name,
			"You must specify the same number of fields in `fields` and `references`.")
	}

	var missing, relational []string
	for _, name := range info.Fields {
		f := model.FindField(name)
		switch {
		case f == nil:
			missing = append(missing, name)
		case f.IsRelation():
			relational = append(relational, name)
		}
	}
	if len(missing) > 0 {
		result.addError("relation", model.Name, field.Name, fmt.Sprintf(
			"The argument fields must refer only to existing fields. The following fields do not exist in this model: %s",
			strings.Join(missing, ", ")))
	}
	if len(relational) > 0 {
		result.addError("relation", model.Name, field.Name, fmt.Sprintf(
			"The argument fields must refer only to scalar fields. But it is referencing the following relation fields: %s",
			strings.Join(relational, ", ")))
	}

	missing, relational = nil, nil
	for _, name := range info.References {
		f := related.FindField(name)
		switch {
		case f == nil:
			missing = append(missing, name)
		case f.IsRelation():
			relational = append(relational, name)
		}
	}
	if len(missing) > 0 {
		result.addError("relation", model.Name, field.Name, fmt.Sprintf(
			"The argument `references` must refer only to existing fields in the related model `%s`. The following fields do not exist in the related model: %s",
			related.Name, strings.Join(missing, ", ")))
	}
	if len(relational) > 0 {
		result.addError("relation", model.Name, field.Name, fmt.Sprintf(
			"The argument `references` must refer only to scalar fields in the related model `%s`. But it is referencing the following relation fields: %s",
			related.Name, strings.Join(relational, ", ")))
	}

	declares := len(info.Fields) > 0 || len(info.References) > 0
	otherDeclares := len(other.Relation.Fields) > 0 || len(other.Relation.References) > 0
	switch {
	case field.IsList() && other.IsList():
		if len(info.Fields) > 0 {
			result.addError("relation", model.Name, field.Name, fmt.Sprintf(
				"The relation field `%s` on Model `%s` must not specify the `fields` argument in the @relation attribute. Many to many relations use a join table.",
				field.Name, model.Name))
		}
		if !hasSingleID(related) {
			result.addError("relation", model.Name, field.Name, fmt.Sprintf(
				"The relation field `%s` on Model `%s` references `%s` which does not have an `@id` field. Models without `@id` can not be part of a many to many relation. Use an explicit intermediate Model to represent this relationship.",
				field.Name, model.Name, related.Name))
		}
	case field.IsList():
		if declares {
			result.addError("relation", model.Name, field.Name, fmt.Sprintf(
				"The relation field `%s` on Model `%s` must not specify the `fields` or `references` argument in the @relation attribute. You must only specify it on the opposite field `%s` on model `%s`.",
				field.Name, model.Name, other.Name, related.Name))
		}
	case other.IsList():
		if len(info.Fields) > 0 && len(info.References) == 0 {
			result.addError("relation", model.Name, field.Name, fmt.Sprintf(
				"The relation field `%s` on Model `%s` must specify the `references` argument in the @relation attribute.",
				field.Name, model.Name))
		}
		if len(info.References) > 0 && len(info.Fields) == 0 {
			result.addError("relation", model.Name, field.Name, fmt.Sprintf(
				"The relation field `%s` on Model `%s` must specify the `fields` argument in the @relation attribute.",
				field.Name, model.Name))
		}
		validateRelationArity(model, field, result)
	default:
		if declares && otherDeclares && fieldOrder(dm, mi, fi, rmi, rfi) {
			result.addError("relation", model.Name, field.Name, fmt.Sprintf(
				"The relation fields `%s` on Model `%s` and `%s` on Model `%s` both provide the `fields` or `references` argument in the @relation attribute. You have to provide it only on one of the two fields.",
				field.Name, model.Name, other.Name, related.Name))
		}
		if rmi == mi && field.IsRequired() && other.IsRequired() {
			result.addError("relation", model.Name, field.Name, fmt.Sprintf(
				"The relation fields `%s` and `%s` on Model `%s` are both required. This is not allowed for a self relation because it would not be possible to create a record.",
				field.Name, other.Name, model.Name))
		}
		if declares {
			validateRelationArity(model, field, result)
		}
	}
}

// validateRelationArity checks that a relation field is required exactly when
// one of its scalar fields is.
func validateRelationArity(model *datamodel.Model, field *datamodel.Field, result *ValidationResult) {
	if len(field.Relation.Fields) == 0 {
		return
	}
	anyRequired := false
	for _, name := range field.Relation.Fields {
		if f := model.FindField(name); f != nil && f.IsRequired() {
			anyRequired = true
		}
	}
	names := strings.Join(field.Relation.Fields, ", ")
	switch {
	case anyRequired && !field.IsRequired():
		result.addError("relation", model.Name, field.Name, fmt.Sprintf(
			"The relation field `%s` uses the scalar fields %s. At least one of those fields is required. Hence the relation field must be required as well.",
			field.Name, names))
	case !anyRequired && field.IsRequired():
		result.addError("relation", model.Name, field.Name, fmt.Sprintf(
			"The relation field `%s` uses the scalar fields %s. All those fields are optional. Hence the relation field must be optional as well.",
			field.Name, names))
	}
}

// fieldOrder makes a one-to-one problem reported once, on the first field.
func fieldOrder(dm *datamodel.Datamodel, mi, fi, rmi, rfi int) bool {
	a := dm.Models[mi].Name + "." + dm.Models[mi].Fields[fi].Name
	b := dm.Models[rmi].Name + "." + dm.Models[rmi].Fields[rfi].Name
	return a < b
}

func hasSingleID(m *datamodel.Model) bool {
	if len(m.IDFields) > 0 {
		return false
	}
	for _, f := range m.Fields {
		if f.IsID {
			return true
		}
	}
	return false
}

func validateIndexes(dm *datamodel.Datamodel, result *ValidationResult) {
	for mi := range dm.Models {
		model := &dm.Models[mi]
		if model.IsCommentedOut {
			continue
		}
		check := func(kind string, fields []string) {
			for _, name := range fields {
				f := model.FindField(name)
				switch {
				case f == nil:
					result.addError(kind, model.Name, name, fmt.Sprintf(
						"The %s definition refers to the unknown field %q in model %q.", kind, name, model.Name))
				case f.IsRelation():
					result.addError(kind, model.Name, name, fmt.Sprintf(
						"The %s definition refers to the relation field %q. Index definitions must reference only scalar fields.", kind, name))
				}
			}
		}
		check("id", model.IDFields)
		for i, idx := range model.Indices {
			kind := "index"
			if idx.Type == datamodel.IndexUnique {
				kind = "unique"
			}
			check(kind, idx.Fields)
			for _, previous := range model.Indices[:i] {
				if previous.Type == idx.Type && slices.Equal(previous.Fields, idx.Fields) {
					result.addWarning("duplicate_index", model.Name, "", fmt.Sprintf(
						"The model %q defines the %s over [%s] more than once.", model.Name, kind, strings.Join(idx.Fields, ", ")))
				}
			}
		}
	}
}

func validateUniqueCriteria(dm *datamodel.Datamodel, result *ValidationResult) {
	for _, model := range dm.Models {
		model := model
		if model.IsCommentedOut || model.IsEmbedded {
			continue
		}
		if !model.HasUniqueCriteria() {
			result.addError("unique_criteria", model.Name, "",
				"Each model must have at least one unique criteria that has only required fields. Either mark a single field with `@id`, `@unique` or add a multi field criterion with `@@id([])` or `@@unique([])` to the model.")
		}
	}
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "`" + n + "`"
	}
	return strings.Join(quoted, " and ")
}
