package introspect

import (
	"regexp"
	"strconv"

	"github.com/ridoystarlord/schemaengine/datamodel"
)

var (
	leadingInvalid = regexp.MustCompile(`^[^a-zA-Z]+`)
	invalidChars   = regexp.MustCompile(`[^_a-zA-Z0-9]`)
)

// sanitizeName turns a database identifier into a valid schema identifier.
// The result is empty when nothing usable is left.
func sanitizeName(name string) string {
	if !leadingInvalid.MatchString(name) && !invalidChars.MatchString(name) {
		return name
	}
	return invalidChars.ReplaceAllString(leadingInvalid.ReplaceAllString(name, ""), "_")
}

// uniqueName appends a numeric suffix until name is not taken.
func uniqueName(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	for i := 1; ; i++ {
		candidate := name + "_" + strconv.Itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}
}

// sanitizeNames renames models, fields, enums and enum values whose names are
// not valid identifiers, keeping the original as the database name.
func sanitizeNames(dm *datamodel.Datamodel) {
	topLevel := map[string]bool{}
	for _, m := range dm.Models {
		topLevel[m.Name] = true
	}
	for _, e := range dm.Enums {
		topLevel[e.Name] = true
	}
	rename := func(name string) (string, bool) {
		clean := sanitizeName(name)
		if clean == name || clean == "" {
			return name, false
		}
		clean = uniqueName(clean, func(s string) bool { return topLevel[s] })
		topLevel[clean] = true
		return clean, true
	}

	for mi := range dm.Models {
		model := &dm.Models[mi]
		if clean, ok := rename(model.Name); ok {
			if model.DatabaseName == "" {
				model.DatabaseName = model.Name
			}
			renameModel(dm, model.Name, clean)
		}
	}
	for ei := range dm.Enums {
		enum := &dm.Enums[ei]
		if clean, ok := rename(enum.Name); ok {
			if enum.DatabaseName == "" {
				enum.DatabaseName = enum.Name
			}
			renameEnum(dm, enum.Name, clean)
		}
		sanitizeEnumValues(dm, enum)
	}

	for mi := range dm.Models {
		sanitizeFields(dm, mi)
	}
}

func sanitizeFields(dm *datamodel.Datamodel, mi int) {
	model := &dm.Models[mi]
	taken := map[string]bool{}
	for _, f := range model.Fields {
		taken[f.Name] = true
	}
	for fi := range model.Fields {
		field := &model.Fields[fi]
		if field.IsRelation() && field.Relation.Name != "" {
			field.Relation.Name = sanitizeName(field.Relation.Name)
		}
		clean := sanitizeName(field.Name)
		if clean == field.Name {
			continue
		}
		if clean == "" {
			// Left for the guardrails to comment out.
			continue
		}
		clean = uniqueName(clean, func(s string) bool { return taken[s] })
		taken[clean] = true
		if !field.IsRelation() && field.DatabaseName == "" {
			field.DatabaseName = field.Name
		}
		renameField(dm, mi, fi, clean)
	}
}

func sanitizeEnumValues(dm *datamodel.Datamodel, enum *datamodel.Enum) {
	taken := map[string]bool{}
	for _, v := range enum.Values {
		taken[v.Name] = true
	}
	for vi := range enum.Values {
		value := &enum.Values[vi]
		clean := sanitizeName(value.Name)
		if clean == value.Name || clean == "" {
			continue
		}
		clean = uniqueName(clean, func(s string) bool { return taken[s] })
		taken[clean] = true
		if value.DatabaseName == "" {
			value.DatabaseName = value.Name
		}
		renameEnumValue(dm, enum.Name, value.Name, clean)
	}
}

// renameModel renames a model and every relation pointing at it.
func renameModel(dm *datamodel.Datamodel, from, to string) {
	for mi := range dm.Models {
		model := &dm.Models[mi]
		if model.Name == from {
			model.Name = to
		}
		for fi := range model.Fields {
			field := &model.Fields[fi]
			if field.IsRelation() && field.Relation.To == from {
				field.Relation.To = to
				field.Type = datamodel.RelationType(to)
			}
		}
	}
}

// renameField renames dm.Models[mi].Fields[fi] along with the indexes, ids
// and relations referring to it.
func renameField(dm *datamodel.Datamodel, mi, fi int, to string) {
	model := &dm.Models[mi]
	from := model.Fields[fi].Name
	replace := func(names []string) {
		for i, n := range names {
			if n == from {
				names[i] = to
			}
		}
	}

	model.Fields[fi].Name = to
	if model.Fields[fi].IsRelation() {
		return
	}

	replace(model.IDFields)
	for i := range model.Indices {
		replace(model.Indices[i].Fields)
	}
	for i := range model.Fields {
		if rel := model.Fields[i].Relation; rel != nil {
			replace(rel.Fields)
		}
	}
	for oi := range dm.Models {
		for i := range dm.Models[oi].Fields {
			if rel := dm.Models[oi].Fields[i].Relation; rel != nil && rel.To == model.Name {
				replace(rel.References)
			}
		}
	}
}

func renameEnum(dm *datamodel.Datamodel, from, to string) {
	for ei := range dm.Enums {
		if dm.Enums[ei].Name == from {
			dm.Enums[ei].Name = to
		}
	}
	for mi := range dm.Models {
		for fi := range dm.Models[mi].Fields {
			field := &dm.Models[mi].Fields[fi]
			if field.Type.Kind == datamodel.TypeEnum && field.Type.Name == from {
				field.Type.Name = to
			}
		}
	}
}

// renameEnumValue renames a value and the defaults using it.
func renameEnumValue(dm *datamodel.Datamodel, enum, from, to string) {
	if e := dm.FindEnum(enum); e != nil {
		for vi := range e.Values {
			if e.Values[vi].Name == from {
				e.Values[vi].Name = to
			}
		}
	}
	for mi := range dm.Models {
		for fi := range dm.Models[mi].Fields {
			field := &dm.Models[mi].Fields[fi]
			if field.Type.Kind != datamodel.TypeEnum || field.Type.Name != enum {
				continue
			}
			if d := field.Default; d != nil && d.Kind == datamodel.DefaultSingle && d.Value == from {
				d.Value = to
			}
		}
	}
}

// deduplicateRelationFieldNames renames relation fields sharing their name
// with another field of the model to `{name}_{relationName}`.
func deduplicateRelationFieldNames(dm *datamodel.Datamodel) {
	for mi := range dm.Models {
		model := &dm.Models[mi]
		counts := map[string]int{}
		for _, f := range model.Fields {
			counts[f.Name]++
		}
		for fi := range model.Fields {
			field := &model.Fields[fi]
			if field.IsRelation() && counts[field.Name] > 1 {
				field.Name = field.Name + "_" + field.Relation.Name
			}
		}
	}
}
