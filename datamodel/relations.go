package datamodel

import (
	"fmt"
	"sort"
)

type ManifestationKind int

const (
	// Inline relations keep the foreign key in one of the two tables.
	Inline ManifestationKind = iota
	// Table relations live in a join table with the columns A and B.
	Table
)

// Manifestation is the physical form of a relation. InModel and Field
// address the side holding the foreign key of an inline relation.
type Manifestation struct {
	Kind    ManifestationKind
	InModel int
	Field   int
	// Fields are the foreign key fields of the inline side.
	Fields []string
	// JoinTable and the two column names are set for Table relations.
	JoinTable string
	ColumnA   string
	ColumnB   string
}

// Relation pairs two relation fields. Models and fields are addressed by
// their position in the data model they were calculated from.
type Relation struct {
	Name          string
	ModelA        int
	FieldA        int
	ModelB        int
	FieldB        int
	Manifestation Manifestation
}

// IsManyToMany reports whether the relation is stored in a join table.
func (r Relation) IsManyToMany() bool { return r.Manifestation.Kind == Table }

// FindRelatedField returns the position of the field paired with the relation
// field at (modelIdx, fieldIdx). It matches on the relation name; an unnamed
// relation pairs with the only unnamed field on the target pointing back.
func (dm *Datamodel) FindRelatedField(modelIdx, fieldIdx int) (int, int, bool) {
	model := &dm.Models[modelIdx]
	field := &model.Fields[fieldIdx]
	if field.Relation == nil {
		return 0, 0, false
	}
	target := dm.ModelIndex(field.Relation.To)
	if target < 0 {
		return 0, 0, false
	}
	candidates := dm.Models[target].Fields
	for i := range candidates {
		other := &candidates[i]
		if other.Relation == nil || other.IsCommentedOut || other.Relation.To != model.Name {
			continue
		}
		if target == modelIdx && i == fieldIdx {
			continue
		}
		if other.Relation.Name == field.Relation.Name {
			return target, i, true
		}
	}
	return 0, 0, false
}

// RelationName is the explicit relation name of the field, or the default
// name derived from the two models.
func (dm *Datamodel) RelationName(modelIdx, fieldIdx int) string {
	field := &dm.Models[modelIdx].Fields[fieldIdx]
	if field.Relation.Name != "" {
		return field.Relation.Name
	}
	return DefaultRelationName(dm.Models[modelIdx].Name, field.Relation.To)
}

// CalculateRelations pairs every relation field with its opposite and decides
// how each relation is stored. The result holds one relation per name, sorted
// by name, and does not depend on the order of models or fields.
//
// The data model must have passed validation: a one-to-one relation where both
// sides declare fields panics.
func CalculateRelations(dm *Datamodel) []Relation {
	byName := map[string]Relation{}
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
			rmi, rfi, ok := dm.FindRelatedField(mi, fi)
			if !ok {
				continue
			}
			name := dm.RelationName(mi, fi)
			if _, seen := byName[name]; seen {
				continue
			}
			byName[name] = pair(dm, name, mi, fi, rmi, rfi)
		}
	}

	relations := make([]Relation, 0, len(byName))
	for _, r := range byName {
		relations = append(relations, r)
	}
	sort.Slice(relations, func(i, j int) bool { return relations[i].Name < relations[j].Name })
	return relations
}

func pair(dm *Datamodel, name string, mi, fi, rmi, rfi int) Relation {
	ma, fa, mb, fb := mi, fi, rmi, rfi
	nameOf := func(m, f int) (string, string) {
		return dm.Models[m].Name, dm.Models[m].Fields[f].Name
	}
	modelA, fieldA := nameOf(ma, fa)
	modelB, fieldB := nameOf(mb, fb)
	if modelA > modelB || (modelA == modelB && fieldA > fieldB) {
		ma, fa, mb, fb = mb, fb, ma, fa
	}

	a := &dm.Models[ma].Fields[fa]
	b := &dm.Models[mb].Fields[fb]
	r := Relation{Name: name, ModelA: ma, FieldA: fa, ModelB: mb, FieldB: fb}

	switch {
	case a.IsList() && b.IsList():
		r.Manifestation = Manifestation{
			Kind:      Table,
			JoinTable: "_" + name,
			ColumnA:   "A",
			ColumnB:   "B",
		}
	case b.IsList():
		r.Manifestation = inline(ma, fa, a)
	case a.IsList():
		r.Manifestation = inline(mb, fb, b)
	default:
		aDeclares := len(a.Relation.Fields) > 0 || len(a.Relation.References) > 0
		bDeclares := len(b.Relation.Fields) > 0 || len(b.Relation.References) > 0
		switch {
		case aDeclares && bDeclares:
			// Unreachable: the validator rejects one-to-one relations
			// declaring fields on both sides.
			panic(fmt.Sprintf("relation %q declares fields on both sides", name))
		case bDeclares:
			r.Manifestation = inline(mb, fb, b)
		default:
			r.Manifestation = inline(ma, fa, a)
		}
	}
	return r
}

func inline(model, field int, f *Field) Manifestation {
	return Manifestation{Kind: Inline, InModel: model, Field: field, Fields: f.Relation.Fields}
}
