// Package differ computes the migration steps between two schema ASTs.
package differ

import (
	"slices"

	"github.com/ridoystarlord/schemaengine/schema"
	"github.com/ridoystarlord/schemaengine/steps"
)

// maskedURL replaces datasource urls in created arguments.
const maskedURL = "***"

// Diff returns the steps turning previous into next. Categories come in a
// fixed order (type aliases, enums, datasources, models) and inside each one
// created items come first, then deleted, then updated ones. Diff(x, x) is
// empty.
func Diff(previous, next *schema.SchemaAst) []steps.MigrationStep {
	if previous == nil {
		previous = &schema.SchemaAst{}
	}
	if next == nil {
		next = &schema.SchemaAst{}
	}
	var out []steps.MigrationStep
	out = append(out, diffTypeAliases(previous.TypeAliases, next.TypeAliases)...)
	out = append(out, diffEnums(previous.Enums, next.Enums)...)
	out = append(out, diffSources(previous.Datasources, next.Datasources)...)
	out = append(out, diffModels(previous.Models, next.Models)...)
	return out
}

// pairs splits two named lists into created, deleted and matched items.
func pairs[T any](previous, next []T, name func(T) string) (created, deleted []T, matched [][2]T) {
	prevByName := make(map[string]int, len(previous))
	for i, p := range previous {
		prevByName[name(p)] = i
	}
	nextNames := make(map[string]bool, len(next))
	for _, n := range next {
		nextNames[name(n)] = true
		if i, ok := prevByName[name(n)]; ok {
			matched = append(matched, [2]T{previous[i], n})
		} else {
			created = append(created, n)
		}
	}
	for _, p := range previous {
		if !nextNames[name(p)] {
			deleted = append(deleted, p)
		}
	}
	return created, deleted, matched
}

func diffValue[T comparable](previous, next T) *T {
	if previous == next {
		return nil
	}
	return &next
}

func fieldName(f schema.Field) string { return f.Name }

func diffTypeAliases(previous, next []schema.Field) []steps.MigrationStep {
	created, deleted, matched := pairs(previous, next, fieldName)
	var out []steps.MigrationStep
	for _, a := range created {
		out = append(out, steps.CreateTypeAlias{TypeAlias: a.Name, Type: a.Type, Arity: a.Arity})
		out = append(out, createdDirectives(steps.TypeAliasPath(a.Name), a.Attributes)...)
	}
	for _, a := range deleted {
		out = append(out, steps.DeleteTypeAlias{TypeAlias: a.Name})
	}
	for _, pair := range matched {
		prev, next := pair[0], pair[1]
		update := steps.UpdateTypeAlias{TypeAlias: prev.Name, Type: diffValue(prev.Type, next.Type)}
		if update.IsAnyOptionSet() {
			out = append(out, update)
		}
		out = append(out, diffDirectives(steps.TypeAliasPath(prev.Name), prev.Attributes, next.Attributes)...)
	}
	return out
}

func diffEnums(previous, next []schema.Enum) []steps.MigrationStep {
	created, deleted, matched := pairs(previous, next, func(e schema.Enum) string { return e.Name })
	var out []steps.MigrationStep
	for _, e := range created {
		values := make([]string, len(e.Values))
		for i, v := range e.Values {
			values[i] = v.Name
		}
		out = append(out, steps.CreateEnum{Enum: e.Name, Values: values})
		out = append(out, createdDirectives(steps.EnumPath(e.Name), e.Attributes)...)
		for _, v := range e.Values {
			out = append(out, createdDirectives(steps.EnumValuePath(e.Name, v.Name), v.Attributes)...)
		}
	}
	for _, e := range deleted {
		out = append(out, steps.DeleteEnum{Enum: e.Name})
	}
	for _, pair := range matched {
		out = append(out, diffEnum(pair[0], pair[1])...)
	}
	return out
}

func diffEnum(prev, next schema.Enum) []steps.MigrationStep {
	valueName := func(v schema.EnumValue) string { return v.Name }
	createdValues, deletedValues, matchedValues := pairs(prev.Values, next.Values, valueName)

	var out []steps.MigrationStep
	update := steps.UpdateEnum{Enum: prev.Name, NewName: diffValue(prev.Name, next.Name)}
	for _, v := range createdValues {
		update.CreatedValues = append(update.CreatedValues, v.Name)
	}
	for _, v := range deletedValues {
		update.DeletedValues = append(update.DeletedValues, v.Name)
	}
	// Values must exist before directives can be attached to them.
	if update.IsAnyOptionSet() {
		out = append(out, update)
	}
	for _, v := range createdValues {
		out = append(out, createdDirectives(steps.EnumValuePath(next.Name, v.Name), v.Attributes)...)
	}
	for _, pair := range matchedValues {
		path := steps.EnumValuePath(next.Name, pair[1].Name)
		out = append(out, diffDirectives(path, pair[0].Attributes, pair[1].Attributes)...)
	}
	out = append(out, diffDirectives(steps.EnumPath(prev.Name), prev.Attributes, next.Attributes)...)
	return out
}

func diffSources(previous, next []schema.SourceConfig) []steps.MigrationStep {
	created, deleted, matched := pairs(previous, next, func(s schema.SourceConfig) string { return s.Name })
	var out []steps.MigrationStep
	for _, s := range created {
		out = append(out, steps.CreateSource{Source: s.Name})
		loc := steps.SourceLocation(s.Name)
		for _, p := range s.Properties {
			out = append(out, createdSourceArgument(loc, p))
		}
	}
	for _, s := range deleted {
		out = append(out, steps.DeleteSource{Source: s.Name})
	}
	for _, pair := range matched {
		loc := steps.SourceLocation(pair[0].Name)
		createdArgs, deletedArgs, matchedArgs := pairs(pair[0].Properties, pair[1].Properties, argumentName)
		for _, p := range createdArgs {
			out = append(out, createdSourceArgument(loc, p))
		}
		for _, p := range deletedArgs {
			out = append(out, steps.DeleteArgument{Location: loc, Argument: p.Name})
		}
		for _, args := range matchedArgs {
			// Stored schemas carry the masked url, so it never compares equal.
			if args[0].Name == "url" {
				continue
			}
			if step, ok := updatedArgument(loc, args[0], args[1]); ok {
				out = append(out, step)
			}
		}
	}
	return out
}

func createdSourceArgument(loc steps.ArgumentLocation, arg schema.Argument) steps.MigrationStep {
	if arg.Name == "url" {
		arg.Value = schema.String(maskedURL)
	}
	return createdArgument(loc, arg)
}

func diffModels(previous, next []schema.Model) []steps.MigrationStep {
	created, deleted, matched := pairs(previous, next, func(m schema.Model) string { return m.Name })
	var out []steps.MigrationStep
	for _, m := range created {
		out = append(out, steps.CreateModel{Model: m.Name})
		out = append(out, createdFields(m.Name, m.Fields)...)
		regular, repeated := splitRepeated(m.Attributes)
		path := steps.ModelPath(m.Name)
		out = append(out, createdDirectives(path, regular)...)
		for _, attr := range repeated {
			out = append(out, createdRepeatedDirective(path, attr))
		}
	}
	for _, m := range deleted {
		out = append(out, steps.DeleteModel{Model: m.Name})
	}
	for _, pair := range matched {
		out = append(out, diffModel(pair[0], pair[1])...)
	}
	return out
}

func diffModel(prev, next schema.Model) []steps.MigrationStep {
	createdFs, deletedFs, matchedFs := pairs(prev.Fields, next.Fields, fieldName)
	var out []steps.MigrationStep
	out = append(out, createdFields(prev.Name, createdFs)...)
	for _, f := range deletedFs {
		out = append(out, steps.DeleteField{Model: prev.Name, Field: f.Name})
	}
	for _, pair := range matchedFs {
		out = append(out, diffField(prev.Name, pair[0], pair[1])...)
	}

	path := steps.ModelPath(prev.Name)
	prevRegular, prevRepeated := splitRepeated(prev.Attributes)
	nextRegular, nextRepeated := splitRepeated(next.Attributes)
	out = append(out, diffDirectives(path, prevRegular, nextRegular)...)

	createdRep, deletedRep, _ := pairs(prevRepeated, nextRepeated, repeatedKey)
	for _, attr := range createdRep {
		out = append(out, createdRepeatedDirective(path, attr))
	}
	for _, attr := range deletedRep {
		out = append(out, steps.DeleteDirective{Location: steps.DirectiveLocation{
			Path:      path.WithArguments(attr.Arguments),
			Directive: attr.Name,
		}})
	}
	return out
}

func createdFields(model string, fields []schema.Field) []steps.MigrationStep {
	var out []steps.MigrationStep
	for _, f := range fields {
		out = append(out, steps.CreateField{Model: model, Field: f.Name, Type: f.Type, Arity: f.Arity})
		out = append(out, createdDirectives(steps.FieldPath(model, f.Name), f.Attributes)...)
	}
	return out
}

func diffField(model string, prev, next schema.Field) []steps.MigrationStep {
	var out []steps.MigrationStep
	update := steps.UpdateField{
		Model:   model,
		Field:   prev.Name,
		NewName: diffValue(prev.Name, next.Name),
		Type:    diffValue(prev.Type, next.Type),
		Arity:   diffValue(prev.Arity, next.Arity),
	}
	if update.IsAnyOptionSet() {
		out = append(out, update)
	}
	return append(out, diffDirectives(steps.FieldPath(model, prev.Name), prev.Attributes, next.Attributes)...)
}

// splitRepeated separates directives identified by name from the ones that
// may appear several times and are identified by their arguments.
func splitRepeated(attrs []schema.Attribute) (regular, repeated []schema.Attribute) {
	for _, a := range attrs {
		if a.IsRepeated() {
			repeated = append(repeated, a)
		} else {
			regular = append(regular, a)
		}
	}
	return regular, repeated
}

func repeatedKey(a schema.Attribute) string {
	return a.Render(true)
}

func attributeName(a schema.Attribute) string { return a.Name }
func argumentName(a schema.Argument) string { return a.Name }

func createdDirectives(path steps.DirectivePath, attrs []schema.Attribute) []steps.MigrationStep {
	var out []steps.MigrationStep
	for _, attr := range attrs {
		loc := steps.DirectiveLocation{Path: path, Directive: attr.Name}
		out = append(out, steps.CreateDirective{Location: loc})
		argLoc := steps.DirectiveArgumentLocation(loc)
		for _, arg := range attr.Arguments {
			out = append(out, createdArgument(argLoc, arg))
		}
	}
	return out
}

func createdRepeatedDirective(path steps.DirectivePath, attr schema.Attribute) steps.MigrationStep {
	return steps.CreateDirective{Location: steps.DirectiveLocation{
		Path:      path.WithArguments(attr.Arguments),
		Directive: attr.Name,
	}}
}

func diffDirectives(path steps.DirectivePath, previous, next []schema.Attribute) []steps.MigrationStep {
	created, deleted, matched := pairs(previous, next, attributeName)
	out := createdDirectives(path, created)
	for _, pair := range matched {
		out = append(out, diffDirective(path, pair[0], pair[1])...)
	}
	for _, attr := range deleted {
		out = append(out, steps.DeleteDirective{Location: steps.DirectiveLocation{Path: path, Directive: attr.Name}})
	}
	return out
}

func diffDirective(path steps.DirectivePath, prev, next schema.Attribute) []steps.MigrationStep {
	dirLoc := steps.DirectiveLocation{Path: path, Directive: prev.Name}
	prevPositional, nextPositional := positional(prev.Arguments), positional(next.Arguments)
	// Several unnamed arguments share the empty key, so a change to any of
	// them replaces the directive as a whole.
	if (len(prevPositional) > 1 || len(nextPositional) > 1) && !slices.Equal(prevPositional, nextPositional) {
		out := []steps.MigrationStep{steps.DeleteDirective{Location: dirLoc}}
		return append(out, createdDirectives(path, []schema.Attribute{next})...)
	}
	prevArgs, nextArgs := prev.Arguments, next.Arguments
	if len(prevPositional) > 1 {
		prevArgs, nextArgs = named(prevArgs), named(nextArgs)
	}
	loc := steps.DirectiveArgumentLocation(dirLoc)
	created, deleted, matched := pairs(prevArgs, nextArgs, argumentName)
	var out []steps.MigrationStep
	for _, arg := range created {
		out = append(out, createdArgument(loc, arg))
	}
	for _, args := range matched {
		if step, ok := updatedArgument(loc, args[0], args[1]); ok {
			out = append(out, step)
		}
	}
	for _, arg := range deleted {
		out = append(out, steps.DeleteArgument{Location: loc, Argument: arg.Name})
	}
	return out
}

// positional returns the rendered values of the unnamed arguments, in order.
func positional(args []schema.Argument) []string {
	var out []string
	for _, a := range args {
		if a.IsUnnamed() {
			out = append(out, a.Value.Render())
		}
	}
	return out
}

func named(args []schema.Argument) []schema.Argument {
	return slices.DeleteFunc(slices.Clone(args), schema.Argument.IsUnnamed)
}

func createdArgument(loc steps.ArgumentLocation, arg schema.Argument) steps.MigrationStep {
	return steps.CreateArgument{Location: loc, Argument: arg.Name, Value: arg.Value.Render()}
}

func updatedArgument(loc steps.ArgumentLocation, prev, next schema.Argument) (steps.MigrationStep, bool) {
	prevValue, nextValue := prev.Value.Render(), next.Value.Render()
	if prevValue == nextValue {
		return nil, false
	}
	return steps.UpdateArgument{Location: loc, Argument: next.Name, NewValue: nextValue}, true
}
