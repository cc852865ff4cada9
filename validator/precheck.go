package validator

import (
	"fmt"

	"github.com/ridoystarlord/schemaengine/datamodel"
	"github.com/ridoystarlord/schemaengine/schema"
)

// precheck looks for duplicate declarations and reserved names. Lowering is
// skipped when any of these fail.
func precheck(ast *schema.SchemaAst, result *ValidationResult) {
	topLevel := map[string]string{}
	checkTop := func(name, kind string) {
		if _, reserved := datamodel.ParseScalarType(name); reserved {
			result.addError("reserved_name", name, "",
				fmt.Sprintf("%q is a reserved scalar type name and can not be used.", name))
		}
		if existing, ok := topLevel[name]; ok {
			result.addError("duplicate_top", name, "",
				fmt.Sprintf("The %s %q cannot be defined because a %s with that name already exists.", kind, name, existing))
			return
		}
		topLevel[name] = kind
	}

	for _, alias := range ast.TypeAliases {
		checkTop(alias.Name, "type")
	}
	for _, e := range ast.Enums {
		checkTop(e.Name, "enum")
		seen := map[string]bool{}
		for _, v := range e.Values {
			if seen[v.Name] {
				result.addError("duplicate_enum_value", e.Name, v.Name,
					fmt.Sprintf("Value %q is already defined on enum %q.", v.Name, e.Name))
			}
			seen[v.Name] = true
		}
	}
	for _, m := range ast.Models {
		checkTop(m.Name, "model")
		seen := map[string]bool{}
		for _, f := range m.Fields {
			if seen[f.Name] {
				result.addError("duplicate_field", m.Name, f.Name,
					fmt.Sprintf("Field %q is already defined on model %q.", f.Name, m.Name))
			}
			seen[f.Name] = true
		}
	}

	checkConfigs := func(kind string, names []string, props [][]schema.Argument) {
		seen := map[string]bool{}
		for i, name := range names {
			if seen[name] {
				result.addError("duplicate_"+kind, name, "",
					fmt.Sprintf("The %s %q cannot be defined because a %s with that name already exists.", kind, name, kind))
			}
			seen[name] = true
			keys := map[string]bool{}
			for _, p := range props[i] {
				if keys[p.Name] {
					result.addError("duplicate_config_key", name, p.Name,
						fmt.Sprintf("Key %q is already defined in %s configuration %q.", p.Name, kind, name))
				}
				keys[p.Name] = true
			}
		}
	}
	var sourceNames, generatorNames []string
	var sourceProps, generatorProps [][]schema.Argument
	for _, s := range ast.Datasources {
		sourceNames = append(sourceNames, s.Name)
		sourceProps = append(sourceProps, s.Properties)
	}
	for _, g := range ast.Generators {
		generatorNames = append(generatorNames, g.Name)
		generatorProps = append(generatorProps, g.Properties)
	}
	checkConfigs("datasource", sourceNames, sourceProps)
	checkConfigs("generator", generatorNames, generatorProps)
}
