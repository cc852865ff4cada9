package schema

// SchemaAst is the parsed form of a schema file. It carries the declarations
// as written, before any validation or lowering into a data model.
type SchemaAst struct {
	Datasources []SourceConfig    `yaml:"datasources,omitempty"`
	Generators  []GeneratorConfig `yaml:"generators,omitempty"`
	TypeAliases []Field           `yaml:"type_aliases,omitempty"`
	Enums       []Enum            `yaml:"enums,omitempty"`
	Models      []Model           `yaml:"models,omitempty"`
}

type SourceConfig struct {
	Name          string
	Properties    []Argument
	Documentation string
}

type GeneratorConfig struct {
	Name          string
	Properties    []Argument
	Documentation string
}

type Model struct {
	Name          string
	Fields        []Field
	Attributes    []Attribute
	Documentation string
	CommentedOut  bool
}

type Field struct {
	Name          string
	Type          string
	Arity         FieldArity
	Attributes    []Attribute
	Documentation string
	CommentedOut  bool
}

type FieldArity string

const (
	Required FieldArity = "Required"
	Optional FieldArity = "Optional"
	List     FieldArity = "List"
)

type Enum struct {
	Name          string
	Values        []EnumValue
	Attributes    []Attribute
	Documentation string
	CommentedOut  bool
}

type EnumValue struct {
	Name          string
	Attributes    []Attribute
	Documentation string
	CommentedOut  bool
}

// Attribute is a field attribute (@id) or a block attribute (@@index). Name
// excludes the leading @ signs; where it sits decides which kind it is.
type Attribute struct {
	Name      string
	Arguments []Argument
}

// Argument is a named or unnamed (Name == "") attribute or property argument.
type Argument struct {
	Name  string
	Value Expression
}

func (a Argument) IsUnnamed() bool {
	return a.Name == ""
}

func (s *SchemaAst) FindModel(name string) *Model {
	for i := range s.Models {
		if s.Models[i].Name == name {
			return &s.Models[i]
		}
	}
	return nil
}

func (s *SchemaAst) FindEnum(name string) *Enum {
	for i := range s.Enums {
		if s.Enums[i].Name == name {
			return &s.Enums[i]
		}
	}
	return nil
}

func (s *SchemaAst) FindTypeAlias(name string) *Field {
	for i := range s.TypeAliases {
		if s.TypeAliases[i].Name == name {
			return &s.TypeAliases[i]
		}
	}
	return nil
}

func (s *SchemaAst) FindSource(name string) *SourceConfig {
	for i := range s.Datasources {
		if s.Datasources[i].Name == name {
			return &s.Datasources[i]
		}
	}
	return nil
}

func (m *Model) FindField(name string) *Field {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i]
		}
	}
	return nil
}

func (e *Enum) FindValue(name string) *EnumValue {
	for i := range e.Values {
		if e.Values[i].Name == name {
			return &e.Values[i]
		}
	}
	return nil
}

// FindAttribute returns the first attribute with the given name.
func FindAttribute(attrs []Attribute, name string) *Attribute {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i]
		}
	}
	return nil
}

// Argument returns the named argument, or for name == "" the first unnamed one.
func (a *Attribute) Argument(name string) *Argument {
	for i := range a.Arguments {
		if a.Arguments[i].Name == name {
			return &a.Arguments[i]
		}
	}
	return nil
}

// DefaultArgument returns the unnamed argument, falling back to the named one.
func (a *Attribute) DefaultArgument(name string) *Argument {
	if arg := a.Argument(""); arg != nil {
		return arg
	}
	return a.Argument(name)
}

// FindProperty returns the value of a datasource or generator property.
func FindProperty(props []Argument, name string) *Expression {
	for i := range props {
		if props[i].Name == name {
			return &props[i].Value
		}
	}
	return nil
}

// IsRepeated reports whether a block attribute may appear several times on the
// same model. Such attributes are identified by their arguments, not their name.
func (a Attribute) IsRepeated() bool {
	return a.Name == "index" || a.Name == "unique"
}
