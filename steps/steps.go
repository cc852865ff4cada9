// Package steps defines the typed edits of a schema AST that make up a
// step-based migration, and replays them onto an AST.
package steps

import (
	"encoding/json"
	"fmt"

	"github.com/ridoystarlord/schemaengine/schema"
)

// MigrationStep is one atomic edit of a schema AST.
type MigrationStep interface {
	Tag() string
}

type CreateModel struct {
	Model string `json:"model"`
}

type DeleteModel struct {
	Model string `json:"model"`
}

type CreateField struct {
	Model string            `json:"model"`
	Field string            `json:"field"`
	Type  string            `json:"type"`
	Arity schema.FieldArity `json:"arity"`
}

// UpdateField carries only the options that changed.
type UpdateField struct {
	Model   string             `json:"model"`
	Field   string             `json:"field"`
	NewName *string            `json:"newName,omitempty"`
	Type    *string            `json:"type,omitempty"`
	Arity   *schema.FieldArity `json:"arity,omitempty"`
}

type DeleteField struct {
	Model string `json:"model"`
	Field string `json:"field"`
}

type CreateEnum struct {
	Enum   string   `json:"enum"`
	Values []string `json:"values"`
}

type UpdateEnum struct {
	Enum          string   `json:"enum"`
	NewName       *string  `json:"newName,omitempty"`
	CreatedValues []string `json:"createdValues,omitempty"`
	DeletedValues []string `json:"deletedValues,omitempty"`
}

type DeleteEnum struct {
	Enum string `json:"enum"`
}

type CreateTypeAlias struct {
	TypeAlias string            `json:"typeAlias"`
	Type      string            `json:"type"`
	Arity     schema.FieldArity `json:"arity"`
}

type UpdateTypeAlias struct {
	TypeAlias string  `json:"typeAlias"`
	Type      *string `json:"type,omitempty"`
}

type DeleteTypeAlias struct {
	TypeAlias string `json:"typeAlias"`
}

type CreateSource struct {
	Source string `json:"source"`
}

type DeleteSource struct {
	Source string `json:"source"`
}

type CreateDirective struct {
	Location DirectiveLocation `json:"location"`
}

type DeleteDirective struct {
	Location DirectiveLocation `json:"location"`
}

// CreateArgument adds an argument. Value is the rendered expression.
type CreateArgument struct {
	Location ArgumentLocation `json:"location"`
	Argument string           `json:"argument"`
	Value    string           `json:"value"`
}

type UpdateArgument struct {
	Location ArgumentLocation `json:"location"`
	Argument string           `json:"argument"`
	NewValue string           `json:"newValue"`
}

type DeleteArgument struct {
	Location ArgumentLocation `json:"location"`
	Argument string           `json:"argument"`
}

func (CreateModel) Tag() string { return "CreateModel" }
func (DeleteModel) Tag() string { return "DeleteModel" }
func (CreateField) Tag() string { return "CreateField" }
func (UpdateField) Tag() string { return "UpdateField" }
func (DeleteField) Tag() string { return "DeleteField" }
func (CreateEnum) Tag() string { return "CreateEnum" }
func (UpdateEnum) Tag() string { return "UpdateEnum" }
func (DeleteEnum) Tag() string { return "DeleteEnum" }
func (CreateTypeAlias) Tag() string { return "CreateTypeAlias" }
func (UpdateTypeAlias) Tag() string { return "UpdateTypeAlias" }
func (DeleteTypeAlias) Tag() string { return "DeleteTypeAlias" }
func (CreateSource) Tag() string { return "CreateSource" }
func (DeleteSource) Tag() string { return "DeleteSource" }
func (CreateDirective) Tag() string { return "CreateDirective" }
func (DeleteDirective) Tag() string { return "DeleteDirective" }
func (CreateArgument) Tag() string { return "CreateArgument" }
func (UpdateArgument) Tag() string { return "UpdateArgument" }
func (DeleteArgument) Tag() string { return "DeleteArgument" }

// IsAnyOptionSet reports whether the update changes anything.
func (s UpdateField) IsAnyOptionSet() bool {
	return s.NewName != nil || s.Type != nil || s.Arity != nil
}

func (s UpdateEnum) IsAnyOptionSet() bool {
	return s.NewName != nil || len(s.CreatedValues) > 0 || len(s.DeletedValues) > 0
}

func (s UpdateTypeAlias) IsAnyOptionSet() bool {
	return s.Type != nil
}

const (
	PathModel     = "Model"
	PathField     = "Field"
	PathEnum      = "Enum"
	PathEnumValue = "EnumValue"
	PathTypeAlias = "TypeAlias"
)

// DirectivePath addresses the owner of a directive. Arguments identify a
// repeated model directive such as @@index among its siblings.
type DirectivePath struct {
	Tag       string     `json:"tag"`
	Model     string     `json:"model,omitempty"`
	Field     string     `json:"field,omitempty"`
	Enum      string     `json:"enum,omitempty"`
	Value     string     `json:"value,omitempty"`
	TypeAlias string     `json:"typeAlias,omitempty"`
	Arguments []Argument `json:"arguments,omitempty"`
}

// Argument is a rendered directive argument used inside a DirectivePath.
type Argument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func ModelPath(model string) DirectivePath {
	return DirectivePath{Tag: PathModel, Model: model}
}

func FieldPath(model, field string) DirectivePath {
	return DirectivePath{Tag: PathField, Model: model, Field: field}
}

func EnumPath(enum string) DirectivePath {
	return DirectivePath{Tag: PathEnum, Enum: enum}
}

func EnumValuePath(enum, value string) DirectivePath {
	return DirectivePath{Tag: PathEnumValue, Enum: enum, Value: value}
}

func TypeAliasPath(alias string) DirectivePath {
	return DirectivePath{Tag: PathTypeAlias, TypeAlias: alias}
}

// WithArguments returns a copy of the path identifying a repeated directive
// by its arguments.
func (p DirectivePath) WithArguments(args []schema.Argument) DirectivePath {
	p.Arguments = make([]Argument, len(args))
	for i, a := range args {
		p.Arguments[i] = Argument{Name: a.Name, Value: a.Value.Render()}
	}
	return p
}

type DirectiveLocation struct {
	Path      DirectivePath `json:"path"`
	Directive string        `json:"directive"`
}

const (
	LocationSource    = "Source"
	LocationDirective = "Directive"
)

// ArgumentLocation is either a datasource or a directive.
type ArgumentLocation struct {
	Tag       string         `json:"tag"`
	Source    string         `json:"source,omitempty"`
	Path      *DirectivePath `json:"path,omitempty"`
	Directive string         `json:"directive,omitempty"`
}

func SourceLocation(source string) ArgumentLocation {
	return ArgumentLocation{Tag: LocationSource, Source: source}
}

func DirectiveArgumentLocation(loc DirectiveLocation) ArgumentLocation {
	path := loc.Path
	return ArgumentLocation{Tag: LocationDirective, Path: &path, Directive: loc.Directive}
}

var stepTypes = map[string]func() MigrationStep{
	"CreateModel":     func() MigrationStep { return &CreateModel{} },
	"DeleteModel":     func() MigrationStep { return &DeleteModel{} },
	"CreateField":     func() MigrationStep { return &CreateField{} },
	"UpdateField":     func() MigrationStep { return &UpdateField{} },
	"DeleteField":     func() MigrationStep { return &DeleteField{} },
	"CreateEnum":      func() MigrationStep { return &CreateEnum{} },
	"UpdateEnum":      func() MigrationStep { return &UpdateEnum{} },
	"DeleteEnum":      func() MigrationStep { return &DeleteEnum{} },
	"CreateTypeAlias": func() MigrationStep { return &CreateTypeAlias{} },
	"UpdateTypeAlias": func() MigrationStep { return &UpdateTypeAlias{} },
	"DeleteTypeAlias": func() MigrationStep { return &DeleteTypeAlias{} },
	"CreateSource":    func() MigrationStep { return &CreateSource{} },
	"DeleteSource":    func() MigrationStep { return &DeleteSource{} },
	"CreateDirective": func() MigrationStep { return &CreateDirective{} },
	"DeleteDirective": func() MigrationStep { return &DeleteDirective{} },
	"CreateArgument":  func() MigrationStep { return &CreateArgument{} },
	"UpdateArgument":  func() MigrationStep { return &UpdateArgument{} },
	"DeleteArgument":  func() MigrationStep { return &DeleteArgument{} },
}

// Marshal encodes steps as a JSON array of objects carrying a "tag" field.
func Marshal(steps []MigrationStep) ([]byte, error) {
	out := make([]json.RawMessage, 0, len(steps))
	for _, s := range steps {
		body, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", s.Tag(), err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		fields["tag"] = json.RawMessage(fmt.Sprintf("%q", s.Tag()))
		encoded, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded)
	}
	return json.Marshal(out)
}

// Unmarshal decodes the output of Marshal. Steps are returned as values.
func Unmarshal(data []byte) ([]MigrationStep, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding steps: %w", err)
	}
	out := make([]MigrationStep, 0, len(raw))
	for i, r := range raw {
		var head struct {
			Tag string `json:"tag"`
		}
		if err := json.Unmarshal(r, &head); err != nil {
			return nil, fmt.Errorf("decoding step %d: %w", i, err)
		}
		factory, ok := stepTypes[head.Tag]
		if !ok {
			return nil, fmt.Errorf("decoding step %d: unknown tag %q", i, head.Tag)
		}
		step := factory()
		if err := json.Unmarshal(r, step); err != nil {
			return nil, fmt.Errorf("decoding step %d (%s): %w", i, head.Tag, err)
		}
		out = append(out, deref(step))
	}
	return out, nil
}

func deref(step MigrationStep) MigrationStep {
	switch s := step.(type) {
	case *CreateModel:
		return *s
	case *DeleteModel:
		return *s
	case *CreateField:
		return *s
	case *UpdateField:
		return *s
	case *DeleteField:
		return *s
	case *CreateEnum:
		return *s
	case *UpdateEnum:
		return *s
	case *DeleteEnum:
		return *s
	case *CreateTypeAlias:
		return *s
	case *UpdateTypeAlias:
		return *s
	case *DeleteTypeAlias:
		return *s
	case *CreateSource:
		return *s
	case *DeleteSource:
		return *s
	case *CreateDirective:
		return *s
	case *DeleteDirective:
		return *s
	case *CreateArgument:
		return *s
	case *UpdateArgument:
		return *s
	case *DeleteArgument:
		return *s
	}
	return step
}

// List is a step slice that encodes with Marshal and decodes with Unmarshal.
type List []MigrationStep

func (l List) MarshalJSON() ([]byte, error) { return Marshal(l) }

func (l *List) UnmarshalJSON(data []byte) error {
	decoded, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*l = decoded
	return nil
}
