package validator

import (
	"fmt"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/datamodel"
	"github.com/ridoystarlord/schemaengine/flavour"
	"github.com/ridoystarlord/schemaengine/schema"
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Type     string `json:"type"`
	Model    string `json:"model,omitempty"`
	Field    string `json:"field,omitempty"`
	Index    string `json:"index,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // "error", "warning"
}

// ValidationResult contains all validation results. Datamodel is the lowered
// schema; it is nil when the pre-checks failed.
type ValidationResult struct {
	Valid     bool                 `json:"valid"`
	Errors    []ValidationError    `json:"errors"`
	Warnings  []ValidationError    `json:"warnings"`
	Datamodel *datamodel.Datamodel `json:"-"`
}

// Messages returns the error messages in the order they were found.
func (r *ValidationResult) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Message
	}
	return out
}

// SchemaValidator checks a schema AST and lowers it into a data model.
type SchemaValidator struct {
	flavour flavour.Flavour
}

// NewSchemaValidator creates a validator. When f is nil the flavour is taken
// from the schema's datasource, if any.
func NewSchemaValidator(f flavour.Flavour) *SchemaValidator {
	return &SchemaValidator{flavour: f}
}

// Validate checks the schema without a fixed flavour.
func Validate(ast *schema.SchemaAst) *ValidationResult {
	return NewSchemaValidator(nil).ValidateSchema(ast)
}

// ValidateSchema runs the pre-checks, lowers the schema and validates the
// resulting data model. Every problem is collected in the result.
func (v *SchemaValidator) ValidateSchema(ast *schema.SchemaAst) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	precheck(ast, result)
	if len(result.Errors) > 0 {
		return result
	}

	f := v.flavour
	if f == nil {
		f = datasourceFlavour(ast, result)
	}

	l := &lowerer{ast: ast, result: result}
	dm := l.lower()
	result.Datamodel = dm

	validateIndexes(dm, result)
	validateRelations(dm, result)
	validateUniqueCriteria(dm, result)
	if f != nil {
		validateIdentifierLengths(dm, f, result)
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// DatasourceFamily returns the SQL family named by the first datasource's
// provider property.
func DatasourceFamily(ast *schema.SchemaAst) (database.Family, bool, error) {
	if len(ast.Datasources) == 0 {
		return "", false, nil
	}
	provider := schema.FindProperty(ast.Datasources[0].Properties, "provider")
	if provider == nil {
		return "", false, fmt.Errorf("datasource %q has no provider", ast.Datasources[0].Name)
	}
	switch provider.Value {
	case "postgresql", "postgres":
		return database.Postgres, true, nil
	case "mysql":
		return database.MySQL, true, nil
	case "sqlite":
		return database.SQLite, true, nil
	}
	return "", false, fmt.Errorf("datasource provider not known: %q", provider.Value)
}

func datasourceFlavour(ast *schema.SchemaAst, result *ValidationResult) flavour.Flavour {
	family, ok, err := DatasourceFamily(ast)
	if err != nil {
		result.addError("datasource", "", "", err.Error())
		return nil
	}
	if !ok {
		return nil
	}
	f, err := flavour.New(family)
	if err != nil {
		result.addError("datasource", "", "", err.Error())
		return nil
	}
	return f
}

// validateIdentifierLengths checks table and column names against the
// flavour's identifier limit.
func validateIdentifierLengths(dm *datamodel.Datamodel, f flavour.Flavour, result *ValidationResult) {
	limit := f.IdentifierLimit()
	if limit == 0 {
		return
	}
	for _, m := range dm.Models {
		m := m
		if m.IsCommentedOut {
			continue
		}
		if table := m.FinalDatabaseName(); len(table) > limit {
			result.addError("table_name", m.Name, "",
				fmt.Sprintf("The table name '%s' is too long (max %d characters).", table, limit))
		}
		for _, field := range m.ScalarFields() {
			if column := field.FinalDatabaseName(); !field.IsCommentedOut && len(column) > limit {
				result.addError("column_name", m.Name, field.Name,
					fmt.Sprintf("The column name '%s' is too long (max %d characters).", column, limit))
			}
		}
	}
}

func (r *ValidationResult) addError(kind, model, field, message string) {
	r.Errors = append(r.Errors, ValidationError{
		Type:     kind,
		Model:    model,
		Field:    field,
		Message:  message,
		Severity: "error",
	})
}

func (r *ValidationResult) addWarning(kind, model, field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{
		Type:     kind,
		Model:    model,
		Field:    field,
		Message:  message,
		Severity: "warning",
	})
}
