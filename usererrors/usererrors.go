// Package usererrors defines the errors meant to be shown to users, each with
// a stable code.
package usererrors

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeSchemaValidationFailed       = "P1012"
	CodeDatabaseSchemaNotEmpty       = "P3005"
	CodeMigrationDoesNotApplyCleanly = "P3006"
	CodeMigrationAlreadyApplied      = "P3008"
	CodeFailedMigrationsPresent      = "P3009"
)

// KnownError is a user-facing error. Meta holds the structured values the
// message was built from.
type KnownError struct {
	Code    string
	Message string
	Meta    map[string]any
}

func (e *KnownError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any KnownError with the same code.
func (e *KnownError) Is(target error) bool {
	t, ok := target.(*KnownError)
	return ok && t.Code == e.Code
}

// As returns the KnownError in err's chain, if any.
func As(err error) (*KnownError, bool) {
	var known *KnownError
	if errors.As(err, &known) {
		return known, true
	}
	return nil, false
}

func DatabaseSchemaNotEmpty(databaseName string) *KnownError {
	return &KnownError{
		Code: CodeDatabaseSchemaNotEmpty,
		Message: fmt.Sprintf("The database schema for `%s` is not empty. Read more about how to baseline an existing production database.",
			databaseName),
		Meta: map[string]any{"database_name": databaseName},
	}
}

func MigrationDoesNotApplyCleanly(migrationName string, inner error) *KnownError {
	return &KnownError{
		Code: CodeMigrationDoesNotApplyCleanly,
		Message: fmt.Sprintf("Migration `%s` failed to apply cleanly to a temporary database.\nError:\n%v",
			migrationName, inner),
		Meta: map[string]any{"migration_name": migrationName, "inner_error": fmt.Sprint(inner)},
	}
}

func MigrationAlreadyApplied(migrationName string) *KnownError {
	return &KnownError{
		Code:    CodeMigrationAlreadyApplied,
		Message: fmt.Sprintf("The migration `%s` is already recorded as applied in the database.", migrationName),
		Meta:    map[string]any{"migration_name": migrationName},
	}
}

func FailedMigrationsPresent(names []string) *KnownError {
	return &KnownError{
		Code: CodeFailedMigrationsPresent,
		Message: fmt.Sprintf("The database contains failed migrations (%s). Resolve them before applying new migrations.",
			strings.Join(names, ", ")),
		Meta: map[string]any{"failed_migration_names": names},
	}
}

func SchemaValidationFailed(errs []string) *KnownError {
	return &KnownError{
		Code:    CodeSchemaValidationFailed,
		Message: "Schema validation error:\n" + strings.Join(errs, "\n"),
		Meta:    map[string]any{"errors": errs},
	}
}
