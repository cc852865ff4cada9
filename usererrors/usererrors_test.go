package usererrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("initializing: %w", DatabaseSchemaNotEmpty("public"))

	known, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, CodeDatabaseSchemaNotEmpty, known.Code)
	assert.Equal(t, "public", known.Meta["database_name"])
	assert.Contains(t, err.Error(), "P3005")

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("apply: %w", MigrationAlreadyApplied("20240101_init"))
	assert.ErrorIs(t, err, &KnownError{Code: CodeMigrationAlreadyApplied})
	assert.NotErrorIs(t, err, &KnownError{Code: CodeFailedMigrationsPresent})
}

func TestMessages(t *testing.T) {
	err := MigrationDoesNotApplyCleanly("002_add_posts", errors.New("syntax error"))
	assert.Contains(t, err.Message, "`002_add_posts`")
	assert.Contains(t, err.Message, "syntax error")

	failed := FailedMigrationsPresent([]string{"a", "b"})
	assert.Contains(t, failed.Message, "(a, b)")

	invalid := SchemaValidationFailed([]string{"first", "second"})
	assert.Equal(t, CodeSchemaValidationFailed, invalid.Code)
	assert.Contains(t, invalid.Message, "first\nsecond")
}
