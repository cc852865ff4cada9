package loader

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogSchema = `models:
  - name: User
    fields:
      - id Int @id @default(autoincrement())
      - email String @unique
`

func TestWriteAndLoadSchema(t *testing.T) {
	ast, err := ParseSchema(blogSchema)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "prisma", "schema.yaml")
	require.NoError(t, WriteSchemaToYAML(path, ast))

	loaded, err := LoadSchemaFromYAML(path)
	require.NoError(t, err)
	assert.Equal(t, ast, loaded)
}

func TestParseEmptySchema(t *testing.T) {
	ast, err := ParseSchema("")
	require.NoError(t, err)
	assert.Empty(t, ast.Models)
}

func TestLoadMissingSchema(t *testing.T) {
	_, err := LoadSchemaFromYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading schema file")
}
