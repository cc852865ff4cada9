package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersSchema = `datasources:
  - name: db
    properties:
      provider: "sqlite"
      url: env("DATABASE_URL")
models:
  - name: User
    fields:
      - id Int @id @default(autoincrement())
      - email String @unique
`

const usersAndPostsSchema = `datasources:
  - name: db
    properties:
      provider: "sqlite"
      url: env("DATABASE_URL")
models:
  - name: User
    fields:
      - id Int @id @default(autoincrement())
      - email String @unique
      - posts Post[]
  - name: Post
    fields:
      - id Int @id @default(autoincrement())
      - 'author User @relation(fields: [authorId], references: [id])'
      - authorId Int
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("DATABASE_URL", "file:"+filepath.Join(dir, "dev.db"))
	t.Setenv("SHADOW_DATABASE_URL", "")
	return dir
}

func TestInitWritesProjectFiles(t *testing.T) {
	dir := project(t)

	out, err := execute(t, "init", "--provider", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "Created schemaengine.yaml and schema.yaml")
	assert.FileExists(t, filepath.Join(dir, "schemaengine.yaml"))

	out, err = execute(t, "validate")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Schema validation passed")

	_, err = execute(t, "init", "--provider", "sqlite")
	assert.ErrorContains(t, err, "already exists")
}

func TestInitRejectsUnknownProvider(t *testing.T) {
	project(t)
	_, err := execute(t, "init", "--provider", "oracle")
	assert.ErrorContains(t, err, "unknown provider")
}

func TestValidateReportsErrors(t *testing.T) {
	dir := project(t)
	broken := strings.Replace(usersAndPostsSchema, "      - posts Post[]\n", "", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.yaml"), []byte(broken), 0o644))

	out, err := execute(t, "validate")
	assert.Error(t, err)
	assert.Contains(t, out, "Schema validation failed")
	assert.Contains(t, out, "[Post].author")
}

func TestSchemaFlagOverridesConfig(t *testing.T) {
	dir := project(t)
	t.Cleanup(func() {
		flag := validateCmd.Flags().Lookup("schema")
		require.NoError(t, flag.Value.Set(""))
		flag.Changed = false
	})
	broken := strings.Replace(usersAndPostsSchema, "      - posts Post[]\n", "", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.yaml"), []byte(broken), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "db"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db", "users.yaml"), []byte(usersSchema), 0o644))

	out, err := execute(t, "validate", "--schema", filepath.Join("db", "users.yaml"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "Schema validation passed")
	assert.Equal(t, filepath.Join("db", "users.yaml"), cfg.Schema)
}

func TestDiffPrintsSteps(t *testing.T) {
	dir := project(t)
	from := filepath.Join(dir, "from.yaml")
	to := filepath.Join(dir, "to.yaml")
	require.NoError(t, os.WriteFile(from, []byte(usersSchema), 0o644))
	require.NoError(t, os.WriteFile(to, []byte(usersAndPostsSchema), 0o644))

	out, err := execute(t, "diff", from, to)
	require.NoError(t, err)
	assert.Contains(t, out, `"tag": "CreateModel"`)
	assert.Contains(t, out, `"model": "Post"`)
}

func TestGenerateMigrateAndDiagnose(t *testing.T) {
	dir := project(t)
	schemaFile := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(schemaFile, []byte(usersSchema), 0o644))

	out, err := execute(t, "generate", "-n", "users")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Migration generated")

	out, err = execute(t, "generate", "-n", "again")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No changes detected")

	entries, err := os.ReadDir(filepath.Join(dir, "migrations"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := strings.TrimSuffix(entries[0].Name(), ".sql")
	assert.True(t, strings.HasSuffix(name, "_users"), name)

	out, err = execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending migrations:\n   - "+name)

	out, err = execute(t, "migrate")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Applied "+name)

	out, err = execute(t, "diagnose")
	require.NoError(t, err, out)
	assert.Contains(t, out, "in sync")

	out, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total, 1 applied, 0 failed")

	require.NoError(t, os.WriteFile(schemaFile, []byte(usersAndPostsSchema), 0o644))
	out, err = execute(t, "check")
	require.NoError(t, err, out)
	assert.Contains(t, out, `CREATE TABLE "Post"`)
}
