package generator

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/describer"
	"github.com/ridoystarlord/schemaengine/diff"
	"github.com/ridoystarlord/schemaengine/flavour"
)

func mustFlavour(t *testing.T, family database.Family) flavour.Flavour {
	t.Helper()
	f, err := flavour.New(family)
	require.NoError(t, err)
	return f
}

func col(name string, family describer.ColumnTypeFamily, arity describer.ColumnArity) describer.Column {
	return describer.Column{Name: name, Type: describer.ColumnType{Family: family, Arity: arity}}
}

func blogSchema() *describer.SqlSchema {
	id := col("id", describer.FamilyInt, describer.ArityRequired)
	id.AutoIncrement = true
	return &describer.SqlSchema{
		Tables: []describer.Table{
			{
				Name:       "City",
				Columns:    []describer.Column{id, col("name", describer.FamilyString, describer.ArityRequired)},
				PrimaryKey: &describer.PrimaryKey{Columns: []string{"id"}, ConstraintName: "City_pkey"},
			},
			{
				Name: "users",
				Columns: []describer.Column{
					id,
					col("email", describer.FamilyString, describer.ArityRequired),
					col("city_id", describer.FamilyInt, describer.ArityNullable),
				},
				PrimaryKey: &describer.PrimaryKey{Columns: []string{"id"}, ConstraintName: "users_pkey"},
				Indices:    []describer.Index{{Name: "users_email_key", Columns: []string{"email"}, Type: describer.IndexTypeUnique}},
				ForeignKeys: []describer.ForeignKey{{
					ConstraintName:    "users_city_id_fkey",
					Columns:           []string{"city_id"},
					ReferencedTable:   "City",
					ReferencedColumns: []string{"id"},
					OnDeleteAction:    describer.SetNull,
					OnUpdateAction:    describer.Cascade,
				}},
			},
		},
	}
}

func TestRenderPostgres(t *testing.T) {
	f := mustFlavour(t, database.Postgres)
	stmts, err := Render(diff.DiffSchemas(nil, blogSchema(), f), f)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"CREATE TABLE \"City\" (\n    \"id\" SERIAL NOT NULL,\n    \"name\" TEXT NOT NULL,\n    CONSTRAINT \"City_pkey\" PRIMARY KEY (\"id\")\n);",
		"CREATE TABLE \"users\" (\n    \"id\" SERIAL NOT NULL,\n    \"email\" TEXT NOT NULL,\n    \"city_id\" INTEGER,\n    CONSTRAINT \"users_pkey\" PRIMARY KEY (\"id\")\n);",
		`CREATE UNIQUE INDEX "users_email_key" ON "users"("email");`,
		`ALTER TABLE "users" ADD CONSTRAINT "users_city_id_fkey" FOREIGN KEY ("city_id") REFERENCES "City"("id") ON DELETE SET NULL ON UPDATE CASCADE;`,
	}, stmts)
}

func TestRenderRollbackPostgres(t *testing.T) {
	f := mustFlavour(t, database.Postgres)
	stmts, err := RenderRollback(diff.DiffSchemas(nil, blogSchema(), f), f)
	require.NoError(t, err)

	assert.Equal(t, []string{
		`ALTER TABLE "users" DROP CONSTRAINT "users_city_id_fkey";`,
		`DROP INDEX "users_email_key";`,
		`DROP TABLE "users";`,
		`DROP TABLE "City";`,
	}, stmts)
}

func TestRenderRollbackRecreatesDroppedTable(t *testing.T) {
	f := mustFlavour(t, database.Postgres)
	prev := blogSchema()
	next := blogSchema()
	next.Tables = next.Tables[:1]

	stmts, err := RenderRollback(diff.DiffSchemas(prev, next, f), f)
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], `CREATE TABLE "users"`)
	assert.Equal(t, `CREATE UNIQUE INDEX "users_email_key" ON "users"("email");`, stmts[1])
	assert.Contains(t, stmts[2], `ADD CONSTRAINT "users_city_id_fkey"`)
}

func TestRenderMySQLInlineEnum(t *testing.T) {
	f := mustFlavour(t, database.MySQL)
	next := blogSchema()
	next.Enums = []describer.Enum{{Name: "users_role", Values: []string{"USER", "ADMIN"}}}
	role := col("role", describer.EnumFamily("users_role"), describer.ArityRequired)
	role.Default = describer.DefaultValueOf("USER")
	next.Tables[1].Columns = append(next.Tables[1].Columns, role)

	stmts, err := Render(diff.DiffSchemas(blogSchema(), next, f), f)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALTER TABLE `users` ADD COLUMN `role` ENUM('USER', 'ADMIN') NOT NULL DEFAULT 'USER';"}, stmts)
}

func TestRenderPostgresEnumChanges(t *testing.T) {
	f := mustFlavour(t, database.Postgres)
	added := diff.Operation{
		Type:         diff.AlterEnum,
		Enum:         &describer.Enum{Name: "Role", Values: []string{"USER", "ADMIN"}},
		PreviousEnum: &describer.Enum{Name: "Role", Values: []string{"USER"}},
	}
	stmts, err := Render([]diff.Operation{added}, f)
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TYPE "Role" ADD VALUE 'ADMIN';`}, stmts)

	removed := added
	removed.Enum, removed.PreviousEnum = added.PreviousEnum, added.Enum
	removed.EnumUsages = []diff.ColumnRef{{Table: "users", Column: "role"}}
	stmts, err = Render([]diff.Operation{removed}, f)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`ALTER TYPE "Role" RENAME TO "Role_old";`,
		`CREATE TYPE "Role" AS ENUM ('USER');`,
		`ALTER TABLE "users" ALTER COLUMN "role" TYPE "Role" USING ("role"::text::"Role");`,
		`DROP TYPE "Role_old";`,
	}, stmts)
}

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func execAll(t *testing.T, db *sql.DB, stmts []string) {
	t.Helper()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func TestRenderedSQLiteSchemaDescribesBack(t *testing.T) {
	ctx := context.Background()
	f := mustFlavour(t, database.SQLite)
	db := openMemoryDB(t)

	stmts, err := Render(diff.DiffSchemas(nil, blogSchema(), f), f)
	require.NoError(t, err)
	execAll(t, db, stmts)

	described, err := describer.NewSQLiteDescriber(db).Describe(ctx, "main")
	require.NoError(t, err)
	assert.Empty(t, diff.DiffSchemas(described, blogSchema(), f))
}

func TestRenderedSQLiteRedefineKeepsRows(t *testing.T) {
	ctx := context.Background()
	f := mustFlavour(t, database.SQLite)
	db := openMemoryDB(t)

	stmts, err := Render(diff.DiffSchemas(nil, blogSchema(), f), f)
	require.NoError(t, err)
	execAll(t, db, stmts)
	execAll(t, db, []string{
		`INSERT INTO "City" ("name") VALUES ('Oslo')`,
		`INSERT INTO "users" ("email", "city_id") VALUES ('a@example.com', 1)`,
	})

	next := blogSchema()
	next.Tables[1].Columns[2].Type.Arity = describer.ArityRequired
	ops := diff.DiffSchemas(blogSchema(), next, f)
	require.Len(t, ops, 1)
	require.Equal(t, diff.RedefineTable, ops[0].Type)

	stmts, err = Render(ops, f)
	require.NoError(t, err)
	execAll(t, db, stmts)

	var email string
	require.NoError(t, db.QueryRow(`SELECT "email" FROM "users" WHERE "city_id" = 1`).Scan(&email))
	assert.Equal(t, "a@example.com", email)

	described, err := describer.NewSQLiteDescriber(db).Describe(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, describer.ArityRequired, described.Table("users").Column("city_id").Type.Arity)
	assert.NotNil(t, described.Table("users").Index("users_email_key"))
}

func TestMigrationFileRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")
	name := MigrationName(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), "Add users!")
	assert.Equal(t, "20240301123000_add_users", name)

	path, err := WriteMigrationFile(dir, name, []string{`CREATE TABLE "a" ("id" INTEGER);`}, []string{`DROP TABLE "a";`})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, name+".sql"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	up, down, err := ParseMigrationFile(string(content))
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE "a" ("id" INTEGER);`, up)
	assert.Equal(t, `DROP TABLE "a";`, down)
}

func TestParseMigrationFileWithoutRollback(t *testing.T) {
	_, _, err := ParseMigrationFile("-- Up Migration\nSELECT 1;")
	assert.Error(t, err)
}
