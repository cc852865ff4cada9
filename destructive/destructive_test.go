package destructive

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/describer"
	"github.com/ridoystarlord/schemaengine/diff"
	"github.com/ridoystarlord/schemaengine/flavour"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func execAll(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func newChecker(t *testing.T, db *sql.DB) *Checker {
	t.Helper()
	f, err := flavour.New(database.SQLite)
	require.NoError(t, err)
	return NewChecker(db, f, "main", nil)
}

func col(name string, family describer.ColumnTypeFamily, arity describer.ColumnArity) *describer.Column {
	return &describer.Column{Name: name, Type: describer.ColumnType{Family: family, Arity: arity}}
}

func seed(t *testing.T) *sql.DB {
	db := openMemoryDB(t)
	execAll(t, db,
		`CREATE TABLE "City" ("id" INTEGER PRIMARY KEY, "name" TEXT)`,
		`CREATE TABLE "Empty" ("id" INTEGER PRIMARY KEY, "note" TEXT)`,
		`INSERT INTO "City" ("name") VALUES ('Oslo'), ('Lima'), (NULL)`,
	)
	return db
}

func TestCheckDroppedTables(t *testing.T) {
	db := seed(t)
	ops := []diff.Operation{
		{Type: diff.DropTable, TableName: "Empty"},
		{Type: diff.DropTable, TableName: "City"},
	}

	d, err := newChecker(t, db).Check(context.Background(), ops)
	require.NoError(t, err)
	assert.True(t, d.IsExecutable())
	assert.Equal(t, []Warning{{Description: "You are about to drop the `City` table, which is not empty (3 rows).", Step: 1}}, d.Warnings)
}

func TestCheckDroppedColumn(t *testing.T) {
	db := seed(t)
	ops := []diff.Operation{
		{Type: diff.DropColumn, TableName: "City", PreviousColumn: col("name", describer.FamilyString, describer.ArityNullable)},
		{Type: diff.DropColumn, TableName: "Empty", PreviousColumn: col("note", describer.FamilyString, describer.ArityNullable)},
	}

	d, err := newChecker(t, db).Check(context.Background(), ops)
	require.NoError(t, err)
	require.Len(t, d.Warnings, 1)
	assert.Equal(t, "You are about to drop the column `name` on the `City` table, which still contains 2 non-null values.", d.Warnings[0].Description)
}

func TestCheckUnexecutableChanges(t *testing.T) {
	db := seed(t)
	name := col("name", describer.FamilyString, describer.ArityRequired)
	ops := []diff.Operation{
		{Type: diff.AddColumn, TableName: "City", Column: col("zip", describer.FamilyString, describer.ArityRequired)},
		{Type: diff.AddColumn, TableName: "Empty", Column: col("zip", describer.FamilyString, describer.ArityRequired)},
		{
			Type:           diff.AlterColumn,
			TableName:      "City",
			Column:         name,
			PreviousColumn: col("name", describer.FamilyString, describer.ArityNullable),
			Changes:        diff.ColumnChanges{Arity: true},
		},
	}

	d, err := newChecker(t, db).Check(context.Background(), ops)
	require.NoError(t, err)
	assert.False(t, d.IsExecutable())
	assert.Equal(t, []UnexecutableMigration{
		{Description: "Added the required column `zip` to the `City` table without a default value. There are 3 rows in this table, it is not possible to execute this step.", Step: 0},
		{Description: "Made the column `name` on table `City` required, but there are 1 existing NULL values.", Step: 2},
	}, d.UnexecutableMigrations)
	assert.Empty(t, d.Warnings)
}

func TestCheckRedefinedTableSteps(t *testing.T) {
	db := seed(t)
	ops := []diff.Operation{{
		Type:      diff.RedefineTable,
		TableName: "City",
		Steps: []diff.Operation{
			{Type: diff.DropColumn, TableName: "City", PreviousColumn: col("name", describer.FamilyString, describer.ArityNullable)},
		},
	}}

	d, err := newChecker(t, db).Check(context.Background(), ops)
	require.NoError(t, err)
	require.Len(t, d.Warnings, 1)
	assert.Equal(t, 0, d.Warnings[0].Step)
}

func TestEvaluateCastsAndEnums(t *testing.T) {
	results := NewDatabaseInspectionResults()
	results.SetRowCount("User", 10)
	results.SetValueCount("User", "age", 4)
	results.SetValueCount("User", "avatar", 2)

	ops := []diff.Operation{
		{
			Type:           diff.AlterColumn,
			TableName:      "User",
			Column:         col("age", describer.FamilyInt, describer.ArityNullable),
			PreviousColumn: col("age", describer.FamilyString, describer.ArityNullable),
			Changes:        diff.ColumnChanges{Type: true, Cast: flavour.RiskyCast},
		},
		{
			Type:           diff.AlterColumn,
			TableName:      "User",
			Column:         col("avatar", describer.FamilyString, describer.ArityRequired),
			PreviousColumn: col("avatar", describer.FamilyBinary, describer.ArityRequired),
			Changes:        diff.ColumnChanges{Type: true, Cast: flavour.NotCastable},
		},
		{
			Type:         diff.AlterEnum,
			Enum:         &describer.Enum{Name: "Role", Values: []string{"USER"}},
			PreviousEnum: &describer.Enum{Name: "Role", Values: []string{"USER", "ADMIN", "OWNER"}},
		},
	}

	d := Evaluate(ops, results)
	require.Len(t, d.Warnings, 2)
	assert.Equal(t, "You are about to alter the column `age` on the `User` table, which contains 4 non-null values. The data in that column will be cast from `string` to `int`.", d.Warnings[0].Description)
	assert.Equal(t, "The values [ADMIN,OWNER] on the enum `Role` will be removed. If these variants are still used in the database, this will fail.", d.Warnings[1].Description)
	assert.Equal(t, 2, d.Warnings[1].Step)
	require.Len(t, d.UnexecutableMigrations, 1)
	assert.Contains(t, d.UnexecutableMigrations[0].Description, "Changed the type of `avatar` on the `User` table.")
}

func TestInspectReportsQueryErrors(t *testing.T) {
	db := seed(t)
	_, err := newChecker(t, db).Inspect(context.Background(), []diff.Operation{{Type: diff.DropTable, TableName: "Missing"}})
	assert.ErrorContains(t, err, "counting rows of Missing")
}
