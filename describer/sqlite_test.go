package describer

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
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

func TestSQLiteDescribe(t *testing.T) {
	db := openMemoryDB(t)
	execAll(t, db,
		`CREATE TABLE "User" (
			id INTEGER PRIMARY KEY,
			email TEXT NOT NULL,
			name VARCHAR(50),
			active BOOLEAN NOT NULL DEFAULT true,
			score REAL DEFAULT 1.5,
			createdAt DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX "User.email" ON "User"(email)`,
		`CREATE TABLE "Post" (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL DEFAULT 'untitled',
			authorId INTEGER NOT NULL REFERENCES "User"(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX "Post_title" ON "Post"(title, authorId)`,
	)

	schema, err := NewSQLiteDescriber(db).Describe(context.Background(), "main")
	require.NoError(t, err)
	require.Len(t, schema.Tables, 2)
	assert.Equal(t, "Post", schema.Tables[0].Name)
	assert.Equal(t, "User", schema.Tables[1].Name)

	user := schema.Table("User")
	require.NotNil(t, user)
	require.NotNil(t, user.PrimaryKey)
	assert.Equal(t, []string{"id"}, user.PrimaryKey.Columns)
	assert.True(t, user.Column("id").AutoIncrement)

	email := user.Column("email")
	require.NotNil(t, email)
	assert.Equal(t, FamilyString, email.Type.Family)
	assert.Equal(t, ArityRequired, email.Type.Arity)
	assert.True(t, user.IsColumnUnique("email"))

	name := user.Column("name")
	require.NotNil(t, name)
	assert.Equal(t, ArityNullable, name.Type.Arity)
	require.NotNil(t, name.Type.CharacterMaximumLength)
	assert.Equal(t, int64(50), *name.Type.CharacterMaximumLength)

	assert.Equal(t, DefaultValueOf("true"), user.Column("active").Default)
	assert.Equal(t, DefaultValueOf("1.5"), user.Column("score").Default)
	assert.Equal(t, DefaultNow(), user.Column("createdAt").Default)

	post := schema.Table("Post")
	require.NotNil(t, post)
	assert.Equal(t, DefaultValueOf("untitled"), post.Column("title").Default)
	require.Len(t, post.ForeignKeys, 1)
	fk := post.ForeignKeys[0]
	assert.Equal(t, []string{"authorId"}, fk.Columns)
	assert.Equal(t, "User", fk.ReferencedTable)
	assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
	assert.Equal(t, Cascade, fk.OnDeleteAction)
	assert.Equal(t, NoAction, fk.OnUpdateAction)

	idx := post.Index("Post_title")
	require.NotNil(t, idx)
	assert.Equal(t, []string{"title", "authorId"}, idx.Columns)
	assert.Equal(t, IndexTypeNormal, idx.Type)
}

func TestSQLiteForeignKeyToImplicitPrimaryKey(t *testing.T) {
	db := openMemoryDB(t)
	execAll(t, db,
		`CREATE TABLE a (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE b (id INTEGER PRIMARY KEY, a_id INTEGER REFERENCES a)`,
	)

	schema, err := NewSQLiteDescriber(db).Describe(context.Background(), "main")
	require.NoError(t, err)

	b := schema.Table("b")
	require.NotNil(t, b)
	require.Len(t, b.ForeignKeys, 1)
	assert.Equal(t, []string{"id"}, b.ForeignKeys[0].ReferencedColumns)
}

func TestSQLiteCompoundPrimaryKey(t *testing.T) {
	db := openMemoryDB(t)
	execAll(t, db, `CREATE TABLE pair (b TEXT NOT NULL, a TEXT NOT NULL, PRIMARY KEY (a, b))`)

	schema, err := NewSQLiteDescriber(db).Describe(context.Background(), "main")
	require.NoError(t, err)

	pair := schema.Table("pair")
	require.NotNil(t, pair.PrimaryKey)
	assert.Equal(t, []string{"a", "b"}, pair.PrimaryKey.Columns)
	assert.False(t, pair.Column("a").AutoIncrement)
	assert.Empty(t, pair.Indices)
}

func TestSQLiteMetadataAndVersion(t *testing.T) {
	db := openMemoryDB(t)
	execAll(t, db, `CREATE TABLE one (id INTEGER PRIMARY KEY)`, `CREATE TABLE two (id INTEGER PRIMARY KEY)`)

	d := NewSQLiteDescriber(db)
	meta, err := d.GetMetadata(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, 2, meta.TableCount)
	assert.Positive(t, meta.SizeInBytes)

	version, err := d.Version(context.Background(), "main")
	require.NoError(t, err)
	assert.NotEmpty(t, version)

	dbs, err := d.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Contains(t, dbs, "main")
}

func TestSQLiteColumnType(t *testing.T) {
	tests := []struct {
		raw  string
		want ColumnTypeFamily
	}{
		{"INTEGER", FamilyInt},
		{"BIGINT", FamilyInt},
		{"REAL", FamilyFloat},
		{"DECIMAL(10,2)", FamilyDecimal},
		{"BOOLEAN", FamilyBoolean},
		{"TEXT", FamilyString},
		{"VARCHAR(255)", FamilyString},
		{"DATETIME", FamilyDateTime},
		{"BLOB", FamilyBinary},
		{"GEOMETRY", UnsupportedFamily("GEOMETRY")},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, sqliteColumnType(tt.raw, ArityRequired).Family)
		})
	}
}
