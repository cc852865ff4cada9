package flavour

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/describer"
)

func column(name string, family describer.ColumnTypeFamily, arity describer.ColumnArity) describer.Column {
	return describer.Column{Name: name, Type: describer.ColumnType{Family: family, Arity: arity}}
}

func TestNew(t *testing.T) {
	for _, family := range []database.Family{database.Postgres, database.MySQL, database.SQLite} {
		f, err := New(family)
		require.NoError(t, err)
		assert.Equal(t, family, f.Family())
	}
	_, err := New("mongodb")
	assert.Error(t, err)
}

func TestQuotingAndPlaceholders(t *testing.T) {
	pg, my, lite := &Postgres{}, &MySQL{}, &SQLite{}

	assert.Equal(t, `"User"`, pg.QuoteIdent("User"))
	assert.Equal(t, `"a""b"`, pg.QuoteIdent(`a"b`))
	assert.Equal(t, "`User`", my.QuoteIdent("User"))
	assert.Equal(t, `"User"`, lite.QuoteIdent("User"))

	assert.Equal(t, "$3", pg.Placeholder(3))
	assert.Equal(t, "?", my.Placeholder(3))
	assert.Equal(t, "?", lite.Placeholder(1))
}

func TestEncodeTime(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, ts.UnixMilli(), (&SQLite{}).EncodeTime(ts))
	assert.Equal(t, ts, (&Postgres{}).EncodeTime(ts))
}

func TestColumnTypeSQL(t *testing.T) {
	pg, my, lite := &Postgres{}, &MySQL{}, &SQLite{}

	id := column("id", describer.FamilyInt, describer.ArityRequired)
	id.AutoIncrement = true
	assert.Equal(t, "SERIAL", pg.ColumnTypeSQL(id, nil))
	assert.Equal(t, "INT", my.ColumnTypeSQL(id, nil))
	assert.Equal(t, "INTEGER", lite.ColumnTypeSQL(id, nil))

	tags := column("tags", describer.FamilyString, describer.ArityList)
	assert.Equal(t, "TEXT[]", pg.ColumnTypeSQL(tags, nil))

	name := column("name", describer.FamilyString, describer.ArityRequired)
	name.Type.NativeType = "VarChar(255)"
	assert.Equal(t, "VARCHAR(255)", pg.ColumnTypeSQL(name, nil))

	price := column("price", describer.FamilyDecimal, describer.ArityRequired)
	assert.Equal(t, "DECIMAL(65,30)", my.ColumnTypeSQL(price, nil))

	color := column("color", describer.EnumFamily("Color"), describer.ArityRequired)
	enum := &describer.Enum{Name: "Color", Values: []string{"RED", "GREEN"}}
	assert.Equal(t, `"Color"`, pg.ColumnTypeSQL(color, enum))
	assert.Equal(t, "ENUM('RED', 'GREEN')", my.ColumnTypeSQL(color, enum))
	assert.Equal(t, "TEXT", lite.ColumnTypeSQL(color, enum))
}

func TestDefaultSQL(t *testing.T) {
	pg, my, lite := &Postgres{}, &MySQL{}, &SQLite{}

	active := column("active", describer.FamilyBoolean, describer.ArityRequired)
	active.Default = describer.DefaultValueOf("true")
	assert.Equal(t, "true", pg.DefaultSQL(active))
	assert.Equal(t, "1", my.DefaultSQL(active))

	title := column("title", describer.FamilyString, describer.ArityRequired)
	title.Default = describer.DefaultValueOf("it's")
	assert.Equal(t, "'it''s'", lite.DefaultSQL(title))

	created := column("createdAt", describer.FamilyDateTime, describer.ArityRequired)
	created.Default = describer.DefaultNow()
	assert.Equal(t, "CURRENT_TIMESTAMP", pg.DefaultSQL(created))
	assert.Equal(t, "CURRENT_TIMESTAMP(3)", my.DefaultSQL(created))

	color := column("color", describer.EnumFamily("Color"), describer.ArityRequired)
	color.Default = describer.DefaultValueOf("RED")
	assert.Equal(t, `'RED'::"Color"`, pg.DefaultSQL(color))

	id := column("id", describer.FamilyInt, describer.ArityRequired)
	id.AutoIncrement = true
	id.Default = describer.DefaultSequence("User_id_seq")
	assert.Empty(t, pg.DefaultSQL(id))

	assert.Empty(t, pg.DefaultSQL(column("plain", describer.FamilyInt, describer.ArityRequired)))
}

func TestAlterColumnSQL(t *testing.T) {
	col := column("age", describer.FamilyInt, describer.ArityNullable)
	stmts := (&Postgres{}).AlterColumnSQL("User", col, nil, true, true, true)
	assert.Equal(t, []string{
		`ALTER TABLE "User" ALTER COLUMN "age" TYPE INTEGER USING "age"::INTEGER`,
		`ALTER TABLE "User" ALTER COLUMN "age" DROP NOT NULL`,
		`ALTER TABLE "User" ALTER COLUMN "age" DROP DEFAULT`,
	}, stmts)

	stmts = (&MySQL{}).AlterColumnSQL("User", col, nil, true, false, false)
	assert.Equal(t, []string{"ALTER TABLE `User` MODIFY `age` INT NULL"}, stmts)
}

func twoSchemas(prev, next describer.Column, enums ...describer.Enum) (describer.ColumnWalker, describer.ColumnWalker) {
	ps := &describer.SqlSchema{Tables: []describer.Table{{Name: "t", Columns: []describer.Column{prev}}}}
	ns := &describer.SqlSchema{Tables: []describer.Table{{Name: "t", Columns: []describer.Column{next}}}}
	if len(enums) == 2 {
		ps.Enums = []describer.Enum{enums[0]}
		ns.Enums = []describer.Enum{enums[1]}
	}
	p, _ := ps.FindColumn("t", prev.Name)
	n, _ := ns.FindColumn("t", next.Name)
	return p, n
}

func TestColumnTypeChange(t *testing.T) {
	intCol := column("c", describer.FamilyInt, describer.ArityRequired)
	strCol := column("c", describer.FamilyString, describer.ArityRequired)
	jsonCol := column("c", describer.FamilyJson, describer.ArityRequired)
	binCol := column("c", describer.FamilyBinary, describer.ArityRequired)

	pg := &Postgres{}
	change, changed := pg.ColumnTypeChange(twoSchemas(intCol, strCol))
	assert.True(t, changed)
	assert.Equal(t, SafeCast, change)

	change, changed = pg.ColumnTypeChange(twoSchemas(strCol, intCol))
	assert.True(t, changed)
	assert.Equal(t, RiskyCast, change)

	change, _ = pg.ColumnTypeChange(twoSchemas(binCol, intCol))
	assert.Equal(t, NotCastable, change)

	_, changed = pg.ColumnTypeChange(twoSchemas(intCol, intCol))
	assert.False(t, changed)

	_, changed = (&MySQL{MariaDB: true}).ColumnTypeChange(twoSchemas(strCol, jsonCol))
	assert.False(t, changed)
	change, changed = (&MySQL{}).ColumnTypeChange(twoSchemas(strCol, jsonCol))
	assert.True(t, changed)
	assert.Equal(t, RiskyCast, change)
}

func TestEnumColumnTypeChange(t *testing.T) {
	col := column("c", describer.EnumFamily("t_c"), describer.ArityRequired)
	ab := describer.Enum{Name: "t_c", Values: []string{"A", "B"}}
	abc := describer.Enum{Name: "t_c", Values: []string{"A", "B", "C"}}
	a := describer.Enum{Name: "t_c", Values: []string{"A"}}

	my := &MySQL{}
	_, changed := my.ColumnTypeChange(twoSchemas(col, col, ab, ab))
	assert.False(t, changed)

	change, changed := my.ColumnTypeChange(twoSchemas(col, col, ab, abc))
	assert.True(t, changed)
	assert.Equal(t, SafeCast, change)

	change, _ = my.ColumnTypeChange(twoSchemas(col, col, ab, a))
	assert.Equal(t, RiskyCast, change)
}

func TestMySQLIndexShouldBeRenamed(t *testing.T) {
	long := strings.Repeat("x", 70)
	truncated := &describer.Index{Name: long[:MySQLIdentifierLimit]}
	next := &describer.Index{Name: long}

	my := &MySQL{}
	assert.False(t, my.IndexShouldBeRenamed(truncated, next))
	assert.True(t, my.IndexShouldBeRenamed(&describer.Index{Name: "a"}, &describer.Index{Name: "b"}))
	assert.True(t, (&Postgres{}).IndexShouldBeRenamed(truncated, next))
}

func TestSQLiteShadowDatabaseAndTableExists(t *testing.T) {
	ctx := context.Background()
	lite := &SQLite{}

	shadow, cleanup, err := lite.CreateShadowDatabase(ctx, nil, "")
	require.NoError(t, err)
	defer cleanup()

	exists, err := lite.TableExists(ctx, shadow.DB, shadow.Schema, "User")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = shadow.DB.ExecContext(ctx, `CREATE TABLE "User" (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	exists, err = lite.TableExists(ctx, shadow.DB, shadow.Schema, "User")
	require.NoError(t, err)
	assert.True(t, exists)

	schema, err := lite.Describer(shadow).Describe(ctx, shadow.Schema)
	require.NoError(t, err)
	assert.True(t, schema.HasTable("User"))
}
