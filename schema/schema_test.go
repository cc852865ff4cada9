package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpression(t *testing.T) {
	tests := []struct {
		src  string
		want Expression
	}{
		{`"hello"`, String("hello")},
		{`42`, Number("42")},
		{`-1.5`, Number("-1.5")},
		{`true`, Boolean(true)},
		{`Cascade`, Constant("Cascade")},
		{`autoincrement()`, Function("autoincrement")},
		{`env("DATABASE_URL")`, Function("env", String("DATABASE_URL"))},
		{`[a, b]`, Array(Constant("a"), Constant("b"))},
		{`[]`, Array()},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.src, func(t *testing.T) {
			got, err := ParseExpression(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Render(), got.Render())
			assert.Equal(t, tt.want.Kind, got.Kind)
		})
	}
}

func TestParseExpressionErrors(t *testing.T) {
	for _, src := range []string{`"unterminated`, `[a, b`, `foo(`, `a b`, ``} {
		_, err := ParseExpression(src)
		assert.Error(t, err, src)
	}
}

func TestStringEscaping(t *testing.T) {
	e := String(`say "hi"\n`)
	parsed, err := ParseExpression(e.Render())
	require.NoError(t, err)
	assert.Equal(t, e.Value, parsed.Value)
}

func TestParseFieldLine(t *testing.T) {
	f, err := ParseFieldLine(`city City? @relation(name: "CityToUser", fields: [cityId], references: [id])`)
	require.NoError(t, err)
	assert.Equal(t, "city", f.Name)
	assert.Equal(t, "City", f.Type)
	assert.Equal(t, Optional, f.Arity)
	require.Len(t, f.Attributes, 1)

	rel := f.Attributes[0]
	assert.Equal(t, "relation", rel.Name)
	require.Len(t, rel.Arguments, 3)
	assert.Equal(t, "name", rel.Arguments[0].Name)
	assert.Equal(t, `"CityToUser"`, rel.Arguments[0].Value.Render())
	assert.Equal(t, []string{"cityId"}, rel.Argument("fields").Value.ConstantNames())

	assert.Equal(t, `city City? @relation(name: "CityToUser", fields: [cityId], references: [id])`, f.Line())
}

func TestParseFieldLineVariants(t *testing.T) {
	f, err := ParseFieldLine(`tags String[]`)
	require.NoError(t, err)
	assert.Equal(t, List, f.Arity)
	assert.Empty(t, f.Attributes)

	f, err = ParseFieldLine(`area Unsupported("circle")?`)
	require.NoError(t, err)
	assert.Equal(t, `Unsupported("circle")`, f.Type)
	assert.Equal(t, Optional, f.Arity)

	f, err = ParseFieldLine(`name String @db.VarChar(255) @default("")`)
	require.NoError(t, err)
	require.Len(t, f.Attributes, 2)
	assert.Equal(t, "db.VarChar", f.Attributes[0].Name)
	assert.Equal(t, "255", f.Attributes[0].Arguments[0].Value.Render())

	_, err = ParseFieldLine(`id`)
	assert.Error(t, err)
	_, err = ParseFieldLine(`id Int @@id`)
	assert.Error(t, err)
}

func TestParseBlockAttribute(t *testing.T) {
	a, err := ParseBlockAttribute(`@@index([email, cityId], name: "by_email")`)
	require.NoError(t, err)
	assert.Equal(t, "index", a.Name)
	assert.True(t, a.IsRepeated())
	assert.Equal(t, `@@index([email, cityId], name: "by_email")`, a.Render(true))

	_, err = ParseBlockAttribute(`@id`)
	assert.Error(t, err)
}

const sampleSchema = `
datasources:
  - name: db
    properties:
      provider: "postgresql"
      url: env("DATABASE_URL")
type_aliases:
  - MyId Int @id
enums:
  - name: Color
    values: [RED, GREEN @map("green")]
    attributes: ['@@map("colors")']
models:
  - name: User
    documentation: a user
    fields:
      - id Int @id @default(autoincrement())
      - email String @unique
      - 'city City? @relation(fields: [cityId], references: [id])'
      - cityId Int?
      - name: legacy
        type: Unsupported("circle")
        arity: Optional
        commented_out: true
    attributes: ['@@index([email, cityId])']
`

func TestUnmarshalSchema(t *testing.T) {
	ast, err := Unmarshal([]byte(sampleSchema))
	require.NoError(t, err)

	require.Len(t, ast.Datasources, 1)
	db := ast.Datasources[0]
	assert.Equal(t, "db", db.Name)
	require.Len(t, db.Properties, 2)
	assert.Equal(t, "provider", db.Properties[0].Name)
	assert.Equal(t, String("postgresql"), db.Properties[0].Value)
	assert.Equal(t, FunctionValue, db.Properties[1].Value.Kind)

	require.Len(t, ast.TypeAliases, 1)
	assert.Equal(t, "MyId", ast.TypeAliases[0].Name)

	color := ast.FindEnum("Color")
	require.NotNil(t, color)
	require.Len(t, color.Values, 2)
	assert.Equal(t, "map", color.Values[1].Attributes[0].Name)
	assert.Equal(t, "map", color.Attributes[0].Name)

	user := ast.FindModel("User")
	require.NotNil(t, user)
	assert.Equal(t, "a user", user.Documentation)
	require.Len(t, user.Fields, 5)
	assert.Equal(t, Optional, user.FindField("city").Arity)
	legacy := user.FindField("legacy")
	require.NotNil(t, legacy)
	assert.True(t, legacy.CommentedOut)
	assert.Equal(t, `Unsupported("circle")`, legacy.Type)
	require.Len(t, user.Attributes, 1)
	assert.Equal(t, "index", user.Attributes[0].Name)
}

func TestMarshalRoundTrip(t *testing.T) {
	ast, err := Unmarshal([]byte(sampleSchema))
	require.NoError(t, err)

	out, err := Marshal(ast)
	require.NoError(t, err)

	again, err := Unmarshal(out)
	require.NoError(t, err)
	assert.Equal(t, ast, again)
}
