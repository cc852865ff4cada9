package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/schemaengine/datamodel"
	"github.com/ridoystarlord/schemaengine/flavour"
	"github.com/ridoystarlord/schemaengine/schema"
)

func parse(t *testing.T, src string) *schema.SchemaAst {
	t.Helper()
	ast, err := schema.Unmarshal([]byte(src))
	require.NoError(t, err)
	return ast
}

func hasMessage(result *ValidationResult, fragment string) bool {
	for _, m := range result.Messages() {
		if strings.Contains(m, fragment) {
			return true
		}
	}
	return false
}

const blog = `
enums:
  - name: Role
    values: [USER, ADMIN]
type_aliases:
  - Id Int @id @default(autoincrement())
models:
  - name: User
    fields:
      - id Id
      - email String @unique
      - role Role @default(USER)
      - posts Post[]
      - updatedAt DateTime @updatedAt
    attributes: ['@@map("users")']
  - name: Post
    fields:
      - id Int @id
      - title String @db.VarChar(200)
      - authorId Int
      - 'author User @relation(fields: [authorId], references: [id])'
    attributes: ['@@index([authorId])']
`

func TestValidateLowersSchema(t *testing.T) {
	result := Validate(parse(t, blog))
	require.True(t, result.Valid, result.Messages())
	dm := result.Datamodel
	require.NotNil(t, dm)

	user := dm.FindModel("User")
	require.NotNil(t, user)
	assert.Equal(t, "users", user.DatabaseName)

	id := user.FindField("id")
	assert.True(t, id.IsID)
	assert.Equal(t, datamodel.BaseType(datamodel.Int), id.Type)
	assert.True(t, id.Default.IsGenerator("autoincrement"))

	role := user.FindField("role")
	assert.Equal(t, datamodel.EnumType("Role"), role.Type)
	assert.Equal(t, "USER", role.Default.Value)
	assert.True(t, user.FindField("updatedAt").IsUpdatedAt)

	posts := user.FindField("posts")
	require.NotNil(t, posts.Relation)
	assert.Equal(t, "PostToUser", posts.Relation.Name)

	post := dm.FindModel("Post")
	author := post.FindField("author")
	assert.Equal(t, []string{"authorId"}, author.Relation.Fields)
	assert.Equal(t, []string{"id"}, author.Relation.References)
	assert.Equal(t, "VarChar(200)", post.FindField("title").Type.NativeType)
	assert.Equal(t, []datamodel.IndexDefinition{{Fields: []string{"authorId"}, Type: datamodel.IndexNormal}}, post.Indices)

	relations := datamodel.CalculateRelations(dm)
	require.Len(t, relations, 1)
	assert.Equal(t, "Post", dm.Models[relations[0].Manifestation.InModel].Name)
}

func TestPrecheckStopsLowering(t *testing.T) {
	result := Validate(parse(t, `
enums:
  - name: String
    values: [A, A]
models:
  - name: User
    fields:
      - id Int @id
      - id String
  - name: User
    fields:
      - id Int @id
`))
	assert.False(t, result.Valid)
	assert.Nil(t, result.Datamodel)
	assert.True(t, hasMessage(result, "reserved scalar type"))
	assert.True(t, hasMessage(result, `Value "A" is already defined on enum "String"`))
	assert.True(t, hasMessage(result, `Field "id" is already defined on model "User"`))
	assert.True(t, hasMessage(result, `The model "User" cannot be defined because a model with that name already exists`))
}

func TestDuplicateConfigKeys(t *testing.T) {
	ast := &schema.SchemaAst{Datasources: []schema.SourceConfig{{
		Name: "db",
		Properties: []schema.Argument{
			{Name: "provider", Value: schema.String("sqlite")},
			{Name: "provider", Value: schema.String("mysql")},
		},
	}}}
	result := Validate(ast)
	assert.True(t, hasMessage(result, `Key "provider" is already defined in datasource configuration "db"`))
}

func TestRelationValidation(t *testing.T) {
	cases := []struct {
		name     string
		src      string
		fragment string
	}{
		{
			name: "missing opposite field",
			src: `
models:
  - name: User
    fields:
      - id Int @id
  - name: Post
    fields:
      - id Int @id
      - userId Int
      - 'user User @relation(fields: [userId], references: [id])'
`,
			fragment: "is missing an opposite relation field on the model `User`",
		},
		{
			name: "unknown fields",
			src: `
models:
  - name: User
    fields:
      - id Int @id
      - posts Post[]
  - name: Post
    fields:
      - id Int @id
      - 'user User @relation(fields: [userId], references: [id])'
`,
			fragment: "The following fields do not exist in this model: userId",
		},
		{
			name: "length mismatch",
			src: `
models:
  - name: User
    fields:
      - id Int @id
      - posts Post[]
  - name: Post
    fields:
      - id Int @id
      - userId Int
      - 'user User @relation(fields: [userId], references: [id, id])'
`,
			fragment: "the same number of fields in `fields` and `references`",
		},
		{
			name: "list side declares fields",
			src: `
models:
  - name: User
    fields:
      - id Int @id
      - 'posts Post[] @relation(fields: [id], references: [id])'
  - name: Post
    fields:
      - id Int @id
      - userId Int?
      - 'user User? @relation(fields: [userId], references: [id])'
`,
			fragment: "You must only specify it on the opposite field `user` on model `Post`",
		},
		{
			name: "one to one on both sides",
			src: `
models:
  - name: User
    fields:
      - id Int @id
      - profileId Int
      - 'profile Profile @relation(fields: [profileId], references: [id])'
  - name: Profile
    fields:
      - id Int @id
      - userId Int
      - 'user User @relation(fields: [userId], references: [id])'
`,
			fragment: "You have to provide it only on one of the two fields",
		},
		{
			name: "ambiguous",
			src: `
models:
  - name: User
    fields:
      - id Int @id
      - written Post[]
      - edited Post[]
  - name: Post
    fields:
      - id Int @id
      - authorId Int
      - 'author User @relation(fields: [authorId], references: [id])'
`,
			fragment: "Ambiguous relation detected",
		},
		{
			name: "many to many without id",
			src: `
models:
  - name: Post
    fields:
      - slug Int @unique
      - categories Category[]
  - name: Category
    fields:
      - id Int @id
      - posts Post[]
`,
			fragment: "Models without `@id` can not be part of a many to many relation",
		},
		{
			name: "optional relation over required field",
			src: `
models:
  - name: User
    fields:
      - id Int @id
      - posts Post[]
  - name: Post
    fields:
      - id Int @id
      - userId Int
      - 'user User? @relation(fields: [userId], references: [id])'
`,
			fragment: "Hence the relation field must be required as well",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			result := Validate(parse(t, tc.src))
			assert.False(t, result.Valid)
			assert.True(t, hasMessage(result, tc.fragment), result.Messages())
		})
	}
}

func TestFieldAndModelErrors(t *testing.T) {
	result := Validate(parse(t, `
models:
  - name: Log
    fields:
      - line String
      - owner Ghost
      - at Int @updatedAt
      - kind String @default(nowish())
    attributes: ['@@index([missing])']
`))
	assert.False(t, result.Valid)
	assert.True(t, hasMessage(result, `Type "Ghost" is neither a built-in type`))
	assert.True(t, hasMessage(result, "must be of type DateTime"))
	assert.True(t, hasMessage(result, "The function `nowish` is not a known function"))
	assert.True(t, hasMessage(result, `refers to the unknown field "missing"`))
	assert.True(t, hasMessage(result, "at least one unique criteria"))
}

func TestCommentedOutModelsAreNotValidated(t *testing.T) {
	result := Validate(parse(t, `
models:
  - name: Legacy
    commented_out: true
    fields:
      - name: shape
        type: Unsupported("circle")
        arity: Optional
  - name: User
    fields:
      - id Int @id
`))
	require.True(t, result.Valid, result.Messages())
	legacy := result.Datamodel.FindModel("Legacy")
	require.NotNil(t, legacy)
	assert.True(t, legacy.IsCommentedOut)
	assert.Equal(t, datamodel.UnsupportedType("circle"), legacy.Fields[0].Type)
}

func TestIdentifierLengthsFollowFlavour(t *testing.T) {
	long := strings.Repeat("c", 70)
	src := `
models:
  - name: User
    fields:
      - 'id Int @id @map("` + long + `")'
`
	result := NewSchemaValidator(&flavour.Postgres{}).ValidateSchema(parse(t, src))
	assert.False(t, result.Valid)
	assert.True(t, hasMessage(result, "is too long (max 63 characters)"))

	result = NewSchemaValidator(&flavour.SQLite{}).ValidateSchema(parse(t, src))
	assert.True(t, result.Valid)
}

func TestDatasourceFamily(t *testing.T) {
	ast := parse(t, `
datasources:
  - name: db
    properties:
      provider: "mysql"
      url: env("DATABASE_URL")
`)
	family, ok, err := DatasourceFamily(ast)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "mysql", string(family))

	_, ok, err = DatasourceFamily(&schema.SchemaAst{})
	assert.NoError(t, err)
	assert.False(t, ok)
}
