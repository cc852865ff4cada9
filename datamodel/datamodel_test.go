package datamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/schemaengine/schema"
)

func relationField(name, to string, arity FieldArity, relName string, fields, refs []string) Field {
	return Field{
		Name:     name,
		Arity:    arity,
		Type:     RelationType(to),
		Relation: &RelationInfo{To: to, Name: relName, Fields: fields, References: refs},
	}
}

func idField() Field {
	return Field{Name: "id", Arity: Required, Type: BaseType(Int), IsID: true, Default: GeneratedDefault("autoincrement")}
}

func cityAndUser() (Model, Model) {
	city := Model{Name: "City", Fields: []Field{
		idField(),
		{Name: "name", Arity: Required, Type: BaseType(String)},
		relationField("User", "User", List, "CityToUser", nil, nil),
	}}
	user := Model{Name: "User", Fields: []Field{
		idField(),
		{Name: "city_id", Arity: Required, Type: BaseType(Int)},
		relationField("City", "City", Required, "CityToUser", []string{"city_id"}, []string{"id"}),
	}}
	return city, user
}

func TestCalculateRelationsOneToMany(t *testing.T) {
	city, user := cityAndUser()
	dm := &Datamodel{Models: []Model{city, user}}

	relations := CalculateRelations(dm)
	require.Len(t, relations, 1)
	r := relations[0]
	assert.Equal(t, "CityToUser", r.Name)
	assert.Equal(t, "City", dm.Models[r.ModelA].Name)
	assert.Equal(t, "User", dm.Models[r.ModelB].Name)
	assert.Equal(t, Inline, r.Manifestation.Kind)
	assert.Equal(t, "User", dm.Models[r.Manifestation.InModel].Name)
	assert.Equal(t, "City", dm.Models[r.Manifestation.InModel].Fields[r.Manifestation.Field].Name)
	assert.Equal(t, []string{"city_id"}, r.Manifestation.Fields)
}

func TestCalculateRelationsIsSymmetric(t *testing.T) {
	city, user := cityAndUser()
	forward := &Datamodel{Models: []Model{city, user}}
	backward := &Datamodel{Models: []Model{user, city}}

	rf := CalculateRelations(forward)
	rb := CalculateRelations(backward)
	require.Len(t, rf, 1)
	require.Len(t, rb, 1)

	describe := func(dm *Datamodel, r Relation) []string {
		return []string{
			r.Name,
			dm.Models[r.ModelA].Name, dm.Models[r.ModelA].Fields[r.FieldA].Name,
			dm.Models[r.ModelB].Name, dm.Models[r.ModelB].Fields[r.FieldB].Name,
			dm.Models[r.Manifestation.InModel].Name,
		}
	}
	assert.Equal(t, describe(forward, rf[0]), describe(backward, rb[0]))
}

func TestCalculateRelationsManyToMany(t *testing.T) {
	post := Model{Name: "Post", Fields: []Field{idField(), relationField("tags", "Tag", List, "PostToTag", nil, nil)}}
	tag := Model{Name: "Tag", Fields: []Field{idField(), relationField("posts", "Post", List, "PostToTag", nil, nil)}}

	relations := CalculateRelations(&Datamodel{Models: []Model{tag, post}})
	require.Len(t, relations, 1)
	m := relations[0].Manifestation
	assert.True(t, relations[0].IsManyToMany())
	assert.Equal(t, "_PostToTag", m.JoinTable)
	assert.Equal(t, "A", m.ColumnA)
	assert.Equal(t, "B", m.ColumnB)
}

func TestCalculateRelationsSelfRelation(t *testing.T) {
	user := Model{Name: "User", Fields: []Field{
		idField(),
		{Name: "invitedById", Arity: Optional, Type: BaseType(Int)},
		relationField("invitedBy", "User", Optional, "Invites", []string{"invitedById"}, []string{"id"}),
		relationField("invited", "User", List, "Invites", nil, nil),
	}}
	dm := &Datamodel{Models: []Model{user}}

	relations := CalculateRelations(dm)
	require.Len(t, relations, 1)
	r := relations[0]
	assert.Equal(t, "invited", dm.Models[0].Fields[r.FieldA].Name)
	assert.Equal(t, "invitedBy", dm.Models[0].Fields[r.FieldB].Name)
	assert.Equal(t, r.FieldB, r.Manifestation.Field)
}

func TestCalculateRelationsOneToOne(t *testing.T) {
	profile := Model{Name: "Profile", Fields: []Field{idField(), relationField("user", "User", Optional, "ProfileToUser", nil, nil)}}
	user := Model{Name: "User", Fields: []Field{idField(), relationField("profile", "Profile", Optional, "ProfileToUser", nil, nil)}}
	dm := &Datamodel{Models: []Model{user, profile}}

	relations := CalculateRelations(dm)
	require.Len(t, relations, 1)
	assert.Equal(t, "Profile", dm.Models[relations[0].Manifestation.InModel].Name)

	dm.Models[0].Fields[1].Relation.Fields = []string{"profileId"}
	dm.Models[0].Fields[1].Relation.References = []string{"id"}
	relations = CalculateRelations(dm)
	assert.Equal(t, "User", dm.Models[relations[0].Manifestation.InModel].Name)

	dm.Models[1].Fields[1].Relation.Fields = []string{"userId"}
	assert.Panics(t, func() { CalculateRelations(dm) })
}

func TestCalculateRelationsSkipsUnpaired(t *testing.T) {
	post := Model{Name: "Post", Fields: []Field{idField(), relationField("author", "User", Required, "", nil, nil)}}
	relations := CalculateRelations(&Datamodel{Models: []Model{post}})
	assert.Empty(t, relations)
}

func TestHasUniqueCriteria(t *testing.T) {
	m := Model{Name: "Log", Fields: []Field{{Name: "line", Arity: Optional, Type: BaseType(String)}}}
	assert.False(t, m.HasUniqueCriteria())

	m.Indices = []IndexDefinition{{Fields: []string{"line"}, Type: IndexUnique}}
	assert.False(t, m.HasUniqueCriteria(), "optional fields cannot identify a row")

	m.Fields[0].Arity = Required
	assert.True(t, m.HasUniqueCriteria())
}

func TestDefaultRelationName(t *testing.T) {
	assert.Equal(t, "CityToUser", DefaultRelationName("User", "City"))
	assert.Equal(t, "CityToUser", DefaultRelationName("City", "User"))
}

func TestLift(t *testing.T) {
	city, user := cityAndUser()
	user.DatabaseName = "users"
	user.Fields[1].DatabaseName = "city-id"
	user.Fields = append(user.Fields,
		Field{Name: "email", Arity: Required, IsUnique: true, Type: FieldType{Kind: TypeBase, Scalar: String, NativeType: "VarChar(191)"}},
		Field{Name: "role", Arity: Required, Type: EnumType("Role"), Default: SingleDefault("USER")},
		Field{Name: "active", Arity: Required, Type: BaseType(Boolean), Default: SingleDefault("true")},
	)
	user.Indices = []IndexDefinition{{Name: "by_city", Fields: []string{"city_id", "email"}, Type: IndexNormal}}
	dm := &Datamodel{
		Models: []Model{city, user},
		Enums:  []Enum{{Name: "Role", Values: []EnumValue{{Name: "USER"}, {Name: "ADMIN", DatabaseName: "admin"}}}},
	}

	ast := Lift(dm)
	require.Len(t, ast.Models, 2)
	require.Len(t, ast.Enums, 1)
	assert.Equal(t, `ADMIN @map("admin")`, ast.Enums[0].Values[1].Line())

	u := ast.FindModel("User")
	require.NotNil(t, u)
	assert.Equal(t, "id Int @id @default(autoincrement())", u.FindField("id").Line())
	assert.Equal(t, `city_id Int @map("city-id")`, u.FindField("city_id").Line())
	assert.Equal(t, "City City @relation(fields: [city_id], references: [id])", u.FindField("City").Line())
	assert.Equal(t, "email String @unique @db.VarChar(191)", u.FindField("email").Line())
	assert.Equal(t, "role Role @default(USER)", u.FindField("role").Line())
	assert.Equal(t, "active Boolean @default(true)", u.FindField("active").Line())

	var blocks []string
	for _, a := range u.Attributes {
		blocks = append(blocks, a.Render(true))
	}
	assert.Equal(t, []string{`@@index([city_id, email], name: "by_city")`, `@@map("users")`}, blocks)

	c := ast.FindModel("City")
	assert.Equal(t, "User User[]", c.FindField("User").Line())
}

func TestNativeTypeAttributeRoundTrip(t *testing.T) {
	attr := nativeTypeAttribute("Decimal(10,2)")
	assert.Equal(t, "@db.Decimal(10, 2)", attr.Render(false))

	native, ok := NativeTypeFromAttribute(attr)
	require.True(t, ok)
	assert.Equal(t, "Decimal(10,2)", native)

	native, ok = NativeTypeFromAttribute(schema.Attribute{Name: "db.Text"})
	require.True(t, ok)
	assert.Equal(t, "Text", native)

	_, ok = NativeTypeFromAttribute(schema.Attribute{Name: "map"})
	assert.False(t, ok)
}
