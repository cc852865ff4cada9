package introspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/datamodel"
	"github.com/ridoystarlord/schemaengine/describer"
)

func column(name string, family describer.ColumnTypeFamily, arity describer.ColumnArity) describer.Column {
	return describer.Column{Name: name, Type: describer.ColumnType{
		DataType:     family.String(),
		FullDataType: family.String(),
		Family:       family,
		Arity:        arity,
	}}
}

func idColumn() describer.Column {
	c := column("id", describer.FamilyInt, describer.ArityRequired)
	c.AutoIncrement = true
	return c
}

func pk(columns ...string) *describer.PrimaryKey {
	return &describer.PrimaryKey{Columns: columns}
}

func fieldNames(m *datamodel.Model) []string {
	var out []string
	for _, f := range m.Fields {
		out = append(out, f.Name)
	}
	return out
}

func cityUserSchema() *describer.SqlSchema {
	return &describer.SqlSchema{Tables: []describer.Table{
		{
			Name:       "City",
			Columns:    []describer.Column{idColumn(), column("name", describer.FamilyString, describer.ArityRequired)},
			PrimaryKey: pk("id"),
		},
		{
			Name:       "User",
			Columns:    []describer.Column{idColumn(), column("city_id", describer.FamilyInt, describer.ArityRequired)},
			PrimaryKey: pk("id"),
			ForeignKeys: []describer.ForeignKey{{
				Columns:           []string{"city_id"},
				ReferencedTable:   "City",
				ReferencedColumns: []string{"id"},
				OnDeleteAction:    describer.NoAction,
			}},
		},
	}}
}

func TestArities(t *testing.T) {
	s := &describer.SqlSchema{Tables: []describer.Table{{
		Name: "Test",
		Columns: []describer.Column{
			idColumn(),
			column("optional", describer.FamilyString, describer.ArityNullable),
			column("required", describer.FamilyString, describer.ArityRequired),
			column("list", describer.FamilyInt, describer.ArityList),
		},
		PrimaryKey: pk("id"),
	}}}

	res := CalculateDatamodel(s, database.Postgres, nil, Options{})
	require.Len(t, res.Datamodel.Models, 1)
	m := &res.Datamodel.Models[0]
	assert.Equal(t, []string{"id", "optional", "required", "list"}, fieldNames(m))

	id := m.FindField("id")
	assert.True(t, id.IsID)
	assert.False(t, id.IsUnique)
	assert.Equal(t, datamodel.Required, id.Arity)
	assert.True(t, id.Default.IsGenerator("autoincrement"))

	assert.Equal(t, datamodel.Optional, m.FindField("optional").Arity)
	assert.Equal(t, datamodel.Required, m.FindField("required").Arity)
	assert.Equal(t, datamodel.List, m.FindField("list").Arity)
	assert.Nil(t, m.FindField("list").Default)
	assert.Empty(t, res.Warnings)
}

func TestDefaults(t *testing.T) {
	created := column("created", describer.FamilyDateTime, describer.ArityRequired)
	created.Default = describer.DefaultNow()
	greeting := column("greeting", describer.FamilyString, describer.ArityRequired)
	greeting.Default = describer.DefaultValueOf("hello")
	computed := column("computed", describer.FamilyInt, describer.ArityRequired)
	computed.Default = describer.DefaultDbGenerated("1 + 1")
	seq := column("seq", describer.FamilyInt, describer.ArityRequired)
	seq.Default = describer.DefaultSequence("seq_id")

	s := &describer.SqlSchema{Tables: []describer.Table{{
		Name:       "Thing",
		Columns:    []describer.Column{idColumn(), created, greeting, computed, seq},
		PrimaryKey: pk("id"),
	}}}
	m := CalculateDatamodel(s, database.Postgres, nil, Options{}).Datamodel.FindModel("Thing")
	require.NotNil(t, m)

	assert.True(t, m.FindField("created").Default.IsGenerator("now"))
	assert.Equal(t, datamodel.SingleDefault("hello"), m.FindField("greeting").Default)
	assert.True(t, m.FindField("computed").Default.IsGenerator("dbgenerated"))
	assert.True(t, m.FindField("seq").Default.IsGenerator("autoincrement"))
}

func TestOneToManyRelation(t *testing.T) {
	res := CalculateDatamodel(cityUserSchema(), database.Postgres, nil, Options{})
	dm := res.Datamodel

	user := dm.FindModel("User")
	require.NotNil(t, user)
	city := user.FindField("City")
	require.NotNil(t, city)
	assert.Equal(t, datamodel.Required, city.Arity)
	assert.Equal(t, &datamodel.RelationInfo{
		To:         "City",
		Fields:     []string{"city_id"},
		References: []string{"id"},
		Name:       "CityToUser",
	}, city.Relation)

	back := dm.FindModel("City").FindField("User")
	require.NotNil(t, back)
	assert.Equal(t, datamodel.List, back.Arity)
	assert.Equal(t, "CityToUser", back.Relation.Name)
	assert.Empty(t, back.Relation.Fields)

	relations := datamodel.CalculateRelations(dm)
	require.Len(t, relations, 1)
	assert.Equal(t, "CityToUser", relations[0].Name)
}

func TestOneToOneBackRelationIsOptional(t *testing.T) {
	s := cityUserSchema()
	s.Tables[1].Indices = []describer.Index{{Name: "User_city_id_key", Columns: []string{"city_id"}, Type: describer.IndexTypeUnique}}

	dm := CalculateDatamodel(s, database.Postgres, nil, Options{}).Datamodel
	assert.True(t, dm.FindModel("User").FindField("city_id").IsUnique)
	assert.Empty(t, dm.FindModel("User").Indices)
	assert.Equal(t, datamodel.Optional, dm.FindModel("City").FindField("User").Arity)
}

func compoundSchema() *describer.SqlSchema {
	return &describer.SqlSchema{Tables: []describer.Table{
		{
			Name: "City",
			Columns: []describer.Column{
				idColumn(),
				column("name", describer.FamilyString, describer.ArityRequired),
			},
			PrimaryKey: pk("id"),
			Indices:    []describer.Index{{Name: "city_unique", Columns: []string{"id", "name"}, Type: describer.IndexTypeUnique}},
		},
		{
			Name: "User",
			Columns: []describer.Column{
				idColumn(),
				column("city-id", describer.FamilyInt, describer.ArityRequired),
				column("city-name", describer.FamilyString, describer.ArityRequired),
			},
			PrimaryKey: pk("id"),
			ForeignKeys: []describer.ForeignKey{{
				Columns:           []string{"city-id", "city-name"},
				ReferencedTable:   "City",
				ReferencedColumns: []string{"id", "name"},
				OnDeleteAction:    describer.NoAction,
			}},
		},
		{
			Name:    "Log",
			Columns: []describer.Column{column("message", describer.FamilyString, describer.ArityNullable)},
		},
	}}
}

func TestCompoundForeignKeyWithInvalidNames(t *testing.T) {
	dm := CalculateDatamodel(compoundSchema(), database.Postgres, nil, Options{}).Datamodel
	user := dm.FindModel("User")
	require.NotNil(t, user)

	assert.Equal(t, []string{"id", "city_id", "city_name", "City"}, fieldNames(user))
	assert.Equal(t, "city-id", user.FindField("city_id").DatabaseName)
	assert.Equal(t, "city-name", user.FindField("city_name").DatabaseName)

	rel := user.FindField("City").Relation
	assert.Equal(t, []string{"city_id", "city_name"}, rel.Fields)
	assert.Equal(t, []string{"id", "name"}, rel.References)

	city := dm.FindModel("City")
	require.Len(t, city.Indices, 1)
	assert.Equal(t, datamodel.IndexUnique, city.Indices[0].Type)
	assert.Equal(t, datamodel.List, city.FindField("User").Arity)
}

func TestModelWithoutIdentifierIsCommentedOut(t *testing.T) {
	res := CalculateDatamodel(compoundSchema(), database.Postgres, nil, Options{})
	log := res.Datamodel.FindModel("Log")
	require.NotNil(t, log)
	assert.True(t, log.IsCommentedOut)
	assert.Equal(t, uncommentableModelDoc, log.Documentation)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnModelsWithoutIdentifier, res.Warnings[0].Code)
	assert.Equal(t, []Affected{{Model: "Log"}}, res.Warnings[0].Affected)
	assert.Equal(t, NonPrisma, res.Version)
}

func TestUnsupportedAndInvalidFields(t *testing.T) {
	s := &describer.SqlSchema{
		Tables: []describer.Table{{
			Name: "Doc",
			Columns: []describer.Column{
				idColumn(),
				column("search", describer.UnsupportedFamily("tsvector"), describer.ArityNullable),
				column("123", describer.FamilyString, describer.ArityNullable),
				column("color", describer.EnumFamily("color"), describer.ArityRequired),
			},
			PrimaryKey: pk("id"),
		}},
		Enums: []describer.Enum{{Name: "color", Values: []string{"RED", "dark-blue", "42"}}},
	}
	res := CalculateDatamodel(s, database.Postgres, nil, Options{})
	doc := res.Datamodel.FindModel("Doc")
	require.NotNil(t, doc)

	search := doc.FindField("search")
	assert.True(t, search.IsCommentedOut)
	assert.Equal(t, unsupportedFieldDoc, search.Documentation)
	assert.Equal(t, datamodel.UnsupportedType("tsvector"), search.Type)

	invalid := doc.FindField("123")
	require.NotNil(t, invalid)
	assert.True(t, invalid.IsCommentedOut)
	assert.Equal(t, "123", invalid.DatabaseName)

	assert.Equal(t, datamodel.EnumType("color"), doc.FindField("color").Type)
	enum := res.Datamodel.FindEnum("color")
	require.NotNil(t, enum)
	assert.Equal(t, "dark_blue", enum.Values[1].Name)
	assert.Equal(t, "dark-blue", enum.Values[1].DatabaseName)
	assert.True(t, enum.Values[2].IsCommentedOut)

	codes := map[int][]Affected{}
	for _, w := range res.Warnings {
		codes[w.Code] = w.Affected
	}
	assert.Equal(t, []Affected{{Model: "Doc", Field: "123"}}, codes[WarnFieldsWithInvalidNames])
	assert.Equal(t, []Affected{{Model: "Doc", Field: "search", Type: "tsvector"}}, codes[WarnUnsupportedTypes])
	assert.Equal(t, []Affected{{Enum: "color", Value: "42"}}, codes[WarnEnumValuesInvalidNames])
}

func TestImplicitManyToManyJoinTable(t *testing.T) {
	s := &describer.SqlSchema{Tables: []describer.Table{
		{Name: "Post", Columns: []describer.Column{idColumn()}, PrimaryKey: pk("id")},
		{Name: "Tag", Columns: []describer.Column{idColumn()}, PrimaryKey: pk("id")},
		{
			Name: "_PostToTag",
			Columns: []describer.Column{
				column("A", describer.FamilyInt, describer.ArityRequired),
				column("B", describer.FamilyInt, describer.ArityRequired),
			},
			Indices: []describer.Index{{Name: "_PostToTag_AB_unique", Columns: []string{"A", "B"}, Type: describer.IndexTypeUnique}},
			ForeignKeys: []describer.ForeignKey{
				{Columns: []string{"A"}, ReferencedTable: "Post", ReferencedColumns: []string{"id"}, OnDeleteAction: describer.Cascade},
				{Columns: []string{"B"}, ReferencedTable: "Tag", ReferencedColumns: []string{"id"}, OnDeleteAction: describer.Cascade},
			},
		},
	}}

	dm := CalculateDatamodel(s, database.Postgres, nil, Options{}).Datamodel
	require.Len(t, dm.Models, 2)

	tags := dm.FindModel("Post").FindField("Tag")
	require.NotNil(t, tags)
	assert.Equal(t, datamodel.List, tags.Arity)
	assert.Equal(t, "PostToTag", tags.Relation.Name)

	posts := dm.FindModel("Tag").FindField("Post")
	require.NotNil(t, posts)
	assert.Equal(t, datamodel.List, posts.Arity)

	relations := datamodel.CalculateRelations(dm)
	require.Len(t, relations, 1)
	assert.True(t, relations[0].IsManyToMany())
}

func TestAmbiguousRelationsAreDisambiguated(t *testing.T) {
	s := &describer.SqlSchema{Tables: []describer.Table{
		{Name: "User", Columns: []describer.Column{idColumn()}, PrimaryKey: pk("id")},
		{
			Name: "Post",
			Columns: []describer.Column{
				idColumn(),
				column("author_id", describer.FamilyInt, describer.ArityRequired),
				column("editor_id", describer.FamilyInt, describer.ArityNullable),
			},
			PrimaryKey: pk("id"),
			ForeignKeys: []describer.ForeignKey{
				{Columns: []string{"author_id"}, ReferencedTable: "User", ReferencedColumns: []string{"id"}},
				{Columns: []string{"editor_id"}, ReferencedTable: "User", ReferencedColumns: []string{"id"}},
			},
		},
	}}

	dm := CalculateDatamodel(s, database.MySQL, nil, Options{}).Datamodel
	post := dm.FindModel("Post")
	assert.Equal(t, []string{"id", "author_id", "editor_id", "User_Post_author_idToUser", "User_Post_editor_idToUser"}, fieldNames(post))
	assert.Equal(t, "Post_author_idToUser", post.FindField("User_Post_author_idToUser").Relation.Name)
	assert.Equal(t, datamodel.Optional, post.FindField("User_Post_editor_idToUser").Arity)

	user := dm.FindModel("User")
	assert.Equal(t, []string{"id", "Post_Post_author_idToUser", "Post_Post_editor_idToUser"}, fieldNames(user))
	assert.Len(t, datamodel.CalculateRelations(dm), 2)
}

func TestIntrospectionIsIdempotent(t *testing.T) {
	first := CalculateDatamodel(compoundSchema(), database.Postgres, nil, Options{})
	second := CalculateDatamodel(compoundSchema(), database.Postgres, first.Datamodel, Options{})

	assert.Equal(t, first.Datamodel, second.Datamodel)
	assert.Equal(t, first.Warnings, second.Warnings)
	assert.Equal(t, first.Version, second.Version)

	first = CalculateDatamodel(prisma1Schema(), database.Postgres, nil, Options{})
	second = CalculateDatamodel(prisma1Schema(), database.Postgres, first.Datamodel, Options{})

	assert.Equal(t, Prisma1, first.Version)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.Datamodel, second.Datamodel)
	assert.Equal(t, first.Warnings, second.Warnings)
}

func TestEnrichmentKeepsMappedNames(t *testing.T) {
	s := &describer.SqlSchema{Tables: []describer.Table{{
		Name: "users",
		Columns: []describer.Column{
			idColumn(),
			column("email", describer.FamilyString, describer.ArityRequired),
		},
		PrimaryKey: pk("id"),
		Indices:    []describer.Index{{Name: "users_email_key", Columns: []string{"email"}, Type: describer.IndexTypeUnique}},
	}}}
	previous := &datamodel.Datamodel{Models: []datamodel.Model{{
		Name:          "Account",
		DatabaseName:  "users",
		Documentation: "Registered accounts.",
		Fields: []datamodel.Field{
			{Name: "id", Arity: datamodel.Required, Type: datamodel.BaseType(datamodel.Int), IsID: true},
			{Name: "emailAddress", DatabaseName: "email", Arity: datamodel.Required, Type: datamodel.BaseType(datamodel.String)},
		},
	}}}

	res := CalculateDatamodel(s, database.Postgres, previous, Options{})
	account := res.Datamodel.FindModel("Account")
	require.NotNil(t, account)
	assert.Equal(t, "users", account.DatabaseName)
	assert.Equal(t, "Registered accounts.", account.Documentation)

	email := account.FindField("emailAddress")
	require.NotNil(t, email)
	assert.Equal(t, "email", email.DatabaseName)
	assert.True(t, email.IsUnique)

	require.Len(t, res.Warnings, 2)
	assert.Equal(t, WarnEnrichedModelMaps, res.Warnings[0].Code)
	assert.Equal(t, []Affected{{Model: "Account"}}, res.Warnings[0].Affected)
	assert.Equal(t, WarnEnrichedFieldMaps, res.Warnings[1].Code)
	assert.Equal(t, []Affected{{Model: "Account", Field: "emailAddress"}}, res.Warnings[1].Affected)

	again := CalculateDatamodel(s, database.Postgres, res.Datamodel, Options{})
	assert.Equal(t, res.Warnings, again.Warnings)
	assert.Equal(t, res.Datamodel, again.Datamodel)
}

func TestEnrichmentKeepsRelationNames(t *testing.T) {
	first := CalculateDatamodel(cityUserSchema(), database.Postgres, nil, Options{}).Datamodel
	city := first.FindModel("City")
	city.FindField("User").Name = "inhabitants"
	city.FindField("inhabitants").Relation.Name = "Residence"
	first.FindModel("User").FindField("City").Relation.Name = "Residence"

	res := CalculateDatamodel(cityUserSchema(), database.Postgres, first, Options{})
	dm := res.Datamodel
	assert.Equal(t, "Residence", dm.FindModel("User").FindField("City").Relation.Name)
	back := dm.FindModel("City").FindField("inhabitants")
	require.NotNil(t, back)
	assert.Equal(t, "Residence", back.Relation.Name)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnEnrichedRelationNames, res.Warnings[0].Code)
}

func TestEnrichmentRestoresGeneratedDefaults(t *testing.T) {
	s := &describer.SqlSchema{Tables: []describer.Table{{
		Name: "Session",
		Columns: []describer.Column{
			column("id", describer.FamilyString, describer.ArityRequired),
			column("touched", describer.FamilyDateTime, describer.ArityRequired),
		},
		PrimaryKey: pk("id"),
	}}}
	previous := &datamodel.Datamodel{Models: []datamodel.Model{{
		Name: "Session",
		Fields: []datamodel.Field{
			{Name: "id", Arity: datamodel.Required, Type: datamodel.BaseType(datamodel.String), IsID: true, Default: datamodel.GeneratedDefault("uuid")},
			{Name: "touched", Arity: datamodel.Required, Type: datamodel.BaseType(datamodel.DateTime), IsUpdatedAt: true},
		},
	}}}

	res := CalculateDatamodel(s, database.SQLite, previous, Options{})
	session := res.Datamodel.FindModel("Session")
	assert.True(t, session.FindField("id").Default.IsGenerator("uuid"))
	assert.True(t, session.FindField("touched").IsUpdatedAt)

	require.Len(t, res.Warnings, 2)
	assert.Equal(t, WarnEnrichedDefaults, res.Warnings[0].Code)
	assert.Equal(t, WarnEnrichedUpdatedAt, res.Warnings[1].Code)
}

func varchar(name string, length int64) describer.Column {
	c := column(name, describer.FamilyString, describer.ArityRequired)
	c.Type.DataType = "varchar"
	c.Type.FullDataType = "varchar"
	c.Type.CharacterMaximumLength = &length
	return c
}

func timestamp(name string) describer.Column {
	c := column(name, describer.FamilyDateTime, describer.ArityRequired)
	c.Type.DataType = "timestamp"
	c.Type.FullDataType = "timestamp"
	return c
}

func prisma1Schema() *describer.SqlSchema {
	return &describer.SqlSchema{Tables: []describer.Table{
		{
			Name:       "_RelayId",
			Columns:    []describer.Column{varchar("id", 36), varchar("stableModelIdentifier", 25)},
			PrimaryKey: pk("id"),
		},
		{
			Name:       "User",
			Columns:    []describer.Column{varchar("id", 25), timestamp("createdAt"), timestamp("updatedAt")},
			PrimaryKey: pk("id"),
		},
		{
			Name:       "Token",
			Columns:    []describer.Column{varchar("id", 36), timestamp("createdAt"), timestamp("updatedAt")},
			PrimaryKey: pk("id"),
		},
	}}
}

func TestPrisma1IDDefaults(t *testing.T) {
	res := CalculateDatamodel(prisma1Schema(), database.Postgres, nil, Options{})
	assert.Equal(t, Prisma1, res.Version)
	assert.True(t, res.Datamodel.FindModel("User").FindField("id").Default.IsGenerator("cuid"))
	assert.True(t, res.Datamodel.FindModel("Token").FindField("id").Default.IsGenerator("uuid"))

	assert.Nil(t, res.Datamodel.FindModel("RelayId"))
	assert.Nil(t, res.Datamodel.FindModel("_RelayId"))
	assert.Len(t, res.Datamodel.Models, 2)

	require.Len(t, res.Warnings, 2)
	assert.Equal(t, WarnPrisma1CuidDefaults, res.Warnings[0].Code)
	assert.Equal(t, []Affected{{Model: "User", Field: "id"}}, res.Warnings[0].Affected)
	assert.Equal(t, WarnPrisma1UUIDDefaults, res.Warnings[1].Code)
	assert.Equal(t, []Affected{{Model: "Token", Field: "id"}}, res.Warnings[1].Affected)
}

func TestVersionDetection(t *testing.T) {
	migrations := describer.Table{
		Name:       "_prisma_migrations",
		Columns:    []describer.Column{varchar("id", 36)},
		PrimaryKey: pk("id"),
	}

	s := cityUserSchema()
	s.Tables = append(s.Tables, migrations)
	res := CalculateDatamodel(s, database.Postgres, nil, Options{})
	assert.Equal(t, Prisma2, res.Version)
	assert.Nil(t, res.Datamodel.FindModel("_prisma_migrations"))

	assert.Equal(t, NonPrisma, CalculateDatamodel(&describer.SqlSchema{}, database.Postgres, nil, Options{}).Version)

	s = &describer.SqlSchema{Tables: []describer.Table{{
		Name:       "Post",
		Columns:    []describer.Column{varchar("id", 30), timestamp("createdAt")},
		PrimaryKey: pk("id"),
	}}}
	assert.Equal(t, Prisma11, CalculateDatamodel(s, database.Postgres, nil, Options{}).Version)
	assert.Equal(t, NonPrisma, CalculateDatamodel(s, database.SQLite, nil, Options{}).Version)
}

func TestNativeTypesOption(t *testing.T) {
	s := cityUserSchema()
	s.Tables[0].Columns[1].Type.NativeType = "VarChar(100)"

	plain := CalculateDatamodel(s, database.Postgres, nil, Options{})
	assert.Empty(t, plain.Datamodel.FindModel("City").FindField("name").Type.NativeType)

	native := CalculateDatamodel(s, database.Postgres, nil, Options{NativeTypes: true})
	assert.Equal(t, "VarChar(100)", native.Datamodel.FindModel("City").FindField("name").Type.NativeType)
}
