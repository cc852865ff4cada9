package introspect

import (
	"slices"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/datamodel"
	"github.com/ridoystarlord/schemaengine/describer"
)

const relayTable = "_RelayId"

var (
	postgresPrismaTypes = []string{"int4", "text", "bool", "float8", "timestamp", "varchar", "numeric"}
	mysqlPrismaTypes    = []string{"int", "varchar", "char", "tinyint", "decimal", "datetime", "mediumtext", "text", "json"}
)

// versionChecker collects the traits that tell the tool generations apart
// while the schema is being translated.
type versionChecker struct {
	family               database.Family
	hasMigrationTable    bool
	hasRelayTable        bool
	usesOnDelete         bool
	usesDefaultValues    bool
	usesNonPrismaTypes   bool
	alwaysHasTimestamps  bool
	hasInlineRelations   bool
	hasPrisma1JoinTable  bool
	hasPrisma11JoinTable bool
}

func newVersionChecker(family database.Family) *versionChecker {
	return &versionChecker{family: family, alwaysHasTimestamps: true}
}

func (c *versionChecker) checkTable(t *describer.Table) {
	switch {
	case isMigrationTable(t):
		c.hasMigrationTable = true
	case t.Name == relayTable:
		c.hasRelayTable = true
	case isLegacyJoinTable(t):
		c.hasPrisma1JoinTable = true
	case isJoinTable(t):
		c.hasPrisma11JoinTable = true
	}
}

func (c *versionChecker) checkColumn(_ *describer.Table, col *describer.Column) {
	if col.Default != nil && col.Default.Kind != describer.DefaultKindSequence && !col.AutoIncrement {
		c.usesDefaultValues = true
	}
	switch c.family {
	case database.Postgres:
		if !slices.Contains(postgresPrismaTypes, col.Type.FullDataType) {
			c.usesNonPrismaTypes = true
		}
	case database.MySQL:
		if !slices.Contains(mysqlPrismaTypes, col.Type.DataType) {
			c.usesNonPrismaTypes = true
		}
	}
}

func (c *versionChecker) checkForeignKey(_ *describer.Table, fk *describer.ForeignKey) {
	c.hasInlineRelations = true
	switch fk.OnDeleteAction {
	case describer.NoAction, describer.Restrict, describer.SetNull:
	default:
		c.usesOnDelete = true
	}
}

func (c *versionChecker) checkTimestamps(t *describer.Table) {
	if !t.HasColumn("createdAt") || !t.HasColumn("updatedAt") {
		c.alwaysHasTimestamps = false
	}
}

// version decides on the generation once the pipeline has produced its
// guardrail warnings. Any of them rules out the older generations.
func (c *versionChecker) version(warnings []Warning, dm *datamodel.Datamodel) Version {
	if len(dm.Models) == 0 && len(dm.Enums) == 0 {
		return NonPrisma
	}
	clean := len(warnings) == 0

	switch {
	case c.hasMigrationTable && !c.hasRelayTable && clean:
		return Prisma2
	case c.family == database.SQLite:
		return NonPrisma
	case !c.hasMigrationTable && c.hasRelayTable && !c.usesOnDelete && !c.usesDefaultValues &&
		!c.usesNonPrismaTypes && c.alwaysHasTimestamps && !c.hasPrisma11JoinTable &&
		!c.hasInlineRelations && clean:
		return Prisma1
	case !c.hasMigrationTable && !c.hasRelayTable && !c.usesOnDelete && !c.usesDefaultValues &&
		!c.usesNonPrismaTypes && !c.hasPrisma1JoinTable && clean:
		return Prisma11
	}
	return NonPrisma
}

// addPrisma1IDDefaults restores the cuid() and uuid() defaults the older
// generations kept outside the database. They are recognised by the length
// of the id column.
func addPrisma1IDDefaults(family database.Family, version Version, dm *datamodel.Datamodel, schema *describer.SqlSchema) []Warning {
	if version != Prisma1 && version != Prisma11 {
		return nil
	}
	if family != database.Postgres && family != database.MySQL {
		return nil
	}

	var cuid, uuid []Affected
	for mi := range dm.Models {
		model := &dm.Models[mi]
		table := schema.Table(model.FinalDatabaseName())
		if table == nil {
			continue
		}
		for fi := range model.Fields {
			field := &model.Fields[fi]
			if !field.IsID || !isScalar(field, datamodel.String) {
				continue
			}
			col := table.Column(field.FinalDatabaseName())
			if col == nil || col.Type.CharacterMaximumLength == nil {
				continue
			}
			// A default restored from the previous data model counts as
			// derived here when it is the one the column length implies.
			switch *col.Type.CharacterMaximumLength {
			case 25:
				if field.Default == nil || field.Default.IsGenerator("cuid") {
					field.Default = datamodel.GeneratedDefault("cuid")
					cuid = append(cuid, Affected{Model: model.Name, Field: field.Name})
				}
			case 36:
				if field.Default == nil || field.Default.IsGenerator("uuid") {
					field.Default = datamodel.GeneratedDefault("uuid")
					uuid = append(uuid, Affected{Model: model.Name, Field: field.Name})
				}
			}
		}
	}
	out := warning(WarnPrisma1CuidDefaults,
		"These id fields had a `@default(cuid())` added because we believe the schema was created by Prisma 1.", cuid)
	return append(out, warning(WarnPrisma1UUIDDefaults,
		"These id fields had a `@default(uuid())` added because we believe the schema was created by Prisma 1.", uuid)...)
}

func isScalar(f *datamodel.Field, t datamodel.ScalarType) bool {
	return f.Type.Kind == datamodel.TypeBase && f.Type.Scalar == t
}
