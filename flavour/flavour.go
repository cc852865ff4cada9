package flavour

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/describer"
)

// EnumStrategy tells how a dialect stores enums.
type EnumStrategy int

const (
	// EnumNative enums are standalone types (CREATE TYPE ... AS ENUM).
	EnumNative EnumStrategy = iota
	// EnumInline enums are declared on each column (ENUM('a', 'b')).
	EnumInline
	// EnumAsText enums are stored as plain text columns.
	EnumAsText
)

// ColumnTypeChange classifies a change of column type by how safely existing
// values can be converted.
type ColumnTypeChange int

const (
	SafeCast ColumnTypeChange = iota
	RiskyCast
	NotCastable
)

func (c ColumnTypeChange) String() string {
	switch c {
	case SafeCast:
		return "safe cast"
	case RiskyCast:
		return "risky cast"
	default:
		return "not castable"
	}
}

// Flavour holds everything that differs between SQL dialects. Core algorithms
// only call it at the leaves: type names, quoting, defaults and heuristics.
type Flavour interface {
	Family() database.Family
	QuoteIdent(name string) string
	// Placeholder returns the bind parameter for the n-th (1-based) argument.
	Placeholder(n int) string
	// EncodeTime converts a timestamp to the value stored in timestamp columns
	// of the migration tables.
	EncodeTime(t time.Time) any
	// IdentifierLimit is the maximum identifier length, 0 for no limit.
	IdentifierLimit() int
	EnumStrategy() EnumStrategy

	// ColumnTypeSQL renders the type of a column. enum is the resolved enum
	// for enum columns and nil otherwise.
	ColumnTypeSQL(col describer.Column, enum *describer.Enum) string
	// DefaultSQL renders a column default, or "" when the column gets none.
	DefaultSQL(col describer.Column) string
	// AutoIncrementSQL returns the clause appended to an auto-increment column.
	AutoIncrementSQL(singlePrimaryKey bool) string
	// InlinesPrimaryKey reports whether an auto-increment column carries the
	// primary key in its own definition.
	InlinesPrimaryKey() bool
	// SupportsAlterColumn is false when column changes need the table to be
	// redefined.
	SupportsAlterColumn() bool
	AlterColumnSQL(table string, col describer.Column, enum *describer.Enum, typeChanged, arityChanged, defaultChanged bool) []string
	DropIndexSQL(table, index string) string
	RenameIndexSQL(table, from, to string) string
	DropForeignKeySQL(table, constraint string) string

	ColumnTypeChange(previous, next describer.ColumnWalker) (ColumnTypeChange, bool)
	IndexShouldBeRenamed(previous, next *describer.Index) bool

	Describer(conn *database.Connection) describer.Describer
	TableExists(ctx context.Context, db *sql.DB, schema, table string) (bool, error)
	// CreateShadowDatabase returns a fresh empty database of the same family.
	// cleanup closes it and drops it when it was created here.
	CreateShadowDatabase(ctx context.Context, main *database.Connection, shadowURL string) (shadow *database.Connection, cleanup func(), err error)
}

// New returns the flavour of a family. MySQL flavours created here assume a
// MySQL server; use ForConnection to detect MariaDB.
func New(family database.Family) (Flavour, error) {
	switch family {
	case database.Postgres:
		return &Postgres{}, nil
	case database.MySQL:
		return &MySQL{}, nil
	case database.SQLite:
		return &SQLite{}, nil
	}
	return nil, fmt.Errorf("no flavour for database family %q", family)
}

// ForConnection returns the flavour for an open connection.
func ForConnection(ctx context.Context, conn *database.Connection) (Flavour, error) {
	f, err := New(conn.Family)
	if err != nil {
		return nil, err
	}
	if m, ok := f.(*MySQL); ok {
		version, err := f.Describer(conn).Version(ctx, conn.Schema)
		if err != nil {
			return nil, err
		}
		m.MariaDB = describer.IsMariaDB(version)
	}
	return f, nil
}

func quoteWith(name string, q string) string {
	return q + strings.ReplaceAll(name, q, q+q) + q
}

func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// nativeTypeSQL turns a native type annotation such as VarChar(255) into SQL.
func nativeTypeSQL(native string) string {
	name, args, found := strings.Cut(native, "(")
	out := strings.ToUpper(name)
	if found {
		out += "(" + strings.ReplaceAll(args, " ", "")
	}
	return out
}

// literalDefault renders a VALUE default for the column family. booleans
// maps true and false to the dialect spelling.
func literalDefault(col describer.Column, booleans [2]string) string {
	d := col.Default
	switch col.Type.Family.Kind {
	case describer.KindInt, describer.KindFloat, describer.KindDecimal:
		return d.Value
	case describer.KindBoolean:
		if d.Value == "true" {
			return booleans[1]
		}
		return booleans[0]
	default:
		return quoteLiteral(d.Value)
	}
}

// genericColumnTypeChange is shared by the dialects without special cases.
func genericColumnTypeChange(previous, next describer.ColumnWalker) (ColumnTypeChange, bool) {
	prevFamily, nextFamily := previous.ColumnTypeFamily(), next.ColumnTypeFamily()
	if prevFamily != nextFamily {
		switch {
		case nextFamily.Kind == describer.KindString:
			return SafeCast, true
		case prevFamily.Kind == describer.KindInt && (nextFamily.Kind == describer.KindFloat || nextFamily.Kind == describer.KindDecimal):
			return SafeCast, true
		case prevFamily.Kind == describer.KindBinary || nextFamily.Kind == describer.KindBinary:
			return NotCastable, true
		case prevFamily.IsUnsupported() || nextFamily.IsUnsupported():
			return NotCastable, true
		}
		return RiskyCast, true
	}
	return enumValuesChange(previous, next)
}

func enumValuesChange(previous, next describer.ColumnWalker) (ColumnTypeChange, bool) {
	prevEnum, nextEnum := previous.ColumnTypeFamilyAsEnum(), next.ColumnTypeFamilyAsEnum()
	if prevEnum == nil || nextEnum == nil {
		return SafeCast, false
	}
	if slices.Equal(prevEnum.Values, nextEnum.Values) {
		return SafeCast, false
	}
	for _, v := range prevEnum.Values {
		if !slices.Contains(nextEnum.Values, v) {
			return RiskyCast, true
		}
	}
	return SafeCast, true
}
