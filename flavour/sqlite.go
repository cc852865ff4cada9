package flavour

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/describer"
)

type SQLite struct{}

func (*SQLite) Family() database.Family { return database.SQLite }
func (*SQLite) QuoteIdent(name string) string { return quoteWith(name, `"`) }
func (*SQLite) Placeholder(int) string { return "?" }
func (*SQLite) IdentifierLimit() int { return 0 }
func (*SQLite) EnumStrategy() EnumStrategy { return EnumAsText }
func (*SQLite) InlinesPrimaryKey() bool { return true }
func (*SQLite) SupportsAlterColumn() bool { return false }

// EncodeTime stores timestamps as unix milliseconds.
func (*SQLite) EncodeTime(t time.Time) any { return t.UnixMilli() }

func (*SQLite) AutoIncrementSQL(singlePrimaryKey bool) string {
	if singlePrimaryKey {
		return " PRIMARY KEY AUTOINCREMENT"
	}
	return ""
}

func (*SQLite) ColumnTypeSQL(col describer.Column, _ *describer.Enum) string {
	if col.Type.NativeType != "" {
		return nativeTypeSQL(col.Type.NativeType)
	}
	switch col.Type.Family.Kind {
	case describer.KindInt:
		return "INTEGER"
	case describer.KindFloat:
		return "REAL"
	case describer.KindDecimal:
		return "DECIMAL"
	case describer.KindBoolean:
		return "BOOLEAN"
	case describer.KindDateTime:
		return "DATETIME"
	case describer.KindBinary:
		return "BLOB"
	case describer.KindJson:
		return "JSON"
	case describer.KindString, describer.KindEnum, describer.KindUuid, describer.KindXml, describer.KindDuration:
		return "TEXT"
	}
	return col.Type.Family.Name
}

func (*SQLite) DefaultSQL(col describer.Column) string {
	if col.Default == nil || col.AutoIncrement {
		return ""
	}
	switch col.Default.Kind {
	case describer.DefaultKindNow:
		return "CURRENT_TIMESTAMP"
	case describer.DefaultKindSequence:
		return ""
	case describer.DefaultKindDbGenerated:
		return "(" + col.Default.Value + ")"
	}
	return literalDefault(col, [2]string{"false", "true"})
}

// AlterColumnSQL is never called: SQLite changes columns by redefining the table.
func (*SQLite) AlterColumnSQL(string, describer.Column, *describer.Enum, bool, bool, bool) []string {
	return nil
}

func (s *SQLite) DropIndexSQL(_, index string) string {
	return "DROP INDEX " + s.QuoteIdent(index)
}

// RenameIndexSQL is unused: SQLite indexes are renamed by dropping and
// recreating them.
func (s *SQLite) RenameIndexSQL(_, _, _ string) string {
	return ""
}

func (*SQLite) DropForeignKeySQL(_, _ string) string {
	return ""
}

func (*SQLite) ColumnTypeChange(previous, next describer.ColumnWalker) (ColumnTypeChange, bool) {
	return genericColumnTypeChange(previous, next)
}

func (*SQLite) IndexShouldBeRenamed(previous, next *describer.Index) bool {
	return previous.Name != next.Name
}

func (*SQLite) Describer(conn *database.Connection) describer.Describer {
	return describer.NewSQLiteDescriber(conn.DB)
}

func (*SQLite) TableExists(ctx context.Context, db *sql.DB, schema, table string) (bool, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s.sqlite_master WHERE type = 'table' AND name = ?`, quoteWith(schema, `"`))
	if err := db.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return n > 0, nil
}

// CreateShadowDatabase always uses a private in-memory database.
func (*SQLite) CreateShadowDatabase(ctx context.Context, _ *database.Connection, _ string) (*database.Connection, func(), error) {
	conn, err := database.Open(ctx, "sqlite::memory:")
	if err != nil {
		return nil, nil, fmt.Errorf("opening shadow database: %w", err)
	}
	return conn, conn.Close, nil
}
