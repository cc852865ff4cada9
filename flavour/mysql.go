package flavour

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/describer"
)

// MySQLIdentifierLimit is the maximum length of MySQL identifiers. Longer
// generated names are truncated by the server.
const MySQLIdentifierLimit = 64

type MySQL struct {
	MariaDB bool
}

func (*MySQL) Family() database.Family { return database.MySQL }
func (*MySQL) QuoteIdent(name string) string { return quoteWith(name, "`") }
func (*MySQL) Placeholder(int) string { return "?" }
func (*MySQL) EncodeTime(t time.Time) any { return t.UTC() }
func (*MySQL) IdentifierLimit() int { return MySQLIdentifierLimit }
func (*MySQL) EnumStrategy() EnumStrategy { return EnumInline }
func (*MySQL) InlinesPrimaryKey() bool { return false }
func (*MySQL) SupportsAlterColumn() bool { return true }
func (*MySQL) AutoIncrementSQL(bool) string { return " AUTO_INCREMENT" }

func (m *MySQL) ColumnTypeSQL(col describer.Column, enum *describer.Enum) string {
	if col.Type.NativeType != "" {
		return nativeTypeSQL(col.Type.NativeType)
	}
	switch col.Type.Family.Kind {
	case describer.KindInt:
		return "INT"
	case describer.KindFloat:
		return "DOUBLE"
	case describer.KindDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", describer.DefaultNumericPrecision, describer.DefaultNumericScale)
	case describer.KindBoolean:
		return "BOOLEAN"
	case describer.KindString:
		// 191 characters fit an index key with utf8mb4.
		return "VARCHAR(191)"
	case describer.KindDateTime:
		return "DATETIME(3)"
	case describer.KindDuration:
		return "TIME"
	case describer.KindBinary:
		return "LONGBLOB"
	case describer.KindJson:
		return "JSON"
	case describer.KindXml:
		return "LONGTEXT"
	case describer.KindUuid:
		return "CHAR(36)"
	case describer.KindEnum:
		if enum == nil {
			return "VARCHAR(191)"
		}
		values := make([]string, len(enum.Values))
		for i, v := range enum.Values {
			values[i] = quoteLiteral(v)
		}
		return "ENUM(" + strings.Join(values, ", ") + ")"
	}
	return col.Type.Family.Name
}

func (m *MySQL) DefaultSQL(col describer.Column) string {
	if col.Default == nil || col.AutoIncrement {
		return ""
	}
	switch col.Default.Kind {
	case describer.DefaultKindNow:
		return "CURRENT_TIMESTAMP(3)"
	case describer.DefaultKindSequence:
		return ""
	case describer.DefaultKindDbGenerated:
		return col.Default.Value
	}
	return literalDefault(col, [2]string{"0", "1"})
}

func (m *MySQL) AlterColumnSQL(table string, col describer.Column, enum *describer.Enum, _, _, _ bool) []string {
	def := m.QuoteIdent(col.Name) + " " + m.ColumnTypeSQL(col, enum)
	if col.Type.Arity == describer.ArityRequired {
		def += " NOT NULL"
	} else {
		def += " NULL"
	}
	if d := m.DefaultSQL(col); d != "" {
		def += " DEFAULT " + d
	}
	if col.AutoIncrement {
		def += m.AutoIncrementSQL(true)
	}
	return []string{fmt.Sprintf("ALTER TABLE %s MODIFY %s", m.QuoteIdent(table), def)}
}

func (m *MySQL) DropIndexSQL(table, index string) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", m.QuoteIdent(index), m.QuoteIdent(table))
}

func (m *MySQL) RenameIndexSQL(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME INDEX %s TO %s", m.QuoteIdent(table), m.QuoteIdent(from), m.QuoteIdent(to))
}

func (m *MySQL) DropForeignKeySQL(table, constraint string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", m.QuoteIdent(table), m.QuoteIdent(constraint))
}

// ColumnTypeChange treats String and Json as the same type on MariaDB, where
// JSON is an alias for LONGTEXT.
func (m *MySQL) ColumnTypeChange(previous, next describer.ColumnWalker) (ColumnTypeChange, bool) {
	prevFamily, nextFamily := previous.ColumnTypeFamily(), next.ColumnTypeFamily()
	if m.MariaDB && isMariaDBAlias(prevFamily) && isMariaDBAlias(nextFamily) {
		return SafeCast, false
	}
	if prevFamily != nextFamily {
		if nextFamily.Kind == describer.KindString {
			return SafeCast, true
		}
		return RiskyCast, true
	}
	return enumValuesChange(previous, next)
}

func isMariaDBAlias(f describer.ColumnTypeFamily) bool {
	return f.Kind == describer.KindString || f.Kind == describer.KindJson
}

// IndexShouldBeRenamed compares names the way the server stores them:
// generated names longer than the limit were truncated on creation.
func (*MySQL) IndexShouldBeRenamed(previous, next *describer.Index) bool {
	if len(previous.Name) == MySQLIdentifierLimit && len(next.Name) > MySQLIdentifierLimit {
		return previous.Name[:MySQLIdentifierLimit] != next.Name[:MySQLIdentifierLimit]
	}
	return previous.Name != next.Name
}

func (*MySQL) Describer(conn *database.Connection) describer.Describer {
	return describer.NewMySQLDescriber(conn.DB)
}

func (*MySQL) TableExists(ctx context.Context, db *sql.DB, schema, table string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`,
		schema, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return n > 0, nil
}

func (m *MySQL) CreateShadowDatabase(ctx context.Context, main *database.Connection, shadowURL string) (*database.Connection, func(), error) {
	if shadowURL != "" {
		conn, err := database.Open(ctx, shadowURL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening shadow database: %w", err)
		}
		return conn, conn.Close, nil
	}

	name := "prisma_migrations_shadow_database_" + strings.ReplaceAll(uuid.NewString(), "-", "_")
	if _, err := main.DB.ExecContext(ctx, "CREATE DATABASE "+m.QuoteIdent(name)); err != nil {
		return nil, nil, fmt.Errorf("creating shadow database: %w", err)
	}
	drop := func() {
		_, _ = main.DB.ExecContext(context.Background(), "DROP DATABASE IF EXISTS "+m.QuoteIdent(name))
	}

	u, err := url.Parse(main.URL)
	if err != nil {
		drop()
		return nil, nil, fmt.Errorf("parsing database url: %w", err)
	}
	u.Path = "/" + name
	conn, err := database.Open(ctx, u.String())
	if err != nil {
		drop()
		return nil, nil, fmt.Errorf("opening shadow database: %w", err)
	}
	return conn, func() {
		conn.Close()
		drop()
	}, nil
}
