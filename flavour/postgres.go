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

type Postgres struct{}

func (*Postgres) Family() database.Family { return database.Postgres }
func (*Postgres) QuoteIdent(name string) string { return quoteWith(name, `"`) }
func (*Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (*Postgres) EncodeTime(t time.Time) any { return t.UTC() }
func (*Postgres) IdentifierLimit() int { return 63 }
func (*Postgres) EnumStrategy() EnumStrategy { return EnumNative }
func (*Postgres) InlinesPrimaryKey() bool { return false }
func (*Postgres) SupportsAlterColumn() bool { return true }
func (*Postgres) AutoIncrementSQL(bool) string { return "" }

func (p *Postgres) ColumnTypeSQL(col describer.Column, enum *describer.Enum) string {
	var base string
	switch {
	case col.AutoIncrement && col.Type.Family.Kind == describer.KindInt:
		base = "SERIAL"
	case col.Type.NativeType != "":
		base = nativeTypeSQL(col.Type.NativeType)
	default:
		switch col.Type.Family.Kind {
		case describer.KindInt:
			base = "INTEGER"
		case describer.KindFloat:
			base = "DOUBLE PRECISION"
		case describer.KindDecimal:
			base = fmt.Sprintf("DECIMAL(%d,%d)", describer.DefaultNumericPrecision, describer.DefaultNumericScale)
		case describer.KindBoolean:
			base = "BOOLEAN"
		case describer.KindString:
			base = "TEXT"
		case describer.KindDateTime:
			base = "TIMESTAMP(3)"
		case describer.KindDuration:
			base = "INTERVAL"
		case describer.KindBinary:
			base = "BYTEA"
		case describer.KindJson:
			base = "JSONB"
		case describer.KindXml:
			base = "XML"
		case describer.KindUuid:
			base = "UUID"
		case describer.KindEnum:
			base = p.QuoteIdent(col.Type.Family.Name)
		default:
			base = col.Type.Family.Name
		}
	}
	if col.Type.Arity == describer.ArityList {
		base += "[]"
	}
	return base
}

func (p *Postgres) DefaultSQL(col describer.Column) string {
	if col.Default == nil || col.AutoIncrement {
		return ""
	}
	switch col.Default.Kind {
	case describer.DefaultKindNow:
		return "CURRENT_TIMESTAMP"
	case describer.DefaultKindSequence:
		return fmt.Sprintf("nextval(%s::regclass)", quoteLiteral(col.Default.Value))
	case describer.DefaultKindDbGenerated:
		return col.Default.Value
	}
	if col.Type.Family.IsEnum() {
		return quoteLiteral(col.Default.Value) + "::" + p.QuoteIdent(col.Type.Family.Name)
	}
	return literalDefault(col, [2]string{"false", "true"})
}

func (p *Postgres) AlterColumnSQL(table string, col describer.Column, enum *describer.Enum, typeChanged, arityChanged, defaultChanged bool) []string {
	prefix := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s", p.QuoteIdent(table), p.QuoteIdent(col.Name))
	var stmts []string
	if typeChanged {
		typ := p.ColumnTypeSQL(col, enum)
		if col.AutoIncrement {
			typ = "INTEGER"
		}
		stmts = append(stmts, fmt.Sprintf("%s TYPE %s USING %s::%s", prefix, typ, p.QuoteIdent(col.Name), typ))
	}
	if arityChanged {
		if col.Type.Arity == describer.ArityRequired {
			stmts = append(stmts, prefix+" SET NOT NULL")
		} else {
			stmts = append(stmts, prefix+" DROP NOT NULL")
		}
	}
	if defaultChanged {
		if d := p.DefaultSQL(col); d != "" {
			stmts = append(stmts, prefix+" SET DEFAULT "+d)
		} else {
			stmts = append(stmts, prefix+" DROP DEFAULT")
		}
	}
	return stmts
}

func (p *Postgres) DropIndexSQL(_, index string) string {
	return "DROP INDEX " + p.QuoteIdent(index)
}

func (p *Postgres) RenameIndexSQL(_, from, to string) string {
	return fmt.Sprintf("ALTER INDEX %s RENAME TO %s", p.QuoteIdent(from), p.QuoteIdent(to))
}

func (p *Postgres) DropForeignKeySQL(table, constraint string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", p.QuoteIdent(table), p.QuoteIdent(constraint))
}

func (*Postgres) ColumnTypeChange(previous, next describer.ColumnWalker) (ColumnTypeChange, bool) {
	return genericColumnTypeChange(previous, next)
}

func (*Postgres) IndexShouldBeRenamed(previous, next *describer.Index) bool {
	return previous.Name != next.Name
}

func (*Postgres) Describer(conn *database.Connection) describer.Describer {
	return describer.NewPostgresDescriber(conn.Pool)
}

func (*Postgres) TableExists(ctx context.Context, db *sql.DB, schema, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		schema, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return exists, nil
}

func (p *Postgres) CreateShadowDatabase(ctx context.Context, main *database.Connection, shadowURL string) (*database.Connection, func(), error) {
	if shadowURL != "" {
		conn, err := database.Open(ctx, shadowURL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening shadow database: %w", err)
		}
		return conn, conn.Close, nil
	}

	name := "prisma_migrations_shadow_database_" + strings.ReplaceAll(uuid.NewString(), "-", "_")
	if _, err := main.DB.ExecContext(ctx, "CREATE DATABASE "+p.QuoteIdent(name)); err != nil {
		return nil, nil, fmt.Errorf("creating shadow database: %w", err)
	}
	drop := func() {
		_, _ = main.DB.ExecContext(context.Background(), "DROP DATABASE IF EXISTS "+p.QuoteIdent(name))
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
