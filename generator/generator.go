package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/describer"
	"github.com/ridoystarlord/schemaengine/diff"
	"github.com/ridoystarlord/schemaengine/flavour"
)

const (
	UpMarker   = "-- Up Migration"
	DownMarker = "-- Down Migration (Rollback)"
)

// Render converts a list of operations into DDL statements for the flavour.
func Render(ops []diff.Operation, f flavour.Flavour) ([]string, error) {
	r := renderer{f: f}
	var stmts []string

	for _, op := range ops {
		out, err := r.operation(op)
		if err != nil {
			return nil, fmt.Errorf("render %s %s: %w", op.Type, op.TableName, err)
		}
		stmts = append(stmts, out...)
	}
	return stmts, nil
}

// RenderRollback renders the statements undoing ops.
func RenderRollback(ops []diff.Operation, f flavour.Flavour) ([]string, error) {
	return Render(diff.Invert(ops), f)
}

type renderer struct {
	f flavour.Flavour
}

func (r renderer) q(name string) string { return r.f.QuoteIdent(name) }

func (r renderer) operation(op diff.Operation) ([]string, error) {
	switch op.Type {
	case diff.CreateEnum:
		return []string{r.createEnum(op.Enum)}, nil

	case diff.DropEnum:
		return []string{fmt.Sprintf("DROP TYPE %s;", r.q(op.Enum.Name))}, nil

	case diff.AlterEnum:
		return r.alterEnum(op), nil

	case diff.CreateTable:
		if op.Table == nil {
			return nil, fmt.Errorf("table is nil")
		}
		return append([]string{r.createTable(op.Table.Name, op.Table, op.FindEnum)}, r.createInlineIndexes(op)...), nil

	case diff.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s;", r.q(op.TableName))}, nil

	case diff.RedefineTable:
		return r.redefineTable(op)

	case diff.AddColumn:
		if op.Column == nil {
			return nil, fmt.Errorf("column is nil")
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", r.q(op.TableName), r.columnDefinition(*op.Column, op.FindEnum, false))}, nil

	case diff.DropColumn:
		if op.PreviousColumn == nil {
			return nil, fmt.Errorf("column is nil")
		}
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", r.q(op.TableName), r.q(op.PreviousColumn.Name))}, nil

	case diff.AlterColumn:
		if op.Column == nil {
			return nil, fmt.Errorf("column is nil")
		}
		if !r.f.SupportsAlterColumn() {
			return nil, fmt.Errorf("%s cannot alter columns in place", r.f.Family())
		}
		var enum *describer.Enum
		if op.Column.Type.Family.IsEnum() {
			enum = op.FindEnum(op.Column.Type.Family.Name)
		}
		return terminate(r.f.AlterColumnSQL(op.TableName, *op.Column, enum, op.Changes.Type, op.Changes.Arity, op.Changes.Default)), nil

	case diff.AlterPrimaryKey:
		return r.alterPrimaryKey(op), nil

	case diff.AddForeignKey:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD %s;", r.q(op.TableName), r.foreignKey(op.ForeignKey))}, nil

	case diff.DropForeignKey:
		stmt := r.f.DropForeignKeySQL(op.TableName, op.ForeignKey.ConstraintName)
		if stmt == "" {
			return nil, fmt.Errorf("%s cannot drop foreign keys in place", r.f.Family())
		}
		return []string{stmt + ";"}, nil

	case diff.CreateIndex:
		return []string{r.createIndex(op.TableName, op.Index)}, nil

	case diff.DropIndex:
		return []string{r.f.DropIndexSQL(op.TableName, op.PreviousIndex.Name) + ";"}, nil

	case diff.RenameIndex:
		stmt := r.f.RenameIndexSQL(op.TableName, op.PreviousIndex.Name, op.Index.Name)
		if stmt == "" {
			return []string{r.f.DropIndexSQL(op.TableName, op.PreviousIndex.Name) + ";", r.createIndex(op.TableName, op.Index)}, nil
		}
		return []string{stmt + ";"}, nil
	}
	return nil, fmt.Errorf("unsupported operation: %s", op.Type)
}

func (r renderer) createEnum(e *describer.Enum) string {
	return fmt.Sprintf("CREATE TYPE %s AS ENUM (%s);", r.q(e.Name), literals(e.Values))
}

// alterEnum adds new values in place. Removing values needs the type to be
// recreated and every column using it to be cast to the new type.
func (r renderer) alterEnum(op diff.Operation) []string {
	var removed bool
	for _, v := range op.PreviousEnum.Values {
		if !slices.Contains(op.Enum.Values, v) {
			removed = true
			break
		}
	}
	name := r.q(op.Enum.Name)
	if !removed {
		var stmts []string
		for _, v := range op.Enum.Values {
			if !slices.Contains(op.PreviousEnum.Values, v) {
				stmts = append(stmts, fmt.Sprintf("ALTER TYPE %s ADD VALUE %s;", name, literal(v)))
			}
		}
		return stmts
	}

	old := r.q(op.Enum.Name + "_old")
	stmts := []string{
		fmt.Sprintf("ALTER TYPE %s RENAME TO %s;", name, old),
		r.createEnum(op.Enum),
	}
	for _, u := range op.EnumUsages {
		col := r.q(u.Column)
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING (%s::text::%s);", r.q(u.Table), col, name, col, name))
	}
	return append(stmts, fmt.Sprintf("DROP TYPE %s;", old))
}

func (r renderer) createTable(name string, t *describer.Table, enumOf func(string) *describer.Enum) string {
	var lines []string
	pkInline := false
	for _, col := range t.Columns {
		inline := r.f.InlinesPrimaryKey() && col.AutoIncrement && t.PrimaryKey != nil && len(t.PrimaryKey.Columns) == 1 && t.PrimaryKey.Columns[0] == col.Name
		pkInline = pkInline || inline
		lines = append(lines, r.columnDefinition(col, enumOf, inline))
	}
	if t.PrimaryKey != nil && len(t.PrimaryKey.Columns) > 0 && !pkInline {
		lines = append(lines, r.primaryKey(t.PrimaryKey))
	}
	if !r.f.SupportsAlterColumn() {
		for i := range t.ForeignKeys {
			lines = append(lines, r.foreignKey(&t.ForeignKeys[i]))
		}
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (\n    %s\n)", r.q(name), strings.Join(lines, ",\n    "))
	if r.f.Family() == database.MySQL {
		stmt += " DEFAULT CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci"
	}
	return stmt + ";"
}

func (r renderer) createInlineIndexes(op diff.Operation) []string {
	if !op.IncludeConstraints {
		return nil
	}
	var stmts []string
	for i := range op.Table.Indices {
		stmts = append(stmts, r.createIndex(op.Table.Name, &op.Table.Indices[i]))
	}
	if r.f.SupportsAlterColumn() {
		for i := range op.Table.ForeignKeys {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s;", r.q(op.Table.Name), r.foreignKey(&op.Table.ForeignKeys[i])))
		}
	}
	return stmts
}

// redefineTable copies a table into a new definition and swaps it in. Only
// the columns present in both definitions are carried over.
func (r renderer) redefineTable(op diff.Operation) ([]string, error) {
	if op.Table == nil || op.PreviousTable == nil {
		return nil, fmt.Errorf("table is nil")
	}
	tmp := "new_" + op.Table.Name

	var shared []string
	for _, col := range op.Table.Columns {
		if op.PreviousTable.HasColumn(col.Name) {
			shared = append(shared, r.q(col.Name))
		}
	}

	stmts := []string{
		"PRAGMA foreign_keys=OFF;",
		r.createTable(tmp, op.Table, op.FindEnum),
	}
	if len(shared) > 0 {
		cols := strings.Join(shared, ", ")
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s;", r.q(tmp), cols, cols, r.q(op.PreviousTable.Name)))
	}
	stmts = append(stmts,
		fmt.Sprintf("DROP TABLE %s;", r.q(op.PreviousTable.Name)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s;", r.q(tmp), r.q(op.Table.Name)),
	)
	for i := range op.Table.Indices {
		stmts = append(stmts, r.createIndex(op.Table.Name, &op.Table.Indices[i]))
	}
	return append(stmts, "PRAGMA foreign_key_check;", "PRAGMA foreign_keys=ON;"), nil
}

func (r renderer) columnDefinition(col describer.Column, enumOf func(string) *describer.Enum, inlinePrimaryKey bool) string {
	var enum *describer.Enum
	if col.Type.Family.IsEnum() && enumOf != nil {
		enum = enumOf(col.Type.Family.Name)
	}
	def := r.q(col.Name) + " " + r.f.ColumnTypeSQL(col, enum)
	if col.Type.Arity == describer.ArityRequired {
		def += " NOT NULL"
	}
	if d := r.f.DefaultSQL(col); d != "" {
		def += " DEFAULT " + d
	}
	if col.AutoIncrement {
		def += r.f.AutoIncrementSQL(inlinePrimaryKey)
	}
	return def
}

func (r renderer) primaryKey(pk *describer.PrimaryKey) string {
	out := "PRIMARY KEY (" + r.columns(pk.Columns) + ")"
	if pk.ConstraintName != "" && r.f.Family() != database.MySQL {
		out = "CONSTRAINT " + r.q(pk.ConstraintName) + " " + out
	}
	return out
}

func (r renderer) alterPrimaryKey(op diff.Operation) []string {
	table := r.q(op.TableName)
	var stmts []string
	prev := op.PreviousTable.PrimaryKey
	if prev != nil && len(prev.Columns) > 0 {
		if r.f.Family() == database.MySQL {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY;", table))
		} else {
			name := prev.ConstraintName
			if name == "" {
				name = op.TableName + "_pkey"
			}
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", table, r.q(name)))
		}
	}
	if next := op.Table.PrimaryKey; next != nil && len(next.Columns) > 0 {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s;", table, r.primaryKey(next)))
	}
	return stmts
}

func (r renderer) foreignKey(fk *describer.ForeignKey) string {
	out := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)", r.columns(fk.Columns), r.q(fk.ReferencedTable), r.columns(fk.ReferencedColumns))
	if fk.ConstraintName != "" {
		out = "CONSTRAINT " + r.q(fk.ConstraintName) + " " + out
	}
	if a := actionSQL(fk.OnDeleteAction); a != "" {
		out += " ON DELETE " + a
	}
	if a := actionSQL(fk.OnUpdateAction); a != "" {
		out += " ON UPDATE " + a
	}
	return out
}

func (r renderer) createIndex(table string, idx *describer.Index) string {
	stmt := "CREATE"
	if idx.IsUnique() {
		stmt += " UNIQUE"
	}
	return fmt.Sprintf("%s INDEX %s ON %s(%s);", stmt, r.q(idx.Name), r.q(table), r.columns(idx.Columns))
}

func (r renderer) columns(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = r.q(n)
	}
	return strings.Join(quoted, ", ")
}

func actionSQL(a describer.ForeignKeyAction) string {
	switch a {
	case describer.NoAction:
		return "NO ACTION"
	case describer.Restrict:
		return "RESTRICT"
	case describer.Cascade:
		return "CASCADE"
	case describer.SetNull:
		return "SET NULL"
	case describer.SetDefault:
		return "SET DEFAULT"
	}
	return ""
}

func literal(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func literals(values []string) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = literal(v)
	}
	return strings.Join(out, ", ")
}

func terminate(stmts []string) []string {
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s + ";"
	}
	return out
}

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9_]+`)

// MigrationName builds the name of a new migration from a timestamp and a
// free-form description.
func MigrationName(now time.Time, description string) string {
	name := strings.Trim(unsafeNameChars.ReplaceAllString(strings.ToLower(description), "_"), "_")
	if name == "" {
		name = "migration"
	}
	return now.UTC().Format("20060102150405") + "_" + name
}

// WriteMigrationFile saves the statements into {dir}/{name}.sql with up and
// down sections, creating dir when needed.
func WriteMigrationFile(dir, name string, up, down []string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating migrations folder: %w", err)
	}
	filename := filepath.Join(dir, name+".sql")
	if err := os.WriteFile(filename, []byte(MigrationFile(name, up, down)), 0o644); err != nil {
		return "", fmt.Errorf("writing migration file: %w", err)
	}
	return filename, nil
}

// MigrationFile renders the content of a migration file.
func MigrationFile(name string, up, down []string) string {
	var b strings.Builder
	b.WriteString("-- Migration: " + name + "\n")
	b.WriteString("-- Description: Auto-generated migration\n\n")

	b.WriteString(UpMarker + "\n")
	b.WriteString("-- ============\n")
	for _, stmt := range up {
		b.WriteString(stmt + "\n")
	}

	b.WriteString("\n" + DownMarker + "\n")
	b.WriteString("-- =======================\n")
	for _, stmt := range down {
		b.WriteString(stmt + "\n")
	}
	return b.String()
}

// ParseMigrationFile splits migration file content into its up and down
// scripts.
func ParseMigrationFile(content string) (up, down string, err error) {
	upPart, downPart, found := strings.Cut(content, DownMarker)
	if !found {
		return "", "", fmt.Errorf("missing %q section", DownMarker)
	}
	_, upSQL, found := strings.Cut(upPart, UpMarker)
	if !found {
		return "", "", fmt.Errorf("missing %q section", UpMarker)
	}
	return stripRule(upSQL), stripRule(downPart), nil
}

// stripRule drops the ruler line under a section marker.
func stripRule(section string) string {
	section = strings.TrimSpace(section)
	if strings.HasPrefix(section, "-- ==") {
		_, rest, _ := strings.Cut(section, "\n")
		section = rest
	}
	return strings.TrimSpace(section)
}
