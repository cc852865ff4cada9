package describer

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// SQLiteDescriber reads schemas from sqlite_master and the table pragmas.
type SQLiteDescriber struct {
	db *sql.DB
}

func NewSQLiteDescriber(db *sql.DB) *SQLiteDescriber {
	return &SQLiteDescriber{db: db}
}

func (d *SQLiteDescriber) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `PRAGMA database_list`)
	if err != nil {
		return nil, describeErr("listing databases", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var (
			seq        int64
			name, file sql.NullString
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return nil, describeErr("scanning database", err)
		}
		names = append(names, name.String)
	}
	if err := rows.Err(); err != nil {
		return nil, describeErr("iterating database rows", err)
	}
	return names, nil
}

func (d *SQLiteDescriber) GetMetadata(ctx context.Context, schema string) (*SqlMetadata, error) {
	names, err := d.getTableNames(ctx, schema)
	if err != nil {
		return nil, err
	}
	var pageCount, pageSize int64
	if err := d.db.QueryRowContext(ctx, fmt.Sprintf(`PRAGMA %s.page_count`, quoteIdent(schema))).Scan(&pageCount); err != nil {
		return nil, describeErr("querying page count", err)
	}
	if err := d.db.QueryRowContext(ctx, fmt.Sprintf(`PRAGMA %s.page_size`, quoteIdent(schema))).Scan(&pageSize); err != nil {
		return nil, describeErr("querying page size", err)
	}
	return &SqlMetadata{TableCount: len(names), SizeInBytes: pageCount * pageSize}, nil
}

func (d *SQLiteDescriber) Version(ctx context.Context, _ string) (string, error) {
	var version string
	if err := d.db.QueryRowContext(ctx, `SELECT sqlite_version()`).Scan(&version); err != nil {
		return "", describeErr("querying version", err)
	}
	return version, nil
}

func (d *SQLiteDescriber) Describe(ctx context.Context, schema string) (*SqlSchema, error) {
	names, err := d.getTableNames(ctx, schema)
	if err != nil {
		return nil, err
	}

	out := &SqlSchema{}
	for _, name := range names {
		table, err := d.getTable(ctx, schema, name)
		if err != nil {
			return nil, err
		}
		out.Tables = append(out.Tables, *table)
	}

	// A foreign key without explicit target columns references the primary key.
	for ti := range out.Tables {
		for fi := range out.Tables[ti].ForeignKeys {
			fk := &out.Tables[ti].ForeignKeys[fi]
			if len(fk.ReferencedColumns) > 0 && fk.ReferencedColumns[0] != "" {
				continue
			}
			if ref := out.Table(fk.ReferencedTable); ref != nil && ref.PrimaryKey != nil {
				fk.ReferencedColumns = slices.Clone(ref.PrimaryKey.Columns)
			}
		}
	}
	return out, nil
}

func (d *SQLiteDescriber) getTableNames(ctx context.Context, schema string) ([]string, error) {
	query := fmt.Sprintf(`
	SELECT name FROM %s.sqlite_master
	WHERE type = 'table' AND name NOT LIKE 'sqlite_%%'
	ORDER BY name
	`, quoteIdent(schema))
	return queryStrings(ctx, d.db, "querying tables", query)
}

func (d *SQLiteDescriber) getTable(ctx context.Context, schema, name string) (*Table, error) {
	columns, pk, err := d.getColumns(ctx, schema, name)
	if err != nil {
		return nil, err
	}
	indexes, err := d.getIndexes(ctx, schema, name)
	if err != nil {
		return nil, err
	}
	foreignKeys, err := d.getForeignKeys(ctx, schema, name)
	if err != nil {
		return nil, err
	}
	return &Table{
		Name:        name,
		Columns:     columns,
		Indices:     indexes,
		PrimaryKey:  pk,
		ForeignKeys: foreignKeys,
	}, nil
}

func (d *SQLiteDescriber) getColumns(ctx context.Context, schema, table string) ([]Column, *PrimaryKey, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA %s.table_info(%s)`, quoteIdent(schema), quoteIdent(table)))
	if err != nil {
		return nil, nil, describeErr("querying columns", err)
	}
	defer rows.Close()

	type pkCol struct {
		name string
		pos  int64
	}
	var (
		columns []Column
		pkCols  []pkCol
	)
	for rows.Next() {
		var (
			cid, notNull, pk int64
			name, tpe        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &tpe, &notNull, &dflt, &pk); err != nil {
			return nil, nil, describeErr("scanning column", err)
		}

		arity := ArityNullable
		if notNull == 1 || pk > 0 {
			arity = ArityRequired
		}
		colType := sqliteColumnType(tpe, arity)
		col := Column{Name: name, Type: colType}
		if dflt.Valid && dflt.String != "NULL" {
			col.Default = sqliteDefault(dflt.String, colType.Family)
		}
		if pk > 0 {
			pkCols = append(pkCols, pkCol{name: name, pos: pk})
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, describeErr("iterating column rows", err)
	}

	if len(pkCols) == 0 {
		return columns, nil, nil
	}
	sort.Slice(pkCols, func(i, j int) bool { return pkCols[i].pos < pkCols[j].pos })
	pk := &PrimaryKey{}
	for _, c := range pkCols {
		pk.Columns = append(pk.Columns, c.name)
	}
	// A single INTEGER primary key aliases the rowid.
	if len(pk.Columns) == 1 {
		for i := range columns {
			if columns[i].Name == pk.Columns[0] && strings.EqualFold(columns[i].Type.DataType, "integer") {
				columns[i].AutoIncrement = true
			}
		}
	}
	return columns, pk, nil
}

var sqliteLengthRe = regexp.MustCompile(`\((\d+)\)`)

func sqliteColumnType(raw string, arity ColumnArity) ColumnType {
	lower := strings.ToLower(strings.TrimSpace(raw))
	base := lower
	if i := strings.Index(base, "("); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	var family ColumnTypeFamily
	switch {
	case base == "boolean" || base == "bool":
		family = FamilyBoolean
	case strings.Contains(base, "int") && base != "point":
		family = FamilyInt
	case base == "real" || base == "float" || strings.HasPrefix(base, "double"):
		family = FamilyFloat
	case base == "decimal" || base == "numeric":
		family = FamilyDecimal
	case strings.Contains(base, "char") || strings.Contains(base, "text") || base == "clob":
		family = FamilyString
	case base == "date" || base == "datetime" || base == "timestamp":
		family = FamilyDateTime
	case base == "blob":
		family = FamilyBinary
	case base == "json":
		family = FamilyJson
	default:
		family = UnsupportedFamily(raw)
	}

	ct := ColumnType{
		DataType:     lower,
		FullDataType: lower,
		Family:       family,
		Arity:        arity,
	}
	if m := sqliteLengthRe.FindStringSubmatch(lower); m != nil && family.Kind == KindString {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			ct.CharacterMaximumLength = &n
		}
	}
	return ct
}

func sqliteDefault(raw string, family ColumnTypeFamily) *DefaultValue {
	switch family.Kind {
	case KindInt:
		if n, ok := ParseInt(raw); ok {
			return DefaultValueOf(strconv.FormatInt(n, 10))
		}
	case KindFloat, KindDecimal:
		if v, ok := ParseFloat(raw); ok {
			return DefaultValueOf(v)
		}
	case KindBoolean:
		if b, ok := ParseBool(UnquoteString(raw)); ok {
			return DefaultValueOf(strconv.FormatBool(b))
		}
		if n, ok := ParseInt(raw); ok && (n == 0 || n == 1) {
			return DefaultValueOf(strconv.FormatBool(n == 1))
		}
	case KindString:
		return DefaultValueOf(UnquoteString(raw))
	case KindDateTime:
		if currentTimestampRe.MatchString(raw) {
			return DefaultNow()
		}
	}
	return DefaultDbGenerated(raw)
}

func (d *SQLiteDescriber) getIndexes(ctx context.Context, schema, table string) ([]Index, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA %s.index_list(%s)`, quoteIdent(schema), quoteIdent(table)))
	if err != nil {
		return nil, describeErr("querying indexes", err)
	}

	var indexes []Index
	for rows.Next() {
		var (
			seq, unique, partial int64
			name, origin         string
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, describeErr("scanning index", err)
		}
		if origin == "pk" {
			continue
		}
		tpe := IndexTypeNormal
		if unique == 1 {
			tpe = IndexTypeUnique
		}
		indexes = append(indexes, Index{Name: name, Type: tpe})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, describeErr("iterating index rows", err)
	}
	rows.Close()

	for i := range indexes {
		cols, err := d.getIndexColumns(ctx, schema, indexes[i].Name)
		if err != nil {
			return nil, err
		}
		indexes[i].Columns = cols
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
	return indexes, nil
}

func (d *SQLiteDescriber) getIndexColumns(ctx context.Context, schema, index string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA %s.index_info(%s)`, quoteIdent(schema), quoteIdent(index)))
	if err != nil {
		return nil, describeErr("querying index columns", err)
	}
	defer rows.Close()

	type indexCol struct {
		seq  int64
		name string
	}
	var cols []indexCol
	for rows.Next() {
		var (
			seqno, cid int64
			name       sql.NullString
		)
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, describeErr("scanning index column", err)
		}
		cols = append(cols, indexCol{seq: seqno, name: name.String})
	}
	if err := rows.Err(); err != nil {
		return nil, describeErr("iterating index column rows", err)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].seq < cols[j].seq })

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names, nil
}

func (d *SQLiteDescriber) getForeignKeys(ctx context.Context, schema, table string) ([]ForeignKey, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA %s.foreign_key_list(%s)`, quoteIdent(schema), quoteIdent(table)))
	if err != nil {
		return nil, describeErr("querying foreign keys", err)
	}
	defer rows.Close()

	byID := map[int64]*ForeignKey{}
	var ids []int64
	for rows.Next() {
		var (
			id, seq                         int64
			refTable, from                  string
			to                              sql.NullString
			onUpdate, onDelete, matchClause string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &matchClause); err != nil {
			return nil, describeErr("scanning foreign key", err)
		}
		fk, ok := byID[id]
		if !ok {
			del, err := ParseForeignKeyAction(onDelete)
			if err != nil {
				return nil, describeErr("scanning foreign key", err)
			}
			upd, err := ParseForeignKeyAction(onUpdate)
			if err != nil {
				return nil, describeErr("scanning foreign key", err)
			}
			fk = &ForeignKey{ReferencedTable: refTable, OnDeleteAction: del, OnUpdateAction: upd}
			byID[id] = fk
			ids = append(ids, id)
		}
		pos := int(seq)
		for len(fk.Columns) <= pos {
			fk.Columns = append(fk.Columns, "")
			fk.ReferencedColumns = append(fk.ReferencedColumns, "")
		}
		fk.Columns[pos] = from
		fk.ReferencedColumns[pos] = to.String
	}
	if err := rows.Err(); err != nil {
		return nil, describeErr("iterating foreign key rows", err)
	}

	fks := make([]ForeignKey, 0, len(ids))
	for _, id := range ids {
		fks = append(fks, *byID[id])
	}
	sort.SliceStable(fks, func(i, j int) bool {
		return slices.Compare(fks[i].Columns, fks[j].Columns) < 0
	})
	return fks, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
