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

// MySQLDescriber reads schemas from a MySQL or MariaDB information_schema.
type MySQLDescriber struct {
	db *sql.DB
}

func NewMySQLDescriber(db *sql.DB) *MySQLDescriber {
	return &MySQLDescriber{db: db}
}

func IsMariaDB(version string) bool {
	return strings.Contains(version, "MariaDB")
}

func (d *MySQLDescriber) ListDatabases(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, d.db, "listing databases", `SELECT schema_name AS schema_name FROM information_schema.schemata`)
}

func (d *MySQLDescriber) GetMetadata(ctx context.Context, schema string) (*SqlMetadata, error) {
	names, err := d.getTableNames(ctx, schema)
	if err != nil {
		return nil, err
	}
	var size sql.NullFloat64
	err = d.db.QueryRowContext(ctx, `
	SELECT SUM(data_length + index_length) AS size
	FROM information_schema.TABLES
	WHERE table_schema = ?
	`, schema).Scan(&size)
	if err != nil {
		return nil, describeErr("querying size", err)
	}
	return &SqlMetadata{TableCount: len(names), SizeInBytes: int64(size.Float64 + 0.5)}, nil
}

func (d *MySQLDescriber) Version(ctx context.Context, _ string) (string, error) {
	var version string
	if err := d.db.QueryRowContext(ctx, `SELECT @@GLOBAL.version`).Scan(&version); err != nil {
		return "", describeErr("querying version", err)
	}
	return version, nil
}

func (d *MySQLDescriber) Describe(ctx context.Context, schema string) (*SqlSchema, error) {
	version, err := d.Version(ctx, schema)
	if err != nil {
		return nil, err
	}
	mariadb := IsMariaDB(version)

	tableNames, err := d.getTableNames(ctx, schema)
	if err != nil {
		return nil, err
	}
	columns, enums, err := d.getColumns(ctx, schema, mariadb)
	if err != nil {
		return nil, err
	}
	indexes, primaryKeys, err := d.getIndexes(ctx, schema)
	if err != nil {
		return nil, err
	}
	foreignKeys, err := d.getForeignKeys(ctx, schema)
	if err != nil {
		return nil, err
	}

	out := &SqlSchema{}
	for _, name := range tableNames {
		out.Tables = append(out.Tables, Table{
			Name:        name,
			Columns:     columns[name],
			Indices:     indexes[name],
			PrimaryKey:  primaryKeys[name],
			ForeignKeys: foreignKeys[name],
		})
		out.Enums = append(out.Enums, enums[name]...)
	}
	return out, nil
}

func (d *MySQLDescriber) getTableNames(ctx context.Context, schema string) ([]string, error) {
	return queryStrings(ctx, d.db, "querying tables", `
	SELECT table_name AS table_name FROM information_schema.tables
	WHERE table_schema = ? AND table_type = 'BASE TABLE'
	ORDER BY table_name
	`, schema)
}

// Columns are aliased because MySQL 8 reports information_schema column names in upper case.
func (d *MySQLDescriber) getColumns(ctx context.Context, schema string, mariadb bool) (map[string][]Column, map[string][]Enum, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT
		column_name column_name,
		data_type data_type,
		column_type full_data_type,
		character_maximum_length character_maximum_length,
		numeric_precision numeric_precision,
		numeric_scale numeric_scale,
		datetime_precision datetime_precision,
		column_default column_default,
		is_nullable is_nullable,
		extra extra,
		table_name table_name
	FROM information_schema.columns
	WHERE table_schema = ?
	ORDER BY ordinal_position
	`, schema)
	if err != nil {
		return nil, nil, describeErr("querying columns", err)
	}
	defer rows.Close()

	columns := map[string][]Column{}
	enums := map[string][]Enum{}
	for rows.Next() {
		var (
			name, dataType, fullDataType, isNullable, extra, tableName string
			charLen, numPrecision, numScale, timePrecision             sql.NullInt64
			columnDefault                                              sql.NullString
		)
		if err := rows.Scan(
			&name,
			&dataType,
			&fullDataType,
			&charLen,
			&numPrecision,
			&numScale,
			&timePrecision,
			&columnDefault,
			&isNullable,
			&extra,
			&tableName,
		); err != nil {
			return nil, nil, describeErr("scanning column", err)
		}

		var arity ColumnArity
		switch strings.ToLower(isNullable) {
		case "no":
			arity = ArityRequired
		case "yes":
			arity = ArityNullable
		default:
			return nil, nil, describeErr("scanning column", fmt.Errorf("unrecognized is_nullable variant %q", isNullable))
		}

		precision := Precision{
			CharacterMaximumLength: nullInt(charLen),
			NumericPrecision:       nullInt(numPrecision),
			NumericScale:           nullInt(numScale),
			TimePrecision:          nullInt(timePrecision),
		}

		var rawDefault *string
		if columnDefault.Valid && columnDefault.String != "NULL" {
			rawDefault = &columnDefault.String
		}

		tpe, enum := mysqlColumnType(tableName, name, dataType, fullDataType, precision, arity, rawDefault)
		if enum != nil {
			enums[tableName] = append(enums[tableName], *enum)
		}

		col := Column{
			Name:          name,
			Type:          tpe,
			AutoIncrement: strings.ToLower(extra) == "auto_increment",
		}
		if rawDefault != nil {
			col.Default = mysqlDefault(*rawDefault, tpe.Family, mariadb)
		}
		columns[tableName] = append(columns[tableName], col)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, describeErr("iterating column rows", err)
	}
	return columns, enums, nil
}

func mysqlDefault(raw string, family ColumnTypeFamily, mariadb bool) *DefaultValue {
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
		if n, ok := ParseInt(raw); ok && (n == 0 || n == 1) {
			return DefaultValueOf(strconv.FormatBool(n == 1))
		}
	case KindString:
		return DefaultValueOf(unescapeMySQLDefault(raw, mariadb))
	case KindDateTime:
		if currentTimestampRe.MatchString(raw) {
			return DefaultNow()
		}
	case KindEnum:
		v := strings.ReplaceAll(raw, "_utf8mb4", "")
		v = strings.ReplaceAll(v, `\'`, "")
		return DefaultValueOf(UnquoteString(v))
	}
	return DefaultDbGenerated(raw)
}

var (
	tinyintPrecisionRe = regexp.MustCompile(`.*\(([1-9])\)`)
	currentTimestampRe = regexp.MustCompile(`(?i)current_timestamp(\([0-9]*\))?`)
	mysqlEscapingRe    = regexp.MustCompile(`\\('|\\[^\\])|'(')`)
)

// unescapeMySQLDefault undoes string literal escaping. MariaDB also keeps the
// surrounding quotes and escapes newlines.
func unescapeMySQLDefault(raw string, mariadb bool) string {
	if mariadb && len(raw) >= 2 {
		raw = strings.ReplaceAll(raw[1:len(raw)-1], `\n`, "\n")
	}
	return mysqlEscapingRe.ReplaceAllString(raw, "${1}${2}")
}

func mysqlColumnType(table, column, dataType, fullDataType string, p Precision, arity ColumnArity, rawDefault *string) (ColumnType, *Enum) {
	isTinyint1 := func() bool {
		m := tinyintPrecisionRe.FindStringSubmatch(fullDataType)
		return m != nil && m[1] == "1"
	}
	invalidBoolDefault := func() bool {
		if rawDefault == nil {
			return false
		}
		n, ok := ParseInt(*rawDefault)
		return ok && n != 0 && n != 1
	}

	var (
		family ColumnTypeFamily
		native string
	)
	switch dataType {
	case "int":
		family, native = FamilyInt, "Int"
	case "smallint":
		family, native = FamilyInt, "SmallInt"
	case "tinyint":
		if isTinyint1() && !invalidBoolDefault() {
			family, native = FamilyBoolean, "TinyInt"
		} else {
			family, native = FamilyInt, "TinyInt"
		}
	case "mediumint":
		family, native = FamilyInt, "MediumInt"
	case "bigint":
		family, native = FamilyInt, "BigInt"
	case "decimal":
		family, native = FamilyDecimal, fmt.Sprintf("Decimal(%d,%d)", p.NumericPrecisionOrDefault(), p.NumericScaleOrDefault())
	case "numeric":
		family, native = FamilyDecimal, fmt.Sprintf("Numeric(%d,%d)", p.NumericPrecisionOrDefault(), p.NumericScaleOrDefault())
	case "float":
		family, native = FamilyFloat, "Float"
	case "double":
		family, native = FamilyFloat, "Double"
	case "char":
		family, native = FamilyString, fmt.Sprintf("Char(%d)", p.CharacterLengthOrDefault())
	case "varchar":
		family, native = FamilyString, fmt.Sprintf("VarChar(%d)", p.CharacterLengthOrDefault())
	case "text":
		family, native = FamilyString, "Text"
	case "tinytext":
		family, native = FamilyString, "TinyText"
	case "mediumtext":
		family, native = FamilyString, "MediumText"
	case "longtext":
		family, native = FamilyString, "LongText"
	case "enum":
		family = EnumFamily(table + "_" + column)
	case "json":
		family, native = FamilyJson, "Json"
	case "set":
		family = FamilyString
	case "date":
		family, native = FamilyDateTime, "Date"
	case "time":
		family, native = FamilyDateTime, fmt.Sprintf("Time(%d)", timePrecision(p))
	case "datetime":
		family, native = FamilyDateTime, fmt.Sprintf("DateTime(%d)", timePrecision(p))
	case "timestamp":
		family, native = FamilyDateTime, fmt.Sprintf("Timestamp(%d)", timePrecision(p))
	case "year":
		family, native = FamilyInt, "Year"
	case "bit":
		family, native = FamilyBinary, fmt.Sprintf("Bit(%d)", p.NumericPrecisionOrDefault())
	case "binary":
		family, native = FamilyBinary, fmt.Sprintf("Binary(%d)", p.CharacterLengthOrDefault())
	case "varbinary":
		family, native = FamilyBinary, fmt.Sprintf("VarBinary(%d)", p.CharacterLengthOrDefault())
	case "blob":
		family, native = FamilyBinary, "Blob"
	case "tinyblob":
		family, native = FamilyBinary, "TinyBlob"
	case "mediumblob":
		family, native = FamilyBinary, "MediumBlob"
	case "longblob":
		family, native = FamilyBinary, "LongBlob"
	default:
		// Spatial types and anything newer are reported as is.
		family = UnsupportedFamily(fullDataType)
	}

	tpe := ColumnType{
		DataType:               dataType,
		FullDataType:           fullDataType,
		CharacterMaximumLength: p.CharacterMaximumLength,
		Family:                 family,
		Arity:                  arity,
		NativeType:             native,
	}
	if family.IsEnum() {
		return tpe, &Enum{Name: family.Name, Values: extractEnumValues(fullDataType)}
	}
	return tpe, nil
}

func timePrecision(p Precision) int64 {
	if p.TimePrecision == nil {
		return 0
	}
	return *p.TimePrecision
}

// extractEnumValues parses a column type such as enum('a','b').
func extractEnumValues(fullDataType string) []string {
	if len(fullDataType) < 6 {
		return nil
	}
	inner := fullDataType[5 : len(fullDataType)-1]
	var values []string
	for _, v := range strings.Split(inner, ",") {
		values = append(values, UnquoteString(v))
	}
	return values
}

func (d *MySQLDescriber) getIndexes(ctx context.Context, schema string) (map[string][]Index, map[string]*PrimaryKey, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT DISTINCT
		index_name AS index_name,
		non_unique AS non_unique,
		column_name AS column_name,
		seq_in_index AS seq_in_index,
		table_name AS table_name
	FROM INFORMATION_SCHEMA.STATISTICS
	WHERE table_schema = ?
	ORDER BY index_name, seq_in_index
	`, schema)
	if err != nil {
		return nil, nil, describeErr("querying indexes", err)
	}
	defer rows.Close()

	type tableIndexes struct {
		byName map[string]*Index
		order  []string
	}
	byTable := map[string]*tableIndexes{}
	primaryKeys := map[string]*PrimaryKey{}
	// Indexes over expressions have no column name and are skipped entirely.
	expressionIndexes := map[[2]string]bool{}

	for rows.Next() {
		var (
			indexName, tableName string
			nonUnique            bool
			columnName           sql.NullString
			seqInIndex           int64
		)
		if err := rows.Scan(&indexName, &nonUnique, &columnName, &seqInIndex, &tableName); err != nil {
			return nil, nil, describeErr("scanning index", err)
		}
		if !columnName.Valid {
			expressionIndexes[[2]string{tableName, indexName}] = true
			continue
		}

		pos := int(seqInIndex - 1)
		if strings.EqualFold(indexName, "primary") {
			pk, ok := primaryKeys[tableName]
			if !ok {
				pk = &PrimaryKey{}
				primaryKeys[tableName] = pk
			}
			for len(pk.Columns) <= pos {
				pk.Columns = append(pk.Columns, "")
			}
			pk.Columns[pos] = columnName.String
			continue
		}

		ti, ok := byTable[tableName]
		if !ok {
			ti = &tableIndexes{byName: map[string]*Index{}}
			byTable[tableName] = ti
		}
		if idx, ok := ti.byName[indexName]; ok {
			idx.Columns = append(idx.Columns, columnName.String)
			continue
		}
		tpe := IndexTypeNormal
		if !nonUnique {
			tpe = IndexTypeUnique
		}
		ti.byName[indexName] = &Index{Name: indexName, Columns: []string{columnName.String}, Type: tpe}
		ti.order = append(ti.order, indexName)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, describeErr("iterating index rows", err)
	}

	indexes := map[string][]Index{}
	for tableName, ti := range byTable {
		sort.Strings(ti.order)
		for _, name := range ti.order {
			if expressionIndexes[[2]string{tableName, name}] {
				continue
			}
			indexes[tableName] = append(indexes[tableName], *ti.byName[name])
		}
	}
	return indexes, primaryKeys, nil
}

func (d *MySQLDescriber) getForeignKeys(ctx context.Context, schema string) (map[string][]ForeignKey, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT
		kcu.constraint_name constraint_name,
		kcu.column_name column_name,
		kcu.referenced_table_name referenced_table_name,
		kcu.referenced_column_name referenced_column_name,
		kcu.ordinal_position ordinal_position,
		kcu.table_name table_name,
		rc.delete_rule delete_rule,
		rc.update_rule update_rule
	FROM information_schema.key_column_usage AS kcu
	INNER JOIN information_schema.referential_constraints AS rc
		ON kcu.constraint_name = rc.constraint_name
	WHERE kcu.table_schema = ?
		AND rc.constraint_schema = ?
		AND referenced_column_name IS NOT NULL
	ORDER BY ordinal_position
	`, schema, schema)
	if err != nil {
		return nil, describeErr("querying foreign keys", err)
	}
	defer rows.Close()

	byTable := map[string]map[string]*ForeignKey{}
	for rows.Next() {
		var (
			constraintName, column, refTable, refColumn, tableName string
			deleteRule, updateRule                                 string
			ordinal                                                int64
		)
		if err := rows.Scan(&constraintName, &column, &refTable, &refColumn, &ordinal, &tableName, &deleteRule, &updateRule); err != nil {
			return nil, describeErr("scanning foreign key", err)
		}
		onDelete, err := ParseForeignKeyAction(deleteRule)
		if err != nil {
			return nil, describeErr("scanning foreign key", err)
		}
		onUpdate, err := ParseForeignKeyAction(updateRule)
		if err != nil {
			return nil, describeErr("scanning foreign key", err)
		}

		fks, ok := byTable[tableName]
		if !ok {
			fks = map[string]*ForeignKey{}
			byTable[tableName] = fks
		}
		fk, ok := fks[constraintName]
		if !ok {
			fks[constraintName] = &ForeignKey{
				ConstraintName:    constraintName,
				Columns:           []string{column},
				ReferencedTable:   refTable,
				ReferencedColumns: []string{refColumn},
				OnDeleteAction:    onDelete,
				OnUpdateAction:    onUpdate,
			}
			continue
		}
		pos := int(ordinal - 1)
		for len(fk.Columns) <= pos {
			fk.Columns = append(fk.Columns, "")
		}
		for len(fk.ReferencedColumns) <= pos {
			fk.ReferencedColumns = append(fk.ReferencedColumns, "")
		}
		fk.Columns[pos] = column
		fk.ReferencedColumns[pos] = refColumn
	}
	if err := rows.Err(); err != nil {
		return nil, describeErr("iterating foreign key rows", err)
	}

	out := map[string][]ForeignKey{}
	for tableName, fks := range byTable {
		list := make([]ForeignKey, 0, len(fks))
		for _, fk := range fks {
			list = append(list, *fk)
		}
		sort.SliceStable(list, func(i, j int) bool {
			return slices.Compare(list[i].Columns, list[j].Columns) < 0
		})
		out[tableName] = list
	}
	return out, nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func queryStrings(ctx context.Context, db *sql.DB, op, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, describeErr(op, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, describeErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, describeErr(op, err)
	}
	return out, nil
}
