package describer

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDescriber reads schemas through the pg catalogs and information_schema.
type PostgresDescriber struct {
	pool *pgxpool.Pool
}

func NewPostgresDescriber(pool *pgxpool.Pool) *PostgresDescriber {
	return &PostgresDescriber{pool: pool}
}

func (d *PostgresDescriber) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT schema_name FROM information_schema.schemata ORDER BY schema_name`)
	if err != nil {
		return nil, describeErr("querying schemas", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, describeErr("scanning schema name", err)
		}
		names = append(names, name)
	}
	if rows.Err() != nil {
		return nil, describeErr("iterating schema rows", rows.Err())
	}
	return names, nil
}

func (d *PostgresDescriber) GetMetadata(ctx context.Context, schema string) (*SqlMetadata, error) {
	var meta SqlMetadata
	err := d.pool.QueryRow(ctx, `
	SELECT
		COUNT(*)::int,
		COALESCE(SUM(pg_total_relation_size(quote_ident(schemaname) || '.' || quote_ident(tablename))), 0)::bigint
	FROM pg_tables
	WHERE schemaname = $1
	`, schema).Scan(&meta.TableCount, &meta.SizeInBytes)
	if err != nil {
		return nil, describeErr("querying metadata", err)
	}
	return &meta, nil
}

func (d *PostgresDescriber) Version(ctx context.Context, _ string) (string, error) {
	var version string
	if err := d.pool.QueryRow(ctx, `SELECT version()`).Scan(&version); err != nil {
		return "", describeErr("querying version", err)
	}
	return version, nil
}

func (d *PostgresDescriber) Describe(ctx context.Context, schema string) (*SqlSchema, error) {
	sequences, err := d.getSequences(ctx, schema)
	if err != nil {
		return nil, err
	}
	enums, err := d.getEnums(ctx, schema)
	if err != nil {
		return nil, err
	}

	tableNames, err := d.getTableNames(ctx, schema)
	if err != nil {
		return nil, err
	}

	columns, err := d.getColumns(ctx, schema, enums)
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

	out := &SqlSchema{Enums: enums, Sequences: sequences}
	for _, name := range tableNames {
		table := Table{
			Name:        name,
			Columns:     columns[name],
			Indices:     indexes[name],
			PrimaryKey:  primaryKeys[name],
			ForeignKeys: foreignKeys[name],
		}
		if pk := table.PrimaryKey; pk != nil && len(pk.Columns) == 1 {
			if col := table.Column(pk.Columns[0]); col != nil && col.Default != nil && col.Default.Kind == DefaultKindSequence {
				for i := range out.Sequences {
					if out.Sequences[i].Name == col.Default.Value {
						seq := out.Sequences[i]
						pk.Sequence = &seq
					}
				}
			}
		}
		out.Tables = append(out.Tables, table)
	}
	return out, nil
}

func (d *PostgresDescriber) getTableNames(ctx context.Context, schema string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = $1 AND table_type = 'BASE TABLE'
	ORDER BY table_name
	`, schema)
	if err != nil {
		return nil, describeErr("querying tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, describeErr("scanning table name", err)
		}
		names = append(names, name)
	}
	if rows.Err() != nil {
		return nil, describeErr("iterating table rows", rows.Err())
	}
	return names, nil
}

func (d *PostgresDescriber) getColumns(ctx context.Context, schema string, enums []Enum) (map[string][]Column, error) {
	rows, err := d.pool.Query(ctx, `
	SELECT
		table_name,
		column_name,
		data_type,
		udt_name,
		is_nullable = 'YES',
		column_default,
		character_maximum_length::bigint,
		numeric_precision::bigint,
		numeric_scale::bigint,
		datetime_precision::bigint,
		is_identity = 'YES'
	FROM information_schema.columns
	WHERE table_schema = $1
	ORDER BY table_name, ordinal_position
	`, schema)
	if err != nil {
		return nil, describeErr("querying columns", err)
	}
	defer rows.Close()

	enumNames := make(map[string]bool, len(enums))
	for _, e := range enums {
		enumNames[e.Name] = true
	}

	columns := map[string][]Column{}
	for rows.Next() {
		var (
			tableName, name, dataType, udtName string
			nullable, identity                 bool
			columnDefault                      *string
			precision                          Precision
		)
		if err := rows.Scan(
			&tableName,
			&name,
			&dataType,
			&udtName,
			&nullable,
			&columnDefault,
			&precision.CharacterMaximumLength,
			&precision.NumericPrecision,
			&precision.NumericScale,
			&precision.TimePrecision,
			&identity,
		); err != nil {
			return nil, describeErr("scanning column", err)
		}

		arity := ArityRequired
		switch {
		case dataType == "ARRAY":
			arity = ArityList
		case nullable:
			arity = ArityNullable
		}

		colType := postgresColumnType(dataType, udtName, arity, precision, enumNames)
		col := Column{Name: name, Type: colType, AutoIncrement: identity}
		if columnDefault != nil {
			col.Default = postgresDefault(*columnDefault, colType.Family)
			if col.Default != nil && col.Default.Kind == DefaultKindSequence {
				col.AutoIncrement = true
			}
		}
		columns[tableName] = append(columns[tableName], col)
	}
	if rows.Err() != nil {
		return nil, describeErr("iterating column rows", rows.Err())
	}
	return columns, nil
}

func postgresColumnType(dataType, udtName string, arity ColumnArity, p Precision, enums map[string]bool) ColumnType {
	base := udtName
	if arity == ArityList {
		base = strings.TrimPrefix(udtName, "_")
	}

	ct := ColumnType{
		DataType:               dataType,
		FullDataType:           udtName,
		CharacterMaximumLength: p.CharacterMaximumLength,
		Arity:                  arity,
	}

	switch base {
	case "int2", "int4", "int8":
		ct.Family = FamilyInt
	case "float4", "float8", "money":
		ct.Family = FamilyFloat
	case "numeric":
		ct.Family = FamilyDecimal
		ct.NativeType = fmt.Sprintf("Decimal(%d,%d)", p.NumericPrecisionOrDefault(), p.NumericScaleOrDefault())
	case "bool":
		ct.Family = FamilyBoolean
	case "text", "citext", "name":
		ct.Family = FamilyString
	case "varchar", "bpchar":
		ct.Family = FamilyString
		if p.CharacterMaximumLength != nil || arity == ArityList {
			kind := "VarChar"
			if base == "bpchar" {
				kind = "Char"
			}
			ct.NativeType = fmt.Sprintf("%s(%d)", kind, p.CharacterLengthOrDefault())
		}
	case "timestamp", "timestamptz", "date", "time", "timetz":
		ct.Family = FamilyDateTime
	case "interval":
		ct.Family = FamilyDuration
	case "bytea":
		ct.Family = FamilyBinary
	case "json", "jsonb":
		ct.Family = FamilyJson
	case "xml":
		ct.Family = FamilyXml
	case "uuid":
		ct.Family = FamilyUuid
	default:
		if enums[base] {
			ct.Family = EnumFamily(base)
		} else {
			ct.Family = UnsupportedFamily(udtName)
		}
	}
	return ct
}

var (
	pgCastRe    = regexp.MustCompile(`^(.*?)::[\w\s"\[\]().]+$`)
	pgNextvalRe = regexp.MustCompile(`^nextval\('"?([^"']+)"?'::regclass\)$`)
	pgNegIntRe  = regexp.MustCompile(`^\((-\d+)\)$`)
)

func postgresDefault(raw string, family ColumnTypeFamily) *DefaultValue {
	if m := pgNextvalRe.FindStringSubmatch(raw); m != nil {
		return DefaultSequence(m[1])
	}

	value := raw
	if m := pgCastRe.FindStringSubmatch(raw); m != nil {
		value = m[1]
	}

	switch family.Kind {
	case KindInt:
		v := strings.Trim(value, "'")
		if m := pgNegIntRe.FindStringSubmatch(v); m != nil {
			v = m[1]
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return DefaultValueOf(strconv.FormatInt(n, 10))
		}
	case KindFloat, KindDecimal:
		if v, ok := ParseFloat(value); ok {
			return DefaultValueOf(v)
		}
	case KindBoolean:
		if b, ok := ParseBool(value); ok {
			return DefaultValueOf(strconv.FormatBool(b))
		}
	case KindDateTime:
		switch strings.ToLower(value) {
		case "now()", "current_timestamp", "current_timestamp()":
			return DefaultNow()
		}
	case KindString, KindEnum:
		if strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'") {
			return DefaultValueOf(UnquoteString(value))
		}
	}
	return DefaultDbGenerated(raw)
}

func (d *PostgresDescriber) getEnums(ctx context.Context, schema string) ([]Enum, error) {
	rows, err := d.pool.Query(ctx, `
	SELECT t.typname, e.enumlabel
	FROM pg_type t
	JOIN pg_enum e ON t.oid = e.enumtypid
	JOIN pg_namespace n ON n.oid = t.typnamespace
	WHERE n.nspname = $1
	ORDER BY t.typname, e.enumsortorder
	`, schema)
	if err != nil {
		return nil, describeErr("querying enums", err)
	}
	defer rows.Close()

	var enums []Enum
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, describeErr("scanning enum value", err)
		}
		if n := len(enums); n > 0 && enums[n-1].Name == name {
			enums[n-1].Values = append(enums[n-1].Values, value)
		} else {
			enums = append(enums, Enum{Name: name, Values: []string{value}})
		}
	}
	if rows.Err() != nil {
		return nil, describeErr("iterating enum rows", rows.Err())
	}
	return enums, nil
}

func (d *PostgresDescriber) getSequences(ctx context.Context, schema string) ([]Sequence, error) {
	rows, err := d.pool.Query(ctx, `
	SELECT sequence_name, start_value::bigint, increment::bigint
	FROM information_schema.sequences
	WHERE sequence_schema = $1
	ORDER BY sequence_name
	`, schema)
	if err != nil {
		return nil, describeErr("querying sequences", err)
	}
	defer rows.Close()

	var sequences []Sequence
	for rows.Next() {
		var seq Sequence
		if err := rows.Scan(&seq.Name, &seq.InitialValue, &seq.AllocationSize); err != nil {
			return nil, describeErr("scanning sequence", err)
		}
		sequences = append(sequences, seq)
	}
	if rows.Err() != nil {
		return nil, describeErr("iterating sequence rows", rows.Err())
	}
	return sequences, nil
}

// getIndexes returns the secondary indexes and the primary keys per table.
func (d *PostgresDescriber) getIndexes(ctx context.Context, schema string) (map[string][]Index, map[string]*PrimaryKey, error) {
	rows, err := d.pool.Query(ctx, `
	SELECT
		t.relname AS table_name,
		i.relname AS index_name,
		a.attname AS column_name,
		ix.indisunique,
		ix.indisprimary,
		k.ord
	FROM pg_index ix
	JOIN pg_class i ON i.oid = ix.indexrelid
	JOIN pg_class t ON t.oid = ix.indrelid
	JOIN pg_namespace n ON n.oid = t.relnamespace
	CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord)
	JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
	WHERE n.nspname = $1
	ORDER BY t.relname, i.relname, k.ord
	`, schema)
	if err != nil {
		return nil, nil, describeErr("querying indexes", err)
	}
	defer rows.Close()

	indexes := map[string][]Index{}
	primaryKeys := map[string]*PrimaryKey{}
	for rows.Next() {
		var (
			tableName, indexName, columnName string
			unique, primary                  bool
			ord                              int64
		)
		if err := rows.Scan(&tableName, &indexName, &columnName, &unique, &primary, &ord); err != nil {
			return nil, nil, describeErr("scanning index", err)
		}

		if primary {
			pk, ok := primaryKeys[tableName]
			if !ok {
				pk = &PrimaryKey{ConstraintName: indexName}
				primaryKeys[tableName] = pk
			}
			pk.Columns = append(pk.Columns, columnName)
			continue
		}

		list := indexes[tableName]
		if n := len(list); n > 0 && list[n-1].Name == indexName {
			list[n-1].Columns = append(list[n-1].Columns, columnName)
		} else {
			tpe := IndexTypeNormal
			if unique {
				tpe = IndexTypeUnique
			}
			list = append(list, Index{Name: indexName, Columns: []string{columnName}, Type: tpe})
		}
		indexes[tableName] = list
	}
	if rows.Err() != nil {
		return nil, nil, describeErr("iterating index rows", rows.Err())
	}
	return indexes, primaryKeys, nil
}

func (d *PostgresDescriber) getForeignKeys(ctx context.Context, schema string) (map[string][]ForeignKey, error) {
	rows, err := d.pool.Query(ctx, `
	SELECT
		con.conname,
		cl.relname AS table_name,
		att.attname AS column_name,
		ref_cl.relname AS referenced_table,
		ref_att.attname AS referenced_column,
		con.confdeltype,
		con.confupdtype
	FROM pg_constraint con
	JOIN pg_class cl ON cl.oid = con.conrelid
	JOIN pg_namespace n ON n.oid = cl.relnamespace
	JOIN pg_class ref_cl ON ref_cl.oid = con.confrelid
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS cols(conkey, confkey, ord)
	JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = cols.conkey
	JOIN pg_attribute ref_att ON ref_att.attrelid = con.confrelid AND ref_att.attnum = cols.confkey
	WHERE con.contype = 'f' AND n.nspname = $1
	ORDER BY cl.relname, con.conname, cols.ord
	`, schema)
	if err != nil {
		return nil, describeErr("querying foreign keys", err)
	}
	defer rows.Close()

	foreignKeys := map[string][]ForeignKey{}
	for rows.Next() {
		var (
			name, tableName, column, refTable, refColumn string
			onDelete, onUpdate                           string
		)
		if err := rows.Scan(&name, &tableName, &column, &refTable, &refColumn, &onDelete, &onUpdate); err != nil {
			return nil, describeErr("scanning foreign key", err)
		}

		list := foreignKeys[tableName]
		if n := len(list); n > 0 && list[n-1].ConstraintName == name {
			list[n-1].Columns = append(list[n-1].Columns, column)
			list[n-1].ReferencedColumns = append(list[n-1].ReferencedColumns, refColumn)
		} else {
			list = append(list, ForeignKey{
				ConstraintName:    name,
				Columns:           []string{column},
				ReferencedTable:   refTable,
				ReferencedColumns: []string{refColumn},
				OnDeleteAction:    pgActionCode(onDelete),
				OnUpdateAction:    pgActionCode(onUpdate),
			})
		}
		foreignKeys[tableName] = list
	}
	if rows.Err() != nil {
		return nil, describeErr("iterating foreign key rows", rows.Err())
	}

	for table := range foreignKeys {
		sortForeignKeys(foreignKeys[table])
	}
	return foreignKeys, nil
}

// pgActionCode decodes pg_constraint.confdeltype and confupdtype.
func pgActionCode(code string) ForeignKeyAction {
	switch code {
	case "c":
		return Cascade
	case "n":
		return SetNull
	case "d":
		return SetDefault
	case "r":
		return Restrict
	default:
		return NoAction
	}
}

// sortForeignKeys orders foreign keys by their constrained columns so that
// describing the same schema twice yields the same order.
func sortForeignKeys(fks []ForeignKey) {
	sort.SliceStable(fks, func(i, j int) bool {
		return slices.Compare(fks[i].Columns, fks[j].Columns) < 0
	})
}
