package describer

// Walkers are index-addressed views into a SqlSchema. They hold no copies, so
// a walker stays valid as long as the schema it was created from is not mutated.

type TableWalker struct {
	schema *SqlSchema
	index  int
}

// WalkTables returns a walker for every table, in schema order.
func (s *SqlSchema) WalkTables() []TableWalker {
	walkers := make([]TableWalker, len(s.Tables))
	for i := range s.Tables {
		walkers[i] = TableWalker{schema: s, index: i}
	}
	return walkers
}

// WalkTable returns a walker for the named table.
func (s *SqlSchema) WalkTable(name string) (TableWalker, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return TableWalker{schema: s, index: i}, true
		}
	}
	return TableWalker{}, false
}

// WalkColumns returns a walker for every column of every table.
func (s *SqlSchema) WalkColumns() []ColumnWalker {
	var walkers []ColumnWalker
	for _, t := range s.WalkTables() {
		walkers = append(walkers, t.Columns()...)
	}
	return walkers
}

// FindColumn locates a column by table and column name.
func (s *SqlSchema) FindColumn(table, column string) (ColumnWalker, bool) {
	t, ok := s.WalkTable(table)
	if !ok {
		return ColumnWalker{}, false
	}
	return t.Column(column)
}

func (t TableWalker) Table() *Table { return &t.schema.Tables[t.index] }
func (t TableWalker) Name() string { return t.Table().Name }
func (t TableWalker) TableIndex() int { return t.index }
func (t TableWalker) Schema() *SqlSchema { return t.schema }
func (t TableWalker) ForeignKeyCount() int { return len(t.Table().ForeignKeys) }

func (t TableWalker) Columns() []ColumnWalker {
	cols := make([]ColumnWalker, len(t.Table().Columns))
	for i := range cols {
		cols[i] = ColumnWalker{table: t, index: i}
	}
	return cols
}

func (t TableWalker) Column(name string) (ColumnWalker, bool) {
	for i, c := range t.Table().Columns {
		if c.Name == name {
			return ColumnWalker{table: t, index: i}, true
		}
	}
	return ColumnWalker{}, false
}

func (t TableWalker) ColumnAt(i int) ColumnWalker {
	return ColumnWalker{table: t, index: i}
}

func (t TableWalker) Indexes() []IndexWalker {
	idx := make([]IndexWalker, len(t.Table().Indices))
	for i := range idx {
		idx[i] = IndexWalker{table: t, index: i}
	}
	return idx
}

func (t TableWalker) ForeignKeys() []ForeignKeyWalker {
	fks := make([]ForeignKeyWalker, len(t.Table().ForeignKeys))
	for i := range fks {
		fks[i] = ForeignKeyWalker{table: t, index: i}
	}
	return fks
}

func (t TableWalker) ForeignKeyAt(i int) ForeignKeyWalker {
	return ForeignKeyWalker{table: t, index: i}
}

// ForeignKeyForColumn returns the first foreign key constraining the column.
func (t TableWalker) ForeignKeyForColumn(column string) *ForeignKey {
	for i, fk := range t.Table().ForeignKeys {
		for _, c := range fk.Columns {
			if c == column {
				return &t.Table().ForeignKeys[i]
			}
		}
	}
	return nil
}

func (t TableWalker) PrimaryKey() *PrimaryKey {
	return t.Table().PrimaryKey
}

func (t TableWalker) PrimaryKeyColumnNames() []string {
	if pk := t.Table().PrimaryKey; pk != nil {
		return pk.Columns
	}
	return nil
}

type ColumnWalker struct {
	table TableWalker
	index int
}

func (c ColumnWalker) Column() *Column { return &c.table.Table().Columns[c.index] }
func (c ColumnWalker) ColumnIndex() int { return c.index }
func (c ColumnWalker) Name() string { return c.Column().Name }
func (c ColumnWalker) Arity() ColumnArity { return c.Column().Type.Arity }
func (c ColumnWalker) ColumnType() ColumnType { return c.Column().Type }
func (c ColumnWalker) ColumnTypeFamily() ColumnTypeFamily { return c.Column().Type.Family }
func (c ColumnWalker) Default() *DefaultValue { return c.Column().Default }
func (c ColumnWalker) IsAutoincrement() bool { return c.Column().AutoIncrement }
func (c ColumnWalker) Table() TableWalker { return c.table }
func (c ColumnWalker) Schema() *SqlSchema { return c.table.schema }

// ColumnTypeFamilyAsEnum resolves the enum of an enum-typed column.
func (c ColumnWalker) ColumnTypeFamilyAsEnum() *Enum {
	family := c.ColumnTypeFamily()
	if !family.IsEnum() {
		return nil
	}
	return c.table.schema.Enum(family.Name)
}

func (c ColumnWalker) IsSameColumn(other ColumnWalker) bool {
	return c.Name() == other.Name() && c.table.Name() == other.table.Name()
}

// IsSinglePrimaryKey reports whether the column is the only primary key column.
func (c ColumnWalker) IsSinglePrimaryKey() bool {
	pk := c.table.PrimaryKey()
	return pk != nil && len(pk.Columns) == 1 && pk.Columns[0] == c.Name()
}

type ForeignKeyWalker struct {
	table TableWalker
	index int
}

func (f ForeignKeyWalker) ForeignKey() *ForeignKey { return &f.table.Table().ForeignKeys[f.index] }
func (f ForeignKeyWalker) ForeignKeyIndex() int { return f.index }
func (f ForeignKeyWalker) ConstraintName() string { return f.ForeignKey().ConstraintName }
func (f ForeignKeyWalker) ConstrainedColumnNames() []string { return f.ForeignKey().Columns }
func (f ForeignKeyWalker) ReferencedColumnNames() []string { return f.ForeignKey().ReferencedColumns }
func (f ForeignKeyWalker) ReferencedColumnsCount() int { return len(f.ForeignKey().ReferencedColumns) }
func (f ForeignKeyWalker) OnDeleteAction() ForeignKeyAction { return f.ForeignKey().OnDeleteAction }
func (f ForeignKeyWalker) OnUpdateAction() ForeignKeyAction { return f.ForeignKey().OnUpdateAction }
func (f ForeignKeyWalker) Table() TableWalker { return f.table }

func (f ForeignKeyWalker) ConstrainedColumns() []ColumnWalker {
	var cols []ColumnWalker
	for _, name := range f.ConstrainedColumnNames() {
		if c, ok := f.table.Column(name); ok {
			cols = append(cols, c)
		}
	}
	return cols
}

// ReferencedTable panics when the referenced table is missing from the schema;
// describers only report foreign keys to tables of the described schema.
func (f ForeignKeyWalker) ReferencedTable() TableWalker {
	t, ok := f.table.schema.WalkTable(f.ForeignKey().ReferencedTable)
	if !ok {
		panic("foreign key references unknown table " + f.ForeignKey().ReferencedTable)
	}
	return t
}

type IndexWalker struct {
	table TableWalker
	index int
}

func (i IndexWalker) Index() *Index { return &i.table.Table().Indices[i.index] }
func (i IndexWalker) Name() string { return i.Index().Name }
func (i IndexWalker) ColumnNames() []string { return i.Index().Columns }
func (i IndexWalker) IndexType() IndexType { return i.Index().Type }
func (i IndexWalker) Table() TableWalker { return i.table }

func (i IndexWalker) Columns() []ColumnWalker {
	var cols []ColumnWalker
	for _, name := range i.ColumnNames() {
		if c, ok := i.table.Column(name); ok {
			cols = append(cols, c)
		}
	}
	return cols
}
