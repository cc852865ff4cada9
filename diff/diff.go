// Package diff compares two physical schemas and lists the operations that
// turn the first into the second.
package diff

import (
	"slices"

	"github.com/ridoystarlord/schemaengine/describer"
	"github.com/ridoystarlord/schemaengine/flavour"
)

type OperationType string

const (
	CreateEnum     OperationType = "CREATE_ENUM"
	AlterEnum      OperationType = "ALTER_ENUM"
	DropEnum       OperationType = "DROP_ENUM"
	CreateTable    OperationType = "CREATE_TABLE"
	DropTable      OperationType = "DROP_TABLE"
	RedefineTable  OperationType = "REDEFINE_TABLE"
	AddColumn      OperationType = "ADD_COLUMN"
	DropColumn     OperationType = "DROP_COLUMN"
	AlterColumn    OperationType = "ALTER_COLUMN"
	AddForeignKey  OperationType = "ADD_FOREIGN_KEY"
	DropForeignKey OperationType = "DROP_FOREIGN_KEY"
	CreateIndex    OperationType = "CREATE_INDEX"
	DropIndex      OperationType = "DROP_INDEX"
	RenameIndex    OperationType = "RENAME_INDEX"

	// AlterPrimaryKey replaces the primary key of PreviousTable with the one
	// of Table.
	AlterPrimaryKey OperationType = "ALTER_PRIMARY_KEY"
)

// ColumnChanges tells what differs between two versions of a column.
type ColumnChanges struct {
	Type    bool
	Arity   bool
	Default bool
	// Cast classifies the type change; it is meaningful when Type is set.
	Cast flavour.ColumnTypeChange
}

// ColumnRef names a column of a table.
type ColumnRef struct {
	Table  string
	Column string
}

// Operation is one change to the physical schema. Previous values are kept so
// the change can be reverted and checked against existing data.
type Operation struct {
	Type      OperationType
	TableName string

	// Table is the new definition for CREATE_TABLE and REDEFINE_TABLE and the
	// dropped one for DROP_TABLE. PreviousTable is the definition a
	// REDEFINE_TABLE replaces.
	Table         *describer.Table
	PreviousTable *describer.Table

	Column         *describer.Column
	PreviousColumn *describer.Column
	Changes        ColumnChanges

	ForeignKey *describer.ForeignKey

	Index         *describer.Index
	PreviousIndex *describer.Index

	Enum         *describer.Enum
	PreviousEnum *describer.Enum
	// EnumUsages are the columns of the new schema typed with the enum.
	EnumUsages []ColumnRef

	// Enums resolves the enum families of the columns the operation creates,
	// PreviousEnums those of the columns it removes or replaces.
	Enums         []describer.Enum
	PreviousEnums []describer.Enum

	// IncludeConstraints makes a CREATE_TABLE create the indexes and foreign
	// keys of Table as well. The differ emits those as operations of their
	// own; recreating a dropped table does not.
	IncludeConstraints bool

	// Steps describes the column changes folded into a REDEFINE_TABLE.
	Steps []Operation
}

// FindEnum returns the enum with the given name among the new enums of the
// operation, or nil.
func (op *Operation) FindEnum(name string) *describer.Enum {
	return findEnum(op.Enums, name)
}

// FindPreviousEnum is FindEnum for the enums of the previous schema.
func (op *Operation) FindPreviousEnum(name string) *describer.Enum {
	return findEnum(op.PreviousEnums, name)
}

func findEnum(enums []describer.Enum, name string) *describer.Enum {
	for i := range enums {
		if enums[i].Name == name {
			return &enums[i]
		}
	}
	return nil
}

// Invert returns the operations undoing ops, in the order they must run.
func Invert(ops []Operation) []Operation {
	out := make([]Operation, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		out = append(out, ops[i].inverse())
	}
	return out
}

func (op Operation) inverse() Operation {
	inv := op
	inv.Table, inv.PreviousTable = op.PreviousTable, op.Table
	inv.Column, inv.PreviousColumn = op.PreviousColumn, op.Column
	inv.Index, inv.PreviousIndex = op.PreviousIndex, op.Index
	inv.Enum, inv.PreviousEnum = op.PreviousEnum, op.Enum
	inv.Enums, inv.PreviousEnums = op.PreviousEnums, op.Enums

	switch op.Type {
	case CreateEnum:
		inv.Type, inv.Enum, inv.PreviousEnum = DropEnum, op.Enum, nil
	case DropEnum:
		inv.Type, inv.Enum, inv.PreviousEnum = CreateEnum, op.Enum, nil
	case CreateTable:
		inv.Type, inv.Table, inv.PreviousTable = DropTable, op.Table, nil
		inv.PreviousEnums, inv.Enums = op.Enums, nil
	case DropTable:
		inv.Type, inv.Table, inv.PreviousTable = CreateTable, op.Table, nil
		inv.Enums, inv.PreviousEnums = op.PreviousEnums, nil
		inv.IncludeConstraints = true
	case AddColumn:
		inv.Type = DropColumn
	case DropColumn:
		inv.Type = AddColumn
	case AddForeignKey:
		inv.Type = DropForeignKey
	case DropForeignKey:
		inv.Type = AddForeignKey
	case CreateIndex:
		inv.Type = DropIndex
	case DropIndex:
		inv.Type = CreateIndex
	case RedefineTable:
		inv.Steps = Invert(op.Steps)
	}
	return inv
}

// DiffSchemas returns the operations turning previous into next, ordered so
// they can run one after the other: enums first, then dropped constraints,
// tables and columns, then new indexes and foreign keys, and unused enums last.
func DiffSchemas(previous, next *describer.SqlSchema, f flavour.Flavour) []Operation {
	if previous == nil {
		previous = &describer.SqlSchema{}
	}
	if next == nil {
		next = &describer.SqlSchema{}
	}
	d := differ{previous: previous, next: next, flavour: f}

	var (
		createEnums, dropEnums      []Operation
		dropFKs, dropIndexes        []Operation
		createTables, dropTables    []Operation
		redefines, columns          []Operation
		createIndexes, renameIndexs []Operation
		addFKs                      []Operation
	)

	if f.EnumStrategy() == flavour.EnumNative {
		createEnums, dropEnums = d.enums()
	}

	for _, nt := range next.WalkTables() {
		table := nt.Table()
		pt, ok := previous.WalkTable(table.Name)
		if !ok {
			createTables = append(createTables, Operation{Type: CreateTable, TableName: table.Name, Table: table, Enums: d.enumsOf(next, table.Columns)})
			for i := range table.Indices {
				createIndexes = append(createIndexes, Operation{Type: CreateIndex, TableName: table.Name, Index: &table.Indices[i]})
			}
			if f.SupportsAlterColumn() {
				for i := range table.ForeignKeys {
					addFKs = append(addFKs, Operation{Type: AddForeignKey, TableName: table.Name, ForeignKey: &table.ForeignKeys[i]})
				}
			}
			continue
		}

		tc := d.tableChanges(pt, nt)
		if tc.redefine {
			redefines = append(redefines, Operation{
				Type:          RedefineTable,
				TableName:     table.Name,
				Table:         table,
				PreviousTable: pt.Table(),
				Enums:         d.enumsOf(next, table.Columns),
				PreviousEnums: d.enumsOf(previous, pt.Table().Columns),
				Steps:         tc.columns,
			})
			continue
		}
		columns = append(columns, tc.columns...)
		dropFKs = append(dropFKs, tc.dropFKs...)
		addFKs = append(addFKs, tc.addFKs...)
		dropIndexes = append(dropIndexes, tc.dropIndexes...)
		createIndexes = append(createIndexes, tc.createIndexes...)
		renameIndexs = append(renameIndexs, tc.renameIndexes...)
	}

	for _, pt := range previous.WalkTables() {
		if next.HasTable(pt.Name()) {
			continue
		}
		dropTables = append(dropTables, Operation{Type: DropTable, TableName: pt.Name(), Table: pt.Table(), PreviousEnums: d.enumsOf(previous, pt.Table().Columns)})
		// Constraints of other surviving tables pointing here are dropped by
		// tableChanges; the table's own constraints go with it.
	}

	var ops []Operation
	for _, group := range [][]Operation{
		createEnums, dropFKs, dropIndexes, createTables, redefines, columns,
		dropTables, createIndexes, renameIndexs, addFKs, dropEnums,
	} {
		ops = append(ops, group...)
	}
	return ops
}

type differ struct {
	previous, next *describer.SqlSchema
	flavour        flavour.Flavour
}

// enums diffs native enums. Altered enums are emitted with the created ones
// so columns can use new values right away.
func (d *differ) enums() (create, drop []Operation) {
	for i := range d.next.Enums {
		e := &d.next.Enums[i]
		prev := d.previous.Enum(e.Name)
		switch {
		case prev == nil:
			create = append(create, Operation{Type: CreateEnum, Enum: e})
		case !slices.Equal(prev.Values, e.Values):
			create = append(create, Operation{Type: AlterEnum, Enum: e, PreviousEnum: prev, EnumUsages: enumUsages(d.next, e.Name)})
		}
	}
	for i := range d.previous.Enums {
		e := &d.previous.Enums[i]
		if d.next.Enum(e.Name) == nil {
			drop = append(drop, Operation{Type: DropEnum, Enum: e})
		}
	}
	return create, drop
}

func enumUsages(s *describer.SqlSchema, name string) []ColumnRef {
	var out []ColumnRef
	for _, c := range s.WalkColumns() {
		if f := c.ColumnTypeFamily(); f.IsEnum() && f.Name == name {
			out = append(out, ColumnRef{Table: c.Table().Name(), Column: c.Name()})
		}
	}
	return out
}

func (d *differ) enumsOf(s *describer.SqlSchema, columns []describer.Column) []describer.Enum {
	var out []describer.Enum
	for _, c := range columns {
		if !c.Type.Family.IsEnum() {
			continue
		}
		if e := s.Enum(c.Type.Family.Name); e != nil && !slices.ContainsFunc(out, func(x describer.Enum) bool { return x.Name == e.Name }) {
			out = append(out, *e)
		}
	}
	return out
}

type tableChanges struct {
	redefine      bool
	columns       []Operation
	dropFKs       []Operation
	addFKs        []Operation
	dropIndexes   []Operation
	createIndexes []Operation
	renameIndexes []Operation
}

func (d *differ) tableChanges(pt, nt describer.TableWalker) tableChanges {
	var tc tableChanges
	name := nt.Name()
	needsRedefine := false

	for _, nc := range nt.Columns() {
		pc, ok := pt.Column(nc.Name())
		if !ok {
			col := nc.Column()
			tc.columns = append(tc.columns, Operation{Type: AddColumn, TableName: name, Column: col, Enums: d.enumsOf(d.next, []describer.Column{*col})})
			if !d.flavour.SupportsAlterColumn() && (col.IsRequired() && col.Default == nil || nt.ForeignKeyForColumn(col.Name) != nil) {
				needsRedefine = true
			}
			continue
		}
		if changes, changed := d.columnChanges(pc, nc); changed {
			tc.columns = append(tc.columns, Operation{
				Type:           AlterColumn,
				TableName:      name,
				Column:         nc.Column(),
				PreviousColumn: pc.Column(),
				Changes:        changes,
				Enums:          d.enumsOf(d.next, []describer.Column{*nc.Column()}),
				PreviousEnums:  d.enumsOf(d.previous, []describer.Column{*pc.Column()}),
			})
			if !d.flavour.SupportsAlterColumn() {
				needsRedefine = true
			}
		}
	}
	for _, pc := range pt.Columns() {
		if _, ok := nt.Column(pc.Name()); !ok {
			tc.columns = append(tc.columns, Operation{Type: DropColumn, TableName: name, PreviousColumn: pc.Column(), PreviousEnums: d.enumsOf(d.previous, []describer.Column{*pc.Column()})})
			if !d.flavour.SupportsAlterColumn() && (pt.ForeignKeyForColumn(pc.Name()) != nil || pt.Table().IsColumnPrimaryKey(pc.Name()) || isIndexed(pt.Table(), pc.Name())) {
				needsRedefine = true
			}
		}
	}

	if !slices.Equal(pt.PrimaryKeyColumnNames(), nt.PrimaryKeyColumnNames()) {
		if d.flavour.SupportsAlterColumn() {
			tc.columns = append(tc.columns, Operation{Type: AlterPrimaryKey, TableName: name, Table: nt.Table(), PreviousTable: pt.Table()})
		} else {
			needsRedefine = true
		}
	}

	for _, fk := range pt.ForeignKeys() {
		if !containsForeignKey(nt.Table().ForeignKeys, fk.ForeignKey()) {
			tc.dropFKs = append(tc.dropFKs, Operation{Type: DropForeignKey, TableName: name, ForeignKey: fk.ForeignKey()})
			if !d.flavour.SupportsAlterColumn() {
				needsRedefine = true
			}
		}
	}
	for _, fk := range nt.ForeignKeys() {
		if !containsForeignKey(pt.Table().ForeignKeys, fk.ForeignKey()) {
			tc.addFKs = append(tc.addFKs, Operation{Type: AddForeignKey, TableName: name, ForeignKey: fk.ForeignKey()})
			if !d.flavour.SupportsAlterColumn() {
				needsRedefine = true
			}
		}
	}

	if needsRedefine {
		// The column steps are kept for the destructive checks.
		return tableChanges{redefine: true, columns: tc.columns}
	}

	d.indexChanges(&tc, pt, nt)
	return tc
}

func isIndexed(t *describer.Table, column string) bool {
	for _, idx := range t.Indices {
		if slices.Contains(idx.Columns, column) {
			return true
		}
	}
	return false
}

func containsForeignKey(fks []describer.ForeignKey, fk *describer.ForeignKey) bool {
	return slices.ContainsFunc(fks, func(other describer.ForeignKey) bool {
		return fk.Equal(&other) && fk.OnDeleteAction == other.OnDeleteAction && fk.OnUpdateAction == other.OnUpdateAction
	})
}

func (d *differ) indexChanges(tc *tableChanges, pt, nt describer.TableWalker) {
	name := nt.Name()
	matched := map[string]bool{}
	var created []*describer.Index

	for _, ni := range nt.Indexes() {
		idx := ni.Index()
		prev := pt.Table().Index(idx.Name)
		switch {
		case prev == nil:
			created = append(created, idx)
		case sameIndex(prev, idx):
			matched[prev.Name] = true
		default:
			matched[prev.Name] = true
			tc.dropIndexes = append(tc.dropIndexes, Operation{Type: DropIndex, TableName: name, PreviousIndex: prev})
			tc.createIndexes = append(tc.createIndexes, Operation{Type: CreateIndex, TableName: name, Index: idx})
		}
	}

	for _, idx := range created {
		var renamed *describer.Index
		for _, pi := range pt.Indexes() {
			prev := pi.Index()
			if matched[prev.Name] || nt.Table().Index(prev.Name) != nil || !sameIndex(prev, idx) {
				continue
			}
			if d.flavour.IndexShouldBeRenamed(prev, idx) {
				renamed = prev
				break
			}
		}
		if renamed != nil && d.flavour.RenameIndexSQL(name, renamed.Name, idx.Name) != "" {
			matched[renamed.Name] = true
			tc.renameIndexes = append(tc.renameIndexes, Operation{Type: RenameIndex, TableName: name, Index: idx, PreviousIndex: renamed})
			continue
		}
		tc.createIndexes = append(tc.createIndexes, Operation{Type: CreateIndex, TableName: name, Index: idx})
	}

	for _, pi := range pt.Indexes() {
		prev := pi.Index()
		if !matched[prev.Name] && nt.Table().Index(prev.Name) == nil {
			tc.dropIndexes = append(tc.dropIndexes, Operation{Type: DropIndex, TableName: name, PreviousIndex: prev})
		}
	}
}

func sameIndex(a, b *describer.Index) bool {
	return a.Type == b.Type && slices.Equal(a.Columns, b.Columns)
}

// columnChanges compares two versions of a column. Defaults of
// auto-increment columns are owned by the database and are not compared.
func (d *differ) columnChanges(prev, next describer.ColumnWalker) (ColumnChanges, bool) {
	var c ColumnChanges
	c.Cast, c.Type = d.flavour.ColumnTypeChange(prev, next)
	// Values of a shared enum type change through ALTER_ENUM, or not at all
	// when enums are stored as text.
	if c.Type && d.flavour.EnumStrategy() != flavour.EnumInline && prev.ColumnTypeFamily() == next.ColumnTypeFamily() {
		c.Type, c.Cast = false, flavour.SafeCast
	}
	if !c.Type && prev.IsAutoincrement() != next.IsAutoincrement() {
		c.Type = true
		c.Cast = flavour.SafeCast
	}
	if pn, nn := prev.ColumnType().NativeType, next.ColumnType().NativeType; !c.Type && pn != "" && nn != "" && pn != nn {
		c.Type = true
		c.Cast = flavour.RiskyCast
	}
	c.Arity = prev.Arity() != next.Arity()
	if !prev.IsAutoincrement() && !next.IsAutoincrement() {
		c.Default = !defaultsEqual(prev.Default(), next.Default())
	}
	return c, c.Type || c.Arity || c.Default
}

func defaultsEqual(a, b *describer.DefaultValue) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	// Generated expressions are normalised differently by each database.
	if a.Kind == describer.DefaultKindDbGenerated || a.Kind == describer.DefaultKindNow {
		return true
	}
	return a.Value == b.Value
}
