// Package destructive checks pending schema operations against the data the
// database currently holds.
package destructive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ridoystarlord/schemaengine/describer"
	"github.com/ridoystarlord/schemaengine/diff"
	"github.com/ridoystarlord/schemaengine/flavour"
)

// Warning is a change that loses or may lose data. Step is the index of the
// operation it is about.
type Warning struct {
	Description string `json:"description"`
	Step        int    `json:"stepIndex"`
}

// UnexecutableMigration is a change the database would reject with its
// current content.
type UnexecutableMigration struct {
	Description string `json:"description"`
	Step        int    `json:"stepIndex"`
}

type Diagnostics struct {
	Warnings               []Warning               `json:"warnings"`
	UnexecutableMigrations []UnexecutableMigration `json:"unexecutableMigrations"`
}

func (d Diagnostics) HasWarnings() bool { return len(d.Warnings) > 0 }

func (d Diagnostics) IsExecutable() bool { return len(d.UnexecutableMigrations) == 0 }

type columnKey struct {
	table, column string
}

// DatabaseInspectionResults holds the row counts per table and the non-null
// value counts per column gathered for a check.
type DatabaseInspectionResults struct {
	mu          sync.Mutex
	rowCounts   map[string]int64
	valueCounts map[columnKey]int64
}

func NewDatabaseInspectionResults() *DatabaseInspectionResults {
	return &DatabaseInspectionResults{rowCounts: map[string]int64{}, valueCounts: map[columnKey]int64{}}
}

func (r *DatabaseInspectionResults) SetRowCount(table string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rowCounts[table] = n
}

func (r *DatabaseInspectionResults) SetValueCount(table, column string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valueCounts[columnKey{table, column}] = n
}

func (r *DatabaseInspectionResults) RowCount(table string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rowCounts[table]
	return n, ok
}

// NonNullValueCount returns how many rows hold a value in the column.
func (r *DatabaseInspectionResults) NonNullValueCount(table, column string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.valueCounts[columnKey{table, column}]
	return n, ok
}

// Checker queries the counts a set of operations needs and classifies the
// operations.
type Checker struct {
	db      *sql.DB
	flavour flavour.Flavour
	schema  string
	logger  *slog.Logger

	// Concurrency bounds the number of count queries in flight.
	Concurrency int
}

func NewChecker(db *sql.DB, f flavour.Flavour, schema string, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{db: db, flavour: f, schema: schema, logger: logger, Concurrency: 4}
}

// Check inspects the database and evaluates ops against what it found.
// Counts may be stale by the time the operations run.
func (c *Checker) Check(ctx context.Context, ops []diff.Operation) (Diagnostics, error) {
	results, err := c.Inspect(ctx, ops)
	if err != nil {
		return Diagnostics{}, err
	}
	d := Evaluate(ops, results)
	c.logger.Debug("destructive change check done",
		"warnings", len(d.Warnings), "unexecutable", len(d.UnexecutableMigrations))
	return d, nil
}

// Inspect runs the row and value count queries ops need.
func (c *Checker) Inspect(ctx context.Context, ops []diff.Operation) (*DatabaseInspectionResults, error) {
	tables, columns := plan(ops)
	results := NewDatabaseInspectionResults()

	g, ctx := errgroup.WithContext(ctx)
	if c.Concurrency > 0 {
		g.SetLimit(c.Concurrency)
	}
	for _, table := range tables {
		table := table
		g.Go(func() error {
			n, err := c.count(ctx, table, "")
			if err != nil {
				return err
			}
			results.SetRowCount(table, n)
			return nil
		})
	}
	for _, key := range columns {
		key := key
		g.Go(func() error {
			n, err := c.count(ctx, key.table, key.column)
			if err != nil {
				return err
			}
			results.SetValueCount(key.table, key.column, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.logger.Debug("inspected database", "tables", len(tables), "columns", len(columns))
	return results, nil
}

func (c *Checker) count(ctx context.Context, table, column string) (int64, error) {
	query := "SELECT COUNT(*) FROM " + c.qualified(table)
	if column != "" {
		query += " WHERE " + c.flavour.QuoteIdent(column) + " IS NOT NULL"
	}
	var n int64
	if err := c.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		if column != "" {
			return 0, fmt.Errorf("counting values of %s.%s: %w", table, column, err)
		}
		return 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	return n, nil
}

func (c *Checker) qualified(table string) string {
	if c.schema == "" {
		return c.flavour.QuoteIdent(table)
	}
	return c.flavour.QuoteIdent(c.schema) + "." + c.flavour.QuoteIdent(table)
}

// plan lists the tables and columns whose counts the evaluation reads.
func plan(ops []diff.Operation) ([]string, []columnKey) {
	var tables []string
	var columns []columnKey
	seenTables := map[string]bool{}
	seenColumns := map[columnKey]bool{}

	addTable := func(t string) {
		if !seenTables[t] {
			seenTables[t] = true
			tables = append(tables, t)
		}
	}
	addColumn := func(t, col string) {
		addTable(t)
		key := columnKey{t, col}
		if !seenColumns[key] {
			seenColumns[key] = true
			columns = append(columns, key)
		}
	}

	var visit func(op diff.Operation)
	visit = func(op diff.Operation) {
		switch op.Type {
		case diff.DropTable, diff.AddColumn:
			addTable(op.TableName)
		case diff.DropColumn:
			addColumn(op.TableName, op.PreviousColumn.Name)
		case diff.AlterColumn:
			addColumn(op.TableName, op.PreviousColumn.Name)
		case diff.RedefineTable:
			for _, step := range op.Steps {
				visit(step)
			}
		}
	}
	for _, op := range ops {
		visit(op)
	}
	return tables, columns
}

// Evaluate classifies ops using counts gathered beforehand. Operations whose
// counts are missing are not reported.
func Evaluate(ops []diff.Operation, results *DatabaseInspectionResults) Diagnostics {
	var d Diagnostics
	for i, op := range ops {
		if op.Type == diff.RedefineTable {
			for _, step := range op.Steps {
				evaluate(&d, i, step, results)
			}
			continue
		}
		evaluate(&d, i, op, results)
	}
	return d
}

func evaluate(d *Diagnostics, step int, op diff.Operation, results *DatabaseInspectionResults) {
	warn := func(format string, args ...any) {
		d.Warnings = append(d.Warnings, Warning{Description: fmt.Sprintf(format, args...), Step: step})
	}
	fail := func(format string, args ...any) {
		d.UnexecutableMigrations = append(d.UnexecutableMigrations, UnexecutableMigration{Description: fmt.Sprintf(format, args...), Step: step})
	}

	switch op.Type {
	case diff.DropTable:
		if rows, ok := results.RowCount(op.TableName); ok && rows > 0 {
			warn("You are about to drop the `%s` table, which is not empty (%d rows).", op.TableName, rows)
		}

	case diff.DropColumn:
		if values, ok := results.NonNullValueCount(op.TableName, op.PreviousColumn.Name); ok && values > 0 {
			warn("You are about to drop the column `%s` on the `%s` table, which still contains %d non-null values.",
				op.PreviousColumn.Name, op.TableName, values)
		}

	case diff.AddColumn:
		col := op.Column
		if !col.IsRequired() || col.Default != nil || col.AutoIncrement {
			return
		}
		if rows, ok := results.RowCount(op.TableName); ok && rows > 0 {
			fail("Added the required column `%s` to the `%s` table without a default value. There are %d rows in this table, it is not possible to execute this step.",
				col.Name, op.TableName, rows)
		}

	case diff.AlterColumn:
		evaluateAlterColumn(op, results, warn, fail)

	case diff.AlterEnum:
		var removed []string
		for _, v := range op.PreviousEnum.Values {
			if !slices.Contains(op.Enum.Values, v) {
				removed = append(removed, v)
			}
		}
		if len(removed) > 0 {
			warn("The values [%s] on the enum `%s` will be removed. If these variants are still used in the database, this will fail.",
				strings.Join(removed, ","), op.Enum.Name)
		}

	case diff.AlterPrimaryKey:
		warn("The primary key for the `%s` table will be changed. If it partially fails, the table could be left without primary key constraint.", op.TableName)
	}
}

func evaluateAlterColumn(op diff.Operation, results *DatabaseInspectionResults, warn, fail func(string, ...any)) {
	prev, next := op.PreviousColumn, op.Column
	rows, rowsKnown := results.RowCount(op.TableName)
	values, valuesKnown := results.NonNullValueCount(op.TableName, prev.Name)
	if !rowsKnown || !valuesKnown {
		return
	}

	if op.Changes.Arity && prev.Type.Arity == describer.ArityNullable && next.Type.Arity == describer.ArityRequired {
		if nulls := rows - values; nulls > 0 {
			fail("Made the column `%s` on table `%s` required, but there are %d existing NULL values.", next.Name, op.TableName, nulls)
		}
	}

	if !op.Changes.Type || values == 0 {
		return
	}
	switch op.Changes.Cast {
	case flavour.RiskyCast:
		warn("You are about to alter the column `%s` on the `%s` table, which contains %d non-null values. The data in that column will be cast from `%s` to `%s`.",
			next.Name, op.TableName, values, prev.Type.Family, next.Type.Family)
	case flavour.NotCastable:
		if next.IsRequired() && next.Default == nil {
			fail("Changed the type of `%s` on the `%s` table. No cast exists, the column would be dropped and recreated, which cannot be done since the column is required and there is data in the table.",
				next.Name, op.TableName)
			return
		}
		warn("The `%s` column on the `%s` table would be dropped and recreated. This will lead to data loss.", next.Name, op.TableName)
	}
}
