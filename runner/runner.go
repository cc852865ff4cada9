// Package runner applies the migrations directory to a database and keeps
// the migration history consistent with it.
package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ridoystarlord/schemaengine/calculator"
	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/describer"
	"github.com/ridoystarlord/schemaengine/destructive"
	"github.com/ridoystarlord/schemaengine/diff"
	"github.com/ridoystarlord/schemaengine/flavour"
	"github.com/ridoystarlord/schemaengine/generator"
	"github.com/ridoystarlord/schemaengine/persistence"
	"github.com/ridoystarlord/schemaengine/schema"
	"github.com/ridoystarlord/schemaengine/usererrors"
	"github.com/ridoystarlord/schemaengine/validator"
)

const lockKey = "schemaengine_migrations"

type Options struct {
	// MigrationsDir holds the {name}.sql migration files.
	MigrationsDir string
	// ShadowURL is the database used to replay migrations when diagnosing
	// drift. SQLite always uses a private in-memory database.
	ShadowURL string
	Logger    *slog.Logger
}

// Runner runs migration commands against one database. Commands that write
// take the migration lock of the connection.
type Runner struct {
	conn    *database.Connection
	flavour flavour.Flavour
	store   *persistence.Store
	legacy  *persistence.LegacyStore
	dir     string
	shadow  string
	logger  *slog.Logger

	Now func() time.Time
}

func New(conn *database.Connection, f flavour.Flavour, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dir := opts.MigrationsDir
	if dir == "" {
		dir = "migrations"
	}
	store := persistence.NewStore(conn, f, logger)
	r := &Runner{
		conn:    conn,
		flavour: f,
		store:   store,
		legacy:  persistence.NewLegacyStore(conn, f, logger),
		dir:     dir,
		shadow:  opts.ShadowURL,
		logger:  logger,
		Now:     time.Now,
	}
	store.Now = func() time.Time { return r.Now() }
	return r
}

func (r *Runner) MigrationsDir() string { return r.dir }

func (r *Runner) lock(ctx context.Context) (func(), error) {
	release, err := r.conn.Locker().Acquire(ctx, lockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	return release, nil
}

// history lists the recorded migrations, treating a missing table as an
// empty history.
func (r *Runner) history(ctx context.Context) ([]persistence.MigrationRecord, error) {
	records, err := r.store.ListMigrations(ctx)
	if errors.Is(err, persistence.ErrNotInitialized) {
		return nil, nil
	}
	return records, err
}

func failedNames(records []persistence.MigrationRecord) []string {
	var out []string
	for _, m := range records {
		if m.IsFailed() {
			out = append(out, m.MigrationName)
		}
	}
	return out
}

func appliedSet(records []persistence.MigrationRecord) map[string]bool {
	out := map[string]bool{}
	for _, m := range records {
		if m.IsApplied() {
			out[m.MigrationName] = true
		}
	}
	return out
}

// Pending returns the migrations of the directory that are not applied.
func (r *Runner) Pending(ctx context.Context) ([]MigrationFile, error) {
	records, err := r.history(ctx)
	if err != nil {
		return nil, err
	}
	files, err := ReadMigrationsDirectory(r.dir)
	if err != nil {
		return nil, err
	}
	applied := appliedSet(records)
	var pending []MigrationFile
	for _, f := range files {
		if !applied[f.Name] {
			pending = append(pending, f)
		}
	}
	return pending, nil
}

// Apply applies every pending migration in name order and returns the names
// it applied. It refuses to run while a failed migration is recorded.
func (r *Runner) Apply(ctx context.Context) ([]string, error) {
	release, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := r.store.Initialize(ctx); err != nil {
		return nil, err
	}
	records, err := r.store.ListMigrations(ctx)
	if err != nil {
		return nil, err
	}
	if failed := failedNames(records); len(failed) > 0 {
		return nil, usererrors.FailedMigrationsPresent(failed)
	}

	pending, err := r.Pending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		r.logger.Info("no pending migrations")
		return nil, nil
	}

	var applied []string
	for _, m := range pending {
		if err := r.applyOne(ctx, m); err != nil {
			return applied, err
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}

func (r *Runner) applyOne(ctx context.Context, m MigrationFile) error {
	start := time.Now()
	r.logger.Info("applying migration", "name", m.Name)

	id, err := r.store.RecordMigrationStarted(ctx, m.Name, m.Up)
	if err != nil {
		return err
	}
	statements := SplitStatements(m.Up)
	done, execErr := execScript(ctx, r.conn.DB, statements)
	if execErr != nil {
		logs := fmt.Sprintf("applied %d of %d statements: %v", done, len(statements), execErr)
		if err := r.store.RecordFailedStep(ctx, id, logs); err != nil {
			r.logger.Error("recording failed migration", "name", m.Name, "error", err)
		}
		r.logger.Error("migration failed", "name", m.Name, "error", execErr)
		return fmt.Errorf("executing migration %s: %w", m.Name, execErr)
	}

	logs := fmt.Sprintf("applied %d statements in %s", done, time.Since(start).Round(time.Millisecond))
	if err := r.store.RecordSuccessfulStep(ctx, id, logs); err != nil {
		return err
	}
	if err := r.store.RecordMigrationFinished(ctx, id); err != nil {
		return err
	}
	r.logger.Info("migration applied", "name", m.Name, "statements", done, "duration", time.Since(start))
	return nil
}

// Rollback runs the down scripts of the last n applied migrations, newest
// first, and returns the names it rolled back.
func (r *Runner) Rollback(ctx context.Context, n int) ([]string, error) {
	release, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	applied, err := r.store.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	files, err := ReadMigrationsDirectory(r.dir)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]MigrationFile, len(files))
	for _, f := range files {
		byName[f.Name] = f
	}

	var rolledBack []string
	for i := len(applied) - 1; i >= 0 && len(rolledBack) < n; i-- {
		rec := applied[i]
		file, ok := byName[rec.MigrationName]
		if !ok {
			return rolledBack, fmt.Errorf("migration file for %s not found in %s", rec.MigrationName, r.dir)
		}
		r.logger.Info("rolling back migration", "name", rec.MigrationName)
		if _, err := execScript(ctx, r.conn.DB, SplitStatements(file.Down)); err != nil {
			return rolledBack, fmt.Errorf("executing rollback for %s: %w", rec.MigrationName, err)
		}
		if err := r.store.RecordRolledBack(ctx, rec.ID); err != nil {
			return rolledBack, err
		}
		rolledBack = append(rolledBack, rec.MigrationName)
	}
	return rolledBack, nil
}

// ResolveFailed marks the failed runs of a migration as rolled back so that
// Apply runs it again.
func (r *Runner) ResolveFailed(ctx context.Context, name string) error {
	release, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	records, err := r.store.ListMigrations(ctx)
	if err != nil {
		return err
	}
	resolved := 0
	for _, m := range records {
		if m.MigrationName == name && m.IsFailed() {
			if err := r.store.RecordRolledBack(ctx, m.ID); err != nil {
				return err
			}
			resolved++
		}
	}
	if resolved == 0 {
		return fmt.Errorf("no failed migration named %s", name)
	}
	return nil
}

type Status struct {
	Initialized bool
	Applied     []string
	Pending     []string
	Failed      []persistence.MigrationRecord
}

func (r *Runner) Status(ctx context.Context) (*Status, error) {
	records, err := r.store.ListMigrations(ctx)
	initialized := true
	if errors.Is(err, persistence.ErrNotInitialized) {
		initialized = false
	} else if err != nil {
		return nil, err
	}

	st := &Status{Initialized: initialized}
	for _, m := range records {
		switch {
		case m.IsApplied():
			st.Applied = append(st.Applied, m.MigrationName)
		case m.IsFailed():
			st.Failed = append(st.Failed, m)
		}
	}
	pending, err := r.Pending(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range pending {
		st.Pending = append(st.Pending, f.Name)
	}
	return st, nil
}

// History returns the recorded migrations newest first. limit <= 0 returns
// all of them.
func (r *Runner) History(ctx context.Context, limit int) ([]persistence.MigrationRecord, error) {
	records, err := r.history(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]persistence.MigrationRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Plan is the physical change between two schemas, rendered both ways.
type Plan struct {
	Operations []diff.Operation
	Up         []string
	Down       []string
	Warnings   []validator.ValidationError
}

func (p *Plan) IsEmpty() bool { return len(p.Operations) == 0 }

// PlanSchema validates ast and computes the operations that turn the live
// database into it.
func (r *Runner) PlanSchema(ctx context.Context, ast *schema.SchemaAst) (*Plan, error) {
	res := validator.NewSchemaValidator(r.flavour).ValidateSchema(ast)
	if !res.Valid {
		return nil, usererrors.SchemaValidationFailed(res.Messages())
	}
	live, err := r.describe(ctx, r.conn)
	if err != nil {
		return nil, err
	}
	return r.plan(live, calculator.Calculate(res.Datamodel, r.flavour), res.Warnings)
}

func (r *Runner) plan(current, target *describer.SqlSchema, warnings []validator.ValidationError) (*Plan, error) {
	ops := diff.DiffSchemas(current, target, r.flavour)
	up, err := generator.Render(ops, r.flavour)
	if err != nil {
		return nil, err
	}
	down, err := generator.RenderRollback(ops, r.flavour)
	if err != nil {
		return nil, err
	}
	return &Plan{Operations: ops, Up: up, Down: down, Warnings: warnings}, nil
}

// PlanMigration validates ast and computes the operations that turn the
// schema the migrations directory produces into it.
func (r *Runner) PlanMigration(ctx context.Context, ast *schema.SchemaAst) (*Plan, error) {
	res := validator.NewSchemaValidator(r.flavour).ValidateSchema(ast)
	if !res.Valid {
		return nil, usererrors.SchemaValidationFailed(res.Messages())
	}
	current, err := r.directorySchema(ctx)
	if err != nil {
		return nil, err
	}
	return r.plan(current, calculator.Calculate(res.Datamodel, r.flavour), res.Warnings)
}

// Generate writes a migration file for the plan of PlanMigration. It writes
// nothing when there is no change and returns an empty path.
func (r *Runner) Generate(ctx context.Context, ast *schema.SchemaAst, description string) (string, *Plan, error) {
	plan, err := r.PlanMigration(ctx, ast)
	if err != nil {
		return "", nil, err
	}
	if plan.IsEmpty() {
		return "", plan, nil
	}
	name := generator.MigrationName(r.Now(), description)
	path, err := generator.WriteMigrationFile(r.dir, name, plan.Up, plan.Down)
	if err != nil {
		return "", nil, err
	}
	r.logger.Info("generated migration", "name", name, "operations", len(plan.Operations))
	return path, plan, nil
}

// directorySchema replays every migration of the directory on a shadow
// database and describes the result.
func (r *Runner) directorySchema(ctx context.Context) (*describer.SqlSchema, error) {
	files, err := ReadMigrationsDirectory(r.dir)
	if err != nil {
		return nil, err
	}
	return r.replay(ctx, files, nil)
}

// replay applies the up scripts of files accepted by keep (all of them when
// keep is nil) on a shadow database and describes it.
func (r *Runner) replay(ctx context.Context, files []MigrationFile, keep func(MigrationFile) bool) (*describer.SqlSchema, error) {
	shadow, cleanup, err := r.flavour.CreateShadowDatabase(ctx, r.conn, r.shadow)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	for _, f := range files {
		if keep != nil && !keep(f) {
			continue
		}
		if _, err := execScript(ctx, shadow.DB, SplitStatements(f.Up)); err != nil {
			return nil, usererrors.MigrationDoesNotApplyCleanly(f.Name, err)
		}
	}
	return r.describe(ctx, shadow)
}

// Check runs the destructive change checker over the plan for ast.
func (r *Runner) Check(ctx context.Context, ast *schema.SchemaAst) (*Plan, destructive.Diagnostics, error) {
	plan, err := r.PlanSchema(ctx, ast)
	if err != nil {
		return nil, destructive.Diagnostics{}, err
	}
	d, err := r.checker().Check(ctx, plan.Operations)
	return plan, d, err
}

func (r *Runner) checker() *destructive.Checker {
	return destructive.NewChecker(r.conn.DB, r.flavour, r.conn.Schema, r.logger)
}

// describe returns the schema of conn without the migration tables.
func (r *Runner) describe(ctx context.Context, conn *database.Connection) (*describer.SqlSchema, error) {
	s, err := r.flavour.Describer(conn).Describe(ctx, conn.Schema)
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", conn.Schema, err)
	}
	return s.WithoutTables(persistence.ImperativeTableName, persistence.LegacyTableName), nil
}

// execScript runs statements in order on one connection, so session settings
// such as SQLite pragmas hold for the whole script. It returns how many
// statements succeeded.
func execScript(ctx context.Context, db *sql.DB, statements []string) (int, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	for i, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return i, fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return len(statements), nil
}
