package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ridoystarlord/schemaengine/calculator"
	"github.com/ridoystarlord/schemaengine/describer"
	"github.com/ridoystarlord/schemaengine/destructive"
	"github.com/ridoystarlord/schemaengine/loader"
	"github.com/ridoystarlord/schemaengine/persistence"
	"github.com/ridoystarlord/schemaengine/schema"
	"github.com/ridoystarlord/schemaengine/steps"
	"github.com/ridoystarlord/schemaengine/usererrors"
	"github.com/ridoystarlord/schemaengine/validator"
)

// ApplyMigrationInput is a step migration: the edits that turn the data model
// of the last migration into the next one.
type ApplyMigrationInput struct {
	MigrationID string     `json:"migrationId"`
	Steps       steps.List `json:"steps"`
	// Force applies migrations that only have warnings.
	Force bool `json:"force"`
}

func (in ApplyMigrationInput) IsWatchMigration() bool {
	return strings.HasPrefix(in.MigrationID, "watch")
}

// MigrationStepsResult describes a step migration and whether it can run.
type MigrationStepsResult struct {
	Datamodel              string                              `json:"datamodel"`
	DatamodelSteps         steps.List                          `json:"datamodelSteps"`
	DatabaseSteps          []string                            `json:"databaseSteps"`
	Errors                 []string                            `json:"errors"`
	Warnings               []destructive.Warning               `json:"warnings"`
	GeneralErrors          []string                            `json:"generalErrors"`
	UnexecutableMigrations []destructive.UnexecutableMigration `json:"unexecutableMigrations"`
	Applied                bool                                `json:"applied"`
}

// databaseMigration is what the legacy table stores for the physical side.
type databaseMigration struct {
	Statements []string `json:"statements"`
}

// ApplyMigration replays the input steps onto the data model of the last
// migration and applies the resulting database change. Migrations that cannot
// run against the current data are never applied; migrations with warnings
// are only applied with Force.
//
// After watch migrations, a regular migration is replayed onto the last
// regular migration, so the watch steps are squashed into it.
func (r *Runner) ApplyMigration(ctx context.Context, in ApplyMigrationInput) (*MigrationStepsResult, error) {
	release, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := r.legacy.Init(ctx); err != nil {
		return nil, err
	}
	last, err := r.legacy.LastMigration(ctx)
	if err != nil {
		return nil, err
	}
	current, err := migrationAst(last)
	if err != nil {
		return nil, err
	}

	base := current
	if last != nil && last.IsWatchMigration() && !in.IsWatchMigration() {
		r.logger.Info("leaving watch mode", "migration", in.MigrationID, "lastWatchMigration", last.Name)
		lastRegular, err := r.legacy.LastNonWatchMigration(ctx)
		if err != nil {
			return nil, err
		}
		if base, err = migrationAst(lastRegular); err != nil {
			return nil, err
		}
	} else {
		applied, err := r.legacy.IsApplied(ctx, in.MigrationID)
		if err != nil {
			return nil, err
		}
		if applied {
			return nil, fmt.Errorf("Invariant violation: the migration with id `%s` has already been applied: %w",
				in.MigrationID, usererrors.MigrationAlreadyApplied(in.MigrationID))
		}
	}

	next, err := steps.Apply(base, in.Steps)
	if err != nil {
		return nil, fmt.Errorf("applying steps of %s: %w", in.MigrationID, err)
	}
	currentSchema, err := r.physical(current)
	if err != nil {
		return nil, fmt.Errorf("persisted data model: %w", err)
	}
	nextSchema, err := r.physical(next)
	if err != nil {
		return nil, err
	}
	plan, err := r.plan(currentSchema, nextSchema, nil)
	if err != nil {
		return nil, err
	}
	datamodel, err := loader.RenderSchema(next)
	if err != nil {
		return nil, err
	}
	diagnostics, err := r.checker().Check(ctx, plan.Operations)
	if err != nil {
		return nil, err
	}

	result := &MigrationStepsResult{
		Datamodel:              datamodel,
		DatamodelSteps:         in.Steps,
		DatabaseSteps:          nonNil(plan.Up),
		Errors:                 []string{},
		Warnings:               nonNil(diagnostics.Warnings),
		GeneralErrors:          []string{},
		UnexecutableMigrations: nonNil(diagnostics.UnexecutableMigrations),
	}
	switch {
	case !diagnostics.IsExecutable():
		r.logger.Warn("migration is not executable", "migration", in.MigrationID, "reasons", len(diagnostics.UnexecutableMigrations))
		return result, nil
	case diagnostics.HasWarnings() && !in.Force:
		r.logger.Warn("migration has warnings, not applied without force", "migration", in.MigrationID)
		return result, nil
	}

	if err := r.runStepMigration(ctx, in, datamodel, plan.Up); err != nil {
		return nil, err
	}
	result.Applied = true
	return result, nil
}

func (r *Runner) runStepMigration(ctx context.Context, in ApplyMigrationInput, datamodel string, statements []string) error {
	payload, err := json.Marshal(databaseMigration{Statements: nonNil(statements)})
	if err != nil {
		return err
	}
	m := persistence.NewMigration(in.MigrationID, r.Now())
	m.Datamodel = datamodel
	m.DatamodelSteps = in.Steps
	m.DatabaseMigration = payload
	m.Status = persistence.StatusMigrationInProgress
	m, err = r.legacy.Create(ctx, m)
	if err != nil {
		return err
	}

	done, execErr := execScript(ctx, r.conn.DB, statements)
	update := m.UpdateParams()
	update.Applied = done
	finished := r.Now()
	update.FinishedAt = &finished
	if execErr != nil {
		update.Status = persistence.StatusMigrationFailure
		update.Errors = []string{execErr.Error()}
		if err := r.legacy.Update(ctx, update); err != nil {
			r.logger.Error("recording failed step migration", "migration", m.Name, "error", err)
		}
		return fmt.Errorf("applying migration %s: %w", m.Name, execErr)
	}
	update.Status = persistence.StatusMigrationSuccess
	if err := r.legacy.Update(ctx, update); err != nil {
		return err
	}
	r.logger.Info("step migration applied", "migration", m.Name, "revision", m.Revision, "statements", done)
	return nil
}

// physical returns the database schema a data model maps to.
func (r *Runner) physical(ast *schema.SchemaAst) (*describer.SqlSchema, error) {
	res := validator.NewSchemaValidator(r.flavour).ValidateSchema(ast)
	if !res.Valid {
		return nil, usererrors.SchemaValidationFailed(res.Messages())
	}
	return calculator.Calculate(res.Datamodel, r.flavour), nil
}

func migrationAst(m *persistence.Migration) (*schema.SchemaAst, error) {
	if m == nil {
		return &schema.SchemaAst{}, nil
	}
	return m.SchemaAst()
}

// ListedMigration is one step migration as reported by ListMigrations.
type ListedMigration struct {
	ID             string                      `json:"id"`
	DatamodelSteps steps.List                  `json:"datamodelSteps"`
	DatabaseSteps  []string                    `json:"databaseSteps"`
	Status         persistence.MigrationStatus `json:"status"`
	Datamodel      string                      `json:"datamodel"`
}

// ListMigrations returns every step migration in revision order.
func (r *Runner) ListMigrations(ctx context.Context) ([]ListedMigration, error) {
	if err := r.legacy.Init(ctx); err != nil {
		return nil, err
	}
	all, err := r.legacy.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ListedMigration, 0, len(all))
	for _, m := range all {
		var dbm databaseMigration
		if len(m.DatabaseMigration) > 0 {
			if err := json.Unmarshal(m.DatabaseMigration, &dbm); err != nil {
				return nil, fmt.Errorf("decoding database steps of %s: %w", m.Name, err)
			}
		}
		out = append(out, ListedMigration{
			ID:             m.Name,
			DatamodelSteps: m.DatamodelSteps,
			DatabaseSteps:  nonNil(dbm.Statements),
			Status:         m.Status,
			Datamodel:      m.Datamodel,
		})
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
