package runner

import (
	"context"
	"fmt"
	"slices"

	"github.com/ridoystarlord/schemaengine/describer"
	"github.com/ridoystarlord/schemaengine/diff"
	"github.com/ridoystarlord/schemaengine/generator"
	"github.com/ridoystarlord/schemaengine/persistence"
)

type HistoryDiagnosticKind string

const (
	DatabaseIsBehind            HistoryDiagnosticKind = "DatabaseIsBehind"
	MigrationsDirectoryIsBehind HistoryDiagnosticKind = "MigrationsDirectoryIsBehind"
	HistoriesDiverge            HistoryDiagnosticKind = "HistoriesDiverge"
)

// HistoryDiagnostic compares the migrations directory with the recorded
// history. Only the fields of its Kind are set.
type HistoryDiagnostic struct {
	Kind                      HistoryDiagnosticKind `json:"diagnostic"`
	UnappliedMigrationNames   []string              `json:"unappliedMigrationNames,omitempty"`
	UnpersistedMigrationNames []string              `json:"unpersistedMigrationNames,omitempty"`
	LastCommonMigrationName   string                `json:"lastCommonMigrationName,omitempty"`
}

const DriftDetected = "DriftDetected"

// DriftDiagnostic reports that the live schema differs from the schema the
// applied migrations produce. Statements would bring the live schema back.
type DriftDiagnostic struct {
	Kind       string   `json:"diagnostic"`
	Statements []string `json:"statements"`
}

type DiagnoseOutput struct {
	Drift                *DriftDiagnostic   `json:"drift"`
	History              *HistoryDiagnostic `json:"history"`
	FailedMigrationNames []string           `json:"failedMigrationNames"`
	EditedMigrationNames []string           `json:"editedMigrationNames"`
}

func (o *DiagnoseOutput) IsEmpty() bool {
	return o.Drift == nil && o.History == nil && len(o.FailedMigrationNames) == 0 && len(o.EditedMigrationNames) == 0
}

// DiagnoseMigrationHistory compares the migrations directory, the recorded
// history and the live schema. The findings are independent of each other.
// A migration that does not replay cleanly on the shadow database is an
// error, not a finding.
func (r *Runner) DiagnoseMigrationHistory(ctx context.Context) (*DiagnoseOutput, error) {
	out := &DiagnoseOutput{FailedMigrationNames: []string{}, EditedMigrationNames: []string{}}

	files, err := ReadMigrationsDirectory(r.dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return out, nil
	}
	records, err := r.history(ctx)
	if err != nil {
		return nil, err
	}

	var persisted []persistence.MigrationRecord
	for _, m := range records {
		if m.RolledBackAt == nil {
			persisted = append(persisted, m)
		}
	}

	directoryNames := make([]string, len(files))
	for i, f := range files {
		directoryNames[i] = f.Name
	}
	persistedNames := make([]string, len(persisted))
	for i, m := range persisted {
		persistedNames[i] = m.MigrationName
	}

	out.History = DiagnoseHistory(directoryNames, persistedNames)
	out.FailedMigrationNames = append(out.FailedMigrationNames, failedNames(persisted)...)
	out.EditedMigrationNames = append(out.EditedMigrationNames, editedMigrations(files, persisted)...)

	out.Drift, err = r.detectDrift(ctx, files, appliedSet(persisted))
	if err != nil {
		return nil, err
	}
	r.logger.Debug("diagnosed migration history",
		"drift", out.Drift != nil, "history", out.History != nil,
		"failed", len(out.FailedMigrationNames), "edited", len(out.EditedMigrationNames))
	return out, nil
}

// DiagnoseHistory classifies a directory and a recorded history, both given
// as ordered migration names. It returns nil when they hold the same names.
func DiagnoseHistory(directory, persisted []string) *HistoryDiagnostic {
	var unapplied, unpersisted []string
	for _, name := range directory {
		if !slices.Contains(persisted, name) {
			unapplied = append(unapplied, name)
		}
	}
	for _, name := range persisted {
		if !slices.Contains(directory, name) {
			unpersisted = append(unpersisted, name)
		}
	}

	switch {
	case len(unapplied) > 0 && len(unpersisted) > 0:
		d := &HistoryDiagnostic{
			Kind:                      HistoriesDiverge,
			UnappliedMigrationNames:   unapplied,
			UnpersistedMigrationNames: unpersisted,
		}
		for i := len(persisted) - 1; i >= 0; i-- {
			if slices.Contains(directory, persisted[i]) {
				d.LastCommonMigrationName = persisted[i]
				break
			}
		}
		return d
	case len(unapplied) > 0:
		return &HistoryDiagnostic{Kind: DatabaseIsBehind, UnappliedMigrationNames: unapplied}
	case len(unpersisted) > 0:
		return &HistoryDiagnostic{Kind: MigrationsDirectoryIsBehind, UnpersistedMigrationNames: unpersisted}
	}
	return nil
}

// editedMigrations lists, in directory order, the migrations whose script no
// longer matches a recorded checksum.
func editedMigrations(files []MigrationFile, persisted []persistence.MigrationRecord) []string {
	var out []string
	for _, f := range files {
		sum := f.Checksum()
		for _, m := range persisted {
			if m.MigrationName == f.Name && m.Checksum != sum {
				out = append(out, f.Name)
				break
			}
		}
	}
	return out
}

// detectDrift replays the applied migrations of the directory on a shadow
// database and compares the result with the live schema.
func (r *Runner) detectDrift(ctx context.Context, files []MigrationFile, applied map[string]bool) (*DriftDiagnostic, error) {
	expected, err := r.replay(ctx, files, func(f MigrationFile) bool { return applied[f.Name] })
	if err != nil {
		return nil, err
	}
	live, err := r.describe(ctx, r.conn)
	if err != nil {
		return nil, err
	}
	return r.drift(live, expected)
}

func (r *Runner) drift(live, expected *describer.SqlSchema) (*DriftDiagnostic, error) {
	ops := diff.DiffSchemas(live, expected, r.flavour)
	if len(ops) == 0 {
		return nil, nil
	}
	statements, err := generator.Render(ops, r.flavour)
	if err != nil {
		return nil, fmt.Errorf("rendering drift: %w", err)
	}
	return &DriftDiagnostic{Kind: DriftDetected, Statements: statements}, nil
}
