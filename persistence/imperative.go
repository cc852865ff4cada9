package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/describer"
	"github.com/ridoystarlord/schemaengine/flavour"
	"github.com/ridoystarlord/schemaengine/usererrors"
)

// MigrationRecord is one row of the imperative history table.
type MigrationRecord struct {
	ID                string     `json:"id"`
	Checksum          string     `json:"checksum"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`
	MigrationName     string     `json:"migrationName"`
	Logs              string     `json:"logs"`
	RolledBackAt      *time.Time `json:"rolledBackAt,omitempty"`
	StartedAt         time.Time  `json:"startedAt"`
	AppliedStepsCount int        `json:"appliedStepsCount"`
	Script            string     `json:"script"`
}

// IsFailed reports whether the migration neither finished nor was rolled back.
func (m MigrationRecord) IsFailed() bool {
	return m.FinishedAt == nil && m.RolledBackAt == nil
}

// IsApplied reports whether the migration finished and was not rolled back.
func (m MigrationRecord) IsApplied() bool {
	return m.FinishedAt != nil && m.RolledBackAt == nil
}

// Store records applied migration scripts in the imperative history table.
// It assumes a single writer per migration id.
type Store struct {
	table
	describer describer.Describer
	logger    *slog.Logger

	// Now returns the timestamps written to the table.
	Now func() time.Time
}

func NewStore(conn *database.Connection, f flavour.Flavour, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		table:     table{db: conn.DB, flavour: f, schema: conn.Schema, name: ImperativeTableName},
		describer: f.Describer(conn),
		logger:    logger,
		Now:       time.Now,
	}
}

// Initialize creates the history table. It is a no-op when the table exists
// and fails with DatabaseSchemaNotEmpty when the schema holds anything else.
func (s *Store) Initialize(ctx context.Context) error {
	current, err := s.describer.Describe(ctx, s.schema)
	if err != nil {
		return fmt.Errorf("describing %s: %w", s.schema, err)
	}
	if current.HasTable(ImperativeTableName) {
		return nil
	}

	current = current.WithoutTables(LegacyTableName)
	var sequences []describer.Sequence
	for _, seq := range current.Sequences {
		if !strings.HasPrefix(seq.Name, LegacyTableName) {
			sequences = append(sequences, seq)
		}
	}
	current.Sequences = sequences
	if !current.IsEmpty() {
		return usererrors.DatabaseSchemaNotEmpty(s.schema)
	}

	if _, err := s.db.ExecContext(ctx, s.createTableSQL()); err != nil {
		return fmt.Errorf("creating %s: %w", ImperativeTableName, err)
	}
	s.logger.Info("created migration history table", "table", ImperativeTableName, "schema", s.schema)
	return nil
}

func (s *Store) createTableSQL() string {
	ts, text := s.timestampType(), s.textType()
	lines := []string{
		s.q("id") + " VARCHAR(36) NOT NULL PRIMARY KEY",
		s.q("checksum") + " VARCHAR(64) NOT NULL",
		s.q("finished_at") + " " + ts,
		s.q("migration_name") + " VARCHAR(255) NOT NULL",
		s.q("logs") + " " + text + " NOT NULL",
		s.q("rolled_back_at") + " " + ts,
		s.q("started_at") + " " + ts + " NOT NULL",
		s.q("applied_steps_count") + " INTEGER NOT NULL DEFAULT 0",
		s.q("script") + " " + text + " NOT NULL",
	}
	return "CREATE TABLE " + s.qualified() + " (\n    " + strings.Join(lines, ",\n    ") + "\n)"
}

// RecordMigrationStarted inserts a new row and returns its id.
func (s *Store) RecordMigrationStarted(ctx context.Context, name, script string) (string, error) {
	id := uuid.NewString()
	query := fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s, %s, %s) VALUES (%s)",
		s.qualified(), s.q("id"), s.q("checksum"), s.q("logs"), s.q("migration_name"), s.q("script"), s.q("started_at"),
		s.placeholders(6))
	_, err := s.db.ExecContext(ctx, query, id, Checksum(script), "", name, script, s.encodeTime(s.Now()))
	if err != nil {
		return "", fmt.Errorf("recording start of %s: %w", name, err)
	}
	return id, nil
}

// RecordSuccessfulStep increments the applied step count and replaces the logs.
func (s *Store) RecordSuccessfulStep(ctx context.Context, id, logs string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = %s + 1, %s = %s WHERE %s = %s",
		s.qualified(), s.q("applied_steps_count"), s.q("applied_steps_count"),
		s.q("logs"), s.flavour.Placeholder(1), s.q("id"), s.flavour.Placeholder(2))
	return s.exec(ctx, "recording successful step", id, query, logs, id)
}

// RecordFailedStep replaces the logs of a migration whose step failed.
func (s *Store) RecordFailedStep(ctx context.Context, id, logs string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		s.qualified(), s.q("logs"), s.flavour.Placeholder(1), s.q("id"), s.flavour.Placeholder(2))
	return s.exec(ctx, "recording failed step", id, query, logs, id)
}

func (s *Store) RecordMigrationFinished(ctx context.Context, id string) error {
	return s.setTimestamp(ctx, "finished_at", id)
}

func (s *Store) RecordRolledBack(ctx context.Context, id string) error {
	return s.setTimestamp(ctx, "rolled_back_at", id)
}

func (s *Store) setTimestamp(ctx context.Context, column, id string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		s.qualified(), s.q(column), s.flavour.Placeholder(1), s.q("id"), s.flavour.Placeholder(2))
	return s.exec(ctx, "setting "+column, id, query, s.encodeTime(s.Now()), id)
}

func (s *Store) exec(ctx context.Context, what, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s for %s: %w", what, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: no migration with id %s", what, id)
	}
	return nil
}

// ListMigrations returns every recorded migration ordered by start time.
// It returns ErrNotInitialized when the history table does not exist.
func (s *Store) ListMigrations(ctx context.Context) ([]MigrationRecord, error) {
	exists, err := s.flavour.TableExists(ctx, s.db, s.schema, ImperativeTableName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotInitialized
	}

	query := fmt.Sprintf("SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s FROM %s ORDER BY %s ASC, %s ASC",
		s.q("id"), s.q("checksum"), s.q("finished_at"), s.q("migration_name"), s.q("logs"),
		s.q("rolled_back_at"), s.q("started_at"), s.q("applied_steps_count"), s.q("script"),
		s.qualified(), s.q("started_at"), s.q("migration_name"))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var m MigrationRecord
		var finished, rolledBack, started nullTime
		if err := rows.Scan(&m.ID, &m.Checksum, &finished, &m.MigrationName, &m.Logs,
			&rolledBack, &started, &m.AppliedStepsCount, &m.Script); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		m.FinishedAt, m.RolledBackAt, m.StartedAt = finished.ptr(), rolledBack.ptr(), started.Time
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppliedMigrations returns the migrations that finished and were not rolled
// back. A missing table yields no migrations.
func (s *Store) AppliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	all, err := s.ListMigrations(ctx)
	if errors.Is(err, ErrNotInitialized) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []MigrationRecord
	for _, m := range all {
		if m.IsApplied() {
			out = append(out, m)
		}
	}
	return out, nil
}
