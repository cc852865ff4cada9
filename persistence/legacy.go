package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/flavour"
	"github.com/ridoystarlord/schemaengine/loader"
	"github.com/ridoystarlord/schemaengine/schema"
	"github.com/ridoystarlord/schemaengine/steps"
)

type MigrationStatus string

const (
	StatusPending             MigrationStatus = "Pending"
	StatusMigrationInProgress MigrationStatus = "MigrationInProgress"
	StatusMigrationSuccess    MigrationStatus = "MigrationSuccess"
	StatusMigrationFailure    MigrationStatus = "MigrationFailure"
	StatusRollingBack         MigrationStatus = "RollingBack"
	StatusRollbackSuccess     MigrationStatus = "RollbackSuccess"
	StatusRollbackFailure     MigrationStatus = "RollbackFailure"
)

const watchPrefix = "watch"

// Migration is one revision of the data model in the legacy table.
type Migration struct {
	Name     string
	Revision int64
	// Datamodel is the YAML encoding of the schema AST after this migration.
	Datamodel      string
	Status         MigrationStatus
	Applied        int
	RolledBack     int
	DatamodelSteps []steps.MigrationStep
	// DatabaseMigration is the JSON the runner stored for the physical side.
	DatabaseMigration json.RawMessage
	Errors            []string
	StartedAt         time.Time
	FinishedAt        *time.Time
}

// NewMigration returns a pending migration named name.
func NewMigration(name string, now time.Time) Migration {
	return Migration{Name: name, Status: StatusPending, StartedAt: now, DatabaseMigration: json.RawMessage("null")}
}

// IsWatchMigration reports whether the migration was recorded by a watch
// session. Watch migrations are squashed by the next regular migration.
func (m Migration) IsWatchMigration() bool {
	return strings.HasPrefix(m.Name, watchPrefix)
}

// SchemaAst decodes the stored data model. An empty value is an empty schema.
func (m Migration) SchemaAst() (*schema.SchemaAst, error) {
	ast, err := loader.ParseSchema(strings.TrimSpace(m.Datamodel))
	if err != nil {
		return nil, fmt.Errorf("decoding data model of %s: %w", m.Name, err)
	}
	return ast, nil
}

// MigrationUpdate identifies a row by Name and Revision and carries the new
// values of the mutable columns.
type MigrationUpdate struct {
	Name       string
	NewName    string
	Revision   int64
	Status     MigrationStatus
	Applied    int
	RolledBack int
	Errors     []string
	FinishedAt *time.Time
}

// UpdateParams returns the update that leaves m unchanged.
func (m Migration) UpdateParams() MigrationUpdate {
	return MigrationUpdate{
		Name:       m.Name,
		NewName:    m.Name,
		Revision:   m.Revision,
		Status:     m.Status,
		Applied:    m.Applied,
		RolledBack: m.RolledBack,
		Errors:     m.Errors,
		FinishedAt: m.FinishedAt,
	}
}

// LegacyStore reads and writes the step-migration table.
type LegacyStore struct {
	table
	logger *slog.Logger
}

func NewLegacyStore(conn *database.Connection, f flavour.Flavour, logger *slog.Logger) *LegacyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LegacyStore{
		table:  table{db: conn.DB, flavour: f, schema: conn.Schema, name: LegacyTableName},
		logger: logger,
	}
}

var legacyColumns = []string{
	"revision", "name", "datamodel", "status", "applied", "rolled_back",
	"datamodel_steps", "database_migration", "errors", "started_at", "finished_at",
}

// Init creates the table when it does not exist.
func (s *LegacyStore) Init(ctx context.Context) error {
	var revision string
	switch s.flavour.Family() {
	case database.Postgres:
		revision = "SERIAL PRIMARY KEY"
	case database.MySQL:
		revision = "INTEGER NOT NULL AUTO_INCREMENT PRIMARY KEY"
	default:
		revision = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	ts, text := s.timestampType(), s.textType()
	lines := []string{
		s.q("revision") + " " + revision,
		s.q("name") + " " + text + " NOT NULL",
		s.q("datamodel") + " " + text + " NOT NULL",
		s.q("status") + " " + text + " NOT NULL",
		s.q("applied") + " INTEGER NOT NULL",
		s.q("rolled_back") + " INTEGER NOT NULL",
		s.q("datamodel_steps") + " " + text + " NOT NULL",
		s.q("database_migration") + " " + text + " NOT NULL",
		s.q("errors") + " " + text + " NOT NULL",
		s.q("started_at") + " " + ts + " NOT NULL",
		s.q("finished_at") + " " + ts,
	}
	query := "CREATE TABLE IF NOT EXISTS " + s.qualified() + " (\n    " + strings.Join(lines, ",\n    ") + "\n)"
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating %s: %w", LegacyTableName, err)
	}
	return nil
}

// Reset deletes every row.
func (s *LegacyStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+s.qualified()); err != nil {
		return fmt.Errorf("resetting %s: %w", LegacyTableName, err)
	}
	return nil
}

func (s *LegacyStore) selectSQL() string {
	cols := make([]string, len(legacyColumns))
	for i, c := range legacyColumns {
		cols[i] = s.q(c)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + s.qualified()
}

// LastTwoMigrations returns the two most recent successful migrations,
// newest first. Either may be nil.
func (s *LegacyStore) LastTwoMigrations(ctx context.Context) (last, previous *Migration, err error) {
	query := fmt.Sprintf("%s WHERE %s = %s ORDER BY %s DESC LIMIT 2",
		s.selectSQL(), s.q("status"), s.flavour.Placeholder(1), s.q("revision"))
	all, err := s.query(ctx, query, string(StatusMigrationSuccess))
	if err != nil {
		return nil, nil, err
	}
	if len(all) > 0 {
		last = &all[0]
	}
	if len(all) > 1 {
		previous = &all[1]
	}
	return last, previous, nil
}

// LastMigration returns the most recent successful migration, or nil.
func (s *LegacyStore) LastMigration(ctx context.Context) (*Migration, error) {
	last, _, err := s.LastTwoMigrations(ctx)
	return last, err
}

// LastNonWatchMigration returns the most recent migration that was not
// recorded by a watch session, whatever its status.
func (s *LegacyStore) LastNonWatchMigration(ctx context.Context) (*Migration, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if !all[i].IsWatchMigration() {
			return &all[i], nil
		}
	}
	return nil, nil
}

// LoadAll returns every row ordered by revision.
func (s *LegacyStore) LoadAll(ctx context.Context) ([]Migration, error) {
	return s.query(ctx, fmt.Sprintf("%s ORDER BY %s ASC", s.selectSQL(), s.q("revision")))
}

// ByName returns the latest revision named name, or nil.
func (s *LegacyStore) ByName(ctx context.Context, name string) (*Migration, error) {
	query := fmt.Sprintf("%s WHERE %s = %s ORDER BY %s DESC",
		s.selectSQL(), s.q("name"), s.flavour.Placeholder(1), s.q("revision"))
	all, err := s.query(ctx, query, name)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return &all[0], nil
}

// IsApplied reports whether the latest revision named name succeeded.
func (s *LegacyStore) IsApplied(ctx context.Context, name string) (bool, error) {
	m, err := s.ByName(ctx, name)
	if err != nil {
		return false, err
	}
	return m != nil && m.Status == StatusMigrationSuccess, nil
}

// Create inserts m and returns it with its assigned revision.
func (s *LegacyStore) Create(ctx context.Context, m Migration) (Migration, error) {
	stepsJSON, err := steps.Marshal(m.DatamodelSteps)
	if err != nil {
		return m, fmt.Errorf("encoding steps of %s: %w", m.Name, err)
	}
	errorsJSON, err := json.Marshal(nonNil(m.Errors))
	if err != nil {
		return m, err
	}
	dbMigration := m.DatabaseMigration
	if len(dbMigration) == 0 {
		dbMigration = json.RawMessage("null")
	}

	cols := make([]string, 0, len(legacyColumns)-1)
	for _, c := range legacyColumns[1:] {
		cols = append(cols, s.q(c))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.qualified(), strings.Join(cols, ", "), s.placeholders(len(cols)))
	args := []any{
		m.Name, m.Datamodel, string(m.Status), m.Applied, m.RolledBack,
		string(stepsJSON), string(dbMigration), string(errorsJSON),
		s.encodeTime(m.StartedAt), s.encodeNullableTime(m.FinishedAt),
	}

	if s.flavour.Family() == database.Postgres {
		query += " RETURNING " + s.q("revision")
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&m.Revision); err != nil {
			return m, fmt.Errorf("creating migration %s: %w", m.Name, err)
		}
		return m, nil
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return m, fmt.Errorf("creating migration %s: %w", m.Name, err)
	}
	if m.Revision, err = res.LastInsertId(); err != nil {
		return m, fmt.Errorf("reading revision of %s: %w", m.Name, err)
	}
	return m, nil
}

// Update writes the mutable columns of the row matching Name and Revision.
func (s *LegacyStore) Update(ctx context.Context, u MigrationUpdate) error {
	errorsJSON, err := json.Marshal(nonNil(u.Errors))
	if err != nil {
		return err
	}
	p := s.flavour.Placeholder
	query := fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s, %s = %s, %s = %s, %s = %s, %s = %s WHERE %s = %s AND %s = %s",
		s.qualified(),
		s.q("name"), p(1), s.q("status"), p(2), s.q("applied"), p(3), s.q("rolled_back"), p(4),
		s.q("errors"), p(5), s.q("finished_at"), p(6),
		s.q("name"), p(7), s.q("revision"), p(8))
	_, err = s.db.ExecContext(ctx, query,
		u.NewName, string(u.Status), u.Applied, u.RolledBack, string(errorsJSON), s.encodeNullableTime(u.FinishedAt),
		u.Name, u.Revision)
	if err != nil {
		return fmt.Errorf("updating migration %s: %w", u.Name, err)
	}
	return nil
}

func (s *LegacyStore) query(ctx context.Context, query string, args ...any) ([]Migration, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", LegacyTableName, err)
	}
	defer rows.Close()

	var out []Migration
	for rows.Next() {
		m, err := scanMigration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMigration(rows *sql.Rows) (Migration, error) {
	var (
		m                                      Migration
		status, stepsJSON, dbJSON, errorsJSON string
		started, finished                      nullTime
	)
	if err := rows.Scan(&m.Revision, &m.Name, &m.Datamodel, &status, &m.Applied, &m.RolledBack,
		&stepsJSON, &dbJSON, &errorsJSON, &started, &finished); err != nil {
		return m, fmt.Errorf("scanning migration row: %w", err)
	}
	m.Status = MigrationStatus(status)
	m.StartedAt, m.FinishedAt = started.Time, finished.ptr()
	m.DatabaseMigration = json.RawMessage(dbJSON)

	var err error
	if m.DatamodelSteps, err = steps.Unmarshal([]byte(stepsJSON)); err != nil {
		return m, fmt.Errorf("migration %s: %w", m.Name, err)
	}
	if err := json.Unmarshal([]byte(errorsJSON), &m.Errors); err != nil {
		return m, fmt.Errorf("migration %s: decoding errors: %w", m.Name, err)
	}
	return m, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
