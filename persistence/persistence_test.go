package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/flavour"
	"github.com/ridoystarlord/schemaengine/schema"
	"github.com/ridoystarlord/schemaengine/steps"
	"github.com/ridoystarlord/schemaengine/usererrors"
)

func openSQLite(t *testing.T) (*database.Connection, flavour.Flavour) {
	t.Helper()
	conn, err := database.Open(context.Background(), "sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	f, err := flavour.New(database.SQLite)
	require.NoError(t, err)
	return conn, f
}

// clock returns a Now func that advances one second per call.
func clock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func newStore(t *testing.T) (*Store, *database.Connection) {
	t.Helper()
	conn, f := openSQLite(t)
	s := NewStore(conn, f, nil)
	s.Now = clock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return s, conn
}

func TestListMigrationsBeforeInitialize(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.ListMigrations(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)

	applied, err := s.AppliedMigrations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestInitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Initialize(ctx))

	all, err := s.ListMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInitializeRejectsNonEmptySchema(t *testing.T) {
	ctx := context.Background()
	s, conn := newStore(t)
	_, err := conn.DB.Exec(`CREATE TABLE "Cat" ("id" INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	err = s.Initialize(ctx)
	known, ok := usererrors.As(err)
	require.True(t, ok, err)
	assert.Equal(t, usererrors.CodeDatabaseSchemaNotEmpty, known.Code)
}

func TestInitializeIgnoresLegacyTable(t *testing.T) {
	ctx := context.Background()
	s, conn := newStore(t)
	f, err := flavour.New(database.SQLite)
	require.NoError(t, err)
	require.NoError(t, NewLegacyStore(conn, f, nil).Init(ctx))

	assert.NoError(t, s.Initialize(ctx))
}

func TestRecordMigrationLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Initialize(ctx))

	first, err := s.RecordMigrationStarted(ctx, "20240101000000_init", "CREATE TABLE a (id INTEGER);")
	require.NoError(t, err)
	require.NoError(t, s.RecordSuccessfulStep(ctx, first, "applied 1 statement"))
	require.NoError(t, s.RecordMigrationFinished(ctx, first))

	second, err := s.RecordMigrationStarted(ctx, "20240102000000_broken", "CREATE TABLE;")
	require.NoError(t, err)
	require.NoError(t, s.RecordFailedStep(ctx, second, "syntax error"))

	all, err := s.ListMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Equal(t, first, all[0].ID)
	assert.Equal(t, "20240101000000_init", all[0].MigrationName)
	assert.Equal(t, Checksum("CREATE TABLE a (id INTEGER);"), all[0].Checksum)
	assert.Equal(t, 1, all[0].AppliedStepsCount)
	assert.Equal(t, "applied 1 statement", all[0].Logs)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), all[0].StartedAt)
	require.NotNil(t, all[0].FinishedAt)
	assert.True(t, all[0].IsApplied())

	assert.Equal(t, "syntax error", all[1].Logs)
	assert.Zero(t, all[1].AppliedStepsCount)
	assert.True(t, all[1].IsFailed())

	require.NoError(t, s.RecordRolledBack(ctx, first))
	applied, err := s.AppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestListMigrationsOrdersTiesByName(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Initialize(ctx))
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return started }

	for _, name := range []string{"20240301120000_second", "20240301115959_first"} {
		id, err := s.RecordMigrationStarted(ctx, name, "SELECT 1;")
		require.NoError(t, err)
		require.NoError(t, s.RecordMigrationFinished(ctx, id))
	}

	all, err := s.ListMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, all[0].StartedAt, all[1].StartedAt)
	assert.Equal(t, "20240301115959_first", all[0].MigrationName)
	assert.Equal(t, "20240301120000_second", all[1].MigrationName)
}

func TestRecordOnUnknownID(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Initialize(ctx))

	assert.Error(t, s.RecordMigrationFinished(ctx, "missing"))
}

func newLegacyStore(t *testing.T) *LegacyStore {
	t.Helper()
	conn, f := openSQLite(t)
	s := NewLegacyStore(conn, f, nil)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func createMigration(t *testing.T, s *LegacyStore, name string, status MigrationStatus) Migration {
	t.Helper()
	m := NewMigration(name, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC))
	m.Status = status
	m.DatamodelSteps = []steps.MigrationStep{steps.CreateModel{Model: "User"}}
	created, err := s.Create(context.Background(), m)
	require.NoError(t, err)
	return created
}

func TestLegacyCreateAssignsRevisions(t *testing.T) {
	s := newLegacyStore(t)
	a := createMigration(t, s, "a", StatusMigrationSuccess)
	b := createMigration(t, s, "b", StatusMigrationSuccess)
	assert.Equal(t, int64(1), a.Revision)
	assert.Equal(t, int64(2), b.Revision)

	all, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, []steps.MigrationStep{steps.CreateModel{Model: "User"}}, all[0].DatamodelSteps)
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), all[0].StartedAt)
	assert.Nil(t, all[0].FinishedAt)
	assert.Equal(t, []string{}, all[0].Errors)
	assert.JSONEq(t, "null", string(all[0].DatabaseMigration))
}

func TestLegacyLastTwoMigrationsSkipsUnsuccessful(t *testing.T) {
	ctx := context.Background()
	s := newLegacyStore(t)

	last, previous, err := s.LastTwoMigrations(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)
	assert.Nil(t, previous)

	createMigration(t, s, "a", StatusMigrationSuccess)
	createMigration(t, s, "b", StatusMigrationSuccess)
	createMigration(t, s, "c", StatusMigrationFailure)

	last, previous, err = s.LastTwoMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", last.Name)
	assert.Equal(t, "a", previous.Name)

	only, err := s.LastMigration(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", only.Name)
}

func TestLegacyByNameAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := newLegacyStore(t)
	m := createMigration(t, s, "init", StatusMigrationInProgress)

	applied, err := s.IsApplied(ctx, "init")
	require.NoError(t, err)
	assert.False(t, applied)

	finished := time.Date(2024, 2, 1, 10, 0, 5, 0, time.UTC)
	update := m.UpdateParams()
	update.Status = StatusMigrationSuccess
	update.Applied = 3
	update.Errors = []string{"warning: nothing"}
	update.FinishedAt = &finished
	require.NoError(t, s.Update(ctx, update))

	got, err := s.ByName(ctx, "init")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusMigrationSuccess, got.Status)
	assert.Equal(t, 3, got.Applied)
	assert.Equal(t, []string{"warning: nothing"}, got.Errors)
	assert.Equal(t, finished, *got.FinishedAt)

	applied, err = s.IsApplied(ctx, "init")
	require.NoError(t, err)
	assert.True(t, applied)

	missing, err := s.ByName(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLegacyResetAndWatchMigrations(t *testing.T) {
	ctx := context.Background()
	s := newLegacyStore(t)
	createMigration(t, s, "init", StatusMigrationSuccess)
	createMigration(t, s, "watch-1", StatusMigrationSuccess)
	createMigration(t, s, "watch-2", StatusMigrationSuccess)

	m, err := s.LastNonWatchMigration(ctx)
	require.NoError(t, err)
	assert.Equal(t, "init", m.Name)

	require.NoError(t, s.Reset(ctx))
	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMigrationSchemaAst(t *testing.T) {
	empty, err := Migration{}.SchemaAst()
	require.NoError(t, err)
	assert.Empty(t, empty.Models)

	ast := &schema.SchemaAst{Models: []schema.Model{{Name: "User"}}}
	data, err := schema.Marshal(ast)
	require.NoError(t, err)
	decoded, err := Migration{Datamodel: string(data)}.SchemaAst()
	require.NoError(t, err)
	require.Len(t, decoded.Models, 1)
	assert.Equal(t, "User", decoded.Models[0].Name)
}

func TestNullTimeScan(t *testing.T) {
	var n nullTime
	require.NoError(t, n.Scan(int64(1704067200000)))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), n.Time)

	require.NoError(t, n.Scan("2024-01-01 00:00:00"))
	assert.True(t, n.Valid)

	require.NoError(t, n.Scan(nil))
	assert.False(t, n.Valid)
	assert.Nil(t, n.ptr())

	assert.Error(t, n.Scan(3.5))
}
