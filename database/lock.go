package database

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
)

// Locker serialises migration commands against one database.
type Locker interface {
	// Acquire blocks until the lock for key is held. The returned release
	// function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Locker returns the lock implementation matching the connection family.
func (c *Connection) Locker() Locker {
	switch c.Family {
	case Postgres:
		return &PostgresLock{db: c.DB}
	case MySQL:
		return &MySQLLock{db: c.DB}
	default:
		return sqliteLockFor(c.DB)
	}
}

// PostgresLock holds a session advisory lock on a dedicated connection.
type PostgresLock struct {
	db *sql.DB
}

func (l *PostgresLock) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	lockID := hashLockKey(key)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pg_advisory_lock(%d): %w", lockID, err)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
		conn.Close()
	}, nil
}

// MySQLLock uses GET_LOCK, which is bound to the session that took it.
type MySQLLock struct {
	db *sql.DB
}

func (l *MySQLLock) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, -1)`, key).Scan(&got); err != nil {
		conn.Close()
		return nil, fmt.Errorf("GET_LOCK(%s): %w", key, err)
	}
	if got.Int64 != 1 {
		conn.Close()
		return nil, fmt.Errorf("GET_LOCK(%s) was not granted", key)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT RELEASE_LOCK(?)`, key)
		conn.Close()
	}, nil
}

// SQLiteLock is a process-local mutex; SQLite file locking covers other processes.
type SQLiteLock struct {
	mu sync.Mutex
}

var (
	sqliteLocksMu sync.Mutex
	sqliteLocks   = map[*sql.DB]*SQLiteLock{}
)

func sqliteLockFor(db *sql.DB) *SQLiteLock {
	sqliteLocksMu.Lock()
	defer sqliteLocksMu.Unlock()
	l, ok := sqliteLocks[db]
	if !ok {
		l = &SQLiteLock{}
		sqliteLocks[db] = l
	}
	return l
}

func (l *SQLiteLock) Acquire(ctx context.Context, _ string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire sqlite lock: %w", err)
	}
	l.mu.Lock()
	return l.mu.Unlock, nil
}

func hashLockKey(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
