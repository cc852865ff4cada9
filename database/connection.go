package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Family is the SQL dialect family of a connection.
type Family string

const (
	Postgres Family = "postgresql"
	MySQL    Family = "mysql"
	SQLite   Family = "sqlite"
)

// FamilyFromURL infers the family from a connection URL scheme.
func FamilyFromURL(connStr string) (Family, error) {
	switch {
	case strings.HasPrefix(connStr, "postgres://"), strings.HasPrefix(connStr, "postgresql://"):
		return Postgres, nil
	case strings.HasPrefix(connStr, "mysql://"):
		return MySQL, nil
	case strings.HasPrefix(connStr, "file:"), strings.HasPrefix(connStr, "sqlite:"), connStr == ":memory:":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported database url scheme in %q", redact(connStr))
}

// Connection bundles the handles used against one database. Pool is only set
// for Postgres; DB is set for every family.
type Connection struct {
	Family Family
	URL    string
	// Schema is the Postgres schema, the MySQL database name, or "main" on SQLite.
	Schema string
	DB     *sql.DB
	Pool   *pgxpool.Pool
}

// NewConnection wraps an already opened database handle.
func NewConnection(family Family, db *sql.DB, schema string) *Connection {
	return &Connection{Family: family, DB: db, Schema: schema}
}

// Open opens a connection for the given URL and pings it.
func Open(ctx context.Context, connStr string) (*Connection, error) {
	family, err := FamilyFromURL(connStr)
	if err != nil {
		return nil, err
	}

	var conn *Connection
	switch family {
	case Postgres:
		conn, err = openPostgres(ctx, connStr)
	case MySQL:
		conn, err = openMySQL(connStr)
	case SQLite:
		conn, err = openSQLite(connStr)
	}
	if err != nil {
		return nil, err
	}
	conn.URL = connStr

	if err := conn.DB.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return conn, nil
}

func openPostgres(ctx context.Context, connStr string) (*Connection, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres url: %w", err)
	}
	q := u.Query()
	schema := q.Get("schema")
	if schema == "" {
		schema = "public"
	}
	// pgx forwards unknown parameters to the server as runtime settings.
	q.Del("schema")
	u.RawQuery = q.Encode()

	pool, err := pgxpool.New(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return &Connection{
		Family: Postgres,
		Schema: schema,
		Pool:   pool,
		DB:     stdlib.OpenDBFromPool(pool),
	}, nil
}

func openMySQL(connStr string) (*Connection, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql url: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Host + ":3306"
	}
	cfg.User = u.User.Username()
	cfg.Passwd, _ = u.User.Password()
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.MultiStatements = true
	cfg.ParseTime = true
	// Report matched rows so updates that rewrite equal values still count.
	cfg.ClientFoundRows = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open mysql connection: %w", err)
	}
	return &Connection{Family: MySQL, Schema: cfg.DBName, DB: db}, nil
}

func openSQLite(connStr string) (*Connection, error) {
	path := strings.TrimPrefix(connStr, "sqlite://")
	path = strings.TrimPrefix(path, "sqlite:")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// Every connection to ":memory:" is a distinct database.
	if strings.Contains(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	return &Connection{Family: SQLite, Schema: "main", DB: db}, nil
}

// Close releases the handles of the connection.
func (c *Connection) Close() {
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

func redact(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
