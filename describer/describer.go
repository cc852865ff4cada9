package describer

import (
	"context"
	"fmt"
)

// Describer reads the physical schema of a live database.
type Describer interface {
	// ListDatabases lists the schemas (Postgres, MySQL) or attached databases (SQLite).
	ListDatabases(ctx context.Context) ([]string, error)
	GetMetadata(ctx context.Context, schema string) (*SqlMetadata, error)
	Describe(ctx context.Context, schema string) (*SqlSchema, error)
	// Version returns the server version string, or "" when the database does not report one.
	Version(ctx context.Context, schema string) (string, error)
}

// DescribeError wraps a failure of a describer query.
type DescribeError struct {
	Op  string
	Err error
}

func (e *DescribeError) Error() string {
	return fmt.Sprintf("describing schema: %s: %v", e.Op, e.Err)
}

func (e *DescribeError) Unwrap() error {
	return e.Err
}

func describeErr(op string, err error) error {
	return &DescribeError{Op: op, Err: err}
}
