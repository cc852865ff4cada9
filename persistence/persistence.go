// Package persistence stores migration history in the target database.
//
// Two tables are supported: the imperative history table, with one row per
// applied migration script, and the legacy step-migration table, with one row
// per revision of the data model.
package persistence

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/flavour"
)

const (
	ImperativeTableName = "_prisma_migrations"
	LegacyTableName     = "_Migration"
)

// ErrNotInitialized is returned when the history table does not exist yet.
// It differs from an empty history.
var ErrNotInitialized = errors.New("migration history table is not initialized")

// Checksum is the hex sha256 of a migration script.
func Checksum(script string) string {
	sum := sha256.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}

// table bundles what the stores need to address one table.
type table struct {
	db      *sql.DB
	flavour flavour.Flavour
	schema  string
	name    string
}

func (t table) qualified() string {
	if t.schema == "" {
		return t.flavour.QuoteIdent(t.name)
	}
	return t.flavour.QuoteIdent(t.schema) + "." + t.flavour.QuoteIdent(t.name)
}

func (t table) q(ident string) string { return t.flavour.QuoteIdent(ident) }

// placeholders returns the bind parameters 1..n joined by commas.
func (t table) placeholders(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = t.flavour.Placeholder(i + 1)
	}
	return strings.Join(out, ", ")
}

func (t table) timestampType() string {
	switch t.flavour.Family() {
	case database.Postgres:
		return "TIMESTAMPTZ"
	case database.MySQL:
		return "DATETIME(3)"
	}
	return "INTEGER"
}

func (t table) textType() string {
	if t.flavour.Family() == database.MySQL {
		return "LONGTEXT"
	}
	return "TEXT"
}

func (t table) encodeTime(ts time.Time) any { return t.flavour.EncodeTime(ts) }

func (t table) encodeNullableTime(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return t.flavour.EncodeTime(*ts)
}

// nullTime scans the timestamp encodings of every family: unix milliseconds
// on SQLite, native timestamps elsewhere, and text as a fallback.
type nullTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func (n *nullTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = x.UTC(), true
		return nil
	case int64:
		n.Time, n.Valid = time.UnixMilli(x).UTC(), true
		return nil
	case []byte:
		return n.parse(string(x))
	case string:
		return n.parse(x)
	}
	return fmt.Errorf("cannot scan %T into a timestamp", v)
}

func (n *nullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = ts.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	ts := n.Time
	return &ts
}
