package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/fatih/color"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/flavour"
	"github.com/ridoystarlord/schemaengine/loader"
	"github.com/ridoystarlord/schemaengine/runner"
	"github.com/ridoystarlord/schemaengine/schema"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	blue   = color.New(color.FgBlue, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// openDatabase connects to the configured database. The caller closes the
// connection.
func openDatabase(ctx context.Context) (*database.Connection, flavour.Flavour, error) {
	dbURL, err := cfg.DatabaseURL()
	if err != nil {
		return nil, nil, err
	}
	conn, err := database.Open(ctx, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	if conn.Family == database.Postgres && !hasSchemaParam(dbURL) {
		conn.Schema = cfg.Database.Schema
	}
	f, err := flavour.ForConnection(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	logger.Debug("connected", "family", conn.Family, "schema", conn.Schema)
	return conn, f, nil
}

func hasSchemaParam(dbURL string) bool {
	u, err := url.Parse(dbURL)
	return err == nil && u.Query().Get("schema") != ""
}

// openRunner connects and builds a runner over the configured migrations
// directory.
func openRunner(ctx context.Context) (*runner.Runner, *database.Connection, error) {
	conn, f, err := openDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}
	r := runner.New(conn, f, runner.Options{
		MigrationsDir: cfg.Migrations,
		ShadowURL:     cfg.Database.ShadowURL,
		Logger:        logger,
	})
	return r, conn, nil
}

func loadSchema(path string) (*schema.SchemaAst, error) {
	ast, err := loader.LoadSchemaFromYAML(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return ast, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printStatements(w io.Writer, title string, statements []string) {
	cyan.Fprintf(w, "-- %s --\n", title)
	for _, stmt := range statements {
		fmt.Fprintln(w, stmt)
	}
}
