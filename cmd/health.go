package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemaengine/persistence"
)

var healthTimeout time.Duration

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database connectivity",
	Long: `Check if the database is accessible and responsive.

Examples:
  schemaengine health                    # Check the configured database
  schemaengine health --timeout 10s      # Set custom timeout
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
		defer cancel()
		if err := checkDatabaseHealth(ctx, cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("database health check failed: %w", err)
		}
		green.Fprintln(cmd.OutOrStdout(), "✅ Database is healthy and accessible")
		return nil
	},
}

func init() {
	healthCmd.Flags().DurationVarP(&healthTimeout, "timeout", "t", 5*time.Second, "Timeout for health check")
}

func checkDatabaseHealth(ctx context.Context, w io.Writer) error {
	conn, f, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	d := f.Describer(conn)
	version, err := d.Version(ctx, conn.Schema)
	if err != nil {
		return err
	}
	meta, err := d.GetMetadata(ctx, conn.Schema)
	if err != nil {
		return err
	}
	cyan.Fprintf(w, "🔌 %s %s, schema %q\n", conn.Family, version, conn.Schema)
	cyan.Fprintf(w, "📦 %d tables, %d bytes\n", meta.TableCount, meta.SizeInBytes)

	initialized, err := f.TableExists(ctx, conn.DB, conn.Schema, persistence.ImperativeTableName)
	if err != nil {
		return fmt.Errorf("failed to check %s table: %w", persistence.ImperativeTableName, err)
	}
	if !initialized {
		yellow.Fprintf(w, "⚠️  Database is accessible but %s table not found\n", persistence.ImperativeTableName)
		fmt.Fprintln(w, "   Run 'schemaengine migrate' to set up the migration tracking table")
		return nil
	}

	store := persistence.NewStore(conn, f, logger)
	applied, err := store.AppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to count migrations: %w", err)
	}
	fmt.Fprintf(w, "📊 Found %d applied migrations\n", len(applied))
	return nil
}
