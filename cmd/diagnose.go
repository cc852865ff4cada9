package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemaengine/runner"
)

var diagnoseFormat string

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Compare the migrations directory, the history and the live schema",
	Long: `Diagnose the migration history.

This command reports:
- Migrations of the directory that are not applied, or applied migrations
  missing from the directory
- Failed migrations
- Migrations edited after they were applied
- Drift between the live schema and the schema the applied migrations produce

Examples:
  schemaengine diagnose
  schemaengine diagnose --format json
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, conn, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		diagnosis, err := r.DiagnoseMigrationHistory(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if diagnoseFormat == "json" {
			return writeJSON(out, diagnosis)
		}
		showDiagnosis(out, diagnosis)
		return nil
	},
}

func init() {
	diagnoseCmd.Flags().StringVarP(&diagnoseFormat, "format", "f", "text", "Output format (text, json)")
}

func showDiagnosis(w io.Writer, d *runner.DiagnoseOutput) {
	if d.IsEmpty() {
		green.Fprintln(w, "✅ The migration history and the database are in sync.")
		return
	}

	if h := d.History; h != nil {
		switch h.Kind {
		case runner.DatabaseIsBehind:
			yellow.Fprintln(w, "⚠️  The following migrations have not been applied yet:")
		case runner.MigrationsDirectoryIsBehind:
			yellow.Fprintln(w, "⚠️  The following applied migrations are missing from the migrations directory:")
		case runner.HistoriesDiverge:
			yellow.Fprintf(w, "⚠️  The migrations directory and the database history diverge after %q.\n", h.LastCommonMigrationName)
		}
		for _, name := range h.UnappliedMigrationNames {
			fmt.Fprintln(w, "   + not applied:", name)
		}
		for _, name := range h.UnpersistedMigrationNames {
			fmt.Fprintln(w, "   - not in directory:", name)
		}
	}

	if len(d.FailedMigrationNames) > 0 {
		red.Fprintln(w, "❌ Failed migrations:")
		for _, name := range d.FailedMigrationNames {
			fmt.Fprintln(w, "   -", name)
		}
	}
	if len(d.EditedMigrationNames) > 0 {
		yellow.Fprintln(w, "⚠️  Migrations modified after they were applied:")
		for _, name := range d.EditedMigrationNames {
			fmt.Fprintln(w, "   -", name)
		}
	}
	if d.Drift != nil {
		red.Fprintln(w, "❌ Drift detected: the database schema is not the one the applied migrations produce.")
		printStatements(w, "Statements that would bring the database back", d.Drift.Statements)
	}
}
