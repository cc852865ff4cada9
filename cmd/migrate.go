package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	dryRunMigrate bool
	resolveFailed string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Long: `Apply the pending migrations of the migrations directory in name order.

Examples:
  schemaengine migrate                         # Apply pending migrations
  schemaengine migrate --dry-run               # Preview the SQL
  schemaengine migrate --resolve <name>        # Mark a failed migration as rolled back
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, conn, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		out := cmd.OutOrStdout()

		if resolveFailed != "" {
			if err := r.ResolveFailed(ctx, resolveFailed); err != nil {
				return err
			}
			green.Fprintf(out, "✅ Marked %s as rolled back. It runs again on the next migrate.\n", resolveFailed)
			return nil
		}

		if dryRunMigrate {
			pending, err := r.Pending(ctx)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				green.Fprintln(out, "✅ No pending migrations.")
				return nil
			}
			fmt.Fprintln(out, "\n================ DRY RUN: Pending Migrations ================")
			for _, m := range pending {
				printStatements(out, m.Name, []string{m.Up})
			}
			fmt.Fprintln(out, "=============================================================")
			return nil
		}

		applied, err := r.Apply(ctx)
		for _, name := range applied {
			green.Fprintln(out, "✅ Applied", name)
		}
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			green.Fprintln(out, "✅ No pending migrations.")
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&dryRunMigrate, "dry-run", false, "Preview the SQL that would be executed without applying migrations")
	migrateCmd.Flags().StringVar(&resolveFailed, "resolve", "", "Mark the failed runs of a migration as rolled back")
}
