package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var rollbackSteps int

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Rollback migrations",
	Long: `Rollback the last migration or multiple migrations with their down scripts.

Examples:
  schemaengine rollback           # Rollback the last migration
  schemaengine rollback --steps=3 # Rollback the last 3 migrations
  schemaengine rollback -s 5      # Rollback the last 5 migrations
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if rollbackSteps < 1 {
			return errors.New("steps must be at least 1")
		}
		ctx := cmd.Context()
		r, conn, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		rolledBack, err := r.Rollback(ctx, rollbackSteps)
		out := cmd.OutOrStdout()
		for _, name := range rolledBack {
			green.Fprintln(out, "✅ Rolled back", name)
		}
		if err != nil {
			return err
		}
		if len(rolledBack) == 0 {
			yellow.Fprintln(out, "⚠️  No applied migrations to roll back.")
		}
		return nil
	},
}

func init() {
	rollbackCmd.Flags().IntVarP(&rollbackSteps, "steps", "s", 1, "Number of migrations to rollback")
}
