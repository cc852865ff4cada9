package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check what pushing the schema file would do to existing data",
	Long: `Compare the schema file with the live database and report the changes that
would lose data or that the database would reject with its current content.

Examples:
  schemaengine check
  schemaengine check -s next.yaml
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ast, err := loadSchema(cfg.Schema)
		if err != nil {
			return err
		}
		r, conn, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		plan, diagnostics, err := r.Check(ctx, ast)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if plan.IsEmpty() {
			green.Fprintln(out, "✅ The database is in sync with the schema.")
			return nil
		}
		printStatements(out, "Statements", plan.Up)
		for _, w := range diagnostics.Warnings {
			yellow.Fprintf(out, "⚠️  [step %d] %s\n", w.Step, w.Description)
		}
		for _, u := range diagnostics.UnexecutableMigrations {
			red.Fprintf(out, "❌ [step %d] %s\n", u.Step, u.Description)
		}
		fmt.Fprintf(out, "📊 %d statements, %d warnings, %d unexecutable\n",
			len(plan.Up), len(diagnostics.Warnings), len(diagnostics.UnexecutableMigrations))

		if !diagnostics.IsExecutable() {
			return errors.New("the change cannot be applied to the current data")
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringP("schema", "s", "", "Schema file (default from config)")
}
