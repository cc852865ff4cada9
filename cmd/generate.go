package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemaengine/generator"
)

var (
	generateName   string
	dryRunGenerate bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a migration file from the schema file",
	Long: `Generate a migration from the difference between the schema file and the
schema the migrations directory produces. The migrations are replayed on a
shadow database.

Examples:
  schemaengine generate -n add_posts        # Write migrations/<timestamp>_add_posts.sql
  schemaengine generate --dry-run           # Preview the SQL
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

		out := cmd.OutOrStdout()
		if dryRunGenerate {
			plan, err := r.PlanMigration(ctx, ast)
			if err != nil {
				return err
			}
			if plan.IsEmpty() {
				green.Fprintln(out, "✅ No changes detected.")
				return nil
			}
			fmt.Fprintln(out, "\n================ DRY RUN: Migration Preview ================")
			printStatements(out, generator.UpMarker, plan.Up)
			fmt.Fprintln(out)
			printStatements(out, generator.DownMarker, plan.Down)
			fmt.Fprintln(out, "============================================================")
			fmt.Fprintln(out, "(Dry run only. No files were written.)")
			return nil
		}

		path, plan, err := r.Generate(ctx, ast, generateName)
		if err != nil {
			return err
		}
		for _, w := range plan.Warnings {
			yellow.Fprintf(out, "⚠️  %s\n", w.Message)
		}
		if path == "" {
			green.Fprintln(out, "✅ No changes detected.")
			return nil
		}
		green.Fprintln(out, "✅ Migration generated:", path)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringP("schema", "s", "", "Schema file (default from config)")
	generateCmd.Flags().StringVarP(&generateName, "name", "n", "migration", "Migration name")
	generateCmd.Flags().BoolVar(&dryRunGenerate, "dry-run", false, "Preview the SQL that would be generated without writing files")
}
