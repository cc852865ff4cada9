package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, conn, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		st, err := r.Status(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !st.Initialized {
			yellow.Fprintln(out, "⚠️  The migrations table does not exist yet. 'schemaengine migrate' creates it.")
		}
		green.Fprintln(out, "✅ Applied migrations:")
		for _, name := range st.Applied {
			fmt.Fprintln(out, "   -", name)
		}

		if len(st.Failed) > 0 {
			red.Fprintln(out, "\n❌ Failed migrations:")
			for _, m := range st.Failed {
				fmt.Fprintf(out, "   - %s: %s\n", m.MigrationName, m.Logs)
			}
		}

		cyan.Fprintln(out, "\n🕒 Pending migrations:")
		for _, name := range st.Pending {
			fmt.Fprintln(out, "   -", name)
		}
		return nil
	},
}
