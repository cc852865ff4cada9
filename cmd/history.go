package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemaengine/persistence"
)

var (
	historyLimit    int
	historyDetailed bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the migration history",
	Long: `Show the recorded migration runs, newest first.

Examples:
  schemaengine history                # Show all migration runs
  schemaengine history --limit 10     # Show the last 10 runs
  schemaengine history --detailed     # Show logs and checksums
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, conn, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		history, err := r.History(ctx, historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(history) == 0 {
			fmt.Fprintln(out, "📋 No migration history found")
			return nil
		}

		fmt.Fprintln(out, "📋 Migration History")
		fmt.Fprintln(out, strings.Repeat("=", 60))
		if historyDetailed {
			showDetailedHistory(out, history)
		} else {
			showSummaryHistory(out, history)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 0, "Limit number of records to show (0 = all)")
	historyCmd.Flags().BoolVarP(&historyDetailed, "detailed", "d", false, "Show detailed information")
}

func recordStatus(m persistence.MigrationRecord) string {
	switch {
	case m.RolledBackAt != nil:
		return "rolled back"
	case m.IsApplied():
		return "applied"
	case m.IsFailed():
		return "failed"
	}
	return "unknown"
}

func statusIcon(status string) string {
	switch status {
	case "applied":
		return green.Sprint("✅")
	case "failed":
		return red.Sprint("❌")
	}
	return yellow.Sprint("↩️")
}

func showDetailedHistory(w io.Writer, history []persistence.MigrationRecord) {
	for i, m := range history {
		status := recordStatus(m)
		fmt.Fprintf(w, "\n%d. %s ", i+1, statusIcon(status))
		blue.Fprintln(w, m.MigrationName)
		cyan.Fprintf(w, "   📅 Started: %s\n", m.StartedAt.Format("2006-01-02 15:04:05"))
		if m.FinishedAt != nil {
			cyan.Fprintf(w, "   ⏱️  Duration: %v\n", m.FinishedAt.Sub(m.StartedAt))
		}
		if m.RolledBackAt != nil {
			cyan.Fprintf(w, "   ↩️  Rolled back: %s\n", m.RolledBackAt.Format("2006-01-02 15:04:05"))
		}
		cyan.Fprintf(w, "   📊 Status: %s (%d steps)\n", status, m.AppliedStepsCount)
		if m.Logs != "" {
			if status == "failed" {
				red.Fprintf(w, "   💥 Logs: %s\n", m.Logs)
			} else {
				cyan.Fprintf(w, "   📄 Logs: %s\n", m.Logs)
			}
		}
		if len(m.Checksum) >= 8 {
			cyan.Fprintf(w, "   🔍 Checksum: %s...\n", m.Checksum[:8])
		}
	}
}

func showSummaryHistory(w io.Writer, history []persistence.MigrationRecord) {
	fmt.Fprintf(w, "%-4s %-6s %-40s %-12s %s\n", "#", "Status", "Migration", "Duration", "Started")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	applied, failed := 0, 0
	for i, m := range history {
		status := recordStatus(m)
		switch status {
		case "applied":
			applied++
		case "failed":
			failed++
		}
		duration := "N/A"
		if m.FinishedAt != nil {
			duration = m.FinishedAt.Sub(m.StartedAt).String()
		}
		name := m.MigrationName
		if len(name) > 38 {
			name = name[:35] + "..."
		}
		fmt.Fprintf(w, "%-4d %-6s %-40s %-12s %s\n",
			i+1, statusIcon(status), blue.Sprint(name), duration, m.StartedAt.Format("2006-01-02 15:04"))
	}

	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "📊 Summary: %d total, %d applied, %d failed\n", len(history), applied, failed)
}
