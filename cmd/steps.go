package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemaengine/runner"
)

var (
	applyStepsForce bool
	applyStepsID    string
)

var applyStepsCmd = &cobra.Command{
	Use:   "apply-steps [input.json]",
	Short: "Apply a step migration",
	Long: `Apply a step migration: a migration id and the data model steps printed by
'diff'. The input is read from the file argument or stdin, either as
{"migrationId": ..., "steps": [...]} or as a bare steps array with --id.

Migrations that cannot run against the current data are never applied.
Migrations that would lose data are only applied with --force.

Examples:
  schemaengine diff old.yaml schema.yaml | schemaengine apply-steps --id 20240301_users
  schemaengine apply-steps migration.json --force
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		in, err := parseApplyInput(data, applyStepsID)
		if err != nil {
			return err
		}
		in.Force = in.Force || applyStepsForce

		r, conn, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		result, err := r.ApplyMigration(ctx, in)
		if err != nil {
			return err
		}
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		if !result.Applied {
			yellow.Fprintln(os.Stderr, "⚠️  Migration not applied, see warnings and unexecutableMigrations")
		}
		return nil
	},
}

// parseApplyInput accepts a full input object or a bare steps array.
func parseApplyInput(data []byte, id string) (runner.ApplyMigrationInput, error) {
	var in runner.ApplyMigrationInput
	if firstNonSpace(data) == '[' {
		if err := json.Unmarshal(data, &in.Steps); err != nil {
			return in, fmt.Errorf("decoding steps: %w", err)
		}
	} else if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("decoding input: %w", err)
	}
	if id != "" {
		in.MigrationID = id
	}
	if in.MigrationID == "" {
		return in, fmt.Errorf("missing migration id (migrationId in the input or --id)")
	}
	return in, nil
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c
	}
	return 0
}

var listStepsCmd = &cobra.Command{
	Use:   "list-steps",
	Short: "List the applied step migrations as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, conn, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		migrations, err := r.ListMigrations(ctx)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), migrations)
	},
}

func init() {
	applyStepsCmd.Flags().BoolVar(&applyStepsForce, "force", false, "Apply migrations that only have warnings")
	applyStepsCmd.Flags().StringVar(&applyStepsID, "id", "", "Migration id, overrides migrationId of the input")
}
