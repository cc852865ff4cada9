package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemaengine/differ"
	"github.com/ridoystarlord/schemaengine/steps"
)

var diffOutput string

var diffCmd = &cobra.Command{
	Use:   "diff <from.yaml> <to.yaml>",
	Short: "Print the migration steps between two schema files",
	Long: `Compute the data model steps that turn one schema file into another and
print them as JSON. The output is the input of 'apply-steps'.

Examples:
  schemaengine diff old.yaml schema.yaml
  schemaengine diff old.yaml schema.yaml -o steps.json
`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := loadSchema(args[0])
		if err != nil {
			return err
		}
		to, err := loadSchema(args[1])
		if err != nil {
			return err
		}

		compact, err := steps.Marshal(differ.Diff(from, to))
		if err != nil {
			return err
		}
		var indented bytes.Buffer
		if err := json.Indent(&indented, compact, "", "  "); err != nil {
			return err
		}
		data := indented.Bytes()
		if diffOutput == "" {
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if err := os.WriteFile(diffOutput, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", diffOutput, err)
		}
		logger.Info("wrote migration steps", "file", diffOutput)
		return nil
	},
}

func init() {
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "", "Write the steps to a file instead of stdout")
}
