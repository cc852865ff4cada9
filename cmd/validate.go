package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemaengine/validator"
)

var (
	validateFormat string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the schema file",
	Long: `Validate the schema file without touching the database.

This command checks:
- Duplicate and reserved names of models, enums and type aliases
- Duplicate fields, enum values and datasource/generator keys
- Attributes (@id, @unique, @default, @relation, @@index, ...)
- Relations (missing back relations, ambiguous relations, fields/references)
- Identifier lengths for the datasource provider

Examples:
  schemaengine validate                     # Validate schema.yaml
  schemaengine validate -s custom.yaml      # Validate another file
  schemaengine validate --format json       # Output results as JSON
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ast, err := loadSchema(cfg.Schema)
		if err != nil {
			return err
		}
		result := validator.Validate(ast)

		out := cmd.OutOrStdout()
		if validateFormat == "json" {
			if err := writeJSON(out, result); err != nil {
				return err
			}
		} else {
			outputText(out, result)
		}
		if !result.Valid {
			return errors.New("schema validation failed")
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringP("schema", "s", "", "Schema file to validate (default from config)")
	validateCmd.Flags().StringVarP(&validateFormat, "format", "f", "text", "Output format (text, json)")
}

func outputText(w io.Writer, result *validator.ValidationResult) {
	if result.Valid {
		green.Fprintln(w, "✅ Schema validation passed!")
	} else {
		red.Fprintln(w, "❌ Schema validation failed!")
	}

	printFindings(w, "🔴 Errors", result.Errors)
	printFindings(w, "🟡 Warnings", result.Warnings)

	fmt.Fprintf(w, "\n📊 Summary:\n")
	fmt.Fprintf(w, "  • Errors: %d\n", len(result.Errors))
	fmt.Fprintf(w, "  • Warnings: %d\n", len(result.Warnings))
}

func printFindings(w io.Writer, title string, findings []validator.ValidationError) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(findings))
	for i, f := range findings {
		fmt.Fprintf(w, "  %d. ", i+1)
		if f.Model != "" {
			fmt.Fprintf(w, "[%s]", f.Model)
		}
		if f.Field != "" {
			fmt.Fprintf(w, ".%s", f.Field)
		}
		if f.Index != "" {
			fmt.Fprintf(w, " (index: %s)", f.Index)
		}
		fmt.Fprintf(w, ": %s\n", f.Message)
	}
}
