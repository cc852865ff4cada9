package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemaengine/datamodel"
	"github.com/ridoystarlord/schemaengine/introspect"
	"github.com/ridoystarlord/schemaengine/loader"
	"github.com/ridoystarlord/schemaengine/schema"
	"github.com/ridoystarlord/schemaengine/validator"
)

var (
	introspectPrint       bool
	introspectNativeTypes bool
)

var introspectCmd = &cobra.Command{
	Use:   "introspect",
	Short: "Write the schema file from the live database",
	Long: `Describe the database and write its data model to the schema file.

Names, relation names, @map attributes and documentation of an existing
schema file are kept where the database still matches them.

Examples:
  schemaengine introspect                  # Update schema.yaml
  schemaengine introspect --print          # Print instead of writing
  schemaengine introspect --native-types   # Keep @db.* native types
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := cfg.Schema

		var previous *schema.SchemaAst
		var previousModel *datamodel.Datamodel
		if exists(path) {
			ast, err := loadSchema(path)
			if err != nil {
				return err
			}
			res := validator.Validate(ast)
			if !res.Valid {
				logger.Warn("existing schema does not validate, not reusing it", "file", path, "errors", len(res.Errors))
			} else {
				previousModel = res.Datamodel
			}
			previous = ast
		}

		conn, f, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		result, err := introspect.Introspect(ctx, f.Describer(conn), conn, previousModel, introspect.Options{
			NativeTypes: introspectNativeTypes,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		ast := datamodel.Lift(result.Datamodel)
		if previous != nil {
			ast.Datasources = previous.Datasources
			ast.Generators = previous.Generators
		}

		out := cmd.OutOrStdout()
		if introspectPrint {
			text, err := loader.RenderSchema(ast)
			if err != nil {
				return err
			}
			fmt.Fprint(out, text)
		} else {
			if err := loader.WriteSchemaToYAML(path, ast); err != nil {
				return err
			}
			green.Fprintf(out, "✅ Introspected %d models and %d enums into %s\n", len(ast.Models), len(ast.Enums), path)
		}

		for _, w := range result.Warnings {
			yellow.Fprintf(os.Stderr, "⚠️  [%d] %s\n", w.Code, w.Message)
			for _, a := range w.Affected {
				fmt.Fprintf(os.Stderr, "   - %s\n", affectedName(a))
			}
		}
		logger.Debug("introspection finished", "version", result.Version, "warnings", len(result.Warnings))
		return nil
	},
}

func init() {
	introspectCmd.Flags().StringP("schema", "s", "", "Schema file (default from config)")
	introspectCmd.Flags().BoolVar(&introspectPrint, "print", false, "Print the schema instead of writing it")
	introspectCmd.Flags().BoolVar(&introspectNativeTypes, "native-types", false, "Keep native column types as @db attributes")
}

func affectedName(a introspect.Affected) string {
	switch {
	case a.Model != "" && a.Field != "":
		return fmt.Sprintf("Model: %q, Field: %q", a.Model, a.Field)
	case a.Model != "":
		return fmt.Sprintf("Model: %q", a.Model)
	case a.Enum != "" && a.Value != "":
		return fmt.Sprintf("Enum: %q, Value: %q", a.Enum, a.Value)
	case a.Enum != "":
		return fmt.Sprintf("Enum: %q", a.Enum)
	}
	return a.Type
}
