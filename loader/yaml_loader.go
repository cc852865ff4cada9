package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ridoystarlord/schemaengine/schema"
)

// LoadSchemaFromYAML reads and parses a schema file.
func LoadSchemaFromYAML(filename string) (*schema.SchemaAst, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}

	ast, err := schema.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling YAML: %w", err)
	}
	return ast, nil
}

// ParseSchema parses schema text that did not come from a file, such as a
// data model stored alongside a migration.
func ParseSchema(text string) (*schema.SchemaAst, error) {
	if text == "" {
		return &schema.SchemaAst{}, nil
	}
	ast, err := schema.Unmarshal([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("unmarshalling YAML: %w", err)
	}
	return ast, nil
}

// RenderSchema renders an AST back to schema text.
func RenderSchema(ast *schema.SchemaAst) (string, error) {
	data, err := schema.Marshal(ast)
	if err != nil {
		return "", fmt.Errorf("marshalling YAML: %w", err)
	}
	return string(data), nil
}

// WriteSchemaToYAML writes the AST to filename, creating parent directories.
func WriteSchemaToYAML(filename string, ast *schema.SchemaAst) error {
	text, err := RenderSchema(ast)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating schema directory: %w", err)
		}
	}
	if err := os.WriteFile(filename, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing schema file: %w", err)
	}
	return nil
}
