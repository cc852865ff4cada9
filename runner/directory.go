package runner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ridoystarlord/schemaengine/generator"
	"github.com/ridoystarlord/schemaengine/persistence"
)

// MigrationFile is one migration of the migrations directory.
type MigrationFile struct {
	Name string
	Path string
	Up   string
	Down string
}

// Checksum is compared with the checksum recorded when the migration ran.
func (m MigrationFile) Checksum() string {
	return persistence.Checksum(m.Up)
}

// ReadMigrationsDirectory returns the migrations of dir sorted by name. A
// missing directory holds no migrations.
func ReadMigrationsDirectory(dir string) ([]MigrationFile, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	files := make([]MigrationFile, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read file %s: %w", name, err)
		}
		up, down, err := generator.ParseMigrationFile(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse migration file %s: %w", name, err)
		}
		files = append(files, MigrationFile{
			Name: strings.TrimSuffix(name, ".sql"),
			Path: path,
			Up:   up,
			Down: down,
		})
	}
	return files, nil
}

// SplitStatements splits a script into statements. A statement ends on a line
// whose last character is a semicolon; lines that only hold a comment are
// dropped.
func SplitStatements(script string) []string {
	var out []string
	var current []string
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current = append(current, strings.TrimRight(line, " \t\r"))
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.Join(current, "\n"))
			current = nil
		}
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, "\n"))
	}
	return out
}
