package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// LoadEnv loads the given .env files, or ./.env when none are given, into
// the process environment. Variables already set win. It reports whether a
// file was loaded; a missing file is not an error.
func LoadEnv(files ...string) (bool, error) {
	err := godotenv.Load(files...)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading .env: %w", err)
	}
	return true, nil
}

// DatabaseURL returns the configured database url or an error telling the
// user where to set it.
func (c *Config) DatabaseURL() (string, error) {
	if c.Database.URL == "" {
		return "", errors.New("database url not set (database.url in schemaengine.yaml, DATABASE_URL in .env or the environment)")
	}
	return c.Database.URL, nil
}
