// Package logging builds the slog logger used by the CLI.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Setup returns a text logger at the given level. When directory is set the
// output also goes to a dated file in it, and the returned close func closes
// that file. It is never nil.
func Setup(level, directory string) (*slog.Logger, func() error, error) {
	return setup(os.Stderr, level, directory, time.Now())
}

func setup(out io.Writer, level, directory string, now time.Time) (*slog.Logger, func() error, error) {
	writer, closeFn := out, func() error { return nil }
	if directory != "" {
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		filename := fmt.Sprintf("schemaengine-%s.log", now.Format("2006-01-02"))
		file, err := os.OpenFile(filepath.Join(directory, filename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		writer, closeFn = io.MultiWriter(out, file), file.Close
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler), closeFn, nil
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
