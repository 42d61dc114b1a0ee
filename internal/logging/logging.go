package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, output and format. Empty fields use defaults:
// info level, stderr, console format.
type Config struct {
	Level    string `mapstructure:"level"`
	Output   string `mapstructure:"output"`
	Format   string `mapstructure:"format"`
	FilePath string `mapstructure:"file_path"`
}

// New constructs a zerolog logger based on config settings.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil && cfg.Level != "" {
		level = parsed
	}

	output := io.Writer(os.Stderr)
	var closer io.Closer

	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "stdout":
		output = os.Stdout
	case "file":
		if cfg.FilePath == "" {
			return zerolog.Nop(), nil, fmt.Errorf("logging.output=file requires logging.file_path")
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
		closer = file
	}

	if strings.ToLower(strings.TrimSpace(cfg.Format)) != "json" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen, NoColor: closer != nil}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(output).Level(level).With().Timestamp().Logger(), closer, nil
}
