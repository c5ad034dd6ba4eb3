// Package logging builds the zerolog logger used across minaconn.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/joacominatel/minaconn/internal/config"
)

// Setup creates a zerolog logger according to the provided configuration.
// Output goes to w, or os.Stderr when w is nil.
func Setup(cfg config.Logging, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "text") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).With().Timestamp().Logger().Level(level), nil
}
