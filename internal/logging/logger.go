package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/zargar/internal/config"
)

// NewLogger creates a structured zerolog.Logger for the named binary. The
// service field falls back to the binary name when SERVICE_NAME is unset.
func NewLogger(cfg *config.Config, binary string) zerolog.Logger {
	return newLogger(os.Stdout, cfg, binary)
}

func newLogger(w io.Writer, cfg *config.Config, binary string) zerolog.Logger {
	service := cfg.ServiceName
	if service == "" {
		service = binary
	}
	ctx := zerolog.New(w).With().Timestamp().Str("service", service)
	if cfg.TaskQueue != "" {
		ctx = ctx.Str("task_queue", cfg.TaskQueue)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return ctx.Logger().Level(level)
}
