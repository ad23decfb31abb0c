package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns the service logger. LOG_FORMAT=json emits JSON lines for
// log shipping; anything else uses the text handler. Development runs log at
// debug level.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelInfo}
	env := ""
	if cfg != nil {
		env = cfg.AppEnv
		if env == "development" {
			opts.Level = slog.LevelDebug
		}
	}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", "stockledger"), slog.String("env", env))
}
