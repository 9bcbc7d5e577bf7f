package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"smart-greenhouse/internal/config"
)

func New(cfg config.Config, version string, appName string) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg, version, appName)
}

// NewWithWriter is New with an explicit sink. Dev builds get colored tint
// output; everything else logs JSON.
func NewWithWriter(w io.Writer, cfg config.Config, version string, appName string) *slog.Logger {
	if version == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
	)
}
