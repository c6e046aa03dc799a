package testhelp

import (
	"log/slog"
	"os"
)

func Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}

	h := slog.NewJSONHandler(os.Stdout, opts)

	return slog.New(h).With(
		slog.String("service", "imgcache"),
		slog.String("env", "test"),
	)
}
