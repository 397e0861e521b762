package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger. Production gets JSON on stdout at info,
// everything else gets human-readable text at debug. The returned logger is
// also installed as the slog default.
func New(env string) *slog.Logger {
	var handler slog.Handler
	if strings.EqualFold(env, "production") {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
