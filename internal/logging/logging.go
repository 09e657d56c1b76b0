package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init installs the default logger. LOG_LEVEL picks the level and LOG_FILE,
// when set, sends logs to a file so they do not tear the huddle screen.
func Init() {
	slog.SetDefault(New(os.Getenv("LOG_LEVEL"), logOutput()))
}

// New builds a text logger at the named level. Unknown names keep the
// production default, errors only.
func New(levelName string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(levelName),
	}))
}

func ParseLevel(name string) slog.Level {
	switch name {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func logOutput() io.Writer {
	path := os.Getenv("LOG_FILE")
	if path == "" {
		return os.Stderr
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stderr
	}
	return f
}
