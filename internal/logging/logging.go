package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"system-insight/internal/config"
)

const timeFormat = "2006-01-02 15:04:05.000"

// Logger is the process logger together with its rotating file, if any.
type Logger struct {
	*slog.Logger
	file *lumberjack.Logger
}

// New builds the process logger. Records always go to console; when
// cfg.File is set they are also appended to a size-rotated file.
func New(cfg config.LogConfig, console io.Writer) *Logger {
	if console == nil {
		console = os.Stdout
	}

	l := &Logger{}
	writer := console
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		writer = io.MultiWriter(console, l.file)
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && !cfg.JSON {
				return slog.String(slog.TimeKey, a.Value.Time().Format(timeFormat))
			}
			return a
		},
	}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	l.Logger = slog.New(handler)
	return l
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Close flushes and closes the log file. The console is left open.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
