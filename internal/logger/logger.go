package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/RollSatrs/speechcenter-admin/internal/config"
)

// Default rotation parameters (lumberjack semantics).
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// New builds the application logger from config. Console output goes to
// stderr with colorized levels; when cfg.File is set, a rotated JSON copy
// is written there as well.
func New(cfg config.LogConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	console := NewColorTextHandler(os.Stderr, opts, true)
	if cfg.File == "" {
		return slog.New(console)
	}

	file := slog.NewJSONHandler(fileWriter(cfg), opts)
	return slog.New(multiHandler{console, file})
}

func fileWriter(cfg config.LogConfig) io.Writer {
	return &lj.Logger{
		Filename:   cfg.File,
		MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   cfg.Compress,
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
