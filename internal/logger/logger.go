// Package logger configures the global zerolog logger.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	Output string // "stdout", "stderr", "file" or "json"
	Level  string // "debug", "info", "warn", "error"
	File   string // log file path when Output is "file"
}

// Init configures the global logger. The returned closer releases the log
// file, if any.
func Init(cfg Config) (io.Closer, error) {
	logger, closer, err := New(cfg)
	if err != nil {
		return nil, err
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger
	return closer, nil
}

// New builds a logger without touching global state. Console outputs are
// colored; file and json outputs write JSON lines.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := ParseLevel(cfg.Level)
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.CallerMarshalFunc = shortCaller

	var (
		writer  io.Writer
		closer  io.Closer = nopCloser{}
		console bool
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		writer, console = os.Stdout, true
	case "stderr":
		writer, console = os.Stderr, true
	case "json":
		writer = os.Stdout
	case "file":
		if cfg.File == "" {
			return zerolog.Logger{}, nil, errors.New("log file path is required for file output")
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, errors.Wrap(err, "failed to open log file")
		}
		writer, closer = f, f
	default:
		return zerolog.Logger{}, nil, errors.Newf("unknown log output: %s", cfg.Output)
	}

	if console {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.TimeOnly,
			PartsOrder: []string{"time", "level", "message", "caller"},
			FormatCaller: func(i any) string {
				if s, ok := i.(string); ok && s != "" {
					return "(" + s + ")"
				}
				return ""
			},
		}
	}

	ctx := zerolog.New(writer).Level(level).With().Timestamp()
	// Caller only at debug level
	if level == zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), closer, nil
}

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// shortCaller trims the caller path to its last directory and file.
func shortCaller(_ uintptr, file string, line int) string {
	parts := strings.Split(file, string(filepath.Separator))
	if len(parts) > 1 {
		return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
