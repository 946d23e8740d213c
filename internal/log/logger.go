package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB = 10
	defaultMaxFiles  = 5
)

// Options selects the level and destination of the application logger.
// When File is empty, records go to Stderr (os.Stderr if nil).
type Options struct {
	Level     string
	File      string
	MaxSizeMB int
	MaxFiles  int
	JSON      bool
	Stderr    io.Writer
}

// New builds a redacting slog.Logger. The returned closer releases the
// rotating file, if any, and is never nil.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = opts.Stderr
		closer io.Closer = nopCloser{}
	)
	if out == nil {
		out = os.Stderr
	}
	if opts.File != "" {
		writer, err := openLogFile(opts)
		if err != nil {
			return nil, nil, err
		}
		out = writer
		closer = writer
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if opts.JSON || opts.File != "" {
		base = slog.NewJSONHandler(out, handlerOpts)
	} else {
		base = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(NewRedactingHandler(base)), closer, nil
}

// openLogFile returns a writer that rotates opts.File by size. Rotated names
// carry local time, matching the timestamps in backup file names.
func openLogFile(opts Options) (*lumberjack.Logger, error) {
	if info, err := os.Stat(opts.File); err == nil && info.IsDir() {
		return nil, fmt.Errorf("log file %s is a directory", opts.File)
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	maxSize, maxFiles := opts.MaxSizeMB, opts.MaxFiles
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: maxFiles,
		LocalTime:  true,
	}, nil
}

func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
