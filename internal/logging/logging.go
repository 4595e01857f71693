package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

type Options struct {
	Level string
	// File switches output to a rotated JSON log file. Empty means a
	// console writer on Console.
	File    string
	Console io.Writer
}

// New builds the process logger. Console output is human readable; file
// output is one JSON object per line.
func New(opts Options) (zerolog.Logger, error) {
	level := zerolog.WarnLevel
	if strings.TrimSpace(opts.Level) != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), err
		}
		level = l
	}

	var w io.Writer
	if opts.File != "" {
		path, err := expandHome(opts.File)
		if err != nil {
			return zerolog.Nop(), err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return zerolog.Nop(), err
		}
		w = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    2, // megabytes
			MaxBackups: 3,
			MaxAge:     60, // days
		}
	} else {
		console := opts.Console
		if console == nil {
			console = os.Stderr
		}
		w = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}
