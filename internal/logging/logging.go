// Package logging configures the process-wide slog logger: leveled,
// human-readable output on stderr plus a rotating log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bradenrollio/easycal-sub000/internal/config"
)

type Options struct {
	Verbose bool
	// File is the log file path; empty means config.LogFilePath. "-"
	// disables the file.
	File   string
	Stderr io.Writer
}

// Setup installs the default slog logger and returns it with a closer
// for the log file.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	level := log.WarnLevel
	if opts.Verbose {
		level = log.DebugLevel
	}

	w := stderr
	var closer io.Closer = nopCloser{}

	if opts.File != "-" {
		path := opts.File
		if path == "" {
			p, err := config.LogFilePath()
			if err != nil {
				return nil, nil, err
			}
			path = p
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}

		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		w = io.MultiWriter(stderr, file)
		closer = file
	}

	handler := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    opts.Verbose,
		Level:           level,
		Prefix:          config.AppName,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
