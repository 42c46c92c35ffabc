// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type Options struct {
	// Path is the log file. Empty logs to Stderr.
	Path  string
	Level slog.Level

	// Stderr additionally receives every record when Mirror is set.
	Stderr io.Writer
	Mirror bool
}

// New creates a JSON logger and installs it as the slog default. The
// returned close function flushes and closes the log file.
func New(opts Options) (*slog.Logger, func() error, error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	closeFn := func() error { return nil }

	var w io.Writer = opts.Stderr
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closeFn = f.Close
		w = f
		if opts.Mirror {
			w = io.MultiWriter(f, opts.Stderr)
		}
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level}))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}
