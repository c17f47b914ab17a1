package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shinji-kodama/envboot/internal/config"
)

// logPrefix is shown in front of every log line.
const logPrefix = "envboot"

// newLogger builds the logger shared by every step.
//
// Output goes to w (stderr in production) so the entry point's stdout is
// never mixed with envboot's own messages. --verbose lowers the level to
// debug. When cfg.File is set, the same lines are also written to a
// rotating log file with timestamps; relative paths are resolved against
// workDir.
//
// The returned closer flushes and closes the log file. It is never nil.
func newLogger(w io.Writer, verbose bool, cfg config.LogConfig, workDir string) (*log.Logger, io.Closer, error) {
	opts := log.Options{Prefix: logPrefix, Level: log.InfoLevel}
	if verbose {
		opts.Level = log.DebugLevel
	}

	if cfg.File == "" {
		return log.NewWithOptions(w, opts), nopCloser{}, nil
	}

	file, err := newLogFile(cfg, workDir)
	if err != nil {
		return nil, nil, err
	}
	opts.ReportTimestamp = true
	return log.NewWithOptions(io.MultiWriter(w, file), opts), file, nil
}

// newLogFile returns a size-rotated log file writer.
func newLogFile(cfg config.LogConfig, workDir string) (*lumberjack.Logger, error) {
	path := cfg.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
