// Package logging wires the controller's per-component loggers onto a
// single rotating log file. Not grounded on the teacher, which only ever
// printed to stdout for an interactive training run; this controller is
// expected to run unattended for days at a time (spec §5: "expected to
// run until killed"), so it gets log rotation the teacher never needed.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the rotating log file's retention policy.
type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultConfig is a reasonable retention policy for an unattended
// long-running process: a handful of capped, age-bounded backups rather
// than unbounded growth.
func DefaultConfig(path string) Config {
	return Config{Path: path, MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30}
}

// New builds a per-component *log.Logger writing to both the rotating
// file and stdout (so a foreground run still shows activity), prefixed
// with component for easy grepping across the one shared file.
func New(cfg Config, component string) *log.Logger {
	rotate := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	out := io.MultiWriter(rotate, os.Stdout)
	return log.New(out, "["+component+"] ", log.LstdFlags|log.Lmicroseconds)
}
