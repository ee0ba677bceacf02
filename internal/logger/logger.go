// Package logger provides the daemon's single structured logger, built on
// charmbracelet/log so standalone runs (terminal, not daemonized) get
// colorized level-aware output while daemonized runs (stdio redirected to a
// log file per spec.md §6) get the same structured key/value lines without
// color codes.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// Environment variable name for log level configuration.
const envLogLevel = "BMDCASTD_LOG_LEVEL"

var (
	global   *charmlog.Logger
	initOnce sync.Once
)

// Init initializes the global logger. Safe to call multiple times; only the
// first call constructs the logger, subsequent calls are no-ops except as a
// convenience guard before SetLevel/UseWriter.
func Init() {
	initOnce.Do(func() {
		global = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			ReportTimestamp: true,
			Level:           detectLevel(),
		})
	})
}

// detectLevel resolves the initial log level from (precedence high→low):
//  1. environment variable BMDCASTD_LOG_LEVEL
//  2. default (info)
//
// The command-line --log-level flag (cmd/bmdcastd/flags.go) overrides this
// via SetLevel once flags have been parsed.
func detectLevel() charmlog.Level {
	if env := os.Getenv(envLogLevel); env != "" {
		if lvl, ok := parseLevel(env); ok {
			return lvl
		}
	}
	return charmlog.InfoLevel
}

func parseLevel(s string) (charmlog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return charmlog.DebugLevel, true
	case "info", "":
		return charmlog.InfoLevel, true
	case "warn", "warning":
		return charmlog.WarnLevel, true
	case "error", "err":
		return charmlog.ErrorLevel, true
	}
	return 0, false
}

// SetLevel changes the runtime log level. Called by cmd/bmdcastd after flag
// parsing.
func SetLevel(level string) error {
	Init()
	lvl, ok := parseLevel(level)
	if !ok {
		return &invalidLevelError{level}
	}
	global.SetLevel(lvl)
	return nil
}

type invalidLevelError struct{ level string }

func (e *invalidLevelError) Error() string { return "invalid log level: " + e.level }

// Level returns the current runtime level as a string.
func Level() string {
	Init()
	return global.GetLevel().String()
}

// UseWriter swaps the output writer (intended for tests). Retains the
// current level.
func UseWriter(w io.Writer) {
	Init()
	lvl := global.GetLevel()
	global = charmlog.NewWithOptions(w, charmlog.Options{ReportTimestamp: true, Level: lvl})
}

// Logger returns the global logger (ensures Init was called).
func Logger() *charmlog.Logger { Init(); return global }

// Convenience top-level logging functions.
func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }

// WithPeer attaches peer identity fields.
func WithPeer(l *charmlog.Logger, peerID string) *charmlog.Logger {
	return l.With("peer_id", peerID)
}

// WithComponent attaches the component field used throughout the daemon's
// subsystems (dispatch, capture, gpusurface, ...).
func WithComponent(l *charmlog.Logger, component string) *charmlog.Logger {
	return l.With("component", component)
}
