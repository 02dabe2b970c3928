// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package logging is the ambient logging layer: named per-subsystem
// loggers over stdlib log/log/syslog, plus the debug-level bookkeeping
// the public API's SetDebug/DebugStatus expose. It generalizes
// common/configd_log.go's Elog/Dlog/LoggingIsEnabledAtLevel shape from a
// fixed (commit, state) pair of log types to the set of subsystem names
// this module actually has (client, audit, ctl, daemon).
package logging

import (
	"fmt"
	"io"
	"log"
	"log/syslog"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level mirrors common.LogLevel: ordered least to most verbose so
// "is this enabled" is a plain numeric comparison.
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelError:
		return "error"
	}
	return "none"
}

// ParseLevel maps a level name the way common.MapLevelNameToLevel does.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "error":
		return LevelError, nil
	case "none":
		return LevelNone, nil
	}
	return LevelNone, fmt.Errorf("log level %q not recognised; use none|error|debug", s)
}

// registry is the process-wide set of named subsystem loggers, each
// with its own independently settable level (common's cfgDebugSettings
// generalized from a fixed-size array to a map keyed by name, since this
// module's subsystem set isn't known at compile time the way configd's
// TypeCommit/TypeState pair is).
var registry = struct {
	mu     sync.Mutex
	levels map[string]Level
}{levels: make(map[string]Level)}

// Logger is one named subsystem's error/debug log pair, backed by
// stdlib log writing to an optional syslog.Writer (falling back to
// stderr when syslog is unavailable, e.g. in tests).
type Logger struct {
	name string
	elog *log.Logger
	dlog *log.Logger
}

// New constructs a Logger for subsystem name, defaulting to LevelError
// (commit-style "always on") the first time name is seen.
func New(name string) *Logger {
	registry.mu.Lock()
	if _, ok := registry.levels[name]; !ok {
		registry.levels[name] = LevelError
	}
	registry.mu.Unlock()

	out := outputFor(name)
	return &Logger{
		name: name,
		elog: log.New(out, "["+name+"] ERROR: ", log.LstdFlags),
		dlog: log.New(out, "["+name+"] DEBUG: ", log.LstdFlags),
	}
}

// outputFor opens a syslog writer for name, falling back to stderr when
// no syslog daemon is reachable (true of most test/dev environments);
// common/configd_log.go tolerates the same absence.
func outputFor(name string) io.Writer {
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, name)
	if err != nil {
		return os.Stderr
	}
	return w
}

// IsEnabled reports whether this subsystem is enabled at or above level
// (common.LoggingIsEnabledAtLevel).
func (l *Logger) IsEnabled(level Level) bool {
	registry.mu.Lock()
	cur := registry.levels[l.name]
	registry.mu.Unlock()
	return cur >= level
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.IsEnabled(LevelError) {
		l.elog.Printf(format, args...)
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.IsEnabled(LevelDebug) {
		l.dlog.Printf(format, args...)
	}
}

// SetLevel sets name's level, creating the entry if it's the first
// reference (mirrors common.SetConfigDebug's per-type mutation).
func SetLevel(name string, level Level) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.levels[name] = level
}

// Status renders every known subsystem's current level, the
// generalization of common.CurrentLogStatus.
func Status() string {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	var b strings.Builder
	b.WriteString("Current Debug Status:\n\n")
	names := make([]string, 0, len(registry.levels))
	for n := range registry.levels {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "%s\t%s\n", n, registry.levels[n])
	}
	b.WriteString("\nValid levels: none, error, debug\n")
	return b.String()
}
