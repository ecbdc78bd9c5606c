// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package log provides leveled loggers that can be teed into
// per-component children. A graph run owns a root logger; every node
// derives a child that prefixes its messages with the node's name.
// Nil loggers discard everything, so components log unconditionally.
package log

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

// Level defines the verbosity of a logger. Higher levels are more
// verbose.
type Level int

const (
	// OffLevel turns logging off.
	OffLevel Level = iota
	// ErrorLevel outputs only error messages.
	ErrorLevel
	// InfoLevel is the default level.
	InfoLevel
	// DebugLevel outputs scheduling decisions.
	DebugLevel
)

var levelNames = [...]string{
	OffLevel:   "off",
	ErrorLevel: "error",
	InfoLevel:  "info",
	DebugLevel: "debug",
}

// String returns the configuration name of level l.
func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel returns the level named by s (case insensitive).
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(l), nil
		}
	}
	return OffLevel, fmt.Errorf("unknown log level %q", s)
}

// An Outputter receives published log messages. Go's *log.Logger
// implements Outputter.
type Outputter interface {
	Output(calldepth int, s string) error
}

type multiOutputter []Outputter

func (m multiOutputter) Output(calldepth int, s string) error {
	var err error
	for _, out := range m {
		if err1 := out.Output(calldepth+1, s); err1 != nil {
			err = err1
		}
	}
	return err
}

// MultiOutputter returns an Outputter that publishes each message to
// all of outputters.
func MultiOutputter(outputters ...Outputter) Outputter {
	return multiOutputter(outputters)
}

// A Logger publishes messages at or below its level to its
// outputter, and forwards them to its parent, if any.
type Logger struct {
	// Outputter receives all messages at or below Level.
	Outputter
	// Level is the logger's verbosity.
	Level Level

	parent *Logger
	prefix string
}

// New returns a logger that publishes messages at or below level to
// out. New returns nil (a discarding logger) for OffLevel.
func New(out Outputter, level Level) *Logger {
	if level == OffLevel {
		return nil
	}
	return &Logger{Outputter: out, Level: level}
}

// Print formats a message in the manner of fmt.Print at InfoLevel.
func (l *Logger) Print(v ...interface{}) {
	l.print(2, InfoLevel, "", v...)
}

// Printf formats a message in the manner of fmt.Printf at InfoLevel.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.printf(2, InfoLevel, "", format, args...)
}

// Error formats a message in the manner of fmt.Print at ErrorLevel.
func (l *Logger) Error(v ...interface{}) {
	l.print(2, ErrorLevel, "", v...)
}

// Errorf formats a message in the manner of fmt.Printf at ErrorLevel.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.printf(2, ErrorLevel, "", format, args...)
}

// Debug formats a message in the manner of fmt.Print at DebugLevel.
func (l *Logger) Debug(v ...interface{}) {
	l.print(2, DebugLevel, "", v...)
}

// Debugf formats a message in the manner of fmt.Printf at DebugLevel.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.printf(2, DebugLevel, "", format, args...)
}

// At tells whether the logger publishes messages at level.
func (l *Logger) At(level Level) bool {
	return l != nil && level <= l.Level
}

func (l *Logger) print(calldepth int, level Level, prefix string, v ...interface{}) {
	if l == nil {
		return
	}
	if l.Outputter != nil && level <= l.Level {
		l.Output(calldepth+1, prefix+fmt.Sprint(v...))
	}
	if l.parent != nil {
		l.parent.print(calldepth+1, level, l.prefix+prefix, v...)
	}
}

func (l *Logger) printf(calldepth int, level Level, prefix, format string, args ...interface{}) {
	if l == nil {
		return
	}
	if l.Outputter != nil && level <= l.Level {
		l.Output(calldepth+1, prefix+fmt.Sprintf(format, args...))
	}
	if l.parent != nil {
		l.parent.printf(calldepth+1, level, l.prefix+prefix, format, args...)
	}
}

// Tee returns a child logger that publishes to out (which may be
// nil) and forwards every message to l, prefixed by prefix.
func (l *Logger) Tee(out Outputter, prefix string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		Outputter: out,
		Level:     l.Level,
		parent:    l,
		prefix:    prefix,
	}
}

type contextKey struct{}

// WithLogger returns a context carrying logger l.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger carried by ctx, or nil.
func FromContext(ctx context.Context) *Logger {
	l, _ := ctx.Value(contextKey{}).(*Logger)
	return l
}

// Std is the standard logger.
var Std = New(log.New(os.Stderr, "", log.LstdFlags), InfoLevel)

// Convenience functions that log to Std.
var (
	Print  = Std.Print
	Printf = Std.Printf
	Error  = Std.Error
	Errorf = Std.Errorf
	Debug  = Std.Debug
	Debugf = Std.Debugf
	At     = Std.At
)

// Fatal formats a message in the manner of fmt.Print, outputs it to
// Std regardless of level, and exits the process.
func Fatal(v ...interface{}) {
	Std.Output(2, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf formats a message in the manner of fmt.Printf, outputs it to
// Std regardless of level, and exits the process.
func Fatalf(format string, v ...interface{}) {
	Std.Output(2, fmt.Sprintf(format, v...))
	os.Exit(1)
}
