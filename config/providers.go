// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	golog "log"
	"os"

	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/log"
	"github.com/grailbio/calcgraph/metrics"
	"github.com/grailbio/calcgraph/trace"
)

func init() {
	Register(Logger, "stderr", "level", "log to standard error at the given level (off, error, info, debug)",
		func(cfg Config, arg string) (Config, error) {
			level := log.InfoLevel
			if arg != "" {
				var err error
				if level, err = log.ParseLevel(arg); err != nil {
					return nil, err
				}
			}
			return &stderrLogger{cfg, level}, nil
		},
	)
	Register(Logger, "file", "path[,level]", "log to the file at path and to standard error at the given level",
		func(cfg Config, arg string) (Config, error) {
			path, arg := peel(arg, ",")
			if path == "" {
				return nil, errors.E("logger", "file", errors.Invalid, errors.New("missing path"))
			}
			level := log.InfoLevel
			if arg != "" {
				var err error
				if level, err = log.ParseLevel(arg); err != nil {
					return nil, err
				}
			}
			f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
			if err != nil {
				return nil, errors.E("logger", "file", path, err)
			}
			return &fileLogger{cfg, f, level}, nil
		},
	)
	Register(Metrics, "off", "", "turn metrics off",
		func(cfg Config, arg string) (Config, error) {
			return &metricsOff{cfg}, nil
		},
	)
	Register(Tracer, "off", "", "turn tracing off",
		func(cfg Config, arg string) (Config, error) {
			return &tracerOff{cfg}, nil
		},
	)
}

type stderrLogger struct {
	Config
	level log.Level
}

func (l *stderrLogger) Logger() (*log.Logger, error) {
	return log.New(golog.New(os.Stderr, "", golog.LstdFlags), l.level), nil
}

type fileLogger struct {
	Config
	file  *os.File
	level log.Level
}

func (l *fileLogger) Logger() (*log.Logger, error) {
	out := log.MultiOutputter(
		golog.New(l.file, "", golog.LstdFlags),
		golog.New(os.Stderr, "", golog.LstdFlags),
	)
	return log.New(out, l.level), nil
}

type metricsOff struct {
	Config
}

func (m *metricsOff) Metrics() (metrics.Client, error) {
	return nil, nil
}

type tracerOff struct {
	Config
}

func (t *tracerOff) Tracer() (trace.Tracer, error) {
	return nil, nil
}
