// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package localtraceconfig registers the local tracer provider.
package localtraceconfig

import (
	"errors"

	"github.com/grailbio/calcgraph/config"
	"github.com/grailbio/calcgraph/trace"
	"github.com/grailbio/calcgraph/trace/localtrace"
)

func init() {
	config.Register(config.Tracer, "local", "path",
		"write a trace of the run to path, in the Chrome tracing format",
		func(cfg config.Config, arg string) (config.Config, error) {
			if arg == "" {
				return nil, errors.New("local tracer: missing path")
			}
			return &Tracer{Config: cfg, Path: arg}, nil
		},
	)
}

// Tracer is the local tracer configuration provider.
type Tracer struct {
	config.Config
	Path string
}

// Tracer returns a local tracer writing to Path. The caller flushes
// it once the run is done.
func (t *Tracer) Tracer() (trace.Tracer, error) {
	tracer, err := localtrace.New(t.Path)
	if err != nil {
		return nil, err
	}
	return tracer, nil
}
