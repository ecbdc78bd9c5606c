// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"github.com/grailbio/base/sync/once"
	"github.com/grailbio/calcgraph/log"
	"github.com/grailbio/calcgraph/metrics"
	"github.com/grailbio/calcgraph/trace"
)

// OnceConfig memoizes the first call of the following methods to the
// underlying config: Logger, Metrics and Tracer. Metrics clients
// register with a registry and tracers own a file, so each must be
// created at most once per process.
type OnceConfig struct {
	Config

	loggerOnce once.Task
	logger     *log.Logger

	metricsOnce once.Task
	metrics     metrics.Client

	tracerOnce once.Task
	tracer     trace.Tracer
}

// Once constructs a new OnceConfig using the provided
// underlying configuration.
func Once(cfg Config) *OnceConfig {
	return &OnceConfig{Config: cfg}
}

// Logger returns the result of the first call to the underlying
// configuration's Logger.
func (o *OnceConfig) Logger() (*log.Logger, error) {
	err := o.loggerOnce.Do(func() (err error) {
		o.logger, err = o.Config.Logger()
		return
	})
	return o.logger, err
}

// Metrics returns the result of the first call to the underlying
// configuration's Metrics.
func (o *OnceConfig) Metrics() (metrics.Client, error) {
	err := o.metricsOnce.Do(func() (err error) {
		o.metrics, err = o.Config.Metrics()
		return
	})
	return o.metrics, err
}

// Tracer returns the result of the first call to the underlying
// configuration's Tracer.
func (o *OnceConfig) Tracer() (trace.Tracer, error) {
	err := o.tracerOnce.Do(func() (err error) {
		o.tracer, err = o.Config.Tracer()
		return
	})
	return o.tracer, err
}
