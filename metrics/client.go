// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package metrics defines the engine's metrics and the client
// interface through which they are reported. Metrics are declared up
// front (see metrics.go) and looked up through a Client carried by
// the run's context; when no client is present, lookups return
// no-op instruments.
//
// Package metrics also defines CounterSet, the get-or-create counter
// registry through which calculators maintain their own counters.
package metrics

import (
	"context"
	"fmt"
)

// Gauge is a metric that can be set to arbitrary values.
type Gauge interface {
	// Set sets the gauge's value.
	Set(float64)
	// Inc increments the gauge by 1.
	Inc()
	// Dec decrements the gauge by 1.
	Dec()
	// Add adds the given (possibly negative) value to the gauge.
	Add(float64)
	// Sub subtracts the given value from the gauge.
	Sub(float64)
}

// Counter is a metric that only increases.
type Counter interface {
	// Inc adds one to the counter.
	Inc()
	// Add adds the given non-negative value to the counter.
	Add(float64)
}

// Histogram records observations into preconfigured buckets.
type Histogram interface {
	// Observe adds an observation.
	Observe(float64)
}

type labelSet []string

type gaugeOpts struct {
	Labels labelSet
	Help   string
}

type counterOpts struct {
	Labels labelSet
	Help   string
}

type histogramOpts struct {
	Labels  labelSet
	Help    string
	Buckets []float64
}

func completeLabels(labelSet labelSet, labels map[string]string) bool {
	if len(labels) != len(labelSet) {
		return false
	}
	for _, label := range labelSet {
		if _, ok := labels[label]; !ok {
			return false
		}
	}
	return true
}

func getGauge(ctx context.Context, name string, labels map[string]string) Gauge {
	if !On(ctx) {
		return nopGauge{}
	}
	opts, ok := Gauges[name]
	if !ok {
		panic(fmt.Sprintf("undeclared gauge %s", name))
	}
	if !completeLabels(opts.Labels, labels) {
		panic(fmt.Sprintf("gauge %s: expected labels %v, got %v", name, opts.Labels, labels))
	}
	return clientOf(ctx).GetGauge(name, labels)
}

func getCounter(ctx context.Context, name string, labels map[string]string) Counter {
	if !On(ctx) {
		return nopCounter{}
	}
	opts, ok := CounterDecls[name]
	if !ok {
		panic(fmt.Sprintf("undeclared counter %s", name))
	}
	if !completeLabels(opts.Labels, labels) {
		panic(fmt.Sprintf("counter %s: expected labels %v, got %v", name, opts.Labels, labels))
	}
	return clientOf(ctx).GetCounter(name, labels)
}

func getHistogram(ctx context.Context, name string, labels map[string]string) Histogram {
	if !On(ctx) {
		return nopHistogram{}
	}
	opts, ok := Histograms[name]
	if !ok {
		panic(fmt.Sprintf("undeclared histogram %s", name))
	}
	if !completeLabels(opts.Labels, labels) {
		panic(fmt.Sprintf("histogram %s: expected labels %v, got %v", name, opts.Labels, labels))
	}
	return clientOf(ctx).GetHistogram(name, labels)
}

// Client is a sink for metrics.
type Client interface {
	GetGauge(name string, labels map[string]string) Gauge
	GetCounter(name string, labels map[string]string) Counter
	GetHistogram(name string, labels map[string]string) Histogram
}

type clientKey struct{}

// WithClient returns a context that reports metrics to client.
func WithClient(ctx context.Context, client Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, clientKey{}, client)
}

// On tells whether ctx carries a metrics client.
func On(ctx context.Context) bool {
	_, ok := ctx.Value(clientKey{}).(Client)
	return ok
}

func clientOf(ctx context.Context) Client {
	return ctx.Value(clientKey{}).(Client)
}
