// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package metrics

import "context"

var (
	// CounterDecls declares the engine's counters.
	CounterDecls = map[string]counterOpts{
		"invocations_total": {
			Help:   "Count of committed calculator invocations.",
			Labels: []string{"node", "phase"},
		},
		"invocation_errors_total": {
			Help:   "Count of failed calculator invocations.",
			Labels: []string{"node"},
		},
		"packets_total": {
			Help:   "Count of packets appended to streams.",
			Labels: []string{"stream"},
		},
		"bound_advances_total": {
			Help:   "Count of timestamp bound advances without packets.",
			Labels: []string{"stream"},
		},
		"runs_total": {
			Help:   "Count of completed graph runs.",
			Labels: []string{"status"},
		},
	}
	// Gauges declares the engine's gauges.
	Gauges = map[string]gaugeOpts{
		"inflight_invocations": {
			Help: "Number of calculator invocations currently executing.",
		},
		"ready_nodes": {
			Help: "Number of nodes with a ready timestamp awaiting a worker.",
		},
	}
	// Histograms declares the engine's histograms.
	Histograms = map[string]histogramOpts{
		"invocation_latency_seconds": {
			Help:    "Calculator invocation latency in seconds.",
			Labels:  []string{"node"},
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
		},
	}
)

// GetInvocationsCounter returns the counter of committed invocations
// of node in phase (open, process or close).
func GetInvocationsCounter(ctx context.Context, node, phase string) Counter {
	return getCounter(ctx, "invocations_total", map[string]string{"node": node, "phase": phase})
}

// GetInvocationErrorsCounter returns the counter of failed
// invocations of node.
func GetInvocationErrorsCounter(ctx context.Context, node string) Counter {
	return getCounter(ctx, "invocation_errors_total", map[string]string{"node": node})
}

// GetPacketsCounter returns the counter of packets appended to stream.
func GetPacketsCounter(ctx context.Context, stream string) Counter {
	return getCounter(ctx, "packets_total", map[string]string{"stream": stream})
}

// GetBoundAdvancesCounter returns the counter of bound-only advances
// of stream.
func GetBoundAdvancesCounter(ctx context.Context, stream string) Counter {
	return getCounter(ctx, "bound_advances_total", map[string]string{"stream": stream})
}

// GetRunsCounter returns the counter of runs that ended with status.
func GetRunsCounter(ctx context.Context, status string) Counter {
	return getCounter(ctx, "runs_total", map[string]string{"status": status})
}

// GetInflightInvocationsGauge returns the gauge of executing
// invocations.
func GetInflightInvocationsGauge(ctx context.Context) Gauge {
	return getGauge(ctx, "inflight_invocations", nil)
}

// GetReadyNodesGauge returns the gauge of ready nodes.
func GetReadyNodesGauge(ctx context.Context) Gauge {
	return getGauge(ctx, "ready_nodes", nil)
}

// GetInvocationLatencyHistogram returns the histogram of invocation
// latencies of node.
func GetInvocationLatencyHistogram(ctx context.Context, node string) Histogram {
	return getHistogram(ctx, "invocation_latency_seconds", map[string]string{"node": node})
}
