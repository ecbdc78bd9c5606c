// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"expvar"
	"fmt"
	"sync"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/stream"
)

// expVarGraph is the prefix of the exported names of graph stats.
const expVarGraph = "calcgraph"

var (
	exportMu          sync.Mutex
	exportNameCounter int
	exportedNames     []string
)

// NodeStats is a snapshot of a node's progress.
type NodeStats struct {
	// State is the node's lifecycle state.
	State string
	// Invocations counts the node's committed invocations by phase.
	Invocations [maxPhase]int64
	// Errors is the number of the node's invocations that failed.
	Errors int64
	// Last is the timestamp of the node's last committed Process
	// invocation, or calcgraph.Unset.
	Last calcgraph.Timestamp
}

// Processed returns the number of committed Process invocations.
func (s NodeStats) Processed() int64 {
	return s.Invocations[Process]
}

// StreamStats is a snapshot of a stream's progress.
type StreamStats struct {
	stream.Stats
	// Bound is the stream's current timestamp bound.
	Bound calcgraph.Timestamp
}

// Stats is a snapshot of a graph's progress.
type Stats struct {
	Nodes   map[string]NodeStats
	Streams map[string]StreamStats
	// Idle tells whether the graph was idle at the scheduler's
	// last check.
	Idle bool
	// Done tells whether the run has finished, and Err is its error.
	Done bool
	Err  string
}

// Stats returns a snapshot of the graph's progress. It may be called
// at any time, concurrently with a run.
func (g *Graph) Stats() Stats {
	stats := Stats{
		Nodes:   make(map[string]NodeStats, len(g.nodes)),
		Streams: make(map[string]StreamStats, len(g.streams)),
	}
	g.mu.Lock()
	for _, n := range g.nodes {
		stats.Nodes[n.name] = n.stats
	}
	stats.Idle, stats.Done = g.idle, g.done
	if g.err != nil {
		stats.Err = g.err.Error()
	}
	g.mu.Unlock()
	for name, s := range g.streams {
		stats.Streams[name] = StreamStats{Stats: s.Stats(), Bound: s.Bound()}
	}
	return stats
}

// Publish publishes the graph's stats as a go expvar. It returns the
// name under which the stats are published. Repeated calls publish
// the stats once.
func (g *Graph) Publish() string {
	_ = g.publish.Do(func() error {
		exportMu.Lock()
		g.exportName = fmt.Sprintf("%s-%d", expVarGraph, exportNameCounter)
		exportNameCounter++
		exportedNames = append(exportedNames, g.exportName)
		exportMu.Unlock()
		expvar.Publish(g.exportName, expvar.Func(func() interface{} { return g.Stats() }))
		return nil
	})
	return g.exportName
}

// ExportedNames returns the names under which graph stats have been
// published, in order of publication.
func ExportedNames() []string {
	exportMu.Lock()
	defer exportMu.Unlock()
	return append([]string(nil), exportedNames...)
}
