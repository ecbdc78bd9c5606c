// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package testutil provides calculators and observers for testing
// calculator graphs.
package testutil

import (
	"sync"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/graph"
)

// Recorder records the packets observed on a graph's streams.
type Recorder struct {
	mu      sync.Mutex
	packets map[string][]calcgraph.Packet
}

// NewRecorder returns a recorder that observes the named streams of
// g. It must be called before the graph is started.
func NewRecorder(g *graph.Graph, streams ...string) (*Recorder, error) {
	r := &Recorder{packets: make(map[string][]calcgraph.Packet)}
	for _, name := range streams {
		name := name
		err := g.Observe(name, func(p calcgraph.Packet) error {
			r.mu.Lock()
			r.packets[name] = append(r.packets[name], p)
			r.mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Packets returns the packets observed on stream name.
func (r *Recorder) Packets(name string) []calcgraph.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]calcgraph.Packet(nil), r.packets[name]...)
}

// Timestamps returns the timestamps of the packets observed on
// stream name.
func (r *Recorder) Timestamps(name string) []calcgraph.Timestamp {
	var ts []calcgraph.Timestamp
	for _, p := range r.Packets(name) {
		ts = append(ts, p.Timestamp())
	}
	return ts
}

// Values returns the payloads of the packets observed on stream
// name.
func (r *Recorder) Values(name string) []interface{} {
	var vs []interface{}
	for _, p := range r.Packets(name) {
		vs = append(vs, p.Get())
	}
	return vs
}
