// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calculators

import (
	"sync"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/graph"
)

// Collect is a sink that retains every packet it receives, keyed by
// input tag. The number of packets collected is kept in the node's
// counter "packets".
type Collect struct {
	mu      sync.Mutex
	packets map[string][]calcgraph.Packet
}

// Open implements graph.Calculator.
func (c *Collect) Open(*graph.CalculatorContext) error {
	c.mu.Lock()
	if c.packets == nil {
		c.packets = make(map[string][]calcgraph.Packet)
	}
	c.mu.Unlock()
	return nil
}

// Process implements graph.Calculator.
func (c *Collect) Process(cc *graph.CalculatorContext) error {
	n := cc.Counter("packets")
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range cc.InputTags() {
		p := cc.Input(tag)
		if p.IsEmpty() {
			continue
		}
		c.packets[tag] = append(c.packets[tag], p)
		n.Inc()
	}
	return nil
}

// Close implements graph.Calculator.
func (c *Collect) Close(*graph.CalculatorContext) error { return nil }

// Packets returns the packets received on input tag, in timestamp
// order.
func (c *Collect) Packets(tag string) []calcgraph.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]calcgraph.Packet(nil), c.packets[tag]...)
}
