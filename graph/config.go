// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"fmt"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Config describes the topology of a graph: its nodes, the streams
// that connect them, and the streams and side packets supplied by the
// host.
type Config struct {
	// Nodes lists the graph's nodes.
	Nodes []NodeConfig `yaml:"nodes"`
	// InputStreams names the streams fed by the host through
	// Graph.AddPacket.
	InputStreams []string `yaml:"input_streams,omitempty"`
	// InputSidePackets names the side packets the host must supply
	// to Graph.StartRun.
	InputSidePackets []string `yaml:"input_side_packets,omitempty"`
}

// NodeConfig describes a single node.
type NodeConfig struct {
	// Name identifies the node. It defaults to the calculator type
	// suffixed by the node's index.
	Name string `yaml:"name,omitempty"`
	// Type names a calculator registered with RegisterCalculator.
	Type string `yaml:"calculator"`
	// Calculator, if set, is used instead of a registered type.
	Calculator Calculator `yaml:"-"`
	// Inputs lists the node's input stream slots.
	Inputs []InputSlot `yaml:"inputs,omitempty"`
	// Outputs lists the node's output stream slots.
	Outputs []OutputSlot `yaml:"outputs,omitempty"`
	// InputSidePackets binds side packets to the node.
	InputSidePackets []SideSlot `yaml:"input_side_packets,omitempty"`
	// OutputSidePackets lists the side packets set by the node's
	// Open method.
	OutputSidePackets []SideSlot `yaml:"output_side_packets,omitempty"`
	// Options are passed to the calculator through its context.
	Options Options `yaml:"options,omitempty"`
	// MaxInFlight bounds the number of concurrently executing
	// invocations of the node. Zero uses the graph default.
	MaxInFlight int `yaml:"max_in_flight,omitempty"`
	// ThreadSafe permits concurrent invocations of the node to
	// execute their bodies in parallel. Otherwise bodies execute
	// one at a time, in timestamp order.
	ThreadSafe bool `yaml:"thread_safe,omitempty"`
}

// InputSlot binds an input stream to a node.
type InputSlot struct {
	// Tag names the slot within the node. It defaults to Stream.
	Tag string `yaml:"tag,omitempty"`
	// Stream is the name of the stream read by the slot.
	Stream string `yaml:"stream"`
	// Optional inputs do not keep a node open: a node closes when
	// all of its required inputs are done.
	Optional bool `yaml:"optional,omitempty"`
	// BackEdge marks an input that closes a cycle. Back edges do
	// not participate in timestamp synchronization: an invocation
	// at timestamp T sees the latest back edge packet at or before T,
	// if any.
	BackEdge bool `yaml:"back_edge,omitempty"`
}

// OutputSlot binds an output stream to a node.
type OutputSlot struct {
	// Tag names the slot within the node. It defaults to Stream.
	Tag string `yaml:"tag,omitempty"`
	// Stream is the name of the stream written by the slot.
	Stream string `yaml:"stream"`
	// Offset, if set, declares that an invocation at timestamp T
	// never outputs a packet on this slot at a timestamp below
	// T+Offset. When an invocation writes no packet, the stream's
	// bound advances past T+Offset.
	Offset *calcgraph.TimestampDiff `yaml:"offset,omitempty"`
}

// SideSlot binds a side packet to a node.
type SideSlot struct {
	// Tag names the slot within the node. It defaults to Name.
	Tag string `yaml:"tag,omitempty"`
	// Name is the graph-wide name of the side packet.
	Name string `yaml:"name"`
}

// Offset returns a pointer to d, for use in OutputSlot.
func Offset(d calcgraph.TimestampDiff) *calcgraph.TimestampDiff {
	return &d
}

func (s InputSlot) tag() string {
	if s.Tag == "" {
		return s.Stream
	}
	return s.Tag
}

func (s OutputSlot) tag() string {
	if s.Tag == "" {
		return s.Stream
	}
	return s.Tag
}

func (s SideSlot) tag() string {
	if s.Tag == "" {
		return s.Name
	}
	return s.Tag
}

// nodeName returns the name of the i'th node of c.
func (c *Config) nodeName(i int) string {
	n := c.Nodes[i]
	if n.Name != "" {
		return n.Name
	}
	typ := n.Type
	if typ == "" && n.Calculator != nil {
		typ = fmt.Sprintf("%T", n.Calculator)
	}
	return fmt.Sprintf("%s_%d", typ, i)
}

// Validate checks the structure of c: node names and slot tags are
// unique, every stream has exactly one producer, every input stream
// is produced, every side packet is supplied, and every cycle passes
// through a back edge.
func (c *Config) Validate() error {
	var (
		names     = map[string]int{}
		producers = map[string]int{}
		sides     = map[string]int{}
	)
	const host = -1
	for _, s := range c.InputStreams {
		if _, ok := producers[s]; ok {
			return errors.E("validate", "input stream", s, errors.Invalid, errors.New("declared twice"))
		}
		producers[s] = host
	}
	for _, s := range c.InputSidePackets {
		if _, ok := sides[s]; ok {
			return errors.E("validate", "side packet", s, errors.Invalid, errors.New("declared twice"))
		}
		sides[s] = host
	}
	for i, n := range c.Nodes {
		name := c.nodeName(i)
		if _, ok := names[name]; ok {
			return errors.E("validate", "node", name, errors.Invalid, errors.New("duplicate node name"))
		}
		names[name] = i
		if n.Calculator == nil && n.Type == "" {
			return errors.E("validate", "node", name, errors.Invalid, errors.New("no calculator"))
		}
		if n.MaxInFlight < 0 {
			return errors.E("validate", "node", name, errors.Invalid, errors.Errorf("negative max_in_flight %d", n.MaxInFlight))
		}
		var nsync int
		tags := map[string]bool{}
		for _, in := range n.Inputs {
			if !in.BackEdge {
				nsync++
			}
			if in.Stream == "" {
				return errors.E("validate", "node", name, errors.Invalid, errors.New("input without stream"))
			}
			if tags[in.tag()] {
				return errors.E("validate", "node", name, errors.Invalid, errors.Errorf("duplicate input tag %s", in.tag()))
			}
			tags[in.tag()] = true
		}
		if len(n.Inputs) > 0 && nsync == 0 {
			return errors.E("validate", "node", name, errors.Invalid, errors.New("all inputs are back edges"))
		}
		tags = map[string]bool{}
		for _, out := range n.Outputs {
			if out.Stream == "" {
				return errors.E("validate", "node", name, errors.Invalid, errors.New("output without stream"))
			}
			if tags[out.tag()] {
				return errors.E("validate", "node", name, errors.Invalid, errors.Errorf("duplicate output tag %s", out.tag()))
			}
			tags[out.tag()] = true
			if p, ok := producers[out.Stream]; ok {
				return errors.E("validate", "stream", out.Stream, errors.Invalid,
					errors.Errorf("produced by both %s and %s", c.producerName(p), name))
			}
			producers[out.Stream] = i
		}
		tags = map[string]bool{}
		for _, side := range n.OutputSidePackets {
			if tags[side.tag()] {
				return errors.E("validate", "node", name, errors.Invalid, errors.Errorf("duplicate output side packet tag %s", side.tag()))
			}
			tags[side.tag()] = true
			if p, ok := sides[side.Name]; ok {
				return errors.E("validate", "side packet", side.Name, errors.Invalid,
					errors.Errorf("produced by both %s and %s", c.producerName(p), name))
			}
			sides[side.Name] = i
		}
	}
	for i, n := range c.Nodes {
		for _, in := range n.Inputs {
			if _, ok := producers[in.Stream]; !ok {
				return errors.E("validate", "node", c.nodeName(i), errors.NotExist, errors.Errorf("input stream %s has no producer", in.Stream))
			}
		}
		tags := map[string]bool{}
		for _, side := range n.InputSidePackets {
			if tags[side.tag()] {
				return errors.E("validate", "node", c.nodeName(i), errors.Invalid, errors.Errorf("duplicate input side packet tag %s", side.tag()))
			}
			tags[side.tag()] = true
			if p, ok := sides[side.Name]; !ok {
				return errors.E("validate", "node", c.nodeName(i), errors.NotExist, errors.Errorf("side packet %s is not supplied", side.Name))
			} else if p == i {
				return errors.E("validate", "node", c.nodeName(i), errors.Invalid, errors.Errorf("side packet %s depends on itself", side.Name))
			}
		}
	}
	return c.checkCycles(producers, sides)
}

func (c *Config) producerName(i int) string {
	if i < 0 {
		return "the host"
	}
	return c.nodeName(i)
}

// checkCycles verifies that the graph, with back edges removed, is
// acyclic.
func (c *Config) checkCycles(producers, sides map[string]int) error {
	g := simple.NewDirectedGraph()
	for i := range c.Nodes {
		g.AddNode(simple.Node(i))
	}
	for i, n := range c.Nodes {
		for _, in := range n.Inputs {
			p := producers[in.Stream]
			if in.BackEdge || p < 0 || p == i {
				if p == i && !in.BackEdge {
					return errors.E("validate", "node", c.nodeName(i), errors.Invalid,
						errors.Errorf("input %s reads the node's own output; mark it as a back edge", in.Stream))
				}
				continue
			}
			if !g.HasEdgeFromTo(int64(p), int64(i)) {
				g.SetEdge(g.NewEdge(simple.Node(p), simple.Node(i)))
			}
		}
		for _, side := range n.InputSidePackets {
			if p := sides[side.Name]; p >= 0 && p != i && !g.HasEdgeFromTo(int64(p), int64(i)) {
				g.SetEdge(g.NewEdge(simple.Node(p), simple.Node(i)))
			}
		}
	}
	if _, err := topo.Sort(g); err != nil {
		cycles, _ := err.(topo.Unorderable)
		var names []string
		if len(cycles) > 0 {
			for _, n := range cycles[0] {
				names = append(names, c.nodeName(int(n.ID())))
			}
		}
		return errors.E("validate", errors.Invalid, errors.Errorf("cycle without back edge through %v", names))
	}
	return nil
}
