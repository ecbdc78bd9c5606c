// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"io"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

// dotNode is a graph node in the dot graph. The host, which feeds
// the graph's input streams, is represented by a node of its own.
type dotNode struct {
	id   int64
	name string
	typ  string
	host bool
}

// ID implements graph.Node.
func (n dotNode) ID() int64 { return n.id }

// DOTID implements dot.Node.
func (n dotNode) DOTID() string { return n.name }

// Attributes implements encoding.Attributer.
func (n dotNode) Attributes() []encoding.Attribute {
	if n.host {
		return []encoding.Attribute{{Key: "shape", Value: "invhouse"}}
	}
	return []encoding.Attribute{
		{Key: "shape", Value: "box"},
		{Key: "label", Value: `"` + n.name + `\n` + n.typ + `"`},
	}
}

// dotEdge connects a stream's producer to one of its consumers. All
// streams between the same pair of nodes share an edge.
type dotEdge struct {
	graph.Edge
	streams  []string
	backEdge bool
}

// Attributes implements encoding.Attributer.
// Back edges are dashed.
func (e dotEdge) Attributes() []encoding.Attribute {
	attrs := []encoding.Attribute{{Key: "label", Value: `"` + strings.Join(e.streams, `\n`) + `"`}}
	if e.backEdge {
		attrs = append(attrs, encoding.Attribute{Key: "style", Value: "dashed"})
	}
	return attrs
}

// WriteDot writes the graph's topology to w in Graphviz dot format.
func (g *Graph) WriteDot(w io.Writer) error {
	var (
		dg        = simple.NewDirectedGraph()
		nodes     = make([]dotNode, len(g.nodes))
		producers = make(map[string]int64)
		host      = dotNode{id: int64(len(g.nodes)), name: "host", host: true}
	)
	for i, n := range g.nodes {
		nodes[i] = dotNode{id: int64(i), name: n.name, typ: n.typ}
		dg.AddNode(nodes[i])
		for _, out := range n.config.Outputs {
			producers[out.Stream] = int64(i)
		}
	}
	if len(g.config.InputStreams) > 0 {
		dg.AddNode(host)
		for _, name := range g.config.InputStreams {
			producers[name] = host.id
		}
	}
	type pair struct{ from, to int64 }
	edges := make(map[pair]*dotEdge)
	var order []pair
	for i, n := range g.nodes {
		for _, in := range n.config.Inputs {
			// Self edges cannot be represented in a simple graph.
			from, ok := producers[in.Stream]
			if !ok || from == int64(i) {
				continue
			}
			p := pair{from, int64(i)}
			e := edges[p]
			if e == nil {
				e = &dotEdge{Edge: dg.NewEdge(dg.Node(from), nodes[i])}
				edges[p] = e
				order = append(order, p)
			}
			e.streams = append(e.streams, in.Stream)
			e.backEdge = e.backEdge || in.BackEdge
		}
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].from == order[j].from {
			return order[i].to < order[j].to
		}
		return order[i].from < order[j].from
	})
	for _, p := range order {
		dg.SetEdge(*edges[p])
	}
	b, err := dot.Marshal(dg, "calcgraph", "", "\t")
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
