// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"context"

	"github.com/grailbio/base/status"
	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/stream"
)

// nodeState is the lifecycle state of a node. States only advance.
type nodeState int

const (
	// nodeNew nodes have not been opened.
	nodeNew nodeState = iota
	// nodeOpening nodes have an Open invocation in flight.
	nodeOpening
	// nodeOpen nodes may be invoked.
	nodeOpen
	// nodeClosing nodes have a Close invocation scheduled.
	nodeClosing
	// nodeClosed nodes have committed their Close invocation.
	nodeClosed
)

var nodeStateNames = [...]string{
	nodeNew:     "new",
	nodeOpening: "opening",
	nodeOpen:    "open",
	nodeClosing: "closing",
	nodeClosed:  "closed",
}

func (s nodeState) String() string {
	return nodeStateNames[s]
}

type inputSlot struct {
	tag      string
	reader   *stream.Reader
	optional bool
	backEdge bool
}

type outputSlot struct {
	tag       string
	stream    *stream.Stream
	offset    calcgraph.TimestampDiff
	hasOffset bool
}

// node is the runtime representation of a configured node. Apart
// from its NodeState and the body serialization of its context
// manager, a node is owned by the scheduler goroutine.
type node struct {
	id     int
	name   string
	typ    string
	calc   Calculator
	config NodeConfig

	inputs         []*inputSlot
	outputs        []*outputSlot
	inputTags      map[string]int
	outputTags     map[string]int
	outputSideTags map[string]bool

	state *NodeState
	cm    *contextManager

	lifecycle nodeState
	// stopped is set when a source node returns ErrStop.
	stopped bool
	// closeStatus is the graph status passed to the node's Close.
	closeStatus error
	stats       NodeStats

	// tracectx is the context of the node's trace span, which ends
	// with endSpan.
	tracectx context.Context
	endSpan  func()
	task     *status.Task
}

// isSource tells whether the node has no input streams.
func (n *node) isSource() bool {
	return len(n.inputs) == 0
}

func (n *node) String() string {
	return n.name
}
