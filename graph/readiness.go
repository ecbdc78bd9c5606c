// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import "github.com/grailbio/calcgraph"

// readiness is the outcome of evaluating a node's inputs.
type readiness int

const (
	// notReady nodes must wait for more packets or bounds.
	notReady readiness = iota
	// ready nodes may be invoked at the computed timestamp.
	ready
	// closeReady nodes will see no more input and may be closed.
	closeReady
)

func (r readiness) String() string {
	switch r {
	case ready:
		return "ready"
	case closeReady:
		return "close"
	}
	return "not ready"
}

// readiness determines whether n may be invoked, and at which
// timestamp. The candidate timestamp T is the smallest timestamp of
// any queued packet. The node is ready at T if every synchronized
// input either has its packet at T, or proves that no packet at T
// will arrive: its next packet is later than T, or its queue is
// empty and its bound exceeds T. If any input has neither a packet
// at T nor a bound past T, the node waits, however many other inputs
// already hold packets at T.
//
// A node is ready to close once each of its required inputs is done
// (closed and drained), or, if it has no required inputs, once all
// of its inputs are done. Back edges are ignored throughout.
func (n *node) readiness() (calcgraph.Timestamp, readiness) {
	var (
		heads  = make([]calcgraph.Timestamp, len(n.inputs))
		bounds = make([]calcgraph.Timestamp, len(n.inputs))

		next                  = calcgraph.Done
		found                 bool
		required              bool
		requiredDone, alldone = true, true
	)
	for i, in := range n.inputs {
		if in.backEdge {
			continue
		}
		heads[i], bounds[i] = in.reader.Snapshot()
		done := !heads[i].IsSet() && bounds[i] == calcgraph.Done
		alldone = alldone && done
		if !in.optional {
			required = true
			requiredDone = requiredDone && done
		}
		if heads[i].IsSet() && heads[i] < next {
			next, found = heads[i], true
		}
	}
	if (required && requiredDone) || (!required && alldone) {
		return calcgraph.Done, closeReady
	}
	if !found {
		return calcgraph.Unset, notReady
	}
	for i, in := range n.inputs {
		if in.backEdge {
			continue
		}
		switch head := heads[i]; {
		case head == next:
		case head.IsSet():
			// The next packet is later, and the bound is past it.
		case bounds[i] > next:
		default:
			return next, notReady
		}
	}
	return next, ready
}

// gather pops the inputs of an invocation at ts into cc. Each
// synchronized input contributes its packet at ts, if any; each back
// edge contributes its latest packet at or before ts, if any.
func (n *node) gather(cc *CalculatorContext, ts calcgraph.Timestamp) {
	for i, in := range n.inputs {
		pkts := in.reader.PopThrough(ts)
		if len(pkts) == 0 {
			continue
		}
		p := pkts[len(pkts)-1]
		if in.backEdge || p.Timestamp() == ts {
			cc.inputs[i] = p
		}
	}
}
