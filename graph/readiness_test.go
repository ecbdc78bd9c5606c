// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"testing"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/stream"
)

func newTestNode(streams ...*stream.Stream) *node {
	n := &node{
		name:       "test",
		inputTags:  make(map[string]int),
		outputTags: make(map[string]int),
	}
	for i, s := range streams {
		n.inputTags[s.Name()] = i
		n.inputs = append(n.inputs, &inputSlot{tag: s.Name(), reader: s.NewReader(n.name)})
	}
	n.state = &NodeState{name: n.name}
	n.cm = newContextManager(n, 1, false)
	return n
}

func appendAt(t *testing.T, s *stream.Stream, ts ...calcgraph.Timestamp) {
	t.Helper()
	for _, ts := range ts {
		if err := s.Append(calcgraph.MakePacket(int64(ts)).At(ts)); err != nil {
			t.Fatal(err)
		}
	}
}

func checkReadiness(t *testing.T, n *node, wantTs calcgraph.Timestamp, want readiness) {
	t.Helper()
	ts, r := n.readiness()
	if r != want {
		t.Fatalf("got %v, want %v", r, want)
	}
	if want != notReady && ts != wantTs {
		t.Fatalf("got %v, want %v", ts, wantTs)
	}
}

func invokeAt(n *node, ts calcgraph.Timestamp) *CalculatorContext {
	cc := newContext(nil, n, Process, ts)
	n.gather(cc, ts)
	return cc
}

func TestReadinessSync(t *testing.T) {
	left, right := stream.New("left"), stream.New("right")
	n := newTestNode(left, right)
	appendAt(t, left, 1, 2, 3)
	appendAt(t, right, 1)

	checkReadiness(t, n, 1, ready)
	cc := invokeAt(n, 1)
	if cc.Input("left").IsEmpty() || cc.Input("right").IsEmpty() {
		t.Fatal("expected both inputs at 1")
	}
	// Right's bound is 2: a packet at 2 may still arrive.
	checkReadiness(t, n, 2, notReady)

	appendAt(t, right, 3)
	checkReadiness(t, n, 2, ready)
	cc = invokeAt(n, 2)
	if got, want := cc.Input("left").Get(), int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !cc.Input("right").IsEmpty() {
		t.Errorf("unexpected right input %v", cc.Input("right"))
	}
	checkReadiness(t, n, 3, ready)
	cc = invokeAt(n, 3)
	if cc.Input("left").IsEmpty() || cc.Input("right").IsEmpty() {
		t.Fatal("expected both inputs at 3")
	}
	checkReadiness(t, n, 0, notReady)
}

func TestReadinessBoundOnly(t *testing.T) {
	a, b := stream.New("a"), stream.New("b")
	n := newTestNode(a, b)
	appendAt(t, a, 5)
	checkReadiness(t, n, 5, notReady)
	if err := b.AdvanceBound(6); err != nil {
		t.Fatal(err)
	}
	checkReadiness(t, n, 5, ready)
}

func TestReadinessPartial(t *testing.T) {
	a, b, c := stream.New("a"), stream.New("b"), stream.New("c")
	n := newTestNode(a, b, c)
	appendAt(t, a, 5)
	if err := b.AdvanceBound(5); err != nil {
		t.Fatal(err)
	}
	// a has a packet at 5, b's bound is exactly 5, and c has
	// neither: the node waits.
	checkReadiness(t, n, 5, notReady)
	if err := c.AdvanceBound(10); err != nil {
		t.Fatal(err)
	}
	// b's bound is still exactly 5.
	checkReadiness(t, n, 5, notReady)
	appendAt(t, b, 5)
	checkReadiness(t, n, 5, ready)
}

func TestReadinessClose(t *testing.T) {
	a, b := stream.New("a"), stream.New("b")
	n := newTestNode(a, b)
	appendAt(t, a, 1)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	// a is closed but not drained.
	checkReadiness(t, n, 1, ready)
	invokeAt(n, 1)
	checkReadiness(t, n, calcgraph.Done, closeReady)
}

func TestReadinessOptional(t *testing.T) {
	req, opt := stream.New("req"), stream.New("opt")
	n := newTestNode(req, opt)
	n.inputs[1].optional = true
	appendAt(t, opt, 1)
	if err := req.Close(); err != nil {
		t.Fatal(err)
	}
	checkReadiness(t, n, calcgraph.Done, closeReady)

	// Nodes with only optional inputs close when all are done.
	a, b := stream.New("a"), stream.New("b")
	n = newTestNode(a, b)
	n.inputs[0].optional = true
	n.inputs[1].optional = true
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	checkReadiness(t, n, 0, notReady)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	checkReadiness(t, n, calcgraph.Done, closeReady)
}

func TestReadinessBackEdge(t *testing.T) {
	in, loop := stream.New("in"), stream.New("loop")
	n := newTestNode(in, loop)
	n.inputs[1].backEdge = true
	appendAt(t, in, 1, 2, 3)
	checkReadiness(t, n, 1, ready)
	cc := invokeAt(n, 1)
	if !cc.Input("loop").IsEmpty() {
		t.Fatal("unexpected back edge packet")
	}
	appendAt(t, loop, 1)
	checkReadiness(t, n, 2, ready)
	cc = invokeAt(n, 2)
	if got, want := cc.Input("loop").Timestamp(), calcgraph.Timestamp(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := in.Close(); err != nil {
		t.Fatal(err)
	}
	invokeAt(n, 3)
	// The back edge is still open.
	checkReadiness(t, n, calcgraph.Done, closeReady)
}
