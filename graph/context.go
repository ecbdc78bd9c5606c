// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/log"
	"github.com/grailbio/calcgraph/metrics"
)

// Phase is the lifecycle phase of an invocation.
type Phase int

const (
	// Open is the phase of a node's Open invocation.
	Open Phase = iota
	// Process is the phase of a node's Process invocations.
	Process
	// Close is the phase of a node's Close invocation.
	Close

	maxPhase
)

// String returns the name of the phase.
func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case Process:
		return "process"
	case Close:
		return "close"
	}
	return "unknown"
}

// NodeState is the state shared by all invocations of a node: its
// identity, options, side packets, counters and services. A node's
// state is never visible to other nodes.
type NodeState struct {
	name, typ string
	id        int
	options   Options
	counters  metrics.CounterSet
	services  map[string]interface{}
	log       *log.Logger

	// sidePackets is set before Open and read-only afterwards.
	sidePackets map[string]calcgraph.Packet
	// outputSidePackets is written by Open only.
	outputSidePackets map[string]calcgraph.Packet
}

// Name returns the node's name.
func (s *NodeState) Name() string { return s.name }

// Options returns the node's options.
func (s *NodeState) Options() Options { return s.options }

// A CalculatorContext is the view a calculator has of its node
// during one invocation: the invocation's timestamp and input
// packets, the output shards it may write, and the node's shared
// state. A context is retired once its invocation is committed; any
// use of a retired context panics.
type CalculatorContext struct {
	node    *node
	state   *NodeState
	ctx     context.Context
	phase   Phase
	ts      calcgraph.Timestamp
	inputs  []calcgraph.Packet
	outputs []*OutputShard
	status  error

	offset    calcgraph.TimestampDiff
	hasOffset bool

	// err is the first output error of the invocation.
	err error
	// result is the error returned by the calculator.
	result error
	// seq orders the invocation among its node's invocations.
	seq      int
	done     bool
	retired  int32
	start    time.Time
	duration time.Duration
}

func newContext(ctx context.Context, n *node, phase Phase, ts calcgraph.Timestamp) *CalculatorContext {
	cc := &CalculatorContext{
		node:    n,
		state:   n.state,
		ctx:     ctx,
		phase:   phase,
		ts:      ts,
		inputs:  make([]calcgraph.Packet, len(n.inputs)),
		outputs: make([]*OutputShard, len(n.outputs)),
	}
	for i := range cc.inputs {
		cc.inputs[i] = calcgraph.Empty
	}
	for i, out := range n.outputs {
		cc.outputs[i] = &OutputShard{cc: cc, index: i, tag: out.tag, nextBound: calcgraph.Unset}
	}
	return cc
}

func (cc *CalculatorContext) check() {
	if atomic.LoadInt32(&cc.retired) != 0 {
		panic("graph: use of retired CalculatorContext for node " + cc.state.name)
	}
}

func (cc *CalculatorContext) retire() {
	atomic.StoreInt32(&cc.retired, 1)
}

func (cc *CalculatorContext) fail(err error) {
	if cc.err == nil {
		cc.err = err
	}
}

// Context returns the run's context. It is canceled when the run is
// canceled, except in Close invocations.
func (cc *CalculatorContext) Context() context.Context {
	cc.check()
	return cc.ctx
}

// WithTimeout bounds the remainder of the invocation by d: the
// context returned by Context is canceled once d elapses. The
// returned function releases the context's timer.
func (cc *CalculatorContext) WithTimeout(d time.Duration) context.CancelFunc {
	cc.check()
	ctx, cancel := context.WithTimeout(cc.ctx, d)
	cc.ctx = ctx
	return cancel
}

// NodeName returns the name of the node.
func (cc *CalculatorContext) NodeName() string {
	cc.check()
	return cc.state.name
}

// NodeID returns the index of the node in the graph's configuration.
func (cc *CalculatorContext) NodeID() int {
	cc.check()
	return cc.state.id
}

// CalculatorType returns the node's calculator type.
func (cc *CalculatorContext) CalculatorType() string {
	cc.check()
	return cc.state.typ
}

// Phase returns the phase of the invocation.
func (cc *CalculatorContext) Phase() Phase {
	cc.check()
	return cc.phase
}

// InputTimestamp returns the timestamp of the invocation:
// calcgraph.Unstarted in Open, calcgraph.Done in Close, and
// calcgraph.Unset in a source's Process.
func (cc *CalculatorContext) InputTimestamp() calcgraph.Timestamp {
	cc.check()
	return cc.ts
}

// Input returns the packet of input slot tag at the invocation's
// timestamp, or calcgraph.Empty if the slot is absent in this
// invocation or there is no such slot.
func (cc *CalculatorContext) Input(tag string) calcgraph.Packet {
	cc.check()
	i, ok := cc.node.inputTags[tag]
	if !ok {
		return calcgraph.Empty
	}
	return cc.inputs[i]
}

// InputAt returns the packet of the i'th input slot.
func (cc *CalculatorContext) InputAt(i int) calcgraph.Packet {
	cc.check()
	return cc.inputs[i]
}

// HasInput tells whether input slot tag carries a packet in this
// invocation.
func (cc *CalculatorContext) HasInput(tag string) bool {
	return !cc.Input(tag).IsEmpty()
}

// NumInputs returns the number of input slots of the node.
func (cc *CalculatorContext) NumInputs() int {
	cc.check()
	return len(cc.inputs)
}

// InputTags returns the tags of the node's input slots, in order.
func (cc *CalculatorContext) InputTags() []string {
	cc.check()
	tags := make([]string, len(cc.node.inputs))
	for i, in := range cc.node.inputs {
		tags[i] = in.tag
	}
	return tags
}

// Output returns the shard of output slot tag. Writes to a tag that
// the node does not declare fail with errors.NotExist.
func (cc *CalculatorContext) Output(tag string) *OutputShard {
	cc.check()
	i, ok := cc.node.outputTags[tag]
	if !ok {
		return &OutputShard{cc: cc, index: -1, tag: tag, nextBound: calcgraph.Unset}
	}
	return cc.outputs[i]
}

// OutputAt returns the shard of the i'th output slot.
func (cc *CalculatorContext) OutputAt(i int) *OutputShard {
	cc.check()
	return cc.outputs[i]
}

// NumOutputs returns the number of output slots of the node.
func (cc *CalculatorContext) NumOutputs() int {
	cc.check()
	return len(cc.outputs)
}

// SetOffset sets the offset of every output slot for this
// invocation, overriding the slots' configured offsets. Per-shard
// offsets set with OutputShard.SetOffset take precedence.
func (cc *CalculatorContext) SetOffset(d calcgraph.TimestampDiff) {
	cc.check()
	cc.offset, cc.hasOffset = d, true
}

// SidePacket returns the input side packet bound to tag, or
// calcgraph.Empty.
func (cc *CalculatorContext) SidePacket(tag string) calcgraph.Packet {
	cc.check()
	p, ok := cc.state.sidePackets[tag]
	if !ok {
		return calcgraph.Empty
	}
	return p
}

// SetOutputSidePacket sets the output side packet tag to v. Output
// side packets may be set only in Open.
func (cc *CalculatorContext) SetOutputSidePacket(tag string, v interface{}) error {
	cc.check()
	if cc.phase != Open {
		err := errors.E("set side packet", cc.state.name, tag, errors.Invalid, errors.New("output side packets are set in Open"))
		cc.fail(err)
		return err
	}
	if _, ok := cc.node.outputSideTags[tag]; !ok {
		err := errors.E("set side packet", cc.state.name, tag, errors.NotExist)
		cc.fail(err)
		return err
	}
	if _, ok := cc.state.outputSidePackets[tag]; ok {
		err := errors.E("set side packet", cc.state.name, tag, errors.DuplicateOutput)
		cc.fail(err)
		return err
	}
	cc.state.outputSidePackets[tag] = calcgraph.MakePacket(v)
	return nil
}

// Options returns the node's options.
func (cc *CalculatorContext) Options() Options {
	cc.check()
	return cc.state.options
}

// Counter returns the node's counter called name, creating it if
// needed. Counter names are scoped to the node.
func (cc *CalculatorContext) Counter(name string) *metrics.IntCounter {
	cc.check()
	return cc.state.counters.Counter(name)
}

// Service returns the graph service registered under name.
func (cc *CalculatorContext) Service(name string) (interface{}, bool) {
	cc.check()
	v, ok := cc.state.services[name]
	return v, ok
}

// State returns the node's shared state.
func (cc *CalculatorContext) State() *NodeState {
	cc.check()
	return cc.state
}

// GraphStatus returns the status of the run as seen by Close: nil if
// the run completed normally, or the error that ended it. It is nil
// outside Close.
func (cc *CalculatorContext) GraphStatus() error {
	cc.check()
	return cc.status
}

// Log returns the node's logger.
func (cc *CalculatorContext) Log() *log.Logger {
	cc.check()
	return cc.state.log
}

// An OutputShard collects what one invocation writes to one output
// slot: at most one packet, and optionally an offset or an explicit
// timestamp bound. Shards are committed to their streams after the
// invocation returns.
type OutputShard struct {
	cc    *CalculatorContext
	index int
	tag   string

	packet    calcgraph.Packet
	written   bool
	offset    calcgraph.TimestampDiff
	hasOffset bool
	nextBound calcgraph.Timestamp
	close     bool
}

// Tag returns the shard's slot tag.
func (o *OutputShard) Tag() string {
	return o.tag
}

// Add writes v at the invocation's timestamp.
func (o *OutputShard) Add(v interface{}) error {
	o.cc.check()
	ts := o.cc.ts
	if !ts.IsAllowedInStream() {
		err := errors.E("add", o.cc.state.name, o.tag, errors.Invalid,
			errors.Errorf("invocation timestamp %v cannot stamp a packet; use AddPacket", ts))
		o.cc.fail(err)
		return err
	}
	return o.AddPacket(calcgraph.MakePacket(v).At(ts))
}

// AddPacket writes packet p, which carries its own timestamp. A second
// write to the same shard fails with errors.DuplicateOutput.
func (o *OutputShard) AddPacket(p calcgraph.Packet) error {
	o.cc.check()
	var err error
	switch {
	case o.index < 0:
		err = errors.E("add", o.cc.state.name, o.tag, errors.NotExist)
	case o.written:
		err = errors.E("add", o.cc.state.name, o.tag, p.Timestamp(), errors.DuplicateOutput)
	case p.IsEmpty():
		err = errors.E("add", o.cc.state.name, o.tag, errors.Invalid, errors.New("empty packet"))
	case !p.Timestamp().IsAllowedInStream():
		err = errors.E("add", o.cc.state.name, o.tag, p.Timestamp(), errors.OrderViolation,
			errors.New("timestamp is not allowed in a stream"))
	}
	if err != nil {
		o.cc.fail(err)
		return err
	}
	o.packet, o.written = p, true
	return nil
}

// SetOffset sets the offset of this slot for the invocation.
func (o *OutputShard) SetOffset(d calcgraph.TimestampDiff) {
	o.cc.check()
	o.offset, o.hasOffset = d, true
}

// SetNextTimestampBound declares that no future packet on this slot
// will carry a timestamp below ts. Bounds below the stream's current
// bound are ignored.
func (o *OutputShard) SetNextTimestampBound(ts calcgraph.Timestamp) {
	o.cc.check()
	if ts > o.nextBound {
		o.nextBound = ts
	}
}

// Close closes the slot's stream once the invocation commits.
func (o *OutputShard) Close() {
	o.cc.check()
	o.close = true
}
