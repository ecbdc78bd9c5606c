// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/sync/ctxsync"
	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/graph"
)

// Invocation is a Process invocation of a Scripted calculator. The
// invocation blocks until the test completes it with Ok, Emit, or
// Error.
type Invocation struct {
	// Timestamp is the invocation's input timestamp.
	Timestamp calcgraph.Timestamp
	// Inputs holds the invocation's input packets by tag.
	Inputs map[string]calcgraph.Packet

	donec chan func(*graph.CalculatorContext) error
}

func newInvocation(cc *graph.CalculatorContext) *Invocation {
	inv := &Invocation{
		Timestamp: cc.InputTimestamp(),
		Inputs:    make(map[string]calcgraph.Packet),
		donec:     make(chan func(*graph.CalculatorContext) error, 1),
	}
	for _, tag := range cc.InputTags() {
		inv.Inputs[tag] = cc.Input(tag)
	}
	return inv
}

// Complete completes the invocation by calling fn with the
// invocation's context.
func (i *Invocation) Complete(fn func(*graph.CalculatorContext) error) {
	select {
	case i.donec <- fn:
	default:
		panic(fmt.Sprintf("invocation %v completed twice", i.Timestamp))
	}
}

// Ok completes the invocation without output.
func (i *Invocation) Ok() {
	i.Complete(func(*graph.CalculatorContext) error { return nil })
}

// Emit completes the invocation by writing v to output tag at the
// invocation's timestamp.
func (i *Invocation) Emit(tag string, v interface{}) {
	i.Complete(func(cc *graph.CalculatorContext) error {
		return cc.Output(tag).Add(v)
	})
}

// Error completes the invocation with err.
func (i *Invocation) Error(err error) {
	i.Complete(func(*graph.CalculatorContext) error { return err })
}

// Scripted is a calculator whose Process invocations are completed
// by the test. It permits tests to rendezvous with invocations and
// control the order in which they finish. Scripted records the
// node's lifecycle events.
type Scripted struct {
	mu          sync.Mutex
	cond        *ctxsync.Cond
	invocations map[calcgraph.Timestamp]*Invocation
	events      []string
	status      error
	closed      bool
}

// NewScripted returns a new Scripted calculator.
func NewScripted() *Scripted {
	s := &Scripted{invocations: make(map[calcgraph.Timestamp]*Invocation)}
	s.cond = ctxsync.NewCond(&s.mu)
	return s
}

// Open implements graph.Calculator.
func (s *Scripted) Open(cc *graph.CalculatorContext) error {
	s.record("open")
	return nil
}

// Process implements graph.Calculator. It blocks until the test
// completes the invocation, or the run is canceled.
func (s *Scripted) Process(cc *graph.CalculatorContext) error {
	inv := newInvocation(cc)
	s.mu.Lock()
	s.invocations[inv.Timestamp] = inv
	s.events = append(s.events, fmt.Sprintf("process %v", inv.Timestamp))
	s.cond.Broadcast()
	s.mu.Unlock()
	select {
	case fn := <-inv.donec:
		return fn(cc)
	case <-cc.Context().Done():
		return cc.Context().Err()
	}
}

// Close implements graph.Calculator.
func (s *Scripted) Close(cc *graph.CalculatorContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("closed twice")
	}
	s.closed = true
	s.status = cc.GraphStatus()
	s.events = append(s.events, "close")
	s.cond.Broadcast()
	return nil
}

func (s *Scripted) record(event string) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Invocation rendezvous with the invocation at ts.
func (s *Scripted) Invocation(ctx context.Context, ts calcgraph.Timestamp) (*Invocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if inv := s.invocations[ts]; inv != nil {
			return inv, nil
		}
		if err := s.cond.Wait(ctx); err != nil {
			return nil, errors.E("rendezvous", ts, err)
		}
	}
}

// Started returns the number of invocations that have started.
func (s *Scripted) Started() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invocations)
}

// Events returns the calculator's lifecycle events: "open",
// "process <ts>", and "close".
func (s *Scripted) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// Closed tells whether Close was called, and returns the graph
// status it was passed.
func (s *Scripted) Closed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.status
}
