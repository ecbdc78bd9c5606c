// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"context"
	"sync"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
)

// A contextManager owns the invocations of one node. It keeps the
// timestamps at which the node still owes work, bounds the number of
// invocations in flight, and releases completed invocations for
// commit strictly in timestamp order.
//
// Open and Close are scheduled through the manager at the timestamps
// calcgraph.Unstarted and calcgraph.Done, so the ordering rules cover
// the node's whole lifecycle. Source invocations are scheduled at
// calcgraph.Unset, which is exempt from ordering.
//
// Except for enter and exit, which are called by invocation
// goroutines, a contextManager is accessed only by the scheduler.
type contextManager struct {
	node        *node
	maxInFlight int
	threadSafe  bool

	last     calcgraph.Timestamp
	pending  []calcgraph.Timestamp
	inflight []*CalculatorContext
	seq      int

	mu   sync.Mutex
	cond *sync.Cond
	turn int
}

func newContextManager(n *node, maxInFlight int, threadSafe bool) *contextManager {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	m := &contextManager{
		node:        n,
		maxInFlight: maxInFlight,
		threadSafe:  threadSafe,
		last:        calcgraph.Unset,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Enqueue records that the node owes an invocation at ts. Timestamps
// must be enqueued in strictly increasing order; Enqueue returns an
// errors.OutOfOrder error otherwise.
func (m *contextManager) Enqueue(ts calcgraph.Timestamp) error {
	if ts == calcgraph.Unset {
		m.pending = append(m.pending, ts)
		return nil
	}
	if m.last.IsSet() && ts <= m.last {
		return errors.E("enqueue", m.node.name, ts, errors.OutOfOrder,
			errors.Errorf("timestamp %v already scheduled", m.last))
	}
	m.last = ts
	m.pending = append(m.pending, ts)
	return nil
}

// Last returns the last timestamp enqueued, or calcgraph.Unset.
func (m *contextManager) Last() calcgraph.Timestamp {
	return m.last
}

// Pending returns the number of enqueued timestamps not yet acquired.
func (m *contextManager) Pending() int {
	return len(m.pending)
}

// InFlight returns the number of acquired contexts not yet released
// for commit.
func (m *contextManager) InFlight() int {
	return len(m.inflight)
}

// Available tells whether another context may be acquired.
func (m *contextManager) Available() bool {
	return len(m.inflight) < m.maxInFlight
}

// TryAcquire returns a context for the oldest pending timestamp, if
// there is one and the in-flight limit allows. The context's phase
// follows from its timestamp.
func (m *contextManager) TryAcquire(ctx context.Context) (*CalculatorContext, bool) {
	if len(m.pending) == 0 || !m.Available() {
		return nil, false
	}
	ts := m.pending[0]
	m.pending = m.pending[1:]
	phase := Process
	switch ts {
	case calcgraph.Unstarted:
		phase = Open
	case calcgraph.Done:
		phase = Close
	}
	cc := newContext(ctx, m.node, phase, ts)
	cc.seq = m.seq
	m.seq++
	m.inflight = append(m.inflight, cc)
	return cc, true
}

// Complete marks cc as finished and returns the contexts that may
// now be committed, in timestamp order. A context finished ahead of
// an earlier one is held until the earlier one completes.
func (m *contextManager) Complete(cc *CalculatorContext) []*CalculatorContext {
	cc.done = true
	n := 0
	for n < len(m.inflight) && m.inflight[n].done {
		n++
	}
	if n == 0 {
		return nil
	}
	ready := make([]*CalculatorContext, n)
	copy(ready, m.inflight)
	m.inflight = m.inflight[n:]
	return ready
}

// Release retires a committed context. It must not be used again.
func (m *contextManager) Release(cc *CalculatorContext) {
	cc.retire()
}

// enter blocks until cc's body may execute. Unless the node is
// thread safe, bodies execute one at a time in acquisition order.
func (m *contextManager) enter(cc *CalculatorContext) {
	if m.threadSafe {
		return
	}
	m.mu.Lock()
	for m.turn != cc.seq {
		m.cond.Wait()
	}
	m.mu.Unlock()
}

// exit ends cc's body, admitting the next one.
func (m *contextManager) exit(cc *CalculatorContext) {
	if m.threadSafe {
		return
	}
	m.mu.Lock()
	m.turn++
	m.cond.Broadcast()
	m.mu.Unlock()
}
