// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/metrics"
	"github.com/grailbio/calcgraph/trace"
)

const statusInterval = 5 * time.Second

// loop is the scheduler. It owns all node and run state: it
// evaluates nodes whose inputs changed, dispatches their invocations,
// and commits completed invocations in order. It returns once every
// node is closed and no invocation is in flight.
func (g *Graph) loop() {
	g.begin = time.Now()
	names := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		names[i] = n.name
	}
	g.runctx, g.endRun = trace.Start(g.ctx, trace.Run, calcgraph.Digester.FromString(strings.Join(names, ",")), "run")
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	g.markAll()
	donec := g.ctx.Done()
	for {
		g.dispatch()
		if g.finished() {
			break
		}
		g.checkIdle()
		select {
		case <-g.wakeupc:
		case cc := <-g.returnc:
			g.complete(cc)
		case <-donec:
			donec = nil
			if !g.status.failed() {
				g.fail(errors.E("run", errors.Canceled, g.ctx.Err()))
			}
		case <-ticker.C:
			g.reportStatus()
		}
	}
	g.finish()
}

// dispatch evaluates the nodes marked dirty since the last pass,
// followed by the source nodes, which run only when no other node
// has a Process invocation in flight.
func (g *Graph) dispatch() {
	g.mu.Lock()
	dirty := g.dirty
	g.dirty = make(map[*node]bool)
	g.mu.Unlock()

	var (
		sources []*node
		nready  int
	)
	for _, n := range g.nodes {
		if n.isSource() && n.lifecycle == nodeOpen && !n.stopped && !g.status.failed() {
			sources = append(sources, n)
			continue
		}
		if dirty[n] {
			nready += g.schedule(n)
		}
	}
	if g.nopen == len(g.nodes) {
		for _, n := range sources {
			if g.pending.NPhase(Process) > g.pending.NSources() {
				break
			}
			if n.cm.InFlight() > 0 {
				continue
			}
			if err := n.cm.Enqueue(calcgraph.Unset); err != nil {
				g.fail(err)
				break
			}
			g.start(g.acquire(n, n.tracectx))
			nready++
		}
	}
	metrics.GetReadyNodesGauge(g.ctx).Set(float64(nready))
}

// schedule advances the lifecycle of a non-source node, or of a
// source outside of its Process phase, dispatching whatever
// invocations it is ready for. It returns the number of invocations
// dispatched.
func (g *Graph) schedule(n *node) int {
	switch n.lifecycle {
	case nodeNew:
		if g.status.failed() {
			g.retire(n)
			return 0
		}
		for _, side := range n.config.InputSidePackets {
			if _, ok := g.sides[side.Name]; !ok {
				return 0
			}
		}
		g.open(n)
		return 1
	case nodeOpen:
		if g.status.failed() || n.stopped {
			if n.cm.InFlight() == 0 {
				g.close(n)
				return 1
			}
			return 0
		}
		if n.isSource() || g.nopen < len(g.nodes) {
			return 0
		}
		var ndispatch int
		for n.cm.Available() {
			ts, r := n.readiness()
			switch r {
			case notReady:
				return ndispatch
			case closeReady:
				if n.cm.InFlight() == 0 {
					g.close(n)
					ndispatch++
				}
				return ndispatch
			}
			if err := n.cm.Enqueue(ts); err != nil {
				g.fail(err)
				return ndispatch
			}
			cc := g.acquire(n, n.tracectx)
			n.gather(cc, ts)
			g.start(cc)
			ndispatch++
		}
		return ndispatch
	}
	return 0
}

func (g *Graph) open(n *node) {
	for _, side := range n.config.InputSidePackets {
		n.state.sidePackets[side.tag()] = g.sides[side.Name]
	}
	n.tracectx, n.endSpan = trace.Start(g.runctx, trace.Node, calcgraph.Digester.FromString(n.name), n.name)
	if g.opts.status != nil {
		n.task = g.opts.status.Startf("%s", n.name)
	}
	g.setLifecycle(n, nodeOpening)
	if err := n.cm.Enqueue(calcgraph.Unstarted); err != nil {
		panic(err)
	}
	g.start(g.acquire(n, n.tracectx))
}

// close dispatches n's Close invocation. Close runs in a context
// that is not canceled with the run.
func (g *Graph) close(n *node) {
	n.closeStatus = g.status.err
	g.setLifecycle(n, nodeClosing)
	if err := n.cm.Enqueue(calcgraph.Done); err != nil {
		panic(err)
	}
	cc := g.acquire(n, detached{n.tracectx})
	cc.status = n.closeStatus
	g.start(cc)
}

// retire closes a node that was never opened. Its calculator is not
// invoked.
func (g *Graph) retire(n *node) {
	for _, out := range n.outputs {
		if !out.stream.IsClosed() {
			_ = out.stream.Close()
		}
	}
	g.setLifecycle(n, nodeClosed)
}

func (g *Graph) acquire(n *node, ctx context.Context) *CalculatorContext {
	cc, ok := n.cm.TryAcquire(ctx)
	if !ok {
		panic("graph: no invocation available for node " + n.name)
	}
	return cc
}

// start executes cc's invocation in its own goroutine. The
// invocation waits for its turn to run the node's body, then for a
// worker, and returns the finished context to the scheduler.
func (g *Graph) start(cc *CalculatorContext) {
	n := cc.node
	g.pending.Add(cc)
	metrics.GetInflightInvocationsGauge(g.ctx).Set(float64(g.pending.N()))
	g.opts.log.Debugf("%s: dispatch %s %v", n.name, cc.phase, cc.ts)
	g.running.Add(1)
	go func() {
		defer g.running.Done()
		n.cm.enter(cc)
		_ = g.limiter.Acquire(context.Background(), 1)
		var done func()
		cc.ctx, done = trace.Start(cc.ctx, trace.Invocation,
			calcgraph.Digester.FromString(fmt.Sprintf("%s %d", n.name, cc.seq)),
			fmt.Sprintf("%s %v", cc.phase, cc.ts))
		cc.start = time.Now()
		cc.result = invoke(cc)
		cc.duration = time.Since(cc.start)
		done()
		g.limiter.Release(1)
		n.cm.exit(cc)
		g.returnc <- cc
	}()
}

// invoke calls the calculator method for cc's phase. Panics are
// reported as errors.Fatal errors.
func invoke(cc *CalculatorContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.E(cc.phase.String(), cc.state.name, errors.Fatal,
				errors.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()
	calc := cc.node.calc
	switch cc.phase {
	case Open:
		return calc.Open(cc)
	case Process:
		return calc.Process(cc)
	default:
		return calc.Close(cc)
	}
}

// complete accounts for a finished invocation and commits every
// invocation of its node that is now ready, in timestamp order.
func (g *Graph) complete(cc *CalculatorContext) {
	n := cc.node
	g.pending.Done(cc)
	metrics.GetInflightInvocationsGauge(g.ctx).Set(float64(g.pending.N()))
	metrics.GetInvocationsCounter(g.ctx, n.name, cc.phase.String()).Inc()
	metrics.GetInvocationLatencyHistogram(g.ctx, n.name).Observe(cc.duration.Seconds())
	for _, c := range n.cm.Complete(cc) {
		g.commit(c)
		n.cm.Release(c)
	}
	g.markDirty(n)
}

// commit applies the outcome of an invocation: its outputs are
// appended to the node's streams, its bounds are propagated, and its
// errors are recorded.
func (g *Graph) commit(cc *CalculatorContext) {
	n := cc.node
	g.mu.Lock()
	n.stats.Invocations[cc.phase]++
	if cc.phase == Process && cc.ts.IsSet() {
		n.stats.Last = cc.ts
	}
	g.mu.Unlock()
	if n.task != nil {
		n.task.Printf("%s %v", cc.phase, cc.ts)
	}

	// Errors raised through the context keep their kind; errors
	// returned by the calculator are attributed to the invocation.
	var err error
	switch {
	case cc.err != nil:
		err = cc.err
	case cc.phase == Process && n.isSource() && errors.Is(errors.Stop, cc.result):
		n.stopped = true
	case cc.result != nil:
		err = invocationError(cc, cc.result)
	}
	commit := func(commitOutputs func(*CalculatorContext) error) {
		if err == nil {
			if cerr := commitOutputs(cc); cerr != nil {
				err = errors.E("commit", n.name, cc.ts, cerr)
			}
		}
	}

	switch cc.phase {
	case Open:
		g.nopen++
		g.setLifecycle(n, nodeOpen)
		commit(g.commitSidePackets)
		commit(g.commitOutputs)
		if err != nil {
			g.invocationFailed(cc, err)
		}
		if g.nopen == len(g.nodes) {
			g.markAll()
		}
	case Process:
		// Outputs of invocations that complete after the run failed
		// or was canceled are discarded, successful or not: the
		// nodes are closing, and downstream may already be closed.
		if !g.status.failed() {
			commit(g.commitOutputs)
		}
		if err != nil {
			g.invocationFailed(cc, err)
		}
	case Close:
		commit(g.commitOutputs)
		if err != nil {
			g.invocationFailed(cc, err)
		}
		for _, out := range n.outputs {
			if !out.stream.IsClosed() {
				_ = out.stream.Close()
			}
		}
		g.setLifecycle(n, nodeClosed)
		if n.task != nil {
			n.task.Done()
		}
		if n.endSpan != nil {
			n.endSpan()
		}
	}
}

// commitSidePackets publishes the output side packets set by a
// node's Open invocation.
func (g *Graph) commitSidePackets(cc *CalculatorContext) error {
	n := cc.node
	for _, side := range n.config.OutputSidePackets {
		if _, ok := n.state.outputSidePackets[side.tag()]; !ok {
			return errors.E("open", n.name, side.tag(), errors.NotExist, errors.New("output side packet was not set"))
		}
	}
	for _, side := range n.config.OutputSidePackets {
		g.sides[side.Name] = n.state.outputSidePackets[side.tag()]
		for _, consumer := range g.sideConsumers[side.Name] {
			g.markDirty(consumer)
		}
	}
	return nil
}

// commitOutputs commits cc's output shards to the node's streams.
// For each slot, the written packet, if any, is appended; then the
// stream's bound is raised to the largest of the shard's explicit
// bound and the bound implied by the slot's offset. Bounds below the
// stream's current bound are ignored.
func (g *Graph) commitOutputs(cc *CalculatorContext) error {
	n := cc.node
	for i, out := range n.outputs {
		shard := cc.outputs[i]
		if shard.written {
			if err := out.stream.Append(shard.packet); err != nil {
				return err
			}
			metrics.GetPacketsCounter(g.ctx, out.stream.Name()).Inc()
		}
		bound := shard.nextBound
		if cc.phase == Process && cc.ts.IsRangeValue() {
			offset, ok := out.offset, out.hasOffset
			if cc.hasOffset {
				offset, ok = cc.offset, true
			}
			if shard.hasOffset {
				offset, ok = shard.offset, true
			}
			if b := cc.ts.Add(offset).NextAllowedInStream(); ok && b > bound {
				bound = b
			}
		}
		if shard.close {
			bound = calcgraph.Done
		}
		if bound.IsSet() && bound > out.stream.Bound() {
			if err := out.stream.AdvanceBound(bound); err != nil {
				return err
			}
			metrics.GetBoundAdvancesCounter(g.ctx, out.stream.Name()).Inc()
		}
	}
	return nil
}

func (g *Graph) invocationFailed(cc *CalculatorContext, err error) {
	n := cc.node
	g.mu.Lock()
	n.stats.Errors++
	g.mu.Unlock()
	metrics.GetInvocationErrorsCounter(g.ctx, n.name).Inc()
	g.fail(err)
}

// fail records err as the run's error, if it is the first. Failing
// the run cancels in-flight invocations and closes every node.
func (g *Graph) fail(err error) {
	if !g.status.record(err) {
		g.opts.log.Debugf("dropped error after run failure: %v", err)
		return
	}
	g.opts.log.Errorf("run failed: %v", err)
	g.cancel()
	g.markAll()
}

// checkIdle records whether the graph is idle: no invocation is in
// flight and no node awaits evaluation. An idle graph whose input
// streams are all closed can never make progress, and fails.
//
// Input closure is taken from g.closed rather than from the streams
// themselves: a stream is closed before its listener marks the
// consumers dirty, so a closure observed directly may not yet have
// been evaluated.
func (g *Graph) checkIdle() {
	g.mu.Lock()
	idle := g.pending.N() == 0 && len(g.dirty) == 0
	if idle && !g.idle {
		g.idle = true
		g.cond.Broadcast()
	}
	stuck := idle && len(g.closed) == len(g.inputs)
	g.mu.Unlock()
	if !stuck || g.status.failed() {
		return
	}
	var waiting []string
	for _, n := range g.nodes {
		if n.lifecycle != nodeClosed {
			waiting = append(waiting, n.name)
		}
	}
	g.fail(errors.E("run", errors.Fatal, errors.Errorf("deadlock: nodes %s cannot make progress", strings.Join(waiting, ", "))))
}

// finished tells whether the run is complete.
func (g *Graph) finished() bool {
	if g.pending.N() > 0 {
		return false
	}
	for _, n := range g.nodes {
		if n.lifecycle != nodeClosed {
			return false
		}
	}
	return true
}

func (g *Graph) finish() {
	err := g.status.err
	if g.status.dropped > 0 {
		g.opts.log.Printf("%d errors dropped after run failure", g.status.dropped)
	}
	metrics.GetRunsCounter(g.ctx, statusName(err)).Inc()
	if g.opts.status != nil {
		g.opts.status.Printf("run %s after %s", statusName(err), time.Since(g.begin).Round(time.Millisecond))
	}
	g.endRun()
	g.cancel()
	// Every invocation has been committed; wait for their
	// goroutines to exit.
	_ = g.running.Wait(context.Background())
	g.mu.Lock()
	g.done = true
	g.err = err
	g.cond.Broadcast()
	g.mu.Unlock()
}

// reportStatus prints a summary of the run to the status group and
// the debug log.
func (g *Graph) reportStatus() {
	var nclosed int
	for _, n := range g.nodes {
		if n.lifecycle == nodeClosed {
			nclosed++
		}
	}
	msg := fmt.Sprintf("nodes: %d open, %d closed; invocations: %d in flight; elapsed %s",
		g.nopen-nclosed, nclosed, g.pending.N(), time.Since(g.begin).Round(time.Second))
	if g.opts.status != nil {
		g.opts.status.Print(msg)
	}
	g.opts.log.Debug(msg)
}

func (g *Graph) markDirty(n *node) {
	g.mu.Lock()
	g.dirty[n] = true
	g.idle = false
	g.mu.Unlock()
	g.wakeup()
}

func (g *Graph) markAll() {
	g.mu.Lock()
	for _, n := range g.nodes {
		g.dirty[n] = true
	}
	g.idle = false
	g.mu.Unlock()
	g.wakeup()
}

func (g *Graph) setLifecycle(n *node, state nodeState) {
	n.lifecycle = state
	g.mu.Lock()
	n.stats.State = state.String()
	g.mu.Unlock()
}

// detached is a context that carries its parent's values but is
// never canceled.
type detached struct{ parent context.Context }

func (d detached) Deadline() (time.Time, bool)       { return time.Time{}, false }
func (d detached) Done() <-chan struct{}             { return nil }
func (d detached) Err() error                        { return nil }
func (d detached) Value(key interface{}) interface{} { return d.parent.Value(key) }
