// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

// workingset tracks the invocations in flight, and their phases.
type workingset struct {
	pending map[*CalculatorContext]Phase
	counts  [maxPhase]int
	sources int
}

func newWorkingset() *workingset {
	return &workingset{pending: make(map[*CalculatorContext]Phase)}
}

// Add tracks the provided invocation. Add panics if the invocation
// is already tracked.
func (w *workingset) Add(cc *CalculatorContext) {
	if w.Pending(cc) {
		panic("invocation already pending")
	}
	w.pending[cc] = cc.phase
	w.counts[cc.phase]++
	if cc.node.isSource() && cc.phase == Process {
		w.sources++
	}
}

// Pending tells whether the invocation is tracked.
func (w *workingset) Pending(cc *CalculatorContext) bool {
	_, ok := w.pending[cc]
	return ok
}

// Done stops tracking the provided invocation.
func (w *workingset) Done(cc *CalculatorContext) {
	phase, ok := w.pending[cc]
	if !ok {
		panic("remove nonexistent invocation")
	}
	delete(w.pending, cc)
	w.counts[phase]--
	if cc.node.isSource() && phase == Process {
		w.sources--
	}
}

// N returns the number of invocations in flight.
func (w *workingset) N() int {
	return len(w.pending)
}

// NPhase returns the number of invocations in flight in phase.
func (w *workingset) NPhase(phase Phase) int {
	return w.counts[phase]
}

// NSources returns the number of source Process invocations in
// flight.
func (w *workingset) NSources() int {
	return w.sources
}
