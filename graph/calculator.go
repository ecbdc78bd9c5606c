// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"sort"
	"sync"

	"github.com/grailbio/calcgraph/errors"
)

// A Calculator implements the behavior of a node. Each method is
// given a CalculatorContext that is valid only for the duration of
// the call.
//
// Open is called once, before the first call to Process; input side
// packets are available. Process is called once for each timestamp
// at which the node's inputs are ready. Close is called exactly once,
// after every Process call has been committed, and sees the graph's
// status if the run failed. Any of the methods may write outputs.
// Outputs written by a Process call that completes after the run has
// failed or been canceled are discarded, even if the call succeeds.
//
// A node without input streams is a source: its Process method is
// called repeatedly, with an unset input timestamp, until it returns
// ErrStop.
type Calculator interface {
	Open(cc *CalculatorContext) error
	Process(cc *CalculatorContext) error
	Close(cc *CalculatorContext) error
}

// ErrStop is returned by a source calculator's Process method when
// it has no more packets to produce.
var ErrStop = errors.E(errors.Stop)

// ProcessFunc adapts a function to a Calculator whose Open and Close
// methods do nothing.
type ProcessFunc func(cc *CalculatorContext) error

// Open implements Calculator.
func (ProcessFunc) Open(*CalculatorContext) error { return nil }

// Process implements Calculator.
func (f ProcessFunc) Process(cc *CalculatorContext) error { return f(cc) }

// Close implements Calculator.
func (ProcessFunc) Close(*CalculatorContext) error { return nil }

// A Factory creates a calculator instance for a node. Each node gets
// its own instance.
type Factory func() Calculator

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// RegisterCalculator registers factory under name, so that nodes may
// refer to it by type. RegisterCalculator panics if name is already
// registered.
func RegisterCalculator(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		panic("graph: calculator " + name + " registered twice")
	}
	registry[name] = factory
}

// Calculators returns the sorted names of registered calculator types.
func Calculators() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newCalculator(typ string) (Calculator, error) {
	registryMu.Lock()
	factory, ok := registry[typ]
	registryMu.Unlock()
	if !ok {
		return nil, errors.E("calculator", typ, errors.NotExist)
	}
	return factory(), nil
}
