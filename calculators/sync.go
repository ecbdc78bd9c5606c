// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calculators

import "github.com/grailbio/calcgraph/graph"

// Sync joins its inputs: at each timestamp it emits on its single
// output a []interface{} holding the payload of every input slot, in
// slot order. Slots without a packet at the timestamp hold nil.
type Sync struct{}

// Open implements graph.Calculator.
func (Sync) Open(*graph.CalculatorContext) error { return nil }

// Process implements graph.Calculator.
func (Sync) Process(cc *graph.CalculatorContext) error {
	vs := make([]interface{}, cc.NumInputs())
	for i := range vs {
		vs[i] = cc.InputAt(i).Get()
	}
	return cc.OutputAt(0).Add(vs)
}

// Close implements graph.Calculator.
func (Sync) Close(*graph.CalculatorContext) error { return nil }
