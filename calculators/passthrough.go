// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calculators

import (
	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/graph"
)

// PassThrough copies the packet on input slot i to output slot i.
// Slots without a packet advance their bound past the invocation's
// timestamp.
type PassThrough struct{}

// Open implements graph.Calculator.
func (PassThrough) Open(cc *graph.CalculatorContext) error {
	if cc.NumInputs() != cc.NumOutputs() {
		return errors.E("open", cc.NodeName(), errors.Invalid,
			errors.Errorf("%d inputs but %d outputs", cc.NumInputs(), cc.NumOutputs()))
	}
	return nil
}

// Process implements graph.Calculator.
func (PassThrough) Process(cc *graph.CalculatorContext) error {
	cc.SetOffset(0)
	for i := 0; i < cc.NumInputs(); i++ {
		p := cc.InputAt(i)
		if p.IsEmpty() {
			continue
		}
		if err := cc.OutputAt(i).AddPacket(p); err != nil {
			return err
		}
	}
	return nil
}

// Close implements graph.Calculator.
func (PassThrough) Close(*graph.CalculatorContext) error { return nil }

// Offset shifts each packet on its single input forward by the
// option "offset", a non-negative timestamp difference.
type Offset struct {
	offset calcgraph.TimestampDiff
}

// Open implements graph.Calculator.
func (o *Offset) Open(cc *graph.CalculatorContext) error {
	d, err := cc.Options().Int("offset", 0)
	if err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	if d < 0 {
		return errors.E("open", cc.NodeName(), errors.Invalid, errors.Errorf("negative offset %d", d))
	}
	o.offset = calcgraph.TimestampDiff(d)
	return nil
}

// Process implements graph.Calculator.
func (o *Offset) Process(cc *graph.CalculatorContext) error {
	out := cc.OutputAt(0)
	out.SetOffset(o.offset)
	p := cc.InputAt(0)
	if p.IsEmpty() {
		return nil
	}
	return out.AddPacket(p.At(p.Timestamp().Add(o.offset)))
}

// Close implements graph.Calculator.
func (o *Offset) Close(*graph.CalculatorContext) error { return nil }
