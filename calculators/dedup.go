// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calculators

import (
	"bytes"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/graph"
	"github.com/willf/bloom"
)

// Dedup forwards packets from its single input to its single output,
// dropping packets whose payload digest has been seen before.
// Membership is tracked by a bloom filter sized by the options
// "capacity" (default 100000) and "fp" (the false positive rate,
// default 1e-6); a false positive drops a packet that was not a
// duplicate. Dropped packets are counted in the node's counter
// "dropped".
type Dedup struct {
	filter *bloom.BloomFilter
	buf    bytes.Buffer
}

// Open implements graph.Calculator.
func (d *Dedup) Open(cc *graph.CalculatorContext) error {
	capacity, err := cc.Options().Int("capacity", 100000)
	if err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	fp, err := cc.Options().Float("fp", 1e-6)
	if err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	if capacity <= 0 || fp <= 0 || fp >= 1 {
		return errors.E("open", cc.NodeName(), errors.Invalid,
			errors.Errorf("capacity %d false positive rate %v", capacity, fp))
	}
	d.filter = bloom.NewWithEstimates(uint(capacity), fp)
	return nil
}

// Process implements graph.Calculator.
func (d *Dedup) Process(cc *graph.CalculatorContext) error {
	out := cc.OutputAt(0)
	out.SetOffset(0)
	p := cc.InputAt(0)
	if p.IsEmpty() {
		return nil
	}
	d.buf.Reset()
	if _, err := digest.WriteDigest(&d.buf, calcgraph.PayloadDigest(p)); err != nil {
		return err
	}
	if d.filter.TestAndAdd(d.buf.Bytes()) {
		cc.Counter("dropped").Inc()
		return nil
	}
	return out.AddPacket(p)
}

// Close implements graph.Calculator.
func (d *Dedup) Close(*graph.CalculatorContext) error { return nil }
