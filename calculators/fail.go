// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calculators

import (
	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/graph"
)

// Fail forwards its single input to its single output until the
// invocation at the timestamp given by option "at" (by default the
// first), which fails with the option "message". If option
// "temporary" is set, the failure is marked transient and only
// "times" invocations (default 1) fail, so that a Retry wrapper may
// recover from it.
type Fail struct {
	at        calcgraph.Timestamp
	message   string
	temporary bool
	times     int
}

// Open implements graph.Calculator.
func (f *Fail) Open(cc *graph.CalculatorContext) error {
	opts := cc.Options()
	at, err := opts.Int("at", -1)
	if err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	f.at = calcgraph.Timestamp(at)
	if at < 0 {
		f.at = calcgraph.Unset
	}
	if f.message, err = opts.String("message", "injected failure"); err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	if f.temporary, err = opts.Bool("temporary", false); err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	if f.times, err = opts.Int("times", 1); err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	return nil
}

// Process implements graph.Calculator.
func (f *Fail) Process(cc *graph.CalculatorContext) error {
	ts := cc.InputTimestamp()
	if f.at == calcgraph.Unset || ts == f.at {
		f.at = ts
		if !f.temporary {
			return errors.E("process", cc.NodeName(), ts, errors.New(f.message))
		}
		if f.times > 0 {
			f.times--
			return errors.E("process", cc.NodeName(), ts, errors.Temporary, errors.New(f.message))
		}
	}
	cc.SetOffset(0)
	if p := cc.InputAt(0); !p.IsEmpty() {
		return cc.OutputAt(0).AddPacket(p)
	}
	return nil
}

// Close implements graph.Calculator.
func (f *Fail) Close(*graph.CalculatorContext) error { return nil }
