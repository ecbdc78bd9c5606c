// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calculators

import (
	"time"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/graph"
	"golang.org/x/time/rate"
)

// Counter is a source that emits the integers 0 through count-1,
// where count is the option "count" (default 10). The integer i is
// stamped start+i*step, from the options "start" (default 0) and
// "step" (default 1).
type Counter struct {
	count, i    int
	start, step calcgraph.Timestamp
}

// Open implements graph.Calculator.
func (c *Counter) Open(cc *graph.CalculatorContext) error {
	opts := cc.Options()
	var (
		start, step int
		err         error
	)
	if c.count, err = opts.Int("count", 10); err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	if start, err = opts.Int("start", 0); err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	if step, err = opts.Int("step", 1); err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	if step <= 0 {
		return errors.E("open", cc.NodeName(), errors.Invalid, errors.Errorf("step %d is not positive", step))
	}
	c.start, c.step = calcgraph.Timestamp(start), calcgraph.Timestamp(step)
	return nil
}

// Process implements graph.Calculator.
func (c *Counter) Process(cc *graph.CalculatorContext) error {
	if c.i >= c.count {
		return graph.ErrStop
	}
	ts := c.start + calcgraph.Timestamp(c.i)*c.step
	if err := cc.OutputAt(0).AddPacket(calcgraph.MakePacket(c.i).At(ts)); err != nil {
		return err
	}
	c.i++
	return nil
}

// Close implements graph.Calculator.
func (c *Counter) Close(*graph.CalculatorContext) error { return nil }

// Ticker is a source that emits the current time.Time, at most
// "rate" times per second (default 10) with bursts of up to "burst"
// packets (default 1), for a total of "count" packets (default 10).
// Packets are stamped with the microseconds elapsed since Open.
type Ticker struct {
	limiter *rate.Limiter
	count   int
	begin   time.Time
	last    calcgraph.Timestamp
}

// Open implements graph.Calculator.
func (t *Ticker) Open(cc *graph.CalculatorContext) error {
	opts := cc.Options()
	r, err := opts.Float("rate", 10)
	if err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	burst, err := opts.Int("burst", 1)
	if err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	if t.count, err = opts.Int("count", 10); err != nil {
		return errors.E("open", cc.NodeName(), errors.Invalid, err)
	}
	if r <= 0 || burst <= 0 {
		return errors.E("open", cc.NodeName(), errors.Invalid, errors.Errorf("rate %v burst %d", r, burst))
	}
	t.limiter = rate.NewLimiter(rate.Limit(r), burst)
	t.begin = time.Now()
	t.last = calcgraph.Unstarted
	return nil
}

// Process implements graph.Calculator.
func (t *Ticker) Process(cc *graph.CalculatorContext) error {
	if t.count <= 0 {
		return graph.ErrStop
	}
	if err := t.limiter.Wait(cc.Context()); err != nil {
		return err
	}
	now := time.Now()
	ts := calcgraph.Timestamp(now.Sub(t.begin) / time.Microsecond)
	if ts <= t.last {
		ts = t.last + 1
	}
	if err := cc.OutputAt(0).AddPacket(calcgraph.MakePacket(now).At(ts)); err != nil {
		return err
	}
	t.last = ts
	t.count--
	return nil
}

// Close implements graph.Calculator.
func (t *Ticker) Close(*graph.CalculatorContext) error { return nil }
