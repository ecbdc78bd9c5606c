// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calculators

import (
	"context"
	"time"

	"github.com/grailbio/base/retry"
	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/graph"
)

// DefaultRetryPolicy is the policy used by Retry when none is given.
var DefaultRetryPolicy = retry.MaxTries(retry.Backoff(10*time.Millisecond, time.Second, 1.5), 4)

// Retry wraps a calculator, retrying its Process method while it
// fails with a transient error (see errors.Transient). Retries are
// paced by Policy and counted in the node's counter "retries".
// The wrapped calculator must not write outputs in an invocation
// that fails, since a retry would then write them twice.
type Retry struct {
	graph.Calculator
	Policy retry.Policy
}

// Process implements graph.Calculator.
func (r *Retry) Process(cc *graph.CalculatorContext) error {
	policy := r.Policy
	if policy == nil {
		policy = DefaultRetryPolicy
	}
	for retries := 0; ; retries++ {
		err := r.Calculator.Process(cc)
		if err == nil || !errors.Transient(err) {
			return err
		}
		cc.Log().Debugf("process %v: retrying after %v", cc.InputTimestamp(), err)
		if werr := retry.Wait(cc.Context(), policy, retries); werr != nil {
			return err
		}
		cc.Counter("retries").Inc()
	}
}

// Timeout wraps a calculator, bounding each Process invocation by
// Timeout. The wrapped calculator must observe the context returned
// by CalculatorContext.Context; an invocation that fails after its
// deadline expired fails with errors.Timeout.
type Timeout struct {
	graph.Calculator
	Timeout time.Duration
}

// Process implements graph.Calculator.
func (t *Timeout) Process(cc *graph.CalculatorContext) error {
	cancel := cc.WithTimeout(t.Timeout)
	defer cancel()
	err := t.Calculator.Process(cc)
	if err != nil && cc.Context().Err() == context.DeadlineExceeded {
		return errors.E("process", cc.NodeName(), cc.InputTimestamp(), errors.Timeout, err)
	}
	return err
}
