// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"github.com/grailbio/calcgraph/errors"
)

// runStatus is the status of a run. The first error recorded is the
// run's error; later errors are counted but otherwise dropped.
type runStatus struct {
	err     error
	dropped int
}

// record records err, returning true if it became the run's error.
func (s *runStatus) record(err error) bool {
	if err == nil {
		return false
	}
	if s.err != nil {
		s.dropped++
		return false
	}
	s.err = err
	return true
}

// failed tells whether an error has been recorded.
func (s *runStatus) failed() bool {
	return s.err != nil
}

// invocationError attributes err, returned by an invocation of cc,
// to its node. Structural and cancellation errors keep their kind;
// other errors are reported as invocation errors with err as their
// cause.
func invocationError(cc *CalculatorContext, err error) error {
	op := cc.phase.String()
	switch {
	case errors.Structural(err), errors.Is(errors.Canceled, err), errors.Is(errors.Fatal, err):
		return errors.E(op, cc.state.name, cc.ts, err)
	default:
		return errors.E(op, cc.state.name, cc.ts, errors.Invocation, err)
	}
}

// statusName returns the metrics label for a run's status.
func statusName(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := err.(*errors.Error); ok {
		return e.Kind.Name()
	}
	return errors.Other.Name()
}
