// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package calculators provides a library of general purpose
// calculators. Importing the package registers them with the graph
// package under the following types:
//
//	pass_through  copies each input slot to the output slot at the same index
//	sync          emits the payloads of all inputs at each timestamp as a slice
//	offset        shifts packets forward in time by option "offset"
//	collect       retains every packet it sees
//	counter       a source emitting options "count" integers
//	ticker        a source emitting wall clock times at option "rate" per second
//	dedup         drops packets whose payloads were seen before
//	fail          forwards its input, failing at option "at"
//
// Retry and Timeout wrap other calculators.
package calculators

import "github.com/grailbio/calcgraph/graph"

func init() {
	graph.RegisterCalculator("pass_through", func() graph.Calculator { return new(PassThrough) })
	graph.RegisterCalculator("sync", func() graph.Calculator { return new(Sync) })
	graph.RegisterCalculator("offset", func() graph.Calculator { return new(Offset) })
	graph.RegisterCalculator("collect", func() graph.Calculator { return new(Collect) })
	graph.RegisterCalculator("counter", func() graph.Calculator { return new(Counter) })
	graph.RegisterCalculator("ticker", func() graph.Calculator { return new(Ticker) })
	graph.RegisterCalculator("dedup", func() graph.Calculator { return new(Dedup) })
	graph.RegisterCalculator("fail", func() graph.Calculator { return new(Fail) })
}
