// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calculators_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/grailbio/base/retry"
	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/calculators"
	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/graph"
	"github.com/grailbio/calcgraph/test/testutil"
)

const timeout = 10 * time.Second

type input struct {
	stream string
	ts     calcgraph.Timestamp
	v      interface{}
}

// run runs a graph built from nodes, feeding it inputs, and records
// the streams named by observe.
func run(t *testing.T, nodes []graph.NodeConfig, inputs []input, observe ...string) (*graph.Graph, *testutil.Recorder, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	config := graph.Config{Nodes: nodes}
	seen := make(map[string]bool)
	for _, in := range inputs {
		if !seen[in.stream] {
			config.InputStreams = append(config.InputStreams, in.stream)
			seen[in.stream] = true
		}
	}
	g, err := graph.New(config)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := testutil.NewRecorder(g, observe...)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.StartRun(ctx, nil); err != nil {
		t.Fatal(err)
	}
	// Inputs are rejected once a run fails; the run's error is
	// reported instead.
	var addErr error
	for _, in := range inputs {
		if addErr = g.AddPacket(in.stream, calcgraph.MakePacket(in.v).At(in.ts)); addErr != nil {
			break
		}
	}
	if addErr == nil {
		addErr = g.CloseAllInputStreams()
	}
	if addErr != nil {
		g.Cancel()
	}
	err = g.Wait(ctx)
	if addErr != nil && err == nil {
		t.Fatal(addErr)
	}
	return g, rec, err
}

// hasKind tells whether err or one of its causes is of kind.
func hasKind(err error, kind errors.Kind) bool {
	for err != nil {
		e, ok := err.(*errors.Error)
		if !ok {
			return errors.Is(kind, err)
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

func TestRegistered(t *testing.T) {
	registered := make(map[string]bool)
	for _, name := range graph.Calculators() {
		registered[name] = true
	}
	for _, name := range []string{"pass_through", "sync", "offset", "collect", "counter", "ticker", "dedup", "fail"} {
		if !registered[name] {
			t.Errorf("calculator %s is not registered", name)
		}
	}
}

func TestPassThrough(t *testing.T) {
	_, rec, err := run(t, []graph.NodeConfig{{
		Type:    "pass_through",
		Inputs:  []graph.InputSlot{{Stream: "a"}, {Stream: "b"}},
		Outputs: []graph.OutputSlot{{Stream: "a_out"}, {Stream: "b_out"}},
	}}, []input{
		{"a", 1, "x"}, {"b", 1, "y"}, {"a", 2, "z"},
	}, "a_out", "b_out")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := rec.Values("a_out"), []interface{}{"x", "z"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := rec.Timestamps("b_out"), []calcgraph.Timestamp{1}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPassThroughMismatch(t *testing.T) {
	_, _, err := run(t, []graph.NodeConfig{{
		Type:   "pass_through",
		Inputs: []graph.InputSlot{{Stream: "a"}},
	}}, []input{{"a", 1, 1}})
	if !hasKind(err, errors.Invalid) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestSync(t *testing.T) {
	_, rec, err := run(t, []graph.NodeConfig{{
		Type:    "sync",
		Inputs:  []graph.InputSlot{{Stream: "a"}, {Stream: "b"}},
		Outputs: []graph.OutputSlot{{Stream: "out"}},
	}}, []input{
		{"a", 1, 1}, {"a", 2, 2}, {"b", 2, 20},
	}, "out")
	if err != nil {
		t.Fatal(err)
	}
	want := []interface{}{
		[]interface{}{1, nil},
		[]interface{}{2, 20},
	}
	if got := rec.Values("out"); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOffset(t *testing.T) {
	_, rec, err := run(t, []graph.NodeConfig{{
		Type:    "offset",
		Options: graph.Options{"offset": 5},
		Inputs:  []graph.InputSlot{{Stream: "in"}},
		Outputs: []graph.OutputSlot{{Stream: "out"}},
	}}, []input{{"in", 1, "a"}, {"in", 2, "b"}}, "out")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := rec.Timestamps("out"), []calcgraph.Timestamp{6, 7}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	_, _, err = run(t, []graph.NodeConfig{{
		Type:    "offset",
		Options: graph.Options{"offset": -1},
		Inputs:  []graph.InputSlot{{Stream: "in"}},
		Outputs: []graph.OutputSlot{{Stream: "out"}},
	}}, []input{{"in", 1, "a"}})
	if !hasKind(err, errors.Invalid) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestCollect(t *testing.T) {
	c := new(calculators.Collect)
	g, _, err := run(t, []graph.NodeConfig{{
		Name:       "sink",
		Calculator: c,
		Inputs:     []graph.InputSlot{{Stream: "in"}},
	}}, []input{{"in", 1, "a"}, {"in", 3, "b"}})
	if err != nil {
		t.Fatal(err)
	}
	var ts []calcgraph.Timestamp
	for _, p := range c.Packets("in") {
		ts = append(ts, p.Timestamp())
	}
	if got, want := ts, []calcgraph.Timestamp{1, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := g.Counters().Snapshot()["sink.packets"], int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCounter(t *testing.T) {
	_, rec, err := run(t, []graph.NodeConfig{{
		Type:    "counter",
		Options: graph.Options{"count": 3, "start": 10, "step": 5},
		Outputs: []graph.OutputSlot{{Stream: "out"}},
	}}, nil, "out")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := rec.Timestamps("out"), []calcgraph.Timestamp{10, 15, 20}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := rec.Values("out"), []interface{}{0, 1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTicker(t *testing.T) {
	_, rec, err := run(t, []graph.NodeConfig{{
		Type:    "ticker",
		Options: graph.Options{"count": 5, "rate": 1000, "burst": 2},
		Outputs: []graph.OutputSlot{{Stream: "out"}},
	}}, nil, "out")
	if err != nil {
		t.Fatal(err)
	}
	packets := rec.Packets("out")
	if got, want := len(packets), 5; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := 1; i < len(packets); i++ {
		if packets[i].Timestamp() <= packets[i-1].Timestamp() {
			t.Errorf("timestamps out of order: %v, %v", packets[i-1].Timestamp(), packets[i].Timestamp())
		}
		if _, ok := packets[i].Get().(time.Time); !ok {
			t.Errorf("unexpected payload %T", packets[i].Get())
		}
	}
}

func TestDedup(t *testing.T) {
	g, rec, err := run(t, []graph.NodeConfig{{
		Name:    "dedup",
		Type:    "dedup",
		Options: graph.Options{"capacity": 100},
		Inputs:  []graph.InputSlot{{Stream: "in"}},
		Outputs: []graph.OutputSlot{{Stream: "out"}},
	}}, []input{
		{"in", 1, "a"}, {"in", 2, "b"}, {"in", 3, "a"}, {"in", 4, "c"}, {"in", 5, "b"},
	}, "out")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := rec.Values("out"), []interface{}{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := g.Counters().Snapshot()["dedup.dropped"], int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFail(t *testing.T) {
	_, rec, err := run(t, []graph.NodeConfig{{
		Type:    "fail",
		Options: graph.Options{"at": 2, "message": "boom"},
		Inputs:  []graph.InputSlot{{Stream: "in"}},
		Outputs: []graph.OutputSlot{{Stream: "out"}},
	}}, []input{{"in", 1, 1}, {"in", 2, 2}, {"in", 3, 3}}, "out")
	if !errors.Is(errors.Invocation, err) {
		t.Fatalf("expected invocation error, got %v", err)
	}
	if got, want := rec.Timestamps("out"), []calcgraph.Timestamp{1}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

var fastRetry = retry.MaxTries(retry.Backoff(time.Millisecond, time.Millisecond, 1), 5)

func TestRetry(t *testing.T) {
	g, rec, err := run(t, []graph.NodeConfig{{
		Name:       "flaky",
		Calculator: &calculators.Retry{Calculator: new(calculators.Fail), Policy: fastRetry},
		Options:    graph.Options{"at": 2, "temporary": true, "times": 2},
		Inputs:     []graph.InputSlot{{Stream: "in"}},
		Outputs:    []graph.OutputSlot{{Stream: "out"}},
	}}, []input{{"in", 1, 1}, {"in", 2, 2}, {"in", 3, 3}}, "out")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := rec.Values("out"), []interface{}{1, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := g.Counters().Snapshot()["flaky.retries"], int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRetryDefaultPolicy(t *testing.T) {
	g, rec, err := run(t, []graph.NodeConfig{{
		Name:       "flaky",
		Calculator: &calculators.Retry{Calculator: new(calculators.Fail)},
		Options:    graph.Options{"at": 1, "temporary": true, "times": 3},
		Inputs:     []graph.InputSlot{{Stream: "in"}},
		Outputs:    []graph.OutputSlot{{Stream: "out"}},
	}}, []input{{"in", 1, 1}, {"in", 2, 2}}, "out")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := rec.Values("out"), []interface{}{1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := g.Counters().Snapshot()["flaky.retries"], int64(3); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRetryExhausted(t *testing.T) {
	_, _, err := run(t, []graph.NodeConfig{{
		Calculator: &calculators.Retry{Calculator: new(calculators.Fail), Policy: fastRetry},
		Options:    graph.Options{"temporary": true, "times": 10},
		Inputs:     []graph.InputSlot{{Stream: "in"}},
		Outputs:    []graph.OutputSlot{{Stream: "out"}},
	}}, []input{{"in", 1, 1}})
	if !errors.Is(errors.Invocation, err) {
		t.Fatalf("expected invocation error, got %v", err)
	}
	if !hasKind(err, errors.Temporary) {
		t.Errorf("expected temporary cause, got %v", err)
	}
	if !errors.Transient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestRetryPermanent(t *testing.T) {
	f := &countingCalc{err: errors.E(errors.Invalid, "bad input")}
	_, _, err := run(t, []graph.NodeConfig{{
		Calculator: &calculators.Retry{Calculator: f, Policy: fastRetry},
		Inputs:     []graph.InputSlot{{Stream: "in"}},
	}}, []input{{"in", 1, 1}})
	if !hasKind(err, errors.Invalid) {
		t.Errorf("expected invalid cause, got %v", err)
	}
	if got, want := f.n, 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

type countingCalc struct {
	graph.ProcessFunc
	n   int
	err error
}

func (c *countingCalc) Process(*graph.CalculatorContext) error {
	c.n++
	return c.err
}

func TestTimeout(t *testing.T) {
	block := graph.ProcessFunc(func(cc *graph.CalculatorContext) error {
		<-cc.Context().Done()
		return cc.Context().Err()
	})
	_, _, err := run(t, []graph.NodeConfig{{
		Calculator: &calculators.Timeout{Calculator: block, Timeout: 10 * time.Millisecond},
		Inputs:     []graph.InputSlot{{Stream: "in"}},
	}}, []input{{"in", 1, 1}})
	if !errors.Is(errors.Invocation, err) {
		t.Fatalf("expected invocation error, got %v", err)
	}
	if !hasKind(err, errors.Timeout) {
		t.Errorf("expected timeout cause, got %v", err)
	}

	fast := &calculators.Timeout{Calculator: new(calculators.PassThrough), Timeout: time.Minute}
	_, rec, err := run(t, []graph.NodeConfig{{
		Calculator: fast,
		Inputs:     []graph.InputSlot{{Stream: "in"}},
		Outputs:    []graph.OutputSlot{{Stream: "out"}},
	}}, []input{{"in", 1, 1}}, "out")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := rec.Timestamps("out"), []calcgraph.Timestamp{1}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
