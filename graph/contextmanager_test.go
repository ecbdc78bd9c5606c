// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
)

func TestContextManagerOrder(t *testing.T) {
	n := newTestNode()
	cm := newContextManager(n, 3, true)
	for _, ts := range []calcgraph.Timestamp{calcgraph.Unstarted, 1, 2, 3, 4} {
		if err := cm.Enqueue(ts); err != nil {
			t.Fatal(err)
		}
	}
	if err := cm.Enqueue(2); !errors.Is(errors.OutOfOrder, err) {
		t.Fatalf("expected out of order error, got %v", err)
	}
	if err := cm.Enqueue(calcgraph.Unset); err != nil {
		t.Fatalf("unset timestamps are exempt from ordering: %v", err)
	}
	if got, want := cm.Last(), calcgraph.Timestamp(4); got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	open, ok := cm.TryAcquire(context.Background())
	if !ok || open.Phase() != Open {
		t.Fatalf("expected open context, got %v", open)
	}
	var ccs []*CalculatorContext
	for {
		cc, ok := cm.TryAcquire(context.Background())
		if !ok {
			break
		}
		ccs = append(ccs, cc)
	}
	if got, want := len(ccs), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := cm.InFlight(), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := cm.Pending(), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	// Completing a later invocation releases nothing.
	if ready := cm.Complete(ccs[1]); len(ready) != 0 {
		t.Fatalf("unexpected ready contexts %v", ready)
	}
	if ready := cm.Complete(ccs[0]); len(ready) != 0 {
		t.Fatalf("unexpected ready contexts %v", ready)
	}
	ready := cm.Complete(open)
	if got, want := len(ready), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, want := range []calcgraph.Timestamp{calcgraph.Unstarted, 1, 2} {
		if got := ready[i].InputTimestamp(); got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		cm.Release(ready[i])
	}
	if !cm.Available() {
		t.Error("expected capacity")
	}
}

func TestContextManagerRetire(t *testing.T) {
	n := newTestNode()
	cm := newContextManager(n, 1, false)
	if err := cm.Enqueue(1); err != nil {
		t.Fatal(err)
	}
	cc, _ := cm.TryAcquire(context.Background())
	cm.Release(cc)
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	cc.InputTimestamp()
}

func TestContextManagerSerialBodies(t *testing.T) {
	n := newTestNode()
	cm := newContextManager(n, 4, false)
	var ccs []*CalculatorContext
	for ts := calcgraph.Timestamp(1); ts <= 4; ts++ {
		if err := cm.Enqueue(ts); err != nil {
			t.Fatal(err)
		}
		cc, ok := cm.TryAcquire(context.Background())
		if !ok {
			t.Fatal("no context")
		}
		ccs = append(ccs, cc)
	}
	var (
		mu    sync.Mutex
		order []calcgraph.Timestamp
		wg    sync.WaitGroup
	)
	// Start the bodies in reverse order; they must still execute in
	// timestamp order.
	for i := len(ccs) - 1; i >= 0; i-- {
		cc := ccs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			cm.enter(cc)
			mu.Lock()
			order = append(order, cc.ts)
			mu.Unlock()
			cm.exit(cc)
		}()
		time.Sleep(time.Millisecond)
	}
	wg.Wait()
	for i, ts := range order {
		if got, want := ts, calcgraph.Timestamp(i+1); got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
