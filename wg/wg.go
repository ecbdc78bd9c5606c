// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package wg implements a WaitGroup whose completion can be selected
// on. The graph scheduler uses it to track in-flight invocations.
package wg

import (
	"context"
	"sync"
)

// A WaitGroup counts outstanding work. Unlike sync.WaitGroup, its
// zero count is exposed as a channel (C), so that waiting may be
// combined with other events in a select statement.
//
// A WaitGroup must not be copied after first use.
type WaitGroup struct {
	mu    sync.Mutex
	n     int
	waitc chan struct{}
}

// Add adds delta, which may be negative, to the counter. Channels
// returned by C are closed when the counter reaches zero. Add panics
// if the counter goes negative.
func (w *WaitGroup) Add(delta int) {
	w.mu.Lock()
	w.n += delta
	if w.n < 0 {
		w.mu.Unlock()
		panic("wg: negative count")
	}
	var c chan struct{}
	if w.n == 0 {
		c = w.waitc
		w.waitc = nil
	}
	w.mu.Unlock()
	if c != nil {
		close(c)
	}
}

// Done decrements the counter.
func (w *WaitGroup) Done() {
	w.Add(-1)
}

// C returns a channel that is closed when the counter is zero.
func (w *WaitGroup) C() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.n == 0 {
		c := make(chan struct{})
		close(c)
		return c
	}
	if w.waitc == nil {
		w.waitc = make(chan struct{})
	}
	return w.waitc
}

// Wait blocks until the counter is zero or the context is done.
func (w *WaitGroup) Wait(ctx context.Context) error {
	select {
	case <-w.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// N returns the current count.
func (w *WaitGroup) N() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}
