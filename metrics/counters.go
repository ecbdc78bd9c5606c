// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// A CounterSet is a registry of named counters. Counter returns the
// counter with the given name, creating it on first use.
type CounterSet interface {
	Counter(name string) *IntCounter
}

// IntCounter is an integer counter. It is safe for concurrent use.
type IntCounter struct {
	n int64
}

// Inc increments the counter by one.
func (c *IntCounter) Inc() {
	atomic.AddInt64(&c.n, 1)
}

// Add adds n to the counter.
func (c *IntCounter) Add(n int64) {
	atomic.AddInt64(&c.n, n)
}

// Value returns the counter's current value.
func (c *IntCounter) Value() int64 {
	return atomic.LoadInt64(&c.n)
}

// Counters is an in-memory CounterSet.
type Counters struct {
	mu       sync.Mutex
	counters map[string]*IntCounter
}

// NewCounters returns a new, empty in-memory counter set.
func NewCounters() *Counters {
	return &Counters{counters: make(map[string]*IntCounter)}
}

// Counter implements CounterSet.
func (s *Counters) Counter(name string) *IntCounter {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters[name]
	if c == nil {
		c = new(IntCounter)
		s.counters[name] = c
	}
	return c
}

// Snapshot returns the current value of every counter in the set.
func (s *Counters) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[string]int64, len(s.counters))
	for name, c := range s.counters {
		m[name] = c.Value()
	}
	return m
}

// Names returns the sorted names of the counters in the set.
func (s *Counters) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.counters))
	for name := range s.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type prefixed struct {
	CounterSet
	prefix string
}

func (p prefixed) Counter(name string) *IntCounter {
	return p.CounterSet.Counter(p.prefix + name)
}

// Prefix returns a CounterSet that names its counters in set with
// prefix prepended.
func Prefix(set CounterSet, prefix string) CounterSet {
	return prefixed{set, prefix}
}
