// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stream implements timestamp-ordered packet streams. A
// stream has a single producer and any number of consumers, each of
// which reads through its own Reader. Along with its packets, a
// stream maintains a timestamp bound: the smallest timestamp a future
// packet may carry. Bounds only increase; a stream whose bound is
// calcgraph.Done is closed.
//
// Streams are safe for concurrent use. A producer may append while
// consumers inspect and pop their queues.
package stream

import (
	"sync"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
)

// A Listener is notified after each mutation of a stream that
// changes its contents or bound. Listeners are called without the
// stream's lock held, from the goroutine that mutated the stream.
type Listener func(s *Stream)

// Stream is a timestamp-monotonic sequence of packets together with
// a timestamp bound.
type Stream struct {
	name string

	mu       sync.Mutex
	bound    calcgraph.Timestamp
	readers  []*Reader
	listener Listener
	stats    Stats
}

// Stats counts the mutations of a stream.
type Stats struct {
	// Packets is the number of packets appended.
	Packets int64
	// Advances is the number of explicit bound advances that
	// changed the bound.
	Advances int64
}

// New returns a new, empty stream named name. Its bound is
// calcgraph.PreStream.
func New(name string) *Stream {
	return &Stream{name: name, bound: calcgraph.PreStream}
}

// Name returns the stream's name.
func (s *Stream) Name() string {
	return s.name
}

// String returns the stream's name.
func (s *Stream) String() string {
	return s.name
}

// Notify installs listener l, replacing any previous listener.
func (s *Stream) Notify(l Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// NewReader returns a new consumer of s. A reader observes only the
// packets appended after it was created.
func (s *Stream) NewReader(consumer string) *Reader {
	r := &Reader{stream: s, consumer: consumer}
	s.mu.Lock()
	s.readers = append(s.readers, r)
	s.mu.Unlock()
	return r
}

// Readers returns the number of consumers of s.
func (s *Stream) Readers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readers)
}

// Bound returns the stream's current timestamp bound.
func (s *Stream) Bound() calcgraph.Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// IsClosed tells whether the stream's bound is calcgraph.Done.
func (s *Stream) IsClosed() bool {
	return s.Bound() == calcgraph.Done
}

// Stats returns the stream's mutation counts.
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Append appends packet p to the stream and delivers it to every
// reader. The packet's timestamp must be allowed in a stream and not
// less than the stream's bound; otherwise Append returns an
// errors.OrderViolation error and the stream is unchanged. After a
// successful append, the bound is p.Timestamp().NextAllowedInStream().
func (s *Stream) Append(p calcgraph.Packet) error {
	ts := p.Timestamp()
	s.mu.Lock()
	if err := s.checkAppend(ts); err != nil {
		s.mu.Unlock()
		return err
	}
	for _, r := range s.readers {
		r.queue = append(r.queue, p)
	}
	s.bound = ts.NextAllowedInStream()
	s.stats.Packets++
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l(s)
	}
	return nil
}

func (s *Stream) checkAppend(ts calcgraph.Timestamp) error {
	switch {
	case !ts.IsAllowedInStream():
		return errors.E("append", s.name, ts, errors.OrderViolation,
			errors.Errorf("timestamp %v is not allowed in a stream", ts))
	case s.bound == calcgraph.Done:
		return errors.E("append", s.name, ts, errors.OrderViolation,
			errors.New("stream is closed"))
	case ts < s.bound:
		return errors.E("append", s.name, ts, errors.OrderViolation,
			errors.Errorf("timestamp is below the stream bound %v", s.bound))
	}
	return nil
}

// AdvanceBound raises the stream's bound to bound. It is an
// errors.OrderViolation to lower the bound; setting the current
// bound again does nothing.
func (s *Stream) AdvanceBound(bound calcgraph.Timestamp) error {
	s.mu.Lock()
	switch {
	case !bound.IsSet() || bound < s.bound:
		cur := s.bound
		s.mu.Unlock()
		return errors.E("advance", s.name, bound, errors.OrderViolation,
			errors.Errorf("bound would decrease from %v", cur))
	case bound == s.bound:
		s.mu.Unlock()
		return nil
	}
	s.bound = bound
	s.stats.Advances++
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l(s)
	}
	return nil
}

// Close closes the stream by advancing its bound to calcgraph.Done.
// Closing a closed stream does nothing.
func (s *Stream) Close() error {
	return s.AdvanceBound(calcgraph.Done)
}

// A Reader is one consumer's view of a stream: a queue of the
// packets the consumer has not yet popped, and the stream's bound.
type Reader struct {
	stream   *Stream
	consumer string
	queue    []calcgraph.Packet
}

// Stream returns the stream read by r.
func (r *Reader) Stream() *Stream {
	return r.stream
}

// Consumer returns the name of r's consumer.
func (r *Reader) Consumer() string {
	return r.consumer
}

// PeekMinTimestamp returns the timestamp of the oldest packet not
// yet popped by r. The second result is false if r's queue is empty.
func (r *Reader) PeekMinTimestamp() (calcgraph.Timestamp, bool) {
	r.stream.mu.Lock()
	defer r.stream.mu.Unlock()
	if len(r.queue) == 0 {
		return calcgraph.Unset, false
	}
	return r.queue[0].Timestamp(), true
}

// Snapshot atomically returns the timestamp of r's oldest packet
// (calcgraph.Unset if r's queue is empty) together with the stream's
// bound.
func (r *Reader) Snapshot() (head, bound calcgraph.Timestamp) {
	r.stream.mu.Lock()
	defer r.stream.mu.Unlock()
	head = calcgraph.Unset
	if len(r.queue) > 0 {
		head = r.queue[0].Timestamp()
	}
	return head, r.stream.bound
}

// PopThrough removes and returns every packet in r's queue with a
// timestamp not exceeding ts, in timestamp order. Unlike the stream's
// other mutators, PopThrough does not call the stream's listener; a
// reader is drained only by the scheduler of its consuming node.
func (r *Reader) PopThrough(ts calcgraph.Timestamp) []calcgraph.Packet {
	r.stream.mu.Lock()
	defer r.stream.mu.Unlock()
	n := 0
	for n < len(r.queue) && r.queue[n].Timestamp() <= ts {
		n++
	}
	if n == 0 {
		return nil
	}
	popped := make([]calcgraph.Packet, n)
	copy(popped, r.queue)
	// Clear references so that payloads may be collected.
	for i := 0; i < n; i++ {
		r.queue[i] = calcgraph.Packet{}
	}
	r.queue = r.queue[n:]
	return popped
}

// Len returns the number of packets in r's queue.
func (r *Reader) Len() int {
	r.stream.mu.Lock()
	defer r.stream.mu.Unlock()
	return len(r.queue)
}

// Done tells whether r's stream is closed and r's queue is empty:
// the consumer will see no further packets.
func (r *Reader) Done() bool {
	r.stream.mu.Lock()
	defer r.stream.mu.Unlock()
	return len(r.queue) == 0 && r.stream.bound == calcgraph.Done
}
