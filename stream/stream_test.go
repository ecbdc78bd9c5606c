// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stream

import (
	"sync"
	"testing"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
)

func packet(v interface{}, ts calcgraph.Timestamp) calcgraph.Packet {
	return calcgraph.MakePacket(v).At(ts)
}

func timestamps(pkts []calcgraph.Packet) []calcgraph.Timestamp {
	ts := make([]calcgraph.Timestamp, len(pkts))
	for i, p := range pkts {
		ts[i] = p.Timestamp()
	}
	return ts
}

func TestAppendBound(t *testing.T) {
	s := New("video")
	if got, want := s.Bound(), calcgraph.PreStream; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	for _, ts := range []calcgraph.Timestamp{1, 2, 2 + 3} {
		if err := s.Append(packet("frame", ts)); err != nil {
			t.Fatal(err)
		}
		if got, want := s.Bound(), ts+1; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
	if got, want := s.Stats().Packets, int64(3); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestAppendBelowBound is Scenario C: an append below the bound fails
// and leaves the stream unchanged.
func TestAppendBelowBound(t *testing.T) {
	s := New("s")
	r := s.NewReader("consumer")
	if err := s.AdvanceBound(5); err != nil {
		t.Fatal(err)
	}
	err := s.Append(packet(1, 4))
	if !errors.Is(errors.OrderViolation, err) {
		t.Fatalf("got %v, want OrderViolation", err)
	}
	if got, want := s.Bound(), calcgraph.Timestamp(5); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := r.Len(), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := s.Stats().Packets, int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// At the bound is fine.
	if err := s.Append(packet(1, 5)); err != nil {
		t.Fatal(err)
	}
}

func TestAppendSpecial(t *testing.T) {
	for _, ts := range []calcgraph.Timestamp{calcgraph.Unset, calcgraph.Unstarted, calcgraph.OneOverPostStream, calcgraph.Done} {
		s := New("s")
		if err := s.Append(packet(1, ts)); !errors.Is(errors.OrderViolation, err) {
			t.Errorf("%v: got %v, want OrderViolation", ts, err)
		}
	}
	// A PreStream packet must be the stream's only packet.
	s := New("header")
	if err := s.Append(packet("header", calcgraph.PreStream)); err != nil {
		t.Fatal(err)
	}
	if got, want := s.Bound(), calcgraph.OneOverPostStream; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := s.Append(packet("late", calcgraph.PostStream)); !errors.Is(errors.OrderViolation, err) {
		t.Errorf("got %v, want OrderViolation", err)
	}
}

func TestClose(t *testing.T) {
	s := New("s")
	r := s.NewReader("c")
	if err := s.Append(packet(1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if !s.IsClosed() {
		t.Error("stream not closed")
	}
	if err := s.Append(packet(1, calcgraph.Max)); !errors.Is(errors.OrderViolation, err) {
		t.Errorf("got %v, want OrderViolation", err)
	}
	if r.Done() {
		t.Error("reader done with packets pending")
	}
	r.PopThrough(calcgraph.Max)
	if !r.Done() {
		t.Error("reader not done")
	}
}

func TestAdvanceBound(t *testing.T) {
	s := New("s")
	var notified int
	s.Notify(func(*Stream) { notified++ })
	if err := s.AdvanceBound(10); err != nil {
		t.Fatal(err)
	}
	if err := s.AdvanceBound(10); err != nil {
		t.Fatal(err)
	}
	if err := s.AdvanceBound(9); !errors.Is(errors.OrderViolation, err) {
		t.Errorf("got %v, want OrderViolation", err)
	}
	if got, want := s.Bound(), calcgraph.Timestamp(10); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := notified, 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := s.Stats().Advances, int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPopThroughQuiet(t *testing.T) {
	s := New("s")
	r := s.NewReader("a")
	var notified int
	s.Notify(func(*Stream) { notified++ })
	for ts := calcgraph.Timestamp(1); ts <= 3; ts++ {
		if err := s.Append(packet(int(ts), ts)); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := len(r.PopThrough(2)), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := notified, 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReaders(t *testing.T) {
	s := New("s")
	r1, r2 := s.NewReader("a"), s.NewReader("b")
	for ts := calcgraph.Timestamp(1); ts <= 4; ts++ {
		if err := s.Append(packet(int(ts)*10, ts)); err != nil {
			t.Fatal(err)
		}
	}
	if ts, ok := r1.PeekMinTimestamp(); !ok || ts != 1 {
		t.Errorf("got %v, %v, want 1, true", ts, ok)
	}
	got := r1.PopThrough(2)
	if len(got) != 2 || got[0].Get() != 10 || got[1].Get() != 20 {
		t.Errorf("bad packets %v", got)
	}
	head, bound := r1.Snapshot()
	if head != 3 || bound != 5 {
		t.Errorf("got %v, %v, want 3, 5", head, bound)
	}
	// r2 is independent of r1.
	if got, want := r2.Len(), 4; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	got = r2.PopThrough(calcgraph.Max)
	if ts := timestamps(got); len(ts) != 4 || ts[3] != 4 {
		t.Errorf("bad timestamps %v", ts)
	}
	if pkts := r2.PopThrough(calcgraph.Max); pkts != nil {
		t.Errorf("got %v, want nil", pkts)
	}
	head, _ = r2.Snapshot()
	if head.IsSet() {
		t.Errorf("empty reader has head %v", head)
	}
}

func TestConcurrentAppend(t *testing.T) {
	s := New("s")
	r := s.NewReader("c")
	const N = 1000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ts := calcgraph.Timestamp(0); ts < N; ts++ {
			if err := s.Append(packet(ts, ts)); err != nil {
				t.Error(err)
				return
			}
		}
		s.Close()
	}()
	var (
		last = calcgraph.Unset
		n    int
	)
	for !r.Done() {
		for _, p := range r.PopThrough(calcgraph.Max) {
			if p.Timestamp() <= last {
				t.Fatalf("timestamp %v after %v", p.Timestamp(), last)
			}
			last = p.Timestamp()
			n++
		}
	}
	wg.Wait()
	if got, want := n, N; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
