// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calcgraph

import "testing"

type frame struct {
	W, H int
}

func TestPacketAt(t *testing.T) {
	f := &frame{640, 480}
	p := MakePacket(f)
	if got, want := p.Timestamp(), Unset; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	q := p.At(10)
	if got, want := q.Timestamp(), Timestamp(10); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if p.Timestamp() != Unset {
		t.Error("At modified its receiver")
	}
	if q.Get().(*frame) != f {
		t.Error("At did not share the payload")
	}
	if got, want := q.TypeName(), "*calcgraph.frame"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPacketEmpty(t *testing.T) {
	if !Empty.IsEmpty() {
		t.Error("Empty is not empty")
	}
	if Empty.Timestamp().IsSet() {
		t.Error("Empty has a timestamp")
	}
	if got, want := Empty.TypeName(), ""; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if MakePacket(0).IsEmpty() {
		t.Error("zero payload is empty")
	}
}

func TestPacketValidateAs(t *testing.T) {
	p := MakePacket(3).At(1)
	if err := p.ValidateAs(0); err != nil {
		t.Error(err)
	}
	if err := p.ValidateAs(""); err == nil {
		t.Error("expected error")
	}
	if err := Empty.ValidateAs(0); err == nil {
		t.Error("expected error")
	}
}

func TestPayloadDigest(t *testing.T) {
	a := PayloadDigest(MakePacket("hello").At(1))
	b := PayloadDigest(MakePacket("hello").At(2))
	if a != b {
		t.Errorf("digest depends on timestamp: %v %v", a, b)
	}
	if a == PayloadDigest(MakePacket([]byte("world"))) {
		t.Error("digest collision")
	}
	if c := PayloadDigest(MakePacket(frame{1, 2})); c == PayloadDigest(MakePacket(frame{2, 1})) {
		t.Error("digest collision")
	}
	if !PayloadDigest(Empty).IsZero() {
		t.Error("empty packet has nonzero digest")
	}
}
