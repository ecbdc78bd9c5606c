// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calcgraph

import (
	"fmt"
	"reflect"
)

// A Packet is an immutable payload stamped with a Timestamp. Packets
// are values: copies share the same payload, which must not be
// mutated once the packet is created. The payload is reclaimed when
// the last holder (a stream queue, or a context that read it) drops
// its copy.
type Packet struct {
	payload interface{}
	ts      Timestamp
}

// Empty is the packet with no payload and no timestamp. It is what
// input accessors return for a slot that is absent in an invocation.
var Empty = Packet{ts: Unset}

// MakePacket returns a packet carrying v. Its timestamp is Unset
// until stamped by At.
func MakePacket(v interface{}) Packet {
	return Packet{payload: v, ts: Unset}
}

// At returns a packet with the same payload as p, stamped with ts.
func (p Packet) At(ts Timestamp) Packet {
	return Packet{payload: p.payload, ts: ts}
}

// Timestamp returns the packet's timestamp.
func (p Packet) Timestamp() Timestamp {
	return p.ts
}

// Get returns the packet's payload.
func (p Packet) Get() interface{} {
	return p.payload
}

// IsEmpty tells whether p carries no payload.
func (p Packet) IsEmpty() bool {
	return p.payload == nil
}

// TypeName returns the name of the payload's type, or "" for an
// empty packet.
func (p Packet) TypeName() string {
	if p.payload == nil {
		return ""
	}
	return reflect.TypeOf(p.payload).String()
}

// ValidateAs returns an error unless p's payload is assignable to
// the type of v.
func (p Packet) ValidateAs(v interface{}) error {
	if p.payload == nil {
		return fmt.Errorf("empty packet at %v", p.ts)
	}
	want := reflect.TypeOf(v)
	if got := reflect.TypeOf(p.payload); !got.AssignableTo(want) {
		return fmt.Errorf("packet at %v holds %v, not %v", p.ts, got, want)
	}
	return nil
}

// String renders the packet for debugging.
func (p Packet) String() string {
	if p.payload == nil {
		return fmt.Sprintf("<empty>@%v", p.ts)
	}
	return fmt.Sprintf("%v@%v", p.payload, p.ts)
}
