// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"reflect"
	"strings"
	"testing"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
)

func TestReadPackets(t *testing.T) {
	var packets []calcgraph.Packet
	add := func(p calcgraph.Packet) error {
		packets = append(packets, p)
		return nil
	}
	r := strings.NewReader("a\nb\n@10 c d\n@20\n")
	if err := readPackets(r, add); err != nil {
		t.Fatal(err)
	}
	var (
		ts []calcgraph.Timestamp
		vs []interface{}
	)
	for _, p := range packets {
		ts = append(ts, p.Timestamp())
		vs = append(vs, p.Get())
	}
	if got, want := ts, []calcgraph.Timestamp{0, 1, 10, 20}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := vs, []interface{}{"a", "b", "c d", ""}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	err := readPackets(strings.NewReader("@x y\n"), add)
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
}

func TestPairs(t *testing.T) {
	p := make(pairs)
	if err := p.Set("in=/tmp/in.txt"); err != nil {
		t.Fatal(err)
	}
	if got, want := p["in"], "/tmp/in.txt"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := p.Set("novalue"); err == nil {
		t.Error("expected error")
	}
}
