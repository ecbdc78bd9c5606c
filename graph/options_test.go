// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"testing"
	"time"
)

func TestOptions(t *testing.T) {
	opts := Options{
		"n":       3,
		"whole":   4.0,
		"frac":    0.5,
		"name":    "x",
		"on":      true,
		"timeout": "1.5s",
	}
	if n, err := opts.Int("n", 0); err != nil || n != 3 {
		t.Errorf("got %v, %v, want 3", n, err)
	}
	if n, err := opts.Int("whole", 0); err != nil || n != 4 {
		t.Errorf("got %v, %v, want 4", n, err)
	}
	if _, err := opts.Int("frac", 0); err == nil {
		t.Error("expected error for fractional integer")
	}
	if n, err := opts.Int("missing", 7); err != nil || n != 7 {
		t.Errorf("got %v, %v, want 7", n, err)
	}
	if f, err := opts.Float("n", 0); err != nil || f != 3 {
		t.Errorf("got %v, %v, want 3", f, err)
	}
	if _, err := opts.Float("name", 0); err == nil {
		t.Error("expected error for string float")
	}
	if s, err := opts.String("name", ""); err != nil || s != "x" {
		t.Errorf("got %v, %v, want x", s, err)
	}
	if b, err := opts.Bool("on", false); err != nil || !b {
		t.Errorf("got %v, %v, want true", b, err)
	}
	if _, err := opts.Bool("n", false); err == nil {
		t.Error("expected error for integer bool")
	}
	if d, err := opts.Duration("timeout", 0); err != nil || d != 1500*time.Millisecond {
		t.Errorf("got %v, %v, want 1.5s", d, err)
	}
	if _, err := opts.Duration("name", 0); err == nil {
		t.Error("expected error for malformed duration")
	}
}
