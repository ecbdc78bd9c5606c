// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calcgraph

import "testing"

func TestTimestampOrder(t *testing.T) {
	order := []Timestamp{Unset, Unstarted, PreStream, Min, -1, 0, 1, Max, PostStream, OneOverPostStream, Done}
	for i := 1; i < len(order); i++ {
		if !(order[i-1] < order[i]) {
			t.Errorf("expected %v < %v", order[i-1], order[i])
		}
	}
}

func TestTimestampClasses(t *testing.T) {
	for _, c := range []struct {
		ts                  Timestamp
		rangeValue, allowed bool
	}{
		{Unset, false, false},
		{Unstarted, false, false},
		{PreStream, false, true},
		{Min, true, true},
		{0, true, true},
		{Max, true, true},
		{PostStream, false, true},
		{OneOverPostStream, false, false},
		{Done, false, false},
	} {
		if got, want := c.ts.IsRangeValue(), c.rangeValue; got != want {
			t.Errorf("%v.IsRangeValue: got %v, want %v", c.ts, got, want)
		}
		if got, want := c.ts.IsSpecial(), !c.rangeValue; got != want {
			t.Errorf("%v.IsSpecial: got %v, want %v", c.ts, got, want)
		}
		if got, want := c.ts.IsAllowedInStream(), c.allowed; got != want {
			t.Errorf("%v.IsAllowedInStream: got %v, want %v", c.ts, got, want)
		}
	}
	if Unset.IsSet() || !Timestamp(0).IsSet() {
		t.Error("bad IsSet")
	}
}

func TestTimestampAdd(t *testing.T) {
	for _, c := range []struct {
		ts   Timestamp
		d    TimestampDiff
		want Timestamp
	}{
		{10, 5, 15},
		{10, -15, -5},
		{Max, 1, PostStream},
		{Max - 1, 1, Max},
		{Min, -1, PreStream},
		{Min + 1, -1, Min},
		{0, TimestampDiff(Max), Max},
		{1, TimestampDiff(Max), PostStream},
		{Unstarted, 3, Unstarted},
		{PreStream, 3, PreStream},
		{PostStream, -3, PostStream},
		{Done, -1, Done},
		{Unset, 1, Unset},
	} {
		if got, want := c.ts.Add(c.d), c.want; got != want {
			t.Errorf("%v.Add(%d): got %v, want %v", c.ts, c.d, got, want)
		}
	}
	if got, want := Timestamp(7).Sub(3), TimestampDiff(4); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextAllowedInStream(t *testing.T) {
	for _, c := range []struct {
		ts, want Timestamp
	}{
		{Unstarted, Min},
		{PreStream, OneOverPostStream},
		{Min, Min + 1},
		{41, 42},
		{Max, OneOverPostStream},
		{PostStream, OneOverPostStream},
	} {
		if got, want := c.ts.NextAllowedInStream(), c.want; got != want {
			t.Errorf("%v.NextAllowedInStream: got %v, want %v", c.ts, got, want)
		}
	}
}

func TestTimestampString(t *testing.T) {
	for _, c := range []struct {
		ts   Timestamp
		want string
	}{
		{Unset, "Unset"},
		{PreStream, "PreStream"},
		{Done, "Done"},
		{12, "12"},
		{-3, "-3"},
	} {
		if got, want := c.ts.String(), c.want; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}
