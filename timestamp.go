// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calcgraph

import (
	"fmt"
	"math"
	"strconv"
)

// Timestamp is a logical clock value. Timestamps are totally ordered
// over an int64 domain. A set of sentinel values bracket the ordinary
// range:
//
//	Unset < Unstarted < PreStream < [Min, Max] < PostStream < OneOverPostStream < Done
//
// Unset is a distinguished "no timestamp" value. It is never a valid
// packet timestamp or stream bound, and callers must test for it with
// IsSet instead of relying on its position in the order.
type Timestamp int64

const (
	// Unset denotes the absence of a timestamp.
	Unset Timestamp = math.MinInt64
	// Unstarted is the input timestamp of a node that has not
	// processed anything yet; it is also the input timestamp seen by
	// Open.
	Unstarted Timestamp = math.MinInt64 + 1
	// PreStream may be used by a packet that precedes every other
	// packet of its stream. Such a packet must be the stream's only
	// packet.
	PreStream Timestamp = math.MinInt64 + 2
	// Min is the smallest ordinary timestamp.
	Min Timestamp = math.MinInt64 + 3
	// Max is the largest ordinary timestamp.
	Max Timestamp = math.MaxInt64 - 3
	// PostStream may be used by a packet that follows every other
	// packet of its stream. Such a packet must be the stream's only
	// packet.
	PostStream Timestamp = math.MaxInt64 - 2
	// OneOverPostStream is the bound of a stream that may receive no
	// more packets, but has not been closed.
	OneOverPostStream Timestamp = math.MaxInt64 - 1
	// Done is the bound of a closed stream, and the input timestamp
	// seen by Close.
	Done Timestamp = math.MaxInt64
)

// TimestampDiff is a signed offset between two timestamps.
type TimestampDiff int64

// IsSet tells whether t carries a value, i.e., is not Unset.
func (t Timestamp) IsSet() bool {
	return t != Unset
}

// IsRangeValue tells whether t lies in the ordinary range [Min, Max].
func (t Timestamp) IsRangeValue() bool {
	return Min <= t && t <= Max
}

// IsSpecial tells whether t is one of the sentinel values.
func (t Timestamp) IsSpecial() bool {
	return !t.IsRangeValue()
}

// IsAllowedInStream tells whether a packet may carry timestamp t.
func (t Timestamp) IsAllowedInStream() bool {
	return t.IsRangeValue() || t == PreStream || t == PostStream
}

// Add returns t offset by d. Sentinel values are returned unchanged;
// ordinary values saturate to PreStream below Min and to PostStream
// above Max.
func (t Timestamp) Add(d TimestampDiff) Timestamp {
	if !t.IsRangeValue() {
		return t
	}
	switch {
	case d > 0 && int64(t) > int64(Max)-int64(d):
		return PostStream
	case d < 0 && int64(t) < int64(Min)-int64(d):
		return PreStream
	}
	return t + Timestamp(d)
}

// Sub returns the offset from u to t. Both must be range values.
func (t Timestamp) Sub(u Timestamp) TimestampDiff {
	if !t.IsRangeValue() || !u.IsRangeValue() {
		panic(fmt.Sprintf("calcgraph: difference of special timestamps %v and %v", t, u))
	}
	return TimestampDiff(t - u)
}

// NextAllowedInStream returns the bound of a stream after a packet
// with timestamp t has been appended to it.
func (t Timestamp) NextAllowedInStream() Timestamp {
	switch {
	case t >= Max || t == PreStream:
		return OneOverPostStream
	case t < Min:
		return Min
	}
	return t + 1
}

// String renders t, naming sentinels.
func (t Timestamp) String() string {
	switch t {
	case Unset:
		return "Unset"
	case Unstarted:
		return "Unstarted"
	case PreStream:
		return "PreStream"
	case Min:
		return "Min"
	case Max:
		return "Max"
	case PostStream:
		return "PostStream"
	case OneOverPostStream:
		return "OneOverPostStream"
	case Done:
		return "Done"
	}
	return strconv.FormatInt(int64(t), 10)
}

// MinTimestamp returns the smaller of t and u.
func MinTimestamp(t, u Timestamp) Timestamp {
	if t < u {
		return t
	}
	return u
}

// MaxTimestamp returns the larger of t and u.
func MaxTimestamp(t, u Timestamp) Timestamp {
	if t > u {
		return t
	}
	return u
}
