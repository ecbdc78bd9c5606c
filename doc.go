// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package calcgraph implements the core data types of a timestamp
// synchronized dataflow engine.
//
// Programs are described as graphs of calculators (nodes) connected
// by streams. Each stream carries immutable Packets in timestamp
// order, together with a timestamp bound: the smallest timestamp that
// a future packet on the stream may carry. Bounds let downstream nodes
// prove that no packet will arrive at a given timestamp, and thus make
// progress without waiting for data that will never come.
//
// Timestamps are purely logical. No wall-clock time is involved in
// synchronization.
//
// The engine itself (scheduling, per-invocation contexts, and graph
// lifecycle) lives in package graph; streams live in package stream.
package calcgraph
