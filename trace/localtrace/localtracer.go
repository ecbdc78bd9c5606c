// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package localtrace implements a trace.Tracer that writes a run's
// spans to a local file in the Chrome tracing format, viewable with
// chrome://tracing.
package localtrace

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/trace"
)

// LocalTracer accumulates completed spans in memory and writes them
// to a file on Flush.
type LocalTracer struct {
	path string

	mu     sync.Mutex
	trace  T
	nextID int32
	tids   sync.Map
}

type key int

const (
	eventKey key = iota
	pidKey
)

type span struct {
	mu    sync.Mutex
	event Event
}

// New returns a tracer that writes to the file at path. The file is
// created (or truncated) immediately to validate the path.
func New(path string) (*LocalTracer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.E("localtrace", path, err)
	}
	f.Close()
	return &LocalTracer{path: path}, nil
}

// Path returns the location of the trace file.
func (lt *LocalTracer) Path() string {
	return lt.path
}

// pid assigns the Chrome "process" row of a span. Run spans are
// placed in row 0; each node span gets a fresh row, which its
// invocation spans inherit through the context.
func (lt *LocalTracer) pid(ctx context.Context, e trace.Event) (context.Context, int) {
	switch {
	case e.SpanKind == trace.Run:
		return ctx, 0
	case e.SpanKind == trace.Invocation && ctx.Value(pidKey) != nil:
		return ctx, ctx.Value(pidKey).(int)
	default:
		pid := int(atomic.AddInt32(&lt.nextID, 1))
		return context.WithValue(ctx, pidKey, pid), pid
	}
}

// tid groups spans with the same id into one row.
func (lt *LocalTracer) tid(id string) int {
	tid, _ := lt.tids.LoadOrStore(id, int(atomic.AddInt32(&lt.nextID, 1)))
	return tid.(int)
}

// Emit implements trace.Tracer.
func (lt *LocalTracer) Emit(ctx context.Context, e trace.Event) (context.Context, error) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	switch e.Kind {
	case trace.StartEvent:
		ctx, pid := lt.pid(ctx, e)
		s := &span{event: Event{
			Pid:  pid,
			Tid:  lt.tid(e.Id.Short()),
			Ts:   e.Time.UnixNano() / 1000,
			Ph:   "X",
			Name: e.Name,
			Cat:  e.SpanKind.String(),
			Args: map[string]interface{}{},
		}}
		return context.WithValue(ctx, eventKey, s), nil
	case trace.EndEvent:
		s, ok := ctx.Value(eventKey).(*span)
		if !ok {
			return nil, errors.E("emit", errors.Invalid, errors.New("end of unknown span"))
		}
		s.mu.Lock()
		event := s.event
		s.mu.Unlock()
		event.Dur = e.Time.UnixNano()/1000 - event.Ts
		lt.mu.Lock()
		lt.trace.Events = append(lt.trace.Events, event)
		lt.mu.Unlock()
		return nil, nil
	case trace.NoteEvent:
		if s, ok := ctx.Value(eventKey).(*span); ok {
			s.mu.Lock()
			s.event.Args[e.Key] = e.Value
			s.mu.Unlock()
		}
		return ctx, nil
	}
	return ctx, errors.E("emit", errors.Invalid, errors.Errorf("unknown event kind %d", e.Kind))
}

// Events returns the completed spans recorded so far.
func (lt *LocalTracer) Events() []Event {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	events := make([]Event, len(lt.trace.Events))
	copy(events, lt.trace.Events)
	return events
}

// Flush writes every completed span to the trace file, replacing its
// contents.
func (lt *LocalTracer) Flush() error {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	f, err := os.Create(lt.path)
	if err != nil {
		return errors.E("flush", lt.path, err)
	}
	if err := lt.trace.Encode(f); err != nil {
		f.Close()
		return errors.E("flush", lt.path, err)
	}
	return f.Close()
}

// Event is an event in the Chrome tracing format.
type Event struct {
	Pid  int                    `json:"pid"`
	Tid  int                    `json:"tid"`
	Ts   int64                  `json:"ts"`
	Ph   string                 `json:"ph"`
	Dur  int64                  `json:"dur,omitempty"`
	Name string                 `json:"name"`
	Cat  string                 `json:"cat,omitempty"`
	Args map[string]interface{} `json:"args"`
}

// T is the top-level object of the Chrome tracing JSON format.
type T struct {
	Events []Event `json:"traceEvents"`
}

// Encode writes t as JSON to w.
func (t *T) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(t)
}

// Decode reads t as JSON from r.
func (t *T) Decode(r io.Reader) error {
	return json.NewDecoder(r).Decode(t)
}
