// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package trace records the timeline of a graph run. Events are
// grouped into spans: a run span, a span per node, and a span per
// calculator invocation nested beneath its node. Spans are carried
// by contexts: Start returns a context for the new span, and Note
// annotates the span of the context it is given.
//
// Tracing is off unless a Tracer is installed with WithTracer; until
// then all functions in this package are no-ops.
package trace

import (
	"context"
	"time"

	"github.com/grailbio/base/digest"
)

// Kind is the kind of a span.
type Kind int

const (
	// Run is the span of a graph run.
	Run Kind = iota
	// Node is the span of a node, from Open through Close.
	Node
	// Invocation is the span of a single calculator invocation.
	Invocation
)

// String returns the name of the span kind.
func (k Kind) String() string {
	switch k {
	case Run:
		return "run"
	case Node:
		return "node"
	case Invocation:
		return "invocation"
	}
	return "unknown"
}

// EventKind is the type of a trace event.
type EventKind int

const (
	// StartEvent begins a span.
	StartEvent EventKind = iota
	// EndEvent ends a span.
	EndEvent
	// NoteEvent annotates a span.
	NoteEvent
)

// Event is a single trace event.
type Event struct {
	// Time is the time of the event.
	Time time.Time
	// Kind is the type of event.
	Kind EventKind
	// Id identifies the span. It is set for StartEvents.
	Id digest.Digest
	// Name is the span's display name. It is set for StartEvents.
	Name string
	// SpanKind is the kind of span started. It is set for StartEvents.
	SpanKind Kind
	// Key and Value hold a NoteEvent's annotation.
	Key   string
	Value interface{}
}

// A Tracer is a sink for trace events. Emit is called synchronously
// and must not block. For StartEvent and NoteEvent, Emit returns the
// context to be used for the span's subsequent events.
type Tracer interface {
	Emit(ctx context.Context, event Event) (context.Context, error)
}

type tracerKey struct{}

// WithTracer returns a context that emits trace events to tracer.
func WithTracer(ctx context.Context, tracer Tracer) context.Context {
	if tracer == nil {
		return ctx
	}
	return context.WithValue(ctx, tracerKey{}, tracer)
}

// On tells whether ctx carries a tracer.
func On(ctx context.Context) bool {
	_, ok := ctx.Value(tracerKey{}).(Tracer)
	return ok
}

func tracer(ctx context.Context) Tracer {
	return ctx.Value(tracerKey{}).(Tracer)
}

var nop = func() {}

// Start begins a span of the given kind, identified by id and
// displayed as name. It returns the span's context and a function
// that ends the span.
func Start(ctx context.Context, kind Kind, id digest.Digest, name string) (context.Context, func()) {
	if !On(ctx) {
		return ctx, nop
	}
	t := tracer(ctx)
	spanctx, err := t.Emit(ctx, Event{
		Time:     time.Now(),
		Kind:     StartEvent,
		Id:       id,
		Name:     name,
		SpanKind: kind,
	})
	if err != nil || spanctx == nil {
		return ctx, nop
	}
	return spanctx, func() {
		_, _ = t.Emit(spanctx, Event{Time: time.Now(), Kind: EndEvent})
	}
}

// Note annotates the span of ctx with key and value.
func Note(ctx context.Context, key string, value interface{}) {
	if !On(ctx) {
		return
	}
	_, _ = tracer(ctx).Emit(ctx, Event{
		Time:  time.Now(),
		Kind:  NoteEvent,
		Key:   key,
		Value: value,
	})
}
