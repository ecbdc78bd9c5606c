// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package trace

import (
	"context"
	"sync"
	"testing"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/calcgraph"
)

type spanKey struct{}

type testTracer struct {
	mu     sync.Mutex
	events []Event
	spans  []string
}

func (t *testTracer) Emit(ctx context.Context, e Event) (context.Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	if e.Kind == StartEvent {
		return context.WithValue(ctx, spanKey{}, e.Name), nil
	}
	if name, ok := ctx.Value(spanKey{}).(string); ok {
		t.spans = append(t.spans, name)
	}
	return ctx, nil
}

func TestOff(t *testing.T) {
	ctx := context.Background()
	if On(ctx) {
		t.Fatal("tracing on")
	}
	spanctx, done := Start(ctx, Run, digest.Digest{}, "run")
	if spanctx != ctx {
		t.Error("new context without tracer")
	}
	done()
	Note(ctx, "k", "v")
}

func TestStartNote(t *testing.T) {
	tracer := new(testTracer)
	ctx := WithTracer(context.Background(), tracer)
	id := calcgraph.Digester.FromString("detector")
	nodectx, done := Start(ctx, Node, id, "detector")
	Note(nodectx, "timestamp", 10)
	done()

	if got, want := len(tracer.events), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	start := tracer.events[0]
	if start.Kind != StartEvent || start.SpanKind != Node || start.Id != id || start.Name != "detector" {
		t.Errorf("bad start event %+v", start)
	}
	if note := tracer.events[1]; note.Kind != NoteEvent || note.Key != "timestamp" || note.Value != 10 {
		t.Errorf("bad note event %+v", note)
	}
	if got, want := tracer.events[2].Kind, EndEvent; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tracer.spans, []string{"detector", "detector"}; len(got) != len(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
