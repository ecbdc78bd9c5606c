// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package graph implements the calculator graph engine: a directed
// graph of calculator nodes connected by timestamped packet streams.
// A Graph is built from a Config, started with StartRun, fed through
// its input streams, and finished with Wait.
//
// All scheduling decisions are made by a single goroutine. A node is
// invoked at timestamp T once each of its inputs either holds a
// packet at T or has advanced its bound past T. Invocations execute
// on a bounded pool of goroutines; their outputs are committed to
// the node's output streams in timestamp order.
package graph

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/status"
	"github.com/grailbio/base/sync/ctxsync"
	"github.com/grailbio/base/sync/once"
	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/log"
	"github.com/grailbio/calcgraph/metrics"
	"github.com/grailbio/calcgraph/stream"
	"github.com/grailbio/calcgraph/trace"
	"github.com/grailbio/calcgraph/wg"
)

// An Option configures a Graph.
type Option func(*options)

type options struct {
	workers     int
	maxInFlight int
	log         *log.Logger
	metrics     metrics.Client
	tracer      trace.Tracer
	status      *status.Group
	services    map[string]interface{}
	counters    *metrics.Counters
}

// WithLogger sets the graph's logger. Each node logs through a child
// logger prefixed by the node's name.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithWorkers bounds the number of invocations executing at once.
// The default is the number of CPUs.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithMaxInFlight sets the default bound on a node's concurrent
// invocations, for nodes that do not configure their own.
func WithMaxInFlight(n int) Option {
	return func(o *options) { o.maxInFlight = n }
}

// WithMetrics sets the metrics client to which the graph reports.
func WithMetrics(c metrics.Client) Option {
	return func(o *options) { o.metrics = c }
}

// WithTracer sets the tracer to which the graph emits spans for the
// run, its nodes, and their invocations.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithStatus reports the progress of each node to a group of s.
func WithStatus(s *status.Status) Option {
	return func(o *options) { o.status = s.Group("calcgraph") }
}

// WithService registers a service that calculators may look up by
// name through CalculatorContext.Service.
func WithService(name string, v interface{}) Option {
	return func(o *options) { o.services[name] = v }
}

// WithCounters sets the counter set that holds the nodes' counters.
func WithCounters(c *metrics.Counters) Option {
	return func(o *options) { o.counters = c }
}

// Graph is a validated, instantiated calculator graph. A Graph
// supports a single run.
type Graph struct {
	config  Config
	opts    options
	nodes   []*node
	streams map[string]*stream.Stream
	// inputs are the streams fed by the host.
	inputs map[string]*stream.Stream
	// consumers maps a stream to the nodes that read it.
	consumers map[string][]*node
	// sideConsumers maps a side packet to the nodes that read it.
	sideConsumers map[string][]*node

	limiter    *limiter.Limiter
	wakeupc    chan struct{}
	returnc    chan *CalculatorContext
	publish    once.Task
	exportName string

	ctx    context.Context
	cancel context.CancelFunc

	// The following are owned by the scheduler goroutine.
	sides   map[string]calcgraph.Packet
	pending *workingset
	// running counts the invocation goroutines that have not yet
	// exited.
	running wg.WaitGroup
	status  runStatus
	nopen   int
	begin   time.Time
	runctx  context.Context
	endRun  func()

	mu      sync.Mutex
	cond    *ctxsync.Cond
	dirty   map[*node]bool
	// closed holds the graph input streams whose closure has been
	// delivered to streamChanged.
	closed  map[string]bool
	started bool
	idle    bool
	done    bool
	err     error
}

// New instantiates the graph described by config. Calculators are
// created for each node, either from the node's Calculator field or
// from the registered factory of its type.
func New(config Config, opts ...Option) (*Graph, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	g := &Graph{
		config: config,
		opts: options{
			workers:     runtime.NumCPU(),
			maxInFlight: 1,
			log:         log.Std,
			services:    make(map[string]interface{}),
		},
		streams:       make(map[string]*stream.Stream),
		inputs:        make(map[string]*stream.Stream),
		consumers:     make(map[string][]*node),
		sideConsumers: make(map[string][]*node),
		wakeupc:       make(chan struct{}, 1),
		returnc:       make(chan *CalculatorContext),
		sides:         make(map[string]calcgraph.Packet),
		pending:       newWorkingset(),
		dirty:         make(map[*node]bool),
		closed:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(&g.opts)
	}
	if g.opts.workers < 1 {
		g.opts.workers = 1
	}
	if g.opts.counters == nil {
		g.opts.counters = metrics.NewCounters()
	}
	g.cond = ctxsync.NewCond(&g.mu)
	g.limiter = limiter.New()
	g.limiter.Release(g.opts.workers)

	streamOf := func(name string) *stream.Stream {
		s, ok := g.streams[name]
		if !ok {
			s = stream.New(name)
			s.Notify(g.streamChanged)
			g.streams[name] = s
		}
		return s
	}
	for _, name := range config.InputStreams {
		g.inputs[name] = streamOf(name)
	}
	for i := range config.Nodes {
		if _, err := g.addNode(i, streamOf); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) addNode(i int, streamOf func(string) *stream.Stream) (*node, error) {
	nc := g.config.Nodes[i]
	name := g.config.nodeName(i)
	calc := nc.Calculator
	if calc == nil {
		var err error
		if calc, err = newCalculator(nc.Type); err != nil {
			return nil, errors.E("new", name, err)
		}
	}
	typ := nc.Type
	if typ == "" {
		typ = fmtType(calc)
	}
	n := &node{
		id:             i,
		name:           name,
		typ:            typ,
		calc:           calc,
		config:         nc,
		inputTags:      make(map[string]int),
		outputTags:     make(map[string]int),
		outputSideTags: make(map[string]bool),
	}
	for _, in := range nc.Inputs {
		s := streamOf(in.Stream)
		n.inputTags[in.tag()] = len(n.inputs)
		n.inputs = append(n.inputs, &inputSlot{
			tag:      in.tag(),
			reader:   s.NewReader(name),
			optional: in.Optional,
			backEdge: in.BackEdge,
		})
		g.consumers[in.Stream] = append(g.consumers[in.Stream], n)
	}
	for _, out := range nc.Outputs {
		slot := &outputSlot{tag: out.tag(), stream: streamOf(out.Stream)}
		if out.Offset != nil {
			slot.offset, slot.hasOffset = *out.Offset, true
		}
		n.outputTags[out.tag()] = len(n.outputs)
		n.outputs = append(n.outputs, slot)
	}
	for _, side := range nc.InputSidePackets {
		g.sideConsumers[side.Name] = append(g.sideConsumers[side.Name], n)
	}
	for _, side := range nc.OutputSidePackets {
		n.outputSideTags[side.tag()] = true
	}
	maxInFlight := nc.MaxInFlight
	if maxInFlight == 0 {
		maxInFlight = g.opts.maxInFlight
	}
	n.cm = newContextManager(n, maxInFlight, nc.ThreadSafe)
	n.state = &NodeState{
		name:              name,
		typ:               typ,
		id:                i,
		options:           nc.Options,
		counters:          metrics.Prefix(g.opts.counters, name+"."),
		services:          g.opts.services,
		log:               g.opts.log.Tee(nil, name+": "),
		sidePackets:       make(map[string]calcgraph.Packet),
		outputSidePackets: make(map[string]calcgraph.Packet),
	}
	n.stats.State = nodeNew.String()
	n.stats.Last = calcgraph.Unset
	g.nodes = append(g.nodes, n)
	return n, nil
}

// Observe attaches a sink to stream name: fn is called, from the
// scheduler's worker pool, with each packet of the stream in
// timestamp order. Observe must be called before StartRun.
func (g *Graph) Observe(name string, fn func(calcgraph.Packet) error) error {
	g.mu.Lock()
	started := g.started
	g.mu.Unlock()
	if started {
		return errors.E("observe", name, errors.Invalid, errors.New("graph already started"))
	}
	s, ok := g.streams[name]
	if !ok {
		return errors.E("observe", name, errors.NotExist)
	}
	nc := NodeConfig{
		Name: "observe_" + name,
		Type: "observe",
		Calculator: ProcessFunc(func(cc *CalculatorContext) error {
			return fn(cc.InputAt(0))
		}),
		Inputs: []InputSlot{{Tag: "in", Stream: name}},
	}
	for _, n := range g.nodes {
		if n.name == nc.Name {
			return errors.E("observe", name, errors.Invalid, errors.New("stream already observed"))
		}
	}
	g.config.Nodes = append(g.config.Nodes, nc)
	_, err := g.addNode(len(g.config.Nodes)-1, func(string) *stream.Stream { return s })
	return err
}

// StartRun starts a run of the graph with the provided input side
// packets, which must include every side packet declared by the
// configuration. The run is canceled when ctx is.
func (g *Graph) StartRun(ctx context.Context, sidePackets map[string]interface{}) error {
	for _, name := range g.config.InputSidePackets {
		if _, ok := sidePackets[name]; !ok {
			return errors.E("start", "side packet", name, errors.NotExist)
		}
	}
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return errors.E("start", errors.Invalid, errors.New("graph already started"))
	}
	g.started = true
	g.mu.Unlock()
	for _, name := range g.config.InputSidePackets {
		g.sides[name] = calcgraph.MakePacket(sidePackets[name])
	}
	if g.opts.metrics != nil {
		ctx = metrics.WithClient(ctx, g.opts.metrics)
	}
	if g.opts.tracer != nil {
		ctx = trace.WithTracer(ctx, g.opts.tracer)
	}
	ctx = log.WithLogger(ctx, g.opts.log)
	g.ctx, g.cancel = context.WithCancel(ctx)
	go g.loop()
	return nil
}

// AddPacket appends p to the graph input stream name.
func (g *Graph) AddPacket(name string, p calcgraph.Packet) error {
	s, err := g.input("add packet", name)
	if err != nil {
		return err
	}
	return s.Append(p)
}

// SetInputStreamBound advances the bound of graph input stream name,
// declaring that no packet below ts will be added.
func (g *Graph) SetInputStreamBound(name string, ts calcgraph.Timestamp) error {
	s, err := g.input("set bound", name)
	if err != nil {
		return err
	}
	return s.AdvanceBound(ts)
}

// CloseInputStream closes graph input stream name.
func (g *Graph) CloseInputStream(name string) error {
	s, err := g.input("close", name)
	if err != nil {
		return err
	}
	if s.IsClosed() {
		return nil
	}
	return s.Close()
}

// CloseAllInputStreams closes every graph input stream.
func (g *Graph) CloseAllInputStreams() error {
	names := make([]string, 0, len(g.inputs))
	for name := range g.inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := g.CloseInputStream(name); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) input(op, name string) (*stream.Stream, error) {
	g.mu.Lock()
	started, done := g.started, g.done
	g.mu.Unlock()
	switch {
	case !started:
		return nil, errors.E(op, name, errors.Invalid, errors.New("graph not started"))
	case done:
		return nil, errors.E(op, name, errors.Invalid, errors.New("run is finished"))
	}
	s, ok := g.inputs[name]
	if !ok {
		return nil, errors.E(op, name, errors.NotExist, errors.New("no such graph input stream"))
	}
	return s, nil
}

// Cancel aborts the run. In-flight invocations complete, and every
// opened node is closed with a canceled status.
func (g *Graph) Cancel() {
	if g.cancel != nil {
		g.cancel()
	}
}

// WaitUntilIdle blocks until no invocation is in flight and none can
// be scheduled, or until the run finishes. It returns the run's error
// if the run has finished.
func (g *Graph) WaitUntilIdle(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return errors.E("wait idle", errors.Invalid, errors.New("graph not started"))
	}
	for !g.idle && !g.done {
		if err := g.cond.Wait(ctx); err != nil {
			return err
		}
	}
	if g.done {
		return g.err
	}
	return nil
}

// Wait blocks until the run finishes and returns its status: nil if
// every node closed normally, or the first error the run
// encountered.
func (g *Graph) Wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return errors.E("wait", errors.Invalid, errors.New("graph not started"))
	}
	for !g.done {
		if err := g.cond.Wait(ctx); err != nil {
			return err
		}
	}
	return g.err
}

// Run starts the graph, closes its input streams, and waits for the
// run to finish. It is a convenience for graphs whose inputs are
// produced by source nodes.
func (g *Graph) Run(ctx context.Context, sidePackets map[string]interface{}) error {
	if err := g.StartRun(ctx, sidePackets); err != nil {
		return err
	}
	if err := g.CloseAllInputStreams(); err != nil {
		g.Cancel()
		return err
	}
	return g.Wait(context.Background())
}

// Counters returns the counter set holding the nodes' counters.
func (g *Graph) Counters() *metrics.Counters {
	return g.opts.counters
}

// Config returns the graph's configuration, including nodes added by
// Observe.
func (g *Graph) Config() Config {
	return g.config
}

// streamChanged is the listener of every stream in the graph. It
// marks the stream's consumers for evaluation and wakes the
// scheduler.
func (g *Graph) streamChanged(s *stream.Stream) {
	g.mu.Lock()
	for _, n := range g.consumers[s.Name()] {
		g.dirty[n] = true
	}
	if g.inputs[s.Name()] == s && s.IsClosed() {
		g.closed[s.Name()] = true
	}
	g.idle = false
	g.mu.Unlock()
	g.wakeup()
}

// wakeup wakes the scheduler, if it is not already due to wake.
func (g *Graph) wakeup() {
	select {
	case g.wakeupc <- struct{}{}:
	default:
	}
}

func fmtType(calc Calculator) string {
	if _, ok := calc.(ProcessFunc); ok {
		return "func"
	}
	return fmt.Sprintf("%T", calc)
}
