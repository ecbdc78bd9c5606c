// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command calcgraph runs a calculator graph described by a YAML
// configuration file.
//
// Usage:
//
//	calcgraph -config graph.yaml [-input stream=file]... [-print streams] [-side name=value]...
//
// Each input file feeds the named input stream: every line is a
// packet whose payload is the line's text. Lines of the form
// "@ts text" carry an explicit timestamp; other lines are stamped
// with their line number. Packets on the streams listed by -print are
// written to standard output as they are produced.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	golog "log"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/grailbio/base/status"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/calcgraph"
	_ "github.com/grailbio/calcgraph/calculators"
	"github.com/grailbio/calcgraph/config"
	_ "github.com/grailbio/calcgraph/config/all"
	"github.com/grailbio/calcgraph/graph"
	"github.com/grailbio/calcgraph/log"
	"github.com/grailbio/calcgraph/metrics/prometrics"
	"github.com/grailbio/calcgraph/trace/localtrace"
	"golang.org/x/sync/errgroup"
)

type pairs map[string]string

func (p pairs) String() string {
	var kvs []string
	for k, v := range p {
		kvs = append(kvs, k+"="+v)
	}
	return strings.Join(kvs, ",")
}

func (p pairs) Set(s string) error {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	p[parts[0]] = parts[1]
	return nil
}

func main() {
	var (
		configFile  = flag.String("config", "", "graph configuration file (YAML)")
		dotFlag     = flag.Bool("dot", false, "print the graph in Graphviz dot format and exit")
		listFlag    = flag.Bool("calculators", false, "list the registered calculator types and exit")
		helpConfig  = flag.Bool("helpconfig", false, "describe the configuration providers and exit")
		printFlag   = flag.String("print", "", "comma-separated list of streams whose packets are printed")
		metricsAddr = flag.String("metricsaddr", "", "serve prometheus metrics at this address")
		statusFlag  = flag.Bool("status", false, "display node status on standard error")
		inputs      = make(pairs)
		sides       = make(pairs)
		fl          config.Flag
	)
	flag.Var(inputs, "input", "stream=file: feed input stream from file (repeatable)")
	flag.Var(sides, "side", "name=value: supply an input side packet (repeatable)")
	fl.Init(flag.CommandLine)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: calcgraph -config file [flags]\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()
	golog.SetFlags(0)
	golog.SetPrefix("calcgraph: ")

	switch {
	case *listFlag:
		for _, name := range graph.Calculators() {
			fmt.Println(name)
		}
		return
	case *helpConfig:
		printConfigHelp()
		return
	case *configFile == "":
		flag.Usage()
	}

	b, err := ioutil.ReadFile(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	base := make(config.Base)
	if err := config.Unmarshal(b, config.Keys(base)); err != nil {
		log.Fatal(err)
	}
	fl.Config = base
	cfg, err := config.Make(&fl)
	if err != nil {
		log.Fatal(err)
	}
	cfg = config.Once(cfg)
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatal(err)
	}
	log.Std = logger
	log.Std.Debugf("calculators: %s", strings.Join(graph.Calculators(), ", "))

	gc, err := cfg.Graph()
	if err != nil {
		log.Fatal(err)
	}
	opts, err := config.GraphOptions(cfg)
	if err != nil {
		log.Fatal(err)
	}
	st := new(status.Status)
	if *statusFlag {
		reporter := make(status.Reporter)
		go reporter.Go(os.Stderr, st)
		defer reporter.Stop()
	}
	opts = append(opts, graph.WithStatus(st))
	g, err := graph.New(gc, opts...)
	if err != nil {
		log.Fatal(err)
	}
	if *dotFlag {
		if err := g.WriteDot(os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}
	if *printFlag != "" {
		if err := printStreams(g, strings.Split(*printFlag, ",")); err != nil {
			log.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	go func() {
		select {
		case <-sigc:
			logger.Print("interrupted; canceling run")
			g.Cancel()
		case <-ctx.Done():
		}
	}()

	eg, ectx := errgroup.WithContext(ctx)
	if *metricsAddr != "" {
		client, err := cfg.Metrics()
		if err != nil {
			log.Fatal(err)
		}
		pc, ok := client.(*prometrics.Client)
		if !ok {
			log.Fatalf("-metricsaddr requires the prometheus metrics provider")
		}
		eg.Go(func() error { return pc.Serve(ectx, *metricsAddr) })
	}
	eg.Go(func() error {
		defer cancel()
		return run(ectx, g, inputs, sides)
	})
	err = eg.Wait()
	if tracer, terr := cfg.Tracer(); terr == nil {
		if lt, ok := tracer.(*localtrace.LocalTracer); ok {
			if ferr := lt.Flush(); ferr != nil {
				logger.Error(ferr)
			}
		}
	}
	if err != nil {
		log.Fatal(err)
	}
	stats := g.Stats()
	counters := g.Counters().Snapshot()
	for _, name := range g.Counters().Names() {
		logger.Debugf("counter %s: %d", name, counters[name])
	}
	logger.Printf("run complete: %d nodes, %d streams", len(stats.Nodes), len(stats.Streams))
}

// run starts g, feeds its input streams from files, and waits for the
// run to finish.
func run(ctx context.Context, g *graph.Graph, inputs, sides pairs) error {
	sidePackets := make(map[string]interface{})
	for name, v := range sides {
		sidePackets[name] = v
	}
	if err := g.StartRun(ctx, sidePackets); err != nil {
		return err
	}
	var streams []string
	for name := range inputs {
		streams = append(streams, name)
	}
	err := traverse.Each(len(streams), func(i int) error {
		name := streams[i]
		if err := feed(g, name, inputs[name]); err != nil {
			return err
		}
		return g.CloseInputStream(name)
	})
	if err != nil {
		g.Cancel()
		if werr := g.Wait(ctx); werr != nil {
			return werr
		}
		return err
	}
	if err := g.CloseAllInputStreams(); err != nil {
		return err
	}
	return g.Wait(ctx)
}

func printStreams(g *graph.Graph, streams []string) error {
	var mu sync.Mutex
	for _, name := range streams {
		name := name
		err := g.Observe(name, func(p calcgraph.Packet) error {
			mu.Lock()
			defer mu.Unlock()
			_, err := fmt.Printf("%s\t%v\t%v\n", name, p.Timestamp(), p.Get())
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func printConfigHelp() {
	help := config.Help()
	for _, key := range config.AllKeys {
		fmt.Printf("%s:\n", key)
		for _, u := range help[key] {
			arg := u.Kind
			if u.Arg != "" {
				arg += "," + u.Arg
			}
			fmt.Printf("\t%-32s %s\n", arg, u.Usage)
		}
	}
}
