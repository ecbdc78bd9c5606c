// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package config defines how calculator graphs and the engine that
// runs them are configured. A configuration is a YAML document whose
// toplevel keys configure a run:
//
//	logger: stderr,debug
//	metrics: prometheus
//	tracer: local,/tmp/run.trace
//	workers: 8
//	maxinflight: 2
//	graph:
//	  input_streams: [in]
//	  nodes:
//	  - name: copy
//	    calculator: pass_through
//	    inputs: [{stream: in}]
//	    outputs: [{stream: out}]
//
// The keys in AllKeys are provisioned by globally registered
// providers. Their values are strings holding the (registered) name
// of the provider, followed by an optional comma and string argument.
// For example,
//
//	tracer: local,/tmp/run.trace
//
// configures the tracer key (corresponding to Config.Tracer) using
// the local provider, with argument "/tmp/run.trace". An unquoted
// "off", which YAML decodes as false, names the provider "off".
// Providers for
// the prometheus metrics client and the local tracer are registered
// by packages prometricsconfig and localtraceconfig; package all
// imports both.
package config

import (
	"fmt"
	"io/ioutil"
	golog "log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/graph"
	"github.com/grailbio/calcgraph/log"
	"github.com/grailbio/calcgraph/metrics"
	"github.com/grailbio/calcgraph/trace"
	yaml "gopkg.in/yaml.v2"
)

// The following are the keys of a configuration.
const (
	Logger      = "logger"
	Metrics     = "metrics"
	Tracer      = "tracer"
	Workers     = "workers"
	MaxInFlight = "maxinflight"
	Graph       = "graph"
)

// AllKeys defines the order in which configuration keys are
// provisioned by providers.
var AllKeys = []string{
	Logger,
	Metrics,
	Tracer,
}

// Keys is a map of string keys to configuration values.
type Keys map[string]interface{}

// A Config provides the objects used to run a calculator graph. It
// is safe to call each method multiple times, but they should not be
// called concurrently.
type Config interface {
	// Logger returns the configured logger.
	Logger() (*log.Logger, error)

	// Metrics returns the configured metrics client, or nil if
	// metrics are off.
	Metrics() (metrics.Client, error)

	// Tracer returns the configured tracer, or nil if tracing is off.
	Tracer() (trace.Tracer, error)

	// Workers returns the number of invocations that may execute
	// concurrently. Zero means the engine default.
	Workers() (int, error)

	// MaxInFlight returns the default per-node bound on in-flight
	// invocations. Zero means the engine default.
	MaxInFlight() (int, error)

	// Graph returns the configured graph topology.
	Graph() (graph.Config, error)

	// Value returns the value of the given key.
	Value(key string) interface{}

	// Marshal marshals the current configuration into keys.
	Marshal(keys Keys) error

	// Keys returns all the keys as defined by this config.
	Keys() Keys
}

// Base defines a base configuration with reasonable defaults
// where they apply.
type Base Keys

// Logger returns a logger that outputs to standard error at
// log.InfoLevel.
func (b Base) Logger() (*log.Logger, error) {
	return log.New(golog.New(os.Stderr, "", golog.LstdFlags), log.InfoLevel), nil
}

// Metrics returns a nil client: metrics are off.
func (b Base) Metrics() (metrics.Client, error) {
	return nil, nil
}

// Tracer returns a nil tracer: tracing is off.
func (b Base) Tracer() (trace.Tracer, error) {
	return nil, nil
}

// Workers returns the value of the key "workers", or zero.
func (b Base) Workers() (int, error) {
	return b.int(Workers)
}

// MaxInFlight returns the value of the key "maxinflight", or zero.
func (b Base) MaxInFlight() (int, error) {
	return b.int(MaxInFlight)
}

func (b Base) int(key string) (int, error) {
	v, ok := b[key]
	if !ok {
		return 0, nil
	}
	n, ok := v.(int)
	if !ok || n < 0 {
		return 0, errors.E("config", key, errors.Invalid, fmt.Errorf("expected non-negative integer, got %T %v", v, v))
	}
	return n, nil
}

// Graph decodes the graph topology in key "graph". Topologies are
// validated when a graph is instantiated.
func (b Base) Graph() (graph.Config, error) {
	var config graph.Config
	v, ok := b[Graph]
	if !ok {
		return config, errors.E("config", Graph, errors.NotExist)
	}
	p, err := yaml.Marshal(v)
	if err != nil {
		return config, errors.E("config", Graph, err)
	}
	if err := yaml.UnmarshalStrict(p, &config); err != nil {
		return config, errors.E("config", Graph, errors.Invalid, err)
	}
	return config, nil
}

// Keys returns the configured keys.
func (b Base) Keys() Keys {
	return Keys(b)
}

// Value returns the value for the provided key.
func (b Base) Value(key string) interface{} {
	return b[key]
}

// Marshal populates the provided key dictionary with the keys
// present in this configuration.
func (b Base) Marshal(keys Keys) error {
	for k, v := range b {
		keys[k] = v
	}
	return nil
}

// Unmarshal unmarshals the (YAML-configured) configuration in b into
// keys.
func Unmarshal(b []byte, keys Keys) error {
	return yaml.Unmarshal(b, keys)
}

// Marshal marshals the given configuration into YAML-formatted bytes.
func Marshal(cfg Config) ([]byte, error) {
	keys := make(Keys)
	if err := cfg.Marshal(keys); err != nil {
		return nil, err
	}
	return yaml.Marshal(keys)
}

// Make evaluates a config's keys: for each key in AllKeys (and in
// the order defined by AllKeys), Make parses its provider, and
// provisions the key accordingly. Make returns errors if a provider
// cannot be found or if the provider fails to configure the given
// key.
func Make(cfg Config) (Config, error) {
	for _, key := range AllKeys {
		v := cfg.Value(key)
		if v == nil {
			continue
		}
		var vstr string
		switch v := v.(type) {
		case string:
			vstr = v
		case bool:
			// YAML decodes a bare "off" as false.
			if v {
				return nil, errors.E("config", key, errors.Invalid, errors.New("expected string, got true"))
			}
			vstr = "off"
		default:
			return nil, errors.E("config", key, errors.Invalid, fmt.Errorf("expected string, got %T", v))
		}
		name, arg := peel(vstr, ",")
		provider, ok := Lookup(key, name)
		if !ok {
			return nil, errors.E("config", key, name, errors.NotExist, errors.New("provider not defined"))
		}
		var err error
		cfg, err = provider.Configure(cfg, arg)
		if err != nil {
			return nil, errors.E("config", key, name, err)
		}
	}
	return cfg, nil
}

// Parse parses and provisions a configuration from the
// YAML-formatted bytes b.
func Parse(b []byte) (Config, error) {
	base := make(Base)
	if err := Unmarshal(b, Keys(base)); err != nil {
		return nil, errors.E("config", errors.Invalid, err)
	}
	return Make(base)
}

// ParseFile reads and then parses the configuration from the
// provided filename.
func ParseFile(filename string) (Config, error) {
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.E("read", filename, err)
	}
	return Parse(b)
}

// GraphOptions returns the graph options that apply cfg's logger,
// metrics client, tracer and concurrency limits.
func GraphOptions(cfg Config) ([]graph.Option, error) {
	var opts []graph.Option
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	opts = append(opts, graph.WithLogger(logger))
	client, err := cfg.Metrics()
	if err != nil {
		return nil, err
	}
	if client != nil {
		opts = append(opts, graph.WithMetrics(client))
	}
	tracer, err := cfg.Tracer()
	if err != nil {
		return nil, err
	}
	if tracer != nil {
		opts = append(opts, graph.WithTracer(tracer))
	}
	workers, err := cfg.Workers()
	if err != nil {
		return nil, err
	}
	if workers > 0 {
		opts = append(opts, graph.WithWorkers(workers))
	}
	maxInFlight, err := cfg.MaxInFlight()
	if err != nil {
		return nil, err
	}
	if maxInFlight > 0 {
		opts = append(opts, graph.WithMaxInFlight(maxInFlight))
	}
	return opts, nil
}

// A Provider provisions a single key in a configuration. Providers
// must be registered via the package's Register function.
type Provider struct {
	Configure        func(cfg Config, arg string) (Config, error)
	Kind, Arg, Usage string
}

var (
	providers = make(map[string]map[string]Provider)
	mu        sync.Mutex
)

// Register the configuration provider kind for the given key. The
// arg and usage string should describe the provider's argument.
// Register panics if key is not provisioned by providers, or if kind
// is already registered for key.
func Register(key, kind, arg, usage string, configure func(Config, string) (Config, error)) {
	var known bool
	for _, k := range AllKeys {
		known = known || k == key
	}
	if !known {
		panic(fmt.Sprintf("key %s is not provisioned by providers", key))
	}
	mu.Lock()
	defer mu.Unlock()
	kindmap := providers[key]
	if kindmap == nil {
		kindmap = make(map[string]Provider)
		providers[key] = kindmap
	}
	if _, ok := kindmap[kind]; ok {
		panic(fmt.Sprintf("provider %s already registered for key %s", kind, key))
	}
	kindmap[kind] = Provider{
		Configure: configure,
		Kind:      kind,
		Arg:       arg,
		Usage:     usage,
	}
}

// Lookup returns the Provider of kind for key.
func Lookup(key, kind string) (Provider, bool) {
	mu.Lock()
	defer mu.Unlock()
	p, ok := providers[key][kind]
	return p, ok
}

// Usage contains usage information for a provider.
type Usage struct {
	Kind, Arg, Usage string
}

// Help returns Usages, organized by key and sorted by kind.
func Help() map[string][]Usage {
	mu.Lock()
	defer mu.Unlock()
	help := make(map[string][]Usage)
	for key, keyProviders := range providers {
		var usages []Usage
		for name, provider := range keyProviders {
			usages = append(usages, Usage{
				Kind:  name,
				Arg:   provider.Arg,
				Usage: provider.Usage,
			})
		}
		sort.Slice(usages, func(i, j int) bool { return usages[i].Kind < usages[j].Kind })
		help[key] = usages
	}
	return help
}

func peel(s, sep string) (head, tail string) {
	switch parts := strings.SplitN(s, sep, 2); len(parts) {
	case 1:
		return parts[0], ""
	case 2:
		return parts[0], parts[1]
	default:
		panic("bug")
	}
}
