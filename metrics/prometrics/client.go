// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package prometrics implements a metrics.Client backed by a
// Prometheus registry.
package prometrics

import (
	"context"
	"net"
	"net/http"

	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/log"
	"github.com/grailbio/calcgraph/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes metric names when no namespace is given.
const DefaultNamespace = "calcgraph"

// Client is a metrics.Client that registers every declared metric
// with a Prometheus registry.
type Client struct {
	reg        *prometheus.Registry
	gauges     map[string]*prometheus.GaugeVec
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewClient returns a client that registers the declared metrics,
// prefixed by namespace, with reg.
func NewClient(reg *prometheus.Registry, namespace string) (*Client, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	c := &Client{
		reg:        reg,
		gauges:     make(map[string]*prometheus.GaugeVec),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	for name, opts := range metrics.Gauges {
		gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      opts.Help,
		}, opts.Labels)
		if err := reg.Register(gv); err != nil {
			return nil, errors.E("register", name, err)
		}
		c.gauges[name] = gv
	}
	for name, opts := range metrics.CounterDecls {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      opts.Help,
		}, opts.Labels)
		if err := reg.Register(cv); err != nil {
			return nil, errors.E("register", name, err)
		}
		c.counters[name] = cv
	}
	for name, opts := range metrics.Histograms {
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      opts.Help,
			Buckets:   opts.Buckets,
		}, opts.Labels)
		if err := reg.Register(hv); err != nil {
			return nil, errors.E("register", name, err)
		}
		c.histograms[name] = hv
	}
	return c, nil
}

// GetGauge implements metrics.Client.
func (c *Client) GetGauge(name string, labels map[string]string) metrics.Gauge {
	g, err := c.gauges[name].GetMetricWith(labels)
	if err != nil {
		log.Fatalf("gauge %s: %v", name, err)
	}
	return g
}

// GetCounter implements metrics.Client.
func (c *Client) GetCounter(name string, labels map[string]string) metrics.Counter {
	counter, err := c.counters[name].GetMetricWith(labels)
	if err != nil {
		log.Fatalf("counter %s: %v", name, err)
	}
	return counter
}

// GetHistogram implements metrics.Client.
func (c *Client) GetHistogram(name string, labels map[string]string) metrics.Histogram {
	h, err := c.histograms[name].GetMetricWith(labels)
	if err != nil {
		log.Fatalf("histogram %s: %v", name, err)
	}
	return h
}

// Serve exposes the client's registry over HTTP at addr until ctx is
// done.
func (c *Client) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.E("listen", addr, err)
	}
	srv := &http.Server{Handler: promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	log.Printf("serving prometheus metrics at %s", lis.Addr())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return errors.E("serve", addr, err)
	}
	return nil
}
