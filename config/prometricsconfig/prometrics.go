// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package prometricsconfig registers the prometheus metrics
// provider.
package prometricsconfig

import (
	"github.com/grailbio/calcgraph/config"
	"github.com/grailbio/calcgraph/metrics"
	"github.com/grailbio/calcgraph/metrics/prometrics"
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	config.Register(config.Metrics, "prometheus", "namespace",
		"export metrics to a new prometheus registry, prefixed by namespace (default calcgraph)",
		func(cfg config.Config, arg string) (config.Config, error) {
			return &Metrics{Config: cfg, Namespace: arg}, nil
		},
	)
}

// Metrics is the prometheus metrics configuration provider.
type Metrics struct {
	config.Config
	Namespace string
}

// Metrics returns a prometheus client backed by a new registry.
func (m *Metrics) Metrics() (metrics.Client, error) {
	client, err := prometrics.NewClient(prometheus.NewRegistry(), m.Namespace)
	if err != nil {
		return nil, err
	}
	return client, nil
}
