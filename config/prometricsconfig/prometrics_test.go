// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package prometricsconfig_test

import (
	"testing"

	"github.com/grailbio/calcgraph/config"
	_ "github.com/grailbio/calcgraph/config/prometricsconfig"
	"github.com/grailbio/calcgraph/metrics/prometrics"
)

func TestMetrics(t *testing.T) {
	cfg, err := config.Parse([]byte("metrics: prometheus,test"))
	if err != nil {
		t.Fatal(err)
	}
	cfg = config.Once(cfg)
	client, err := cfg.Metrics()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := client.(*prometrics.Client); !ok {
		t.Fatalf("unexpected client %T", client)
	}
	again, err := cfg.Metrics()
	if err != nil {
		t.Fatal(err)
	}
	if again != client {
		t.Error("expected memoized client")
	}
}
