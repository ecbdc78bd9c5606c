// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config_test

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/calcgraph/config"
	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/log"
	"github.com/grailbio/testutil"
)

func TestFileLogger(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "config")
	defer cleanup()
	path := filepath.Join(dir, "run.log")
	cfg, err := config.Parse([]byte("logger: file," + path + ",debug"))
	if err != nil {
		t.Fatal(err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		t.Fatal(err)
	}
	if !logger.At(log.DebugLevel) {
		t.Error("expected debug logger")
	}
	logger.Debugf("node %s opened", "copy")
	logger.Print("run complete")
	b, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"node copy opened", "run complete"} {
		if !strings.Contains(string(b), want) {
			t.Errorf("log file %q does not contain %q", b, want)
		}
	}
}

func TestFileLoggerErrors(t *testing.T) {
	if _, err := config.Parse([]byte("logger: file")); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if _, err := config.Parse([]byte("logger: file,/nonexistent/dir/run.log")); err == nil {
		t.Error("expected error opening log file")
	}
}
