// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/calcgraph"
	"github.com/grailbio/calcgraph/errors"
	"github.com/grailbio/calcgraph/graph"
)

// feed adds the packets read from the file at path to input stream
// name of g.
func feed(g *graph.Graph, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.E("feed", name, err)
	}
	defer f.Close()
	return readPackets(f, func(p calcgraph.Packet) error {
		return g.AddPacket(name, p)
	})
}

// readPackets calls add with a packet for each line of r. A line
// "@ts text" is stamped ts; other lines are stamped with their
// (zero-based) line number.
func readPackets(r io.Reader, add func(calcgraph.Packet) error) error {
	scan := bufio.NewScanner(r)
	for lineno := 0; scan.Scan(); lineno++ {
		line := scan.Text()
		ts := calcgraph.Timestamp(lineno)
		if strings.HasPrefix(line, "@") {
			parts := strings.SplitN(line[1:], " ", 2)
			n, err := strconv.ParseInt(parts[0], 10, 64)
			if err != nil {
				return errors.E("parse", strconv.Itoa(lineno+1), errors.Invalid, err)
			}
			ts, line = calcgraph.Timestamp(n), ""
			if len(parts) == 2 {
				line = parts[1]
			}
		}
		if err := add(calcgraph.MakePacket(line).At(ts)); err != nil {
			return err
		}
	}
	return scan.Err()
}
