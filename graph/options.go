// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"fmt"
	"time"
)

// Options holds a node's calculator options, as decoded from a
// configuration file or set programmatically.
type Options map[string]interface{}

// Int returns the integer option key, or def if it is not set.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	switch v := v.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return def, fmt.Errorf("option %s: expected integer, got %T %v", key, v, v)
}

// Float returns the floating point option key, or def if it is not set.
func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	switch v := v.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return def, fmt.Errorf("option %s: expected number, got %T %v", key, v, v)
}

// String returns the string option key, or def if it is not set.
func (o Options) String(key, def string) (string, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, fmt.Errorf("option %s: expected string, got %T %v", key, v, v)
	}
	return s, nil
}

// Bool returns the boolean option key, or def if it is not set.
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return def, fmt.Errorf("option %s: expected boolean, got %T %v", key, v, v)
	}
	return b, nil
}

// Duration returns the duration option key, or def if it is not set.
// Durations are written as strings parsed by time.ParseDuration.
func (o Options) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	switch v := v.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return def, fmt.Errorf("option %s: %v", key, err)
		}
		return d, nil
	}
	return def, fmt.Errorf("option %s: expected duration, got %T %v", key, v, v)
}
