// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"fmt"
)

// StreamError reports a time-slice stream that violates the ordering or
// continuity guarantees of its sources.
// It is fatal for the run.
type StreamError struct {
	Slice uint64   // index of the offending slice
	Det   Detector // offending detector, if any
	Msg   string
	Err   error // underlying source error, if any
}

func (err *StreamError) Error() string {
	switch {
	case err.Err != nil:
		return fmt.Sprintf("evb: stream error in slice %d (%v): %s: %v", err.Slice, err.Det, err.Msg, err.Err)
	default:
		return fmt.Sprintf("evb: stream error in slice %d (%v): %s", err.Slice, err.Det, err.Msg)
	}
}

func (err *StreamError) Unwrap() error { return err.Err }

// ConfigError reports an invalid event-builder configuration.
type ConfigError struct {
	Field string
	Msg   string
}

func (err *ConfigError) Error() string {
	return fmt.Sprintf("evb: invalid configuration %s: %s", err.Field, err.Msg)
}
