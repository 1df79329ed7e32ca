// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fsm describes the run states of an event-builder process.
package fsm // import "github.com/go-daq/evb/fsm"

import (
	"fmt"
)

// Status describes the current status of an event-builder run.
type Status uint8

const (
	UnConf    Status = iota // no configuration applied yet
	Conf                    // configured, waiting for Run
	Running                 // pulling and processing time-slices
	Stopped                 // stop requested, draining the current slice
	Truncated               // run cancelled, output reported truncated
	Done                    // end-of-stream reached and flushed
	Error                   // run aborted on a stream or sink error
)

func (st Status) String() string {
	switch st {
	case UnConf:
		return "unconfigured"
	case Conf:
		return "configured"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Truncated:
		return "truncated"
	case Done:
		return "done"
	case Error:
		return "error"
	default:
		panic(fmt.Errorf("invalid status value %d", uint8(st)))
	}
}

// Final reports whether no further transition can leave st.
func (st Status) Final() bool {
	switch st {
	case Truncated, Done, Error:
		return true
	}
	return false
}
