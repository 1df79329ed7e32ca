// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Stats are the monitoring counters of a run.
type Stats struct {
	Run uuid.UUID // run identifier

	Slices     uint64 // processed time-slices
	Digis      uint64 // core digis read
	Seeds      uint64 // seeds evaluated
	Events     uint64 // accepted seeds
	EventDigis uint64 // digis referenced by events

	Rejected    uint64                // rejected seeds
	RejectedMin [NumDetectors]uint64 // rejected seeds, by detector below its minimum
	RejectedMax [NumDetectors]uint64 // rejected seeds, by detector above its maximum
	Empty       uint64                // rejected seeds without enabled digi

	Carried uint64 // seeds carried over a slice boundary
	Split   uint64 // seeds closed at a slice boundary in IgnoreOverlap mode
}

func (st *Stats) record(s *Seed, v Verdict) {
	st.Seeds++
	switch v.Reason {
	case Accepted:
		st.Events++
		st.EventDigis += uint64(s.Size())
		return
	case BelowMin:
		st.RejectedMin[v.Det]++
	case AboveMax:
		st.RejectedMax[v.Det]++
	case NoEnabledDigi:
		st.Empty++
	}
	st.Rejected++
}

func (st Stats) String() string {
	o := new(strings.Builder)
	fmt.Fprintf(o, "run=%v slices=%d digis=%d seeds=%d events=%d rejected=%d",
		st.Run, st.Slices, st.Digis, st.Seeds, st.Events, st.Rejected,
	)
	for i := range st.RejectedMin {
		if n := st.RejectedMin[i]; n > 0 {
			fmt.Fprintf(o, " min[%v]=%d", Detector(i), n)
		}
		if n := st.RejectedMax[i]; n > 0 {
			fmt.Fprintf(o, " max[%v]=%d", Detector(i), n)
		}
	}
	if st.Carried > 0 {
		fmt.Fprintf(o, " carried=%d", st.Carried)
	}
	if st.Split > 0 {
		fmt.Fprintf(o, " split=%d", st.Split)
	}
	return o.String()
}

// Sink receives the output of an event builder.
//
// OnTruncated is called instead of OnEndOfStream when a run is cancelled
// before the end of its stream.
type Sink interface {
	OnEvent(evt Event) error
	OnTruncated(slice uint64) error
	OnEndOfStream() error
}

// StatsSink is implemented by sinks monitoring the run counters.
// OnStats is called after every processed time-slice.
type StatsSink interface {
	OnStats(st Stats)
}
