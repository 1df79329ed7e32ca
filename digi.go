// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"fmt"
)

// Digi is a single digitized detector readout.
// The payload is opaque to the event builder.
type Digi struct {
	Det     Detector
	Time    int64 // timestamp in ns
	Payload []byte
}

// DigiRef locates a digi inside the arena of a time-slice.
type DigiRef struct {
	Slice  uint64 // index of the time-slice holding the digi
	Offset uint32 // position in the detector sequence of that slice
}

func (ref DigiRef) String() string {
	return fmt.Sprintf("(%d,%d)", ref.Slice, ref.Offset)
}

// DetSlice holds the digis of one detector for one time-slice.
// Digis[:NCore] is the core region, Digis[NCore:] the overlap region
// repeated at the head of the next slice.
type DetSlice struct {
	Index uint64
	Det   Detector
	Digis []Digi
	NCore int

	Start      int64 // start time of the core region, in ns
	Length     int64 // length of the core region, in ns (0: unknown)
	OverlapLen int64 // length of the overlap region, in ns
}

// Core returns the core region.
func (ds *DetSlice) Core() []Digi { return ds.Digis[:ds.NCore] }

// Overlap returns the overlap region.
func (ds *DetSlice) Overlap() []Digi { return ds.Digis[ds.NCore:] }

// Hit is an entry of the merged view of a time-slice.
type Hit struct {
	Det     Detector
	Offset  uint32
	Time    int64
	Overlap bool // digi lies in the overlap region
}

// TimeSlice is the unit of processing.
type TimeSlice struct {
	Index   uint64
	Start   int64 // start time of the core region, in ns (0: unknown)
	Length  int64 // length of the core region, in ns (0: unknown)
	Overlap int64 // length of the overlap region, in ns (0: unknown)

	Dets [NumDetectors]*DetSlice // nil for detectors without a source

	// Hits is the time-ordered view across detectors, filled by the Reader.
	Hits []Hit
}

// Digi resolves a digi of this slice.
func (ts *TimeSlice) Digi(det Detector, off uint32) Digi {
	return ts.Dets[det].Digis[off]
}

// NumDigis returns the number of digis of the slice, overlap included.
func (ts *TimeSlice) NumDigis() int {
	n := 0
	for _, ds := range ts.Dets {
		if ds != nil {
			n += len(ds.Digis)
		}
	}
	return n
}
