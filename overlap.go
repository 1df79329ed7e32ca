// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"fmt"
)

// ResolverState is the state of an OverlapResolver between two slices.
type ResolverState uint8

const (
	Idle    ResolverState = iota // no seed crosses the slice boundary
	Pending                      // a seed is still open at the slice boundary
)

func (st ResolverState) String() string {
	switch st {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	default:
		panic(fmt.Errorf("evb: invalid resolver state %d", uint8(st)))
	}
}

// OverlapResolver drives a SeedFinder over consecutive time-slices so that
// seeds crossing a slice boundary are closed exactly once.
//
// At the end of the core region of a slice, an open seed is fed the overlap
// digis while they extend it. The overlap digis consumed that way are the
// leading digis of the next slice: they are skipped there.
// A seed still open once the overlap is exhausted stays Pending and is
// continued by the next slice.
type OverlapResolver struct {
	state   ResolverState
	skip    [NumDetectors]uint32 // leading digis of the next slice already consumed
	next    uint64               // index of the next expected slice
	started bool
	ignore  bool
}

// State returns the current resolver state.
func (ovl *OverlapResolver) State() ResolverState { return ovl.state }

// Next returns the index of the next expected slice and whether a slice was
// processed already.
func (ovl *OverlapResolver) Next() (uint64, bool) { return ovl.next, ovl.started }

// process feeds the hits of ts to sf, calling emit for every closed seed.
func (ovl *OverlapResolver) process(ts *TimeSlice, sf *SeedFinder, st *Stats, emit func(*Seed)) error {
	if ovl.started && ts.Index != ovl.next {
		return &StreamError{
			Slice: ts.Index,
			Msg:   fmt.Sprintf("non-contiguous slice index (want %d)", ovl.next),
		}
	}
	skip := ovl.skip
	for i, n := range skip {
		if n == 0 {
			continue
		}
		ds := ts.Dets[i]
		if ds == nil || int(n) > len(ds.Digis) {
			return &StreamError{
				Slice: ts.Index,
				Det:   Detector(i),
				Msg:   fmt.Sprintf("previous overlap (%d digis) not repeated in slice", n),
			}
		}
	}
	ovl.started = true
	ovl.next = ts.Index + 1
	ovl.skip = [NumDetectors]uint32{}
	for i, n := range skip {
		// the previous overlap may extend past this core region.
		if ds := ts.Dets[i]; ds != nil && n > uint32(ds.NCore) {
			ovl.skip[i] = n - uint32(ds.NCore)
		}
	}

	var (
		i    int
		last int64
		seen bool
	)
	for ; i < len(ts.Hits); i++ {
		h := ts.Hits[i]
		if h.Offset < skip[h.Det] {
			continue
		}
		if h.Overlap {
			break
		}
		st.Digis++
		last, seen = h.Time, true
		if s := sf.Push(ts, h); s != nil {
			emit(s)
		}
	}

	switch {
	case ovl.ignore:
		if s := sf.Close(); s != nil {
			st.Split++
			emit(s)
		}
		sf.Reset()
		ovl.state = Idle
		return nil

	case !sf.Open():
		if seen {
			sf.Drop(last)
		}
		ovl.state = Idle
		return nil
	}

	ncore := func(det Detector) uint32 { return uint32(ts.Dets[det].NCore) }
	for ; i < len(ts.Hits); i++ {
		h := ts.Hits[i]
		if h.Offset < skip[h.Det] {
			continue
		}
		if !sf.Fits(h) {
			emit(sf.Close())
			ovl.state = Idle
			return nil
		}
		st.Digis++
		sf.Push(ts, h)
		ovl.skip[h.Det] = h.Offset - ncore(h.Det) + 1
	}

	st.Carried++
	ovl.state = Pending
	return nil
}

// flush closes a pending seed at the end of the stream.
func (ovl *OverlapResolver) flush(sf *SeedFinder, emit func(*Seed)) {
	if s := sf.Close(); s != nil {
		emit(s)
	}
	sf.Reset()
	ovl.state = Idle
	ovl.skip = [NumDetectors]uint32{}
}
