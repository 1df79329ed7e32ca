// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/go-daq/evb/log"
	"golang.org/x/xerrors"
)

// DigiSource provides the digis of one detector, one time-slice at a time.
// PullSlice returns io.EOF once the stream is exhausted.
type DigiSource interface {
	PullSlice(ctx context.Context, index uint64) (*DetSlice, error)
}

// Reader pulls time-slices from a set of per-detector sources and checks
// their ordering and overlap continuity.
type Reader struct {
	msg  log.MsgStream
	srcs [NumDetectors]DigiSource
	n    int

	next uint64
	eos  bool
	prev [NumDetectors][]Digi // overlap region of the previous slice

	width  int64 // window width checked against the overlap length
	warned bool
	lazy   bool // leave merging to the consumer of the slices
}

// NewReader creates a reader pulling slices from srcs, starting at slice first.
func NewReader(msg log.MsgStream, first uint64, srcs map[Detector]DigiSource) (*Reader, error) {
	if msg == nil {
		msg = log.Discard
	}
	r := &Reader{msg: msg, next: first}
	for det, src := range srcs {
		if !det.Valid() {
			return nil, xerrors.Errorf("evb: invalid detector %d", uint8(det))
		}
		if src == nil {
			continue
		}
		r.srcs[det] = src
		r.n++
	}
	if r.n == 0 {
		return nil, xerrors.Errorf("evb: reader needs at least one digi source")
	}
	return r, nil
}

// CheckOverlap makes the reader warn when the overlap of a slice is shorter
// than width, as events cut by the boundary may then not fit in the overlap.
func (r *Reader) CheckOverlap(width int64) { r.width = width }

// Next returns the next time-slice, or io.EOF at the end of the stream.
func (r *Reader) Next(ctx context.Context) (*TimeSlice, error) {
	if r.eos {
		return nil, io.EOF
	}

	ts := &TimeSlice{Index: r.next}
	neos := 0
	for i, src := range r.srcs {
		if src == nil {
			continue
		}
		det := Detector(i)
		ds, err := src.PullSlice(ctx, r.next)
		switch {
		case err == io.EOF:
			neos++
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &StreamError{Slice: r.next, Det: det, Msg: "could not pull slice", Err: err}
		}

		err = r.check(det, ds)
		if err != nil {
			return nil, err
		}
		ts.Dets[det] = ds
	}

	switch {
	case neos == r.n:
		r.eos = true
		return nil, io.EOF
	case neos > 0:
		return nil, &StreamError{Slice: r.next, Msg: fmt.Sprintf("%d sources out of %d reached end-of-stream", neos, r.n)}
	}

	for _, ds := range ts.Dets {
		if ds != nil {
			r.prev[ds.Det] = ds.Overlap()
		}
	}
	err := ts.checkRegions()
	if err != nil {
		return nil, err
	}

	r.meta(ts)
	if !r.lazy {
		ts.Merge()
	}
	r.next++
	return ts, nil
}

// checkRegions checks that no core digi comes after an overlap digi, across
// detectors.
func (ts *TimeSlice) checkRegions() error {
	var (
		maxCore = int64(-1 << 63)
		minOver = int64(1<<63 - 1)
	)
	for _, ds := range ts.Dets {
		if ds == nil {
			continue
		}
		if ds.NCore < 0 || ds.NCore > len(ds.Digis) {
			return &StreamError{
				Slice: ts.Index, Det: ds.Det,
				Msg: fmt.Sprintf("core size %d out of range [0, %d]", ds.NCore, len(ds.Digis)),
			}
		}
		if ds.NCore > 0 && ds.Digis[ds.NCore-1].Time > maxCore {
			maxCore = ds.Digis[ds.NCore-1].Time
		}
		if ds.NCore < len(ds.Digis) && ds.Digis[ds.NCore].Time < minOver {
			minOver = ds.Digis[ds.NCore].Time
		}
	}
	if maxCore > minOver {
		return &StreamError{
			Slice: ts.Index,
			Msg:   fmt.Sprintf("core region (last digi at %d) overlaps overlap region (first digi at %d)", maxCore, minOver),
		}
	}
	return nil
}

func (r *Reader) check(det Detector, ds *DetSlice) error {
	switch {
	case ds == nil:
		return &StreamError{Slice: r.next, Det: det, Msg: "nil slice"}
	case ds.Index != r.next:
		return &StreamError{Slice: ds.Index, Det: det, Msg: fmt.Sprintf("non-contiguous slice index (want %d)", r.next)}
	case ds.Det != det:
		return &StreamError{Slice: r.next, Det: det, Msg: fmt.Sprintf("source delivered digis of %v", ds.Det)}
	case ds.NCore < 0 || ds.NCore > len(ds.Digis):
		return &StreamError{Slice: r.next, Det: det, Msg: fmt.Sprintf("invalid core size %d (n=%d)", ds.NCore, len(ds.Digis))}
	}

	for i := 1; i < len(ds.Digis); i++ {
		if ds.Digis[i].Time < ds.Digis[i-1].Time {
			return &StreamError{
				Slice: r.next, Det: det,
				Msg: fmt.Sprintf("unsorted digis at offset %d (%d < %d)", i, ds.Digis[i].Time, ds.Digis[i-1].Time),
			}
		}
	}

	prev := r.prev[det]
	if len(prev) > len(ds.Digis) {
		return &StreamError{
			Slice: r.next, Det: det,
			Msg: fmt.Sprintf("previous overlap (%d digis) longer than slice (%d digis)", len(prev), len(ds.Digis)),
		}
	}
	for i, d := range prev {
		cur := ds.Digis[i]
		if d.Time != cur.Time || !bytes.Equal(d.Payload, cur.Payload) {
			return &StreamError{
				Slice: r.next, Det: det,
				Msg: fmt.Sprintf("overlap continuity broken at offset %d", i),
			}
		}
	}
	return nil
}

func (r *Reader) meta(ts *TimeSlice) {
	for _, ds := range ts.Dets {
		if ds == nil || ds.Length == 0 {
			continue
		}
		ts.Start, ts.Length, ts.Overlap = ds.Start, ds.Length, ds.OverlapLen
		break
	}
	if r.warned || r.width <= 0 || ts.Length == 0 || ts.Overlap >= r.width {
		return
	}
	r.warned = true
	r.msg.Warnf(
		"slice %d: overlap length (%d ns) shorter than event window (%d ns): events cut by the slice boundary may be incomplete",
		ts.Index, ts.Overlap, r.width,
	)
}

// Merge builds the time-ordered view of the slice across detectors.
// Core digis come before overlap digis at equal timestamps, then detectors
// are ordered by identifier.
func (ts *TimeSlice) Merge() {
	n := 0
	var pos [NumDetectors]int
	for _, ds := range ts.Dets {
		if ds != nil {
			n += len(ds.Digis)
		}
	}
	ts.Hits = make([]Hit, 0, n)

	for len(ts.Hits) < n {
		best := -1
		var bh Hit
		for i, ds := range ts.Dets {
			if ds == nil || pos[i] == len(ds.Digis) {
				continue
			}
			j := pos[i]
			h := Hit{Det: Detector(i), Offset: uint32(j), Time: ds.Digis[j].Time, Overlap: j >= ds.NCore}
			if best < 0 || before(h, bh) {
				best, bh = i, h
			}
		}
		ts.Hits = append(ts.Hits, bh)
		pos[best]++
	}
}

func before(a, b Hit) bool {
	switch {
	case a.Time != b.Time:
		return a.Time < b.Time
	case a.Overlap != b.Overlap:
		return !a.Overlap
	default:
		return a.Det < b.Det
	}
}
