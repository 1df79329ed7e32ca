// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"fmt"
)

// Seed is a candidate event window.
type Seed struct {
	Slice  uint64 // index of the slice the seed started in
	TStart int64
	TEnd   int64
	Counts [NumDetectors]uint32 // number of member digis per detector

	members [NumDetectors][]DigiRef
	arenas  []*TimeSlice
}

func (s *Seed) String() string {
	return fmt.Sprintf("Seed{slice=%d, [%d, %d], n=%d}", s.Slice, s.TStart, s.TEnd, s.Size())
}

// Size returns the number of member digis.
func (s *Seed) Size() int {
	n := 0
	for _, c := range s.Counts {
		n += int(c)
	}
	return n
}

// Members returns the references of the member digis of det, in time order.
func (s *Seed) Members(det Detector) []DigiRef {
	return s.members[det]
}

func (s *Seed) add(ts *TimeSlice, det Detector, off uint32) {
	if n := len(s.arenas); n == 0 || s.arenas[n-1] != ts {
		s.arenas = append(s.arenas, ts)
	}
	s.members[det] = append(s.members[det], DigiRef{Slice: ts.Index, Offset: off})
	s.Counts[det]++
}

// Algorithm is a seed-finding strategy.
type Algorithm interface {
	Name() string

	// Open returns the window of a seed opened by a digi at t.
	Open(t int64) (tStart, tEnd int64)

	// Accepts reports whether a digi at t extends the open seed s.
	Accepts(s *Seed, t int64) bool

	// Extend updates the window of s after it accepted a digi at t.
	Extend(s *Seed, t int64)

	// Contains reports whether t lies inside the window of s.
	Contains(s *Seed, t int64) bool
}

// FixedTimeWindow partitions time into consecutive windows of Width ns,
// starting at Origin.
// Windows are half-open: a digi exactly at the end of a window belongs to
// the next one.
type FixedTimeWindow struct {
	Width  int64
	Origin int64
}

func (FixedTimeWindow) Name() string { return "FixedTimeWindow" }

func (algo FixedTimeWindow) Open(t int64) (int64, int64) {
	k := (t - algo.Origin) / algo.Width
	if t < algo.Origin && (t-algo.Origin)%algo.Width != 0 {
		k--
	}
	beg := algo.Origin + k*algo.Width
	return beg, beg + algo.Width
}

func (algo FixedTimeWindow) Accepts(s *Seed, t int64) bool { return t < s.TEnd }
func (algo FixedTimeWindow) Extend(s *Seed, t int64)       {}

func (algo FixedTimeWindow) Contains(s *Seed, t int64) bool {
	return s.TStart <= t && t < s.TEnd
}

// MaximumTimeGap clusters digis separated by at most Gap ns.
// The window of a cluster spans from its first to its last digi, inclusive.
type MaximumTimeGap struct {
	Gap int64
}

func (MaximumTimeGap) Name() string { return "MaximumTimeGap" }

func (algo MaximumTimeGap) Open(t int64) (int64, int64) { return t, t }

func (algo MaximumTimeGap) Accepts(s *Seed, t int64) bool { return t-s.TEnd <= algo.Gap }

func (algo MaximumTimeGap) Extend(s *Seed, t int64) {
	if t > s.TEnd {
		s.TEnd = t
	}
}

func (algo MaximumTimeGap) Contains(s *Seed, t int64) bool {
	return s.TStart <= t && t <= s.TEnd
}

type asideHit struct {
	ts   *TimeSlice
	det  Detector
	off  uint32
	time int64
}

// SeedFinder scans a time-ordered stream of digis and proposes seeds.
//
// Digis of enabled detectors open and extend seeds.
// Digis of disabled detectors are set aside and attached to the seed whose
// window contains them, if any.
type SeedFinder struct {
	algo    Algorithm
	enabled [NumDetectors]bool

	cur   *Seed
	aside []asideHit
}

// NewSeedFinder creates a seed finder using the provided algorithm.
func NewSeedFinder(algo Algorithm, enabled [NumDetectors]bool) *SeedFinder {
	return &SeedFinder{algo: algo, enabled: enabled}
}

// Algorithm returns the seed-finding strategy.
func (sf *SeedFinder) Algorithm() Algorithm { return sf.algo }

// Open reports whether a seed is currently open.
func (sf *SeedFinder) Open() bool { return sf.cur != nil }

// Fits reports whether the digi of hit h can be consumed without closing the
// open seed.
func (sf *SeedFinder) Fits(h Hit) bool {
	if !sf.enabled[h.Det] {
		return true
	}
	return sf.cur != nil && sf.algo.Accepts(sf.cur, h.Time)
}

// Push feeds the digi of hit h from slice ts.
// Hits must be pushed in non-decreasing time order.
// Push returns the seed closed by h, if any.
func (sf *SeedFinder) Push(ts *TimeSlice, h Hit) *Seed {
	if !sf.enabled[h.Det] {
		sf.aside = append(sf.aside, asideHit{ts: ts, det: h.Det, off: h.Offset, time: h.Time})
		return nil
	}

	if sf.cur != nil && sf.algo.Accepts(sf.cur, h.Time) {
		sf.algo.Extend(sf.cur, h.Time)
		sf.cur.add(ts, h.Det, h.Offset)
		return nil
	}

	closed := sf.Close()

	beg, end := sf.algo.Open(h.Time)
	sf.prune(beg)
	sf.cur = &Seed{Slice: ts.Index, TStart: beg, TEnd: end}
	sf.cur.add(ts, h.Det, h.Offset)

	return closed
}

// Close closes the open seed and returns it, or nil when no seed is open.
func (sf *SeedFinder) Close() *Seed {
	s := sf.cur
	if s == nil {
		return nil
	}
	sf.cur = nil

	i := 0
	for _, a := range sf.aside {
		switch {
		case a.time < s.TStart:
			// in no seed.
		case sf.algo.Contains(s, a.time):
			s.add(a.ts, a.det, a.off)
		default:
			sf.aside[i] = a
			i++
		}
	}
	sf.aside = sf.aside[:i]

	return s
}

// Drop discards the set-aside digis that can no longer join a seed opened at
// or after t.
func (sf *SeedFinder) Drop(t int64) {
	if sf.cur != nil {
		return
	}
	beg, _ := sf.algo.Open(t)
	sf.prune(beg)
}

// Reset discards the open seed and every set-aside digi.
func (sf *SeedFinder) Reset() {
	sf.cur = nil
	sf.aside = sf.aside[:0]
}

func (sf *SeedFinder) prune(beg int64) {
	i := 0
	for _, a := range sf.aside {
		if a.time < beg {
			continue
		}
		sf.aside[i] = a
		i++
	}
	sf.aside = sf.aside[:i]
}
