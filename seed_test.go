// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb

import (
	"reflect"
	"testing"

	"golang.org/x/exp/rand"
)

func newSlice(index uint64, dets map[Detector][]int64) *TimeSlice {
	ts := &TimeSlice{Index: index}
	for det, times := range dets {
		ds := &DetSlice{Index: index, Det: det, NCore: len(times)}
		for _, t := range times {
			ds.Digis = append(ds.Digis, Digi{Det: det, Time: t})
		}
		ts.Dets[det] = ds
	}
	ts.Merge()
	return ts
}

func allEnabled() [NumDetectors]bool {
	var mask [NumDetectors]bool
	for i := range mask {
		mask[i] = true
	}
	return mask
}

func findSeeds(sf *SeedFinder, ts *TimeSlice) []*Seed {
	var seeds []*Seed
	for _, h := range ts.Hits {
		if s := sf.Push(ts, h); s != nil {
			seeds = append(seeds, s)
		}
	}
	if s := sf.Close(); s != nil {
		seeds = append(seeds, s)
	}
	return seeds
}

func seedTimes(ts *TimeSlice, s *Seed) map[Detector][]int64 {
	out := make(map[Detector][]int64)
	for i := range s.members {
		for _, ref := range s.members[i] {
			out[Detector(i)] = append(out[Detector(i)], ts.Digi(Detector(i), ref.Offset).Time)
		}
	}
	return out
}

func TestFixedTimeWindowOpen(t *testing.T) {
	for _, tt := range []struct {
		algo     FixedTimeWindow
		t        int64
		beg, end int64
	}{
		{FixedTimeWindow{Width: 100}, 0, 0, 100},
		{FixedTimeWindow{Width: 100}, 10, 0, 100},
		{FixedTimeWindow{Width: 100}, 99, 0, 100},
		{FixedTimeWindow{Width: 100}, 100, 100, 200},
		{FixedTimeWindow{Width: 100}, -1, -100, 0},
		{FixedTimeWindow{Width: 100}, -100, -100, 0},
		{FixedTimeWindow{Width: 100, Origin: 5}, 4, -95, 5},
		{FixedTimeWindow{Width: 100, Origin: 5}, 105, 105, 205},
	} {
		t.Run("", func(t *testing.T) {
			beg, end := tt.algo.Open(tt.t)
			if beg != tt.beg || end != tt.end {
				t.Fatalf("invalid window for t=%d.\ngot = [%d, %d)\nwant= [%d, %d)\n", tt.t, beg, end, tt.beg, tt.end)
			}
		})
	}
}

func TestSeedFinderFixedTimeWindow(t *testing.T) {
	ts := newSlice(0, map[Detector][]int64{
		Sts: {10, 50, 150},
		Tof: {60, 100, 300},
	})
	sf := NewSeedFinder(FixedTimeWindow{Width: 100}, allEnabled())
	seeds := findSeeds(sf, ts)

	want := []struct {
		beg, end int64
		members  map[Detector][]int64
	}{
		{0, 100, map[Detector][]int64{Sts: {10, 50}, Tof: {60}}},
		{100, 200, map[Detector][]int64{Sts: {150}, Tof: {100}}},
		{300, 400, map[Detector][]int64{Tof: {300}}},
	}
	if got, want := len(seeds), len(want); got != want {
		t.Fatalf("invalid number of seeds.\ngot = %d\nwant= %d\n", got, want)
	}
	for i, s := range seeds {
		if s.TStart != want[i].beg || s.TEnd != want[i].end {
			t.Fatalf("seed %d: invalid window.\ngot = [%d, %d)\nwant= [%d, %d)\n", i, s.TStart, s.TEnd, want[i].beg, want[i].end)
		}
		if got := seedTimes(ts, s); !reflect.DeepEqual(got, want[i].members) {
			t.Fatalf("seed %d: invalid members.\ngot = %v\nwant= %v\n", i, got, want[i].members)
		}
	}
}

func TestSeedFinderMaximumTimeGap(t *testing.T) {
	ts := newSlice(0, map[Detector][]int64{
		Sts: {0, 5, 15, 50, 55},
	})
	sf := NewSeedFinder(MaximumTimeGap{Gap: 20}, allEnabled())
	seeds := findSeeds(sf, ts)

	want := []struct {
		beg, end int64
		times    []int64
	}{
		{0, 15, []int64{0, 5, 15}},
		{50, 55, []int64{50, 55}},
	}
	if got, want := len(seeds), len(want); got != want {
		t.Fatalf("invalid number of seeds.\ngot = %d\nwant= %d\n", got, want)
	}
	for i, s := range seeds {
		if s.TStart != want[i].beg || s.TEnd != want[i].end {
			t.Fatalf("seed %d: invalid window.\ngot = [%d, %d]\nwant= [%d, %d]\n", i, s.TStart, s.TEnd, want[i].beg, want[i].end)
		}
		if got := seedTimes(ts, s)[Sts]; !reflect.DeepEqual(got, want[i].times) {
			t.Fatalf("seed %d: invalid members.\ngot = %v\nwant= %v\n", i, got, want[i].times)
		}
	}
}

func TestSeedFinderGapBoundary(t *testing.T) {
	ts := newSlice(0, map[Detector][]int64{
		Sts: {0, 20, 41},
	})
	sf := NewSeedFinder(MaximumTimeGap{Gap: 20}, allEnabled())
	seeds := findSeeds(sf, ts)
	if got, want := len(seeds), 2; got != want {
		t.Fatalf("invalid number of seeds.\ngot = %d\nwant= %d\n", got, want)
	}
	if got, want := seedTimes(ts, seeds[0])[Sts], []int64{0, 20}; !reflect.DeepEqual(got, want) {
		t.Fatalf("a gap equal to the threshold must extend the seed.\ngot = %v\nwant= %v\n", got, want)
	}
}

func TestSeedFinderDisabledDetector(t *testing.T) {
	mask := allEnabled()
	mask[Rich] = false

	for _, tt := range []struct {
		name string
		algo Algorithm
		want []map[Detector][]int64
	}{
		{
			name: "fixed",
			algo: FixedTimeWindow{Width: 100},
			want: []map[Detector][]int64{
				{Sts: {10, 50}, Rich: {5, 99}},
				{Sts: {250}, Rich: {220, 250}},
			},
		},
		{
			name: "gap",
			algo: MaximumTimeGap{Gap: 50},
			want: []map[Detector][]int64{
				{Sts: {10, 50}},
				{Sts: {250}, Rich: {250}},
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ts := newSlice(0, map[Detector][]int64{
				Sts:  {10, 50, 250},
				Rich: {5, 99, 100, 150, 220, 250},
			})
			sf := NewSeedFinder(tt.algo, mask)
			seeds := findSeeds(sf, ts)
			if got, want := len(seeds), len(tt.want); got != want {
				t.Fatalf("invalid number of seeds.\ngot = %d\nwant= %d\n", got, want)
			}
			for i, s := range seeds {
				if got := seedTimes(ts, s); !reflect.DeepEqual(got, tt.want[i]) {
					t.Fatalf("seed %d: invalid members.\ngot = %v\nwant= %v\n", i, got, tt.want[i])
				}
			}
		})
	}
}

func randomSlice(rnd *rand.Rand, n int) *TimeSlice {
	dets := map[Detector][]int64{}
	for _, det := range []Detector{Sts, Tof, Trd} {
		t := int64(0)
		for i := 0; i < n; i++ {
			t += rnd.Int63n(40)
			dets[det] = append(dets[det], t)
		}
	}
	return newSlice(0, dets)
}

func TestSeedCoverage(t *testing.T) {
	rnd := rand.New(rand.NewSource(1234))
	for _, width := range []int64{1, 7, 50, 100, 1000} {
		ts := randomSlice(rnd, 200)
		sf := NewSeedFinder(FixedTimeWindow{Width: width}, allEnabled())
		seeds := findSeeds(sf, ts)

		seen := make(map[Hit]int)
		for _, s := range seeds {
			for i := range s.members {
				for _, ref := range s.members[i] {
					d := ts.Digi(Detector(i), ref.Offset)
					if !sf.algo.Contains(s, d.Time) {
						t.Fatalf("width=%d: digi at %d outside of seed %v", width, d.Time, s)
					}
					seen[Hit{Det: Detector(i), Offset: ref.Offset}]++
				}
			}
		}
		for _, h := range ts.Hits {
			if n := seen[Hit{Det: h.Det, Offset: h.Offset}]; n != 1 {
				t.Fatalf("width=%d: digi %v@%d assigned to %d seeds", width, h.Det, h.Time, n)
			}
		}
	}
}

func TestSeedNonOverlap(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for _, algo := range []Algorithm{
		FixedTimeWindow{Width: 25},
		FixedTimeWindow{Width: 300, Origin: 17},
		MaximumTimeGap{Gap: 5},
		MaximumTimeGap{Gap: 30},
	} {
		ts := randomSlice(rnd, 300)
		sf := NewSeedFinder(algo, allEnabled())
		seeds := findSeeds(sf, ts)
		if len(seeds) == 0 {
			t.Fatalf("%v: no seed", algo)
		}
		for i := 1; i < len(seeds); i++ {
			prev, cur := seeds[i-1], seeds[i]
			if !(prev.TStart <= prev.TEnd && prev.TEnd <= cur.TStart && prev.TStart < cur.TStart) {
				t.Fatalf("%v: overlapping seeds %v and %v", algo, prev, cur)
			}
		}
	}
}
