// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evbio

import (
	"reflect"
	"sort"
	"testing"

	"github.com/go-daq/evb"
)

func TestGenerator(t *testing.T) {
	dets := []evb.Detector{evb.Sts, evb.Tof}
	gen := func(seed uint64) map[evb.Detector][]evb.Digi {
		g := NewGenerator(seed, dets)
		g.Duration = 50000
		return g.Streams()
	}

	s1 := gen(1234)
	if !reflect.DeepEqual(s1, gen(1234)) {
		t.Fatalf("generator is not deterministic")
	}
	if reflect.DeepEqual(s1, gen(4321)) {
		t.Fatalf("generator ignores its seed")
	}

	for _, det := range dets {
		digis := s1[det]
		if len(digis) == 0 {
			t.Fatalf("no digi generated for %v", det)
		}
		if !sort.SliceIsSorted(digis, func(i, j int) bool { return digis[i].Time < digis[j].Time }) {
			t.Fatalf("digis of %v are not sorted", det)
		}
		for _, d := range digis {
			if d.Det != det || d.Time < 0 || d.Time >= 50000 || len(d.Payload) != 4 {
				t.Fatalf("invalid digi: %+v", d)
			}
		}
	}
}
