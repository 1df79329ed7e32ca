// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evbio // import "github.com/go-daq/evb/evbio"

import (
	"encoding/binary"
	"sort"

	"github.com/go-daq/evb"
	"golang.org/x/exp/rand"
)

// Generator produces synthetic self-triggered digi streams: bursts of
// correlated digis on top of uncorrelated noise.
type Generator struct {
	Dets     []evb.Detector
	Rate     float64 // mean number of bursts per µs
	Spread   float64 // time spread of a burst, in ns
	Mult     float64 // mean number of digis per detector in a burst
	Noise    float64 // mean number of noise digis per detector per µs
	Duration int64   // stream duration, in ns

	rnd *rand.Rand
}

// NewGenerator creates a generator seeded with seed.
func NewGenerator(seed uint64, dets []evb.Detector) *Generator {
	return &Generator{
		Dets:     dets,
		Rate:     0.1,
		Spread:   20,
		Mult:     3,
		Noise:    0.5,
		Duration: 1000000,
		rnd:      rand.New(rand.NewSource(seed)),
	}
}

// Streams generates a time-sorted digi stream per detector.
func (gen *Generator) Streams() map[evb.Detector][]evb.Digi {
	out := make(map[evb.Detector][]evb.Digi, len(gen.Dets))
	add := func(det evb.Detector, t int64, ch uint32) {
		if t < 0 || t >= gen.Duration {
			return
		}
		payload := make([]byte, 4)
		binary.LittleEndian.PutUint32(payload, ch)
		out[det] = append(out[det], evb.Digi{Det: det, Time: t, Payload: payload})
	}

	us := float64(gen.Duration) / 1000
	nbursts := gen.poisson(gen.Rate * us)
	for i := 0; i < nbursts; i++ {
		t0 := gen.rnd.Float64() * float64(gen.Duration)
		for _, det := range gen.Dets {
			n := gen.poisson(gen.Mult)
			for j := 0; j < n; j++ {
				t := t0 + gen.rnd.NormFloat64()*gen.Spread
				add(det, int64(t), gen.rnd.Uint32())
			}
		}
	}

	for _, det := range gen.Dets {
		n := gen.poisson(gen.Noise * us)
		for j := 0; j < n; j++ {
			add(det, gen.rnd.Int63n(gen.Duration), gen.rnd.Uint32())
		}
		digis := out[det]
		sort.SliceStable(digis, func(i, j int) bool { return digis[i].Time < digis[j].Time })
	}
	return out
}

func (gen *Generator) poisson(mean float64) int {
	if mean <= 0 {
		return 0
	}
	// sum of exponential inter-arrival times.
	n := 0
	for t := gen.rnd.ExpFloat64(); t < mean; t += gen.rnd.ExpFloat64() {
		n++
	}
	return n
}
