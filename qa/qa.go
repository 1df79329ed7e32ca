// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package qa computes quality-assurance summaries of built events.
package qa // import "github.com/go-daq/evb/qa"

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-daq/evb"
	"github.com/go-daq/evb/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the distribution of a quantity.
type Summary struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	Median float64
	Max    float64
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d mean=%.2f std=%.2f min=%g median=%g max=%g",
		s.N, s.Mean, s.StdDev, s.Min, s.Median, s.Max,
	)
}

func summarize(vs []float64) Summary {
	if len(vs) == 0 {
		return Summary{}
	}
	xs := make([]float64, len(vs))
	copy(xs, vs)
	sort.Float64s(xs)

	s := Summary{
		N:      len(xs),
		Min:    floats.Min(xs),
		Max:    floats.Max(xs),
		Median: stat.Quantile(0.5, stat.Empirical, xs, nil),
	}
	switch len(xs) {
	case 1:
		s.Mean = xs[0]
	default:
		s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	}
	return s
}

// Histogram bins vs into nbins equal-width bins spanning the range of vs.
// It returns the nbins+1 bin edges and the bin contents.
func Histogram(vs []float64, nbins int) (edges, counts []float64) {
	if len(vs) == 0 || nbins <= 0 {
		return nil, nil
	}
	xs := make([]float64, len(vs))
	copy(xs, vs)
	sort.Float64s(xs)

	lo, hi := xs[0], xs[len(xs)-1]+1
	edges = floats.Span(make([]float64, nbins+1), lo, hi)
	counts = stat.Histogram(nil, edges, xs, nil)
	return edges, counts
}

// Report summarizes the events of a run.
type Report struct {
	Events       int
	Size         Summary // number of member digis
	Duration     Summary // TEnd-TStart, in ns
	Spacing      Summary // time between consecutive events, in ns
	Multiplicity map[evb.Detector]Summary
}

func (r Report) String() string {
	o := new(strings.Builder)
	fmt.Fprintf(o, "events:   %d\n", r.Events)
	fmt.Fprintf(o, "size:     %v\n", r.Size)
	fmt.Fprintf(o, "duration: %v\n", r.Duration)
	fmt.Fprintf(o, "spacing:  %v\n", r.Spacing)
	for _, det := range evb.Detectors() {
		s, ok := r.Multiplicity[det]
		if !ok {
			continue
		}
		fmt.Fprintf(o, "%-9s %v\n", det.String()+":", s)
	}
	return o.String()
}

// Analyzer is an event sink accumulating event distributions.
// The multiplicity of a detector is only sampled from events that hold
// at least one of its digis.
type Analyzer struct {
	msg log.MsgStream

	mu   sync.Mutex
	size []float64
	dur  []float64
	dt   []float64
	mult [evb.NumDetectors][]float64
	last int64
	seen bool
}

// NewAnalyzer creates an analyzer logging its report on msg at the end
// of the run.
func NewAnalyzer(msg log.MsgStream) *Analyzer {
	if msg == nil {
		msg = log.Discard
	}
	return &Analyzer{msg: msg}
}

func (a *Analyzer) OnEvent(evt evb.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.size = append(a.size, float64(evt.Size()))
	a.dur = append(a.dur, float64(evt.TEnd-evt.TStart))
	if a.seen {
		a.dt = append(a.dt, float64(evt.Time-a.last))
	}
	a.last = evt.Time
	a.seen = true
	for det, refs := range evt.Members {
		if len(refs) > 0 {
			a.mult[det] = append(a.mult[det], float64(len(refs)))
		}
	}
	return nil
}

func (a *Analyzer) OnTruncated(slice uint64) error {
	a.msg.Infof("qa report (truncated at slice %d):\n%v", slice, a.Report())
	return nil
}

func (a *Analyzer) OnEndOfStream() error {
	a.msg.Infof("qa report:\n%v", a.Report())
	return nil
}

// Report returns the summary of the events seen so far.
func (a *Analyzer) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := Report{
		Events:       len(a.size),
		Size:         summarize(a.size),
		Duration:     summarize(a.dur),
		Spacing:      summarize(a.dt),
		Multiplicity: make(map[evb.Detector]Summary),
	}
	for i, vs := range a.mult {
		if len(vs) == 0 {
			continue
		}
		r.Multiplicity[evb.Detector(i)] = summarize(vs)
	}
	return r
}

// SizeHistogram bins the event sizes seen so far.
func (a *Analyzer) SizeHistogram(nbins int) (edges, counts []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Histogram(a.size, nbins)
}

var (
	_ evb.Sink = (*Analyzer)(nil)
)
