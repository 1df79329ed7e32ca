// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"github.com/go-daq/evb/log"
	"github.com/google/uuid"
)

// Pipeline builds the events of consecutive time-slices.
// A Pipeline is not safe for concurrent use.
type Pipeline struct {
	msg log.MsgStream
	set Settings

	finder *SeedFinder
	trig   *TriggerEvaluator
	asm    EventAssembler
	ovl    OverlapResolver
	stats  Stats
}

// NewPipeline creates a pipeline for a new run.
func NewPipeline(set Settings, msg log.MsgStream) *Pipeline {
	if msg == nil {
		msg = log.Discard
	}
	return &Pipeline{
		msg:    msg,
		set:    set,
		finder: NewSeedFinder(set.Algo, set.Enabled()),
		trig:   NewTriggerEvaluator(set.Triggers),
		ovl:    OverlapResolver{ignore: set.IgnoreOverlap},
		stats:  Stats{Run: uuid.New()},
	}
}

// ProcessSlice builds the events closed while processing ts.
// Events of seeds started in earlier slices may be returned.
// Slices not obtained from a Reader are checked for core digis placed
// after overlap digis.
func (p *Pipeline) ProcessSlice(ts *TimeSlice) ([]Event, error) {
	err := ts.checkRegions()
	if err != nil {
		return nil, err
	}
	if ts.Hits == nil {
		ts.Merge()
	}

	var evts []Event
	err = p.ovl.process(ts, p.finder, &p.stats, func(s *Seed) {
		if evt, ok := p.handle(s); ok {
			evts = append(evts, evt)
		}
	})
	if err != nil {
		return nil, err
	}
	p.stats.Slices++

	p.msg.Debugf("slice %d: digis=%d events=%d state=%v", ts.Index, ts.NumDigis(), len(evts), p.ovl.State())
	return evts, nil
}

// Flush closes the seed still pending at the end of the stream.
func (p *Pipeline) Flush() []Event {
	var evts []Event
	p.ovl.flush(p.finder, func(s *Seed) {
		if evt, ok := p.handle(s); ok {
			evts = append(evts, evt)
		}
	})
	return evts
}

func (p *Pipeline) handle(s *Seed) (Event, bool) {
	v := p.trig.Evaluate(s)
	p.stats.record(s, v)
	if !v.Accept() {
		p.msg.Debugf("rejected %v: %v (%v)", s, v.Reason, v.Det)
		return Event{}, false
	}
	return p.asm.Assemble(s), true
}

// Stats returns the counters of the run.
func (p *Pipeline) Stats() Stats { return p.stats }

// State returns the state of the overlap resolver.
func (p *Pipeline) State() ResolverState { return p.ovl.State() }

// Carry is the state crossing a slice boundary.
// Handing the Carry of a pipeline to another one lets the latter continue
// the run with the next slice.
type Carry struct {
	finder SeedFinder
	ovl    OverlapResolver
	event  uint64
	stats  Stats
}

// State returns the resolver state held by the carry.
func (c Carry) State() ResolverState { return c.ovl.state }

// Stats returns the run counters held by the carry.
func (c Carry) Stats() Stats { return c.stats }

// Carry detaches the cross-slice state of the pipeline.
// The pipeline must not process further slices before Resume is called.
func (p *Pipeline) Carry() Carry {
	c := Carry{
		finder: *p.finder,
		ovl:    p.ovl,
		event:  p.asm.next,
		stats:  p.stats,
	}
	p.finder.cur = nil
	p.finder.aside = nil
	return c
}

// Resume attaches the cross-slice state handed over from another pipeline.
func (p *Pipeline) Resume(c Carry) {
	*p.finder = c.finder
	p.ovl = c.ovl
	p.asm.next = c.event
	p.stats = c.stats
}
