// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evbio // import "github.com/go-daq/evb/evbio"

import (
	"sync"

	"github.com/go-daq/evb"
	"github.com/go-daq/evb/log"
	"golang.org/x/xerrors"
)

// Collector is a sink keeping every event in memory.
type Collector struct {
	mu        sync.Mutex
	events    []evb.Event
	stats     evb.Stats
	truncated bool
	slice     uint64
	eos       bool
}

func (c *Collector) OnEvent(evt evb.Event) error {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
	return nil
}

func (c *Collector) OnTruncated(slice uint64) error {
	c.mu.Lock()
	c.truncated = true
	c.slice = slice
	c.mu.Unlock()
	return nil
}

func (c *Collector) OnEndOfStream() error {
	c.mu.Lock()
	c.eos = true
	c.mu.Unlock()
	return nil
}

func (c *Collector) OnStats(st evb.Stats) {
	c.mu.Lock()
	c.stats = st
	c.mu.Unlock()
}

// Events returns the collected events.
func (c *Collector) Events() []evb.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]evb.Event(nil), c.events...)
}

// Stats returns the last reported run counters.
func (c *Collector) Stats() evb.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Truncated returns the truncated slice index, if the run was truncated.
func (c *Collector) Truncated() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slice, c.truncated
}

// EndOfStream reports whether the end of the stream was reached.
func (c *Collector) EndOfStream() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eos
}

// Dumper logs every event.
type Dumper struct {
	Msg log.MsgStream
	N   int64 // number of events seen
}

func (d *Dumper) OnEvent(evt evb.Event) error {
	d.N++
	d.Msg.Debugf("%v", evt)
	return nil
}

func (d *Dumper) OnTruncated(slice uint64) error {
	d.Msg.Warnf("stream truncated at slice %d after %d events", slice, d.N)
	return nil
}

func (d *Dumper) OnEndOfStream() error {
	d.Msg.Infof("end of stream after %d events", d.N)
	return nil
}

// Tee forwards the output of an event builder to several sinks.
type Tee []evb.Sink

func (tee Tee) OnEvent(evt evb.Event) error {
	for i, sink := range tee {
		err := sink.OnEvent(evt)
		if err != nil {
			return xerrors.Errorf("evbio: sink %d could not handle event %d: %w", i, evt.Index, err)
		}
	}
	return nil
}

func (tee Tee) OnTruncated(slice uint64) error {
	var first error
	for i, sink := range tee {
		err := sink.OnTruncated(slice)
		if err != nil && first == nil {
			first = xerrors.Errorf("evbio: sink %d could not handle truncation: %w", i, err)
		}
	}
	return first
}

func (tee Tee) OnEndOfStream() error {
	for i, sink := range tee {
		err := sink.OnEndOfStream()
		if err != nil {
			return xerrors.Errorf("evbio: sink %d could not handle end-of-stream: %w", i, err)
		}
	}
	return nil
}

func (tee Tee) OnStats(st evb.Stats) {
	for _, sink := range tee {
		if sink, ok := sink.(evb.StatsSink); ok {
			sink.OnStats(st)
		}
	}
}

var (
	_ evb.Sink      = (*Collector)(nil)
	_ evb.StatsSink = (*Collector)(nil)
	_ evb.Sink      = (*Dumper)(nil)
	_ evb.Sink      = (Tee)(nil)
	_ evb.StatsSink = (Tee)(nil)
)
