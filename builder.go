// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"context"
	"io"
	"sync"

	"github.com/go-daq/evb/fsm"
	"github.com/go-daq/evb/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// Builder runs an event-building pipeline over the slices of a Reader and
// pushes the events to a Sink.
//
// The next slice is pulled only once the Sink accepted every event of the
// current one.
type Builder struct {
	msg  log.MsgStream
	set  Settings
	rdr  *Reader
	sink Sink

	mu     sync.RWMutex
	status fsm.Status
	pipe   *Pipeline
	stop   context.CancelFunc
	stats  Stats

	trunc sync.Once
}

// NewBuilder creates a builder.
func NewBuilder(set Settings, rdr *Reader, sink Sink, msg log.MsgStream) *Builder {
	if msg == nil {
		msg = log.Discard
	}
	if algo, ok := set.Algo.(FixedTimeWindow); ok && !set.IgnoreOverlap {
		rdr.CheckOverlap(algo.Width)
	}
	pipe := NewPipeline(set, msg)
	return &Builder{
		msg:    msg,
		set:    set,
		rdr:    rdr,
		sink:   sink,
		status: fsm.Conf,
		pipe:   pipe,
		stats:  pipe.Stats(),
	}
}

// Status returns the status of the run.
func (b *Builder) Status() fsm.Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Stats returns the counters of the run, as of the last processed slice.
func (b *Builder) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// Stop cancels a running run.
func (b *Builder) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop == nil || b.status.Final() {
		return
	}
	b.status = fsm.Stopped
	b.stop()
}

func (b *Builder) setStatus(st fsm.Status) {
	b.mu.Lock()
	b.status = st
	b.mu.Unlock()
}

func (b *Builder) start(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != fsm.Conf {
		return nil, xerrors.Errorf("evb: builder can not run in state %v", b.status)
	}
	ctx, b.stop = context.WithCancel(ctx)
	b.status = fsm.Running
	return ctx, nil
}

func (b *Builder) publish(st Stats) {
	b.mu.Lock()
	b.stats = st
	b.mu.Unlock()
	if sink, ok := b.sink.(StatsSink); ok {
		sink.OnStats(st)
	}
}

func (b *Builder) truncate(slice uint64) {
	b.trunc.Do(func() {
		b.msg.Warnf("run truncated at slice %d", slice)
		b.setStatus(fsm.Truncated)
		err := b.sink.OnTruncated(slice)
		if err != nil {
			b.msg.Errorf("could not report truncation of slice %d: %+v", slice, err)
		}
	})
}

func (b *Builder) fail(err error) error {
	b.msg.Errorf("run failed: %+v", err)
	b.setStatus(fsm.Error)
	return err
}

// emit pushes evts to the sink, in order.
// emit returns false if ctx was cancelled before all events were accepted.
func (b *Builder) emit(ctx context.Context, evts []Event) (bool, error) {
	for _, evt := range evts {
		if ctx.Err() != nil {
			return false, nil
		}
		err := b.sink.OnEvent(evt)
		if err != nil {
			return false, xerrors.Errorf("evb: sink could not accept event %d: %w", evt.Index, err)
		}
	}
	return true, nil
}

func (b *Builder) done(ctx context.Context, pipe *Pipeline) (bool, error) {
	ok, err := b.emit(ctx, pipe.Flush())
	if err != nil || !ok {
		return ok, err
	}
	b.publish(pipe.Stats())
	err = b.sink.OnEndOfStream()
	if err != nil {
		return false, xerrors.Errorf("evb: sink could not close stream: %w", err)
	}
	b.msg.Infof("end of stream: %v", pipe.Stats())
	b.setStatus(fsm.Done)
	return true, nil
}

// Run processes slices until the end of the stream or the cancellation of
// ctx.
// Cancellation is reported to the sink with OnTruncated and is not an error.
func (b *Builder) Run(ctx context.Context) error {
	ctx, err := b.start(ctx)
	if err != nil {
		return err
	}
	defer b.stop()

	pipe := b.pipe
	for {
		next := b.rdr.next
		if ctx.Err() != nil {
			b.truncate(next)
			return nil
		}

		ts, err := b.rdr.Next(ctx)
		switch {
		case err == io.EOF:
			ok, err := b.done(ctx, pipe)
			if err != nil {
				return b.fail(err)
			}
			if !ok {
				b.truncate(next)
			}
			return nil
		case err != nil:
			if ctx.Err() != nil {
				b.truncate(next)
				return nil
			}
			return b.fail(err)
		}

		evts, err := pipe.ProcessSlice(ts)
		if err != nil {
			return b.fail(err)
		}
		ok, err := b.emit(ctx, evts)
		if err != nil {
			return b.fail(err)
		}
		if !ok {
			b.truncate(ts.Index)
			return nil
		}
		b.publish(pipe.Stats())
	}
}

type job struct {
	first  uint64 // index of the first slice of the job
	slices []*TimeSlice
	eos    bool
	in     <-chan Carry
	out    chan<- Carry
}

// RunParallel processes the stream with nworkers workers.
//
// Slices are read in order and grouped in jobs of chunk contiguous slices.
// The reader leaves the slices unmerged: a worker merges the slices of its
// job concurrently with the other workers, then waits for the Carry of the
// previous job, processes the job, emits its events and hands the Carry on
// to the next job.
func (b *Builder) RunParallel(ctx context.Context, nworkers, chunk int) error {
	if nworkers < 1 {
		nworkers = 1
	}
	if chunk < 1 {
		chunk = 1
	}

	parent, err := b.start(ctx)
	if err != nil {
		return err
	}
	defer b.stop()

	b.rdr.lazy = true
	defer func() { b.rdr.lazy = false }()

	var (
		jobs = make(chan job, nworkers)
		grp  *errgroup.Group
		last = make(chan (<-chan Carry), 1)
	)
	grp, ctx = errgroup.WithContext(parent)

	var tmu sync.Mutex
	cut := uint64(1<<64 - 1)
	cancelled := func(slice uint64) error {
		if parent.Err() == nil {
			return ctx.Err()
		}
		tmu.Lock()
		if slice < cut {
			cut = slice
		}
		tmu.Unlock()
		return nil
	}

	grp.Go(func() error {
		defer close(jobs)

		first := make(chan Carry, 1)
		first <- b.pipe.Carry()
		var in <-chan Carry = first
		defer func() { last <- in }()

		for {
			next := b.rdr.next
			j := job{first: next, in: in}
			for len(j.slices) < chunk {
				ts, err := b.rdr.Next(ctx)
				if err == io.EOF {
					j.eos = true
					break
				}
				if err != nil {
					if ctx.Err() != nil {
						return cancelled(next)
					}
					return err
				}
				j.slices = append(j.slices, ts)
				next = ts.Index + 1
			}

			out := make(chan Carry, 1)
			j.out = out
			select {
			case <-ctx.Done():
				return cancelled(next)
			case jobs <- j:
				in = out
			}
			if j.eos {
				return nil
			}
		}
	})

	for i := 0; i < nworkers; i++ {
		grp.Go(func() error {
			pipe := NewPipeline(b.set, b.msg)
			for j := range jobs {
				err := b.work(ctx, pipe, j, cancelled)
				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	err = grp.Wait()
	if err != nil {
		return b.fail(err)
	}
	if parent.Err() != nil && b.Status() != fsm.Done {
		if cut == 1<<64-1 {
			cut = b.rdr.next
		}
		b.truncate(cut)
		return nil
	}

	select {
	case in := <-last:
		select {
		case c := <-in:
			b.pipe.Resume(c)
		default:
		}
	default:
	}
	return nil
}

func (b *Builder) work(ctx context.Context, pipe *Pipeline, j job, cancelled func(uint64) error) error {
	for _, ts := range j.slices {
		if ts.Hits == nil {
			ts.Merge()
		}
	}

	var c Carry
	select {
	case <-ctx.Done():
		return cancelled(j.first)
	case c = <-j.in:
	}
	pipe.Resume(c)

	for _, ts := range j.slices {
		evts, err := pipe.ProcessSlice(ts)
		if err != nil {
			return err
		}
		ok, err := b.emit(ctx, evts)
		if err != nil {
			return err
		}
		if !ok {
			return cancelled(ts.Index)
		}
		b.publish(pipe.Stats())
	}

	if j.eos {
		ok, err := b.done(ctx, pipe)
		if err != nil {
			return err
		}
		if !ok {
			next, _ := pipe.ovl.Next()
			return cancelled(next)
		}
	}

	j.out <- pipe.Carry()
	return nil
}
