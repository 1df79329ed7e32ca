// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb_test

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-daq/evb"
	"github.com/go-daq/evb/config"
	"github.com/go-daq/evb/evbio"
	"github.com/go-daq/evb/fsm"
	"golang.org/x/xerrors"
)

func newBuilder(t *testing.T, set evb.Settings, srcs map[evb.Detector]evb.DigiSource, sink evb.Sink) *evb.Builder {
	t.Helper()
	rdr, err := evb.NewReader(nil, 0, srcs)
	if err != nil {
		t.Fatalf("could not create reader: %+v", err)
	}
	return evb.NewBuilder(set, rdr, sink, nil)
}

func TestBuilderRun(t *testing.T) {
	set := mustSettings(t, config.EventBuilder{
		Algorithm: config.FixedTimeWindow, WindowWidthNs: 100,
		Detectors: map[string]config.Detector{"sts": {MinCount: 2}},
	})
	streams := generated(7)
	want, wantStats := build(t, set, mustSplit(t, 0, 900, 120, streams))

	for _, tt := range []struct {
		name    string
		workers int
		chunk   int
	}{
		{"sequential", 0, 0},
		{"parallel-1x1", 1, 1},
		{"parallel-3x2", 3, 2},
		{"parallel-4x7", 4, 7},
		{"parallel-8x1000", 8, 1000},
	} {
		t.Run(tt.name, func(t *testing.T) {
			sink := new(evbio.Collector)
			b := newBuilder(t, set, mustSplit(t, 0, 900, 120, streams).Sources(), sink)
			if got, want := b.Status(), fsm.Conf; got != want {
				t.Fatalf("invalid status.\ngot = %v\nwant= %v\n", got, want)
			}

			var err error
			switch tt.workers {
			case 0:
				err = b.Run(context.Background())
			default:
				err = b.RunParallel(context.Background(), tt.workers, tt.chunk)
			}
			if err != nil {
				t.Fatalf("could not run builder: %+v", err)
			}

			if got, want := b.Status(), fsm.Done; got != want {
				t.Fatalf("invalid status.\ngot = %v\nwant= %v\n", got, want)
			}
			if !sink.EndOfStream() {
				t.Fatalf("end-of-stream not reported")
			}
			if _, ok := sink.Truncated(); ok {
				t.Fatalf("run reported as truncated")
			}

			got := sink.Events()
			if !reflect.DeepEqual(contents(got), contents(want)) {
				t.Fatalf("invalid events: got %d events, want %d", len(got), len(want))
			}
			for i := range got {
				if got[i].Index != uint64(i) || got[i].Slice != want[i].Slice {
					t.Fatalf("invalid event %d: %v (want %v)", i, got[i], want[i])
				}
			}

			st := b.Stats()
			st.Run = wantStats.Run
			if !reflect.DeepEqual(st, wantStats) {
				t.Fatalf("invalid stats.\ngot = %v\nwant= %v\n", st, wantStats)
			}
			if got, want := sink.Stats().Events, wantStats.Events; got != want {
				t.Fatalf("invalid reported stats.\ngot = %d\nwant= %d\n", got, want)
			}
		})
	}
}

func TestBuilderRunTwice(t *testing.T) {
	set := mustSettings(t, scenarioCfg())
	b := newBuilder(t, set, mustSplit(t, 0, 55, 10, scenarioAB()).Sources(), new(evbio.Collector))
	err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("could not run builder: %+v", err)
	}
	err = b.Run(context.Background())
	if err == nil {
		t.Fatalf("expected an error")
	}
}

// cancelSink cancels the run when it receives its n-th event.
type cancelSink struct {
	evbio.Collector
	n      int
	cancel func()
}

func (sink *cancelSink) OnEvent(evt evb.Event) error {
	sink.n--
	if sink.n == 0 {
		sink.cancel()
	}
	return sink.Collector.OnEvent(evt)
}

func TestBuilderCancel(t *testing.T) {
	set := mustSettings(t, config.EventBuilder{Algorithm: config.MaximumTimeGap, MaxGapNs: 30})
	streams := generated(11)

	for _, workers := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sink := &cancelSink{n: 3, cancel: cancel}
			b := newBuilder(t, set, mustSplit(t, 0, 500, 100, streams).Sources(), sink)

			var err error
			switch workers {
			case 0:
				err = b.Run(ctx)
			default:
				err = b.RunParallel(ctx, workers, 2)
			}
			if err != nil {
				t.Fatalf("cancellation reported as an error: %+v", err)
			}

			if got, want := b.Status(), fsm.Truncated; got != want {
				t.Fatalf("invalid status.\ngot = %v\nwant= %v\n", got, want)
			}
			if _, ok := sink.Truncated(); !ok {
				t.Fatalf("truncation not reported")
			}
			if sink.EndOfStream() {
				t.Fatalf("end-of-stream reported for a cancelled run")
			}
			if got, want := len(sink.Events()), 3; got != want {
				t.Fatalf("invalid number of events.\ngot = %d\nwant= %d\n", got, want)
			}
		})
	}
}

func TestBuilderStop(t *testing.T) {
	set := mustSettings(t, config.EventBuilder{Algorithm: config.MaximumTimeGap, MaxGapNs: 30})
	streams := generated(12)

	var (
		sink  = newBlockingSink()
		b     = newBuilder(t, set, mustSplit(t, 0, 500, 100, streams).Sources(), sink)
		errc  = make(chan error, 1)
		timer = time.NewTimer(5 * time.Second)
	)
	defer timer.Stop()

	go func() { errc <- b.Run(context.Background()) }()

	select {
	case <-sink.first:
	case <-timer.C:
		t.Fatalf("no event received")
	}
	if got, want := b.Status(), fsm.Running; got != want {
		t.Fatalf("invalid status.\ngot = %v\nwant= %v\n", got, want)
	}
	b.Stop()
	close(sink.release)

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("stop reported as an error: %+v", err)
		}
	case <-timer.C:
		t.Fatalf("builder did not stop")
	}
	if got, want := b.Status(), fsm.Truncated; got != want {
		t.Fatalf("invalid status.\ngot = %v\nwant= %v\n", got, want)
	}
	if _, ok := sink.Truncated(); !ok {
		t.Fatalf("truncation not reported")
	}
}

// blockingSink blocks on its first event until released.
type blockingSink struct {
	evbio.Collector
	once    sync.Once
	first   chan struct{}
	release chan struct{}
}

func newBlockingSink() *blockingSink {
	return &blockingSink{first: make(chan struct{}), release: make(chan struct{})}
}

func (sink *blockingSink) OnEvent(evt evb.Event) error {
	sink.once.Do(func() {
		close(sink.first)
		<-sink.release
	})
	return sink.Collector.OnEvent(evt)
}

// countingSource counts the slices pulled from a source.
type countingSource struct {
	src evb.DigiSource
	n   *int64
}

func (src countingSource) PullSlice(ctx context.Context, index uint64) (*evb.DetSlice, error) {
	atomic.AddInt64(src.n, 1)
	return src.src.PullSlice(ctx, index)
}

func TestBuilderBackpressure(t *testing.T) {
	set := mustSettings(t, config.EventBuilder{Algorithm: config.FixedTimeWindow, WindowWidthNs: 50})
	streams := map[evb.Detector][]evb.Digi{evb.Sts: digis(evb.Sts, 10, 20, 110, 210, 310, 410, 510)}
	sp := mustSplit(t, 0, 100, 0, streams)

	var pulled int64
	srcs := map[evb.Detector]evb.DigiSource{
		evb.Sts: countingSource{src: sp.Sources()[evb.Sts], n: &pulled},
	}
	sink := newBlockingSink()
	b := newBuilder(t, set, srcs, sink)

	errc := make(chan error, 1)
	go func() { errc <- b.Run(context.Background()) }()

	<-sink.first
	// the event of slice 0 is emitted while processing slice 1.
	before := atomic.LoadInt64(&pulled)
	time.Sleep(50 * time.Millisecond)
	after := atomic.LoadInt64(&pulled)
	if before != 2 || after != before {
		t.Fatalf("reader did not block on the sink: pulled %d then %d slices", before, after)
	}
	close(sink.release)

	err := <-errc
	if err != nil {
		t.Fatalf("could not run builder: %+v", err)
	}
	if got, want := len(sink.Events()), 6; got != want {
		t.Fatalf("invalid number of events.\ngot = %d\nwant= %d\n", got, want)
	}
}

// badSource delivers slice index+1.
type badSource struct{}

func (badSource) PullSlice(ctx context.Context, index uint64) (*evb.DetSlice, error) {
	return &evb.DetSlice{Index: index + 1, Det: evb.Sts}, nil
}

// failingSink rejects every event.
type failingSink struct{ evbio.Collector }

func (*failingSink) OnEvent(evt evb.Event) error { return xerrors.Errorf("disk full") }

func TestBuilderErrors(t *testing.T) {
	set := mustSettings(t, scenarioCfg())

	for _, workers := range []int{0, 2} {
		t.Run(fmt.Sprintf("stream-workers=%d", workers), func(t *testing.T) {
			sink := new(evbio.Collector)
			b := newBuilder(t, set, map[evb.Detector]evb.DigiSource{evb.Sts: badSource{}}, sink)
			var err error
			switch workers {
			case 0:
				err = b.Run(context.Background())
			default:
				err = b.RunParallel(context.Background(), workers, 2)
			}
			var serr *evb.StreamError
			if !xerrors.As(err, &serr) {
				t.Fatalf("invalid error: %+v", err)
			}
			if got, want := b.Status(), fsm.Error; got != want {
				t.Fatalf("invalid status.\ngot = %v\nwant= %v\n", got, want)
			}
			if sink.EndOfStream() {
				t.Fatalf("end-of-stream reported for a failed run")
			}
		})

		t.Run(fmt.Sprintf("sink-workers=%d", workers), func(t *testing.T) {
			sink := new(failingSink)
			b := newBuilder(t, set, mustSplit(t, 0, 55, 10, scenarioAB()).Sources(), sink)
			var err error
			switch workers {
			case 0:
				err = b.Run(context.Background())
			default:
				err = b.RunParallel(context.Background(), workers, 2)
			}
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := b.Status(), fsm.Error; got != want {
				t.Fatalf("invalid status.\ngot = %v\nwant= %v\n", got, want)
			}
		})
	}
}
