// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/go-daq/evb"
	"github.com/go-daq/evb/config"
	"github.com/go-daq/evb/evbio"
	"github.com/go-daq/evb/internal/tcputil"
	"golang.org/x/sync/errgroup"
)

func endpoint(t *testing.T) string {
	t.Helper()
	ep, err := tcputil.Endpoint()
	if err != nil {
		t.Fatalf("could not find a tcp port: %+v", err)
	}
	return ep
}

func TestFrame(t *testing.T) {
	for _, tt := range []struct {
		raw  []byte
		want Frame
		err  bool
	}{
		{raw: []byte{byte(FrameEOS)}, want: Frame{Kind: FrameEOS, Body: []byte{}}},
		{raw: []byte{byte(FrameSlice), 1, 2}, want: Frame{Kind: FrameSlice, Body: []byte{1, 2}}},
		{raw: nil, err: true},
		{raw: []byte{byte(FrameInvalid)}, err: true},
		{raw: []byte{0x42}, err: true},
	} {
		var got Frame
		err := got.UnmarshalEVB(tt.raw)
		switch {
		case tt.err && err == nil:
			t.Fatalf("expected an error for %v", tt.raw)
		case !tt.err && err != nil:
			t.Fatalf("could not decode %v: %+v", tt.raw, err)
		case !tt.err && !reflect.DeepEqual(got, tt.want):
			t.Fatalf("invalid frame.\ngot = %#v\nwant= %#v\n", got, tt.want)
		}
	}
}

func TestPublisher(t *testing.T) {
	gen := evbio.NewGenerator(42, []evb.Detector{evb.Sts, evb.Tof})
	gen.Duration = 20000
	sp, err := evbio.NewSplitter(0, 1000, 100, gen.Streams())
	if err != nil {
		t.Fatalf("could not split streams: %+v", err)
	}

	ep := endpoint(t)
	pub, err := NewPublisher(ep, sp.Sources(), nil)
	if err != nil {
		t.Fatalf("could not create publisher: %+v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- pub.Serve(ctx) }()

	src, err := Dial(ep, evb.Tof)
	if err != nil {
		t.Fatalf("could not dial publisher: %+v", err)
	}
	for i := uint64(0); i < sp.Len(); i++ {
		got, err := src.PullSlice(ctx, i)
		if err != nil {
			t.Fatalf("could not pull slice %d: %+v", i, err)
		}
		want := sp.Slice(evb.Tof, i)
		if got.Index != want.Index || got.NCore != want.NCore || len(got.Digis) != len(want.Digis) {
			t.Fatalf("invalid slice %d.\ngot = %+v\nwant= %+v\n", i, got, want)
		}
		for j := range got.Digis {
			if g, w := got.Digis[j], want.Digis[j]; g.Time != w.Time || string(g.Payload) != string(w.Payload) {
				t.Fatalf("invalid digi %d of slice %d: got=%+v, want=%+v", j, i, g, w)
			}
		}
	}
	if _, err := src.PullSlice(ctx, sp.Len()); err != io.EOF {
		t.Fatalf("invalid end-of-stream error: %+v", err)
	}

	if _, err := Dial(ep, evb.Detector(200)); err == nil {
		t.Fatalf("expected an error dialing an invalid detector")
	}

	// the publisher keeps serving until the Sts stream is exhausted.
	sts, err := Dial(ep, evb.Sts)
	if err != nil {
		t.Fatalf("could not dial publisher: %+v", err)
	}
	if _, err := sts.PullSlice(ctx, sp.Len()); err != io.EOF {
		t.Fatalf("invalid end-of-stream error: %+v", err)
	}
	_ = src.Close()
	_ = sts.Close()

	if err := <-errc; err != nil {
		t.Fatalf("could not serve slices: %+v", err)
	}
}

func TestEndpoint(t *testing.T) {
	if _, err := NewPublisher("inproc://evb", map[evb.Detector]evb.DigiSource{evb.Sts: nil}, nil); err == nil {
		t.Fatalf("expected an error for an unsupported scheme")
	}
	if _, err := NewPublisher(endpoint(t), nil, nil); err == nil {
		t.Fatalf("expected an error with no detector")
	}
	if _, err := NewReceiver("udp://127.0.0.1:1234"); err == nil {
		t.Fatalf("expected an error for an unsupported scheme")
	}
}

func TestRemoteBuilder(t *testing.T) {
	dets := []evb.Detector{evb.Bmon, evb.Sts, evb.Tof}
	gen := evbio.NewGenerator(1234, dets)
	gen.Duration = 100000
	streams := gen.Streams()

	set, err := evb.Configure(config.EventBuilder{
		Algorithm: config.MaximumTimeGap,
		MaxGapNs:  50,
		Detectors: map[string]config.Detector{
			"sts": {MinCount: 2},
			"tof": {MinCount: 1},
		},
	})
	if err != nil {
		t.Fatalf("could not configure event builder: %+v", err)
	}

	split := func() *evbio.Splitter {
		sp, err := evbio.NewSplitter(0, 10000, 1000, streams)
		if err != nil {
			t.Fatalf("could not split streams: %+v", err)
		}
		return sp
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// reference run, in-process.
	var want evbio.Collector
	{
		sp := split()
		rdr, err := evb.NewReader(nil, 0, sp.Sources())
		if err != nil {
			t.Fatalf("could not create reader: %+v", err)
		}
		bld := evb.NewBuilder(set, rdr, &want, nil)
		if err := bld.Run(ctx); err != nil {
			t.Fatalf("could not run builder: %+v", err)
		}
	}

	var (
		slices = endpoint(t)
		events = endpoint(t)
		got    evbio.Collector
	)

	pub, err := NewPublisher(slices, split().Sources(), nil)
	if err != nil {
		t.Fatalf("could not create publisher: %+v", err)
	}

	srcs, closeSrcs, err := Sources(slices, dets)
	if err != nil {
		t.Fatalf("could not dial publisher: %+v", err)
	}

	sink, err := NewSink(ctx, events, nil)
	if err != nil {
		t.Fatalf("could not create sink: %+v", err)
	}

	rcv, err := NewReceiver(events)
	if err != nil {
		t.Fatalf("could not create receiver: %+v", err)
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return pub.Serve(ctx) })
	grp.Go(func() error { return rcv.Run(ctx, &got) })
	grp.Go(func() error {
		defer sink.Close()
		defer closeSrcs()

		rdr, err := evb.NewReader(nil, 0, srcs)
		if err != nil {
			return err
		}
		bld := evb.NewBuilder(set, rdr, sink, nil)
		return bld.RunParallel(ctx, 3, 2)
	})

	if err := grp.Wait(); err != nil {
		t.Fatalf("could not run remote builder: %+v", err)
	}

	if !got.EndOfStream() {
		t.Fatalf("end-of-stream not received")
	}
	gevts, wevts := got.Events(), want.Events()
	if len(gevts) != len(wevts) || len(wevts) == 0 {
		t.Fatalf("invalid number of events: got=%d, want=%d", len(gevts), len(wevts))
	}
	for i := range gevts {
		g, w := gevts[i], wevts[i]
		if g.String() != w.String() {
			t.Fatalf("invalid event %d.\ngot = %v\nwant= %v\n", i, g, w)
		}
		for _, det := range dets {
			if !reflect.DeepEqual(g.Digis(det), w.Digis(det)) {
				t.Fatalf("invalid %v digis for event %d", det, i)
			}
		}
	}
}
