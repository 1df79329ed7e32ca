// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command evb-gen generates synthetic detector digis and serves them as
// time-slices to evb-build.
//
// Example:
//
//  $> evb-gen -seed 1234 -dets sts,tof -slice 100000 tcp://127.0.0.1:44000
package main // import "github.com/go-daq/evb/cmd/evb-gen"

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/go-daq/evb"
	"github.com/go-daq/evb/evbio"
	"github.com/go-daq/evb/log"
	"github.com/go-daq/evb/transport"
)

func main() {
	var (
		lvl      = flag.String("lvl", "INFO", "msgstream level")
		seed     = flag.Uint64("seed", 1234, "seed of the digi generator")
		dets     = flag.String("dets", "bmon,sts,tof", "comma-separated list of detectors to generate")
		duration = flag.Int64("duration", 1000000, "duration of the streams, in ns")
		length   = flag.Int64("slice", 100000, "length of the slices, in ns")
		overlap  = flag.Int64("overlap", 10000, "overlap of the slices, in ns")
		rate     = flag.Float64("rate", 0.1, "mean number of bursts per µs")
		noise    = flag.Float64("noise", 0.5, "mean number of noise digis per detector per µs")
	)

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	level, err := log.ParseLevel(*lvl)
	if err != nil {
		log.Fatalf("could not parse level: %+v", err)
	}
	msg := log.NewMsgStream("evb-gen", level, os.Stdout)

	var ds []evb.Detector
	for _, name := range strings.Split(*dets, ",") {
		det, err := evb.ParseDetector(strings.TrimSpace(name))
		if err != nil {
			msg.Errorf("could not parse detector: %+v", err)
			os.Exit(1)
		}
		ds = append(ds, det)
	}

	gen := evbio.NewGenerator(*seed, ds)
	gen.Duration = *duration
	gen.Rate = *rate
	gen.Noise = *noise

	streams := gen.Streams()
	for _, det := range ds {
		msg.Debugf("%v: %d digis", det, len(streams[det]))
	}

	sp, err := evbio.NewSplitter(0, *length, *overlap, streams)
	if err != nil {
		msg.Errorf("could not split streams: %+v", err)
		os.Exit(1)
	}

	ep := flag.Arg(0)
	pub, err := transport.NewPublisher(ep, sp.Sources(), msg)
	if err != nil {
		msg.Errorf("could not create publisher: %+v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	msg.Infof("serving %d slices of %v on %q...", sp.Len(), ds, ep)
	err = pub.Serve(ctx)
	if err != nil {
		msg.Errorf("could not serve slices: %+v", err)
		os.Exit(1)
	}
	msg.Infof("done")
}
