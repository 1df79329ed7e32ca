// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command evb-build builds raw events from time-sliced detector digis.
//
// Usage: evb-build [options] <input> [output]
//
// The input is either "gen:SEED", to build events from synthetic streams,
// or the endpoint of an evb-gen publisher (e.g. tcp://127.0.0.1:44000).
// Built events are logged and, if an output endpoint is given, pushed to it
// for evb-dump.
//
// Example:
//
//  $> evb-build -cfg ./evb.yaml -workers 4 -web :8080 gen:1234
//  $> evb-build -i -dets sts,tof tcp://127.0.0.1:44000 tcp://127.0.0.1:44001
package main // import "github.com/go-daq/evb/cmd/evb-build"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/go-daq/evb"
	"github.com/go-daq/evb/config"
	"github.com/go-daq/evb/evbio"
	"github.com/go-daq/evb/flags"
	"github.com/go-daq/evb/fsm"
	"github.com/go-daq/evb/internal/iomux"
	"github.com/go-daq/evb/log"
	"github.com/go-daq/evb/monitor"
	"github.com/go-daq/evb/qa"
	"github.com/go-daq/evb/transport"
	"github.com/peterh/liner"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type options struct {
	dets     string
	duration int64
	length   int64
	overlap  int64
}

func main() {
	var opts options
	flag.StringVar(&opts.dets, "dets", "bmon,sts,tof", "comma-separated list of detectors to read")
	flag.Int64Var(&opts.duration, "duration", 1000000, "duration of synthetic streams, in ns")
	flag.Int64Var(&opts.length, "slice", 100000, "length of synthetic slices, in ns")
	flag.Int64Var(&opts.overlap, "overlap", 10000, "overlap of synthetic slices, in ns")

	cmd := flags.New()
	if len(cmd.Args) < 1 || len(cmd.Args) > 2 {
		flag.Usage()
		os.Exit(2)
	}

	stdout := iomux.NewWriter(os.Stdout)
	msg := log.NewMsgStream(cmd.Name, cmd.Level, stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := run(ctx, cmd, opts, stdout, msg)
	if err != nil {
		msg.Errorf("could not build events: %+v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd config.Process, opts options, stdout io.Writer, msg log.MsgStream) error {
	cfg := config.EventBuilder{
		Algorithm: config.MaximumTimeGap,
		MaxGapNs:  50,
	}
	if cmd.Config != "" {
		var err error
		cfg, err = config.LoadFile(cmd.Config)
		if err != nil {
			return err
		}
	}
	set, err := evb.Configure(cfg)
	if err != nil {
		return err
	}

	dets, err := parseDetectors(opts.dets)
	if err != nil {
		return err
	}

	srcs, closeSrcs, err := sources(cmd.Args[0], dets, opts, msg)
	if err != nil {
		return err
	}
	defer closeSrcs()

	rdr, err := evb.NewReader(msg, 0, srcs)
	if err != nil {
		return err
	}

	var (
		bld  *evb.Builder
		an   = qa.NewAnalyzer(msg)
		mon  = monitor.New(func() fsm.Status { return bld.Status() }, time.Second, msg)
		sink = evbio.Tee{&evbio.Dumper{Msg: msg}, an, mon}
	)

	if len(cmd.Args) == 2 {
		out, err := transport.NewSink(context.Background(), cmd.Args[1], msg)
		if err != nil {
			return err
		}
		defer out.Close()
		sink = append(sink, out)
	}

	bld = evb.NewBuilder(set, rdr, sink, msg)
	msg.Infof("building events with %v (workers=%d, chunk=%d)", set.Algo.Name(), cmd.Workers, cmd.Chunk)

	grp, ctx := errgroup.WithContext(ctx)
	if cmd.Web != "" {
		grp.Go(func() error { return mon.Serve(ctx, cmd.Web) })
	}
	grp.Go(func() error {
		defer func() {
			if !cmd.Interactive {
				mon.Close()
			}
		}()
		if cmd.Workers > 1 {
			return bld.RunParallel(ctx, cmd.Workers, cmd.Chunk)
		}
		return bld.Run(ctx)
	})
	if cmd.Interactive {
		grp.Go(func() error {
			defer mon.Close()
			return shell(bld, an, stdout)
		})
	}

	err = grp.Wait()
	if err != nil {
		return err
	}

	msg.Infof("run %v: %v", bld.Status(), bld.Stats())
	return nil
}

func parseDetectors(s string) ([]evb.Detector, error) {
	var dets []evb.Detector
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		det, err := evb.ParseDetector(name)
		if err != nil {
			return nil, err
		}
		dets = append(dets, det)
	}
	if len(dets) == 0 {
		return nil, xerrors.Errorf("no detector to read")
	}
	return dets, nil
}

func sources(input string, dets []evb.Detector, opts options, msg log.MsgStream) (map[evb.Detector]evb.DigiSource, func() error, error) {
	if !strings.HasPrefix(input, "gen:") {
		msg.Infof("reading %v from %q", dets, input)
		return transport.Sources(input, dets)
	}

	seed, err := strconv.ParseUint(strings.TrimPrefix(input, "gen:"), 10, 64)
	if err != nil {
		return nil, nil, xerrors.Errorf("invalid generator seed %q: %w", input, err)
	}
	gen := evbio.NewGenerator(seed, dets)
	gen.Duration = opts.duration
	sp, err := evbio.NewSplitter(0, opts.length, opts.overlap, gen.Streams())
	if err != nil {
		return nil, nil, err
	}
	msg.Infof("generated %d slices of %v (seed=%d)", sp.Len(), dets, seed)
	return sp.Sources(), func() error { return nil }, nil
}

var commands = []string{"help", "status", "stats", "qa", "stop", "quit"}

func shell(bld *evb.Builder, an *qa.Analyzer, stdout io.Writer) error {
	ln := liner.NewLiner()
	defer ln.Close()

	ln.SetCtrlCAborts(true)
	ln.SetCompleter(func(line string) []string {
		var out []string
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, line) {
				out = append(out, cmd)
			}
		}
		return out
	})

	for {
		o, err := ln.Prompt("evb> ")
		switch {
		case err == liner.ErrPromptAborted, err == io.EOF:
			bld.Stop()
			return nil
		case err != nil:
			return xerrors.Errorf("could not read command: %w", err)
		}
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		ln.AppendHistory(o)

		switch o {
		case "help":
			fmt.Fprintf(stdout, "commands: %s\n", strings.Join(commands, ", "))
		case "status":
			fmt.Fprintf(stdout, "%v\n", bld.Status())
		case "stats":
			fmt.Fprintf(stdout, "%v\n", bld.Stats())
		case "qa":
			fmt.Fprintf(stdout, "%v", an.Report())
		case "stop":
			bld.Stop()
		case "quit", "exit":
			bld.Stop()
			return nil
		default:
			fmt.Fprintf(stdout, "unknown command %q (try \"help\")\n", o)
		}
	}
}
