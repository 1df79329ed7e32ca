// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command evb-dump displays the events built by a remote evb-build.
//
// Example:
//
//  $> evb-dump -lvl dbg tcp://127.0.0.1:44001
package main // import "github.com/go-daq/evb/cmd/evb-dump"

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-daq/evb/evbio"
	"github.com/go-daq/evb/log"
	"github.com/go-daq/evb/qa"
	"github.com/go-daq/evb/transport"
)

func main() {
	lvl := flag.String("lvl", "INFO", "msgstream level")

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	level, err := log.ParseLevel(*lvl)
	if err != nil {
		log.Fatalf("could not parse level: %+v", err)
	}
	msg := log.NewMsgStream("evb-dump", level, os.Stdout)

	rcv, err := transport.NewReceiver(flag.Arg(0))
	if err != nil {
		msg.Errorf("could not create receiver: %+v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	sink := evbio.Tee{&evbio.Dumper{Msg: msg}, qa.NewAnalyzer(msg)}
	err = rcv.Run(ctx, sink)
	if err != nil {
		msg.Errorf("could not receive events: %+v", err)
		os.Exit(1)
	}
}
