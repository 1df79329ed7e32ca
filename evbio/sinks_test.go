// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evbio

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/go-daq/evb"
	"github.com/go-daq/evb/log"
)

type errSink struct {
	Collector
}

func (*errSink) OnEvent(evb.Event) error { return fmt.Errorf("full") }
func (*errSink) OnTruncated(uint64) error { return fmt.Errorf("gone") }

func TestTee(t *testing.T) {
	var (
		c1, c2 Collector
		buf    = new(bytes.Buffer)
		dump   = &Dumper{Msg: log.NewMsgStream("dump", log.LvlDebug, buf)}
		tee    = Tee{&c1, dump, &c2}
	)

	for i := 0; i < 3; i++ {
		if err := tee.OnEvent(evb.Event{Index: uint64(i)}); err != nil {
			t.Fatalf("could not send event %d: %+v", i, err)
		}
	}
	tee.OnStats(evb.Stats{Events: 3})
	if err := tee.OnEndOfStream(); err != nil {
		t.Fatalf("could not send end-of-stream: %+v", err)
	}

	for i, c := range []*Collector{&c1, &c2} {
		if got := len(c.Events()); got != 3 {
			t.Fatalf("sink %d: invalid number of events: %d", i, got)
		}
		if got := c.Stats().Events; got != 3 {
			t.Fatalf("sink %d: invalid stats: %d", i, got)
		}
		if !c.EndOfStream() {
			t.Fatalf("sink %d: missing end-of-stream", i)
		}
	}
	if dump.N != 3 {
		t.Fatalf("invalid number of dumped events: %d", dump.N)
	}
	if !strings.Contains(buf.String(), "end of stream after 3 events") {
		t.Fatalf("invalid dump output:\n%s", buf.String())
	}
}

func TestTeeErrors(t *testing.T) {
	var c Collector
	tee := Tee{new(errSink), &c}

	err := tee.OnEvent(evb.Event{Index: 7})
	if err == nil || !strings.Contains(err.Error(), "sink 0 could not handle event 7") {
		t.Fatalf("invalid error: %+v", err)
	}
	if len(c.Events()) != 0 {
		t.Fatalf("event forwarded after a failing sink")
	}

	err = tee.OnTruncated(4)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if slice, ok := c.Truncated(); !ok || slice != 4 {
		t.Fatalf("truncation not forwarded to all sinks: slice=%d ok=%v", slice, ok)
	}
}
