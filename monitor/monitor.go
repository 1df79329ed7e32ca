// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package monitor serves the state of a running event builder over HTTP.
//
// The monitor exposes:
//  - "/": a home page,
//  - "/status": a JSON report of the run state and counters,
//  - "/stats": a websocket streaming msgpack-encoded Snapshot values.
package monitor // import "github.com/go-daq/evb/monitor"

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-daq/evb"
	"github.com/go-daq/evb/fsm"
	"github.com/go-daq/evb/log"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/net/websocket"
)

// Snapshot is the state of an event builder at a given time.
type Snapshot struct {
	Status    string            `json:"status" msgpack:"status"`
	Run       string            `json:"run" msgpack:"run"`
	Slices    uint64            `json:"slices" msgpack:"slices"`
	Digis     uint64            `json:"digis" msgpack:"digis"`
	Seeds     uint64            `json:"seeds" msgpack:"seeds"`
	Events    uint64            `json:"events" msgpack:"events"`
	Rejected  uint64            `json:"rejected" msgpack:"rejected"`
	Carried   uint64            `json:"carried" msgpack:"carried"`
	Received  uint64            `json:"received" msgpack:"received"` // events seen by the monitor
	LastEvent string            `json:"last" msgpack:"last"`
	Detectors map[string]uint64 `json:"detectors" msgpack:"detectors"` // member digis per detector
	Timestamp string            `json:"timestamp" msgpack:"timestamp"`
}

// Monitor is an event sink publishing the state of an event builder.
type Monitor struct {
	msg    log.MsgStream
	status func() fsm.Status
	freq   time.Duration
	mux    *http.ServeMux

	mu    sync.RWMutex
	stats evb.Stats
	recv  uint64
	last  string
	dets  [evb.NumDetectors]uint64
	final fsm.Status

	quit chan struct{}
	once sync.Once
}

// New creates a monitor.
// status reports the state of the monitored run; freq is the update
// period of the "/stats" stream.
func New(status func() fsm.Status, freq time.Duration, msg log.MsgStream) *Monitor {
	if msg == nil {
		msg = log.Discard
	}
	if freq <= 0 {
		freq = 1 * time.Second
	}
	mon := &Monitor{
		msg:    msg,
		status: status,
		freq:   freq,
		mux:    http.NewServeMux(),
		final:  fsm.UnConf,
		quit:   make(chan struct{}),
	}
	mon.mux.HandleFunc("/", mon.webHome)
	mon.mux.HandleFunc("/status", mon.webStatus)
	mon.mux.Handle("/stats", websocket.Handler(mon.webStats))
	return mon
}

// Handler returns the HTTP handler of the monitor.
func (mon *Monitor) Handler() http.Handler { return mon.mux }

func (mon *Monitor) OnEvent(evt evb.Event) error {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.recv++
	mon.last = evt.String()
	for det, refs := range evt.Members {
		mon.dets[det] += uint64(len(refs))
	}
	return nil
}

func (mon *Monitor) OnTruncated(slice uint64) error {
	mon.mu.Lock()
	mon.final = fsm.Truncated
	mon.mu.Unlock()
	return nil
}

func (mon *Monitor) OnEndOfStream() error {
	mon.mu.Lock()
	mon.final = fsm.Done
	mon.mu.Unlock()
	return nil
}

func (mon *Monitor) OnStats(st evb.Stats) {
	mon.mu.Lock()
	mon.stats = st
	mon.mu.Unlock()
}

// Snapshot returns the current state of the monitored run.
func (mon *Monitor) Snapshot() Snapshot {
	mon.mu.RLock()
	defer mon.mu.RUnlock()

	status := mon.final
	if mon.status != nil {
		status = mon.status()
	}
	snap := Snapshot{
		Status:    status.String(),
		Run:       mon.stats.Run.String(),
		Slices:    mon.stats.Slices,
		Digis:     mon.stats.Digis,
		Seeds:     mon.stats.Seeds,
		Events:    mon.stats.Events,
		Rejected:  mon.stats.Rejected,
		Carried:   mon.stats.Carried,
		Received:  mon.recv,
		LastEvent: mon.last,
		Detectors: make(map[string]uint64),
		Timestamp: time.Now().UTC().Format("2006-01-02 15:04:05") + " (UTC)",
	}
	for i, n := range mon.dets {
		if n > 0 {
			snap.Detectors[evb.Detector(i).String()] = n
		}
	}
	return snap
}

// Serve serves the monitor on addr until ctx is done or Close is called.
func (mon *Monitor) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: mon.mux}
	go func() {
		select {
		case <-ctx.Done():
		case <-mon.quit:
		}
		_ = srv.Shutdown(context.Background())
	}()

	mon.msg.Infof("starting monitor server on %q...", addr)
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		mon.msg.Errorf("error running monitor server: %+v", err)
		return err
	}
	return nil
}

// Close stops the monitor server and its websocket streams.
func (mon *Monitor) Close() error {
	mon.once.Do(func() { close(mon.quit) })
	return nil
}

func (mon *Monitor) webHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	t, err := template.New("evb-home").Parse(webHomePage)
	if err != nil {
		mon.msg.Errorf("error parsing web home-page: %+v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = t.Execute(w, mon.Snapshot())
	if err != nil {
		mon.msg.Errorf("error executing web home-page template: %+v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (mon *Monitor) webStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(mon.Snapshot())
	if err != nil {
		mon.msg.Errorf("could not send /status report: %+v", err)
	}
}

func (mon *Monitor) webStats(ws *websocket.Conn) {
	defer ws.Close()

	tick := time.NewTicker(mon.freq)
	defer tick.Stop()

	send := func() bool {
		raw, err := msgpack.Marshal(mon.Snapshot())
		if err != nil {
			mon.msg.Errorf("could not encode /stats report: %+v", err)
			return false
		}
		err = websocket.Message.Send(ws, raw)
		if err != nil {
			mon.msg.Errorf("could not send /stats report to websocket client: %+v", err)
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return false
			}
		}
		return err == nil
	}

	if !send() {
		return
	}
	for {
		select {
		case <-mon.quit:
			return
		case <-ws.Request().Context().Done():
			return
		case <-tick.C:
			if !send() {
				return
			}
		}
	}
}

var (
	_ evb.Sink      = (*Monitor)(nil)
	_ evb.StatsSink = (*Monitor)(nil)
)

const webHomePage = `<html>
<head>
	<title>Event Builder</title>
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<style>
	.msg-log {
		color: black;
		text-align: left;
		font-family: monospace;
	}
	</style>
	<script type="text/javascript">
	"use strict"

	window.onload = function() {
		var tick = function() {
			fetch("/status").then(function(resp) { return resp.json(); }).then(update);
		};
		setInterval(tick, 1000);
	};

	function update(data) {
		document.getElementById("evb-status").innerText = data.status;
		document.getElementById("evb-slices").innerText = data.slices;
		document.getElementById("evb-events").innerText = data.events;
		document.getElementById("evb-rejected").innerText = data.rejected;
		document.getElementById("evb-last").innerText = data.last;
		document.getElementById("evb-update").innerText = data.timestamp;
	};
	</script>
</head>
<body>
	<h2>Event Builder</h2>
	<table class="msg-log">
		<tr><th>Run:</th><td>{{.Run}}</td></tr>
		<tr><th>Status:</th><td id="evb-status">{{.Status}}</td></tr>
		<tr><th>Slices:</th><td id="evb-slices">{{.Slices}}</td></tr>
		<tr><th>Events:</th><td id="evb-events">{{.Events}}</td></tr>
		<tr><th>Rejected:</th><td id="evb-rejected">{{.Rejected}}</td></tr>
	</table>
	<br>
	Last event:<br><pre id="evb-last" class="msg-log">{{.LastEvent}}</pre>
	Last update:<br><span id="evb-update" class="msg-log">{{.Timestamp}}</span>
</body>
</html>
`
