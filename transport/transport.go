// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport exchanges time-slices and built events between
// processes over nanomsg sockets.
//
// Time-slices are served on request: a Publisher answers (detector, index)
// requests from Source values, so the event builder pulls its input at
// its own pace.
// Built events are pushed: a Sink sends the output of an event builder to
// a connected Receiver and blocks while the receiver lags behind.
package transport // import "github.com/go-daq/evb/transport"

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-daq/evb"
	"go.nanomsg.org/mangos/v3"
	"golang.org/x/xerrors"

	_ "go.nanomsg.org/mangos/v3/transport/ipc"
	_ "go.nanomsg.org/mangos/v3/transport/tcp"
)

// FrameKind describes the content of a frame.
type FrameKind uint8

const (
	FrameInvalid   FrameKind = 0x0
	FrameRequest   FrameKind = 0x1 // request for a detector slice
	FrameSlice     FrameKind = 0x2 // detector slice
	FrameEvent     FrameKind = 0x3 // built event
	FrameStats     FrameKind = 0x4 // run counters
	FrameTruncated FrameKind = 0x5 // run truncated at a slice
	FrameEOS       FrameKind = 0x6 // end of stream
	FrameError     FrameKind = 0x7 // remote failure
)

func (k FrameKind) String() string {
	switch k {
	case FrameInvalid:
		return "invalid"
	case FrameRequest:
		return "request"
	case FrameSlice:
		return "slice"
	case FrameEvent:
		return "event"
	case FrameStats:
		return "stats"
	case FrameTruncated:
		return "truncated"
	case FrameEOS:
		return "eos"
	case FrameError:
		return "error"
	}
	return "unknown"
}

// Frame is the unit of exchange on the wire: a kind byte followed by the
// encoded body.
type Frame struct {
	Kind FrameKind
	Body []byte
}

func (f Frame) MarshalEVB() ([]byte, error) {
	raw := make([]byte, 1+len(f.Body))
	raw[0] = byte(f.Kind)
	copy(raw[1:], f.Body)
	return raw, nil
}

func (f *Frame) UnmarshalEVB(p []byte) error {
	if len(p) == 0 {
		return xerrors.Errorf("transport: empty frame")
	}
	f.Kind = FrameKind(p[0])
	f.Body = p[1:]
	switch f.Kind {
	case FrameInvalid:
		return xerrors.Errorf("transport: invalid frame kind")
	case FrameRequest, FrameSlice, FrameEvent, FrameStats, FrameTruncated, FrameEOS, FrameError:
		return nil
	}
	return xerrors.Errorf("transport: unknown frame kind 0x%x", uint8(f.Kind))
}

func newFrame(kind FrameKind, v evb.Marshaler) ([]byte, error) {
	body, err := v.MarshalEVB()
	if err != nil {
		return nil, xerrors.Errorf("transport: could not marshal %v frame: %w", kind, err)
	}
	return Frame{Kind: kind, Body: body}.MarshalEVB()
}

// request identifies a detector slice.
type request struct {
	Det   evb.Detector
	Index uint64
}

func (req request) MarshalEVB() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := evb.NewEncoder(buf)
	enc.WriteU8(uint8(req.Det))
	enc.WriteU64(req.Index)
	return buf.Bytes(), enc.Err()
}

func (req *request) UnmarshalEVB(p []byte) error {
	dec := evb.NewDecoder(bytes.NewReader(p))
	req.Det = evb.Detector(dec.ReadU8())
	req.Index = dec.ReadU64()
	if err := dec.Err(); err != nil {
		return xerrors.Errorf("transport: could not decode request: %w", err)
	}
	return nil
}

type u64 uint64

func (v u64) MarshalEVB() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := evb.NewEncoder(buf)
	enc.WriteU64(uint64(v))
	return buf.Bytes(), enc.Err()
}

func (v *u64) UnmarshalEVB(p []byte) error {
	dec := evb.NewDecoder(bytes.NewReader(p))
	*v = u64(dec.ReadU64())
	return dec.Err()
}

type str string

func (s str) MarshalEVB() ([]byte, error) { return []byte(s), nil }

func makeListener(fun func() (mangos.Socket, error), ep string) (mangos.Socket, mangos.Listener, error) {
	if err := checkEndpoint(ep); err != nil {
		return nil, nil, err
	}

	sck, err := fun()
	if err != nil {
		return nil, nil, xerrors.Errorf("could not create socket %q: %w", ep, err)
	}

	lis, err := sck.NewListener(ep, nil)
	if err != nil {
		_ = sck.Close()
		return nil, nil, xerrors.Errorf("could not create listener %q: %w", ep, err)
	}

	err = lis.Listen()
	if err != nil {
		_ = lis.Close()
		_ = sck.Close()
		return nil, nil, xerrors.Errorf("could not listen on %q: %w", ep, err)
	}

	return sck, lis, nil
}

// makeDialer connects a new socket to ep.
// The connection is established in the background so the remote end may
// start listening later.
func makeDialer(fun func() (mangos.Socket, error), ep string) (mangos.Socket, error) {
	if err := checkEndpoint(ep); err != nil {
		return nil, err
	}

	sck, err := fun()
	if err != nil {
		return nil, xerrors.Errorf("could not create socket %q: %w", ep, err)
	}

	err = sck.DialOptions(ep, map[string]interface{}{
		mangos.OptionDialAsynch: true,
	})
	if err != nil {
		_ = sck.Close()
		return nil, xerrors.Errorf("could not dial %q: %w", ep, err)
	}
	return sck, nil
}

func checkEndpoint(ep string) error {
	switch {
	case strings.HasPrefix(ep, "tcp://"), strings.HasPrefix(ep, "ipc://"):
		return nil
	}
	return xerrors.Errorf("transport: scheme of endpoint %q not implemented", ep)
}

// do runs a blocking socket operation.
// The socket is closed, and the operation aborted, when ctx is done.
func do(ctx context.Context, sck mangos.Socket, op func() error) error {
	errc := make(chan error, 1)
	go func() {
		errc <- op()
	}()
	select {
	case <-ctx.Done():
		_ = sck.Close()
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

// peers counts the pipes attached to a socket.
type peers struct {
	n int64
}

func (p *peers) watch(sck mangos.Socket) {
	sck.SetPipeEventHook(func(ev mangos.PipeEvent, _ mangos.Pipe) {
		switch ev {
		case mangos.PipeEventAttached:
			atomic.AddInt64(&p.n, +1)
		case mangos.PipeEventDetached:
			atomic.AddInt64(&p.n, -1)
		}
	})
}

func (p *peers) len() int { return int(atomic.LoadInt64(&p.n)) }

// wait blocks until every peer has detached, or until ctx is done.
func (p *peers) wait(ctx context.Context) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for p.len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

var (
	_ evb.Marshaler   = (*Frame)(nil)
	_ evb.Unmarshaler = (*Frame)(nil)
	_ evb.Marshaler   = (*request)(nil)
	_ evb.Unmarshaler = (*request)(nil)
)
