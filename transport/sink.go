// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport // import "github.com/go-daq/evb/transport"

import (
	"context"
	"time"

	"github.com/go-daq/evb"
	"github.com/go-daq/evb/log"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"
	"golang.org/x/xerrors"
)

// Sink pushes the output of an event builder to a remote Receiver.
// Sending blocks until a receiver is connected and has room for the frame.
type Sink struct {
	ctx   context.Context
	msg   log.MsgStream
	sck   mangos.Socket
	lis   mangos.Listener
	peers peers

	// Linger is how long Close waits for receivers to drain the
	// remaining frames.
	Linger time.Duration
}

// NewSink creates a sink listening on ep.
// Sending is aborted, and the sink closed, when ctx is done.
func NewSink(ctx context.Context, ep string, msg log.MsgStream) (*Sink, error) {
	if msg == nil {
		msg = log.Discard
	}
	sck, lis, err := makeListener(push.NewSocket, ep)
	if err != nil {
		return nil, xerrors.Errorf("transport: could not create sink: %w", err)
	}
	sink := &Sink{
		ctx:    ctx,
		msg:    msg,
		sck:    sck,
		lis:    lis,
		Linger: 5 * time.Second,
	}
	sink.peers.watch(sck)
	return sink, nil
}

func (sink *Sink) send(kind FrameKind, v evb.Marshaler) error {
	raw, err := newFrame(kind, v)
	if err != nil {
		return err
	}
	err = do(sink.ctx, sink.sck, func() error { return sink.sck.Send(raw) })
	if err != nil {
		return xerrors.Errorf("transport: could not send %v frame: %w", kind, err)
	}
	return nil
}

func (sink *Sink) OnEvent(evt evb.Event) error {
	return sink.send(FrameEvent, evt)
}

func (sink *Sink) OnTruncated(slice uint64) error {
	return sink.send(FrameTruncated, u64(slice))
}

func (sink *Sink) OnEndOfStream() error {
	return sink.send(FrameEOS, str(""))
}

// OnStats forwards run counters to receivers already connected.
// Counters are dropped rather than blocking the event builder.
func (sink *Sink) OnStats(st evb.Stats) {
	if sink.peers.len() == 0 {
		return
	}
	err := sink.send(FrameStats, st)
	if err != nil {
		sink.msg.Warnf("could not send stats: %+v", err)
	}
}

// Close waits, at most Linger, for receivers to disconnect and then
// closes the sink.
func (sink *Sink) Close() error {
	ctx, cancel := context.WithTimeout(sink.ctx, sink.Linger)
	defer cancel()
	if err := sink.peers.wait(ctx); err != nil {
		sink.msg.Warnf("closing sink with %d receiver(s) still connected", sink.peers.len())
	}
	err := sink.sck.Close()
	if err != nil && !xerrors.Is(err, mangos.ErrClosed) {
		return err
	}
	return nil
}

// Receiver pulls the output of a remote event builder.
type Receiver struct {
	sck mangos.Socket
}

// NewReceiver connects to the sink at ep.
func NewReceiver(ep string) (*Receiver, error) {
	sck, err := makeDialer(pull.NewSocket, ep)
	if err != nil {
		return nil, xerrors.Errorf("transport: could not create receiver: %w", err)
	}
	return &Receiver{sck: sck}, nil
}

// Run forwards the received frames to sink until the remote event builder
// reports the end of its stream or a truncation.
// Run closes the receiver on return.
func (rcv *Receiver) Run(ctx context.Context, sink evb.Sink) error {
	defer rcv.Close()

	for {
		var raw []byte
		err := do(ctx, rcv.sck, func() error {
			var err error
			raw, err = rcv.sck.Recv()
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return xerrors.Errorf("transport: could not receive frame: %w", err)
		}

		var frame Frame
		err = frame.UnmarshalEVB(raw)
		if err != nil {
			return err
		}

		switch frame.Kind {
		case FrameEvent:
			var evt evb.Event
			err = evt.UnmarshalEVB(frame.Body)
			if err != nil {
				return err
			}
			err = sink.OnEvent(evt)
			if err != nil {
				return err
			}
		case FrameStats:
			ss, ok := sink.(evb.StatsSink)
			if !ok {
				continue
			}
			var st evb.Stats
			err = st.UnmarshalEVB(frame.Body)
			if err != nil {
				return err
			}
			ss.OnStats(st)
		case FrameTruncated:
			var slice u64
			err = slice.UnmarshalEVB(frame.Body)
			if err != nil {
				return xerrors.Errorf("transport: could not decode truncation: %w", err)
			}
			return sink.OnTruncated(uint64(slice))
		case FrameEOS:
			return sink.OnEndOfStream()
		default:
			return xerrors.Errorf("transport: unexpected %v frame", frame.Kind)
		}
	}
}

func (rcv *Receiver) Close() error {
	err := rcv.sck.Close()
	if err != nil && !xerrors.Is(err, mangos.ErrClosed) {
		return err
	}
	return nil
}

var (
	_ evb.Sink      = (*Sink)(nil)
	_ evb.StatsSink = (*Sink)(nil)
)
