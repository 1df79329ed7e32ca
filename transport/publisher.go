// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport // import "github.com/go-daq/evb/transport"

import (
	"context"
	"io"

	"github.com/go-daq/evb"
	"github.com/go-daq/evb/log"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/rep"
	"go.nanomsg.org/mangos/v3/protocol/req"
	"golang.org/x/xerrors"
)

// Publisher serves the time-slices of a set of detectors to remote
// Source values.
type Publisher struct {
	msg   log.MsgStream
	ep    string
	sck   mangos.Socket
	lis   mangos.Listener
	peers peers
	srcs  map[evb.Detector]evb.DigiSource
}

// NewPublisher creates a publisher listening on ep and serving the slices
// of srcs.
func NewPublisher(ep string, srcs map[evb.Detector]evb.DigiSource, msg log.MsgStream) (*Publisher, error) {
	if len(srcs) == 0 {
		return nil, xerrors.Errorf("transport: no detector to publish")
	}
	if msg == nil {
		msg = log.Discard
	}

	pub := &Publisher{
		msg:  msg,
		ep:   ep,
		srcs: srcs,
	}
	sck, lis, err := makeListener(rep.NewSocket, ep)
	if err != nil {
		return nil, xerrors.Errorf("transport: could not create publisher: %w", err)
	}
	pub.sck = sck
	pub.lis = lis
	pub.peers.watch(sck)
	return pub, nil
}

// Addr returns the endpoint the publisher listens on.
func (pub *Publisher) Addr() string { return pub.ep }

// Serve answers slice requests until every detector has reached its end
// of stream and every consumer has disconnected, or until ctx is done.
func (pub *Publisher) Serve(ctx context.Context) error {
	defer pub.Close()

	eos := make(map[evb.Detector]bool, len(pub.srcs))
	for len(eos) < len(pub.srcs) {
		var raw []byte
		err := do(ctx, pub.sck, func() error {
			var err error
			raw, err = pub.sck.Recv()
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return xerrors.Errorf("transport: could not receive request: %w", err)
		}

		reply, det, done := pub.handle(ctx, raw)
		if done {
			eos[det] = true
		}
		err = do(ctx, pub.sck, func() error { return pub.sck.Send(reply) })
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return xerrors.Errorf("transport: could not send reply: %w", err)
		}
	}

	pub.msg.Debugf("all detectors reached end-of-stream, waiting for %d consumer(s)", pub.peers.len())
	return pub.peers.wait(ctx)
}

func (pub *Publisher) handle(ctx context.Context, raw []byte) (reply []byte, det evb.Detector, eos bool) {
	fail := func(err error) []byte {
		pub.msg.Errorf("%+v", err)
		reply, _ := newFrame(FrameError, str(err.Error()))
		return reply
	}

	var (
		frame Frame
		rq    request
	)
	err := frame.UnmarshalEVB(raw)
	if err != nil {
		return fail(err), det, false
	}
	if frame.Kind != FrameRequest {
		return fail(xerrors.Errorf("transport: unexpected %v frame", frame.Kind)), det, false
	}
	err = rq.UnmarshalEVB(frame.Body)
	if err != nil {
		return fail(err), det, false
	}

	src, ok := pub.srcs[rq.Det]
	if !ok {
		return fail(xerrors.Errorf("transport: detector %d not published", uint8(rq.Det))), rq.Det, false
	}

	ds, err := src.PullSlice(ctx, rq.Index)
	switch {
	case err == io.EOF:
		reply, _ := Frame{Kind: FrameEOS}.MarshalEVB()
		return reply, rq.Det, true
	case err != nil:
		return fail(xerrors.Errorf("transport: could not pull slice %d of %v: %w", rq.Index, rq.Det, err)), rq.Det, false
	}

	reply, err = newFrame(FrameSlice, ds)
	if err != nil {
		return fail(err), rq.Det, false
	}
	return reply, rq.Det, false
}

// Close stops listening for consumers.
func (pub *Publisher) Close() error {
	err := pub.sck.Close()
	if err != nil && !xerrors.Is(err, mangos.ErrClosed) {
		return err
	}
	return nil
}

// Source is a digi source pulling the slices of one detector from a
// remote Publisher.
type Source struct {
	det evb.Detector
	sck mangos.Socket
}

// Dial connects to the publisher at ep, for the slices of det.
func Dial(ep string, det evb.Detector) (*Source, error) {
	if !det.Valid() {
		return nil, xerrors.Errorf("transport: invalid detector %d", uint8(det))
	}
	sck, err := makeDialer(req.NewSocket, ep)
	if err != nil {
		return nil, xerrors.Errorf("transport: could not create %v source: %w", det, err)
	}
	return &Source{det: det, sck: sck}, nil
}

// Sources dials the publisher at ep, once per detector.
func Sources(ep string, dets []evb.Detector) (map[evb.Detector]evb.DigiSource, func() error, error) {
	var (
		srcs = make(map[evb.Detector]evb.DigiSource, len(dets))
		all  = make([]*Source, 0, len(dets))
	)
	closeAll := func() error {
		var first error
		for _, src := range all {
			err := src.Close()
			if err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	for _, det := range dets {
		src, err := Dial(ep, det)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		srcs[det] = src
		all = append(all, src)
	}
	return srcs, closeAll, nil
}

func (src *Source) PullSlice(ctx context.Context, index uint64) (*evb.DetSlice, error) {
	raw, err := newFrame(FrameRequest, request{Det: src.det, Index: index})
	if err != nil {
		return nil, err
	}

	err = do(ctx, src.sck, func() error {
		err := src.sck.Send(raw)
		if err != nil {
			return err
		}
		raw, err = src.sck.Recv()
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, xerrors.Errorf("transport: could not pull slice %d of %v: %w", index, src.det, err)
	}

	var frame Frame
	err = frame.UnmarshalEVB(raw)
	if err != nil {
		return nil, err
	}
	switch frame.Kind {
	case FrameEOS:
		return nil, io.EOF
	case FrameError:
		return nil, xerrors.Errorf("transport: remote error: %s", frame.Body)
	case FrameSlice:
		ds := new(evb.DetSlice)
		err = ds.UnmarshalEVB(frame.Body)
		if err != nil {
			return nil, xerrors.Errorf("transport: could not decode slice %d of %v: %w", index, src.det, err)
		}
		return ds, nil
	}
	return nil, xerrors.Errorf("transport: unexpected %v frame", frame.Kind)
}

func (src *Source) Close() error {
	err := src.sck.Close()
	if err != nil && !xerrors.Is(err, mangos.ErrClosed) {
		return err
	}
	return nil
}

var (
	_ evb.DigiSource = (*Source)(nil)
)
