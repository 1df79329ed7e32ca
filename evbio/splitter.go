// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evbio // import "github.com/go-daq/evb/evbio"

import (
	"context"
	"io"
	"sort"

	"github.com/go-daq/evb"
	"golang.org/x/xerrors"
)

// Splitter cuts continuous per-detector digi streams into time-slices.
//
// Slice k holds the digis in [Start+k*Length, Start+(k+1)*Length) as its
// core region and the digis in the following Overlap ns as its overlap
// region.
type Splitter struct {
	Start   int64
	Length  int64
	Overlap int64

	streams map[evb.Detector][]evb.Digi
	n       uint64 // number of slices
}

// NewSplitter creates a splitter over the provided streams.
// Each stream must be sorted by time and start at or after start.
func NewSplitter(start, length, overlap int64, streams map[evb.Detector][]evb.Digi) (*Splitter, error) {
	if length <= 0 {
		return nil, xerrors.Errorf("evbio: invalid slice length %d", length)
	}
	if overlap < 0 {
		return nil, xerrors.Errorf("evbio: invalid overlap length %d", overlap)
	}

	sp := &Splitter{
		Start:   start,
		Length:  length,
		Overlap: overlap,
		streams: streams,
	}
	last := start
	for det, digis := range streams {
		if !sort.SliceIsSorted(digis, func(i, j int) bool { return digis[i].Time < digis[j].Time }) {
			return nil, xerrors.Errorf("evbio: digis of %v are not sorted", det)
		}
		if len(digis) == 0 {
			continue
		}
		if digis[0].Time < start {
			return nil, xerrors.Errorf("evbio: digi of %v at %d before stream start %d", det, digis[0].Time, start)
		}
		if t := digis[len(digis)-1].Time; t > last {
			last = t
		}
	}
	sp.n = uint64((last-start)/length) + 1
	return sp, nil
}

// Len returns the number of slices.
func (sp *Splitter) Len() uint64 { return sp.n }

// Slice returns the slice index of one detector.
func (sp *Splitter) Slice(det evb.Detector, index uint64) *evb.DetSlice {
	var (
		digis = sp.streams[det]
		beg   = sp.Start + int64(index)*sp.Length
		end   = beg + sp.Length
		ovl   = end + sp.Overlap
		find  = func(t int64) int {
			return sort.Search(len(digis), func(i int) bool { return digis[i].Time >= t })
		}
		i = find(beg)
		j = find(end)
		k = find(ovl)
	)
	return &evb.DetSlice{
		Index:      index,
		Det:        det,
		Digis:      digis[i:k:k],
		NCore:      j - i,
		Start:      beg,
		Length:     sp.Length,
		OverlapLen: sp.Overlap,
	}
}

// Sources returns one digi source per detector stream.
func (sp *Splitter) Sources() map[evb.Detector]evb.DigiSource {
	srcs := make(map[evb.Detector]evb.DigiSource, len(sp.streams))
	for det := range sp.streams {
		srcs[det] = &splitSource{sp: sp, det: det}
	}
	return srcs
}

type splitSource struct {
	sp  *Splitter
	det evb.Detector
}

func (src *splitSource) PullSlice(ctx context.Context, index uint64) (*evb.DetSlice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index >= src.sp.n {
		return nil, io.EOF
	}
	return src.sp.Slice(src.det, index), nil
}

var _ evb.DigiSource = (*splitSource)(nil)
