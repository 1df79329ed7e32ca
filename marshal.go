// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

// Marshaler is implemented by values with a versioned binary schema.
type Marshaler interface {
	MarshalEVB() ([]byte, error)
}

// Unmarshaler is implemented by values decoding their versioned binary schema.
type Unmarshaler interface {
	UnmarshalEVB(p []byte) error
}

// Schema versions.
const (
	detSliceVersion = 1
	eventVersion    = 1
	statsVersion    = 1
)

func checkVersion(dec *Decoder, name string, want uint8) error {
	v := dec.ReadU8()
	if err := dec.Err(); err != nil {
		return xerrors.Errorf("evb: could not read %s schema version: %w", name, err)
	}
	if v != want {
		return xerrors.Errorf("evb: unknown %s schema version %d (want %d)", name, v, want)
	}
	return nil
}

func (ds DetSlice) MarshalEVB() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := NewEncoder(buf)
	enc.WriteU8(detSliceVersion)
	enc.WriteU64(ds.Index)
	enc.WriteU8(uint8(ds.Det))
	enc.WriteI64(ds.Start)
	enc.WriteI64(ds.Length)
	enc.WriteI64(ds.OverlapLen)
	enc.WriteU32(uint32(ds.NCore))
	enc.WriteU32(uint32(len(ds.Digis)))
	for _, d := range ds.Digis {
		enc.WriteI64(d.Time)
		enc.WriteBytes(d.Payload)
	}
	return buf.Bytes(), enc.Err()
}

func (ds *DetSlice) UnmarshalEVB(p []byte) error {
	dec := NewDecoder(bytes.NewReader(p))
	err := checkVersion(dec, "det-slice", detSliceVersion)
	if err != nil {
		return err
	}

	ds.Index = dec.ReadU64()
	ds.Det = Detector(dec.ReadU8())
	ds.Start = dec.ReadI64()
	ds.Length = dec.ReadI64()
	ds.OverlapLen = dec.ReadI64()
	ds.NCore = int(dec.ReadU32())
	n := int(dec.ReadU32())
	if dec.Err() == nil && n > len(p) {
		return xerrors.Errorf("evb: invalid number of digis %d", n)
	}
	ds.Digis = make([]Digi, n)
	for i := range ds.Digis {
		d := &ds.Digis[i]
		d.Det = ds.Det
		d.Time = dec.ReadI64()
		d.Payload = dec.ReadBytes()
	}
	if err := dec.Err(); err != nil {
		return xerrors.Errorf("evb: could not decode det-slice: %w", err)
	}
	if !ds.Det.Valid() {
		return xerrors.Errorf("evb: invalid detector %d", uint8(ds.Det))
	}
	return nil
}

// MarshalEVB encodes the event with its member digis resolved.
func (evt Event) MarshalEVB() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := NewEncoder(buf)
	enc.WriteU8(eventVersion)
	enc.WriteU64(evt.Slice)
	enc.WriteU64(evt.Index)
	enc.WriteI64(evt.Time)
	enc.WriteI64(evt.TStart)
	enc.WriteI64(evt.TEnd)

	dets := make([]Detector, 0, len(evt.Members))
	for det := range evt.Members {
		dets = append(dets, det)
	}
	sort.Slice(dets, func(i, j int) bool { return dets[i] < dets[j] })

	enc.WriteU8(uint8(len(dets)))
	for _, det := range dets {
		refs := evt.Members[det]
		enc.WriteU8(uint8(det))
		enc.WriteU32(uint32(len(refs)))
		for _, ref := range refs {
			d := evt.Digi(det, ref)
			enc.WriteU64(ref.Slice)
			enc.WriteU32(ref.Offset)
			enc.WriteI64(d.Time)
			enc.WriteBytes(d.Payload)
		}
	}
	return buf.Bytes(), enc.Err()
}

// UnmarshalEVB decodes an event.
// The member digis of a decoded event are held by the event itself.
func (evt *Event) UnmarshalEVB(p []byte) error {
	dec := NewDecoder(bytes.NewReader(p))
	err := checkVersion(dec, "event", eventVersion)
	if err != nil {
		return err
	}

	evt.Slice = dec.ReadU64()
	evt.Index = dec.ReadU64()
	evt.Time = dec.ReadI64()
	evt.TStart = dec.ReadI64()
	evt.TEnd = dec.ReadI64()
	evt.arenas = nil

	ndets := int(dec.ReadU8())
	evt.Members = make(map[Detector][]DigiRef, ndets)
	evt.resolved = make(map[Detector][]Digi, ndets)
	for i := 0; i < ndets && dec.Err() == nil; i++ {
		det := Detector(dec.ReadU8())
		if !det.Valid() {
			return xerrors.Errorf("evb: invalid detector %d", uint8(det))
		}
		n := int(dec.ReadU32())
		if dec.Err() == nil && n > len(p) {
			return xerrors.Errorf("evb: invalid number of digis %d", n)
		}
		refs := make([]DigiRef, n)
		digis := make([]Digi, n)
		for j := range refs {
			refs[j].Slice = dec.ReadU64()
			refs[j].Offset = dec.ReadU32()
			digis[j] = Digi{Det: det, Time: dec.ReadI64(), Payload: dec.ReadBytes()}
		}
		evt.Members[det] = refs
		evt.resolved[det] = digis
	}
	if err := dec.Err(); err != nil {
		return xerrors.Errorf("evb: could not decode event: %w", err)
	}
	return nil
}

func (st Stats) MarshalEVB() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := NewEncoder(buf)
	enc.WriteU8(statsVersion)
	enc.write(st.Run[:])
	for _, v := range []uint64{
		st.Slices, st.Digis, st.Seeds, st.Events, st.EventDigis,
		st.Rejected, st.Empty, st.Carried, st.Split,
	} {
		enc.WriteU64(v)
	}
	enc.WriteU8(uint8(NumDetectors))
	for i := 0; i < NumDetectors; i++ {
		enc.WriteU64(st.RejectedMin[i])
		enc.WriteU64(st.RejectedMax[i])
	}
	return buf.Bytes(), enc.Err()
}

func (st *Stats) UnmarshalEVB(p []byte) error {
	dec := NewDecoder(bytes.NewReader(p))
	err := checkVersion(dec, "stats", statsVersion)
	if err != nil {
		return err
	}

	var id [16]byte
	for i := range id {
		id[i] = dec.ReadU8()
	}
	st.Run = uuid.UUID(id)
	for _, v := range []*uint64{
		&st.Slices, &st.Digis, &st.Seeds, &st.Events, &st.EventDigis,
		&st.Rejected, &st.Empty, &st.Carried, &st.Split,
	} {
		*v = dec.ReadU64()
	}
	n := int(dec.ReadU8())
	for i := 0; i < n; i++ {
		lo, hi := dec.ReadU64(), dec.ReadU64()
		if i < NumDetectors {
			st.RejectedMin[i] = lo
			st.RejectedMax[i] = hi
		}
	}
	if err := dec.Err(); err != nil {
		return xerrors.Errorf("evb: could not decode stats: %w", err)
	}
	return nil
}

var (
	_ Marshaler   = (*DetSlice)(nil)
	_ Unmarshaler = (*DetSlice)(nil)
	_ Marshaler   = (*Event)(nil)
	_ Unmarshaler = (*Event)(nil)
	_ Marshaler   = (*Stats)(nil)
	_ Unmarshaler = (*Stats)(nil)
)
