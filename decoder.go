// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// maxBlob bounds the size of a single byte sequence read by a Decoder.
const maxBlob = 1 << 28

// Decoder reads little-endian values from an io.Reader.
// The first read error is sticky and reported by Err.
type Decoder struct {
	r   io.Reader
	err error
	buf []byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, buf: make([]byte, 8)}
}

func (dec *Decoder) Err() error { return dec.err }

func (dec *Decoder) load(n int) {
	if dec.err != nil {
		copy(dec.buf, []byte{0, 0, 0, 0, 0, 0, 0, 0})
		return
	}
	_, dec.err = io.ReadFull(dec.r, dec.buf[:n])
}

func (dec *Decoder) ReadU8() uint8 {
	dec.load(1)
	return dec.buf[0]
}

func (dec *Decoder) ReadU16() uint16 {
	dec.load(2)
	return binary.LittleEndian.Uint16(dec.buf[:2])
}

func (dec *Decoder) ReadU32() uint32 {
	dec.load(4)
	return binary.LittleEndian.Uint32(dec.buf[:4])
}

func (dec *Decoder) ReadU64() uint64 {
	dec.load(8)
	return binary.LittleEndian.Uint64(dec.buf[:8])
}

func (dec *Decoder) ReadI32() int32 { return int32(dec.ReadU32()) }
func (dec *Decoder) ReadI64() int64 { return int64(dec.ReadU64()) }

func (dec *Decoder) ReadBool() bool { return dec.ReadU8() == 1 }

func (dec *Decoder) ReadBytes() []byte {
	n := dec.ReadU32()
	if n == 0 || dec.err != nil {
		return nil
	}
	if n > maxBlob {
		dec.err = xerrors.Errorf("evb: byte sequence too large (%d bytes)", n)
		return nil
	}
	p := make([]byte, n)
	_, dec.err = io.ReadFull(dec.r, p)
	return p
}

func (dec *Decoder) ReadStr() string { return string(dec.ReadBytes()) }
