// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"encoding/binary"
	"io"
)

// Encoder writes little-endian values to an io.Writer.
// The first write error is sticky and reported by Err.
type Encoder struct {
	w   io.Writer
	err error

	buf []byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, buf: make([]byte, 8)}
}

func (enc *Encoder) Err() error { return enc.err }

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
}

func (enc *Encoder) WriteU8(v uint8) {
	enc.buf[0] = v
	enc.write(enc.buf[:1])
}

func (enc *Encoder) WriteU16(v uint16) {
	binary.LittleEndian.PutUint16(enc.buf[:2], v)
	enc.write(enc.buf[:2])
}

func (enc *Encoder) WriteU32(v uint32) {
	binary.LittleEndian.PutUint32(enc.buf[:4], v)
	enc.write(enc.buf[:4])
}

func (enc *Encoder) WriteU64(v uint64) {
	binary.LittleEndian.PutUint64(enc.buf[:8], v)
	enc.write(enc.buf[:8])
}

func (enc *Encoder) WriteI32(v int32) { enc.WriteU32(uint32(v)) }
func (enc *Encoder) WriteI64(v int64) { enc.WriteU64(uint64(v)) }

func (enc *Encoder) WriteBool(v bool) {
	switch v {
	case true:
		enc.WriteU8(1)
	default:
		enc.WriteU8(0)
	}
}

func (enc *Encoder) WriteBytes(p []byte) {
	enc.WriteU32(uint32(len(p)))
	if len(p) == 0 {
		return
	}
	enc.write(p)
}

func (enc *Encoder) WriteStr(s string) { enc.WriteBytes([]byte(s)) }
