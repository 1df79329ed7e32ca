// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package iomux provides simple goroutine safe I/O primitives.
package iomux // import "github.com/go-daq/evb/internal/iomux"

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-daq/evb/log"
)

// Writer is a goroutine-safe io.Writer.
// Message streams of concurrent workers share one Writer so lines
// are never interleaved.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	n, err := w.w.Write(p)
	w.mu.Unlock()
	return n, err
}

// Sync flushes the underlying writer, if it can be flushed.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch ww := w.w.(type) {
	case interface{ Sync() error }:
		return ww.Sync()
	case interface{ Flush() error }:
		return ww.Flush()
	}
	return nil
}

func (w *Writer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.w.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", w.w)
}

var (
	_ io.Writer       = (*Writer)(nil)
	_ log.WriteSyncer = (*Writer)(nil)
)
