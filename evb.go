// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package evb builds raw physics events out of self-triggered streams of
// time-tagged detector digis.
//
// Digis are delivered in time-slices. Each detector contributes a core region
// and a trailing overlap region which is repeated at the head of the next
// slice. A Pipeline scans the merged, time-ordered view of a slice, proposes
// seed windows, checks them against per-detector trigger conditions and
// assembles events holding references to the member digis.
// Seeds crossing a slice boundary are carried over so that every event is
// built exactly once.
package evb // import "github.com/go-daq/evb"

import (
	"strings"

	"golang.org/x/xerrors"
)

// Detector identifies a detector subsystem.
type Detector uint8

const (
	Bmon Detector = iota
	Sts
	Much
	Trd
	Trd2D
	Tof
	Rich
	Psd
	Fsd

	NumDetectors = int(Fsd) + 1
)

var detNames = [NumDetectors]string{
	Bmon:  "bmon",
	Sts:   "sts",
	Much:  "much",
	Trd:   "trd",
	Trd2D: "trd2d",
	Tof:   "tof",
	Rich:  "rich",
	Psd:   "psd",
	Fsd:   "fsd",
}

func (det Detector) String() string {
	if int(det) >= NumDetectors {
		panic(xerrors.Errorf("evb: invalid detector value %d", uint8(det)))
	}
	return detNames[det]
}

// Valid reports whether det is a known detector.
func (det Detector) Valid() bool { return int(det) < NumDetectors }

// ParseDetector returns the detector with the provided name.
// Names are case insensitive.
func ParseDetector(name string) (Detector, error) {
	v := strings.ToLower(strings.TrimSpace(name))
	for i, n := range detNames {
		if n == v {
			return Detector(i), nil
		}
	}
	return 0, xerrors.Errorf("evb: unknown detector %q", name)
}

// Detectors returns all known detectors, in identifier order.
func Detectors() []Detector {
	dets := make([]Detector, NumDetectors)
	for i := range dets {
		dets[i] = Detector(i)
	}
	return dets
}
