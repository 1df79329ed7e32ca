// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the configuration values of event-builder processes.
package config // import "github.com/go-daq/evb/config"

import (
	"io"
	"os"

	"github.com/go-daq/evb/log"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Seed-finding algorithms.
const (
	FixedTimeWindow = "FixedTimeWindow"
	MaximumTimeGap  = "MaximumTimeGap"
)

// EventBuilder describes how raw events are built from time-slices.
type EventBuilder struct {
	Algorithm      string              `yaml:"algorithm"`      // FixedTimeWindow or MaximumTimeGap
	WindowWidthNs  int64               `yaml:"windowWidthNs"`  // width of fixed windows
	WindowOriginNs int64               `yaml:"windowOriginNs"` // origin of the fixed window grid
	MaxGapNs       int64               `yaml:"maxGapNs"`       // maximum gap inside a cluster
	Detectors      map[string]Detector `yaml:"detectors"`      // per-detector trigger settings
	IgnoreOverlap  bool                `yaml:"ignoreOverlap"`  // diagnostic mode: seeds may be split at slice edges
}

// Detector describes the trigger settings of one detector.
type Detector struct {
	MinCount uint32 `yaml:"minCount"`
	MaxCount *int32 `yaml:"maxCount"` // nil or negative: no upper cut
	Enabled  *bool  `yaml:"enabled"`  // nil: enabled
}

// IsEnabled reports whether the detector takes part in seed finding.
func (det Detector) IsEnabled() bool {
	return det.Enabled == nil || *det.Enabled
}

// Max returns the upper multiplicity cut, -1 when there is none.
func (det Detector) Max() int32 {
	if det.MaxCount == nil || *det.MaxCount < 0 {
		return -1
	}
	return *det.MaxCount
}

// Process describes how an event-builder process should be configured.
type Process struct {
	Name    string    // name of the process
	Level   log.Level // verbosity level of the process
	Config  string    // path to the event-builder YAML configuration
	Workers int       // number of slice workers (0 or 1: sequential)
	Chunk   int       // number of contiguous slices owned by a worker at a time
	Web     string    // address of the HTTP monitor ("" disables it)

	Interactive bool // enable the interactive shell

	Args []string // additional flag arguments
}

// Load decodes an EventBuilder configuration from YAML.
// Unknown fields are rejected.
func Load(r io.Reader) (EventBuilder, error) {
	var cfg EventBuilder
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&cfg)
	if err != nil && err != io.EOF {
		return cfg, xerrors.Errorf("config: could not decode event-builder configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile decodes an EventBuilder configuration from the named YAML file.
func LoadFile(fname string) (EventBuilder, error) {
	f, err := os.Open(fname)
	if err != nil {
		return EventBuilder{}, xerrors.Errorf("config: could not open %q: %w", fname, err)
	}
	defer f.Close()
	return Load(f)
}
