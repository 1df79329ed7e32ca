// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"fmt"
	"sort"

	"github.com/go-daq/evb/config"
)

// Settings is the validated, immutable configuration of an event builder.
type Settings struct {
	Algo          Algorithm
	Triggers      [NumDetectors]DetectorTrigger
	IgnoreOverlap bool
}

// DefaultTriggers returns trigger conditions with every detector enabled
// and no multiplicity cut.
func DefaultTriggers() [NumDetectors]DetectorTrigger {
	var dets [NumDetectors]DetectorTrigger
	for i := range dets {
		dets[i] = DetectorTrigger{Enabled: true, MaxCount: -1}
	}
	return dets
}

// Enabled returns the participation mask of the detectors.
func (set Settings) Enabled() [NumDetectors]bool {
	var mask [NumDetectors]bool
	for i, det := range set.Triggers {
		mask[i] = det.Enabled
	}
	return mask
}

// Configure validates an event-builder configuration.
// Invalid configurations are reported as *ConfigError.
func Configure(cfg config.EventBuilder) (Settings, error) {
	set := Settings{
		Triggers:      DefaultTriggers(),
		IgnoreOverlap: cfg.IgnoreOverlap,
	}

	switch cfg.Algorithm {
	case config.FixedTimeWindow, "":
		if cfg.WindowWidthNs <= 0 {
			return set, &ConfigError{
				Field: "windowWidthNs",
				Msg:   fmt.Sprintf("window width must be positive (got %d)", cfg.WindowWidthNs),
			}
		}
		set.Algo = FixedTimeWindow{Width: cfg.WindowWidthNs, Origin: cfg.WindowOriginNs}
	case config.MaximumTimeGap:
		if cfg.MaxGapNs <= 0 {
			return set, &ConfigError{
				Field: "maxGapNs",
				Msg:   fmt.Sprintf("maximum gap must be positive (got %d)", cfg.MaxGapNs),
			}
		}
		set.Algo = MaximumTimeGap{Gap: cfg.MaxGapNs}
	default:
		return set, &ConfigError{
			Field: "algorithm",
			Msg:   fmt.Sprintf("unknown seed-finding algorithm %q", cfg.Algorithm),
		}
	}

	names := make([]string, 0, len(cfg.Detectors))
	for name := range cfg.Detectors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		det, err := ParseDetector(name)
		if err != nil {
			return set, &ConfigError{
				Field: "detectors",
				Msg:   fmt.Sprintf("unknown detector %q", name),
			}
		}
		dcfg := cfg.Detectors[name]
		trig := DetectorTrigger{
			MinCount: dcfg.MinCount,
			MaxCount: dcfg.Max(),
			Enabled:  dcfg.IsEnabled(),
		}
		if trig.MaxCount >= 0 && int64(trig.MaxCount) < int64(trig.MinCount) {
			return set, &ConfigError{
				Field: "detectors." + name,
				Msg:   fmt.Sprintf("maxCount (%d) must not be less than minCount (%d)", trig.MaxCount, trig.MinCount),
			}
		}
		set.Triggers[det] = trig
	}

	return set, nil
}
