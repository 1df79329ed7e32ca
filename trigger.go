// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"fmt"
)

// DetectorTrigger holds the trigger conditions of one detector.
type DetectorTrigger struct {
	MinCount uint32 // minimum multiplicity, 0: never gates acceptance
	MaxCount int32  // maximum multiplicity (inclusive), -1: no cut
	Enabled  bool   // detector takes part in seed finding
}

// RejectReason describes why a seed was rejected.
type RejectReason uint8

const (
	Accepted    RejectReason = iota
	BelowMin                 // a detector is below its minimum multiplicity
	AboveMax                 // a detector exceeds its maximum multiplicity
	NoEnabledDigi            // no digi from any enabled detector
)

func (r RejectReason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case BelowMin:
		return "below-min"
	case AboveMax:
		return "above-max"
	case NoEnabledDigi:
		return "empty"
	default:
		panic(fmt.Errorf("evb: invalid reject reason %d", uint8(r)))
	}
}

// Verdict is the outcome of a trigger evaluation.
type Verdict struct {
	Reason RejectReason
	Det    Detector // detector failing the check, for BelowMin and AboveMax
}

// Accept reports whether the seed was accepted.
func (v Verdict) Accept() bool { return v.Reason == Accepted }

// TriggerEvaluator checks seeds against per-detector multiplicity conditions.
type TriggerEvaluator struct {
	dets [NumDetectors]DetectorTrigger
}

// NewTriggerEvaluator creates a trigger evaluator.
func NewTriggerEvaluator(dets [NumDetectors]DetectorTrigger) *TriggerEvaluator {
	return &TriggerEvaluator{dets: dets}
}

// Evaluate accepts or rejects a seed.
// Detectors are checked in identifier order and the first failing one is
// reported.
func (te *TriggerEvaluator) Evaluate(s *Seed) Verdict {
	total := uint32(0)
	for i, cfg := range te.dets {
		if cfg.Enabled {
			total += s.Counts[i]
		}
	}
	if total == 0 {
		return Verdict{Reason: NoEnabledDigi}
	}

	for i, cfg := range te.dets {
		if !cfg.Enabled {
			continue
		}
		n := s.Counts[i]
		if cfg.MinCount > 0 && n < cfg.MinCount {
			return Verdict{Reason: BelowMin, Det: Detector(i)}
		}
		if cfg.MaxCount >= 0 && int64(n) > int64(cfg.MaxCount) {
			return Verdict{Reason: AboveMax, Det: Detector(i)}
		}
	}
	return Verdict{Reason: Accepted}
}
