// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb // import "github.com/go-daq/evb"

import (
	"fmt"
	"sort"
	"strings"
)

// Event is a built raw event.
// Members reference digis held by the time-slices the event was built from.
type Event struct {
	Slice  uint64 // index of the slice the seed started in
	Index  uint64 // run-wide event number
	Time   int64  // representative time: start of the window
	TStart int64
	TEnd   int64

	Members map[Detector][]DigiRef

	arenas   []*TimeSlice
	resolved map[Detector][]Digi // member digis of decoded events
}

// Size returns the number of member digis.
func (evt *Event) Size() int {
	n := 0
	for _, refs := range evt.Members {
		n += len(refs)
	}
	return n
}

// Digi resolves a member reference.
// Digi panics if ref does not belong to one of the slices of the event.
func (evt *Event) Digi(det Detector, ref DigiRef) Digi {
	if digis, ok := evt.resolved[det]; ok {
		for i, r := range evt.Members[det] {
			if r == ref {
				return digis[i]
			}
		}
	}
	for _, ts := range evt.arenas {
		if ts.Index == ref.Slice {
			return ts.Digi(det, ref.Offset)
		}
	}
	panic(fmt.Errorf("evb: digi ref %v not in event %d", ref, evt.Index))
}

// Digis resolves the members of det, in time order.
func (evt *Event) Digis(det Detector) []Digi {
	refs := evt.Members[det]
	if len(refs) == 0 {
		return nil
	}
	if digis, ok := evt.resolved[det]; ok {
		return digis
	}
	out := make([]Digi, len(refs))
	for i, ref := range refs {
		out[i] = evt.Digi(det, ref)
	}
	return out
}

func (evt Event) String() string {
	o := new(strings.Builder)
	fmt.Fprintf(o, "Event{slice=%d, evt=%d, t=%d, [%d, %d]", evt.Slice, evt.Index, evt.Time, evt.TStart, evt.TEnd)
	dets := make([]Detector, 0, len(evt.Members))
	for det := range evt.Members {
		dets = append(dets, det)
	}
	sort.Slice(dets, func(i, j int) bool { return dets[i] < dets[j] })
	for _, det := range dets {
		fmt.Fprintf(o, ", %v:%v", det, evt.Members[det])
	}
	o.WriteString("}")
	return o.String()
}

// EventAssembler turns accepted seeds into events.
type EventAssembler struct {
	next uint64 // next event number
}

// Assemble builds the event of an accepted seed.
// Only references are built: payloads are never copied.
func (asm *EventAssembler) Assemble(s *Seed) Event {
	evt := Event{
		Slice:   s.Slice,
		Index:   asm.next,
		Time:    s.TStart,
		TStart:  s.TStart,
		TEnd:    s.TEnd,
		Members: make(map[Detector][]DigiRef),
		arenas:  s.arenas,
	}
	asm.next++

	for i, refs := range s.members {
		if len(refs) == 0 {
			continue
		}
		evt.Members[Detector(i)] = refs
	}
	return evt
}
