// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package xdf

import (
	"fmt"
	"math"

	"github.com/OpenPSG/xdf/internal/events"
)

// Event is an annotation of the recording. Type is the index returned by
// AddEventType; Onset and Duration are in seconds.
type Event = events.Event

// AddEventType registers an event type and returns its index. Adding the
// same code and label again returns the same index. Only GDF files carry
// events.
func (f *File) AddEventType(code int, label string) (int, error) {
	if !f.ops.hasEvents() {
		return -1, fmt.Errorf("%w: %s has no event table", ErrUnsupported, f.Format())
	}
	if !f.mode.writing() {
		return -1, ErrMode
	}
	if code < 0 || code > math.MaxUint16 {
		return -1, fmt.Errorf("%w: event code %d", ErrOutOfRange, code)
	}
	return f.events.AddType(code, label), nil
}

// EventType returns the code and label of the i-th event type.
func (f *File) EventType(i int) (code int, label string, err error) {
	typ, ok := f.events.Type(i)
	if !ok {
		return 0, "", fmt.Errorf("%w: event type %d of %d", ErrRange, i, f.events.NumTypes())
	}
	return typ.Code, typ.Label, nil
}

// NumEventTypes returns the number of registered event types.
func (f *File) NumEventTypes() int {
	return f.events.NumTypes()
}

// AddEvent appends an event. Events may be added until the file is closed.
func (f *File) AddEvent(typ int, onset, duration float64) error {
	if !f.ops.hasEvents() {
		return fmt.Errorf("%w: %s has no event table", ErrUnsupported, f.Format())
	}
	if !f.mode.writing() {
		return ErrMode
	}
	if !(onset >= 0) || !(duration >= 0) || math.IsInf(onset, 0) || math.IsInf(duration, 0) {
		return fmt.Errorf("%w: event at %g lasting %g", ErrInvalidValue, onset, duration)
	}
	if err := f.events.Add(Event{Type: typ, Onset: onset, Duration: duration}); err != nil {
		return fmt.Errorf("%w: event type %d", ErrRange, typ)
	}
	return nil
}

// Event returns the i-th event in insertion order.
func (f *File) Event(i int) (Event, error) {
	e, ok := f.events.Get(i)
	if !ok {
		return Event{}, fmt.Errorf("%w: event %d of %d", ErrRange, i, f.events.Len())
	}
	return e, nil
}

// NumEvents returns the number of events.
func (f *File) NumEvents() int {
	return f.events.Len()
}
