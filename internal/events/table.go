// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package events implements the event table attached to a recording: a
// dictionary of event types and an append-only log of events.
package events

import (
	"errors"
	"iter"
)

var (
	// ErrUnknownType is returned when an event refers to a type that was
	// never registered.
	ErrUnknownType = errors.New("events: unknown event type")
)

// blockSize is the number of events held by one block of the log.
const blockSize = 256

// Type is an entry of the event type dictionary.
type Type struct {
	Code  int
	Label string
}

// Event is one annotation. Type is an index into the type dictionary,
// Onset and Duration are in seconds.
type Event struct {
	Type     int
	Onset    float64
	Duration float64
}

// Table is an event type dictionary plus the event log. The zero value is
// an empty table ready to use.
type Table struct {
	types  []Type
	blocks [][]Event
	count  int
}

// AddType registers an event type and returns its index. Registering the
// same code and label twice returns the existing index.
func (t *Table) AddType(code int, label string) int {
	for i, typ := range t.types {
		if typ.Code == code && typ.Label == label {
			return i
		}
	}
	t.types = append(t.types, Type{Code: code, Label: label})
	return len(t.types) - 1
}

// Type returns the event type at index i.
func (t *Table) Type(i int) (Type, bool) {
	if i < 0 || i >= len(t.types) {
		return Type{}, false
	}
	return t.types[i], true
}

// NumTypes returns the number of registered event types.
func (t *Table) NumTypes() int {
	return len(t.types)
}

// Add appends an event to the log.
func (t *Table) Add(e Event) error {
	if e.Type < 0 || e.Type >= len(t.types) {
		return ErrUnknownType
	}

	last := len(t.blocks) - 1
	if last < 0 || len(t.blocks[last]) == blockSize {
		t.blocks = append(t.blocks, make([]Event, 0, blockSize))
		last++
	}
	t.blocks[last] = append(t.blocks[last], e)
	t.count++
	return nil
}

// Get returns the i-th event in insertion order.
func (t *Table) Get(i int) (Event, bool) {
	if i < 0 || i >= t.count {
		return Event{}, false
	}
	return t.blocks[i/blockSize][i%blockSize], true
}

// Len returns the number of events in the log.
func (t *Table) Len() int {
	return t.count
}

// All iterates over the events in insertion order.
func (t *Table) All() iter.Seq2[int, Event] {
	return func(yield func(int, Event) bool) {
		i := 0
		for _, block := range t.blocks {
			for _, e := range block {
				if !yield(i, e) {
					return
				}
				i++
			}
		}
	}
}
