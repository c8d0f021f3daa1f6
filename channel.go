// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package xdf

import "time"

// channelConfig holds the settings shared by every format.
type channelConfig struct {
	label        string  // Label of the signal (e.g., EEG Fpz-Cz)
	unit         string  // Physical dimension (e.g., uV, mV)
	transducer   string  // Type of transducer used
	prefiltering string  // Pre-filtering information
	physicalMin  float64 // Minimum physical value
	physicalMax  float64 // Maximum physical value
	digitalMin   float64 // Minimum digital value
	digitalMax   float64 // Maximum digital value
	stored       Type    // Type of the samples on disk

	memory  Type // Type of the samples in the caller's arrays
	array   int  // Index of the caller's array, -1 if excluded
	offset  int  // Byte offset within a sample of the array
	digital bool // Samples in memory are digital values, not scaled
}

// Channel is one signal of a recording.
type Channel struct {
	file  *File
	index int
	cfg   channelConfig
	priv  any
}

// Index returns the position of the channel in the file.
func (ch *Channel) Index() int {
	return ch.index
}

// Label returns the label of the channel.
func (ch *Channel) Label() string {
	return ch.cfg.label
}

// Set changes one field of the channel. On failure the channel is left as
// it was.
func (ch *Channel) Set(field Field, value any) error {
	return ch.file.set(ch, field, value)
}

// Configure applies settings in order and stops at the first failure.
// Settings before the failing one stay applied.
func (ch *Channel) Configure(settings ...Setting) error {
	for _, s := range settings {
		if err := ch.Set(s.Field, s.Value); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value of a field.
func (ch *Channel) Get(field Field) (any, error) {
	return ch.file.get(ch, field)
}

// GetString returns the value of a string field.
func (ch *Channel) GetString(field Field) (string, error) {
	return getAs[string](ch.Get(field))
}

// GetFloat returns the value of a floating point field.
func (ch *Channel) GetFloat(field Field) (float64, error) {
	return getAs[float64](ch.Get(field))
}

// GetInt returns the value of an integer field.
func (ch *Channel) GetInt(field Field) (int, error) {
	return getAs[int](ch.Get(field))
}

// GetType returns the value of a sample type field.
func (ch *Channel) GetType(field Field) (Type, error) {
	return getAs[Type](ch.Get(field))
}

// GetBool returns the value of a boolean field.
func (ch *Channel) GetBool(field Field) (bool, error) {
	return getAs[bool](ch.Get(field))
}

// GetTime returns the value of a time field.
func (ch *Channel) GetTime(field Field) (time.Time, error) {
	return getAs[time.Time](ch.Get(field))
}
