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
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/OpenPSG/xdf/internal/convert"
)

// Set changes one field of the file. On failure the file is left as it
// was.
func (f *File) Set(field Field, value any) error {
	return f.set(nil, field, value)
}

// Configure applies settings in order and stops at the first failure.
// Settings before the failing one stay applied.
func (f *File) Configure(settings ...Setting) error {
	for _, s := range settings {
		if err := f.Set(s.Field, s.Value); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value of a file field.
func (f *File) Get(field Field) (any, error) {
	return f.get(nil, field)
}

// GetString returns the value of a string field.
func (f *File) GetString(field Field) (string, error) {
	return getAs[string](f.Get(field))
}

// GetFloat returns the value of a floating point field.
func (f *File) GetFloat(field Field) (float64, error) {
	return getAs[float64](f.Get(field))
}

// GetInt returns the value of an integer field.
func (f *File) GetInt(field Field) (int, error) {
	return getAs[int](f.Get(field))
}

// GetTime returns the value of a time field.
func (f *File) GetTime(field Field) (time.Time, error) {
	return getAs[time.Time](f.Get(field))
}

// set runs the two handler layers for a file (ch == nil) or channel field
// and rolls back on failure.
func (f *File) set(ch *Channel, field Field, value any) error {
	info, ok := fieldInfos[field]
	if !ok || info.channel != (ch != nil) {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	if f.ready {
		return ErrPrepared
	}
	if info.readOnly || (f.mode == ModeRead && !info.memory) {
		return fmt.Errorf("%w: %s", ErrReadOnly, field)
	}
	v, err := normalize(info.kind, value)
	if err != nil {
		return fmt.Errorf("error setting %s: %w", field, err)
	}

	if ch != nil {
		saved, savedPriv := ch.cfg, ch.priv
		err = f.ops.setField(f, ch, field, v, ch.setDefault(field, v))
		if err != nil {
			ch.cfg, ch.priv = saved, savedPriv
		}
	} else {
		saved, savedPriv := f.cfg, f.priv
		err = f.ops.setField(f, nil, field, v, f.setDefault(field, v))
		if err != nil {
			f.cfg, f.priv = saved, savedPriv
		}
	}
	if err != nil {
		return fmt.Errorf("error setting %s: %w", field, err)
	}
	return nil
}

func (f *File) get(ch *Channel, field Field) (any, error) {
	info, ok := fieldInfos[field]
	if !ok || info.channel != (ch != nil) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	var v any
	var err error
	if ch != nil {
		v, err = ch.getDefault(field)
	} else {
		v, err = f.getDefault(field)
	}
	return f.ops.getField(f, ch, field, v, err)
}

func (ch *Channel) setDefault(field Field, v any) error {
	c := &ch.cfg
	switch field {
	case FieldLabel:
		c.label = v.(string)
	case FieldUnit:
		c.unit = v.(string)
	case FieldTransducer:
		c.transducer = v.(string)
	case FieldPrefiltering:
		c.prefiltering = v.(string)
	case FieldStoredType:
		t := v.(Type)
		if !ch.file.ops.supported()[t] {
			return fmt.Errorf("%w: %s", ErrUnsupported, t)
		}
		c.stored = t
		c.digitalMin, c.digitalMax = t.Info().Min, t.Info().Max
	case FieldDigitalMin, FieldDigitalMax:
		d := v.(float64)
		if !c.stored.InRange(d) {
			return fmt.Errorf("%w: %g does not fit %s", ErrOutOfRange, d, c.stored)
		}
		if field == FieldDigitalMin {
			c.digitalMin = d
		} else {
			c.digitalMax = d
		}
	case FieldMemoryType:
		c.memory = v.(Type)
	case FieldPhysicalMin, FieldPhysicalMax:
		p := v.(float64)
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: %g", ErrInvalidValue, p)
		}
		if !c.digital && !c.memory.InRange(p) {
			return fmt.Errorf("%w: %g does not fit %s", ErrOutOfRange, p, c.memory)
		}
		if field == FieldPhysicalMin {
			c.physicalMin = p
		} else {
			c.physicalMax = p
		}
	case FieldArrayIndex:
		i := v.(int)
		// Excluding a channel only makes sense when reading.
		if i < -1 || (i == -1 && ch.file.mode.writing()) {
			return fmt.Errorf("%w: array index %d", ErrInvalidValue, i)
		}
		c.array = i
	case FieldArrayOffset:
		o := v.(int)
		if o < 0 {
			return fmt.Errorf("%w: array offset %d", ErrInvalidValue, o)
		}
		c.offset = o
	case FieldArrayDigital:
		c.digital = v.(bool)
	default:
		return ErrUnknownField
	}
	return nil
}

func (ch *Channel) getDefault(field Field) (any, error) {
	c := &ch.cfg
	switch field {
	case FieldLabel:
		return c.label, nil
	case FieldUnit:
		return c.unit, nil
	case FieldTransducer:
		return c.transducer, nil
	case FieldPrefiltering:
		return c.prefiltering, nil
	case FieldStoredType:
		return c.stored, nil
	case FieldDigitalMin:
		return c.digitalMin, nil
	case FieldDigitalMax:
		return c.digitalMax, nil
	case FieldMemoryType:
		return c.memory, nil
	case FieldPhysicalMin:
		return c.physicalMin, nil
	case FieldPhysicalMax:
		return c.physicalMax, nil
	case FieldArrayIndex:
		return c.array, nil
	case FieldArrayOffset:
		return c.offset, nil
	case FieldArrayDigital:
		return c.digital, nil
	}
	return nil, ErrUnknownField
}

func (f *File) setDefault(field Field, v any) error {
	c := &f.cfg
	switch field {
	case FieldRecordDuration:
		d := v.(float64)
		if !(d > 0) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: record duration %g", ErrInvalidValue, d)
		}
		c.recordDuration = d
	case FieldSamplesPerRecord:
		n := v.(int)
		if n <= 0 {
			return fmt.Errorf("%w: %d samples per record", ErrInvalidValue, n)
		}
		c.samplesPerRecord = n
	case FieldSamplingFrequency:
		fs := v.(int)
		n := int(math.Round(float64(fs) * c.recordDuration))
		if fs <= 0 || n <= 0 {
			return fmt.Errorf("%w: sampling frequency %d", ErrInvalidValue, fs)
		}
		c.samplesPerRecord = n
	case FieldRecordingTime:
		c.start = v.(time.Time)
	case FieldSubject:
		c.subject = v.(string)
	case FieldSession:
		c.session = v.(string)
	default:
		return ErrUnknownField
	}
	return nil
}

func (f *File) getDefault(field Field) (any, error) {
	c := &f.cfg
	switch field {
	case FieldRecordDuration:
		return c.recordDuration, nil
	case FieldSamplesPerRecord:
		return c.samplesPerRecord, nil
	case FieldSamplingFrequency:
		return int(math.Round(float64(c.samplesPerRecord) / c.recordDuration)), nil
	case FieldRecordingTime:
		return c.start, nil
	case FieldSubject:
		return c.subject, nil
	case FieldSession:
		return c.session, nil
	case FieldNumChannels:
		return len(f.channels), nil
	case FieldNumRecords:
		return f.NumRecords(), nil
	case FieldNumEvents:
		return f.events.Len(), nil
	case FieldFormat:
		return f.ops.format(), nil
	case FieldHeaderSize:
		return f.headerSize, nil
	}
	return nil, ErrUnknownField
}

// CopyConfig copies the configuration of src into ch. Between channels of
// the same format the whole configuration is copied as is. Otherwise every
// field src knows is replayed onto ch, the stored type being replaced by
// the closest one the format of ch supports.
func (ch *Channel) CopyConfig(src *Channel) error {
	f := ch.file
	if !f.mode.writing() {
		return ErrMode
	}
	if f.ready {
		return ErrPrepared
	}

	if f.ops.format() == src.file.ops.format() {
		ch.cfg = src.cfg
		ch.priv = src.priv
		if ch.cfg.array < 0 {
			ch.cfg.array = 0
		}
		return nil
	}

	for _, field := range channelFields {
		v, err := src.Get(field)
		if errors.Is(err, ErrUnknownField) {
			continue
		} else if err != nil {
			return err
		}

		switch field {
		case FieldStoredType:
			v = convert.Closest(v.(Type), f.ops.supported())
		case FieldArrayIndex:
			if v.(int) < 0 {
				continue
			}
		}

		err = ch.Set(field, v)
		switch {
		case err == nil, errors.Is(err, ErrUnknownField):
		case (field == FieldDigitalMin || field == FieldDigitalMax) && errors.Is(err, ErrOutOfRange):
			// Keep the full range of the substituted stored type.
		default:
			return err
		}
	}
	return nil
}

// CopyConfig copies the file level configuration of src into f. Channels
// are not copied; use Channel.CopyConfig on channels added to f.
func (f *File) CopyConfig(src *File) error {
	if !f.mode.writing() {
		return ErrMode
	}
	if f.ready {
		return ErrPrepared
	}

	if f.ops.format() == src.ops.format() {
		f.cfg = src.cfg
		f.priv = src.priv
		return nil
	}

	for _, field := range fileFields {
		v, err := src.Get(field)
		if errors.Is(err, ErrUnknownField) {
			continue
		} else if err != nil {
			return err
		}
		if err := f.Set(field, v); err != nil && !errors.Is(err, ErrUnknownField) {
			return err
		}
	}
	return nil
}
