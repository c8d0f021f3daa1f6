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
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/OpenPSG/xdf/internal/convert"
)

// gdf2Header is the fixed part of a GDF 2.x header.
type gdf2Header struct {
	Version        [8]byte
	Patient        [66]byte
	Reserved       [10]byte
	Habits         uint8
	Weight         uint8 // kg, 0 unknown
	Height         uint8 // cm, 0 unknown
	Profile        uint8 // Gender in bits 0-1, handedness in bits 2-3
	Recording      [64]byte
	Location       [4]uint32
	Start          uint64
	Birthday       uint64
	HeaderBlocks   uint16
	Classification [6]byte
	Equipment      uint64
	Reserved2      [6]byte
	HeadSize       [3]uint16
	RefPos         [3]float32
	GroundPos      [3]float32
	NumRecords     int64
	Duration       [2]uint32
	NumSignals     uint16
	Reserved3      [2]byte
}

type gdf2File struct {
	equipment  int
	gender     int
	handedness int
	height     float64
	weight     float64
	birthday   time.Time
}

type gdf2Channel struct {
	lowpass   float64 // Hz
	highpass  float64 // Hz
	notch     float64 // Hz
	impedance float64 // Ohm, NaN if unknown
}

var gdf2Limits = gdfLimits{subject: 66, session: 64, unit: 6, prefiltering: 68}

type gdf2Format struct{}

func (g *gdf2Format) format() Format { return FormatGDF2 }

func (g *gdf2Format) supported() convert.Support {
	var s convert.Support
	for t := range gdfTypeCodes {
		s[t] = true
	}
	return s
}

func (g *gdf2Format) defaultType() Type { return Int32 }

func (g *gdf2Format) hasEvents() bool { return true }

func (g *gdf2Format) newFile() any { return gdf2File{} }

func (g *gdf2Format) newChannel() any {
	return gdf2Channel{
		lowpass:   math.NaN(),
		highpass:  math.NaN(),
		notch:     math.NaN(),
		impedance: math.NaN(),
	}
}

func (g *gdf2Format) readHeader(f *File, r io.Reader) error {
	var hdr gdf2Header
	if err := readLE(r, &hdr); err != nil {
		return err
	}

	var err error
	f.cfg.subject = trimField(hdr.Patient[:])
	f.cfg.session = trimField(hdr.Recording[:])
	f.cfg.start = decodeGDFTime(hdr.Start)
	if f.cfg.recordDuration, err = fromFraction(hdr.Duration); err != nil {
		return err
	}
	f.records.Store(hdr.NumRecords)
	f.priv = gdf2File{
		equipment:  int(hdr.Equipment),
		gender:     int(hdr.Profile & 0x3),
		handedness: int(hdr.Profile >> 2 & 0x3),
		height:     float64(hdr.Height),
		weight:     float64(hdr.Weight),
		birthday:   decodeGDFTime(hdr.Birthday),
	}

	ns := int(hdr.NumSignals)
	if int(hdr.HeaderBlocks) < ns+1 {
		return fmt.Errorf("%w: %d header blocks for %d signals", ErrFormat, hdr.HeaderBlocks, ns)
	}
	if err := checkHeaderSize(f, 256*int64(hdr.HeaderBlocks)); err != nil {
		return err
	}
	f.headerSize = 256 * int(hdr.HeaderBlocks)

	labels, err := readFields(r, ns, 16)
	if err != nil {
		return err
	}
	transducers, err := readFields(r, ns, 80)
	if err != nil {
		return err
	}
	units, err := readFields(r, ns, 6)
	if err != nil {
		return err
	}
	unitCodes := make([]uint16, ns)
	physMins := make([]float64, ns)
	physMaxs := make([]float64, ns)
	digMins := make([]float64, ns)
	digMaxs := make([]float64, ns)
	for _, v := range []any{unitCodes, physMins, physMaxs, digMins, digMaxs} {
		if err := readLE(r, v); err != nil {
			return err
		}
	}
	prefilters, err := readFields(r, ns, 68)
	if err != nil {
		return err
	}
	lowpass := make([]float32, ns)
	highpass := make([]float32, ns)
	notch := make([]float32, ns)
	samples := make([]uint32, ns)
	codes := make([]uint32, ns)
	positions := make([][3]float32, ns)
	sensors := make([][20]byte, ns)
	for _, v := range []any{lowpass, highpass, notch, samples, codes, positions, sensors} {
		if err := readLE(r, v); err != nil {
			return err
		}
	}

	for i := 0; i < ns; i++ {
		t, ok := gdfType(codes[i])
		if !ok {
			return fmt.Errorf("%w: signal %d has unknown type %d", ErrFormat, i, codes[i])
		}
		if i == 0 {
			f.cfg.samplesPerRecord = int(samples[0])
		} else if int(samples[i]) != f.cfg.samplesPerRecord {
			return fmt.Errorf("%w: signal %d has %d samples per record, expected %d",
				ErrFormat, i, samples[i], f.cfg.samplesPerRecord)
		}

		ch := f.newChannel()
		ch.cfg.label = labels[i]
		ch.cfg.transducer = transducers[i]
		ch.cfg.unit = units[i]
		ch.cfg.prefiltering = prefilters[i]
		ch.cfg.physicalMin, ch.cfg.physicalMax = physMins[i], physMaxs[i]
		ch.cfg.digitalMin, ch.cfg.digitalMax = digMins[i], digMaxs[i]
		ch.cfg.stored = t
		ch.priv = gdf2Channel{
			lowpass:   float64(lowpass[i]),
			highpass:  float64(highpass[i]),
			notch:     float64(notch[i]),
			impedance: decodeImpedance(sensors[i][0]),
		}
	}
	if ns > 0 && f.cfg.samplesPerRecord == 0 {
		return fmt.Errorf("%w: no samples per record", ErrFormat)
	}
	return nil
}

func (g *gdf2Format) readEvents(f *File) error {
	return readGDFEvents(f, true)
}

func (g *gdf2Format) writeHeader(f *File) error {
	if _, err := f.s.Seek(0, io.SeekStart); err != nil {
		return err
	}
	ns := len(f.channels)
	f.headerSize = 256 * (ns + 1)

	p := f.priv.(gdf2File)
	hdr := gdf2Header{
		Weight:       uint8(math.Round(p.weight)),
		Height:       uint8(math.Round(p.height)),
		Profile:      uint8(p.gender&0x3 | (p.handedness&0x3)<<2),
		Start:        encodeGDFTime(f.cfg.start),
		Birthday:     encodeGDFTime(p.birthday),
		HeaderBlocks: uint16(ns + 1),
		Equipment:    uint64(p.equipment),
		NumRecords:   f.records.Load(),
		NumSignals:   uint16(ns),
	}
	copy(hdr.Version[:], "GDF 2.10")
	copy(hdr.Patient[:], f.cfg.subject)
	copy(hdr.Recording[:], f.cfg.session)
	hdr.Duration[0], hdr.Duration[1] = toFraction(f.cfg.recordDuration)

	writer := bufio.NewWriter(f.w)
	putLE(writer, &hdr)

	unitCodes := make([]uint16, ns)
	physMins := make([]float64, ns)
	physMaxs := make([]float64, ns)
	digMins := make([]float64, ns)
	digMaxs := make([]float64, ns)
	lowpass := make([]float32, ns)
	highpass := make([]float32, ns)
	notch := make([]float32, ns)
	samples := make([]uint32, ns)
	codes := make([]uint32, ns)
	positions := make([][3]float32, ns)
	// Sensor info slots, the first byte of which holds the impedance.
	sensors := make([][20]byte, ns)
	for i, ch := range f.channels {
		c := ch.priv.(gdf2Channel)
		physMins[i], physMaxs[i] = ch.cfg.physicalMin, ch.cfg.physicalMax
		digMins[i], digMaxs[i] = ch.cfg.digitalMin, ch.cfg.digitalMax
		lowpass[i], highpass[i], notch[i] = float32(c.lowpass), float32(c.highpass), float32(c.notch)
		samples[i] = uint32(f.cfg.samplesPerRecord)
		codes[i] = gdfTypeCodes[ch.cfg.stored]
		sensors[i][0] = encodeImpedance(c.impedance)
	}

	for _, ch := range f.channels {
		putString(writer, ch.cfg.label, 16)
	}
	for _, ch := range f.channels {
		putString(writer, ch.cfg.transducer, 80)
	}
	for _, ch := range f.channels {
		putString(writer, ch.cfg.unit, 6)
	}
	putLE(writer, unitCodes)
	putLE(writer, physMins)
	putLE(writer, physMaxs)
	putLE(writer, digMins)
	putLE(writer, digMaxs)
	for _, ch := range f.channels {
		putString(writer, ch.cfg.prefiltering, 68)
	}
	putLE(writer, lowpass)
	putLE(writer, highpass)
	putLE(writer, notch)
	putLE(writer, samples)
	putLE(writer, codes)
	putLE(writer, positions)
	putLE(writer, sensors)

	return writer.Flush()
}

func (g *gdf2Format) finalize(f *File) error {
	return finalizeGDF(f, g, true)
}

func (g *gdf2Format) setField(f *File, ch *Channel, field Field, v any, res error) error {
	if res != nil && !errors.Is(res, ErrUnknownField) {
		return res
	}
	if err := gdf2Limits.check(ch, field, v); err != nil {
		return err
	}
	if ch != nil {
		return g.setChannelField(ch, field, v, res)
	}

	p := f.priv.(gdf2File)
	var err error
	switch field {
	case FieldEquipmentID:
		p.equipment, err = checkID(v)
	case FieldGender:
		p.gender, err = checkProfile(v)
	case FieldHandedness:
		p.handedness, err = checkProfile(v)
	case FieldHeight:
		p.height, err = checkBodyMeasure(v)
	case FieldWeight:
		p.weight, err = checkBodyMeasure(v)
	case FieldBirthday:
		p.birthday = v.(time.Time)
	default:
		return res
	}
	if err != nil {
		return err
	}
	f.priv = p
	return nil
}

func (g *gdf2Format) setChannelField(ch *Channel, field Field, v any, res error) error {
	c := ch.priv.(gdf2Channel)
	switch field {
	case FieldLowpass:
		c.lowpass = v.(float64)
	case FieldHighpass:
		c.highpass = v.(float64)
	case FieldNotch:
		c.notch = v.(float64)
	case FieldImpedance:
		z := v.(float64)
		if z <= 0 || math.IsInf(z, 0) {
			return fmt.Errorf("%w: impedance %g", ErrInvalidValue, z)
		}
		c.impedance = z
	default:
		return res
	}
	ch.priv = c
	return nil
}

func (g *gdf2Format) getField(f *File, ch *Channel, field Field, v any, res error) (any, error) {
	if !errors.Is(res, ErrUnknownField) {
		return v, res
	}
	if ch != nil {
		c := ch.priv.(gdf2Channel)
		switch field {
		case FieldLowpass:
			return c.lowpass, nil
		case FieldHighpass:
			return c.highpass, nil
		case FieldNotch:
			return c.notch, nil
		case FieldImpedance:
			return c.impedance, nil
		}
		return v, res
	}

	p := f.priv.(gdf2File)
	switch field {
	case FieldEquipmentID:
		return p.equipment, nil
	case FieldGender:
		return p.gender, nil
	case FieldHandedness:
		return p.handedness, nil
	case FieldHeight:
		return p.height, nil
	case FieldWeight:
		return p.weight, nil
	case FieldBirthday:
		return p.birthday, nil
	}
	return v, res
}

// checkProfile validates a two bit code of the patient profile.
func checkProfile(v any) (int, error) {
	n := v.(int)
	if n < 0 || n > 3 {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}
	return n, nil
}

// checkBodyMeasure validates a height or weight stored in one byte.
func checkBodyMeasure(v any) (float64, error) {
	x := v.(float64)
	if !(x >= 0 && x < 255) {
		return 0, fmt.Errorf("%w: %g", ErrOutOfRange, x)
	}
	return x, nil
}

// encodeImpedance stores an impedance as 2^(x/8) Ohm.
func encodeImpedance(z float64) uint8 {
	if math.IsNaN(z) {
		return 255
	}
	x := math.Round(8 * math.Log2(z))
	return uint8(min(max(x, 0), 254))
}

func decodeImpedance(x uint8) float64 {
	if x == 255 {
		return math.NaN()
	}
	return math.Exp2(float64(x) / 8)
}
