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

// gdf1Header is the fixed part of a GDF 1.x header.
type gdf1Header struct {
	Version     [8]byte
	Patient     [80]byte
	Recording   [80]byte
	Start       [16]byte // YYYYMMDDhhmmsscc
	HeaderBytes int64
	Equipment   uint64
	Laboratory  uint64
	Technician  uint64
	Reserved    [20]byte
	NumRecords  int64
	Duration    [2]uint32 // Numerator and denominator, in seconds
	NumSignals  uint32
}

type gdf1File struct {
	equipment  int
	laboratory int
	technician int
}

var gdf1Limits = gdfLimits{subject: 80, session: 80, unit: 8, prefiltering: 80}

type gdf1Format struct{}

func (g *gdf1Format) format() Format { return FormatGDF1 }

// supported excludes the types whose range does not fit the int64 digital
// range slots.
func (g *gdf1Format) supported() convert.Support {
	return convert.SupportOf(Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64)
}

func (g *gdf1Format) defaultType() Type { return Int32 }

func (g *gdf1Format) hasEvents() bool { return true }

func (g *gdf1Format) newFile() any { return gdf1File{} }

func (g *gdf1Format) newChannel() any { return nil }

func (g *gdf1Format) readHeader(f *File, r io.Reader) error {
	var hdr gdf1Header
	if err := readLE(r, &hdr); err != nil {
		return err
	}

	f.cfg.subject = trimField(hdr.Patient[:])
	f.cfg.session = trimField(hdr.Recording[:])
	start, err := parseGDF1Time(trimField(hdr.Start[:]))
	if err != nil {
		return fmt.Errorf("%w: error parsing start time: %w", ErrFormat, err)
	}
	f.cfg.start = start
	if f.cfg.recordDuration, err = fromFraction(hdr.Duration); err != nil {
		return err
	}
	f.records.Store(hdr.NumRecords)
	f.priv = gdf1File{
		equipment:  int(hdr.Equipment),
		laboratory: int(hdr.Laboratory),
		technician: int(hdr.Technician),
	}

	ns := int(hdr.NumSignals)
	if hdr.HeaderBytes < int64(256*(ns+1)) {
		return fmt.Errorf("%w: header size %d too small for %d signals", ErrFormat, hdr.HeaderBytes, ns)
	}
	if err := checkHeaderSize(f, hdr.HeaderBytes); err != nil {
		return err
	}
	f.headerSize = int(hdr.HeaderBytes)

	labels, err := readFields(r, ns, 16)
	if err != nil {
		return err
	}
	transducers, err := readFields(r, ns, 80)
	if err != nil {
		return err
	}
	units, err := readFields(r, ns, 8)
	if err != nil {
		return err
	}
	physMins := make([]float64, ns)
	physMaxs := make([]float64, ns)
	digMins := make([]int64, ns)
	digMaxs := make([]int64, ns)
	for _, v := range []any{physMins, physMaxs, digMins, digMaxs} {
		if err := readLE(r, v); err != nil {
			return err
		}
	}
	prefilters, err := readFields(r, ns, 80)
	if err != nil {
		return err
	}
	samples := make([]uint32, ns)
	codes := make([]uint32, ns)
	if err := readLE(r, samples); err != nil {
		return err
	}
	if err := readLE(r, codes); err != nil {
		return err
	}

	for i := 0; i < ns; i++ {
		t, ok := gdfType(codes[i])
		if !ok || t == Int24 || t == Uint24 {
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
		ch.cfg.digitalMin, ch.cfg.digitalMax = float64(digMins[i]), float64(digMaxs[i])
		ch.cfg.stored = t
	}
	if ns > 0 && f.cfg.samplesPerRecord == 0 {
		return fmt.Errorf("%w: no samples per record", ErrFormat)
	}
	return nil
}

func (g *gdf1Format) readEvents(f *File) error {
	return readGDFEvents(f, false)
}

func (g *gdf1Format) writeHeader(f *File) error {
	if _, err := f.s.Seek(0, io.SeekStart); err != nil {
		return err
	}
	ns := len(f.channels)
	f.headerSize = 256 * (ns + 1)

	p := f.priv.(gdf1File)
	hdr := gdf1Header{
		HeaderBytes: int64(f.headerSize),
		Equipment:   uint64(p.equipment),
		Laboratory:  uint64(p.laboratory),
		Technician:  uint64(p.technician),
		NumRecords:  f.records.Load(),
		NumSignals:  uint32(ns),
	}
	copy(hdr.Version[:], "GDF 1.25")
	copy(hdr.Patient[:], f.cfg.subject)
	copy(hdr.Recording[:], f.cfg.session)
	copy(hdr.Start[:], formatGDF1Time(f.cfg.start))
	hdr.Duration[0], hdr.Duration[1] = toFraction(f.cfg.recordDuration)

	writer := bufio.NewWriter(f.w)
	putLE(writer, &hdr)

	physMins := make([]float64, ns)
	physMaxs := make([]float64, ns)
	digMins := make([]int64, ns)
	digMaxs := make([]int64, ns)
	samples := make([]uint32, ns)
	codes := make([]uint32, ns)
	for i, ch := range f.channels {
		physMins[i], physMaxs[i] = ch.cfg.physicalMin, ch.cfg.physicalMax
		digMins[i], digMaxs[i] = clampInt64(ch.cfg.digitalMin), clampInt64(ch.cfg.digitalMax)
		samples[i] = uint32(f.cfg.samplesPerRecord)
		codes[i] = gdfTypeCodes[ch.cfg.stored]
	}

	for _, ch := range f.channels {
		putString(writer, ch.cfg.label, 16)
	}
	for _, ch := range f.channels {
		putString(writer, ch.cfg.transducer, 80)
	}
	for _, ch := range f.channels {
		putString(writer, ch.cfg.unit, 8)
	}
	putLE(writer, physMins)
	putLE(writer, physMaxs)
	putLE(writer, digMins)
	putLE(writer, digMaxs)
	for _, ch := range f.channels {
		putString(writer, ch.cfg.prefiltering, 80)
	}
	putLE(writer, samples)
	putLE(writer, codes)
	putString(writer, "", 32*ns)

	return writer.Flush()
}

func (g *gdf1Format) finalize(f *File) error {
	return finalizeGDF(f, g, false)
}

func (g *gdf1Format) setField(f *File, ch *Channel, field Field, v any, res error) error {
	if res != nil && !errors.Is(res, ErrUnknownField) {
		return res
	}
	if err := gdf1Limits.check(ch, field, v); err != nil {
		return err
	}
	if ch != nil {
		return res
	}

	p := f.priv.(gdf1File)
	var err error
	switch field {
	case FieldEquipmentID:
		p.equipment, err = checkID(v)
	case FieldLaboratoryID:
		p.laboratory, err = checkID(v)
	case FieldTechnicianID:
		p.technician, err = checkID(v)
	default:
		return res
	}
	if err != nil {
		return err
	}
	f.priv = p
	return nil
}

func (g *gdf1Format) getField(f *File, ch *Channel, field Field, v any, res error) (any, error) {
	if ch != nil || !errors.Is(res, ErrUnknownField) {
		return v, res
	}
	p := f.priv.(gdf1File)
	switch field {
	case FieldEquipmentID:
		return p.equipment, nil
	case FieldLaboratoryID:
		return p.laboratory, nil
	case FieldTechnicianID:
		return p.technician, nil
	}
	return v, res
}

func formatGDF1Time(t time.Time) string {
	return t.Format("20060102150405") + fmt.Sprintf("%02d", t.Nanosecond()/1e7)
}

// parseGDF1Time parses YYYYMMDDhhmmsscc, cc being hundredths of a second.
// An empty field is the zero time.
func parseGDF1Time(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if len(s) < 14 {
		return time.Time{}, fmt.Errorf("short start time %q", s)
	}
	t, err := time.Parse("20060102150405", s[:14])
	if err != nil {
		return time.Time{}, err
	}
	if len(s) >= 16 {
		var cc int
		if _, err := fmt.Sscanf(s[14:16], "%02d", &cc); err == nil {
			t = t.Add(time.Duration(cc) * 10 * time.Millisecond)
		}
	}
	return t, nil
}

func clampInt64(v float64) int64 {
	switch {
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(v)
}
