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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// GDF data type codes.
var gdfTypeCodes = map[Type]uint32{
	Int8:    1,
	Uint8:   2,
	Int16:   3,
	Uint16:  4,
	Int32:   5,
	Uint32:  6,
	Int64:   7,
	Uint64:  8,
	Float32: 16,
	Float64: 17,
	Int24:   279,
	Uint24:  535,
}

func gdfType(code uint32) (Type, bool) {
	for t, c := range gdfTypeCodes {
		if c == code {
			return t, true
		}
	}
	return 0, false
}

// gdfLimits are the widths of the text slots of a GDF header.
type gdfLimits struct {
	subject      int
	session      int
	unit         int
	prefiltering int
}

func (l gdfLimits) check(ch *Channel, field Field, v any) error {
	if ch == nil {
		switch field {
		case FieldSubject:
			return checkLength(v, l.subject)
		case FieldSession:
			return checkLength(v, l.session)
		}
		return nil
	}
	switch field {
	case FieldLabel:
		return checkLength(v, 16)
	case FieldTransducer:
		return checkLength(v, 80)
	case FieldUnit:
		return checkLength(v, l.unit)
	case FieldPrefiltering:
		return checkLength(v, l.prefiltering)
	}
	return nil
}

// checkID validates an identifier stored as an unsigned 64-bit field.
func checkID(v any) (int, error) {
	id := v.(int)
	if id < 0 {
		return 0, fmt.Errorf("%w: identifier %d", ErrOutOfRange, id)
	}
	return id, nil
}

// putString writes s NUL padded to width bytes.
func putString(w io.Writer, s string, width int) {
	b := make([]byte, width)
	copy(b, s)
	_, _ = w.Write(b)
}

// putLE writes v little endian. Write errors stick to the bufio.Writer
// and surface at Flush.
func putLE(w io.Writer, v any) {
	_ = binary.Write(w, binary.LittleEndian, v)
}

func readLE(r io.Reader, v any) error {
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("%w: error reading header: %w", ErrFormat, err)
	}
	return nil
}

// toFraction approximates d by a fraction of 32-bit integers using its
// continued fraction expansion.
func toFraction(d float64) (num, den uint32) {
	h0, h1 := 0.0, 1.0
	k0, k1 := 1.0, 0.0
	x := d
	for i := 0; i < 64; i++ {
		a := math.Floor(x)
		h2, k2 := a*h1+h0, a*k1+k0
		if h2 > math.MaxUint32 || k2 > math.MaxUint32 {
			break
		}
		h0, h1, k0, k1 = h1, h2, k1, k2
		if math.Abs(h1/k1-d) <= 1e-12*d || x-a < 1e-12 {
			break
		}
		x = 1 / (x - a)
	}
	if k1 == 0 {
		return math.MaxUint32, 1
	}
	return uint32(h1), uint32(k1)
}

func fromFraction(d [2]uint32) (float64, error) {
	if d[0] == 0 || d[1] == 0 {
		return 0, fmt.Errorf("%w: invalid record duration %d/%d", ErrFormat, d[0], d[1])
	}
	return float64(d[0]) / float64(d[1]), nil
}

// gdfEpochDays is the day number of 1970-01-01 counted from year 0.
const gdfEpochDays = 719529

// encodeGDFTime packs t as days since year 0 in the upper 32 bits and
// the fraction of the day in the lower 32 bits. The zero time encodes
// as 0.
func encodeGDFTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	secs := t.Unix()
	days := secs / 86400
	if secs%86400 < 0 {
		days--
	}
	sod := float64(secs-days*86400) + float64(t.Nanosecond())/1e9
	frac := math.Min(math.Round(sod/86400*(1<<32)), math.MaxUint32)
	return uint64(days+gdfEpochDays)<<32 | uint64(frac)
}

// decodeGDFTime unpacks a GDF time, rounded to the microsecond.
func decodeGDFTime(v uint64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	days := int64(v>>32) - gdfEpochDays
	us := math.Round(float64(uint32(v)) / (1 << 32) * 86400e6)
	return time.Unix(days*86400, 0).Add(time.Duration(us) * time.Microsecond).UTC()
}

// channelScope extracts N from an event type label ending in "ch:N".
func channelScope(label string) (uint16, bool) {
	s := label
	if i := strings.LastIndexByte(s, ' '); i >= 0 {
		s = s[i+1:]
	}
	rest, ok := strings.CutPrefix(s, "ch:")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 16)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint16(n), true
}

// recordBytes is the size of one data record on disk.
func recordBytes(f *File) int64 {
	size := 0
	for _, ch := range f.channels {
		size += ch.cfg.stored.Size()
	}
	return int64(size) * int64(f.cfg.samplesPerRecord)
}

// samplingRate is the number of samples per second of every channel.
func samplingRate(f *File) float64 {
	return float64(f.cfg.samplesPerRecord) / f.cfg.recordDuration
}

// readGDFEvents loads the event table that follows the last record. A file
// ending right after its records has no events.
func readGDFEvents(f *File, v2 bool) error {
	n, rb := f.records.Load(), recordBytes(f)
	if n < 0 || (rb > 0 && n > (f.size-int64(f.headerSize))/rb) {
		return nil
	}
	pos := int64(f.headerSize) + n*rb
	remaining := f.size - pos - 8
	if _, err := f.s.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to event table: %w", err)
	}
	r := bufio.NewReader(f.r)

	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: error reading event table: %w", ErrFormat, err)
	}

	mode := hdr[0]
	var nev int
	var rate float64
	if v2 {
		nev = int(hdr[1]) | int(hdr[2])<<8 | int(hdr[3])<<16
		rate = float64(math.Float32frombits(binary.LittleEndian.Uint32(hdr[4:])))
	} else {
		rate = float64(uint32(hdr[1]) | uint32(hdr[2])<<8 | uint32(hdr[3])<<16)
		nev = int(binary.LittleEndian.Uint32(hdr[4:]))
	}
	if mode != 1 && mode != 3 {
		return fmt.Errorf("%w: unknown event table mode %d", ErrFormat, mode)
	}
	if !(rate > 0) {
		rate = samplingRate(f)
	}
	entry := int64(6)
	if mode == 3 {
		entry = 12
	}
	if int64(nev)*entry > remaining {
		return fmt.Errorf("%w: event table of %d events exceeds the %d bytes left", ErrFormat, nev, max(remaining, 0))
	}

	positions := make([]uint32, nev)
	types := make([]uint16, nev)
	if err := readLE(r, positions); err != nil {
		return err
	}
	if err := readLE(r, types); err != nil {
		return err
	}
	chans := make([]uint16, nev)
	durations := make([]uint32, nev)
	if mode == 3 {
		if err := readLE(r, chans); err != nil {
			return err
		}
		if err := readLE(r, durations); err != nil {
			return err
		}
	}

	for i := 0; i < nev; i++ {
		label := ""
		if chans[i] != 0 {
			label = "ch:" + strconv.Itoa(int(chans[i]))
		}
		typ := f.events.AddType(int(types[i]), label)
		if err := f.events.Add(Event{
			Type:     typ,
			Onset:    float64(positions[i]) / rate,
			Duration: float64(durations[i]) / rate,
		}); err != nil {
			return err
		}
	}
	f.log.Debug("Event table loaded", slog.Int("events", nev))
	return nil
}

// writeGDFEvents appends a mode 3 event table at the current position.
func writeGDFEvents(f *File, v2 bool) error {
	nev := f.events.Len()
	if nev == 0 {
		return nil
	}

	// Positions are expressed at the rate stored in the table, so that
	// they read back the same.
	rate := samplingRate(f)
	var hdr [8]byte
	hdr[0] = 3
	if v2 {
		if nev >= 1<<24 {
			return fmt.Errorf("%w: %d events", ErrOutOfRange, nev)
		}
		hdr[1], hdr[2], hdr[3] = byte(nev), byte(nev>>8), byte(nev>>16)
		rate = float64(float32(rate))
		binary.LittleEndian.PutUint32(hdr[4:], math.Float32bits(float32(rate)))
	} else {
		stored := uint32(min(math.Round(rate), 1<<24-1))
		hdr[1], hdr[2], hdr[3] = byte(stored), byte(stored>>8), byte(stored>>16)
		binary.LittleEndian.PutUint32(hdr[4:], uint32(nev))
		if stored > 0 {
			rate = float64(stored)
		}
	}

	positions := make([]uint32, nev)
	types := make([]uint16, nev)
	chans := make([]uint16, nev)
	durations := make([]uint32, nev)
	for i, e := range f.events.All() {
		t, _ := f.events.Type(e.Type)
		positions[i] = uint32(min(math.Round(e.Onset*rate), math.MaxUint32))
		durations[i] = uint32(min(math.Round(e.Duration*rate), math.MaxUint32))
		types[i] = uint16(t.Code)
		if n, ok := channelScope(t.Label); ok {
			chans[i] = n
		}
	}

	writer := bufio.NewWriter(f.w)
	_, _ = writer.Write(hdr[:])
	putLE(writer, positions)
	putLE(writer, types)
	putLE(writer, chans)
	putLE(writer, durations)
	return writer.Flush()
}

// finalizeGDF rewrites the header, then appends the event table after the
// last record.
func finalizeGDF(f *File, ops formatOps, v2 bool) error {
	if err := ops.writeHeader(f); err != nil {
		return err
	}
	end := int64(f.headerSize) + f.records.Load()*recordBytes(f)
	if _, err := f.s.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to event table: %w", err)
	}
	if err := writeGDFEvents(f, v2); err != nil {
		return fmt.Errorf("error writing event table: %w", err)
	}
	return nil
}
