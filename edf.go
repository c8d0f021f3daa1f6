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
	"strconv"
	"strings"
	"time"

	"github.com/OpenPSG/xdf/internal/convert"
)

// edfFormat reads and writes EDF files, and BDF files when bdf is set.
// Both share the same ASCII header layout and differ in sample width.
type edfFormat struct {
	bdf bool
}

// edfChannel holds the EDF specific channel fields.
type edfChannel struct {
	reserved string // Reserved for future use
}

func (e *edfFormat) format() Format {
	if e.bdf {
		return FormatBDF
	}
	return FormatEDF
}

func (e *edfFormat) supported() convert.Support {
	return convert.SupportOf(e.defaultType())
}

func (e *edfFormat) defaultType() Type {
	if e.bdf {
		return Int24
	}
	return Int16
}

func (e *edfFormat) hasEvents() bool { return false }

func (e *edfFormat) newFile() any { return nil }

func (e *edfFormat) newChannel() any { return edfChannel{} }

func (e *edfFormat) readEvents(*File) error { return nil }

func (e *edfFormat) readHeader(f *File, r io.Reader) error {
	b := make([]byte, 256)
	if _, err := io.ReadFull(r, b); err != nil {
		return fmt.Errorf("%w: error reading header: %w", ErrFormat, err)
	}

	// Parse fields based on EDF/EDF+ specifications
	f.cfg.subject = strings.TrimSpace(string(b[8:88]))
	f.cfg.session = strings.TrimSpace(string(b[88:168]))

	start, err := parseEDFTime(strings.TrimSpace(string(b[168:176])), strings.TrimSpace(string(b[176:184])))
	if err != nil {
		return fmt.Errorf("%w: error parsing start time: %w", ErrFormat, err)
	}
	f.cfg.start = start

	headerBytes, err := parseInt(b[184:192])
	if err != nil {
		return fmt.Errorf("%w: error parsing header bytes: %w", ErrFormat, err)
	}

	numDataRecords, err := parseInt(b[236:244])
	if err != nil {
		return fmt.Errorf("%w: error parsing number of data records: %w", ErrFormat, err)
	}
	f.records.Store(int64(numDataRecords))

	duration, err := parseFloat(b[244:252])
	if err != nil || duration <= 0 {
		return fmt.Errorf("%w: invalid data record duration %q", ErrFormat, strings.TrimSpace(string(b[244:252])))
	}
	f.cfg.recordDuration = duration

	signalCount, err := parseInt(b[252:256])
	if err != nil || signalCount < 0 {
		return fmt.Errorf("%w: invalid signal count %q", ErrFormat, strings.TrimSpace(string(b[252:256])))
	}
	if headerBytes != 256*(signalCount+1) {
		return fmt.Errorf("%w: header size %d does not match %d signals", ErrFormat, headerBytes, signalCount)
	}
	if err := checkHeaderSize(f, int64(headerBytes)); err != nil {
		return err
	}
	f.headerSize = headerBytes

	// Read signal headers, one field of every signal at a time.
	labels, err := readFields(r, signalCount, 16)
	if err != nil {
		return err
	}
	transducers, err := readFields(r, signalCount, 80)
	if err != nil {
		return err
	}
	units, err := readFields(r, signalCount, 8)
	if err != nil {
		return err
	}
	physMins, err := readFields(r, signalCount, 8)
	if err != nil {
		return err
	}
	physMaxs, err := readFields(r, signalCount, 8)
	if err != nil {
		return err
	}
	digMins, err := readFields(r, signalCount, 8)
	if err != nil {
		return err
	}
	digMaxs, err := readFields(r, signalCount, 8)
	if err != nil {
		return err
	}
	prefilters, err := readFields(r, signalCount, 80)
	if err != nil {
		return err
	}
	samples, err := readFields(r, signalCount, 8)
	if err != nil {
		return err
	}
	reserved, err := readFields(r, signalCount, 32)
	if err != nil {
		return err
	}

	for i := 0; i < signalCount; i++ {
		ch := f.newChannel()
		ch.cfg.label = labels[i]
		ch.cfg.transducer = transducers[i]
		ch.cfg.unit = units[i]
		ch.cfg.prefiltering = prefilters[i]
		ch.cfg.stored = e.defaultType()
		ch.priv = edfChannel{reserved: reserved[i]}

		values := []struct {
			s   string
			dst *float64
		}{
			{physMins[i], &ch.cfg.physicalMin},
			{physMaxs[i], &ch.cfg.physicalMax},
			{digMins[i], &ch.cfg.digitalMin},
			{digMaxs[i], &ch.cfg.digitalMax},
		}
		for _, v := range values {
			if *v.dst, err = strconv.ParseFloat(v.s, 64); err != nil {
				return fmt.Errorf("%w: signal %d: %w", ErrFormat, i, err)
			}
		}

		n, err := strconv.Atoi(samples[i])
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: signal %d: invalid samples per record %q", ErrFormat, i, samples[i])
		}
		if i == 0 {
			f.cfg.samplesPerRecord = n
		} else if n != f.cfg.samplesPerRecord {
			return fmt.Errorf("%w: signal %d has %d samples per record, expected %d",
				ErrFormat, i, n, f.cfg.samplesPerRecord)
		}
	}

	return nil
}

// readFields reads n fixed width ASCII fields.
func readFields(r io.Reader, n, width int) ([]string, error) {
	fields := make([]string, n)
	b := make([]byte, width)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, fmt.Errorf("%w: error reading signal headers: %w", ErrFormat, err)
		}
		fields[i] = trimField(b)
	}
	return fields, nil
}

// trimField strips the space or NUL padding of a fixed width field.
func trimField(b []byte) string {
	return strings.Trim(string(b), " \x00")
}

func (e *edfFormat) writeHeader(f *File) error {
	// Rewind to the beginning of the file.
	if _, err := f.s.Seek(0, io.SeekStart); err != nil {
		return err
	}

	writer := bufio.NewWriter(f.w)
	put := func(s string, width int) {
		if len(s) > width {
			s = s[:width]
		}
		_, _ = fmt.Fprintf(writer, "%-*s", width, s)
	}

	// Write version, patient and recording IDs
	if e.bdf {
		put("\xffBIOSEMI", 8)
	} else {
		put("0", 8)
	}
	put(f.cfg.subject, 80)
	put(f.cfg.session, 80)

	// Write start date and time
	put(f.cfg.start.Format("02.01.06"), 8)
	put(f.cfg.start.Format("15.04.05"), 8)

	// Write header bytes, data records, etc.
	f.headerSize = 256 + len(f.channels)*256
	put(strconv.Itoa(f.headerSize), 8)
	if e.bdf {
		put("24BIT", 44)
	} else {
		put("", 44)
	}
	put(strconv.FormatInt(f.records.Load(), 10), 8)
	put(formatNumber(f.cfg.recordDuration, 8), 8)
	put(strconv.Itoa(len(f.channels)), 4)

	// Write signal details
	for _, ch := range f.channels {
		put(ch.cfg.label, 16)
	}
	for _, ch := range f.channels {
		put(ch.cfg.transducer, 80)
	}
	for _, ch := range f.channels {
		put(ch.cfg.unit, 8)
	}
	for _, ch := range f.channels {
		put(formatNumber(ch.cfg.physicalMin, 8), 8)
	}
	for _, ch := range f.channels {
		put(formatNumber(ch.cfg.physicalMax, 8), 8)
	}
	for _, ch := range f.channels {
		put(strconv.Itoa(int(ch.cfg.digitalMin)), 8)
	}
	for _, ch := range f.channels {
		put(strconv.Itoa(int(ch.cfg.digitalMax)), 8)
	}
	for _, ch := range f.channels {
		put(ch.cfg.prefiltering, 80)
	}
	for range f.channels {
		put(strconv.Itoa(f.cfg.samplesPerRecord), 8)
	}
	for _, ch := range f.channels {
		put(ch.priv.(edfChannel).reserved, 32)
	}

	// Ensure all data is flushed to the underlying writer
	return writer.Flush()
}

// finalize rewrites the header with the number of records written.
func (e *edfFormat) finalize(f *File) error {
	return e.writeHeader(f)
}

func (e *edfFormat) setField(f *File, ch *Channel, field Field, v any, res error) error {
	if res != nil && !errors.Is(res, ErrUnknownField) {
		return res
	}

	if ch == nil {
		switch field {
		case FieldSubject, FieldSession:
			if err := checkLength(v, 80); err != nil {
				return err
			}
		case FieldRecordDuration:
			if err := checkNumber(v.(float64), 8); err != nil {
				return err
			}
		}
		return res
	}

	switch field {
	case FieldLabel:
		return errors.Join(res, checkLength(v, 16))
	case FieldUnit:
		return errors.Join(res, checkLength(v, 8))
	case FieldTransducer, FieldPrefiltering:
		return errors.Join(res, checkLength(v, 80))
	case FieldPhysicalMin, FieldPhysicalMax:
		return errors.Join(res, checkNumber(v.(float64), 8))
	case FieldReserved:
		if err := checkLength(v, 32); err != nil {
			return err
		}
		p := ch.priv.(edfChannel)
		p.reserved = v.(string)
		ch.priv = p
		return nil
	}
	return res
}

func (e *edfFormat) getField(f *File, ch *Channel, field Field, v any, res error) (any, error) {
	if ch != nil && field == FieldReserved {
		return ch.priv.(edfChannel).reserved, nil
	}
	return v, res
}

// parseEDFTime parses the dd.mm.yy and hh.mm.ss fields. Two digit years
// from 85 on are in the 1900s.
func parseEDFTime(dateStr, timeStr string) (time.Time, error) {
	startDate, err := time.Parse("02.01.06", dateStr)
	if err != nil {
		return time.Time{}, err
	}
	startTime, err := time.Parse("15.04.05", timeStr)
	if err != nil {
		return time.Time{}, err
	}

	year := startDate.Year() % 100
	if year >= 85 {
		year += 1900
	} else {
		year += 2000
	}
	return time.Date(year, startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC), nil
}

// formatNumber renders val in at most width characters, dropping decimals
// as needed.
func formatNumber(val float64, width int) string {
	s := strconv.FormatFloat(val, 'f', -1, 64)
	for prec := width; len(s) > width && prec >= 0; prec-- {
		s = strconv.FormatFloat(val, 'f', prec, 64)
		if strings.Contains(s, ".") {
			s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
		}
	}
	return s
}

// checkNumber vetoes values whose integer part needs more than width
// characters.
func checkNumber(val float64, width int) error {
	if len(strconv.FormatFloat(val, 'f', 0, 64)) > width {
		return fmt.Errorf("%w: %g does not fit in %d characters", ErrOutOfRange, val, width)
	}
	return nil
}

func parseFloat(b []byte) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
}

func parseInt(b []byte) (int, error) {
	return strconv.Atoi(strings.TrimSpace(string(b)))
}
