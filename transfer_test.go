// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package xdf_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/xdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartialRecordFlush(t *testing.T) {
	for _, format := range []xdf.Format{xdf.FormatEDF, xdf.FormatBDF, xdf.FormatGDF1, xdf.FormatGDF2} {
		t.Run(format.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "partial")
			writeRamp(t, path, format, 10, 13)

			f := openRamp(t, path)
			require.Equal(t, 2, f.NumRecords())

			values := make([]float64, 20)
			n, err := f.Read(len(values), xdf.Bytes(values))
			require.NoError(t, err)
			require.Equal(t, 20, n)

			for i := 0; i < 13; i++ {
				assert.Equal(t, float64(i), values[i])
			}
			// The rest of the last record is padding.
			for i := 13; i < 20; i++ {
				assert.Equal(t, 0.0, values[i])
			}
		})
	}
}

func TestReadEndOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eof.gdf")
	writeRamp(t, path, xdf.FormatGDF2, 8, 24)

	f := openRamp(t, path)
	values := make([]float64, 30)
	n, err := f.Read(len(values), xdf.Bytes(values))
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 24, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, float64(i), values[i])
	}

	n, err = f.Read(1, xdf.Bytes(values))
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)

	// Seeking back after the end resumes reading.
	pos, err := f.Seek(5, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)
	n, err = f.Read(2, xdf.Bytes(values))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{5, 6}, values[:2])
}

func TestSeekConsistency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seek.edf")
	const nsr, total = 7, 50
	writeRamp(t, path, xdf.FormatEDF, nsr, total)

	f := openRamp(t, path)
	records := f.NumRecords()
	require.Equal(t, 8, records)
	length := int64(records * nsr)

	one := make([]float64, 1)
	for _, i := range []int64{0, 1, 6, 7, 8, 13, 14, 30, 49, 55, 20, 20, 21, 3} {
		pos, err := f.Seek(i, io.SeekStart)
		require.NoError(t, err)
		require.Equal(t, i, pos)

		n, err := f.Read(1, xdf.Bytes(one))
		require.NoError(t, err)
		require.Equal(t, 1, n)
		if i < total {
			assert.Equal(t, float64(i), one[0], "sample %d", i)
		} else {
			assert.Equal(t, 0.0, one[0], "sample %d", i)
		}
	}

	// The position is now 4.
	pos, err := f.Seek(3, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pos)
	_, err = f.Read(1, xdf.Bytes(one))
	require.NoError(t, err)
	assert.Equal(t, 7.0, one[0])

	pos, err = f.Seek(-length, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
	_, err = f.Read(1, xdf.Bytes(one))
	require.NoError(t, err)
	assert.Equal(t, 0.0, one[0])

	_, err = f.Seek(length, io.SeekStart)
	require.ErrorIs(t, err, xdf.ErrRange)
	_, err = f.Seek(-1, io.SeekStart)
	require.ErrorIs(t, err, xdf.ErrRange)

	// A failed seek does not move the position.
	_, err = f.Read(1, xdf.Bytes(one))
	require.NoError(t, err)
	assert.Equal(t, 1.0, one[0])
}

// TestMultipleArrays spreads channels of several memory types over two
// arrays, and skips one channel when reading.
func TestMultipleArrays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arrays.gdf")
	const n = 25

	f, err := xdf.Open(path, xdf.ModeWrite, xdf.FormatGDF2)
	require.NoError(t, err)
	require.NoError(t, f.Set(xdf.FieldSamplesPerRecord, 4))

	// Array 0 holds int16 pairs, array 1 holds a float64 and an int32.
	layout := []struct {
		label  string
		stored xdf.Type
		memory xdf.Type
		array  int
		offset int
	}{
		{"a0", xdf.Int16, xdf.Int16, 0, 0},
		{"b0", xdf.Uint8, xdf.Int16, 0, 2},
		{"c1", xdf.Float32, xdf.Float64, 1, 0},
		{"d1", xdf.Int64, xdf.Int32, 1, 8},
	}
	for _, l := range layout {
		ch, err := f.AddChannel(l.label)
		require.NoError(t, err)
		require.NoError(t, ch.Configure(
			xdf.Setting{Field: xdf.FieldStoredType, Value: l.stored},
			xdf.Setting{Field: xdf.FieldMemoryType, Value: l.memory},
			xdf.Setting{Field: xdf.FieldArrayIndex, Value: l.array},
			xdf.Setting{Field: xdf.FieldArrayOffset, Value: l.offset},
			xdf.Setting{Field: xdf.FieldArrayDigital, Value: true},
		))
	}
	require.NoError(t, f.DefineArrays(4, 16))
	require.NoError(t, f.Prepare())

	type pair struct{ A, B int16 }
	type mixed struct {
		C float64
		D int32
		_ int32
	}
	pairs := make([]pair, n)
	mixes := make([]mixed, n)
	for i := range pairs {
		pairs[i] = pair{A: int16(i*1000 - 12000), B: int16(i * 10)}
		mixes[i] = mixed{C: float64(i) / 4, D: int32(i * -100000)}
	}
	written, err := f.Write(n, sampleBytes(pairs, 4), sampleBytes(mixes, 16))
	require.NoError(t, err)
	require.Equal(t, n, written)
	require.NoError(t, f.Close())

	r, err := xdf.Open(path, xdf.ModeRead, xdf.FormatGDF2)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, r.Close())
	})
	require.Equal(t, 7, r.NumRecords())

	for i, l := range layout {
		ch, err := r.Channel(i)
		require.NoError(t, err)
		stored, err := ch.GetType(xdf.FieldStoredType)
		require.NoError(t, err)
		assert.Equal(t, l.stored, stored)

		array := l.array
		if l.label == "b0" {
			array = -1
		}
		require.NoError(t, ch.Configure(
			xdf.Setting{Field: xdf.FieldMemoryType, Value: l.memory},
			xdf.Setting{Field: xdf.FieldArrayIndex, Value: array},
			xdf.Setting{Field: xdf.FieldArrayOffset, Value: l.offset},
			xdf.Setting{Field: xdf.FieldArrayDigital, Value: true},
		))
	}
	require.NoError(t, r.DefineArrays(4, 16))
	require.NoError(t, r.Prepare())

	gotPairs := make([]pair, n)
	for i := range gotPairs {
		gotPairs[i].B = -1
	}
	gotMixes := make([]mixed, n)
	read, err := r.Read(n, sampleBytes(gotPairs, 4), sampleBytes(gotMixes, 16))
	require.NoError(t, err)
	require.Equal(t, n, read)

	for i := range pairs {
		assert.Equal(t, pairs[i].A, gotPairs[i].A)
		// Excluded channels leave the caller's memory alone.
		assert.Equal(t, int16(-1), gotPairs[i].B)
		assert.Equal(t, mixes[i].C, gotMixes[i].C)
		assert.Equal(t, mixes[i].D, gotMixes[i].D)
	}
}

var errDiskFull = errors.New("disk full")

// limitedStream is an in-memory stream refusing writes past limit bytes.
type limitedStream struct {
	data  []byte
	pos   int64
	limit int64
}

func (s *limitedStream) Write(p []byte) (int, error) {
	if s.pos+int64(len(p)) > s.limit {
		return 0, errDiskFull
	}
	if end := int(s.pos) + len(p); end > len(s.data) {
		s.data = append(s.data, make([]byte, end-len(s.data))...)
	}
	copy(s.data[s.pos:], p)
	s.pos += int64(len(p))
	return len(p), nil
}

func (s *limitedStream) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.pos = offset
	case io.SeekCurrent:
		s.pos += offset
	case io.SeekEnd:
		s.pos = int64(len(s.data)) + offset
	}
	return s.pos, nil
}

func TestWriteError(t *testing.T) {
	const nsr = 4
	// Room for the header and one record of one int16 channel.
	stream := &limitedStream{limit: 512 + nsr*2}

	f, err := xdf.NewWriter(stream, xdf.FormatEDF)
	require.NoError(t, err)
	require.NoError(t, f.Set(xdf.FieldSamplesPerRecord, nsr))
	ch, err := f.AddChannel("Ramp")
	require.NoError(t, err)
	require.NoError(t, ch.Configure(
		xdf.Setting{Field: xdf.FieldPhysicalMin, Value: -32768.0},
		xdf.Setting{Field: xdf.FieldPhysicalMax, Value: 32767.0},
	))
	require.NoError(t, f.DefineArrays(8))
	require.NoError(t, f.Prepare())

	values := make([]float64, 16)
	for i := range values {
		values[i] = float64(i)
	}

	// The second record fails in the background, and the error surfaces
	// when the third record is handed over.
	n, err := f.Write(16, xdf.Bytes(values))
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 12, n)
	assert.Equal(t, 1, f.NumRecords())

	// The transfer stays stopped.
	n, err = f.Write(4, xdf.Bytes(values))
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 0, n)

	// Close still rewrites the header, and reports the failure.
	require.ErrorIs(t, f.Close(), errDiskFull)

	r, err := xdf.NewReader(bytes.NewReader(stream.data), xdf.FormatEDF)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, r.Close())
	})
	require.Equal(t, 1, r.NumRecords())
	require.NoError(t, r.DefineArrays(8))
	require.NoError(t, r.Prepare())

	got := make([]float64, 8)
	n, err = r.Read(8, xdf.Bytes(got))
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, nsr, n)
	assert.Equal(t, []float64{0, 1, 2, 3}, got[:nsr])
}

func TestReadTruncatedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truncated.gdf")
	const nsr = 8
	writeRamp(t, path, xdf.FormatGDF2, nsr, 3*nsr)

	// Keep the header, the first record and half of the second one.
	require.NoError(t, os.Truncate(path, 512+nsr*4+nsr*2))

	f := openRamp(t, path)
	require.Equal(t, 3, f.NumRecords())

	values := make([]float64, 3*nsr)
	n, err := f.Read(len(values), xdf.Bytes(values))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, nsr, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, float64(i), values[i])
	}

	// The failure sticks until the position is changed.
	n, err = f.Read(1, xdf.Bytes(values))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 0, n)
}
