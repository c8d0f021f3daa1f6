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
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/OpenPSG/xdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleBytes views a slice of fixed size structs as raw memory.
func sampleBytes[T any](s []T, stride int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*stride)
}

// writeRamp creates a file with one float64 channel holding 0, 1, 2, ...
func writeRamp(t *testing.T, path string, format xdf.Format, nsr, n int) {
	t.Helper()

	f, err := xdf.Open(path, xdf.ModeWrite, format)
	require.NoError(t, err)
	require.NoError(t, f.Set(xdf.FieldSamplesPerRecord, nsr))

	ch, err := f.AddChannel("Ramp")
	require.NoError(t, err)
	require.NoError(t, ch.Configure(
		xdf.Setting{Field: xdf.FieldDigitalMin, Value: -30000.0},
		xdf.Setting{Field: xdf.FieldDigitalMax, Value: 30000.0},
		xdf.Setting{Field: xdf.FieldPhysicalMin, Value: -30000.0},
		xdf.Setting{Field: xdf.FieldPhysicalMax, Value: 30000.0},
	))
	require.NoError(t, f.DefineArrays(8))
	require.NoError(t, f.Prepare())

	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i)
	}
	written, err := f.Write(n, xdf.Bytes(values))
	require.NoError(t, err)
	require.Equal(t, n, written)
	require.NoError(t, f.Close())
}

// openRamp opens a file written by writeRamp and prepares it for reading.
func openRamp(t *testing.T, path string) *xdf.File {
	t.Helper()

	f, err := xdf.Open(path, xdf.ModeRead, xdf.FormatAny)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})
	require.NoError(t, f.DefineArrays(8))
	require.NoError(t, f.Prepare())
	return f
}

func TestOpenExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exists.edf")
	writeRamp(t, path, xdf.FormatEDF, 4, 4)

	for _, mode := range []xdf.Mode{xdf.ModeWrite, xdf.ModeWriteExclusive} {
		_, err := xdf.Open(path, mode, xdf.FormatEDF)
		require.ErrorIs(t, err, fs.ErrExist)
	}

	// The refused opens left the file alone.
	r, err := xdf.Open(path, xdf.ModeRead, xdf.FormatEDF)
	require.NoError(t, err)
	assert.Equal(t, 1, r.NumRecords())
	require.NoError(t, r.Close())

	f, err := xdf.Open(path, xdf.ModeWriteTruncate, xdf.FormatGDF2)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err = xdf.Open(path, xdf.ModeRead, xdf.FormatAny)
	require.NoError(t, err)
	assert.Equal(t, xdf.FormatGDF2, r.Format())
	assert.Equal(t, 0, r.NumRecords())
	require.NoError(t, r.Close())
}

func TestOpenFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mismatch.bdf")
	writeRamp(t, path, xdf.FormatBDF, 4, 4)

	_, err := xdf.Open(path, xdf.ModeRead, xdf.FormatGDF2)
	require.ErrorIs(t, err, xdf.ErrFormat)

	garbage := filepath.Join(dir, "garbage.bin")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a biosignal"), 0o644))
	_, err = xdf.Open(garbage, xdf.ModeRead, xdf.FormatAny)
	require.ErrorIs(t, err, xdf.ErrFormat)

	_, err = xdf.Open(filepath.Join(dir, "new.edf"), xdf.ModeWrite, xdf.FormatAny)
	require.ErrorIs(t, err, xdf.ErrInvalidValue)
}

func TestStreamOwnership(t *testing.T) {
	fd, err := os.Create(filepath.Join(t.TempDir(), "stream.gdf"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, fd.Close())
	})

	w, err := xdf.NewWriter(fd, xdf.FormatGDF1)
	require.NoError(t, err)
	_, err = w.AddChannel("Flow")
	require.NoError(t, err)
	require.NoError(t, w.Set(xdf.FieldSamplesPerRecord, 3))
	require.NoError(t, w.DefineArrays(8))
	require.NoError(t, w.Prepare())
	_, err = w.Write(6, xdf.Bytes([]float64{1, 2, 3, 4, 5, 6}))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	// A second Close must not rewrite the header.
	require.ErrorIs(t, w.Close(), os.ErrClosed)

	// Close leaves the stream open.
	_, err = fd.Seek(0, io.SeekStart)
	require.NoError(t, err)

	r, err := xdf.NewReader(fd, xdf.FormatGDF1)
	require.NoError(t, err)
	assert.Equal(t, 2, r.NumRecords())
	require.NoError(t, r.DefineArrays(8))
	require.NoError(t, r.Prepare())

	values := make([]float64, 6)
	n, err := r.Read(6, xdf.Bytes(values))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, values)
	require.NoError(t, r.Close())
}

func TestConfigErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.gdf")
	f, err := xdf.Open(path, xdf.ModeWrite, xdf.FormatGDF2)
	require.NoError(t, err)

	_, err = f.Channel(0)
	require.ErrorIs(t, err, xdf.ErrRange)

	ch, err := f.AddChannel("EMG")
	require.NoError(t, err)

	require.ErrorIs(t, f.Set(xdf.FieldNumChannels, 3), xdf.ErrReadOnly)
	require.ErrorIs(t, f.Set(xdf.FieldRecordDuration, -1.0), xdf.ErrInvalidValue)
	require.ErrorIs(t, f.Set(xdf.FieldRecordDuration, "1s"), xdf.ErrInvalidValue)
	require.ErrorIs(t, f.Set(xdf.FieldLabel, "EMG"), xdf.ErrUnknownField)
	require.ErrorIs(t, ch.Set(xdf.FieldSubject, "S1"), xdf.ErrUnknownField)
	require.ErrorIs(t, ch.Set(xdf.FieldArrayIndex, -1), xdf.ErrInvalidValue)
	require.ErrorIs(t, ch.Set(xdf.FieldDigitalMin, -1e10), xdf.ErrOutOfRange)

	// Changing the stored type resets the digital range to the new type.
	require.NoError(t, ch.Set(xdf.FieldStoredType, xdf.Int16))
	dmax, err := ch.GetFloat(xdf.FieldDigitalMax)
	require.NoError(t, err)
	assert.Equal(t, 32767.0, dmax)

	require.NoError(t, f.Set(xdf.FieldSamplingFrequency, 250))
	nsr, err := f.GetInt(xdf.FieldSamplesPerRecord)
	require.NoError(t, err)
	assert.Equal(t, 250, nsr)

	_, err = f.Write(1, make([]byte, 8))
	require.ErrorIs(t, err, xdf.ErrNotPrepared)

	require.ErrorIs(t, f.Prepare(), xdf.ErrArrays)
	require.NoError(t, f.DefineArrays(4))
	require.ErrorIs(t, f.Prepare(), xdf.ErrBatchOverflow)

	require.NoError(t, ch.Set(xdf.FieldArrayIndex, 1))
	require.NoError(t, f.DefineArrays(8))
	require.ErrorIs(t, f.Prepare(), xdf.ErrArrays)

	require.NoError(t, ch.Set(xdf.FieldArrayIndex, 0))
	require.NoError(t, f.Prepare())
	require.ErrorIs(t, f.Prepare(), xdf.ErrPrepared)
	require.ErrorIs(t, ch.Set(xdf.FieldUnit, "mV"), xdf.ErrPrepared)
	require.ErrorIs(t, f.DefineArrays(8), xdf.ErrPrepared)
	_, err = f.AddChannel("late")
	require.ErrorIs(t, err, xdf.ErrPrepared)

	_, err = f.Write(1)
	require.ErrorIs(t, err, xdf.ErrArrays)
	_, err = f.Write(2, make([]byte, 8))
	require.ErrorIs(t, err, xdf.ErrArrays)
	_, err = f.Read(1, make([]byte, 8))
	require.ErrorIs(t, err, xdf.ErrMode)
	_, err = f.Seek(0, io.SeekStart)
	require.ErrorIs(t, err, xdf.ErrMode)

	require.NoError(t, f.Close())

	r, err := xdf.Open(path, xdf.ModeRead, xdf.FormatGDF2)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, r.Close())
	})
	rch, err := r.Channel(0)
	require.NoError(t, err)
	require.ErrorIs(t, rch.Set(xdf.FieldLabel, "other"), xdf.ErrReadOnly)
	require.ErrorIs(t, r.Set(xdf.FieldSubject, "other"), xdf.ErrReadOnly)
	require.NoError(t, rch.Set(xdf.FieldMemoryType, xdf.Int16))
	require.NoError(t, rch.Set(xdf.FieldArrayIndex, -1))
	_, err = r.AddChannel("extra")
	require.ErrorIs(t, err, xdf.ErrMode)
	_, err = r.AddEventType(1, "")
	require.ErrorIs(t, err, xdf.ErrMode)
}

func TestCopyConfigAcrossFormats(t *testing.T) {
	dir := t.TempDir()

	src, err := xdf.Open(filepath.Join(dir, "src.gdf"), xdf.ModeWrite, xdf.FormatGDF2)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, src.Close())
	})
	require.NoError(t, src.Configure(
		xdf.Setting{Field: xdf.FieldSubject, Value: "P042"},
		xdf.Setting{Field: xdf.FieldRecordDuration, Value: 0.5},
		xdf.Setting{Field: xdf.FieldSamplesPerRecord, Value: 128},
		xdf.Setting{Field: xdf.FieldGender, Value: 2},
	))
	sch, err := src.AddChannel("ECG")
	require.NoError(t, err)
	require.NoError(t, sch.Configure(
		xdf.Setting{Field: xdf.FieldStoredType, Value: xdf.Int24},
		xdf.Setting{Field: xdf.FieldUnit, Value: "mV"},
		xdf.Setting{Field: xdf.FieldPhysicalMin, Value: -5.0},
		xdf.Setting{Field: xdf.FieldPhysicalMax, Value: 5.0},
		xdf.Setting{Field: xdf.FieldLowpass, Value: 40.0},
	))

	dst, err := xdf.Open(filepath.Join(dir, "dst.edf"), xdf.ModeWrite, xdf.FormatEDF)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, dst.Close())
	})
	require.NoError(t, dst.CopyConfig(src))

	subject, err := dst.GetString(xdf.FieldSubject)
	require.NoError(t, err)
	assert.Equal(t, "P042", subject)
	duration, err := dst.GetFloat(xdf.FieldRecordDuration)
	require.NoError(t, err)
	assert.Equal(t, 0.5, duration)
	freq, err := dst.GetInt(xdf.FieldSamplingFrequency)
	require.NoError(t, err)
	assert.Equal(t, 256, freq)

	dch, err := dst.AddChannel("tmp")
	require.NoError(t, err)
	require.NoError(t, dch.CopyConfig(sch))

	assert.Equal(t, "ECG", dch.Label())
	stored, err := dch.GetType(xdf.FieldStoredType)
	require.NoError(t, err)
	assert.Equal(t, xdf.Int16, stored)
	dmin, err := dch.GetFloat(xdf.FieldDigitalMin)
	require.NoError(t, err)
	assert.Equal(t, -32768.0, dmin)
	pmax, err := dch.GetFloat(xdf.FieldPhysicalMax)
	require.NoError(t, err)
	assert.Equal(t, 5.0, pmax)

	// The same format copies everything, private fields included.
	same, err := xdf.Open(filepath.Join(dir, "same.gdf"), xdf.ModeWrite, xdf.FormatGDF2)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, same.Close())
	})
	require.NoError(t, same.CopyConfig(src))
	gender, err := same.GetInt(xdf.FieldGender)
	require.NoError(t, err)
	assert.Equal(t, 2, gender)

	sameCh, err := same.AddChannel("tmp")
	require.NoError(t, err)
	require.NoError(t, sameCh.CopyConfig(sch))
	lowpass, err := sameCh.GetFloat(xdf.FieldLowpass)
	require.NoError(t, err)
	assert.Equal(t, 40.0, lowpass)
	highpass, err := sameCh.GetFloat(xdf.FieldHighpass)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(highpass))
}
