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
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniff(t *testing.T) {
	tests := map[string]Format{
		"0       ":    FormatEDF,
		"\xffBIOSEMI": FormatBDF,
		"GDF 1.25":    FormatGDF1,
		"GDF 2.10":    FormatGDF2,
	}
	for head, want := range tests {
		got, ok := sniff([]byte(head))
		require.True(t, ok, head)
		assert.Equal(t, want, got)
	}

	_, ok := sniff([]byte("1       "))
	assert.False(t, ok)
}

func TestToFraction(t *testing.T) {
	tests := []struct {
		d        float64
		num, den uint32
	}{
		{1, 1, 1},
		{60, 60, 1},
		{0.1, 1, 10},
		{2.5, 5, 2},
		{1.0 / 3, 1, 3},
		{0.004, 1, 250},
	}
	for _, tt := range tests {
		num, den := toFraction(tt.d)
		assert.Equal(t, tt.num, num, "%g", tt.d)
		assert.Equal(t, tt.den, den, "%g", tt.d)
	}

	// Irrational durations come back close enough.
	num, den := toFraction(math.Pi)
	assert.InDelta(t, math.Pi, float64(num)/float64(den), 1e-9)
}

func TestGDFTime(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	assert.Equal(t, uint64(gdfEpochDays)<<32, encodeGDFTime(epoch))
	assert.True(t, epoch.Equal(decodeGDFTime(encodeGDFTime(epoch))))

	assert.Equal(t, uint64(0), encodeGDFTime(time.Time{}))
	assert.True(t, decodeGDFTime(0).IsZero())

	for _, ts := range []time.Time{
		time.Date(2024, 1, 2, 3, 4, 5, 500_000_000, time.UTC),
		time.Date(1960, 6, 1, 23, 59, 59, 0, time.UTC),
		time.Date(1999, 12, 31, 12, 0, 0, 0, time.FixedZone("CET", 3600)),
	} {
		assert.WithinDuration(t, ts, decodeGDFTime(encodeGDFTime(ts)), time.Millisecond)
	}
}

func TestChannelScope(t *testing.T) {
	tests := map[string]uint16{
		"ch:3":        3,
		"Spike ch:12": 12,
		"ch:65535":    65535,
	}
	for label, want := range tests {
		got, ok := channelScope(label)
		require.True(t, ok, label)
		assert.Equal(t, want, got)
	}

	for _, label := range []string{"", "ch:0", "ch:x", "ch:65536", "Sleep stage W", "ch:3 Spike"} {
		_, ok := channelScope(label)
		assert.False(t, ok, label)
	}
}

func TestImpedance(t *testing.T) {
	assert.Equal(t, uint8(255), encodeImpedance(math.NaN()))
	assert.True(t, math.IsNaN(decodeImpedance(255)))
	assert.Equal(t, uint8(0), encodeImpedance(1))
	assert.Equal(t, uint8(8), encodeImpedance(2))
	assert.Equal(t, 2.0, decodeImpedance(8))
	assert.Equal(t, uint8(254), encodeImpedance(1e300))
	assert.Equal(t, uint8(0), encodeImpedance(1e-3))
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{
		-500:          "-500",
		0.5:           "0.5",
		-8388608:      "-8388608",
		1.0 / 3:       "0.333333",
		123.456789012: "123.4568",
	}
	for v, want := range tests {
		assert.Equal(t, want, formatNumber(v, 8), "%g", v)
	}

	require.NoError(t, checkNumber(99999999, 8))
	require.ErrorIs(t, checkNumber(-99999999, 8), ErrOutOfRange)
}

func TestParseEDFTime(t *testing.T) {
	got, err := parseEDFTime("14.03.85", "22.05.09")
	require.NoError(t, err)
	assert.Equal(t, time.Date(1985, 3, 14, 22, 5, 9, 0, time.UTC), got)

	got, err = parseEDFTime("01.01.84", "00.00.00")
	require.NoError(t, err)
	assert.Equal(t, 2084, got.Year())

	_, err = parseEDFTime("31.02.20", "00.00.00")
	require.Error(t, err)
}
