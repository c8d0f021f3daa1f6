// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package convert

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanIntermediateType(t *testing.T) {
	phys := &[2]float64{-100, 100}
	dig := &[2]float64{-32768, 32767}

	tests := []struct {
		name   string
		in     Endpoint
		out    Endpoint
		inter  Type
		scaled bool
		stage1 bool
		stage3 bool
	}{
		{
			name:   "float scaled to int16",
			in:     Endpoint{Type: Float32, Stride: 12, Range: phys},
			out:    Endpoint{Type: Int16, Stride: 2, Range: dig},
			inter:  Float32,
			scaled: true,
			stage1: true,
			stage3: true,
		},
		{
			name:   "int16 scaled to double",
			in:     Endpoint{Type: Int16, Stride: 2, Range: dig},
			out:    Endpoint{Type: Float64, Stride: 8, Range: phys},
			inter:  Float64,
			scaled: true,
			stage1: true,
			stage3: false,
		},
		{
			name:   "integer to integer scaled goes through double",
			in:     Endpoint{Type: Int32, Stride: 4, Range: phys},
			out:    Endpoint{Type: Int16, Stride: 2, Range: dig},
			inter:  Float64,
			scaled: true,
			stage1: true,
			stage3: true,
		},
		{
			name:   "equal ranges do not scale",
			in:     Endpoint{Type: Int16, Stride: 2, Range: dig},
			out:    Endpoint{Type: Int32, Stride: 8, Range: dig},
			inter:  Int32,
			stage1: true,
			stage3: true,
		},
		{
			name:   "contiguous double to double",
			in:     Endpoint{Type: Float64, Stride: 8},
			out:    Endpoint{Type: Float64, Stride: 8},
			inter:  Float64,
			stage1: true,
		},
		{
			name:   "strided double to contiguous double",
			in:     Endpoint{Type: Float64, Stride: 16},
			out:    Endpoint{Type: Float64, Stride: 8},
			inter:  Float64,
			stage1: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPlan(tc.in, tc.out, SwapNone, false)
			assert.Equal(t, tc.inter, p.Inter)
			assert.Equal(t, tc.scaled, p.Scaled)
			assert.Equal(t, tc.stage1, p.Stage1 != nil)
			assert.Equal(t, tc.stage3, p.Stage3 != nil)
		})
	}
}

func TestPlanGainOffset(t *testing.T) {
	p := NewPlan(
		Endpoint{Type: Float64, Stride: 8, Range: &[2]float64{-100, 100}},
		Endpoint{Type: Int24, Stride: 3, Range: &[2]float64{-8388608, 8388607}},
		SwapAfter, false)

	assert.InDelta(t, 16777215.0/200, p.Gain, 1e-9)
	assert.InDelta(t, -0.5, p.Offset, 1e-6)
}

func TestPlanApplyRoundTrip(t *testing.T) {
	const n = 5
	phys := &[2]float64{-100, 100}
	dig := &[2]float64{-8388608, 8388607}
	values := []float64{-100, -12.5, 0, 33.3, 100}

	mem := make([]byte, n*16)
	for i, v := range values {
		binary.NativeEndian.PutUint64(mem[i*16:], math.Float64bits(v))
	}

	tmp := make([]byte, n*8)
	disk := make([]byte, n*3)
	w := NewPlan(Endpoint{Float64, 16, phys}, Endpoint{Int24, 3, dig}, SwapAfter, false)
	w.Apply(disk, mem, tmp, n)

	back := make([]byte, n*8)
	r := NewPlan(Endpoint{Int24, 3, dig}, Endpoint{Float64, 8, phys}, SwapBefore, false)
	r.Apply(back, disk, tmp, n)

	step := 200.0 / 16777215
	for i, v := range values {
		got := math.Float64frombits(binary.NativeEndian.Uint64(back[i*8:]))
		assert.InDelta(t, v, got, step)
	}
}

func TestPlanSwapStage(t *testing.T) {
	in := Endpoint{Type: Int16, Stride: 2}
	out := Endpoint{Type: Int16, Stride: 4}

	little := NewPlan(in, out, SwapBefore, false)
	assert.Nil(t, little.SwapIn)
	assert.Nil(t, little.SwapOut)

	big := NewPlan(in, out, SwapBefore, true)
	require.NotNil(t, big.SwapIn)
	assert.Nil(t, big.SwapOut)

	src := []byte{0x01, 0x02, 0x03, 0x04}
	dst := make([]byte, 8)
	big.Apply(dst, src, make([]byte, 4), 2)
	assert.Equal(t, []byte{0x02, 0x01, 0, 0, 0x04, 0x03, 0, 0}, dst)

	after := NewPlan(in, out, SwapAfter, true)
	assert.Nil(t, after.SwapIn)
	require.NotNil(t, after.SwapOut)

	src = []byte{0x01, 0x02, 0x03, 0x04}
	dst = make([]byte, 8)
	after.Apply(dst, src, make([]byte, 4), 2)
	assert.Equal(t, []byte{0x02, 0x01, 0, 0, 0x04, 0x03, 0, 0}, dst)
}
