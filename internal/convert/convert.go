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

	"golang.org/x/exp/constraints"
)

// Func copies n values from src to dst, converting them between two
// fixed types. Consecutive values are srcStride and dstStride bytes apart.
// Values are in host byte order.
type Func func(dst []byte, dstStride int, src []byte, srcStride int, n int)

type scalar interface {
	constraints.Integer | constraints.Float
}

// accessor loads and stores one value of a sample type through the Go type
// used for arithmetic on it. 24-bit types go through 32-bit integers.
type accessor[T scalar] struct {
	load  func(b []byte) T
	store func(b []byte, v T)
}

var ne = binary.NativeEndian

var (
	accUint8 = accessor[uint8]{
		load:  func(b []byte) uint8 { return b[0] },
		store: func(b []byte, v uint8) { b[0] = v },
	}
	accInt8 = accessor[int8]{
		load:  func(b []byte) int8 { return int8(b[0]) },
		store: func(b []byte, v int8) { b[0] = byte(v) },
	}
	accUint16 = accessor[uint16]{
		load:  func(b []byte) uint16 { return ne.Uint16(b) },
		store: func(b []byte, v uint16) { ne.PutUint16(b, v) },
	}
	accInt16 = accessor[int16]{
		load:  func(b []byte) int16 { return int16(ne.Uint16(b)) },
		store: func(b []byte, v int16) { ne.PutUint16(b, uint16(v)) },
	}
	accUint24 = accessor[uint32]{
		load:  loadUint24,
		store: storeUint24,
	}
	accInt24 = accessor[int32]{
		load: func(b []byte) int32 {
			// Sign extend from bit 23.
			return int32(loadUint24(b)<<8) >> 8
		},
		store: func(b []byte, v int32) { storeUint24(b, uint32(v)) },
	}
	accUint32 = accessor[uint32]{
		load:  func(b []byte) uint32 { return ne.Uint32(b) },
		store: func(b []byte, v uint32) { ne.PutUint32(b, v) },
	}
	accInt32 = accessor[int32]{
		load:  func(b []byte) int32 { return int32(ne.Uint32(b)) },
		store: func(b []byte, v int32) { ne.PutUint32(b, uint32(v)) },
	}
	accFloat32 = accessor[float32]{
		load:  func(b []byte) float32 { return math.Float32frombits(ne.Uint32(b)) },
		store: func(b []byte, v float32) { ne.PutUint32(b, math.Float32bits(v)) },
	}
	accUint64 = accessor[uint64]{
		load:  func(b []byte) uint64 { return ne.Uint64(b) },
		store: func(b []byte, v uint64) { ne.PutUint64(b, v) },
	}
	accInt64 = accessor[int64]{
		load:  func(b []byte) int64 { return int64(ne.Uint64(b)) },
		store: func(b []byte, v int64) { ne.PutUint64(b, uint64(v)) },
	}
	accFloat64 = accessor[float64]{
		load:  func(b []byte) float64 { return math.Float64frombits(ne.Uint64(b)) },
		store: func(b []byte, v float64) { ne.PutUint64(b, math.Float64bits(v)) },
	}
)

func loadUint24(b []byte) uint32 {
	if HostBigEndian {
		return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// storeUint24 keeps the low 24 bits of v.
func storeUint24(b []byte, v uint32) {
	if HostBigEndian {
		b[0], b[1], b[2] = byte(v>>16), byte(v>>8), byte(v)
		return
	}
	b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
}

func cast[S, D scalar](s accessor[S], d accessor[D]) Func {
	return func(dst []byte, dstStride int, src []byte, srcStride int, n int) {
		for i := 0; i < n; i++ {
			d.store(dst[i*dstStride:], D(s.load(src[i*srcStride:])))
		}
	}
}

func row[S scalar](s accessor[S]) [NumTypes]Func {
	return [NumTypes]Func{
		Uint8:   cast(s, accUint8),
		Int8:    cast(s, accInt8),
		Uint16:  cast(s, accUint16),
		Int16:   cast(s, accInt16),
		Uint24:  cast(s, accUint24),
		Int24:   cast(s, accInt24),
		Uint32:  cast(s, accUint32),
		Int32:   cast(s, accInt32),
		Float32: cast(s, accFloat32),
		Uint64:  cast(s, accUint64),
		Int64:   cast(s, accInt64),
		Float64: cast(s, accFloat64),
	}
}

var table = [NumTypes][NumTypes]Func{
	Uint8:   row(accUint8),
	Int8:    row(accInt8),
	Uint16:  row(accUint16),
	Int16:   row(accInt16),
	Uint24:  row(accUint24),
	Int24:   row(accInt24),
	Uint32:  row(accUint32),
	Int32:   row(accInt32),
	Float32: row(accFloat32),
	Uint64:  row(accUint64),
	Int64:   row(accInt64),
	Float64: row(accFloat64),
}

// Lookup returns the conversion from src to dst, or nil if none exists.
func Lookup(src, dst Type) Func {
	if !src.Valid() || !dst.Valid() {
		return nil
	}
	return table[src][dst]
}

// scale applies x*gain+offset in place to n contiguous values of t, which
// must be a floating point type.
func scale(t Type, buf []byte, n int, gain, offset float64) {
	switch t {
	case Float32:
		g, o := float32(gain), float32(offset)
		for i := 0; i < n; i++ {
			b := buf[i*4:]
			accFloat32.store(b, accFloat32.load(b)*g+o)
		}
	case Float64:
		for i := 0; i < n; i++ {
			b := buf[i*8:]
			accFloat64.store(b, accFloat64.load(b)*gain+offset)
		}
	default:
		panic("convert: scaling requires a floating point type")
	}
}
