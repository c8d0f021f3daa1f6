// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package convert holds the scalar sample types supported by the engine,
// the pairwise conversion table between them and the transform planner
// that chains byte swapping, conversion and affine scaling.
package convert

import (
	"math"

	"golang.org/x/sys/cpu"
)

// Type identifies a scalar sample representation.
type Type int

// Types are ordered by increasing size, which the closest type lookup
// relies on.
const (
	Uint8 Type = iota
	Int8
	Uint16
	Int16
	Uint24
	Int24
	Uint32
	Int32
	Float32
	Uint64
	Int64
	Float64
	NumTypes
)

// Info describes the storage and range of a Type.
type Info struct {
	Name    string
	Size    int
	Signed  bool
	Integer bool
	Min     float64
	Max     float64
}

var infos = [NumTypes]Info{
	Uint8:   {"uint8", 1, false, true, 0, math.MaxUint8},
	Int8:    {"int8", 1, true, true, math.MinInt8, math.MaxInt8},
	Uint16:  {"uint16", 2, false, true, 0, math.MaxUint16},
	Int16:   {"int16", 2, true, true, math.MinInt16, math.MaxInt16},
	Uint24:  {"uint24", 3, false, true, 0, 1<<24 - 1},
	Int24:   {"int24", 3, true, true, -1 << 23, 1<<23 - 1},
	Uint32:  {"uint32", 4, false, true, 0, math.MaxUint32},
	Int32:   {"int32", 4, true, true, math.MinInt32, math.MaxInt32},
	Float32: {"float32", 4, true, false, -math.MaxFloat32, math.MaxFloat32},
	Uint64:  {"uint64", 8, false, true, 0, math.MaxUint64},
	Int64:   {"int64", 8, true, true, math.MinInt64, math.MaxInt64},
	Float64: {"float64", 8, true, false, -math.MaxFloat64, math.MaxFloat64},
}

// HostBigEndian reports whether in-memory samples are big-endian. All the
// supported file formats store little-endian samples.
var HostBigEndian = cpu.IsBigEndian

// Valid reports whether t names a supported type.
func (t Type) Valid() bool {
	return t >= 0 && t < NumTypes
}

// Info returns the metadata of t. It panics if t is not valid.
func (t Type) Info() Info {
	return infos[t]
}

// Size returns the number of bytes one sample of t occupies.
func (t Type) Size() int {
	return infos[t].Size
}

func (t Type) String() string {
	if !t.Valid() {
		return "invalid"
	}
	return infos[t].Name
}

// InRange reports whether v is representable by t.
func (t Type) InRange(v float64) bool {
	info := infos[t]
	return v >= info.Min && v <= info.Max
}

// Support is the set of types a file format can store.
type Support [NumTypes]bool

// SupportOf builds a Support from a list of types.
func SupportOf(types ...Type) Support {
	var s Support
	for _, t := range types {
		s[t] = true
	}
	return s
}
