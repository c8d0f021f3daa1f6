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
	"unsafe"

	"github.com/OpenPSG/xdf/internal/convert"
	"golang.org/x/exp/constraints"
)

// Type is a scalar sample type, used both for samples in memory and
// samples on disk.
type Type = convert.Type

// Supported sample types.
const (
	Uint8   = convert.Uint8
	Int8    = convert.Int8
	Uint16  = convert.Uint16
	Int16   = convert.Int16
	Uint24  = convert.Uint24
	Int24   = convert.Int24
	Uint32  = convert.Uint32
	Int32   = convert.Int32
	Float32 = convert.Float32
	Uint64  = convert.Uint64
	Int64   = convert.Int64
	Float64 = convert.Float64
)

// Format is an on-disk file format.
type Format int

const (
	// FormatAny lets Open detect the format of an existing file.
	FormatAny Format = iota
	// FormatEDF is the European Data Format (16-bit samples).
	FormatEDF
	// FormatBDF is the BioSemi 24-bit variant of EDF.
	FormatBDF
	// FormatGDF1 is the General Data Format version 1.
	FormatGDF1
	// FormatGDF2 is the General Data Format version 2.
	FormatGDF2
)

func (f Format) String() string {
	switch f {
	case FormatEDF:
		return "EDF"
	case FormatBDF:
		return "BDF"
	case FormatGDF1:
		return "GDF1"
	case FormatGDF2:
		return "GDF2"
	}
	return "any"
}

// Mode is the access mode a file is opened with.
type Mode int

const (
	// ModeRead opens an existing file for reading.
	ModeRead Mode = iota
	// ModeWrite creates a new file. It fails if the path already exists.
	ModeWrite
	// ModeWriteExclusive is the same as ModeWrite.
	ModeWriteExclusive
	// ModeWriteTruncate creates a new file, replacing any existing one.
	ModeWriteTruncate
)

func (m Mode) writing() bool {
	return m != ModeRead
}

func (m Mode) String() string {
	if m.writing() {
		return "write"
	}
	return "read"
}

// Number is any Go type with a matching sample type.
type Number interface {
	constraints.Integer | constraints.Float
}

// Bytes returns the memory of s as a byte slice, without copying. It is a
// convenient way to hand typed slices to Read and Write.
func Bytes[T Number](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
}
