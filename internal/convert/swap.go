// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package convert

// SwapFunc reverses the byte order of n values in place. Consecutive
// values are stride bytes apart.
type SwapFunc func(buf []byte, stride int, n int)

func swap16(buf []byte, stride, n int) {
	for i := 0; i < n; i++ {
		b := buf[i*stride:]
		b[0], b[1] = b[1], b[0]
	}
}

func swap24(buf []byte, stride, n int) {
	for i := 0; i < n; i++ {
		b := buf[i*stride:]
		b[0], b[2] = b[2], b[0]
	}
}

func swap32(buf []byte, stride, n int) {
	for i := 0; i < n; i++ {
		b := buf[i*stride:]
		b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	}
}

func swap64(buf []byte, stride, n int) {
	for i := 0; i < n; i++ {
		b := buf[i*stride:]
		b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7] = b[7], b[6], b[5], b[4], b[3], b[2], b[1], b[0]
	}
}

// Swapper returns the byte swap routine for t, or nil for single byte
// types.
func Swapper(t Type) SwapFunc {
	switch t.Size() {
	case 2:
		return swap16
	case 3:
		return swap24
	case 4:
		return swap32
	case 8:
		return swap64
	}
	return nil
}
