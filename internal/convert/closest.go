// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package convert

// criteria are tried in order, each one relaxing the previous.
var criteria = []struct {
	integer, signed, size bool
}{
	{true, true, true},
	{false, true, true},
	{true, false, true},
	{false, false, true},
	{true, true, false},
	{false, true, false},
	{true, false, false},
	{false, false, false},
}

// Closest returns the type of supported that best represents target. When
// the size criterion is dropped the largest candidates are tried first so
// that the most precision is kept. It panics if supported is empty.
func Closest(target Type, supported Support) Type {
	if supported[target] {
		return target
	}

	want := target.Info()
	for _, c := range criteria {
		match := func(t Type) bool {
			info := t.Info()
			if !supported[t] {
				return false
			}
			if c.integer && info.Integer != want.Integer {
				return false
			}
			if c.signed && info.Signed != want.Signed {
				return false
			}
			if c.size && info.Size < want.Size {
				return false
			}
			return true
		}

		if c.size {
			for t := Type(0); t < NumTypes; t++ {
				if match(t) {
					return t
				}
			}
		} else {
			for t := NumTypes - 1; t >= 0; t-- {
				if match(t) {
					return t
				}
			}
		}
	}

	panic("convert: empty support set")
}
