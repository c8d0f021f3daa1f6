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
	"cmp"
	"fmt"
	"slices"
)

// batch is a run of bytes copied in one go between a caller array and a
// sample of the transfer buffer.
type batch struct {
	array int // Index of the caller's array
	foff  int // Offset in a buffer sample
	len   int // Number of bytes to copy
	moff  int // Offset in an array sample
	// skip advances the array position to the next batch of the same
	// array, wrapping to the next sample after the last one.
	skip int
}

// span is the byte range a channel occupies in an array sample.
type span struct {
	ch         int
	start, end int
}

// planBatches groups channels that are contiguous both in the transfer
// buffer and in their array. boffs gives each channel's offset in a buffer
// sample, -1 for excluded channels. Batches are grouped by array, and
// follow channel order within an array. Channels of an array may not
// share bytes.
func planBatches(chs []*Channel, boffs []int, strides []int) ([]batch, error) {
	spans := make([][]span, len(strides))
	for i, ch := range chs {
		a := ch.cfg.array
		if boffs[i] < 0 {
			continue
		}
		if a < 0 || a >= len(strides) {
			return nil, fmt.Errorf("%w: channel %d uses array %d of %d", ErrArrays, i, a, len(strides))
		}
		if ch.cfg.offset+ch.cfg.memory.Size() > strides[a] {
			return nil, fmt.Errorf("%w: channel %d ends at byte %d of a %d byte stride",
				ErrBatchOverflow, i, ch.cfg.offset+ch.cfg.memory.Size(), strides[a])
		}
		spans[a] = append(spans[a], span{ch: i, start: ch.cfg.offset, end: ch.cfg.offset + ch.cfg.memory.Size()})
	}
	for a, ss := range spans {
		slices.SortFunc(ss, func(x, y span) int { return cmp.Compare(x.start, y.start) })
		for j := 1; j < len(ss); j++ {
			if ss[j].start < ss[j-1].end {
				return nil, fmt.Errorf("%w: channels %d and %d overlap in array %d",
					ErrBatchOverflow, ss[j-1].ch, ss[j].ch, a)
			}
		}
	}

	var batches []batch
	for a, stride := range strides {
		first := len(batches)
		for i, ch := range chs {
			if boffs[i] < 0 || ch.cfg.array != a {
				continue
			}
			size := ch.cfg.memory.Size()
			if n := len(batches); n > first {
				b := &batches[n-1]
				if b.foff+b.len == boffs[i] && b.moff+b.len == ch.cfg.offset {
					b.len += size
					continue
				}
			}
			batches = append(batches, batch{array: a, foff: boffs[i], len: size, moff: ch.cfg.offset})
		}

		for i := first; i < len(batches); i++ {
			if i+1 < len(batches) {
				batches[i].skip = batches[i+1].moff - batches[i].moff
			} else {
				batches[i].skip = stride - batches[i].moff + batches[first].moff
			}
		}
	}
	return batches, nil
}
