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
	"bytes"
	"fmt"
	"io"

	"github.com/OpenPSG/xdf/internal/convert"
)

// formatOps is implemented once per on-disk format. The engine calls the
// header hooks at open, prepare and close time, and routes every field
// access through setField/getField after its own default handling.
type formatOps interface {
	format() Format
	// supported is the set of types the format stores on disk.
	supported() convert.Support
	defaultType() Type
	hasEvents() bool

	// newFile and newChannel return the format private payloads.
	newFile() any
	newChannel() any

	// readHeader parses the header from the start of r, filling the file
	// and creating its channels.
	readHeader(f *File, r io.Reader) error
	// readEvents loads the event table, if the format has one. The stream
	// position is undefined afterwards.
	readEvents(f *File) error
	// writeHeader writes the whole header from offset 0 and leaves the
	// stream positioned right after it.
	writeHeader(f *File) error
	// finalize rewrites the header with the final record count and
	// appends whatever trails the data records.
	finalize(f *File) error

	// setField and getField receive the outcome of the default handler
	// and return the final outcome. ch is nil for file fields.
	setField(f *File, ch *Channel, field Field, v any, res error) error
	getField(f *File, ch *Channel, field Field, v any, res error) (any, error)
}

// newFormat returns the operations for a concrete format.
func newFormat(format Format) (formatOps, error) {
	switch format {
	case FormatEDF:
		return &edfFormat{}, nil
	case FormatBDF:
		return &edfFormat{bdf: true}, nil
	case FormatGDF1:
		return &gdf1Format{}, nil
	case FormatGDF2:
		return &gdf2Format{}, nil
	}
	return nil, fmt.Errorf("%w: unknown format %d", ErrFormat, int(format))
}

var magics = []struct {
	format Format
	prefix []byte
}{
	{FormatEDF, []byte("0       ")},
	{FormatBDF, []byte("\xffBIOSEMI")},
	{FormatGDF1, []byte("GDF 1.")},
	{FormatGDF2, []byte("GDF 2.")},
}

// sniff identifies a format from the first bytes of a file.
func sniff(head []byte) (Format, bool) {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.prefix) {
			return m.format, true
		}
	}
	return FormatAny, false
}

// checkLength vetoes strings that do not fit in a fixed width header slot.
// checkHeaderSize rejects a header longer than the stream being read.
func checkHeaderSize(f *File, n int64) error {
	if n > f.size {
		return fmt.Errorf("%w: header of %d bytes exceeds file size %d", ErrFormat, n, f.size)
	}
	return nil
}

func checkLength(v any, max int) error {
	if s, ok := v.(string); ok && len(s) > max {
		return fmt.Errorf("%w: %q is longer than %d bytes", ErrOutOfRange, s, max)
	}
	return nil
}
