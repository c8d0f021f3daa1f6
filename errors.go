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
	"errors"
	"fmt"
)

var (
	// ErrConfig is the category of every configuration error. Such errors
	// are detected before any I/O happens.
	ErrConfig = errors.New("xdf: configuration error")

	// ErrFormat is returned when a file header is malformed or does not
	// match the requested format.
	ErrFormat = errors.New("xdf: invalid file format")

	// ErrRange is returned for out of bounds seeks, channel and event
	// indices.
	ErrRange = errors.New("xdf: index out of range")
)

var (
	// ErrUnknownField is returned when a field is not known to the file
	// format.
	ErrUnknownField = fmt.Errorf("%w: unknown field", ErrConfig)
	// ErrReadOnly is returned when setting a field that cannot change.
	ErrReadOnly = fmt.Errorf("%w: read-only field", ErrConfig)
	// ErrInvalidValue is returned when a value has the wrong kind or is
	// meaningless for the field.
	ErrInvalidValue = fmt.Errorf("%w: invalid value", ErrConfig)
	// ErrOutOfRange is returned when a value does not fit the sample type
	// it applies to.
	ErrOutOfRange = fmt.Errorf("%w: value out of range", ErrConfig)
	// ErrUnsupported is returned when the file format cannot store a type
	// or feature.
	ErrUnsupported = fmt.Errorf("%w: unsupported by file format", ErrConfig)
	// ErrPrepared is returned when changing the configuration of a file
	// whose transfer is already prepared.
	ErrPrepared = fmt.Errorf("%w: transfer already prepared", ErrConfig)
	// ErrNotPrepared is returned by transfers attempted before Prepare.
	ErrNotPrepared = fmt.Errorf("%w: transfer not prepared", ErrConfig)
	// ErrBatchOverflow is returned when a channel does not fit in the
	// stride of its array.
	ErrBatchOverflow = fmt.Errorf("%w: channel overflows array stride", ErrConfig)
	// ErrArrays is returned when the arrays passed to a transfer do not
	// match the layout given to DefineArrays.
	ErrArrays = fmt.Errorf("%w: arrays do not match layout", ErrConfig)
	// ErrMode is returned when an operation is not allowed in the mode the
	// file was opened with.
	ErrMode = fmt.Errorf("%w: operation not allowed in this mode", ErrConfig)
)
