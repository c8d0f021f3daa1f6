// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

//go:build unix

package xdf

import "golang.org/x/sys/unix"

// syncStorage commits written data to stable storage when w is backed by a
// file descriptor. Writers without one are left alone.
func syncStorage(w any) error {
	switch s := w.(type) {
	case interface{ Fd() uintptr }:
		return unix.Fsync(int(s.Fd()))
	case interface{ Sync() error }:
		return s.Sync()
	}
	return nil
}
