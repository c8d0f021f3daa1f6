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
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/OpenPSG/xdf/internal/events"
)

// fileConfig holds the settings shared by every format.
type fileConfig struct {
	recordDuration   float64 // Duration of a record in seconds
	samplesPerRecord int
	start            time.Time
	subject          string
	session          string
}

// File is an open recording. A File must not be used from several
// goroutines at once.
type File struct {
	mode Mode
	ops  formatOps
	log  *slog.Logger

	r      io.Reader
	w      io.Writer
	s      io.Seeker
	closer io.Closer // nil when the caller owns the stream

	cfg        fileConfig
	priv       any
	headerSize int
	size       int64 // Stream size when opened for reading
	// Records on disk. Written by the transfer worker in write mode.
	records  atomic.Int64
	channels []*Channel
	events   events.Table

	strides []int
	ready   bool
	closed  bool
	xfer    transfer
}

// Option configures a File.
type Option func(*File)

// WithLogger sets the logger used by a File.
func WithLogger(l *slog.Logger) Option {
	return func(f *File) {
		f.log = l
	}
}

// Open opens the file at path. In read mode the format is detected from
// the file content and must match format unless it is FormatAny. In write
// mode format must be a concrete format.
func Open(path string, mode Mode, format Format, opts ...Option) (*File, error) {
	switch mode {
	case ModeRead:
		fd, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		f, err := openReader(fd, fd, format, opts)
		if err != nil {
			_ = fd.Close()
			return nil, err
		}
		return f, nil
	case ModeWrite, ModeWriteExclusive, ModeWriteTruncate:
		if format == FormatAny {
			return nil, fmt.Errorf("%w: a format is required to write", ErrInvalidValue)
		}
		ops, err := newFormat(format)
		if err != nil {
			return nil, err
		}
		flags := os.O_RDWR | os.O_CREATE | os.O_EXCL
		if mode == ModeWriteTruncate {
			flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
		}
		fd, err := os.OpenFile(path, flags, 0o644)
		if err != nil {
			return nil, err
		}
		f := newWriter(fd, ops, opts)
		f.mode = mode
		f.closer = fd
		return f, nil
	}
	return nil, fmt.Errorf("%w: unknown mode %d", ErrInvalidValue, int(mode))
}

// NewReader reads a recording from r. The caller keeps ownership of r:
// Close does not close it.
func NewReader(r io.ReadSeeker, format Format, opts ...Option) (*File, error) {
	return openReader(r, nil, format, opts)
}

// NewWriter writes a recording to w. The caller keeps ownership of w:
// Close does not close it.
func NewWriter(w io.WriteSeeker, format Format, opts ...Option) (*File, error) {
	if format == FormatAny {
		return nil, fmt.Errorf("%w: a format is required to write", ErrInvalidValue)
	}
	ops, err := newFormat(format)
	if err != nil {
		return nil, err
	}
	return newWriter(w, ops, opts), nil
}

func newFile(mode Mode, ops formatOps, opts []Option) *File {
	f := &File{
		mode: mode,
		ops:  ops,
		log:  slog.Default(),
		priv: ops.newFile(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With(slog.String("format", ops.format().String()), slog.String("mode", mode.String()))
	return f
}

func newWriter(w io.WriteSeeker, ops formatOps, opts []Option) *File {
	f := newFile(ModeWrite, ops, opts)
	f.w, f.s = w, w
	if r, ok := w.(io.Reader); ok {
		f.r = r
	}
	f.cfg = fileConfig{
		recordDuration:   1,
		samplesPerRecord: 1,
		start:            time.Now().UTC().Truncate(time.Second),
	}
	f.records.Store(-1)
	return f
}

func openReader(r io.ReadSeeker, closer io.Closer, format Format, opts []Option) (*File, error) {
	head := make([]byte, 8)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("%w: error reading magic: %w", ErrFormat, err)
	}
	detected, ok := sniff(head)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized file signature", ErrFormat)
	}
	if format != FormatAny && format != detected {
		return nil, fmt.Errorf("%w: expected %s, found %s", ErrFormat, format, detected)
	}

	ops, err := newFormat(detected)
	if err != nil {
		return nil, err
	}
	f := newFile(ModeRead, ops, opts)
	f.r, f.s, f.closer = r, r, closer

	if f.size, err = r.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("error seeking to end of file: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to header: %w", err)
	}
	if err := ops.readHeader(f, bufio.NewReader(r)); err != nil {
		return nil, err
	}
	if ops.hasEvents() {
		if err := ops.readEvents(f); err != nil {
			return nil, err
		}
	}
	if _, err := r.Seek(int64(f.headerSize), io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to data records: %w", err)
	}
	return f, nil
}

// Format returns the on-disk format of the file.
func (f *File) Format() Format {
	return f.ops.format()
}

// Mode returns the mode the file was opened with.
func (f *File) Mode() Mode {
	return f.mode
}

// NumChannels returns the number of channels of the file.
func (f *File) NumChannels() int {
	return len(f.channels)
}

// NumRecords returns the number of complete records on disk, or -1 if a
// file being read does not declare it.
func (f *File) NumRecords() int {
	n := f.records.Load()
	if n < 0 && f.mode.writing() {
		return 0
	}
	return int(n)
}

// Channel returns the i-th channel, in header order.
func (f *File) Channel(i int) (*Channel, error) {
	if i < 0 || i >= len(f.channels) {
		return nil, fmt.Errorf("%w: channel %d of %d", ErrRange, i, len(f.channels))
	}
	return f.channels[i], nil
}

// AddChannel appends a channel to a file being written.
func (f *File) AddChannel(label string) (*Channel, error) {
	if !f.mode.writing() {
		return nil, ErrMode
	}
	if f.ready {
		return nil, ErrPrepared
	}

	stored := f.ops.defaultType()
	info := stored.Info()
	ch := f.newChannel()
	ch.cfg.stored = stored
	ch.cfg.digitalMin, ch.cfg.digitalMax = info.Min, info.Max
	ch.cfg.physicalMin, ch.cfg.physicalMax = info.Min, info.Max

	if err := ch.Set(FieldLabel, label); err != nil {
		f.channels = f.channels[:len(f.channels)-1]
		return nil, err
	}
	return ch, nil
}

// newChannel appends a channel with the in-memory defaults: float64
// samples packed in array 0 after the previous channel.
func (f *File) newChannel() *Channel {
	offset := 0
	for _, prev := range f.channels {
		if prev.cfg.array == 0 {
			offset = max(offset, prev.cfg.offset+prev.cfg.memory.Size())
		}
	}

	ch := &Channel{
		file:  f,
		index: len(f.channels),
		priv:  f.ops.newChannel(),
		cfg: channelConfig{
			memory: Float64,
			offset: offset,
		},
	}
	f.channels = append(f.channels, ch)
	return ch
}

// DefineArrays declares how many arrays Read and Write will be given and
// the stride in bytes between consecutive samples of each array.
func (f *File) DefineArrays(strides ...int) error {
	if f.ready {
		return ErrPrepared
	}
	if len(strides) == 0 {
		return fmt.Errorf("%w: at least one array is required", ErrInvalidValue)
	}
	for _, s := range strides {
		if s <= 0 {
			return fmt.Errorf("%w: stride %d", ErrInvalidValue, s)
		}
	}
	f.strides = append([]int(nil), strides...)
	return nil
}

// Close flushes pending samples, finalizes the header of a file being
// written and releases every resource. All steps are attempted even if one
// fails; the errors are joined. Closing a closed file returns os.ErrClosed.
func (f *File) Close() error {
	if f.closed {
		return os.ErrClosed
	}
	f.closed = true

	var errs []error

	if f.ready {
		errs = append(errs, f.stopTransfer()...)
	}

	if f.mode.writing() {
		if !f.ready {
			f.records.Store(0)
		}
		if err := f.ops.finalize(f); err != nil {
			errs = append(errs, fmt.Errorf("error finalizing header: %w", err))
		} else if err := syncStorage(f.w); err != nil {
			errs = append(errs, fmt.Errorf("error syncing file: %w", err))
		}
	}

	f.channels = nil
	f.events = events.Table{}
	f.ready = false

	if f.closer != nil {
		if err := f.closer.Close(); err != nil {
			errs = append(errs, err)
		}
		f.closer = nil
	}

	err := errors.Join(errs...)
	if err != nil {
		f.log.Warn("File closed with errors", slog.Any("error", err))
	} else {
		f.log.Debug("File closed", slog.Int("records", f.NumRecords()))
	}
	return err
}
