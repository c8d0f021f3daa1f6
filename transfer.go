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
	"io"
	"log/slog"

	"github.com/OpenPSG/xdf/internal/convert"
)

// order hands a sample buffer to the worker: a full one to write, or an
// empty one to fill.
type order struct {
	buf []byte
}

// result hands the buffer of the last order back to the caller.
type result struct {
	buf    []byte
	record int64
	err    error
}

// transfer is the state of a prepared file. Two sample buffers of one
// record each circulate between the caller and the worker goroutine; at
// most one order is in flight.
type transfer struct {
	sampleSize int // Bytes of one sample across all transferred channels
	recordSize int // Bytes of one record on disk
	boffs      []int
	doffs      []int
	plans      []convert.Plan
	batches    []batch
	starts     []int // Array position of the first batch of each array
	apos       []int

	// Owned by the caller.
	front       []byte
	back        []byte // nil while an order is in flight
	pos         int    // Samples of front already filled or consumed
	frontRecord int64
	skipTo      int // Position to start at in the next record
	lastRecord  int64
	pending     bool
	err         error

	// Owned by whoever holds the worker: the worker goroutine while an
	// order is in flight, the caller otherwise.
	record []byte
	tmp    []byte
	cursor int64

	orders  chan order
	results chan result
	done    chan struct{}
}

// Prepare freezes the configuration, allocates the transfer buffers and
// starts the background worker. In write mode the header is written
// before it returns.
func (f *File) Prepare() error {
	if f.ready {
		return ErrPrepared
	}
	if len(f.channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrInvalidValue)
	}
	if f.strides == nil {
		return fmt.Errorf("%w: arrays are not defined", ErrArrays)
	}
	nsr := f.cfg.samplesPerRecord
	if nsr <= 0 {
		return fmt.Errorf("%w: %d samples per record", ErrInvalidValue, nsr)
	}

	x := transfer{
		boffs: make([]int, len(f.channels)),
		doffs: make([]int, len(f.channels)),
		plans: make([]convert.Plan, len(f.channels)),
	}
	for i, ch := range f.channels {
		if ch.cfg.array < 0 {
			x.boffs[i] = -1
		} else {
			x.boffs[i] = x.sampleSize
			x.sampleSize += ch.cfg.memory.Size()
		}
		x.doffs[i] = x.recordSize
		x.recordSize += nsr * ch.cfg.stored.Size()
	}

	batches, err := planBatches(f.channels, x.boffs, f.strides)
	if err != nil {
		return err
	}
	x.batches = batches
	x.starts = make([]int, len(f.strides))
	x.apos = make([]int, len(f.strides))
	for i := len(batches) - 1; i >= 0; i-- {
		x.starts[batches[i].array] = batches[i].moff
	}

	for i, ch := range f.channels {
		if x.boffs[i] < 0 {
			continue
		}
		c := ch.cfg
		mem := convert.Endpoint{Type: c.memory, Stride: x.sampleSize}
		disk := convert.Endpoint{Type: c.stored, Stride: c.stored.Size()}
		if !c.digital {
			if c.physicalMin == c.physicalMax || c.digitalMin == c.digitalMax {
				return fmt.Errorf("%w: channel %d has an empty range", ErrInvalidValue, i)
			}
			mem.Range = &[2]float64{c.physicalMin, c.physicalMax}
			disk.Range = &[2]float64{c.digitalMin, c.digitalMax}
		}
		if f.mode.writing() {
			x.plans[i] = convert.NewPlan(mem, disk, convert.SwapAfter, convert.HostBigEndian)
		} else {
			x.plans[i] = convert.NewPlan(disk, mem, convert.SwapBefore, convert.HostBigEndian)
		}
	}

	x.front = make([]byte, nsr*x.sampleSize)
	x.back = make([]byte, nsr*x.sampleSize)
	x.record = make([]byte, x.recordSize)
	x.tmp = make([]byte, 8*nsr)
	x.frontRecord = -1
	x.orders = make(chan order, 1)
	x.results = make(chan result, 1)
	x.done = make(chan struct{})

	if f.mode.writing() {
		f.records.Store(-1)
		if err := f.ops.writeHeader(f); err != nil {
			return fmt.Errorf("error writing header: %w", err)
		}
		if err := syncStorage(f.w); err != nil {
			return fmt.Errorf("error syncing header: %w", err)
		}
		f.records.Store(0)
	} else {
		// Nothing is buffered yet: the first Read waits for the first
		// record.
		x.pos = nsr
	}

	f.xfer = x
	f.ready = true
	go f.work(&f.xfer)

	if !f.mode.writing() {
		f.order(f.xfer.back)
	}

	f.log.Debug("Transfer prepared",
		slog.Int("channels", len(f.channels)),
		slog.Int("batches", len(batches)),
		slog.Int("samplesPerRecord", nsr),
		slog.Int("recordSize", x.recordSize))
	return nil
}

// work is the worker loop. It stops when the orders channel is closed,
// after finishing the order in progress.
func (f *File) work(x *transfer) {
	defer close(x.done)
	for o := range x.orders {
		var err error
		if f.mode.writing() {
			err = f.writeRecord(o.buf)
		} else {
			err = f.readRecord(o.buf)
		}
		x.results <- result{buf: o.buf, record: x.cursor - 1, err: err}
	}
}

// writeRecord converts one buffer of samples to a disk record and writes
// it at the current position.
func (f *File) writeRecord(buf []byte) error {
	x := &f.xfer
	nsr := f.cfg.samplesPerRecord
	for i := range f.channels {
		x.plans[i].Apply(x.record[x.doffs[i]:], buf[x.boffs[i]:], x.tmp, nsr)
	}

	if _, err := f.w.Write(x.record); err != nil {
		return fmt.Errorf("error writing record: %w", err)
	}
	if err := syncStorage(f.w); err != nil {
		return fmt.Errorf("error syncing record: %w", err)
	}
	f.records.Add(1)
	x.cursor++
	return nil
}

// readRecord reads the disk record at the current position and converts
// it into buf. It returns io.EOF past the last record.
func (f *File) readRecord(buf []byte) error {
	x := &f.xfer
	total := f.records.Load()
	if total >= 0 && x.cursor >= total {
		return io.EOF
	}

	if _, err := io.ReadFull(f.r, x.record); err != nil {
		if total < 0 && errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("error reading record %d: %w", x.cursor, err)
	}

	nsr := f.cfg.samplesPerRecord
	for i := range f.channels {
		if x.boffs[i] < 0 {
			continue
		}
		x.plans[i].Apply(buf[x.boffs[i]:], x.record[x.doffs[i]:], x.tmp, nsr)
	}
	x.cursor++
	return nil
}

func (f *File) order(buf []byte) {
	x := &f.xfer
	x.orders <- order{buf: buf}
	x.back = nil
	x.pending = true
}

// waitTransfer blocks until the order in flight, if any, is done and takes
// its buffer back.
func (f *File) waitTransfer() error {
	x := &f.xfer
	if !x.pending {
		return nil
	}
	r := <-x.results
	x.pending = false
	x.back = r.buf
	x.lastRecord = r.record
	if r.err != nil && !errors.Is(r.err, io.EOF) {
		f.log.Warn("Record transfer failed", slog.Any("error", r.err))
	}
	return r.err
}

// pushRecord sends the full front buffer to the worker once the previous
// record is written.
func (f *File) pushRecord() error {
	x := &f.xfer
	if err := f.waitTransfer(); err != nil {
		x.err = err
		return err
	}
	full := x.front
	x.front = x.back
	f.order(full)
	x.pos = 0
	return nil
}

// pullRecord swaps in the record read by the worker and orders the next
// one.
func (f *File) pullRecord() error {
	x := &f.xfer
	if !x.pending {
		if x.err != nil {
			return x.err
		}
		return io.EOF
	}
	if err := f.waitTransfer(); err != nil {
		if !errors.Is(err, io.EOF) {
			x.err = err
		}
		return err
	}

	x.front, x.back = x.back, x.front
	x.frontRecord = x.lastRecord
	x.pos, x.skipTo = x.skipTo, 0
	f.order(x.back)
	return nil
}

// checkArrays validates the arrays given to a transfer of n samples.
func (f *File) checkArrays(n int, arrays [][]byte) error {
	if !f.ready {
		return ErrNotPrepared
	}
	if n < 0 {
		return fmt.Errorf("%w: %d samples", ErrInvalidValue, n)
	}
	if len(arrays) != len(f.strides) {
		return fmt.Errorf("%w: got %d arrays, expected %d", ErrArrays, len(arrays), len(f.strides))
	}
	for i, a := range arrays {
		if len(a) < n*f.strides[i] {
			return fmt.Errorf("%w: array %d holds %d bytes, %d needed", ErrArrays, i, len(a), n*f.strides[i])
		}
	}
	return nil
}

// Write appends n samples taken from arrays, laid out as declared by
// DefineArrays. It returns the number of samples accepted, which is less
// than n only if writing a previous record failed.
func (f *File) Write(n int, arrays ...[]byte) (int, error) {
	if !f.mode.writing() {
		return 0, ErrMode
	}
	if err := f.checkArrays(n, arrays); err != nil {
		return 0, err
	}
	x := &f.xfer
	if x.err != nil {
		return 0, x.err
	}

	nsr := f.cfg.samplesPerRecord
	copy(x.apos, x.starts)
	for i := 0; i < n; i++ {
		if x.pos == nsr {
			if err := f.pushRecord(); err != nil {
				return i, err
			}
		}

		sample := x.front[x.pos*x.sampleSize:]
		for _, b := range x.batches {
			p := x.apos[b.array]
			copy(sample[b.foff:b.foff+b.len], arrays[b.array][p:p+b.len])
			x.apos[b.array] = p + b.skip
		}
		x.pos++
	}
	return n, nil
}

// Read fills arrays with up to n samples. When the end of the recording
// is reached it returns the number of samples read along with io.EOF.
func (f *File) Read(n int, arrays ...[]byte) (int, error) {
	if f.mode.writing() {
		return 0, ErrMode
	}
	if err := f.checkArrays(n, arrays); err != nil {
		return 0, err
	}
	x := &f.xfer

	nsr := f.cfg.samplesPerRecord
	copy(x.apos, x.starts)
	for i := 0; i < n; i++ {
		if x.pos == nsr {
			if err := f.pullRecord(); err != nil {
				return i, err
			}
		}

		sample := x.front[x.pos*x.sampleSize:]
		for _, b := range x.batches {
			p := x.apos[b.array]
			copy(arrays[b.array][p:p+b.len], sample[b.foff:b.foff+b.len])
			x.apos[b.array] = p + b.skip
		}
		x.pos++
	}
	return n, nil
}

// tell returns the index of the next sample Read returns.
func (f *File) tell() int64 {
	x := &f.xfer
	nsr := int64(f.cfg.samplesPerRecord)
	if x.pos == f.cfg.samplesPerRecord {
		return (x.frontRecord+1)*nsr + int64(x.skipTo)
	}
	return x.frontRecord*nsr + int64(x.pos)
}

// Seek moves the read position to a sample index, interpreted according
// to whence as in io.Seeker. It returns the new absolute position.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.mode.writing() {
		return 0, ErrMode
	}
	if !f.ready {
		return 0, ErrNotPrepared
	}
	x := &f.xfer
	nsr := int64(f.cfg.samplesPerRecord)
	records := f.records.Load()
	total := records * nsr

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.tell() + offset
	case io.SeekEnd:
		if records < 0 {
			return 0, fmt.Errorf("%w: record count unknown", ErrRange)
		}
		target = total + offset
	default:
		return 0, fmt.Errorf("%w: whence %d", ErrInvalidValue, whence)
	}
	if target < 0 || (records >= 0 && target >= total) {
		return 0, fmt.Errorf("%w: sample %d of %d", ErrRange, target, total)
	}

	rec, off := target/nsr, int(target%nsr)
	switch {
	case rec == x.frontRecord:
		x.pos, x.skipTo = off, 0
	case rec == x.frontRecord+1 && x.pending:
		x.pos, x.skipTo = int(nsr), off
	default:
		if err := f.resync(rec, off); err != nil {
			return 0, err
		}
	}
	return target, nil
}

// resync discards the record in flight, reads record rec synchronously
// into the front buffer and restarts prefetching after it.
func (f *File) resync(rec int64, off int) error {
	x := &f.xfer
	f.log.Debug("Resynchronizing transfer", slog.Int64("record", rec))

	_ = f.waitTransfer()
	x.err = nil

	fail := func(err error) error {
		x.frontRecord, x.pos, x.skipTo = -1, f.cfg.samplesPerRecord, 0
		x.err = err
		return err
	}

	pos := int64(f.headerSize) + rec*int64(x.recordSize)
	if _, err := f.s.Seek(pos, io.SeekStart); err != nil {
		return fail(fmt.Errorf("error seeking to record %d: %w", rec, err))
	}
	x.cursor = rec
	if err := f.readRecord(x.front); err != nil {
		return fail(err)
	}

	x.frontRecord, x.pos, x.skipTo = rec, off, 0
	f.order(x.back)
	return nil
}

// stopTransfer flushes a partial record in write mode, then stops the
// worker. A write error that stopped the transfer earlier is reported
// again.
func (f *File) stopTransfer() []error {
	x := &f.xfer
	var errs []error

	if f.mode.writing() && x.err != nil {
		errs = append(errs, x.err)
	}
	if f.mode.writing() && x.err == nil && x.pos > 0 {
		clear(x.front[x.pos*x.sampleSize:])
		if err := f.pushRecord(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := f.waitTransfer(); err != nil && f.mode.writing() {
		errs = append(errs, err)
	}

	close(x.orders)
	<-x.done

	f.xfer = transfer{}
	return errs
}
