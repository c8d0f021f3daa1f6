// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package main is the entry point for the xdftool CLI.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/OpenPSG/xdf"
	"github.com/spf13/cobra"
)

var (
	verbose      bool
	outputFormat string
	truncate     bool
	limit        int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "xdftool",
	Short: "Inspect and convert EDF, BDF and GDF recordings",
	Long: `xdftool reads and writes biosignal recordings in the EDF, BDF,
GDF 1.x and GDF 2.x formats.

Examples:
  xdftool info night.edf
  xdftool dump night.edf --limit 100
  xdftool copy night.edf night.gdf --format gdf2`,
	SilenceUsage: true,
}

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Print the header, channels and events of a recording",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print the physical samples of every channel as columns",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

var copyCmd = &cobra.Command{
	Use:   "copy <input> <output>",
	Short: "Re-encode a recording, possibly into another format",
	Args:  cobra.ExactArgs(2),
	RunE:  runCopy,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log transfer details to stderr")

	dumpCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of samples to print (0 for all)")

	copyCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "Output format: edf, bdf, gdf1 or gdf2 (default: same as input)")
	copyCmd.Flags().BoolVar(&truncate, "truncate", false, "Overwrite the output file if it exists")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(copyCmd)
}

func logger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseFormat(s string) (xdf.Format, error) {
	switch strings.ToLower(s) {
	case "":
		return xdf.FormatAny, nil
	case "edf":
		return xdf.FormatEDF, nil
	case "bdf":
		return xdf.FormatBDF, nil
	case "gdf1":
		return xdf.FormatGDF1, nil
	case "gdf", "gdf2":
		return xdf.FormatGDF2, nil
	}
	return xdf.FormatAny, fmt.Errorf("unknown format %q", s)
}

func runInfo(cmd *cobra.Command, args []string) error {
	f, err := xdf.Open(args[0], xdf.ModeRead, xdf.FormatAny, xdf.WithLogger(logger()))
	if err != nil {
		return err
	}
	defer f.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Format:\t%s\n", f.Format())
	for _, field := range []xdf.Field{xdf.FieldSubject, xdf.FieldSession} {
		v, _ := f.GetString(field)
		fmt.Fprintf(w, "%s:\t%s\n", field, v)
	}
	start, _ := f.GetTime(xdf.FieldRecordingTime)
	fmt.Fprintf(w, "%s:\t%s\n", xdf.FieldRecordingTime, start.Format("2006-01-02 15:04:05.000"))
	duration, _ := f.GetFloat(xdf.FieldRecordDuration)
	fmt.Fprintf(w, "%s:\t%gs\n", xdf.FieldRecordDuration, duration)
	nsr, _ := f.GetInt(xdf.FieldSamplesPerRecord)
	fmt.Fprintf(w, "%s:\t%d\n", xdf.FieldSamplesPerRecord, nsr)
	fmt.Fprintf(w, "%s:\t%d\n", xdf.FieldNumRecords, f.NumRecords())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "#\tLabel\tUnit\tType\tPhysical\tDigital\tTransducer")
	for i := 0; i < f.NumChannels(); i++ {
		ch, err := f.Channel(i)
		if err != nil {
			return err
		}
		unit, _ := ch.GetString(xdf.FieldUnit)
		transducer, _ := ch.GetString(xdf.FieldTransducer)
		stored, _ := ch.GetType(xdf.FieldStoredType)
		pmin, _ := ch.GetFloat(xdf.FieldPhysicalMin)
		pmax, _ := ch.GetFloat(xdf.FieldPhysicalMax)
		dmin, _ := ch.GetFloat(xdf.FieldDigitalMin)
		dmax, _ := ch.GetFloat(xdf.FieldDigitalMax)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t[%g, %g]\t[%g, %g]\t%s\n",
			i, ch.Label(), unit, stored, pmin, pmax, dmin, dmax, transducer)
	}

	if f.NumEvents() > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Onset\tDuration\tCode\tLabel")
		for i := 0; i < f.NumEvents(); i++ {
			e, err := f.Event(i)
			if err != nil {
				return err
			}
			code, label, err := f.EventType(e.Type)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%.3f\t%.3f\t0x%04x\t%s\n", e.Onset, e.Duration, code, label)
		}
	}
	return w.Flush()
}

func runDump(cmd *cobra.Command, args []string) error {
	f, err := xdf.Open(args[0], xdf.ModeRead, xdf.FormatAny, xdf.WithLogger(logger()))
	if err != nil {
		return err
	}
	defer f.Close()

	ns := f.NumChannels()
	if ns == 0 {
		return errors.New("recording has no channels")
	}
	if err := f.DefineArrays(8 * ns); err != nil {
		return err
	}
	if err := f.Prepare(); err != nil {
		return err
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	labels := make([]string, ns)
	for i := range labels {
		ch, err := f.Channel(i)
		if err != nil {
			return err
		}
		labels[i] = ch.Label()
	}
	fmt.Fprintln(out, strings.Join(labels, "\t"))

	chunk, _ := f.GetInt(xdf.FieldSamplesPerRecord)
	buf := make([]float64, chunk*ns)
	line := make([]byte, 0, 32*ns)
	for printed := 0; limit <= 0 || printed < limit; {
		want := chunk
		if limit > 0 {
			want = min(want, limit-printed)
		}
		n, err := f.Read(want, xdf.Bytes(buf))
		for i := 0; i < n; i++ {
			line = line[:0]
			for j, v := range buf[i*ns : (i+1)*ns] {
				if j > 0 {
					line = append(line, '\t')
				}
				line = strconv.AppendFloat(line, v, 'g', -1, 64)
			}
			line = append(line, '\n')
			_, _ = out.Write(line)
		}
		printed += n
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return err
		}
	}
	return out.Flush()
}

func runCopy(cmd *cobra.Command, args []string) error {
	log := logger()

	in, err := xdf.Open(args[0], xdf.ModeRead, xdf.FormatAny, xdf.WithLogger(log))
	if err != nil {
		return err
	}
	defer in.Close()

	format, err := parseFormat(outputFormat)
	if err != nil {
		return err
	}
	if format == xdf.FormatAny {
		format = in.Format()
	}
	mode := xdf.ModeWrite
	if truncate {
		mode = xdf.ModeWriteTruncate
	}

	out, err := xdf.Open(args[1], mode, format, xdf.WithLogger(log))
	if err != nil {
		return err
	}
	if err := copyRecording(out, in, log); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// copyRecording copies the configuration, samples and events of in to out.
func copyRecording(out, in *xdf.File, log *slog.Logger) error {
	if err := out.CopyConfig(in); err != nil {
		return fmt.Errorf("error copying file configuration: %w", err)
	}
	ns := in.NumChannels()
	if ns == 0 {
		return errors.New("recording has no channels")
	}
	for i := 0; i < ns; i++ {
		src, err := in.Channel(i)
		if err != nil {
			return err
		}
		dst, err := out.AddChannel(src.Label())
		if err != nil {
			return err
		}
		if err := dst.CopyConfig(src); err != nil {
			return fmt.Errorf("error copying channel %q: %w", src.Label(), err)
		}
	}

	if err := copyEvents(out, in); errors.Is(err, xdf.ErrUnsupported) {
		log.Warn("Dropping events the output format cannot store", slog.Int("events", in.NumEvents()))
	} else if err != nil {
		return err
	}

	for _, f := range []*xdf.File{in, out} {
		if err := f.DefineArrays(8 * ns); err != nil {
			return err
		}
		if err := f.Prepare(); err != nil {
			return err
		}
	}

	chunk, _ := in.GetInt(xdf.FieldSamplesPerRecord)
	buf := make([]float64, chunk*ns)
	for {
		n, err := in.Read(chunk, xdf.Bytes(buf))
		if n > 0 {
			if _, err := out.Write(n, xdf.Bytes(buf[:n*ns])); err != nil {
				return err
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
	}
}

func copyEvents(out, in *xdf.File) error {
	if in.NumEvents() == 0 {
		return nil
	}
	types := make([]int, in.NumEventTypes())
	for i := range types {
		code, label, err := in.EventType(i)
		if err != nil {
			return err
		}
		if types[i], err = out.AddEventType(code, label); err != nil {
			return err
		}
	}
	for i := 0; i < in.NumEvents(); i++ {
		e, err := in.Event(i)
		if err != nil {
			return err
		}
		if err := out.AddEvent(types[e.Type], e.Onset, e.Duration); err != nil {
			return err
		}
	}
	return nil
}
