// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	m "github.com/mkhts/gnssfix"
	"github.com/mkhts/gnssfix/internal/metrics"
)

func main() {

	// Parse command line arguments
	args, err := parseArgs(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "err=%s\n", err.Error())
		flag.CommandLine.Usage()
		os.Exit(1)
	}

	// Run the main application
	if err := runApplication(args); err != nil {
		fmt.Fprintf(os.Stderr, "err=%s\n", err.Error())
		os.Exit(1)
	}
}

// Logger on stderr whose level follows the -x option
func newLogger(dbg int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case dbg >= 2:
		level = slog.LevelDebug
	case dbg == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Main application processing
func runApplication(args cmdOpt) error {

	log := newLogger(args.dbg)
	args.opt.Logger = log

	reg := prometheus.NewRegistry()
	col, err := metrics.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}

	// Load navigation files
	store := m.NewEphemerisStore()
	for _, fn := range args.navFns {
		nav, err := readNav(fn)
		if err != nil {
			return fmt.Errorf("failed to read navigation file %s: %w", fn, err)
		}
		n := store.Ingest(nav.Records, nav.Leap())
		log.Info("navigation file loaded", "file", filepath.Base(fn), "records", len(nav.Records), "new", n, "skipped", nav.Skipped)
	}
	snap := store.Snapshot()
	col.ObserveStore(snap)
	if args.dbg >= 2 {
		fmt.Fprint(os.Stderr, snap)
	}

	// Load measurements
	epochs, err := readEpochs(args.rawFn, snap, log)
	if err != nil {
		return fmt.Errorf("failed to read measurement file: %w", err)
	}
	if len(epochs) == 0 {
		return fmt.Errorf("no valid measurement epochs in %s", args.rawFn)
	}
	if args.last {
		epochs = epochs[len(epochs)-1:]
	}

	// Prepare output file
	pos, err := prepareOutput(args.posFn)
	if err != nil {
		return fmt.Errorf("failed to prepare output: %w", err)
	}
	defer pos.Close()

	printHeader(pos, args)
	for _, epoch := range epochs {
		res, err := m.Resolve(epoch, snap, args.opt)
		col.ObserveResolve(res, err)
		printResult(pos, epoch, res, err)
	}

	if args.metricsFn != "" {
		if err := writeMetrics(args.metricsFn, col); err != nil {
			return err
		}
	}
	return nil
}

// Read navigation file
func readNav(fn string) (*m.NavData, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return m.ReadNav(f, filepath.Base(fn))
}

// Read raw measurement file and build epochs
func readEpochs(fn string, src m.EphemerisSource, log *slog.Logger) ([]*m.MeasurementEpoch, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := m.ReadRaw(f)
	if err != nil {
		return nil, err
	}
	var leap *int
	if l, ok := src.LeapSeconds(); ok {
		leap = &l
	}
	epochs, err := m.EpochsFromRaw(rows, leap)
	if err != nil {
		// Rejected rows do not stop processing
		log.Info("rows rejected", "err", err)
	}
	return epochs, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Prepare output file
func prepareOutput(fn string) (io.WriteCloser, error) {
	if fn == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(fn)
}

func writeMetrics(fn string, col *metrics.Collector) error {
	f, err := os.Create(fn)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer f.Close()
	return col.WriteText(f)
}

// Print output header
func printHeader(w io.Writer, args cmdOpt) {
	fmt.Fprintf(w, "%% program   : %s\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(w, "%% inp file  : %s\n", args.rawFn)
	for _, fn := range args.navFns {
		fmt.Fprintf(w, "%% inp file  : %s\n", fn)
	}
	fmt.Fprintf(w, "%%  GPST                    label     latitude(deg) longitude(deg)  height(m)  ns  flagged    clk_bias(s)       gdop\n")
}

// Print one line for the published fix and one per constellation
func printResult(w io.Writer, epoch *m.MeasurementEpoch, res *m.OverallResult, err error) {
	ts := epoch.Time.ToTime().UTC().Format("2006/01/02 15:04:05.000")
	if res == nil {
		fmt.Fprintf(w, "%s  %-8s %v\n", ts, "error", err)
		return
	}
	if res.Published != nil {
		printFix(w, ts, res.Published)
	} else {
		fmt.Fprintf(w, "%s  %-8s %v\n", ts, "nofix", err)
	}
	for _, cr := range res.Constellations {
		if cr.Fix != nil {
			printFix(w, "  "+ts, cr.Fix)
		} else {
			fmt.Fprintf(w, "  %s  %-8s %v\n", ts, cr.Sys.Name(), cr.Err)
		}
	}
	if res.Combined != nil {
		printFix(w, "  "+ts, res.Combined)
	}
}

func printFix(w io.Writer, ts string, fix *m.PositionFix) {
	fmt.Fprintf(w, "%s  %-8s %14.9f %14.9f %10.4f %3d %8d %14.6e %10.3f\n",
		ts, fix.Label, m.ToDeg(fix.LLH.Lat), m.ToDeg(fix.LLH.Lon), fix.LLH.Hei,
		len(fix.Sats), len(fix.Flagged), fix.ClockBias, fix.Dop.GDOP)
}
