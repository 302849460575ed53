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
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	m "github.com/mkhts/gnssfix"
)

// Command options
type cmdOpt struct {
	rawFn     string   // Raw measurement JSON file
	navFns    []string // Navigation files
	cfgFn     string   // YAML option file
	posFn     string   // Output file
	metricsFn string   // Metrics output file
	last      bool     // Resolve only the last epoch
	dbg       int      // Debug level
	opt       *m.ResolveOpt
}

// Option file contents. Unset keys keep the defaults.
type fileOpt struct {
	OutlierSigma   *float64 `yaml:"outlier_sigma"`
	ResidualFloor  *float64 `yaml:"residual_floor"`
	ExcludeFlagged *bool    `yaml:"exclude_flagged"`
	Sys            []string `yaml:"sys"`
	ExSats         []string `yaml:"exclude_sats"`
	CnMask         *float64 `yaml:"cn_mask"`
	CnWeight       *bool    `yaml:"cn_weight"`
	ApproxPos      *string  `yaml:"approx_pos"` // "lat lon hei" [deg, deg, m]
}

// Read an option file
func readFileOpt(r io.Reader) (*fileOpt, error) {
	var f fileOpt
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode option file: %w", err)
	}
	return &f, nil
}

// Overwrite opt with the values present in the file
func (f *fileOpt) apply(opt *m.ResolveOpt) error {
	if f.OutlierSigma != nil {
		opt.OutlierSigma = *f.OutlierSigma
	}
	if f.ResidualFloor != nil {
		opt.ResidualFloor = *f.ResidualFloor
	}
	if f.ExcludeFlagged != nil {
		opt.ExcludeFlagged = *f.ExcludeFlagged
	}
	if f.Sys != nil {
		var v sysVar
		if err := v.Set(strings.Join(f.Sys, ",")); err != nil {
			return err
		}
		opt.Sys = v
	}
	if f.ExSats != nil {
		var v satVar
		if err := v.Set(strings.Join(f.ExSats, ",")); err != nil {
			return err
		}
		opt.ExSats = v
	}
	if f.CnMask != nil {
		opt.CnMask = *f.CnMask
	}
	if f.CnWeight != nil {
		opt.CnWeight = *f.CnWeight
	}
	if f.ApproxPos != nil {
		var llh m.PosLLH
		if err := llh.Set(*f.ApproxPos); err != nil {
			return err
		}
		opt.Guess.Pos = llh.ToXYZ()
	}
	return nil
}

// Satellite system list flag like "G,E,C"
type sysVar []m.SysType

func (p *sysVar) Set(s string) error {
	*p = []m.SysType{}
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if len(a) != 1 || !m.SysType(a[0]).IsValid() {
			return fmt.Errorf("unknown satellite system %q", a)
		}
		*p = append(*p, m.SysType(a[0]))
	}
	return nil
}

func (p *sysVar) String() string {
	if p == nil {
		return ""
	}
	ss := make([]string, len(*p))
	for i, v := range *p {
		ss[i] = v.String()
	}
	return strings.Join(ss, ",")
}

// Satellite list flag like "C02,E14"
type satVar []m.SatType

func (p *satVar) Set(s string) error {
	*p = []m.SatType{}
	for _, a := range strings.Split(s, ",") {
		sat := m.SatType(strings.TrimSpace(a))
		if !sat.IsValid() {
			return fmt.Errorf("invalid satellite name %q", a)
		}
		*p = append(*p, sat)
	}
	return nil
}

func (p *satVar) String() string {
	if p == nil {
		return ""
	}
	ss := make([]string, len(*p))
	for i, v := range *p {
		ss[i] = string(v)
	}
	return strings.Join(ss, ",")
}

// Parse command line arguments.
// Values from the -c file override the defaults; flags given explicitly override the file.
func parseArgs(fs *flag.FlagSet, args []string) (a cmdOpt, err error) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `
[Usage]
	%s [Options] measurements.json nav_file.rnx [nav_file2.rnx ...]

[Options]
`, filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
	def := m.NewResolveOpt()
	var sys sysVar
	var exSats satVar
	var sigma, floor, cnMask float64
	var noExclude, cnWeight bool
	var approx m.PosLLH
	fs.Var(&sys, "sys", "Satellite systems to use. G(GPS), J(QZSS), E(Galileo), R(Glonass), C(Beidou). Comma-separated without spaces. Default: all")
	fs.Var(&exSats, "ex", "List of satellites to exclude. Comma-separated satellite names without spaces like C02,E14.")
	fs.Float64Var(&cnMask, "cn", def.CnMask, "Signal strength mask [dB-Hz]. Set to 0 for no mask.")
	fs.Float64Var(&sigma, "k", def.OutlierSigma, "Residual outlier threshold in standard deviations.")
	fs.Float64Var(&floor, "rf", def.ResidualFloor, "Lower bound of the residual spread used for outlier flagging [m].")
	fs.BoolVar(&noExclude, "nx", !def.ExcludeFlagged, "Keep flagged satellites in the published solution (flag only).")
	fs.BoolVar(&cnWeight, "w", def.CnWeight, "Weight pseudoranges by C/N0.")
	fs.Var(&approx, "p", "Approximate receiver position \"lat lon hei\" [deg, deg, m] to start the solver from. Default: earth centre")
	fs.BoolVar(&a.last, "last", false, "Resolve only the last epoch of the measurement file.")
	fs.StringVar(&a.cfgFn, "c", "", "YAML option file. Flags given on the command line take precedence.")
	fs.StringVar(&a.posFn, "o", "", "Output file path. If not specified, output to stdout.")
	fs.StringVar(&a.metricsFn, "metrics", "", "Write Prometheus text metrics to this file after processing.")
	fs.IntVar(&a.dbg, "x", 0, "Debug information display. Specify level value. 0(warnings), 1(info), 2(debug)")
	if err = fs.Parse(args); err != nil {
		return a, err
	}
	if fs.NArg() < 2 {
		return a, fmt.Errorf("too few arguments")
	}
	a.rawFn = fs.Arg(0)
	a.navFns = fs.Args()[1:]

	a.opt = m.NewResolveOpt()
	if a.cfgFn != "" {
		f, err := os.Open(a.cfgFn)
		if err != nil {
			return a, err
		}
		defer f.Close()
		fo, err := readFileOpt(f)
		if err != nil {
			return a, err
		}
		if err := fo.apply(a.opt); err != nil {
			return a, fmt.Errorf("%s: %w", a.cfgFn, err)
		}
	}

	// Explicit flags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sys":
			a.opt.Sys = sys
		case "ex":
			a.opt.ExSats = exSats
		case "cn":
			a.opt.CnMask = cnMask
		case "k":
			a.opt.OutlierSigma = sigma
		case "rf":
			a.opt.ResidualFloor = floor
		case "nx":
			a.opt.ExcludeFlagged = !noExclude
		case "w":
			a.opt.CnWeight = cnWeight
		case "p":
			a.opt.Guess.Pos = approx.ToXYZ()
		}
	})
	return a, nil
}
