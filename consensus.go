// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Implements per-constellation position solving, outlier flagging and the
// selection of the published fix.

package gnssfix

import (
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Label of the multi-constellation fix
const CombinedLabel = "combined"

// ResolveOpt contains options for Resolve
type ResolveOpt struct {
	OutlierSigma   float64      // Leave-one-out residuals beyond OutlierSigma * max(std, ResidualFloor) from the mean of the others are flagged
	ResidualFloor  float64      // Lower bound of the spread used for flagging [m]
	Guess          Guess        // Initial receiver position and clock bias of every solve
	ExcludeFlagged bool         // Re-solve without flagged satellites
	Sys            []SysType    // Satellite systems to use. Empty means all
	ExSats         []SatType    // Satellites to exclude
	CnMask         float64      // Signal strength mask [dB-Hz]. 0 means off
	CnWeight       bool         // Weight observations by C/N0 instead of equally
	Logger         *slog.Logger // Debug trace. nil discards
}

// NewResolveOpt creates a new ResolveOpt with default values
func NewResolveOpt() *ResolveOpt {
	return &ResolveOpt{
		OutlierSigma:   2.0,
		ResidualFloor:  1.0,
		ExcludeFlagged: true,
		Sys:            []SysType{},
		ExSats:         []SatType{},
		CnMask:         0,
		CnWeight:       false,
		Guess:          Guess{},
		Logger:         nil,
	}
}

// Summary of post-fit residuals [m]
type ResidualStats struct {
	Count  int
	Mean   float64
	Std    float64 // Sample standard deviation
	RMS    float64
	MaxAbs float64
}

// PositionFix is one solved receiver position
type PositionFix struct {
	Label      string  // Constellation name or CombinedLabel
	Sys        SysType // 0 for the combined fix
	LLH        PosLLH
	ECEF       PosXYZ
	ClockBias  float64             // Receiver clock bias [s]
	ISB        map[SysType]float64 // Inter-system biases against the first system [s] (combined fix only)
	Sats       []SatType           // Satellites used
	Flagged    []SatType           // Satellites whose residual was flagged
	Residuals  map[SatType]float64 // Residuals of satellites used [m]
	Stats      ResidualStats
	Dop        Dop
	Iterations int
	Converged  bool
}

// Outcome of one constellation
type ConstellationResult struct {
	Sys       SysType
	Sats      []SatType    // Satellites with ephemeris and pseudorange
	Flagged   []SatType    // Satellites flagged in the first solve
	Ambiguous bool         // Residuals inconsistent but the faulty satellite not located; Flagged holds every suspect
	Fix       *PositionFix // nil on failure
	Err       error
}

// OverallResult holds the published fix and all per-constellation reports
type OverallResult struct {
	Time           GTime
	Published      *PositionFix // Fix closest to the mean of all fixes, nil on failure
	Mean           PosXYZ       // Mean of the successful fixes
	Constellations []*ConstellationResult
	Combined       *PositionFix      // Multi-clock solve over every usable satellite, informational
	Excluded       map[SatType]error // Satellites dropped before solving and the reason
}

// Per-satellite inputs to the solver
type satObs struct {
	sat   SatType
	pos   PosXYZ
	pr    float64 // Pseudorange corrected for satellite clock bias [m]
	cn0   float64
	state *SatelliteState
}

// Resolve computes per-constellation fixes for one measurement epoch and
// publishes the one closest to their mean.
// Per-satellite and per-constellation failures are recorded in the result.
// The returned error is ErrInvalidMeasurement for a malformed epoch, or
// ErrNoValidFix (with a non-nil result) when no constellation could be solved.
func Resolve(batch *MeasurementEpoch, src EphemerisSource, opt *ResolveOpt) (*OverallResult, error) {

	if opt == nil {
		opt = NewResolveOpt()
	}
	log := opt.Logger
	if log == nil {
		log = discardLogger()
	}

	if batch == nil {
		return nil, fmt.Errorf("nil epoch: %w", ErrInvalidMeasurement)
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	rslt := &OverallResult{
		Time:     batch.Time,
		Excluded: map[SatType]error{},
	}

	// Select satellites and compute their states
	obs := selectSatellites(batch, src, opt, rslt, log)

	// Solve each constellation in processing order
	fixes := []*PositionFix{}
	bySys := batch.BySys()
	for _, sys := range AllSys {
		if _, ok := bySys[sys]; !ok {
			continue
		}
		if len(opt.Sys) > 0 && !slices.Contains(opt.Sys, sys) {
			rslt.Constellations = append(rslt.Constellations, &ConstellationResult{
				Sys: sys,
				Err: fmt.Errorf("%s: system not selected: %w", sys.Name(), ErrMasked),
			})
			continue
		}
		rslt.Constellations = append(rslt.Constellations, solveConstellation(sys, obs[sys], opt, log))
	}
	locateAmbiguous(rslt.Constellations, obs, opt, log)
	for _, cr := range rslt.Constellations {
		if cr.Err != nil {
			log.Debug("constellation failed", "sys", cr.Sys.Name(), "reason", cr.Err)
			continue
		}
		fixes = append(fixes, cr.Fix)
	}

	rslt.Combined = solveCombined(rslt.Constellations, obs, opt, log)

	best, mean, err := SelectConsensus(fixes)
	if err != nil {
		log.Warn("no valid fix", "time", batch.Time.String())
		return rslt, err
	}
	rslt.Published = best
	rslt.Mean = mean
	log.Debug("published", "label", best.Label, "llh", best.LLH.String())
	return rslt, nil
}

// Look up ephemerides, apply masks and propagate each satellite to its transmit time
func selectSatellites(batch *MeasurementEpoch, src EphemerisSource, opt *ResolveOpt, rslt *OverallResult, log *slog.Logger) map[SysType][]satObs {

	ephs := src.Lookup(batch.Time, batch.Satellites())

	exclude := func(sat SatType, err error) {
		rslt.Excluded[sat] = err
		log.Debug("exclude satellite", "sat", string(sat), "sys", sat.Sys().Name(), "reason", err)
	}

	obs := map[SysType][]satObs{}
	for _, m := range sortedMeasurements(batch) {
		sat := m.Sat

		if len(opt.Sys) > 0 && !slices.Contains(opt.Sys, sat.Sys()) {
			exclude(sat, fmt.Errorf("system %s not selected: %w", sat.Sys().Name(), ErrMasked))
			continue
		}
		if slices.Contains(opt.ExSats, sat) {
			exclude(sat, fmt.Errorf("excluded satellite: %w", ErrMasked))
			continue
		}
		if opt.CnMask > 0 && m.Cn0 < opt.CnMask {
			exclude(sat, fmt.Errorf("c/n0 %.1f < %.1f: %w", m.Cn0, opt.CnMask, ErrMasked))
			continue
		}

		eph, ok := ephs[sat]
		if !ok {
			exclude(sat, fmt.Errorf("no ephemeris before %s: %w", batch.Time, ErrDataUnavailable))
			continue
		}

		o, err := transmitState(eph, batch.Time, m)
		if err != nil {
			exclude(sat, err)
			continue
		}
		if o.state.Stale {
			log.Warn("stale ephemeris", "sat", string(sat), "age", o.state.Age)
		}
		obs[sat.Sys()] = append(obs[sat.Sys()], o)
	}
	return obs
}

// Satellite state at its own transmit time and the clock corrected pseudorange.
// tx = t - pr/c does not depend on the receiver clock bias, which is common to
// both t and pr.
func transmitState(eph *EphemerisRecord, t GTime, m SatMeasurement) (satObs, error) {
	tau := m.Pseudorange / C
	tx := t.Add(-tau)

	// Satellite clock bias at the nominal transmit time
	st, err := Propagate(eph, tx)
	if err != nil {
		return satObs{}, err
	}

	// Corrected transmit time, position rotated for the signal travel
	st, err = PropagateAt(eph, tx.Add(-st.ClockBias), tau+st.ClockBias)
	if err != nil {
		return satObs{}, err
	}

	return satObs{
		sat:   m.Sat,
		pos:   st.Pos,
		pr:    m.Pseudorange + C*st.ClockBias,
		cn0:   m.Cn0,
		state: st,
	}, nil
}

// Solve one constellation, flag outliers and optionally re-solve without them
func solveConstellation(sys SysType, obs []satObs, opt *ResolveOpt, log *slog.Logger) *ConstellationResult {

	cr := &ConstellationResult{Sys: sys}
	for _, o := range obs {
		cr.Sats = append(cr.Sats, o.sat)
	}
	if len(obs) < MinSats {
		cr.Err = fmt.Errorf("%s: %d < %d: %w", sys.Name(), len(obs), MinSats, ErrInsufficientSatellites)
		return cr
	}

	sol, err := solveObs(obs, nil, opt)
	if err != nil {
		cr.Err = fmt.Errorf("%s: %w", sys.Name(), err)
		return cr
	}
	if !sol.Converged {
		log.Warn("solution not converged", "sys", sys.Name(), "iterations", sol.Iterations)
	}

	idx, ambiguous := flagOutliers(obs, opt)
	if ambiguous {
		log.Debug("faulty satellite not located", "sys", sys.Name(), "suspects", len(idx))
	}
	cr.Ambiguous = ambiguous
	applyFlags(cr, obs, sol, idx, opt, log)
	return cr
}

// Record flagged satellites and build the constellation fix, re-solving
// without them when enabled and at least MinSats remain
func applyFlags(cr *ConstellationResult, obs []satObs, sol *Solution, idx []int, opt *ResolveOpt, log *slog.Logger) {
	sys := cr.Sys
	cr.Flagged = nil
	for _, i := range idx {
		cr.Flagged = append(cr.Flagged, obs[i].sat)
		log.Debug("flag satellite", "sat", string(obs[i].sat), "sys", sys.Name())
	}

	fix := newFix(sys.Name(), sys, obs, sol, nil)

	// Re-solve without flagged satellites
	if opt.ExcludeFlagged && len(idx) > 0 && len(obs)-len(idx) >= MinSats {
		kept := make([]satObs, 0, len(obs)-len(idx))
		for i, o := range obs {
			if !slices.Contains(idx, i) {
				kept = append(kept, o)
			}
		}
		sol2, err := solveObs(kept, nil, opt)
		if err != nil {
			log.Debug("re-solve failed, keeping initial solution", "sys", sys.Name(), "reason", err)
		} else {
			fix = newFix(sys.Name(), sys, kept, sol2, nil)
		}
	}
	fix.Flagged = cr.Flagged
	cr.Fix = fix
}

// Retry constellations whose faulty satellite could not be located, with the
// receiver position fixed at the mean of the other constellations' fixes
func locateAmbiguous(crs []*ConstellationResult, obs map[SysType][]satObs, opt *ResolveOpt, log *slog.Logger) {
	for _, cr := range crs {
		if !cr.Ambiguous || cr.Fix == nil {
			continue
		}
		var refs []PosXYZ
		for _, o := range crs {
			if o != cr && o.Fix != nil && !o.Ambiguous {
				refs = append(refs, o.Fix.ECEF)
			}
		}
		if len(refs) == 0 {
			log.Warn("inconsistent residuals, no reference to locate the faulty satellite", "sys", cr.Sys.Name())
			continue
		}
		idx := flagAgainst(obs[cr.Sys], MeanXYZ(refs), opt)
		if len(idx) == 0 || len(idx) == len(obs[cr.Sys]) {
			continue
		}
		sol, err := solveObs(obs[cr.Sys], nil, opt)
		if err != nil {
			continue
		}
		cr.Ambiguous = false
		applyFlags(cr, obs[cr.Sys], sol, idx, opt, log)
	}
}

// Multi-clock solve over the non-flagged satellites of every constellation with data.
// Suspects of an ambiguous constellation are kept.
func solveCombined(crs []*ConstellationResult, obs map[SysType][]satObs, opt *ResolveOpt, log *slog.Logger) *PositionFix {

	var all []satObs
	var groups []int
	var systems []SysType
	for _, cr := range crs {
		g := len(systems)
		n := len(all)
		for _, o := range obs[cr.Sys] {
			if !cr.Ambiguous && slices.Contains(cr.Flagged, o.sat) {
				continue
			}
			all = append(all, o)
			groups = append(groups, g)
		}
		if len(all) > n {
			systems = append(systems, cr.Sys)
		}
	}
	if len(systems) < 2 {
		return nil
	}

	sol, err := solveObs(all, groups, opt)
	if err != nil {
		log.Debug("combined solve failed", "reason", err)
		return nil
	}
	isb := map[SysType]float64{}
	for j, v := range sol.ISB {
		isb[systems[j+1]] = v
	}
	return newFix(CombinedLabel, 0, all, sol, isb)
}

func solveObs(obs []satObs, groups []int, opt *ResolveOpt) (*Solution, error) {
	pos := make([]PosXYZ, len(obs))
	pr := make([]float64, len(obs))
	cn0 := make([]float64, len(obs))
	for i, o := range obs {
		pos[i] = o.pos
		pr[i] = o.pr
		cn0[i] = o.cn0
	}
	var w []float64
	if opt.CnWeight {
		w = CnWeights(cn0)
	}
	return SolveMulti(pos, pr, groups, opt.Guess, w)
}

func newFix(label string, sys SysType, obs []satObs, sol *Solution, isb map[SysType]float64) *PositionFix {
	fix := &PositionFix{
		Label:      label,
		Sys:        sys,
		ECEF:       sol.Pos,
		LLH:        sol.Pos.ToLLH(),
		ClockBias:  sol.ClockBias,
		ISB:        isb,
		Residuals:  make(map[SatType]float64, len(obs)),
		Stats:      CalcResidualStats(sol.Residuals),
		Dop:        sol.Dop,
		Iterations: sol.Iterations,
		Converged:  sol.Converged,
	}
	for i, o := range obs {
		fix.Sats = append(fix.Sats, o.sat)
		fix.Residuals[o.sat] = sol.Residuals[i]
	}
	return fix
}

// Leave-one-out residual check.
// Each satellite's residual against the solution of the others is compared
// with the others' residuals: it fails when farther than k * max(std, floor)
// from their mean. When several fail, the one whose exclusion leaves a spread
// smaller than k * max(spread, floor) of every other candidate's is returned
// alone. Otherwise every failing satellite is returned and ambiguous is set.
// Nothing is flagged with MinSats satellites or fewer.
func flagOutliers(obs []satObs, opt *ResolveOpt) (idx []int, ambiguous bool) {
	if len(obs) <= MinSats {
		return nil, false
	}
	k, floor := opt.OutlierSigma, opt.ResidualFloor

	spread := map[int]float64{}
	for i := range obs {
		others := slices.Delete(slices.Clone(obs), i, i+1)
		sol, err := solveObs(others, nil, opt)
		if err != nil {
			continue
		}
		o := obs[i]
		d := o.pr - (EucDist(&o.pos, &sol.Pos) + C*sol.ClockBias)
		if bad, std := leaveOneOut(d, sol.Residuals, k, floor); bad {
			idx = append(idx, i)
			spread[i] = std
		}
	}
	if len(idx) <= 1 {
		return idx, false
	}

	best := idx[0]
	for _, i := range idx[1:] {
		if spread[i] < spread[best] {
			best = i
		}
	}
	for _, i := range idx {
		if i != best && spread[i] <= k*math.Max(spread[best], floor) {
			return idx, true
		}
	}
	return []int{best}, false
}

// Satellites inconsistent with a known receiver position. Only the clock is
// common to the ranges, so each satellite is checked against the others.
func flagAgainst(obs []satObs, ref PosXYZ, opt *ResolveOpt) []int {
	z := make([]float64, len(obs))
	for i, o := range obs {
		z[i] = o.pr - EucDist(&o.pos, &ref)
	}
	var idx []int
	for i := range z {
		others := slices.Delete(slices.Clone(z), i, i+1)
		if bad, _ := leaveOneOut(z[i], others, opt.OutlierSigma, opt.ResidualFloor); bad {
			idx = append(idx, i)
		}
	}
	return idx
}

// Whether x is farther than k * max(std, floor) from the mean of others,
// and the sample standard deviation of others
func leaveOneOut(x float64, others []float64, k, floor float64) (bool, float64) {
	if len(others) < 2 {
		return false, 0
	}
	mean, std := stat.MeanStdDev(others, nil)
	return math.Abs(x-mean) > k*math.Max(std, floor), std
}

func CalcResidualStats(res []float64) ResidualStats {
	s := ResidualStats{Count: len(res)}
	if len(res) == 0 {
		return s
	}
	if len(res) == 1 {
		s.Mean = res[0]
	} else {
		s.Mean, s.Std = stat.MeanStdDev(res, nil)
	}
	s.RMS = floats.Norm(res, 2) / math.Sqrt(float64(len(res)))
	for _, r := range res {
		s.MaxAbs = math.Max(s.MaxAbs, math.Abs(r))
	}
	return s
}

// SelectConsensus returns the fix closest (ECEF distance) to the mean of all
// fixes, and that mean. Ties keep the earlier fix.
func SelectConsensus(fixes []*PositionFix) (*PositionFix, PosXYZ, error) {
	if len(fixes) == 0 {
		return nil, PosXYZ{}, ErrNoValidFix
	}
	ps := make([]PosXYZ, len(fixes))
	for i, f := range fixes {
		ps[i] = f.ECEF
	}
	mean := MeanXYZ(ps)

	best := 0
	dmin := EucDist(&ps[0], &mean)
	for i := 1; i < len(ps); i++ {
		if d := EucDist(&ps[i], &mean); d < dmin {
			best, dmin = i, d
		}
	}
	return fixes[best], mean, nil
}

// Measurements in satellite processing order
func sortedMeasurements(batch *MeasurementEpoch) []SatMeasurement {
	ms := slices.Clone(batch.Sats)
	order := Sorted(batch.Satellites())
	slices.SortStableFunc(ms, func(a, b SatMeasurement) int {
		return slices.Index(order, a.Sat) - slices.Index(order, b.Sat)
	})
	return ms
}

func (p *PositionFix) String() string {
	return fmt.Sprintf("%-8s %s sats=%d flagged=%v rms=%.3f gdop=%.2f", p.Label, p.LLH.String(), len(p.Sats), p.Flagged, p.Stats.RMS, p.Dop.GDOP)
}
