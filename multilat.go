// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Implements iterative multilateration of receiver position and clock bias
// from satellite positions and pseudoranges.

package gnssfix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Calculation constants for multilateration
const (
	MAX_LOOP_COUNT        = 10   // Maximum number of Gauss-Newton iterations
	CONVERGENCE_THRESHOLD = 1e-4 // Position update norm at convergence [m]
)

// Initial estimate of receiver position and clock bias
type Guess struct {
	Pos       PosXYZ  // ECEF [m]
	ClockBias float64 // [s]
}

// Dilution of precision. Horizontal/vertical split is taken at the solved position.
type Dop struct {
	GDOP float64
	PDOP float64
	HDOP float64
	VDOP float64
}

// Result of a multilateration
type Solution struct {
	Pos        PosXYZ     // Receiver position
	ClockBias  float64    // Receiver clock bias [s]
	ISB        []float64  // Inter-system biases of clock groups 1.. relative to group 0 [s]
	Residuals  []float64  // Pseudorange minus modelled range at Pos [m], in input order
	Iterations int        // Number of position updates applied
	Converged  bool       // Update norm fell below CONVERGENCE_THRESHOLD
	Dop        Dop        // Unweighted dilution of precision
	Cov        *mat.Dense // (G^T W G)^-1 of the last iteration
}

// Solve receiver position and one clock bias from pseudoranges pr to satellites at sats.
// w holds per-observation weights; nil means equal weights.
func Solve(sats []PosXYZ, pr []float64, init Guess, w []float64) (*Solution, error) {
	return SolveMulti(sats, pr, nil, init, w)
}

// Solve receiver position with one clock term per group.
// groups[i] is the clock group (0, 1, ...) of observation i; nil puts every
// observation in group 0. Groups other than 0 are estimated as biases
// relative to group 0.
func SolveMulti(sats []PosXYZ, pr []float64, groups []int, init Guess, w []float64) (*Solution, error) {

	n := len(sats)
	if len(pr) != n {
		return nil, fmt.Errorf("%d satellites, %d pseudoranges: %w", n, len(pr), ErrInvalidMeasurement)
	}
	if w != nil && len(w) != n {
		return nil, fmt.Errorf("%d satellites, %d weights: %w", n, len(w), ErrInvalidMeasurement)
	}
	if groups != nil && len(groups) != n {
		return nil, fmt.Errorf("%d satellites, %d clock groups: %w", n, len(groups), ErrInvalidMeasurement)
	}

	// Number of clock terms
	nClk := 1
	for _, g := range groups {
		if g < 0 {
			return nil, fmt.Errorf("negative clock group %d: %w", g, ErrInvalidMeasurement)
		}
		if g+1 > nClk {
			nClk = g + 1
		}
	}
	if n < 3+nClk {
		return nil, fmt.Errorf("%d observations for %d unknowns: %w", n, 3+nClk, ErrSingularGeometry)
	}

	if w == nil {
		w = make([]float64, n)
		for i := range w {
			w[i] = 1
		}
	}
	W := mat.NewDiagDense(n, w)

	// Receiver position and clock terms [m]
	upos := init.Pos
	clkb := make([]float64, nClk)
	clkb[0] = init.ClockBias * C

	sol := &Solution{}
	for loop := 0; loop < MAX_LOOP_COUNT; loop++ {

		G, dr, err := linearize(sats, pr, groups, upos, clkb)
		if err != nil {
			return nil, err
		}

		dx, cov, err := SolveLS(G, dr, W)
		if err != nil {
			return nil, err
		}
		sol.Cov = cov

		// Update receiver position and clock terms
		upos.X += dx.AtVec(0)
		upos.Y += dx.AtVec(1)
		upos.Z += dx.AtVec(2)
		for j := 0; j < nClk; j++ {
			clkb[j] += dx.AtVec(3 + j)
		}
		sol.Iterations = loop + 1

		// Check convergence
		if floats.Norm([]float64{dx.AtVec(0), dx.AtVec(1), dx.AtVec(2)}, 2) < CONVERGENCE_THRESHOLD {
			sol.Converged = true
			break
		}
	}

	// Residuals and geometry at the final estimate
	G, dr, err := linearize(sats, pr, groups, upos, clkb)
	if err != nil {
		return nil, err
	}
	dop, err := calcDop(G, upos)
	if err != nil {
		return nil, err
	}

	sol.Pos = upos
	sol.ClockBias = clkb[0] / C
	for j := 1; j < nClk; j++ {
		sol.ISB = append(sol.ISB, clkb[j]/C)
	}
	sol.Residuals = make([]float64, n)
	for i := range sol.Residuals {
		sol.Residuals[i] = dr.AtVec(i)
	}
	sol.Dop = dop

	return sol, nil
}

// Build the design matrix and residual vector around the current estimate.
// Rows are [-los, 1, isb...], residual is pr - (range + clock).
func linearize(sats []PosXYZ, pr []float64, groups []int, upos PosXYZ, clkb []float64) (*mat.Dense, *mat.VecDense, error) {
	n := len(sats)
	nClk := len(clkb)
	G := mat.NewDense(n, 3+nClk, nil)
	dr := mat.NewVecDense(n, nil)
	for i := range sats {
		ri := EucDist(&sats[i], &upos)
		if ri == 0 {
			return nil, nil, fmt.Errorf("receiver at satellite %d: %w", i, ErrSingularGeometry)
		}
		G.Set(i, 0, -(sats[i].X-upos.X)/ri)
		G.Set(i, 1, -(sats[i].Y-upos.Y)/ri)
		G.Set(i, 2, -(sats[i].Z-upos.Z)/ri)
		G.Set(i, 3, 1)
		clk := clkb[0]
		if groups != nil && groups[i] > 0 {
			G.Set(i, 3+groups[i], 1)
			clk += clkb[groups[i]]
		}
		dr.SetVec(i, pr[i]-(ri+clk))
	}
	return G, dr, nil
}

// Calculate DOP values from the unweighted design matrix
func calcDop(G *mat.Dense, upos PosXYZ) (Dop, error) {
	var GtG mat.Dense
	GtG.Mul(G.T(), G)
	var Q mat.Dense
	if err := Q.Inverse(&GtG); err != nil {
		return Dop{}, fmt.Errorf("failed to calculate inverse of matrix, G^T G: %v: %w", err, ErrSingularGeometry)
	}

	// Rotate the position block into local east, north, up
	llh := upos.ToLLH()
	s1, c1 := math.Sincos(llh.Lon)
	s2, c2 := math.Sincos(llh.Lat)
	R := mat.NewDense(3, 3, []float64{
		-s1, c1, 0,
		-c1 * s2, -s1 * s2, c2,
		c1 * c2, s1 * c2, s2,
	})
	var RQ, Qenu mat.Dense
	RQ.Mul(R, Q.Slice(0, 3, 0, 3))
	Qenu.Mul(&RQ, R.T())

	return Dop{
		GDOP: math.Sqrt(Q.At(0, 0) + Q.At(1, 1) + Q.At(2, 2) + Q.At(3, 3)),
		PDOP: math.Sqrt(Q.At(0, 0) + Q.At(1, 1) + Q.At(2, 2)),
		HDOP: math.Sqrt(Qenu.At(0, 0) + Qenu.At(1, 1)),
		VDOP: math.Sqrt(Qenu.At(2, 2)),
	}, nil
}

// Observation weights from C/N0 [dB-Hz], w = 10^(cn0/10) scaled to a mean of 1
func CnWeights(cn0 []float64) []float64 {
	w := make([]float64, len(cn0))
	for i, c := range cn0 {
		w[i] = math.Pow(10, c/10)
	}
	if s := floats.Sum(w); s > 0 {
		floats.Scale(float64(len(w))/s, w)
	}
	return w
}
