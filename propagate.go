// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gnssfix

import (
	"fmt"
	"math"
)

// Kepler equation solver limits
const (
	keplerTol     = 1e-12
	keplerMaxIter = 10
)

// Satellite position and clock at one transmit time. Recomputed on demand.
type SatelliteState struct {
	Pos          PosXYZ  // ECEF position [m]
	ClockBias    float64 // Satellite clock bias [s]
	TransmitTime GTime   // Time the state refers to
	Ek           float64 // Eccentric anomaly [rad]
	Age          float64 // Transmit time minus Toe [s]
	Stale        bool    // Age beyond the nominal fit interval
}

// Gravitational constant and earth rotation rate of the record's system
func orbitConst(sys SysType) (mu, omge float64) {
	switch sys {
	case 'E':
		return MuGAL, OmegaEGAL
	case 'C':
		return MuBDS, OmegaEBDS
	default:
		return MuGPS, OmegaEGPS
	}
}

// BeiDou geostationary satellites
func isBdsGeo(sat SatType) bool {
	return sat.Sys() == 'C' && (sat.Num() <= 5 || sat.Num() >= 59)
}

// Calculate satellite position and clock bias at transmit time tx
func Propagate(rec *EphemerisRecord, tx GTime) (*SatelliteState, error) {
	return PropagateAt(rec, tx, 0)
}

// Same as Propagate, with the position rotated by the earth rotation during
// travel seconds of signal transit (Sagnac effect)
func PropagateAt(rec *EphemerisRecord, tx GTime, travel float64) (*SatelliteState, error) {
	if rec == nil {
		return nil, ErrDataUnavailable
	}
	if !rec.Sys().IsKeplerian() {
		return nil, fmt.Errorf("%s: no keplerian orbit: %w", rec.Sat, ErrDataUnavailable)
	}
	if !rec.Healthy() {
		return nil, fmt.Errorf("%s: svh=%#x: %w", rec.Sat, rec.Svh, ErrUnhealthy)
	}

	mu, omge := orbitConst(rec.Sys())

	tk := NormalizeTow(tx.Sub(rec.Toe))
	a := rec.SqrtA * rec.SqrtA
	n := math.Sqrt(mu/(a*a*a)) + rec.DeltaN
	mk := rec.M0 + n*tk

	ek, err := solveKepler(mk, rec.Ecc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rec.Sat, err)
	}

	sinE, cosE := math.Sincos(ek)
	vk := math.Atan2(math.Sqrt(1-rec.Ecc*rec.Ecc)*sinE, cosE-rec.Ecc)
	pk := vk + rec.Omega
	sin2p, cos2p := math.Sincos(2 * pk)
	uk := pk + rec.Cus*sin2p + rec.Cuc*cos2p
	rk := a*(1-rec.Ecc*cosE) + rec.Crs*sin2p + rec.Crc*cos2p
	ik := rec.I0 + rec.Cis*sin2p + rec.Cic*cos2p + rec.Idot*tk
	xk := rk * math.Cos(uk)
	yk := rk * math.Sin(uk)

	// Toe in the system's own time of week
	toe := rec.Toe.Sec
	if rec.Sys() == 'C' {
		toe -= BdtOffsetSec
	}

	var pos PosXYZ
	if isBdsGeo(rec.Sat) {
		omk := rec.Omega0 + rec.OmegaD*tk - omge*toe
		so, co := math.Sincos(omk)
		xg := xk*co - yk*so*math.Cos(ik)
		yg := xk*so + yk*co*math.Cos(ik)
		zg := yk * math.Sin(ik)
		sino, coso := math.Sincos(omge * tk)
		sin5, cos5 := math.Sincos(ToRad(-5))
		pos.X = xg*coso + yg*sino*cos5 + zg*sino*sin5
		pos.Y = -xg*sino + yg*coso*cos5 + zg*coso*sin5
		pos.Z = -yg*sin5 + zg*cos5
	} else {
		omk := rec.Omega0 + (rec.OmegaD-omge)*tk - omge*toe
		so, co := math.Sincos(omk)
		pos.X = xk*co - yk*so*math.Cos(ik)
		pos.Y = xk*so + yk*co*math.Cos(ik)
		pos.Z = yk * math.Sin(ik)
	}
	if travel != 0 {
		pos = pos.RotateZ(omge * travel)
	}

	// Clock polynomial, relativistic correction and group delay
	dt := NormalizeTow(tx.Sub(rec.Toc))
	f := -2 * math.Sqrt(mu) / (C * C)
	dts := rec.Af0 + rec.Af1*dt + rec.Af2*dt*dt + f*rec.Ecc*rec.SqrtA*sinE - rec.Tgd

	return &SatelliteState{
		Pos:          pos,
		ClockBias:    dts,
		TransmitTime: tx,
		Ek:           ek,
		Age:          tk,
		Stale:        math.Abs(tk) > rec.FitInterval(),
	}, nil
}

// Newton-Raphson on E - e sinE = M
func solveKepler(mk, ecc float64) (float64, error) {
	ek := mk
	for i := 0; i < keplerMaxIter; i++ {
		de := (ek - ecc*math.Sin(ek) - mk) / (1 - ecc*math.Cos(ek))
		ek -= de
		if math.Abs(de) < keplerTol {
			return ek, nil
		}
	}
	return ek, fmt.Errorf("M=%g e=%g: %w", mk, ecc, ErrKeplerNonConvergence)
}
