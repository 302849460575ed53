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
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

//-------------------------------------------------------------------
// PosLLH
//-------------------------------------------------------------------

// Geodetic position on WGS-84 (radians, metres)
type PosLLH struct {
	Lat float64
	Lon float64
	Hei float64
}

func (llh *PosLLH) ToXYZ() PosXYZ {
	// Ellipsoid parameters
	f := Fe                     // Flattening
	a := Re                     // Semi-major axis
	e := math.Sqrt(f * (2 - f)) // Eccentricity

	n := a / math.Sqrt(1-e*e*math.Sin(llh.Lat)*math.Sin(llh.Lat))
	return PosXYZ{
		X: (n + llh.Hei) * math.Cos(llh.Lat) * math.Cos(llh.Lon),
		Y: (n + llh.Hei) * math.Cos(llh.Lat) * math.Sin(llh.Lon),
		Z: (n*(1-e*e) + llh.Hei) * math.Sin(llh.Lat),
	}
}

// Read "lat lon hei" with angles in degrees
func (llh *PosLLH) Set(s string) error {
	f := strings.Fields(s)
	if len(f) != 3 {
		return fmt.Errorf("invalid position %q, want \"lat lon hei\"", s)
	}
	var v [3]float64
	for i := range f {
		x, err := strconv.ParseFloat(f[i], 64)
		if err != nil {
			return err
		}
		v[i] = x
	}
	llh.Lat = ToRad(v[0])
	llh.Lon = ToRad(v[1])
	llh.Hei = v[2]
	return nil
}

// Degrees and metres
func (llh *PosLLH) String() string {
	return fmt.Sprintf("%.8f %.8f %.4f", ToDeg(llh.Lat), ToDeg(llh.Lon), llh.Hei)
}

//-------------------------------------------------------------------
// PosXYZ
//-------------------------------------------------------------------

// Earth-centred Earth-fixed position [m]
type PosXYZ struct {
	X float64
	Y float64
	Z float64
}

func (pos *PosXYZ) ToLLH() PosLLH {
	// In case of origin
	if pos.X == 0 && pos.Y == 0 && pos.Z == 0 {
		return PosLLH{Lat: 0, Lon: 0, Hei: -Re}
	}

	// Ellipsoid parameters
	f := Fe
	a := Re
	b := a * (1 - f)
	e := math.Sqrt(f * (2 - f))

	// Bowring's method
	h := a*a - b*b
	p := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y)
	t := math.Atan2(pos.Z*a, p*b)
	sint := math.Sin(t)
	cost := math.Cos(t)

	lat := math.Atan2(pos.Z+h/b*sint*sint*sint, p-h/a*cost*cost*cost)
	lon := math.Atan2(pos.Y, pos.X)
	n := a / math.Sqrt(1-e*e*math.Sin(lat)*math.Sin(lat)) // Radius of curvature in the prime vertical
	hei := p/math.Cos(lat) - n
	return PosLLH{Lat: lat, Lon: lon, Hei: hei}
}

// Local east, north, up offsets of pos seen from base
func (pos *PosXYZ) ToENU(base PosXYZ) (e, n, u float64) {
	x := pos.X - base.X
	y := pos.Y - base.Y
	z := pos.Z - base.Z

	llh := base.ToLLH()
	s1 := math.Sin(llh.Lon)
	c1 := math.Cos(llh.Lon)
	s2 := math.Sin(llh.Lat)
	c2 := math.Cos(llh.Lat)

	e = -x*s1 + y*c1
	n = -x*c1*s2 - y*s1*s2 + z*c2
	u = x*c1*c2 + y*s1*c2 + z*s2
	return
}

// Rotate about the Z axis by angle [rad]
func (pos PosXYZ) RotateZ(angle float64) PosXYZ {
	s, c := math.Sincos(angle)
	return PosXYZ{
		X: pos.X*c + pos.Y*s,
		Y: -pos.X*s + pos.Y*c,
		Z: pos.Z,
	}
}

func (pos PosXYZ) slice() []float64 {
	return []float64{pos.X, pos.Y, pos.Z}
}

func (pos *PosXYZ) String() string {
	return fmt.Sprintf("%.4f %.4f %.4f", pos.X, pos.Y, pos.Z)
}

// Arithmetic mean of positions
func MeanXYZ(ps []PosXYZ) PosXYZ {
	if len(ps) == 0 {
		return PosXYZ{}
	}
	sum := make([]float64, 3)
	for _, p := range ps {
		floats.Add(sum, p.slice())
	}
	floats.Scale(1/float64(len(ps)), sum)
	return PosXYZ{X: sum[0], Y: sum[1], Z: sum[2]}
}
