// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gnssfix

import (
	"math"
	"testing"
)

// GEONET site 0255 (KOMATSU)
var testSite = PosXYZ{X: -3721695.1985, Y: 3545492.6126, Z: 3763541.7139}

var testEpoch = GTime{Week: 2323, Sec: 345600}

const testSemiMajor = 26560e3

// ECEF unit vector of the direction seen at azimuth/elevation [deg] from base
func skyDir(base PosXYZ, az, el float64) PosXYZ {
	llh := base.ToLLH()
	sa, ca := math.Sincos(ToRad(az))
	se, ce := math.Sincos(ToRad(el))
	e, n, u := ce*sa, ce*ca, se
	s1, c1 := math.Sincos(llh.Lon)
	s2, c2 := math.Sincos(llh.Lat)
	return PosXYZ{
		X: -s1*e - c1*s2*n + c1*c2*u,
		Y: c1*e - s1*s2*n + s1*c2*u,
		Z: c2*n + s2*u,
	}
}

// Point dist metres away from base at azimuth/elevation [deg]
func skyPos(base PosXYZ, az, el, dist float64) PosXYZ {
	d := skyDir(base, az, el)
	return PosXYZ{X: base.X + dist*d.X, Y: base.Y + dist*d.Y, Z: base.Z + dist*d.Z}
}

// Circular orbit record that puts sat roughly at azimuth/elevation of the
// test site at testEpoch
func testRecord(sat SatType, az, el float64) *EphemerisRecord {
	toe := testEpoch.Add(-1800)

	target := skyPos(testSite, az, el, 2.0e7)
	r := math.Sqrt(SQ(target.X) + SQ(target.Y) + SQ(target.Z))
	d := PosXYZ{X: target.X / r, Y: target.Y / r, Z: target.Z / r}

	i0 := ToRad(55)
	sinu := math.Max(-1, math.Min(1, d.Z/math.Sin(i0)))
	u := math.Asin(sinu)
	omk := math.Atan2(d.Y, d.X) - math.Atan2(sinu*math.Cos(i0), math.Cos(u))

	mu, omge := orbitConst(sat.Sys())
	n := math.Sqrt(mu / (testSemiMajor * testSemiMajor * testSemiMajor))
	tk := testEpoch.Sub(toe)
	toeSec := toe.Sec
	if sat.Sys() == 'C' {
		toeSec -= BdtOffsetSec
	}

	return &EphemerisRecord{
		Sat:    sat,
		Toc:    toe,
		Toe:    toe,
		Week:   toe.Week,
		Af0:    1e-5 * float64(sat.Num()%4),
		Af1:    1e-12,
		SqrtA:  math.Sqrt(testSemiMajor),
		I0:     i0,
		Omega0: omk + omge*tk + omge*toeSec,
		M0:     u - n*tk,
		Source: "test",
	}
}

// Pseudorange observed at testEpoch by a receiver at rx with clock bias clk [s].
// Iterated so the resolver's transmit time model reproduces rx exactly.
func testPseudorange(t *testing.T, rec *EphemerisRecord, rx PosXYZ, clk float64) float64 {
	t.Helper()
	pr := 2.0e7
	for i := 0; i < 10; i++ {
		o, err := transmitState(rec, testEpoch, SatMeasurement{Sat: rec.Sat, Pseudorange: pr})
		if err != nil {
			t.Fatalf("transmitState(%s): %v", rec.Sat, err)
		}
		pr = EucDist(&o.pos, &rx) + C*clk - C*o.state.ClockBias
	}
	return pr
}

// One simulated constellation
type testConstellation struct {
	sys   SysType
	nums  []int
	rx    PosXYZ  // Position the pseudoranges are generated for
	clk   float64 // Receiver clock bias seen by this constellation [s]
	azOff float64
}

// Build a store and a measurement epoch for the given constellations
func buildScenario(t *testing.T, cs []testConstellation) (*EphemerisStore, *MeasurementEpoch) {
	t.Helper()
	elevations := []float64{20, 35, 50, 65, 80}
	store := NewEphemerisStore()
	epoch := &MeasurementEpoch{Time: testEpoch}
	for _, c := range cs {
		var recs []*EphemerisRecord
		for i, num := range c.nums {
			sat := NewSatType(c.sys, num)
			az := c.azOff + 360*float64(i)/float64(len(c.nums))
			rec := testRecord(sat, az, elevations[i%len(elevations)])
			recs = append(recs, rec)
			epoch.Sats = append(epoch.Sats, SatMeasurement{
				Sat:         sat,
				Pseudorange: testPseudorange(t, rec, c.rx, c.clk),
				Cn0:         35 + float64(i),
			})
		}
		store.Ingest(recs, nil)
	}
	return store, epoch
}

func offset(p PosXYZ, dx, dy, dz float64) PosXYZ {
	return PosXYZ{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}
