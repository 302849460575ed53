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

func TestPosRoundTrip(t *testing.T) {
	llh := testSite.ToLLH()
	back := llh.ToXYZ()
	if d := EucDist(&back, &testSite); d > 1e-6 {
		t.Errorf("round trip off by %g m", d)
	}

	var p PosLLH
	if err := p.Set("36.4 136.4 50"); err != nil {
		t.Fatal(err)
	}
	if math.Abs(ToDeg(p.Lat)-36.4) > 1e-12 || p.Hei != 50 {
		t.Errorf("Set = %+v", p)
	}
	if err := p.Set("36.4 136.4"); err == nil {
		t.Error("two fields accepted")
	}
}

func TestToENU(t *testing.T) {
	up := skyPos(testSite, 0, 90, 100)
	e, n, u := up.ToENU(testSite)
	if math.Abs(e) > 1e-6 || math.Abs(n) > 1e-6 || math.Abs(u-100) > 1e-6 {
		t.Errorf("enu = %g %g %g, want 0 0 100", e, n, u)
	}

	east := skyPos(testSite, 90, 0, 100)
	e, n, u = east.ToENU(testSite)
	if math.Abs(e-100) > 1e-6 || math.Abs(n) > 1e-6 || math.Abs(u) > 1e-6 {
		t.Errorf("enu = %g %g %g, want 100 0 0", e, n, u)
	}
}

func TestMeanXYZ(t *testing.T) {
	got := MeanXYZ([]PosXYZ{{X: 1, Y: 2, Z: 3}, {X: 3, Y: 2, Z: 1}})
	if got != (PosXYZ{X: 2, Y: 2, Z: 2}) {
		t.Errorf("MeanXYZ = %v", got)
	}
	if got := MeanXYZ(nil); got != (PosXYZ{}) {
		t.Errorf("MeanXYZ(nil) = %v", got)
	}
}
