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
	"time"
)

func TestNewGTime(t *testing.T) {
	got := NewGTime(time.Date(2024, 7, 14, 2, 0, 0, 500000000, time.UTC))
	if got.Week != 2323 || got.Sec != 7200.5 {
		t.Errorf("got %+v, want week 2323 sec 7200.5", got)
	}
	if back := got.ToTime().UTC(); !back.Equal(time.Date(2024, 7, 14, 2, 0, 0, 500000000, time.UTC)) {
		t.Errorf("ToTime = %v", back)
	}
}

func TestGTimeAdd(t *testing.T) {
	tests := []struct {
		t    GTime
		sec  float64
		want GTime
	}{
		{GTime{Week: 2323, Sec: 100}, 50, GTime{Week: 2323, Sec: 150}},
		{GTime{Week: 2323, Sec: 604790}, 20, GTime{Week: 2324, Sec: 10}},
		{GTime{Week: 2323, Sec: 10}, -20, GTime{Week: 2322, Sec: 604790}},
		{GTime{Week: 2323, Sec: 0}, -2 * WeekSec, GTime{Week: 2321, Sec: 0}},
	}
	for _, tt := range tests {
		got := tt.t.Add(tt.sec)
		if got != tt.want {
			t.Errorf("%+v.Add(%v) = %+v, want %+v", tt.t, tt.sec, got, tt.want)
		}
		if d := got.Sub(tt.t); d != tt.sec {
			t.Errorf("Sub = %v, want %v", d, tt.sec)
		}
	}
}

func TestGTimeCompare(t *testing.T) {
	a := GTime{Week: 2322, Sec: 604000}
	b := GTime{Week: 2323, Sec: 10}
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Errorf("compare %v %v", a, b)
	}
	if GTimeFromSeconds(b.Seconds()) != b {
		t.Errorf("GTimeFromSeconds(%v) = %v", b.Seconds(), GTimeFromSeconds(b.Seconds()))
	}
}

func TestNormalizeTow(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{302400, 302400},
		{302401, 302401 - WeekSec},
		{-302401, -302401 + WeekSec},
		{604700, -100},
		{-604700, 100},
	}
	for _, tt := range tests {
		if got := NormalizeTow(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeTow(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
