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
	"time"
)

// GTime is a GPS time expressed as week number and seconds of week
type GTime struct {
	Week int
	Sec  float64
}

var gpsEpoch = time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC)

func NewGTime(dt time.Time) *GTime {
	t := dt.Unix()
	t -= gpsEpoch.Unix() // Elapsed seconds since 1980/1/6 00:00:00
	return &GTime{
		Week: int(t / (3600 * 24 * 7)),
		Sec:  float64(t%(3600*24*7)) + float64(dt.Nanosecond())/1000000000,
	}
}

// Build a GTime from elapsed seconds since the GPS epoch
func GTimeFromSeconds(s float64) GTime {
	w := math.Floor(s / WeekSec)
	return GTime{Week: int(w), Sec: s - w*WeekSec}
}

func (p GTime) ToTime() time.Time {
	i := int64(math.Trunc(p.Sec))
	t := int64(3600*24*7*p.Week) + i + gpsEpoch.Unix()
	n := int64((p.Sec - float64(i)) * 1e9)
	return time.Unix(t, n) // Unix time is the elapsed seconds since 1970/1/1 00:00:00
}

// Elapsed seconds since the GPS epoch
func (p GTime) Seconds() float64 {
	return float64(p.Week)*WeekSec + p.Sec
}

// Difference p - b in seconds
func (p GTime) Sub(b GTime) float64 {
	return float64(p.Week-b.Week)*WeekSec + (p.Sec - b.Sec)
}

// Add seconds, keeping Sec within [0, WeekSec)
func (p GTime) Add(sec float64) GTime {
	t := GTime{Week: p.Week, Sec: p.Sec + sec}
	for t.Sec >= WeekSec {
		t.Sec -= WeekSec
		t.Week++
	}
	for t.Sec < 0 {
		t.Sec += WeekSec
		t.Week--
	}
	return t
}

func (p GTime) IsZero() bool {
	return p.Week == 0 && p.Sec == 0
}

func (p GTime) Less(b GTime) bool {
	if p.Week == b.Week {
		return p.Sec < b.Sec
	}
	return p.Week < b.Week
}

// Three-way comparison for sorting and binary search
func (p GTime) Compare(b GTime) int {
	switch {
	case p.Less(b):
		return -1
	case b.Less(p):
		return 1
	default:
		return 0
	}
}

func (p GTime) String() string {
	return fmt.Sprintf("%s (week%d %.3fs)", p.ToTime().UTC().Format("2006/01/02 15:04:05.000"), p.Week, p.Sec)
}

// Fold a time-of-week difference into [-HalfWeekSec, HalfWeekSec] (week rollover)
func NormalizeTow(dt float64) float64 {
	for dt > HalfWeekSec {
		dt -= WeekSec
	}
	for dt < -HalfWeekSec {
		dt += WeekSec
	}
	return dt
}
