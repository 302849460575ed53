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
	"strings"
	"testing"
)

func headerLine(body, label string) string {
	return fmt.Sprintf("%-60s%-20s\n", body, label)
}

func navHeader(version float64, leap int) string {
	var sb strings.Builder
	sb.WriteString(headerLine(fmt.Sprintf("%9.2f%11s%-20s%-20s", version, "", "N: GNSS NAV DATA", "M: MIXED"), "RINEX VERSION / TYPE"))
	sb.WriteString(headerLine("gnssfix test", "PGM / RUN BY / DATE"))
	if leap > 0 {
		sb.WriteString(headerLine(fmt.Sprintf("%6d", leap), "LEAP SECONDS"))
	}
	sb.WriteString(headerLine("", "END OF HEADER"))
	return sb.String()
}

// Epoch line and seven orbit lines with four values each
func navRecord(epoch string, v [8][4]float64) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s%19.12E%19.12E%19.12E\n", epoch, v[0][1], v[0][2], v[0][3]))
	for _, l := range v[1:] {
		sb.WriteString(fmt.Sprintf("    %19.12E%19.12E%19.12E%19.12E\n", l[0], l[1], l[2], l[3]))
	}
	return sb.String()
}

var navValues = [8][4]float64{
	{0, 1.5e-4, 2e-12, 0},
	{12, -55.5, 4.5e-9, 1.25},          // IODE Crs DeltaN M0
	{-2.8e-6, 0.012, 8.1e-6, 5153.65}, // Cuc Ecc Cus SqrtA
	{7200, 1.1e-7, -2.5, -4.2e-8},     // Toe Cic Omega0 Cis
	{0.96, 220.5, 0.75, -8.1e-9},      // I0 Crc omega OmegaD
	{3.2e-10, 1, 0, 0},                // Idot codes week (set per system)
	{2, 0, -1.1e-8, -1.3e-8},          // accuracy health TGD IODC/BGD
	{5000, 4, 0, 0},
}

func navValuesFor(week float64, svh float64) [8][4]float64 {
	v := navValues
	v[5][2] = week
	v[6][1] = svh
	return v
}

func TestReadNav(t *testing.T) {
	src := navHeader(3.04, 18) +
		navRecord("G05 2024 07 14 02 00 00", navValuesFor(2323, 0)) +
		navRecord("R01 2024 07 14 02 15 00", navValuesFor(0, 0)) + // state vector records are skipped
		navRecord("E11 2024 07 14 02 00 00", navValuesFor(2323, 0)) +
		navRecord("C20 2024 07 14 02 00 00", navValuesFor(2323-BdtWeekOffset, 1))

	nav, err := ReadNav(strings.NewReader(src), "BRDC00TST_R_20241960000_01D_MN.rnx")
	if err != nil {
		t.Fatalf("ReadNav: %v", err)
	}
	if nav.Version != "3.04" || !nav.LeapKnown || nav.LeapSeconds != 18 {
		t.Errorf("header: version %q leap %d known %v", nav.Version, nav.LeapSeconds, nav.LeapKnown)
	}
	if nav.Skipped != 1 {
		t.Errorf("skipped %d, want 1", nav.Skipped)
	}
	if len(nav.Records) != 3 {
		t.Fatalf("%d records, want 3", len(nav.Records))
	}

	tests := []struct {
		sat SatType
		toe GTime
		tgd float64
		svh int
	}{
		{"G05", GTime{Week: 2323, Sec: 7200}, -1.1e-8, 0},
		{"E11", GTime{Week: 2323, Sec: 7200}, -1.3e-8, 0},
		{"C20", GTime{Week: 2323, Sec: 7214}, -1.1e-8, 1},
	}
	for i, tt := range tests {
		rec := nav.Records[i]
		if rec.Sat != tt.sat {
			t.Errorf("record[%d] = %s, want %s", i, rec.Sat, tt.sat)
			continue
		}
		if rec.Toe != tt.toe || rec.Toc != tt.toe {
			t.Errorf("%s: toe %v toc %v, want %v", rec.Sat, rec.Toe, rec.Toc, tt.toe)
		}
		if rec.Tgd != tt.tgd || rec.Svh != tt.svh {
			t.Errorf("%s: tgd %g svh %d, want %g %d", rec.Sat, rec.Tgd, rec.Svh, tt.tgd, tt.svh)
		}
		if rec.Iode != 12 || rec.Af0 != 1.5e-4 || rec.Af1 != 2e-12 || rec.SqrtA != 5153.65 ||
			rec.Ecc != 0.012 || rec.Omega0 != -2.5 || rec.I0 != 0.96 || rec.Idot != 3.2e-10 {
			t.Errorf("%s: fields %+v", rec.Sat, rec)
		}
		if rec.Source != "BRDC00TST_R_20241960000_01D_MN.rnx" {
			t.Errorf("%s: source %q", rec.Sat, rec.Source)
		}
	}

	// Records go straight into a store
	store := NewEphemerisStore()
	if n := store.Ingest(nav.Records, nav.Leap()); n != 3 {
		t.Errorf("ingested %d, want 3", n)
	}
	if leap, ok := store.LeapSeconds(); !ok || leap != 18 {
		t.Errorf("store leap = %d, %v", leap, ok)
	}
}

func TestReadNavWithoutLeapSeconds(t *testing.T) {
	src := navHeader(3.05, 0) + navRecord("G05 2024 07 14 02 00 00", navValuesFor(2323, 0))
	nav, err := ReadNav(strings.NewReader(src), "test")
	if err != nil {
		t.Fatalf("ReadNav: %v", err)
	}
	if nav.LeapKnown || nav.Leap() != nil {
		t.Errorf("leap known without LEAP SECONDS line")
	}
	if len(nav.Records) != 1 {
		t.Errorf("%d records, want 1", len(nav.Records))
	}
}

// TestReadNavToeWeekRollover reads a record whose clock epoch is in the previous week of its Toe.
func TestReadNavToeWeekRollover(t *testing.T) {
	v := navValuesFor(2322, 0) // week of the clock epoch
	v[3][0] = 0                // Toe at the start of the following week
	src := navHeader(3.04, 18) + navRecord("G05 2024 07 13 23 59 44", v)
	nav, err := ReadNav(strings.NewReader(src), "test")
	if err != nil {
		t.Fatalf("ReadNav: %v", err)
	}
	rec := nav.Records[0]
	if want := (GTime{Week: 2323, Sec: 0}); rec.Toe != want {
		t.Errorf("toe = %v, want %v", rec.Toe, want)
	}
	if want := (GTime{Week: 2322, Sec: WeekSec - 16}); rec.Toc != want {
		t.Errorf("toc = %v, want %v", rec.Toc, want)
	}
}

func TestReadNavErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"version 2", navHeader(2.11, 18)},
		{"observation file", headerLine(fmt.Sprintf("%9.2f%11s%-20s%-20s", 3.04, "", "O: OBSERVATION DATA", "M: MIXED"), "RINEX VERSION / TYPE") + headerLine("", "END OF HEADER")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadNav(strings.NewReader(tt.src), "test"); err == nil {
				t.Error("no error")
			}
		})
	}
}

func TestReadLeapSeconds(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		leap  int
		known bool
	}{
		{"present", navHeader(3.04, 18), 18, true},
		{"absent", navHeader(3.04, 0), 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leap, known, err := ReadLeapSeconds(strings.NewReader(tt.src))
			if err != nil {
				t.Fatalf("ReadLeapSeconds: %v", err)
			}
			if leap != tt.leap || known != tt.known {
				t.Errorf("got %d, %v, want %d, %v", leap, known, tt.leap, tt.known)
			}
		})
	}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		s    string
		want float64
	}{
		{" 1.500000000000E-04", 1.5e-4},
		{"-1.500000000000D-04", -1.5e-4},
		{" 2.000000000000d+01", 20},
		{"                   ", 0},
	}
	for _, tt := range tests {
		if got := parseFloat(tt.s); math.Abs(got-tt.want) > 1e-18 {
			t.Errorf("parseFloat(%q) = %g, want %g", tt.s, got, tt.want)
		}
	}
}
