// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gnssfix

import (
	"fmt"
	"strings"
)

// Broadcast ephemeris of one satellite, one issue (Keplerian systems G, J, E, C).
// All times are in GPS time. Records are never modified after ingestion.
type EphemerisRecord struct {
	Sat  SatType
	Toc  GTime // Reference time for satellite clock error correction
	Toe  GTime // Reference time for satellite orbit calculation
	Iode int
	Week int

	Af0    float64 // Clock bias [s]
	Af1    float64 // Clock drift [s/s]
	Af2    float64 // Clock drift rate [s/s^2]
	Crs    float64
	DeltaN float64
	M0     float64
	Cuc    float64
	Ecc    float64
	Cus    float64
	SqrtA  float64
	Cic    float64
	Omega0 float64
	Cis    float64
	I0     float64
	Crc    float64
	Omega  float64
	OmegaD float64
	Idot   float64
	Svh    int
	Tgd    float64

	Source string // File or feed the record came from
}

// Constellation tag of the record
func (e *EphemerisRecord) Sys() SysType {
	return e.Sat.Sys()
}

// Health check. QZSS ignores bit 0 of the health flag.
func (e *EphemerisRecord) Healthy() bool {
	svh := e.Svh
	if e.Sys() == 'J' {
		svh &= 0xfffffffe
	}
	return svh == 0
}

// Nominal validity of a broadcast ephemeris around Toe [s]
func (e *EphemerisRecord) FitInterval() float64 {
	switch e.Sys() {
	case 'E':
		return 14400 // Following RTKLIB's MAXDTOE_GAL
	case 'C':
		return 21600 // Following RTKLIB's MAXDTOE_CMP
	default:
		return 7200
	}
}

func (e *EphemerisRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("### Nav. for %s (%c, %d) from %q\n", e.Sat, e.Sat.Sys(), e.Sat.Num(), e.Source))
	sb.WriteString(fmt.Sprintf("    Toc: %v\n", e.Toc))
	sb.WriteString(fmt.Sprintf("    Toe: %v\n", e.Toe))
	sb.WriteString(fmt.Sprintf("   Iode: %v\n", e.Iode))
	sb.WriteString(fmt.Sprintf("    Af0: %v, Af1: %v, Af2: %v\n", e.Af0, e.Af1, e.Af2))
	sb.WriteString(fmt.Sprintf("  SqrtA: %v, Ecc: %v, I0: %v\n", e.SqrtA, e.Ecc, e.I0))
	sb.WriteString(fmt.Sprintf(" Omega0: %v, Omega: %v, M0: %v\n", e.Omega0, e.Omega, e.M0))
	sb.WriteString(fmt.Sprintf(" OmegaD: %v, Idot: %v, DeltaN: %v\n", e.OmegaD, e.Idot, e.DeltaN))
	sb.WriteString(fmt.Sprintf("    Cuc: %v, Cus: %v\n", e.Cuc, e.Cus))
	sb.WriteString(fmt.Sprintf("    Crc: %v, Crs: %v\n", e.Crc, e.Crs))
	sb.WriteString(fmt.Sprintf("    Cic: %v, Cis: %v\n", e.Cic, e.Cis))
	sb.WriteString(fmt.Sprintf("    Svh: %v, Tgd: %v\n", e.Svh, e.Tgd))
	return sb.String()
}
