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

// Plausible pseudorange limits [m]
const (
	MinPseudorange = 1e6
	MaxPseudorange = 1e8
)

// Pseudorange observation of one satellite
type SatMeasurement struct {
	Sat         SatType
	Pseudorange float64 // [m]
	Cn0         float64 // Carrier to noise density [dB-Hz], 0 if unknown
}

// Measurements of one receiver epoch
type MeasurementEpoch struct {
	Time GTime // Receiver time of reception (GPS time, receiver clock)
	Sats []SatMeasurement
}

// Reject malformed epochs before they reach the solver
func (p *MeasurementEpoch) Validate() error {
	if p.Time.IsZero() || p.Time.Week < 0 || p.Time.Sec < 0 || p.Time.Sec >= WeekSec {
		return fmt.Errorf("epoch time %+v: %w", p.Time, ErrInvalidMeasurement)
	}
	if len(p.Sats) == 0 {
		return fmt.Errorf("empty epoch: %w", ErrInvalidMeasurement)
	}
	seen := make(map[SatType]bool, len(p.Sats))
	for _, m := range p.Sats {
		if !m.Sat.IsValid() {
			return fmt.Errorf("satellite %q: %w", m.Sat, ErrInvalidMeasurement)
		}
		if seen[m.Sat] {
			return fmt.Errorf("%s: duplicated: %w", m.Sat, ErrInvalidMeasurement)
		}
		seen[m.Sat] = true
		if !(m.Pseudorange >= MinPseudorange && m.Pseudorange <= MaxPseudorange) {
			return fmt.Errorf("%s: pseudorange %g: %w", m.Sat, m.Pseudorange, ErrInvalidMeasurement)
		}
		if m.Cn0 < 0 {
			return fmt.Errorf("%s: c/n0 %g: %w", m.Sat, m.Cn0, ErrInvalidMeasurement)
		}
	}
	return nil
}

// List of satellites in the epoch
func (p *MeasurementEpoch) Satellites() []SatType {
	sats := make([]SatType, len(p.Sats))
	for i, m := range p.Sats {
		sats[i] = m.Sat
	}
	return sats
}

// Measurements grouped by satellite system
func (p *MeasurementEpoch) BySys() map[SysType][]SatMeasurement {
	m := map[SysType][]SatMeasurement{}
	for _, s := range p.Sats {
		m[s.Sat.Sys()] = append(m[s.Sat.Sys()], s)
	}
	return m
}

func (p *MeasurementEpoch) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %d sats\n", p.Time, len(p.Sats)))
	for _, sat := range Sorted(p.Satellites()) {
		for _, m := range p.Sats {
			if m.Sat == sat {
				sb.WriteString(fmt.Sprintf("\t%s: pr=%14.3f cn0=%5.1f\n", m.Sat, m.Pseudorange, m.Cn0))
			}
		}
	}
	return sb.String()
}
