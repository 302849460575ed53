// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Converts Android GnssMeasurement rows into measurement epochs.

package gnssfix

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Android constellation types
const (
	ConstGPS     = 1
	ConstSBAS    = 2
	ConstGLONASS = 3
	ConstQZSS    = 4
	ConstBeiDou  = 5
	ConstGalileo = 6
)

// Android measurement state bits
const (
	StateTowDecoded    = 0x0008
	StateGloTodDecoded = 0x0080
	StateTowKnown      = 0x4000
	StateGloTodKnown   = 0x8000
)

const (
	weekNanos = int64(WeekSec) * 1e9
	dayNanos  = int64(DaySec) * 1e9
	gloOffset = int64(3 * 3600 * 1e9) // GLONASS time is UTC(SU) = UTC + 3h
)

// One row of Android raw GNSS measurements (GnssClock and GnssMeasurement fields)
type RawMeasurement struct {
	Svid                int     `json:"svid"`
	ConstellationType   int     `json:"constellationType"`
	TimeNanos           int64   `json:"timeNanos"`
	TimeOffsetNanos     float64 `json:"timeOffsetNanos"`
	FullBiasNanos       int64   `json:"fullBiasNanos"`
	BiasNanos           float64 `json:"biasNanos"`
	ReceivedSvTimeNanos int64   `json:"receivedSvTimeNanos"`
	State               int     `json:"state"`
	Cn0DbHz             float64 `json:"cn0DbHz"`
	CarrierFrequencyHz  float64 `json:"carrierFrequencyHz"`
}

// Decode a JSON array of raw measurement rows
func ReadRaw(r io.Reader) ([]RawMeasurement, error) {
	var rows []RawMeasurement
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode raw measurements: %w", err)
	}
	return rows, nil
}

// Satellite name of the row, or an error for unsupported ids
func (p *RawMeasurement) Sat() (SatType, error) {
	switch p.ConstellationType {
	case ConstGPS:
		if p.Svid >= 1 && p.Svid <= 32 {
			return NewSatType('G', p.Svid), nil
		}
	case ConstSBAS:
		if p.Svid >= 120 && p.Svid <= 158 {
			return NewSatType('S', p.Svid-100), nil
		}
	case ConstGLONASS:
		if p.Svid >= 1 && p.Svid <= 24 { // Frequency channel numbers (93-106) are not slots
			return NewSatType('R', p.Svid), nil
		}
	case ConstQZSS:
		if p.Svid >= 193 && p.Svid <= 202 {
			return NewSatType('J', p.Svid-192), nil
		}
	case ConstBeiDou:
		if p.Svid >= 1 && p.Svid <= 63 {
			return NewSatType('C', p.Svid), nil
		}
	case ConstGalileo:
		if p.Svid >= 1 && p.Svid <= 36 {
			return NewSatType('E', p.Svid), nil
		}
	}
	return "", fmt.Errorf("constellation %d svid %d: %w", p.ConstellationType, p.Svid, ErrInvalidMeasurement)
}

// Receiver time in GPS time (whole nanoseconds since the GPS epoch and the sub-nanosecond remainder)
func (p *RawMeasurement) rxNanos() (int64, float64) {
	return p.TimeNanos - p.FullBiasNanos, p.TimeOffsetNanos - p.BiasNanos
}

// Receiver GPS time of the clock reading, shared by every row of an epoch.
// TimeOffsetNanos is per measurement and left to Pseudorange.
func (p *RawMeasurement) RxTime() GTime {
	ns := p.TimeNanos - p.FullBiasNanos
	t := GTime{Week: int(ns / weekNanos), Sec: float64(ns%weekNanos) * 1e-9}
	return t.Add(-p.BiasNanos * 1e-9)
}

// Whether the signal is on the first frequency band (L1, E1, B1I, G1). 0 means not reported.
func (p *RawMeasurement) isL1() bool {
	f := p.CarrierFrequencyHz
	switch {
	case f == 0:
		return true
	case p.ConstellationType == ConstGLONASS:
		return f > 1.592e9 && f < 1.610e9
	case p.ConstellationType == ConstBeiDou:
		return math.Abs(f-1.561098e9) < 1e6 || math.Abs(f-1.57542e9) < 1e6
	default:
		return math.Abs(f-1.57542e9) < 1e6
	}
}

// Pseudorange [m] from the receiver time of reception in the satellite's
// time scale and the received satellite time. leap is required for GLONASS.
func (p *RawMeasurement) Pseudorange(leap *int) (float64, error) {
	ns, frac := p.rxNanos()

	var rx, period int64
	switch p.ConstellationType {
	case ConstGPS, ConstQZSS, ConstGalileo, ConstSBAS:
		if p.State&(StateTowDecoded|StateTowKnown) == 0 {
			return 0, fmt.Errorf("tow not decoded (state=%#x): %w", p.State, ErrInvalidMeasurement)
		}
		rx, period = ns%weekNanos, weekNanos
	case ConstBeiDou:
		if p.State&(StateTowDecoded|StateTowKnown) == 0 {
			return 0, fmt.Errorf("tow not decoded (state=%#x): %w", p.State, ErrInvalidMeasurement)
		}
		rx, period = (ns-BdtOffsetSec*1e9)%weekNanos, weekNanos
	case ConstGLONASS:
		if p.State&(StateGloTodDecoded|StateGloTodKnown) == 0 {
			return 0, fmt.Errorf("tod not decoded (state=%#x): %w", p.State, ErrInvalidMeasurement)
		}
		if leap == nil {
			return 0, fmt.Errorf("leap seconds unknown for GLONASS: %w", ErrDataUnavailable)
		}
		rx, period = (ns+gloOffset-int64(*leap)*1e9)%dayNanos, dayNanos
	default:
		return 0, fmt.Errorf("constellation %d: %w", p.ConstellationType, ErrInvalidMeasurement)
	}

	// Travel time with rollover of the time of week/day
	d := rx - p.ReceivedSvTimeNanos
	if d > period/2 {
		d -= period
	} else if d < -period/2 {
		d += period
	}
	pr := (float64(d) + frac) * 1e-9 * C
	if !(pr >= MinPseudorange && pr <= MaxPseudorange) {
		return 0, fmt.Errorf("pseudorange %g: %w", pr, ErrInvalidMeasurement)
	}
	return pr, nil
}

// EpochsFromRaw groups rows by receiver timestamp into validated epochs.
// Rows that cannot be converted are dropped; their errors are joined into the
// returned error, which does not invalidate the returned epochs. Signals other
// than the first frequency band are ignored, and a satellite reported twice in
// one epoch keeps the row with the higher C/N0.
func EpochsFromRaw(rows []RawMeasurement, leap *int) ([]*MeasurementEpoch, error) {

	var errs []error
	byTime := map[int64][]RawMeasurement{}
	for _, row := range rows {
		byTime[row.TimeNanos] = append(byTime[row.TimeNanos], row)
	}
	keys := maps.Keys(byTime)
	slices.Sort(keys)

	epochs := make([]*MeasurementEpoch, 0, len(keys))
	for _, k := range keys {
		group := byTime[k]
		if group[0].FullBiasNanos == 0 {
			errs = append(errs, fmt.Errorf("timeNanos %d: no full bias: %w", k, ErrInvalidMeasurement))
			continue
		}
		epoch := &MeasurementEpoch{Time: group[0].RxTime()}
		index := map[SatType]int{}
		for _, row := range group {
			if !row.isL1() {
				continue
			}
			sat, err := row.Sat()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			pr, err := row.Pseudorange(leap)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sat, err))
				continue
			}
			m := SatMeasurement{Sat: sat, Pseudorange: pr, Cn0: row.Cn0DbHz}
			if i, ok := index[sat]; ok {
				if m.Cn0 > epoch.Sats[i].Cn0 {
					epoch.Sats[i] = m
				}
				continue
			}
			index[sat] = len(epoch.Sats)
			epoch.Sats = append(epoch.Sats, m)
		}
		if err := epoch.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("timeNanos %d: %w", k, err))
			continue
		}
		epochs = append(epochs, epoch)
	}
	return epochs, errors.Join(errs...)
}
