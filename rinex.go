// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gnssfix

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	mscanner "github.com/satoshi-pes/modscanner"
	"golang.org/x/exp/slices"
)

// RINEX 3.04 specification
// https://files.igs.org/pub/data/format/rinex304.pdf
//

// Supported navigation file versions
var navVersions = []string{"3.02", "3.03", "3.04", "3.05"}

var (
	navTimeRe = regexp.MustCompile(`^([GJERCS])([0-9 ][0-9]) (\d{4}) ([ \d]{2}) ([ \d]{2}) ([ \d]{2}) ([ \d]{2}) ([ \d]{2})`)
	navDataRe = regexp.MustCompile(`[- +\d]{2}\.\d{12}[DE][-+]\d{2}`)
)

// Contents of one navigation file
type NavData struct {
	Version     string
	LeapSeconds int  // Valid if LeapKnown
	LeapKnown   bool // LEAP SECONDS header line present
	Records     []*EphemerisRecord
	Skipped     int // State vector records (GLONASS, SBAS) not used
}

// Leap seconds as the optional argument of EphemerisStore.Ingest
func (p *NavData) Leap() *int {
	if !p.LeapKnown {
		return nil
	}
	leap := p.LeapSeconds
	return &leap
}

// Extract HEADER LABEL string from a header line
func getHeaderLabel(l string) string {
	if len(l) < 60 {
		return ""
	}
	return strings.TrimSpace(l[60:])
}

// Read leap seconds from the first field of the LEAP SECONDS line
func parseLeapSeconds(l string) (int, error) {
	f := strings.Fields(l[:60])
	if len(f) == 0 {
		return 0, fmt.Errorf("empty LEAP SECONDS line")
	}
	return strconv.Atoi(f[0])
}

// Read the leap second count from a navigation file header.
// Returns false if END OF HEADER comes before a LEAP SECONDS line.
func ReadLeapSeconds(r io.Reader) (int, bool, error) {
	s := mscanner.NewScanner(r)
	for s.Scan() {
		line := s.Text()
		switch getHeaderLabel(line) {
		case "LEAP SECONDS":
			leap, err := parseLeapSeconds(line)
			if err != nil {
				return 0, false, fmt.Errorf("failed to read leap seconds: %w", err)
			}
			return leap, true, nil
		case "END OF HEADER":
			return 0, false, nil
		}
	}
	return 0, false, nil
}

// Read satellite name and ToC (GPS time) from navigation data epoch line
func getNavTime(l string) (gt GTime, sat SatType, err error) {
	ms := navTimeRe.FindStringSubmatch(l)
	if ms == nil {
		return gt, sat, fmt.Errorf("regexp match failed. l=%s", l)
	}
	sys := SysType(ms[1][0])
	var v [7]int
	for i := range v {
		v[i], err = strconv.Atoi(strings.TrimSpace(ms[i+2]))
		if err != nil {
			return gt, sat, err
		}
	}
	sat = NewSatType(sys, v[0])
	sec := v[6]
	if sys == 'C' {
		sec += BdtOffsetSec // BDT -> GPST
	}
	gt = *NewGTime(time.Date(v[1], time.Month(v[2]), v[3], v[4], v[5], sec, 0, time.UTC))
	return
}

// Keep t within half a week of ref
func nearTime(t, ref GTime) GTime {
	if d := t.Sub(ref); d < -HalfWeekSec {
		return t.Add(WeekSec)
	} else if d > HalfWeekSec {
		return t.Add(-WeekSec)
	}
	return t
}

// Read navigation data (RINEX 3 mixed or single system navigation file).
// Keplerian records of GPS, QZSS, Galileo and BeiDou are returned with all
// times in GPS time; GLONASS and SBAS records are counted and skipped.
func ReadNav(r io.Reader, source string) (*NavData, error) {

	nav := &NavData{}

	headerDone := false

	// Record being read and its satellite system
	var eph *EphemerisRecord
	var sys SysType

	// Current line number being read, counted from satellite name and ToC line
	lineCount := 0

	s := mscanner.NewScanner(r)
	for s.Scan() {
		line := s.Text()

		// Process header lines
		if !headerDone {
			switch getHeaderLabel(line) {
			case "RINEX VERSION / TYPE":
				nav.Version = strings.TrimSpace(line[:9])
				if len(nav.Version) > 4 {
					nav.Version = nav.Version[:4]
				}
				if !slices.Contains(navVersions, nav.Version) {
					return nil, fmt.Errorf("unsupported RINEX version %q", nav.Version)
				}
				if typ := line[20:21]; typ != "N" {
					return nil, fmt.Errorf("not a navigation message file (typ=%s)", typ)
				}
			case "LEAP SECONDS":
				leap, err := parseLeapSeconds(line)
				if err != nil {
					return nil, fmt.Errorf("failed to read leap seconds: %w", err)
				}
				nav.LeapSeconds, nav.LeapKnown = leap, true
			case "END OF HEADER":
				headerDone = true
			}
			continue
		}

		// Process navigation message lines
		if !navDataRe.MatchString(line) {
			continue
		}
		switch c := SysType(line[0]); c {
		case 'G', 'J', 'E', 'C':
			if len(line) < 80 {
				return nil, fmt.Errorf("short epoch line %q", line)
			}
			toc, sat, err := getNavTime(line)
			if err != nil {
				return nil, fmt.Errorf("failed to read time of clock in navigation message: %w", err)
			}
			sys = c
			eph = &EphemerisRecord{Sat: sat, Toc: toc, Source: source}
			eph.Af0 = parseFloat(line[23:42])
			eph.Af1 = parseFloat(line[42:61])
			eph.Af2 = parseFloat(line[61:80])
			lineCount = 0
		case 'R', 'S':
			sys = c
			eph = nil
			nav.Skipped++
		case ' ':
			if eph == nil || !sys.IsKeplerian() {
				continue
			}
			if len(line) < 80 {
				line = line + strings.Repeat(" ", 80-len(line))
			}
			v0 := parseFloat(line[4:23])
			v1 := parseFloat(line[23:42])
			v2 := parseFloat(line[42:61])
			v3 := parseFloat(line[61:80])
			lineCount++
			switch lineCount {
			case 1:
				eph.Iode = int(v0)
				eph.Crs = v1
				eph.DeltaN = v2
				eph.M0 = v3
			case 2:
				eph.Cuc = v0
				eph.Ecc = v1
				eph.Cus = v2
				eph.SqrtA = v3
			case 3:
				eph.Toe.Sec = v0 // Week is on line 5
				eph.Cic = v1
				eph.Omega0 = v2
				eph.Cis = v3
			case 4:
				eph.I0 = v0
				eph.Crc = v1
				eph.Omega = v2
				eph.OmegaD = v3
			case 5:
				eph.Idot = v0
				eph.Week = int(v2)
				toe := eph.Toe.Sec
				if sys == 'C' {
					eph.Week += BdtWeekOffset // BDT week -> GPS week
					toe += BdtOffsetSec
				}
				eph.Toe = nearTime(GTime{Week: eph.Week}.Add(toe), eph.Toc)
			case 6:
				eph.Svh = int(v1)
				eph.Tgd = v2 // GPS/QZSS TGD, BeiDou TGD1 (B1/B3)
				if sys == 'E' {
					eph.Tgd = v3 // BGD E5b/E1
				}
			case 7:
				nav.Records = append(nav.Records, eph)
				eph = nil
			}
		}
	}

	return nav, nil
}

// Read real values by absorbing variations in exponential notation within RINEX files
func parseFloat(str string) float64 {
	s := strings.TrimSpace(str)
	if strings.ContainsAny(s, "Dd") {
		s = strings.Replace(s, "D", "E", 1)
		s = strings.Replace(s, "d", "e", 1)
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
