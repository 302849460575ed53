// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gnssfix

import (
	"fmt"
	"sort"
	"strconv"
)

// Type representing satellite name like "G10"
type SatType string

// Type representing satellite system like 'G'
type SysType byte

// Processing order of satellite systems
var sysOrder = map[SysType]int{'G': 0, 'J': 1, 'E': 2, 'R': 3, 'C': 4, 'S': 5}

// All supported satellite systems in processing order
var AllSys = []SysType{'G', 'J', 'E', 'R', 'C', 'S'}

func NewSatType(sys SysType, num int) SatType {
	return SatType(fmt.Sprintf("%c%02d", sys, num))
}

// Extract satellite system from satellite name
func (p SatType) Sys() SysType {
	if len(p) == 0 {
		return 0
	}
	return SysType(p[0])
}

// Extract satellite number from satellite name
func (p SatType) Num() int {
	if len(p) < 2 {
		return 0
	}
	i, err := strconv.Atoi(string(p[1:]))
	if err != nil {
		return 0
	}
	return i
}

// Check validity of satellite name (system letter followed by a positive number)
func (p SatType) IsValid() bool {
	return p.Sys().IsValid() && p.Num() > 0
}

// Check validity of satellite system
func (p SysType) IsValid() bool {
	_, ok := sysOrder[p]
	return ok
}

// Keplerian broadcast orbits are used by these systems
func (p SysType) IsKeplerian() bool {
	return p == 'G' || p == 'J' || p == 'E' || p == 'C'
}

func (p SysType) Name() string {
	switch p {
	case 'G':
		return "GPS"
	case 'J':
		return "QZSS"
	case 'E':
		return "Galileo"
	case 'R':
		return "GLONASS"
	case 'C':
		return "BeiDou"
	case 'S':
		return "SBAS"
	default:
		return "UNKNOWN"
	}
}

func (p SysType) String() string {
	return string(p)
}

// Sort the list of satellite names (system order, then number)
func Sorted(s []SatType) []SatType {
	s2 := make([]SatType, len(s))
	copy(s2, s)
	sort.Slice(s2, func(i, j int) bool {
		if s2[i].Sys() == s2[j].Sys() {
			return s2[i].Num() < s2[j].Num()
		}
		return sysOrder[s2[i].Sys()] < sysOrder[s2[j].Sys()]
	})
	return s2
}

// Sort satellite systems in processing order
func SortedSys(s []SysType) []SysType {
	s2 := make([]SysType, len(s))
	copy(s2, s)
	sort.Slice(s2, func(i, j int) bool {
		return sysOrder[s2[i]] < sysOrder[s2[j]]
	})
	return s2
}
