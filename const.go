// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gnssfix

const (
	PI = 3.1415926535897932  // Pi
	C  = 2.99792458e8        // Speed of light [m/s]
	Re = 6378137.0           // Earth's radius [m]
	Fe = 1.0 / 298.257223563 // Earth's flattening

	WeekSec     = 604800.0 // Seconds in a GPS week
	HalfWeekSec = 302400.0 // Half of a GPS week
	DaySec      = 86400.0  // Seconds in a day

	BdtOffsetSec  = 14   // BDT = GPST - 14 s
	BdtWeekOffset = 1356 // BDT week 0 starts at GPS week 1356

	MinSats = 4 // Minimum satellites for a position/clock solve
)

// Earth gravitational constant [m^3/s^2] and rotation rate [rad/s] per system
const (
	MuGPS     = 3.986005e14
	MuGAL     = 3.986004418e14
	MuBDS     = 3.986004418e14
	OmegaEGPS = 7.2921151467e-5
	OmegaEGAL = 7.2921151467e-5
	OmegaEBDS = 7.292115e-5
)
