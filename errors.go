// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gnssfix

import (
	"errors"
	"fmt"
)

// Failure conditions of the positioning pipeline.
// Satellite and constellation level failures are recorded in the result;
// Resolve itself returns only ErrInvalidMeasurement and ErrNoValidFix.
var (
	ErrDataUnavailable        = errors.New("data unavailable")
	ErrInsufficientSatellites = errors.New("insufficient satellites")
	ErrSingularGeometry       = errors.New("singular geometry")
	ErrKeplerNonConvergence   = errors.New("kepler equation did not converge")
	ErrNoValidFix             = errors.New("no valid fix")
	ErrInvalidMeasurement     = errors.New("invalid measurement")
	ErrMasked                 = errors.New("excluded by option")

	// Unhealthy ephemeris counts as missing data
	ErrUnhealthy = fmt.Errorf("unhealthy ephemeris: %w", ErrDataUnavailable)
)
