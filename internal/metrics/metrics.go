// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Package metrics counts resolve outcomes with Prometheus collectors.
package metrics

import (
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	m "github.com/mkhts/gnssfix"
)

// Collector bundles the positioning metrics
type Collector struct {
	gatherer prometheus.Gatherer

	Resolves      *prometheus.CounterVec
	Fixes         *prometheus.CounterVec
	Flagged       *prometheus.CounterVec
	Excluded      *prometheus.CounterVec
	Iterations    prometheus.Histogram
	StoreRecords  prometheus.Gauge
	StoreSatCount prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	resolves, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnssfix_resolves_total",
		Help: "Measurement epochs resolved, labeled by outcome.",
	}, []string{"outcome"}), "gnssfix_resolves_total")
	if err != nil {
		return nil, err
	}
	fixes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnssfix_constellation_fixes_total",
		Help: "Per-constellation solves, labeled by constellation and outcome.",
	}, []string{"sys", "outcome"}), "gnssfix_constellation_fixes_total")
	if err != nil {
		return nil, err
	}
	flagged, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnssfix_flagged_satellites_total",
		Help: "Satellites flagged for large residuals, labeled by constellation.",
	}, []string{"sys"}), "gnssfix_flagged_satellites_total")
	if err != nil {
		return nil, err
	}
	excluded, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnssfix_excluded_satellites_total",
		Help: "Satellites dropped before solving, labeled by reason.",
	}, []string{"reason"}), "gnssfix_excluded_satellites_total")
	if err != nil {
		return nil, err
	}
	iterations, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gnssfix_solve_iterations",
		Help:    "Gauss-Newton iterations of the published fix.",
		Buckets: prometheus.LinearBuckets(1, 1, m.MAX_LOOP_COUNT),
	}), "gnssfix_solve_iterations")
	if err != nil {
		return nil, err
	}
	records, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnssfix_store_records",
		Help: "Ephemeris records held by the store.",
	}), "gnssfix_store_records")
	if err != nil {
		return nil, err
	}
	sats, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnssfix_store_satellites",
		Help: "Satellites with at least one ephemeris record.",
	}), "gnssfix_store_satellites")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		Resolves:      resolves,
		Fixes:         fixes,
		Flagged:       flagged,
		Excluded:      excluded,
		Iterations:    iterations,
		StoreRecords:  records,
		StoreSatCount: sats,
	}, nil
}

// ObserveResolve records the outcome of one Resolve call
func (c *Collector) ObserveResolve(res *m.OverallResult, err error) {
	if c == nil {
		return
	}
	c.Resolves.WithLabelValues(ResolveOutcome(err)).Inc()
	if res == nil {
		return
	}
	for _, cr := range res.Constellations {
		sys := cr.Sys.Name()
		c.Fixes.WithLabelValues(sys, ErrorOutcome(cr.Err)).Inc()
		if n := len(cr.Flagged); n > 0 {
			c.Flagged.WithLabelValues(sys).Add(float64(n))
		}
	}
	for _, e := range res.Excluded {
		c.Excluded.WithLabelValues(ErrorOutcome(e)).Inc()
	}
	if res.Published != nil {
		c.Iterations.Observe(float64(res.Published.Iterations))
	}
}

// ObserveStore records the size of an ephemeris store snapshot
func (c *Collector) ObserveStore(p *m.EphemerisSnapshot) {
	if c == nil || p == nil {
		return
	}
	c.StoreRecords.Set(float64(p.Len()))
	c.StoreSatCount.Set(float64(len(p.Satellites())))
}

// WriteText writes every gathered metric family in the text exposition format
func (c *Collector) WriteText(w io.Writer) error {
	mfs, err := c.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	return writeFamilies(w, mfs)
}

func writeFamilies(w io.Writer, mfs []*dto.MetricFamily) error {
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// ResolveOutcome labels the error returned by Resolve
func ResolveOutcome(err error) string {
	switch {
	case err == nil:
		return "fix"
	case errors.Is(err, m.ErrNoValidFix):
		return "no_fix"
	case errors.Is(err, m.ErrInvalidMeasurement):
		return "invalid"
	default:
		return "error"
	}
}

// ErrorOutcome labels a satellite or constellation level error
func ErrorOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, m.ErrMasked):
		return "masked"
	case errors.Is(err, m.ErrUnhealthy):
		return "unhealthy"
	case errors.Is(err, m.ErrDataUnavailable):
		return "no_data"
	case errors.Is(err, m.ErrKeplerNonConvergence):
		return "kepler"
	case errors.Is(err, m.ErrInsufficientSatellites):
		return "insufficient"
	case errors.Is(err, m.ErrSingularGeometry):
		return "singular"
	default:
		return "error"
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
