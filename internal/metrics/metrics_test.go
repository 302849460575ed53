// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package metrics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	m "github.com/mkhts/gnssfix"
)

func TestObserveResolve(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	res := &m.OverallResult{
		Published: &m.PositionFix{Label: "GPS", Iterations: 5},
		Constellations: []*m.ConstellationResult{
			{Sys: 'G', Flagged: []m.SatType{"G03", "G07"}},
			{Sys: 'E', Err: fmt.Errorf("Galileo: %w", m.ErrInsufficientSatellites)},
		},
		Excluded: map[m.SatType]error{
			"C20": m.ErrUnhealthy,
			"C21": fmt.Errorf("no ephemeris: %w", m.ErrDataUnavailable),
			"E05": fmt.Errorf("c/n0: %w", m.ErrMasked),
		},
	}
	c.ObserveResolve(res, nil)
	c.ObserveResolve(&m.OverallResult{}, m.ErrNoValidFix)
	c.ObserveResolve(nil, fmt.Errorf("nil epoch: %w", m.ErrInvalidMeasurement))

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"fix", testutil.ToFloat64(c.Resolves.WithLabelValues("fix")), 1},
		{"no_fix", testutil.ToFloat64(c.Resolves.WithLabelValues("no_fix")), 1},
		{"invalid", testutil.ToFloat64(c.Resolves.WithLabelValues("invalid")), 1},
		{"gps ok", testutil.ToFloat64(c.Fixes.WithLabelValues("GPS", "ok")), 1},
		{"galileo insufficient", testutil.ToFloat64(c.Fixes.WithLabelValues("Galileo", "insufficient")), 1},
		{"gps flagged", testutil.ToFloat64(c.Flagged.WithLabelValues("GPS")), 2},
		{"unhealthy", testutil.ToFloat64(c.Excluded.WithLabelValues("unhealthy")), 1},
		{"no_data", testutil.ToFloat64(c.Excluded.WithLabelValues("no_data")), 1},
		{"masked", testutil.ToFloat64(c.Excluded.WithLabelValues("masked")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if n := testutil.CollectAndCount(c.Iterations); n != 1 {
		t.Errorf("iterations histogram has %d series", n)
	}
}

func TestObserveStore(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	store := m.NewEphemerisStore()
	toe := m.GTime{Week: 2323, Sec: 7200}
	store.Ingest([]*m.EphemerisRecord{
		{Sat: "G05", Toe: toe},
		{Sat: "G05", Toe: toe.Add(7200)},
		{Sat: "E11", Toe: toe},
	}, nil)
	c.ObserveStore(store.Snapshot())

	if got := testutil.ToFloat64(c.StoreRecords); got != 3 {
		t.Errorf("records = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.StoreSatCount); got != 2 {
		t.Errorf("satellites = %v, want 2", got)
	}
}

func TestNewCollectorTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	a.Resolves.WithLabelValues("fix").Inc()
	if got := testutil.ToFloat64(b.Resolves.WithLabelValues("fix")); got != 1 {
		t.Errorf("collectors not shared, got %v", got)
	}
}

func TestWriteText(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	c.ObserveResolve(&m.OverallResult{}, m.ErrNoValidFix)

	var buf bytes.Buffer
	if err := c.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"# TYPE gnssfix_resolves_total counter",
		`gnssfix_resolves_total{outcome="no_fix"} 1`,
		"gnssfix_store_records 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}

func TestErrorOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("x: %w", m.ErrMasked), "masked"},
		{m.ErrUnhealthy, "unhealthy"},
		{m.ErrDataUnavailable, "no_data"},
		{m.ErrKeplerNonConvergence, "kepler"},
		{m.ErrInsufficientSatellites, "insufficient"},
		{m.ErrSingularGeometry, "singular"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		if got := ErrorOutcome(tt.err); got != tt.want {
			t.Errorf("ErrorOutcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
