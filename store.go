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
	"sync"
	"sync/atomic"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// EphemerisSource is what the resolver needs from an ephemeris container
type EphemerisSource interface {
	Lookup(epoch GTime, sats []SatType) map[SatType]*EphemerisRecord
	LeapSeconds() (int, bool)
}

// EphemerisStore holds broadcast ephemerides indexed by satellite.
//
// Writers are serialized and publish a new immutable snapshot on every
// Ingest; readers load the current snapshot and never block.
type EphemerisStore struct {
	snap atomic.Pointer[EphemerisSnapshot]
	mu   sync.Mutex // serializes Ingest
}

// EphemerisSnapshot is a read-only view of the store at one point in time
type EphemerisSnapshot struct {
	// Map with satellite name as Key and slice sorted by Toe in ascending order as Value.
	// Entries with the same Toe keep ingestion order.
	index     map[SatType][]*EphemerisRecord
	count     int
	leap      int
	leapKnown bool
}

func NewEphemerisStore() *EphemerisStore {
	s := &EphemerisStore{}
	s.snap.Store(&EphemerisSnapshot{index: map[SatType][]*EphemerisRecord{}})
	return s
}

// Snapshot returns the current read-only view
func (s *EphemerisStore) Snapshot() *EphemerisSnapshot {
	return s.snap.Load()
}

// Ingest appends records and, if not yet known, the leap second count.
// Records identical to one already held are skipped. Returns the number of
// records added.
func (s *EphemerisStore) Ingest(recs []*EphemerisRecord, leap *int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.snap.Load()
	next := &EphemerisSnapshot{
		index:     make(map[SatType][]*EphemerisRecord, len(old.index)),
		count:     old.count,
		leap:      old.leap,
		leapKnown: old.leapKnown,
	}
	for k, v := range old.index {
		next.index[k] = v
	}

	// Satellites whose slice has been copied in this call
	touched := map[SatType]bool{}
	added := 0
	for _, rec := range recs {
		if rec == nil || !rec.Sat.IsValid() {
			continue
		}
		if next.contains(rec) {
			continue
		}
		if !touched[rec.Sat] {
			next.index[rec.Sat] = slices.Clone(next.index[rec.Sat])
			touched[rec.Sat] = true
		}
		next.index[rec.Sat] = append(next.index[rec.Sat], rec)
		added++
	}
	for sat := range touched {
		slices.SortStableFunc(next.index[sat], func(a, b *EphemerisRecord) int {
			return a.Toe.Compare(b.Toe)
		})
	}
	next.count += added

	if !next.leapKnown && leap != nil {
		next.leap = *leap
		next.leapKnown = true
	}

	s.snap.Store(next)
	return added
}

func (s *EphemerisStore) Lookup(epoch GTime, sats []SatType) map[SatType]*EphemerisRecord {
	return s.Snapshot().Lookup(epoch, sats)
}

func (s *EphemerisStore) LeapSeconds() (int, bool) {
	return s.Snapshot().LeapSeconds()
}

func (s *EphemerisStore) Len() int {
	return s.Snapshot().Len()
}

func (s *EphemerisStore) Satellites() []SatType {
	return s.Snapshot().Satellites()
}

func (s *EphemerisStore) String() string {
	return s.Snapshot().String()
}

// Lookup returns, for each requested satellite, the record with the latest
// Toe strictly before epoch. When several records share that Toe the last
// ingested one wins. Satellites without such a record are omitted.
// A nil sats slice selects every satellite in the snapshot.
func (p *EphemerisSnapshot) Lookup(epoch GTime, sats []SatType) map[SatType]*EphemerisRecord {
	if sats == nil {
		sats = maps.Keys(p.index)
	}
	out := make(map[SatType]*EphemerisRecord, len(sats))
	for _, sat := range sats {
		if rec := p.latestBefore(sat, epoch); rec != nil {
			out[sat] = rec
		}
	}
	return out
}

func (p *EphemerisSnapshot) latestBefore(sat SatType, epoch GTime) *EphemerisRecord {
	recs := p.index[sat]
	// First position whose Toe is not before epoch
	i, _ := slices.BinarySearchFunc(recs, epoch, func(e *EphemerisRecord, t GTime) int {
		return e.Toe.Compare(t)
	})
	if i == 0 {
		return nil
	}
	return recs[i-1]
}

func (p *EphemerisSnapshot) contains(rec *EphemerisRecord) bool {
	recs := p.index[rec.Sat]
	i, _ := slices.BinarySearchFunc(recs, rec.Toe, func(e *EphemerisRecord, t GTime) int {
		return e.Toe.Compare(t)
	})
	for ; i < len(recs) && recs[i].Toe == rec.Toe; i++ {
		if *recs[i] == *rec {
			return true
		}
	}
	return false
}

// Cached leap second count, or false if no source reported it yet
func (p *EphemerisSnapshot) LeapSeconds() (int, bool) {
	return p.leap, p.leapKnown
}

// Number of records held
func (p *EphemerisSnapshot) Len() int {
	return p.count
}

// Satellites with at least one record, sorted
func (p *EphemerisSnapshot) Satellites() []SatType {
	return Sorted(maps.Keys(p.index))
}

// Display overview of the held records
func (p *EphemerisSnapshot) String() string {
	var sb strings.Builder
	sb.WriteString("toe:\n")
	for _, sat := range p.Satellites() {
		recs := p.index[sat]
		if len(recs) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("\t%s: %s - %s (%d)\n", sat,
			recs[0].Toe.ToTime().UTC().Format("2006/01/02 15:04:05"),
			recs[len(recs)-1].Toe.ToTime().UTC().Format("2006/01/02 15:04:05"),
			len(recs)))
	}
	return sb.String()
}
