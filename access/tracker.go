// Package access implements the per-address access pattern tracker.
//
// The tracker is a heuristic signal feeding replication adjustment, not a
// ledger: it is pure in-memory accounting and loss on restart is acceptable.
package access

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/storage-control-plane/interfaces"
)

// pattern is one address's record plus its own lock.
type pattern struct {
	mu sync.Mutex
	p  interfaces.AccessPattern
}

// Tracker records access frequency and recency per content address.
type Tracker struct {
	mu       sync.Mutex // guards the map, not the records
	patterns map[interfaces.ContentAddress]*pattern
	log      *slog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(log *slog.Logger) *Tracker {
	return &Tracker{
		patterns: make(map[interfaces.ContentAddress]*pattern),
		log:      log,
	}
}

// pattern returns the record for an address, creating it on first access.
func (t *Tracker) pattern(address interfaces.ContentAddress) *pattern {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.patterns[address]
	if !ok {
		rec = &pattern{p: interfaces.AccessPattern{
			Address:  address,
			ByType:   make(map[interfaces.AccessType]int64),
			ByRegion: make(map[string]int64),
		}}
		t.patterns[address] = rec
	}
	return rec
}

// RecordAccess increments counters and histograms for one access and
// returns a copy of the updated pattern.
func (t *Tracker) RecordAccess(address interfaces.ContentAddress, accessType interfaces.AccessType, region string) interfaces.AccessPattern {
	rec := t.pattern(address)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.p.TotalAccess++
	rec.p.DailyAccess++
	rec.p.WeeklyAccess++
	rec.p.LastAccessed = time.Now().UTC()
	rec.p.ByType[accessType]++
	if region != "" {
		rec.p.ByRegion[region]++
	}

	return copyPattern(rec.p)
}

// Register creates an empty pattern for an address without counting an
// access. Used when another producer created the object and this layer only
// learns of it via the event bus.
func (t *Tracker) Register(address interfaces.ContentAddress) interfaces.AccessPattern {
	rec := t.pattern(address)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return copyPattern(rec.p)
}

// Pattern returns a copy of the record for an address, if one exists.
func (t *Tracker) Pattern(address interfaces.ContentAddress) (interfaces.AccessPattern, bool) {
	t.mu.Lock()
	rec, ok := t.patterns[address]
	t.mu.Unlock()
	if !ok {
		return interfaces.AccessPattern{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return copyPattern(rec.p), true
}

// Forget removes the record for an address. Called alongside object deletion.
func (t *Tracker) Forget(address interfaces.ContentAddress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.patterns, address)
}

// ResetDaily zeroes all daily counters. TotalAccess is preserved.
func (t *Tracker) ResetDaily() {
	for _, rec := range t.snapshotRecords() {
		rec.mu.Lock()
		rec.p.DailyAccess = 0
		rec.mu.Unlock()
	}
	t.log.Debug("Reset daily access counters")
}

// ResetWeekly zeroes all weekly counters. TotalAccess is preserved.
func (t *Tracker) ResetWeekly() {
	for _, rec := range t.snapshotRecords() {
		rec.mu.Lock()
		rec.p.WeeklyAccess = 0
		rec.mu.Unlock()
	}
	t.log.Debug("Reset weekly access counters")
}

func (t *Tracker) snapshotRecords() []*pattern {
	t.mu.Lock()
	defer t.mu.Unlock()

	records := make([]*pattern, 0, len(t.patterns))
	for _, rec := range t.patterns {
		records = append(records, rec)
	}
	return records
}

func copyPattern(p interfaces.AccessPattern) interfaces.AccessPattern {
	out := p
	out.ByType = make(map[interfaces.AccessType]int64, len(p.ByType))
	for k, v := range p.ByType {
		out.ByType[k] = v
	}
	out.ByRegion = make(map[string]int64, len(p.ByRegion))
	for k, v := range p.ByRegion {
		out.ByRegion[k] = v
	}
	return out
}
