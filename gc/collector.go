package gc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/storage-control-plane/interfaces"
)

// refsPrefix namespaces reference lists in the reference index.
const refsPrefix = "refs:"

// State is the lifecycle of one queued address.
type State string

// Queue states.
const (
	StateQueued     State = "queued"
	StateEvaluating State = "evaluating"
	StateDeleted    State = "deleted"
	StateRetained   State = "retained"
)

// Outcome reports one evaluation result.
type Outcome struct {
	Address interfaces.ContentAddress
	State   State
	Reason  string
}

// Stats aggregates one sweep over the queue. Per-item errors are isolated
// and counted here; they never abort the sweep.
type Stats struct {
	Evaluated int
	Deleted   int
	Retained  int
	Errors    int
	Events    []interfaces.Event
}

// Catalog resolves object metadata for queued addresses.
type Catalog interface {
	Lookup(address interfaces.ContentAddress) (interfaces.ObjectMetadata, bool)
	Remove(address interfaces.ContentAddress)
}

// UsageFreer releases deleted bytes from the tenant's quota.
type UsageFreer interface {
	UpdateUsage(tenant string, delta int64) (interfaces.StorageQuota, []interfaces.Event)
}

// StatusRemover drops the replication record for a deleted address.
type StatusRemover interface {
	Remove(address interfaces.ContentAddress)
}

// PatternForgetter drops the access pattern for a deleted address.
type PatternForgetter interface {
	Forget(address interfaces.ContentAddress)
}

// DedupRemover drops the dedup registration for a deleted canonical object.
type DedupRemover interface {
	Remove(ctx context.Context, hash interfaces.ContentHash) error
}

// AddressLocker serializes operations on the same content address.
type AddressLocker interface {
	Lock(key string) (unlock func())
}

// queueEntry is one pending deletion.
type queueEntry struct {
	address        interfaces.ContentAddress
	ownerInitiated bool
	enqueuedAt     time.Time
	state          State
}

// Collector evaluates queued content addresses for deletion. Deletion
// proceeds only when retention has expired and zero references exist, or
// when the owner requested it and no references are outstanding. Any
// non-zero reference count forces retention regardless of expiry.
type Collector struct {
	store    interfaces.ContentStore
	index    interfaces.ReferenceIndex
	catalog  Catalog
	usage    UsageFreer
	statuses StatusRemover
	patterns PatternForgetter
	dedup    DedupRemover
	locks    AddressLocker
	log      *slog.Logger

	mu    sync.Mutex
	queue map[interfaces.ContentAddress]*queueEntry
}

// NewCollector wires a collector to its collaborators.
func NewCollector(store interfaces.ContentStore, index interfaces.ReferenceIndex, catalog Catalog,
	usage UsageFreer, statuses StatusRemover, patterns PatternForgetter, dedup DedupRemover,
	locks AddressLocker, log *slog.Logger) *Collector {
	return &Collector{
		store:    store,
		index:    index,
		catalog:  catalog,
		usage:    usage,
		statuses: statuses,
		patterns: patterns,
		dedup:    dedup,
		locks:    locks,
		log:      log,
		queue:    make(map[interfaces.ContentAddress]*queueEntry),
	}
}

// Enqueue adds an address to the pending-deletion queue. Re-enqueueing a
// queued address upgrades it to owner-initiated if either request was.
func (c *Collector) Enqueue(address interfaces.ContentAddress, ownerInitiated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.queue[address]; ok {
		e.ownerInitiated = e.ownerInitiated || ownerInitiated
		return
	}
	c.queue[address] = &queueEntry{
		address:        address,
		ownerInitiated: ownerInitiated,
		enqueuedAt:     time.Now().UTC(),
		state:          StateQueued,
	}
}

// Pending returns the number of queued addresses.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// EvaluateForDeletion runs the deletion decision for one address and, when
// deletion is allowed, performs it: unpin, quota release, record removal.
// The whole decide-then-act sequence runs inside the per-address critical
// section, with a reference re-check immediately before the unpin, so a
// reference registered after evaluation cannot be orphaned.
func (c *Collector) EvaluateForDeletion(ctx context.Context, address interfaces.ContentAddress) (Outcome, []interfaces.Event, error) {
	c.mu.Lock()
	e, ok := c.queue[address]
	if !ok {
		c.mu.Unlock()
		return Outcome{Address: address, State: StateRetained, Reason: "not queued"}, nil, nil
	}
	e.state = StateEvaluating
	ownerInitiated := e.ownerInitiated
	c.mu.Unlock()

	unlock := c.locks.Lock(string(address))
	defer unlock()

	outcome, events, err := c.evaluateLocked(ctx, address, ownerInitiated)

	c.mu.Lock()
	if outcome.State == StateDeleted || outcome.State == StateRetained {
		delete(c.queue, address)
	} else {
		e.state = StateQueued
	}
	c.mu.Unlock()

	return outcome, events, err
}

func (c *Collector) evaluateLocked(ctx context.Context, address interfaces.ContentAddress, ownerInitiated bool) (Outcome, []interfaces.Event, error) {
	meta, ok := c.catalog.Lookup(address)
	if !ok {
		// Already gone; nothing to free.
		return Outcome{Address: address, State: StateDeleted, Reason: "unknown object"}, nil, nil
	}

	refs, err := c.getReferences(ctx, address)
	if err != nil {
		// Uncertainty about references must never resolve to deletion.
		return Outcome{Address: address, State: StateQueued, Reason: "reference lookup failed"},
			nil, fmt.Errorf("reference lookup for %s: %w", address.Short(), err)
	}

	if len(refs) > 0 {
		c.log.Debug("Retaining content with active references",
			slog.String("address", address.Short()),
			slog.Int("references", len(refs)))
		return Outcome{Address: address, State: StateRetained, Reason: "active references"}, nil, nil
	}

	retentionExpired := meta.RetainUntil.IsZero() || time.Now().After(meta.RetainUntil)
	if !ownerInitiated && !retentionExpired {
		return Outcome{Address: address, State: StateRetained, Reason: "retention not expired"}, nil, nil
	}

	// References may have been registered since the lookup above. Re-check
	// inside the same critical section before acting on the decision.
	refs, err = c.getReferences(ctx, address)
	if err != nil {
		return Outcome{Address: address, State: StateQueued, Reason: "reference re-check failed"},
			nil, fmt.Errorf("reference re-check for %s: %w", address.Short(), err)
	}
	if len(refs) > 0 {
		return Outcome{Address: address, State: StateRetained, Reason: "referenced during evaluation"}, nil, nil
	}

	if err := c.store.Unpin(ctx, address); err != nil && !errors.Is(err, interfaces.ErrContentNotFound) {
		return Outcome{Address: address, State: StateQueued, Reason: "unpin failed"},
			nil, fmt.Errorf("unpin %s: %w", address.Short(), err)
	}

	_, quotaEvents := c.usage.UpdateUsage(meta.Tenant, -meta.Size)
	c.catalog.Remove(address)
	c.statuses.Remove(address)
	c.patterns.Forget(address)
	if err := c.dedup.Remove(ctx, meta.ContentHash); err != nil {
		c.log.Debug("Failed to drop dedup registration for deleted object",
			slog.String("address", address.Short()),
			"err", err)
	}

	c.log.Info("Deleted content",
		slog.String("address", address.Short()),
		slog.String("tenant", meta.Tenant),
		slog.Int64("freed_bytes", meta.Size))

	events := append(quotaEvents, interfaces.NewEvent(interfaces.SubjectFileDeleted, meta.Tenant, map[string]any{
		"address":    address.String(),
		"sizeBytes":  meta.Size,
		"freedBytes": meta.Size,
	}))

	return Outcome{Address: address, State: StateDeleted, Reason: "deleted"}, events, nil
}

// Sweep evaluates every queued address once. Errors are isolated per item:
// the failing entry stays queued for the next sweep and the rest proceed.
func (c *Collector) Sweep(ctx context.Context) Stats {
	c.mu.Lock()
	addresses := make([]interfaces.ContentAddress, 0, len(c.queue))
	for addr := range c.queue {
		addresses = append(addresses, addr)
	}
	c.mu.Unlock()

	var stats Stats
	for _, addr := range addresses {
		if ctx.Err() != nil {
			break
		}

		outcome, events, err := c.EvaluateForDeletion(ctx, addr)
		stats.Evaluated++
		stats.Events = append(stats.Events, events...)

		switch {
		case err != nil:
			stats.Errors++
			c.log.Warn("GC evaluation failed",
				slog.String("address", addr.Short()),
				"err", err)
		case outcome.State == StateDeleted:
			stats.Deleted++
		default:
			stats.Retained++
		}
	}

	c.log.Debug("GC sweep complete",
		slog.Int("evaluated", stats.Evaluated),
		slog.Int("deleted", stats.Deleted),
		slog.Int("retained", stats.Retained),
		slog.Int("errors", stats.Errors))

	return stats
}

// getReferences reads the reference list for an address. An absent key
// means zero references.
func (c *Collector) getReferences(ctx context.Context, address interfaces.ContentAddress) ([]string, error) {
	raw, err := c.index.Get(ctx, refsPrefix+string(address))
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var refs []string
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, fmt.Errorf("corrupt reference list: %w", err)
	}
	return refs, nil
}
