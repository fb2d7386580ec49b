package replication

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/storage-control-plane/interfaces"
	"github.com/ruteri/storage-control-plane/policy"
)

// statusEntry is one address's replication record plus its own lock.
type statusEntry struct {
	mu sync.Mutex
	s  interfaces.ReplicationStatus
}

// Controller applies pinning policies to content addresses and keeps each
// object's replication state converged with its target.
//
// Pin failures never fail the overall operation: the achieved replica count
// is recorded and health reflects how far short of target the object is.
type Controller struct {
	store    interfaces.ContentStore
	registry *policy.Registry
	log      *slog.Logger

	mu       sync.Mutex // guards the map, not the records
	statuses map[interfaces.ContentAddress]*statusEntry
}

// NewController creates a controller over the given store and policy registry.
func NewController(store interfaces.ContentStore, registry *policy.Registry, log *slog.Logger) *Controller {
	return &Controller{
		store:    store,
		registry: registry,
		log:      log,
		statuses: make(map[interfaces.ContentAddress]*statusEntry),
	}
}

func (c *Controller) entry(address interfaces.ContentAddress) *statusEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.statuses[address]
	if !ok {
		e = &statusEntry{s: interfaces.ReplicationStatus{Address: address}}
		c.statuses[address] = e
	}
	return e
}

// ApplyPolicy selects a policy for the object and requests the policy's
// minimum replica count in pins spread across its region set. The returned
// status reports achieved replicas and derived health.
func (c *Controller) ApplyPolicy(ctx context.Context, address interfaces.ContentAddress, in policy.SelectionInput) interfaces.ReplicationStatus {
	policyID := c.registry.SelectPolicy(in)
	pol, _ := c.registry.PolicyByID(policyID)

	e := c.entry(address)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.s.Policy = policyID
	e.s.TargetReplicas = pol.MinReplicas
	e.s.Regions = pol.Regions
	e.s.AdjustmentReason = interfaces.AdjustInitialPlacement

	c.pinToTargetLocked(ctx, e)

	c.log.Info("Applied pinning policy",
		slog.String("address", address.Short()),
		slog.String("policy", string(policyID)),
		slog.Int("replicas", e.s.Replicas),
		slog.Int("target", e.s.TargetReplicas),
		slog.String("health", string(e.s.Health)))

	return e.s
}

// Adopt registers replication state for an object pinned by another
// producer, without issuing any store calls of its own.
func (c *Controller) Adopt(address interfaces.ContentAddress, policyID interfaces.PolicyID, replicas int) interfaces.ReplicationStatus {
	pol, ok := c.registry.PolicyByID(policyID)
	if !ok {
		pol, _ = c.registry.PolicyByID(interfaces.PolicyDefault)
		policyID = interfaces.PolicyDefault
	}

	e := c.entry(address)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.s.Policy = policyID
	e.s.TargetReplicas = pol.MinReplicas
	e.s.Regions = pol.Regions
	e.s.Replicas = replicas
	e.s.Health = deriveHealth(replicas, pol.MinReplicas)
	e.s.AdjustmentReason = interfaces.AdjustInitialPlacement
	e.s.UpdatedAt = time.Now().UTC()

	return e.s
}

// EvaluateAdjustment re-evaluates an object's replica target from its access
// pattern. Daily access above the hot threshold raises the target to the hot
// policy ceiling; staleness beyond the retention window lowers it to the
// cold policy floor. Re-applying the same target is a no-op.
func (c *Controller) EvaluateAdjustment(ctx context.Context, address interfaces.ContentAddress, pattern interfaces.AccessPattern) (interfaces.ReplicationStatus, bool) {
	e := c.entry(address)
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		target int
		reason interfaces.AdjustmentReason
	)

	switch {
	case pattern.DailyAccess > policy.HotAccessThreshold:
		target = c.registry.HotCeiling()
		reason = interfaces.AdjustHighAccess
	case pattern.TotalAccess < policy.ColdAccessCeiling &&
		!pattern.LastAccessed.IsZero() &&
		time.Since(pattern.LastAccessed) > policy.ColdStalenessAge:
		target = c.registry.ColdFloor()
		reason = interfaces.AdjustLowAccess
	default:
		return e.s, false
	}

	if target == e.s.TargetReplicas {
		return e.s, false
	}

	previous := e.s.TargetReplicas
	e.s.TargetReplicas = target
	e.s.AdjustmentReason = reason

	if reason == interfaces.AdjustHighAccess {
		e.s.Policy = interfaces.PolicyHot
		if pol, ok := c.registry.PolicyByID(interfaces.PolicyHot); ok {
			e.s.Regions = pol.Regions
		}
		c.pinToTargetLocked(ctx, e)
	} else {
		e.s.Policy = interfaces.PolicyCold
		if pol, ok := c.registry.PolicyByID(interfaces.PolicyCold); ok {
			e.s.Regions = pol.Regions
		}
		// Lowering is pure bookkeeping: the store's pin primitive has no
		// per-replica release, so excess replicas age out store-side.
		if e.s.Replicas > target {
			e.s.Replicas = target
		}
		e.s.Health = deriveHealth(e.s.Replicas, e.s.TargetReplicas)
		e.s.UpdatedAt = time.Now().UTC()
	}

	c.log.Info("Adjusted replication target",
		slog.String("address", address.Short()),
		slog.String("reason", string(reason)),
		slog.Int("previous_target", previous),
		slog.Int("target", target),
		slog.String("health", string(e.s.Health)))

	return e.s, true
}

// Repin re-issues pins for an object until its recorded replica count
// reaches target again. Used after verification finds an object short of
// replicas and by the disaster recovery drill.
func (c *Controller) Repin(ctx context.Context, address interfaces.ContentAddress) (interfaces.ReplicationStatus, bool) {
	e := c.entry(address)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.TargetReplicas == 0 {
		return e.s, false
	}

	e.s.Replicas = 0
	c.pinToTargetLocked(ctx, e)
	return e.s, e.s.Replicas > 0
}

// pinToTargetLocked issues pin requests across the region set until the
// target count is reached, recording partial failure as degraded health.
// Caller holds e.mu.
func (c *Controller) pinToTargetLocked(ctx context.Context, e *statusEntry) {
	target := e.s.TargetReplicas
	regions := e.s.Regions
	if len(regions) == 0 {
		regions = []string{"default"}
	}

	achieved := 0
	for i := 0; i < target; i++ {
		region := regions[i%len(regions)]
		if err := c.store.Pin(ctx, e.s.Address, region); err != nil {
			c.log.Warn("Pin request failed",
				slog.String("address", e.s.Address.Short()),
				slog.String("region", region),
				"err", err)
			continue
		}
		achieved++
	}

	e.s.Replicas = achieved
	e.s.Health = deriveHealth(achieved, target)
	e.s.UpdatedAt = time.Now().UTC()
}

// RecordVerification updates an object's record from a backup verification
// result, which re-derived replicas and health from the live store.
func (c *Controller) RecordVerification(address interfaces.ContentAddress, replicas int, health interfaces.HealthState) {
	e := c.entry(address)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.s.Replicas = replicas
	e.s.Health = health
	e.s.UpdatedAt = time.Now().UTC()
}

// Status returns a copy of the record for an address, if one exists.
func (c *Controller) Status(address interfaces.ContentAddress) (interfaces.ReplicationStatus, bool) {
	c.mu.Lock()
	e, ok := c.statuses[address]
	c.mu.Unlock()
	if !ok {
		return interfaces.ReplicationStatus{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s, true
}

// Statuses returns a copy of every tracked record.
func (c *Controller) Statuses() []interfaces.ReplicationStatus {
	c.mu.Lock()
	entries := make([]*statusEntry, 0, len(c.statuses))
	for _, e := range c.statuses {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	out := make([]interfaces.ReplicationStatus, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.s)
		e.mu.Unlock()
	}
	return out
}

// Remove drops the record for an address. Called by the garbage collector
// alongside object deletion.
func (c *Controller) Remove(address interfaces.ContentAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, address)
}

// deriveHealth classifies replication health. The classification is
// exhaustive and mutually exclusive for all replica states.
func deriveHealth(replicas, target int) interfaces.HealthState {
	switch {
	case replicas == 0:
		return interfaces.HealthFailed
	case replicas < target:
		return interfaces.HealthDegraded
	default:
		return interfaces.HealthHealthy
	}
}
