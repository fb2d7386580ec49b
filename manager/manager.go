package manager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/storage-control-plane/access"
	"github.com/ruteri/storage-control-plane/backup"
	"github.com/ruteri/storage-control-plane/dedup"
	"github.com/ruteri/storage-control-plane/events"
	"github.com/ruteri/storage-control-plane/gc"
	"github.com/ruteri/storage-control-plane/interfaces"
	"github.com/ruteri/storage-control-plane/metrics"
	"github.com/ruteri/storage-control-plane/policy"
	"github.com/ruteri/storage-control-plane/quota"
	"github.com/ruteri/storage-control-plane/replication"
)

// Config carries the tunable parameters of the manager. Zero values select
// the documented defaults.
type Config struct {
	DedupMinSize      int64
	DefaultQuotaBytes int64

	GCInterval          time.Duration
	ReevaluateInterval  time.Duration
	VerifyInterval      time.Duration
	DrillInterval       time.Duration
	DailyResetInterval  time.Duration
	WeeklyResetInterval time.Duration
	AlertPeriodInterval time.Duration
}

func (c *Config) withDefaults() {
	if c.GCInterval <= 0 {
		c.GCInterval = 5 * time.Minute
	}
	if c.ReevaluateInterval <= 0 {
		c.ReevaluateInterval = 15 * time.Minute
	}
	if c.VerifyInterval <= 0 {
		c.VerifyInterval = time.Hour
	}
	if c.DrillInterval <= 0 {
		c.DrillInterval = 24 * time.Hour
	}
	if c.DailyResetInterval <= 0 {
		c.DailyResetInterval = 24 * time.Hour
	}
	if c.WeeklyResetInterval <= 0 {
		c.WeeklyResetInterval = 7 * 24 * time.Hour
	}
	if c.AlertPeriodInterval <= 0 {
		c.AlertPeriodInterval = 30 * 24 * time.Hour
	}
}

// StoreRequest is one admission request on the write path.
type StoreRequest struct {
	Tenant      string
	Data        []byte
	Privacy     interfaces.PrivacyClass
	RetainUntil time.Time
}

// StoreResult reports the outcome of a store request. Warning carries
// non-fatal degradations (replication shortfall, skipped indexing); the
// store itself succeeded whenever the error is nil.
type StoreResult struct {
	Address        interfaces.ContentAddress
	Deduplicated   bool
	SpaceSaved     int64
	Policy         interfaces.PolicyID
	Replicas       int
	TargetReplicas int
	Health         interfaces.HealthState
	Quota          interfaces.QuotaDecision
	Warning        string
}

// Manager composes the control plane: deduplication, quota accounting,
// policy-driven replication, access tracking, garbage collection, and
// backup verification, in front of one content store.
type Manager struct {
	store    interfaces.ContentStore
	registry *policy.Registry

	dedup      *dedup.Index
	quota      *quota.Ledger
	controller *replication.Controller
	tracker    *access.Tracker
	collector  *gc.Collector
	verifier   *backup.Verifier
	drill      *backup.Drill
	emitter    *events.Emitter
	metrics    *metrics.ControlPlaneMetrics

	catalog *catalog
	locks   *keyedMutex
	cfg     Config
	log     *slog.Logger
}

// New wires a manager from its external collaborators.
func New(store interfaces.ContentStore, index interfaces.ReferenceIndex, registry *policy.Registry,
	emitter *events.Emitter, cpm *metrics.ControlPlaneMetrics, cfg Config, log *slog.Logger) *Manager {
	cfg.withDefaults()

	m := &Manager{
		store:    store,
		registry: registry,
		emitter:  emitter,
		metrics:  cpm,
		catalog:  newCatalog(),
		locks:    newKeyedMutex(),
		cfg:      cfg,
		log:      log,
	}

	m.dedup = dedup.NewIndex(store, index, cfg.DedupMinSize, log)
	m.quota = quota.NewLedger(cfg.DefaultQuotaBytes, log)
	m.controller = replication.NewController(store, registry, log)
	m.tracker = access.NewTracker(log)
	m.collector = gc.NewCollector(store, index, m.catalog, m.quota, m.controller, m.tracker, m.dedup, m.locks, log)
	m.verifier = backup.NewVerifier(store, m.controller, log)
	m.drill = backup.NewDrill(store, m.controller, log)

	return m
}

// Store admits one object: dedup check, quota admission, store write, policy
// application. Validation and quota rejections happen before any store
// mutation; replication shortfalls degrade the result but never fail it.
func (m *Manager) Store(ctx context.Context, req StoreRequest) (StoreResult, error) {
	if err := validateStore(req); err != nil {
		m.countStore("invalid")
		return StoreResult{}, err
	}
	size := int64(len(req.Data))

	dres, err := m.dedup.Deduplicate(ctx, req.Data)
	if err != nil {
		// Deduplicate downgrades its own failures; this path is unreachable
		// but kept defensive against future index implementations.
		m.log.Warn("Dedup check failed, proceeding as non-duplicate", "err", err)
	}
	if dres.IsDuplicate {
		return m.storeDuplicate(ctx, req, dres), nil
	}

	decision := m.quota.CheckQuota(req.Tenant, size)
	if !decision.WithinLimit {
		m.countStore("quota_exceeded")
		m.emit(ctx, interfaces.NewEvent(interfaces.SubjectQuotaExceeded, req.Tenant, map[string]any{
			"requestedBytes": size,
			"availableBytes": decision.AvailableBytes,
			"overageBytes":   decision.Overage.Bytes,
			"overageCost":    decision.Overage.Cost,
		}))
		return StoreResult{Quota: decision}, fmt.Errorf("%w: %d bytes requested, %d available",
			interfaces.ErrQuotaExceeded, size, decision.AvailableBytes)
	}

	address, err := m.store.Add(ctx, req.Data)
	if err != nil {
		m.countStore("error")
		return StoreResult{}, fmt.Errorf("store write failed: %w", err)
	}

	// Sub-threshold content skips the dedup index but still content-addresses
	// to the same location. The first writer stays the owner of record so its
	// usage is the usage freed on deletion.
	if _, exists := m.catalog.Lookup(address); !exists {
		m.catalog.Put(address, interfaces.ObjectMetadata{
			Tenant:      req.Tenant,
			Size:        size,
			Privacy:     req.Privacy,
			ContentHash: dres.ContentHash,
			CreatedAt:   time.Now().UTC(),
			RetainUntil: req.RetainUntil,
		})
	}

	quotaRec, alerts := m.quota.UpdateUsage(req.Tenant, size)
	m.setQuotaGauge(quotaRec)
	m.countQuotaAlerts(alerts)

	var warning string
	if err := m.dedup.RegisterContent(ctx, address, dres.ContentHash, size); err != nil {
		warning = "content indexing skipped"
		m.log.Warn("Failed to register content in dedup index",
			slog.String("address", address.Short()),
			"err", err)
	}

	unlock := m.locks.Lock(string(address))
	status := m.controller.ApplyPolicy(ctx, address, policy.SelectionInput{
		Size:    size,
		Privacy: req.Privacy,
	})
	unlock()

	if status.Health != interfaces.HealthHealthy {
		warning = "replication " + string(status.Health)
	}
	m.countPins(status.Replicas, status.TargetReplicas)
	m.tracker.RecordAccess(address, interfaces.AccessWrite, "")

	batch := append(alerts, interfaces.NewEvent(interfaces.SubjectFileStored, req.Tenant, map[string]any{
		"address":      address.String(),
		"sizeBytes":    size,
		"privacy":      string(req.Privacy),
		"policy":       string(status.Policy),
		"replicas":     status.Replicas,
		"health":       string(status.Health),
		"deduplicated": false,
	}))
	m.emitAll(ctx, batch)
	m.audit(ctx, interfaces.AuditRecord{
		Type:  "storage.pinning_decision",
		Actor: req.Tenant,
		Data: map[string]any{
			"address":  address.String(),
			"policy":   string(status.Policy),
			"replicas": status.Replicas,
			"target":   status.TargetReplicas,
		},
		Outcome: string(status.Health),
	})

	m.countStore("success")
	return StoreResult{
		Address:        address,
		Policy:         status.Policy,
		Replicas:       status.Replicas,
		TargetReplicas: status.TargetReplicas,
		Health:         status.Health,
		Quota:          decision,
		Warning:        warning,
	}, nil
}

// storeDuplicate completes a store request that matched an existing
// canonical object. The second writer is not charged for deduplicated
// bytes and no new store write happens.
func (m *Manager) storeDuplicate(ctx context.Context, req StoreRequest, dres dedup.Result) StoreResult {
	address := dres.CanonicalAddress
	m.tracker.RecordAccess(address, interfaces.AccessWrite, "")

	result := StoreResult{
		Address:      address,
		Deduplicated: true,
		SpaceSaved:   dres.SpaceSaved,
	}
	if status, ok := m.controller.Status(address); ok {
		result.Policy = status.Policy
		result.Replicas = status.Replicas
		result.TargetReplicas = status.TargetReplicas
		result.Health = status.Health
	}

	m.emit(ctx, interfaces.NewEvent(interfaces.SubjectFileStored, req.Tenant, map[string]any{
		"address":      address.String(),
		"sizeBytes":    int64(len(req.Data)),
		"deduplicated": true,
		"spaceSaved":   dres.SpaceSaved,
	}))

	if m.metrics != nil {
		m.metrics.DedupHitsTotal.Inc()
		m.metrics.DedupBytesSaved.Add(float64(dres.SpaceSaved))
		m.metrics.StoresTotal.WithLabelValues("deduplicated").Inc()
	}

	m.log.Info("Deduplicated store request",
		slog.String("tenant", req.Tenant),
		slog.String("address", address.Short()),
		slog.Int64("space_saved", dres.SpaceSaved))

	return result
}

// Retrieve reads an object and records the access. Store failures on the
// read path surface to the caller as ErrContentUnavailable.
func (m *Manager) Retrieve(ctx context.Context, tenant string, address interfaces.ContentAddress, region string) ([]byte, error) {
	data, err := m.store.Cat(ctx, address)
	if err != nil {
		m.countRetrieve("error")
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentUnavailable, err)
	}

	pattern := m.tracker.RecordAccess(address, interfaces.AccessRead, region)
	if pattern.DailyAccess > policy.HotAccessThreshold {
		m.adjustReplication(ctx, address, pattern)
	}

	m.emit(ctx, interfaces.NewEvent(interfaces.SubjectFileAccessed, tenant, map[string]any{
		"address":     address.String(),
		"accessType":  string(interfaces.AccessRead),
		"region":      region,
		"dailyAccess": pattern.DailyAccess,
	}))

	m.countRetrieve("success")
	return data, nil
}

// Delete enqueues an address for garbage collection. From the caller's
// perspective deletion always succeeds; the eventual decision is the GC's.
func (m *Manager) Delete(ctx context.Context, tenant string, address interfaces.ContentAddress) {
	meta, known := m.catalog.Lookup(address)
	ownerInitiated := known && meta.Tenant == tenant

	m.collector.Enqueue(address, ownerInitiated)

	m.log.Debug("Enqueued content for deletion",
		slog.String("tenant", tenant),
		slog.String("address", address.Short()),
		slog.Bool("owner_initiated", ownerInitiated))
}

// CheckQuota runs the admission check without mutating anything.
func (m *Manager) CheckQuota(tenant string, requestedSize int64) interfaces.QuotaDecision {
	return m.quota.CheckQuota(tenant, requestedSize)
}

// QuotaSnapshot returns the tenant's current quota record.
func (m *Manager) QuotaSnapshot(tenant string) (interfaces.StorageQuota, bool) {
	return m.quota.Snapshot(tenant)
}

// ReplicationStatus returns the replication record for an address.
func (m *Manager) ReplicationStatus(address interfaces.ContentAddress) (interfaces.ReplicationStatus, bool) {
	return m.controller.Status(address)
}

// PendingDeletions returns the GC queue depth.
func (m *Manager) PendingDeletions() int {
	return m.collector.Pending()
}

// SweepGarbage runs one GC sweep and publishes the deletion events it
// produced.
func (m *Manager) SweepGarbage(ctx context.Context) gc.Stats {
	stats := m.collector.Sweep(ctx)
	m.emitAll(ctx, stats.Events)

	if m.metrics != nil {
		m.metrics.GCSweepsTotal.Inc()
		m.metrics.GCOutcomesTotal.WithLabelValues("deleted").Add(float64(stats.Deleted))
		m.metrics.GCOutcomesTotal.WithLabelValues("retained").Add(float64(stats.Retained))
		m.metrics.GCOutcomesTotal.WithLabelValues("error").Add(float64(stats.Errors))
	}

	m.audit(ctx, interfaces.AuditRecord{
		Type:  "storage.gc_sweep",
		Actor: "system",
		Data: map[string]any{
			"evaluated": stats.Evaluated,
			"deleted":   stats.Deleted,
			"retained":  stats.Retained,
			"errors":    stats.Errors,
		},
		Outcome: "completed",
	})

	return stats
}

// ReevaluateReplication re-runs the access-driven adjustment for every
// tracked object. Returns the number of objects adjusted.
func (m *Manager) ReevaluateReplication(ctx context.Context) int {
	adjusted := 0
	for _, status := range m.controller.Statuses() {
		if ctx.Err() != nil {
			break
		}
		pattern, ok := m.tracker.Pattern(status.Address)
		if !ok {
			continue
		}
		if m.adjustReplication(ctx, status.Address, pattern) {
			adjusted++
		}
	}
	return adjusted
}

// adjustReplication runs one adjustment under the per-address lock.
func (m *Manager) adjustReplication(ctx context.Context, address interfaces.ContentAddress, pattern interfaces.AccessPattern) bool {
	unlock := m.locks.Lock(string(address))
	status, changed := m.controller.EvaluateAdjustment(ctx, address, pattern)
	unlock()

	if !changed {
		return false
	}

	m.audit(ctx, interfaces.AuditRecord{
		Type:  "storage.replication_adjustment",
		Actor: "system",
		Data: map[string]any{
			"address":  address.String(),
			"reason":   string(status.AdjustmentReason),
			"replicas": status.Replicas,
			"target":   status.TargetReplicas,
		},
		Outcome: string(status.Health),
	})
	return true
}

// VerifyBackups runs one verification sweep and records its findings.
func (m *Manager) VerifyBackups(ctx context.Context) backup.Report {
	report := m.verifier.VerifyBackups(ctx)

	if m.metrics != nil {
		m.metrics.BackupVerifyDuration.Observe(report.Duration.Seconds())
		m.metrics.ReplicationState.WithLabelValues(string(interfaces.HealthHealthy)).Set(float64(report.Healthy))
		m.metrics.ReplicationState.WithLabelValues(string(interfaces.HealthDegraded)).Set(float64(report.Degraded))
		m.metrics.ReplicationState.WithLabelValues(string(interfaces.HealthFailed)).Set(float64(report.Failed))
	}

	m.audit(ctx, interfaces.AuditRecord{
		Type:  "storage.backup_verification",
		Actor: "system",
		Data: map[string]any{
			"checked":  report.Checked,
			"healthy":  report.Healthy,
			"degraded": report.Degraded,
			"failed":   report.Failed,
			"errors":   report.Errors,
		},
		Outcome: "completed",
	})

	return report
}

// RunDisasterRecoveryTest runs one DR drill and records its outcome.
func (m *Manager) RunDisasterRecoveryTest(ctx context.Context) backup.DrillReport {
	report := m.drill.Run(ctx)

	if m.metrics != nil {
		m.metrics.DRDrillsTotal.WithLabelValues(string(report.Overall)).Inc()
	}

	m.audit(ctx, interfaces.AuditRecord{
		Type:  "storage.dr_drill",
		Actor: "system",
		Data: map[string]any{
			"backupRestoreTest": string(report.BackupRestoreTest),
			"replicationTest":   string(report.ReplicationTest),
			"integrityTest":     string(report.IntegrityTest),
			"performanceTest":   string(report.PerformanceTest),
			"durationSeconds":   report.Duration.Seconds(),
		},
		Outcome: string(report.Overall),
	})

	return report
}

// HandleExternalFileCreated registers state for an object another producer
// already wrote and pinned. No store call and no quota charge happens here;
// the producer's own control plane accounted for both.
func (m *Manager) HandleExternalFileCreated(ev events.ExternalFileCreated) {
	if ev.Address == "" || ev.Tenant == "" {
		m.log.Warn("Ignoring external file event with missing fields")
		return
	}

	m.catalog.Put(ev.Address, interfaces.ObjectMetadata{
		Tenant:    ev.Tenant,
		Size:      ev.Size,
		Privacy:   ev.Privacy,
		CreatedAt: time.Now().UTC(),
	})
	m.tracker.Register(ev.Address)
	m.controller.Adopt(ev.Address, ev.Policy, ev.Replicas)

	m.log.Info("Adopted externally created object",
		slog.String("tenant", ev.Tenant),
		slog.String("address", ev.Address.Short()),
		slog.String("policy", string(ev.Policy)))
}

// HandlePaymentCompleted applies a confirmed quota payment as a permanent
// capacity grant.
func (m *Manager) HandlePaymentCompleted(ev events.PaymentCompleted) {
	if ev.Tenant == "" || ev.PaidBytes <= 0 {
		m.log.Warn("Ignoring payment event with missing fields")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	quotaRec, batch := m.quota.ApplyQuotaIncrease(ev.Tenant, ev.PaidBytes)
	m.setQuotaGauge(quotaRec)
	m.countQuotaAlerts(batch)
	m.emitAll(ctx, batch)
}

// ResetDailyCounters and ResetWeeklyCounters zero the tracker's windows.
func (m *Manager) ResetDailyCounters()  { m.tracker.ResetDaily() }
func (m *Manager) ResetWeeklyCounters() { m.tracker.ResetWeekly() }

// ResetAlertPeriod re-arms quota alerts at an accounting period boundary.
func (m *Manager) ResetAlertPeriod() { m.quota.ResetAlertPeriod() }

func validateStore(req StoreRequest) error {
	if req.Tenant == "" {
		return fmt.Errorf("%w: missing tenant", interfaces.ErrInvalidMetadata)
	}
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: empty content", interfaces.ErrInvalidMetadata)
	}
	if !req.Privacy.Valid() {
		return fmt.Errorf("%w: unknown privacy class %q", interfaces.ErrInvalidMetadata, req.Privacy)
	}
	return nil
}

func (m *Manager) emit(ctx context.Context, event interfaces.Event) {
	if m.emitter != nil {
		m.emitter.EmitAll(ctx, []interfaces.Event{event})
	}
}

func (m *Manager) emitAll(ctx context.Context, batch []interfaces.Event) {
	if m.emitter != nil {
		m.emitter.EmitAll(ctx, batch)
	}
}

func (m *Manager) audit(ctx context.Context, record interfaces.AuditRecord) {
	if m.emitter != nil {
		m.emitter.Audit(ctx, record)
	}
}

func (m *Manager) countStore(outcome string) {
	if m.metrics != nil {
		m.metrics.StoresTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Manager) countRetrieve(outcome string) {
	if m.metrics != nil {
		m.metrics.RetrievesTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Manager) countPins(achieved, target int) {
	if m.metrics == nil {
		return
	}
	m.metrics.PinsTotal.WithLabelValues("success").Add(float64(achieved))
	if failed := target - achieved; failed > 0 {
		m.metrics.PinsTotal.WithLabelValues("failure").Add(float64(failed))
	}
}

func (m *Manager) countQuotaAlerts(batch []interfaces.Event) {
	if m.metrics == nil {
		return
	}
	for _, event := range batch {
		if event.Subject != interfaces.SubjectQuotaAlert {
			continue
		}
		level, _ := event.Data["warningLevel"].(string)
		m.metrics.QuotaAlertsTotal.WithLabelValues(level).Inc()
	}
}

func (m *Manager) setQuotaGauge(q interfaces.StorageQuota) {
	if m.metrics != nil {
		m.metrics.QuotaUsedBytes.WithLabelValues(q.Tenant).Set(float64(q.UsedBytes))
	}
}
