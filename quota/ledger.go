package quota

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/storage-control-plane/interfaces"
)

// Accounting defaults. Overage pricing and alert thresholds are global
// configuration, not per-tenant state.
const (
	// DefaultLimitBytes is the capacity granted to a tenant on first use.
	DefaultLimitBytes = int64(1) << 30 // 1 GiB

	// OveragePricePerByte prices bytes requested beyond the limit.
	OveragePricePerByte = 2.0 / float64(int64(1)<<30) // 2.00 per GiB

	// WarningThresholdPct and CriticalThresholdPct are the usage levels at
	// which alert events fire, once per crossing per accounting period.
	WarningThresholdPct  = 80.0
	CriticalThresholdPct = 95.0
)

// Alert levels carried in storage.quota.alert events.
const (
	AlertWarning  = "warning"
	AlertCritical = "critical"
)

// alert severity ranks for once-per-crossing tracking.
const (
	alertedNone = iota
	alertedWarning
	alertedCritical
)

// tenantQuota is one tenant's record plus its own lock, so quota updates for
// one tenant serialize against each other but tenants never contend.
type tenantQuota struct {
	mu      sync.Mutex
	quota   interfaces.StorageQuota
	alerted int
}

// Ledger tracks per-tenant storage usage against byte limits.
type Ledger struct {
	mu      sync.Mutex // guards the tenant map, not the records
	tenants map[string]*tenantQuota

	defaultLimit int64
	log          *slog.Logger
}

// NewLedger creates an empty ledger. A defaultLimit of zero selects
// DefaultLimitBytes.
func NewLedger(defaultLimit int64, log *slog.Logger) *Ledger {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimitBytes
	}
	return &Ledger{
		tenants:      make(map[string]*tenantQuota),
		defaultLimit: defaultLimit,
		log:          log,
	}
}

// tenant returns the record for a tenant, creating it lazily at the default
// limit on first use.
func (l *Ledger) tenant(name string) *tenantQuota {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tenants[name]
	if !ok {
		t = &tenantQuota{
			quota: interfaces.StorageQuota{
				Tenant:     name,
				LimitBytes: l.defaultLimit,
				UpdatedAt:  time.Now().UTC(),
			},
		}
		l.tenants[name] = t
	}
	return t
}

// CheckQuota reports whether requestedSize fits within the tenant's limit.
// When it does not, the decision carries an overage descriptor priced at the
// fixed per-byte rate; callers decide whether to reject or solicit payment.
// No I/O, safe to call on the request path before touching the store.
func (l *Ledger) CheckQuota(tenant string, requestedSize int64) interfaces.QuotaDecision {
	t := l.tenant(tenant)
	t.mu.Lock()
	defer t.mu.Unlock()

	available := t.quota.LimitBytes - t.quota.UsedBytes
	if available < 0 {
		available = 0
	}

	if t.quota.UsedBytes+requestedSize <= t.quota.LimitBytes {
		return interfaces.QuotaDecision{WithinLimit: true, AvailableBytes: available}
	}

	overageBytes := t.quota.UsedBytes + requestedSize - t.quota.LimitBytes
	return interfaces.QuotaDecision{
		WithinLimit:    false,
		AvailableBytes: available,
		Overage: &interfaces.Overage{
			Bytes: overageBytes,
			Cost:  float64(overageBytes) * OveragePricePerByte,
		},
	}
}

// UpdateUsage applies a signed delta to the tenant's usage: positive on
// store, negative on delete. Usage is clamped at zero, never negative.
// Returns the updated quota and any alert events produced by threshold
// crossings, for the caller to publish.
func (l *Ledger) UpdateUsage(tenant string, delta int64) (interfaces.StorageQuota, []interfaces.Event) {
	t := l.tenant(tenant)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.quota.UsedBytes += delta
	if t.quota.UsedBytes < 0 {
		t.quota.UsedBytes = 0
	}
	t.quota.UpdatedAt = time.Now().UTC()

	events := l.evaluateAlerts(t)
	return t.quota, events
}

// evaluateAlerts fires at most one alert per threshold crossing. Crossing
// back below a threshold re-arms it. Caller holds t.mu.
func (l *Ledger) evaluateAlerts(t *tenantQuota) []interfaces.Event {
	pct := t.quota.UsedPercent()

	level := alertedNone
	switch {
	case pct >= CriticalThresholdPct:
		level = alertedCritical
	case pct >= WarningThresholdPct:
		level = alertedWarning
	}

	if level <= t.alerted {
		// Dropping below a threshold re-arms the alert for the next crossing.
		t.alerted = level
		return nil
	}
	t.alerted = level

	warningLevel := AlertWarning
	if level == alertedCritical {
		warningLevel = AlertCritical
	}

	l.log.Warn("Quota threshold crossed",
		slog.String("tenant", t.quota.Tenant),
		slog.String("level", warningLevel),
		slog.Int64("used", t.quota.UsedBytes),
		slog.Int64("limit", t.quota.LimitBytes))

	return []interfaces.Event{interfaces.NewEvent(interfaces.SubjectQuotaAlert, t.quota.Tenant, map[string]any{
		"warningLevel": warningLevel,
		"usedBytes":    t.quota.UsedBytes,
		"limitBytes":   t.quota.LimitBytes,
		"usedPercent":  pct,
	})}
}

// ApplyQuotaIncrease raises the tenant's limit permanently after a confirmed
// payment. This is a capacity grant, not a balance.
func (l *Ledger) ApplyQuotaIncrease(tenant string, paidBytes int64) (interfaces.StorageQuota, []interfaces.Event) {
	t := l.tenant(tenant)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.quota.LimitBytes += paidBytes
	t.quota.UpdatedAt = time.Now().UTC()

	l.log.Info("Quota limit increased",
		slog.String("tenant", tenant),
		slog.Int64("added_bytes", paidBytes),
		slog.Int64("new_limit", t.quota.LimitBytes))

	events := []interfaces.Event{interfaces.NewEvent(interfaces.SubjectQuotaUpdated, tenant, map[string]any{
		"limitBytes": t.quota.LimitBytes,
		"usedBytes":  t.quota.UsedBytes,
		"addedBytes": paidBytes,
	})}

	// A larger limit may move usage back under a threshold; re-arm alerts.
	moreEvents := l.evaluateAlerts(t)
	return t.quota, append(events, moreEvents...)
}

// Snapshot returns a copy of the tenant's quota record, if one exists.
func (l *Ledger) Snapshot(tenant string) (interfaces.StorageQuota, bool) {
	l.mu.Lock()
	t, ok := l.tenants[tenant]
	l.mu.Unlock()
	if !ok {
		return interfaces.StorageQuota{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quota, true
}

// ResetAlertPeriod re-arms all alert thresholds at an accounting period
// boundary, so each period reports crossings afresh.
func (l *Ledger) ResetAlertPeriod() {
	l.mu.Lock()
	tenants := make([]*tenantQuota, 0, len(l.tenants))
	for _, t := range l.tenants {
		tenants = append(tenants, t)
	}
	l.mu.Unlock()

	for _, t := range tenants {
		t.mu.Lock()
		t.alerted = alertedNone
		t.mu.Unlock()
	}
}
