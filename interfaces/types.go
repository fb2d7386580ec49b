package interfaces

import (
	"errors"
	"time"
)

// PrivacyClass controls policy selection and event payload redaction.
type PrivacyClass string

// Supported privacy classes.
const (
	PrivacyPublic       PrivacyClass = "public"
	PrivacyPrivate      PrivacyClass = "private"
	PrivacyConfidential PrivacyClass = "confidential"
)

// Valid reports whether the class is one of the supported values.
func (p PrivacyClass) Valid() bool {
	switch p {
	case PrivacyPublic, PrivacyPrivate, PrivacyConfidential:
		return true
	}
	return false
}

// ObjectMetadata describes a stored object for policy and lifecycle decisions.
// Immutable once the object is written.
type ObjectMetadata struct {
	Tenant      string
	Size        int64
	Privacy     PrivacyClass
	ContentHash ContentHash // zero when below the dedup threshold
	CreatedAt   time.Time
	RetainUntil time.Time // zero means no retention hold
}

// PolicyID names a pinning policy in the registry.
type PolicyID string

// Built-in policy identifiers, in selection priority order.
const (
	PolicyHot     PolicyID = "hot"
	PolicyCold    PolicyID = "cold"
	PolicyPublic  PolicyID = "public"
	PolicyDefault PolicyID = "default"
)

// PinningPolicy defines replication targets for objects matching its
// selection conditions. Policies are seeded at startup and read-only after.
type PinningPolicy struct {
	ID          PolicyID `yaml:"id"`
	MinReplicas int      `yaml:"min_replicas"`
	MaxReplicas int      `yaml:"max_replicas"`
	Regions     []string `yaml:"regions"`
}

// HealthState classifies the replication health of one object.
type HealthState string

// Health classification is exhaustive and mutually exclusive:
// replicas >= target is healthy, 0 < replicas < target is degraded,
// zero replicas or unreachable content is failed.
const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthFailed   HealthState = "failed"
)

// AdjustmentReason records why the replication controller last changed an
// object's replica target.
type AdjustmentReason string

// Adjustment reasons.
const (
	AdjustInitialPlacement AdjustmentReason = "initial_placement"
	AdjustHighAccess       AdjustmentReason = "high_access"
	AdjustLowAccess        AdjustmentReason = "low_access"
)

// ReplicationStatus is the per-address replication record. Created when an
// object is first pinned, removed only by garbage collection.
type ReplicationStatus struct {
	Address          ContentAddress
	Policy           PolicyID
	Replicas         int
	TargetReplicas   int
	Regions          []string
	Health           HealthState
	AdjustmentReason AdjustmentReason
	UpdatedAt        time.Time
}

// AccessType distinguishes reads from writes in the access histogram.
type AccessType string

// Access types.
const (
	AccessRead  AccessType = "read"
	AccessWrite AccessType = "write"
)

// AccessPattern is the per-address access accounting record. It is a
// heuristic signal, not a ledger; loss on restart is acceptable.
type AccessPattern struct {
	Address      ContentAddress
	TotalAccess  int64
	DailyAccess  int64
	WeeklyAccess int64
	LastAccessed time.Time
	ByType       map[AccessType]int64
	ByRegion     map[string]int64
}

// StorageQuota is the per-tenant byte-capacity record.
// Invariant: UsedBytes >= 0 at all times.
type StorageQuota struct {
	Tenant     string
	LimitBytes int64
	UsedBytes  int64
	UpdatedAt  time.Time
}

// UsedPercent returns usage as a fraction of the limit in percent.
func (q StorageQuota) UsedPercent() float64 {
	if q.LimitBytes <= 0 {
		return 0
	}
	return float64(q.UsedBytes) / float64(q.LimitBytes) * 100
}

// Overage describes bytes requested beyond a tenant's limit and their price.
type Overage struct {
	Bytes int64
	Cost  float64
}

// QuotaDecision is the admission-check result for a requested write.
type QuotaDecision struct {
	WithinLimit    bool
	AvailableBytes int64
	Overage        *Overage // nil when within limit
}

var (
	// ErrQuotaExceeded is returned when an admission check rejects a write.
	// No store mutation is attempted after this error.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrHasActiveReferences is returned when deletion is blocked by
	// outstanding references. This is a Retained outcome, not a failure.
	ErrHasActiveReferences = errors.New("content has active references")

	// ErrInvalidMetadata is returned for malformed object metadata before any I/O.
	ErrInvalidMetadata = errors.New("invalid object metadata")

	// ErrContentUnavailable is returned to retrieve callers when the store
	// cannot produce the object. There is no silent data loss on reads.
	ErrContentUnavailable = errors.New("content unavailable")
)
