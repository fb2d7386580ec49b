package interfaces

import (
	"context"
	"time"
)

// Event bus subjects published by the control plane.
const (
	SubjectFileStored   = "storage.file.stored"
	SubjectFileAccessed = "storage.file.accessed"
	SubjectFileDeleted  = "storage.file.deleted"
	SubjectQuotaAlert   = "storage.quota.alert"
	SubjectQuotaUpdated = "storage.quota.updated"
)

// Event bus subjects the control plane subscribes to.
const (
	SubjectExternalFileCreated  = "storage.file.created.external"
	SubjectQuotaPaymentComplete = "storage.quota.payment.completed"
	SubjectQuotaExceeded        = "storage.quota.exceeded"
)

// Actor identifies the tenant an event is attributed to.
type Actor struct {
	Tenant string `json:"tenant"`
}

// Event is one lifecycle event to publish on the bus. Components return
// events as values alongside their results; only the boundary adapter
// performs the actual publish.
type Event struct {
	Subject string         `json:"subject"`
	Actor   Actor          `json:"actor"`
	Data    map[string]any `json:"data"`
	Time    time.Time      `json:"time"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(subject, tenant string, data map[string]any) Event {
	return Event{
		Subject: subject,
		Actor:   Actor{Tenant: tenant},
		Data:    data,
		Time:    time.Now().UTC(),
	}
}

// AuditRecord is one entry for the external audit service.
type AuditRecord struct {
	Type    string         `json:"type"`
	Actor   string         `json:"actor"`
	Data    map[string]any `json:"data"`
	Outcome string         `json:"outcome"`
}

// EventPublisher delivers lifecycle events to the event bus.
// Publish failures must never fail the storage operation that produced them.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// AuditSink records audit entries with the external audit service.
// Calls are fire-and-forget from the caller's perspective.
type AuditSink interface {
	Audit(ctx context.Context, record AuditRecord) error
}
