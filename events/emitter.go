// Package events is the boundary adapter between the control plane's pure
// decision logic and the event bus. Components return events as values; this
// package performs the actual publish and audit calls, and their failures
// never propagate back into storage operations.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/ruteri/storage-control-plane/interfaces"
)

// auditSubject carries audit records to the external audit service.
const auditSubject = "storage.audit"

// NATSPublisher publishes lifecycle events on a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
	log  *slog.Logger
}

// NewNATSPublisher creates a publisher over an existing connection.
func NewNATSPublisher(conn *nats.Conn, log *slog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, log: log}
}

// Publish sends one event on its subject.
func (p *NATSPublisher) Publish(ctx context.Context, event interfaces.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.conn.Publish(event.Subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Subject, err)
	}
	return nil
}

// NATSAuditSink delivers audit records over the bus to the audit service.
type NATSAuditSink struct {
	conn *nats.Conn
	log  *slog.Logger
}

// NewNATSAuditSink creates an audit sink over an existing connection.
func NewNATSAuditSink(conn *nats.Conn, log *slog.Logger) *NATSAuditSink {
	return &NATSAuditSink{conn: conn, log: log}
}

// Audit publishes one audit record.
func (s *NATSAuditSink) Audit(ctx context.Context, record interfaces.AuditRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	if err := s.conn.Publish(auditSubject, data); err != nil {
		return fmt.Errorf("failed to publish audit record: %w", err)
	}
	return nil
}

// Emitter fans events and audit records out to their sinks, downgrading
// every failure to a log line.
type Emitter struct {
	publisher interfaces.EventPublisher
	audit     interfaces.AuditSink
	log       *slog.Logger
}

// NewEmitter creates an emitter. Either sink may be nil, in which case the
// corresponding emissions are dropped.
func NewEmitter(publisher interfaces.EventPublisher, audit interfaces.AuditSink, log *slog.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		audit:     audit,
		log:       log,
	}
}

// EmitAll publishes a batch of events best-effort.
func (e *Emitter) EmitAll(ctx context.Context, batch []interfaces.Event) {
	if e.publisher == nil {
		return
	}
	for _, event := range batch {
		if err := e.publisher.Publish(ctx, event); err != nil {
			e.log.Warn("Failed to publish event",
				slog.String("subject", event.Subject),
				"err", err)
		}
	}
}

// Audit records one audit entry best-effort.
func (e *Emitter) Audit(ctx context.Context, record interfaces.AuditRecord) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Audit(ctx, record); err != nil {
		e.log.Warn("Failed to record audit entry",
			slog.String("type", record.Type),
			"err", err)
	}
}
