package events

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/ruteri/storage-control-plane/interfaces"
)

// ExternalFileCreated announces an object another producer already wrote and
// pinned. The control plane registers state for it without re-pinning.
type ExternalFileCreated struct {
	Tenant   string                    `json:"tenant"`
	Address  interfaces.ContentAddress `json:"address"`
	Size     int64                     `json:"size"`
	Privacy  interfaces.PrivacyClass   `json:"privacy"`
	Policy   interfaces.PolicyID       `json:"policy"`
	Replicas int                       `json:"replicas"`
}

// PaymentCompleted confirms a quota payment settled by the payment service.
type PaymentCompleted struct {
	Tenant    string `json:"tenant"`
	PaidBytes int64  `json:"paidBytes"`
}

// Handlers receives decoded bus events. Nil handlers skip their subscription.
type Handlers struct {
	OnExternalFileCreated func(ExternalFileCreated)
	OnPaymentCompleted    func(PaymentCompleted)
}

// Subscriber wires bus subscriptions to handler callbacks.
type Subscriber struct {
	conn *nats.Conn
	log  *slog.Logger

	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber over an existing connection.
func NewSubscriber(conn *nats.Conn, log *slog.Logger) *Subscriber {
	return &Subscriber{conn: conn, log: log}
}

// Subscribe registers the configured handlers. Decode failures are logged
// and dropped; a malformed event from another producer must not crash the
// control plane.
func (s *Subscriber) Subscribe(handlers Handlers) error {
	if handlers.OnExternalFileCreated != nil {
		sub, err := s.conn.Subscribe(interfaces.SubjectExternalFileCreated, func(msg *nats.Msg) {
			var payload ExternalFileCreated
			if err := decodeData(msg.Data, &payload); err != nil {
				s.log.Warn("Dropping malformed external file event", "err", err)
				return
			}
			handlers.OnExternalFileCreated(payload)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", interfaces.SubjectExternalFileCreated, err)
		}
		s.subs = append(s.subs, sub)
	}

	if handlers.OnPaymentCompleted != nil {
		sub, err := s.conn.Subscribe(interfaces.SubjectQuotaPaymentComplete, func(msg *nats.Msg) {
			var payload PaymentCompleted
			if err := decodeData(msg.Data, &payload); err != nil {
				s.log.Warn("Dropping malformed payment event", "err", err)
				return
			}
			handlers.OnPaymentCompleted(payload)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", interfaces.SubjectQuotaPaymentComplete, err)
		}
		s.subs = append(s.subs, sub)
	}

	return nil
}

// Drain unsubscribes all handlers.
func (s *Subscriber) Drain() {
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			s.log.Debug("Failed to drain subscription", "err", err)
		}
	}
	s.subs = nil
}

// decodeData unwraps an event envelope's data payload, accepting either the
// full Event envelope or a bare payload for interoperability with other
// producers on the bus.
func decodeData(raw []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return json.Unmarshal(raw, out)
}
