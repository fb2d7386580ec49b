package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/storage-control-plane/interfaces"
	"github.com/ruteri/storage-control-plane/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitAll(t *testing.T) {
	publisher := new(storage.MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	emitter := NewEmitter(publisher, nil, testLogger())
	emitter.EmitAll(context.Background(), []interfaces.Event{
		interfaces.NewEvent(interfaces.SubjectFileStored, "tenant-a", nil),
		interfaces.NewEvent(interfaces.SubjectQuotaAlert, "tenant-a", nil),
	})

	publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestEmitAllSwallowsFailures(t *testing.T) {
	publisher := new(storage.MockPublisher)
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e interfaces.Event) bool {
		return e.Subject == interfaces.SubjectFileStored
	})).Return(errors.New("bus down"))
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	emitter := NewEmitter(publisher, nil, testLogger())

	// A failing publish must not panic or stop the rest of the batch.
	emitter.EmitAll(context.Background(), []interfaces.Event{
		interfaces.NewEvent(interfaces.SubjectFileStored, "tenant-a", nil),
		interfaces.NewEvent(interfaces.SubjectFileDeleted, "tenant-a", nil),
	})

	publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestEmitterNilSinks(t *testing.T) {
	emitter := NewEmitter(nil, nil, testLogger())

	// Both paths are no-ops without sinks.
	emitter.EmitAll(context.Background(), []interfaces.Event{
		interfaces.NewEvent(interfaces.SubjectFileStored, "tenant-a", nil),
	})
	emitter.Audit(context.Background(), interfaces.AuditRecord{Type: "storage.store"})
}

func TestAudit(t *testing.T) {
	sink := new(storage.MockAuditSink)
	sink.On("Audit", mock.Anything, mock.Anything).Return(nil)

	emitter := NewEmitter(nil, sink, testLogger())
	emitter.Audit(context.Background(), interfaces.AuditRecord{
		Type:    "storage.pinning_decision",
		Actor:   "tenant-a",
		Outcome: "success",
	})

	sink.AssertNumberOfCalls(t, "Audit", 1)
}

func TestAuditSwallowsFailures(t *testing.T) {
	sink := new(storage.MockAuditSink)
	sink.On("Audit", mock.Anything, mock.Anything).Return(errors.New("audit service down"))

	emitter := NewEmitter(nil, sink, testLogger())
	emitter.Audit(context.Background(), interfaces.AuditRecord{Type: "storage.store"})
}

func TestDecodeDataEnvelope(t *testing.T) {
	event := interfaces.NewEvent(interfaces.SubjectQuotaPaymentComplete, "tenant-a", map[string]any{
		"tenant":    "tenant-a",
		"paidBytes": 1073741824,
	})
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var payload PaymentCompleted
	require.NoError(t, decodeData(raw, &payload))
	assert.Equal(t, "tenant-a", payload.Tenant)
	assert.Equal(t, int64(1073741824), payload.PaidBytes)
}

func TestDecodeDataBarePayload(t *testing.T) {
	raw := []byte(`{"tenant":"tenant-b","paidBytes":2048}`)

	var payload PaymentCompleted
	require.NoError(t, decodeData(raw, &payload))
	assert.Equal(t, "tenant-b", payload.Tenant)
	assert.Equal(t, int64(2048), payload.PaidBytes)
}

func TestDecodeDataMalformed(t *testing.T) {
	var payload PaymentCompleted
	assert.Error(t, decodeData([]byte("not json"), &payload))
}

func TestDecodeDataExternalFileCreated(t *testing.T) {
	raw := []byte(`{"tenant":"tenant-a","address":"QmExternal","size":4096,"privacy":"public","policy":"public","replicas":3}`)

	var payload ExternalFileCreated
	require.NoError(t, decodeData(raw, &payload))
	assert.Equal(t, interfaces.ContentAddress("QmExternal"), payload.Address)
	assert.Equal(t, interfaces.PolicyPublic, payload.Policy)
	assert.Equal(t, 3, payload.Replicas)
}
