package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/storage-control-plane/events"
	"github.com/ruteri/storage-control-plane/interfaces"
	"github.com/ruteri/storage-control-plane/policy"
	"github.com/ruteri/storage-control-plane/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const mib = int64(1) << 20

func newTestManager(t *testing.T, cfg Config) (*Manager, *storage.FileStore) {
	t.Helper()

	store, err := storage.NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	m := New(store, storage.NewMemoryIndex(), policy.NewRegistry(nil), nil, nil, cfg, testLogger())
	return m, store
}

func payload(fill byte, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = fill
	}
	return data
}

func TestStoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})
	data := payload('a', 2048)

	result, err := m.Store(ctx, StoreRequest{
		Tenant:  "tenant-a",
		Data:    data,
		Privacy: interfaces.PrivacyPrivate,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Address)
	assert.False(t, result.Deduplicated)
	assert.Equal(t, interfaces.PolicyDefault, result.Policy)
	assert.Equal(t, 2, result.Replicas)
	assert.Equal(t, interfaces.HealthHealthy, result.Health)
	assert.Empty(t, result.Warning)

	read, err := m.Retrieve(ctx, "tenant-a", result.Address, "us-east")
	require.NoError(t, err)
	assert.Equal(t, data, read)

	quota, ok := m.QuotaSnapshot("tenant-a")
	require.True(t, ok)
	assert.Equal(t, int64(2048), quota.UsedBytes)
}

func TestStoreValidation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	tests := []struct {
		name string
		req  StoreRequest
	}{
		{
			name: "missing tenant",
			req:  StoreRequest{Data: []byte("x"), Privacy: interfaces.PrivacyPrivate},
		},
		{
			name: "empty content",
			req:  StoreRequest{Tenant: "tenant-a", Privacy: interfaces.PrivacyPrivate},
		},
		{
			name: "unknown privacy class",
			req:  StoreRequest{Tenant: "tenant-a", Data: []byte("x"), Privacy: "secret"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Store(ctx, tc.req)
			assert.True(t, errors.Is(err, interfaces.ErrInvalidMetadata))
		})
	}
}

func TestStoreDeduplicatesAcrossTenants(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})
	data := payload('d', 4096)

	first, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: data, Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)

	second, err := m.Store(ctx, StoreRequest{Tenant: "tenant-b", Data: data, Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)

	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, int64(4096), second.SpaceSaved)

	// The second writer is not charged for deduplicated bytes.
	quotaA, _ := m.QuotaSnapshot("tenant-a")
	assert.Equal(t, int64(4096), quotaA.UsedBytes)
	_, ok := m.QuotaSnapshot("tenant-b")
	assert.False(t, ok)
}

func TestStoreSmallObjectsSkipDedup(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})
	data := []byte("tiny") // below the dedup threshold

	first, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: data, Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)

	second, err := m.Store(ctx, StoreRequest{Tenant: "tenant-b", Data: data, Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)
	assert.False(t, second.Deduplicated)

	// Both tenants pay: content-addressing collapses the object in the
	// store, but no dedup entry exists below the threshold.
	assert.Equal(t, first.Address, second.Address)
	quotaB, ok := m.QuotaSnapshot("tenant-b")
	require.True(t, ok)
	assert.Equal(t, int64(len(data)), quotaB.UsedBytes)
}

func TestStoreKeepsFirstOwnerOnSharedAddress(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})
	data := []byte("tiny") // below the dedup threshold

	first, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: data, Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)

	_, err = m.Store(ctx, StoreRequest{Tenant: "tenant-b", Data: data, Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)

	// The first writer stays the owner of record: its deletion request is
	// owner-initiated and its usage is the usage freed.
	m.Delete(ctx, "tenant-a", first.Address)
	stats := m.SweepGarbage(ctx)
	require.Equal(t, 1, stats.Deleted)

	quotaA, _ := m.QuotaSnapshot("tenant-a")
	assert.Equal(t, int64(0), quotaA.UsedBytes)
	quotaB, _ := m.QuotaSnapshot("tenant-b")
	assert.Equal(t, int64(len(data)), quotaB.UsedBytes)
}

func TestStoreQuotaExceeded(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, Config{DefaultQuotaBytes: 1 * mib})
	data := payload('q', int(2*mib))

	result, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: data, Privacy: interfaces.PrivacyPrivate})
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrQuotaExceeded))
	require.NotNil(t, result.Quota.Overage)
	assert.Equal(t, 1*mib, result.Quota.Overage.Bytes)

	// Rejection happens before any store mutation.
	address := interfaces.ContentAddress(interfaces.ComputeHash(data).String())
	_, err = store.Stat(ctx, address)
	assert.True(t, errors.Is(err, interfaces.ErrContentNotFound))

	quota, ok := m.QuotaSnapshot("tenant-a")
	require.True(t, ok)
	assert.Equal(t, int64(0), quota.UsedBytes)
}

func TestStoreQuotaExactFit(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{DefaultQuotaBytes: 2048})

	_, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: payload('f', 2048), Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)

	quota, _ := m.QuotaSnapshot("tenant-a")
	assert.Equal(t, int64(2048), quota.UsedBytes)
	assert.Equal(t, int64(2048), quota.LimitBytes)
}

func TestRetrieveUnknownAddress(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	_, err := m.Retrieve(context.Background(), "tenant-a", "missing", "")
	assert.True(t, errors.Is(err, interfaces.ErrContentUnavailable))
}

func TestRetrievePromotesHotContent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	result, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: payload('h', 2048), Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TargetReplicas)

	for i := 0; i < 105; i++ {
		_, err := m.Retrieve(ctx, "tenant-a", result.Address, "us-east")
		require.NoError(t, err)
	}

	status, ok := m.ReplicationStatus(result.Address)
	require.True(t, ok)
	assert.Equal(t, interfaces.PolicyHot, status.Policy)
	assert.Equal(t, 8, status.TargetReplicas)
	assert.Equal(t, interfaces.AdjustHighAccess, status.AdjustmentReason)
}

func TestDeleteOwnObject(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	result, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: payload('x', 2048), Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)

	m.Delete(ctx, "tenant-a", result.Address)
	assert.Equal(t, 1, m.PendingDeletions())

	stats := m.SweepGarbage(ctx)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 0, m.PendingDeletions())

	// All bookkeeping is released.
	quota, _ := m.QuotaSnapshot("tenant-a")
	assert.Equal(t, int64(0), quota.UsedBytes)
	_, ok := m.ReplicationStatus(result.Address)
	assert.False(t, ok)
}

func TestDeleteByNonOwnerHonorsRetention(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	result, err := m.Store(ctx, StoreRequest{
		Tenant:      "tenant-a",
		Data:        payload('r', 2048),
		Privacy:     interfaces.PrivacyPrivate,
		RetainUntil: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	// A non-owner request does not override the retention hold.
	m.Delete(ctx, "tenant-b", result.Address)
	stats := m.SweepGarbage(ctx)
	assert.Equal(t, 1, stats.Retained)

	quota, _ := m.QuotaSnapshot("tenant-a")
	assert.Equal(t, int64(2048), quota.UsedBytes)
}

func TestDeleteOwnerOverridesRetention(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	result, err := m.Store(ctx, StoreRequest{
		Tenant:      "tenant-a",
		Data:        payload('o', 2048),
		Privacy:     interfaces.PrivacyPrivate,
		RetainUntil: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	m.Delete(ctx, "tenant-a", result.Address)
	stats := m.SweepGarbage(ctx)
	assert.Equal(t, 1, stats.Deleted)
}

func TestDeletedContentCanBeStoredAgain(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})
	data := payload('z', 2048)

	result, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: data, Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)

	m.Delete(ctx, "tenant-a", result.Address)
	m.SweepGarbage(ctx)

	// The dedup registration went with the object: a re-store is a fresh
	// write, charged again, not a stale-index hit.
	again, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: data, Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)
	assert.False(t, again.Deduplicated)

	quota, _ := m.QuotaSnapshot("tenant-a")
	assert.Equal(t, int64(2048), quota.UsedBytes)
}

func TestReevaluateReplicationPromotesHotContent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	result, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: payload('c', 2048), Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)

	// Drive the daily counter over the hot threshold without the read
	// path's inline adjustment.
	for i := 0; i < 150; i++ {
		m.tracker.RecordAccess(result.Address, interfaces.AccessRead, "us-east")
	}

	adjusted := m.ReevaluateReplication(ctx)
	assert.Equal(t, 1, adjusted)

	status, _ := m.ReplicationStatus(result.Address)
	assert.Equal(t, interfaces.PolicyHot, status.Policy)
	assert.Equal(t, 8, status.TargetReplicas)
	assert.Equal(t, interfaces.AdjustHighAccess, status.AdjustmentReason)

	// Re-running with the same pattern changes nothing.
	assert.Equal(t, 0, m.ReevaluateReplication(ctx))
}

func TestHandleExternalFileCreated(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	m.HandleExternalFileCreated(externalFile("tenant-a", "QmExternal", 4096))

	status, ok := m.ReplicationStatus("QmExternal")
	require.True(t, ok)
	assert.Equal(t, interfaces.PolicyPublic, status.Policy)
	assert.Equal(t, 3, status.Replicas)
	assert.Equal(t, interfaces.HealthHealthy, status.Health)

	// No quota charge for externally produced objects.
	_, ok = m.QuotaSnapshot("tenant-a")
	assert.False(t, ok)
}

func TestHandleExternalFileCreatedIgnoresIncomplete(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	m.HandleExternalFileCreated(externalFile("", "QmExternal", 4096))
	m.HandleExternalFileCreated(externalFile("tenant-a", "", 4096))

	_, ok := m.ReplicationStatus("QmExternal")
	assert.False(t, ok)
}

func TestHandlePaymentCompleted(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{DefaultQuotaBytes: 1 * mib})

	data := payload('p', int(2*mib))
	_, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: data, Privacy: interfaces.PrivacyPrivate})
	require.True(t, errors.Is(err, interfaces.ErrQuotaExceeded))

	m.HandlePaymentCompleted(paymentEvent("tenant-a", 4*mib))

	result, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: data, Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Address)

	quota, _ := m.QuotaSnapshot("tenant-a")
	assert.Equal(t, 5*mib, quota.LimitBytes)
}

func TestHandlePaymentCompletedIgnoresInvalid(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	m.HandlePaymentCompleted(paymentEvent("", 1024))
	m.HandlePaymentCompleted(paymentEvent("tenant-a", 0))

	_, ok := m.QuotaSnapshot("tenant-a")
	assert.False(t, ok)
}

func TestVerifyBackupsEndToEnd(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	result, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: payload('v', 2048), Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)

	report := m.VerifyBackups(ctx)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Healthy)

	status, _ := m.ReplicationStatus(result.Address)
	assert.Equal(t, interfaces.HealthHealthy, status.Health)
}

func TestDisasterRecoveryDrillEndToEnd(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	before := len(m.controller.Statuses())
	report := m.RunDisasterRecoveryTest(ctx)

	assert.NotEqual(t, "", string(report.Overall))
	// The drill's synthetic object leaves no residual records.
	assert.Len(t, m.controller.Statuses(), before)
}

func TestResetCounters(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	result, err := m.Store(ctx, StoreRequest{Tenant: "tenant-a", Data: payload('t', 2048), Privacy: interfaces.PrivacyPrivate})
	require.NoError(t, err)
	_, err = m.Retrieve(ctx, "tenant-a", result.Address, "")
	require.NoError(t, err)

	m.ResetDailyCounters()
	pattern, ok := m.tracker.Pattern(result.Address)
	require.True(t, ok)
	assert.Equal(t, int64(0), pattern.DailyAccess)
	assert.NotZero(t, pattern.TotalAccess)

	m.ResetWeeklyCounters()
	pattern, _ = m.tracker.Pattern(result.Address)
	assert.Equal(t, int64(0), pattern.WeeklyAccess)
}

func externalFile(tenant string, address interfaces.ContentAddress, size int64) events.ExternalFileCreated {
	return events.ExternalFileCreated{
		Tenant:   tenant,
		Address:  address,
		Size:     size,
		Privacy:  interfaces.PrivacyPublic,
		Policy:   interfaces.PolicyPublic,
		Replicas: 3,
	}
}

func paymentEvent(tenant string, paidBytes int64) events.PaymentCompleted {
	return events.PaymentCompleted{Tenant: tenant, PaidBytes: paidBytes}
}
