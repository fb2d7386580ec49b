package storage

import (
	"context"

	"github.com/ruteri/storage-control-plane/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockContentStore mocks the ContentStore interface.
type MockContentStore struct {
	mock.Mock
	StoreName string
}

// Add mocks the Add method.
func (m *MockContentStore) Add(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	args := m.Called(ctx, data)
	return args.Get(0).(interfaces.ContentAddress), args.Error(1)
}

// Pin mocks the Pin method.
func (m *MockContentStore) Pin(ctx context.Context, address interfaces.ContentAddress, region string) error {
	args := m.Called(ctx, address, region)
	return args.Error(0)
}

// Unpin mocks the Unpin method.
func (m *MockContentStore) Unpin(ctx context.Context, address interfaces.ContentAddress) error {
	args := m.Called(ctx, address)
	return args.Error(0)
}

// Stat mocks the Stat method.
func (m *MockContentStore) Stat(ctx context.Context, address interfaces.ContentAddress) (interfaces.ObjectStat, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(interfaces.ObjectStat), args.Error(1)
}

// Cat mocks the Cat method.
func (m *MockContentStore) Cat(ctx context.Context, address interfaces.ContentAddress) ([]byte, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Available mocks the Available method.
func (m *MockContentStore) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

// Name returns the configured store name.
func (m *MockContentStore) Name() string {
	if m.StoreName != "" {
		return m.StoreName
	}
	return "mock-store"
}

// MockPublisher mocks the EventPublisher interface.
type MockPublisher struct {
	mock.Mock
}

// Publish mocks the Publish method.
func (m *MockPublisher) Publish(ctx context.Context, event interfaces.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockAuditSink mocks the AuditSink interface.
type MockAuditSink struct {
	mock.Mock
}

// Audit mocks the Audit method.
func (m *MockAuditSink) Audit(ctx context.Context, record interfaces.AuditRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}
