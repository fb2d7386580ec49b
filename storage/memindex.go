package storage

import (
	"context"
	"sync"

	"github.com/ruteri/storage-control-plane/interfaces"
)

// MemoryIndex is an in-memory reference index for tests and single-node
// development runs.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string][]byte)}
}

// Put creates or replaces a value.
func (i *MemoryIndex) Put(ctx context.Context, key string, value []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	buf := make([]byte, len(value))
	copy(buf, value)
	i.entries[key] = buf
	return nil
}

// Get retrieves a value, or ErrKeyNotFound.
func (i *MemoryIndex) Get(ctx context.Context, key string) ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	value, ok := i.entries[key]
	if !ok {
		return nil, interfaces.ErrKeyNotFound
	}
	return value, nil
}

// Delete removes a key.
func (i *MemoryIndex) Delete(ctx context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.entries, key)
	return nil
}
