package manager

import (
	"sync"

	"github.com/ruteri/storage-control-plane/interfaces"
)

// catalog tracks the metadata of every object this control plane manages.
// It satisfies gc.Catalog.
type catalog struct {
	mu      sync.RWMutex
	objects map[interfaces.ContentAddress]interfaces.ObjectMetadata
}

func newCatalog() *catalog {
	return &catalog{objects: make(map[interfaces.ContentAddress]interfaces.ObjectMetadata)}
}

// Put registers or replaces an object's metadata.
func (c *catalog) Put(address interfaces.ContentAddress, meta interfaces.ObjectMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[address] = meta
}

// Lookup returns the metadata for an address.
func (c *catalog) Lookup(address interfaces.ContentAddress) (interfaces.ObjectMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.objects[address]
	return meta, ok
}

// Remove drops an object's metadata.
func (c *catalog) Remove(address interfaces.ContentAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, address)
}

// Len returns the number of tracked objects.
func (c *catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}
