package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/ruteri/storage-control-plane/interfaces"
	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("same")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("a")
	defer unlockA()

	// A different key must not block behind "a".
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("independent key blocked")
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.Lock("ephemeral")
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}

func TestCatalog(t *testing.T) {
	c := newCatalog()
	addr := interfaces.ContentAddress("QmObject")

	_, ok := c.Lookup(addr)
	assert.False(t, ok)

	c.Put(addr, interfaces.ObjectMetadata{Tenant: "tenant-a", Size: 2048})
	meta, ok := c.Lookup(addr)
	assert.True(t, ok)
	assert.Equal(t, "tenant-a", meta.Tenant)
	assert.Equal(t, 1, c.Len())

	c.Remove(addr)
	_, ok = c.Lookup(addr)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
