package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ruteri/storage-control-plane/interfaces"
)

// FileStore implements the content store contract on the local file system.
// It exists for development and tests; pins are bookkept in a sidecar
// directory so replication health logic can be exercised without a daemon.
type FileStore struct {
	baseDir string
	log     *slog.Logger

	mu sync.Mutex // guards pin file read-modify-write
}

// NewFileStore creates a file-backed content store rooted at baseDir.
func NewFileStore(baseDir string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "objects"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create objects directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "pins"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create pins directory: %w", err)
	}

	return &FileStore{
		baseDir: baseDir,
		log:     log,
	}, nil
}

// Add stores data and returns its SHA-256 hex digest as the content address.
func (s *FileStore) Add(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	address := interfaces.ContentAddress(interfaces.ComputeHash(data).String())

	path := s.objectPath(address)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return address, fmt.Errorf("failed to write object: %w", err)
	}

	s.log.Debug("Stored content in file store",
		slog.String("path", path),
		slog.String("address", address.Short()))

	return address, nil
}

// Pin records a pin for the object in the given region.
func (s *FileStore) Pin(ctx context.Context, address interfaces.ContentAddress, region string) error {
	if _, err := os.Stat(s.objectPath(address)); os.IsNotExist(err) {
		return interfaces.ErrContentNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	regions, err := s.readPins(address)
	if err != nil {
		return err
	}

	for _, r := range regions {
		if r == region {
			return nil
		}
	}
	regions = append(regions, region)
	return s.writePins(address, regions)
}

// Unpin removes all pin records for the object.
func (s *FileStore) Unpin(ctx context.Context, address interfaces.ContentAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.pinPath(address)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pins: %w", err)
	}
	return nil
}

// Stat reports file size, or ErrContentNotFound.
func (s *FileStore) Stat(ctx context.Context, address interfaces.ContentAddress) (interfaces.ObjectStat, error) {
	info, err := os.Stat(s.objectPath(address))
	if os.IsNotExist(err) {
		return interfaces.ObjectStat{}, interfaces.ErrContentNotFound
	}
	if err != nil {
		return interfaces.ObjectStat{}, fmt.Errorf("failed to stat object: %w", err)
	}
	return interfaces.ObjectStat{Size: info.Size()}, nil
}

// Cat reads the full object bytes.
func (s *FileStore) Cat(ctx context.Context, address interfaces.ContentAddress) ([]byte, error) {
	data, err := os.ReadFile(s.objectPath(address))
	if os.IsNotExist(err) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Available checks the base directory exists.
func (s *FileStore) Available(ctx context.Context) bool {
	_, err := os.Stat(s.baseDir)
	if err != nil {
		s.log.Debug("File store unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this store.
func (s *FileStore) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(s.baseDir))
}

// PinnedRegions returns the regions an object is pinned in. Used by tests
// to assert drill cleanup left no residual pins.
func (s *FileStore) PinnedRegions(address interfaces.ContentAddress) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readPins(address)
}

func (s *FileStore) objectPath(address interfaces.ContentAddress) string {
	return filepath.Join(s.baseDir, "objects", string(address))
}

func (s *FileStore) pinPath(address interfaces.ContentAddress) string {
	return filepath.Join(s.baseDir, "pins", string(address)+".json")
}

func (s *FileStore) readPins(address interfaces.ContentAddress) ([]string, error) {
	data, err := os.ReadFile(s.pinPath(address))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pins: %w", err)
	}

	var regions []string
	if err := json.Unmarshal(data, &regions); err != nil {
		return nil, fmt.Errorf("failed to decode pins: %w", err)
	}
	return regions, nil
}

func (s *FileStore) writePins(address interfaces.ContentAddress, regions []string) error {
	data, err := json.Marshal(regions)
	if err != nil {
		return fmt.Errorf("failed to encode pins: %w", err)
	}
	if err := os.WriteFile(s.pinPath(address), data, 0644); err != nil {
		return fmt.Errorf("failed to write pins: %w", err)
	}
	return nil
}
