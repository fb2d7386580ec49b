package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/storage-control-plane/interfaces"
)

// Factory creates content stores from URI strings.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a new factory instance.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// StoreFor creates a content store from a location URI.
//
// Supported schemes:
//   - ipfs://host:port/?timeout=30s - IPFS node API
//   - file:///var/lib/storage/ - local filesystem (development and tests)
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *Factory) StoreFor(locationURI string) (interfaces.ContentStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidStoreURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ipfs":
		return f.createIPFSStore(u)
	case "file":
		return f.createFileStore(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %s", interfaces.ErrInvalidStoreURI, u.Scheme)
	}
}

// createIPFSStore creates an IPFS content store.
// URI format: ipfs://ipfs.example.com:5001/?timeout=30s
func (f *Factory) createIPFSStore(u *url.URL) (interfaces.ContentStore, error) {
	f.log.Debug("Creating IPFS store", slog.String("uri", u.String()))

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing IPFS host", interfaces.ErrInvalidStoreURI)
	}

	port := u.Port()
	if port == "" {
		port = "5001"
	}

	timeout := 30 * time.Second
	if raw := u.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidStoreURI, raw)
		}
		timeout = parsed
	}

	return NewIPFSStore(host, port, timeout, f.log), nil
}

// createFileStore creates a filesystem content store.
// URI format: file:///var/lib/storage/
func (f *Factory) createFileStore(u *url.URL) (interfaces.ContentStore, error) {
	f.log.Debug("Creating file store", slog.String("uri", u.String()))

	if u.Path == "" {
		return nil, fmt.Errorf("%w: missing file path", interfaces.ErrInvalidStoreURI)
	}

	return NewFileStore(u.Path, f.log)
}
