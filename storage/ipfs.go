package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/storage-control-plane/interfaces"
)

// IPFSStore implements the content store contract against an IPFS node API.
type IPFSStore struct {
	shell *shell.Shell
	host  string
	port  string
	log   *slog.Logger
}

// NewIPFSStore creates a content store connected to the IPFS API at host:port.
// The timeout bounds every API call; a slow or partitioned node must not
// block unrelated requests.
func NewIPFSStore(host, port string, timeout time.Duration, log *slog.Logger) *IPFSStore {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSStore{
		shell: sh,
		host:  host,
		port:  port,
		log:   log,
	}
}

// Add stores data in IPFS and returns the CID as the content address.
// Returns ErrBackendUnavailable if the IPFS node is not accessible.
func (s *IPFSStore) Add(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	start := time.Now()

	if !s.shell.IsUp() {
		s.log.Warn("IPFS node unavailable",
			slog.String("host", s.host),
			slog.String("port", s.port))
		return "", interfaces.ErrBackendUnavailable
	}

	cid, err := s.shell.Add(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to add data to IPFS: %w", err)
	}

	s.log.Debug("Stored content in IPFS",
		slog.String("address", cid),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return interfaces.ContentAddress(cid), nil
}

// Pin requests the node retain the object. IPFS has no region concept at the
// node level; the region is recorded by the replication controller and logged
// here for traceability only.
func (s *IPFSStore) Pin(ctx context.Context, address interfaces.ContentAddress, region string) error {
	if !s.shell.IsUp() {
		return interfaces.ErrBackendUnavailable
	}

	if err := s.shell.Pin(string(address)); err != nil {
		return fmt.Errorf("failed to pin %s: %w", address.Short(), err)
	}

	s.log.Debug("Pinned content",
		slog.String("address", address.Short()),
		slog.String("region", region))
	return nil
}

// Unpin releases the pin for the object.
func (s *IPFSStore) Unpin(ctx context.Context, address interfaces.ContentAddress) error {
	if !s.shell.IsUp() {
		return interfaces.ErrBackendUnavailable
	}

	if err := s.shell.Unpin(string(address)); err != nil {
		if isNotFoundErr(err) {
			return interfaces.ErrContentNotFound
		}
		return fmt.Errorf("failed to unpin %s: %w", address.Short(), err)
	}
	return nil
}

// Stat reports the cumulative size of the object, or ErrContentNotFound.
func (s *IPFSStore) Stat(ctx context.Context, address interfaces.ContentAddress) (interfaces.ObjectStat, error) {
	if !s.shell.IsUp() {
		return interfaces.ObjectStat{}, interfaces.ErrBackendUnavailable
	}

	stat, err := s.shell.ObjectStat(string(address))
	if err != nil {
		if isNotFoundErr(err) {
			return interfaces.ObjectStat{}, interfaces.ErrContentNotFound
		}
		return interfaces.ObjectStat{}, fmt.Errorf("failed to stat %s: %w", address.Short(), err)
	}

	return interfaces.ObjectStat{Size: int64(stat.CumulativeSize)}, nil
}

// Cat retrieves the full object bytes from IPFS.
func (s *IPFSStore) Cat(ctx context.Context, address interfaces.ContentAddress) ([]byte, error) {
	start := time.Now()

	if !s.shell.IsUp() {
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := s.shell.Cat(string(address))
	if err != nil {
		if isNotFoundErr(err) {
			s.log.Debug("Content not found in IPFS",
				slog.String("address", address.Short()),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to cat %s: %w", address.Short(), err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", address.Short(), err)
	}

	s.log.Debug("Fetched content from IPFS",
		slog.String("address", address.Short()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Available checks if the IPFS node is accessible.
func (s *IPFSStore) Available(ctx context.Context) bool {
	return s.shell.IsUp()
}

// Name returns a unique identifier for this store.
func (s *IPFSStore) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", s.host, s.port)
}

// isNotFoundErr matches the error strings the IPFS API returns for
// missing content.
func isNotFoundErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no link named") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "not pinned")
}
