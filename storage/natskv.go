package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/ruteri/storage-control-plane/interfaces"
)

// NATSIndex implements the reference index on a NATS JetStream key-value
// bucket. Dedup registrations and reference lists share the bucket under
// distinct key prefixes.
type NATSIndex struct {
	kv      jetstream.KeyValue
	timeout time.Duration
	log     *slog.Logger
}

// NewNATSIndex opens (or creates) the key-value bucket on an existing NATS
// connection. The timeout bounds every index operation.
func NewNATSIndex(ctx context.Context, nc *nats.Conn, bucket string, timeout time.Duration, log *slog.Logger) (*NATSIndex, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "storage control plane reference index",
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open kv bucket %s: %w", bucket, err)
	}

	return &NATSIndex{
		kv:      kv,
		timeout: timeout,
		log:     log,
	}, nil
}

// Put creates or replaces a value.
func (i *NATSIndex) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := i.applyTimeout(ctx)
	defer cancel()

	if _, err := i.kv.Put(ctx, encodeKey(key), value); err != nil {
		return fmt.Errorf("index put %s: %w", key, err)
	}
	return nil
}

// Get retrieves a value, or ErrKeyNotFound.
func (i *NATSIndex) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := i.applyTimeout(ctx)
	defer cancel()

	entry, err := i.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, interfaces.ErrKeyNotFound
		}
		return nil, fmt.Errorf("index get %s: %w", key, err)
	}
	return entry.Value(), nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (i *NATSIndex) Delete(ctx context.Context, key string) error {
	ctx, cancel := i.applyTimeout(ctx)
	defer cancel()

	if err := i.kv.Delete(ctx, encodeKey(key)); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("index delete %s: %w", key, err)
	}
	return nil
}

func (i *NATSIndex) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout > 0 {
		return context.WithTimeout(ctx, i.timeout)
	}
	return ctx, func() {}
}

// encodeKey maps control-plane keys onto the NATS KV key charset, which
// does not allow colons.
func encodeKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}
