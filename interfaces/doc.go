// Package interfaces defines the shared contracts and domain types of the
// storage control plane.
//
// The control plane sits in front of a content-addressed object store and
// decides how many copies of each object exist, where, for how long, and at
// whose cost. It never stores bytes itself; all byte handling goes through
// the five ContentStore primitives (Add, Pin, Unpin, Stat, Cat).
//
// # Domain records
//
// Four mutable records track control-plane state, each synchronized per key
// so that unrelated objects and tenants never contend:
//
//   - ReplicationStatus: per-address policy, replica counts, and health
//   - AccessPattern: per-address access counters and histograms
//   - StorageQuota: per-tenant byte usage and limit
//   - deduplication index entries: content hash to canonical address
//
// # External collaborators
//
// The content store, reference index, event bus, and audit service are
// external. Their failures during write paths are absorbed into degraded
// health records; failures during read paths surface to the caller.
package interfaces
