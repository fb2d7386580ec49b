// Package manager composes the storage control plane.
//
// A store request flows through deduplication, quota admission, the store
// write, and policy-driven pinning; retrieve and delete requests feed the
// access tracker and the garbage collection queue. Independent background
// tasks drive GC sweeps, replication re-evaluation, backup verification,
// disaster recovery drills, and access counter resets.
//
// Operations on the same content address are serialized through a keyed
// mutex; operations on different addresses and tenants proceed
// independently. No transaction spans the content store and the quota
// ledger: the design accepts eventual consistency between bytes stored and
// bytes accounted, corrected by periodic verification.
//
// Quota enforcement is local: storage.quota.exceeded is published here for
// the billing service to act on, never consumed by this plane. The only
// events this plane subscribes to are external file creation and payment
// completion.
package manager
