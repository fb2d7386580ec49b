// Package replication implements the replication controller.
//
// The controller owns the per-address ReplicationStatus records. It applies
// a selected pinning policy by fanning pin requests out across the policy's
// region set, re-evaluates replica targets from access patterns, and
// classifies health from achieved versus target replica counts. Partial pin
// failure is a recoverable degraded state, never an operation failure: the
// primary write has already succeeded by the time the controller runs.
package replication
