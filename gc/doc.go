// Package gc implements the reference-aware garbage collector.
//
// Delete requests enqueue an address; a periodic sweep evaluates each entry
// through the Queued, Evaluating, Deleted/Retained state machine. The hard
// invariant is that content with any registered reference is never deleted,
// and the decision is re-checked against the reference index immediately
// before the unpin, inside the same per-address critical section, to close
// the race between evaluation and a fresh reference registration.
package gc
