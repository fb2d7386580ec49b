// Package policy implements the pinning policy registry.
//
// A policy names a replica target range and a region set. Policies are
// selected by evaluating an ordered list of predicates over object size,
// privacy class, access count, and last-accessed age. The order is fixed
// (hot, cold, public, default) and the trailing default always matches, so
// selection is total and pure.
package policy
