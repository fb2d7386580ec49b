// Package backup implements the periodic backup verifier and the disaster
// recovery drill.
//
// The verifier audits every tracked replication record against the live
// store and reclassifies health from current reachability. The drill is a
// synthetic end-to-end recovery test that writes a throwaway object,
// verifies replication, simulates loss, recovers, checks integrity, and
// unconditionally cleans up after itself.
package backup
