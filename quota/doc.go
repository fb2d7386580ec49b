// Package quota implements the per-tenant usage ledger.
//
// Quota records are created lazily at a configurable default limit. Usage
// moves with signed deltas clamped at zero, admission checks price overages
// at a fixed per-byte rate, and threshold crossings (80% warning, 95%
// critical) produce alert events at most once per crossing per accounting
// period. Confirmed payments raise the limit permanently.
package quota
