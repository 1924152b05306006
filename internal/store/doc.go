// Package store provides SQLite-backed durable storage for the points ledger.
//
// Tables:
//   - businesses, programs: the catalog read by the balance view
//   - enrollments: one row per (customer, program), soft status only
//   - cards: the authoritative points balance, one active card per enrollment
//   - activities: append-only audit log, UNIQUE idempotency_key
//   - legacy_balance_drift: one-time record of reconciled legacy balances
//
// # Single writer
//
// Tx.ApplyDelta is the only statement path that changes cards.points. It
// runs inside one transaction that reads the card, claims the idempotency
// key via ON CONFLICT DO NOTHING, compare-and-sets the balance and copies it
// into enrollments.points_cache. A second claim of the same key changes
// nothing and reports the original record.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout: configurable, 5s by default
//   - foreign_keys=ON
//   - transactions begin IMMEDIATE so the write lock is taken up front
//   - one pooled connection: writers are serialized in-process
//
// Append-only enforcement for activities is done by triggers.
package store
